package models

import "time"

// --- Inventory ---

// Product represents per-product inventory levels in the store.
// availableQuantity + reservedQuantity is the total physical stock;
// both are kept non-negative by the store implementations.
type Product struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	UnitPrice         float64   `db:"unit_price" json:"unitPrice"`
	AvailableQuantity int       `db:"available_quantity" json:"availableQuantity"`
	ReservedQuantity  int       `db:"reserved_quantity" json:"reservedQuantity"`
	Version           int64     `db:"version" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// Total returns the physical stock the product record accounts for.
func (p *Product) Total() int {
	return p.AvailableQuantity + p.ReservedQuantity
}

// --- Reservations ---

// ReservationStatus is the lifecycle state of a stock reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is a temporary hold on inventory owned by an in-progress order.
type Reservation struct {
	ID         string            `db:"id" json:"id"`
	ProductID  string            `db:"product_id" json:"productId"`
	OrderID    string            `db:"order_id" json:"orderId"`
	Quantity   int               `db:"quantity" json:"quantity"`
	Status     ReservationStatus `db:"status" json:"status"`
	ExpiresAt  time.Time         `db:"expires_at" json:"expiresAt"`
	CreatedAt  time.Time         `db:"created_at" json:"createdAt"`
	ResolvedAt *time.Time        `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// Expired reports whether an Active reservation is past its expiry.
func (r *Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}

// --- Orders ---

// OrderStatus is the ledger state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderFailed    OrderStatus = "failed"
	OrderFulfilled OrderStatus = "fulfilled"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFailed, OrderFulfilled, OrderCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits s -> next.
//
//	pending -> paid | failed | cancelled
//	paid    -> fulfilled | cancelled
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderPaid || next == OrderFailed || next == OrderCancelled
	case OrderPaid:
		return next == OrderFulfilled || next == OrderCancelled
	}
	return false
}

// OrderItem is a line item with the unit price snapshotted at order time.
type OrderItem struct {
	ProductID string  `db:"product_id" json:"productId"`
	Quantity  int     `db:"quantity" json:"quantity"`
	UnitPrice float64 `db:"unit_price" json:"unitPrice"`
}

// Order is the ledger record for a customer order.
type Order struct {
	ID          string      `db:"id" json:"id"`
	CustomerID  string      `db:"customer_id" json:"customerId"`
	Items       []OrderItem `json:"items"`
	Status      OrderStatus `db:"status" json:"status"`
	PaymentRef  string      `db:"payment_ref" json:"paymentRef,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	PaidAt      *time.Time  `db:"paid_at" json:"paidAt,omitempty"`
	FailedAt    *time.Time  `db:"failed_at" json:"failedAt,omitempty"`
	FulfilledAt *time.Time  `db:"fulfilled_at" json:"fulfilledAt,omitempty"`
	CancelledAt *time.Time  `db:"cancelled_at" json:"cancelledAt,omitempty"`
}

// Total returns the order amount from the snapshotted unit prices.
func (o *Order) Total() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

// --- Payment notifications ---

// PaymentOutcome is the gateway's verdict on a transaction.
type PaymentOutcome string

const (
	PaymentSuccess PaymentOutcome = "success"
	PaymentFailure PaymentOutcome = "failure"
)

// PaymentNotification is a validated gateway callback, persisted only so
// duplicate transaction references can be detected.
type PaymentNotification struct {
	TransactionID string         `db:"transaction_id" json:"transactionId"`
	OrderID       string         `db:"order_id" json:"orderId"`
	Outcome       PaymentOutcome `db:"outcome" json:"outcome"`
	RawPayload    string         `db:"raw_payload" json:"-"`
	ReceivedAt    time.Time      `db:"received_at" json:"receivedAt"`
}

// --- Dashboard ---

// DashboardStats is the aggregate view served to the admin dashboard.
type DashboardStats struct {
	TotalOrders     int `json:"totalOrders"`
	PendingOrders   int `json:"pendingOrders"`
	PaidOrders      int `json:"paidOrders"`
	FulfilledOrders int `json:"fulfilledOrders"`
	FailedOrders    int `json:"failedOrders"`
	CancelledOrders int `json:"cancelledOrders"`
	TotalProducts   int `json:"totalProducts"`
	LowStock        int `json:"lowStock"`
}
