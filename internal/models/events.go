package models

import "time"

// --- Outgoing events ---

// OrderPaidEvent is published after a successful payment is recorded.
type OrderPaidEvent struct {
	EventID       string      `json:"eventId"`
	OrderID       string      `json:"orderId"`
	CustomerID    string      `json:"customerId"`
	Items         []OrderItem `json:"items"`
	TotalAmount   float64     `json:"totalAmount"`
	TransactionID string      `json:"transactionId"`
	Timestamp     time.Time   `json:"timestamp"`
}

// OrderFailedEvent is published when an order fails or is cancelled and its
// reservations have been returned to stock.
type OrderFailedEvent struct {
	EventID   string    `json:"eventId"`
	OrderID   string    `json:"orderId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// StockAdjustedEvent is published after an administrative stock adjustment.
type StockAdjustedEvent struct {
	EventID     string    `json:"eventId"`
	ProductID   string    `json:"productId"`
	Operation   string    `json:"operation"`
	OldQuantity int       `json:"oldQuantity"`
	NewQuantity int       `json:"newQuantity"`
	Actor       string    `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`
}

// --- Incoming events ---

// ShipmentConfirmedEvent is consumed from the logistics collaborator and
// moves a paid order to fulfilled.
type ShipmentConfirmedEvent struct {
	EventID    string    `json:"eventId"`
	OrderID    string    `json:"orderId"`
	TrackingID string    `json:"trackingId"`
	Timestamp  time.Time `json:"timestamp"`
}
