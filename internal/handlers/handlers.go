// Package handlers exposes the inventory and order ledger over HTTP. Every
// response uses the {success, data?, message?} envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/gateway"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/inventory"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/ledger"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

type Handler struct {
	store    inventory.Store
	adjuster *inventory.Adjuster
	ledger   *ledger.Ledger
	gateway  *gateway.Adapter
}

func New(store inventory.Store, adjuster *inventory.Adjuster, l *ledger.Ledger, gw *gateway.Adapter) *Handler {
	return &Handler{store: store, adjuster: adjuster, ledger: l, gateway: gw}
}

// Router assembles the chi router with the shared middleware stack.
func (h *Handler) Router(adminToken string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{id}", h.GetOrder)
	r.Post("/orders/{id}/cancel", h.CancelOrder)

	r.Get("/products/{id}", h.GetProduct)

	r.Post("/payment/success/{orderId}", h.PaymentSuccess)
	r.Post("/payment/fail/{orderId}", h.PaymentFail)

	r.Group(func(r chi.Router) {
		r.Use(AdminOnly(adminToken))
		r.Post("/products", h.CreateProduct)
		r.Patch("/products/{id}/stock", h.AdjustStock)
		r.Get("/admin/dashboard/stats", h.DashboardStats)
	})

	r.Get("/health", h.HealthCheck)
	return r
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidQuantity), errors.Is(err, models.ErrInvalidCallback):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrAlreadyResolved),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("Unhandled error in HTTP handler")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Orders ---

type createOrderRequest struct {
	CustomerID string `json:"customerId"`
	Items      []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CustomerID == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "customerId and items are required")
		return
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := h.ledger.CreateOrder(r.Context(), req.CustomerID, items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: order})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ledger.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: order})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ledger.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "order cancelled"})
}

// --- Products ---

type createProductRequest struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	UnitPrice       float64 `json:"unitPrice"`
	InitialQuantity int     `json:"initialQuantity"`
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.InitialQuantity < 0 {
		writeError(w, http.StatusBadRequest, "name is required and initialQuantity must be non-negative")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	product := &models.Product{
		ID:                req.ID,
		Name:              req.Name,
		UnitPrice:         req.UnitPrice,
		AvailableQuantity: req.InitialQuantity,
	}
	if err := h.store.Create(r.Context(), product); err != nil {
		writeDomainError(w, err)
		return
	}
	created, err := h.store.Get(r.Context(), req.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: created})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: product})
}

// --- Stock adjustment ---

type adjustStockRequest struct {
	Operation string `json:"operation"` // add | subtract | set
	Quantity  int    `json:"quantity"`
}

type adjustStockResponse struct {
	ProductID   string `json:"productId"`
	Operation   string `json:"operation"`
	OldQuantity int    `json:"oldQuantity"`
	NewQuantity int    `json:"newQuantity"`
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	old, updated, err := h.adjuster.Apply(r.Context(), Actor(r.Context()), id, req.Operation, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: adjustStockResponse{
		ProductID:   id,
		Operation:   req.Operation,
		OldQuantity: old,
		NewQuantity: updated,
	}})
}

// --- Payment callbacks ---

func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	h.paymentCallback(w, r, models.PaymentSuccess)
}

func (h *Handler) PaymentFail(w http.ResponseWriter, r *http.Request) {
	h.paymentCallback(w, r, models.PaymentFailure)
}

func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request, expected models.PaymentOutcome) {
	orderID := chi.URLParam(r, "orderId")
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	if err := h.gateway.HandleCallback(r.Context(), orderID, r.PostForm, expected); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "payment notification processed"})
}

// --- Admin dashboard ---

func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.DashboardStats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: stats})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}
