package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/eventbus"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/gateway"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/inventory"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/ledger"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/reservation"
)

const (
	adminToken    = "test-admin-token"
	storePassword = "test-store-password"
)

func newServer(t *testing.T) (*httptest.Server, inventory.Store) {
	t.Helper()

	store := inventory.NewMemoryStore()
	manager := reservation.NewManager(store, reservation.NewMemoryRepo(), time.Minute)
	l := ledger.New(ledger.NewMemoryOrderRepo(), manager, store, ledger.NewMemoryTxnRefStore(), eventbus.NopPublisher{}, 5)
	adjuster := inventory.NewAdjuster(store, eventbus.NopPublisher{})
	gw := gateway.NewAdapter(l, storePassword)

	h := New(store, adjuster, l, gw)
	server := httptest.NewServer(h.Router(adminToken))
	t.Cleanup(server.Close)
	return server, store
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func doJSON(t *testing.T, method, url string, body interface{}, admin bool) (*http.Response, response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Admin-Token", adminToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func seedProduct(t *testing.T, store inventory.Store, id string, quantity int) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &models.Product{
		ID: id, Name: "Fresh Mango 1kg", UnitPrice: 3, AvailableQuantity: quantity,
	}))
}

func createOrder(t *testing.T, server *httptest.Server, productID string, quantity int) models.Order {
	t.Helper()
	resp, env := doJSON(t, http.MethodPost, server.URL+"/orders", map[string]interface{}{
		"customerId": "customer-1",
		"items":      []map[string]interface{}{{"productId": productID, "quantity": quantity}},
	}, false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, env.Success)

	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	return order
}

func TestCreateAndGetProduct(t *testing.T) {
	server, _ := newServer(t)

	resp, env := doJSON(t, http.MethodPost, server.URL+"/products", map[string]interface{}{
		"id": "p1", "name": "Hilsa Fish 1kg", "unitPrice": 12.5, "initialQuantity": 8,
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, env.Success)

	resp, env = doJSON(t, http.MethodGet, server.URL+"/products/p1", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var product models.Product
	require.NoError(t, json.Unmarshal(env.Data, &product))
	assert.Equal(t, 8, product.AvailableQuantity)
}

func TestCreateProductRequiresAdminToken(t *testing.T) {
	server, _ := newServer(t)

	resp, env := doJSON(t, http.MethodPost, server.URL+"/products", map[string]interface{}{
		"name": "Unauthorized Item", "initialQuantity": 1,
	}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestCreateOrderAndOversellRejected(t *testing.T) {
	server, store := newServer(t)
	seedProduct(t, store, "p1", 10)

	order := createOrder(t, server, "p1", 10)
	assert.Equal(t, models.OrderPending, order.Status)

	// Stock exhausted; the next order is rejected and nothing changes.
	resp, env := doJSON(t, http.MethodPost, server.URL+"/orders", map[string]interface{}{
		"customerId": "customer-2",
		"items":      []map[string]interface{}{{"productId": "p1", "quantity": 1}},
	}, false)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "insufficient stock")
}

func TestCreateOrderValidation(t *testing.T) {
	server, _ := newServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/orders", map[string]interface{}{
		"customerId": "", "items": []map[string]interface{}{},
	}, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStockAdjustment(t *testing.T) {
	server, store := newServer(t)
	seedProduct(t, store, "p1", 10)

	resp, env := doJSON(t, http.MethodPatch, server.URL+"/products/p1/stock", map[string]interface{}{
		"operation": "add", "quantity": 5,
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result adjustStockResponse
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 10, result.OldQuantity)
	assert.Equal(t, 15, result.NewQuantity)

	resp, _ = doJSON(t, http.MethodPatch, server.URL+"/products/p1/stock", map[string]interface{}{
		"operation": "subtract", "quantity": 100,
	}, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPatch, server.URL+"/products/p1/stock", map[string]interface{}{
		"operation": "set", "quantity": -1,
	}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPatch, server.URL+"/products/p1/stock", map[string]interface{}{
		"operation": "add", "quantity": 1,
	}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func postCallback(t *testing.T, serverURL, path, tranID, status string) *http.Response {
	t.Helper()

	values := url.Values{}
	values.Set("tran_id", tranID)
	values.Set("status", status)
	values.Set("amount", "30.00")
	values.Set("verify_key", "amount,status,tran_id")
	values.Set("verify_sign", gateway.Sign(values, "amount,status,tran_id", storePassword))

	resp, err := http.Post(serverURL+path, "application/x-www-form-urlencoded", strings.NewReader(values.Encode()))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestPaymentCallbackFlow(t *testing.T) {
	server, store := newServer(t)
	seedProduct(t, store, "p1", 10)
	order := createOrder(t, server, "p1", 3)

	resp := postCallback(t, server.URL, "/payment/success/"+order.ID, "txn-1", "VALID")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, env := doJSON(t, http.MethodGet, server.URL+"/orders/"+order.ID, nil, false)
	var got models.Order
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.OrderPaid, got.Status)

	// Replaying the callback does not disturb the ledger.
	resp = postCallback(t, server.URL, "/payment/success/"+order.ID, "txn-1", "VALID")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPaymentCallbackBadSignature(t *testing.T) {
	server, store := newServer(t)
	seedProduct(t, store, "p1", 10)
	order := createOrder(t, server, "p1", 3)

	values := url.Values{}
	values.Set("tran_id", "txn-1")
	values.Set("status", "VALID")
	values.Set("verify_key", "status,tran_id")
	values.Set("verify_sign", "deadbeef")

	resp, err := http.Post(server.URL+"/payment/success/"+order.ID,
		"application/x-www-form-urlencoded", strings.NewReader(values.Encode()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, env := doJSON(t, http.MethodGet, server.URL+"/orders/"+order.ID, nil, false)
	var got models.Order
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.OrderPending, got.Status)
}

func TestCancelOrder(t *testing.T) {
	server, store := newServer(t)
	seedProduct(t, store, "p1", 10)
	order := createOrder(t, server, "p1", 4)

	resp, env := doJSON(t, http.MethodPost, server.URL+"/orders/"+order.ID+"/cancel", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	available, err := store.GetAvailable(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	// Cancelling again hits a terminal state.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/orders/"+order.ID+"/cancel", nil, false)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDashboardStats(t *testing.T) {
	server, store := newServer(t)
	seedProduct(t, store, "p1", 100)
	seedProduct(t, store, "p2", 2)
	order := createOrder(t, server, "p1", 1)
	resp := postCallback(t, server.URL, "/payment/success/"+order.ID, "txn-1", "VALID")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	httpResp, env := doJSON(t, http.MethodGet, server.URL+"/admin/dashboard/stats", nil, true)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	var stats models.DashboardStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalOrders)
	assert.Equal(t, 1, stats.PaidOrders)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, 1, stats.LowStock)

	httpResp, _ = doJSON(t, http.MethodGet, server.URL+"/admin/dashboard/stats", nil, false)
	assert.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
}

func TestGetMissingOrder(t *testing.T) {
	server, _ := newServer(t)

	resp, env := doJSON(t, http.MethodGet, server.URL+"/orders/00000000-0000-0000-0000-000000000000", nil, false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestHealthCheck(t *testing.T) {
	server, _ := newServer(t)

	resp, env := doJSON(t, http.MethodGet, server.URL+"/health", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}
