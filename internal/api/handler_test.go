package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/kvstore"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

const kitchenJSON = `{"products":[
	{"id":"k1","name":"Smart Kettle","price":19.99,"inStock":true,"image":"/images/kitchen/kettle.jpg"},
	{"id":"k2","name":"Toaster","price":12.495,"inStock":true},
	{"id":"k3","name":"Blender","price":89.00,"inStock":false}
]}`

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	handler *Handler
}

func newTestServer(t *testing.T, submitter service.OrderSubmitter, files fstest.MapFS) *testServer {
	t.Helper()
	if files == nil {
		files = fstest.MapFS{"kitchen.json": {Data: []byte(kitchenJSON)}}
	}
	if submitter == nil {
		submitter = service.NewOrderService(pricing.DefaultPolicy, 0, nil)
	}

	provider := catalog.NewProvider(catalog.NewDirSource(files), "")
	policy := pricing.DefaultPolicy
	sessions := session.NewManager(kvstore.NewMemoryStore(), submitter, checkout.Options{
		Policy: &policy,
		Now:    func() time.Time { return testNow },
	})
	h := NewHandler(provider, sessions, pricing.DefaultPolicy, nil)
	h.now = func() time.Time { return testNow }

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, handler: h}
}

func (s *testServer) do(method, path, sessionID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func validForm() checkout.Form {
	return checkout.Form{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Street:     "1 Analytical Way",
		City:       "London",
		State:      "LN",
		Zip:        "12345",
		CardNumber: "4111 1111 1111 1111",
		Expiration: "12/27",
		Code:       "123",
	}
}

type cartResponse struct {
	Items  []models.CartLineItem `json:"items"`
	Count  int                   `json:"count"`
	Totals struct {
		Subtotal string `json:"subtotal"`
		Tax      string `json:"tax"`
		Shipping string `json:"shipping"`
		Total    string `json:"total"`
	} `json:"totals"`
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/ready", "", nil).Code)

	empty := newTestServer(t, nil, fstest.MapFS{})
	assert.Equal(t, http.StatusServiceUnavailable, empty.do(http.MethodGet, "/ready", "", nil).Code)
}

func TestSessionHeaderIssuedAndEchoed(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(http.MethodGet, "/api/v1/cart", "", nil)
	issued := w.Header().Get(SessionHeader)
	_, err := uuid.Parse(issued)
	require.NoError(t, err)

	w = s.do(http.MethodGet, "/api/v1/cart", issued, nil)
	assert.Equal(t, issued, w.Header().Get(SessionHeader))

	w = s.do(http.MethodGet, "/api/v1/cart", "not-a-uuid", nil)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(SessionHeader))
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(http.MethodGet, "/api/v1/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cats struct {
		Categories []models.Category `json:"categories"`
	}
	decode(t, w, &cats)
	assert.Len(t, cats.Categories, 4)

	// bathroom has no data and falls back to kitchen
	w = s.do(http.MethodGet, "/api/v1/categories/bathroom/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var prods struct {
		Products []models.Product `json:"products"`
	}
	decode(t, w, &prods)
	assert.Len(t, prods.Products, 3)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/products/k1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/products/nope", "", nil).Code)
}

func TestCatalogUnavailable(t *testing.T) {
	s := newTestServer(t, nil, fstest.MapFS{})
	w := s.do(http.MethodGet, "/api/v1/categories/kitchen/products", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCartLifecycle(t *testing.T) {
	s := newTestServer(t, nil, nil)
	sid := uuid.New().String()

	w := s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k2"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k2"})
	require.Equal(t, http.StatusOK, w.Code)

	var cart cartResponse
	decode(t, w, &cart)
	assert.Equal(t, 3, cart.Count)
	assert.Equal(t, "44.98", cart.Totals.Subtotal)
	assert.Equal(t, "2.70", cart.Totals.Tax)
	assert.Equal(t, "14.00", cart.Totals.Shipping)
	assert.Equal(t, "61.68", cart.Totals.Total)

	w = s.do(http.MethodPatch, "/api/v1/cart/items/k2", sid, gin.H{"delta": -2})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "k1", cart.Items[0].ID)

	w = s.do(http.MethodDelete, "/api/v1/cart/items/k1", sid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cart)
	assert.Empty(t, cart.Items)
	assert.Equal(t, "0.00", cart.Totals.Subtotal)
	assert.Equal(t, "10.00", cart.Totals.Shipping)
}

func TestCartErrors(t *testing.T) {
	s := newTestServer(t, nil, nil)
	sid := uuid.New().String()

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k3"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "zzz"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, "/api/v1/cart/items/k1", sid, gin.H{}).Code)
}

func TestClearCart(t *testing.T) {
	s := newTestServer(t, nil, nil)
	sid := uuid.New().String()

	s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k1"})
	w := s.do(http.MethodDelete, "/api/v1/cart", sid, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cart cartResponse
	decode(t, w, &cart)
	assert.Zero(t, cart.Count)
}

func TestCheckoutSuccess(t *testing.T) {
	s := newTestServer(t, nil, nil)
	sid := uuid.New().String()

	s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k1"})

	w := s.do(http.MethodGet, "/api/v1/checkout/review", sid, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/v1/checkout", sid, validForm())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		OrderID      string `json:"orderId"`
		Status       string `json:"status"`
		Confirmation struct {
			OrderID string `json:"orderId"`
			Total   string `json:"total"`
		} `json:"confirmation"`
	}
	decode(t, w, &resp)
	assert.Regexp(t, `^ORD-\d+$`, resp.OrderID)
	assert.Equal(t, models.OrderStatusSuccess, resp.Status)
	assert.Equal(t, resp.OrderID, resp.Confirmation.OrderID)
	assert.Equal(t, "31.19", resp.Confirmation.Total)

	var cart cartResponse
	decode(t, s.do(http.MethodGet, "/api/v1/cart", sid, nil), &cart)
	assert.Zero(t, cart.Count)

	w = s.do(http.MethodGet, "/api/v1/orders/last", sid, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/orders/last/receipt.pdf", sid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), fmt.Sprintf("order-%s.pdf", resp.OrderID))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestCheckoutRejections(t *testing.T) {
	s := newTestServer(t, nil, nil)
	sid := uuid.New().String()

	w := s.do(http.MethodPost, "/api/v1/checkout", sid, validForm())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k1"})
	bad := validForm()
	bad.Email = "nope"
	bad.Code = "12"
	w = s.do(http.MethodPost, "/api/v1/checkout", sid, bad)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &resp)
	assert.Contains(t, resp.Fields, "email")
	assert.Contains(t, resp.Fields, "code")
}

func TestCheckoutBlankFieldsAreRejectedLocally(t *testing.T) {
	s := newTestServer(t, nil, nil)
	sid := uuid.New().String()
	s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k1"})

	blank := validForm()
	blank.FirstName = "   "
	blank.Street = " "
	w := s.do(http.MethodPost, "/api/v1/checkout", sid, blank)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "fname is required", resp.Fields["fname"])
	assert.Equal(t, "street is required", resp.Fields["street"])

	var cart cartResponse
	decode(t, s.do(http.MethodGet, "/api/v1/cart", sid, nil), &cart)
	assert.Equal(t, 1, cart.Count)
}

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, *models.OrderRequest) (*models.OrderResponse, error) {
	return nil, errors.New("connection refused")
}

func TestCheckoutBackendFailure(t *testing.T) {
	s := newTestServer(t, failingSubmitter{}, nil)
	sid := uuid.New().String()

	s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k1"})
	w := s.do(http.MethodPost, "/api/v1/checkout", sid, validForm())
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var cart cartResponse
	decode(t, s.do(http.MethodGet, "/api/v1/cart", sid, nil), &cart)
	assert.Equal(t, 1, cart.Count)
}

type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSubmitter) Submit(ctx context.Context, _ *models.OrderRequest) (*models.OrderResponse, error) {
	close(b.entered)
	<-b.release
	return &models.OrderResponse{OrderID: "ORD-1", Status: models.OrderStatusSuccess}, nil
}

func TestCheckoutInProgress(t *testing.T) {
	sub := &blockingSubmitter{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestServer(t, sub, nil)
	sid := uuid.New().String()
	s.do(http.MethodPost, "/api/v1/cart/items", sid, gin.H{"product_id": "k1"})

	done := make(chan int)
	go func() {
		done <- s.do(http.MethodPost, "/api/v1/checkout", sid, validForm()).Code
	}()
	<-sub.entered

	w := s.do(http.MethodPost, "/api/v1/checkout", sid, validForm())
	assert.Equal(t, http.StatusConflict, w.Code)

	close(sub.release)
	assert.Equal(t, http.StatusCreated, <-done)
}

func TestLastOrderMissing(t *testing.T) {
	s := newTestServer(t, nil, nil)
	sid := uuid.New().String()

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/orders/last", sid, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/orders/last/receipt.pdf", sid, nil).Code)
}

type fakeArchive map[string]*models.Order

func (f fakeArchive) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	if o, ok := f[id]; ok {
		return o, nil
	}
	return nil, fmt.Errorf("%w: %s", store.ErrOrderNotFound, id)
}

func TestGetArchivedOrder(t *testing.T) {
	s := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/orders/ORD-1", "", nil).Code)

	s.handler.archive = fakeArchive{"ORD-1": {ID: "ORD-1", CustomerName: "Ada Lovelace"}}
	w := s.do(http.MethodGet, "/api/v1/orders/ORD-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var order models.Order
	decode(t, w, &order)
	assert.Equal(t, "Ada Lovelace", order.CustomerName)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/orders/ORD-2", "", nil).Code)
}

func TestNotesRoutes(t *testing.T) {
	s := newTestServer(t, nil, nil)
	sid := uuid.New().String()

	w := s.do(http.MethodPost, "/api/v1/notes", sid, gin.H{"text": "  buy sponges  "})
	require.Equal(t, http.StatusCreated, w.Code)
	var note models.Note
	decode(t, w, &note)
	assert.Equal(t, "buy sponges", note.Text)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/notes", sid, gin.H{"text": "   "}).Code)

	var list struct {
		Notes []models.Note `json:"notes"`
	}
	decode(t, s.do(http.MethodGet, "/api/v1/notes", sid, nil), &list)
	require.Len(t, list.Notes, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodDelete, "/api/v1/notes/abc", sid, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, fmt.Sprintf("/api/v1/notes/%d", note.ID), sid, nil).Code)

	decode(t, s.do(http.MethodGet, "/api/v1/notes", sid, nil), &list)
	assert.Empty(t, list.Notes)
}
