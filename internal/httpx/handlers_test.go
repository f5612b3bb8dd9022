package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/tenant-orders/internal/inventory"
	"github.com/ariefcatur/tenant-orders/internal/memstore"
	"github.com/ariefcatur/tenant-orders/internal/mocks"
	"github.com/ariefcatur/tenant-orders/internal/orders"
)

const testTenant = "tenant-a"

type testServer struct {
	router *chi.Mux
	store  *memstore.Store
	cache  *mocks.MockOrderCache
	idem   *mocks.MockIdempotency
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memstore.New()
	stock := 1
	st.PutProduct(orders.Product{ID: "kopi", TenantID: testTenant, Name: "Kopi", Price: 15000, Stock: &stock, MinStock: 2, TrackStock: true, IsActive: true})

	adj := &inventory.Adjuster{Store: st, Catalog: st}
	svc := &orders.Service{Store: st, Stock: adj}

	cache := &mocks.MockOrderCache{}
	cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	cache.On("Version", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()
	cache.On("SetIfVersion", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	cache.On("Delete", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	idem := &mocks.MockIdempotency{}

	r := NewRouter(zap.NewNop(), nil)
	(&OrdersHandler{Orders: svc, Cache: cache, Idem: idem}).Register(r)
	(&InventoryHandler{Stock: adj}).Register(r)
	return &testServer{router: r, store: st, cache: cache, idem: idem}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(TenantHeader, testTenant)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

var kopiOrder = map[string]any{
	"customer_name": "Rina",
	"items":         []map[string]any{{"product_id": "kopi", "name": "Kopi", "price": 15000, "qty": 2}},
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingTenantHeader(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode[errorBody](t, rec).Code)
}

func TestCreateAndGetOrder(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/orders", kopiOrder)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[orders.Order](t, rec)
	assert.Regexp(t, `^ORD-\d{8}-001$`, created.OrderNumber)
	assert.Equal(t, int64(30000), created.Total)

	rec = s.do(t, http.MethodGet, "/orders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[orders.Order](t, rec).ID)

	rec = s.do(t, http.MethodGet, "/orders/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Code)
}

func TestGetOrderServesCacheHit(t *testing.T) {
	st := memstore.New()
	cache := &mocks.MockOrderCache{}
	cached := &orders.Order{ID: "o1", TenantID: testTenant, OrderNumber: "ORD-20250310-007"}
	cache.On("Get", mock.Anything, testTenant, "o1").Return(cached, nil).Once()

	r := NewRouter(nil, nil)
	(&OrdersHandler{Orders: &orders.Service{Store: st}, Cache: cache}).Register(r)

	req := httptest.NewRequest(http.MethodGet, "/orders/o1", nil)
	req.Header.Set(TenantHeader, testTenant)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ORD-20250310-007", decode[orders.Order](t, rec).OrderNumber)
	cache.AssertExpectations(t)
}

func TestGetOrderFillsCacheWithVersionReadBeforeStore(t *testing.T) {
	tests := []struct {
		name     string
		version  int64
		verErr   error
		wantFill bool
	}{
		{"fresh entry", 0, nil, true},
		{"after invalidations", 7, nil, true},
		{"version unreadable", 0, errors.New("redis down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			svc := &orders.Service{Store: st}
			o, err := svc.CreateOrder(context.Background(), testTenant, orders.CreateOrderInput{
				Items: []orders.ItemInput{{Name: "Teh", Price: 8000, Qty: 1}},
			})
			require.NoError(t, err)

			cache := &mocks.MockOrderCache{}
			cache.On("Get", mock.Anything, testTenant, o.ID).Return(nil, nil).Once()
			cache.On("Version", mock.Anything, testTenant, o.ID).Return(tt.version, tt.verErr).Once()
			if tt.wantFill {
				cache.On("SetIfVersion", mock.Anything, mock.MatchedBy(func(got *orders.Order) bool {
					return got.ID == o.ID
				}), tt.version).Return(nil).Once()
			}

			r := NewRouter(nil, nil)
			(&OrdersHandler{Orders: svc, Cache: cache}).Register(r)
			req := httptest.NewRequest(http.MethodGet, "/orders/"+o.ID, nil)
			req.Header.Set(TenantHeader, testTenant)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			cache.AssertExpectations(t)
			if !tt.wantFill {
				cache.AssertNotCalled(t, "SetIfVersion", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/orders", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{"))
	req.Header.Set(TenantHeader, testTenant)
	raw := httptest.NewRecorder()
	s.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestCreateOrderIdempotencyReplay(t *testing.T) {
	s := newTestServer(t)
	key := "abc-123"

	s.idem.On("Claim", mock.Anything, testTenant, key).Return("", true, nil).Once()
	s.idem.On("Complete", mock.Anything, testTenant, key, mock.AnythingOfType("string")).Return(nil).Once()
	first := s.do(t, http.MethodPost, "/orders", kopiOrder, IdempotencyHeader, key)
	require.Equal(t, http.StatusCreated, first.Code)
	created := decode[orders.Order](t, first)

	s.idem.On("Claim", mock.Anything, testTenant, key).Return(created.ID, false, nil).Once()
	again := s.do(t, http.MethodPost, "/orders", kopiOrder, IdempotencyHeader, key)
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, created.OrderNumber, decode[orders.Order](t, again).OrderNumber)

	s.idem.On("Claim", mock.Anything, testTenant, "busy").Return("", false, nil).Once()
	busy := s.do(t, http.MethodPost, "/orders", kopiOrder, IdempotencyHeader, "busy")
	assert.Equal(t, http.StatusConflict, busy.Code)

	s.idem.AssertExpectations(t)
	res, err := (&orders.Service{Store: s.store}).ListOrders(t.Context(), testTenant, orders.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Meta.Total)
}

func TestCreateOrderReleasesKeyOnFailure(t *testing.T) {
	s := newTestServer(t)
	s.idem.On("Claim", mock.Anything, testTenant, "k").Return("", true, nil).Once()
	s.idem.On("Release", mock.Anything, testTenant, "k").Return(nil).Once()

	rec := s.do(t, http.MethodPost, "/orders", map[string]any{"items": []any{}}, IdempotencyHeader, "k")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	s.idem.AssertExpectations(t)
}

func TestCreateOrderWithoutRedis(t *testing.T) {
	s := newTestServer(t)
	s.idem.On("Claim", mock.Anything, testTenant, "k").Return("", false, errors.New("dial tcp: refused")).Once()

	rec := s.do(t, http.MethodPost, "/orders", kopiOrder, IdempotencyHeader, "k")
	assert.Equal(t, http.StatusCreated, rec.Code)
	s.idem.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusAndPaymentTransitions(t *testing.T) {
	s := newTestServer(t)
	created := decode[orders.Order](t, s.do(t, http.MethodPost, "/orders", kopiOrder))
	path := "/orders/" + created.ID

	// two cups ordered, one in stock
	rec := s.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "COMPLETED"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[errorBody](t, rec).Code)

	rec = s.do(t, http.MethodPatch, "/products/kopi/stock", map[string]any{"quantity": 5, "reason": "restock"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[inventory.StockUpdateResult](t, rec).PreviousStock)

	rec = s.do(t, http.MethodPatch, path+"/payment", map[string]any{"payment_status": "PAID", "paid_amount": 30000})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.PaymentPaid, decode[orders.Order](t, rec).PaymentStatus)

	rec = s.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "COMPLETED"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[orders.Order](t, rec).CompletedAt)

	rec = s.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "CANCELLED"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[errorBody](t, rec).Code)

	rec = s.do(t, http.MethodPatch, path, map[string]any{"notes": "late"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ORDER_LOCKED", decode[errorBody](t, rec).Code)

	rec = s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	s.cache.AssertCalled(t, "Delete", mock.Anything, testTenant, created.ID)
}

func TestUpdateAndDeleteOrder(t *testing.T) {
	s := newTestServer(t)
	created := decode[orders.Order](t, s.do(t, http.MethodPost, "/orders", kopiOrder))
	path := "/orders/" + created.ID

	rec := s.do(t, http.MethodPatch, path, map[string]any{"discount": 5000, "metadata": map[string]int{"table": 2}})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[orders.Order](t, rec)
	assert.Equal(t, int64(25000), updated.Total)
	assert.JSONEq(t, `{"table":2}`, string(updated.Metadata))

	rec = s.do(t, http.MethodPatch, path, map[string]any{"discount": 40000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersQuery(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/orders", kopiOrder).Code)
	}

	today := time.Now().UTC().Format(time.DateOnly)
	rec := s.do(t, http.MethodGet, fmt.Sprintf("/orders?limit=2&sortBy=orderNumber&sortOrder=asc&dateFrom=%s&dateTo=%s", today, today), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[orders.ListResult](t, rec)
	assert.Equal(t, orders.PageMeta{Total: 3, Page: 1, Limit: 2, TotalPages: 2}, res.Meta)
	require.Len(t, res.Data, 2)
	assert.Less(t, res.Data[0].OrderNumber, res.Data[1].OrderNumber)

	for _, q := range []string{"page=x", "page=9223372036854775807", "dateFrom=yesterday", "sortBy=customer", "status=SHIPPED"} {
		rec = s.do(t, http.MethodGet, "/orders?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestLowStockEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/products/low-stock", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[inventory.LowStockReport](t, rec)
	assert.Equal(t, 1, rep.Count)
	assert.Equal(t, "kopi", rep.Products[0].ID)

	rec = s.do(t, http.MethodPatch, "/products/kopi/stock", map[string]any{"quantity": -9})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2025-03-10", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC), *got)

	got, err = parseDate("2025-03-10", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseDate("2025-03-10T08:00:00+07:00", true)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)))

	got, err = parseDate("", false)
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDate("10/03/2025", false)
	assert.Error(t, err)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		code int
		body string
	}{
		{fmt.Errorf("%w: dial tcp", orders.ErrUnavailable), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{orders.ErrAllocationExhausted, http.StatusConflict, "ALLOCATION_EXHAUSTED"},
		{orders.ErrNotTracked, http.StatusUnprocessableEntity, "NOT_TRACKED"},
		{errors.New("mystery"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)
		assert.Equal(t, tt.code, rec.Code)
		body := decode[errorBody](t, rec)
		assert.Equal(t, tt.body, body.Code)
		assert.NotContains(t, body.Error, "dial tcp")
	}
}
