package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/tenant-orders/internal/logging"
	"github.com/ariefcatur/tenant-orders/internal/orders"
)

const IdempotencyHeader = "Idempotency-Key"

type OrderService interface {
	CreateOrder(ctx context.Context, tenantID string, in orders.CreateOrderInput) (*orders.Order, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, tenantID string, f orders.ListFilter) (*orders.ListResult, error)
	UpdateEditableFields(ctx context.Context, tenantID, orderID string, in orders.UpdateOrderInput) (*orders.Order, error)
	TransitionStatus(ctx context.Context, tenantID, orderID string, to orders.Status) (*orders.Order, error)
	TransitionPayment(ctx context.Context, tenantID, orderID string, in orders.PaymentInput) (*orders.Order, error)
	DeleteOrder(ctx context.Context, tenantID, orderID string) error
}

type OrderCache interface {
	Get(ctx context.Context, tenantID, orderID string) (*orders.Order, error)
	Version(ctx context.Context, tenantID, orderID string) (int64, error)
	SetIfVersion(ctx context.Context, o *orders.Order, version int64) error
	Delete(ctx context.Context, tenantID, orderID string) error
}

type IdempotencyStore interface {
	Claim(ctx context.Context, tenantID, key string) (existing string, claimed bool, err error)
	Complete(ctx context.Context, tenantID, key, orderID string) error
	Release(ctx context.Context, tenantID, key string) error
}

// OrdersHandler serves /orders. Cache and Idem are optional.
type OrdersHandler struct {
	Orders OrderService
	Cache  OrderCache
	Idem   IdempotencyStore
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(requireTenant)
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}", h.updateOrder)
		r.Patch("/{id}/status", h.transitionStatus)
		r.Patch("/{id}/payment", h.transitionPayment)
		r.Delete("/{id}", h.deleteOrder)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	tenant, log := tenantID(r), logging.FromContext(ctx)

	key := r.Header.Get(IdempotencyHeader)
	claimed := false
	if key != "" && h.Idem != nil {
		existing, ok, err := h.Idem.Claim(ctx, tenant, key)
		switch {
		case err != nil:
			// redis down: serve the request without replay protection
			log.Warn("idempotency claim failed", zap.Error(err))
		case ok:
			claimed = true
		case existing == "":
			writeJSON(w, http.StatusConflict, errorBody{Error: "a request with this idempotency key is in progress", Code: "CONFLICT"})
			return
		default:
			o, err := h.Orders.GetOrder(ctx, tenant, existing)
			if err != nil {
				writeError(w, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, o)
			return
		}
	}

	o, err := h.Orders.CreateOrder(ctx, tenant, req)
	if err != nil {
		if claimed {
			_ = h.Idem.Release(ctx, tenant, key)
		}
		writeError(w, err)
		return
	}
	if claimed {
		if err := h.Idem.Complete(ctx, tenant, key, o.ID); err != nil {
			log.Warn("idempotency complete failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	tenant, id := tenantID(r), chi.URLParam(r, "id")

	fill := false
	var ver int64
	if h.Cache != nil {
		if o, err := h.Cache.Get(ctx, tenant, id); err == nil && o != nil {
			writeJSON(w, http.StatusOK, o)
			return
		}
		// read before the store so a concurrent write invalidates this fill
		v, err := h.Cache.Version(ctx, tenant, id)
		fill, ver = err == nil, v
	}

	o, err := h.Orders.GetOrder(ctx, tenant, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if fill {
		h.cacheFill(ctx, o, ver)
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Orders.ListOrders(ctx, tenantID(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.UpdateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	h.mutate(w, r, func(ctx context.Context, tenant, id string) (*orders.Order, error) {
		return h.Orders.UpdateEditableFields(ctx, tenant, id, req)
	})
}

type statusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) transitionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	h.mutate(w, r, func(ctx context.Context, tenant, id string) (*orders.Order, error) {
		return h.Orders.TransitionStatus(ctx, tenant, id, req.Status)
	})
}

func (h *OrdersHandler) transitionPayment(w http.ResponseWriter, r *http.Request) {
	var req orders.PaymentInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	h.mutate(w, r, func(ctx context.Context, tenant, id string) (*orders.Order, error) {
		return h.Orders.TransitionPayment(ctx, tenant, id, req)
	})
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	tenant, id := tenantID(r), chi.URLParam(r, "id")

	if err := h.Orders.DeleteOrder(ctx, tenant, id); err != nil {
		writeError(w, err)
		return
	}
	h.cacheDelete(ctx, tenant, id)
	w.WriteHeader(http.StatusNoContent)
}

// mutate runs fn for the order in the URL and drops its cache entry on success.
func (h *OrdersHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tenant, id string) (*orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	tenant, id := tenantID(r), chi.URLParam(r, "id")

	o, err := fn(ctx, tenant, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheDelete(ctx, tenant, id)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cacheFill(ctx context.Context, o *orders.Order, version int64) {
	if err := h.Cache.SetIfVersion(ctx, o, version); err != nil {
		logging.FromContext(ctx).Warn("order cache set failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) cacheDelete(ctx context.Context, tenant, id string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Delete(ctx, tenant, id); err != nil {
		logging.FromContext(ctx).Warn("order cache delete failed", zap.String("order_id", id), zap.Error(err))
	}
}

type queryError string

func (e queryError) Error() string { return string(e) }

func parseListFilter(r *http.Request) (orders.ListFilter, error) {
	q := r.URL.Query()
	f := orders.ListFilter{
		Search:        q.Get("search"),
		Status:        orders.Status(q.Get("status")),
		PaymentStatus: orders.PaymentStatus(q.Get("paymentStatus")),
		CustomerID:    q.Get("customerId"),
		SortBy:        q.Get("sortBy"),
		SortOrder:     q.Get("sortOrder"),
	}
	var err error
	if f.Page, err = atoiOpt(q.Get("page")); err != nil {
		return f, queryError("page must be a number")
	}
	if f.Limit, err = atoiOpt(q.Get("limit")); err != nil {
		return f, queryError("limit must be a number")
	}
	if f.DateFrom, err = parseDate(q.Get("dateFrom"), false); err != nil {
		return f, queryError("dateFrom must be RFC3339 or YYYY-MM-DD")
	}
	if f.DateTo, err = parseDate(q.Get("dateTo"), true); err != nil {
		return f, queryError("dateTo must be RFC3339 or YYYY-MM-DD")
	}
	return f, nil
}

func atoiOpt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// parseDate accepts RFC3339 or a bare date; a bare upper bound covers the
// whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
