// Package memstore is an in-memory orders.Store. Transactions run one at a
// time against a copy of the state that replaces the live state on commit,
// which gives serializable semantics and full rollback.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/tenant-orders/internal/orders"
)

type state struct {
	orders    map[string]*orders.Order // by id
	customers map[string]*orders.Customer
	products  map[string]*orders.Product
	seq       map[string]int // tenant|day
}

func (s *state) clone() *state {
	c := &state{
		orders:    make(map[string]*orders.Order, len(s.orders)),
		customers: make(map[string]*orders.Customer, len(s.customers)),
		products:  make(map[string]*orders.Product, len(s.products)),
		seq:       make(map[string]int, len(s.seq)),
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.customers {
		cp := *v
		c.customers[k] = &cp
	}
	for k, v := range s.products {
		c.products[k] = cloneProduct(v)
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

var (
	_ orders.Store   = (*Store)(nil)
	_ orders.Catalog = (*Store)(nil)
)

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		orders:    map[string]*orders.Order{},
		customers: map[string]*orders.Customer{},
		products:  map[string]*orders.Product{},
		seq:       map[string]int{},
	}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetOrder(_ context.Context, tenantID, orderID string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, orders.ErrOrderNotFound
	}
	out := cloneOrder(o)
	if c, ok := s.st.customers[o.CustomerID]; ok && c.TenantID == tenantID {
		out.Customer = &orders.CustomerSummary{ID: c.ID, Name: c.Name, Phone: c.Phone}
	}
	return out, nil
}

func (s *Store) ListOrders(_ context.Context, tenantID string, f orders.ListFilter) ([]orders.OrderSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(f.Search)
	var hits []*orders.Order
	for _, o := range s.st.orders {
		switch {
		case o.TenantID != tenantID,
			search != "" && !strings.Contains(strings.ToLower(o.OrderNumber), search),
			f.Status != "" && o.Status != f.Status,
			f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus,
			f.CustomerID != "" && o.CustomerID != f.CustomerID,
			f.DateFrom != nil && o.CreatedAt.Before(*f.DateFrom),
			f.DateTo != nil && o.CreatedAt.After(*f.DateTo):
			continue
		}
		hits = append(hits, o)
	}

	slices.SortFunc(hits, func(a, b *orders.Order) int {
		c := compareBy(f.SortBy, a, b)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if f.Desc() {
			return -c
		}
		return c
	})

	total := len(hits)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)

	out := make([]orders.OrderSummary, 0, end-start)
	for _, o := range hits[start:end] {
		row := orders.OrderSummary{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerID:    o.CustomerID,
			CustomerName:  o.CustomerName,
			CustomerPhone: o.CustomerPhone,
			Subtotal:      o.Subtotal,
			Discount:      o.Discount,
			Total:         o.Total,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
			PaymentMethod: o.PaymentMethod,
			CreatedAt:     o.CreatedAt,
			ItemCount:     len(o.Items),
		}
		if c, ok := s.st.customers[o.CustomerID]; ok && c.TenantID == tenantID {
			row.Customer = &orders.CustomerSummary{ID: c.ID, Name: c.Name, Phone: c.Phone}
		}
		out = append(out, row)
	}
	return out, total, nil
}

func compareBy(field string, a, b *orders.Order) int {
	switch field {
	case orders.SortByOrderNumber:
		return strings.Compare(a.OrderNumber, b.OrderNumber)
	case orders.SortByTotal:
		switch {
		case a.Total < b.Total:
			return -1
		case a.Total > b.Total:
			return 1
		}
		return 0
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (s *Store) LowStock(_ context.Context, tenantID string) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []orders.Product{}
	for _, p := range s.st.products {
		if p.TenantID == tenantID && p.IsActive && p.LowStock() {
			out = append(out, *cloneProduct(p))
		}
	}
	slices.SortFunc(out, func(a, b orders.Product) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// ---- seeding and inspection ----

func (s *Store) PutCustomer(c orders.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt, c.UpdatedAt = now, now
	}
	s.st.customers[c.ID] = &c
}

func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt, p.UpdatedAt = now, now
	}
	s.st.products[p.ID] = cloneProduct(&p)
}

// DeleteProduct removes a product and clears the references order items hold
// to it, the way the products foreign key does on delete.
func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.products, id)
	for _, o := range s.st.orders {
		for i := range o.Items {
			if o.Items[i].ProductID == id {
				o.Items[i].ProductID = ""
			}
		}
	}
}

func (s *Store) Customer(id string) (orders.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.customers[id]
	if !ok {
		return orders.Customer{}, false
	}
	return *c, true
}

func (s *Store) Product(id string) (orders.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	if !ok {
		return orders.Product{}, false
	}
	return *cloneProduct(p), true
}

// SetSequence overwrites the order counter of tenant/day.
func (s *Store) SetSequence(tenantID, day string, seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.seq[seqKey(tenantID, day)] = seq
}

// ItemCount counts stored order items across all orders.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.st.orders {
		n += len(o.Items)
	}
	return n
}

func seqKey(tenantID, day string) string { return tenantID + "|" + day }

func cloneOrder(o *orders.Order) *orders.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Metadata = slices.Clone(o.Metadata)
	cp.Customer = nil
	return &cp
}

func cloneProduct(p *orders.Product) *orders.Product {
	cp := *p
	if p.Stock != nil {
		v := *p.Stock
		cp.Stock = &v
	}
	return &cp
}
