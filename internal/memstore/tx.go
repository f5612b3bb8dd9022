package memstore

import (
	"context"

	"github.com/ariefcatur/tenant-orders/internal/orders"
)

type tx struct{ st *state }

func (t *tx) NextOrderSeq(_ context.Context, tenantID, day string) (int, error) {
	k := seqKey(tenantID, day)
	t.st.seq[k]++
	return t.st.seq[k], nil
}

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	for _, other := range t.st.orders {
		if other.TenantID == o.TenantID && other.OrderNumber == o.OrderNumber {
			return orders.ErrOrderNumberTaken
		}
	}
	for _, it := range o.Items {
		if it.ProductID == "" {
			continue
		}
		if p, ok := t.st.products[it.ProductID]; !ok || p.TenantID != o.TenantID {
			return orders.ErrProductNotFound
		}
	}
	t.st.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *tx) LockOrder(_ context.Context, tenantID, orderID string) (*orders.Order, error) {
	o, ok := t.st.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (t *tx) UpdateOrder(_ context.Context, o *orders.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok || cur.TenantID != o.TenantID {
		return orders.ErrOrderNotFound
	}
	next := cloneOrder(o)
	next.Items = cur.Items
	t.st.orders[o.ID] = next
	return nil
}

func (t *tx) DeleteOrder(_ context.Context, tenantID, orderID string) error {
	o, ok := t.st.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return orders.ErrOrderNotFound
	}
	delete(t.st.orders, orderID)
	return nil
}

func (t *tx) customer(tenantID, id string) (*orders.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok || c.TenantID != tenantID {
		return nil, orders.ErrCustomerNotFound
	}
	return c, nil
}

func (t *tx) CustomerExists(_ context.Context, tenantID, customerID string) (bool, error) {
	_, err := t.customer(tenantID, customerID)
	return err == nil, nil
}

func (t *tx) AddCustomerOrders(_ context.Context, tenantID, customerID string, delta int) error {
	c, err := t.customer(tenantID, customerID)
	if err != nil {
		return err
	}
	c.TotalOrders = max(c.TotalOrders+delta, 0)
	return nil
}

func (t *tx) AddCustomerSpent(_ context.Context, tenantID, customerID string, amount int64) error {
	c, err := t.customer(tenantID, customerID)
	if err != nil {
		return err
	}
	c.TotalSpent += amount
	return nil
}

func (t *tx) GetProduct(_ context.Context, tenantID, productID string) (*orders.Product, error) {
	p, ok := t.st.products[productID]
	if !ok || p.TenantID != tenantID {
		return nil, orders.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (t *tx) AdjustStock(_ context.Context, tenantID, productID string, delta int) (int, error) {
	p, ok := t.st.products[productID]
	switch {
	case !ok || p.TenantID != tenantID:
		return 0, orders.ErrProductNotFound
	case !p.TrackStock:
		return 0, orders.ErrNotTracked
	case p.CurrentStock()+delta < 0:
		return 0, orders.ErrInsufficientStock
	}
	next := p.CurrentStock() + delta
	p.Stock = &next
	return next, nil
}
