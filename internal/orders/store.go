package orders

import (
	"context"

	"github.com/ariefcatur/tenant-orders/internal/events"
)

// Store is the persistence port of the engine. Implementations must run fn
// as one atomic unit: every write made through tx is committed together when
// fn returns nil and discarded otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, tenantID, orderID string) (*Order, error)
	ListOrders(ctx context.Context, tenantID string, f ListFilter) ([]OrderSummary, int, error)
}

type Tx interface {
	StockStore

	// NextOrderSeq atomically bumps and returns the counter for tenant/day.
	NextOrderSeq(ctx context.Context, tenantID, day string) (int, error)
	// InsertOrder stores o and its items. A taken order number yields
	// ErrOrderNumberTaken and leaves the transaction usable.
	InsertOrder(ctx context.Context, o *Order) error
	// LockOrder loads the order with its items and holds it until the end of tx.
	LockOrder(ctx context.Context, tenantID, orderID string) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error
	DeleteOrder(ctx context.Context, tenantID, orderID string) error

	CustomerExists(ctx context.Context, tenantID, customerID string) (bool, error)
	// AddCustomerOrders never lets total_orders drop below zero.
	AddCustomerOrders(ctx context.Context, tenantID, customerID string, delta int) error
	AddCustomerSpent(ctx context.Context, tenantID, customerID string, amount int64) error
}

type StockStore interface {
	GetProduct(ctx context.Context, tenantID, productID string) (*Product, error)
	// AdjustStock applies delta in one guarded write and returns the new level.
	// Fails with ErrProductNotFound, ErrNotTracked or ErrInsufficientStock.
	AdjustStock(ctx context.Context, tenantID, productID string, delta int) (int, error)
}

type Catalog interface {
	LowStock(ctx context.Context, tenantID string) ([]Product, error)
}

// StockAdjuster applies stock deltas on behalf of the engine inside its
// transaction.
type StockAdjuster interface {
	Apply(ctx context.Context, s StockStore, tenantID, productID string, delta int) (int, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, topic string, env events.Envelope) error
}

type directAdjuster struct{}

func (directAdjuster) Apply(ctx context.Context, s StockStore, tenantID, productID string, delta int) (int, error) {
	return s.AdjustStock(ctx, tenantID, productID, delta)
}
