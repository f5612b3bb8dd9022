package inventory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/tenant-orders/internal/metrics"
	"github.com/ariefcatur/tenant-orders/internal/orders"
)

const (
	sourceOrder  = "order"
	sourceManual = "manual"
)

// Adjuster is the single entry point for stock changes. The order engine
// calls Apply inside its own transaction; manual corrections go through
// AdjustStock and UpdateStock.
type Adjuster struct {
	Store   orders.Store
	Catalog orders.Catalog
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

var _ orders.StockAdjuster = (*Adjuster)(nil)

func (a *Adjuster) Apply(ctx context.Context, s orders.StockStore, tenantID, productID string, delta int) (int, error) {
	return a.apply(ctx, s, tenantID, productID, delta, sourceOrder)
}

func (a *Adjuster) apply(ctx context.Context, s orders.StockStore, tenantID, productID string, delta int, source string) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("%w: stock delta must not be zero", orders.ErrInvalidInput)
	}
	stock, err := s.AdjustStock(ctx, tenantID, productID, delta)
	a.Metrics.StockAdjusted(source, err)
	return stock, err
}

// AdjustStock applies delta to a tracked product and returns the new level.
func (a *Adjuster) AdjustStock(ctx context.Context, tenantID, productID string, delta int) (int, error) {
	var stock int
	err := a.Store.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		stock, err = a.apply(ctx, tx, tenantID, productID, delta, sourceManual)
		return err
	})
	if err != nil {
		return 0, tagUnavailable(err)
	}
	return stock, nil
}

type StockUpdate struct {
	Quantity int    `json:"quantity"` // positive adds, negative removes
	Reason   string `json:"reason"`
}

type StockUpdateResult struct {
	Product       orders.Product `json:"product"`
	PreviousStock int            `json:"previous_stock"`
	Adjustment    int            `json:"adjustment"`
	Reason        string         `json:"reason,omitempty"`
}

// UpdateStock is a manual restock or write-off with a free-form reason.
func (a *Adjuster) UpdateStock(ctx context.Context, tenantID, productID string, in StockUpdate) (*StockUpdateResult, error) {
	var res StockUpdateResult
	err := a.Store.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		stock, err := a.apply(ctx, tx, tenantID, productID, in.Quantity, sourceManual)
		if err != nil {
			return err
		}
		p, err := tx.GetProduct(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		p.Stock = &stock
		res = StockUpdateResult{
			Product:       *p,
			PreviousStock: stock - in.Quantity,
			Adjustment:    in.Quantity,
			Reason:        strings.TrimSpace(in.Reason),
		}
		return nil
	})
	if err != nil {
		return nil, tagUnavailable(err)
	}

	a.logger().Info("stock updated",
		zap.String("tenant_id", tenantID),
		zap.String("product_id", productID),
		zap.Int("previous", res.PreviousStock),
		zap.Int("adjustment", res.Adjustment),
		zap.String("reason", res.Reason),
	)
	return &res, nil
}

type LowStockReport struct {
	Count    int              `json:"count"`
	Products []orders.Product `json:"products"`
}

// LowStock lists active tracked products at or below their minimum.
func (a *Adjuster) LowStock(ctx context.Context, tenantID string) (*LowStockReport, error) {
	ps, err := a.Catalog.LowStock(ctx, tenantID)
	if err != nil {
		return nil, tagUnavailable(err)
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	return &LowStockReport{Count: len(ps), Products: ps}, nil
}

func (a *Adjuster) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

func tagUnavailable(err error) error {
	if orders.IsBusiness(err) {
		return err
	}
	return fmt.Errorf("%w: %w", orders.ErrUnavailable, err)
}
