package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/tenant-orders/internal/events"
	"github.com/ariefcatur/tenant-orders/internal/orders"
)

// Deduper remembers processed event ids.
type Deduper interface {
	// FirstSeen marks key as seen and reports whether it was new.
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Watcher consumes OrderCompleted events and raises StockLow for every
// product on the order that fell to or below its minimum.
type Watcher struct {
	Catalog     orders.Catalog
	Dedup       Deduper
	Publisher   orders.Publisher
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderCompleted is installed as the kafka consumer handler.
func (w *Watcher) HandleOrderCompleted(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		w.logger().Warn("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != events.EventOrderCompleted {
		return nil
	}

	key := "watcher:" + env.EventID
	if w.Dedup != nil {
		first, err := w.Dedup.FirstSeen(ctx, key)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
	}

	if err := w.check(ctx, env); err != nil {
		// the consumer retries this message; it must not read as a duplicate
		if w.Dedup != nil {
			_ = w.Dedup.Forget(ctx, key)
		}
		return err
	}
	return nil
}

func (w *Watcher) check(ctx context.Context, env events.Envelope) error {
	p, err := events.Decode[events.OrderCompletedPayload](env)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(p.Items) == 0 {
		return nil
	}

	low, err := w.Catalog.LowStock(ctx, env.TenantID)
	if err != nil {
		return err
	}
	onOrder := make(map[string]bool, len(p.Items))
	for _, it := range p.Items {
		onOrder[it.ProductID] = true
	}

	for _, prod := range low {
		if !onOrder[prod.ID] {
			continue
		}
		alert := events.New(events.EventStockLow, w.ServiceName, env.TenantID, prod.ID, events.StockLowPayload{
			ProductID: prod.ID,
			Name:      prod.Name,
			Stock:     prod.CurrentStock(),
			MinStock:  prod.MinStock,
			OrderID:   p.OrderID,
		})
		alert.TraceID = env.TraceID
		if err := w.Publisher.PublishEvent(ctx, events.TopicStockLow, alert); err != nil {
			return err
		}
		w.logger().Info("stock low",
			zap.String("tenant_id", env.TenantID),
			zap.String("product_id", prod.ID),
			zap.Int("stock", prod.CurrentStock()),
			zap.Int("min_stock", prod.MinStock),
		)
	}
	return nil
}

func (w *Watcher) logger() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}
