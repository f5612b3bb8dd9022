package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	orderNumberPrefix = "ORD"
	dayLayout         = "20060102"

	DefaultNumberAttempts = 5
)

// DayKey is the calendar day an order number belongs to, in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dayLayout)
}

// FormatOrderNumber renders ORD-YYYYMMDD-NNN. Sequences past 999 keep growing
// in width rather than wrapping.
func FormatOrderNumber(day string, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", orderNumberPrefix, day, seq)
}

// allocateAndInsert draws numbers from the per-day counter until o inserts
// without a uniqueness conflict or attempts run out.
func (s *Service) allocateAndInsert(ctx context.Context, tx Tx, o *Order) error {
	day := DayKey(o.CreatedAt, s.Location)
	for attempt := 1; attempt <= s.attempts(); attempt++ {
		seq, err := tx.NextOrderSeq(ctx, o.TenantID, day)
		if err != nil {
			return err
		}
		o.OrderNumber = FormatOrderNumber(day, seq)

		err = tx.InsertOrder(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrOrderNumberTaken) {
			return err
		}
		s.Metrics.AllocationRetried()
		s.logger().Warn("order number taken, retrying",
			zap.String("tenant_id", o.TenantID),
			zap.String("order_number", o.OrderNumber),
			zap.Int("attempt", attempt),
		)
	}
	return fmt.Errorf("%w after %d attempts", ErrAllocationExhausted, s.attempts())
}

func (s *Service) attempts() int {
	if s.MaxNumberAttempts <= 0 {
		return DefaultNumberAttempts
	}
	return s.MaxNumberAttempts
}
