package orders

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/tenant-orders/internal/events"
	"github.com/ariefcatur/tenant-orders/internal/metrics"
)

var tracer = otel.Tracer("github.com/ariefcatur/tenant-orders/internal/orders")

// Service is the order engine. Store is required; everything else is optional.
type Service struct {
	Store     Store
	Stock     StockAdjuster // defaults to Store's own AdjustStock
	Publisher Publisher
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Producer  string // event producer name

	// Location decides the calendar day of order numbers (UTC when nil).
	Location          *time.Location
	MaxNumberAttempts int
	Now               func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) stock() StockAdjuster {
	if s.Stock == nil {
		return directAdjuster{}
	}
	return s.Stock
}

// begin opens a span for op; the returned func closes it and records metrics.
func (s *Service) begin(ctx context.Context, op, tenantID string) (context.Context, func(*error)) {
	ctx, span := tracer.Start(ctx, "orders."+op, trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	start := time.Now()
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, ErrUnavailable) {
				s.logger().Error("order operation failed",
					zap.String("op", op), zap.String("tenant_id", tenantID), zap.Error(err))
			}
		}
		span.End()
		s.Metrics.Observe(op, start, err)
	}
}

func (s *Service) CreateOrder(ctx context.Context, tenantID string, in CreateOrderInput) (_ *Order, err error) {
	ctx, done := s.begin(ctx, "create", tenantID)
	defer done(&err)

	if tenantID == "" {
		return nil, invalid("tenant id is required")
	}
	now := s.now()
	o := &Order{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		CustomerID:    strings.TrimSpace(in.CustomerID),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: NormalizePhone(in.CustomerPhone),
		Discount:      in.Discount,
		Tax:           in.Tax,
		PaymentMethod: in.PaymentMethod,
		Notes:         in.Notes,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if o.Items, o.Subtotal, err = buildItems(o.ID, in.Items); err != nil {
		return nil, err
	}
	if o.Total, err = orderTotal(o.Subtotal, in.Discount, in.Tax); err != nil {
		return nil, err
	}
	if o.Metadata, err = normalizeMetadata(in.Metadata); err != nil {
		return nil, err
	}

	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if o.CustomerID != "" {
			ok, err := tx.CustomerExists(ctx, tenantID, o.CustomerID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrCustomerNotFound
			}
		}
		if err := checkProducts(ctx, tx, o); err != nil {
			return err
		}
		if err := s.allocateAndInsert(ctx, tx, o); err != nil {
			return err
		}
		if o.CustomerID != "" {
			return tx.AddCustomerOrders(ctx, tenantID, o.CustomerID, 1)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	s.publish(ctx, events.TopicOrderCreated, events.New(events.EventOrderCreated, s.Producer, tenantID, o.ID,
		events.OrderCreatedPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			CustomerID:  o.CustomerID,
			Total:       o.Total,
			ItemCount:   len(o.Items),
		}))
	s.logger().Info("order created",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int64("total", o.Total),
	)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, tenantID, orderID string) (_ *Order, err error) {
	ctx, done := s.begin(ctx, "get", tenantID)
	defer done(&err)

	o, err := s.Store.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, unavailable(err)
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, tenantID string, f ListFilter) (_ *ListResult, err error) {
	ctx, done := s.begin(ctx, "list", tenantID)
	defer done(&err)

	if f, err = f.Normalize(); err != nil {
		return nil, err
	}
	rows, total, err := s.Store.ListOrders(ctx, tenantID, f)
	if err != nil {
		return nil, unavailable(err)
	}
	if rows == nil {
		rows = []OrderSummary{}
	}
	return &ListResult{Data: rows, Meta: newPageMeta(total, f)}, nil
}

// TransitionStatus moves the order along the status table. Completing an
// order decrements stock for its tracked products and books revenue on the
// customer when the order is already PAID; all of it commits or none does.
func (s *Service) TransitionStatus(ctx context.Context, tenantID, orderID string, to Status) (_ *Order, err error) {
	ctx, done := s.begin(ctx, "transition_status", tenantID)
	defer done(&err)

	if !to.Valid() {
		return nil, invalid("unknown status %q", to)
	}

	var (
		out     *Order
		from    Status
		booked  bool
		tracked []events.ItemQty
	)
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		out, from = o, o.Status

		if from.Terminal() {
			return fmt.Errorf("%w: order %s is already %s", ErrInvalidTransition, o.OrderNumber, from)
		}
		if from == to {
			return nil
		}
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
		}

		now := s.now()
		if to == StatusCompleted {
			if tracked, err = s.fulfil(ctx, tx, o); err != nil {
				return err
			}
			if o.CompletedAt == nil {
				o.CompletedAt = &now
			}
			if o.CustomerID != "" && o.PaymentStatus == PaymentPaid {
				if err := tx.AddCustomerSpent(ctx, tenantID, o.CustomerID, o.Total); err != nil {
					return err
				}
				booked = true
			}
		}
		o.Status = to
		o.UpdatedAt = now
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if from == to {
		return out, nil
	}

	s.publish(ctx, events.TopicOrderStatusChanged, events.New(events.EventOrderStatusChanged, s.Producer, tenantID, out.ID,
		events.OrderStatusChangedPayload{OrderID: out.ID, OrderNumber: out.OrderNumber, From: string(from), To: string(to)}))
	if to == StatusCompleted {
		s.publish(ctx, events.TopicOrderCompleted, events.New(events.EventOrderCompleted, s.Producer, tenantID, out.ID,
			events.OrderCompletedPayload{
				OrderID:       out.ID,
				OrderNumber:   out.OrderNumber,
				CustomerID:    out.CustomerID,
				Total:         out.Total,
				PaymentStatus: string(out.PaymentStatus),
				RevenueBooked: booked,
				CompletedAt:   *out.CompletedAt,
				Items:         tracked,
			}))
	}
	s.logger().Info("order status changed",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", out.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Bool("revenue_booked", booked),
	)
	return out, nil
}

// fulfil takes stock for every tracked product on o. Quantities are summed
// per product and applied in product id order so concurrent completions
// lock rows in the same sequence. Products that no longer exist or do not
// track stock are skipped.
func (s *Service) fulfil(ctx context.Context, tx Tx, o *Order) ([]events.ItemQty, error) {
	qty := map[string]int{}
	for _, it := range o.Items {
		if it.ProductID != "" {
			qty[it.ProductID] += it.Qty
		}
	}

	var tracked []events.ItemQty
	for _, pid := range slices.Sorted(maps.Keys(qty)) {
		p, err := tx.GetProduct(ctx, o.TenantID, pid)
		if errors.Is(err, ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !p.TrackStock {
			continue
		}
		if _, err := s.stock().Apply(ctx, tx, o.TenantID, pid, -qty[pid]); err != nil {
			if errors.Is(err, ErrNotTracked) || errors.Is(err, ErrProductNotFound) {
				continue
			}
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		tracked = append(tracked, events.ItemQty{ProductID: pid, Qty: qty[pid]})
	}
	return tracked, nil
}

// checkProducts resolves every product the items reference within the order's
// tenant. A product of another tenant reads as not found.
func checkProducts(ctx context.Context, tx Tx, o *Order) error {
	seen := map[string]bool{}
	for _, it := range o.Items {
		if it.ProductID == "" || seen[it.ProductID] {
			continue
		}
		seen[it.ProductID] = true
		if _, err := tx.GetProduct(ctx, o.TenantID, it.ProductID); err != nil {
			return err
		}
	}
	return nil
}

// TransitionPayment is allowed in every order status, terminal ones included.
func (s *Service) TransitionPayment(ctx context.Context, tenantID, orderID string, in PaymentInput) (_ *Order, err error) {
	ctx, done := s.begin(ctx, "transition_payment", tenantID)
	defer done(&err)

	if !in.PaymentStatus.Valid() {
		return nil, invalid("unknown payment status %q", in.PaymentStatus)
	}
	if in.PaidAmount != nil && *in.PaidAmount < 0 {
		return nil, invalid("paid amount must not be negative")
	}

	var (
		out  *Order
		from PaymentStatus
	)
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		from = o.PaymentStatus
		o.PaymentStatus = in.PaymentStatus
		if in.PaidAmount != nil {
			o.PaidAmount = *in.PaidAmount
		}
		o.UpdatedAt = s.now()
		out = o
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, unavailable(err)
	}

	s.publish(ctx, events.TopicPaymentChanged, events.New(events.EventPaymentStatusChanged, s.Producer, tenantID, out.ID,
		events.PaymentStatusChangedPayload{OrderID: out.ID, From: string(from), To: string(out.PaymentStatus), PaidAmount: out.PaidAmount}))
	return out, nil
}

// UpdateEditableFields edits discount, payment method, notes and metadata of
// a PENDING or PROCESSING order.
func (s *Service) UpdateEditableFields(ctx context.Context, tenantID, orderID string, in UpdateOrderInput) (_ *Order, err error) {
	ctx, done := s.begin(ctx, "update", tenantID)
	defer done(&err)

	var out *Order
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %s is %s", ErrOrderLocked, o.OrderNumber, o.Status)
		}
		if in.Discount != nil {
			total, err := orderTotal(o.Subtotal, *in.Discount, o.Tax)
			if err != nil {
				return err
			}
			o.Discount, o.Total = *in.Discount, total
		}
		if in.PaymentMethod != nil {
			o.PaymentMethod = *in.PaymentMethod
		}
		if in.Notes != nil {
			o.Notes = *in.Notes
		}
		if len(in.Metadata) > 0 {
			if o.Metadata, err = normalizeMetadata(in.Metadata); err != nil {
				return err
			}
		}
		o.UpdatedAt = s.now()
		out = o
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// DeleteOrder hard-deletes an order that has not been completed, together
// with its items, and gives back the customer's order count.
func (s *Service) DeleteOrder(ctx context.Context, tenantID, orderID string) (err error) {
	ctx, done := s.begin(ctx, "delete", tenantID)
	defer done(&err)

	var gone *Order
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusCompleted {
			return fmt.Errorf("%w: order %s is completed", ErrOrderLocked, o.OrderNumber)
		}
		if err := tx.DeleteOrder(ctx, tenantID, orderID); err != nil {
			return err
		}
		gone = o
		if o.CustomerID != "" {
			return tx.AddCustomerOrders(ctx, tenantID, o.CustomerID, -1)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}

	s.publish(ctx, events.TopicOrderDeleted, events.New(events.EventOrderDeleted, s.Producer, tenantID, gone.ID,
		events.OrderDeletedPayload{OrderID: gone.ID, OrderNumber: gone.OrderNumber, CustomerID: gone.CustomerID}))
	s.logger().Info("order deleted",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", gone.ID),
		zap.String("order_number", gone.OrderNumber),
	)
	return nil
}

// publish is best effort: the change is already committed.
func (s *Service) publish(ctx context.Context, topic string, env events.Envelope) {
	if s.Publisher == nil {
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	if err := s.Publisher.PublishEvent(ctx, topic, env); err != nil {
		s.logger().Warn("publish event failed",
			zap.String("topic", topic),
			zap.String("event_type", env.EventType),
			zap.String("correlation_id", env.CorrelationID),
			zap.Error(err),
		)
	}
}
