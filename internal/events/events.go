package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventOrderCompleted       = "OrderCompleted"
	EventPaymentStatusChanged = "PaymentStatusChanged"
	EventOrderDeleted         = "OrderDeleted"
	EventStockLow             = "StockLow"
)

const Version = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TenantID      string          `json:"tenant_id"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or product_id
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a v1 envelope. Payloads are plain structs, so marshal
// failures are programmer errors and panic.
func New(eventType, producer, tenantID, correlationID string, payload any) Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  Version,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TenantID:      tenantID,
		CorrelationID: correlationID,
		Payload:       b,
	}
}

// Decode unmarshals the envelope payload into T.
func Decode[T any](env Envelope) (T, error) {
	var t T
	err := json.Unmarshal(env.Payload, &t)
	return t, err
}

// ---- payloads ----

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CustomerID  string `json:"customer_id,omitempty"`
	Total       int64  `json:"total"`
	ItemCount   int    `json:"item_count"`
}

type OrderStatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        string `json:"from"`
	To          string `json:"to"`
}

type OrderCompletedPayload struct {
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Total         int64     `json:"total"`
	PaymentStatus string    `json:"payment_status"`
	RevenueBooked bool      `json:"revenue_booked"`
	CompletedAt   time.Time `json:"completed_at"`
	Items         []ItemQty `json:"items"` // tracked items only
}

type PaymentStatusChangedPayload struct {
	OrderID    string `json:"order_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	PaidAmount int64  `json:"paid_amount"`
}

type OrderDeletedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CustomerID  string `json:"customer_id,omitempty"`
}

type StockLowPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"min_stock"`
	OrderID   string `json:"order_id,omitempty"`
}
