package orders

import (
	"encoding/json"
	"time"
)

// Monetary amounts are int64 minor currency units.
type Order struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenant_id"`
	OrderNumber   string           `json:"order_number"`
	CustomerID    string           `json:"customer_id,omitempty"`
	CustomerName  string           `json:"customer_name,omitempty"`
	CustomerPhone string           `json:"customer_phone,omitempty"`
	Subtotal      int64            `json:"subtotal"`
	Discount      int64            `json:"discount"`
	Tax           int64            `json:"tax"`
	Total         int64            `json:"total"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Status        Status           `json:"status"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	PaidAmount    int64            `json:"paid_amount"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	Metadata      json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Items         []OrderItem      `json:"items"`
	Customer      *CustomerSummary `json:"customer,omitempty"`
}

// OrderItem is a snapshot of name and price at order time. ProductID may
// point to a product that no longer exists.
type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Qty       int    `json:"qty"`
	Subtotal  int64  `json:"subtotal"`
	Notes     string `json:"notes,omitempty"`
}

// OrderSummary is the list row: no items, just their count.
type OrderSummary struct {
	ID            string           `json:"id"`
	OrderNumber   string           `json:"order_number"`
	CustomerID    string           `json:"customer_id,omitempty"`
	CustomerName  string           `json:"customer_name,omitempty"`
	CustomerPhone string           `json:"customer_phone,omitempty"`
	Subtotal      int64            `json:"subtotal"`
	Discount      int64            `json:"discount"`
	Total         int64            `json:"total"`
	Status        Status           `json:"status"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ItemCount     int              `json:"item_count"`
	Customer      *CustomerSummary `json:"customer,omitempty"`
}

type CustomerSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type Customer struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone,omitempty"`
	TotalOrders int       `json:"total_orders"`
	TotalSpent  int64     `json:"total_spent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Name       string    `json:"name"`
	Price      int64     `json:"price"`
	Stock      *int      `json:"stock"` // nil when never tracked
	MinStock   int       `json:"min_stock"`
	TrackStock bool      `json:"track_stock"`
	Unit       string    `json:"unit,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p Product) CurrentStock() int {
	if p.Stock == nil {
		return 0
	}
	return *p.Stock
}

func (p Product) LowStock() bool {
	return p.TrackStock && p.CurrentStock() <= p.MinStock
}

// ---- inputs ----

type ItemInput struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Qty       int    `json:"qty"`
	Notes     string `json:"notes"`
}

type CreateOrderInput struct {
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Items         []ItemInput     `json:"items"`
	Discount      int64           `json:"discount"`
	Tax           int64           `json:"tax"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes"`
	Metadata      json.RawMessage `json:"metadata"`
}

// UpdateOrderInput carries the editable fields; nil means unchanged.
type UpdateOrderInput struct {
	Discount      *int64          `json:"discount"`
	PaymentMethod *string         `json:"payment_method"`
	Notes         *string         `json:"notes"`
	Metadata      json.RawMessage `json:"metadata"`
}

type PaymentInput struct {
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaidAmount    *int64        `json:"paid_amount"`
}
