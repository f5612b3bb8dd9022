package orders

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/google/uuid"
)

// buildItems validates the item list and prices each line.
func buildItems(orderID string, in []ItemInput) ([]OrderItem, int64, error) {
	if len(in) == 0 {
		return nil, 0, invalid("order needs at least one item")
	}
	items := make([]OrderItem, 0, len(in))
	var subtotal int64
	for i, it := range in {
		name := strings.TrimSpace(it.Name)
		switch {
		case name == "":
			return nil, 0, invalid("item %d: name is required", i)
		case it.Qty < 1:
			return nil, 0, invalid("item %d: qty must be at least 1", i)
		case it.Price < 0:
			return nil, 0, invalid("item %d: price must not be negative", i)
		case it.Price > 0 && int64(it.Qty) > math.MaxInt64/it.Price:
			return nil, 0, invalid("item %d: amount overflows", i)
		}
		line := it.Price * int64(it.Qty)
		if subtotal > math.MaxInt64-line {
			return nil, 0, invalid("order subtotal overflows")
		}
		subtotal += line
		items = append(items, OrderItem{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ProductID: strings.TrimSpace(it.ProductID),
			Name:      name,
			Price:     it.Price,
			Qty:       it.Qty,
			Subtotal:  line,
			Notes:     it.Notes,
		})
	}
	return items, subtotal, nil
}

// orderTotal is subtotal - discount + tax, rejecting negative inputs and totals.
func orderTotal(subtotal, discount, tax int64) (int64, error) {
	if discount < 0 {
		return 0, invalid("discount must not be negative")
	}
	if tax < 0 {
		return 0, invalid("tax must not be negative")
	}
	if tax > math.MaxInt64-subtotal {
		return 0, invalid("order total overflows")
	}
	total := subtotal - discount + tax
	if total < 0 {
		return 0, ErrInvalidDiscount
	}
	return total, nil
}

// normalizeMetadata checks the blob is JSON and maps a JSON null to nil. The
// structure itself belongs to the tenant and is not inspected.
func normalizeMetadata(m json.RawMessage) (json.RawMessage, error) {
	if len(m) == 0 || string(m) == "null" {
		return nil, nil
	}
	if !json.Valid(m) {
		return nil, invalid("metadata is not valid JSON")
	}
	return m, nil
}

// NormalizePhone keeps digits only and forces the 62 country prefix:
// "0812-3456" becomes "628123456".
func NormalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}
	if !strings.HasPrefix(digits, "62") {
		digits = "62" + digits
	}
	return digits
}
