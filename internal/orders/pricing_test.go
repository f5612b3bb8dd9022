package orders

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildItems(t *testing.T) {
	items, subtotal, err := buildItems("o1", []ItemInput{
		{ProductID: " p1 ", Name: " Kopi ", Price: 15000, Qty: 2},
		{Name: "Roti", Price: 0, Qty: 1},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(30000), subtotal)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, "Kopi", items[0].Name)
	assert.Equal(t, int64(30000), items[0].Subtotal)
	assert.Equal(t, "o1", items[1].OrderID)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestBuildItemsRejects(t *testing.T) {
	tests := []struct {
		name  string
		items []ItemInput
	}{
		{"empty", nil},
		{"blank name", []ItemInput{{Name: "  ", Price: 1, Qty: 1}}},
		{"zero qty", []ItemInput{{Name: "a", Price: 1, Qty: 0}}},
		{"negative price", []ItemInput{{Name: "a", Price: -1, Qty: 1}}},
		{"line overflow", []ItemInput{{Name: "a", Price: math.MaxInt64, Qty: 2}}},
		{"subtotal overflow", []ItemInput{
			{Name: "a", Price: math.MaxInt64, Qty: 1},
			{Name: "b", Price: 1, Qty: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildItems("o1", tt.items)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestOrderTotal(t *testing.T) {
	total, err := orderTotal(10000, 2500, 1100)
	require.NoError(t, err)
	assert.Equal(t, int64(8600), total)

	total, err = orderTotal(10000, 10000, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = orderTotal(10000, 10001, 0)
	assert.ErrorIs(t, err, ErrInvalidDiscount)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = orderTotal(10000, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = orderTotal(10000, 0, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizeMetadata(t *testing.T) {
	m, err := normalizeMetadata(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = normalizeMetadata(json.RawMessage(`{"table":7}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"table":7}`, string(m))

	_, err = normalizeMetadata(json.RawMessage(`{"table":`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"0812-3456-789":   "628123456789",
		"+62 812 3456":    "628123456",
		"628123456":       "628123456",
		"8123456":         "628123456",
		"(021) 555 0101":  "62215550101",
		"no digits here!": "",
		"٠٨١٢٣":           "",
		"0812 ٣٤٥":        "62812",
		"０８１２":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}
