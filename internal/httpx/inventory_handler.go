package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/tenant-orders/internal/inventory"
)

type StockService interface {
	UpdateStock(ctx context.Context, tenantID, productID string, in inventory.StockUpdate) (*inventory.StockUpdateResult, error)
	LowStock(ctx context.Context, tenantID string) (*inventory.LowStockReport, error)
}

type InventoryHandler struct {
	Stock StockService
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Use(requireTenant)
		r.Get("/low-stock", h.lowStock)
		r.Patch("/{id}/stock", h.updateStock)
	})
}

func (h *InventoryHandler) updateStock(w http.ResponseWriter, r *http.Request) {
	var req inventory.StockUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Stock.UpdateStock(ctx, tenantID(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.Stock.LowStock(ctx, tenantID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
