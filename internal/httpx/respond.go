package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/tenant-orders/internal/orders"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{orders.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
	{orders.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{orders.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{orders.ErrInvalidTransition, http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
	{orders.ErrOrderLocked, http.StatusUnprocessableEntity, "ORDER_LOCKED"},
	{orders.ErrInsufficientStock, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"},
	{orders.ErrNotTracked, http.StatusUnprocessableEntity, "NOT_TRACKED"},
	{orders.ErrAllocationExhausted, http.StatusConflict, "ALLOCATION_EXHAUSTED"},
	{orders.ErrConflict, http.StatusConflict, "CONFLICT"},
}

func writeError(w http.ResponseWriter, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			msg := err.Error()
			if e.status == http.StatusServiceUnavailable {
				msg = "service unavailable, try again later"
			}
			writeJSON(w, e.status, errorBody{Error: msg, Code: e.code})
			return
		}
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "INTERNAL"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "INVALID_INPUT"})
}
