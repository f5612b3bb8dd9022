package orders

import (
	"math"
	"strings"
	"time"
)

const (
	SortByOrderNumber = "orderNumber"
	SortByTotal       = "total"
	SortByCreatedAt   = "createdAt"

	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type ListFilter struct {
	Search        string
	Status        Status
	PaymentStatus PaymentStatus
	CustomerID    string
	DateFrom      *time.Time // inclusive
	DateTo        *time.Time // inclusive
	SortBy        string
	SortOrder     string // asc | desc
	Page          int
	Limit         int
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

func (f ListFilter) Desc() bool { return f.SortOrder == "desc" }

// Normalize fills defaults and rejects unknown sort keys or statuses.
func (f ListFilter) Normalize() (ListFilter, error) {
	f.Search = strings.TrimSpace(f.Search)
	if f.Status != "" && !f.Status.Valid() {
		return f, invalid("unknown status %q", f.Status)
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return f, invalid("unknown payment status %q", f.PaymentStatus)
	}
	switch f.SortBy {
	case "":
		f.SortBy = SortByCreatedAt
	case SortByOrderNumber, SortByTotal, SortByCreatedAt:
	default:
		return f, invalid("cannot sort by %q", f.SortBy)
	}
	switch strings.ToLower(f.SortOrder) {
	case "":
		f.SortOrder = "desc"
	case "asc", "desc":
		f.SortOrder = strings.ToLower(f.SortOrder)
	default:
		return f, invalid("sort order must be asc or desc")
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return f, invalid("dateTo is before dateFrom")
	}
	if f.Page < 1 {
		f.Page = defaultPage
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	// keeps Offset within a 32-bit row count
	if f.Page > math.MaxInt32/f.Limit {
		return f, invalid("page %d is out of range", f.Page)
	}
	return f, nil
}

type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

type ListResult struct {
	Data []OrderSummary `json:"data"`
	Meta PageMeta       `json:"meta"`
}

func newPageMeta(total int, f ListFilter) PageMeta {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return PageMeta{Total: total, Page: f.Page, Limit: f.Limit, TotalPages: pages}
}
