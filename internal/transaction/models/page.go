package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PageSpec bounds a paginated read.
type PageSpec struct {
	Limit  int
	Offset int
}

// Normalize clamps the page spec to sane bounds.
func (p PageSpec) Normalize() PageSpec {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// TransactionFilter narrows history and search reads. Zero values mean
// "no constraint".
type TransactionFilter struct {
	AccountID   string
	Type        string
	Status      string
	StartDate   *time.Time
	EndDate     *time.Time
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	Description string
	Reference   string
}

// Page is one page of transactions plus the total match count.
type Page struct {
	Items  []*Transaction `json:"items"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
