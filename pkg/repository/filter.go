package repository

import (
	"github.com/garnizeh/intake/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	LogPageSize     = 10
)

// Page is a 1-based page cursor.
type Page struct {
	Number int
	Size   int
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit()
}

// Limit returns the page size, clamped to [1, MaxPageSize].
func (p Page) Limit() int {
	switch {
	case p.Size <= 0:
		return DefaultPageSize
	case p.Size > MaxPageSize:
		return MaxPageSize
	}
	return p.Size
}

// Ordering is a sortable column with direction.
type Ordering struct {
	Field string // budget, created_at, updated_at, priority
	Desc  bool
}

// ProjectFilter composes the list filters for projects. Zero values are ignored.
type ProjectFilter struct {
	Status       models.Status
	Priority     models.Priority
	AcceptedBy   *int64
	StartedBy    *int64
	CompletedBy  *int64
	CategoryName string
	BudgetGTE    *decimal.Decimal
	BudgetLTE    *decimal.Decimal
	Search       string
	// ReviewerID matches projects where any reviewer column equals the id.
	ReviewerID *int64
	Ordering   Ordering
	Page       Page
}

// LogFilter composes the list filters for application logs.
type LogFilter struct {
	Level  string
	Actor  string
	Search string
	Page   Page
}
