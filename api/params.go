package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

// pageResponse is the envelope for paginated lists.
type pageResponse[T any] struct {
	Count    int64 `json:"count"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Next     *int  `json:"next"`
	Previous *int  `json:"previous"`
	Results  []T   `json:"results"`
}

// newPage builds the envelope. A page past the last one is not found, except
// page 1 of an empty list.
func newPage[T any](results []T, count int64, p repository.Page) (*pageResponse[T], error) {
	number := max(p.Number, 1)
	size := p.Limit()
	if number > 1 && int64(p.Offset()) >= count {
		return nil, fmt.Errorf("%w: invalid page %d", errs.ErrNotFound, number)
	}
	if results == nil {
		results = []T{}
	}
	resp := &pageResponse[T]{Count: count, Page: number, PageSize: size, Results: results}
	if int64(number*size) < count {
		n := number + 1
		resp.Next = &n
	}
	if number > 1 {
		n := number - 1
		resp.Previous = &n
	}
	return resp, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errs.ErrNotFound, name, raw)
	}
	return id, nil
}

func queryInt64(q map[string][]string, key string, ve *errs.ValidationError) *int64 {
	raw := strings.TrimSpace(first(q, key))
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		ve.Add(key, "enter a whole number")
		return nil
	}
	return &n
}

func queryDecimal(q map[string][]string, key string, ve *errs.ValidationError) *decimal.Decimal {
	raw := strings.TrimSpace(first(q, key))
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		ve.Add(key, "enter a number")
		return nil
	}
	return &d
}

func first(q map[string][]string, key string) string {
	if v := q[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func parsePage(q map[string][]string, sizeKey string, defSize int, ve *errs.ValidationError) repository.Page {
	p := repository.Page{Number: 1, Size: defSize}
	if n := queryInt64(q, "page", ve); n != nil {
		if *n < 1 {
			ve.Add("page", "page must be 1 or greater")
		} else {
			p.Number = int(*n)
		}
	}
	if sizeKey != "" {
		if n := queryInt64(q, sizeKey, ve); n != nil {
			if *n < 1 {
				ve.Add(sizeKey, "page size must be 1 or greater")
			} else {
				p.Size = int(min(*n, repository.MaxPageSize))
			}
		}
	}
	return p
}

var orderingFields = map[string]bool{"budget": true, "created_at": true, "updated_at": true, "priority": true}

// parseProjectFilter reads the project list query parameters.
func parseProjectFilter(r *http.Request) (repository.ProjectFilter, error) {
	q := r.URL.Query()
	ve := &errs.ValidationError{}

	f := repository.ProjectFilter{
		CategoryName: strings.TrimSpace(q.Get("category__name")),
		Search:       strings.TrimSpace(q.Get("search")),
		AcceptedBy:   queryInt64(q, "accepted_by", ve),
		StartedBy:    queryInt64(q, "started_by", ve),
		CompletedBy:  queryInt64(q, "completed_by", ve),
		BudgetGTE:    queryDecimal(q, "budget__gte", ve),
		BudgetLTE:    queryDecimal(q, "budget__lte", ve),
		Page:         parsePage(q, "page_size", repository.DefaultPageSize, ve),
	}

	if s := strings.ToUpper(strings.TrimSpace(q.Get("status"))); s != "" {
		if st := models.Status(s); st.Valid() {
			f.Status = st
		} else {
			ve.Add("status", fmt.Sprintf("%q is not a valid choice", s))
		}
	}
	if s := strings.ToUpper(strings.TrimSpace(q.Get("priority"))); s != "" {
		if pr := models.Priority(s); pr.Valid() {
			f.Priority = pr
		} else {
			ve.Add("priority", fmt.Sprintf("%q is not a valid choice", s))
		}
	}

	if o := strings.TrimSpace(q.Get("ordering")); o != "" {
		field, desc := strings.TrimPrefix(o, "-"), strings.HasPrefix(o, "-")
		if !orderingFields[field] {
			ve.Add("ordering", fmt.Sprintf("%q is not a valid ordering", o))
		} else {
			f.Ordering = repository.Ordering{Field: field, Desc: desc}
		}
	}

	return f, ve.OrNil()
}

func parseLogFilter(r *http.Request) (repository.LogFilter, error) {
	q := r.URL.Query()
	ve := &errs.ValidationError{}
	f := repository.LogFilter{
		Level:  strings.TrimSpace(q.Get("level")),
		Actor:  strings.TrimSpace(q.Get("actor")),
		Search: strings.TrimSpace(q.Get("search")),
		Page:   parsePage(q, "", repository.LogPageSize, ve),
	}
	return f, ve.OrNil()
}
