package domain

import (
	"todostream/internal/core/errs"
)

// ListFilter selects which part of the collection a view shows.
type ListFilter string

const (
	FilterAll       ListFilter = "all"
	FilterActive    ListFilter = "active"
	FilterCompleted ListFilter = "completed"
)

// ListFilters returns every valid filter, in display order.
func ListFilters() []ListFilter {
	return []ListFilter{FilterAll, FilterActive, FilterCompleted}
}

// ParseListFilter maps user input onto the closed filter set.
func ParseListFilter(s string) (ListFilter, error) {
	switch ListFilter(s) {
	case FilterAll, FilterActive, FilterCompleted:
		return ListFilter(s), nil
	default:
		return "", errs.New("domain.ParseListFilter", errs.CodeInvalid,
			errs.WithMessage("unknown filter"),
			errs.WithField("filter", s))
	}
}

func (f ListFilter) String() string {
	return string(f)
}

// Matches reports whether the todo belongs to this filter's slice of the list.
func (f ListFilter) Matches(t Todo) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Apply filters the collection, preserving relative order. The result is
// always a fresh slice, never an alias of the input.
func (f ListFilter) Apply(todos []Todo) []Todo {
	out := make([]Todo, 0, len(todos))
	for _, t := range todos {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
