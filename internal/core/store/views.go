package store

import (
	"slices"

	"todostream/internal/core/domain"
	"todostream/internal/core/errs"
	"todostream/internal/core/state"
)

// Views are the read models over the todo list: the visibility filter, the
// filtered collection, and the count of uncompleted entries.
//
// Remaining deliberately depends on the list alone. Changing the filter
// re-derives Filtered and nothing else.
type Views struct {
	Filter    *state.Store[domain.ListFilter]
	Filtered  *state.Derived[[]domain.Todo]
	Remaining *state.Derived[int]
}

// NewViews wires the derived stores over the list's snapshot store. The
// filter starts at "all".
func NewViews(scope *state.Scope, list *TodoList) (*Views, error) {
	if scope == nil {
		return nil, errs.New("store.NewViews", errs.CodeInvalid, errs.WithMessage("scope required"))
	}
	if list == nil {
		return nil, errs.New("store.NewViews", errs.CodeInvalid, errs.WithMessage("todo list required"))
	}

	snapshot := list.Snapshot()

	filter := state.NewStore(scope, domain.FilterAll,
		state.WithEqual(func(a, b domain.ListFilter) bool { return a == b }))

	filtered := state.Derive(scope, func() []domain.Todo {
		return filter.Read().Apply(snapshot.Read().OrZero())
	}, state.Deps(snapshot, filter), state.WithEqual(slices.Equal[[]domain.Todo]))

	remaining := state.Derive(scope, func() int {
		return len(domain.FilterActive.Apply(snapshot.Read().OrZero()))
	}, state.Deps(snapshot), state.WithEqual(func(a, b int) bool { return a == b }))

	return &Views{
		Filter:    filter,
		Filtered:  filtered,
		Remaining: remaining,
	}, nil
}

// SetFilter parses and applies a filter name. Setting the current filter
// again is absorbed by the store's equality check.
func (v *Views) SetFilter(name string) error {
	f, err := domain.ParseListFilter(name)
	if err != nil {
		return err
	}
	v.Filter.Write(f)
	return nil
}
