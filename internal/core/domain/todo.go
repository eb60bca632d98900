package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Todo is the unit of state: one entry in the list. Values are immutable;
// every change produces a copy with the same ID.
type Todo struct {
	ID          string `validate:"required,uuid4"`
	Title       string `validate:"required,max=255"`
	Description string `validate:"max=255"`
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTodo builds a fresh, uncompleted todo. Title and description carry the
// same text: single-line entries are the common case and the two fields only
// diverge through imports from other tools.
//
// Timestamps are normalized to UTC with the monotonic reading stripped, so
// a value compares equal to itself after a storage round-trip.
func NewTodo(id, description string, now time.Time) Todo {
	now = now.UTC().Round(0)
	return Todo{
		ID:          id,
		Title:       description,
		Description: description,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Toggled returns a copy with the completion flag flipped.
func (t Todo) Toggled(now time.Time) Todo {
	t.Completed = !t.Completed
	t.UpdatedAt = now.UTC()
	return t
}

// Edited returns a copy with title and description replaced by the given text.
func (t Todo) Edited(description string, now time.Time) Todo {
	t.Title = description
	t.Description = description
	t.UpdatedAt = now.UTC()
	return t
}

// Validate checks the structural integrity of the record. Storage adapters
// call it on every decoded row so corrupt records never reach the store.
func (t Todo) Validate() error {
	return validate.Struct(t)
}

// CloneTodos returns a fresh slice holding the same values. Todo has no
// reference fields, so a shallow copy fully isolates the result.
func CloneTodos(todos []Todo) []Todo {
	if todos == nil {
		return nil
	}
	out := make([]Todo, len(todos))
	copy(out, todos)
	return out
}
