package factory

import (
	"time"

	fab "github.com/Goldziher/fabricator"
	"github.com/google/uuid"

	"todostream/internal/core/domain"
)

// NewTodo fabricates a valid todo. The generated ID is a fresh uuid and the
// timestamps are UTC so the result always passes domain validation; pass
// override maps to pin specific fields.
func NewTodo(customData ...map[string]any) domain.Todo {
	now := time.Now().UTC().Round(0)
	defaults := map[string]any{
		"ID":        uuid.NewString(),
		"Completed": false,
		"CreatedAt": now,
		"UpdatedAt": now,
	}
	for _, data := range customData {
		for key := range data {
			delete(defaults, key)
		}
	}
	if len(defaults) > 0 {
		customData = append(customData, defaults)
	}

	instance := fab.New(domain.Todo{}, fab.Options[domain.Todo]{Defaults: defaults})
	return instance.Build(customData...)
}

// NewTodos fabricates n valid todos.
func NewTodos(n int, customData ...map[string]any) []domain.Todo {
	todos := make([]domain.Todo, 0, n)
	for i := 0; i < n; i++ {
		todos = append(todos, NewTodo(customData...))
	}
	return todos
}
