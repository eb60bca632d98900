package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"todostream/internal/core/errs"
)

func fixtureTodos() []Todo {
	now := time.Now()
	a := NewTodo(uuid.NewString(), "write report", now)
	b := NewTodo(uuid.NewString(), "send report", now).Toggled(now)
	c := NewTodo(uuid.NewString(), "archive report", now)
	return []Todo{a, b, c}
}

func TestParseListFilter(t *testing.T) {
	t.Run("accepts the closed set", func(t *testing.T) {
		for _, name := range []string{"all", "active", "completed"} {
			f, err := ParseListFilter(name)

			assert.NoError(t, err)
			assert.Equal(t, name, f.String())
		}
	})

	t.Run("rejects anything else", func(t *testing.T) {
		_, err := ParseListFilter("done")

		assert.Error(t, err)
		assert.Equal(t, errs.CodeInvalid, errs.CodeOf(err))
	})
}

func TestListFilter_Apply(t *testing.T) {
	todos := fixtureTodos()

	t.Run("all clones the whole collection", func(t *testing.T) {
		got := FilterAll.Apply(todos)

		assert.Equal(t, todos, got)
		got[0].Title = "mutated"
		assert.Equal(t, "write report", todos[0].Title)
	})

	t.Run("active keeps only uncompleted entries in order", func(t *testing.T) {
		got := FilterActive.Apply(todos)

		assert.Len(t, got, 2)
		assert.Equal(t, "write report", got[0].Title)
		assert.Equal(t, "archive report", got[1].Title)
	})

	t.Run("completed keeps only completed entries", func(t *testing.T) {
		got := FilterCompleted.Apply(todos)

		assert.Len(t, got, 1)
		assert.Equal(t, "send report", got[0].Title)
	})

	t.Run("active and completed partition the list", func(t *testing.T) {
		active := FilterActive.Apply(todos)
		completed := FilterCompleted.Apply(todos)

		assert.Equal(t, len(todos), len(active)+len(completed))
		for _, a := range active {
			for _, c := range completed {
				assert.NotEqual(t, a.ID, c.ID)
			}
		}
	})
}
