package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsyncStates(t *testing.T) {
	t.Run("loading", func(t *testing.T) {
		a := AsyncLoading[[]string]()

		assert.True(t, a.Loading())
		assert.False(t, a.Ready())
		assert.NoError(t, a.Err())

		v, ok := a.Get()
		assert.False(t, ok)
		assert.Nil(t, v)
		assert.Nil(t, a.OrZero())
	})

	t.Run("ready", func(t *testing.T) {
		a := AsyncReady([]string{"x"})

		assert.False(t, a.Loading())
		assert.True(t, a.Ready())

		v, ok := a.Get()
		assert.True(t, ok)
		assert.Equal(t, []string{"x"}, v)
	})

	t.Run("failed", func(t *testing.T) {
		cause := errors.New("backend gone")
		a := AsyncFailed[[]string](cause)

		assert.False(t, a.Loading())
		assert.False(t, a.Ready())
		assert.ErrorIs(t, a.Err(), cause)

		_, ok := a.Get()
		assert.False(t, ok)
	})

	t.Run("failure replaces a previous value at the type level", func(t *testing.T) {
		ready := AsyncReady(3)
		failed := AsyncFailed[int](errors.New("boom"))

		assert.NotEqual(t, ready, failed)
		assert.Zero(t, failed.OrZero())
	})
}

func TestAsyncInStore(t *testing.T) {
	sc := NewScope()
	s := NewStore(sc, AsyncLoading[int]())

	assert.True(t, s.Read().Loading())

	s.Write(AsyncReady(9))

	v, ok := s.Read().Get()
	assert.True(t, ok)
	assert.Equal(t, 9, v)
}
