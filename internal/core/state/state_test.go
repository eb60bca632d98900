package state

import (
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todostream/internal/core/errs"
)

func TestStore_ReadWrite(t *testing.T) {
	sc := NewScope()
	s := NewStore(sc, 41)

	assert.Equal(t, 41, s.Read())

	s.Write(42)

	assert.Equal(t, 42, s.Read())
}

func TestStore_Update(t *testing.T) {
	sc := NewScope()
	s := NewStore(sc, 10)

	s.Update(func(v int) int { return v + 5 })

	assert.Equal(t, 15, s.Read())
}

func TestStore_Subscribe(t *testing.T) {
	sc := NewScope()
	s := NewStore(sc, "initial")

	t.Run("delivers the current value immediately", func(t *testing.T) {
		var got []string
		unsub := s.Subscribe(func(v string) { got = append(got, v) })
		defer unsub()

		assert.Equal(t, []string{"initial"}, got)
	})

	t.Run("delivers before Write returns", func(t *testing.T) {
		var got []string
		unsub := s.Subscribe(func(v string) { got = append(got, v) })
		defer unsub()

		s.Write("changed")

		assert.Equal(t, []string{"initial", "changed"}, got)
	})

	t.Run("stops after unsubscribe", func(t *testing.T) {
		var count int
		unsub := s.Subscribe(func(string) { count++ })
		unsub()

		s.Write("ignored")

		assert.Equal(t, 1, count)
	})
}

func TestStore_EqualWriteDoesNotPropagate(t *testing.T) {
	sc := NewScope()
	s := NewStore(sc, 7, WithEqual(func(a, b int) bool { return a == b }))

	var notified int
	unsub := s.Subscribe(func(int) { notified++ })
	defer unsub()

	s.Write(7)
	assert.Equal(t, 1, notified)

	s.Write(8)
	assert.Equal(t, 2, notified)
}

func TestDerive_ComputesAtConstructionAndOnChange(t *testing.T) {
	sc := NewScope()
	base := NewStore(sc, 3)

	computes := 0
	doubled := Derive(sc, func() int {
		computes++
		return base.Read() * 2
	}, Deps(base))

	assert.Equal(t, 1, computes)
	assert.Equal(t, 6, doubled.Read())

	base.Write(5)

	assert.Equal(t, 2, computes)
	assert.Equal(t, 10, doubled.Read())
}

func TestDerive_DiamondRecomputesOncePerPass(t *testing.T) {
	sc := NewScope()
	a := NewStore(sc, 1)
	left := Derive(sc, func() int { return a.Read() + 100 }, Deps(a))
	right := Derive(sc, func() int { return a.Read() + 200 }, Deps(a))

	joins := 0
	join := Derive(sc, func() int {
		joins++
		return left.Read() + right.Read()
	}, Deps(left, right))

	require.Equal(t, 1, joins)
	require.Equal(t, 302, join.Read())

	a.Write(2)

	assert.Equal(t, 2, joins, "one write through a diamond must recompute the join exactly once")
	assert.Equal(t, 304, join.Read())
}

func TestDerive_DependencyIsolation(t *testing.T) {
	sc := NewScope()
	relevant := NewStore(sc, 1)
	unrelated := NewStore(sc, 1)

	computes := 0
	d := Derive(sc, func() int {
		computes++
		return relevant.Read() * 10
	}, Deps(relevant))

	require.Equal(t, 1, computes)

	unrelated.Write(99)

	assert.Equal(t, 1, computes, "a write to an undeclared store must not recompute")
	assert.Equal(t, 10, d.Read())
}

func TestDerive_EqualityStopsDownstream(t *testing.T) {
	sc := NewScope()
	base := NewStore(sc, 4)
	parity := Derive(sc, func() int { return base.Read() % 2 },
		Deps(base), WithEqual(func(a, b int) bool { return a == b }))

	downstream := 0
	Derive(sc, func() int {
		downstream++
		return parity.Read()
	}, Deps(parity))

	var parityNotes int
	unsub := parity.Subscribe(func(int) { parityNotes++ })
	defer unsub()

	require.Equal(t, 1, downstream)
	require.Equal(t, 1, parityNotes)

	base.Write(6)

	assert.Equal(t, 1, downstream, "an equal intermediate value must stop the chain")
	assert.Equal(t, 1, parityNotes)

	base.Write(7)

	assert.Equal(t, 2, downstream)
	assert.Equal(t, 2, parityNotes)
}

func TestSubscribersObserveConsistentGraph(t *testing.T) {
	sc := NewScope()
	base := NewStore(sc, 1)
	doubled := Derive(sc, func() int { return base.Read() * 2 }, Deps(base))
	sum := Derive(sc, func() int { return base.Read() + doubled.Read() }, Deps(base, doubled))

	checked := 0
	unsub := sum.Subscribe(func(v int) {
		checked++
		assert.Equal(t, base.Read()*3, v, "sum must never be observed mid-propagation")
		assert.Equal(t, base.Read()*2, doubled.Read())
	})
	defer unsub()

	for i := 2; i <= 5; i++ {
		base.Write(i)
	}

	assert.Equal(t, 5, checked)
}

func TestReentrantWriteFromSubscriber(t *testing.T) {
	sc := NewScope()
	a := NewStore(sc, 0)
	b := NewStore(sc, 0)

	var bValues []int
	unsubB := b.Subscribe(func(v int) { bValues = append(bValues, v) })
	defer unsubB()

	unsubA := a.Subscribe(func(v int) {
		if v > 0 {
			b.Write(v * 10)
		}
	})
	defer unsubA()

	a.Write(3)

	assert.Equal(t, 30, b.Read(), "the folded write must be applied before Write returns")
	assert.Equal(t, []int{0, 30}, bValues)
}

func TestNonSettlingGraphPanics(t *testing.T) {
	sc := NewScope(WithMaxPasses(5))
	s := NewStore(sc, 0)
	unsub := s.Subscribe(func(v int) {
		if v > 0 {
			s.Write(v + 1)
		}
	})
	defer unsub()

	defer func() {
		r := recover()
		require.NotNil(t, r, "a self-feeding subscriber must trip the pass guard")
		err, ok := r.(error)
		require.True(t, ok)
		assert.Equal(t, errs.CodeUsage, errs.CodeOf(err))
	}()

	s.Write(1)
}

func TestDerive_ConstructionMisusePanics(t *testing.T) {
	sc := NewScope()
	base := NewStore(sc, 1)

	t.Run("nil compute", func(t *testing.T) {
		assert.Panics(t, func() { Derive[int](sc, nil, Deps(base)) })
	})

	t.Run("no dependencies", func(t *testing.T) {
		assert.Panics(t, func() { Derive(sc, func() int { return 0 }, nil) })
	})

	t.Run("nil dependency", func(t *testing.T) {
		assert.Panics(t, func() { Derive(sc, func() int { return 0 }, Deps(base, nil)) })
	})

	t.Run("dependency from another scope", func(t *testing.T) {
		other := NewScope()
		foreign := NewStore(other, 1)
		assert.Panics(t, func() {
			Derive(sc, func() int { return foreign.Read() }, Deps(foreign))
		})
	})

	t.Run("nil scope", func(t *testing.T) {
		assert.Panics(t, func() { NewStore[int](nil, 0) })
	})
}

func TestReadOnly(t *testing.T) {
	sc := NewScope()
	s := NewStore(sc, 12)
	ro := ReadOnly[int](s)

	assert.Equal(t, 12, ro.Read())

	_, writable := ro.(*Store[int])
	assert.False(t, writable, "the wrapper must not expose the writable store")

	viaRO := Derive(sc, func() int { return ro.Read() + 1 }, Deps(ro))
	s.Write(20)

	assert.Equal(t, 21, viaRO.Read())
}

func TestConcurrentWritesSettle(t *testing.T) {
	RegisterTestingT(t)

	sc := NewScope()
	base := NewStore(sc, 0)
	doubled := Derive(sc, func() int { return base.Read() * 2 }, Deps(base))

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			base.Write(v)
		}(i)
	}
	wg.Wait()

	Eventually(func() bool {
		return doubled.Read() == base.Read()*2
	}, time.Second, 5*time.Millisecond).Should(BeTrue())
}
