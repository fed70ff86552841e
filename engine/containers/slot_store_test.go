package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct {
	name string
}

func TestSlotStoreInsertReusesFirstFreeSlot(t *testing.T) {
	s := NewSlotStore[resource]()

	a := s.Insert(&resource{"a"})
	b := s.Insert(&resource{"b"})
	c := s.Insert(&resource{"c"})
	assert.Equal(t, []int{0, 1, 2}, []int{a, b, c})

	_, ok := s.Delete(a)
	require.True(t, ok)
	_, ok = s.Delete(b)
	require.True(t, ok)

	d := s.Insert(&resource{"d"})
	assert.Equal(t, 0, d)
	e := s.Insert(&resource{"e"})
	assert.Equal(t, 1, e)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, s.Live())

	v, ok := s.Get(c)
	require.True(t, ok)
	assert.Equal(t, "c", v.name)
}

func TestSlotStoreLengthTracksPeakLiveCount(t *testing.T) {
	s := NewSlotStore[resource]()
	var live []int
	peak := 0
	// grow to 4, churn, grow to 6, churn
	ops := []int{4, -2, 1, -3, 6, -6, 2}
	for _, op := range ops {
		if op > 0 {
			for i := 0; i < op; i++ {
				live = append(live, s.Insert(&resource{}))
			}
		} else {
			for i := 0; i < -op; i++ {
				_, ok := s.Delete(live[0])
				require.True(t, ok)
				live = live[1:]
			}
		}
		if len(live) > peak {
			peak = len(live)
		}
		assert.Equal(t, peak, s.Len())
		assert.Equal(t, len(live), s.Live())
	}
}

func TestSlotStoreDeleteIsIdempotent(t *testing.T) {
	s := NewSlotStore[resource]()
	i := s.Insert(&resource{"x"})

	v, ok := s.Delete(i)
	require.True(t, ok)
	assert.Equal(t, "x", v.name)

	v, ok = s.Delete(i)
	assert.False(t, ok)
	assert.Nil(t, v)

	_, ok = s.Delete(-1)
	assert.False(t, ok)
	_, ok = s.Delete(42)
	assert.False(t, ok)

	_, ok = s.Get(i)
	assert.False(t, ok)
}

func TestSlotStoreClear(t *testing.T) {
	s := NewSlotStore[resource]()
	s.Insert(&resource{"a"})
	b := s.Insert(&resource{"b"})
	s.Insert(&resource{"c"})
	s.Delete(b)

	all := s.Clear()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].name)
	assert.Equal(t, "c", all[1].name)
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Live())
	assert.Empty(t, s.Clear())
}

func TestSlotStoreEach(t *testing.T) {
	s := NewSlotStore[resource]()
	s.Insert(&resource{"a"})
	b := s.Insert(&resource{"b"})
	s.Insert(&resource{"c"})
	s.Delete(b)

	var seen []int
	s.Each(func(index int, _ *resource) {
		seen = append(seen, index)
	})
	assert.Equal(t, []int{0, 2}, seen)
}
