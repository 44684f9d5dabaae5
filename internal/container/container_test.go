package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapOrder(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	_, replaced := m.Set("b", 1)
	assert.False(t, replaced)
	m.Set("a", 2)
	m.Set("c", 3)
	old, replaced := m.Set("b", 10)
	assert.True(t, replaced)
	assert.Equal(t, 1, old)
	assert.Equal(t, []string{"b", "a", "c"}, m.Keys())
	assert.Equal(t, []int{10, 2, 3}, m.Values())

	v, ok := m.Delete("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = m.Delete("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b", "c"}, m.Keys())
	m.Set("a", 4)
	assert.Equal(t, []string{"b", "c", "a"}, m.Keys())
	v, ok = m.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 3, m.Len())

	seen := 0
	m.Each(func(k string, v int) bool { seen++; return k != "c" })
	assert.Equal(t, 2, seen)

	assert.Equal(t, []int{10, 3, 4}, m.Clear())
	assert.Equal(t, 0, m.Len())
	_, ok = m.Get("b")
	assert.False(t, ok)
}

func TestMapValuesIsCopy(t *testing.T) {
	t.Parallel()

	m := NewMap[int, string]()
	m.Set(1, "one")
	vs := m.Values()
	vs[0] = "mutated"
	v, _ := m.Get(1)
	assert.Equal(t, "one", v)
}

func TestList(t *testing.T) {
	t.Parallel()

	var l List[string]
	_, ok := l.Last()
	assert.False(t, ok)
	_, ok = l.Pop()
	assert.False(t, ok)

	l.Push("a")
	l.Push("b")
	l.Push("c")
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, "b", l.At(1))
	last, ok := l.Last()
	assert.True(t, ok)
	assert.Equal(t, "c", last)

	assert.Equal(t, "b", l.RemoveAt(1))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "c", l.At(1))

	v, ok := l.Pop()
	assert.True(t, ok)
	assert.Equal(t, "c", v)
	assert.Equal(t, []string{"a"}, l.Reset())
	assert.Equal(t, 0, l.Len())
}
