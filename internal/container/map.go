// Package container has small generic ordered collections.
// Not safe for concurrent use, callers hold their own locks.
package container

// Map is keyed storage which remembers insertion order.
// Replacing a value keeps the original position.
type Map[K comparable, V any] struct {
	keys  []K
	index map[K]int
	vals  map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		index: make(map[K]int),
		vals:  make(map[K]V),
	}
}

func (m *Map[K, V]) Len() int { return len(m.keys) }

func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.vals[k]
	return v, ok
}

// Set returns previous value and true if k was present.
func (m *Map[K, V]) Set(k K, v V) (V, bool) {
	old, ok := m.vals[k]
	if !ok {
		m.index[k] = len(m.keys)
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
	return old, ok
}

// Delete returns removed value and true if k was present.
func (m *Map[K, V]) Delete(k K) (V, bool) {
	old, ok := m.vals[k]
	if !ok {
		return old, false
	}
	i := m.index[k]
	copy(m.keys[i:], m.keys[i+1:])
	m.keys = m.keys[:len(m.keys)-1]
	for j := i; j < len(m.keys); j++ {
		m.index[m.keys[j]] = j
	}
	delete(m.index, k)
	delete(m.vals, k)
	return old, true
}

func (m *Map[K, V]) Keys() []K {
	ks := make([]K, len(m.keys))
	copy(ks, m.keys)
	return ks
}

// Values returns fresh slice in insertion order.
func (m *Map[K, V]) Values() []V {
	vs := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		vs = append(vs, m.vals[k])
	}
	return vs
}

// Each stops when f returns false.
func (m *Map[K, V]) Each(f func(K, V) bool) {
	for _, k := range m.keys {
		if !f(k, m.vals[k]) {
			return
		}
	}
}

// Clear removes all entries and returns them in insertion order.
func (m *Map[K, V]) Clear() []V {
	vs := m.Values()
	m.keys = nil
	m.index = make(map[K]int)
	m.vals = make(map[K]V)
	return vs
}
