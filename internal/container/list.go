package container

// List is ordered sequence with index addressing.
type List[T any] struct {
	items []T
}

func (l *List[T]) Len() int { return len(l.items) }

func (l *List[T]) Push(v T) { l.items = append(l.items, v) }

func (l *List[T]) At(i int) T { return l.items[i] }

// Last returns zero value and false when empty.
func (l *List[T]) Last() (T, bool) {
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	return l.items[len(l.items)-1], true
}

// Pop removes last element.
func (l *List[T]) Pop() (T, bool) {
	v, ok := l.Last()
	if ok {
		var zero T
		l.items[len(l.items)-1] = zero
		l.items = l.items[:len(l.items)-1]
	}
	return v, ok
}

// RemoveAt panics on index out of range.
func (l *List[T]) RemoveAt(i int) T {
	v := l.items[i]
	copy(l.items[i:], l.items[i+1:])
	var zero T
	l.items[len(l.items)-1] = zero
	l.items = l.items[:len(l.items)-1]
	return v
}

// Each stops when f returns false.
func (l *List[T]) Each(f func(int, T) bool) {
	for i, v := range l.items {
		if !f(i, v) {
			return
		}
	}
}

// Reset removes all elements and returns them in order.
func (l *List[T]) Reset() []T {
	items := l.items
	l.items = nil
	return items
}
