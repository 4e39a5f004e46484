package inmemory

// Queue is an unbounded FIFO queue. It is not safe for concurrent use.
type Queue[T any] struct {
	data []T
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		data: make([]T, 0),
	}
}

func (q *Queue[T]) Enqueue(v T) {
	q.data = append(q.data, v)
}

func (q *Queue[T]) Dequeue() (T, bool) {
	if len(q.data) == 0 {
		var zero T
		return zero, false
	}

	element := q.data[0]
	q.data = q.data[1:]

	return element, true
}

func (q *Queue[T]) Len() int {
	return len(q.data)
}

// Filter drops every element for which keep returns false, preserving the
// order of the rest.
func (q *Queue[T]) Filter(keep func(T) bool) {
	kept := q.data[:0]
	for _, v := range q.data {
		if keep(v) {
			kept = append(kept, v)
		}
	}

	clear(q.data[len(kept):])
	q.data = kept
}

// DequeueFunc removes and returns the first element match accepts.
func (q *Queue[T]) DequeueFunc(match func(T) bool) (T, bool) {
	for i, v := range q.data {
		if match(v) {
			q.data = append(q.data[:i], q.data[i+1:]...)
			return v, true
		}
	}

	var zero T
	return zero, false
}
