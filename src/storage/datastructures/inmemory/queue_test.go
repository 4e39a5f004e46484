package inmemory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()

	_, ok := q.Dequeue()
	require.False(t, ok)

	for i := range 5 {
		q.Enqueue(i)
	}
	assert.Equal(t, 5, q.Len())

	for i := range 5 {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueFilter(t *testing.T) {
	q := NewQueue[int]()
	for i := range 6 {
		q.Enqueue(i)
	}

	q.Filter(func(v int) bool { return v%2 == 1 })
	assert.Equal(t, 3, q.Len())

	q.Enqueue(10)

	got := make([]int, 0, 4)
	for q.Len() > 0 {
		v, _ := q.Dequeue()
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 3, 5, 10}, got)
}

func TestQueueDequeueFunc(t *testing.T) {
	q := NewQueue[int]()
	for _, v := range []int{4, 7, 9, 2} {
		q.Enqueue(v)
	}

	v, ok := q.DequeueFunc(func(v int) bool { return v > 5 })
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = q.DequeueFunc(func(v int) bool { return v > 100 })
	assert.False(t, ok)

	got := make([]int, 0, 3)
	for q.Len() > 0 {
		v, _ := q.Dequeue()
		got = append(got, v)
	}
	assert.Equal(t, []int{4, 9, 2}, got)
}
