// Package cache implements a bounded, reference-counted resource cache.
//
// A resource stays in memory while at least one Handle to it is alive. The
// last Release evicts it through the Backend. At most one Backend.Fetch per
// key is ever in flight: concurrent acquirers of the same key wait for the
// running fetch (or eviction) to finish and then retry.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Blackdeer1524/MiniDB/src/pkg/assert"
)

var ErrCacheFull = errors.New("cache is full")

// Backend moves resources between the cache and its backing store.
type Backend[T any] interface {
	// Fetch loads the resource for key. It runs without the cache lock held.
	Fetch(key uint64) (T, error)
	// Evict is called once the resource is no longer referenced, or when the
	// cache is closed.
	Evict(key uint64, obj T)
}

type Cache[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	resources map[uint64]T
	refs      map[uint64]int
	// keys with a fetch or an eviction in progress
	inflight map[uint64]struct{}

	// 0 means unbounded
	capacity int
	count    int

	backend Backend[T]
	metrics cacheMetrics
}

func New[T any](name string, capacity int, backend Backend[T]) *Cache[T] {
	assert.Assert(capacity >= 0, "negative cache capacity: %d", capacity)

	c := &Cache[T]{
		resources: map[uint64]T{},
		refs:      map[uint64]int{},
		inflight:  map[uint64]struct{}{},
		capacity:  capacity,
		backend:   backend,
		metrics:   newCacheMetrics(name),
	}
	c.cond = sync.NewCond(&c.mu)

	return c
}

// Acquire returns a handle to the resource under key, fetching it from the
// backend if needed. The handle must be released exactly once.
func (c *Cache[T]) Acquire(key uint64) (*Handle[T], error) {
	c.mu.Lock()
	for {
		if _, busy := c.inflight[key]; busy {
			c.cond.Wait()
			continue
		}

		if obj, ok := c.resources[key]; ok {
			c.refs[key]++
			c.mu.Unlock()

			c.metrics.hit()
			return newHandle(c, key, obj), nil
		}

		if c.capacity > 0 && c.count == c.capacity {
			c.mu.Unlock()
			return nil, ErrCacheFull
		}

		c.count++
		c.inflight[key] = struct{}{}
		break
	}
	c.mu.Unlock()

	c.metrics.miss()

	obj, err := c.backend.Fetch(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.cond.Broadcast()

	delete(c.inflight, key)
	if err != nil {
		c.count--
		return nil, err
	}

	c.resources[key] = obj
	c.refs[key] = 1

	return newHandle(c, key, obj), nil
}

func (c *Cache[T]) release(key uint64) {
	c.mu.Lock()

	refs, ok := c.refs[key]
	assert.Assert(ok && refs > 0, "releasing an unreferenced key %d", key)

	if refs > 1 {
		c.refs[key] = refs - 1
		c.mu.Unlock()
		return
	}

	obj := c.resources[key]
	delete(c.resources, key)
	delete(c.refs, key)
	// the key stays reserved until the backend is done with it, so a
	// concurrent Acquire can't read stale data from the backing store
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	c.backend.Evict(key, obj)

	c.mu.Lock()
	delete(c.inflight, key)
	c.count--
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Close evicts every cached resource regardless of its reference count.
// Handles still alive after Close must not be released.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	for len(c.inflight) > 0 {
		c.cond.Wait()
	}

	resources := c.resources
	c.resources = map[uint64]T{}
	c.refs = map[uint64]int{}
	c.count = 0
	c.mu.Unlock()

	for key, obj := range resources {
		c.backend.Evict(key, obj)
	}
}

// RefCount reports how many live handles reference key.
func (c *Cache[T]) RefCount(key uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refs[key]
}

// Len reports the number of cached resources, including reserved slots.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.count
}

// Handle is a counted reference to a cached resource.
type Handle[T any] struct {
	cache    *Cache[T]
	key      uint64
	obj      T
	released atomic.Bool
}

func newHandle[T any](c *Cache[T], key uint64, obj T) *Handle[T] {
	return &Handle[T]{cache: c, key: key, obj: obj}
}

func (h *Handle[T]) Value() T {
	assert.Assert(!h.released.Load(), "use of a released handle for key %d", h.key)
	return h.obj
}

func (h *Handle[T]) Key() uint64 {
	return h.key
}

// Release drops the reference. Only the first call has an effect, so it is
// safe to defer it and also release early.
func (h *Handle[T]) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}

	h.cache.release(h.key)
}

type cacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
	attrs  metric.MeasurementOption
}

func newCacheMetrics(name string) cacheMetrics {
	meter := otel.Meter("github.com/Blackdeer1524/MiniDB/src/cache")

	hits, err := meter.Int64Counter(
		"minidb.cache.hits",
		metric.WithDescription("acquires served from memory"),
	)
	assert.NoErrorf(err, "create cache hits counter")

	misses, err := meter.Int64Counter(
		"minidb.cache.misses",
		metric.WithDescription("acquires that went to the backend"),
	)
	assert.NoErrorf(err, "create cache misses counter")

	return cacheMetrics{
		hits:   hits,
		misses: misses,
		attrs:  metric.WithAttributes(attribute.String("cache", name)),
	}
}

func (m cacheMetrics) hit() {
	m.hits.Add(context.Background(), 1, m.attrs)
}

func (m cacheMetrics) miss() {
	m.misses.Add(context.Background(), 1, m.attrs)
}
