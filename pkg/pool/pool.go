// Package pool provides typed object pooling for the write path: request
// buffers of the wire client and statement argument slices of SQL stores.
//
// Example usage:
//
//	args := pool.New(
//	    func() []any { return make([]any, 0, 1024) },
//	    nil,
//	)
//	a := args.Get()
//	defer args.Put(a[:0])
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a type-safe wrapper of sync.Pool with usage statistics. The pool
// is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated atomic.Int64
		inUse     atomic.Int64
		gets      atomic.Int64
	}
}

// New creates a pool. newFn allocates when the pool is empty; reset, when
// non-nil, runs on every Put.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		p.stats.allocated.Add(1)
		return newFn()
	}
	return p
}

// Get retrieves an object, allocating one when the pool is empty.
func (p *Pool[T]) Get() T {
	p.stats.inUse.Add(1)
	p.stats.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns obj to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.stats.inUse.Add(-1)
	p.pool.Put(obj)
}

// Stats returns the number of objects ever allocated, the number checked
// out, and the number of Get calls.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return p.stats.allocated.Load(), p.stats.inUse.Load(), p.stats.gets.Load()
}

// BufferPool pools byte slices in power-of-4 size buckets from 4KB to
// 64MB. Larger requests are allocated directly.
type BufferPool struct {
	pools []*Pool[*[]byte]
	sizes []int
}

// NewBufferPool creates a buffer pool.
func NewBufferPool() *BufferPool {
	sizes := []int{
		4 << 10,  // 4KB
		16 << 10, // 16KB
		64 << 10, // 64KB
		256 << 10,
		1 << 20, // 1MB
		4 << 20,
		16 << 20,
		64 << 20,
	}
	pools := make([]*Pool[*[]byte], len(sizes))
	for i, size := range sizes {
		size := size
		pools[i] = New(func() *[]byte {
			b := make([]byte, 0, size)
			return &b
		}, nil)
	}
	return &BufferPool{pools: pools, sizes: sizes}
}

// Get returns an empty buffer with capacity of at least size.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			return (*p.pools[i].Get())[:0]
		}
	}
	return make([]byte, 0, size)
}

// Put returns buf to the bucket matching its capacity. Buffers that grew
// past their bucket go to the largest bucket they still fill.
func (p *BufferPool) Put(buf []byte) {
	c := cap(buf)
	for i := len(p.sizes) - 1; i >= 0; i-- {
		if c >= p.sizes[i] {
			b := buf[:0]
			p.pools[i].Put(&b)
			return
		}
	}
}

// Buffers is the process-wide buffer pool.
var Buffers = NewBufferPool()
