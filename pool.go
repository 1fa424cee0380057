package lensplay

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// DefaultPoolCapacity is the number of picture
// buffers of a pool sized for the default
// frame queue plus the frames in flight.
const DefaultPoolCapacity = DefaultVideoFrameCapacity + 4

// BufferID addresses a pool slot. The generation
// changes every time the slot is handed out,
// so a stale handle never aliases a new frame.
type BufferID struct {
	Index      int
	Generation uint32
}

// FrameAllocator hands out picture storage
// to a decoder.
type FrameAllocator interface {
	Acquire(format PixelFormat, width, height int) (*FrameBuffer, error)
}

// FrameBuffer is a handle to the storage
// of one pool slot.
type FrameBuffer struct {
	ID      BufferID
	Format  PixelFormat
	Width   int
	Height  int
	Planes  [][]byte
	Strides []int

	pool *FramePool
}

// Retain adds a reference to the buffer.
func (buf *FrameBuffer) Retain() error {
	return buf.pool.retain(buf.ID)
}

// Release drops a reference to the buffer.
// The slot is recycled with the last one.
func (buf *FrameBuffer) Release() error {
	return buf.pool.Release(buf)
}

// PoolStats counts the pool activity.
type PoolStats struct {
	Allocations int
	Reuses      int
	Retirements int
	InUse       int
}

type poolSlot struct {
	generation uint32
	refs       int
	format     PixelFormat
	width      int
	height     int
	planes     [][]byte
	strides    []int
}

func (slot *poolSlot) matches(format PixelFormat, width, height int) bool {
	return slot.planes != nil && slot.format == format &&
		slot.width == width && slot.height == height
}

// FramePool is a fixed capacity recycler
// of decoded picture storage.
type FramePool struct {
	mu      sync.Mutex
	slots   []poolSlot
	stats   PoolStats
	changed chan struct{}
}

// NewFramePool returns a pool of capacity
// slots. Storage is allocated on demand.
func NewFramePool(capacity int) *FramePool {
	if capacity < 1 {
		capacity = 1
	}

	return &FramePool{
		slots:   make([]poolSlot, capacity),
		changed: make(chan struct{}),
	}
}

// Capacity returns the number of slots.
func (pool *FramePool) Capacity() int {
	return len(pool.slots)
}

// Acquire returns a buffer with one reference.
//
// An idle slot already holding storage of the
// requested geometry is preferred, then an empty
// slot, then an idle slot of another geometry
// whose storage is retired and reallocated.
// ErrPoolExhausted is returned when every
// slot is referenced.
func (pool *FramePool) Acquire(format PixelFormat, width, height int) (*FrameBuffer, error) {
	if format.PlaneCount() == 0 || width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrUnsupportedPixelFormat,
			"%s %dx%d", format, width, height)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	index := -1
	empty, mismatched := -1, -1

	for i := range pool.slots {
		slot := &pool.slots[i]

		if slot.refs > 0 {
			continue
		}

		switch {
		case slot.matches(format, width, height):
			index = i
		case slot.planes == nil && empty < 0:
			empty = i
		case slot.planes != nil && mismatched < 0:
			mismatched = i
		}

		if index >= 0 {
			break
		}
	}

	switch {
	case index >= 0:
		pool.stats.Reuses++

	case empty >= 0:
		index = empty
		pool.allocate(&pool.slots[index], format, width, height)

	case mismatched >= 0:
		index = mismatched
		pool.stats.Retirements++
		log.Debug().Int(lWidth, width).Int(lHeight, height).
			Str(lFormat, format.String()).Msg("retiring frame buffer")
		pool.allocate(&pool.slots[index], format, width, height)

	default:
		return nil, ErrPoolExhausted
	}

	slot := &pool.slots[index]
	slot.generation++
	slot.refs = 1
	pool.stats.InUse++

	return &FrameBuffer{
		ID:      BufferID{Index: index, Generation: slot.generation},
		Format:  slot.format,
		Width:   slot.width,
		Height:  slot.height,
		Planes:  slot.planes,
		Strides: slot.strides,
		pool:    pool,
	}, nil
}

// AcquireContext is Acquire waiting for a
// release while the pool is exhausted.
func (pool *FramePool) AcquireContext(ctx context.Context, format PixelFormat, width, height int) (*FrameBuffer, error) {
	for {
		pool.mu.Lock()
		changed := pool.changed
		pool.mu.Unlock()

		buf, err := pool.Acquire(format, width, height)

		if !errors.Is(err, ErrPoolExhausted) {
			return buf, err
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release drops a reference to the buffer.
// Releasing a handle whose slot was recycled
// returns ErrStaleBuffer.
func (pool *FramePool) Release(buf *FrameBuffer) error {
	if buf == nil || buf.pool != pool {
		return ErrStaleBuffer
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	slot, err := pool.lookup(buf.ID)

	if err != nil {
		return err
	}

	slot.refs--

	if slot.refs == 0 {
		pool.stats.InUse--
		close(pool.changed)
		pool.changed = make(chan struct{})
	}

	return nil
}

func (pool *FramePool) retain(id BufferID) error {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	slot, err := pool.lookup(id)

	if err != nil {
		return err
	}

	slot.refs++

	return nil
}

func (pool *FramePool) lookup(id BufferID) (*poolSlot, error) {
	if id.Index < 0 || id.Index >= len(pool.slots) {
		return nil, ErrStaleBuffer
	}

	slot := &pool.slots[id.Index]

	if slot.generation != id.Generation || slot.refs == 0 {
		return nil, errors.Wrapf(ErrStaleBuffer,
			"slot %d generation %d", id.Index, id.Generation)
	}

	return slot, nil
}

// Stats returns a snapshot of the counters.
func (pool *FramePool) Stats() PoolStats {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	return pool.stats
}

func (pool *FramePool) allocate(slot *poolSlot, format PixelFormat, width, height int) {
	count := format.PlaneCount()
	slot.planes = make([][]byte, count)
	slot.strides = make([]int, count)

	for i := 0; i < count; i++ {
		stride, rows := format.PlaneGeometry(i, width, height)
		slot.planes[i] = make([]byte, stride*rows)
		slot.strides[i] = stride
	}

	slot.format = format
	slot.width = width
	slot.height = height
	pool.stats.Allocations++
}

// contextAllocator waits on an exhausted pool
// until the context is done.
type contextAllocator struct {
	ctx  context.Context
	pool *FramePool
}

func (alloc contextAllocator) Acquire(format PixelFormat, width, height int) (*FrameBuffer, error) {
	return alloc.pool.AcquireContext(alloc.ctx, format, width, height)
}
