package lensplay

import (
	"context"
	"sync"
	"time"
)

// OverflowPolicy decides what a push
// does when the queue is full.
type OverflowPolicy int

const (
	// OverflowBlock waits for room, up
	// to QueueConfig.MaxWait when set.
	OverflowBlock OverflowPolicy = iota
	// OverflowReject fails the push
	// with ErrBackpressure right away.
	OverflowReject
	// OverflowDropOldest evicts the head
	// of the queue to make room.
	OverflowDropOldest
)

// String returns the name of the policy.
func (policy OverflowPolicy) String() string {
	switch policy {
	case OverflowBlock:
		return "block"
	case OverflowReject:
		return "reject"
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// QueueConfig configures a bounded queue.
type QueueConfig struct {
	Name     string
	Capacity int
	Policy   OverflowPolicy
	// MaxWait bounds a blocking push.
	// Zero waits until room is made
	// or the queue is closed.
	MaxWait time.Duration
}

// Sizes of the queues between the pipeline stages.
const (
	DefaultVideoPacketCapacity = 256
	DefaultAudioPacketCapacity = 512
	DefaultVideoFrameCapacity  = 8
	DefaultAudioFrameCapacity  = 64
)

// DefaultQueueConfig returns a blocking
// queue configuration of the given size.
func DefaultQueueConfig(name string, capacity int) QueueConfig {
	return QueueConfig{
		Name:     name,
		Capacity: capacity,
		Policy:   OverflowBlock,
	}
}

// QueueStats counts what went
// through a queue.
type QueueStats struct {
	Pushed   uint64
	Popped   uint64
	Dropped  uint64
	Rejected uint64
	Flushed  uint64
	// Len is the number of items held.
	Len int
	// Bytes is the payload currently
	// held, for items with a Size method.
	Bytes int
}

type sizer interface {
	Size() int
}

// Queue is a bounded FIFO shared by
// one pipeline stage and the next.
//
// Items discarded by the queue itself
// (flush, close, drop-oldest) are passed
// to the release function so pooled
// storage goes back where it came from.
type Queue[T any] struct {
	config  QueueConfig
	release func(T)

	mu      sync.Mutex
	items   []T
	head    int
	count   int
	serial  uint64
	closed  bool
	changed chan struct{}
	stats   QueueStats
}

// PacketQueue carries encoded packets
// from the demuxer to a decoder.
type PacketQueue = Queue[*Packet]

// FrameQueue carries decoded pictures
// from the decoder to the renderer.
type FrameQueue = Queue[*Frame]

// NewQueue returns an empty queue. A capacity
// below one is raised to one.
func NewQueue[T any](config QueueConfig, release func(T)) *Queue[T] {
	if config.Capacity < 1 {
		config.Capacity = 1
	}

	return &Queue[T]{
		config:  config,
		release: release,
		items:   make([]T, config.Capacity),
		changed: make(chan struct{}),
	}
}

// NewPacketQueue returns a packet queue.
func NewPacketQueue(config QueueConfig) *PacketQueue {
	return NewQueue(config, (*Packet).Release)
}

// NewFrameQueue returns a frame queue handing
// discarded frames back to their pool.
func NewFrameQueue(config QueueConfig) *FrameQueue {
	return NewQueue(config, (*Frame).Release)
}

// Push appends the item. It returns false
// when the queue refused it: full under
// OverflowReject, wait expired, flushed
// meanwhile or closed. The caller keeps
// ownership of a refused item.
func (queue *Queue[T]) Push(item T) bool {
	return queue.push(context.Background(), item, 0, false) == nil
}

// PushContext is Push with cancellation
// and the reason of a refusal.
func (queue *Queue[T]) PushContext(ctx context.Context, item T) error {
	return queue.push(ctx, item, 0, false)
}

// PushSerial appends the item only if the
// queue was not flushed since Serial
// returned serial.
func (queue *Queue[T]) PushSerial(item T, serial uint64) bool {
	return queue.push(context.Background(), item, serial, true) == nil
}

// PushSerialContext is PushSerial with
// cancellation and the reason of a refusal.
func (queue *Queue[T]) PushSerialContext(ctx context.Context, item T, serial uint64) error {
	return queue.push(ctx, item, serial, true)
}

func (queue *Queue[T]) push(ctx context.Context, item T, serial uint64, checkSerial bool) error {
	var timer *time.Timer
	var expired <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	queue.mu.Lock()

	for {
		if queue.closed {
			queue.mu.Unlock()
			return ErrQueueClosed
		}

		if checkSerial && serial != queue.serial {
			queue.stats.Rejected++
			queue.mu.Unlock()
			return ErrFlushed
		}

		if queue.count < len(queue.items) {
			queue.enqueue(item)
			queue.mu.Unlock()
			return nil
		}

		switch queue.config.Policy {
		case OverflowReject:
			queue.stats.Rejected++
			queue.mu.Unlock()
			return ErrBackpressure

		case OverflowDropOldest:
			old := queue.dequeue()
			queue.stats.Dropped++
			queue.enqueue(item)
			queue.mu.Unlock()
			queue.discard(old)
			return nil
		}

		if timer == nil && queue.config.MaxWait > 0 {
			timer = time.NewTimer(queue.config.MaxWait)
			expired = timer.C
		}

		changed := queue.changed
		queue.mu.Unlock()

		select {
		case <-changed:
		case <-expired:
			queue.mu.Lock()
			queue.stats.Rejected++
			queue.mu.Unlock()
			return ErrBackpressure
		case <-ctx.Done():
			return ctx.Err()
		}

		queue.mu.Lock()
	}
}

// Pop removes the head of the queue.
//
// A non-blocking pop returns right away.
// A blocking pop waits up to timeout for
// an item, forever when timeout is zero,
// and gives up when the queue is closed.
func (queue *Queue[T]) Pop(block bool, timeout time.Duration) (T, bool) {
	if !block {
		queue.mu.Lock()
		defer queue.mu.Unlock()

		if queue.count == 0 {
			var zero T
			return zero, false
		}

		queue.stats.Popped++

		return queue.dequeue(), true
	}

	ctx := context.Background()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	item, err := queue.PopContext(ctx)

	return item, err == nil
}

// PopContext waits for the head of the queue
// until the context is done or the queue closed.
func (queue *Queue[T]) PopContext(ctx context.Context) (T, error) {
	var zero T

	queue.mu.Lock()

	for {
		if queue.count > 0 {
			queue.stats.Popped++
			item := queue.dequeue()
			queue.mu.Unlock()
			return item, nil
		}

		if queue.closed {
			queue.mu.Unlock()
			return zero, ErrQueueClosed
		}

		changed := queue.changed
		queue.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return zero, ctx.Err()
		}

		queue.mu.Lock()
	}
}

// Peek returns the head of the
// queue without removing it.
func (queue *Queue[T]) Peek() (T, bool) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	if queue.count == 0 {
		var zero T
		return zero, false
	}

	return queue.items[queue.head], true
}

// PopIf removes the head of the queue
// if it satisfies ready. It never blocks.
func (queue *Queue[T]) PopIf(ready func(T) bool) (T, bool) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	var zero T

	if queue.count == 0 || !ready(queue.items[queue.head]) {
		return zero, false
	}

	queue.stats.Popped++

	return queue.dequeue(), true
}

// Flush discards every queued item, bumps
// the serial and wakes blocked producers.
// It returns the number of discarded items.
func (queue *Queue[T]) Flush() int {
	queue.mu.Lock()
	items := queue.drain()
	queue.serial++
	queue.stats.Flushed += uint64(len(items))
	queue.notify()
	queue.mu.Unlock()

	for _, item := range items {
		queue.discard(item)
	}

	if len(items) > 0 {
		log.Debug().Str(lQueue, queue.config.Name).Int(lCount, len(items)).Msg("queue flushed")
	}

	return len(items)
}

// Close flushes the queue and makes every
// pending and future operation fail.
func (queue *Queue[T]) Close() {
	queue.mu.Lock()

	if queue.closed {
		queue.mu.Unlock()
		return
	}

	items := queue.drain()
	queue.closed = true
	queue.serial++
	queue.stats.Flushed += uint64(len(items))
	queue.notify()
	queue.mu.Unlock()

	for _, item := range items {
		queue.discard(item)
	}
}

// Size returns the number of queued items.
func (queue *Queue[T]) Size() int {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	return queue.count
}

// IsFull reports whether a push
// would hit the overflow policy.
func (queue *Queue[T]) IsFull() bool {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	return queue.count == len(queue.items)
}

// Capacity returns the maximum
// number of queued items.
func (queue *Queue[T]) Capacity() int {
	return len(queue.items)
}

// Serial returns the number of
// flushes the queue went through.
func (queue *Queue[T]) Serial() uint64 {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	return queue.serial
}

// Closed reports whether Close was called.
func (queue *Queue[T]) Closed() bool {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	return queue.closed
}

// Stats returns a snapshot of the counters.
func (queue *Queue[T]) Stats() QueueStats {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	stats := queue.stats
	stats.Len = queue.count

	return stats
}

// Config returns the queue configuration.
func (queue *Queue[T]) Config() QueueConfig {
	return queue.config
}

func (queue *Queue[T]) enqueue(item T) {
	tail := (queue.head + queue.count) % len(queue.items)
	queue.items[tail] = item
	queue.count++
	queue.stats.Pushed++

	if s, ok := any(item).(sizer); ok {
		queue.stats.Bytes += s.Size()
	}

	queue.notify()
}

func (queue *Queue[T]) dequeue() T {
	var zero T

	item := queue.items[queue.head]
	queue.items[queue.head] = zero
	queue.head = (queue.head + 1) % len(queue.items)
	queue.count--

	if s, ok := any(item).(sizer); ok {
		queue.stats.Bytes -= s.Size()
	}

	queue.notify()

	return item
}

func (queue *Queue[T]) drain() []T {
	if queue.count == 0 {
		return nil
	}

	var zero T
	items := make([]T, 0, queue.count)

	for queue.count > 0 {
		items = append(items, queue.items[queue.head])
		queue.items[queue.head] = zero
		queue.head = (queue.head + 1) % len(queue.items)
		queue.count--
	}

	queue.head = 0
	queue.stats.Bytes = 0

	return items
}

// notify wakes every waiter. Must be
// called with the lock held.
func (queue *Queue[T]) notify() {
	close(queue.changed)
	queue.changed = make(chan struct{})
}

func (queue *Queue[T]) discard(item T) {
	if queue.release != nil {
		queue.release(item)
	}
}
