package lensplay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intQueue(capacity int, policy OverflowPolicy, released *[]int) *Queue[int] {
	var release func(int)

	if released != nil {
		release = func(v int) { *released = append(*released, v) }
	}

	return NewQueue(QueueConfig{Name: "test", Capacity: capacity, Policy: policy}, release)
}

func TestQueue_FIFO(t *testing.T) {
	queue := intQueue(4, OverflowReject, nil)

	for i := 1; i <= 3; i++ {
		require.True(t, queue.Push(i))
	}

	head, ok := queue.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, head)
	assert.Equal(t, 3, queue.Size())

	for want := 1; want <= 3; want++ {
		got, ok := queue.Pop(false, 0)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok = queue.Pop(false, 0)
	assert.False(t, ok)
}

func TestQueue_WrapsAround(t *testing.T) {
	queue := intQueue(3, OverflowReject, nil)
	next, want := 0, 0

	for round := 0; round < 10; round++ {
		for queue.Push(next) {
			next++
		}

		for i := 0; i < 2; i++ {
			got, ok := queue.Pop(false, 0)
			require.True(t, ok)
			require.Equal(t, want, got)
			want++
		}
	}
}

func TestQueue_OverflowPolicies(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		queue := intQueue(3, OverflowReject, nil)
		accepted := 0

		for i := 0; i < 5; i++ {
			if queue.Push(i) {
				accepted++
			}
		}

		assert.Equal(t, 3, accepted)
		assert.Equal(t, uint64(2), queue.Stats().Rejected)

		err := queue.PushContext(context.Background(), 9)
		assert.ErrorIs(t, err, ErrBackpressure)

		head, _ := queue.Peek()
		assert.Equal(t, 0, head)
	})

	t.Run("drop oldest", func(t *testing.T) {
		var released []int
		queue := intQueue(3, OverflowDropOldest, &released)

		for i := 0; i < 5; i++ {
			require.True(t, queue.Push(i))
		}

		assert.Equal(t, []int{0, 1}, released)
		assert.Equal(t, uint64(2), queue.Stats().Dropped)

		for want := 2; want < 5; want++ {
			got, ok := queue.Pop(false, 0)
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
	})

	t.Run("block", func(t *testing.T) {
		queue := intQueue(3, OverflowBlock, nil)

		for i := 0; i < 3; i++ {
			require.True(t, queue.Push(i))
		}

		pushed := make(chan error, 2)

		go func() {
			for i := 3; i < 5; i++ {
				pushed <- queue.PushContext(context.Background(), i)
			}
		}()

		select {
		case <-pushed:
			t.Fatal("push into a full queue returned")
		case <-time.After(20 * time.Millisecond):
		}

		var got []int

		for len(got) < 5 {
			v, err := queue.PopContext(context.Background())
			require.NoError(t, err)
			got = append(got, v)
		}

		assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
		require.NoError(t, <-pushed)
		require.NoError(t, <-pushed)
	})

	t.Run("block with max wait", func(t *testing.T) {
		queue := NewQueue[int](QueueConfig{Capacity: 1, MaxWait: 10 * time.Millisecond}, nil)
		require.True(t, queue.Push(1))

		err := queue.PushContext(context.Background(), 2)
		assert.ErrorIs(t, err, ErrBackpressure)
	})
}

func TestQueue_PushContextCancelled(t *testing.T) {
	queue := intQueue(1, OverflowBlock, nil)
	require.True(t, queue.Push(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, queue.PushContext(ctx, 2), context.DeadlineExceeded)
}

func TestQueue_Flush(t *testing.T) {
	var released []int
	queue := intQueue(4, OverflowReject, &released)

	for i := 0; i < 3; i++ {
		require.True(t, queue.Push(i))
	}

	serial := queue.Serial()

	assert.Equal(t, 3, queue.Flush())
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, []int{0, 1, 2}, released)
	assert.Equal(t, serial+1, queue.Serial())
	assert.Equal(t, 0, queue.Flush())
}

func TestQueue_FlushWakesBlockedProducer(t *testing.T) {
	queue := intQueue(1, OverflowBlock, nil)
	require.True(t, queue.Push(1))

	pushed := make(chan error, 1)

	go func() {
		pushed <- queue.PushContext(context.Background(), 2)
	}()

	time.Sleep(10 * time.Millisecond)
	queue.Flush()

	require.NoError(t, <-pushed)

	got, ok := queue.Pop(false, 0)
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestQueue_PushSerial(t *testing.T) {
	queue := intQueue(4, OverflowReject, nil)
	serial := queue.Serial()

	require.True(t, queue.PushSerial(1, serial))

	queue.Flush()

	assert.False(t, queue.PushSerial(2, serial))
	assert.ErrorIs(t, queue.PushSerialContext(context.Background(), 2, serial), ErrFlushed)
	assert.True(t, queue.PushSerial(3, queue.Serial()))
	assert.Equal(t, 1, queue.Size())
}

func TestQueue_Close(t *testing.T) {
	var released []int
	queue := intQueue(2, OverflowBlock, &released)
	require.True(t, queue.Push(1))

	queue.Close()
	queue.Close()

	assert.True(t, queue.Closed())
	assert.Equal(t, []int{1}, released)
	assert.False(t, queue.Push(2))

	_, err := queue.PopContext(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_CloseWakesConsumer(t *testing.T) {
	queue := intQueue(2, OverflowBlock, nil)
	popped := make(chan error, 1)

	go func() {
		_, err := queue.PopContext(context.Background())
		popped <- err
	}()

	time.Sleep(10 * time.Millisecond)
	queue.Close()

	assert.ErrorIs(t, <-popped, ErrQueueClosed)
}

func TestQueue_PopTimeout(t *testing.T) {
	queue := intQueue(2, OverflowBlock, nil)

	start := time.Now()
	_, ok := queue.Pop(true, 10*time.Millisecond)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestQueue_PopIf(t *testing.T) {
	queue := intQueue(4, OverflowReject, nil)
	require.True(t, queue.Push(5))
	require.True(t, queue.Push(10))

	below := func(limit int) func(int) bool {
		return func(v int) bool { return v <= limit }
	}

	_, ok := queue.PopIf(below(4))
	assert.False(t, ok)

	v, ok := queue.PopIf(below(7))
	require.True(t, ok)
	assert.Equal(t, 5, v)

	_, ok = queue.PopIf(below(7))
	assert.False(t, ok)
	assert.Equal(t, 1, queue.Size())
}

func TestQueue_InterleavedProducerConsumer(t *testing.T) {
	queue := intQueue(3, OverflowBlock, nil)
	const count = 1000

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := 0; i < count; i++ {
			if err := queue.PushContext(context.Background(), i); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for want := 0; want < count; want++ {
		got, err := queue.PopContext(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	wg.Wait()

	stats := queue.Stats()
	assert.Equal(t, uint64(count), stats.Pushed)
	assert.Equal(t, uint64(count), stats.Popped)
	assert.Equal(t, 0, stats.Len)
}

func TestQueue_TracksBytes(t *testing.T) {
	queue := NewPacketQueue(DefaultQueueConfig("packets", 4))

	pkt := NewPacket(0, StreamVideo, make([]byte, 100))
	require.True(t, queue.Push(pkt))
	require.True(t, queue.Push(NewPacket(0, StreamVideo, make([]byte, 50))))

	assert.Equal(t, 150, queue.Stats().Bytes)

	_, ok := queue.Pop(false, 0)
	require.True(t, ok)
	assert.Equal(t, 50, queue.Stats().Bytes)

	queue.Flush()
	assert.Equal(t, 0, queue.Stats().Bytes)
	assert.Equal(t, 100, pkt.Size())
}

func TestQueue_CapacityRaisedToOne(t *testing.T) {
	queue := intQueue(0, OverflowReject, nil)

	assert.Equal(t, 1, queue.Capacity())
	assert.True(t, queue.Push(1))
	assert.True(t, queue.IsFull())
}
