package lensplay

import "github.com/pkg/errors"

var (
	// ErrQueueClosed is returned by queue
	// operations once the queue was closed.
	ErrQueueClosed = errors.New("lensplay: queue closed")
	// ErrBackpressure is returned when a push
	// could not complete because the queue
	// is full. The producer should back off.
	ErrBackpressure = errors.New("lensplay: queue full")
	// ErrFlushed is returned when an item was
	// produced before the queue was flushed.
	ErrFlushed = errors.New("lensplay: queue flushed")

	ErrPoolExhausted = errors.New("lensplay: frame buffer pool exhausted")
	ErrStaleBuffer   = errors.New("lensplay: stale frame buffer")

	ErrUnsupportedPixelFormat = errors.New("lensplay: unsupported pixel format")
	ErrInvalidParameters      = errors.New("lensplay: invalid projection parameters")
	ErrShaderCompile          = errors.New("lensplay: shader compilation failed")
	ErrModeSuperseded         = errors.New("lensplay: mode request superseded")

	ErrDecode         = errors.New("lensplay: decode failed")
	ErrInvalidState   = errors.New("lensplay: invalid player state")
	ErrSeekSuperseded = errors.New("lensplay: seek superseded")
	ErrStopped        = errors.New("lensplay: playback stopped")
	ErrEndOfStream    = errors.New("lensplay: end of stream")
)
