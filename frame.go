package lensplay

import (
	"sync/atomic"
	"time"
)

// PixelFormat is the memory layout
// of a decoded picture.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	// PixelFormatI420 is planar YUV 4:2:0:
	// a full size Y plane followed by
	// quarter size U and V planes.
	PixelFormatI420
	// PixelFormatNV12 is semi-planar YUV 4:2:0:
	// a Y plane and one interleaved UV plane.
	PixelFormatNV12
	// PixelFormatRGBA is packed 8-bit RGBA.
	PixelFormatRGBA
)

// String returns the name of the pixel format.
func (format PixelFormat) String() string {
	switch format {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "unknown"
	}
}

// PlaneCount returns the number of
// planes of the format.
func (format PixelFormat) PlaneCount() int {
	switch format {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	case PixelFormatRGBA:
		return 1
	default:
		return 0
	}
}

// PlaneGeometry returns the tightly packed
// stride and row count of the plane i
// for a picture of the given size.
func (format PixelFormat) PlaneGeometry(i, width, height int) (stride, rows int) {
	cw, ch := (width+1)/2, (height+1)/2

	switch {
	case format == PixelFormatRGBA && i == 0:
		return width * 4, height
	case (format == PixelFormatI420 || format == PixelFormatNV12) && i == 0:
		return width, height
	case format == PixelFormatI420 && (i == 1 || i == 2):
		return cw, ch
	case format == PixelFormatNV12 && i == 1:
		return cw * 2, ch
	default:
		return 0, 0
	}
}

// Frame is a decoded picture ready to
// be uploaded to the GPU.
//
// The planes are borrowed from a pooled
// FrameBuffer when the frame was built
// with NewFrame. Release hands them back.
type Frame struct {
	PTS      time.Duration
	Duration time.Duration
	// Serial is the playback generation
	// of the packet the frame was decoded from.
	Serial  uint64
	Format  PixelFormat
	Width   int
	Height  int
	Planes  [][]byte
	Strides []int

	buf      *FrameBuffer
	released atomic.Bool
}

// NewFrame returns a frame backed by the
// storage of the pooled buffer.
func NewFrame(buf *FrameBuffer, pts, duration time.Duration) *Frame {
	return &Frame{
		PTS:      pts,
		Duration: duration,
		Format:   buf.Format,
		Width:    buf.Width,
		Height:   buf.Height,
		Planes:   buf.Planes,
		Strides:  buf.Strides,
		buf:      buf,
	}
}

// Buffer returns the pooled buffer backing
// the frame, nil for frames owning their planes.
func (frame *Frame) Buffer() *FrameBuffer {
	return frame.buf
}

// Size returns the number of bytes
// held by the planes.
func (frame *Frame) Size() int {
	size := 0

	for _, plane := range frame.Planes {
		size += len(plane)
	}

	return size
}

// Release hands the planes back to the pool.
// Calling it more than once is a no-op.
func (frame *Frame) Release() {
	if frame == nil || !frame.released.CompareAndSwap(false, true) {
		return
	}

	if frame.buf != nil {
		if err := frame.buf.Release(); err != nil {
			log.Warn().Err(err).Dur(lPTS, frame.PTS).Msg("frame buffer release")
		}
	}

	frame.Planes = nil
}

// AudioFrame is a chunk of decoded audio
// as interleaved stereo float samples.
type AudioFrame struct {
	PTS     time.Duration
	Serial  uint64
	Samples []float32
}

// Size returns the size of the
// samples in bytes.
func (frame *AudioFrame) Size() int {
	return len(frame.Samples) * 4
}
