package lensplay

import "time"

// StreamInfo describes the media
// opened by a source.
type StreamInfo struct {
	Codec     string
	Width     int
	Height    int
	FrameRate float64
	Duration  time.Duration
	// BitRate in bits per second,
	// zero when unknown.
	BitRate  int64
	HasAudio bool
	// Projection holds the lens geometry
	// declared by the source, nil when
	// the source has none.
	Projection *ProjectionParameters
}

// FrameDuration returns the time
// between two frames.
func (info StreamInfo) FrameDuration() time.Duration {
	if info.FrameRate <= 0 {
		return 0
	}

	return time.Duration(float64(time.Second) / info.FrameRate)
}

// Source demuxes and decodes the media.
//
// A source is not safe for concurrent use;
// the player serializes its calls.
type Source interface {
	Info() StreamInfo
	// ReadPacket returns the next packet.
	// ok is false at the end of the stream.
	ReadPacket() (pkt *Packet, ok bool, err error)
	// DecodeVideo feeds the packet to the decoder
	// and returns a decoded frame if one is ready.
	// A nil packet only collects the next frame
	// of the packet fed last; an end of stream
	// packet makes the decoder flush its delay.
	DecodeVideo(pkt *Packet, alloc FrameAllocator) (frame *Frame, ok bool, err error)
	// DecodeAudio works like DecodeVideo
	// for the audio stream.
	DecodeAudio(pkt *Packet) (frame *AudioFrame, ok bool, err error)
	// Seek moves the demuxer to the key frame at
	// or before target and resets the decoders.
	Seek(target time.Duration) error
	Close() error
}
