package lensplay

import "time"

// StreamKind tells which elementary
// stream a packet belongs to.
type StreamKind int

const (
	StreamUnknown StreamKind = iota
	StreamVideo
	StreamAudio
)

// String returns the name of the stream kind.
func (kind StreamKind) String() string {
	switch kind {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Packet is a piece of encoded data
// acquired from the media container.
//
// The packet owns its payload. Once it
// has been handed to a queue the producer
// must not touch it anymore.
type Packet struct {
	StreamIndex int
	Kind        StreamKind
	PTS         time.Duration
	DTS         time.Duration
	Duration    time.Duration
	KeyFrame    bool
	// Serial is the playback generation
	// the packet was read in. Packets from
	// before a seek carry an old serial.
	Serial uint64
	// EndOfStream packets carry no data and
	// make the decoder return the frames it
	// still buffers.
	EndOfStream bool

	data []byte
}

// NewPacket wraps the encoded payload.
// The packet takes ownership of data.
func NewPacket(streamIndex int, kind StreamKind, data []byte) *Packet {
	return &Packet{
		StreamIndex: streamIndex,
		Kind:        kind,
		data:        data,
	}
}

// NewEndOfStream returns the packet
// draining the decoder of the stream.
func NewEndOfStream(kind StreamKind) *Packet {
	return &Packet{StreamIndex: -1, Kind: kind, EndOfStream: true}
}

// Data returns a copy of the data
// encoded in the packet.
func (pkt *Packet) Data() []byte {
	if pkt.data == nil {
		return nil
	}

	buf := make([]byte, len(pkt.data))
	copy(buf, pkt.data)

	return buf
}

// RawData returns the packet data
// slice directly without copying.
func (pkt *Packet) RawData() []byte {
	return pkt.data
}

// Size returns the size of the
// packet data.
func (pkt *Packet) Size() int {
	return len(pkt.data)
}

// Release drops the payload.
func (pkt *Packet) Release() {
	pkt.data = nil
}
