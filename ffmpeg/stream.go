package ffmpeg

// #cgo pkg-config: libavformat libavcodec libavutil
// #include <string.h>
// #include <libavcodec/avcodec.h>
// #include <libavformat/avformat.h>
import "C"

import (
	"math"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/zimwip/lensplay"
)

// noPTS is AV_NOPTS_VALUE.
const noPTS = math.MinInt64

// baseStream holds the decoder of
// a media stream.
type baseStream struct {
	media       *Media
	inner       *C.AVStream
	index       int
	codecParams *C.AVCodecParameters
	codec       *C.AVCodec
	codecCtx    *C.AVCodecContext
	packet      *C.AVPacket
	frame       *C.AVFrame
	draining    bool
}

func newBaseStream(media *Media, inner *C.AVStream, index int) baseStream {
	return baseStream{
		media:       media,
		inner:       inner,
		index:       index,
		codecParams: inner.codecpar,
		codec:       C.avcodec_find_decoder(inner.codecpar.codec_id),
	}
}

// Index returns the index of the
// stream in the container.
func (stream *baseStream) Index() int {
	return stream.index
}

// CodecName returns the short
// name of the codec.
func (stream *baseStream) CodecName() string {
	if stream.codec == nil || stream.codec.name == nil {
		return ""
	}

	return C.GoString(stream.codec.name)
}

// FrameRate returns the average frame
// rate, zero when unknown.
func (stream *baseStream) FrameRate() float64 {
	rate := stream.inner.avg_frame_rate

	if rate.num == 0 || rate.den == 0 {
		rate = stream.inner.r_frame_rate
	}

	if rate.den == 0 {
		return 0
	}

	return float64(rate.num) / float64(rate.den)
}

// Duration returns the duration
// of the stream.
func (stream *baseStream) Duration() time.Duration {
	if int64(stream.inner.duration) == noPTS {
		return 0
	}

	return stream.span(int64(stream.inner.duration))
}

func (stream *baseStream) opened() bool {
	return stream.codecCtx != nil
}

func (stream *baseStream) startTime() int64 {
	start := int64(stream.inner.start_time)

	if start == noPTS {
		return 0
	}

	return start
}

// span converts a length in stream
// time base units.
func (stream *baseStream) span(ticks int64) time.Duration {
	tb := stream.inner.time_base

	if tb.den == 0 {
		return 0
	}

	return time.Duration(math.Round(float64(ticks) * float64(tb.num) *
		float64(time.Second) / float64(tb.den)))
}

// toDuration converts a stream timestamp
// to a position from the stream start.
func (stream *baseStream) toDuration(ts int64) time.Duration {
	if ts == noPTS {
		return 0
	}

	return stream.span(ts - stream.startTime())
}

// fromDuration converts a position back
// to a stream timestamp.
func (stream *baseStream) fromDuration(pos time.Duration) int64 {
	tb := stream.inner.time_base

	if tb.num == 0 {
		return noPTS
	}

	return int64(math.Round(float64(pos)*float64(tb.den)/
		(float64(tb.num)*float64(time.Second)))) + stream.startTime()
}

// open opens the decoder of the stream.
func (stream *baseStream) open() error {
	if stream.codec == nil {
		return errors.Errorf(
			"couldn't find a decoder for stream %d", stream.index)
	}

	stream.codecCtx = C.avcodec_alloc_context3(stream.codec)

	if stream.codecCtx == nil {
		return errors.New(
			"couldn't create a new codec context")
	}

	status := C.avcodec_parameters_to_context(stream.codecCtx, stream.codecParams)

	if status < 0 {
		return errors.Errorf(
			"%d: couldn't send codec parameters", status)
	}

	stream.codecCtx.pkt_timebase = stream.inner.time_base
	status = C.avcodec_open2(stream.codecCtx, stream.codec, nil)

	if status < 0 {
		return errors.Errorf(
			"%d: couldn't open the codec context", status)
	}

	stream.packet = C.av_packet_alloc()

	if stream.packet == nil {
		return errors.New(
			"couldn't allocate a new packet")
	}

	stream.frame = C.av_frame_alloc()

	if stream.frame == nil {
		return errors.New(
			"couldn't allocate a new frame")
	}

	log.Debug().Int(lStream, stream.index).Str(lCodec, stream.CodecName()).Msg("decoder opened")

	return nil
}

// send feeds the packet to the decoder. An end
// of stream packet starts draining it.
func (stream *baseStream) send(pkt *lensplay.Packet) error {
	if pkt.EndOfStream {
		if stream.draining {
			return nil
		}

		stream.draining = true
		status := C.avcodec_send_packet(stream.codecCtx, nil)

		if status < 0 && status != C.int(ErrorEndOfFile) {
			return errors.Errorf(
				"%d: couldn't drain the decoder", status)
		}

		return nil
	}

	data := pkt.RawData()

	if len(data) == 0 {
		return nil
	}

	status := C.av_new_packet(stream.packet, C.int(len(data)))

	if status < 0 {
		return errors.Errorf(
			"%d: couldn't allocate the packet data", status)
	}

	defer C.av_packet_unref(stream.packet)

	C.memcpy(unsafe.Pointer(stream.packet.data), unsafe.Pointer(&data[0]), C.size_t(len(data)))
	stream.packet.pts = C.int64_t(stream.fromDuration(pkt.PTS))
	stream.packet.dts = C.int64_t(stream.fromDuration(pkt.DTS))
	stream.packet.duration = C.int64_t(stream.fromDuration(pkt.Duration) - stream.startTime())
	stream.packet.stream_index = C.int(stream.index)

	if pkt.KeyFrame {
		stream.packet.flags |= C.AV_PKT_FLAG_KEY
	}

	status = C.avcodec_send_packet(stream.codecCtx, stream.packet)

	if status < 0 {
		return errors.Errorf(
			"%d: couldn't send the packet to the decoder", status)
	}

	return nil
}

// receive reads the next decoded frame into
// stream.frame. It returns false when the
// decoder needs more data or was drained.
func (stream *baseStream) receive() (bool, error) {
	status := C.avcodec_receive_frame(stream.codecCtx, stream.frame)

	switch {
	case status == C.int(ErrorAgain), status == C.int(ErrorEndOfFile):
		return false, nil
	case status < 0:
		return false, errors.Errorf(
			"%d: couldn't receive the frame", status)
	}

	return true, nil
}

// framePTS returns the position of
// the last received frame.
func (stream *baseStream) framePTS() time.Duration {
	return stream.toDuration(int64(stream.frame.best_effort_timestamp))
}

// flush drops the frames held by the decoder.
func (stream *baseStream) flush() {
	if stream.codecCtx == nil {
		return
	}

	C.avcodec_flush_buffers(stream.codecCtx)
	stream.draining = false
}

// close closes the decoder.
func (stream *baseStream) close() {
	if stream.frame != nil {
		C.av_frame_free(&stream.frame)
	}

	if stream.packet != nil {
		C.av_packet_free(&stream.packet)
	}

	if stream.codecCtx != nil {
		C.avcodec_free_context(&stream.codecCtx)
	}
}
