package ffmpeg

// #cgo pkg-config: libavformat libavcodec libavutil
// #include <stdlib.h>
// #include <string.h>
// #include <libavcodec/avcodec.h>
// #include <libavformat/avformat.h>
// #include <libavformat/avio.h>
import "C"

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/zimwip/lensplay"
)

// TimeBase is the time base of the
// container timestamps, in ticks per second.
const TimeBase = 1000000

// Media is an opened media container
// with its best video and audio streams.
type Media struct {
	ctx      *C.AVFormatContext
	ioctx    *C.AVIOContext
	readerID uintptr // registry key for custom reader (0 if file-based)
	packet   *C.AVPacket
	video    *VideoStream
	audio    *AudioStream
}

// NewMedia opens the media file.
// https://ffmpeg.org/doxygen/trunk/doc_2examples_2avio_reading_8c-example.html
func NewMedia(filename string) (*Media, error) {
	media := &Media{
		ctx: C.avformat_alloc_context(),
	}

	if media.ctx == nil {
		return nil, errors.New(
			"couldn't create a new media context")
	}

	fname := C.CString(filename)
	defer C.free(unsafe.Pointer(fname))
	status := C.avformat_open_input(&media.ctx, fname, nil, nil)

	if status < 0 {
		// avformat_open_input frees ctx on failure.
		return nil, errors.Errorf(
			"%d: couldn't open file %s", status, filename)
	}

	if err := media.findStreams(); err != nil {
		media.Close()
		return nil, err
	}

	return media, nil
}

// findStreams picks the streams to decode.
func (media *Media) findStreams() error {
	status := C.avformat_find_stream_info(media.ctx, nil)

	if status < 0 {
		return errors.Errorf(
			"%d: couldn't find stream information", status)
	}

	media.packet = C.av_packet_alloc()

	if media.packet == nil {
		return errors.New(
			"couldn't allocate a new packet")
	}

	streams := unsafe.Slice(media.ctx.streams, media.ctx.nb_streams)

	if index := C.av_find_best_stream(media.ctx, C.AVMEDIA_TYPE_VIDEO, -1, -1, nil, 0); index >= 0 {
		media.video = &VideoStream{baseStream: newBaseStream(media, streams[index], int(index))}
	}

	if index := C.av_find_best_stream(media.ctx, C.AVMEDIA_TYPE_AUDIO, -1, -1, nil, 0); index >= 0 {
		media.audio = &AudioStream{baseStream: newBaseStream(media, streams[index], int(index))}
	}

	if media.video == nil {
		return errors.New("couldn't find a video stream")
	}

	return nil
}

// StreamCount returns the number of streams.
func (media *Media) StreamCount() int {
	return int(media.ctx.nb_streams)
}

// VideoStream returns the decoded video stream.
func (media *Media) VideoStream() *VideoStream {
	return media.video
}

// AudioStream returns the decoded audio
// stream, nil when the media has none.
func (media *Media) AudioStream() *AudioStream {
	return media.audio
}

// Duration returns the overall duration
// of the media file.
func (media *Media) Duration() time.Duration {
	dur := media.ctx.duration

	if dur <= 0 {
		return 0
	}

	return time.Duration(int64(dur) * int64(time.Second) / TimeBase)
}

// BitRate returns the total bit rate,
// zero when unknown.
func (media *Media) BitRate() int64 {
	return int64(media.ctx.bit_rate)
}

// FormatName returns the name of the media format.
func (media *Media) FormatName() string {
	if media.ctx.iformat.name == nil {
		return ""
	}

	return C.GoString(media.ctx.iformat.name)
}

// ReadPacket reads the next packet of the
// decoded streams. Packets of the other
// streams are skipped.
func (media *Media) ReadPacket() (*lensplay.Packet, bool, error) {
	for {
		status := C.av_read_frame(media.ctx, media.packet)

		if status < 0 {
			if status == C.int(ErrorAgain) {
				continue
			}

			if status == C.int(ErrorEndOfFile) {
				return nil, false, nil
			}

			return nil, false, errors.Errorf(
				"%d: couldn't read a packet", status)
		}

		pkt := media.convertPacket(media.packet)
		C.av_packet_unref(media.packet)

		if pkt != nil {
			return pkt, true, nil
		}
	}
}

// convertPacket copies the packet out of the
// C memory, nil when its stream is not decoded.
func (media *Media) convertPacket(cPkt *C.AVPacket) *lensplay.Packet {
	var stream *baseStream
	var kind lensplay.StreamKind

	switch index := int(cPkt.stream_index); {
	case media.video != nil && index == media.video.index:
		stream, kind = &media.video.baseStream, lensplay.StreamVideo
	case media.audio != nil && media.audio.opened() && index == media.audio.index:
		stream, kind = &media.audio.baseStream, lensplay.StreamAudio
	default:
		return nil
	}

	var data []byte

	if cPkt.data != nil && cPkt.size > 0 {
		data = C.GoBytes(unsafe.Pointer(cPkt.data), cPkt.size)
	}

	pts := int64(cPkt.pts)

	if pts == noPTS {
		pts = int64(cPkt.dts)
	}

	pkt := lensplay.NewPacket(int(cPkt.stream_index), kind, data)
	pkt.PTS = stream.toDuration(pts)
	pkt.DTS = stream.toDuration(int64(cPkt.dts))
	pkt.Duration = stream.span(int64(cPkt.duration))
	pkt.KeyFrame = cPkt.flags&C.AV_PKT_FLAG_KEY != 0

	return pkt
}

// Seek moves to the key frame at or before
// target and resets the decoders.
func (media *Media) Seek(target time.Duration) error {
	ts := C.int64_t(int64(target) / (int64(time.Second) / TimeBase))

	if start := media.ctx.start_time; int64(start) != noPTS {
		ts += start
	}

	status := C.av_seek_frame(media.ctx, -1, ts, C.AVSEEK_FLAG_BACKWARD)

	if status < 0 {
		return errors.Errorf(
			"%d: couldn't seek to %s", status, target)
	}

	media.video.flush()

	if media.audio != nil {
		media.audio.flush()
	}

	log.Debug().Dur(lTarget, target).Msg("media seek")

	return nil
}

// Close closes the streams and
// the media container.
func (media *Media) Close() {
	if media.ctx == nil {
		return
	}

	if media.video != nil {
		media.video.Close()
	}

	if media.audio != nil {
		media.audio.Close()
	}

	if media.packet != nil {
		C.av_packet_free(&media.packet)
	}

	// avformat_close_input frees the context
	// but never a custom AVIO context.
	C.avformat_close_input(&media.ctx)

	if media.ioctx != nil {
		if media.ioctx.buffer != nil {
			C.av_free(unsafe.Pointer(media.ioctx.buffer))
		}

		C.avio_context_free(&media.ioctx)
	}

	if media.readerID != 0 {
		unregisterReader(media.readerID)
		media.readerID = 0
	}

	media.ctx = nil
}
