package ffmpeg

// #cgo pkg-config: libavutil libavformat libavcodec libswscale
// #include <libavcodec/avcodec.h>
// #include <libavformat/avformat.h>
// #include <libavutil/avutil.h>
// #include <libavutil/imgutils.h>
// #include <libswscale/swscale.h>
// #include <inttypes.h>
//
// // Remap deprecated YUVJ pixel formats to standard YUV equivalents.
// // Returns 1 if the format was remapped (caller should set full color range).
// static int normalizePixFmt(enum AVPixelFormat *fmt) {
//     switch (*fmt) {
//     case AV_PIX_FMT_YUVJ420P: *fmt = AV_PIX_FMT_YUV420P; return 1;
//     case AV_PIX_FMT_YUVJ422P: *fmt = AV_PIX_FMT_YUV422P; return 1;
//     case AV_PIX_FMT_YUVJ444P: *fmt = AV_PIX_FMT_YUV444P; return 1;
//     case AV_PIX_FMT_YUVJ440P: *fmt = AV_PIX_FMT_YUV440P; return 1;
//     default: return 0;
//     }
// }
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/zimwip/lensplay"
)

// VideoStream decodes the video frames into
// pooled buffers. 4:2:0 planar and NV12 frames
// are copied as they are; every other format
// is converted to RGBA.
type VideoStream struct {
	baseStream
	swsCtx    *C.struct_SwsContext
	rgbaFrame *C.AVFrame
	bufSize   C.int
	// Geometry the SWS context was created for.
	swsWidth  C.int
	swsHeight C.int
	swsFormat C.int
}

// Width returns the width of the video
// stream frame.
func (video *VideoStream) Width() int {
	return int(video.codecParams.width)
}

// Height returns the height of the video
// stream frame.
func (video *VideoStream) Height() int {
	return int(video.codecParams.height)
}

// AspectRatio returns the fraction of the video
// stream frame aspect ratio (1/0 if unknown).
func (video *VideoStream) AspectRatio() (int, int) {
	return int(video.codecParams.sample_aspect_ratio.num),
		int(video.codecParams.sample_aspect_ratio.den)
}

// Open opens the video stream for decoding.
func (video *VideoStream) Open() error {
	return video.open()
}

// Decode feeds the packet to the decoder, nil
// to collect a pending frame, and returns the
// next decoded frame if one is ready.
func (video *VideoStream) Decode(pkt *lensplay.Packet, alloc lensplay.FrameAllocator) (*lensplay.Frame, bool, error) {
	if pkt != nil {
		if err := video.send(pkt); err != nil {
			return nil, false, err
		}
	}

	for {
		ok, err := video.receive()

		if err != nil || !ok {
			return nil, false, err
		}

		// Some image codecs return
		// frames without pixel data.
		if video.frame.data[0] != nil {
			break
		}
	}

	defer C.av_frame_unref(video.frame)

	width, height := int(video.frame.width), int(video.frame.height)
	format := lensplay.PixelFormatRGBA

	switch video.frame.format {
	case C.AV_PIX_FMT_YUV420P:
		format = lensplay.PixelFormatI420
	case C.AV_PIX_FMT_NV12:
		format = lensplay.PixelFormatNV12
	}

	buf, err := alloc.Acquire(format, width, height)

	if err != nil {
		return nil, false, err
	}

	if format == lensplay.PixelFormatRGBA {
		err = video.convert(buf)
	} else {
		video.copyPlanes(buf)
	}

	if err != nil {
		_ = buf.Release()
		return nil, false, err
	}

	frame := lensplay.NewFrame(buf, video.framePTS(), frameDuration(video.FrameRate()))

	return frame, true, nil
}

// copyPlanes copies the decoded planes
// row by row into the buffer.
func (video *VideoStream) copyPlanes(buf *lensplay.FrameBuffer) {
	for i := range buf.Planes {
		rowBytes, rows := buf.Format.PlaneGeometry(i, buf.Width, buf.Height)
		linesize := int(video.frame.linesize[i])
		src := unsafe.Slice((*byte)(unsafe.Pointer(video.frame.data[i])), linesize*(rows-1)+rowBytes)
		dst, stride := buf.Planes[i], buf.Strides[i]

		for y := 0; y < rows; y++ {
			copy(dst[y*stride:y*stride+rowBytes], src[y*linesize:y*linesize+rowBytes])
		}
	}
}

// convert scales the decoded frame
// to RGBA into the buffer.
func (video *VideoStream) convert(buf *lensplay.FrameBuffer) error {
	if err := video.ensureSws(); err != nil {
		return err
	}

	C.sws_scale(video.swsCtx, &video.frame.data[0],
		&video.frame.linesize[0], 0,
		video.frame.height,
		&video.rgbaFrame.data[0],
		&video.rgbaFrame.linesize[0])

	rowBytes := buf.Width * 4
	linesize := int(video.rgbaFrame.linesize[0])
	src := unsafe.Slice((*byte)(unsafe.Pointer(video.rgbaFrame.data[0])), int(video.bufSize))

	for y := 0; y < buf.Height; y++ {
		copy(buf.Planes[0][y*buf.Strides[0]:y*buf.Strides[0]+rowBytes], src[y*linesize:y*linesize+rowBytes])
	}

	return nil
}

// ensureSws creates the SWS context and the RGBA
// frame for the geometry of the decoded frame.
func (video *VideoStream) ensureSws() error {
	frame := video.frame

	if video.swsCtx != nil && video.swsWidth == frame.width &&
		video.swsHeight == frame.height && video.swsFormat == frame.format {
		return nil
	}

	video.freeSws()

	srcFmt := C.enum_AVPixelFormat(frame.format)
	fullRange := C.normalizePixFmt(&srcFmt)

	video.swsCtx = C.sws_getContext(frame.width, frame.height, srcFmt,
		frame.width, frame.height, C.AV_PIX_FMT_RGBA,
		C.SWS_BICUBIC, nil, nil, nil)

	if video.swsCtx == nil {
		return errors.New("couldn't create an SWS context")
	}

	if fullRange != 0 {
		// Set source color range to full (JPEG-style 0-255)
		var invTable *C.int
		var table *C.int
		var srcRange, dstRange, brightness, contrast, saturation C.int
		C.sws_getColorspaceDetails(video.swsCtx, &invTable, &srcRange, &table, &dstRange, &brightness, &contrast, &saturation)
		C.sws_setColorspaceDetails(video.swsCtx, invTable, 1, table, dstRange, brightness, contrast, saturation)
	}

	video.rgbaFrame = C.av_frame_alloc()

	if video.rgbaFrame == nil {
		return errors.New(
			"couldn't allocate a new RGBA frame")
	}

	video.bufSize = C.av_image_get_buffer_size(
		C.AV_PIX_FMT_RGBA, frame.width, frame.height, 1)

	if video.bufSize < 0 {
		return errors.Errorf(
			"%d: couldn't get the buffer size", video.bufSize)
	}

	// Allocate with extra padding: sws_scale SIMD
	// routines can write past the last scanline.
	rgba := (*C.uint8_t)(unsafe.Pointer(
		C.av_malloc(bufferSize(video.bufSize) + 64)))

	if rgba == nil {
		return errors.New(
			"couldn't allocate an AV buffer")
	}

	status := C.av_image_fill_arrays(&video.rgbaFrame.data[0],
		&video.rgbaFrame.linesize[0], rgba, C.AV_PIX_FMT_RGBA,
		frame.width, frame.height, 1)

	if status < 0 {
		C.av_free(unsafe.Pointer(rgba))
		return errors.Errorf(
			"%d: couldn't fill the image arrays", status)
	}

	video.swsWidth, video.swsHeight, video.swsFormat = frame.width, frame.height, frame.format

	log.Debug().Int(lWidth, int(frame.width)).Int(lHeight, int(frame.height)).
		Int(lFormat, int(frame.format)).Msg("converting to rgba")

	return nil
}

func (video *VideoStream) freeSws() {
	if video.rgbaFrame != nil {
		if video.rgbaFrame.data[0] != nil {
			C.av_free(unsafe.Pointer(video.rgbaFrame.data[0]))
		}

		C.av_frame_free(&video.rgbaFrame)
	}

	if video.swsCtx != nil {
		C.sws_freeContext(video.swsCtx)
		video.swsCtx = nil
	}
}

// Close closes the video stream for decoding.
func (video *VideoStream) Close() {
	video.freeSws()
	video.close()
}
