package ffmpeg

/*
#cgo pkg-config: libavformat libavcodec libavutil
#include <libavformat/avformat.h>
#include <libavformat/avio.h>
#include <stdlib.h>
#include <stdint.h>
#include <string.h>

// Forward declarations - these are implemented as Go exports below
int goReadPacket(void *opaque, uint8_t *buf, int buf_size);
int64_t goSeek(void *opaque, int64_t offset, int whence);

// C wrapper functions that FFmpeg will call
static int cReadPacket(void *opaque, uint8_t *buf, int buf_size) {
    return goReadPacket(opaque, buf, buf_size);
}

static int64_t cSeek(void *opaque, int64_t offset, int whence) {
    return goSeek(opaque, offset, whence);
}

// Helper to create AVIO context with our callbacks
// Takes size_t as opaque to avoid Go's unsafe.Pointer conversion warnings
static AVIOContext* createAVIOContext(size_t opaque, uint8_t *buffer, int buffer_size) {
    return avio_alloc_context(
        buffer,
        buffer_size,
        0,  // write_flag = 0 (read-only)
        (void*)opaque,
        cReadPacket,
        NULL,  // write callback
        cSeek
    );
}
*/
import "C"

import (
	"io"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// readerContext is a Go reader
// seen from the C callbacks.
type readerContext struct {
	reader io.ReadSeeker
	size   int64
}

// C callbacks can't hold Go pointers, so
// readers are looked up by an opaque id.
var (
	readerMu       sync.RWMutex
	readerRegistry = map[uintptr]*readerContext{}
	readerNextID   uintptr
)

func registerReader(r io.ReadSeeker, size int64) uintptr {
	readerMu.Lock()
	defer readerMu.Unlock()

	readerNextID++
	readerRegistry[readerNextID] = &readerContext{reader: r, size: size}

	return readerNextID
}

func unregisterReader(id uintptr) {
	readerMu.Lock()
	defer readerMu.Unlock()

	delete(readerRegistry, id)
}

func lookupReader(id uintptr) *readerContext {
	readerMu.RLock()
	defer readerMu.RUnlock()

	return readerRegistry[id]
}

//export goReadPacket
func goReadPacket(opaque unsafe.Pointer, buf *C.uint8_t, bufSize C.int) C.int {
	rc := lookupReader(uintptr(opaque))

	if rc == nil {
		return C.int(ErrorInvalidValue)
	}

	// The reader fills the C buffer directly.
	n, err := rc.reader.Read(unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(bufSize)))

	switch {
	case n > 0:
		return C.int(n)
	case err == io.EOF:
		return C.int(ErrorEndOfFile)
	case err != nil:
		log.Warn().Err(err).Msg("media read failed")
		return C.int(ErrorIO)
	}

	return C.int(ErrorAgain)
}

// avseekSize is AVSEEK_SIZE, FFmpeg
// asking for the stream size.
const avseekSize = 0x10000

//export goSeek
func goSeek(opaque unsafe.Pointer, offset C.int64_t, whence C.int) C.int64_t {
	rc := lookupReader(uintptr(opaque))

	if rc == nil {
		return -1
	}

	if int(whence)&avseekSize != 0 {
		return C.int64_t(rc.size)
	}

	pos, err := rc.reader.Seek(int64(offset), int(whence))

	if err != nil {
		return -1
	}

	return C.int64_t(pos)
}

// NewMediaFromReader opens the media read
// from an io.ReadSeeker. The reader's size is
// probed via Seek. The caller closes the
// reader after Media.Close().
func NewMediaFromReader(reader io.ReadSeeker) (*Media, error) {
	size, err := reader.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't seek to end")
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "couldn't seek to start")
	}

	id := registerReader(reader, size)

	ctx := C.avformat_alloc_context()
	if ctx == nil {
		unregisterReader(id)
		return nil, errors.New("couldn't create format context")
	}

	// 4KB is FFmpeg's recommended minimum.
	const ioBufferSize = 4096
	ioBuffer := C.av_malloc(ioBufferSize)
	if ioBuffer == nil {
		C.avformat_free_context(ctx)
		unregisterReader(id)
		return nil, errors.New("couldn't allocate IO buffer")
	}

	ioctx := C.createAVIOContext(
		C.size_t(id),
		(*C.uint8_t)(ioBuffer),
		ioBufferSize,
	)
	if ioctx == nil {
		C.av_free(ioBuffer)
		C.avformat_free_context(ctx)
		unregisterReader(id)
		return nil, errors.New("couldn't create AVIO context")
	}

	ctx.pb = ioctx
	status := C.avformat_open_input(&ctx, nil, nil, nil)
	if status < 0 {
		// The buffer may have been replaced by FFmpeg.
		C.av_free(unsafe.Pointer(ioctx.buffer))
		C.avio_context_free(&ioctx)
		unregisterReader(id)
		return nil, errors.Errorf("%d: couldn't open input", status)
	}

	media := &Media{
		ctx:      ctx,
		ioctx:    ioctx,
		readerID: id,
	}

	if err := media.findStreams(); err != nil {
		media.Close()
		return nil, err
	}

	return media, nil
}
