package ffmpeg

import "C"

func bufferSize(maxBufferSize C.int) C.ulonglong {
	return C.ulonglong(maxBufferSize)
}
