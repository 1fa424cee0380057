package ffmpeg

import "C"

func bufferSize(maxBufferSize C.int) C.ulong {
	return C.ulong(maxBufferSize)
}
