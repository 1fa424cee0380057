package ffmpeg

import "github.com/rs/zerolog"

// Log field keys.
const (
	lCodec  = "codec"
	lFormat = "format"
	lHeight = "height"
	lStream = "stream"
	lTarget = "target"
	lWidth  = "width"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log = zerolog.Nop()

// SetLogger routes the package logs
// to the given logger.
func SetLogger(logger zerolog.Logger) {
	log = logger.With().Str("pkg", "ffmpeg").Logger()
}
