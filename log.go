package lensplay

import "github.com/rs/zerolog"

// Log field keys.
const (
	lBuffered = "buffered"
	lCapacity = "capacity"
	lCount    = "count"
	lFormat   = "format"
	lFrom     = "from"
	lHeight   = "height"
	lMode     = "mode"
	lPTS      = "pts"
	lQueue    = "queue"
	lSerial   = "serial"
	lStage    = "stage"
	lState    = "state"
	lTarget   = "target"
	lTo       = "to"
	lWidth    = "width"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log = zerolog.Nop()

// SetLogger routes the package logs
// to the given logger.
func SetLogger(logger zerolog.Logger) {
	log = logger.With().Str("pkg", "lensplay").Logger()
}
