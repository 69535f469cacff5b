package mediakit

import (
	"github.com/rs/zerolog"
)

// Logger is used by long-running components (device manager, pipelines,
// format writers). It discards everything by default so the library stays
// silent; embedding applications install their own:
//
//	mediakit.Logger = log.With().Str("comp", "mediakit").Logger()
var Logger = zerolog.Nop()

// SetLogger replaces the package logger.
func SetLogger(l zerolog.Logger) {
	Logger = l
}
