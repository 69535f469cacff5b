// Core media classification and memory alignment helpers.
package mediakit

import "runtime"

// Version of the mediakit library.
const Version = "0.3.0"

// MediaType classifies frames, codecs and tracks.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeAudio
	MediaTypeVideo
	MediaTypeData
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeData:
		return "data"
	default:
		return "unknown"
	}
}

// DefaultAlignment is the row alignment used for owned frame allocations.
// 32 bytes on amd64 (AVX2 vector width), 16 elsewhere.
var DefaultAlignment = func() int {
	if runtime.GOARCH == "amd64" {
		return 32
	}
	return 16
}()

// alignTo rounds v up to the next multiple of align. align must be a
// power of two.
func alignTo(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}

// ceilRshift shifts v right by s, rounding up.
func ceilRshift(v, s int) int {
	return (v + (1 << s) - 1) >> s
}
