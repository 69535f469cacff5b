// Codec identifiers and codec-level metadata.
package mediakit

import "fmt"

// CodecID identifies a codec. The high 16 bits carry the MediaType so
// audio and video identifiers never collide.
type CodecID uint32

// CodecIDNone is the zero CodecID, meaning no codec.
const CodecIDNone CodecID = 0

// Audio codecs.
const (
	CodecIDMP1 CodecID = CodecID(MediaTypeAudio)<<16 + 1 + CodecID(iota)
	CodecIDMP2
	CodecIDMP3
	CodecIDAAC
	CodecIDAC3
	CodecIDEAC3
	CodecIDDTS
	CodecIDFLAC
	CodecIDALAC
	CodecIDG723_1
	CodecIDG729
	CodecIDVorbis
	CodecIDOpus
	CodecIDWMA1
	CodecIDWMA2
	CodecIDWMAVoice
	CodecIDWMAPro
	CodecIDWMALossless
	CodecIDG711A
	CodecIDG711U
	CodecIDPCMS16
)

// Video codecs.
const (
	CodecIDMPEG1 CodecID = CodecID(MediaTypeVideo)<<16 + 1 + CodecID(iota)
	CodecIDMPEG2
	CodecIDMPEG4
	CodecIDMJPEG
	CodecIDH261
	CodecIDH263
	CodecIDH264
	CodecIDHEVC
	CodecIDVVC
	CodecIDVP8
	CodecIDVP9
	CodecIDAV1
	CodecIDRV10
	CodecIDRV20
	CodecIDRV30
	CodecIDRV40
	CodecIDRV60
	CodecIDFLV1
	CodecIDWMV1
	CodecIDWMV2
	CodecIDWMV3
	CodecIDVC1
	CodecIDAVS
	CodecIDCAVS
	CodecIDAVS2
	CodecIDAVS3
	CodecIDBMP
	CodecIDPNG
	CodecIDAPNG
	CodecIDGIF
	CodecIDTIFF
	CodecIDWEBP
	CodecIDJPEGXL
	CodecIDJPEG2000
	CodecIDProRes
)

var codecNames = map[CodecID]string{
	CodecIDMP1:         "MP1",
	CodecIDMP2:         "MP2",
	CodecIDMP3:         "MP3",
	CodecIDAAC:         "AAC",
	CodecIDAC3:         "AC3",
	CodecIDEAC3:        "EAC3",
	CodecIDDTS:         "DTS",
	CodecIDFLAC:        "FLAC",
	CodecIDALAC:        "ALAC",
	CodecIDG723_1:      "G723.1",
	CodecIDG729:        "G729",
	CodecIDVorbis:      "Vorbis",
	CodecIDOpus:        "Opus",
	CodecIDWMA1:        "WMA1",
	CodecIDWMA2:        "WMA2",
	CodecIDWMAVoice:    "WMAVoice",
	CodecIDWMAPro:      "WMAPro",
	CodecIDWMALossless: "WMALossless",
	CodecIDG711A:       "G711A",
	CodecIDG711U:       "G711U",
	CodecIDPCMS16:      "PCMS16",

	CodecIDMPEG1:    "MPEG1",
	CodecIDMPEG2:    "MPEG2",
	CodecIDMPEG4:    "MPEG4",
	CodecIDMJPEG:    "MJPEG",
	CodecIDH261:     "H261",
	CodecIDH263:     "H263",
	CodecIDH264:     "H264",
	CodecIDHEVC:     "HEVC",
	CodecIDVVC:      "VVC",
	CodecIDVP8:      "VP8",
	CodecIDVP9:      "VP9",
	CodecIDAV1:      "AV1",
	CodecIDRV10:     "RV10",
	CodecIDRV20:     "RV20",
	CodecIDRV30:     "RV30",
	CodecIDRV40:     "RV40",
	CodecIDRV60:     "RV60",
	CodecIDFLV1:     "FLV1",
	CodecIDWMV1:     "WMV1",
	CodecIDWMV2:     "WMV2",
	CodecIDWMV3:     "WMV3",
	CodecIDVC1:      "VC1",
	CodecIDAVS:      "AVS",
	CodecIDCAVS:     "CAVS",
	CodecIDAVS2:     "AVS2",
	CodecIDAVS3:     "AVS3",
	CodecIDBMP:      "BMP",
	CodecIDPNG:      "PNG",
	CodecIDAPNG:     "APNG",
	CodecIDGIF:      "GIF",
	CodecIDTIFF:     "TIFF",
	CodecIDWEBP:     "WebP",
	CodecIDJPEGXL:   "JPEGXL",
	CodecIDJPEG2000: "JPEG2000",
	CodecIDProRes:   "ProRes",
}

// MediaType returns the media type encoded in the identifier.
func (id CodecID) MediaType() MediaType {
	return MediaType(id >> 16)
}

func (id CodecID) Valid() bool {
	_, ok := codecNames[id]
	return ok
}

func (id CodecID) String() string {
	if name, ok := codecNames[id]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(id))
}

// MimeType returns the RTP MIME type for codecs that have one, or "".
func (id CodecID) MimeType() string {
	switch id {
	case CodecIDVP8:
		return "video/VP8"
	case CodecIDVP9:
		return "video/VP9"
	case CodecIDH264:
		return "video/H264"
	case CodecIDHEVC:
		return "video/H265"
	case CodecIDAV1:
		return "video/AV1"
	case CodecIDOpus:
		return "audio/opus"
	case CodecIDG711A:
		return "audio/PCMA"
	case CodecIDG711U:
		return "audio/PCMU"
	case CodecIDAAC:
		return "audio/AAC"
	}
	return ""
}

// ClockRate returns the RTP clock rate for the codec. Video codecs run
// on the 90kHz clock.
func (id CodecID) ClockRate() uint32 {
	if id.MediaType() == MediaTypeVideo {
		return 90000
	}
	switch id {
	case CodecIDG711A, CodecIDG711U:
		return 8000
	}
	return 48000
}

// DefaultPayloadType returns a typical RTP payload type for the codec.
// The actual value is negotiated via SDP; G.711 uses its static
// assignments.
func (id CodecID) DefaultPayloadType() uint8 {
	switch id {
	case CodecIDVP8:
		return 96
	case CodecIDVP9:
		return 98
	case CodecIDH264:
		return 102
	case CodecIDHEVC:
		return 104
	case CodecIDAV1:
		return 35
	case CodecIDOpus:
		return 111
	case CodecIDG711A:
		return 8
	case CodecIDG711U:
		return 0
	}
	return 96
}
