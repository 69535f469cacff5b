// Audio sample formats, channel layouts and frame descriptors.
package mediakit

import (
	"fmt"
	"math/bits"
)

// Well known sample rates in Hz.
const (
	SampleRateTelephone = 8000
	SampleRateVoIP      = 16000
	SampleRateCD        = 44100
	SampleRateDVD       = 48000
	SampleRateHigh      = 96000
	SampleRateUltraHigh = 192000
)

// SampleFormat identifies the numeric representation and memory layout
// of audio samples. Packed formats interleave channels in one plane,
// planar formats keep one plane per channel.
type SampleFormat int

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8                // unsigned 8 bits
	SampleFormatS16               // signed 16 bits
	SampleFormatS32               // signed 32 bits
	SampleFormatS64               // signed 64 bits
	SampleFormatF32               // float 32 bits
	SampleFormatF64               // float 64 bits
	SampleFormatU8P               // unsigned 8 bits, planar
	SampleFormatS16P              // signed 16 bits, planar
	SampleFormatS32P              // signed 32 bits, planar
	SampleFormatS64P              // signed 64 bits, planar
	SampleFormatF32P              // float 32 bits, planar
	SampleFormatF64P              // float 64 bits, planar
	sampleFormatCount
)

// sampleFormatDesc contains static metadata about a sample format.
type sampleFormatDesc struct {
	name   string
	bits   int
	planar bool
}

var sampleFormatInfo = [sampleFormatCount]sampleFormatDesc{
	SampleFormatU8:   {"U8", 8, false},
	SampleFormatS16:  {"S16", 16, false},
	SampleFormatS32:  {"S32", 32, false},
	SampleFormatS64:  {"S64", 64, false},
	SampleFormatF32:  {"F32", 32, false},
	SampleFormatF64:  {"F64", 64, false},
	SampleFormatU8P:  {"U8P", 8, true},
	SampleFormatS16P: {"S16P", 16, true},
	SampleFormatS32P: {"S32P", 32, true},
	SampleFormatS64P: {"S64P", 64, true},
	SampleFormatF32P: {"F32P", 32, true},
	SampleFormatF64P: {"F64P", 64, true},
}

// Valid reports whether f is a known sample format.
func (f SampleFormat) Valid() bool { return f > SampleFormatNone && f < sampleFormatCount }

func (f SampleFormat) String() string {
	if f == SampleFormatNone {
		return "None"
	}
	if !f.Valid() {
		return "Unknown"
	}
	return sampleFormatInfo[f].name
}

// Bits returns the bits per sample.
func (f SampleFormat) Bits() int {
	if !f.Valid() {
		return 0
	}
	return sampleFormatInfo[f].bits
}

// BytesPerSample returns the bytes per sample for one channel.
func (f SampleFormat) BytesPerSample() int { return f.Bits() >> 3 }

// IsPlanar reports whether each channel occupies its own plane.
func (f SampleFormat) IsPlanar() bool {
	return f.Valid() && sampleFormatInfo[f].planar
}

// IsPacked reports whether channels are interleaved in one plane.
func (f SampleFormat) IsPacked() bool {
	return f.Valid() && !sampleFormatInfo[f].planar
}

// Planar returns the planar counterpart of the format.
func (f SampleFormat) Planar() SampleFormat {
	if f.Valid() && !sampleFormatInfo[f].planar {
		return f + (SampleFormatU8P - SampleFormatU8)
	}
	return f
}

// Packed returns the interleaved counterpart of the format.
func (f SampleFormat) Packed() SampleFormat {
	if f.Valid() && sampleFormatInfo[f].planar {
		return f - (SampleFormatU8P - SampleFormatU8)
	}
	return f
}

// PlaneCount returns the number of planes a frame with the given channel
// count uses.
func (f SampleFormat) PlaneCount(channels int) int {
	if f.IsPlanar() {
		return channels
	}
	return 1
}

// PlaneBytes returns the bytes of sample data held by one plane.
func (f SampleFormat) PlaneBytes(channels, samples int) int {
	if f.IsPlanar() {
		return f.BytesPerSample() * samples
	}
	return f.BytesPerSample() * samples * channels
}

// PlaneSizes computes buffer geometry for an owned frame: the total
// allocation, the aligned per-plane size and the bytes of each plane
// actually holding samples.
func (f SampleFormat) PlaneSizes(channels, samples, align int) (total, planeSize, used int) {
	used = f.PlaneBytes(channels, samples)
	planeSize = alignTo(used, align)
	total = planeSize * f.PlaneCount(channels)
	return total, planeSize, used
}

// ChannelMask is a bitmask of speaker positions. A single set bit names
// one position, combinations name layouts.
type ChannelMask uint32

// Speaker positions.
const (
	ChannelFrontLeft ChannelMask = 1 << iota
	ChannelFrontRight
	ChannelFrontCenter
	ChannelLowFrequency
	ChannelBackLeft
	ChannelBackRight
	ChannelFrontLeftOfCenter
	ChannelFrontRightOfCenter
	ChannelBackCenter
	ChannelSideLeft
	ChannelSideRight
	ChannelTopCenter
	ChannelTopFrontLeft
	ChannelTopFrontCenter
	ChannelTopFrontRight
	ChannelTopBackLeft
	ChannelTopBackCenter
	ChannelTopBackRight
)

// Named speaker layouts.
const (
	LayoutMono              = ChannelFrontCenter
	LayoutStereo            = ChannelFrontLeft | ChannelFrontRight
	Layout2Point1           = LayoutStereo | ChannelLowFrequency
	Layout3Point0           = LayoutStereo | ChannelFrontCenter
	Layout3Point0Back       = LayoutStereo | ChannelBackCenter
	Layout3Point1           = Layout3Point0 | ChannelLowFrequency
	Layout3Point1Point2     = Layout3Point1 | ChannelTopFrontLeft | ChannelTopFrontRight
	Layout4Point0           = Layout3Point0 | ChannelBackCenter
	Layout4Point1           = Layout4Point0 | ChannelLowFrequency
	Layout2Point2           = LayoutStereo | ChannelSideLeft | ChannelSideRight
	LayoutQuad              = LayoutStereo | ChannelBackLeft | ChannelBackRight
	Layout5Point0           = Layout3Point0 | ChannelSideLeft | ChannelSideRight
	Layout5Point1           = Layout5Point0 | ChannelLowFrequency
	Layout5Point0Back       = Layout3Point0 | ChannelBackLeft | ChannelBackRight
	Layout5Point1Back       = Layout5Point0Back | ChannelLowFrequency
	Layout6Point0           = Layout5Point0 | ChannelBackCenter
	LayoutHexagonal         = Layout5Point0Back | ChannelBackCenter
	Layout6Point1           = Layout6Point0 | ChannelLowFrequency
	Layout6Point0Front      = Layout2Point2 | ChannelFrontLeftOfCenter | ChannelFrontRightOfCenter
	Layout6Point1Front      = Layout6Point0Front | ChannelLowFrequency
	Layout6Point1Back       = Layout5Point1Back | ChannelBackCenter
	Layout7Point0           = Layout5Point0 | ChannelBackLeft | ChannelBackRight
	Layout7Point1           = Layout7Point0 | ChannelLowFrequency
	Layout7Point0Front      = Layout5Point0 | ChannelFrontLeftOfCenter | ChannelFrontRightOfCenter
	Layout7Point1Wide       = Layout5Point1 | ChannelFrontLeftOfCenter | ChannelFrontRightOfCenter
	Layout7Point1WideBack   = Layout5Point1Back | ChannelFrontLeftOfCenter | ChannelFrontRightOfCenter
	Layout5Point1Point2     = Layout5Point1 | ChannelTopFrontLeft | ChannelTopFrontRight
	Layout5Point1Point2Back = Layout5Point1Back | ChannelTopFrontLeft | ChannelTopFrontRight
	LayoutOctagonal         = Layout5Point0 | ChannelBackLeft | ChannelBackCenter | ChannelBackRight
	LayoutCube              = LayoutQuad | ChannelTopFrontLeft | ChannelTopFrontRight | ChannelTopBackLeft | ChannelTopBackRight
	Layout5Point1Point4Back = Layout5Point1Point2 | ChannelTopBackLeft | ChannelTopBackRight
	Layout7Point1Point2     = Layout7Point1 | ChannelTopFrontLeft | ChannelTopFrontRight
	Layout7Point1Point4Back = Layout7Point1Point2 | ChannelTopBackLeft | ChannelTopBackRight
	Layout9Point1Point4Back = Layout7Point1Point4Back | ChannelFrontLeftOfCenter | ChannelFrontRightOfCenter
)

// Channels returns the number of set positions.
func (m ChannelMask) Channels() int { return bits.OnesCount32(uint32(m)) }

// Has reports whether all positions in pos are present.
func (m ChannelMask) Has(pos ChannelMask) bool { return m&pos == pos }

func (m ChannelMask) String() string {
	switch m {
	case 0:
		return "none"
	case LayoutMono:
		return "mono"
	case LayoutStereo:
		return "stereo"
	case Layout2Point1:
		return "2.1"
	case Layout3Point0:
		return "3.0"
	case Layout4Point0:
		return "4.0"
	case LayoutQuad:
		return "quad"
	case Layout5Point0:
		return "5.0"
	case Layout5Point1:
		return "5.1"
	case Layout5Point1Back:
		return "5.1(back)"
	case Layout7Point1:
		return "7.1"
	default:
		return fmt.Sprintf("0x%X", uint32(m))
	}
}

// ChannelOrder describes how channels map to speaker positions.
type ChannelOrder int

const (
	ChannelOrderUnspecified ChannelOrder = iota
	ChannelOrderNative                   // channels follow the mask bit order
	ChannelOrderCustom
)

func (o ChannelOrder) String() string {
	switch o {
	case ChannelOrderNative:
		return "Native"
	case ChannelOrderCustom:
		return "Custom"
	default:
		return "Unspecified"
	}
}

// ChannelLayout describes the channel count and speaker assignment of an
// audio stream.
type ChannelLayout struct {
	Order    ChannelOrder
	Channels int
	Mask     ChannelMask
}

// Known layouts per channel count. The first entry is the default used
// when only a count is known.
var channelLayoutDefaults = [16][]ChannelMask{
	0:  {LayoutMono},
	1:  {LayoutStereo},
	2:  {Layout2Point1, Layout3Point0, Layout3Point0Back},
	3:  {Layout3Point1, Layout4Point0, Layout2Point2, LayoutQuad},
	4:  {Layout4Point1, Layout5Point0, Layout5Point0Back},
	5:  {Layout5Point1, Layout5Point1Back, Layout6Point0, Layout6Point0Front, Layout3Point1Point2, LayoutHexagonal},
	6:  {Layout6Point1, Layout6Point1Front, Layout6Point1Back, Layout7Point0, Layout7Point0Front},
	7:  {Layout7Point1, Layout7Point1Wide, Layout7Point1WideBack, Layout5Point1Point2, Layout5Point1Point2Back, LayoutOctagonal, LayoutCube},
	9:  {Layout5Point1Point4Back, Layout7Point1Point2},
	11: {Layout7Point1Point4Back},
	13: {Layout9Point1Point4Back},
}

// ChannelLayoutFromMask builds a layout from a speaker mask.
func ChannelLayoutFromMask(mask ChannelMask) (ChannelLayout, error) {
	channels := mask.Channels()
	if channels == 0 {
		return ChannelLayout{}, fmt.Errorf("empty channel mask: %w", ErrInvalidParameter)
	}
	return ChannelLayout{
		Order:    ChannelOrderNative,
		Channels: channels,
		Mask:     mask,
	}, nil
}

// DefaultChannelLayout returns the conventional layout for a channel
// count. Counts without a conventional speaker assignment get an
// unspecified layout with an empty mask.
func DefaultChannelLayout(channels int) (ChannelLayout, error) {
	if channels <= 0 {
		return ChannelLayout{}, fmt.Errorf("channels %d: %w", channels, ErrInvalidParameter)
	}
	if channels <= len(channelLayoutDefaults) {
		if defaults := channelLayoutDefaults[channels-1]; len(defaults) > 0 {
			return ChannelLayout{
				Order:    ChannelOrderNative,
				Channels: channels,
				Mask:     defaults[0],
			}, nil
		}
	}
	return ChannelLayout{Channels: channels}, nil
}

func (l ChannelLayout) String() string {
	if l.Order == ChannelOrderNative && l.Mask != 0 {
		return l.Mask.String()
	}
	return fmt.Sprintf("%dch", l.Channels)
}

// AudioDescriptor describes the sample format, timing and channel
// arrangement of an audio frame.
type AudioDescriptor struct {
	Format     SampleFormat
	Samples    int // samples per channel
	SampleRate int
	Layout     ChannelLayout
}

// NewAudioDescriptor builds a descriptor using the default layout for
// the channel count. Channels, samples and sample rate must be positive.
func NewAudioDescriptor(format SampleFormat, channels, samples, sampleRate int) (AudioDescriptor, error) {
	if !format.Valid() {
		return AudioDescriptor{}, fmt.Errorf("sample format %d: %w", int(format), ErrInvalidParameter)
	}
	if samples <= 0 || sampleRate <= 0 {
		return AudioDescriptor{}, fmt.Errorf("samples %d rate %d: %w", samples, sampleRate, ErrInvalidParameter)
	}
	layout, err := DefaultChannelLayout(channels)
	if err != nil {
		return AudioDescriptor{}, err
	}
	return AudioDescriptor{
		Format:     format,
		Samples:    samples,
		SampleRate: sampleRate,
		Layout:     layout,
	}, nil
}

// AudioDescriptorWithLayout builds a descriptor with an explicit channel
// layout.
func AudioDescriptorWithLayout(format SampleFormat, samples, sampleRate int, layout ChannelLayout) (AudioDescriptor, error) {
	if !format.Valid() {
		return AudioDescriptor{}, fmt.Errorf("sample format %d: %w", int(format), ErrInvalidParameter)
	}
	if samples <= 0 || sampleRate <= 0 || layout.Channels <= 0 {
		return AudioDescriptor{}, fmt.Errorf("samples %d rate %d channels %d: %w",
			samples, sampleRate, layout.Channels, ErrInvalidParameter)
	}
	return AudioDescriptor{
		Format:     format,
		Samples:    samples,
		SampleRate: sampleRate,
		Layout:     layout,
	}, nil
}

// Channels returns the channel count.
func (d AudioDescriptor) Channels() int { return d.Layout.Channels }

// PlaneCount returns the number of data planes a frame with this
// descriptor uses.
func (d AudioDescriptor) PlaneCount() int { return d.Format.PlaneCount(d.Channels()) }

// DurationEqual reports whether two descriptors cover the same wall
// clock time at millisecond resolution.
func (d AudioDescriptor) DurationEqual(other AudioDescriptor) bool {
	if d.SampleRate <= 0 || other.SampleRate <= 0 {
		return false
	}
	d1 := int64(d.Samples) * MsecPerSec / int64(d.SampleRate)
	d2 := int64(other.Samples) * MsecPerSec / int64(other.SampleRate)
	return d1 == d2
}

func (d AudioDescriptor) String() string {
	return fmt.Sprintf("%s %dHz %s", d.Format, d.SampleRate, d.Layout)
}
