// Video raster types: pixel formats, plane geometry, resolutions and
// color metadata.
package mediakit

import "fmt"

// Resolution is a video frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Common capture and display resolutions.
var (
	ResolutionSQCIF = Resolution{128, 96}
	ResolutionQCIF  = Resolution{176, 144}
	ResolutionCIF   = Resolution{352, 288}
	ResolutionQQVGA = Resolution{160, 120}
	ResolutionQVGA  = Resolution{320, 240}
	ResolutionVGA   = Resolution{640, 480}
	ResolutionSVGA  = Resolution{800, 600}
	ResolutionXGA   = Resolution{1024, 768}
	ResolutionSXGA  = Resolution{1280, 1024}
	ResolutionUXGA  = Resolution{1600, 1200}
	ResolutionQXGA  = Resolution{2048, 1536}
	ResolutionSD    = Resolution{720, 480}
	ResolutionHD    = Resolution{1280, 720}
	ResolutionFHD   = Resolution{1920, 1080}
	ResolutionQHD   = Resolution{2560, 1440}
	ResolutionUHD4K = Resolution{3840, 2160}
	ResolutionUHD8K = Resolution{7680, 4320}
)

// PixelFormat identifies the memory layout of a raw video frame.
type PixelFormat int

const (
	PixelFormatNone   PixelFormat = iota
	PixelFormatARGB32             // packed ARGB, 8 bits per channel
	PixelFormatBGRA32             // packed BGRA, 8 bits per channel
	PixelFormatABGR32                    // packed ABGR, 8 bits per channel
	PixelFormatRGBA32                    // packed RGBA, 8 bits per channel
	PixelFormatRGB24                     // packed RGB, 3 bytes per pixel
	PixelFormatBGR24                     // packed BGR, 3 bytes per pixel
	PixelFormatI420                      // planar YUV 4:2:0 (Y + U + V)
	PixelFormatI422                      // planar YUV 4:2:2
	PixelFormatI444                      // planar YUV 4:4:4
	PixelFormatNV12                      // biplanar YUV 4:2:0 (Y + interleaved UV)
	PixelFormatNV21                      // biplanar YUV 4:2:0 (Y + interleaved VU)
	PixelFormatNV16                      // biplanar YUV 4:2:2
	PixelFormatNV61                      // biplanar YUV 4:2:2, VU order
	PixelFormatNV24                      // biplanar YUV 4:4:4
	PixelFormatNV42                      // biplanar YUV 4:4:4, VU order
	PixelFormatYUYV                      // packed YUV 4:2:2, Y0 Cb Y1 Cr
	PixelFormatYVYU                      // packed YUV 4:2:2, Y0 Cr Y1 Cb
	PixelFormatUYVY                      // packed YUV 4:2:2, Cb Y0 Cr Y1
	PixelFormatVYUY                      // packed YUV 4:2:2, Cr Y0 Cb Y1
	PixelFormatY8                        // greyscale, 8 bits
	PixelFormatYA8                       // greyscale with alpha plane
	PixelFormatRGB30                     // packed RGB, 10 bits per channel
	PixelFormatI010                      // planar YUV 4:2:0, 10 bits in 16
	PixelFormatI210                      // planar YUV 4:2:2, 10 bits in 16
	PixelFormatI410                      // planar YUV 4:4:4, 10 bits in 16
	PixelFormatP010                      // biplanar YUV 4:2:0, 10 bits in 16
	PixelFormatP210                      // biplanar YUV 4:2:2, 10 bits in 16
	pixelFormatCount
)

type pixelFormatFlags uint8

const (
	fmtAlpha pixelFormatFlags = 1 << iota
	fmtRGB
	fmtYUV
	fmtPlanar
	fmtPacked
	fmtBiPlanar
)

// pixelFormatDesc contains static layout metadata about a pixel format.
type pixelFormatDesc struct {
	name         string
	planes       int
	chromaShiftX int
	chromaShiftY int
	depth        int
	flags        pixelFormatFlags
	planeBytes   [4]int // bytes per pixel (or pixel group) in each plane
}

// Static layout table - indexed by PixelFormat, zero allocations.
var pixelFormatInfo = [pixelFormatCount]pixelFormatDesc{
	PixelFormatARGB32: {"ARGB32", 1, 0, 0, 8, fmtAlpha | fmtRGB | fmtPacked, [4]int{4}},
	PixelFormatBGRA32: {"BGRA32", 1, 0, 0, 8, fmtAlpha | fmtRGB | fmtPacked, [4]int{4}},
	PixelFormatABGR32: {"ABGR32", 1, 0, 0, 8, fmtAlpha | fmtRGB | fmtPacked, [4]int{4}},
	PixelFormatRGBA32: {"RGBA32", 1, 0, 0, 8, fmtAlpha | fmtRGB | fmtPacked, [4]int{4}},
	PixelFormatRGB24:  {"RGB24", 1, 0, 0, 8, fmtRGB | fmtPacked, [4]int{3}},
	PixelFormatBGR24:  {"BGR24", 1, 0, 0, 8, fmtRGB | fmtPacked, [4]int{3}},
	PixelFormatI420:   {"I420", 3, 1, 1, 8, fmtYUV | fmtPlanar, [4]int{1, 1, 1}},
	PixelFormatI422:   {"I422", 3, 1, 0, 8, fmtYUV | fmtPlanar, [4]int{1, 1, 1}},
	PixelFormatI444:   {"I444", 3, 0, 0, 8, fmtYUV | fmtPlanar, [4]int{1, 1, 1}},
	PixelFormatNV12:   {"NV12", 2, 1, 1, 8, fmtYUV | fmtBiPlanar, [4]int{1, 2}},
	PixelFormatNV21:   {"NV21", 2, 1, 1, 8, fmtYUV | fmtBiPlanar, [4]int{1, 2}},
	PixelFormatNV16:   {"NV16", 2, 1, 0, 8, fmtYUV | fmtBiPlanar, [4]int{1, 2}},
	PixelFormatNV61:   {"NV61", 2, 1, 0, 8, fmtYUV | fmtBiPlanar, [4]int{1, 2}},
	PixelFormatNV24:   {"NV24", 2, 0, 0, 8, fmtYUV | fmtBiPlanar, [4]int{1, 2}},
	PixelFormatNV42:   {"NV42", 2, 0, 0, 8, fmtYUV | fmtBiPlanar, [4]int{1, 2}},
	PixelFormatYUYV:   {"YUYV", 1, 1, 0, 8, fmtYUV | fmtPacked, [4]int{4}},
	PixelFormatYVYU:   {"YVYU", 1, 1, 0, 8, fmtYUV | fmtPacked, [4]int{4}},
	PixelFormatUYVY:   {"UYVY", 1, 1, 0, 8, fmtYUV | fmtPacked, [4]int{4}},
	PixelFormatVYUY:   {"VYUY", 1, 1, 0, 8, fmtYUV | fmtPacked, [4]int{4}},
	PixelFormatY8:     {"Y8", 1, 0, 0, 8, fmtPlanar, [4]int{1}},
	PixelFormatYA8:    {"YA8", 2, 0, 0, 8, fmtAlpha | fmtPlanar, [4]int{1, 1}},
	PixelFormatRGB30:  {"RGB30", 1, 0, 0, 10, fmtRGB | fmtPacked, [4]int{4}},
	PixelFormatI010:   {"I010", 3, 1, 1, 10, fmtYUV | fmtPlanar, [4]int{2, 2, 2}},
	PixelFormatI210:   {"I210", 3, 1, 0, 10, fmtYUV | fmtPlanar, [4]int{2, 2, 2}},
	PixelFormatI410:   {"I410", 3, 0, 0, 10, fmtYUV | fmtPlanar, [4]int{2, 2, 2}},
	PixelFormatP010:   {"P010", 2, 1, 1, 10, fmtYUV | fmtBiPlanar, [4]int{2, 4}},
	PixelFormatP210:   {"P210", 2, 1, 0, 10, fmtYUV | fmtBiPlanar, [4]int{2, 4}},
}

// Valid reports whether p is a known pixel format.
func (p PixelFormat) Valid() bool { return p > PixelFormatNone && p < pixelFormatCount }

func (p PixelFormat) String() string {
	if p == PixelFormatNone {
		return "None"
	}
	if !p.Valid() {
		return "Unknown"
	}
	return pixelFormatInfo[p].name
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	if !p.Valid() {
		return 0
	}
	return pixelFormatInfo[p].planes
}

// Depth returns the significant bits per component.
func (p PixelFormat) Depth() int {
	if !p.Valid() {
		return 0
	}
	return pixelFormatInfo[p].depth
}

func (p PixelFormat) IsRGB() bool {
	return p.Valid() && pixelFormatInfo[p].flags&fmtRGB != 0
}

func (p PixelFormat) IsYUV() bool {
	return p.Valid() && pixelFormatInfo[p].flags&fmtYUV != 0
}

func (p PixelFormat) IsPlanar() bool {
	return p.Valid() && pixelFormatInfo[p].flags&fmtPlanar != 0
}

func (p PixelFormat) IsPacked() bool {
	return p.Valid() && pixelFormatInfo[p].flags&fmtPacked != 0
}

func (p PixelFormat) IsBiplanar() bool {
	return p.Valid() && pixelFormatInfo[p].flags&fmtBiPlanar != 0
}

func (p PixelFormat) HasAlpha() bool {
	return p.Valid() && pixelFormatInfo[p].flags&fmtAlpha != 0
}

// ChromaSubsampling describes how chroma samples are shared between
// luma samples.
type ChromaSubsampling int

const (
	ChromaSubsampling420 ChromaSubsampling = iota
	ChromaSubsampling422
	ChromaSubsampling444
)

func (c ChromaSubsampling) String() string {
	switch c {
	case ChromaSubsampling420:
		return "4:2:0"
	case ChromaSubsampling422:
		return "4:2:2"
	case ChromaSubsampling444:
		return "4:4:4"
	default:
		return "Unknown"
	}
}

// ChromaSubsampling returns the subsampling scheme for YUV formats.
// ok is false for RGB and greyscale formats.
func (p PixelFormat) ChromaSubsampling() (sub ChromaSubsampling, ok bool) {
	if !p.IsYUV() {
		return 0, false
	}
	desc := &pixelFormatInfo[p]
	switch {
	case desc.chromaShiftX == 1 && desc.chromaShiftY == 1:
		return ChromaSubsampling420, true
	case desc.chromaShiftX == 1 && desc.chromaShiftY == 0:
		return ChromaSubsampling422, true
	case desc.chromaShiftX == 0 && desc.chromaShiftY == 0:
		return ChromaSubsampling444, true
	}
	return 0, false
}

// ChromaDimensions returns the width and height of the chroma planes
// for the given luma dimensions.
func (p PixelFormat) ChromaDimensions(width, height int) (int, int) {
	desc := &pixelFormatInfo[p]
	return ceilRshift(width, desc.chromaShiftX), ceilRshift(height, desc.chromaShiftY)
}

// PlaneRowBytes returns the minimum bytes per row of the given plane,
// without alignment padding.
func (p PixelFormat) PlaneRowBytes(plane, width int) int {
	desc := &pixelFormatInfo[p]
	if plane > 0 && (p.IsPlanar() || p.IsBiplanar()) {
		return ceilRshift(width, desc.chromaShiftX) * desc.planeBytes[plane]
	}
	return width * desc.planeBytes[plane]
}

// PlaneHeight returns the number of rows in the given plane.
func (p PixelFormat) PlaneHeight(plane, height int) int {
	if plane > 0 && (p.IsPlanar() || p.IsBiplanar()) {
		return ceilRshift(height, pixelFormatInfo[p].chromaShiftY)
	}
	return height
}

// PlaneLayout describes the geometry of one plane inside an owned frame
// buffer.
type PlaneLayout struct {
	Stride int // row stride in bytes, alignment padding included
	Height int // rows in the plane
}

// Size returns the byte size of the plane.
func (pl PlaneLayout) Size() int { return pl.Stride * pl.Height }

// PlaneSizes computes the total buffer size and per-plane layout for an
// owned frame with row strides padded to align bytes.
func (p PixelFormat) PlaneSizes(width, height, align int) (int, []PlaneLayout) {
	desc := &pixelFormatInfo[p]
	planes := make([]PlaneLayout, 0, desc.planes)
	var size int

	switch p {
	case PixelFormatRGB24, PixelFormatBGR24, PixelFormatY8:
		// Rows of these formats are not naturally 4-byte multiples.
		stride := alignTo(width*desc.planeBytes[0], max(align, 4))
		planes = append(planes, PlaneLayout{stride, height})
		size = stride * height
	case PixelFormatYA8:
		stride := alignTo(width*desc.planeBytes[0], max(align, 4))
		planes = append(planes, PlaneLayout{stride, height}, PlaneLayout{stride, height})
		size = stride * height * 2
	case PixelFormatYUYV, PixelFormatYVYU, PixelFormatUYVY, PixelFormatVYUY:
		// Four bytes cover a horizontal pair of pixels.
		stride := alignTo(ceilRshift(width, desc.chromaShiftX)*4, align)
		planes = append(planes, PlaneLayout{stride, height})
		size = stride * height
	default:
		stride := alignTo(width*desc.planeBytes[0], align)
		planes = append(planes, PlaneLayout{stride, height})
		size = stride * height
		for i := 1; i < desc.planes; i++ {
			stride := alignTo(ceilRshift(width, desc.chromaShiftX)*desc.planeBytes[i], align)
			h := ceilRshift(height, desc.chromaShiftY)
			planes = append(planes, PlaneLayout{stride, h})
			size += stride * h
		}
	}

	return size, planes
}

// ColorRange describes the numeric range of YUV samples.
type ColorRange int

const (
	ColorRangeUnspecified ColorRange = iota
	ColorRangeVideo                  // limited range, 16-235 luma
	ColorRangeFull                   // full range, 0-255
)

func (c ColorRange) String() string {
	switch c {
	case ColorRangeVideo:
		return "Video"
	case ColorRangeFull:
		return "Full"
	default:
		return "Unspecified"
	}
}

// ColorMatrix identifies the RGB to YUV conversion matrix, with values
// from ISO/IEC 23091-2.
type ColorMatrix int

const (
	ColorMatrixIdentity         ColorMatrix = 0
	ColorMatrixBT709            ColorMatrix = 1
	ColorMatrixUnspecified      ColorMatrix = 2
	ColorMatrixFCC              ColorMatrix = 4
	ColorMatrixBT470BG          ColorMatrix = 5 // BT.601 PAL & SECAM
	ColorMatrixSMPTE170M        ColorMatrix = 6 // BT.601 NTSC
	ColorMatrixSMPTE240M        ColorMatrix = 7
	ColorMatrixYCgCo            ColorMatrix = 8
	ColorMatrixBT2020NCL        ColorMatrix = 9
	ColorMatrixBT2020CL         ColorMatrix = 10
	ColorMatrixSMPTE2085        ColorMatrix = 11
	ColorMatrixChromaDerivedNCL ColorMatrix = 12
	ColorMatrixChromaDerivedCL  ColorMatrix = 13
	ColorMatrixICtCp            ColorMatrix = 14
)

func (c ColorMatrix) String() string {
	switch c {
	case ColorMatrixIdentity:
		return "Identity"
	case ColorMatrixBT709:
		return "BT709"
	case ColorMatrixFCC:
		return "FCC"
	case ColorMatrixBT470BG:
		return "BT470BG"
	case ColorMatrixSMPTE170M:
		return "SMPTE170M"
	case ColorMatrixSMPTE240M:
		return "SMPTE240M"
	case ColorMatrixYCgCo:
		return "YCgCo"
	case ColorMatrixBT2020NCL:
		return "BT2020NCL"
	case ColorMatrixBT2020CL:
		return "BT2020CL"
	case ColorMatrixSMPTE2085:
		return "SMPTE2085"
	case ColorMatrixChromaDerivedNCL:
		return "ChromaDerivedNCL"
	case ColorMatrixChromaDerivedCL:
		return "ChromaDerivedCL"
	case ColorMatrixICtCp:
		return "ICtCp"
	default:
		return "Unspecified"
	}
}

// ColorPrimaries identifies the chromaticity coordinates of the source
// primaries, with values from ISO/IEC 23091-2.
type ColorPrimaries int

const (
	ColorPrimariesReserved    ColorPrimaries = 0
	ColorPrimariesBT709       ColorPrimaries = 1
	ColorPrimariesUnspecified ColorPrimaries = 2
	ColorPrimariesBT470M      ColorPrimaries = 4
	ColorPrimariesBT470BG     ColorPrimaries = 5
	ColorPrimariesSMPTE170M   ColorPrimaries = 6
	ColorPrimariesSMPTE240M   ColorPrimaries = 7
	ColorPrimariesFilm        ColorPrimaries = 8
	ColorPrimariesBT2020      ColorPrimaries = 9
	ColorPrimariesSMPTE428    ColorPrimaries = 10
	ColorPrimariesSMPTE431    ColorPrimaries = 11 // DCI P3
	ColorPrimariesSMPTE432    ColorPrimaries = 12 // Display P3
	ColorPrimariesJEDECP22    ColorPrimaries = 22
)

func (c ColorPrimaries) String() string {
	switch c {
	case ColorPrimariesBT709:
		return "BT709"
	case ColorPrimariesBT470M:
		return "BT470M"
	case ColorPrimariesBT470BG:
		return "BT470BG"
	case ColorPrimariesSMPTE170M:
		return "SMPTE170M"
	case ColorPrimariesSMPTE240M:
		return "SMPTE240M"
	case ColorPrimariesFilm:
		return "Film"
	case ColorPrimariesBT2020:
		return "BT2020"
	case ColorPrimariesSMPTE428:
		return "SMPTE428"
	case ColorPrimariesSMPTE431:
		return "SMPTE431"
	case ColorPrimariesSMPTE432:
		return "SMPTE432"
	case ColorPrimariesJEDECP22:
		return "JEDEC-P22"
	case ColorPrimariesReserved:
		return "Reserved"
	default:
		return "Unspecified"
	}
}

// ColorTransfer identifies the opto-electronic transfer characteristics,
// with values from ISO/IEC 23091-2.
type ColorTransfer int

const (
	ColorTransferReserved    ColorTransfer = 0
	ColorTransferBT709       ColorTransfer = 1
	ColorTransferUnspecified ColorTransfer = 2
	ColorTransferBT470M      ColorTransfer = 4 // gamma 2.2
	ColorTransferBT470BG     ColorTransfer = 5 // gamma 2.8
	ColorTransferSMPTE170M   ColorTransfer = 6
	ColorTransferSMPTE240M   ColorTransfer = 7
	ColorTransferLinear      ColorTransfer = 8
	ColorTransferLog         ColorTransfer = 9
	ColorTransferLogSqrt     ColorTransfer = 10
	ColorTransferIEC61966_4  ColorTransfer = 11
	ColorTransferBT1361E     ColorTransfer = 12
	ColorTransferSRGB        ColorTransfer = 13 // IEC 61966-2-1
	ColorTransferBT2020_10   ColorTransfer = 14
	ColorTransferBT2020_12   ColorTransfer = 15
	ColorTransferPQ          ColorTransfer = 16 // SMPTE ST 2084
	ColorTransferSMPTE428    ColorTransfer = 17
	ColorTransferHLG         ColorTransfer = 18 // ARIB STD-B67
)

func (c ColorTransfer) String() string {
	switch c {
	case ColorTransferBT709:
		return "BT709"
	case ColorTransferBT470M:
		return "BT470M"
	case ColorTransferBT470BG:
		return "BT470BG"
	case ColorTransferSMPTE170M:
		return "SMPTE170M"
	case ColorTransferSMPTE240M:
		return "SMPTE240M"
	case ColorTransferLinear:
		return "Linear"
	case ColorTransferLog:
		return "Log"
	case ColorTransferLogSqrt:
		return "LogSqrt"
	case ColorTransferIEC61966_4:
		return "IEC61966-2-4"
	case ColorTransferBT1361E:
		return "BT1361E"
	case ColorTransferSRGB:
		return "sRGB"
	case ColorTransferBT2020_10:
		return "BT2020-10"
	case ColorTransferBT2020_12:
		return "BT2020-12"
	case ColorTransferPQ:
		return "PQ"
	case ColorTransferSMPTE428:
		return "SMPTE428"
	case ColorTransferHLG:
		return "HLG"
	case ColorTransferReserved:
		return "Reserved"
	default:
		return "Unspecified"
	}
}

// ChromaLocation describes where chroma samples sit relative to luma.
type ChromaLocation int

const (
	ChromaLocationUnspecified ChromaLocation = iota
	ChromaLocationLeft
	ChromaLocationCenter
	ChromaLocationTopLeft
	ChromaLocationTop
	ChromaLocationBottomLeft
	ChromaLocationBottom
)

func (c ChromaLocation) String() string {
	switch c {
	case ChromaLocationLeft:
		return "Left"
	case ChromaLocationCenter:
		return "Center"
	case ChromaLocationTopLeft:
		return "TopLeft"
	case ChromaLocationTop:
		return "Top"
	case ChromaLocationBottomLeft:
		return "BottomLeft"
	case ChromaLocationBottom:
		return "Bottom"
	default:
		return "Unspecified"
	}
}

// Rotation is the clockwise display rotation of a frame.
type Rotation int

const (
	RotationNone Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Degrees returns the rotation angle in degrees.
func (r Rotation) Degrees() int {
	switch r {
	case Rotation90:
		return 90
	case Rotation180:
		return 180
	case Rotation270:
		return 270
	default:
		return 0
	}
}

func (r Rotation) String() string {
	return fmt.Sprintf("%d°", r.Degrees())
}

// Origin is the vertical direction of frame rows in memory.
type Origin int

const (
	OriginTopDown  Origin = iota // first row is the top of the image
	OriginBottomUp               // first row is the bottom of the image
)

func (o Origin) String() string {
	if o == OriginBottomUp {
		return "BottomUp"
	}
	return "TopDown"
}

// VideoDescriptor describes the geometry and color interpretation of a
// video frame.
type VideoDescriptor struct {
	Format         PixelFormat
	Width          int
	Height         int
	ColorRange     ColorRange
	ColorMatrix    ColorMatrix
	ColorPrimaries ColorPrimaries
	ColorTransfer  ColorTransfer
	ChromaLocation ChromaLocation
	Rotation       Rotation
	Origin         Origin
	Transparent    bool
	ExtraAlpha     bool
	CropLeft       int
	CropTop        int
	CropRight      int
	CropBottom     int
}

// NewVideoDescriptor returns a descriptor with unspecified color
// metadata. Width and height must be positive.
func NewVideoDescriptor(format PixelFormat, width, height int) (VideoDescriptor, error) {
	if !format.Valid() {
		return VideoDescriptor{}, fmt.Errorf("pixel format %d: %w", int(format), ErrInvalidParameter)
	}
	if width <= 0 || height <= 0 {
		return VideoDescriptor{}, fmt.Errorf("dimensions %dx%d: %w", width, height, ErrInvalidParameter)
	}
	return VideoDescriptor{
		Format: format,
		Width:  width,
		Height: height,
	}, nil
}

// Resolution returns the frame dimensions.
func (d VideoDescriptor) Resolution() Resolution {
	return Resolution{d.Width, d.Height}
}

func (d VideoDescriptor) String() string {
	return fmt.Sprintf("%s %dx%d", d.Format, d.Width, d.Height)
}
