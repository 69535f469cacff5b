// Pixel format conversion between raw video frames.
package mediakit

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ConvertVideo converts src into dst. Both frames must have equal
// dimensions; dst carries the target format. Same-format conversion is
// a stride-aware copy. Color matrix and range are taken from the source
// descriptor, defaulting to BT.601 limited range.
func ConvertVideo(dst, src *VideoFrame) error {
	if dst == nil || src == nil {
		return fmt.Errorf("nil frame: %w", ErrInvalidParameter)
	}
	if src.Desc.Width != dst.Desc.Width || src.Desc.Height != dst.Desc.Height {
		return fmt.Errorf("size %dx%d vs %dx%d: %w",
			src.Desc.Width, src.Desc.Height, dst.Desc.Width, dst.Desc.Height, ErrInvalidParameter)
	}
	if src.Desc.Format == dst.Desc.Format {
		return copyVideoData(dst, src)
	}
	fn := videoConvertFuncs[convertKey{src.Desc.Format, dst.Desc.Format}]
	if fn == nil {
		return fmt.Errorf("convert %s to %s: %w", src.Desc.Format, dst.Desc.Format, ErrUnsupported)
	}
	cf := coeffsFor(src.Desc.ColorMatrix, src.Desc.ColorRange, dst.Desc.Format.Depth())
	return fn(dst, src, &cf)
}

func copyVideoData(dst, src *VideoFrame) error {
	if len(src.Data) != len(dst.Data) {
		return fmt.Errorf("plane count %d vs %d: %w", len(src.Data), len(dst.Data), ErrInvalidParameter)
	}
	format := src.Desc.Format
	for i := range src.Data {
		rowBytes := format.PlaneRowBytes(i, src.Desc.Width)
		rows := format.PlaneHeight(i, src.Desc.Height)
		for row := 0; row < rows; row++ {
			s := src.Data[i][row*src.Stride[i]:]
			d := dst.Data[i][row*dst.Stride[i]:]
			copy(d[:rowBytes], s[:rowBytes])
		}
	}
	return nil
}

type convertKey struct {
	src PixelFormat
	dst PixelFormat
}

type convertFunc func(dst, src *VideoFrame, cf *yuvCoeffs) error

var videoConvertFuncs = map[convertKey]convertFunc{}

func registerConvert(src, dst PixelFormat, fn convertFunc) {
	videoConvertFuncs[convertKey{src, dst}] = fn
}

func init() {
	rgbaOrders := map[PixelFormat]rgbLayout{
		PixelFormatRGBA32: layoutRGBA,
		PixelFormatBGRA32: layoutBGRA,
	}
	rgbOuts := map[PixelFormat]rgbLayout{
		PixelFormatRGBA32: layoutRGBA,
		PixelFormatBGRA32: layoutBGRA,
		PixelFormatRGB24:  layoutRGB,
		PixelFormatBGR24:  layoutBGR,
	}
	planar := []PixelFormat{PixelFormatI420, PixelFormatI422, PixelFormatI444}
	biplanar := []PixelFormat{
		PixelFormatNV12, PixelFormatNV16, PixelFormatNV24,
		PixelFormatNV21, PixelFormatNV61, PixelFormatNV42,
	}
	packed := map[PixelFormat]packedYUVLayout{
		PixelFormatYUYV: layoutYUYV,
		PixelFormatYVYU: layoutYVYU,
		PixelFormatUYVY: layoutUYVY,
		PixelFormatVYUY: layoutVYUY,
	}

	registerConvert(PixelFormatBGRA32, PixelFormatRGBA32, func(d, s *VideoFrame, cf *yuvCoeffs) error {
		return repackRGB(d, s, layoutRGBA, layoutBGRA)
	})
	registerConvert(PixelFormatRGBA32, PixelFormatBGRA32, func(d, s *VideoFrame, cf *yuvCoeffs) error {
		return repackRGB(d, s, layoutBGRA, layoutRGBA)
	})

	for srcFmt, in := range rgbaOrders {
		for _, dstFmt := range planar {
			registerConvert(srcFmt, dstFmt, func(d, s *VideoFrame, cf *yuvCoeffs) error {
				return rgbToPlanarYUV(d, s, cf, in)
			})
		}
		for _, dstFmt := range biplanar {
			registerConvert(srcFmt, dstFmt, func(d, s *VideoFrame, cf *yuvCoeffs) error {
				return rgbToBiplanarYUV(d, s, cf, in)
			})
		}
	}

	for _, srcFmt := range planar {
		for dstFmt, out := range rgbOuts {
			registerConvert(srcFmt, dstFmt, func(d, s *VideoFrame, cf *yuvCoeffs) error {
				return planarYUVToRGB(d, s, cf, out)
			})
		}
		for dstFmt, out := range packed {
			registerConvert(srcFmt, dstFmt, func(d, s *VideoFrame, cf *yuvCoeffs) error {
				return planarYUVToPackedYUV(d, s, out)
			})
		}
	}

	for _, srcFmt := range biplanar {
		for dstFmt, out := range rgbOuts {
			registerConvert(srcFmt, dstFmt, func(d, s *VideoFrame, cf *yuvCoeffs) error {
				return biplanarYUVToRGB(d, s, cf, out)
			})
		}
	}

	for srcFmt, in := range packed {
		for dstFmt, out := range rgbOuts {
			registerConvert(srcFmt, dstFmt, func(d, s *VideoFrame, cf *yuvCoeffs) error {
				return packedYUVToRGB(d, s, cf, in, out)
			})
		}
		for _, dstFmt := range planar {
			registerConvert(srcFmt, dstFmt, func(d, s *VideoFrame, cf *yuvCoeffs) error {
				return packedYUVToPlanarYUV(d, s, in)
			})
		}
	}

	for _, srcFmt := range []PixelFormat{PixelFormatI010, PixelFormatI210, PixelFormatI410} {
		registerConvert(srcFmt, PixelFormatRGB30, planar16YUVToRGB30)
	}
	for _, srcFmt := range []PixelFormat{PixelFormatP010, PixelFormatP210} {
		registerConvert(srcFmt, PixelFormatRGB30, biplanar16YUVToRGB30)
	}
}

// rgbLayout gives the byte offset of each channel inside a packed pixel.
type rgbLayout struct {
	bpp     int
	r, g, b int
	a       int // -1 when the format has no alpha byte
}

var (
	layoutRGBA = rgbLayout{4, 0, 1, 2, 3}
	layoutBGRA = rgbLayout{4, 2, 1, 0, 3}
	layoutRGB  = rgbLayout{3, 0, 1, 2, -1}
	layoutBGR  = rgbLayout{3, 2, 1, 0, -1}
)

// packedYUVLayout gives byte offsets inside a 4-byte two-pixel group.
type packedYUVLayout struct {
	y0, u, y1, v int
}

var (
	layoutYUYV = packedYUVLayout{0, 1, 2, 3}
	layoutYVYU = packedYUVLayout{0, 3, 2, 1}
	layoutUYVY = packedYUVLayout{1, 0, 3, 2}
	layoutVYUY = packedYUVLayout{1, 2, 3, 0}
)

// nvOrder returns the chroma byte offsets within a UV pair.
func nvOrder(f PixelFormat) (uOff, vOff int) {
	switch f {
	case PixelFormatNV21, PixelFormatNV61, PixelFormatNV42:
		return 1, 0
	default:
		return 0, 1
	}
}

const (
	fixBits = 16
	fixHalf = 1 << (fixBits - 1)
)

// yuvCoeffs holds fixed point Q16 conversion coefficients for one
// matrix/range/depth combination.
type yuvCoeffs struct {
	// RGB to YUV
	yr, yg, yb int32
	ur, ug, ub int32
	vr, vg, vb int32
	// YUV to RGB
	cy, crv, cgu, cgv, cbu int32

	yOff   int32
	center int32
	peak   int32
}

func matrixKrKb(m ColorMatrix) (kr, kb float64) {
	switch m {
	case ColorMatrixBT709:
		return 0.2126, 0.0722
	case ColorMatrixBT2020NCL, ColorMatrixBT2020CL:
		return 0.2627, 0.0593
	case ColorMatrixSMPTE240M:
		return 0.212, 0.087
	case ColorMatrixFCC:
		return 0.30, 0.11
	default:
		// BT.601 covers BT470BG, SMPTE170M and unspecified sources.
		return 0.299, 0.114
	}
}

func coeffsFor(m ColorMatrix, r ColorRange, depth int) yuvCoeffs {
	if depth < 8 {
		depth = 8
	}
	kr, kb := matrixKrKb(m)
	kg := 1 - kr - kb

	scale := float64(int32(1) << (depth - 8))
	peak := float64(int32(1)<<depth - 1)
	ys, cs := 219*scale/peak, 224*scale/peak
	yOff := 16 * scale
	if r == ColorRangeFull {
		ys, cs, yOff = 1, 1, 0
	}

	q := func(v float64) int32 { return int32(math.Round(v * (1 << fixBits))) }
	return yuvCoeffs{
		yr: q(ys * kr), yg: q(ys * kg), yb: q(ys * kb),
		ur: q(-cs * kr / (2 * (1 - kb))), ug: q(-cs * kg / (2 * (1 - kb))), ub: q(cs / 2),
		vr: q(cs / 2), vg: q(-cs * kg / (2 * (1 - kr))), vb: q(-cs * kb / (2 * (1 - kr))),
		cy:  q(1 / ys),
		crv: q(2 * (1 - kr) / cs),
		cbu: q(2 * (1 - kb) / cs),
		cgu: q(2 * (1 - kb) * kb / (kg * cs)),
		cgv: q(2 * (1 - kr) * kr / (kg * cs)),

		yOff:   int32(yOff),
		center: int32(1) << (depth - 1),
		peak:   int32(peak),
	}
}

func (c *yuvCoeffs) clamp(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > c.peak {
		return c.peak
	}
	return v
}

func (c *yuvCoeffs) toRGB(y, u, v int32) (int32, int32, int32) {
	luma := (y - c.yOff) * c.cy
	d := u - c.center
	e := v - c.center
	r := (luma + c.crv*e + fixHalf) >> fixBits
	g := (luma - c.cgu*d - c.cgv*e + fixHalf) >> fixBits
	b := (luma + c.cbu*d + fixHalf) >> fixBits
	return c.clamp(r), c.clamp(g), c.clamp(b)
}

func (c *yuvCoeffs) toYUV(r, g, b int32) (int32, int32, int32) {
	y := (c.yr*r+c.yg*g+c.yb*b+fixHalf)>>fixBits + c.yOff
	u := (c.ur*r+c.ug*g+c.ub*b+fixHalf)>>fixBits + c.center
	v := (c.vr*r+c.vg*g+c.vb*b+fixHalf)>>fixBits + c.center
	return c.clamp(y), c.clamp(u), c.clamp(v)
}

func repackRGB(dst, src *VideoFrame, out, in rgbLayout) error {
	w, h := src.Width(), src.Height()
	for y := 0; y < h; y++ {
		srow := src.Data[0][y*src.Stride[0]:]
		drow := dst.Data[0][y*dst.Stride[0]:]
		for x := 0; x < w; x++ {
			sp := srow[x*in.bpp:]
			dp := drow[x*out.bpp:]
			dp[out.r], dp[out.g], dp[out.b] = sp[in.r], sp[in.g], sp[in.b]
			if out.a >= 0 {
				if in.a >= 0 {
					dp[out.a] = sp[in.a]
				} else {
					dp[out.a] = 0xFF
				}
			}
		}
	}
	return nil
}

func rgbToPlanarYUV(dst, src *VideoFrame, cf *yuvCoeffs, in rgbLayout) error {
	w, h := src.Width(), src.Height()
	sx := pixelFormatInfo[dst.Desc.Format].chromaShiftX
	sy := pixelFormatInfo[dst.Desc.Format].chromaShiftY

	for y := 0; y < h; y++ {
		srow := src.Data[0][y*src.Stride[0]:]
		yrow := dst.Data[0][y*dst.Stride[0]:]
		for x := 0; x < w; x++ {
			sp := srow[x*in.bpp:]
			luma, _, _ := cf.toYUV(int32(sp[in.r]), int32(sp[in.g]), int32(sp[in.b]))
			yrow[x] = uint8(luma)
		}
	}

	cw, ch := dst.Desc.Format.ChromaDimensions(w, h)
	bw, bh := 1<<sx, 1<<sy
	for cy := 0; cy < ch; cy++ {
		urow := dst.Data[1][cy*dst.Stride[1]:]
		vrow := dst.Data[2][cy*dst.Stride[2]:]
		for cx := 0; cx < cw; cx++ {
			r, g, b := sampleRGBBlock(src, in, cx*bw, cy*bh, bw, bh)
			_, u, v := cf.toYUV(r, g, b)
			urow[cx] = uint8(u)
			vrow[cx] = uint8(v)
		}
	}
	return nil
}

func rgbToBiplanarYUV(dst, src *VideoFrame, cf *yuvCoeffs, in rgbLayout) error {
	w, h := src.Width(), src.Height()
	format := dst.Desc.Format
	sx := pixelFormatInfo[format].chromaShiftX
	sy := pixelFormatInfo[format].chromaShiftY
	uOff, vOff := nvOrder(format)

	for y := 0; y < h; y++ {
		srow := src.Data[0][y*src.Stride[0]:]
		yrow := dst.Data[0][y*dst.Stride[0]:]
		for x := 0; x < w; x++ {
			sp := srow[x*in.bpp:]
			luma, _, _ := cf.toYUV(int32(sp[in.r]), int32(sp[in.g]), int32(sp[in.b]))
			yrow[x] = uint8(luma)
		}
	}

	cw, ch := format.ChromaDimensions(w, h)
	bw, bh := 1<<sx, 1<<sy
	for cy := 0; cy < ch; cy++ {
		uvrow := dst.Data[1][cy*dst.Stride[1]:]
		for cx := 0; cx < cw; cx++ {
			r, g, b := sampleRGBBlock(src, in, cx*bw, cy*bh, bw, bh)
			_, u, v := cf.toYUV(r, g, b)
			uvrow[cx*2+uOff] = uint8(u)
			uvrow[cx*2+vOff] = uint8(v)
		}
	}
	return nil
}

// sampleRGBBlock averages the RGB values of a block, clipping at the
// frame edge for odd dimensions.
func sampleRGBBlock(src *VideoFrame, in rgbLayout, x0, y0, bw, bh int) (int32, int32, int32) {
	x1 := min(x0+bw, src.Width())
	y1 := min(y0+bh, src.Height())
	var r, g, b, n int32
	for y := y0; y < y1; y++ {
		row := src.Data[0][y*src.Stride[0]:]
		for x := x0; x < x1; x++ {
			sp := row[x*in.bpp:]
			r += int32(sp[in.r])
			g += int32(sp[in.g])
			b += int32(sp[in.b])
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return (r + n/2) / n, (g + n/2) / n, (b + n/2) / n
}

func planarYUVToRGB(dst, src *VideoFrame, cf *yuvCoeffs, out rgbLayout) error {
	w, h := src.Width(), src.Height()
	sx := pixelFormatInfo[src.Desc.Format].chromaShiftX
	sy := pixelFormatInfo[src.Desc.Format].chromaShiftY

	for y := 0; y < h; y++ {
		yrow := src.Data[0][y*src.Stride[0]:]
		urow := src.Data[1][(y>>sy)*src.Stride[1]:]
		vrow := src.Data[2][(y>>sy)*src.Stride[2]:]
		drow := dst.Data[0][y*dst.Stride[0]:]
		for x := 0; x < w; x++ {
			r, g, b := cf.toRGB(int32(yrow[x]), int32(urow[x>>sx]), int32(vrow[x>>sx]))
			dp := drow[x*out.bpp:]
			dp[out.r], dp[out.g], dp[out.b] = uint8(r), uint8(g), uint8(b)
			if out.a >= 0 {
				dp[out.a] = 0xFF
			}
		}
	}
	return nil
}

func biplanarYUVToRGB(dst, src *VideoFrame, cf *yuvCoeffs, out rgbLayout) error {
	w, h := src.Width(), src.Height()
	format := src.Desc.Format
	sx := pixelFormatInfo[format].chromaShiftX
	sy := pixelFormatInfo[format].chromaShiftY
	uOff, vOff := nvOrder(format)

	for y := 0; y < h; y++ {
		yrow := src.Data[0][y*src.Stride[0]:]
		uvrow := src.Data[1][(y>>sy)*src.Stride[1]:]
		drow := dst.Data[0][y*dst.Stride[0]:]
		for x := 0; x < w; x++ {
			cx := (x >> sx) * 2
			r, g, b := cf.toRGB(int32(yrow[x]), int32(uvrow[cx+uOff]), int32(uvrow[cx+vOff]))
			dp := drow[x*out.bpp:]
			dp[out.r], dp[out.g], dp[out.b] = uint8(r), uint8(g), uint8(b)
			if out.a >= 0 {
				dp[out.a] = 0xFF
			}
		}
	}
	return nil
}

func planarYUVToPackedYUV(dst, src *VideoFrame, out packedYUVLayout) error {
	w, h := src.Width(), src.Height()
	sx := pixelFormatInfo[src.Desc.Format].chromaShiftX
	sy := pixelFormatInfo[src.Desc.Format].chromaShiftY
	pairs := (w + 1) / 2

	for y := 0; y < h; y++ {
		yrow := src.Data[0][y*src.Stride[0]:]
		urow := src.Data[1][(y>>sy)*src.Stride[1]:]
		vrow := src.Data[2][(y>>sy)*src.Stride[2]:]
		drow := dst.Data[0][y*dst.Stride[0]:]
		for p := 0; p < pairs; p++ {
			x0 := p * 2
			x1 := min(x0+1, w-1)
			var u, v uint8
			if sx == 0 {
				// 4:4:4 sources carry chroma per pixel; fold the pair.
				u = uint8((int(urow[x0]) + int(urow[x1]) + 1) / 2)
				v = uint8((int(vrow[x0]) + int(vrow[x1]) + 1) / 2)
			} else {
				u = urow[x0>>sx]
				v = vrow[x0>>sx]
			}
			dp := drow[p*4:]
			dp[out.y0] = yrow[x0]
			dp[out.y1] = yrow[x1]
			dp[out.u] = u
			dp[out.v] = v
		}
	}
	return nil
}

func packedYUVToPlanarYUV(dst, src *VideoFrame, in packedYUVLayout) error {
	w, h := src.Width(), src.Height()
	format := dst.Desc.Format
	sx := pixelFormatInfo[format].chromaShiftX
	sy := pixelFormatInfo[format].chromaShiftY
	pairs := (w + 1) / 2

	for y := 0; y < h; y++ {
		srow := src.Data[0][y*src.Stride[0]:]
		yrow := dst.Data[0][y*dst.Stride[0]:]
		for p := 0; p < pairs; p++ {
			sp := srow[p*4:]
			x0 := p * 2
			yrow[x0] = sp[in.y0]
			if x0+1 < w {
				yrow[x0+1] = sp[in.y1]
			}
		}
	}

	cw, ch := format.ChromaDimensions(w, h)
	for cy := 0; cy < ch; cy++ {
		urow := dst.Data[1][cy*dst.Stride[1]:]
		vrow := dst.Data[2][cy*dst.Stride[2]:]
		y0 := cy << sy
		y1 := min(y0+(1<<sy)-1, h-1)
		srow0 := src.Data[0][y0*src.Stride[0]:]
		srow1 := src.Data[0][y1*src.Stride[0]:]
		for cx := 0; cx < cw; cx++ {
			// Chroma samples live once per horizontal pair in the source.
			sp0 := srow0[(cx>>(1-sx))*4:]
			sp1 := srow1[(cx>>(1-sx))*4:]
			urow[cx] = uint8((int(sp0[in.u]) + int(sp1[in.u]) + 1) / 2)
			vrow[cx] = uint8((int(sp0[in.v]) + int(sp1[in.v]) + 1) / 2)
		}
	}
	return nil
}

func packedYUVToRGB(dst, src *VideoFrame, cf *yuvCoeffs, in packedYUVLayout, out rgbLayout) error {
	w, h := src.Width(), src.Height()
	for y := 0; y < h; y++ {
		srow := src.Data[0][y*src.Stride[0]:]
		drow := dst.Data[0][y*dst.Stride[0]:]
		for x := 0; x < w; x++ {
			sp := srow[(x>>1)*4:]
			luma := sp[in.y0]
			if x&1 == 1 {
				luma = sp[in.y1]
			}
			r, g, b := cf.toRGB(int32(luma), int32(sp[in.u]), int32(sp[in.v]))
			dp := drow[x*out.bpp:]
			dp[out.r], dp[out.g], dp[out.b] = uint8(r), uint8(g), uint8(b)
			if out.a >= 0 {
				dp[out.a] = 0xFF
			}
		}
	}
	return nil
}

// packRGB30 packs 10-bit RGB into a network order 32-bit word with the
// two low bits unused.
func packRGB30(dp []byte, r, g, b int32) {
	binary.BigEndian.PutUint32(dp, uint32(r)<<22|uint32(g)<<12|uint32(b)<<2)
}

func planar16YUVToRGB30(dst, src *VideoFrame, cf *yuvCoeffs) error {
	w, h := src.Width(), src.Height()
	sx := pixelFormatInfo[src.Desc.Format].chromaShiftX
	sy := pixelFormatInfo[src.Desc.Format].chromaShiftY

	for y := 0; y < h; y++ {
		yrow := src.Data[0][y*src.Stride[0]:]
		urow := src.Data[1][(y>>sy)*src.Stride[1]:]
		vrow := src.Data[2][(y>>sy)*src.Stride[2]:]
		drow := dst.Data[0][y*dst.Stride[0]:]
		for x := 0; x < w; x++ {
			cx := x >> sx
			luma := int32(binary.LittleEndian.Uint16(yrow[x*2:]) & 0x3FF)
			u := int32(binary.LittleEndian.Uint16(urow[cx*2:]) & 0x3FF)
			v := int32(binary.LittleEndian.Uint16(vrow[cx*2:]) & 0x3FF)
			r, g, b := cf.toRGB(luma, u, v)
			packRGB30(drow[x*4:], r, g, b)
		}
	}
	return nil
}

func biplanar16YUVToRGB30(dst, src *VideoFrame, cf *yuvCoeffs) error {
	w, h := src.Width(), src.Height()
	format := src.Desc.Format
	sx := pixelFormatInfo[format].chromaShiftX
	sy := pixelFormatInfo[format].chromaShiftY

	for y := 0; y < h; y++ {
		yrow := src.Data[0][y*src.Stride[0]:]
		uvrow := src.Data[1][(y>>sy)*src.Stride[1]:]
		drow := dst.Data[0][y*dst.Stride[0]:]
		for x := 0; x < w; x++ {
			cx := (x >> sx) * 4
			// P010/P210 keep their 10 bits in the high end of each sample.
			luma := int32(binary.LittleEndian.Uint16(yrow[x*2:]) >> 6)
			u := int32(binary.LittleEndian.Uint16(uvrow[cx:]) >> 6)
			v := int32(binary.LittleEndian.Uint16(uvrow[cx+2:]) >> 6)
			r, g, b := cf.toRGB(luma, u, v)
			packRGB30(drow[x*4:], r, g, b)
		}
	}
	return nil
}
