// Video frame scaling.
package mediakit

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ScaleFilter selects the resampling kernel. The zero value is bilinear.
type ScaleFilter int

const (
	ScaleFilterBilinear ScaleFilter = iota
	ScaleFilterNearest
	ScaleFilterBicubic
)

func (f ScaleFilter) String() string {
	switch f {
	case ScaleFilterBilinear:
		return "bilinear"
	case ScaleFilterNearest:
		return "nearest"
	case ScaleFilterBicubic:
		return "bicubic"
	}
	return "unknown"
}

func (f ScaleFilter) taps() int {
	switch f {
	case ScaleFilterNearest:
		return 1
	case ScaleFilterBicubic:
		return 4
	}
	return 2
}

// ScaleMode defines how scaling handles aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeFit scales to fit within the target, preserving aspect ratio (may letterbox).
	ScaleModeFit ScaleMode = iota
	// ScaleModeFill scales to fill the target, preserving aspect ratio (may crop).
	ScaleModeFill
	// ScaleModeStretch scales to exactly the target dimensions (may distort).
	ScaleModeStretch
)

// ScaleVideo resamples src into dst using the given filter. Both frames
// must carry the same pixel format; dst defines the target dimensions.
// Packed 4:2:2 formats and RGB30 are not scalable.
func ScaleVideo(dst, src *VideoFrame, filter ScaleFilter) error {
	if dst == nil || src == nil {
		return fmt.Errorf("nil frame: %w", ErrInvalidParameter)
	}
	if src.Desc.Format != dst.Desc.Format {
		return fmt.Errorf("pixel format %s vs %s: %w", src.Desc.Format, dst.Desc.Format, ErrInvalidParameter)
	}
	if src.Width() == dst.Width() && src.Height() == dst.Height() {
		return copyVideoData(dst, src)
	}
	return scaleViewport(dst, fullRect(dst), src, fullRect(src), filter)
}

type viewRect struct {
	x, y, w, h int
}

func fullRect(f *VideoFrame) viewRect {
	return viewRect{0, 0, f.Width(), f.Height()}
}

// scaleViewport resamples the srcRect region of src into the dstRect
// region of dst. Rectangle coordinates are even so chroma planes stay
// sample aligned.
func scaleViewport(dst *VideoFrame, dstRect viewRect, src *VideoFrame, srcRect viewRect, filter ScaleFilter) error {
	if srcRect.w <= 0 || srcRect.h <= 0 || dstRect.w <= 0 || dstRect.h <= 0 {
		return fmt.Errorf("empty scale region: %w", ErrInvalidParameter)
	}

	format := src.Desc.Format
	desc := &pixelFormatInfo[format]
	sx, sy := desc.chromaShiftX, desc.chromaShiftY

	lumaX := buildResamplePlan(srcRect.w, dstRect.w, filter)
	lumaY := buildResamplePlan(srcRect.h, dstRect.h, filter)

	switch format {
	case PixelFormatARGB32, PixelFormatBGRA32, PixelFormatABGR32, PixelFormatRGBA32:
		resamplePlane8(planeView(dst, 0, dstRect.x, dstRect.y, 4), dst.Stride[0],
			planeView(src, 0, srcRect.x, srcRect.y, 4), src.Stride[0],
			dstRect.w, dstRect.h, 4, lumaX, lumaY)
	case PixelFormatRGB24, PixelFormatBGR24:
		resamplePlane8(planeView(dst, 0, dstRect.x, dstRect.y, 3), dst.Stride[0],
			planeView(src, 0, srcRect.x, srcRect.y, 3), src.Stride[0],
			dstRect.w, dstRect.h, 3, lumaX, lumaY)
	case PixelFormatY8:
		resamplePlane8(planeView(dst, 0, dstRect.x, dstRect.y, 1), dst.Stride[0],
			planeView(src, 0, srcRect.x, srcRect.y, 1), src.Stride[0],
			dstRect.w, dstRect.h, 1, lumaX, lumaY)
	case PixelFormatYA8:
		resamplePlane8(planeView(dst, 0, dstRect.x, dstRect.y, 2), dst.Stride[0],
			planeView(src, 0, srcRect.x, srcRect.y, 2), src.Stride[0],
			dstRect.w, dstRect.h, 2, lumaX, lumaY)
	case PixelFormatI420, PixelFormatI422, PixelFormatI444:
		chromaX := buildResamplePlan(ceilRshift(srcRect.w, sx), ceilRshift(dstRect.w, sx), filter)
		chromaY := buildResamplePlan(ceilRshift(srcRect.h, sy), ceilRshift(dstRect.h, sy), filter)
		resamplePlane8(planeView(dst, 0, dstRect.x, dstRect.y, 1), dst.Stride[0],
			planeView(src, 0, srcRect.x, srcRect.y, 1), src.Stride[0],
			dstRect.w, dstRect.h, 1, lumaX, lumaY)
		for i := 1; i < 3; i++ {
			resamplePlane8(planeView(dst, i, dstRect.x>>sx, dstRect.y>>sy, 1), dst.Stride[i],
				planeView(src, i, srcRect.x>>sx, srcRect.y>>sy, 1), src.Stride[i],
				ceilRshift(dstRect.w, sx), ceilRshift(dstRect.h, sy), 1, chromaX, chromaY)
		}
	case PixelFormatNV12, PixelFormatNV21, PixelFormatNV16, PixelFormatNV61, PixelFormatNV24, PixelFormatNV42:
		chromaX := buildResamplePlan(ceilRshift(srcRect.w, sx), ceilRshift(dstRect.w, sx), filter)
		chromaY := buildResamplePlan(ceilRshift(srcRect.h, sy), ceilRshift(dstRect.h, sy), filter)
		resamplePlane8(planeView(dst, 0, dstRect.x, dstRect.y, 1), dst.Stride[0],
			planeView(src, 0, srcRect.x, srcRect.y, 1), src.Stride[0],
			dstRect.w, dstRect.h, 1, lumaX, lumaY)
		resamplePlane8(planeView(dst, 1, dstRect.x>>sx, dstRect.y>>sy, 2), dst.Stride[1],
			planeView(src, 1, srcRect.x>>sx, srcRect.y>>sy, 2), src.Stride[1],
			ceilRshift(dstRect.w, sx), ceilRshift(dstRect.h, sy), 2, chromaX, chromaY)
	case PixelFormatI010, PixelFormatI210, PixelFormatI410:
		chromaX := buildResamplePlan(ceilRshift(srcRect.w, sx), ceilRshift(dstRect.w, sx), filter)
		chromaY := buildResamplePlan(ceilRshift(srcRect.h, sy), ceilRshift(dstRect.h, sy), filter)
		resamplePlane16(planeView(dst, 0, dstRect.x, dstRect.y, 2), dst.Stride[0],
			planeView(src, 0, srcRect.x, srcRect.y, 2), src.Stride[0],
			dstRect.w, dstRect.h, 1, lumaX, lumaY)
		for i := 1; i < 3; i++ {
			resamplePlane16(planeView(dst, i, dstRect.x>>sx, dstRect.y>>sy, 2), dst.Stride[i],
				planeView(src, i, srcRect.x>>sx, srcRect.y>>sy, 2), src.Stride[i],
				ceilRshift(dstRect.w, sx), ceilRshift(dstRect.h, sy), 1, chromaX, chromaY)
		}
	case PixelFormatP010, PixelFormatP210:
		chromaX := buildResamplePlan(ceilRshift(srcRect.w, sx), ceilRshift(dstRect.w, sx), filter)
		chromaY := buildResamplePlan(ceilRshift(srcRect.h, sy), ceilRshift(dstRect.h, sy), filter)
		resamplePlane16(planeView(dst, 0, dstRect.x, dstRect.y, 2), dst.Stride[0],
			planeView(src, 0, srcRect.x, srcRect.y, 2), src.Stride[0],
			dstRect.w, dstRect.h, 1, lumaX, lumaY)
		resamplePlane16(planeView(dst, 1, dstRect.x>>sx, dstRect.y>>sy, 4), dst.Stride[1],
			planeView(src, 1, srcRect.x>>sx, srcRect.y>>sy, 4), src.Stride[1],
			ceilRshift(dstRect.w, sx), ceilRshift(dstRect.h, sy), 2, chromaX, chromaY)
	default:
		return fmt.Errorf("scale %s: %w", format, ErrUnsupported)
	}
	return nil
}

// planeView returns the plane slice offset to pixel (x, y), pixBytes
// bytes per pixel.
func planeView(f *VideoFrame, plane, x, y, pixBytes int) []byte {
	return f.Data[plane][y*f.Stride[plane]+x*pixBytes:]
}

// resamplePlan holds per-output-coordinate source taps and q14 weights
// for one axis.
type resamplePlan struct {
	taps int
	idx  []int32
	w    []int32
}

// buildResamplePlan computes the tap positions and weights mapping dstN
// output samples onto srcN input samples with pixel-center alignment.
// Edge taps clamp to the border sample.
func buildResamplePlan(srcN, dstN int, filter ScaleFilter) resamplePlan {
	taps := filter.taps()
	plan := resamplePlan{
		taps: taps,
		idx:  make([]int32, dstN*taps),
		w:    make([]int32, dstN*taps),
	}
	const one = 1 << 14

	clampIdx := func(i int) int32 {
		if i < 0 {
			return 0
		}
		if i >= srcN {
			return int32(srcN - 1)
		}
		return int32(i)
	}

	for x := 0; x < dstN; x++ {
		// pos = (x+0.5)*srcN/dstN - 0.5 in 16.16 fixed point.
		pos := ((2*int64(x)+1)*int64(srcN)<<15)/int64(dstN) - (1 << 15)
		i := int(pos >> 16)
		frac := pos - int64(i)<<16

		o := x * taps
		switch filter {
		case ScaleFilterNearest:
			plan.idx[o] = clampIdx(int((pos + 1<<15) >> 16))
			plan.w[o] = one
		case ScaleFilterBicubic:
			// Catmull-Rom weights; the center tap absorbs the
			// rounding error so weights always sum to one.
			t := float64(frac) / (1 << 16)
			plan.idx[o] = clampIdx(i - 1)
			plan.idx[o+1] = clampIdx(i)
			plan.idx[o+2] = clampIdx(i + 1)
			plan.idx[o+3] = clampIdx(i + 2)
			plan.w[o] = int32(math.Round((((-0.5*t+1.0)*t - 0.5) * t) * one))
			plan.w[o+2] = int32(math.Round((((-1.5*t+2.0)*t + 0.5) * t) * one))
			plan.w[o+3] = int32(math.Round(((0.5*t - 0.5) * t * t) * one))
			plan.w[o+1] = one - plan.w[o] - plan.w[o+2] - plan.w[o+3]
		default:
			w1 := int32((frac + 2) >> 2)
			plan.idx[o] = clampIdx(i)
			plan.idx[o+1] = clampIdx(i + 1)
			plan.w[o] = one - w1
			plan.w[o+1] = w1
		}
	}
	return plan
}

func resamplePlane8(dst []byte, dstStride int, src []byte, srcStride, dstW, dstH, channels int, xp, yp resamplePlan) {
	for y := 0; y < dstH; y++ {
		yi := yp.idx[y*yp.taps : (y+1)*yp.taps]
		yw := yp.w[y*yp.taps : (y+1)*yp.taps]
		row := dst[y*dstStride:]
		for x := 0; x < dstW; x++ {
			xi := xp.idx[x*xp.taps : (x+1)*xp.taps]
			xw := xp.w[x*xp.taps : (x+1)*xp.taps]
			for c := 0; c < channels; c++ {
				var acc int64
				for j := range yi {
					srow := src[int(yi[j])*srcStride:]
					wy := int64(yw[j])
					for k := range xi {
						acc += wy * int64(xw[k]) * int64(srow[int(xi[k])*channels+c])
					}
				}
				v := (acc + 1<<27) >> 28
				if v < 0 {
					v = 0
				} else if v > 255 {
					v = 255
				}
				row[x*channels+c] = byte(v)
			}
		}
	}
}

func resamplePlane16(dst []byte, dstStride int, src []byte, srcStride, dstW, dstH, channels int, xp, yp resamplePlan) {
	for y := 0; y < dstH; y++ {
		yi := yp.idx[y*yp.taps : (y+1)*yp.taps]
		yw := yp.w[y*yp.taps : (y+1)*yp.taps]
		row := dst[y*dstStride:]
		for x := 0; x < dstW; x++ {
			xi := xp.idx[x*xp.taps : (x+1)*xp.taps]
			xw := xp.w[x*xp.taps : (x+1)*xp.taps]
			for c := 0; c < channels; c++ {
				var acc int64
				for j := range yi {
					srow := src[int(yi[j])*srcStride:]
					wy := int64(yw[j])
					for k := range xi {
						s := binary.LittleEndian.Uint16(srow[(int(xi[k])*channels+c)*2:])
						acc += wy * int64(xw[k]) * int64(s)
					}
				}
				v := (acc + 1<<27) >> 28
				if v < 0 {
					v = 0
				} else if v > 65535 {
					v = 65535
				}
				binary.LittleEndian.PutUint16(row[(x*channels+c)*2:], uint16(v))
			}
		}
	}
}

// Scaler resamples frames to a fixed target size with aspect ratio
// handling, reusing its output frame across calls.
type Scaler struct {
	dstWidth  int
	dstHeight int
	mode      ScaleMode
	filter    ScaleFilter

	out      *VideoFrame
	lastView viewRect
}

// NewScaler creates a scaler producing dstWidth×dstHeight frames.
func NewScaler(dstWidth, dstHeight int, mode ScaleMode, filter ScaleFilter) (*Scaler, error) {
	if dstWidth <= 0 || dstHeight <= 0 {
		return nil, fmt.Errorf("scaler size %dx%d: %w", dstWidth, dstHeight, ErrInvalidParameter)
	}
	return &Scaler{
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
		mode:      mode,
		filter:    filter,
	}, nil
}

// Scale resamples src to the target size. The returned frame is owned
// by the scaler and valid until the next call; src is returned as is
// when it already matches the target.
func (s *Scaler) Scale(src *VideoFrame) (*VideoFrame, error) {
	if src == nil {
		return nil, fmt.Errorf("nil frame: %w", ErrInvalidParameter)
	}
	if src.Width() == s.dstWidth && src.Height() == s.dstHeight {
		return src, nil
	}

	if s.out == nil || s.out.Desc.Format != src.Desc.Format {
		out, err := NewVideoFrame(src.Desc.Format, s.dstWidth, s.dstHeight)
		if err != nil {
			return nil, err
		}
		s.out = out
		s.lastView = viewRect{-1, -1, -1, -1}
	}

	srcRect := viewRect{0, 0, src.Width(), src.Height()}
	dstRect := viewRect{0, 0, s.dstWidth, s.dstHeight}
	switch s.mode {
	case ScaleModeFill:
		srcRect = cropToAspect(src.Width(), src.Height(), s.dstWidth, s.dstHeight)
	case ScaleModeFit:
		w, h := CalculateScaledSize(src.Width(), src.Height(), s.dstWidth, s.dstHeight, ScaleModeFit)
		dstRect = viewRect{((s.dstWidth - w) / 2) &^ 1, ((s.dstHeight - h) / 2) &^ 1, w, h}
	}
	if dstRect != s.lastView {
		fillNeutral(s.out)
		s.lastView = dstRect
	}

	if err := scaleViewport(s.out, dstRect, src, srcRect, s.filter); err != nil {
		return nil, err
	}

	out := s.out
	out.Desc = src.Desc
	out.Desc.Width = s.dstWidth
	out.Desc.Height = s.dstHeight
	out.Desc.CropLeft, out.Desc.CropTop = 0, 0
	out.Desc.CropRight, out.Desc.CropBottom = 0, 0
	out.PTS = src.PTS
	out.DTS = src.DTS
	out.Duration = src.Duration
	out.TimeBase = src.TimeBase
	out.Source = src.Source
	return out, nil
}

// cropToAspect returns the centered source region matching the target
// aspect ratio, with even origin and size.
func cropToAspect(srcW, srcH, dstW, dstH int) viewRect {
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)
	switch {
	case srcAspect > dstAspect:
		w := int(float64(srcH)*dstAspect) &^ 1
		return viewRect{((srcW - w) / 2) &^ 1, 0, w, srcH}
	case srcAspect < dstAspect:
		h := int(float64(srcW)/dstAspect) &^ 1
		return viewRect{0, ((srcH - h) / 2) &^ 1, srcW, h}
	}
	return viewRect{0, 0, srcW, srcH}
}

// CalculateScaledSize returns the output dimensions when scaling srcW×srcH
// into maxW×maxH with the given mode. Dimensions are rounded to even.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	if mode != ScaleModeFit {
		return maxW, maxH
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)
	if srcAspect > dstAspect {
		w = maxW
		h = int(float64(maxW) / srcAspect)
	} else {
		h = maxH
		w = int(float64(maxH) * srcAspect)
	}
	w = (w + 1) &^ 1
	h = (h + 1) &^ 1
	if w > maxW {
		w = maxW
	}
	if h > maxH {
		h = maxH
	}
	return w, h
}

// alphaOffset returns the alpha byte position inside a packed RGB
// pixel, or -1 when the format has no alpha channel.
func alphaOffset(f PixelFormat) int {
	switch f {
	case PixelFormatARGB32, PixelFormatABGR32:
		return 0
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 3
	}
	return -1
}

// fillNeutral writes opaque black into every plane so letterbox borders
// carry neutral chroma.
func fillNeutral(f *VideoFrame) {
	desc := &pixelFormatInfo[f.Desc.Format]
	for i, plane := range f.Data {
		if i == 0 {
			for j := range plane {
				plane[j] = 0
			}
			if off := alphaOffset(f.Desc.Format); off >= 0 {
				for j := off; j < len(plane); j += 4 {
					plane[j] = 0xFF
				}
			} else if f.Desc.Format == PixelFormatYA8 {
				for j := 1; j < len(plane); j += 2 {
					plane[j] = 0xFF
				}
			}
			continue
		}
		if desc.depth > 8 {
			neutral := uint16(0x8000)
			if desc.flags&fmtPlanar != 0 {
				neutral = 1 << (desc.depth - 1)
			}
			for j := 0; j+1 < len(plane); j += 2 {
				binary.LittleEndian.PutUint16(plane[j:], neutral)
			}
			continue
		}
		for j := range plane {
			plane[j] = 0x80
		}
	}
}
