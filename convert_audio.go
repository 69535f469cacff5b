// Audio sample format conversion between raw audio frames.
package mediakit

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ConvertAudio converts src into dst, which carries the target sample
// format. Sample and channel counts must match; resampling and channel
// mixing are separate concerns. Mono frames are treated as planar
// regardless of the declared format. Sample memory is little-endian.
func ConvertAudio(dst, src *AudioFrame) error {
	if dst == nil || src == nil {
		return fmt.Errorf("nil frame: %w", ErrInvalidParameter)
	}
	if src.Desc.Samples != dst.Desc.Samples {
		return fmt.Errorf("samples %d vs %d: %w", src.Desc.Samples, dst.Desc.Samples, ErrUnsupported)
	}
	if src.Channels() != dst.Channels() {
		return fmt.Errorf("channels %d vs %d: %w", src.Channels(), dst.Channels(), ErrUnsupported)
	}

	srcFmt, dstFmt := src.Desc.Format, dst.Desc.Format
	if src.Channels() == 1 {
		srcFmt, dstFmt = srcFmt.Planar(), dstFmt.Planar()
	}

	if srcFmt == dstFmt {
		for i := range src.Data {
			if len(src.Data[i]) != len(dst.Data[i]) {
				return fmt.Errorf("plane %d size %d vs %d: %w", i, len(src.Data[i]), len(dst.Data[i]), ErrInvalidParameter)
			}
			copy(dst.Data[i], src.Data[i])
		}
		return nil
	}
	return convertSamples(dst, src, srcFmt, dstFmt)
}

// audioSteps returns the plane index stride, the per-sample index stride
// and the channel offset for walking one channel of a frame.
func audioSteps(f SampleFormat, channels int) (planeStep, dataStep, chanOff int) {
	if f.IsPlanar() {
		return 1, 1, 0
	}
	return 0, channels, 1
}

func convertSamples(dst, src *AudioFrame, srcFmt, dstFmt SampleFormat) error {
	channels := src.Channels()
	samples := src.Desc.Samples
	srcPlaneStep, srcStep, srcChanOff := audioSteps(srcFmt, channels)
	dstPlaneStep, dstStep, dstChanOff := audioSteps(dstFmt, channels)
	srcBytes := srcFmt.BytesPerSample()
	dstBytes := dstFmt.BytesPerSample()

	srcPacked := srcFmt.Packed()
	dstPacked := dstFmt.Packed()

	switch {
	case isIntSampleFormat(srcPacked) && isIntSampleFormat(dstPacked):
		read, write := normReader(srcPacked), normWriter(dstPacked)
		for ch := 0; ch < channels; ch++ {
			s := src.Data[ch*srcPlaneStep]
			d := dst.Data[ch*dstPlaneStep]
			for i := 0; i < samples; i++ {
				write(d[(i*dstStep+ch*dstChanOff)*dstBytes:], read(s[(i*srcStep+ch*srcChanOff)*srcBytes:]))
			}
		}
	case isIntSampleFormat(srcPacked):
		read, write := normReader(srcPacked), floatWriter(dstPacked)
		for ch := 0; ch < channels; ch++ {
			s := src.Data[ch*srcPlaneStep]
			d := dst.Data[ch*dstPlaneStep]
			for i := 0; i < samples; i++ {
				v := float64(read(s[(i*srcStep+ch*srcChanOff)*srcBytes:])) / (1 << 63)
				write(d[(i*dstStep+ch*dstChanOff)*dstBytes:], v)
			}
		}
	case isIntSampleFormat(dstPacked):
		read, write := floatReader(srcPacked), rawIntWriter(dstPacked)
		bits := dstPacked.Bits()
		for ch := 0; ch < channels; ch++ {
			s := src.Data[ch*srcPlaneStep]
			d := dst.Data[ch*dstPlaneStep]
			for i := 0; i < samples; i++ {
				v := roundToInt(read(s[(i*srcStep+ch*srcChanOff)*srcBytes:]), bits)
				write(d[(i*dstStep+ch*dstChanOff)*dstBytes:], v)
			}
		}
	default:
		read, write := floatReader(srcPacked), floatWriter(dstPacked)
		for ch := 0; ch < channels; ch++ {
			s := src.Data[ch*srcPlaneStep]
			d := dst.Data[ch*dstPlaneStep]
			for i := 0; i < samples; i++ {
				write(d[(i*dstStep+ch*dstChanOff)*dstBytes:], read(s[(i*srcStep+ch*srcChanOff)*srcBytes:]))
			}
		}
	}
	return nil
}

func isIntSampleFormat(f SampleFormat) bool {
	switch f {
	case SampleFormatU8, SampleFormatS16, SampleFormatS32, SampleFormatS64:
		return true
	}
	return false
}

// normReader reads one integer sample scaled to full s64 range, so
// integer width changes become pure shifts.
func normReader(f SampleFormat) func([]byte) int64 {
	switch f {
	case SampleFormatU8:
		return func(b []byte) int64 { return (int64(b[0]) - 0x80) << 56 }
	case SampleFormatS16:
		return func(b []byte) int64 { return int64(int16(binary.LittleEndian.Uint16(b))) << 48 }
	case SampleFormatS32:
		return func(b []byte) int64 { return int64(int32(binary.LittleEndian.Uint32(b))) << 32 }
	default:
		return func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) }
	}
}

func normWriter(f SampleFormat) func([]byte, int64) {
	switch f {
	case SampleFormatU8:
		return func(b []byte, v int64) { b[0] = uint8((v >> 56) + 0x80) }
	case SampleFormatS16:
		return func(b []byte, v int64) { binary.LittleEndian.PutUint16(b, uint16(v>>48)) }
	case SampleFormatS32:
		return func(b []byte, v int64) { binary.LittleEndian.PutUint32(b, uint32(v>>32)) }
	default:
		return func(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }
	}
}

// rawIntWriter writes a sample already scaled to the target width.
func rawIntWriter(f SampleFormat) func([]byte, int64) {
	switch f {
	case SampleFormatU8:
		return func(b []byte, v int64) { b[0] = uint8(v + 0x80) }
	case SampleFormatS16:
		return func(b []byte, v int64) { binary.LittleEndian.PutUint16(b, uint16(v)) }
	case SampleFormatS32:
		return func(b []byte, v int64) { binary.LittleEndian.PutUint32(b, uint32(v)) }
	default:
		return func(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }
	}
}

func floatReader(f SampleFormat) func([]byte) float64 {
	if f == SampleFormatF32 {
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	}
	return func(b []byte) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

func floatWriter(f SampleFormat) func([]byte, float64) {
	if f == SampleFormatF32 {
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		}
	}
	return func(b []byte, v float64) {
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

// roundToInt scales a float sample to an integer of the given width,
// rounding half away from zero and saturating.
func roundToInt(v float64, bits int) int64 {
	scale := math.Ldexp(1, bits-1)
	r := math.Round(v * scale)
	if bits == 64 {
		if r >= scale {
			return math.MaxInt64
		}
		if r < -scale {
			return math.MinInt64
		}
		return int64(r)
	}
	if r >= scale {
		return int64(scale) - 1
	}
	if r < -scale {
		return -int64(scale)
	}
	return int64(r)
}
