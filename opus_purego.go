//go:build (darwin || linux) && !noopus

// Opus audio codec bound to the system libopus through purego. The
// library is loaded lazily on first Init, so Opus being registered does
// not require libopus at build time, only at run time.
package mediakit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	libopusOnce    sync.Once
	libopusHandle  uintptr
	libopusInitErr error
)

// libopus entry points. opus_encoder_ctl is variadic in C; every
// request used here takes exactly one int32, so it is registered with a
// fixed three argument signature.
var (
	opusEncoderCreate  func(sampleRate, channels, application int32, errOut uintptr) uintptr
	opusEncode         func(enc uintptr, pcm uintptr, frameSize int32, data uintptr, maxBytes int32) int32
	opusEncoderCtl     func(enc uintptr, request, value int32) int32
	opusEncoderDestroy func(enc uintptr)

	opusDecoderCreate  func(sampleRate, channels int32, errOut uintptr) uintptr
	opusDecode         func(dec uintptr, data uintptr, dataLen int32, pcm uintptr, frameSize, decodeFEC int32) int32
	opusDecoderDestroy func(dec uintptr)

	opusPacketGetNbSamples func(data uintptr, dataLen, sampleRate int32) int32
	opusStrerror           func(code int32) uintptr
	opusVersionString      func() uintptr
)

// Constants from opus_defines.h.
const (
	opusAppVOIP     = 2048
	opusAppAudio    = 2049
	opusAppLowDelay = 2051

	opusSetBitrate        = 4002
	opusSetComplexity     = 4010
	opusSetInbandFEC      = 4012
	opusSetPacketLossPerc = 4014
	opusSetDTX            = 4016

	opusOK = 0

	// Large enough for any single Opus packet.
	opusMaxPacketBytes = 4000
	// 120 ms, the longest frame libopus will produce.
	opusMaxFrameMs     = 120
	opusDefaultFrameMs = 20
)

func loadLibopus() error {
	libopusOnce.Do(func() {
		libopusInitErr = dlopenLibopus()
	})
	return libopusInitErr
}

func dlopenLibopus() error {
	var names []string
	if env := os.Getenv("MEDIAKIT_LIB_PATH"); env != "" {
		names = append(names, filepath.Join(env, libName("opus")))
	}
	switch runtime.GOOS {
	case "darwin":
		names = append(names,
			"libopus.dylib",
			"/usr/local/lib/libopus.dylib",
			"/opt/homebrew/lib/libopus.dylib",
		)
	default:
		names = append(names, "libopus.so.0", "libopus.so")
	}

	var lastErr error
	for _, name := range names {
		handle, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		libopusHandle = handle
		registerLibopusSymbols()
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate names")
	}
	return fmt.Errorf("load libopus: %w", lastErr)
}

func registerLibopusSymbols() {
	purego.RegisterLibFunc(&opusEncoderCreate, libopusHandle, "opus_encoder_create")
	purego.RegisterLibFunc(&opusEncode, libopusHandle, "opus_encode")
	purego.RegisterLibFunc(&opusEncoderCtl, libopusHandle, "opus_encoder_ctl")
	purego.RegisterLibFunc(&opusEncoderDestroy, libopusHandle, "opus_encoder_destroy")

	purego.RegisterLibFunc(&opusDecoderCreate, libopusHandle, "opus_decoder_create")
	purego.RegisterLibFunc(&opusDecode, libopusHandle, "opus_decode")
	purego.RegisterLibFunc(&opusDecoderDestroy, libopusHandle, "opus_decoder_destroy")

	purego.RegisterLibFunc(&opusPacketGetNbSamples, libopusHandle, "opus_packet_get_nb_samples")
	purego.RegisterLibFunc(&opusStrerror, libopusHandle, "opus_strerror")
	purego.RegisterLibFunc(&opusVersionString, libopusHandle, "opus_get_version_string")
}

// OpusAvailable reports whether libopus could be loaded.
func OpusAvailable() bool {
	return loadLibopus() == nil
}

// OpusVersion returns the libopus version string, or "" when the
// library is not available.
func OpusVersion() string {
	if !OpusAvailable() {
		return ""
	}
	return goStringFromPtr(opusVersionString())
}

// OpusPacketSamples returns the sample count a coded Opus packet will
// decode to at the given rate, or 0 when that cannot be determined.
func OpusPacketSamples(data []byte, sampleRate int) int {
	if !OpusAvailable() || len(data) == 0 {
		return 0
	}
	n := opusPacketGetNbSamples(uintptr(unsafe.Pointer(&data[0])), int32(len(data)), int32(sampleRate))
	if n < 0 {
		return 0
	}
	return int(n)
}

func opusError(code int32) error {
	msg := "unknown error"
	if opusStrerror != nil {
		if s := goStringFromPtr(opusStrerror(code)); s != "" {
			msg = s
		}
	}
	return fmt.Errorf("libopus: %s", msg)
}

func init() {
	RegisterAudioDecoder(&opusBuilder{}, true)
	RegisterAudioEncoder(&opusBuilder{}, true)
}

type opusBuilder struct{}

func (opusBuilder) ID() CodecID  { return CodecIDOpus }
func (opusBuilder) Name() string { return "opus" }

func (b *opusBuilder) NewDecoder(params *CodecParameters) (AudioDecoder, error) {
	return &opusDecoder{}, nil
}

func (b *opusBuilder) NewEncoder(params *CodecParameters) (AudioEncoder, error) {
	return &opusEncoder{application: opusAppVOIP}, nil
}

// opusStreamShape resolves the stream geometry, defaulting to 48 kHz
// mono. Opus carries at most two channels and a fixed set of rates.
func opusStreamShape(audio *AudioParameters) (channels, rate int, err error) {
	channels = audio.Channels()
	if channels == 0 {
		channels = 1
	}
	if channels > 2 {
		return 0, 0, fmt.Errorf("opus channels %d: %w", channels, ErrUnsupported)
	}
	rate = audio.SampleRate
	if rate == 0 {
		rate = 48000
	}
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return 0, 0, fmt.Errorf("opus sample rate %d: %w", rate, ErrUnsupported)
	}
	if audio.Format != SampleFormatNone && audio.Format != SampleFormatS16 {
		return 0, 0, fmt.Errorf("opus sample format %s: %w", audio.Format, ErrUnsupported)
	}
	return channels, rate, nil
}

type opusDecoder struct {
	handle   uintptr
	channels int
	rate     int
	pcmBuf   []int16
	closed   bool
	eos      bool
	pending  *AudioFrame
}

func (*opusDecoder) ID() CodecID  { return CodecIDOpus }
func (*opusDecoder) Name() string { return "opus" }

func (d *opusDecoder) Init(config *AudioDecoderConfig) error {
	if err := loadLibopus(); err != nil {
		return fmt.Errorf("opus decoder: %w", err)
	}
	channels, rate, err := opusStreamShape(&config.Audio)
	if err != nil {
		return err
	}

	var cerr int32
	handle := opusDecoderCreate(int32(rate), int32(channels), uintptr(unsafe.Pointer(&cerr)))
	if handle == 0 || cerr != opusOK {
		return fmt.Errorf("create opus decoder: %w", opusError(cerr))
	}
	d.handle = handle
	d.channels = channels
	d.rate = rate
	d.pcmBuf = make([]int16, rate*opusMaxFrameMs/1000*channels)
	return nil
}

// SendPacket decodes one Opus packet. An empty packet runs packet loss
// concealment and yields a synthesized 20 ms frame.
func (d *opusDecoder) SendPacket(config *AudioDecoderConfig, pool *AudioFramePool, pkt *Packet) error {
	switch {
	case d.closed:
		return ErrClosed
	case d.eos:
		return io.EOF
	case pkt == nil:
		return fmt.Errorf("nil packet: %w", ErrInvalidParameter)
	case d.pending != nil:
		return ErrAgain
	}

	var dataPtr uintptr
	frameSize := int32(d.rate * opusDefaultFrameMs / 1000)
	if len(pkt.Data) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&pkt.Data[0]))
		frameSize = int32(d.rate * opusMaxFrameMs / 1000)
	}

	n := opusDecode(d.handle, dataPtr, int32(len(pkt.Data)),
		uintptr(unsafe.Pointer(&d.pcmBuf[0])), frameSize, 0)
	if n < 0 {
		return fmt.Errorf("opus decode: %w", opusError(n))
	}
	samples := int(n)

	desc, err := NewAudioDescriptor(SampleFormatS16, d.channels, samples, d.rate)
	if err != nil {
		return err
	}
	frame, err := allocAudioFrame(pool, desc)
	if err != nil {
		return err
	}

	out := frame.Data[0]
	for i, v := range d.pcmBuf[:samples*d.channels] {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}

	frame.PTS = pkt.PTS
	frame.TimeBase = pkt.TimeBase
	frame.Duration = audioDuration(pkt.Duration, samples, d.rate, pkt.TimeBase)
	d.pending = frame
	return nil
}

func (d *opusDecoder) ReceiveFrame(config *AudioDecoderConfig, pool *AudioFramePool) (*AudioFrame, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if f := d.pending; f != nil {
		d.pending = nil
		return f, nil
	}
	if d.eos {
		return nil, io.EOF
	}
	return nil, ErrAgain
}

func (d *opusDecoder) Flush(config *AudioDecoderConfig) error {
	if d.closed {
		return ErrClosed
	}
	d.eos = true
	return nil
}

func (d *opusDecoder) Close() error {
	if d.handle != 0 {
		opusDecoderDestroy(d.handle)
		d.handle = 0
	}
	d.closed = true
	d.pending = nil
	return nil
}

type opusEncoder struct {
	handle      uintptr
	channels    int
	rate        int
	application int32
	packetBuf   []byte
	pcmBuf      []int16
	closed      bool
	eos         bool
	pending     *Packet
}

func (*opusEncoder) ID() CodecID  { return CodecIDOpus }
func (*opusEncoder) Name() string { return "opus" }

func (e *opusEncoder) Init(config *AudioEncoderConfig) error {
	if err := loadLibopus(); err != nil {
		return fmt.Errorf("opus encoder: %w", err)
	}
	channels, rate, err := opusStreamShape(&config.Audio)
	if err != nil {
		return err
	}

	var cerr int32
	handle := opusEncoderCreate(int32(rate), int32(channels), e.application, uintptr(unsafe.Pointer(&cerr)))
	if handle == 0 || cerr != opusOK {
		return fmt.Errorf("create opus encoder: %w", opusError(cerr))
	}
	e.handle = handle
	e.channels = channels
	e.rate = rate
	e.packetBuf = make([]byte, opusMaxPacketBytes)

	if config.Encoder.BitRate > 0 {
		opusEncoderCtl(e.handle, opusSetBitrate, int32(config.Encoder.BitRate))
	}
	opusEncoderCtl(e.handle, opusSetInbandFEC, 1)
	opusEncoderCtl(e.handle, opusSetPacketLossPerc, 10)

	// Callers that size frames off the config get the 20 ms default.
	config.FrameSize = e.rate * opusDefaultFrameMs / 1000
	return nil
}

// SetOption handles the libopus knobs beyond the common option keys:
// "application" ("voip", "audio", "lowdelay"), "complexity" (0-10),
// "dtx", "fec" and "packet_loss" (percent). "bit_rate" is applied live
// when the encoder is already running.
func (e *opusEncoder) SetOption(key string, value any) error {
	boolCtl := func(request int32) error {
		v, ok := optionBool(value)
		if !ok {
			return fmt.Errorf("%s %v: %w", key, value, ErrInvalidParameter)
		}
		arg := int32(0)
		if v {
			arg = 1
		}
		if rc := opusEncoderCtl(e.handle, request, arg); rc != opusOK {
			return opusError(rc)
		}
		return nil
	}

	switch key {
	case "bit_rate":
		if v, ok := optionInt(value); ok && v > 0 && e.handle != 0 {
			if rc := opusEncoderCtl(e.handle, opusSetBitrate, int32(v)); rc != opusOK {
				return opusError(rc)
			}
		}
	case "application":
		if e.handle != 0 {
			return fmt.Errorf("application is fixed after init: %w", ErrInvalidParameter)
		}
		switch value {
		case "voip":
			e.application = opusAppVOIP
		case "audio":
			e.application = opusAppAudio
		case "lowdelay":
			e.application = opusAppLowDelay
		default:
			return fmt.Errorf("application %v: %w", value, ErrInvalidParameter)
		}
	case "complexity":
		v, ok := optionInt(value)
		if !ok || v < 0 || v > 10 {
			return fmt.Errorf("complexity %v: %w", value, ErrInvalidParameter)
		}
		if e.handle != 0 {
			if rc := opusEncoderCtl(e.handle, opusSetComplexity, int32(v)); rc != opusOK {
				return opusError(rc)
			}
		}
	case "dtx":
		if e.handle != 0 {
			return boolCtl(opusSetDTX)
		}
	case "fec":
		if e.handle != 0 {
			return boolCtl(opusSetInbandFEC)
		}
	case "packet_loss":
		v, ok := optionInt(value)
		if !ok || v < 0 || v > 100 {
			return fmt.Errorf("packet_loss %v: %w", value, ErrInvalidParameter)
		}
		if e.handle != 0 {
			if rc := opusEncoderCtl(e.handle, opusSetPacketLossPerc, int32(v)); rc != opusOK {
				return opusError(rc)
			}
		}
	}
	return nil
}

// SendFrame encodes one frame of interleaved S16 samples. The frame
// must span a duration libopus accepts (2.5 to 120 ms).
func (e *opusEncoder) SendFrame(config *AudioEncoderConfig, pool *BufferPool, frame *AudioFrame) error {
	switch {
	case e.closed:
		return ErrClosed
	case e.eos:
		return io.EOF
	case frame == nil || len(frame.Data) == 0 || len(frame.Data[0]) == 0:
		return fmt.Errorf("empty frame: %w", ErrInvalidParameter)
	case e.pending != nil:
		return ErrAgain
	}
	if f := frame.Desc.Format; f != SampleFormatNone && f != SampleFormatS16 {
		return fmt.Errorf("opus input %s: %w", f, ErrUnsupported)
	}

	in := frame.Data[0]
	stride := 2 * e.channels
	if len(in)%stride != 0 {
		return fmt.Errorf("frame size %d not a whole sample count: %w", len(in), ErrInvalidParameter)
	}
	samples := len(in) / stride

	if cap(e.pcmBuf) < samples*e.channels {
		e.pcmBuf = make([]int16, samples*e.channels)
	}
	pcm := e.pcmBuf[:samples*e.channels]
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(in[2*i:]))
	}

	n := opusEncode(e.handle,
		uintptr(unsafe.Pointer(&pcm[0])), int32(samples),
		uintptr(unsafe.Pointer(&e.packetBuf[0])), int32(len(e.packetBuf)))
	if n < 0 {
		return fmt.Errorf("opus encode: %w", opusError(n))
	}

	pkt := encoderPacket(pool, int(n))
	copy(pkt.Data, e.packetBuf[:n])
	pkt.PTS = frame.PTS
	pkt.DTS = frame.PTS
	pkt.TimeBase = frame.TimeBase
	pkt.Duration = audioDuration(frame.Duration, samples, e.rate, frame.TimeBase)
	pkt.Flags |= PacketFlagKey
	e.pending = pkt
	return nil
}

func (e *opusEncoder) ReceivePacket(config *AudioEncoderConfig, pool *BufferPool) (*Packet, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if p := e.pending; p != nil {
		e.pending = nil
		return p, nil
	}
	if e.eos {
		return nil, io.EOF
	}
	return nil, ErrAgain
}

func (e *opusEncoder) Flush(config *AudioEncoderConfig) error {
	if e.closed {
		return ErrClosed
	}
	e.eos = true
	return nil
}

func (e *opusEncoder) Close() error {
	if e.handle != 0 {
		opusEncoderDestroy(e.handle)
		e.handle = 0
	}
	e.closed = true
	if e.pending != nil {
		e.pending.Release()
		e.pending = nil
	}
	return nil
}
