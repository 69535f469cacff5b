//go:build linux && (amd64 || arm64) && !nodevices

// V4L2 camera capture through raw VIDIOC ioctls with memory mapped
// streaming I/O. Struct layouts are 64-bit only.
package mediakit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// IOCTL numbers for 64-bit architectures.
const (
	vidiocQuerycap           = 0x80685600
	vidiocEnumFmt            = 0xc0405602
	vidiocGFmt               = 0xc0d05604
	vidiocSFmt               = 0xc0d05605
	vidiocReqbufs            = 0xc0145608
	vidiocQuerybuf           = 0xc0585609
	vidiocQbuf               = 0xc058560f
	vidiocDqbuf              = 0xc0585611
	vidiocStreamon           = 0x40045612
	vidiocStreamoff          = 0x40045613
	vidiocGParm              = 0xc0cc5615
	vidiocSParm              = 0xc0cc5616
	vidiocGCtrl              = 0xc008561b
	vidiocSCtrl              = 0xc008561c
	vidiocEnumFramesizes     = 0xc02c564a
	vidiocEnumFrameintervals = 0xc034564b
)

// Capability flags.
const (
	v4l2CapVideoCapture = 0x00000001
	v4l2CapStreaming    = 0x04000000
	v4l2CapDeviceCaps   = 0x80000000
)

const (
	v4l2BufTypeVideoCapture = 1
	v4l2MemoryMmap          = 1
	v4l2FieldNone           = 1
)

// Frame size and interval types.
const (
	v4l2FrmsizeTypeDiscrete = 1
	v4l2FrmivalTypeDiscrete = 1
)

// Pixel formats.
const (
	v4l2PixFmtYUYV  = 0x56595559 // 'YUYV'
	v4l2PixFmtNV12  = 0x3231564E // 'NV12'
	v4l2PixFmtMJPEG = 0x47504A4D // 'MJPG'
)

// User class control IDs.
const (
	v4l2CidBrightness = 0x00980900
	v4l2CidContrast   = 0x00980901
	v4l2CidSaturation = 0x00980902
	v4l2CidHue        = 0x00980903
	v4l2CidGain       = 0x00980913
)

var v4l2ControlIDs = map[string]uint32{
	"brightness": v4l2CidBrightness,
	"contrast":   v4l2CidContrast,
	"saturation": v4l2CidSaturation,
	"hue":        v4l2CidHue,
	"gain":       v4l2CidGain,
}

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2FrmsizeDiscrete{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Fract{})]byte{}
	_ [52]byte  = [unsafe.Sizeof(v4l2Frmivalenum{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2PixFormat{})]byte{}
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2RequestBuffers{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
	_ [40]byte  = [unsafe.Sizeof(v4l2Captureparm{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Streamparm{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Control{})]byte{}
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

// v4l2Fmtdesc has size 64 bytes.
type v4l2Fmtdesc struct {
	index       uint32    // offset 0
	typ         uint32    // offset 4
	flags       uint32    // offset 8
	description [32]byte  // offset 12
	pixelformat uint32    // offset 44
	mbusCode    uint32    // offset 48
	reserved    [3]uint32 // offset 52
}

// v4l2FrmsizeDiscrete has size 8 bytes.
type v4l2FrmsizeDiscrete struct {
	width  uint32
	height uint32
}

// v4l2Frmsizeenum has size 44 bytes.
type v4l2Frmsizeenum struct {
	index       uint32              // offset 0
	pixelFormat uint32              // offset 4
	typ         uint32              // offset 8
	discrete    v4l2FrmsizeDiscrete // offset 12 (union with stepwise)
	_           [16]byte            // padding for stepwise
	reserved    [2]uint32           // offset 36
}

// v4l2Fract has size 8 bytes.
type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

// v4l2Frmivalenum has size 52 bytes.
type v4l2Frmivalenum struct {
	index       uint32    // offset 0
	pixelFormat uint32    // offset 4
	width       uint32    // offset 8
	height      uint32    // offset 12
	typ         uint32    // offset 16
	discrete    v4l2Fract // offset 20 (union with stepwise)
	_           [16]byte  // padding for stepwise
	reserved    [2]uint32 // offset 44
}

// v4l2PixFormat has size 48 bytes.
type v4l2PixFormat struct {
	width        uint32 // offset 0
	height       uint32 // offset 4
	pixelformat  uint32 // offset 8
	field        uint32 // offset 12
	bytesperline uint32 // offset 16
	sizeimage    uint32 // offset 20
	colorspace   uint32 // offset 24
	priv         uint32 // offset 28
	flags        uint32 // offset 32
	ycbcrEnc     uint32 // offset 36
	quantization uint32 // offset 40
	xferFunc     uint32 // offset 44
}

// v4l2Format has size 208 bytes: type plus a 200 byte union, 8-aligned
// on 64-bit.
type v4l2Format struct {
	typ uint32    // offset 0
	_   [4]byte   // padding
	raw [200]byte // offset 8 (union)
}

func (f *v4l2Format) pix() *v4l2PixFormat {
	return (*v4l2PixFormat)(unsafe.Pointer(&f.raw[0]))
}

// v4l2RequestBuffers has size 20 bytes.
type v4l2RequestBuffers struct {
	count        uint32  // offset 0
	typ          uint32  // offset 4
	memory       uint32  // offset 8
	capabilities uint32  // offset 12
	flags        uint8   // offset 16
	reserved     [3]byte // offset 17
}

// v4l2Buffer has size 88 bytes on 64-bit. The m union carries the mmap
// offset in its first word.
type v4l2Buffer struct {
	index     uint32   // offset 0
	typ       uint32   // offset 4
	bytesused uint32   // offset 8
	flags     uint32   // offset 12
	field     uint32   // offset 16
	_         [4]byte  // padding to 8-align timestamp
	tsSec     int64    // offset 24
	tsUsec    int64    // offset 32
	timecode  [16]byte // offset 40
	sequence  uint32   // offset 56
	memory    uint32   // offset 60
	offset    uint32   // offset 64 (union m)
	_         [4]byte  // union tail
	length    uint32   // offset 72
	reserved2 uint32   // offset 76
	requestFd uint32   // offset 80
	_         [4]byte  // struct tail padding
}

// v4l2Captureparm has size 40 bytes.
type v4l2Captureparm struct {
	capability   uint32    // offset 0
	capturemode  uint32    // offset 4
	timeperframe v4l2Fract // offset 8
	extendedmode uint32    // offset 16
	readbuffers  uint32    // offset 20
	reserved     [4]uint32 // offset 24
}

// v4l2Streamparm has size 204 bytes: type plus a 200 byte union.
type v4l2Streamparm struct {
	typ uint32    // offset 0
	raw [200]byte // offset 4 (union)
}

func (p *v4l2Streamparm) capture() *v4l2Captureparm {
	return (*v4l2Captureparm)(unsafe.Pointer(&p.raw[0]))
}

// v4l2Control has size 8 bytes.
type v4l2Control struct {
	id    uint32
	value int32
}

func v4l2Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno != unix.EINTR {
			return errno
		}
	}
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func init() {
	registerDeviceBackend(enumerateV4L2Cameras)
}

// enumerateV4L2Cameras probes /sys/class/video4linux nodes and keeps
// the ones that can capture and stream.
func enumerateV4L2Cameras() []Device {
	entries, err := os.ReadDir("/sys/class/video4linux")
	if err != nil {
		return nil
	}

	var devices []Device
	for _, entry := range entries {
		path := "/dev/" + entry.Name()
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
		if err != nil {
			continue
		}

		var caps v4l2Capability
		err = v4l2Ioctl(fd, vidiocQuerycap, unsafe.Pointer(&caps))
		unix.Close(fd)
		if err != nil {
			Logger.Debug().Str("path", path).Err(err).Msg("querycap failed")
			continue
		}

		effective := caps.capabilities
		if effective&v4l2CapDeviceCaps != 0 {
			effective = caps.deviceCaps
		}
		if effective&v4l2CapVideoCapture == 0 || effective&v4l2CapStreaming == 0 {
			continue
		}

		devices = append(devices, &V4L2Camera{
			path:   path,
			card:   cstr(caps.card[:]),
			fd:     -1,
			width:  1280,
			height: 720,
			rate:   NewRational(30, 1),
			fourcc: v4l2PixFmtYUYV,
		})
	}
	return devices
}

// V4L2Camera captures from one /dev/video node using mmap streaming.
type V4L2Camera struct {
	path string
	card string

	mu           sync.Mutex
	fd           int
	width        int
	height       int
	rate         Rational
	fourcc       uint32
	bytesPerLine int
	buffers      [][]byte

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	frames  chan Frame
	handler FrameHandler
}

func (c *V4L2Camera) ID() string       { return c.path }
func (c *V4L2Camera) Name() string     { return c.card }
func (c *V4L2Camera) Kind() DeviceKind { return DeviceKindVideoInput }

func (c *V4L2Camera) Running() bool { return c.running.Load() }

// ensureOpen opens the node once. The fd stays open across Stop so the
// camera can restart without renegotiating access.
func (c *V4L2Camera) ensureOpen() error {
	if c.fd >= 0 {
		return nil
	}
	fd, err := unix.Open(c.path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	c.fd = fd
	return nil
}

// Configure selects the capture mode. The camera must be stopped.
func (c *V4L2Camera) Configure(config DeviceConfig) error {
	if c.running.Load() {
		return errDeviceState(c.ID(), "configure while running")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case config.Codec == CodecIDMJPEG:
		c.fourcc = v4l2PixFmtMJPEG
	case config.Codec != CodecIDNone:
		return fmt.Errorf("capture codec %s: %w", config.Codec, ErrUnsupported)
	case config.Format == PixelFormatYUYV:
		c.fourcc = v4l2PixFmtYUYV
	case config.Format == PixelFormatNV12:
		c.fourcc = v4l2PixFmtNV12
	case config.Format != PixelFormatNone:
		return fmt.Errorf("capture format %s: %w", config.Format, ErrUnsupported)
	}
	if config.Width > 0 {
		c.width = config.Width
	}
	if config.Height > 0 {
		c.height = config.Height
	}
	if !config.FrameRate.IsZero() {
		c.rate = config.FrameRate
	}
	return nil
}

// Control sets one user class control by name, e.g. "brightness".
func (c *V4L2Camera) Control(req ControlRequest) error {
	cid, ok := v4l2ControlIDs[req.Name]
	if !ok {
		return fmt.Errorf("control %q: %w", req.Name, ErrUnsupported)
	}
	value, ok := optionInt(req.Value)
	if !ok {
		return fmt.Errorf("control %q value %v: %w", req.Name, req.Value, ErrInvalidParameter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return err
	}
	ctrl := v4l2Control{id: cid, value: int32(value)}
	if err := v4l2Ioctl(c.fd, vidiocSCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return fmt.Errorf("set %s: %w", req.Name, err)
	}
	return nil
}

// Formats enumerates the device's capture modes: formats, frame sizes
// and frame intervals composed into DeviceFormat entries.
func (c *V4L2Camera) Formats() ([]DeviceFormat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	var formats []DeviceFormat
	for i := uint32(0); ; i++ {
		desc := v4l2Fmtdesc{index: i, typ: v4l2BufTypeVideoCapture}
		if err := v4l2Ioctl(c.fd, vidiocEnumFmt, unsafe.Pointer(&desc)); err != nil {
			if err == unix.EINVAL {
				break
			}
			return nil, fmt.Errorf("enum formats: %w", err)
		}

		df := DeviceFormat{MediaType: MediaTypeVideo}
		switch desc.pixelformat {
		case v4l2PixFmtYUYV:
			df.PixelFormat = PixelFormatYUYV
		case v4l2PixFmtNV12:
			df.PixelFormat = PixelFormatNV12
		case v4l2PixFmtMJPEG:
			df.CodecID = CodecIDMJPEG
		default:
			continue
		}

		for j := uint32(0); ; j++ {
			size := v4l2Frmsizeenum{index: j, pixelFormat: desc.pixelformat}
			if err := v4l2Ioctl(c.fd, vidiocEnumFramesizes, unsafe.Pointer(&size)); err != nil {
				break
			}
			if size.typ != v4l2FrmsizeTypeDiscrete {
				break
			}
			entry := df
			entry.Width = int(size.discrete.width)
			entry.Height = int(size.discrete.height)
			entry.FrameRates = c.frameIntervals(desc.pixelformat, size.discrete.width, size.discrete.height)
			formats = append(formats, entry)
		}
	}
	return formats, nil
}

func (c *V4L2Camera) frameIntervals(fourcc, width, height uint32) []Rational {
	var rates []Rational
	for i := uint32(0); ; i++ {
		ival := v4l2Frmivalenum{index: i, pixelFormat: fourcc, width: width, height: height}
		if err := v4l2Ioctl(c.fd, vidiocEnumFrameintervals, unsafe.Pointer(&ival)); err != nil {
			break
		}
		if ival.typ != v4l2FrmivalTypeDiscrete {
			break
		}
		if ival.discrete.numerator == 0 {
			continue
		}
		// Interval to rate.
		rates = append(rates, NewRational(int64(ival.discrete.denominator), int64(ival.discrete.numerator)))
	}
	return rates
}

func (c *V4L2Camera) SetFrameHandler(handler FrameHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

func (c *V4L2Camera) ReadFrame(ctx context.Context) (Frame, error) {
	c.mu.Lock()
	frames := c.frames
	c.mu.Unlock()
	if frames == nil {
		return Frame{}, ErrNotRunning
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-frames:
		if !ok {
			return Frame{}, ErrClosed
		}
		return f, nil
	}
}

func (c *V4L2Camera) Start() error {
	if !c.running.CompareAndSwap(false, true) {
		return errDeviceState(c.ID(), "already running")
	}
	if err := c.startStreaming(); err != nil {
		c.running.Store(false)
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.captureLoop(ctx)
	return nil
}

func (c *V4L2Camera) startStreaming() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return err
	}

	var format v4l2Format
	format.typ = v4l2BufTypeVideoCapture
	pix := format.pix()
	pix.width = uint32(c.width)
	pix.height = uint32(c.height)
	pix.pixelformat = c.fourcc
	pix.field = v4l2FieldNone
	if err := v4l2Ioctl(c.fd, vidiocSFmt, unsafe.Pointer(&format)); err != nil {
		return fmt.Errorf("set format: %w", err)
	}
	if pix.pixelformat != c.fourcc {
		return fmt.Errorf("driver refused fourcc %08x: %w", c.fourcc, ErrUnsupported)
	}
	// The driver may adjust the geometry.
	c.width = int(pix.width)
	c.height = int(pix.height)
	c.bytesPerLine = int(pix.bytesperline)

	// Frame rate is best effort, not all drivers honor S_PARM.
	var parm v4l2Streamparm
	parm.typ = v4l2BufTypeVideoCapture
	cp := parm.capture()
	cp.timeperframe = v4l2Fract{
		numerator:   uint32(c.rate.Den),
		denominator: uint32(c.rate.Num),
	}
	if err := v4l2Ioctl(c.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		Logger.Debug().Str("device", c.path).Err(err).Msg("set frame rate failed")
	}

	req := v4l2RequestBuffers{count: 4, typ: v4l2BufTypeVideoCapture, memory: v4l2MemoryMmap}
	if err := v4l2Ioctl(c.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("request buffers: %w", err)
	}
	if req.count < 2 {
		return fmt.Errorf("driver granted %d buffers: %w", req.count, ErrUnsupported)
	}

	c.buffers = make([][]byte, req.count)
	for i := range c.buffers {
		buf := v4l2Buffer{index: uint32(i), typ: v4l2BufTypeVideoCapture, memory: v4l2MemoryMmap}
		if err := v4l2Ioctl(c.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			c.unmapBuffers()
			return fmt.Errorf("query buffer %d: %w", i, err)
		}
		data, err := unix.Mmap(c.fd, int64(buf.offset), int(buf.length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			c.unmapBuffers()
			return fmt.Errorf("mmap buffer %d: %w", i, err)
		}
		c.buffers[i] = data
	}

	for i := range c.buffers {
		buf := v4l2Buffer{index: uint32(i), typ: v4l2BufTypeVideoCapture, memory: v4l2MemoryMmap}
		if err := v4l2Ioctl(c.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			c.unmapBuffers()
			return fmt.Errorf("queue buffer %d: %w", i, err)
		}
	}

	typ := uint32(v4l2BufTypeVideoCapture)
	if err := v4l2Ioctl(c.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		c.unmapBuffers()
		return fmt.Errorf("stream on: %w", err)
	}

	c.frames = make(chan Frame, 2)
	Logger.Debug().Str("device", c.path).Int("width", c.width).Int("height", c.height).Msg("capture started")
	return nil
}

func (c *V4L2Camera) unmapBuffers() {
	for i, data := range c.buffers {
		if data != nil {
			unix.Munmap(data)
			c.buffers[i] = nil
		}
	}
	c.buffers = nil
}

func (c *V4L2Camera) captureLoop(ctx context.Context) {
	defer close(c.done)

	frameDur := int64(float64(time.Second) / c.rate.Float())

	for {
		if ctx.Err() != nil {
			return
		}

		fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 2000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if ctx.Err() == nil {
				Logger.Warn().Str("device", c.path).Err(err).Msg("poll failed")
			}
			return
		}
		if n == 0 {
			continue
		}

		var buf v4l2Buffer
		buf.typ = v4l2BufTypeVideoCapture
		buf.memory = v4l2MemoryMmap
		if err := v4l2Ioctl(c.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
			if err == unix.EAGAIN {
				continue
			}
			if ctx.Err() == nil {
				Logger.Warn().Str("device", c.path).Err(err).Msg("dequeue failed")
			}
			return
		}

		c.deliver(&buf, frameDur)

		if err := v4l2Ioctl(c.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			if ctx.Err() == nil {
				Logger.Warn().Str("device", c.path).Err(err).Msg("requeue failed")
			}
			return
		}
	}
}

func (c *V4L2Camera) deliver(buf *v4l2Buffer, frameDur int64) {
	if int(buf.index) >= len(c.buffers) {
		return
	}
	used := int(buf.bytesused)
	if used > len(c.buffers[buf.index]) {
		used = len(c.buffers[buf.index])
	}
	data := c.buffers[buf.index][:used]
	pts := buf.tsSec*NsecPerSec + buf.tsUsec*1000

	var out Frame
	switch c.fourcc {
	case v4l2PixFmtMJPEG:
		df := NewDataFrame(append([]byte(nil), data...))
		df.PTS = pts
		df.TimeBase = NewRational(1, NsecPerSec)
		df.Duration = frameDur
		df.Source = c.ID()
		out = Frame{Data: df}
	default:
		frame := c.rawFrame(data)
		if frame == nil {
			return
		}
		frame.PTS = pts
		frame.TimeBase = NewRational(1, NsecPerSec)
		frame.Duration = frameDur
		frame.Source = c.ID()
		out = VideoFrameOf(frame)
	}

	c.mu.Lock()
	handler := c.handler
	frames := c.frames
	c.mu.Unlock()

	if handler != nil {
		if err := handler(out); err != nil {
			Logger.Warn().Str("device", c.path).Err(err).Msg("frame handler failed")
		}
		return
	}
	if frames == nil {
		return
	}
	select {
	case frames <- out:
	default:
		// Reader is behind, drop.
	}
}

// rawFrame copies one dequeued buffer into a VideoFrame, converting
// the driver's line stride to the frame's.
func (c *V4L2Camera) rawFrame(data []byte) *VideoFrame {
	var format PixelFormat
	switch c.fourcc {
	case v4l2PixFmtYUYV:
		format = PixelFormatYUYV
	case v4l2PixFmtNV12:
		format = PixelFormatNV12
	default:
		return nil
	}

	frame, err := NewVideoFrame(format, c.width, c.height)
	if err != nil {
		Logger.Warn().Str("device", c.path).Err(err).Msg("frame allocation failed")
		return nil
	}

	srcOff := 0
	for plane := 0; plane < frame.PlaneCount(); plane++ {
		rows := frame.PlaneHeight(plane)
		rowBytes := format.PlaneRowBytes(plane, c.width)
		// NV12's UV plane shares the Y line stride in the single-planar API.
		srcStride := c.bytesPerLine
		if srcStride < rowBytes {
			srcStride = rowBytes
		}
		for y := 0; y < rows; y++ {
			if srcOff+rowBytes > len(data) {
				return frame
			}
			copy(frame.Data[plane][y*frame.Stride[plane]:], data[srcOff:srcOff+rowBytes])
			srcOff += srcStride
		}
	}
	return frame
}

func (c *V4L2Camera) Stop() error {
	if !c.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	c.cancel()

	typ := uint32(v4l2BufTypeVideoCapture)
	if err := v4l2Ioctl(c.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		Logger.Warn().Str("device", c.path).Err(err).Msg("stream off failed")
	}
	<-c.done

	c.mu.Lock()
	c.unmapBuffers()
	if c.frames != nil {
		close(c.frames)
		c.frames = nil
	}
	c.mu.Unlock()
	return nil
}

func (c *V4L2Camera) Close() error {
	if c.running.Load() {
		c.Stop()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd >= 0 {
		unix.Close(c.fd)
		c.fd = -1
	}
	return nil
}
