package mediakit

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Track is one elementary stream inside a container.
type Track struct {
	Index     int // assigned by the collection
	ID        string
	CodecID   CodecID
	Params    *CodecParameters
	StartTime int64
	Duration  int64
	TimeBase  Rational
	Metadata  map[string]any
}

// NewTrack returns a track with a fresh ID and unset timing.
func NewTrack(codecID CodecID, params *CodecParameters) *Track {
	return &Track{
		ID:        uuid.NewString(),
		CodecID:   codecID,
		Params:    params,
		StartTime: NoTimestamp,
		Duration:  NoTimestamp,
	}
}

func (t *Track) MediaType() MediaType { return t.CodecID.MediaType() }

// TrackCollection holds tracks with auto-assigned indexes.
type TrackCollection struct {
	tracks []*Track
}

// Add appends the track, assigns its index and returns it.
func (c *TrackCollection) Add(track *Track) int {
	track.Index = len(c.tracks)
	c.tracks = append(c.tracks, track)
	return track.Index
}

// Find returns the track with the given ID, or nil.
func (c *TrackCollection) Find(id string) *Track {
	for _, t := range c.tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Get returns the track at index, or nil when out of range.
func (c *TrackCollection) Get(index int) *Track {
	if index < 0 || index >= len(c.tracks) {
		return nil
	}
	return c.tracks[index]
}

func (c *TrackCollection) Len() int { return len(c.tracks) }

// Tracks returns the backing slice for iteration. Do not mutate.
func (c *TrackCollection) Tracks() []*Track { return c.tracks }

// Stream groups tracks that belong together, e.g. the audio and video
// of one program.
type Stream struct {
	Index        int
	ID           string
	Metadata     map[string]any
	TrackIndexes []int
}

func NewStream() *Stream {
	return &Stream{ID: uuid.NewString(), Metadata: map[string]any{}}
}

// AddTrack attaches a track index to the stream.
func (s *Stream) AddTrack(trackIndex int) {
	s.TrackIndexes = append(s.TrackIndexes, trackIndex)
}

// StreamCollection holds streams with auto-assigned indexes.
type StreamCollection struct {
	streams []*Stream
}

func (c *StreamCollection) Add(stream *Stream) int {
	stream.Index = len(c.streams)
	c.streams = append(c.streams, stream)
	return stream.Index
}

func (c *StreamCollection) Get(index int) *Stream {
	if index < 0 || index >= len(c.streams) {
		return nil
	}
	return c.streams[index]
}

func (c *StreamCollection) Len() int { return len(c.streams) }

func (c *StreamCollection) Streams() []*Stream { return c.streams }

// SeekFlags adjusts Seek behavior.
type SeekFlags uint32

const (
	// SeekBackward snaps to the closest point at or before the target.
	SeekBackward SeekFlags = 1 << iota
	// SeekAny allows landing on non-key packets.
	SeekAny
)

// Muxer writes one container format. Implementations keep per-file
// state and are not reused across contexts.
type Muxer interface {
	WriteHeader(mc *MuxContext) error
	WritePacket(mc *MuxContext, pkt *Packet) error
	WriteTrailer(mc *MuxContext) error
}

// Demuxer reads one container format.
type Demuxer interface {
	ReadHeader(dc *DemuxContext) error
	// ReadPacket returns io.EOF when the container ends.
	ReadPacket(dc *DemuxContext) (*Packet, error)
	Seek(dc *DemuxContext, trackIndex int, timestampUsec int64, flags SeekFlags) error
}

// MuxerBuilder creates a fresh muxer instance per context.
type MuxerBuilder func() Muxer

// DemuxerBuilder creates a fresh demuxer instance per context.
type DemuxerBuilder func() Demuxer

type formatRegistry struct {
	mu         sync.RWMutex
	muxers     map[string]MuxerBuilder
	demuxers   map[string]DemuxerBuilder
	extensions map[string]string
}

var formats = &formatRegistry{
	muxers:     map[string]MuxerBuilder{},
	demuxers:   map[string]DemuxerBuilder{},
	extensions: map[string]string{},
}

// RegisterMuxer makes a muxer available under the format name, with
// optional file extensions for probing.
func RegisterMuxer(name string, builder MuxerBuilder, extensions ...string) {
	formats.mu.Lock()
	defer formats.mu.Unlock()
	formats.muxers[name] = builder
	for _, ext := range extensions {
		formats.extensions[strings.ToLower(ext)] = name
	}
}

// RegisterDemuxer makes a demuxer available under the format name.
func RegisterDemuxer(name string, builder DemuxerBuilder, extensions ...string) {
	formats.mu.Lock()
	defer formats.mu.Unlock()
	formats.demuxers[name] = builder
	for _, ext := range extensions {
		formats.extensions[strings.ToLower(ext)] = name
	}
}

// ProbeFormat guesses the format name from a file path's extension.
// Empty when unknown.
func ProbeFormat(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	formats.mu.RLock()
	defer formats.mu.RUnlock()
	return formats.extensions[ext]
}

// SupportedMuxers lists registered muxer format names.
func SupportedMuxers() []string {
	formats.mu.RLock()
	defer formats.mu.RUnlock()
	names := make([]string, 0, len(formats.muxers))
	for name := range formats.muxers {
		names = append(names, name)
	}
	return names
}

// SupportedDemuxers lists registered demuxer format names.
func SupportedDemuxers() []string {
	formats.mu.RLock()
	defer formats.mu.RUnlock()
	names := make([]string, 0, len(formats.demuxers))
	for name := range formats.demuxers {
		names = append(names, name)
	}
	return names
}

// OpenMuxer creates a mux context for the named format writing to w.
func OpenMuxer(name string, w io.Writer) (*MuxContext, error) {
	formats.mu.RLock()
	builder := formats.muxers[name]
	formats.mu.RUnlock()
	if builder == nil {
		return nil, fmt.Errorf("muxer %q: %w", name, ErrNotFound)
	}
	return NewMuxContext(builder(), w), nil
}

// OpenDemuxer creates a demux context for the named format reading
// from r.
func OpenDemuxer(name string, r io.Reader) (*DemuxContext, error) {
	formats.mu.RLock()
	builder := formats.demuxers[name]
	formats.mu.RUnlock()
	if builder == nil {
		return nil, fmt.Errorf("demuxer %q: %w", name, ErrNotFound)
	}
	return NewDemuxContext(builder(), r), nil
}

// muxEntry is one queued packet with its DTS normalized to the default
// microsecond time base.
type muxEntry struct {
	pkt *Packet
	dts int64
}

// MuxContext drives one muxer against one output. Tracks are added
// before WriteHeader; packets are interleaved by DTS across tracks
// before reaching the muxer.
type MuxContext struct {
	muxer    Muxer
	writer   io.Writer
	Tracks   TrackCollection
	Streams  StreamCollection
	Metadata map[string]any

	headerWritten  bool
	trailerWritten bool

	pending      []muxEntry
	perTrack     []int
	newestDTS    int64
	maxDelayUsec int64
}

// NewMuxContext wraps a muxer and its destination. Backends that need
// random access assert io.WriteSeeker on w themselves.
func NewMuxContext(muxer Muxer, w io.Writer) *MuxContext {
	return &MuxContext{
		muxer:        muxer,
		writer:       w,
		Metadata:     map[string]any{},
		newestDTS:    NoTimestamp,
		maxDelayUsec: 1_000_000,
	}
}

// Writer exposes the destination to the muxer implementation.
func (mc *MuxContext) Writer() io.Writer { return mc.writer }

// AddTrack registers a track before the header is written.
func (mc *MuxContext) AddTrack(track *Track) (int, error) {
	if mc.headerWritten {
		return 0, fmt.Errorf("add track after header: %w", ErrInvalidState)
	}
	return mc.Tracks.Add(track), nil
}

// SetOption forwards format specific options to the muxer.
// "max_interleave_delay" (microseconds) adjusts the interleave window.
func (mc *MuxContext) SetOption(key string, value any) error {
	if key == "max_interleave_delay" {
		if v, ok := optionInt(value); ok && v >= 0 {
			mc.maxDelayUsec = v
			return nil
		}
		return fmt.Errorf("max_interleave_delay %v: %w", value, ErrInvalidParameter)
	}
	if handler, ok := mc.muxer.(OptionHandler); ok {
		return handler.SetOption(key, value)
	}
	return nil
}

// WriteHeader finalizes the track list and writes the container
// header. Tracks without a time base get DefaultTimeBase.
func (mc *MuxContext) WriteHeader() error {
	if mc.headerWritten {
		return fmt.Errorf("header already written: %w", ErrInvalidState)
	}
	for _, track := range mc.Tracks.Tracks() {
		if track.TimeBase.IsZero() {
			track.TimeBase = DefaultTimeBase
		}
	}
	if err := mc.muxer.WriteHeader(mc); err != nil {
		return err
	}
	mc.headerWritten = true
	mc.perTrack = make([]int, mc.Tracks.Len())
	return nil
}

// WritePacket queues the packet for DTS-ordered interleaving and
// writes every packet the window releases.
func (mc *MuxContext) WritePacket(pkt *Packet) error {
	if !mc.headerWritten {
		return fmt.Errorf("packet before header: %w", ErrInvalidParameter)
	}
	if mc.trailerWritten {
		return ErrClosed
	}
	if pkt == nil || pkt.TrackIndex < 0 || pkt.TrackIndex >= mc.Tracks.Len() {
		return fmt.Errorf("packet track: %w", ErrInvalidParameter)
	}

	dts := mc.normalizedDTS(pkt)
	i := len(mc.pending)
	mc.pending = append(mc.pending, muxEntry{})
	for i > 0 && mc.pending[i-1].dts > dts {
		mc.pending[i] = mc.pending[i-1]
		i--
	}
	mc.pending[i] = muxEntry{pkt: pkt, dts: dts}
	mc.perTrack[pkt.TrackIndex]++
	if mc.newestDTS == NoTimestamp || dts > mc.newestDTS {
		mc.newestDTS = dts
	}
	return mc.flushReady(false)
}

func (mc *MuxContext) normalizedDTS(pkt *Packet) int64 {
	ts := pkt.DTS
	if ts == NoTimestamp {
		ts = pkt.PTS
	}
	if ts == NoTimestamp {
		return 0
	}
	tb := pkt.TimeBase
	if tb.IsZero() {
		tb = mc.Tracks.Get(pkt.TrackIndex).TimeBase
	}
	return Rescale(ts, tb, DefaultTimeBase)
}

// flushReady writes queued packets once every track has one pending or
// the head packet has aged past the interleave window.
func (mc *MuxContext) flushReady(force bool) error {
	for len(mc.pending) > 0 {
		if !force {
			ready := true
			for _, n := range mc.perTrack {
				if n == 0 {
					ready = false
					break
				}
			}
			if !ready && mc.newestDTS-mc.pending[0].dts <= mc.maxDelayUsec {
				break
			}
		}
		head := mc.pending[0]
		mc.pending = mc.pending[1:]
		mc.perTrack[head.pkt.TrackIndex]--
		if err := mc.muxer.WritePacket(mc, head.pkt); err != nil {
			return err
		}
	}
	return nil
}

// WriteTrailer drains the interleave queue and finalizes the file.
func (mc *MuxContext) WriteTrailer() error {
	if !mc.headerWritten {
		return fmt.Errorf("trailer before header: %w", ErrInvalidParameter)
	}
	if mc.trailerWritten {
		return ErrClosed
	}
	if err := mc.flushReady(true); err != nil {
		return err
	}
	if err := mc.muxer.WriteTrailer(mc); err != nil {
		return err
	}
	mc.trailerWritten = true
	return nil
}

// DemuxContext drives one demuxer against one input.
type DemuxContext struct {
	demuxer  Demuxer
	reader   io.Reader
	Tracks   TrackCollection
	Streams  StreamCollection
	Metadata map[string]any

	// StartTime and Duration are in DefaultTimeBase units,
	// NoTimestamp when the container does not declare them.
	StartTime int64
	Duration  int64

	headerRead bool
}

// NewDemuxContext wraps a demuxer and its source. Backends that seek
// assert io.ReadSeeker on r themselves.
func NewDemuxContext(demuxer Demuxer, r io.Reader) *DemuxContext {
	return &DemuxContext{
		demuxer:   demuxer,
		reader:    r,
		Metadata:  map[string]any{},
		StartTime: NoTimestamp,
		Duration:  NoTimestamp,
	}
}

// Reader exposes the source to the demuxer implementation.
func (dc *DemuxContext) Reader() io.Reader { return dc.reader }

// ReadHeader parses the container header and populates tracks.
func (dc *DemuxContext) ReadHeader() error {
	if dc.headerRead {
		return fmt.Errorf("header already read: %w", ErrInvalidState)
	}
	if err := dc.demuxer.ReadHeader(dc); err != nil {
		return err
	}
	for _, track := range dc.Tracks.Tracks() {
		if track.TimeBase.IsZero() {
			track.TimeBase = DefaultTimeBase
		}
	}
	dc.headerRead = true
	return nil
}

// ReadPacket returns the next packet in container order, io.EOF at the
// end.
func (dc *DemuxContext) ReadPacket() (*Packet, error) {
	if !dc.headerRead {
		return nil, fmt.Errorf("packet before header: %w", ErrInvalidParameter)
	}
	return dc.demuxer.ReadPacket(dc)
}

// Seek positions the demuxer near the timestamp (in DefaultTimeBase
// units) on the given track, -1 for the container's default track.
func (dc *DemuxContext) Seek(trackIndex int, timestampUsec int64, flags SeekFlags) error {
	if !dc.headerRead {
		return fmt.Errorf("seek before header: %w", ErrInvalidParameter)
	}
	return dc.demuxer.Seek(dc, trackIndex, timestampUsec, flags)
}

// SetOption forwards format specific options to the demuxer.
func (dc *DemuxContext) SetOption(key string, value any) error {
	if handler, ok := dc.demuxer.(OptionHandler); ok {
		return handler.SetOption(key, value)
	}
	return nil
}
