// Compressed packets exchanged between codecs, formats and transports.
package mediakit

import (
	"fmt"
	"io"
)

// PacketFlags marks packet properties.
type PacketFlags uint32

const (
	PacketFlagKey PacketFlags = 1 << iota
	PacketFlagCorrupt
)

// Packet carries one unit of compressed data with its timing. PTS and
// DTS default to NoTimestamp, Pos to -1 when the byte offset is
// unknown.
type Packet struct {
	Data       []byte
	PTS        int64
	DTS        int64
	Duration   int64
	TimeBase   Rational
	Flags      PacketFlags
	Pos        int64
	TrackIndex int

	buf *Buffer
}

// NewPacket allocates a zero-filled packet of the given size.
func NewPacket(size int) *Packet {
	p := emptyPacket()
	p.Data = make([]byte, size)
	return p
}

// PacketFromSlice wraps data without copying.
func PacketFromSlice(data []byte) *Packet {
	p := emptyPacket()
	p.Data = data
	return p
}

// PacketFromBuffer wraps a pooled buffer. Releasing the packet returns
// the buffer to its pool.
func PacketFromBuffer(b *Buffer) *Packet {
	p := emptyPacket()
	p.Data = b.Data()
	p.buf = b
	return p
}

func emptyPacket() *Packet {
	return &Packet{
		PTS: NoTimestamp,
		DTS: NoTimestamp,
		Pos: -1,
	}
}

func (p *Packet) Len() int { return len(p.Data) }

func (p *Packet) Empty() bool { return len(p.Data) == 0 }

// Keyframe reports whether the packet starts a decodable unit.
func (p *Packet) Keyframe() bool { return p.Flags&PacketFlagKey != 0 }

// Truncate shortens the packet data to n bytes.
func (p *Packet) Truncate(n int) error {
	if n > len(p.Data) {
		return fmt.Errorf("truncate %d beyond %d: %w", n, len(p.Data), ErrInvalidParameter)
	}
	p.Data = p.Data[:n]
	return nil
}

// Clone returns a deep copy detached from any pooled buffer.
func (p *Packet) Clone() *Packet {
	c := *p
	c.buf = nil
	c.Data = append([]byte(nil), p.Data...)
	return &c
}

// Release returns the backing pooled buffer, if any. The packet data
// must not be used afterwards.
func (p *Packet) Release() {
	if p.buf != nil {
		p.buf.Release()
		p.buf = nil
		p.Data = nil
	}
}

// ReadPacketFrom reads exactly size bytes from r into a new packet.
func ReadPacketFrom(r io.Reader, size int) (*Packet, error) {
	p := NewPacket(size)
	if _, err := io.ReadFull(r, p.Data); err != nil {
		return nil, err
	}
	return p, nil
}

// WritePacketTo writes the packet data to w.
func WritePacketTo(w io.Writer, p *Packet) error {
	_, err := w.Write(p.Data)
	return err
}

// encoderPacket returns a packet with an n byte payload, pooled when a
// pool is present.
func encoderPacket(pool *BufferPool, n int) *Packet {
	if pool != nil {
		return PacketFromBuffer(pool.GetWithLength(n))
	}
	return NewPacket(n)
}
