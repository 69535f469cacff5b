package mediakit

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestNewPacket(t *testing.T) {
	p := NewPacket(128)
	if p.Len() != 128 {
		t.Errorf("Len() = %d, want 128", p.Len())
	}
	if p.PTS != NoTimestamp || p.DTS != NoTimestamp {
		t.Errorf("fresh packet PTS/DTS = %d/%d, want NoTimestamp", p.PTS, p.DTS)
	}
	if p.Pos != -1 {
		t.Errorf("Pos = %d, want -1", p.Pos)
	}
	if p.Empty() {
		t.Error("128 byte packet reported empty")
	}
	if NewPacket(0).Empty() != true {
		t.Error("zero byte packet not reported empty")
	}
}

func TestPacketFromSlice(t *testing.T) {
	data := []byte{1, 2, 3}
	p := PacketFromSlice(data)
	data[0] = 9
	if p.Data[0] != 9 {
		t.Error("PacketFromSlice copied instead of wrapping")
	}
}

func TestPacketTruncate(t *testing.T) {
	p := NewPacket(10)
	if err := p.Truncate(4); err != nil {
		t.Fatalf("Truncate(4): %v", err)
	}
	if p.Len() != 4 {
		t.Errorf("Len() = %d, want 4", p.Len())
	}
	if err := p.Truncate(8); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Truncate beyond length: err = %v, want ErrInvalidParameter", err)
	}
}

func TestPacketKeyframe(t *testing.T) {
	p := NewPacket(1)
	if p.Keyframe() {
		t.Error("fresh packet reports keyframe")
	}
	p.Flags |= PacketFlagKey
	if !p.Keyframe() {
		t.Error("flagged packet does not report keyframe")
	}
}

func TestPacketCloneDetachesBuffer(t *testing.T) {
	pool := NewBufferPool(64)
	p := PacketFromBuffer(pool.GetWithLength(8))
	p.Data[0] = 5

	c := p.Clone()
	if c.buf != nil {
		t.Error("clone still references the pooled buffer")
	}
	p.Data[0] = 6
	if c.Data[0] != 5 {
		t.Error("clone shares data with the original")
	}

	p.Release()
	if p.Data != nil {
		t.Error("Release left packet data set")
	}
	if c.Data[0] != 5 {
		t.Error("release of the original invalidated the clone")
	}
}

func TestReadWritePacket(t *testing.T) {
	src := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	p, err := ReadPacketFrom(bytes.NewReader(src), 4)
	if err != nil {
		t.Fatalf("ReadPacketFrom: %v", err)
	}
	if !bytes.Equal(p.Data, src) {
		t.Errorf("Data = %x, want %x", p.Data, src)
	}

	if _, err := ReadPacketFrom(bytes.NewReader(src), 8); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short source: err = %v, want ErrUnexpectedEOF", err)
	}

	var out bytes.Buffer
	if err := WritePacketTo(&out, p); err != nil {
		t.Fatalf("WritePacketTo: %v", err)
	}
	if !bytes.Equal(out.Bytes(), src) {
		t.Errorf("written = %x, want %x", out.Bytes(), src)
	}
}

func TestEncoderPacket(t *testing.T) {
	pool := NewBufferPool(256)
	pooled := encoderPacket(pool, 100)
	if pooled.buf == nil {
		t.Error("pooled packet has no backing buffer")
	}
	if pooled.Len() != 100 {
		t.Errorf("pooled Len() = %d, want 100", pooled.Len())
	}

	plain := encoderPacket(nil, 100)
	if plain.buf != nil {
		t.Error("unpooled packet has a backing buffer")
	}
	if plain.Len() != 100 {
		t.Errorf("plain Len() = %d, want 100", plain.Len())
	}
}
