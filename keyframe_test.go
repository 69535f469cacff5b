package mediakit

import "testing"

func TestDetectKeyframeH264(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"annex b idr", annexB(testIDR), true},
		{"annex b parameter sets and idr", annexB(testSPS, testPPS, testIDR), true},
		{"annex b non idr slice", annexB([]byte{0x41, 0x9A}), false},
		{"avcc idr after slice", []byte{0, 0, 0, 2, 0x41, 0x9A, 0, 0, 0, 4, 0x65, 0x88, 0x84, 0x00}, true},
		{"avcc non idr", []byte{0, 0, 0, 2, 0x41, 0x9A}, false},
		{"avcc length overrun", []byte{0, 0, 0, 9, 0x65}, false},
		{"avcc zero length", []byte{0, 0, 0, 0, 0x65}, false},
		{"short payload", []byte{0, 0, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKeyframe(CodecIDH264, tt.data); got != tt.want {
				t.Errorf("DetectKeyframe = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectKeyframeVP8(t *testing.T) {
	if !DetectKeyframe(CodecIDVP8, []byte{0x50, 0x00}) {
		t.Error("key frame tag not detected")
	}
	if DetectKeyframe(CodecIDVP8, []byte{0x51, 0x00}) {
		t.Error("interframe tag detected as key")
	}
}

func TestDetectKeyframeVP9(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"profile 0 keyframe", []byte{0x80}, true},
		{"profile 2 keyframe", []byte{0xA0}, true},
		{"interframe", []byte{0x84}, false},
		{"show existing frame", []byte{0x88}, false},
		{"profile 3", []byte{0xB0}, false},
		{"bad frame marker", []byte{0x40}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKeyframe(CodecIDVP9, tt.data); got != tt.want {
				t.Errorf("DetectKeyframe(% x) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestDetectKeyframeAV1(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"sequence header first", []byte{0x08}, true},
		{"after temporal delimiter", []byte{0x12, 0x00, 0x08}, true},
		{"extension header skipped", []byte{0x16, 0x07, 0x00, 0x08}, true},
		{"frame obu only", []byte{0x32, 0x01, 0xAA}, false},
		{"forbidden bit", []byte{0x80}, false},
		{"unsized obu ends unit", []byte{0x30, 0xAA}, false},
		{"truncated size", []byte{0x12, 0x80}, false},
		{"size overrun", []byte{0x12, 0x05, 0x08}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKeyframe(CodecIDAV1, tt.data); got != tt.want {
				t.Errorf("DetectKeyframe(% x) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestDetectKeyframeOther(t *testing.T) {
	if DetectKeyframe(CodecIDH264, nil) {
		t.Error("empty payload detected as key")
	}
	if DetectKeyframe(CodecIDPCMS16, []byte{1, 2, 3}) {
		t.Error("unknown codec detected as key")
	}
}

func TestReadLEB128(t *testing.T) {
	tests := []struct {
		data  []byte
		value int
		n     int
	}{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x7F}, 127, 1},
		{[]byte{0x80, 0x01}, 128, 2},
		{[]byte{0xE5, 0x8E, 0x26}, 624485, 3},
		{[]byte{0x80}, 0, 0},
		{nil, 0, 0},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}, 0, 0},
	}
	for _, tt := range tests {
		value, n := readLEB128(tt.data)
		if value != tt.value || n != tt.n {
			t.Errorf("readLEB128(% x) = %d, %d, want %d, %d", tt.data, value, n, tt.value, tt.n)
		}
	}
}
