package mediakit

// DetectKeyframe reports whether an encoded frame can start decoding on
// its own. Containers and packetizers use it to set PacketFlagKey when
// the encoder did not. Unknown codecs report false.
func DetectKeyframe(id CodecID, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch id {
	case CodecIDH264:
		return h264HasIDR(data)
	case CodecIDVP8:
		// The frame tag carries the frame type in its lowest bit.
		return data[0]&0x01 == 0
	case CodecIDVP9:
		return vp9IsKeyframe(data)
	case CodecIDAV1:
		return av1HasSequenceHeader(data)
	}
	return false
}

// h264HasIDR scans the access unit for an IDR slice. Both Annex B and
// length-prefixed payloads are handled.
func h264HasIDR(data []byte) bool {
	if startCodeLen(data) > 0 {
		for _, nalu := range splitAnnexB(data) {
			if nalu[0]&0x1F == 5 {
				return true
			}
		}
		return false
	}
	for len(data) >= 5 {
		size := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		if size <= 0 || size > len(data)-4 {
			return false
		}
		if data[4]&0x1F == 5 {
			return true
		}
		data = data[4+size:]
	}
	return false
}

// vp9IsKeyframe reads the frame type from the uncompressed header.
// Layout for profiles 0 to 2: frame marker (2 bits), profile (2 bits),
// show_existing_frame, frame_type, show_frame. Profile 3 inserts a
// reserved bit and is not produced by the codecs handled here.
func vp9IsKeyframe(data []byte) bool {
	if data[0]>>6 != 0x02 {
		return false
	}
	if data[0]&0x30 == 0x30 {
		return false
	}
	if data[0]&0x08 != 0 {
		// show_existing_frame repeats a reference, never a keyframe.
		return false
	}
	return data[0]&0x04 == 0
}

// av1HasSequenceHeader walks the temporal unit's OBUs looking for a
// sequence header, which encoders emit in front of every keyframe.
func av1HasSequenceHeader(data []byte) bool {
	for len(data) > 0 {
		header := data[0]
		if header&0x80 != 0 {
			return false
		}
		obuType := (header >> 3) & 0x0F
		if obuType == 1 {
			return true
		}
		offset := 1
		if header&0x04 != 0 {
			// Extension flag adds one header byte.
			offset++
		}
		if header&0x02 == 0 {
			// Without a size field this OBU runs to the end of the unit.
			return false
		}
		size, n := readLEB128(data[offset:])
		if n == 0 {
			return false
		}
		offset += n
		if size > len(data)-offset {
			return false
		}
		data = data[offset+size:]
	}
	return false
}

// readLEB128 decodes an unsigned LEB128 value, returning the value and
// the number of bytes consumed. Zero bytes consumed means the input was
// truncated or the value overflows an int.
func readLEB128(data []byte) (int, int) {
	value := 0
	for i := 0; i < len(data) && i < 8; i++ {
		value |= int(data[i]&0x7F) << (7 * i)
		if data[i]&0x80 == 0 {
			return value, i + 1
		}
	}
	return 0, 0
}
