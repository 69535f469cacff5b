// Global codec registry. Implementations register themselves from
// init functions; contexts look codecs up by ID or by name.
package mediakit

import (
	"fmt"
	"slices"
	"sync"
)

// CodecInfo identifies a codec implementation.
type CodecInfo interface {
	ID() CodecID
	Name() string
}

// AudioDecoderBuilder creates audio decoder instances for one codec ID.
type AudioDecoderBuilder interface {
	CodecInfo
	NewDecoder(params *CodecParameters) (AudioDecoder, error)
}

// VideoDecoderBuilder creates video decoder instances for one codec ID.
type VideoDecoderBuilder interface {
	CodecInfo
	NewDecoder(params *CodecParameters) (VideoDecoder, error)
}

// AudioEncoderBuilder creates audio encoder instances for one codec ID.
type AudioEncoderBuilder interface {
	CodecInfo
	NewEncoder(params *CodecParameters) (AudioEncoder, error)
}

// VideoEncoderBuilder creates video encoder instances for one codec ID.
type VideoEncoderBuilder interface {
	CodecInfo
	NewEncoder(params *CodecParameters) (VideoEncoder, error)
}

type codecRegistry struct {
	mu sync.RWMutex

	// Several builders may serve the same codec ID; the first entry
	// wins lookups by ID.
	audioDecoders map[CodecID][]AudioDecoderBuilder
	videoDecoders map[CodecID][]VideoDecoderBuilder
	audioEncoders map[CodecID][]AudioEncoderBuilder
	videoEncoders map[CodecID][]VideoEncoderBuilder
}

var globalCodecRegistry = &codecRegistry{
	audioDecoders: make(map[CodecID][]AudioDecoderBuilder),
	videoDecoders: make(map[CodecID][]VideoDecoderBuilder),
	audioEncoders: make(map[CodecID][]AudioEncoderBuilder),
	videoEncoders: make(map[CodecID][]VideoEncoderBuilder),
}

// RegisterAudioDecoder makes a builder available to
// NewAudioDecoderContext. With asDefault set it takes precedence over
// builders registered earlier for the same codec ID.
func RegisterAudioDecoder(b AudioDecoderBuilder, asDefault bool) {
	r := globalCodecRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	if asDefault {
		r.audioDecoders[b.ID()] = append([]AudioDecoderBuilder{b}, r.audioDecoders[b.ID()]...)
	} else {
		r.audioDecoders[b.ID()] = append(r.audioDecoders[b.ID()], b)
	}
}

// RegisterVideoDecoder makes a builder available to
// NewVideoDecoderContext. With asDefault set it takes precedence over
// builders registered earlier for the same codec ID.
func RegisterVideoDecoder(b VideoDecoderBuilder, asDefault bool) {
	r := globalCodecRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	if asDefault {
		r.videoDecoders[b.ID()] = append([]VideoDecoderBuilder{b}, r.videoDecoders[b.ID()]...)
	} else {
		r.videoDecoders[b.ID()] = append(r.videoDecoders[b.ID()], b)
	}
}

// RegisterAudioEncoder makes a builder available to
// NewAudioEncoderContext. With asDefault set it takes precedence over
// builders registered earlier for the same codec ID.
func RegisterAudioEncoder(b AudioEncoderBuilder, asDefault bool) {
	r := globalCodecRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	if asDefault {
		r.audioEncoders[b.ID()] = append([]AudioEncoderBuilder{b}, r.audioEncoders[b.ID()]...)
	} else {
		r.audioEncoders[b.ID()] = append(r.audioEncoders[b.ID()], b)
	}
}

// RegisterVideoEncoder makes a builder available to
// NewVideoEncoderContext. With asDefault set it takes precedence over
// builders registered earlier for the same codec ID.
func RegisterVideoEncoder(b VideoEncoderBuilder, asDefault bool) {
	r := globalCodecRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	if asDefault {
		r.videoEncoders[b.ID()] = append([]VideoEncoderBuilder{b}, r.videoEncoders[b.ID()]...)
	} else {
		r.videoEncoders[b.ID()] = append(r.videoEncoders[b.ID()], b)
	}
}

func findAudioDecoder(id CodecID) (AudioDecoderBuilder, error) {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	if builders := r.audioDecoders[id]; len(builders) > 0 {
		return builders[0], nil
	}
	return nil, fmt.Errorf("audio decoder %s: %w", id, ErrNotFound)
}

func findAudioDecoderByName(name string) (AudioDecoderBuilder, error) {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, builders := range r.audioDecoders {
		for _, b := range builders {
			if b.Name() == name {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("audio decoder %q: %w", name, ErrNotFound)
}

func findVideoDecoder(id CodecID) (VideoDecoderBuilder, error) {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	if builders := r.videoDecoders[id]; len(builders) > 0 {
		return builders[0], nil
	}
	return nil, fmt.Errorf("video decoder %s: %w", id, ErrNotFound)
}

func findVideoDecoderByName(name string) (VideoDecoderBuilder, error) {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, builders := range r.videoDecoders {
		for _, b := range builders {
			if b.Name() == name {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("video decoder %q: %w", name, ErrNotFound)
}

func findAudioEncoder(id CodecID) (AudioEncoderBuilder, error) {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	if builders := r.audioEncoders[id]; len(builders) > 0 {
		return builders[0], nil
	}
	return nil, fmt.Errorf("audio encoder %s: %w", id, ErrNotFound)
}

func findAudioEncoderByName(name string) (AudioEncoderBuilder, error) {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, builders := range r.audioEncoders {
		for _, b := range builders {
			if b.Name() == name {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("audio encoder %q: %w", name, ErrNotFound)
}

func findVideoEncoder(id CodecID) (VideoEncoderBuilder, error) {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	if builders := r.videoEncoders[id]; len(builders) > 0 {
		return builders[0], nil
	}
	return nil, fmt.Errorf("video encoder %s: %w", id, ErrNotFound)
}

func findVideoEncoderByName(name string) (VideoEncoderBuilder, error) {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, builders := range r.videoEncoders {
		for _, b := range builders {
			if b.Name() == name {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("video encoder %q: %w", name, ErrNotFound)
}

// SupportedDecoders returns the codec IDs with at least one registered
// decoder for the given media type.
func SupportedDecoders(media MediaType) []CodecID {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []CodecID
	switch media {
	case MediaTypeAudio:
		for id := range r.audioDecoders {
			ids = append(ids, id)
		}
	case MediaTypeVideo:
		for id := range r.videoDecoders {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// SupportedEncoders returns the codec IDs with at least one registered
// encoder for the given media type.
func SupportedEncoders(media MediaType) []CodecID {
	r := globalCodecRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []CodecID
	switch media {
	case MediaTypeAudio:
		for id := range r.audioEncoders {
			ids = append(ids, id)
		}
	case MediaTypeVideo:
		for id := range r.videoEncoders {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
