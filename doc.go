// Package mediakit is a multimedia framework: raw frame handling,
// codecs, capture and playback devices, container formats and RTP
// transport, held together by capture and transcode pipelines.
//
// Key pieces include:
//   - VideoFrame/AudioFrame with pixel and sample format conversion,
//     scaling, buffer pools and frame rings
//   - Registry-backed encoders and decoders driven through
//     send/receive contexts
//   - DeviceManager with virtual capture devices (test pattern, tone,
//     WAV playback) and V4L2 cameras on Linux
//   - Muxers and demuxers for WAV, IVF, Ogg/Opus, FLV and RTMP publish
//   - RTP packetizer/depacketizer and a webrtc.TrackLocal adapter
//
// # Architecture
//
//	Capture:   CaptureDevice -> Convert/Scale -> EncoderContext -> MuxContext or LocalTrack
//	Transcode: Packet -> DecoderContext -> Convert/Scale -> EncoderContext -> Packet
//	Receive:   rtp.Packet -> Depacketizer -> DecoderContext -> Frame
//
// Coded streams move as Packet values carrying PTS/DTS in a Rational
// time base; Rescale converts between bases without drifting.
//
// # Codecs
//
// PCM and G.711 codecs are always available, MJPEG decoding uses the
// standard image/jpeg path, and Opus binds the system libopus through
// purego. Set MEDIAKIT_LIB_PATH to point the loader at a custom
// library directory; the noopus build tag removes the binding, and
// nodevices removes platform capture backends and hotplug watching.
package mediakit
