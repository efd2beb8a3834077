// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Clip types and sample conversion functions
// Package audio provides the fundamental audio types shared by the beatgen
// engine, the file decoders, and the output sinks.
//
// Core types:
//   - Format: describes a PCM stream layout (source codec, sample rate, channels, bit depth)
//   - Clip: a fully decoded piece of audio bound to a track
//
// Samples are carried as interleaved int32 left-justified to 24 bits, so the
// mix bus keeps headroom over 16-bit sources. Conversion helpers move samples
// between the bus representation and device formats:
//
//	sample24 := audio.SampleFromInt16(sample16)
//	out := audio.SampleToInt16(audio.Clamp24(acc))
package audio
