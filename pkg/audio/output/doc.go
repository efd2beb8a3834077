// ABOUTME: Audio output package for the rendered master bus
// ABOUTME: Provides the Sink interface plus device, null, and capture implementations
// Package output provides destinations for the rendered master bus.
//
// The engine renders interleaved int16 little-endian PCM blocks and hands
// them to a Sink. Device plays through the system output via oto; Null
// discards (headless servers); Capture retains blocks for tests.
//
// Example:
//
//	sink := output.NewDevice()
//	err := sink.Start(audio.Format{SampleRate: 48000, Channels: 2})
package output
