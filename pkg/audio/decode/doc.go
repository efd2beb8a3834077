// ABOUTME: Audio file decoder package for track import
// ABOUTME: Provides whole-file decoders for MP3, FLAC, and WAV
// Package decode turns audio files into clips ready for the mix bus.
//
// Supported formats: MP3 (go-mp3), FLAC (mewkiz/flac), WAV (16/24-bit PCM).
//
// Decoders emit int32 samples left-justified to 24 bits. Conform resamples
// and remaps channels at import time so playback never converts:
//
//	clip, err := decode.File("kick.wav", 48000, 2)
package decode
