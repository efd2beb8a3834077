// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts decoded clips between sample rates at import time
// Package resample provides audio sample rate conversion.
//
// Decoded clips are converted to the engine rate once, when a file is
// imported, so playback never resamples. Linear interpolation handles both
// upsampling and downsampling.
//
// Example:
//
//	out := resample.Convert(clip.Samples, 2, 44100, 48000)
package resample
