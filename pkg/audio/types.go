// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and decoded clips shared by the engine and decoders
package audio

const (
	// 24-bit audio range constants. The mix bus runs int32 samples with
	// 24-bit headroom so 16-bit sources survive gain changes without
	// premature clipping.
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a PCM stream layout.
type Format struct {
	Codec      string // source codec the samples were decoded from ("mp3", "flac", "wav", "pcm")
	SampleRate int
	Channels   int
	BitDepth   int
}

// Clip is a fully decoded piece of audio bound to a track. Samples are
// interleaved int32 left-justified to 24-bit regardless of source depth.
type Clip struct {
	Samples []int32
	Format  Format
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c == nil || c.Format.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Format.Channels
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c == nil || c.Format.SampleRate == 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.Format.SampleRate)
}

// SampleToInt16 converts a 24-bit-headroom sample to int16 for device output.
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts an int16 sample to int32 left-justified in 24-bit.
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFrom24Bit converts 24-bit packed little-endian bytes to int32.
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF // sign extend
	}
	return val
}

// Clamp24 limits a mixed sample to the 24-bit range.
func Clamp24(v int64) int32 {
	if v > Max24Bit {
		return Max24Bit
	}
	if v < Min24Bit {
		return Min24Bit
	}
	return int32(v)
}
