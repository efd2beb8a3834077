// ABOUTME: Tests for file decoders and import conformance
// ABOUTME: Exercises WAV parsing, dispatch, and channel/rate conversion
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/pranav100000/beatgen/pkg/audio"
)

// buildWAV assembles a minimal RIFF/WAVE file with a 16-bit PCM data chunk.
func buildWAV(t *testing.T, sampleRate, channels int, frames []int16) []byte {
	t.Helper()

	var data bytes.Buffer
	for _, s := range frames {
		if err := binary.Write(&data, binary.LittleEndian, s); err != nil {
			t.Fatalf("write sample: %v", err)
		}
	}

	var fmtChunk bytes.Buffer
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels))
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels*2))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(16))

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(4+8+fmtChunk.Len()+8+data.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(fmtChunk.Len()))
	out.Write(fmtChunk.Bytes())
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())
	return out.Bytes()
}

func sineFrames(n int, freq float64, rate int) []int16 {
	frames := make([]int16, n)
	for i := range frames {
		frames[i] = int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return frames
}

func TestWAVDecode(t *testing.T) {
	frames := sineFrames(4410, 440, 44100)
	wav := buildWAV(t, 44100, 1, frames)

	clip, err := WAV{}.Decode(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if clip.Format.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", clip.Format.SampleRate)
	}
	if clip.Format.Channels != 1 {
		t.Errorf("channels = %d, want 1", clip.Format.Channels)
	}
	if clip.Frames() != len(frames) {
		t.Errorf("frames = %d, want %d", clip.Frames(), len(frames))
	}
	// Samples must land on the 24-bit bus convention.
	if got, want := clip.Samples[10], audio.SampleFromInt16(frames[10]); got != want {
		t.Errorf("sample 10 = %d, want %d", got, want)
	}
}

func TestWAVSkipsUnknownChunks(t *testing.T) {
	frames := []int16{1, 2, 3, 4}
	wav := buildWAV(t, 22050, 2, frames)

	// Splice a LIST chunk between fmt and data.
	var spliced bytes.Buffer
	spliced.Write(wav[:12+8+16])
	spliced.WriteString("LIST")
	binary.Write(&spliced, binary.LittleEndian, uint32(4))
	spliced.WriteString("INFO")
	spliced.Write(wav[12+8+16:])

	clip, err := WAV{}.Decode(bytes.NewReader(spliced.Bytes()))
	if err != nil {
		t.Fatalf("decode with LIST chunk failed: %v", err)
	}
	if clip.Frames() != 2 {
		t.Errorf("frames = %d, want 2", clip.Frames())
	}
}

func TestWAVRejectsGarbage(t *testing.T) {
	if _, err := (WAV{}).Decode(bytes.NewReader([]byte("definitely not audio"))); err == nil {
		t.Error("expected an error for non-RIFF input")
	}
}

func TestForPathDispatch(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"loop.wav", true},
		{"Loop.WAV", true},
		{"song.mp3", true},
		{"master.flac", true},
		{"patch.syx", false},
		{"noext", false},
	}
	for _, c := range cases {
		_, err := ForPath(c.path)
		if c.ok && err != nil {
			t.Errorf("ForPath(%q) unexpected error: %v", c.path, err)
		}
		if !c.ok {
			if err == nil {
				t.Errorf("ForPath(%q) should fail", c.path)
			} else if !errors.Is(err, ErrUnsupported) {
				t.Errorf("ForPath(%q) error = %v, want ErrUnsupported", c.path, err)
			}
		}
	}
}

func TestConformUpmixAndResample(t *testing.T) {
	clip := &audio.Clip{
		Samples: make([]int32, 22050), // 1s mono at 22.05k
		Format:  audio.Format{Codec: "wav", SampleRate: 22050, Channels: 1, BitDepth: 16},
	}
	for i := range clip.Samples {
		clip.Samples[i] = int32(i % 1000)
	}

	out := Conform(clip, 48000, 2)
	if out.Format.Channels != 2 {
		t.Fatalf("channels = %d, want 2", out.Format.Channels)
	}
	if out.Format.SampleRate != 48000 {
		t.Fatalf("rate = %d, want 48000", out.Format.SampleRate)
	}
	if d := out.Duration(); d < 0.99 || d > 1.01 {
		t.Errorf("duration drifted to %f, want ~1.0", d)
	}
	// Mono upmix duplicates, so both channels of a frame match.
	for i := 0; i < 32; i += 2 {
		if out.Samples[i] != out.Samples[i+1] {
			t.Fatalf("frame %d channels differ: %d vs %d", i/2, out.Samples[i], out.Samples[i+1])
		}
	}
}

func TestConformKeepsNative(t *testing.T) {
	clip := &audio.Clip{
		Samples: []int32{1, 2, 3, 4},
		Format:  audio.Format{Codec: "wav", SampleRate: 48000, Channels: 2, BitDepth: 16},
	}
	out := Conform(clip, 0, 0)
	if out != clip {
		t.Error("zero targets should return the clip unchanged")
	}
}

func TestBytesDispatch(t *testing.T) {
	wav := buildWAV(t, 48000, 2, []int16{5, -5, 6, -6})
	clip, err := Bytes(wav, ".wav", 48000, 2)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if clip.Frames() != 2 {
		t.Errorf("frames = %d, want 2", clip.Frames())
	}

	if _, err := Bytes(wav, ".xyz", 0, 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unknown extension error = %v, want ErrUnsupported", err)
	}
}
