// ABOUTME: File decoder dispatch and import-time conformance
// ABOUTME: Routes by extension and conforms clips to the engine rate and channel count
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pranav100000/beatgen/pkg/audio"
	"github.com/pranav100000/beatgen/pkg/audio/resample"
)

// ErrUnsupported is returned when no decoder matches a file extension.
var ErrUnsupported = errors.New("decode: unsupported file type")

// FileDecoder decodes one complete audio file into a clip.
type FileDecoder interface {
	Decode(r io.Reader) (*audio.Clip, error)
}

// ForPath returns the decoder matching a file name's extension.
func ForPath(path string) (FileDecoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return MP3{}, nil
	case ".flac":
		return FLAC{}, nil
	case ".wav", ".wave":
		return WAV{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}
}

// File decodes an audio file and conforms it to targetRate/targetChannels.
// Zero targets keep the native rate or channel count.
func File(path string, targetRate, targetChannels int) (*audio.Clip, error) {
	dec, err := ForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	clip, err := dec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return Conform(clip, targetRate, targetChannels), nil
}

// Bytes decodes an in-memory file image; ext selects the decoder (".mp3" etc.).
func Bytes(data []byte, ext string, targetRate, targetChannels int) (*audio.Clip, error) {
	dec, err := ForPath("x" + ext)
	if err != nil {
		return nil, err
	}
	clip, err := dec.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s data: %w", ext, err)
	}
	return Conform(clip, targetRate, targetChannels), nil
}

// Conform adjusts channel count and sample rate so the render path never has
// to convert. Mono duplicates to stereo; extra channels fold into the kept
// ones.
func Conform(clip *audio.Clip, targetRate, targetChannels int) *audio.Clip {
	if clip == nil {
		return nil
	}
	out := clip

	if targetChannels > 0 && out.Format.Channels != targetChannels {
		out = remapChannels(out, targetChannels)
	}
	if targetRate > 0 && out.Format.SampleRate != targetRate {
		samples := resample.Convert(out.Samples, out.Format.Channels, out.Format.SampleRate, targetRate)
		f := out.Format
		f.SampleRate = targetRate
		out = &audio.Clip{Samples: samples, Format: f}
	}
	return out
}

func remapChannels(clip *audio.Clip, target int) *audio.Clip {
	src := clip.Format.Channels
	frames := clip.Frames()
	samples := make([]int32, frames*target)

	for i := 0; i < frames; i++ {
		switch {
		case src == 1:
			for ch := 0; ch < target; ch++ {
				samples[i*target+ch] = clip.Samples[i]
			}
		case target == 1:
			var acc int64
			for ch := 0; ch < src; ch++ {
				acc += int64(clip.Samples[i*src+ch])
			}
			samples[i] = audio.Clamp24(acc / int64(src))
		default:
			for ch := 0; ch < target; ch++ {
				samples[i*target+ch] = clip.Samples[i*src+ch]
			}
			for ch := target; ch < src; ch++ {
				dst := ch % target
				mixed := int64(samples[i*target+dst]) + int64(clip.Samples[i*src+ch])/2
				samples[i*target+dst] = audio.Clamp24(mixed)
			}
		}
	}

	f := clip.Format
	f.Channels = target
	return &audio.Clip{Samples: samples, Format: f}
}
