// ABOUTME: MP3 file decoder
// ABOUTME: Decodes whole MP3 files to int32 clips via go-mp3
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/pranav100000/beatgen/pkg/audio"
)

// MP3 decodes MPEG layer-3 files. go-mp3 always emits 16-bit stereo PCM at
// the file's sample rate.
type MP3 struct{}

// Decode reads the full stream and returns a stereo clip.
func (MP3) Decode(r io.Reader) (*audio.Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("create mp3 decoder: %w", err)
	}

	var samples []int32
	if n := dec.Length(); n > 0 {
		samples = make([]int32, 0, n/2)
	}

	buf := make([]byte, 16384)
	for {
		n, err := dec.Read(buf)
		for i := 0; i+1 < n; i += 2 {
			s := int16(binary.LittleEndian.Uint16(buf[i:]))
			samples = append(samples, audio.SampleFromInt16(s))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("mp3 decode: %w", err)
		}
	}

	return &audio.Clip{
		Samples: samples,
		Format: audio.Format{
			Codec:      "mp3",
			SampleRate: dec.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
	}, nil
}
