// ABOUTME: FLAC file decoder
// ABOUTME: Decodes whole FLAC streams to int32 clips via mewkiz/flac
package decode

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"

	"github.com/pranav100000/beatgen/pkg/audio"
)

// FLAC decodes free lossless audio codec files.
type FLAC struct{}

// Decode parses the stream frame by frame and interleaves the channels.
func (FLAC) Decode(r io.Reader) (*audio.Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("parse flac stream: %w", err)
	}

	info := stream.Info
	channels := int(info.NChannels)
	bps := int(info.BitsPerSample)
	if channels == 0 {
		return nil, fmt.Errorf("flac stream reports zero channels")
	}

	// Left-justify to the 24-bit bus convention.
	shift := 24 - bps

	var samples []int32
	if info.NSamples > 0 {
		samples = make([]int32, 0, int(info.NSamples)*channels)
	}

	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac frame: %w", err)
		}

		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels && ch < len(frame.Subframes); ch++ {
				s := frame.Subframes[ch].Samples[i]
				if shift >= 0 {
					samples = append(samples, s<<uint(shift))
				} else {
					samples = append(samples, s>>uint(-shift))
				}
			}
		}
	}

	return &audio.Clip{
		Samples: samples,
		Format: audio.Format{
			Codec:      "flac",
			SampleRate: int(info.SampleRate),
			Channels:   channels,
			BitDepth:   bps,
		},
	}, nil
}
