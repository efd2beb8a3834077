// ABOUTME: WAV (RIFF PCM) file decoder
// ABOUTME: Parses fmt/data chunks and decodes 16-bit and 24-bit PCM to clips
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pranav100000/beatgen/pkg/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAV decodes RIFF/WAVE files containing integer PCM.
type WAV struct{}

// Decode walks the chunk list, reads the format header, and converts the
// data chunk to bus samples.
func (WAV) Decode(r io.Reader) (*audio.Clip, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		format     uint16
		channels   uint16
		sampleRate uint32
		bits       uint16
		data       []byte
	)

	for data == nil {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("wav file has no data chunk")
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", len(body))
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = binary.LittleEndian.Uint32(body[4:8])
			bits = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
		default:
			// Skip unknown chunks (LIST, fact, cue, ...). Chunks are
			// word-aligned, so odd sizes carry a pad byte.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("skip %s chunk: %w", id, err)
			}
		}
	}

	if format != wavFormatPCM && format != wavFormatExtensible {
		return nil, fmt.Errorf("unsupported wav format tag %d (only PCM)", format)
	}
	if channels == 0 {
		return nil, fmt.Errorf("wav file reports zero channels")
	}

	var samples []int32
	switch bits {
	case 16:
		n := len(data) / 2
		samples = make([]int32, n)
		for i := 0; i < n; i++ {
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
		}
	case 24:
		n := len(data) / 3
		samples = make([]int32, n)
		for i := 0; i < n; i++ {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
	default:
		return nil, fmt.Errorf("unsupported wav bit depth %d (want 16 or 24)", bits)
	}

	return &audio.Clip{
		Samples: samples,
		Format: audio.Format{
			Codec:      "wav",
			SampleRate: int(sampleRate),
			Channels:   int(channels),
			BitDepth:   int(bits),
		},
	}, nil
}
