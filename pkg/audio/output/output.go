// ABOUTME: Audio sink interface and headless implementations
// ABOUTME: Defines where the rendered master bus goes (device, null, capture)
package output

import (
	"sync"

	"github.com/pranav100000/beatgen/pkg/audio"
)

// Sink receives the rendered master bus as interleaved int16 little-endian
// PCM. Implementations must tolerate Write after Close returning an error
// rather than panicking.
type Sink interface {
	// Start prepares the sink for the given stream layout.
	Start(format audio.Format) error

	// Write outputs one rendered block (blocks until consumed).
	Write(pcm []byte) (int, error)

	// Paced reports whether Write provides real-time backpressure. The
	// render loop self-paces with a ticker when it doesn't.
	Paced() bool

	// Close releases the sink.
	Close() error
}

// Null discards everything. Used for headless servers and tests where
// pacing comes from the render ticker, not the device.
type Null struct{}

func (Null) Start(audio.Format) error { return nil }

func (Null) Write(pcm []byte) (int, error) { return len(pcm), nil }

func (Null) Paced() bool { return false }

func (Null) Close() error { return nil }

// Capture retains written PCM for inspection in tests.
type Capture struct {
	mu     sync.Mutex
	format audio.Format
	data   []byte
}

func (c *Capture) Start(format audio.Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = format
	return nil
}

func (c *Capture) Write(pcm []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, pcm...)
	return len(pcm), nil
}

func (c *Capture) Paced() bool { return false }

func (c *Capture) Close() error { return nil }

// Bytes returns a copy of everything written so far.
func (c *Capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// Frames reports how many complete frames were captured.
func (c *Capture) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.format.Channels == 0 {
		return 0
	}
	return len(c.data) / (2 * c.format.Channels)
}

// Reset drops captured data.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}
