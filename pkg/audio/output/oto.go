// ABOUTME: Oto-based audio device sink
// ABOUTME: Streams rendered PCM to the system output through a persistent pipe player
package output

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/pranav100000/beatgen/pkg/audio"
)

// Device plays the master bus on the system audio output via oto. Only one
// oto context can exist per process, so Device refuses format changes after
// the first Start instead of reinitializing.
type Device struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	format     audio.Format
	ready      bool
}

// NewDevice creates an unopened device sink.
func NewDevice() *Device {
	return &Device{}
}

// Start opens the oto context and begins the persistent pipe player.
func (d *Device) Start(format audio.Format) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.otoCtx != nil {
		if d.format.SampleRate == format.SampleRate && d.format.Channels == format.Channels {
			d.ready = true
			return nil
		}
		return fmt.Errorf("oto context already open at %dHz/%dch, cannot reopen at %dHz/%dch",
			d.format.SampleRate, d.format.Channels, format.SampleRate, format.Channels)
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("create oto context: %w", err)
	}
	<-readyChan

	d.otoCtx = ctx
	d.format = format
	d.pipeReader, d.pipeWriter = io.Pipe()
	d.player = d.otoCtx.NewPlayer(d.pipeReader)
	d.player.Play()
	d.ready = true

	log.Printf("[output] device open: %dHz, %d channels", format.SampleRate, format.Channels)
	return nil
}

// Write feeds one rendered block to the pipe; blocks until the player
// consumes it, which paces the render loop against the device clock.
func (d *Device) Write(pcm []byte) (int, error) {
	d.mu.Lock()
	w := d.pipeWriter
	ready := d.ready
	d.mu.Unlock()

	if !ready || w == nil {
		return 0, fmt.Errorf("device not started")
	}
	n, err := w.Write(pcm)
	if err != nil {
		return n, fmt.Errorf("pipe write: %w", err)
	}
	return n, nil
}

// Paced is true: pipe writes block until the device consumes them.
func (d *Device) Paced() bool { return true }

// Close tears down the player and suspends the context.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeWriter != nil {
		d.pipeWriter.Close()
		d.pipeWriter = nil
	}
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
	if d.pipeReader != nil {
		d.pipeReader.Close()
		d.pipeReader = nil
	}
	if d.otoCtx != nil {
		d.otoCtx.Suspend()
	}
	d.ready = false
	return nil
}
