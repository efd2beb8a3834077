// ABOUTME: Opus monitor stream of the master bus for control clients
// ABOUTME: Taps the engine, encodes 20ms frames, and fans out binary chunks
package control

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"gopkg.in/hraban/opus.v2"

	"github.com/pranav100000/beatgen/pkg/audio"
)

// Binary chunk layout: [type:1][timestamp_micros:8][opus packet].
const (
	monitorChunkType  = 1
	monitorHeaderSize = 9

	monitorChannels = 2
	// 20ms per opus frame.
	monitorFrameMs = 20

	// Opus packets never exceed this.
	maxPacketSize = 4000
)

// TapSource is the slice of the engine the monitor needs.
type TapSource interface {
	AddTap(fn func(block []int32)) (remove func())
}

// Monitor encodes the master bus to Opus and streams it to clients that
// joined with the monitor role.
type Monitor struct {
	source     TapSource
	sampleRate int
	frameSize  int // samples per channel per opus frame
	encoder    *opus.Encoder

	mu      sync.Mutex
	clients map[string]*client
	pcm     []int16
	packet  []byte

	clockStart time.Time
	removeTap  func()

	frames  uint64
	dropped uint64
}

// NewMonitor builds a monitor for an engine running at sampleRate. Opus
// supports 48, 24, 16, 12, and 8 kHz; the engine default of 48 kHz is fine.
func NewMonitor(source TapSource, sampleRate int) (*Monitor, error) {
	encoder, err := opus.NewEncoder(sampleRate, monitorChannels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	// 64 kbps per channel is plenty for a cue mix.
	if err := encoder.SetBitrate(64000 * monitorChannels); err != nil {
		log.Printf("[monitor] set bitrate failed: %v", err)
	}

	return &Monitor{
		source:     source,
		sampleRate: sampleRate,
		frameSize:  sampleRate * monitorFrameMs / 1000,
		encoder:    encoder,
		clients:    make(map[string]*client),
		packet:     make([]byte, maxPacketSize),
		clockStart: time.Now(),
	}, nil
}

// start begins tapping the engine. Called by the control server.
func (m *Monitor) start() {
	if m.removeTap != nil {
		return
	}
	m.removeTap = m.source.AddTap(m.onBlock)
	log.Printf("[monitor] streaming master bus at %d Hz, %dms opus frames", m.sampleRate, monitorFrameMs)
}

func (m *Monitor) stop() {
	if m.removeTap != nil {
		m.removeTap()
		m.removeTap = nil
	}
}

// addClient registers a monitor client and tells it the stream format.
func (m *Monitor) addClient(c *client) {
	m.mu.Lock()
	m.clients[c.id] = c
	m.mu.Unlock()

	c.enqueue(Message{Type: "stream/start", Payload: StreamStart{
		Codec:      "opus",
		SampleRate: m.sampleRate,
		Channels:   monitorChannels,
		BitDepth:   16,
	}})
	log.Printf("[monitor] client %s joined the monitor stream", c.name)
}

func (m *Monitor) removeClient(c *client) {
	m.mu.Lock()
	delete(m.clients, c.id)
	m.mu.Unlock()
}

// GetStats returns encoded frame and dropped chunk counts.
func (m *Monitor) GetStats() (frames, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames, m.dropped
}

// onBlock receives 24-bit master bus blocks from the render thread. It must
// stay quick: accumulate, encode at frame boundaries, and hand chunks to
// client queues without blocking.
func (m *Monitor) onBlock(block []int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.clients) == 0 {
		// Nobody listening; do not let the buffer grow.
		m.pcm = m.pcm[:0]
		return
	}

	for _, s := range block {
		m.pcm = append(m.pcm, audio.SampleToInt16(s))
	}

	frameSamples := m.frameSize * monitorChannels
	for len(m.pcm) >= frameSamples {
		n, err := m.encoder.Encode(m.pcm[:frameSamples], m.packet)
		kept := copy(m.pcm, m.pcm[frameSamples:])
		m.pcm = m.pcm[:kept]
		if err != nil {
			log.Printf("[monitor] encode failed: %v", err)
			continue
		}

		chunk := buildChunk(time.Since(m.clockStart).Microseconds(), m.packet[:n])
		m.frames++
		for _, c := range m.clients {
			select {
			case c.send <- chunk:
			default:
				m.dropped++
			}
		}
	}
}

// buildChunk frames an opus packet for the wire.
func buildChunk(timestampMicros int64, packet []byte) []byte {
	chunk := make([]byte, monitorHeaderSize+len(packet))
	chunk[0] = monitorChunkType
	binary.BigEndian.PutUint64(chunk[1:monitorHeaderSize], uint64(timestampMicros))
	copy(chunk[monitorHeaderSize:], packet)
	return chunk
}
