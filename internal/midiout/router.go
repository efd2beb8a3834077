// ABOUTME: Routes engine note events to an external MIDI output port
// ABOUTME: Non-blocking fan-in from the render thread to a gomidi sender
package midiout

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

const queueSize = 512

// Channel-mode messages sent when silencing a port.
const (
	ccAllSoundOff uint8 = 120
	ccAllNotesOff uint8 = 123
)

type noteEvent struct {
	off      bool
	channel  uint8
	key      uint8
	velocity uint8
}

// Router forwards note events from the audio engine to one MIDI output
// port. The enqueue side never blocks: the render thread calls NoteOn and
// NoteOff, and a full queue drops events rather than stalling audio.
type Router struct {
	portName string
	sender   func(gomidi.Message) error

	events  chan noteEvent
	silence chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRouter opens the first MIDI output port whose name contains
// portSubstring (case-insensitive). An empty substring takes the first
// available port.
func NewRouter(portSubstring string) (*Router, error) {
	port, err := findPort(portSubstring)
	if err != nil {
		return nil, err
	}
	sender, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open midi out %q: %w", port.String(), err)
	}
	r := newRouterWithSender(port.String(), sender)
	log.Printf("[midi] routing note events to %q", r.portName)
	return r, nil
}

func newRouterWithSender(name string, sender func(gomidi.Message) error) *Router {
	r := &Router{
		portName: name,
		sender:   sender,
		events:   make(chan noteEvent, queueSize),
		silence:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func findPort(sub string) (drivers.Out, error) {
	ports := gomidi.GetOutPorts()
	if len(ports) == 0 {
		return nil, fmt.Errorf("no midi output ports available")
	}
	if sub == "" {
		return ports[0], nil
	}
	want := strings.ToLower(sub)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no midi output port matches %q", sub)
}

// Ports lists the names of every MIDI output port on the system.
func Ports() []string {
	outs := gomidi.GetOutPorts()
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	return names
}

// CloseDriver releases the process-wide MIDI driver. Call once at shutdown,
// after every Router is closed.
func CloseDriver() {
	gomidi.CloseDriver()
}

// PortName is the resolved name of the open output port.
func (r *Router) PortName() string {
	return r.portName
}

// NoteOn enqueues a note-on. Never blocks.
func (r *Router) NoteOn(channel, key, velocity uint8) {
	r.enqueue(noteEvent{channel: channel, key: key, velocity: velocity})
}

// NoteOff enqueues a note-off. Never blocks.
func (r *Router) NoteOff(channel, key uint8) {
	r.enqueue(noteEvent{off: true, channel: channel, key: key})
}

func (r *Router) enqueue(ev noteEvent) {
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// AllNotesOff asks the worker to sweep every channel with all-notes-off and
// all-sound-off. Used on pause and stop so external synths never hold a
// sounding note past the transport. Never blocks.
func (r *Router) AllNotesOff() {
	select {
	case r.silence <- struct{}{}:
	default:
	}
}

// GetStats returns counts of messages sent and events dropped.
func (r *Router) GetStats() (sent, dropped uint64) {
	return r.sent.Load(), r.dropped.Load()
}

// Close stops the worker after a final all-channels silence sweep. The
// driver itself stays open; see CloseDriver.
func (r *Router) Close() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Router) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			r.sweepSilence()
			return
		case <-r.silence:
			r.sweepSilence()
		case ev := <-r.events:
			var err error
			if ev.off {
				err = r.sender(gomidi.NoteOff(ev.channel, ev.key))
			} else {
				err = r.sender(gomidi.NoteOn(ev.channel, ev.key, ev.velocity))
			}
			if err != nil {
				log.Printf("[midi] send failed: %v", err)
				continue
			}
			r.sent.Add(1)
		}
	}
}

func (r *Router) sweepSilence() {
	for ch := uint8(0); ch < 16; ch++ {
		r.sender(gomidi.ControlChange(ch, ccAllNotesOff, 0))
		r.sender(gomidi.ControlChange(ch, ccAllSoundOff, 0))
	}
}
