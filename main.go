// ABOUTME: Entry point for the beatgen studio
// ABOUTME: Parses CLI flags and wires the session, control server, discovery, and TUI
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pranav100000/beatgen/internal/control"
	"github.com/pranav100000/beatgen/internal/discovery"
	"github.com/pranav100000/beatgen/internal/midiout"
	"github.com/pranav100000/beatgen/internal/ui"
	"github.com/pranav100000/beatgen/internal/version"
	"github.com/pranav100000/beatgen/pkg/beatgen"
)

var (
	name        = flag.String("name", "", "Session name (default: hostname-beatgen)")
	bpm         = flag.Int("bpm", 120, "Initial tempo in BPM")
	sampleRate  = flag.Int("sample-rate", 48000, "Engine sample rate in Hz")
	loadPath    = flag.String("load", "", "Project file to load on startup")
	midiPort    = flag.String("midi-port", "", "Route notes to the first MIDI output matching this substring")
	silent      = flag.Bool("silent", false, "Disable the audio device, render to a null sink")
	controlOn   = flag.Bool("control", false, "Serve the WebSocket control API")
	controlPort = flag.Int("control-port", 8937, "Control API port")
	mdnsOn      = flag.Bool("mdns", false, "Advertise the control API over mDNS")
	logFile     = flag.String("log-file", "beatgen.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs  = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	// Determine if we should use TUI or streaming logs
	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		multiWriter := io.MultiWriter(os.Stdout, f)
		log.SetOutput(multiWriter)
	}

	// Determine session name
	sessionName := *name
	if sessionName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		sessionName = fmt.Sprintf("%s-beatgen", hostname)
	}

	log.Printf("[main] %s %s starting session %q", version.Product, version.Version, sessionName)

	session, err := beatgen.NewSession(beatgen.SessionConfig{
		Name:       sessionName,
		SampleRate: *sampleRate,
		Tempo:      *bpm,
		Silent:     *silent,
		MIDIPort:   *midiPort,
		OnError: func(err error) {
			log.Printf("[main] session error: %v", err)
		},
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	if *loadPath != "" {
		if err := session.LoadFile(*loadPath); err != nil {
			log.Fatalf("Failed to load project %s: %v", *loadPath, err)
		}
		log.Printf("[main] loaded project %s", *loadPath)
	}

	// Positional args are audio files imported as tracks
	for _, path := range flag.Args() {
		trackName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := session.AddAudioTrack(trackName, path); err != nil {
			log.Printf("[main] import %s failed: %v", path, err)
			continue
		}
		log.Printf("[main] importing %s", path)
	}

	if *midiPort != "" {
		log.Printf("[main] MIDI notes routed to %q", session.MIDIPortName())
	}

	// Control server with an opus monitor feed off the master bus
	var ctlServer *control.Server
	if *controlOn {
		monitor, err := control.NewMonitor(session.Engine(), session.Engine().Format().SampleRate)
		if err != nil {
			log.Printf("[main] monitor disabled: %v", err)
			monitor = nil
		}

		ctlServer = control.NewServer(control.Config{
			Port:    *controlPort,
			Name:    sessionName,
			Session: session,
			Monitor: monitor,
		})
		go func() {
			if err := ctlServer.Start(); err != nil {
				log.Printf("[main] control server: %v", err)
			}
		}()
	}

	// mDNS advertisement so remote surfaces can find the control API
	var disc *discovery.Manager
	if *mdnsOn {
		if !*controlOn {
			log.Printf("[main] -mdns requires -control, skipping advertisement")
		} else {
			disc = discovery.NewManager(discovery.Config{
				InstanceName: sessionName,
				Port:         *controlPort,
			})
			if err := disc.Advertise(); err != nil {
				log.Printf("[main] mDNS advertise failed: %v", err)
			}
		}
	}

	if useTUI {
		if err := ui.Run(session); err != nil {
			log.Printf("[main] tui: %v", err)
		}
	} else {
		log.Printf("[main] running headless, Ctrl-C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Printf("[main] shutdown signal received")
	}

	if ctlServer != nil {
		ctlServer.Stop()
	}
	if disc != nil {
		disc.Stop()
	}
	if err := session.Close(); err != nil {
		log.Printf("[main] error closing session: %v", err)
	}
	midiout.CloseDriver()

	log.Printf("[main] session stopped")
}
