// ABOUTME: Entry point for a headless beatgen control server
// ABOUTME: Runs a session without TUI and serves the WebSocket control API
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pranav100000/beatgen/internal/control"
	"github.com/pranav100000/beatgen/internal/discovery"
	"github.com/pranav100000/beatgen/internal/midiout"
	"github.com/pranav100000/beatgen/pkg/beatgen"
)

var (
	port     = flag.Int("port", 8937, "WebSocket control port")
	name     = flag.String("name", "", "Session name (default: hostname-beatgen-server)")
	bpm      = flag.Int("bpm", 120, "Initial tempo in BPM")
	loadPath = flag.String("load", "", "Project file to load on startup")
	midiPort = flag.String("midi-port", "", "Route notes to the first MIDI output matching this substring")
	silent   = flag.Bool("silent", false, "Disable the audio device, render to a null sink")
	noMDNS   = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	logFile  = flag.String("log-file", "beatgen-server.log", "Log file path")
)

func main() {
	flag.Parse()

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	multiWriter := io.MultiWriter(os.Stdout, f)
	log.SetOutput(multiWriter)

	// Determine server name
	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-beatgen-server", hostname)
	}

	log.Printf("Starting beatgen server: %s on port %d", serverName, *port)
	log.Printf("Logging to: %s", *logFile)
	log.Printf("Press Ctrl-C to stop")

	session, err := beatgen.NewSession(beatgen.SessionConfig{
		Name:     serverName,
		Tempo:    *bpm,
		Silent:   *silent,
		MIDIPort: *midiPort,
		OnError: func(err error) {
			log.Printf("[server] session error: %v", err)
		},
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	if *loadPath != "" {
		if err := session.LoadFile(*loadPath); err != nil {
			log.Fatalf("Failed to load project %s: %v", *loadPath, err)
		}
		log.Printf("Loaded project %s", *loadPath)
	}

	monitor, err := control.NewMonitor(session.Engine(), session.Engine().Format().SampleRate)
	if err != nil {
		log.Printf("Monitor disabled: %v", err)
		monitor = nil
	}

	srv := control.NewServer(control.Config{
		Port:    *port,
		Name:    serverName,
		Session: session,
		Monitor: monitor,
	})

	var disc *discovery.Manager
	if !*noMDNS {
		disc = discovery.NewManager(discovery.Config{
			InstanceName: serverName,
			Port:         *port,
		})
		if err := disc.Advertise(); err != nil {
			log.Printf("mDNS advertise failed: %v", err)
		}
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("\nReceived %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	// Start server
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	if disc != nil {
		disc.Stop()
	}
	if err := session.Close(); err != nil {
		log.Printf("Error closing session: %v", err)
	}
	midiout.CloseDriver()

	log.Printf("Server stopped")
}
