// ABOUTME: Tests for the control WebSocket client
// ABOUTME: Runs the client against a live server backed by a fake session
package control

import (
	"encoding/binary"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T, session Session) string {
	t.Helper()
	s := NewServer(Config{Name: "studio", Session: session})
	ts := httptest.NewServer(s.mux)
	t.Cleanup(ts.Close)
	return strings.TrimPrefix(ts.URL, "http://")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestClientConnectAndPlay(t *testing.T) {
	session := &fakeSession{}
	addr := startTestServer(t, session)

	c := NewClient(ClientConfig{Addr: addr, ClientID: "client-a", Name: "deck"})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if got := c.ServerName(); got != "studio" {
		t.Errorf("expected server name studio, got %q", got)
	}
	if !c.IsConnected() {
		t.Error("expected connected client")
	}

	if err := c.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, name := range session.callNames() {
			if name == "play" {
				return true
			}
		}
		return false
	}, "play command never reached the session")

	// Each accepted command is followed by a state push
	select {
	case state := <-c.States:
		if state.Tempo != 120 {
			t.Errorf("expected tempo 120 in pushed state, got %d", state.Tempo)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a state push after the command")
	}
}

func TestClientSeekAndTempo(t *testing.T) {
	session := &fakeSession{}
	addr := startTestServer(t, session)

	c := NewClient(ClientConfig{Addr: addr, ClientID: "client-b"})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if err := c.Seek(3.5); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := c.SetTempo(90); err != nil {
		t.Fatalf("set tempo: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return session.seekTo == 3.5 && session.tempo == 90
	}, "seek and tempo never reached the session")
}

func TestClientTimeSync(t *testing.T) {
	addr := startTestServer(t, &fakeSession{})

	c := NewClient(ClientConfig{Addr: addr, ClientID: "client-c"})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	// The sync loop primes an exchange right after connecting
	waitFor(t, 2*time.Second, func() bool {
		_, _, quality := c.SyncStats()
		return quality == QualityGood
	}, "clock never reached good sync quality")

	if offset := c.Clock().Offset(); offset == 0 {
		t.Error("expected a nonzero offset against the server's relative clock")
	}
}

func TestClientDuplicateIDRejected(t *testing.T) {
	addr := startTestServer(t, &fakeSession{})

	first := NewClient(ClientConfig{Addr: addr, ClientID: "same-id"})
	if err := first.Connect(); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	defer first.Close()

	second := NewClient(ClientConfig{Addr: addr, ClientID: "same-id"})
	if err := second.Connect(); err == nil {
		second.Close()
		t.Fatal("expected second connect with the same id to fail")
	}
}

func TestClientCommandsRequireConnection(t *testing.T) {
	c := NewClient(ClientConfig{Addr: "localhost:1"})

	if err := c.Play(); err == nil {
		t.Error("expected play on a disconnected client to fail")
	}
}

func TestClientConfigDefaults(t *testing.T) {
	c := NewClient(ClientConfig{Addr: "localhost:1"})

	if c.config.ClientID == "" {
		t.Error("expected a generated client id")
	}
	if c.config.Name != "beatgen control client" {
		t.Errorf("expected default name, got %q", c.config.Name)
	}
	if len(c.config.Roles) != 1 || c.config.Roles[0] != "controller" {
		t.Errorf("expected controller role default, got %v", c.config.Roles)
	}
}

func TestHandleBinaryChunk(t *testing.T) {
	c := NewClient(ClientConfig{Addr: "unused"})

	frame := make([]byte, monitorHeaderSize+3)
	frame[0] = monitorChunkType
	binary.BigEndian.PutUint64(frame[1:9], 778899)
	copy(frame[monitorHeaderSize:], []byte{1, 2, 3})

	c.handleBinary(frame)

	select {
	case chunk := <-c.Chunks:
		if chunk.Timestamp != 778899 {
			t.Errorf("expected timestamp 778899, got %d", chunk.Timestamp)
		}
		if len(chunk.Data) != 3 {
			t.Errorf("expected 3 payload bytes, got %d", len(chunk.Data))
		}
	default:
		t.Fatal("expected a chunk")
	}

	// Truncated and unknown frame types are dropped
	c.handleBinary(frame[:monitorHeaderSize-1])
	bad := make([]byte, monitorHeaderSize)
	bad[0] = 99
	c.handleBinary(bad)

	select {
	case <-c.Chunks:
		t.Fatal("expected malformed frames to be dropped")
	default:
	}
}
