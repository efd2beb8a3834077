// ABOUTME: WebSocket client for the control protocol
// ABOUTME: Handles connection, handshake, time sync, and message routing
package control

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	helloTimeout = 5 * time.Second
	syncInterval = 2 * time.Second
)

// ClientConfig holds control client configuration.
type ClientConfig struct {
	// Addr is the server's host:port.
	Addr string

	// ClientID defaults to a fresh UUID.
	ClientID string

	// Name defaults to "beatgen control client".
	Name string

	// Roles defaults to controller only. Add "monitor" to also receive
	// the opus master-bus feed on Chunks.
	Roles []string
}

// Client is a WebSocket client for a session's control API.
type Client struct {
	config  ClientConfig
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex // gorilla allows a single writer at a time

	clock *SyncClock

	// States receives session snapshots. When the consumer falls behind,
	// new snapshots are dropped; each one is complete on its own.
	States chan SessionState

	// Streams receives the monitor stream announcement.
	Streams chan StreamStart

	// Chunks receives timestamped monitor audio when the monitor role
	// was requested.
	Chunks chan MonitorChunk

	serverName string
	connected  bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// MonitorChunk is one timestamped opus packet from the monitor feed.
type MonitorChunk struct {
	Timestamp int64 // server clock, microseconds
	Data      []byte
}

// NewClient creates a control client.
func NewClient(config ClientConfig) *Client {
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if config.Name == "" {
		config.Name = "beatgen control client"
	}
	if len(config.Roles) == 0 {
		config.Roles = []string{"controller"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:  config,
		clock:   NewSyncClock(),
		States:  make(chan SessionState, 10),
		Streams: make(chan StreamStart, 1),
		Chunks:  make(chan MonitorChunk, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect dials the server and performs the hello handshake.
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.Addr, Path: "/control"}
	log.Printf("[control] connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	go c.syncLoop()

	return nil
}

// handshake sends client/hello and waits for server/hello.
func (c *Client) handshake() error {
	hello := Message{
		Type: "client/hello",
		Payload: ClientHello{
			ClientID:       c.config.ClientID,
			Name:           c.config.Name,
			Version:        ProtocolVersion,
			SupportedRoles: c.config.Roles,
		},
	}
	if err := c.sendJSON(hello); err != nil {
		return fmt.Errorf("send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parse server/hello: %w", err)
	}

	if msg.Type == "server/error" {
		return fmt.Errorf("server rejected connection: %v", msg.Payload)
	}
	if msg.Type != "server/hello" {
		return fmt.Errorf("expected server/hello, got %s", msg.Type)
	}

	var sh ServerHello
	if err := decodePayload(msg.Payload, &sh); err != nil {
		return fmt.Errorf("decode server/hello: %w", err)
	}

	c.mu.Lock()
	c.serverName = sh.Name
	c.mu.Unlock()

	log.Printf("[control] connected to %q", sh.Name)
	return nil
}

func (c *Client) sendJSON(msg Message) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return fmt.Errorf("not connected")
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) sendCommand(cmd Command) error {
	return c.sendJSON(Message{Type: "session/command", Payload: cmd})
}

// Play starts the remote transport.
func (c *Client) Play() error { return c.sendCommand(Command{Name: CmdPlay}) }

// Pause pauses the remote transport in place.
func (c *Client) Pause() error { return c.sendCommand(Command{Name: CmdPause}) }

// Stop stops the remote transport and rewinds it.
func (c *Client) Stop() error { return c.sendCommand(Command{Name: CmdStop}) }

// Seek moves the remote playhead.
func (c *Client) Seek(seconds float64) error {
	return c.sendCommand(Command{Name: CmdSeek, Position: seconds})
}

// SetTempo changes the remote session tempo.
func (c *Client) SetTempo(bpm int) error {
	return c.sendCommand(Command{Name: CmdSetTempo, Tempo: bpm})
}

// Undo reverts the session's most recent edit.
func (c *Client) Undo() error { return c.sendCommand(Command{Name: CmdUndo}) }

// Redo reapplies the most recently undone edit.
func (c *Client) Redo() error { return c.sendCommand(Command{Name: CmdRedo}) }

// readMessages reads and routes incoming frames until the connection dies.
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				log.Printf("[control] read error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinary(data)
		case websocket.TextMessage:
			c.handleJSON(data)
		}
	}
}

func (c *Client) handleBinary(data []byte) {
	if len(data) < monitorHeaderSize {
		log.Printf("[control] binary frame too short: %d bytes", len(data))
		return
	}
	if data[0] != monitorChunkType {
		log.Printf("[control] unknown binary frame type: %d", data[0])
		return
	}

	chunk := MonitorChunk{
		Timestamp: int64(binary.BigEndian.Uint64(data[1:9])),
		Data:      data[monitorHeaderSize:],
	}

	select {
	case c.Chunks <- chunk:
	case <-c.ctx.Done():
	}
}

func (c *Client) handleJSON(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[control] bad frame: %v", err)
		return
	}

	switch msg.Type {
	case "session/state":
		var state SessionState
		if err := decodePayload(msg.Payload, &state); err != nil {
			log.Printf("[control] bad session state: %v", err)
			return
		}
		select {
		case c.States <- state:
		default:
		}

	case "server/time":
		var st ServerTime
		if err := decodePayload(msg.Payload, &st); err != nil {
			log.Printf("[control] bad server time: %v", err)
			return
		}
		c.clock.ProcessResponse(
			st.ClientTransmitted,
			st.ServerReceived,
			st.ServerTransmitted,
			time.Now().UnixMicro(),
		)

	case "stream/start":
		var start StreamStart
		if err := decodePayload(msg.Payload, &start); err != nil {
			log.Printf("[control] bad stream start: %v", err)
			return
		}
		select {
		case c.Streams <- start:
		default:
		}

	case "server/error":
		log.Printf("[control] server error: %v", msg.Payload)

	default:
		log.Printf("[control] unknown message type: %s", msg.Type)
	}
}

// syncLoop keeps the clock estimate fresh with periodic exchanges.
func (c *Client) syncLoop() {
	// Prime the estimate right away rather than waiting a full interval
	if err := c.sendTimeSync(); err != nil {
		return
	}

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendTimeSync(); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendTimeSync() error {
	return c.sendJSON(Message{
		Type:    "client/time",
		Payload: ClientTime{ClientTransmitted: time.Now().UnixMicro()},
	})
}

// SyncStats returns the clock offset, RTT, and staleness-checked quality.
func (c *Client) SyncStats() (offset, rtt int64, quality Quality) {
	c.clock.CheckQuality()
	return c.clock.Stats()
}

// Clock exposes the sync clock for timestamp conversion.
func (c *Client) Clock() *SyncClock {
	return c.clock
}

// ServerName returns the name announced in server/hello.
func (c *Client) ServerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName
}

// IsConnected returns connection status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("[control] connection closed")
	}
}
