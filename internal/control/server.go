// ABOUTME: WebSocket control server for remote session control
// ABOUTME: Manages client connections, command dispatch, and state broadcasts
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// ProtocolVersion is bumped on breaking control protocol changes.
	ProtocolVersion = 1

	// State broadcasts per second.
	broadcastHz = 10

	sendBuffer    = 100
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Session is the surface the control protocol drives. The beatgen session
// facade implements it.
type Session interface {
	Play()
	Pause()
	Stop()
	Seek(seconds float64)
	SetTempo(bpm int) int
	Undo() error
	Redo() error
	Snapshot() SessionState
}

// Config holds control server configuration.
type Config struct {
	Port    int
	Name    string
	Session Session
	// Monitor, when set, streams the master bus to clients with the
	// monitor role.
	Monitor *Monitor
}

// Server accepts WebSocket control clients and relays session state.
type Server struct {
	config   Config
	serverID string

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*client
	clientsMu sync.RWMutex

	// Monotonic clock for time sync, microseconds since start.
	clockStart time.Time

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// client is one connected control or monitor peer.
type client struct {
	id    string
	name  string
	conn  *websocket.Conn
	roles []string

	// Outgoing queue; []byte entries go out as binary frames, everything
	// else is marshaled to JSON.
	send chan interface{}
}

// NewServer creates a control server around a session.
func NewServer(config Config) *Server {
	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Local network tool; accept any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[string]*client),
		clockStart: time.Now(),
		stopChan:   make(chan struct{}),
	}
	s.mux.HandleFunc("/control", s.handleWebSocket)
	return s
}

// Start serves until Stop is called or the listener fails.
func (s *Server) Start() error {
	log.Printf("[control] server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.Monitor != nil {
		s.config.Monitor.start()
		defer s.config.Monitor.stop()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcastLoop()
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("[control] listening on %s", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("[control] shutting down")
	case err := <-errChan:
		log.Printf("[control] listener error: %v", err)
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("[control] shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("[control] stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("control listener failed: %w", serverErr)
	}
	return nil
}

// Stop asks Start to return.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// broadcastLoop pushes the session state to every client at a fixed rate.
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(time.Second / broadcastHz)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.broadcastState()
		}
	}
}

func (s *Server) broadcastState() {
	state := s.config.Session.Snapshot()
	if state.Name == "" {
		state.Name = s.config.Name
	}
	msg := Message{Type: "session/state", Payload: state}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.enqueue(msg)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[control] upgrade error: %v", err)
		return
	}

	log.Printf("[control] new connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection runs the handshake, then reads commands until the peer
// goes away.
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("[control] rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("[control] error reading hello: %v", err)
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[control] bad hello: %v", err)
		return
	}
	if msg.Type != "client/hello" {
		log.Printf("[control] expected client/hello, got %s", msg.Type)
		return
	}

	var hello ClientHello
	if err := decodePayload(msg.Payload, &hello); err != nil {
		log.Printf("[control] bad client hello: %v", err)
		return
	}
	if hello.ClientID == "" || hello.Name == "" {
		log.Printf("[control] client hello missing id or name")
		return
	}

	log.Printf("[control] client hello: %s (ID: %s, roles: %v)", hello.Name, hello.ClientID, hello.SupportedRoles)

	c := &client{
		id:    hello.ClientID,
		name:  hello.Name,
		conn:  conn,
		roles: hello.SupportedRoles,
		send:  make(chan interface{}, sendBuffer),
	}

	s.clientsMu.Lock()
	if existing, ok := s.clients[c.id]; ok {
		s.clientsMu.Unlock()
		log.Printf("[control] client ID %s already connected (name: %s), rejecting", c.id, existing.name)
		reject := Message{
			Type: "server/error",
			Payload: map[string]string{
				"error":   "duplicate_client_id",
				"message": "client ID already connected",
			},
		}
		if data, err := json.Marshal(reject); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
		return
	}
	s.clients[c.id] = c
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		close(c.send)
		log.Printf("[control] client disconnected: %s", c.name)
	}()

	serverHello := ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  ProtocolVersion,
	}
	c.enqueue(Message{Type: "server/hello", Payload: serverHello})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	if s.config.Monitor != nil && hasRole(c, "monitor") {
		s.config.Monitor.addClient(c)
		defer s.config.Monitor.removeClient(c)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[control] read error: %v", err)
			}
			break
		}
		s.handleClientMessage(c, data)
	}
}

// clientWriter drains a client's queue onto the wire and keeps the
// connection alive with pings.
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			switch v := msg.(type) {
			case []byte:
				c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					log.Printf("[control] binary write error: %v", err)
					return
				}
			default:
				data, err := json.Marshal(v)
				if err != nil {
					log.Printf("[control] marshal error: %v", err)
					continue
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("[control] write error: %v", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleClientMessage(c *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[control] bad message: %v", err)
		return
	}

	switch msg.Type {
	case "client/time":
		s.handleTimeSync(c, msg.Payload)
	case "session/command":
		s.handleCommand(c, msg.Payload)
	default:
		log.Printf("[control] unknown message type: %s", msg.Type)
	}
}

// handleTimeSync echoes timestamps so remote UIs can place the playhead.
func (s *Server) handleTimeSync(c *client, payload interface{}) {
	serverRecv := s.clockMicros()

	var clientTime ClientTime
	if err := decodePayload(payload, &clientTime); err != nil {
		log.Printf("[control] bad client time: %v", err)
		return
	}

	response := ServerTime{
		ClientTransmitted: clientTime.ClientTransmitted,
		ServerReceived:    serverRecv,
		ServerTransmitted: s.clockMicros(),
	}
	c.enqueue(Message{Type: "server/time", Payload: response})
}

func (s *Server) handleCommand(c *client, payload interface{}) {
	var cmd Command
	if err := decodePayload(payload, &cmd); err != nil {
		log.Printf("[control] bad command: %v", err)
		return
	}

	log.Printf("[control] %s: %s", c.name, cmd.Name)

	var err error
	switch cmd.Name {
	case CmdPlay:
		s.config.Session.Play()
	case CmdPause:
		s.config.Session.Pause()
	case CmdStop:
		s.config.Session.Stop()
	case CmdSeek:
		s.config.Session.Seek(cmd.Position)
	case CmdSetTempo:
		s.config.Session.SetTempo(cmd.Tempo)
	case CmdUndo:
		err = s.config.Session.Undo()
	case CmdRedo:
		err = s.config.Session.Redo()
	default:
		err = fmt.Errorf("unknown command %q", cmd.Name)
	}

	if err != nil {
		log.Printf("[control] command %s failed: %v", cmd.Name, err)
		c.enqueue(Message{
			Type: "server/error",
			Payload: map[string]string{
				"error":   "command_failed",
				"message": err.Error(),
			},
		})
		return
	}

	// Push fresh state immediately so the client sees the effect without
	// waiting for the next broadcast tick.
	c.enqueue(Message{Type: "session/state", Payload: s.config.Session.Snapshot()})
}

// enqueue queues a message, dropping it if the client cannot keep up.
func (c *client) enqueue(msg interface{}) {
	select {
	case c.send <- msg:
	default:
	}
}

func (s *Server) clockMicros() int64 {
	return time.Since(s.clockStart).Microseconds()
}

func hasRole(c *client, role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

// decodePayload re-marshals a decoded interface{} payload into a concrete
// message struct.
func decodePayload(payload, dst interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
