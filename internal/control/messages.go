// ABOUTME: Control protocol message type definitions
// ABOUTME: JSON envelopes exchanged between a session and remote-control clients
package control

// Message is the top-level wrapper for all control messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientHello is sent by clients to initiate the handshake.
type ClientHello struct {
	ClientID       string   `json:"client_id"`
	Name           string   `json:"name"`
	Version        int      `json:"version"`
	SupportedRoles []string `json:"supported_roles"`
}

// ServerHello is the session's response to client/hello.
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// Command is a transport or edit request from a control client.
type Command struct {
	Name     string  `json:"command"`
	Position float64 `json:"position,omitempty"`
	Tempo    int     `json:"tempo,omitempty"`
}

// Command names accepted in a session/command message.
const (
	CmdPlay     = "play"
	CmdPause    = "pause"
	CmdStop     = "stop"
	CmdSeek     = "seek"
	CmdSetTempo = "set_tempo"
	CmdUndo     = "undo"
	CmdRedo     = "redo"
)

// TrackState is one track row in a session/state broadcast.
type TrackState struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	X        float64 `json:"x"`
	Y        int     `json:"y"`
	WidthPx  float64 `json:"width_px"`
	VolumeDB float64 `json:"volume_db"`
	Pan      float64 `json:"pan"`
	Muted    bool    `json:"muted"`
	Solo     bool    `json:"solo"`
	Playing  bool    `json:"playing"`
}

// SessionState is the periodic session/state broadcast payload.
type SessionState struct {
	Name          string       `json:"name"`
	State         string       `json:"state"`
	Position      float64      `json:"position"`
	Tempo         int          `json:"tempo"`
	TimeSignature string       `json:"time_signature"`
	Key           string       `json:"key"`
	CanUndo       bool         `json:"can_undo"`
	CanRedo       bool         `json:"can_redo"`
	UndoLabel     string       `json:"undo_label,omitempty"`
	RedoLabel     string       `json:"redo_label,omitempty"`
	Tracks        []TrackState `json:"tracks"`
}

// StreamStart tells a monitor client what the binary chunks carry.
type StreamStart struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// ClientTime is sent for clock synchronization.
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
}

// ServerTime is the response to client/time.
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}
