package ws

import "encoding/json"

// Message types on the live stream.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeEvent   = "EVENT"
)

const (
	defaultQueue = 32
	maxQueue     = 256
)

// HelloMsg opens a stream. Kinds limits the stream to those event kinds;
// empty means everything.
type HelloMsg struct {
	Type     string   `json:"type"`
	Client   string   `json:"client,omitempty"`
	Kinds    []string `json:"kinds,omitempty"`
	MaxQueue int      `json:"max_queue,omitempty"`
}

type WelcomeMsg struct {
	Type     string   `json:"type"`
	ClientID string   `json:"client_id"`
	Kinds    []string `json:"kinds,omitempty"`
	MaxQueue int      `json:"max_queue"`
}

// EventMsg wraps one handled event.
type EventMsg struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

type baseMsg struct {
	Type string `json:"type"`
}
