// Package ws pushes every handled event to connected websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"starlane.ai/internal/protocol"
)

const Name = "stream"

type client struct {
	id    string
	kinds map[protocol.Kind]bool
	out   chan []byte
	once  sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.out) }) }

func (c *client) wants(k protocol.Kind) bool {
	return len(c.kinds) == 0 || c.kinds[k]
}

// Server is both the websocket endpoint and the engine responder feeding it.
type Server struct {
	log      *log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	nextID  atomic.Uint64

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type Stats struct {
	Clients int    `json:"clients"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

func NewServer(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[*client]struct{}{},
	}
}

func (s *Server) Name() string { return Name }
func (s *Server) Start() error { return nil }
func (s *Server) Reload()      {}

// Stop disconnects every client.
func (s *Server) Stop() {
	s.mu.Lock()
	clients := s.clients
	s.clients = map[*client]struct{}{}
	s.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// Handle fans ev out without blocking. A client whose queue is full is
// disconnected.
func (s *Server) Handle(_ context.Context, ev protocol.Event) error {
	s.mu.Lock()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	evJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind, err)
	}
	b, err := json.Marshal(EventMsg{Type: TypeEvent, Event: evJSON})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if !c.wants(ev.Kind) {
			continue
		}
		select {
		case c.out <- b:
			s.sent.Add(1)
		default:
			delete(s.clients, c)
			c.close()
			s.dropped.Add(1)
			s.log.Printf("stream client %s too slow, dropped", c.id)
		}
	}
	return nil
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	return Stats{Clients: n, Sent: s.sent.Load(), Dropped: s.dropped.Load()}
}

func (s *Server) add(hello HelloMsg) *client {
	q := hello.MaxQueue
	if q <= 0 {
		q = defaultQueue
	}
	if q > maxQueue {
		q = maxQueue
	}
	c := &client{
		id:  fmt.Sprintf("c%d", s.nextID.Add(1)),
		out: make(chan []byte, q),
	}
	if len(hello.Kinds) > 0 {
		c.kinds = map[protocol.Kind]bool{}
		for _, k := range hello.Kinds {
			c.kinds[protocol.Kind(k)] = true
		}
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	return c
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}
		c := s.add(hello)
		defer s.remove(c)

		welcome := WelcomeMsg{Type: TypeWelcome, ClientID: c.id, Kinds: hello.Kinds, MaxQueue: cap(c.out)}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Reader loop: clients only send control frames, but reading keeps
		// close and ping handling alive.
		go func() {
			defer cancel()
			for {
				_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-c.out:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "dropped"), time.Now().Add(time.Second))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (HelloMsg, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return HelloMsg{}, false
	}
	var base baseMsg
	if err := json.Unmarshal(msg, &base); err != nil || base.Type != TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return HelloMsg{}, false
	}
	var hello HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return HelloMsg{}, false
	}
	for _, k := range hello.Kinds {
		if !protocol.IsKind(protocol.Kind(k)) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown kind "+k), time.Now().Add(time.Second))
			return HelloMsg{}, false
		}
	}
	return hello, true
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
