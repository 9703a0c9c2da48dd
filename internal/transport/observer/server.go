// Package observer serves read-only JSON views of the world state and the
// cargo manifest.
package observer

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"starlane.ai/internal/cargo"
	"starlane.ai/internal/protocol"
	"starlane.ai/internal/tracker"
)

type StateSource interface {
	State() tracker.State
}

type CargoSource interface {
	Cargo() []*cargo.Cargo
	CargoByName(name string) (*cargo.Cargo, bool)
	Carried() int
	UpdatedAt() time.Time
}

type Options struct {
	Logger *log.Logger
	State  StateSource
	Cargo  CargoSource
	// Metrics returns a JSON-encodable view of internal counters.
	Metrics func() any
	// AllowRemote serves non-loopback clients too.
	AllowRemote bool
}

type Server struct {
	log         *log.Logger
	state       StateSource
	cargo       CargoSource
	metrics     func() any
	allowRemote bool
	started     time.Time
}

type CargoResponse struct {
	Carried   int            `json:"carried"`
	UpdatedAt time.Time      `json:"updated_at"`
	Cargo     []*cargo.Cargo `json:"cargo"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		log:         opts.Logger,
		state:       opts.State,
		cargo:       opts.Cargo,
		metrics:     opts.Metrics,
		allowRemote: opts.AllowRemote,
		started:     time.Now(),
	}
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Group(func(api chi.Router) {
		if !s.allowRemote {
			api.Use(loopbackOnly)
		}
		api.Get("/healthz", s.handleHealth)
		api.Get("/metrics", s.handleMetrics)
		api.Route("/v1", func(v1 chi.Router) {
			v1.Get("/state", s.handleState)
			v1.Get("/cargo", s.handleCargo)
			v1.Get("/cargo/{commodity}", s.handleCommodity)
		})
	})
}

// Handler returns a router serving only this API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"ok":     true,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(rw, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(rw, http.StatusOK, s.metrics())
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	if s.state == nil {
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrInternal, "world state unavailable")
		return
	}
	writeJSON(rw, http.StatusOK, s.state.State())
}

func (s *Server) handleCargo(rw http.ResponseWriter, r *http.Request) {
	if s.cargo == nil {
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrInternal, "cargo ledger unavailable")
		return
	}
	writeJSON(rw, http.StatusOK, CargoResponse{
		Carried:   s.cargo.Carried(),
		UpdatedAt: s.cargo.UpdatedAt(),
		Cargo:     s.cargo.Cargo(),
	})
}

func (s *Server) handleCommodity(rw http.ResponseWriter, r *http.Request) {
	if s.cargo == nil {
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrInternal, "cargo ledger unavailable")
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "commodity"))
	c, ok := s.cargo.CargoByName(name)
	if !ok {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "no cargo named "+name)
		return
	}
	writeJSON(rw, http.StatusOK, c)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, errorResponse{Code: code, Message: msg})
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			writeError(rw, http.StatusForbidden, protocol.ErrUnauthorized, "forbidden")
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
