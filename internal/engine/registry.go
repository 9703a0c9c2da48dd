package engine

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"starlane.ai/internal/protocol"
)

// Monitor owns derived state. PreHandle runs on the drain goroutine in
// registration order; PostHandle runs concurrently with other monitors.
type Monitor interface {
	Name() string
	// NeedsStart reports whether Start must run on its own goroutine under
	// the keep-alive supervisor.
	NeedsStart() bool
	// Start blocks until the monitor stops or ctx is done.
	Start(ctx context.Context) error
	Stop()
	Reload()
	PreHandle(ev protocol.Event) error
	PostHandle(ev protocol.Event) error
	HandleProfile(profile json.RawMessage)
}

// Responder performs side effects for every propagated event.
type Responder interface {
	Name() string
	Start() error
	Stop()
	Reload()
	Handle(ctx context.Context, ev protocol.Event) error
}

type activeSet struct {
	monitors   []Monitor
	responders []Responder
}

// Registry is the static list of monitors and responders plus the set that
// is currently enabled. Readers load an immutable snapshot, writers rebuild
// it under mu.
type Registry struct {
	mu         sync.Mutex
	monitors   []Monitor
	responders []Responder
	disabled   map[string]bool

	active atomic.Pointer[activeSet]
}

func NewRegistry() *Registry {
	r := &Registry{disabled: map[string]bool{}}
	r.active.Store(&activeSet{})
	return r
}

func (r *Registry) AddMonitor(m Monitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitors = append(r.monitors, m)
	r.rebuildLocked()
}

func (r *Registry) AddResponder(resp Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responders = append(r.responders, resp)
	r.rebuildLocked()
}

// SetEnabled toggles a monitor or responder by name. It reports whether the
// name is registered.
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.knownLocked(name) {
		return false
	}
	if enabled {
		delete(r.disabled, name)
	} else {
		r.disabled[name] = true
	}
	r.rebuildLocked()
	return true
}

func (r *Registry) Enabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.knownLocked(name) && !r.disabled[name]
}

func (r *Registry) Monitors() []Monitor     { return r.active.Load().monitors }
func (r *Registry) Responders() []Responder { return r.active.Load().responders }

// Monitor finds a registered monitor, enabled or not.
func (r *Registry) Monitor(name string) Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.monitors {
		if m.Name() == name {
			return m
		}
	}
	return nil
}

// Responder finds a registered responder, enabled or not.
func (r *Registry) Responder(name string) Responder {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resp := range r.responders {
		if resp.Name() == name {
			return resp
		}
	}
	return nil
}

func (r *Registry) knownLocked(name string) bool {
	for _, m := range r.monitors {
		if m.Name() == name {
			return true
		}
	}
	for _, resp := range r.responders {
		if resp.Name() == name {
			return true
		}
	}
	return false
}

func (r *Registry) rebuildLocked() {
	next := &activeSet{}
	for _, m := range r.monitors {
		if !r.disabled[m.Name()] {
			next.monitors = append(next.monitors, m)
		}
	}
	for _, resp := range r.responders {
		if !r.disabled[resp.Name()] {
			next.responders = append(next.responders, resp)
		}
	}
	r.active.Store(next)
}
