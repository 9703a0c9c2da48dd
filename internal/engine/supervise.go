package engine

import (
	"context"
	"fmt"
	"time"

	"starlane.ai/internal/protocol"
)

// Start starts every enabled responder and puts background monitors under
// the keep-alive supervisor. Supervised goroutines end when ctx is done or
// Stop is called.
func (e *Engine) Start(ctx context.Context) {
	context.AfterFunc(ctx, e.bgCancel)
	for _, r := range e.registry.Responders() {
		if err := safeCall(r.Start); err != nil {
			e.logger.Printf("responder %s start: %v", r.Name(), err)
		}
	}
	for _, m := range e.registry.Monitors() {
		if m.NeedsStart() {
			e.supervise(m)
		}
	}
}

// Stop stops all monitors and responders and waits for background work.
func (e *Engine) Stop() {
	e.bgCancel()
	for _, m := range e.registry.Monitors() {
		m.Stop()
	}
	for _, r := range e.registry.Responders() {
		r.Stop()
	}
	e.bg.Wait()
}

// Enable turns a monitor or responder back on, restarting it if needed.
func (e *Engine) Enable(name string) bool {
	if e.registry.Enabled(name) {
		return true
	}
	if !e.registry.SetEnabled(name, true) {
		return false
	}
	if m := e.registry.Monitor(name); m != nil && m.NeedsStart() {
		e.supervise(m)
	}
	if r := e.registry.Responder(name); r != nil {
		if err := safeCall(r.Start); err != nil {
			e.logger.Printf("responder %s start: %v", name, err)
		}
	}
	return true
}

// Disable stops a monitor or responder and removes it from dispatch.
func (e *Engine) Disable(name string) bool {
	if !e.registry.SetEnabled(name, false) {
		return false
	}
	if m := e.registry.Monitor(name); m != nil {
		m.Stop()
	}
	if r := e.registry.Responder(name); r != nil {
		r.Stop()
	}
	return true
}

// Reload asks the named monitor or responder to reload its configuration.
func (e *Engine) Reload(name string) bool {
	if m := e.registry.Monitor(name); m != nil {
		m.Reload()
		return true
	}
	if r := e.registry.Responder(name); r != nil {
		r.Reload()
		return true
	}
	return false
}

func (e *Engine) supervise(m Monitor) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		e.keepAliveLoop(e.bgCtx, m)
	}()
}

// keepAliveLoop restarts a background monitor each time Start returns, up to
// the attempt budget, then disables it.
func (e *Engine) keepAliveLoop(ctx context.Context, m Monitor) {
	failures := 0
	for ctx.Err() == nil && failures < e.keepAlive && e.registry.Enabled(m.Name()) {
		err := safeCall(func() error { return m.Start(ctx) })
		if ctx.Err() != nil {
			return
		}
		failures++
		e.logger.Printf("monitor %s stopped (attempt %d/%d): %v", m.Name(), failures, e.keepAlive, err)
	}
	if failures >= e.keepAlive {
		e.registry.SetEnabled(m.Name(), false)
		e.logger.Printf("WARN monitor %s disabled after %d failed starts", m.Name(), failures)
	}
}

// After enqueues ev once d has elapsed. The returned func cancels it; Stop
// cancels every pending delay.
func (e *Engine) After(d time.Duration, ev protocol.Event) (cancel func()) {
	ctx, cancel := context.WithCancel(e.bgCtx)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			e.Enqueue(ev)
		case <-ctx.Done():
		}
	}()
	return cancel
}

// Go runs fn on a goroutine tied to the engine lifetime.
func (e *Engine) Go(fn func(ctx context.Context)) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		if err := safeCall(func() error { fn(e.bgCtx); return nil }); err != nil {
			e.logger.Printf("background task: %v", fmt.Errorf("recovered: %w", err))
		}
	}()
}
