package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"starlane.ai/internal/protocol"
)

const DefaultKeepAliveAttempts = 5

// Reinterpreter sees every event before any monitor. Returning false stops
// propagation; returning an error routes the raw event to the integrity
// responder only.
type Reinterpreter interface {
	Reinterpret(ev protocol.Event) (bool, error)
}

type Options struct {
	Logger        *log.Logger
	Reinterpreter Reinterpreter
	// IntegrityResponder names the responder that still receives events whose
	// reinterpretation failed.
	IntegrityResponder string
	KeepAliveAttempts  int
	Tracer             trace.Tracer
}

type Stats struct {
	Queued     int    `json:"queued"`
	Processed  uint64 `json:"processed"`
	Suppressed uint64 `json:"suppressed"`
	Failed     uint64 `json:"failed"`
}

// Engine serializes events from any number of producers into one ordered
// drain. It is the single per-process context object the trackers, ledger
// and transports are wired around.
type Engine struct {
	logger    *log.Logger
	reinterp  Reinterpreter
	integrity string
	keepAlive int
	tracer    trace.Tracer
	registry  *Registry

	mu      sync.Mutex
	queue   []protocol.Event
	pending int
	waiters []chan struct{}
	wake    chan struct{}

	running atomic.Bool

	processed  atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

func New(reg *Registry, opts Options) *Engine {
	if reg == nil {
		reg = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.KeepAliveAttempts <= 0 {
		opts.KeepAliveAttempts = DefaultKeepAliveAttempts
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("starlane.ai/internal/engine")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		logger:    opts.Logger,
		reinterp:  opts.Reinterpreter,
		integrity: opts.IntegrityResponder,
		keepAlive: opts.KeepAliveAttempts,
		tracer:    opts.Tracer,
		registry:  reg,
		wake:      make(chan struct{}, 1),
		bgCtx:     ctx,
		bgCancel:  cancel,
	}
}

func (e *Engine) Registry() *Registry { return e.registry }

// SetReinterpreter installs the reinterpretation phase. It must be called
// before Run.
func (e *Engine) SetReinterpreter(r Reinterpreter) { e.reinterp = r }

// Enqueue appends ev to the queue and wakes the drain. It never blocks on
// event processing.
func (e *Engine) Enqueue(ev protocol.Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Kind == "" && ev.Payload != nil {
		ev.Kind = ev.Payload.Kind()
	}
	e.mu.Lock()
	e.queue = append(e.queue, ev)
	e.pending++
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is done. Only one Run may be active.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer e.running.Store(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := e.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.wake:
			}
			continue
		}
		e.dispatch(ctx, ev)
		e.done()
	}
}

// Sync blocks until every event enqueued so far, and everything they
// derived, has been fully processed.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.pending == 0 {
		e.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	queued := len(e.queue)
	e.mu.Unlock()
	return Stats{
		Queued:     queued,
		Processed:  e.processed.Load(),
		Suppressed: e.suppressed.Load(),
		Failed:     e.failed.Load(),
	}
}

func (e *Engine) next() (protocol.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return protocol.Event{}, false
	}
	ev := e.queue[0]
	e.queue[0] = protocol.Event{}
	e.queue = e.queue[1:]
	return ev, true
}

func (e *Engine) done() {
	e.processed.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending--
	if e.pending > 0 {
		return
	}
	for _, ch := range e.waiters {
		close(ch)
	}
	e.waiters = nil
}

func (e *Engine) dispatch(ctx context.Context, ev protocol.Event) {
	ctx, span := e.tracer.Start(ctx, "engine.dispatch", trace.WithAttributes(
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("event.id", ev.ID.String()),
		attribute.Bool("event.from_load", ev.FromLoad),
	))
	defer span.End()

	propagate, err := e.reinterpret(ev)
	if err != nil {
		e.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "reinterpret")
		e.logger.Printf("reinterpret %s failed: %v event=%s", ev.Kind, err, eventJSON(ev))
		e.forceIntegrity(ctx, ev)
		return
	}
	if !propagate {
		e.suppressed.Add(1)
		span.SetAttributes(attribute.Bool("event.suppressed", true))
		return
	}
	e.onEvent(ctx, ev)
}

func (e *Engine) reinterpret(ev protocol.Event) (propagate bool, err error) {
	if e.reinterp == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			propagate, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return e.reinterp.Reinterpret(ev)
}

func (e *Engine) onEvent(ctx context.Context, ev protocol.Event) {
	monitors := e.registry.Monitors()
	for _, m := range monitors {
		if err := safeCall(func() error { return m.PreHandle(ev) }); err != nil {
			e.logger.Printf("monitor %s pre-handle %s: %v event=%s", m.Name(), ev.Kind, err, eventJSON(ev))
		}
	}

	var wg sync.WaitGroup
	for _, r := range e.registry.Responders() {
		wg.Add(1)
		go func(r Responder) {
			defer wg.Done()
			e.respond(ctx, r, ev)
		}(r)
	}
	wg.Wait()

	for _, m := range monitors {
		wg.Add(1)
		go func(m Monitor) {
			defer wg.Done()
			if err := safeCall(func() error { return m.PostHandle(ev) }); err != nil {
				e.logger.Printf("monitor %s post-handle %s: %v", m.Name(), ev.Kind, err)
			}
		}(m)
	}
	wg.Wait()
}

func (e *Engine) respond(ctx context.Context, r Responder, ev protocol.Event) {
	ctx, span := e.tracer.Start(ctx, "responder.handle", trace.WithAttributes(
		attribute.String("responder", r.Name()),
		attribute.String("event.kind", string(ev.Kind)),
	))
	defer span.End()
	if err := safeCall(func() error { return r.Handle(ctx, ev) }); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handle")
		e.logger.Printf("responder %s %s: %v", r.Name(), ev.Kind, err)
	}
}

func (e *Engine) forceIntegrity(ctx context.Context, ev protocol.Event) {
	if e.integrity == "" {
		return
	}
	r := e.registry.Responder(e.integrity)
	if r == nil {
		e.logger.Printf("integrity responder %q not registered; %s dropped", e.integrity, ev.Kind)
		return
	}
	e.respond(ctx, r, ev)
}

// ProfileUpdated hands a fresh remote profile to every enabled monitor.
func (e *Engine) ProfileUpdated(profile json.RawMessage) {
	for _, m := range e.registry.Monitors() {
		if err := safeCall(func() error { m.HandleProfile(profile); return nil }); err != nil {
			e.logger.Printf("monitor %s profile: %v", m.Name(), err)
		}
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func eventJSON(ev protocol.Event) string {
	if len(ev.Raw) > 0 {
		return string(ev.Raw)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", ev.Kind, err)
	}
	return string(b)
}
