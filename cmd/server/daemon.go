package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"starlane.ai/internal/cargo"
	"starlane.ai/internal/config"
	"starlane.ai/internal/edsm"
	"starlane.ai/internal/engine"
	"starlane.ai/internal/journal"
	"starlane.ai/internal/persistence/indexdb"
	persistlog "starlane.ai/internal/persistence/log"
	"starlane.ai/internal/profile"
	"starlane.ai/internal/protocol"
	"starlane.ai/internal/tracker"
	"starlane.ai/internal/transport/observer"
	"starlane.ai/internal/transport/ws"
)

// daemon owns every long-lived component of the server process.
type daemon struct {
	cfg    config.Config
	logger *log.Logger

	repo    *indexdb.SQLiteRepo
	engine  *engine.Engine
	tracker *tracker.Tracker
	ledger  *cargo.Ledger
	tailer  *journal.Tailer
	stream  *ws.Server
	archive *persistlog.EventArchive
	obs     *observer.Server
}

func componentLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, "["+prefix+"] ", log.LstdFlags|log.Lmicroseconds)
}

func newDaemon(ctx context.Context, cfg config.Config, tracer trace.Tracer, logger *log.Logger) (*daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	d := &daemon{cfg: cfg, logger: logger}

	repoOpts := indexdb.Options{Logger: componentLogger("systems")}
	if cfg.EDSM.Enabled {
		remote, err := edsm.New(edsm.Config{
			BaseURL: cfg.EDSM.BaseURL,
			Rate:    cfg.EDSM.Rate,
			Timeout: cfg.EDSM.Timeout,
		})
		if err != nil {
			return nil, err
		}
		repoOpts.Remote = remote
	}
	repo, err := indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "systems.sqlite"), repoOpts)
	if err != nil {
		return nil, fmt.Errorf("open system repository: %w", err)
	}
	d.repo = repo

	trackerOpts := tracker.Options{
		Logger:            componentLogger("tracker"),
		Repo:              repo,
		Context:           ctx,
		HomeSystem:        cfg.HomeSystem,
		DestinationSystem: cfg.DestinationSystem,
		RefreshAttempts:   cfg.Refresh.Attempts,
		RefreshInterval:   cfg.Refresh.Interval,
	}
	if cfg.Profile.BaseURL != "" {
		profiles, err := profile.New(profile.Config{
			BaseURL: cfg.Profile.BaseURL,
			Token:   cfg.Profile.Token,
			Rate:    cfg.Profile.Rate,
			Timeout: cfg.Profile.Timeout,
		})
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		trackerOpts.Profiles = profiles
		if profiles.AuthState() != profile.Authorized {
			logger.Printf("profile service configured without a token; refresh disabled")
		}
	}
	d.tracker, err = tracker.New(trackerOpts)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	engOpts := engine.Options{
		Logger:            componentLogger("engine"),
		Reinterpreter:     d.tracker,
		KeepAliveAttempts: cfg.KeepAliveAttempts,
		Tracer:            tracer,
	}
	if cfg.Archive {
		engOpts.IntegrityResponder = persistlog.ArchiveName
	}
	reg := engine.NewRegistry()
	d.engine = engine.New(reg, engOpts)
	d.tracker.SetBus(d.engine)

	d.ledger = cargo.NewLedger(cargo.Options{
		Logger:  componentLogger("cargo"),
		Store:   cargo.FileStore{Path: filepath.Join(cfg.DataDir, "cargo.snap.zst")},
		Locator: d.tracker,
		Bus:     d.engine,
	})
	if err := d.ledger.Load(); err != nil {
		// A corrupt manifest is rebuilt from the journal replay.
		logger.Printf("load cargo manifest: %v", err)
	}
	reg.AddMonitor(d.ledger)

	validator, err := protocol.NewValidator()
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	d.tailer, err = journal.New(journal.Options{
		Logger:       componentLogger("journal"),
		Dir:          cfg.JournalDir,
		Sink:         d.engine,
		Validator:    validator,
		PollInterval: cfg.PollInterval,
		SkipReplay:   cfg.SkipReplay,
	})
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	reg.AddMonitor(d.tailer)

	if cfg.Archive {
		d.archive = persistlog.NewEventArchive(cfg.DataDir)
		reg.AddResponder(d.archive)
	}
	d.stream = ws.NewServer(componentLogger("stream"))
	reg.AddResponder(d.stream)

	d.obs = observer.NewServer(observer.Options{
		Logger:      componentLogger("observer"),
		State:       d.tracker,
		Cargo:       d.ledger,
		Metrics:     d.metrics,
		AllowRemote: cfg.AllowRemote,
	})
	return d, nil
}

type metricsView struct {
	Engine  engine.Stats  `json:"engine"`
	Stream  ws.Stats      `json:"stream"`
	Systems indexdb.Stats `json:"systems"`
	Journal struct {
		Running bool   `json:"running"`
		Lines   uint64 `json:"lines"`
		Skipped uint64 `json:"skipped"`
	} `json:"journal"`
}

func (d *daemon) metrics() any {
	var m metricsView
	m.Engine = d.engine.Stats()
	m.Stream = d.stream.Stats()
	m.Systems = d.repo.Stats()
	m.Journal.Running = d.tailer.Running()
	m.Journal.Lines, m.Journal.Skipped = d.tailer.Stats()
	return m
}

func (d *daemon) router(enablePprof bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	d.obs.Routes(r)
	r.Get("/v1/stream", d.stream.Handler())
	r.Post("/admin/v1/components/{name}/{action}", d.handleComponent)
	if enablePprof {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return r
}

// handleComponent reloads, enables or disables a monitor or responder.
// It only answers loopback clients.
func (d *daemon) handleComponent(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	name := chi.URLParam(r, "name")
	var ok bool
	switch action := chi.URLParam(r, "action"); action {
	case "reload":
		ok = d.engine.Reload(name)
	case "enable":
		ok = d.engine.Enable(name)
	case "disable":
		ok = d.engine.Disable(name)
	default:
		http.Error(rw, "unknown action "+action, http.StatusBadRequest)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	if !ok {
		rw.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "code": protocol.ErrNotFound, "name": name})
		return
	}
	d.logger.Printf("component %s: %s", name, chi.URLParam(r, "action"))
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "name": name, "enabled": d.engine.Registry().Enabled(name)})
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

// run drains events until ctx is done, then stops every component.
func (d *daemon) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- d.engine.Run(ctx) }()
	d.engine.Start(ctx)
	d.tracker.RefreshProfile()

	err := <-errCh
	d.engine.Stop()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (d *daemon) close() error {
	return d.repo.Close()
}
