package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"starlane.ai/internal/config"
	"starlane.ai/internal/telemetry"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config.yaml (optional)")
		addr        = flag.String("addr", "", "http listen address (overrides config)")
		journalDir  = flag.String("journal", "", "journal directory (overrides config)")
		dataDir     = flag.String("data", "", "runtime data directory (overrides config)")
		skipReplay  = flag.Bool("skip_replay", false, "start at the end of the newest journal instead of replaying it")
		enablePprof = flag.Bool("pprof", false, "serve /debug/pprof")
	)
	flag.Parse()

	logger := componentLogger("server")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if v := strings.TrimSpace(*addr); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(*journalDir); v != "" {
		cfg.JournalDir = v
	}
	if v := strings.TrimSpace(*dataDir); v != "" {
		cfg.DataDir = v
	}
	if *skipReplay {
		cfg.SkipReplay = true
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tracer, shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("telemetry: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := shutdownTracing(ctx2); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	d, err := newDaemon(ctx, cfg, tracer, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}
	defer func() {
		if err := d.close(); err != nil {
			logger.Printf("close: %v", err)
		}
	}()

	if cfg.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           d.router(*enablePprof),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("listening on %s", cfg.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
				cancel()
			}
		}()
	}

	logger.Printf("watching %s", cfg.JournalDir)
	if err := d.run(ctx); err != nil {
		logger.Printf("engine stopped: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
