package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"starlane.ai/internal/cargo"
	persistlog "starlane.ai/internal/persistence/log"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory (archive is read from <data>/events)")
		eventsDir  = flag.String("events", "", "archive directory with events-*.jsonl.zst (overrides -data)")
		journalDir = flag.String("journal", "", "replay raw Journal.*.log files from this directory instead of the archive")
		manifest   = flag.String("manifest", "", "write the rebuilt cargo manifest to this path (optional)")
		home       = flag.String("home", "", "home system for distance reporting")
		timeout    = flag.Duration("timeout", 5*time.Minute, "give up after this long")
	)
	flag.Parse()

	var (
		src Source
		err error
	)
	if *journalDir != "" {
		src, err = JournalSource(*journalDir)
	} else {
		dir := *eventsDir
		if dir == "" {
			dir = persistlog.ArchiveDir(*dataDir)
		}
		src, err = ArchiveSource(dir)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(src.Files) == 0 {
		fmt.Fprintln(os.Stderr, "no event files found")
		os.Exit(1)
	}

	scratch, err := os.MkdirTemp("", "starlane-replay-")
	if err != nil {
		fmt.Fprintln(os.Stderr, "scratch dir:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(scratch)

	opts := Options{
		RepoPath:   filepath.Join(scratch, "systems.sqlite"),
		HomeSystem: *home,
	}
	if *manifest != "" {
		opts.Store = cargo.FileStore{Path: *manifest}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	res, err := Replay(ctx, src, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	fmt.Printf("replay ok: files=%d events=%d skipped=%d derived_dropped=%d\n",
		len(src.Files), res.Events, res.Skipped, res.DerivedDropped)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(struct {
		State any `json:"state"`
		Cargo any `json:"cargo"`
	}{res.State, res.Cargo})
}
