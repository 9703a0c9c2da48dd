package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"starlane.ai/internal/cargo"
	"starlane.ai/internal/engine"
	"starlane.ai/internal/persistence/indexdb"
	persistlog "starlane.ai/internal/persistence/log"
	"starlane.ai/internal/protocol"
	"starlane.ai/internal/tracker"
)

// Source is an ordered list of files plus the reader that turns one file
// into events.
type Source struct {
	Files []string
	Read  func(path string, fn func(protocol.Event) error) error
}

// ArchiveSource replays the daemon's own event archive.
func ArchiveSource(dir string) (Source, error) {
	files, err := persistlog.ArchiveFiles(dir)
	if err != nil {
		return Source{}, err
	}
	return Source{Files: files, Read: persistlog.ReadEvents}, nil
}

// JournalSource replays raw game journals. Lines of unhandled kinds are
// passed over.
func JournalSource(dir string) (Source, error) {
	files, err := filepath.Glob(filepath.Join(dir, "Journal.*.log"))
	if err != nil {
		return Source{}, err
	}
	// Journal names embed their start time.
	sort.Strings(files)
	return Source{Files: files, Read: readJournal}, nil
}

func readJournal(path string, fn func(protocol.Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		ev, err := protocol.DecodeJournal(sc.Bytes(), true)
		if protocol.CodeOf(err) == protocol.ErrUnknownKind {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return sc.Err()
}

type Options struct {
	Logger     *log.Logger
	RepoPath   string
	Store      cargo.Store
	HomeSystem string
}

type Result struct {
	Events         int
	Skipped        int
	DerivedDropped int
	State          tracker.State
	Cargo          []*cargo.Cargo
	Carried        int
}

// Replay runs every event of src through a fresh engine, world tracker and
// cargo ledger, all flagged as loaded from history. Derived events in the
// archive are dropped; the engine derives them again.
func Replay(ctx context.Context, src Source, opts Options) (Result, error) {
	var res Result
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	repo, err := indexdb.OpenSQLite(opts.RepoPath, indexdb.Options{Logger: logger})
	if err != nil {
		return res, err
	}
	defer repo.Close()

	trk, err := tracker.New(tracker.Options{Logger: logger, Repo: repo, Context: ctx, HomeSystem: opts.HomeSystem})
	if err != nil {
		return res, err
	}
	reg := engine.NewRegistry()
	eng := engine.New(reg, engine.Options{Logger: logger, Reinterpreter: trk})
	trk.SetBus(eng)
	ledger := cargo.NewLedger(cargo.Options{Logger: logger, Store: opts.Store, Locator: trk, Bus: eng})
	reg.AddMonitor(ledger)

	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- eng.Run(runCtx) }()
	defer func() {
		cancel()
		<-errCh
		eng.Stop()
	}()

	for _, path := range src.Files {
		err := src.Read(path, func(ev protocol.Event) error {
			switch {
			case protocol.IsDerived(ev.Kind):
				res.DerivedDropped++
				return nil
			case ev.Payload == nil:
				res.Skipped++
				return nil
			}
			ev.FromLoad = true
			eng.Enqueue(ev)
			res.Events++
			return nil
		})
		if err != nil {
			return res, err
		}
		// One file at a time keeps the queue bounded.
		if err := eng.Sync(ctx); err != nil {
			return res, err
		}
	}

	res.State = trk.State()
	res.Cargo = ledger.Cargo()
	res.Carried = ledger.Carried()
	return res, nil
}
