// Package journal follows the game's journal directory and feeds each new
// line to the engine.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"starlane.ai/internal/protocol"
)

const (
	Name                = "journal"
	DefaultPollInterval = time.Second
	filePattern         = "Journal.*.log"
)

// Sink receives decoded events.
type Sink interface {
	Enqueue(ev protocol.Event)
}

type Options struct {
	Logger    *log.Logger
	Dir       string
	Sink      Sink
	Validator *protocol.Validator
	// PollInterval is how often the directory and the current file are
	// checked for new data.
	PollInterval time.Duration
	// SkipReplay starts at the end of the newest journal instead of
	// replaying it with fromLoad set.
	SkipReplay bool
}

type Tailer struct {
	logger    *log.Logger
	dir       string
	sink      Sink
	validator *protocol.Validator
	poll      time.Duration

	running   atomic.Bool
	reloading atomic.Bool
	replayed  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc

	// Owned by the Start goroutine.
	file    string
	offset  int64
	partial []byte

	lines   atomic.Uint64
	skipped atomic.Uint64
}

func New(opts Options) (*Tailer, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("journal dir is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("journal sink is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	t := &Tailer{
		logger:    opts.Logger,
		dir:       opts.Dir,
		sink:      opts.Sink,
		validator: opts.Validator,
		poll:      opts.PollInterval,
	}
	t.replayed.Store(opts.SkipReplay)
	return t, nil
}

func (t *Tailer) Name() string     { return Name }
func (t *Tailer) NeedsStart() bool { return true }

func (t *Tailer) PreHandle(protocol.Event) error  { return nil }
func (t *Tailer) PostHandle(protocol.Event) error { return nil }
func (t *Tailer) HandleProfile(json.RawMessage)   {}

// Running reports whether Start is polling.
func (t *Tailer) Running() bool { return t.running.Load() }

// Stats returns the number of lines enqueued and skipped.
func (t *Tailer) Stats() (lines, skipped uint64) { return t.lines.Load(), t.skipped.Load() }

// Start polls until ctx is done or Stop is called. The newest journal is
// replayed once with fromLoad set; after that only appended lines and newer
// files are read.
func (t *Tailer) Start(ctx context.Context) error {
	if _, err := os.Stat(t.dir); err != nil {
		return fmt.Errorf("journal dir: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	if err := t.poll1(); err != nil {
		t.logger.Printf("journal poll: %v", err)
	}
	t.running.Store(true)
	defer t.running.Store(false)
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()
	for t.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.poll1(); err != nil {
				t.logger.Printf("journal poll: %v", err)
			}
		}
	}
	return nil
}

func (t *Tailer) Stop() {
	t.running.Store(false)
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reload jumps to the end of the newest journal on the next poll.
func (t *Tailer) Reload() { t.reloading.Store(true) }

func (t *Tailer) poll1() error {
	newest, err := t.newestFile()
	if err != nil {
		return err
	}
	if newest == "" {
		return nil
	}

	if t.reloading.CompareAndSwap(true, false) {
		fi, err := os.Stat(newest)
		if err != nil {
			return err
		}
		t.file, t.offset, t.partial = newest, fi.Size(), nil
		t.replayed.Store(true)
		return nil
	}

	fromLoad := false
	switch {
	case !t.replayed.Load():
		t.file, t.offset, t.partial = newest, 0, nil
		fromLoad = true
		t.replayed.Store(true)
	case t.file == "":
		// Replay skipped: begin at the current end.
		fi, err := os.Stat(newest)
		if err != nil {
			return err
		}
		t.file, t.offset = newest, fi.Size()
		return nil
	case newest != t.file:
		// Drain what is left of the old file before switching.
		if err := t.readAppended(false); err != nil {
			t.logger.Printf("finish %s: %v", filepath.Base(t.file), err)
		}
		t.file, t.offset, t.partial = newest, 0, nil
	}
	return t.readAppended(fromLoad)
}

func (t *Tailer) newestFile() (string, error) {
	files, err := filepath.Glob(filepath.Join(t.dir, filePattern))
	if err != nil {
		return "", err
	}
	var (
		best    string
		bestMod time.Time
	)
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil || fi.IsDir() {
			continue
		}
		mod := fi.ModTime()
		if best == "" || mod.After(bestMod) || (mod.Equal(bestMod) && f > best) {
			best, bestMod = f, mod
		}
	}
	return best, nil
}

func (t *Tailer) readAppended(fromLoad bool) error {
	f, err := os.Open(t.file)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	t.offset += int64(len(b))
	buf := append(t.partial, b...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		t.handleLine(bytes.TrimSpace(buf[:i]), fromLoad)
		buf = buf[i+1:]
	}
	t.partial = append([]byte(nil), buf...)
	return nil
}

func (t *Tailer) handleLine(line []byte, fromLoad bool) {
	if len(line) == 0 {
		return
	}
	if t.validator != nil {
		if err := t.validator.Validate(line); err != nil {
			t.skipped.Add(1)
			t.logger.Printf("invalid journal line: %v event=%s", err, line)
			return
		}
	}
	ev, err := protocol.DecodeJournal(line, fromLoad)
	if err != nil {
		t.skipped.Add(1)
		var perr *protocol.Error
		if errors.As(err, &perr) && perr.Code == protocol.ErrUnknownKind {
			return
		}
		t.logger.Printf("decode journal line: %v event=%s", err, line)
		return
	}
	t.lines.Add(1)
	t.sink.Enqueue(ev)
}
