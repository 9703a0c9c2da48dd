package journal

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"starlane.ai/internal/protocol"
)

type sink struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (s *sink) Enqueue(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sink) snapshot() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Event(nil), s.events...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

const (
	dockedLine   = `{"timestamp":"3310-05-01T12:00:00Z","event":"Docked","StationName":"Abraham Lincoln","StarSystem":"Sol","MarketID":128016640}` + "\n"
	musicLine    = `{"timestamp":"3310-05-01T12:00:01Z","event":"Music","MusicTrack":"Exploration"}` + "\n"
	badLine      = `{"timestamp":"3310-05-01T12:00:02Z","event":"Docked","StarSystem":"Sol"}` + "\n"
	undockedLine = `{"timestamp":"3310-05-01T12:05:00Z","event":"Undocked","StationName":"Abraham Lincoln"}` + "\n"
	jumpLine     = `{"timestamp":"3310-05-01T13:00:00Z","event":"FSDJump","StarSystem":"Alpha Centauri","StarPos":[3.03125,-0.09375,3.15625]}` + "\n"
)

func TestTailer_ReplaysThenFollows(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "Journal.3310-05-01T120000.01.log")
	appendLines(t, first, dockedLine, musicLine, badLine)

	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	s := &sink{}
	tl, err := New(Options{
		Logger:       log.New(io.Discard, "", 0),
		Dir:          dir,
		Sink:         s,
		Validator:    v,
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, "replay", func() bool { return len(s.snapshot()) == 1 })
	ev := s.snapshot()[0]
	if ev.Kind != protocol.KindDocked || !ev.FromLoad || len(ev.Raw) == 0 {
		t.Fatalf("replayed event: %+v", ev)
	}
	if lines, skipped := tl.Stats(); lines != 1 || skipped != 2 {
		t.Fatalf("lines=%d skipped=%d", lines, skipped)
	}

	// A partial line is held until its newline arrives.
	appendLines(t, first, undockedLine[:20])
	time.Sleep(30 * time.Millisecond)
	if n := len(s.snapshot()); n != 1 {
		t.Fatalf("partial line produced an event (%d)", n)
	}
	appendLines(t, first, undockedLine[20:])
	waitFor(t, "appended line", func() bool { return len(s.snapshot()) == 2 })
	if ev := s.snapshot()[1]; ev.Kind != protocol.KindUndocked || ev.FromLoad {
		t.Fatalf("live event: %+v", ev)
	}

	second := filepath.Join(dir, "Journal.3310-05-01T130000.01.log")
	appendLines(t, second, jumpLine)
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(second, later, later); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	waitFor(t, "new journal", func() bool { return len(s.snapshot()) == 3 })
	if ev := s.snapshot()[2]; ev.Kind != protocol.KindJumped || ev.FromLoad {
		t.Fatalf("new file event: %+v", ev)
	}
	if !tl.Running() {
		t.Fatalf("tailer should be running")
	}
}

func TestTailer_SkipReplayAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Journal.3310-05-01T120000.01.log")
	appendLines(t, path, dockedLine)

	s := &sink{}
	tl, err := New(Options{Logger: log.New(io.Discard, "", 0), Dir: dir, Sink: s, SkipReplay: true, PollInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- tl.Start(context.Background()) }()

	waitFor(t, "start", tl.Running)
	appendLines(t, path, undockedLine)
	waitFor(t, "appended line", func() bool { return len(s.snapshot()) == 1 })
	if ev := s.snapshot()[0]; ev.Kind != protocol.KindUndocked {
		t.Fatalf("event: %+v", ev)
	}

	tl.Reload()
	waitFor(t, "reload", func() bool { return !tl.reloading.Load() })
	appendLines(t, path, jumpLine)
	waitFor(t, "line after reload", func() bool { return len(s.snapshot()) == 2 })

	tl.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not end Start")
	}
	if tl.Running() {
		t.Fatalf("still running after Stop")
	}
}

func TestTailer_MissingDirFails(t *testing.T) {
	tl, err := New(Options{Dir: filepath.Join(t.TempDir(), "missing"), Sink: &sink{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tl.Start(context.Background()); err == nil {
		t.Fatalf("expected error for a missing directory")
	}
	if _, err := New(Options{Dir: "x"}); err == nil {
		t.Fatalf("expected error without a sink")
	}
}
