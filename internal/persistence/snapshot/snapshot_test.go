package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type manifest struct {
	Names  []string
	Counts map[string]int
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cargo.snap.zst")
	saved := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := manifest{Names: []string{"Gold"}, Counts: map[string]int{"Gold": 4}}
	if err := Write(path, Header{Kind: "cargo", SavedAt: saved, Entries: 1}, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	h, out, err := Read[manifest](path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.Kind != "cargo" || h.Version != Version || !h.SavedAt.Equal(saved) || h.Entries != 1 {
		t.Fatalf("header=%+v", h)
	}
	if out.Counts["Gold"] != 4 || len(out.Names) != 1 {
		t.Fatalf("body=%+v", out)
	}

	hh, err := ReadHeader(path)
	if err != nil || hh.Kind != "cargo" {
		t.Fatalf("ReadHeader=%+v err=%v", hh, err)
	}
}

func TestRead_Missing(t *testing.T) {
	_, _, err := Read[manifest](filepath.Join(t.TempDir(), "nope.snap.zst"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
