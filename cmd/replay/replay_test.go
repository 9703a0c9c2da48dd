package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"starlane.ai/internal/cargo"
	persistlog "starlane.ai/internal/persistence/log"
	"starlane.ai/internal/protocol"
)

var t0 = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func at(sec int, p protocol.Payload) protocol.Event {
	return protocol.New(t0.Add(time.Duration(sec)*time.Second), p)
}

func replayOpts(t *testing.T) Options {
	t.Helper()
	return Options{RepoPath: filepath.Join(t.TempDir(), "systems.sqlite")}
}

func TestReplay_ArchiveRebuildsStateAndDropsDerived(t *testing.T) {
	dir := t.TempDir()
	w := persistlog.NewJSONLZstdWriter(dir, "events")
	events := []protocol.Event{
		at(1, &protocol.Location{
			SystemInfo:  protocol.SystemInfo{StarSystem: "Sol", SystemAddress: 10477373803, StarPos: []float64{0, 0, 0}},
			StationInfo: protocol.StationInfo{StationName: "Abraham Lincoln", MarketID: 128016640},
			Docked:      true,
		}),
		at(2, &protocol.Cargo{Vessel: protocol.VesselShip, Count: 7, Inventory: []protocol.CargoInfo{{Name: "Tea", Count: 7}}}),
		at(3, &protocol.MissionExpired{MissionID: 9}),
	}
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	src, err := ArchiveSource(dir)
	if err != nil || len(src.Files) != 1 {
		t.Fatalf("source files=%v err=%v", src.Files, err)
	}
	manifest := filepath.Join(t.TempDir(), "cargo.snap.zst")
	opts := replayOpts(t)
	opts.Store = cargo.FileStore{Path: manifest}

	res, err := Replay(context.Background(), src, opts)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Events != 2 || res.DerivedDropped != 1 {
		t.Fatalf("events=%d derived=%d", res.Events, res.DerivedDropped)
	}
	if res.State.SystemName != "Sol" || res.Carried != 7 || len(res.Cargo) != 1 {
		t.Fatalf("result: state=%+v carried=%d cargo=%d", res.State, res.Carried, len(res.Cargo))
	}

	m, err := cargo.FileStore{Path: manifest}.Load()
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if m.Carried != 7 || len(m.Cargo) != 1 || m.Cargo[0].Name != "Tea" {
		t.Fatalf("manifest: %+v", m)
	}
}

func TestReplay_JournalSkipsUnhandledKinds(t *testing.T) {
	dir := t.TempDir()
	lines := `{"timestamp":"2026-10-16T12:00:00Z","event":"Fileheader","part":1}
{"timestamp":"2026-10-16T12:00:01Z","event":"Location","StarSystem":"Sol","StarPos":[0,0,0],"Docked":false}

{"timestamp":"2026-10-16T12:00:02Z","event":"Music","MusicTrack":"Exploration"}
{"timestamp":"2026-10-16T12:00:03Z","event":"BuyDrones","Type":"Drones","Count":4,"BuyPrice":101,"TotalCost":404}
`
	if err := os.WriteFile(filepath.Join(dir, "Journal.2026-10-16T120000.01.log"), []byte(lines), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := JournalSource(dir)
	if err != nil {
		t.Fatalf("JournalSource: %v", err)
	}
	res, err := Replay(context.Background(), src, replayOpts(t))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Events != 2 {
		t.Fatalf("events=%d, want Location and BuyDrones", res.Events)
	}
	if res.State.SystemName != "Sol" {
		t.Fatalf("system=%q", res.State.SystemName)
	}
	if len(res.Cargo) != 1 || res.Cargo[0].Owned != 4 {
		t.Fatalf("cargo after limpets: %+v", res.Cargo)
	}
}
