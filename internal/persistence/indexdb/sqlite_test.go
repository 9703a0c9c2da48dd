package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"starlane.ai/internal/galaxy"
)

type fakeRemote struct {
	systems map[string]*galaxy.StarSystem
	err     error
	calls   int
}

func (f *fakeRemote) FetchSystem(_ context.Context, name string) (*galaxy.StarSystem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sys, ok := f.systems[galaxy.Key(name)]
	if !ok {
		return nil, galaxy.ErrNotFound
	}
	return sys, nil
}

var fixedNow = time.Date(3310, 5, 1, 12, 0, 0, 0, time.UTC)

func openRepo(t *testing.T, path string, remote Fetcher) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(path, Options{Remote: remote, Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return repo
}

func TestSQLiteRepo_SaveReloadCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "systems.db")
	repo := openRepo(t, path, nil)

	sys, err := repo.GetOrCreate(ctx, "Shinrarta Dezhra")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	sys.Address = 3932277478106
	sys.Allegiance = "Pilots Federation"
	sys.UpsertStation(&galaxy.Station{Name: "Jameson Memorial", MarketID: 128666762})
	if err := repo.Save(ctx, sys); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Leave(ctx, sys, time.Time{}); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	again, err := repo.Get(ctx, "SHINRARTA DEZHRA")
	if err != nil || again != sys {
		t.Fatalf("cached lookup returned %p (%v), want %p", again, err, sys)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := repo.Save(ctx, sys); !errors.Is(err, ErrClosed) {
		t.Fatalf("Save after close: %v", err)
	}

	repo = openRepo(t, path, nil)
	defer repo.Close()
	back, err := repo.Get(ctx, "shinrarta dezhra")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if back.Name != "Shinrarta Dezhra" || back.Address != 3932277478106 || back.Allegiance != "Pilots Federation" {
		t.Fatalf("reloaded system: %+v", back)
	}
	if st := back.StationByMarketID(128666762); st == nil || st.Name != "Jameson Memorial" {
		t.Fatalf("station lost: %+v", back.Stations())
	}
	if !back.LastVisit.Equal(fixedNow) {
		t.Fatalf("last visit=%v", back.LastVisit)
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "Shinrarta Dezhra" || !list[0].LastVisit.Equal(fixedNow) {
		t.Fatalf("List=%+v err=%v", list, err)
	}
}

func TestSQLiteRepo_LastVisitKeptAcrossSaves(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "systems.db")
	repo := openRepo(t, path, nil)
	sys, _ := repo.GetOrCreate(ctx, "Sol")
	_ = repo.Leave(ctx, sys, time.Time{})
	sys.Population = 22780919531
	_ = repo.Save(ctx, sys)
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var name, display, lastVisit string
	if err := db.QueryRow(`SELECT name,display_name,last_visit FROM star_systems`).Scan(&name, &display, &lastVisit); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if name != galaxy.Key("Sol") || display != "Sol" || lastVisit == "" {
		t.Fatalf("row: name=%q display=%q last_visit=%q", name, display, lastVisit)
	}
}

func TestSQLiteRepo_GetOrFetch(t *testing.T) {
	ctx := context.Background()
	alpha := galaxy.NewStarSystem("Alpha Centauri")
	alpha.Coords = &galaxy.Coords{X: 3.03125, Y: -0.09375, Z: 3.15625}
	remote := &fakeRemote{systems: map[string]*galaxy.StarSystem{galaxy.Key("Alpha Centauri"): alpha}}
	repo := openRepo(t, filepath.Join(t.TempDir(), "systems.db"), remote)
	defer repo.Close()

	got, err := repo.GetOrFetch(ctx, "alpha centauri")
	if err != nil || got != alpha {
		t.Fatalf("GetOrFetch=%v err=%v", got, err)
	}
	if _, err := repo.GetOrFetch(ctx, "Alpha Centauri"); err != nil || remote.calls != 1 {
		t.Fatalf("second lookup went remote: calls=%d err=%v", remote.calls, err)
	}
	if _, err := repo.GetOrFetch(ctx, "Nowhere"); !errors.Is(err, galaxy.ErrNotFound) {
		t.Fatalf("unknown system: %v", err)
	}
	if _, err := repo.Get(ctx, "Nowhere"); !errors.Is(err, galaxy.ErrNotFound) {
		t.Fatalf("unknown system must not be stored: %v", err)
	}
	if st := repo.Stats(); st.RemoteFetches != 2 || st.Cached != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestSQLiteRepo_GetOrCreateSurvivesRemoteFailure(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{err: errors.New("edsm down")}
	repo := openRepo(t, filepath.Join(t.TempDir(), "systems.db"), remote)
	defer repo.Close()

	sys, err := repo.GetOrCreate(ctx, "Colonia")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sys.Name != "Colonia" || sys.Coords != nil {
		t.Fatalf("created system: %+v", sys)
	}
	if _, err := repo.GetOrCreate(ctx, "  "); err == nil {
		t.Fatalf("blank name must fail")
	}
}

func TestSQLiteRepo_LeaveUsesEventTime(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "systems.db")
	repo := openRepo(t, path, nil)
	sys, _ := repo.GetOrCreate(ctx, "Achenar")
	jumped := time.Date(3309, 11, 2, 8, 30, 0, 0, time.FixedZone("X", 3600))
	if err := repo.Leave(ctx, sys, jumped); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	repo = openRepo(t, path, nil)
	defer repo.Close()
	back, err := repo.Get(ctx, "achenar")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !back.LastVisit.Equal(jumped) || back.LastVisit.Equal(fixedNow) {
		t.Fatalf("last visit=%v, want %v", back.LastVisit, jumped)
	}
}
