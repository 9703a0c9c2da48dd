// Package indexdb is the local star-system repository. Systems are cached in
// memory once loaded and written to SQLite by a single writer goroutine.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"starlane.ai/internal/galaxy"
)

// Fetcher resolves systems the repository has never seen.
type Fetcher interface {
	FetchSystem(ctx context.Context, name string) (*galaxy.StarSystem, error)
}

var ErrClosed = errors.New("repository closed")

type Options struct {
	Logger *log.Logger
	Remote Fetcher
	Now    func() time.Time
	// QueueSize bounds pending writes; Save blocks when it is full.
	QueueSize int
}

type SQLiteRepo struct {
	db     *sql.DB
	logger *log.Logger
	remote Fetcher
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]*galaxy.StarSystem

	ch   chan systemRow
	wg   sync.WaitGroup
	once sync.Once

	closed      atomic.Bool
	writes      atomic.Uint64
	writeErrors atomic.Uint64
	fetches     atomic.Uint64
}

type systemRow struct {
	Key       string
	Name      string
	Address   int64
	JSON      []byte
	LastVisit string
	UpdatedAt string
}

// Summary is one stored system without its station and body detail.
type Summary struct {
	Name      string
	Address   int64
	LastVisit time.Time
	UpdatedAt time.Time
}

type Stats struct {
	Cached        int
	QueueDepth    int
	QueueCapacity int
	Writes        uint64
	WriteErrors   uint64
	RemoteFetches uint64
}

func OpenSQLite(path string, opts Options) (*SQLiteRepo, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	s := &SQLiteRepo{
		db:     db,
		logger: opts.Logger,
		remote: opts.Remote,
		now:    opts.Now,
		cache:  map[string]*galaxy.StarSystem{},
		ch:     make(chan systemRow, opts.QueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		// name holds the case-folded key; display_name keeps the spelling
		// the game uses.
		`CREATE TABLE IF NOT EXISTS star_systems (
			name TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			address INTEGER NOT NULL DEFAULT 0,
			json TEXT NOT NULL,
			last_visit TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_star_systems_address ON star_systems(address);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending writes and closes the database.
func (s *SQLiteRepo) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Get returns the stored system. Repeated calls return the same pointer.
func (s *SQLiteRepo) Get(ctx context.Context, name string) (*galaxy.StarSystem, error) {
	key := galaxy.Key(strings.TrimSpace(name))
	if key == "" {
		return nil, galaxy.ErrNotFound
	}
	s.mu.Lock()
	if sys, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return sys, nil
	}
	s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM star_systems WHERE name=?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, galaxy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	sys := &galaxy.StarSystem{}
	if err := json.Unmarshal([]byte(raw), sys); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return s.remember(key, sys), nil
}

// GetOrFetch falls back to the remote lookup and stores what it finds.
func (s *SQLiteRepo) GetOrFetch(ctx context.Context, name string) (*galaxy.StarSystem, error) {
	sys, err := s.Get(ctx, name)
	if err == nil || !errors.Is(err, galaxy.ErrNotFound) {
		return sys, err
	}
	if s.remote == nil || strings.TrimSpace(name) == "" {
		return nil, galaxy.ErrNotFound
	}
	s.fetches.Add(1)
	fetched, err := s.remote.FetchSystem(ctx, name)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		return nil, galaxy.ErrNotFound
	}
	if fetched.UpdatedAt.IsZero() {
		fetched.UpdatedAt = s.now().UTC()
	}
	sys = s.remember(galaxy.Key(fetched.Name), fetched)
	if err := s.Save(ctx, sys); err != nil {
		return nil, err
	}
	return sys, nil
}

// GetOrCreate never fails for a non-empty name: a system neither stored nor
// known remotely is created empty. Remote failures are logged and treated
// as unknown.
func (s *SQLiteRepo) GetOrCreate(ctx context.Context, name string) (*galaxy.StarSystem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty system name")
	}
	sys, err := s.GetOrFetch(ctx, name)
	if err == nil {
		return sys, nil
	}
	if errors.Is(err, ErrClosed) || ctx.Err() != nil {
		return nil, err
	}
	if !errors.Is(err, galaxy.ErrNotFound) {
		s.logger.Printf("remote lookup %s: %v", name, err)
	}
	sys = galaxy.NewStarSystem(name)
	sys.UpdatedAt = s.now().UTC()
	sys = s.remember(galaxy.Key(name), sys)
	if err := s.Save(ctx, sys); err != nil {
		return nil, err
	}
	return sys, nil
}

// Save serializes sys immediately and queues the write. The caller may keep
// mutating sys afterwards.
func (s *SQLiteRepo) Save(ctx context.Context, sys *galaxy.StarSystem) error {
	if sys == nil || sys.Name == "" {
		return fmt.Errorf("save: system without a name")
	}
	if s.closed.Load() {
		return ErrClosed
	}
	b, err := json.Marshal(sys)
	if err != nil {
		return fmt.Errorf("encode %s: %w", sys.Name, err)
	}
	key := galaxy.Key(sys.Name)
	s.remember(key, sys)

	r := systemRow{
		Key:       key,
		Name:      sys.Name,
		Address:   sys.Address,
		JSON:      b,
		UpdatedAt: s.now().UTC().Format(time.RFC3339Nano),
	}
	if !sys.LastVisit.IsZero() {
		r.LastVisit = sys.LastVisit.UTC().Format(time.RFC3339Nano)
	}
	select {
	case s.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave stamps the system's last visit with at, or the current time when at
// is zero.
func (s *SQLiteRepo) Leave(ctx context.Context, sys *galaxy.StarSystem, at time.Time) error {
	if sys == nil {
		return nil
	}
	if at.IsZero() {
		at = s.now()
	}
	sys.LastVisit = at.UTC()
	return s.Save(ctx, sys)
}

// List returns every stored system ordered by name. Pending writes are not
// visible until the writer commits them.
func (s *SQLiteRepo) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT display_name,address,last_visit,updated_at FROM star_systems ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			sum                  Summary
			lastVisit, updatedAt string
		)
		if err := rows.Scan(&sum.Name, &sum.Address, &lastVisit, &updatedAt); err != nil {
			return nil, err
		}
		sum.LastVisit, _ = time.Parse(time.RFC3339Nano, lastVisit)
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteRepo) Stats() Stats {
	s.mu.Lock()
	cached := len(s.cache)
	s.mu.Unlock()
	return Stats{
		Cached:        cached,
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		Writes:        s.writes.Load(),
		WriteErrors:   s.writeErrors.Load(),
		RemoteFetches: s.fetches.Load(),
	}
}

// remember caches sys unless another pointer already owns the key, in which
// case that one wins so callers keep sharing a single record.
func (s *SQLiteRepo) remember(key string, sys *galaxy.StarSystem) *galaxy.StarSystem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cache[key]; ok {
		return cur
	}
	s.cache[key] = sys
	return sys
}

func (s *SQLiteRepo) loop() {
	ctx := context.Background()

	upsert, err := s.db.Prepare(`INSERT INTO star_systems(name,display_name,address,json,last_visit,updated_at) VALUES(?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			display_name=excluded.display_name,
			address=excluded.address,
			json=excluded.json,
			last_visit=CASE WHEN excluded.last_visit<>'' THEN excluded.last_visit ELSE star_systems.last_visit END,
			updated_at=excluded.updated_at`)
	if err != nil {
		s.logger.Printf("prepare upsert: %v", err)
	}
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 500 * time.Millisecond
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.logger.Printf("begin: %v", err)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
			s.logger.Printf("commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil || upsert == nil {
				s.writeErrors.Add(1)
				continue
			}
			if _, err := tx.Stmt(upsert).Exec(r.Key, r.Name, r.Address, string(r.JSON), r.LastVisit, r.UpdatedAt); err != nil {
				s.writeErrors.Add(1)
				s.logger.Printf("write %s: %v", r.Name, err)
				_ = tx.Rollback()
				tx = nil
				continue
			}
			s.writes.Add(1)
			opCount++
			if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}
