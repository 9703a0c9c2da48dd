package cargo

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

// Locator exposes the parts of world state the ledger stamps onto contracts.
type Locator interface {
	Vehicle() galaxy.Vehicle
	SystemName() string
	StationName() string
	StationMarketID() int64
	BodyName() string
}

// Bus publishes derived events and schedules delayed ones.
type Bus interface {
	Enqueue(ev protocol.Event)
	After(d time.Duration, ev protocol.Event) (cancel func())
}

// Store persists the manifest between runs.
type Store interface {
	Load() (*Manifest, error)
	Save(m *Manifest) error
}

// Manifest is the durable form of the ledger.
type Manifest struct {
	UpdatedAt time.Time
	Carried   int
	Cargo     []*Cargo
	Missions  []MissionRecord
}

type Options struct {
	Logger  *log.Logger
	Store   Store
	Locator Locator
	Bus     Bus
	Now     func() time.Time
}

// Ledger reconciles the cargo hold and the haulage contracts riding on it.
type Ledger struct {
	logger *log.Logger
	store  Store
	loc    Locator
	bus    Bus
	now    func() time.Time

	mu           sync.RWMutex
	inventory    []*Cargo
	updatedAt    time.Time
	carried      int
	checkHaulage bool
	missions     map[int64]MissionRecord

	timersMu sync.Mutex
	timers   map[int64]func()
}

func NewLedger(opts Options) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		logger:   logger,
		store:    opts.Store,
		loc:      opts.Locator,
		bus:      opts.Bus,
		now:      now,
		missions: map[int64]MissionRecord{},
		timers:   map[int64]func(){},
	}
}

// Load replaces the ledger with the stored manifest. Need is recomputed and
// entries are sorted by name before they become visible.
func (l *Ledger) Load() error {
	if l.store == nil {
		return nil
	}
	m, err := l.store.Load()
	if err != nil {
		return err
	}
	if m == nil {
		m = &Manifest{}
	}
	inv := make([]*Cargo, 0, len(m.Cargo))
	for _, c := range m.Cargo {
		if c == nil || c.Name == "" {
			continue
		}
		c.recount()
		c.calculateNeed()
		inv = append(inv, c)
	}
	sortInventory(inv)
	missions := make(map[int64]MissionRecord, len(m.Missions))
	for _, r := range m.Missions {
		missions[r.MissionID] = r
	}

	l.mu.Lock()
	l.inventory = inv
	l.updatedAt = m.UpdatedAt
	l.carried = m.Carried
	l.checkHaulage = false
	l.missions = missions
	var pending []expiry
	for _, c := range inv {
		for _, h := range c.Contracts {
			if h.Status == StatusActive && h.Expiry != nil {
				pending = append(pending, expiry{missionID: h.MissionID, name: h.Name, at: *h.Expiry})
			}
		}
	}
	l.mu.Unlock()

	l.cancelAllTimers()
	for _, e := range pending {
		l.schedule(e)
	}
	return nil
}

func (l *Ledger) Name() string                    { return "cargo" }
func (l *Ledger) NeedsStart() bool                { return false }
func (l *Ledger) Start(context.Context) error     { return nil }
func (l *Ledger) Stop()                           { l.cancelAllTimers() }
func (l *Ledger) PostHandle(protocol.Event) error { return nil }
func (l *Ledger) HandleProfile(json.RawMessage)   {}

func (l *Ledger) Reload() {
	if err := l.Load(); err != nil {
		l.logger.Printf("reload cargo manifest: %v", err)
	}
}

type expiry struct {
	missionID int64
	name      string
	at        time.Time
}

// change collects the side effects of one event so they can be published
// after the ledger lock is released.
type change struct {
	ev       protocol.Event
	derived  []protocol.Event
	schedule []expiry
	cancel   []int64
}

type handler func(l *Ledger, c *change) bool

// PreHandle applies ev to the ledger. Events at or before the last applied
// timestamp are ignored.
func (l *Ledger) PreHandle(ev protocol.Event) error {
	h, ok := handlers[ev.Kind]
	if !ok {
		return nil
	}
	c := &change{ev: ev}

	l.mu.Lock()
	if !ev.Timestamp.After(l.updatedAt) {
		l.mu.Unlock()
		return nil
	}
	l.updatedAt = ev.Timestamp
	changed := h(l, c)
	var snap *Manifest
	if changed {
		snap = l.manifestLocked()
	}
	l.mu.Unlock()

	for _, id := range c.cancel {
		l.cancelTimer(id)
	}
	for _, e := range c.schedule {
		l.schedule(e)
	}
	if l.bus != nil {
		for _, d := range c.derived {
			l.bus.Enqueue(d)
		}
	}
	if snap != nil && l.store != nil {
		if err := l.store.Save(snap); err != nil {
			return err
		}
	}
	return nil
}

// Cargo returns a copy of the inventory sorted by name.
func (l *Ledger) Cargo() []*Cargo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Cargo, len(l.inventory))
	for i, c := range l.inventory {
		out[i] = c.clone()
	}
	return out
}

// CargoByName reports the entry for a commodity, ignoring case.
func (l *Ledger) CargoByName(name string) (*Cargo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := l.findLocked(name)
	if c == nil {
		return nil, false
	}
	return c.clone(), true
}

// Contract finds a haulage contract by mission id.
func (l *Ledger) Contract(missionID int64) (*Haulage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, h := l.contractLocked(missionID)
	if h == nil {
		return nil, false
	}
	hc := *h
	return &hc, true
}

func (l *Ledger) Carried() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.carried
}

func (l *Ledger) UpdatedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updatedAt
}

func (l *Ledger) manifestLocked() *Manifest {
	m := &Manifest{UpdatedAt: l.updatedAt, Carried: l.carried}
	m.Cargo = make([]*Cargo, len(l.inventory))
	for i, c := range l.inventory {
		m.Cargo[i] = c.clone()
	}
	for _, r := range l.missions {
		m.Missions = append(m.Missions, r)
	}
	slices.SortFunc(m.Missions, func(a, b MissionRecord) int {
		switch {
		case a.MissionID < b.MissionID:
			return -1
		case a.MissionID > b.MissionID:
			return 1
		}
		return 0
	})
	return m
}

func (l *Ledger) findLocked(name string) *Cargo {
	if name == "" {
		return nil
	}
	k := galaxy.Key(name)
	for _, c := range l.inventory {
		if c.key() == k {
			return c
		}
	}
	return nil
}

func (l *Ledger) findOrNewLocked(name string) *Cargo {
	if c := l.findLocked(name); c != nil {
		return c
	}
	c := newCargo(name)
	l.inventory = append(l.inventory, c)
	sortInventory(l.inventory)
	return c
}

func (l *Ledger) contractLocked(missionID int64) (*Cargo, *Haulage) {
	for _, c := range l.inventory {
		if h := c.contract(missionID); h != nil {
			return c, h
		}
	}
	return nil, nil
}

func (l *Ledger) dropLocked(c *Cargo) {
	for i, x := range l.inventory {
		if x == c {
			l.inventory = append(l.inventory[:i], l.inventory[i+1:]...)
			return
		}
	}
}

// collectLocked drops c when it holds nothing and backs no contract,
// otherwise it refreshes the need.
func (l *Ledger) collectLocked(c *Cargo) {
	if c == nil {
		return
	}
	if c.empty() {
		l.dropLocked(c)
		return
	}
	c.calculateNeed()
}

func sortInventory(inv []*Cargo) {
	slices.SortStableFunc(inv, func(a, b *Cargo) int {
		return strings.Compare(a.key(), b.key())
	})
}

func (l *Ledger) vehicle() galaxy.Vehicle {
	if l.loc == nil {
		return galaxy.VehicleShip
	}
	return l.loc.Vehicle()
}

func (l *Ledger) systemName() string {
	if l.loc == nil {
		return ""
	}
	return l.loc.SystemName()
}

func (l *Ledger) stationName() string {
	if l.loc == nil {
		return ""
	}
	return l.loc.StationName()
}

func (l *Ledger) stationMarketID() int64 {
	if l.loc == nil {
		return 0
	}
	return l.loc.StationMarketID()
}

func (l *Ledger) bodyName() string {
	if l.loc == nil {
		return ""
	}
	return l.loc.BodyName()
}

func (l *Ledger) schedule(e expiry) {
	if l.bus == nil {
		return
	}
	d := e.at.Sub(l.now())
	if d < 0 {
		d = 0
	}
	cancel := l.bus.After(d, protocol.New(e.at, &protocol.MissionExpired{MissionID: e.missionID, Name: e.name}))
	l.timersMu.Lock()
	if prev, ok := l.timers[e.missionID]; ok {
		prev()
	}
	l.timers[e.missionID] = cancel
	l.timersMu.Unlock()
}

func (l *Ledger) cancelTimer(missionID int64) {
	l.timersMu.Lock()
	cancel, ok := l.timers[missionID]
	delete(l.timers, missionID)
	l.timersMu.Unlock()
	if ok {
		cancel()
	}
}

func (l *Ledger) cancelAllTimers() {
	l.timersMu.Lock()
	timers := l.timers
	l.timers = map[int64]func(){}
	l.timersMu.Unlock()
	for _, cancel := range timers {
		cancel()
	}
}
