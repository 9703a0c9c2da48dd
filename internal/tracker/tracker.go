// Package tracker owns the commander's location: system, station, body,
// environment and vehicle. It runs as the engine's reinterpretation phase,
// so every handler executes on the drain goroutine before any monitor sees
// the event.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/profile"
	"starlane.ai/internal/protocol"
)

const (
	DefaultRefreshAttempts = 6
	DefaultRefreshInterval = 15 * time.Second
	// carrierRefreshDelay lets the game publish the carrier's new market
	// before the station profile is fetched.
	carrierRefreshDelay = 5 * time.Second
)

// Repository persists star systems. Implementations return the same
// *galaxy.StarSystem for repeated lookups of a cached system.
type Repository interface {
	Get(ctx context.Context, name string) (*galaxy.StarSystem, error)
	GetOrCreate(ctx context.Context, name string) (*galaxy.StarSystem, error)
	GetOrFetch(ctx context.Context, name string) (*galaxy.StarSystem, error)
	Save(ctx context.Context, sys *galaxy.StarSystem) error
	// Leave stamps sys as last visited at the given time.
	Leave(ctx context.Context, sys *galaxy.StarSystem, at time.Time) error
}

type ProfileFetcher interface {
	AuthState() profile.AuthState
	FetchProfile(ctx context.Context) (*profile.Profile, error)
	FetchStationProfile(ctx context.Context, systemAddress int64, systemName string) (*profile.Profile, error)
}

// Bus is the part of the engine the tracker drives.
type Bus interface {
	Enqueue(ev protocol.Event)
	After(d time.Duration, ev protocol.Event) (cancel func())
	Go(fn func(ctx context.Context))
	ProfileUpdated(raw json.RawMessage)
}

type Options struct {
	Logger   *log.Logger
	Repo     Repository
	Profiles ProfileFetcher
	Bus      Bus
	Context  context.Context

	HomeSystem        string
	DestinationSystem string
	RefreshAttempts   int
	RefreshInterval   time.Duration
	Now               func() time.Time
}

// State is an immutable snapshot of the tracker, safe to read from any
// goroutine.
type State struct {
	Environment             galaxy.Environment `json:"environment"`
	Vehicle                 galaxy.Vehicle     `json:"vehicle"`
	SystemName              string             `json:"system,omitempty"`
	SystemAddress           int64              `json:"system_address,omitempty"`
	LastSystemName          string             `json:"last_system,omitempty"`
	NextSystemName          string             `json:"next_system,omitempty"`
	Station                 *galaxy.Station    `json:"station,omitempty"`
	Body                    *galaxy.Body       `json:"body,omitempty"`
	Commander               galaxy.Commander   `json:"commander"`
	DistanceFromHome        *float64           `json:"distance_from_home,omitempty"`
	DistanceFromDestination *float64           `json:"distance_from_destination,omitempty"`
	RefreshPending          bool               `json:"refresh_pending"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// Tracker fields below the options are owned by the drain goroutine.
// Other goroutines read the published State.
type Tracker struct {
	logger   *log.Logger
	repo     Repository
	profiles ProfileFetcher
	bus      Bus
	ctx      context.Context
	now      func() time.Time

	homeName        string
	destName        string
	refreshAttempts int
	refreshInterval time.Duration

	current, last, next *galaxy.StarSystem
	home, dest          *galaxy.StarSystem
	station             *galaxy.Station
	body                *galaxy.Body
	env                 galaxy.Environment
	vehicle             galaxy.Vehicle
	cmdr                galaxy.Commander
	distHome, distDest  *float64

	// dockConfirmed is set by a docking and cleared by anything that can
	// move the ship or the station under it.
	dockConfirmed bool
	// Gates allowing one journal-driven market refresh per docking.
	allowMarket, allowOutfitting, allowShipyard bool
	starClass                                   string
	carrierJumps                                map[int64]func()

	// launches run on the bus after the handler's state is published.
	launches []func(ctx context.Context)

	refreshGen     atomic.Uint64
	refreshPending atomic.Bool
	state          atomic.Pointer[State]
}

func New(opts Options) (*Tracker, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("tracker needs a repository")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RefreshAttempts <= 0 {
		opts.RefreshAttempts = DefaultRefreshAttempts
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	t := &Tracker{
		logger:          opts.Logger,
		repo:            opts.Repo,
		profiles:        opts.Profiles,
		bus:             opts.Bus,
		ctx:             opts.Context,
		now:             opts.Now,
		homeName:        opts.HomeSystem,
		destName:        opts.DestinationSystem,
		refreshAttempts: opts.RefreshAttempts,
		refreshInterval: opts.RefreshInterval,
		env:             galaxy.EnvNormalSpace,
		vehicle:         galaxy.VehicleShip,
		cmdr:            galaxy.Commander{Title: galaxy.DefaultTitle},
		carrierJumps:    map[int64]func(){},
	}
	t.publish(time.Time{})
	return t, nil
}

// SetBus wires the engine in after construction; the engine and the
// tracker reference each other.
func (t *Tracker) SetBus(b Bus) { t.bus = b }

// Reinterpret applies ev to the world state. A false result stops the
// event from reaching monitors and responders.
func (t *Tracker) Reinterpret(ev protocol.Event) (bool, error) {
	h, ok := handlers[ev.Kind]
	if !ok {
		return true, nil
	}
	pass, err := h(t, ev)
	t.publish(ev.Timestamp)
	t.launchQueued()
	return pass, err
}

// State returns the latest snapshot.
func (t *Tracker) State() State {
	s := *t.state.Load()
	s.RefreshPending = t.refreshPending.Load()
	return s
}

// Locator implementation for the cargo ledger.

func (t *Tracker) Vehicle() galaxy.Vehicle { return t.state.Load().Vehicle }
func (t *Tracker) SystemName() string      { return t.state.Load().SystemName }
func (t *Tracker) StationName() string {
	if st := t.state.Load().Station; st != nil {
		return st.Name
	}
	return ""
}
func (t *Tracker) StationMarketID() int64 {
	if st := t.state.Load().Station; st != nil {
		return st.MarketID
	}
	return 0
}
func (t *Tracker) BodyName() string {
	if b := t.state.Load().Body; b != nil {
		return b.Name
	}
	return ""
}

func (t *Tracker) publish(ts time.Time) {
	s := &State{
		Environment:             t.env,
		Vehicle:                 t.vehicle,
		Station:                 t.station.Clone(),
		Body:                    t.body.Clone(),
		Commander:               t.cmdr,
		DistanceFromHome:        t.distHome,
		DistanceFromDestination: t.distDest,
		UpdatedAt:               ts,
	}
	if prev := t.state.Load(); prev != nil && ts.IsZero() {
		s.UpdatedAt = prev.UpdatedAt
	}
	if t.current != nil {
		s.SystemName = t.current.Name
		s.SystemAddress = t.current.Address
	}
	if t.last != nil {
		s.LastSystemName = t.last.Name
	}
	if t.next != nil {
		s.NextSystemName = t.next.Name
	}
	t.state.Store(s)
}

func (t *Tracker) enqueue(ev protocol.Event) {
	if t.bus != nil {
		t.bus.Enqueue(ev)
	}
}

func badPayload(ev protocol.Event) error {
	return &protocol.Error{Code: protocol.ErrBadEvent, Message: fmt.Sprintf("%s carries %T", ev.Kind, ev.Payload)}
}
