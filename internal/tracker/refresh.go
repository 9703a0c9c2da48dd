package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/profile"
	"starlane.ai/internal/protocol"
)

var (
	errStaleStation = errors.New("no longer at the requested station")
	errSuperseded   = errors.New("superseded by a newer refresh")
)

func (t *Tracker) authorized() bool {
	return t.profiles != nil && t.bus != nil && t.profiles.AuthState() == profile.Authorized
}

// RefreshProfile fetches the account profile in the background and feeds it
// back through the engine.
func (t *Tracker) RefreshProfile() {
	t.refreshProfile()
}

func (t *Tracker) refreshProfile() {
	if !t.authorized() {
		return
	}
	t.bus.Go(func(ctx context.Context) {
		p, err := t.profiles.FetchProfile(ctx)
		if err != nil {
			t.logger.Printf("profile refresh: %v", err)
			return
		}
		t.deliverProfile(p, nil)
	})
}

// refreshTarget is what the drain knew when a station refresh was requested.
type refreshTarget struct {
	station   string
	marketID  int64
	system    string
	address   int64
	commander string
}

// requestStationRefresh queues conditionallyRefreshProfile for the current
// station. It starts once the handler's state is published. Events replayed
// from old logs never trigger a fetch.
func (t *Tracker) requestStationRefresh(ev protocol.Event, delay time.Duration) {
	if ev.FromLoad || t.station == nil || t.current == nil || !t.authorized() {
		return
	}
	gen := t.refreshGen.Add(1)
	target := refreshTarget{
		station:   t.station.Name,
		marketID:  t.station.MarketID,
		system:    t.current.Name,
		address:   t.current.Address,
		commander: t.cmdr.Name,
	}
	t.refreshPending.Store(true)
	t.launches = append(t.launches, func(ctx context.Context) {
		t.conditionallyRefreshProfile(ctx, gen, target, delay)
	})
}

// launchQueued hands work queued by a handler to the bus.
func (t *Tracker) launchQueued() {
	if len(t.launches) == 0 {
		return
	}
	queued := t.launches
	t.launches = nil
	for _, fn := range queued {
		t.bus.Go(fn)
	}
}

// conditionallyRefreshProfile polls the profile service until it reports the
// station we docked at, then hands the station data back to the drain. It
// gives up early when the commander moved on or the service answers for a
// different commander or system.
func (t *Tracker) conditionallyRefreshProfile(ctx context.Context, gen uint64, target refreshTarget, delay time.Duration) {
	defer func() {
		if t.refreshGen.Load() == gen {
			t.refreshPending.Store(false)
		}
	}()
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, t.tryStationRefresh(ctx, gen, target)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(t.refreshInterval)),
		backoff.WithMaxTries(uint(t.refreshAttempts)),
	)
	switch {
	case err == nil:
	case errors.Is(err, errStaleStation), errors.Is(err, errSuperseded):
		t.logger.Printf("station refresh for %s abandoned: %v", target.station, err)
	case protocol.CodeOf(err) == protocol.ErrMismatch:
		t.logger.Printf("WARN profile service misconfigured, disregarding: %v", err)
	case ctx.Err() != nil:
	default:
		t.logger.Printf("station refresh for %s gave up after %d attempts: %v", target.station, t.refreshAttempts, err)
	}
}

func (t *Tracker) tryStationRefresh(ctx context.Context, gen uint64, target refreshTarget) error {
	if t.refreshGen.Load() != gen {
		return backoff.Permanent(errSuperseded)
	}
	s := t.State()
	if s.Station == nil || !galaxy.SameName(s.Station.Name, target.station) || !galaxy.SameName(s.SystemName, target.system) {
		return backoff.Permanent(errStaleStation)
	}
	if target.marketID != 0 && s.Station.MarketID != 0 && s.Station.MarketID != target.marketID {
		return backoff.Permanent(errStaleStation)
	}
	if t.profiles.AuthState() != profile.Authorized {
		return backoff.Permanent(&protocol.Error{Code: protocol.ErrUnauthorized, Message: "profile service not authorized"})
	}

	p, err := t.profiles.FetchProfile(ctx)
	if err != nil {
		return retryable(err)
	}
	if target.commander != "" && !galaxy.SameName(p.Commander, target.commander) {
		return backoff.Permanent(&protocol.Error{
			Code:    protocol.ErrMismatch,
			Message: fmt.Sprintf("profile is for commander %q rather than %q", p.Commander, target.commander),
		})
	}
	if !galaxy.SameName(p.SystemName, target.system) {
		return backoff.Permanent(&protocol.Error{
			Code:    protocol.ErrMismatch,
			Message: fmt.Sprintf("profile is in system %q rather than %q", p.SystemName, target.system),
		})
	}
	if !p.Docked || s.Environment != galaxy.EnvDocked {
		return fmt.Errorf("profile not docked yet")
	}

	sp, err := t.profiles.FetchStationProfile(ctx, target.address, target.system)
	if err != nil {
		return retryable(err)
	}
	if sp.Station == nil || !galaxy.SameName(sp.Station.Name, target.station) {
		got := ""
		if sp.Station != nil {
			got = sp.Station.Name
		}
		return fmt.Errorf("profile station is %q, waiting for %q", got, target.station)
	}
	t.deliverProfile(sp, sp.Station)
	return nil
}

// retryable marks errors that another attempt cannot fix as permanent.
func retryable(err error) error {
	switch protocol.CodeOf(err) {
	case protocol.ErrUnauthorized, protocol.ErrMismatch:
		return backoff.Permanent(err)
	}
	return err
}

func (t *Tracker) deliverProfile(p *profile.Profile, st *galaxy.Station) {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}
	t.bus.Enqueue(protocol.New(ts, &protocol.ProfileRefreshed{
		Commander:  p.Commander,
		FID:        p.FID,
		Credits:    p.Credits,
		Ranks:      p.Ranks,
		SystemName: p.SystemName,
		Docked:     p.Docked,
		Station:    st,
	}))
	if len(p.Raw) > 0 {
		t.bus.ProfileUpdated(p.Raw)
	}
}

// onProfileRefreshed applies a fetched profile on the drain. Station data is
// merged only while we are still at that station.
func (t *Tracker) onProfileRefreshed(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.ProfileRefreshed)
	if !ok {
		return false, badPayload(ev)
	}
	if t.cmdr.Name != "" && !galaxy.SameName(p.Commander, t.cmdr.Name) {
		t.logger.Printf("WARN profile for commander %q ignored, expected %q", p.Commander, t.cmdr.Name)
		return false, nil
	}
	if t.cmdr.Name == "" {
		t.cmdr.Name = p.Commander
	}
	if p.FID != "" {
		t.cmdr.FID = p.FID
	}
	t.cmdr.Credits = p.Credits
	t.cmdr.Ranks = p.Ranks

	// The profile only seeds the location when no journal event has.
	if t.current == nil && p.SystemName != "" {
		if err := t.updateCurrentSystem(p.SystemName, ev.Timestamp); err != nil {
			return false, err
		}
		if p.Docked && p.Station != nil && p.Station.Name != "" {
			t.station = t.resolveStation(p.Station.Name, p.Station.MarketID)
		}
	}
	t.refreshTitle()

	if p.Station == nil || t.current == nil || t.station == nil {
		return true, nil
	}
	if !galaxy.SameName(p.SystemName, t.current.Name) || !galaxy.SameName(p.Station.Name, t.station.Name) {
		return true, nil
	}
	if t.station.Placeholder() {
		t.logger.Printf("station %s filled in from profile", t.station.Name)
	}
	t.station.Merge(p.Station)
	t.save()
	t.allowMarket, t.allowOutfitting, t.allowShipyard = false, false, false
	t.enqueue(protocol.Derive(ev, &protocol.MarketInformationUpdated{Update: protocol.InfoProfile, MarketID: t.station.MarketID}))
	return true, nil
}
