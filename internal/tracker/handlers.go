package tracker

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

type handler func(t *Tracker, ev protocol.Event) (bool, error)

var handlers = map[protocol.Kind]handler{
	protocol.KindLocation:           (*Tracker).onLocation,
	protocol.KindDocked:             (*Tracker).onDocked,
	protocol.KindUndocked:           (*Tracker).onUndocked,
	protocol.KindTouchdown:          (*Tracker).onTouchdown,
	protocol.KindLiftoff:            (*Tracker).onLiftoff,
	protocol.KindFSDEngaged:         (*Tracker).onFSDEngaged,
	protocol.KindFSDTarget:          (*Tracker).onFSDTarget,
	protocol.KindJumped:             (*Tracker).onJumped,
	protocol.KindEnteredSupercruise: (*Tracker).onEnteredSupercruise,
	protocol.KindEnteredNormalSpace: (*Tracker).onEnteredNormalSpace,
	protocol.KindDockingRequested:   (*Tracker).onDockingRequested,
	protocol.KindSettlementApproach: (*Tracker).onSettlementApproached,
	protocol.KindNearSurface:        (*Tracker).onNearSurface,
	protocol.KindScanned:            (*Tracker).onScanned,
	protocol.KindBodyMapped:         (*Tracker).onBodyMapped,
	protocol.KindSRVLaunched:        (*Tracker).onSRVLaunched,
	protocol.KindSRVDocked:          (*Tracker).onBackInShip,
	protocol.KindFighterLaunched:    (*Tracker).onFighterLaunched,
	protocol.KindFighterDocked:      (*Tracker).onBackInShip,
	protocol.KindCommanderContinued: (*Tracker).onCommanderContinued,
	protocol.KindCommanderRatings:   (*Tracker).onCommanderRatings,
	protocol.KindCommanderPromotion: (*Tracker).onCommanderPromotion,
	protocol.KindSystemScanComplete: (*Tracker).onSystemScanComplete,
	protocol.KindDiscoveryScan:      (*Tracker).onDiscoveryScan,
	protocol.KindPowerplayJoined:    (*Tracker).onPowerplayJoined,
	protocol.KindPowerplayLeft:      (*Tracker).onPowerplayLeft,
	protocol.KindMarket:             (*Tracker).onMarket,
	protocol.KindOutfitting:         (*Tracker).onOutfitting,
	protocol.KindShipyard:           (*Tracker).onShipyard,
	protocol.KindCarrierJumpRequest: (*Tracker).onCarrierJumpRequest,
	protocol.KindCarrierJumpEngaged: (*Tracker).onCarrierJumpEngaged,
	protocol.KindCarrierJumped:      (*Tracker).onCarrierJumped,
	protocol.KindDied:               (*Tracker).onDied,
	protocol.KindProfileRefreshed:   (*Tracker).onProfileRefreshed,
}

func (t *Tracker) onLocation(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Location)
	if !ok {
		return false, badPayload(ev)
	}
	if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
		return false, err
	}
	t.mergeSystem(p.SystemInfo)

	switch {
	case p.Docked || strings.EqualFold(p.BodyType, "Station"):
		name := p.StationName
		var marketID int64
		if p.Docked {
			marketID = p.MarketID
		} else {
			name = p.Body
		}
		st := t.resolveStation(name, marketID)
		t.station, t.body = st, nil
		if p.Docked {
			t.env, t.vehicle = galaxy.EnvDocked, galaxy.VehicleShip
			applyStationInfo(st, p.StationInfo)
			t.dockConfirmed = true
			t.requestStationRefresh(ev, 0)
		} else {
			t.env = galaxy.EnvNormalSpace
			t.dockConfirmed = false
		}
	case p.Body != "":
		t.station = nil
		t.body = t.resolveBody(p.Body, p.BodyID)
		t.dockConfirmed = false
		if p.Latitude != nil && p.Longitude != nil {
			t.env = galaxy.EnvLanded
		} else {
			t.env = galaxy.EnvNormalSpace
		}
	default:
		t.station, t.body = nil, nil
		t.dockConfirmed = false
	}
	t.save()
	return true, nil
}

// onDocked suppresses a repeated docking at the station we are already
// docked at.
func (t *Tracker) onDocked(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Docked)
	if !ok {
		return false, badPayload(ev)
	}
	if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
		return false, err
	}
	t.allowMarket, t.allowOutfitting, t.allowShipyard = true, true, true

	already := t.dockConfirmed && t.env == galaxy.EnvDocked && sameStation(t.station, p.MarketID, p.StationName)

	st := t.resolveStation(p.StationName, p.MarketID)
	applyStationInfo(st, p.StationInfo)
	if t.current != nil && p.SystemAddress != 0 {
		t.current.Address = p.SystemAddress
	}
	t.env, t.vehicle = galaxy.EnvDocked, galaxy.VehicleShip
	t.station, t.body = st, nil
	t.dockConfirmed = true
	t.save()

	if already {
		return false, nil
	}
	t.requestStationRefresh(ev, 0)
	return true, nil
}

func (t *Tracker) onUndocked(ev protocol.Event) (bool, error) {
	t.env, t.vehicle = galaxy.EnvNormalSpace, galaxy.VehicleShip
	t.dockConfirmed = false
	if !ev.FromLoad {
		t.refreshProfile()
	}
	return true, nil
}

func (t *Tracker) onTouchdown(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Touchdown)
	if !ok {
		return false, badPayload(ev)
	}
	t.env = galaxy.EnvLanded
	t.vehicle = controlledVehicle(p.PlayerControlled)
	return true, nil
}

func (t *Tracker) onLiftoff(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Liftoff)
	if !ok {
		return false, badPayload(ev)
	}
	t.env = galaxy.EnvNormalSpace
	t.vehicle = controlledVehicle(p.PlayerControlled)
	return true, nil
}

// controlledVehicle: a ship flown remotely means the commander is in the SRV.
func controlledVehicle(playerControlled bool) galaxy.Vehicle {
	if playerControlled {
		return galaxy.VehicleShip
	}
	return galaxy.VehicleSRV
}

func (t *Tracker) onFSDEngaged(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.FSDEngaged)
	if !ok {
		return false, badPayload(ev)
	}
	if p.JumpType == protocol.JumpSupercruise {
		t.env = galaxy.EnvSupercruise
	} else {
		t.env = galaxy.EnvWitchSpace
	}
	t.vehicle = galaxy.VehicleShip
	t.station, t.body = nil, nil
	t.dockConfirmed = false
	t.starClass = p.StarClass
	if p.JumpType != protocol.JumpSupercruise {
		if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (t *Tracker) onFSDTarget(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.FSDTarget)
	if !ok {
		return false, badPayload(ev)
	}
	sys, err := t.repo.GetOrFetch(t.ctx, p.Name)
	switch {
	case errors.Is(err, galaxy.ErrNotFound):
		t.next = nil
	case err != nil:
		t.logger.Printf("fetch next system %s: %v", p.Name, err)
		t.next = nil
	default:
		t.next = sys
	}
	return true, nil
}

func (t *Tracker) onJumped(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Jumped)
	if !ok {
		return false, badPayload(ev)
	}
	if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
		return false, err
	}
	sys := t.current
	if sys == nil {
		return true, nil
	}
	t.mergeSystem(p.SystemInfo)

	t.body = nil
	if p.Body != "" {
		t.body = sys.Body(p.Body)
	}
	if t.body == nil {
		for _, b := range sys.Bodies() {
			if b.Star && b.DistanceLS == 0 {
				t.body = b
				break
			}
		}
	}
	if t.body == nil && p.Body != "" {
		t.body = &galaxy.Body{Name: p.Body, ID: p.BodyID, Star: true, Class: t.starClass}
		sys.UpsertBody(t.body)
	}

	sys.RecordVisit(ev.Timestamp)
	sys.UpdatedAt = ev.Timestamp
	t.save()

	t.env = galaxy.EnvSupercruise
	t.station = nil
	t.dockConfirmed = false
	return true, nil
}

func (t *Tracker) onEnteredSupercruise(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.EnteredSupercruise)
	if !ok {
		return false, badPayload(ev)
	}
	if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
		return false, err
	}
	t.env, t.vehicle = galaxy.EnvSupercruise, galaxy.VehicleShip
	t.station = nil
	t.dockConfirmed = false
	return true, nil
}

func (t *Tracker) onEnteredNormalSpace(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.EnteredNormalSpace)
	if !ok {
		return false, badPayload(ev)
	}
	if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
		return false, err
	}
	t.env = galaxy.EnvNormalSpace
	switch {
	case strings.EqualFold(p.BodyType, "Station"):
		t.station, t.body = t.resolveStation(p.Body, 0), nil
	case p.Body != "":
		t.station, t.body = nil, t.resolveBody(p.Body, p.BodyID)
	}
	return true, nil
}

func (t *Tracker) onDockingRequested(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.DockingRequested)
	if !ok {
		return false, badPayload(ev)
	}
	if t.current == nil {
		return true, nil
	}
	st := t.resolveStation(p.StationName, p.MarketID)
	if p.StationType != "" {
		st.Type = p.StationType
		st.Carrier = isCarrierType(p.StationType)
	}
	return true, nil
}

func (t *Tracker) onSettlementApproached(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.SettlementApproached)
	if !ok {
		return false, badPayload(ev)
	}
	if t.current == nil || findStation(t.current, p.Name, p.MarketID) != nil {
		return true, nil
	}
	// Only trust the placeholder when the event is about this system.
	if p.SystemAddress != 0 && p.SystemAddress == t.current.Address {
		t.current.UpsertStation(&galaxy.Station{Name: p.Name, MarketID: p.MarketID})
	}
	return true, nil
}

func (t *Tracker) onNearSurface(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.NearSurface)
	if !ok {
		return false, badPayload(ev)
	}
	if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
		return false, err
	}
	t.station = nil
	if p.Approached {
		t.body = t.resolveBody(p.Body, p.BodyID)
	} else {
		t.body = nil
	}
	return true, nil
}

// onScanned records a body the first time it is scanned. Repeat scans are
// suppressed so stored data that the event cannot supply is not lost.
func (t *Tracker) onScanned(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Scanned)
	if !ok {
		return false, badPayload(ev)
	}
	if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
		return false, err
	}
	if t.current == nil {
		return false, nil
	}
	existing := t.current.Body(p.BodyName)
	if existing != nil && !existing.Scanned.IsZero() {
		return false, nil
	}
	b := &galaxy.Body{
		Name:       p.BodyName,
		ID:         p.BodyID,
		Star:       p.IsStar(),
		Class:      p.PlanetClass,
		DistanceLS: p.DistanceLS,
		Landable:   p.Landable,
		Scanned:    ev.Timestamp,
	}
	if b.Star {
		b.Class = p.StarType
	}
	if existing != nil {
		b.Mapped = existing.Mapped
	}
	t.current.UpsertBody(b)
	t.save()
	return true, nil
}

func (t *Tracker) onBodyMapped(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.BodyMapped)
	if !ok {
		return false, badPayload(ev)
	}
	if t.current == nil || (p.SystemAddress != 0 && t.current.Address != 0 && p.SystemAddress != t.current.Address) {
		return true, nil
	}
	b := t.current.Body(p.BodyName)
	if b == nil {
		b = &galaxy.Body{Name: p.BodyName, ID: p.BodyID}
		t.current.UpsertBody(b)
	}
	b.Mapped = ev.Timestamp
	t.save()
	t.station, t.body = nil, b
	return true, nil
}

func (t *Tracker) onSRVLaunched(protocol.Event) (bool, error) {
	t.vehicle = galaxy.VehicleSRV
	return true, nil
}

func (t *Tracker) onFighterLaunched(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.FighterLaunched)
	if !ok {
		return false, badPayload(ev)
	}
	if p.PlayerControlled {
		t.vehicle = galaxy.VehicleFighter
	} else {
		t.vehicle = galaxy.VehicleShip
	}
	return true, nil
}

func (t *Tracker) onBackInShip(protocol.Event) (bool, error) {
	t.vehicle = galaxy.VehicleShip
	return true, nil
}

func (t *Tracker) onCommanderContinued(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.CommanderContinued)
	if !ok {
		return false, badPayload(ev)
	}
	if strings.EqualFold(p.Ship, "TestBuggy") || strings.EqualFold(p.Ship, "SRV") {
		t.vehicle = galaxy.VehicleSRV
	} else {
		t.vehicle = galaxy.VehicleShip
	}
	t.cmdr.Name = p.Commander
	if p.FID != "" {
		t.cmdr.FID = p.FID
	}
	t.cmdr.Credits = decimal.NewFromInt(p.Credits)
	t.refreshTitle()
	return true, nil
}

func (t *Tracker) onCommanderRatings(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.CommanderRatings)
	if !ok {
		return false, badPayload(ev)
	}
	applyRanks(&t.cmdr.Ranks, p.Ranks)
	t.refreshTitle()
	return true, nil
}

// onCommanderPromotion drops combat promotions that do not raise the rank;
// the journal reports some superpower promotions that way.
func (t *Tracker) onCommanderPromotion(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.CommanderPromotion)
	if !ok {
		return false, badPayload(ev)
	}
	if p.Combat != nil && *p.Combat <= t.cmdr.Ranks.Combat {
		return false, nil
	}
	applyRanks(&t.cmdr.Ranks, p.Ranks)
	t.refreshTitle()
	return true, nil
}

func applyRanks(dst *galaxy.Ranks, r protocol.Ranks) {
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&dst.Combat, r.Combat)
	set(&dst.Trade, r.Trade)
	set(&dst.Explore, r.Explore)
	set(&dst.Empire, r.Empire)
	set(&dst.Federation, r.Federation)
	set(&dst.CQC, r.CQC)
}

// onSystemScanComplete passes the first completion per system only; the
// journal can repeat it in systems without planets.
func (t *Tracker) onSystemScanComplete(protocol.Event) (bool, error) {
	if t.current == nil {
		return true, nil
	}
	if t.current.ScanComplete {
		return false, nil
	}
	t.current.ScanComplete = true
	t.save()
	return true, nil
}

func (t *Tracker) onDiscoveryScan(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.DiscoveryScan)
	if !ok {
		return false, badPayload(ev)
	}
	if t.current != nil {
		t.current.DiscoveredBodies = p.BodyCount
		t.save()
	}
	return true, nil
}

func (t *Tracker) onPowerplayJoined(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.PowerplayJoined)
	if !ok {
		return false, badPayload(ev)
	}
	t.cmdr.Power = p.Power
	return true, nil
}

func (t *Tracker) onPowerplayLeft(protocol.Event) (bool, error) {
	t.cmdr.Power = ""
	return true, nil
}

func (t *Tracker) onMarket(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Market)
	if !ok {
		return false, badPayload(ev)
	}
	return t.marketGate(ev, &t.allowMarket, p.MarketID, protocol.InfoMarket), nil
}

func (t *Tracker) onOutfitting(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Outfitting)
	if !ok {
		return false, badPayload(ev)
	}
	return t.marketGate(ev, &t.allowOutfitting, p.MarketID, protocol.InfoOutfitting), nil
}

func (t *Tracker) onShipyard(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.Shipyard)
	if !ok {
		return false, badPayload(ev)
	}
	return t.marketGate(ev, &t.allowShipyard, p.MarketID, protocol.InfoShipyard), nil
}

// marketGate lets one journal-driven update through per docking. The gate
// closes only once the update is known to be for the current station.
func (t *Tracker) marketGate(ev protocol.Event, gate *bool, marketID int64, update string) bool {
	if !*gate || ev.FromLoad {
		return false
	}
	t.enqueue(protocol.Derive(ev, &protocol.MarketInformationUpdated{Update: update, MarketID: marketID}))
	if t.station != nil && marketID != 0 && t.station.MarketID == marketID {
		*gate = false
		t.station.UpdatedAt = ev.Timestamp
		t.save()
	}
	return true
}

func (t *Tracker) onDied(protocol.Event) (bool, error) {
	t.env, t.vehicle = galaxy.EnvNormalSpace, galaxy.VehicleShip
	t.station, t.body = nil, nil
	t.dockConfirmed = false
	return true, nil
}
