package tracker

import (
	"errors"
	"time"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

// onCarrierJumpRequest schedules a CarrierJumpEngaged for the departure
// time. A newer request for the same carrier replaces the pending one.
func (t *Tracker) onCarrierJumpRequest(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.CarrierJumpRequest)
	if !ok {
		return false, badPayload(ev)
	}
	if ev.FromLoad || t.bus == nil {
		return true, nil
	}
	if cancel, ok := t.carrierJumps[p.CarrierID]; ok {
		cancel()
	}
	engaged := &protocol.CarrierJumpEngaged{
		CarrierID:     p.CarrierID,
		SystemName:    p.SystemName,
		SystemAddress: p.SystemAddress,
		Body:          p.Body,
		BodyID:        p.BodyID,
	}
	if t.current != nil {
		engaged.OriginSystem = t.current.Name
	}
	next := protocol.Derive(ev, engaged)
	var delay time.Duration
	if !p.DepartureTime.IsZero() {
		next.Timestamp = p.DepartureTime.UTC()
		delay = p.DepartureTime.Sub(t.now())
	}
	if delay < 0 {
		delay = 0
	}
	t.carrierJumps[p.CarrierID] = t.bus.After(delay, next)
	return true, nil
}

// onCarrierJumpEngaged moves the carrier's station record to the target
// system. Aboard the carrier the commander moves with it.
func (t *Tracker) onCarrierJumpEngaged(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.CarrierJumpEngaged)
	if !ok {
		return false, badPayload(ev)
	}
	delete(t.carrierJumps, p.CarrierID)

	if t.env == galaxy.EnvDocked && t.station != nil && t.station.MarketID == p.CarrierID {
		carrier := t.station
		t.env, t.vehicle = galaxy.EnvWitchSpace, galaxy.VehicleShip
		t.dockConfirmed = false
		if t.current != nil {
			t.current.RemoveStation(p.CarrierID, "")
			t.save()
		}
		if err := t.updateCurrentSystem(p.SystemName, ev.Timestamp); err != nil {
			return false, err
		}
		if existing := t.current.StationByMarketID(p.CarrierID); existing != nil && existing != carrier {
			existing.Merge(carrier)
			carrier = existing
		}
		if p.SystemAddress != 0 {
			t.current.Address = p.SystemAddress
		}
		t.current.UpsertStation(carrier)
		t.station = carrier
		if p.Body != "" {
			t.body = t.resolveBody(p.Body, p.BodyID)
		}
		t.save()
		return true, nil
	}

	if p.OriginSystem == "" {
		return true, nil
	}
	origin, err := t.lookupSystem(p.OriginSystem)
	if err != nil || origin == nil {
		return true, nil
	}
	carrier := origin.RemoveStation(p.CarrierID, "")
	if carrier == nil {
		return true, nil
	}
	t.saveSystem(origin)
	dest, err := t.lookupSystem(p.SystemName)
	if err != nil || dest == nil {
		return true, nil
	}
	dest.UpsertStation(carrier)
	t.saveSystem(dest)
	return true, nil
}

// lookupSystem prefers the live record for the current system.
func (t *Tracker) lookupSystem(name string) (*galaxy.StarSystem, error) {
	if t.current != nil && galaxy.SameName(t.current.Name, name) {
		return t.current, nil
	}
	sys, err := t.repo.GetOrFetch(t.ctx, name)
	if err != nil && !errors.Is(err, galaxy.ErrNotFound) {
		t.logger.Printf("carrier system %s: %v", name, err)
	}
	return sys, err
}

// onCarrierJumped lands the commander, docked, on the carrier in its new
// system. The carrier record may still be in the current system or, when
// CarrierJumpEngaged already moved us, in the last one.
func (t *Tracker) onCarrierJumped(ev protocol.Event) (bool, error) {
	p, ok := ev.Payload.(*protocol.CarrierJumped)
	if !ok {
		return false, badPayload(ev)
	}
	if !p.Docked {
		t.logger.Printf("ERROR carrier jump to %s reported while not docked; state unchanged event=%s", p.StarSystem, string(ev.Raw))
		return true, nil
	}

	var carrier *galaxy.Station
	if sameStation(t.station, p.MarketID, p.StationName) {
		carrier = t.station
		if t.current != nil {
			t.current.RemoveStation(carrier.MarketID, carrier.Name)
		}
	} else {
		for _, sys := range []*galaxy.StarSystem{t.current, t.last} {
			st := findStation(sys, p.StationName, p.MarketID)
			if st == nil {
				continue
			}
			sys.RemoveStation(st.MarketID, st.Name)
			if sys == t.last {
				t.saveSystem(sys)
			}
			carrier = st
			break
		}
	}
	if carrier == nil {
		carrier = &galaxy.Station{}
	}
	applyStationInfo(carrier, p.StationInfo)
	carrier.Carrier = true

	if err := t.updateCurrentSystem(p.StarSystem, ev.Timestamp); err != nil {
		return false, err
	}
	if t.current == nil {
		return true, nil
	}
	t.mergeSystem(p.SystemInfo)
	t.current.UpsertStation(carrier)
	t.env, t.vehicle = galaxy.EnvDocked, galaxy.VehicleShip
	t.station = carrier
	t.dockConfirmed = false
	if p.Body != "" && (t.body == nil || !galaxy.SameName(t.body.Name, p.Body)) {
		t.body = t.resolveBody(p.Body, p.BodyID)
	}
	t.current.RecordVisit(ev.Timestamp)
	t.current.UpdatedAt = ev.Timestamp
	t.save()
	t.requestStationRefresh(ev, carrierRefreshDelay)
	return true, nil
}
