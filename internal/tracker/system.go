package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

// updateCurrentSystem switches the current system to name. The system the
// commander leaves is stamped with the event time at; a system already
// resolved by FSDTarget is reused instead of asking the repository again.
func (t *Tracker) updateCurrentSystem(name string, at time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" || (t.current != nil && galaxy.SameName(t.current.Name, name)) {
		return nil
	}
	var next *galaxy.StarSystem
	if t.next != nil && galaxy.SameName(t.next.Name, name) {
		next = t.next
		t.next = nil
	} else {
		sys, err := t.repo.GetOrCreate(t.ctx, name)
		if err != nil {
			return fmt.Errorf("system %s: %w", name, err)
		}
		next = sys
	}
	if t.current != nil {
		if err := t.repo.Leave(t.ctx, t.current, at); err != nil {
			t.logger.Printf("leave %s: %v", t.current.Name, err)
		}
	}
	t.last, t.current = t.current, next
	t.refreshDistances()
	t.refreshTitle()
	return nil
}

func (t *Tracker) refreshDistances() {
	t.distHome = t.distanceTo(t.homeName, &t.home)
	t.distDest = t.distanceTo(t.destName, &t.dest)
}

func (t *Tracker) distanceTo(name string, ref **galaxy.StarSystem) *float64 {
	if name == "" || t.current == nil {
		return nil
	}
	if *ref == nil {
		if galaxy.SameName(t.current.Name, name) {
			*ref = t.current
		} else {
			sys, err := t.repo.GetOrFetch(t.ctx, name)
			if err != nil {
				if !errors.Is(err, galaxy.ErrNotFound) {
					t.logger.Printf("resolve %s: %v", name, err)
				}
				return nil
			}
			*ref = sys
		}
	}
	d, ok := galaxy.Distance(t.current, *ref)
	if !ok {
		return nil
	}
	return &d
}

func (t *Tracker) refreshTitle() {
	allegiance := ""
	if t.current != nil {
		allegiance = t.current.Allegiance
	}
	t.cmdr.Title = galaxy.Title(t.cmdr.Ranks, allegiance)
}

func (t *Tracker) save() {
	if t.current == nil {
		return
	}
	t.saveSystem(t.current)
}

func (t *Tracker) saveSystem(sys *galaxy.StarSystem) {
	if err := t.repo.Save(t.ctx, sys); err != nil {
		t.logger.Printf("save %s: %v", sys.Name, err)
	}
}

// mergeSystem copies the journal's view of the current system over the
// stored record.
func (t *Tracker) mergeSystem(info protocol.SystemInfo) {
	sys := t.current
	if sys == nil {
		return
	}
	if info.SystemAddress != 0 {
		sys.Address = info.SystemAddress
	}
	if len(info.StarPos) == 3 {
		sys.Coords = &galaxy.Coords{X: info.StarPos[0], Y: info.StarPos[1], Z: info.StarPos[2]}
	}
	if info.Population > 0 {
		sys.Population = info.Population
	}
	if info.Allegiance != "" {
		sys.Allegiance = info.Allegiance
	}
	if info.Economy != "" {
		sys.Economy = info.Economy
	}
	if info.Government != "" {
		sys.Government = info.Government
	}
	if info.Security != "" {
		sys.Security = info.Security
	}
	if info.SystemFaction != nil && info.SystemFaction.Name != "" {
		sys.Faction = info.SystemFaction.Name
	}
	if len(info.Factions) > 0 {
		sys.Factions = make([]galaxy.Faction, 0, len(info.Factions))
		for _, f := range info.Factions {
			sys.Factions = append(sys.Factions, galaxy.Faction{
				Name:       f.Name,
				State:      f.State,
				Government: f.Government,
				Allegiance: f.Allegiance,
				Influence:  f.Influence,
			})
		}
	}
	// Allegiance feeds the honorific.
	t.refreshTitle()
}

// findStation looks a station up in sys by market id, then by name.
func findStation(sys *galaxy.StarSystem, name string, marketID int64) *galaxy.Station {
	if sys == nil {
		return nil
	}
	if st := sys.StationByMarketID(marketID); st != nil {
		return st
	}
	if name == "" {
		return nil
	}
	return sys.Station(name)
}

// resolveStation returns the current system's station, adding a placeholder
// when the repository does not know it.
func (t *Tracker) resolveStation(name string, marketID int64) *galaxy.Station {
	if st := findStation(t.current, name, marketID); st != nil {
		return st
	}
	st := &galaxy.Station{Name: name, MarketID: marketID}
	if t.current != nil {
		t.current.UpsertStation(st)
	}
	return st
}

func (t *Tracker) resolveBody(name string, id int) *galaxy.Body {
	if name == "" {
		return nil
	}
	if t.current != nil {
		if b := t.current.Body(name); b != nil {
			return b
		}
	}
	b := &galaxy.Body{Name: name, ID: id}
	if t.current != nil {
		b.SystemName = t.current.Name
	}
	return b
}

func applyStationInfo(st *galaxy.Station, info protocol.StationInfo) {
	if info.StationName != "" {
		st.Name = info.StationName
	}
	if info.MarketID != 0 {
		st.MarketID = info.MarketID
	}
	if info.StationType != "" {
		st.Type = info.StationType
		st.Carrier = isCarrierType(info.StationType)
	}
	if info.StationFaction != nil && info.StationFaction.Name != "" {
		st.Faction = info.StationFaction.Name
	}
	if info.StationEconomy != "" {
		st.Economy = info.StationEconomy
	}
	if len(info.StationServices) > 0 {
		st.Services = append([]string(nil), info.StationServices...)
	}
	if info.DistFromStarLS != 0 {
		st.DistanceLS = info.DistFromStarLS
	}
}

func isCarrierType(t string) bool {
	return strings.EqualFold(t, "FleetCarrier") || strings.EqualFold(t, "Fleet Carrier")
}

// sameStation compares by market id when both sides have one, else by name.
func sameStation(st *galaxy.Station, marketID int64, name string) bool {
	if st == nil {
		return false
	}
	if marketID != 0 && st.MarketID != 0 {
		return st.MarketID == marketID
	}
	return name != "" && galaxy.SameName(st.Name, name)
}
