package cargo

import (
	"strings"

	"starlane.ai/internal/protocol"
)

// onMissions prunes contracts whose mission is no longer in the commander's log.
func (l *Ledger) onMissions(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.Missions)
	if !ok {
		return false
	}
	known := map[int64]bool{}
	for _, list := range [][]protocol.MissionEntry{p.Active, p.Failed, p.Complete} {
		for _, m := range list {
			known[m.MissionID] = true
		}
	}
	changed := false
	for _, cg := range append([]*Cargo(nil), l.inventory...) {
		kept := cg.Contracts[:0]
		for _, h := range cg.Contracts {
			if known[h.MissionID] {
				kept = append(kept, h)
				continue
			}
			c.cancel = append(c.cancel, h.MissionID)
			changed = true
		}
		cg.Contracts = kept
		l.collectLocked(cg)
	}
	for id := range l.missions {
		if !known[id] {
			delete(l.missions, id)
			changed = true
		}
	}
	return changed
}

func (l *Ledger) onMissionAccepted(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.MissionAccepted)
	if !ok || p.Name == "" {
		return false
	}
	amount := 0
	if p.Count != nil {
		amount = *p.Count
	}
	origin := l.systemName()
	rec := MissionRecord{
		MissionID:    p.MissionID,
		Name:         p.Name,
		Commodity:    p.Commodity,
		Amount:       amount,
		OriginSystem: origin,
	}
	if p.Expiry != nil {
		t := *p.Expiry
		rec.Expiry = &t
	}
	l.missions[p.MissionID] = rec

	if p.Commodity == "" {
		return true
	}
	if _, h := l.contractLocked(p.MissionID); h != nil {
		return true
	}
	t := MissionType(p.Name)
	if !CarriesCommodity(t) {
		return true
	}

	h := newHaulage(p.MissionID, p.Name, origin, amount, rec.Expiry, p.Wing || strings.HasSuffix(t, "wing"))
	naval := strings.Contains(strings.ToLower(p.Name), "rank")
	if strings.Contains(t, "delivery") && !naval {
		h.StartMarketID = l.stationMarketID()
	}
	if strings.Contains(t, "collect") {
		h.EndMarketID = l.stationMarketID()
	}
	switch {
	case strings.Contains(t, "delivery") || t == "smuggle":
		h.SourceSystem = l.systemName()
		h.SourceBody = l.stationName()
	case t == "rescue" || t == "salvage":
		h.SourceSystem = p.DestinationSystem
	}

	cg := l.findOrNewLocked(p.Commodity)
	cg.Contracts = append(cg.Contracts, h)
	cg.calculateNeed()

	if h.Expiry != nil && !c.ev.FromLoad {
		c.schedule = append(c.schedule, expiry{missionID: h.MissionID, name: h.Name, at: *h.Expiry})
	}
	return true
}

func (l *Ledger) onMissionCompleted(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.MissionCompleted)
	if !ok {
		return false
	}
	delete(l.missions, p.MissionID)
	c.cancel = append(c.cancel, p.MissionID)
	cg, _ := l.contractLocked(p.MissionID)
	if cg == nil {
		cg = l.findLocked(p.Commodity)
	}
	if cg == nil {
		return true
	}
	cg.removeContract(p.MissionID)
	l.collectLocked(cg)
	return true
}

func (l *Ledger) onMissionAbandoned(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.MissionAbandoned)
	if !ok {
		return false
	}
	return l.dropMission(c, p.MissionID)
}

func (l *Ledger) onMissionFailed(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.MissionFailed)
	if !ok {
		return false
	}
	return l.dropMission(c, p.MissionID)
}

// dropMission removes a contract that ended without delivery. Goods still
// aboard for it no longer belong to anyone and become stolen.
func (l *Ledger) dropMission(c *change, missionID int64) bool {
	delete(l.missions, missionID)
	c.cancel = append(c.cancel, missionID)
	cg, h := l.contractLocked(missionID)
	if h == nil {
		return false
	}
	aboard := h.Remaining - h.Need
	moved := cg.remove(haulage, aboard)
	cg.add(stolen, moved)
	cg.removeContract(missionID)
	l.collectLocked(cg)
	return true
}

// onMissionExpired fails a contract that still has goods aboard and drops
// one that does not.
func (l *Ledger) onMissionExpired(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.MissionExpired)
	if !ok {
		return false
	}
	cg, h := l.contractLocked(p.MissionID)
	if h == nil {
		return false
	}
	if h.Remaining-h.Need > 0 {
		h.Status = StatusFailed
		cg.calculateNeed()
		return true
	}
	cg.removeContract(p.MissionID)
	l.collectLocked(cg)
	return true
}
