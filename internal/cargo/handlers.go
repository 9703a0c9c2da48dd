package cargo

import (
	"strings"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

var handlers = map[protocol.Kind]handler{
	protocol.KindCargo:               (*Ledger).onManifest,
	protocol.KindCommodityCollected:  (*Ledger).onCollected,
	protocol.KindCommodityEjected:    (*Ledger).onEjected,
	protocol.KindCommodityPurchased:  (*Ledger).onPurchased,
	protocol.KindCommodityRefined:    (*Ledger).onRefined,
	protocol.KindCommoditySold:       (*Ledger).onSold,
	protocol.KindCargoDepot:          (*Ledger).onDepot,
	protocol.KindLimpetPurchased:     (*Ledger).onLimpetPurchased,
	protocol.KindMissions:            (*Ledger).onMissions,
	protocol.KindMissionAccepted:     (*Ledger).onMissionAccepted,
	protocol.KindMissionCompleted:    (*Ledger).onMissionCompleted,
	protocol.KindMissionAbandoned:    (*Ledger).onMissionAbandoned,
	protocol.KindMissionFailed:       (*Ledger).onMissionFailed,
	protocol.KindMissionExpired:      (*Ledger).onMissionExpired,
	protocol.KindDied:                (*Ledger).onDied,
	protocol.KindEngineerContributed: (*Ledger).onEngineerContributed,
	protocol.KindSynthesised:         (*Ledger).onSynthesised,
}

func (l *Ledger) onManifest(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.Cargo)
	if !ok || p.Vessel != protocol.VesselShip {
		return false
	}
	changed := l.carried != p.Count
	l.carried = p.Count
	if p.Inventory == nil {
		l.checkHaulage = false
		return changed
	}

	groups := map[string][]protocol.CargoInfo{}
	var order []string
	for _, info := range p.Inventory {
		k := galaxy.Key(info.Name)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], info)
	}

	for _, cg := range append([]*Cargo(nil), l.inventory...) {
		if _, present := groups[cg.key()]; present {
			continue
		}
		if len(cg.Contracts) > 0 {
			if cg.Total != 0 {
				changed = true
			}
			cg.zero()
			cg.calculateNeed()
			continue
		}
		l.dropLocked(cg)
		changed = true
	}

	for _, k := range order {
		infos := groups[k]
		cg := l.findLocked(infos[0].Name)
		if cg == nil {
			cg = l.findOrNewLocked(infos[0].Name)
			l.applyManifestGroup(cg, infos)
			changed = true
			continue
		}
		total, stolen, tagged := 0, 0, 0
		for _, info := range infos {
			total += info.Count
			if info.MissionID == nil {
				stolen += info.Stolen
			} else {
				tagged++
			}
		}
		if total != cg.Total || stolen != cg.Stolen || tagged != len(cg.Contracts) {
			l.applyManifestGroup(cg, infos)
			changed = true
		}
	}
	l.checkHaulage = false
	return changed
}

// applyManifestGroup rewrites one commodity from the manifest lines that name it.
func (l *Ledger) applyManifestGroup(cg *Cargo, infos []protocol.CargoInfo) {
	total, hauled, stolen := 0, 0, 0
	for _, info := range infos {
		total += info.Count
		if info.MissionID != nil {
			hauled += info.Count
		} else {
			stolen += info.Stolen
		}
	}
	cg.Haulage = hauled
	cg.Stolen = stolen
	cg.Owned = max(total-hauled-stolen, 0)
	cg.recount()

	for _, info := range infos {
		if info.MissionID == nil {
			continue
		}
		id := *info.MissionID
		if h := cg.contract(id); h != nil {
			if l.checkHaulage && h.Status == StatusActive && h.Remaining > info.Count && failsOnLoss(h.Type) {
				l.logger.Printf("mission %d lost cargo to a sale (%d aboard, %d required)", id, info.Count, h.Remaining)
				h.Status = StatusFailed
			}
			continue
		}
		name, amount, origin := placeholderMission, info.Count, ""
		var rec *MissionRecord
		if r, ok := l.missions[id]; ok {
			rec = &r
			name, origin = r.Name, r.OriginSystem
			if r.Amount > 0 {
				amount = r.Amount
			}
		}
		h := newHaulage(id, name, origin, amount, nil, false)
		if rec != nil && rec.Expiry != nil {
			t := *rec.Expiry
			h.Expiry = &t
		}
		cg.Contracts = append(cg.Contracts, h)
	}
	cg.calculateNeed()
}

func (l *Ledger) onCollected(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.CommodityCollected)
	if !ok || p.Commodity == "" {
		return false
	}
	changed := false
	cg := l.findLocked(p.Commodity)
	var h *Haulage
	if cg != nil {
		h = claimingContract(cg, p.MissionID)
	}
	if l.vehicle() != galaxy.VehicleShip {
		if cg == nil {
			cg = l.findOrNewLocked(p.Commodity)
		}
		switch {
		case h != nil:
			cg.add(haulage, 1)
		case p.Stolen:
			cg.add(stolen, 1)
		default:
			cg.add(owned, 1)
		}
		cg.calculateNeed()
		changed = true
	}
	if h != nil && stampsSourceOnCollect(h.Type) {
		h.SourceSystem = l.systemName()
		h.SourceBody = l.bodyName()
		changed = true
	}
	return changed
}

// claimingContract picks the contract a collected unit belongs to: the named
// mission when given, otherwise the first active contract still short of goods.
func claimingContract(cg *Cargo, missionID *int64) *Haulage {
	if missionID != nil {
		return cg.contract(*missionID)
	}
	return cg.contractWhere(func(h *Haulage) bool {
		return h.Status == StatusActive && h.Need > 0
	})
}

func (l *Ledger) onEjected(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.CommodityEjected)
	if !ok {
		return false
	}
	cg := l.findLocked(p.Commodity)
	if cg == nil {
		return false
	}
	changed := false
	if l.vehicle() != galaxy.VehicleShip {
		if p.MissionID != nil {
			cg.remove(haulage, p.Count)
		} else {
			cg.remove(owned, p.Count)
		}
		changed = true
	}
	if p.MissionID != nil {
		if h := cg.contract(*p.MissionID); h != nil && failsOnLoss(h.Type) && h.Status != StatusFailed {
			h.Status = StatusFailed
			changed = true
		}
	}
	l.collectLocked(cg)
	return changed
}

func (l *Ledger) onPurchased(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.CommodityPurchased)
	if !ok || p.Commodity == "" {
		return false
	}
	cg := l.findOrNewLocked(p.Commodity)
	h := cg.contractWhere(func(h *Haulage) bool {
		return h.Status == StatusActive && strings.Contains(h.Type, "collect")
	})
	if h != nil {
		h.SourceSystem = l.systemName()
		h.SourceBody = l.stationName()
		cg.add(haulage, p.Count)
	} else {
		cg.add(owned, p.Count)
	}
	l.collectLocked(cg)
	return true
}

func (l *Ledger) onRefined(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.CommodityRefined)
	if !ok {
		return false
	}
	cg := l.findLocked(p.Commodity)
	if cg == nil {
		return false
	}
	h := cg.contractWhere(func(h *Haulage) bool { return strings.Contains(h.Type, "mining") })
	if h == nil {
		return false
	}
	h.SourceSystem = l.systemName()
	h.SourceBody = l.bodyName()
	return true
}

// onSold flags the next manifest for the sold-mission-cargo check.
func (l *Ledger) onSold(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.CommoditySold)
	if !ok {
		return false
	}
	if l.findLocked(p.Commodity) != nil {
		l.checkHaulage = true
	}
	return false
}

func (l *Ledger) onLimpetPurchased(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.LimpetPurchased)
	if !ok || p.Count <= 0 {
		return false
	}
	l.findOrNewLocked(dronesCommodity).add(owned, p.Count)
	return true
}

func (l *Ledger) onSynthesised(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.Synthesised)
	if !ok || !strings.Contains(p.Name, "Limpet") {
		return false
	}
	l.findOrNewLocked(dronesCommodity).add(owned, 4)
	return true
}

func (l *Ledger) onEngineerContributed(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.EngineerContributed)
	if !ok || p.Commodity == "" {
		return false
	}
	cg := l.findLocked(p.Commodity)
	if cg == nil {
		return false
	}
	cg.remove(owned, min(cg.Owned, p.Quantity))
	l.collectLocked(cg)
	return true
}

func (l *Ledger) onDied(c *change) bool {
	if len(l.inventory) == 0 {
		return false
	}
	for _, cg := range l.inventory {
		for _, h := range cg.Contracts {
			c.cancel = append(c.cancel, h.MissionID)
		}
	}
	l.inventory = nil
	return true
}
