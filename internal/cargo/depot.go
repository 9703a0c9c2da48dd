package cargo

import (
	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

func (l *Ledger) onDepot(c *change) bool {
	p, ok := c.ev.Payload.(*protocol.CargoDepot)
	if !ok {
		return false
	}
	switch p.UpdateType {
	case protocol.DepotCollect:
		l.depotCollect(p)
	case protocol.DepotDeliver:
		l.depotDeliver(p)
	case protocol.DepotWingUpdate:
		l.depotWingUpdate(c, p)
	default:
		return false
	}
	return true
}

// wingPlaceholder names a contract first seen through a depot update.
func (l *Ledger) wingPlaceholder(missionID, startMarketID int64) string {
	if r, ok := l.missions[missionID]; ok && r.Name != "" {
		return r.Name
	}
	if startMarketID == 0 {
		return placeholderCollectWing
	}
	return placeholderDeliveryWing
}

// rehome moves h under the named commodity when it was filed elsewhere,
// typically under the placeholder commodity of a wing update.
func (l *Ledger) rehome(cg *Cargo, h *Haulage, commodity string) *Cargo {
	if commodity == "" || galaxy.SameName(cg.Name, commodity) {
		return cg
	}
	cg.removeContract(h.MissionID)
	l.collectLocked(cg)
	dst := l.findOrNewLocked(commodity)
	dst.Contracts = append(dst.Contracts, h)
	return dst
}

func (l *Ledger) depotCollect(p *protocol.CargoDepot) {
	remaining := p.TotalToDeliver - p.Delivered
	cg, h := l.contractLocked(p.MissionID)
	if h != nil {
		h.Remaining = remaining
		h.OriginSystem = l.systemName()
		cg = l.rehome(cg, h, p.Commodity)
	} else {
		if p.Commodity == "" {
			return
		}
		name := placeholderDeliveryWing
		if r, ok := l.missions[p.MissionID]; ok && r.Name != "" {
			name = r.Name
		}
		h = newHaulage(p.MissionID, name, l.systemName(), remaining, nil, true)
		cg = l.findOrNewLocked(p.Commodity)
		cg.Contracts = append(cg.Contracts, h)
	}
	h.Collected = p.Collected
	h.Delivered = p.Delivered
	h.StartMarketID = p.StartMarketID
	h.EndMarketID = p.EndMarketID
	cg.calculateNeed()
}

func (l *Ledger) depotDeliver(p *protocol.CargoDepot) {
	remaining := p.TotalToDeliver - p.Delivered
	cg, h := l.contractLocked(p.MissionID)
	if h != nil {
		h.Remaining = remaining
		h.Amount = p.TotalToDeliver
		if p.StartMarketID == 0 {
			h.OriginSystem = l.systemName()
		}
		cg = l.rehome(cg, h, p.Commodity)
	} else {
		if p.Commodity == "" {
			return
		}
		origin := ""
		if p.StartMarketID == 0 {
			origin = l.systemName()
		}
		h = newHaulage(p.MissionID, l.wingPlaceholder(p.MissionID, p.StartMarketID), origin, remaining, nil, true)
		h.Amount = p.TotalToDeliver
		cg = l.findOrNewLocked(p.Commodity)
		cg.Contracts = append(cg.Contracts, h)
	}
	h.Collected = p.Collected
	h.Delivered = p.Delivered
	if h.EndMarketID == 0 {
		h.EndMarketID = p.EndMarketID
	}
	l.settle(cg, h, remaining)
}

// depotWingUpdate turns a wing's absolute counters into a derived event
// carrying the delta since the last update this ledger saw.
func (l *Ledger) depotWingUpdate(c *change, p *protocol.CargoDepot) {
	remaining := p.TotalToDeliver - p.Delivered
	cg, h := l.contractLocked(p.MissionID)
	if h != nil {
		h.Remaining = remaining
	} else {
		commodity := p.Commodity
		if commodity == "" {
			commodity = unknownCommodity
		}
		h = newHaulage(p.MissionID, l.wingPlaceholder(p.MissionID, p.StartMarketID), "", remaining, nil, true)
		cg = l.findOrNewLocked(commodity)
		cg.Contracts = append(cg.Contracts, h)
	}

	amount := max(p.Collected-h.Collected, p.Delivered-h.Delivered)
	if amount > 0 {
		kind := protocol.DepotDeliver
		if p.Collected > h.Collected {
			kind = protocol.DepotCollect
		}
		c.derived = append(c.derived, protocol.Derive(c.ev, &protocol.CargoWingUpdate{
			MissionID:      h.MissionID,
			UpdateType:     kind,
			Commodity:      cg.Name,
			Amount:         amount,
			Collected:      p.Collected,
			Delivered:      p.Delivered,
			TotalToDeliver: p.TotalToDeliver,
		}))
		h.Collected = p.Collected
		h.Delivered = p.Delivered
		h.StartMarketID = p.StartMarketID
		h.EndMarketID = p.EndMarketID
	}
	l.settle(cg, h, remaining)
}

// settle finishes a contract whose remaining amount reached zero. Shared
// contracts never get a completion event of their own, so they are dropped.
func (l *Ledger) settle(cg *Cargo, h *Haulage, remaining int) {
	if remaining > 0 {
		cg.calculateNeed()
		return
	}
	if h.Shared {
		cg.removeContract(h.MissionID)
		l.collectLocked(cg)
		return
	}
	h.Status = StatusComplete
	cg.calculateNeed()
}
