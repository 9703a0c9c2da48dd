package cargo

import (
	"strings"
	"time"

	"starlane.ai/internal/galaxy"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// Placeholder names used when a contract is discovered without its mission.
const (
	placeholderMission      = "Mission_None"
	placeholderDeliveryWing = "MISSION_DeliveryWing"
	placeholderCollectWing  = "MISSION_CollectWing"
	unknownCommodity        = "Unknown"
	dronesCommodity         = "Drones"
)

// Haulage is a mission's commitment to move a quantity of one commodity.
type Haulage struct {
	MissionID     int64      `json:"missionid"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	Status        Status     `json:"status"`
	OriginSystem  string     `json:"originsystem,omitempty"`
	SourceSystem  string     `json:"sourcesystem,omitempty"`
	SourceBody    string     `json:"sourcebody,omitempty"`
	Amount        int        `json:"amount"`
	Remaining     int        `json:"remaining"`
	Need          int        `json:"need"`
	Collected     int        `json:"collected"`
	Delivered     int        `json:"delivered"`
	StartMarketID int64      `json:"startmarketid,omitempty"`
	EndMarketID   int64      `json:"endmarketid,omitempty"`
	Shared        bool       `json:"shared"`
	Expiry        *time.Time `json:"expiry,omitempty"`
}

func newHaulage(id int64, name, origin string, amount int, expiry *time.Time, shared bool) *Haulage {
	return &Haulage{
		MissionID:    id,
		Name:         name,
		Type:         MissionType(name),
		Status:       StatusActive,
		OriginSystem: origin,
		Amount:       amount,
		Remaining:    amount,
		Need:         amount,
		Shared:       shared,
		Expiry:       expiry,
	}
}

// Cargo tracks one commodity. Total is always Owned + Stolen + Haulage.
type Cargo struct {
	Name      string     `json:"name"`
	Total     int        `json:"total"`
	Owned     int        `json:"owned"`
	Stolen    int        `json:"stolen"`
	Haulage   int        `json:"haulage"`
	Need      int        `json:"need"`
	Contracts []*Haulage `json:"haulagedata,omitempty"`
}

func newCargo(name string) *Cargo {
	return &Cargo{Name: name}
}

type bucket int

const (
	owned bucket = iota
	stolen
	haulage
)

func (c *Cargo) key() string { return galaxy.Key(c.Name) }

func (c *Cargo) add(b bucket, n int) {
	if n <= 0 {
		return
	}
	switch b {
	case owned:
		c.Owned += n
	case stolen:
		c.Stolen += n
	case haulage:
		c.Haulage += n
	}
	c.recount()
}

// remove takes up to n from the bucket and reports how many were taken.
func (c *Cargo) remove(b bucket, n int) int {
	if n <= 0 {
		return 0
	}
	var field *int
	switch b {
	case owned:
		field = &c.Owned
	case stolen:
		field = &c.Stolen
	case haulage:
		field = &c.Haulage
	default:
		return 0
	}
	if n > *field {
		n = *field
	}
	*field -= n
	c.recount()
	return n
}

func (c *Cargo) zero() {
	c.Owned, c.Stolen, c.Haulage = 0, 0, 0
	c.recount()
}

func (c *Cargo) recount() {
	c.Total = c.Owned + c.Stolen + c.Haulage
}

func (c *Cargo) contract(missionID int64) *Haulage {
	for _, h := range c.Contracts {
		if h.MissionID == missionID {
			return h
		}
	}
	return nil
}

func (c *Cargo) contractWhere(match func(*Haulage) bool) *Haulage {
	for _, h := range c.Contracts {
		if match(h) {
			return h
		}
	}
	return nil
}

func (c *Cargo) removeContract(missionID int64) bool {
	for i, h := range c.Contracts {
		if h.MissionID == missionID {
			c.Contracts = append(c.Contracts[:i], c.Contracts[i+1:]...)
			return true
		}
	}
	return false
}

// calculateNeed allocates the haulage bucket across active contracts in
// order; whatever a contract still lacks is its need.
func (c *Cargo) calculateNeed() {
	aboard := c.Haulage
	need := 0
	for _, h := range c.Contracts {
		if h.Status != StatusActive {
			h.Need = 0
			continue
		}
		remaining := h.Remaining
		if remaining < 0 {
			remaining = 0
		}
		alloc := min(aboard, remaining)
		aboard -= alloc
		h.Need = remaining - alloc
		need += h.Need
	}
	c.Need = need
}

// empty reports whether the entry can be dropped from the ledger.
func (c *Cargo) empty() bool {
	return c.Total < 1 && len(c.Contracts) == 0
}

func (c *Cargo) clone() *Cargo {
	cp := *c
	cp.Contracts = make([]*Haulage, len(c.Contracts))
	for i, h := range c.Contracts {
		hc := *h
		if h.Expiry != nil {
			t := *h.Expiry
			hc.Expiry = &t
		}
		cp.Contracts[i] = &hc
	}
	return &cp
}

// failsOnLoss lists contract types that fail when their goods leave the hold
// any way other than delivery.
func failsOnLoss(t string) bool {
	switch t {
	case "delivery", "deliverywing", "smuggle":
		return true
	}
	return false
}

func stampsSourceOnCollect(t string) bool {
	return strings.Contains(t, "mining") ||
		strings.Contains(t, "piracy") ||
		strings.Contains(t, "rescue") ||
		strings.Contains(t, "salvage")
}
