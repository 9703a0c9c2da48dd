package galaxy

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by lookups that do not create.
var ErrNotFound = errors.New("not found")

type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Faction struct {
	Name       string  `json:"name"`
	State      string  `json:"state,omitempty"`
	Government string  `json:"government,omitempty"`
	Allegiance string  `json:"allegiance,omitempty"`
	Influence  float64 `json:"influence,omitempty"`
}

// Commodity is one market line of a station.
type Commodity struct {
	Name      string          `json:"name"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Stock     int             `json:"stock"`
	Demand    int             `json:"demand"`
}

type Station struct {
	Name       string      `json:"name"`
	SystemName string      `json:"system_name"`
	MarketID   int64       `json:"market_id,omitempty"`
	Type       string      `json:"type,omitempty"`
	Faction    string      `json:"faction,omitempty"`
	Economy    string      `json:"economy,omitempty"`
	Services   []string    `json:"services,omitempty"`
	DistanceLS float64     `json:"distance_ls,omitempty"`
	Carrier    bool        `json:"carrier,omitempty"`
	Market     []Commodity `json:"market,omitempty"`
	Outfitting []string    `json:"outfitting,omitempty"`
	Shipyard   []string    `json:"shipyard,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at,omitempty"`
}

// Placeholder reports whether the station only carries a name and system.
func (s *Station) Placeholder() bool {
	return s.MarketID == 0 && s.Type == "" && len(s.Market) == 0
}

// Clone returns a deep copy.
func (s *Station) Clone() *Station {
	if s == nil {
		return nil
	}
	c := *s
	c.Services = append([]string(nil), s.Services...)
	c.Market = append([]Commodity(nil), s.Market...)
	c.Outfitting = append([]string(nil), s.Outfitting...)
	c.Shipyard = append([]string(nil), s.Shipyard...)
	return &c
}

// Merge copies populated fields of other over s. Name and system are kept.
func (s *Station) Merge(other *Station) {
	if other == nil {
		return
	}
	if other.MarketID != 0 {
		s.MarketID = other.MarketID
	}
	if other.Type != "" {
		s.Type = other.Type
	}
	if other.Faction != "" {
		s.Faction = other.Faction
	}
	if other.Economy != "" {
		s.Economy = other.Economy
	}
	if len(other.Services) > 0 {
		s.Services = append([]string(nil), other.Services...)
	}
	if other.DistanceLS != 0 {
		s.DistanceLS = other.DistanceLS
	}
	if other.Carrier {
		s.Carrier = true
	}
	if len(other.Market) > 0 {
		s.Market = append([]Commodity(nil), other.Market...)
	}
	if len(other.Outfitting) > 0 {
		s.Outfitting = append([]string(nil), other.Outfitting...)
	}
	if len(other.Shipyard) > 0 {
		s.Shipyard = append([]string(nil), other.Shipyard...)
	}
	if other.UpdatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = other.UpdatedAt
	}
}

type Body struct {
	Name       string    `json:"name"`
	ID         int       `json:"id,omitempty"`
	SystemName string    `json:"system_name"`
	Star       bool      `json:"star,omitempty"`
	Class      string    `json:"class,omitempty"`
	DistanceLS float64   `json:"distance_ls,omitempty"`
	Landable   bool      `json:"landable,omitempty"`
	Scanned    time.Time `json:"scanned,omitempty"`
	Mapped     time.Time `json:"mapped,omitempty"`
}

func (b *Body) Clone() *Body {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// StarSystem is a persisted system record. Scalar fields are owned by the
// event drain; the station and body collections are guarded by their own
// locks because background refreshes read them.
type StarSystem struct {
	Name             string
	Address          int64
	Coords           *Coords
	Allegiance       string
	Government       string
	Economy          string
	Security         string
	Population       int64
	Faction          string
	Factions         []Faction
	VisitLog         []time.Time
	LastVisit        time.Time
	DiscoveredBodies int
	ScanComplete     bool
	UpdatedAt        time.Time

	stationsMu sync.RWMutex
	stations   []*Station

	bodiesMu sync.RWMutex
	bodies   []*Body
}

func NewStarSystem(name string) *StarSystem {
	return &StarSystem{Name: name}
}

// Stations returns a snapshot of the station list.
func (s *StarSystem) Stations() []*Station {
	s.stationsMu.RLock()
	defer s.stationsMu.RUnlock()
	return append([]*Station(nil), s.stations...)
}

// Station finds a station by name.
func (s *StarSystem) Station(name string) *Station {
	k := Key(name)
	s.stationsMu.RLock()
	defer s.stationsMu.RUnlock()
	for _, st := range s.stations {
		if Key(st.Name) == k {
			return st
		}
	}
	return nil
}

// StationByMarketID finds a station by market id. Zero never matches.
func (s *StarSystem) StationByMarketID(id int64) *Station {
	if id == 0 {
		return nil
	}
	s.stationsMu.RLock()
	defer s.stationsMu.RUnlock()
	for _, st := range s.stations {
		if st.MarketID == id {
			return st
		}
	}
	return nil
}

// UpsertStation inserts st or replaces the entry with the same market id or name.
func (s *StarSystem) UpsertStation(st *Station) {
	if st == nil {
		return
	}
	st.SystemName = s.Name
	s.stationsMu.Lock()
	defer s.stationsMu.Unlock()
	for i, cur := range s.stations {
		if (st.MarketID != 0 && cur.MarketID == st.MarketID) || Key(cur.Name) == Key(st.Name) {
			s.stations[i] = st
			return
		}
	}
	s.stations = append(s.stations, st)
}

// RemoveStation drops the station with the given market id, or name when id is zero.
func (s *StarSystem) RemoveStation(marketID int64, name string) *Station {
	s.stationsMu.Lock()
	defer s.stationsMu.Unlock()
	for i, cur := range s.stations {
		if (marketID != 0 && cur.MarketID == marketID) || (marketID == 0 && Key(cur.Name) == Key(name)) {
			s.stations = append(s.stations[:i], s.stations[i+1:]...)
			return cur
		}
	}
	return nil
}

func (s *StarSystem) Bodies() []*Body {
	s.bodiesMu.RLock()
	defer s.bodiesMu.RUnlock()
	return append([]*Body(nil), s.bodies...)
}

func (s *StarSystem) Body(name string) *Body {
	k := Key(name)
	s.bodiesMu.RLock()
	defer s.bodiesMu.RUnlock()
	for _, b := range s.bodies {
		if Key(b.Name) == k {
			return b
		}
	}
	return nil
}

func (s *StarSystem) UpsertBody(b *Body) {
	if b == nil {
		return
	}
	b.SystemName = s.Name
	s.bodiesMu.Lock()
	defer s.bodiesMu.Unlock()
	for i, cur := range s.bodies {
		if Key(cur.Name) == Key(b.Name) {
			s.bodies[i] = b
			return
		}
	}
	s.bodies = append(s.bodies, b)
	sort.SliceStable(s.bodies, func(i, j int) bool { return s.bodies[i].DistanceLS < s.bodies[j].DistanceLS })
}

// RecordVisit appends ts to the visit log unless already present.
func (s *StarSystem) RecordVisit(ts time.Time) bool {
	for _, v := range s.VisitLog {
		if v.Equal(ts) {
			return false
		}
	}
	s.VisitLog = append(s.VisitLog, ts)
	return true
}

type starSystemJSON struct {
	Name             string      `json:"name"`
	Address          int64       `json:"address,omitempty"`
	Coords           *Coords     `json:"coords,omitempty"`
	Allegiance       string      `json:"allegiance,omitempty"`
	Government       string      `json:"government,omitempty"`
	Economy          string      `json:"economy,omitempty"`
	Security         string      `json:"security,omitempty"`
	Population       int64       `json:"population,omitempty"`
	Faction          string      `json:"faction,omitempty"`
	Factions         []Faction   `json:"factions,omitempty"`
	VisitLog         []time.Time `json:"visit_log,omitempty"`
	LastVisit        time.Time   `json:"last_visit,omitempty"`
	DiscoveredBodies int         `json:"discovered_bodies,omitempty"`
	ScanComplete     bool        `json:"scan_complete,omitempty"`
	UpdatedAt        time.Time   `json:"updated_at,omitempty"`
	Stations         []*Station  `json:"stations,omitempty"`
	Bodies           []*Body     `json:"bodies,omitempty"`
}

func (s *StarSystem) MarshalJSON() ([]byte, error) {
	return json.Marshal(starSystemJSON{
		Name:             s.Name,
		Address:          s.Address,
		Coords:           s.Coords,
		Allegiance:       s.Allegiance,
		Government:       s.Government,
		Economy:          s.Economy,
		Security:         s.Security,
		Population:       s.Population,
		Faction:          s.Faction,
		Factions:         s.Factions,
		VisitLog:         s.VisitLog,
		LastVisit:        s.LastVisit,
		DiscoveredBodies: s.DiscoveredBodies,
		ScanComplete:     s.ScanComplete,
		UpdatedAt:        s.UpdatedAt,
		Stations:         s.Stations(),
		Bodies:           s.Bodies(),
	})
}

func (s *StarSystem) UnmarshalJSON(b []byte) error {
	var j starSystemJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	s.Name = j.Name
	s.Address = j.Address
	s.Coords = j.Coords
	s.Allegiance = j.Allegiance
	s.Government = j.Government
	s.Economy = j.Economy
	s.Security = j.Security
	s.Population = j.Population
	s.Faction = j.Faction
	s.Factions = j.Factions
	s.VisitLog = j.VisitLog
	s.LastVisit = j.LastVisit
	s.DiscoveredBodies = j.DiscoveredBodies
	s.ScanComplete = j.ScanComplete
	s.UpdatedAt = j.UpdatedAt
	s.stationsMu.Lock()
	s.stations = j.Stations
	s.stationsMu.Unlock()
	s.bodiesMu.Lock()
	s.bodies = j.Bodies
	s.bodiesMu.Unlock()
	return nil
}
