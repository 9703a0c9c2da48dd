package galaxy

import (
	"math"

	"github.com/shopspring/decimal"
)

type Environment string

const (
	EnvNormalSpace Environment = "NormalSpace"
	EnvSupercruise Environment = "Supercruise"
	EnvWitchSpace  Environment = "WitchSpace"
	EnvDocked      Environment = "Docked"
	EnvLanded      Environment = "Landed"
)

type Vehicle string

const (
	VehicleShip    Vehicle = "Ship"
	VehicleSRV     Vehicle = "SRV"
	VehicleFighter Vehicle = "Fighter"
)

const DefaultTitle = "Commander"

// Minimum ranks for a superpower honorific.
const (
	minFederationRankForTitle = 1
	minEmpireRankForTitle     = 3
)

var federationRanks = []string{
	"None", "Recruit", "Cadet", "Midshipman", "Petty Officer", "Chief Petty Officer",
	"Warrant Officer", "Ensign", "Lieutenant", "Lieutenant Commander", "Post Commander",
	"Post Captain", "Rear Admiral", "Vice Admiral", "Admiral",
}

var empireRanks = []string{
	"None", "Outsider", "Serf", "Master", "Squire", "Knight", "Lord", "Baron",
	"Viscount", "Count", "Earl", "Marquis", "Duke", "Prince", "King",
}

type Ranks struct {
	Combat     int `json:"combat"`
	Trade      int `json:"trade"`
	Explore    int `json:"explore"`
	Empire     int `json:"empire"`
	Federation int `json:"federation"`
	CQC        int `json:"cqc"`
}

type Commander struct {
	Name    string          `json:"name"`
	FID     string          `json:"fid,omitempty"`
	Credits decimal.Decimal `json:"credits"`
	Ranks   Ranks           `json:"ranks"`
	Power   string          `json:"power,omitempty"`
	Title   string          `json:"title"`
}

// Title picks the honorific for a commander in a system of the given
// allegiance.
func Title(r Ranks, allegiance string) string {
	switch allegiance {
	case "Federation":
		if r.Federation > minFederationRankForTitle && r.Federation < len(federationRanks) {
			return federationRanks[r.Federation]
		}
	case "Empire":
		if r.Empire > minEmpireRankForTitle && r.Empire < len(empireRanks) {
			return empireRanks[r.Empire]
		}
	}
	return DefaultTitle
}

// Distance is the light-year distance between two systems rounded to two
// decimals. ok is false when either position is unknown. The same system is
// always zero apart.
func Distance(a, b *StarSystem) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if SameName(a.Name, b.Name) {
		return 0, true
	}
	if a.Coords == nil || b.Coords == nil {
		return 0, false
	}
	dx := a.Coords.X - b.Coords.X
	dy := a.Coords.Y - b.Coords.Y
	dz := a.Coords.Z - b.Coords.Z
	d := math.Sqrt(dx*dx + dy*dy + dz*dz)
	return math.Round(d*100) / 100, true
}
