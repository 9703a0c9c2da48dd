package cargo

import (
	"strings"
	"time"
)

// chainedTypes maps chained quest segments to the archetype they behave as.
var chainedTypes = map[string]string{
	"clearingthepath":    "delivery",
	"helpfinishtheorder": "delivery",
	"rescuefromthetwins": "salvage",
	"rescuethewares":     "salvage",
}

var commodityTypes = map[string]bool{
	"altruism":     true,
	"collect":      true,
	"collectwing":  true,
	"delivery":     true,
	"deliverywing": true,
	"mining":       true,
	"piracy":       true,
	"rescue":       true,
	"salvage":      true,
	"smuggle":      true,
}

// MissionType classifies a mission name such as "Mission_DeliveryWing_name"
// into its lowercase contract type.
func MissionType(name string) string {
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return ""
	}
	t := strings.ToLower(parts[1])
	if v, ok := chainedTypes[t]; ok {
		return v
	}
	switch t {
	case "ds", "rs", "welcome":
		if len(parts) < 3 {
			return ""
		}
		return strings.ToLower(parts[2])
	}
	return t
}

// CarriesCommodity reports whether a contract type moves goods.
func CarriesCommodity(t string) bool {
	return commodityTypes[t]
}

// MissionRecord is what the ledger remembers about accepted missions so it
// can seed placeholder contracts later.
type MissionRecord struct {
	MissionID    int64
	Name         string
	Commodity    string
	Amount       int
	OriginSystem string
	Expiry       *time.Time
}
