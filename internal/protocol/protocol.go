package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names an event variant. The set is closed: every Kind has exactly one
// payload type registered in payloadFactories.
type Kind string

// Journal-backed kinds.
const (
	KindLocation           Kind = "Location"
	KindDocked             Kind = "Docked"
	KindUndocked           Kind = "Undocked"
	KindTouchdown          Kind = "Touchdown"
	KindLiftoff            Kind = "Liftoff"
	KindFSDEngaged         Kind = "FSDEngaged"
	KindFSDTarget          Kind = "FSDTarget"
	KindJumped             Kind = "Jumped"
	KindEnteredSupercruise Kind = "EnteredSupercruise"
	KindEnteredNormalSpace Kind = "EnteredNormalSpace"
	KindDockingRequested   Kind = "DockingRequested"
	KindSettlementApproach Kind = "SettlementApproached"
	KindNearSurface        Kind = "NearSurface"
	KindScanned            Kind = "Scanned"
	KindBodyMapped         Kind = "BodyMapped"
	KindSRVLaunched        Kind = "SRVLaunched"
	KindSRVDocked          Kind = "SRVDocked"
	KindFighterLaunched    Kind = "FighterLaunched"
	KindFighterDocked      Kind = "FighterDocked"
	KindCommanderContinued Kind = "CommanderContinued"
	KindCommanderRatings   Kind = "CommanderRatings"
	KindCommanderPromotion Kind = "CommanderPromotion"
	KindSystemScanComplete Kind = "SystemScanComplete"
	KindDiscoveryScan      Kind = "DiscoveryScan"
	KindPowerplayJoined    Kind = "PowerplayJoined"
	KindPowerplayLeft      Kind = "PowerplayLeft"
	KindMarket             Kind = "Market"
	KindOutfitting         Kind = "Outfitting"
	KindShipyard           Kind = "Shipyard"
	KindCarrierJumpRequest Kind = "CarrierJumpRequest"
	KindCarrierJumped      Kind = "CarrierJumped"
	KindDied               Kind = "Died"

	KindCargo               Kind = "Cargo"
	KindCommodityCollected  Kind = "CommodityCollected"
	KindCommodityEjected    Kind = "CommodityEjected"
	KindCommodityPurchased  Kind = "CommodityPurchased"
	KindCommodityRefined    Kind = "CommodityRefined"
	KindCommoditySold       Kind = "CommoditySold"
	KindCargoDepot          Kind = "CargoDepot"
	KindLimpetPurchased     Kind = "LimpetPurchased"
	KindMissions            Kind = "Missions"
	KindMissionAccepted     Kind = "MissionAccepted"
	KindMissionCompleted    Kind = "MissionCompleted"
	KindMissionAbandoned    Kind = "MissionAbandoned"
	KindMissionFailed       Kind = "MissionFailed"
	KindEngineerContributed Kind = "EngineerContributed"
	KindSynthesised         Kind = "Synthesised"
)

// Derived kinds are only produced inside the process.
const (
	KindCargoWingUpdate          Kind = "CargoWingUpdate"
	KindMarketInformationUpdated Kind = "MarketInformationUpdated"
	KindCarrierJumpEngaged       Kind = "CarrierJumpEngaged"
	KindMissionExpired           Kind = "MissionExpired"
	KindProfileRefreshed         Kind = "ProfileRefreshed"
)

// journalKinds maps game journal "event" names to kinds.
var journalKinds = map[string]Kind{
	"Location":             KindLocation,
	"Docked":               KindDocked,
	"Undocked":             KindUndocked,
	"Touchdown":            KindTouchdown,
	"Liftoff":              KindLiftoff,
	"StartJump":            KindFSDEngaged,
	"FSDTarget":            KindFSDTarget,
	"FSDJump":              KindJumped,
	"SupercruiseEntry":     KindEnteredSupercruise,
	"SupercruiseExit":      KindEnteredNormalSpace,
	"DockingRequested":     KindDockingRequested,
	"ApproachSettlement":   KindSettlementApproach,
	"ApproachBody":         KindNearSurface,
	"LeaveBody":            KindNearSurface,
	"Scan":                 KindScanned,
	"SAAScanComplete":      KindBodyMapped,
	"LaunchSRV":            KindSRVLaunched,
	"DockSRV":              KindSRVDocked,
	"LaunchFighter":        KindFighterLaunched,
	"DockFighter":          KindFighterDocked,
	"LoadGame":             KindCommanderContinued,
	"Rank":                 KindCommanderRatings,
	"Promotion":            KindCommanderPromotion,
	"FSSAllBodiesFound":    KindSystemScanComplete,
	"FSSDiscoveryScan":     KindDiscoveryScan,
	"PowerplayJoin":        KindPowerplayJoined,
	"PowerplayLeave":       KindPowerplayLeft,
	"Market":               KindMarket,
	"Outfitting":           KindOutfitting,
	"Shipyard":             KindShipyard,
	"CarrierJumpRequest":   KindCarrierJumpRequest,
	"CarrierJump":          KindCarrierJumped,
	"Died":                 KindDied,
	"Cargo":                KindCargo,
	"CollectCargo":         KindCommodityCollected,
	"EjectCargo":           KindCommodityEjected,
	"MarketBuy":            KindCommodityPurchased,
	"MiningRefined":        KindCommodityRefined,
	"MarketSell":           KindCommoditySold,
	"CargoDepot":           KindCargoDepot,
	"BuyDrones":            KindLimpetPurchased,
	"Missions":             KindMissions,
	"MissionAccepted":      KindMissionAccepted,
	"MissionCompleted":     KindMissionCompleted,
	"MissionAbandoned":     KindMissionAbandoned,
	"MissionFailed":        KindMissionFailed,
	"EngineerContribution": KindEngineerContributed,
	"Synthesis":            KindSynthesised,
}

// JournalKind resolves a journal event name.
func JournalKind(name string) (Kind, bool) {
	k, ok := journalKinds[name]
	return k, ok
}

// Payload is the kind-specific body of an Event.
type Payload interface {
	Kind() Kind
}

// Event is an immutable, timestamped occurrence flowing through the engine.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	FromLoad  bool            `json:"from_load,omitempty"`
	Payload   Payload         `json:"payload"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// New builds an event around a payload. ID is assigned by the engine on
// enqueue when left zero.
func New(ts time.Time, p Payload) Event {
	return Event{Kind: p.Kind(), Timestamp: ts.UTC(), Payload: p}
}

// Derive builds an event that inherits the timestamp and load flag of its
// cause.
func Derive(cause Event, p Payload) Event {
	ev := New(cause.Timestamp, p)
	ev.FromLoad = cause.FromLoad
	return ev
}

type eventEnvelope struct {
	ID        uuid.UUID       `json:"id"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	FromLoad  bool            `json:"from_load,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	p, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        env.ID,
		Kind:      env.Kind,
		Timestamp: env.Timestamp,
		FromLoad:  env.FromLoad,
		Payload:   p,
		Raw:       env.Raw,
	}
	return nil
}

func decodePayload(k Kind, b []byte) (Payload, error) {
	f, ok := payloadFactories[k]
	if !ok {
		return nil, &Error{Code: ErrUnknownKind, Message: fmt.Sprintf("unknown kind %q", k)}
	}
	p := f()
	if len(b) > 0 && string(b) != "null" {
		if err := json.Unmarshal(b, p); err != nil {
			return nil, &Error{Code: ErrBadEvent, Message: fmt.Sprintf("decode %s", k), Cause: err}
		}
	}
	return p, nil
}
