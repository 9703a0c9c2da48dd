package protocol

import (
	"time"

	"github.com/shopspring/decimal"

	"starlane.ai/internal/galaxy"
)

// Faction is a minor faction entry attached to system events.
type Faction struct {
	Name       string  `json:"Name"`
	State      string  `json:"FactionState,omitempty"`
	Government string  `json:"Government,omitempty"`
	Allegiance string  `json:"Allegiance,omitempty"`
	Influence  float64 `json:"Influence,omitempty"`
}

// NamedFaction is the {"Name": ...} object the journal uses for controlling factions.
type NamedFaction struct {
	Name  string `json:"Name"`
	State string `json:"FactionState,omitempty"`
}

// SystemInfo carries the system fields shared by Location, Jumped and CarrierJumped.
type SystemInfo struct {
	StarSystem    string        `json:"StarSystem"`
	SystemAddress int64         `json:"SystemAddress,omitempty"`
	StarPos       []float64     `json:"StarPos,omitempty"`
	Allegiance    string        `json:"SystemAllegiance,omitempty"`
	Economy       string        `json:"SystemEconomy_Localised,omitempty"`
	Government    string        `json:"SystemGovernment_Localised,omitempty"`
	Security      string        `json:"SystemSecurity_Localised,omitempty"`
	Population    int64         `json:"Population,omitempty"`
	Factions      []Faction     `json:"Factions,omitempty"`
	SystemFaction *NamedFaction `json:"SystemFaction,omitempty"`
	Body          string        `json:"Body,omitempty"`
	BodyID        int           `json:"BodyID,omitempty"`
	BodyType      string        `json:"BodyType,omitempty"`
}

// StationInfo carries the station fields shared by docking events.
type StationInfo struct {
	StationName     string        `json:"StationName,omitempty"`
	StationType     string        `json:"StationType,omitempty"`
	MarketID        int64         `json:"MarketID,omitempty"`
	StationFaction  *NamedFaction `json:"StationFaction,omitempty"`
	StationEconomy  string        `json:"StationEconomy_Localised,omitempty"`
	StationServices []string      `json:"StationServices,omitempty"`
	DistFromStarLS  float64       `json:"DistFromStarLS,omitempty"`
}

type Location struct {
	SystemInfo
	StationInfo
	Docked    bool     `json:"Docked"`
	Latitude  *float64 `json:"Latitude,omitempty"`
	Longitude *float64 `json:"Longitude,omitempty"`
}

type Docked struct {
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress,omitempty"`
	StationInfo
}

type Undocked struct {
	StationName string `json:"StationName"`
	MarketID    int64  `json:"MarketID,omitempty"`
}

type Touchdown struct {
	PlayerControlled bool     `json:"PlayerControlled"`
	Body             string   `json:"Body,omitempty"`
	BodyID           int      `json:"BodyID,omitempty"`
	Latitude         *float64 `json:"Latitude,omitempty"`
	Longitude        *float64 `json:"Longitude,omitempty"`
	NearestStation   string   `json:"NearestDestination_Localised,omitempty"`
}

type Liftoff struct {
	PlayerControlled bool   `json:"PlayerControlled"`
	Body             string `json:"Body,omitempty"`
	BodyID           int    `json:"BodyID,omitempty"`
}

// Jump targets reported by FSDEngaged.
const (
	JumpHyperspace  = "Hyperspace"
	JumpSupercruise = "Supercruise"
)

type FSDEngaged struct {
	JumpType      string `json:"JumpType"`
	StarSystem    string `json:"StarSystem,omitempty"`
	SystemAddress int64  `json:"SystemAddress,omitempty"`
	StarClass     string `json:"StarClass,omitempty"`
}

type FSDTarget struct {
	Name                  string `json:"Name"`
	SystemAddress         int64  `json:"SystemAddress,omitempty"`
	RemainingJumpsInRoute int    `json:"RemainingJumpsInRoute,omitempty"`
}

type Jumped struct {
	SystemInfo
	JumpDist float64 `json:"JumpDist,omitempty"`
	FuelUsed float64 `json:"FuelUsed,omitempty"`
}

type EnteredSupercruise struct {
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress,omitempty"`
}

type EnteredNormalSpace struct {
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress,omitempty"`
	Body          string `json:"Body,omitempty"`
	BodyID        int    `json:"BodyID,omitempty"`
	BodyType      string `json:"BodyType,omitempty"`
}

type DockingRequested struct {
	StationName string `json:"StationName"`
	StationType string `json:"StationType,omitempty"`
	MarketID    int64  `json:"MarketID,omitempty"`
}

type SettlementApproached struct {
	Name          string `json:"Name"`
	MarketID      int64  `json:"MarketID,omitempty"`
	SystemAddress int64  `json:"SystemAddress,omitempty"`
	BodyName      string `json:"BodyName,omitempty"`
	BodyID        int    `json:"BodyID,omitempty"`
}

type NearSurface struct {
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress,omitempty"`
	Body          string `json:"Body"`
	BodyID        int    `json:"BodyID,omitempty"`
	Approached    bool   `json:"approached"`
}

type Scanned struct {
	ScanType    string  `json:"ScanType,omitempty"`
	BodyName    string  `json:"BodyName"`
	BodyID      int     `json:"BodyID,omitempty"`
	StarSystem  string  `json:"StarSystem,omitempty"`
	StarType    string  `json:"StarType,omitempty"`
	PlanetClass string  `json:"PlanetClass,omitempty"`
	DistanceLS  float64 `json:"DistanceFromArrivalLS,omitempty"`
	Landable    bool    `json:"Landable,omitempty"`
}

// IsStar reports whether the scan describes a star rather than a planet or moon.
func (s *Scanned) IsStar() bool { return s.StarType != "" }

type BodyMapped struct {
	BodyName      string `json:"BodyName"`
	BodyID        int    `json:"BodyID,omitempty"`
	SystemAddress int64  `json:"SystemAddress,omitempty"`
	ProbesUsed    int    `json:"ProbesUsed,omitempty"`
}

type SRVLaunched struct {
	PlayerControlled bool `json:"PlayerControlled"`
}

type SRVDocked struct{}

type FighterLaunched struct {
	PlayerControlled bool `json:"PlayerControlled"`
}

type FighterDocked struct {
	PlayerControlled bool `json:"PlayerControlled"`
}

type CommanderContinued struct {
	Commander string `json:"Commander"`
	FID       string `json:"FID,omitempty"`
	Ship      string `json:"Ship,omitempty"`
	Credits   int64  `json:"Credits"`
	GameMode  string `json:"GameMode,omitempty"`
}

// Ranks as reported by the journal. Nil fields are absent from the event.
type Ranks struct {
	Combat     *int `json:"Combat,omitempty"`
	Trade      *int `json:"Trade,omitempty"`
	Explore    *int `json:"Explore,omitempty"`
	Empire     *int `json:"Empire,omitempty"`
	Federation *int `json:"Federation,omitempty"`
	CQC        *int `json:"CQC,omitempty"`
}

type CommanderRatings struct {
	Ranks
}

type CommanderPromotion struct {
	Ranks
}

type SystemScanComplete struct {
	SystemName    string `json:"SystemName"`
	SystemAddress int64  `json:"SystemAddress,omitempty"`
	Count         int    `json:"Count"`
}

type DiscoveryScan struct {
	SystemName    string  `json:"SystemName,omitempty"`
	SystemAddress int64   `json:"SystemAddress,omitempty"`
	BodyCount     int     `json:"BodyCount"`
	NonBodyCount  int     `json:"NonBodyCount"`
	Progress      float64 `json:"Progress,omitempty"`
}

type PowerplayJoined struct {
	Power string `json:"Power"`
}

type PowerplayLeft struct {
	Power string `json:"Power"`
}

type Market struct {
	MarketID    int64  `json:"MarketID"`
	StationName string `json:"StationName"`
	StarSystem  string `json:"StarSystem,omitempty"`
}

type Outfitting struct {
	MarketID    int64  `json:"MarketID"`
	StationName string `json:"StationName"`
	StarSystem  string `json:"StarSystem,omitempty"`
}

type Shipyard struct {
	MarketID    int64  `json:"MarketID"`
	StationName string `json:"StationName"`
	StarSystem  string `json:"StarSystem,omitempty"`
}

type CarrierJumpRequest struct {
	CarrierID     int64     `json:"CarrierID"`
	SystemName    string    `json:"SystemName"`
	SystemAddress int64     `json:"SystemAddress,omitempty"`
	Body          string    `json:"Body,omitempty"`
	BodyID        int       `json:"BodyID,omitempty"`
	DepartureTime time.Time `json:"DepartureTime,omitempty"`
}

type CarrierJumped struct {
	SystemInfo
	StationInfo
	Docked bool `json:"Docked"`
	OnFoot bool `json:"OnFoot,omitempty"`
}

type Died struct {
	KillerName string `json:"KillerName,omitempty"`
	KillerShip string `json:"KillerShip,omitempty"`
}

// CargoInfo is one line of a Cargo manifest snapshot.
type CargoInfo struct {
	Name      string `json:"Name"`
	MissionID *int64 `json:"MissionID,omitempty"`
	Count     int    `json:"Count"`
	Stolen    int    `json:"Stolen"`
}

// Vessel values reported by Cargo.
const (
	VesselShip = "Ship"
	VesselSRV  = "SRV"
)

type Cargo struct {
	Vessel    string      `json:"Vessel"`
	Count     int         `json:"Count"`
	Inventory []CargoInfo `json:"Inventory,omitempty"`
}

type CommodityCollected struct {
	Commodity string `json:"Type"`
	Stolen    bool   `json:"Stolen"`
	MissionID *int64 `json:"MissionID,omitempty"`
}

type CommodityEjected struct {
	Commodity string `json:"Type"`
	Count     int    `json:"Count"`
	Abandoned bool   `json:"Abandoned,omitempty"`
	MissionID *int64 `json:"MissionID,omitempty"`
}

type CommodityPurchased struct {
	MarketID  int64  `json:"MarketID,omitempty"`
	Commodity string `json:"Type"`
	Count     int    `json:"Count"`
	BuyPrice  int64  `json:"BuyPrice,omitempty"`
	TotalCost int64  `json:"TotalCost,omitempty"`
}

type CommodityRefined struct {
	Commodity string `json:"Type"`
}

type CommoditySold struct {
	MarketID    int64  `json:"MarketID,omitempty"`
	Commodity   string `json:"Type"`
	Count       int    `json:"Count"`
	SellPrice   int64  `json:"SellPrice,omitempty"`
	TotalSale   int64  `json:"TotalSale,omitempty"`
	StolenGoods bool   `json:"StolenGoods,omitempty"`
}

// Depot update kinds.
const (
	DepotCollect    = "Collect"
	DepotDeliver    = "Deliver"
	DepotWingUpdate = "WingUpdate"
)

type CargoDepot struct {
	MissionID      int64   `json:"MissionID"`
	UpdateType     string  `json:"UpdateType"`
	Commodity      string  `json:"CargoType,omitempty"`
	Count          int     `json:"Count,omitempty"`
	StartMarketID  int64   `json:"StartMarketID,omitempty"`
	EndMarketID    int64   `json:"EndMarketID,omitempty"`
	Collected      int     `json:"ItemsCollected"`
	Delivered      int     `json:"ItemsDelivered"`
	TotalToDeliver int     `json:"TotalItemsToDeliver"`
	Progress       float64 `json:"Progress,omitempty"`
}

type LimpetPurchased struct {
	Count     int   `json:"Count"`
	BuyPrice  int64 `json:"BuyPrice,omitempty"`
	TotalCost int64 `json:"TotalCost,omitempty"`
}

// MissionEntry is one mission in a Missions list.
type MissionEntry struct {
	MissionID int64  `json:"MissionID"`
	Name      string `json:"Name"`
	Expires   int64  `json:"Expires,omitempty"`
}

type Missions struct {
	Active   []MissionEntry `json:"Active"`
	Failed   []MissionEntry `json:"Failed"`
	Complete []MissionEntry `json:"Complete"`
}

type MissionAccepted struct {
	MissionID          int64      `json:"MissionID"`
	Name               string     `json:"Name"`
	Faction            string     `json:"Faction,omitempty"`
	Commodity          string     `json:"Commodity,omitempty"`
	Count              *int       `json:"Count,omitempty"`
	DestinationSystem  string     `json:"DestinationSystem,omitempty"`
	DestinationStation string     `json:"DestinationStation,omitempty"`
	Expiry             *time.Time `json:"Expiry,omitempty"`
	Wing               bool       `json:"Wing,omitempty"`
	Reward             int64      `json:"Reward,omitempty"`
}

type MissionCompleted struct {
	MissionID int64  `json:"MissionID"`
	Name      string `json:"Name"`
	Commodity string `json:"Commodity,omitempty"`
	Count     int    `json:"Count,omitempty"`
	Reward    int64  `json:"Reward,omitempty"`
}

type MissionAbandoned struct {
	MissionID int64  `json:"MissionID"`
	Name      string `json:"Name,omitempty"`
}

type MissionFailed struct {
	MissionID int64  `json:"MissionID"`
	Name      string `json:"Name,omitempty"`
}

type EngineerContributed struct {
	Engineer      string `json:"Engineer"`
	Type          string `json:"Type"`
	Commodity     string `json:"Commodity,omitempty"`
	Quantity      int    `json:"Quantity"`
	TotalQuantity int    `json:"TotalQuantity,omitempty"`
}

type Synthesised struct {
	Name string `json:"Name"`
}

// CargoWingUpdate is synthesized when a wing-mate collects or delivers
// goods for a shared mission.
type CargoWingUpdate struct {
	MissionID      int64  `json:"missionid"`
	UpdateType     string `json:"updatetype"`
	Commodity      string `json:"commodity"`
	Amount         int    `json:"amount"`
	Collected      int    `json:"collected"`
	Delivered      int    `json:"delivered"`
	TotalToDeliver int    `json:"totaltodeliver"`
}

// Sources for MarketInformationUpdated.
const (
	InfoMarket     = "market"
	InfoOutfitting = "outfitting"
	InfoShipyard   = "shipyard"
	InfoProfile    = "profile"
)

type MarketInformationUpdated struct {
	Update   string `json:"update"`
	MarketID int64  `json:"marketid,omitempty"`
}

type CarrierJumpEngaged struct {
	CarrierID     int64  `json:"carrierid"`
	SystemName    string `json:"systemname"`
	SystemAddress int64  `json:"systemaddress,omitempty"`
	Body          string `json:"body,omitempty"`
	BodyID        int    `json:"bodyid,omitempty"`
	OriginSystem  string `json:"originsystem,omitempty"`
}

type MissionExpired struct {
	MissionID int64  `json:"missionid"`
	Name      string `json:"name,omitempty"`
}

// ProfileRefreshed brings a remote profile snapshot back onto the drain.
// Station is set only when a station profile matched the station the
// refresh was waiting for.
type ProfileRefreshed struct {
	Commander  string          `json:"commander"`
	FID        string          `json:"fid,omitempty"`
	Credits    decimal.Decimal `json:"credits"`
	Ranks      galaxy.Ranks    `json:"ranks"`
	SystemName string          `json:"systemname,omitempty"`
	Docked     bool            `json:"docked,omitempty"`
	Station    *galaxy.Station `json:"station,omitempty"`
}

func (*Location) Kind() Kind                 { return KindLocation }
func (*Docked) Kind() Kind                   { return KindDocked }
func (*Undocked) Kind() Kind                 { return KindUndocked }
func (*Touchdown) Kind() Kind                { return KindTouchdown }
func (*Liftoff) Kind() Kind                  { return KindLiftoff }
func (*FSDEngaged) Kind() Kind               { return KindFSDEngaged }
func (*FSDTarget) Kind() Kind                { return KindFSDTarget }
func (*Jumped) Kind() Kind                   { return KindJumped }
func (*EnteredSupercruise) Kind() Kind       { return KindEnteredSupercruise }
func (*EnteredNormalSpace) Kind() Kind       { return KindEnteredNormalSpace }
func (*DockingRequested) Kind() Kind         { return KindDockingRequested }
func (*SettlementApproached) Kind() Kind     { return KindSettlementApproach }
func (*NearSurface) Kind() Kind              { return KindNearSurface }
func (*Scanned) Kind() Kind                  { return KindScanned }
func (*BodyMapped) Kind() Kind               { return KindBodyMapped }
func (*SRVLaunched) Kind() Kind              { return KindSRVLaunched }
func (*SRVDocked) Kind() Kind                { return KindSRVDocked }
func (*FighterLaunched) Kind() Kind          { return KindFighterLaunched }
func (*FighterDocked) Kind() Kind            { return KindFighterDocked }
func (*CommanderContinued) Kind() Kind       { return KindCommanderContinued }
func (*CommanderRatings) Kind() Kind         { return KindCommanderRatings }
func (*CommanderPromotion) Kind() Kind       { return KindCommanderPromotion }
func (*SystemScanComplete) Kind() Kind       { return KindSystemScanComplete }
func (*DiscoveryScan) Kind() Kind            { return KindDiscoveryScan }
func (*PowerplayJoined) Kind() Kind          { return KindPowerplayJoined }
func (*PowerplayLeft) Kind() Kind            { return KindPowerplayLeft }
func (*Market) Kind() Kind                   { return KindMarket }
func (*Outfitting) Kind() Kind               { return KindOutfitting }
func (*Shipyard) Kind() Kind                 { return KindShipyard }
func (*CarrierJumpRequest) Kind() Kind       { return KindCarrierJumpRequest }
func (*CarrierJumped) Kind() Kind            { return KindCarrierJumped }
func (*Died) Kind() Kind                     { return KindDied }
func (*Cargo) Kind() Kind                    { return KindCargo }
func (*CommodityCollected) Kind() Kind       { return KindCommodityCollected }
func (*CommodityEjected) Kind() Kind         { return KindCommodityEjected }
func (*CommodityPurchased) Kind() Kind       { return KindCommodityPurchased }
func (*CommodityRefined) Kind() Kind         { return KindCommodityRefined }
func (*CommoditySold) Kind() Kind            { return KindCommoditySold }
func (*CargoDepot) Kind() Kind               { return KindCargoDepot }
func (*LimpetPurchased) Kind() Kind          { return KindLimpetPurchased }
func (*Missions) Kind() Kind                 { return KindMissions }
func (*MissionAccepted) Kind() Kind          { return KindMissionAccepted }
func (*MissionCompleted) Kind() Kind         { return KindMissionCompleted }
func (*MissionAbandoned) Kind() Kind         { return KindMissionAbandoned }
func (*MissionFailed) Kind() Kind            { return KindMissionFailed }
func (*EngineerContributed) Kind() Kind      { return KindEngineerContributed }
func (*Synthesised) Kind() Kind              { return KindSynthesised }
func (*CargoWingUpdate) Kind() Kind          { return KindCargoWingUpdate }
func (*MarketInformationUpdated) Kind() Kind { return KindMarketInformationUpdated }
func (*CarrierJumpEngaged) Kind() Kind       { return KindCarrierJumpEngaged }
func (*MissionExpired) Kind() Kind           { return KindMissionExpired }
func (*ProfileRefreshed) Kind() Kind         { return KindProfileRefreshed }

var payloadFactories = map[Kind]func() Payload{
	KindLocation:                 func() Payload { return &Location{} },
	KindDocked:                   func() Payload { return &Docked{} },
	KindUndocked:                 func() Payload { return &Undocked{} },
	KindTouchdown:                func() Payload { return &Touchdown{} },
	KindLiftoff:                  func() Payload { return &Liftoff{} },
	KindFSDEngaged:               func() Payload { return &FSDEngaged{} },
	KindFSDTarget:                func() Payload { return &FSDTarget{} },
	KindJumped:                   func() Payload { return &Jumped{} },
	KindEnteredSupercruise:       func() Payload { return &EnteredSupercruise{} },
	KindEnteredNormalSpace:       func() Payload { return &EnteredNormalSpace{} },
	KindDockingRequested:         func() Payload { return &DockingRequested{} },
	KindSettlementApproach:       func() Payload { return &SettlementApproached{} },
	KindNearSurface:              func() Payload { return &NearSurface{} },
	KindScanned:                  func() Payload { return &Scanned{} },
	KindBodyMapped:               func() Payload { return &BodyMapped{} },
	KindSRVLaunched:              func() Payload { return &SRVLaunched{} },
	KindSRVDocked:                func() Payload { return &SRVDocked{} },
	KindFighterLaunched:          func() Payload { return &FighterLaunched{} },
	KindFighterDocked:            func() Payload { return &FighterDocked{} },
	KindCommanderContinued:       func() Payload { return &CommanderContinued{} },
	KindCommanderRatings:         func() Payload { return &CommanderRatings{} },
	KindCommanderPromotion:       func() Payload { return &CommanderPromotion{} },
	KindSystemScanComplete:       func() Payload { return &SystemScanComplete{} },
	KindDiscoveryScan:            func() Payload { return &DiscoveryScan{} },
	KindPowerplayJoined:          func() Payload { return &PowerplayJoined{} },
	KindPowerplayLeft:            func() Payload { return &PowerplayLeft{} },
	KindMarket:                   func() Payload { return &Market{} },
	KindOutfitting:               func() Payload { return &Outfitting{} },
	KindShipyard:                 func() Payload { return &Shipyard{} },
	KindCarrierJumpRequest:       func() Payload { return &CarrierJumpRequest{} },
	KindCarrierJumped:            func() Payload { return &CarrierJumped{} },
	KindDied:                     func() Payload { return &Died{} },
	KindCargo:                    func() Payload { return &Cargo{} },
	KindCommodityCollected:       func() Payload { return &CommodityCollected{} },
	KindCommodityEjected:         func() Payload { return &CommodityEjected{} },
	KindCommodityPurchased:       func() Payload { return &CommodityPurchased{} },
	KindCommodityRefined:         func() Payload { return &CommodityRefined{} },
	KindCommoditySold:            func() Payload { return &CommoditySold{} },
	KindCargoDepot:               func() Payload { return &CargoDepot{} },
	KindLimpetPurchased:          func() Payload { return &LimpetPurchased{} },
	KindMissions:                 func() Payload { return &Missions{} },
	KindMissionAccepted:          func() Payload { return &MissionAccepted{} },
	KindMissionCompleted:         func() Payload { return &MissionCompleted{} },
	KindMissionAbandoned:         func() Payload { return &MissionAbandoned{} },
	KindMissionFailed:            func() Payload { return &MissionFailed{} },
	KindEngineerContributed:      func() Payload { return &EngineerContributed{} },
	KindSynthesised:              func() Payload { return &Synthesised{} },
	KindCargoWingUpdate:          func() Payload { return &CargoWingUpdate{} },
	KindMarketInformationUpdated: func() Payload { return &MarketInformationUpdated{} },
	KindCarrierJumpEngaged:       func() Payload { return &CarrierJumpEngaged{} },
	KindMissionExpired:           func() Payload { return &MissionExpired{} },
	KindProfileRefreshed:         func() Payload { return &ProfileRefreshed{} },
}

// Kinds returns every registered kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(payloadFactories))
	for k := range payloadFactories {
		out = append(out, k)
	}
	return out
}

// IsKind reports whether k is a registered kind.
func IsKind(k Kind) bool {
	_, ok := payloadFactories[k]
	return ok
}

// IsDerived reports whether k is produced by the engine rather than read
// from a journal.
func IsDerived(k Kind) bool {
	switch k {
	case KindCargoWingUpdate, KindMarketInformationUpdated, KindCarrierJumpEngaged,
		KindMissionExpired, KindProfileRefreshed:
		return true
	}
	return false
}
