package cargo

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

var t0 = time.Date(3310, 5, 1, 12, 0, 0, 0, time.UTC)

func at(sec int, p protocol.Payload) protocol.Event {
	return protocol.New(t0.Add(time.Duration(sec)*time.Second), p)
}

type fakeLocator struct {
	vehicle  galaxy.Vehicle
	system   string
	station  string
	marketID int64
	body     string
}

func (f *fakeLocator) Vehicle() galaxy.Vehicle { return f.vehicle }
func (f *fakeLocator) SystemName() string      { return f.system }
func (f *fakeLocator) StationName() string     { return f.station }
func (f *fakeLocator) StationMarketID() int64  { return f.marketID }
func (f *fakeLocator) BodyName() string        { return f.body }

type fakeBus struct {
	mu        sync.Mutex
	events    []protocol.Event
	delayed   []protocol.Event
	cancelled int
}

func (b *fakeBus) Enqueue(ev protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *fakeBus) After(_ time.Duration, ev protocol.Event) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delayed = append(b.delayed, ev)
	return func() {
		b.mu.Lock()
		b.cancelled++
		b.mu.Unlock()
	}
}

type countingStore struct {
	saves int
	last  *Manifest
}

func (s *countingStore) Load() (*Manifest, error) { return &Manifest{}, nil }
func (s *countingStore) Save(m *Manifest) error {
	s.saves++
	s.last = m
	return nil
}

func newTestLedger(loc *fakeLocator) (*Ledger, *fakeBus, *countingStore) {
	bus := &fakeBus{}
	store := &countingStore{}
	if loc == nil {
		loc = &fakeLocator{vehicle: galaxy.VehicleShip, system: "Sol", station: "Abraham Lincoln", marketID: 128016640}
	}
	l := NewLedger(Options{Store: store, Locator: loc, Bus: bus, Now: func() time.Time { return t0 }})
	return l, bus, store
}

func apply(t *testing.T, l *Ledger, evs ...protocol.Event) {
	t.Helper()
	for _, ev := range evs {
		if err := l.PreHandle(ev); err != nil {
			t.Fatalf("PreHandle %s: %v", ev.Kind, err)
		}
		for _, c := range l.Cargo() {
			if c.Total != c.Owned+c.Stolen+c.Haulage {
				t.Fatalf("after %s: %s total=%d owned=%d stolen=%d haulage=%d", ev.Kind, c.Name, c.Total, c.Owned, c.Stolen, c.Haulage)
			}
		}
	}
}

func id(v int64) *int64 { return &v }
func count(v int) *int  { return &v }

func TestMissionType(t *testing.T) {
	cases := map[string]string{
		"Mission_Delivery_name":        "delivery",
		"Mission_DeliveryWing_name":    "deliverywing",
		"MISSION_Collect_Industrial":   "collect",
		"Mission_ClearingThePath_name": "delivery",
		"Mission_RescueTheWares_name":  "salvage",
		"Mission_DS_Mining_name":       "mining",
		"Mission_Welcome_Smuggle_name": "smuggle",
		"Mission_Massacre_name":        "massacre",
		"Mission":                      "",
		"Mission_RS":                   "",
	}
	for in, want := range cases {
		if got := MissionType(in); got != want {
			t.Fatalf("MissionType(%q)=%q want %q", in, got, want)
		}
	}
	if !CarriesCommodity("deliverywing") || CarriesCommodity("massacre") {
		t.Fatalf("commodity classification wrong")
	}
}

func TestLedger_InvariantAcrossMixedEvents(t *testing.T) {
	loc := &fakeLocator{vehicle: galaxy.VehicleShip, system: "Sol"}
	l, _, _ := newTestLedger(loc)
	apply(t, l,
		at(1, &protocol.MissionAccepted{MissionID: 1, Name: "Mission_Delivery_x", Commodity: "Gold", Count: count(4)}),
		at(2, &protocol.CommodityPurchased{Commodity: "Gold", Count: 3}),
		at(3, &protocol.Cargo{Vessel: protocol.VesselShip, Count: 9, Inventory: []protocol.CargoInfo{
			{Name: "gold", Count: 3},
			{Name: "Gold", Count: 4, MissionID: id(1)},
			{Name: "Silver", Count: 2, Stolen: 1},
		}}),
		at(4, &protocol.LimpetPurchased{Count: 2}),
		at(5, &protocol.Synthesised{Name: "Limpet Basic"}),
	)
	loc.vehicle = galaxy.VehicleSRV
	apply(t, l,
		at(6, &protocol.CommodityCollected{Commodity: "Silver", Stolen: true}),
		at(7, &protocol.CommodityEjected{Commodity: "Gold", Count: 1}),
		at(8, &protocol.EngineerContributed{Type: "Commodity", Commodity: "Silver", Quantity: 5}),
		at(9, &protocol.MissionAbandoned{MissionID: 1}),
	)

	gold, ok := l.CargoByName("GOLD")
	if !ok {
		t.Fatalf("gold missing")
	}
	if gold.Owned != 2 || gold.Stolen != 4 || gold.Haulage != 0 || len(gold.Contracts) != 0 {
		t.Fatalf("gold after abandon: %+v", gold)
	}
	drones, ok := l.CargoByName("drones")
	if !ok || drones.Owned != 6 {
		t.Fatalf("drones: %+v", drones)
	}
	silver, ok := l.CargoByName("Silver")
	if !ok || silver.Owned != 0 || silver.Stolen != 2 {
		t.Fatalf("silver: %+v", silver)
	}
}

func TestLedger_DuplicateManifestIsNoop(t *testing.T) {
	l, _, store := newTestLedger(nil)
	snap := at(1, &protocol.Cargo{Vessel: protocol.VesselShip, Count: 5, Inventory: []protocol.CargoInfo{{Name: "Tea", Count: 5}}})
	apply(t, l, snap, snap)
	if store.saves != 1 {
		t.Fatalf("saves=%d want 1", store.saves)
	}
	tea, _ := l.CargoByName("tea")
	if tea.Total != 5 || tea.Owned != 5 {
		t.Fatalf("tea: %+v", tea)
	}
	if l.Carried() != 5 {
		t.Fatalf("carried=%d", l.Carried())
	}
}

func TestLedger_OlderEventsAreIgnored(t *testing.T) {
	l, _, _ := newTestLedger(nil)
	apply(t, l,
		at(5, &protocol.CommodityPurchased{Commodity: "Tea", Count: 2}),
		at(4, &protocol.CommodityPurchased{Commodity: "Tea", Count: 2}),
		at(5, &protocol.CommodityPurchased{Commodity: "Tea", Count: 2}),
	)
	tea, _ := l.CargoByName("Tea")
	if tea.Owned != 2 {
		t.Fatalf("owned=%d want 2", tea.Owned)
	}
	if !l.UpdatedAt().Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("updatedAt=%v", l.UpdatedAt())
	}
}

func TestLedger_CollectThenEjectRemovesEntry(t *testing.T) {
	l, _, _ := newTestLedger(&fakeLocator{vehicle: galaxy.VehicleSRV, system: "Sol"})
	for i := 1; i <= 5; i++ {
		apply(t, l, at(i, &protocol.CommodityCollected{Commodity: "Gold"}))
	}
	gold, ok := l.CargoByName("Gold")
	if !ok || gold.Owned != 5 {
		t.Fatalf("gold after collect: %+v", gold)
	}
	apply(t, l, at(6, &protocol.CommodityEjected{Commodity: "Gold", Count: 5}))
	if _, ok := l.CargoByName("Gold"); ok {
		t.Fatalf("gold should be gone")
	}
}

func TestLedger_ManifestKeepsContractsWithoutGoods(t *testing.T) {
	l, _, _ := newTestLedger(nil)
	apply(t, l,
		at(1, &protocol.CommodityPurchased{Commodity: "Tea", Count: 2}),
		at(2, &protocol.MissionAccepted{MissionID: 9, Name: "Mission_Collect_x", Commodity: "Gold", Count: count(3)}),
		at(3, &protocol.Cargo{Vessel: protocol.VesselShip, Inventory: []protocol.CargoInfo{}}),
	)
	if _, ok := l.CargoByName("Tea"); ok {
		t.Fatalf("stray tea should be removed")
	}
	gold, ok := l.CargoByName("Gold")
	if !ok || gold.Total != 0 || gold.Need != 3 || len(gold.Contracts) != 1 {
		t.Fatalf("gold: %+v", gold)
	}
	if gold.Contracts[0].EndMarketID != 128016640 {
		t.Fatalf("collect contract should end here: %+v", gold.Contracts[0])
	}
}

func TestLedger_ManifestCreatesPlaceholderContracts(t *testing.T) {
	l, _, _ := newTestLedger(nil)
	apply(t, l, at(1, &protocol.Cargo{Vessel: protocol.VesselShip, Inventory: []protocol.CargoInfo{
		{Name: "Biowaste", Count: 6, MissionID: id(44)},
	}}))
	h, ok := l.Contract(44)
	if !ok || h.Name != placeholderMission || h.Amount != 6 || h.Need != 0 {
		t.Fatalf("placeholder: %+v", h)
	}
	if _, ok := l.Contract(45); ok {
		t.Fatalf("unknown mission should not be found")
	}
}

func TestLedger_SaleOfMissionCargoFailsDelivery(t *testing.T) {
	l, _, _ := newTestLedger(nil)
	apply(t, l,
		at(1, &protocol.MissionAccepted{MissionID: 3, Name: "Mission_Delivery_x", Commodity: "Gold", Count: count(10)}),
		at(2, &protocol.Cargo{Vessel: protocol.VesselShip, Inventory: []protocol.CargoInfo{{Name: "Gold", Count: 10, MissionID: id(3)}}}),
		at(3, &protocol.CommoditySold{Commodity: "Gold", Count: 4}),
		at(4, &protocol.Cargo{Vessel: protocol.VesselShip, Inventory: []protocol.CargoInfo{{Name: "Gold", Count: 6, MissionID: id(3)}}}),
	)
	h, _ := l.Contract(3)
	if h.Status != StatusFailed {
		t.Fatalf("status=%s want Failed", h.Status)
	}
}

func TestLedger_EjectingDeliveryCargoFailsContract(t *testing.T) {
	l, _, _ := newTestLedger(nil)
	apply(t, l,
		at(1, &protocol.MissionAccepted{MissionID: 3, Name: "Mission_Smuggle_x", Commodity: "Onionhead", Count: count(2)}),
		at(2, &protocol.CommodityEjected{Commodity: "onionhead", Count: 1, MissionID: id(3)}),
	)
	h, _ := l.Contract(3)
	if h.Status != StatusFailed {
		t.Fatalf("status=%s want Failed", h.Status)
	}
}

func TestLedger_DeliveryCompletesThenMissionCompletedRemoves(t *testing.T) {
	l, _, _ := newTestLedger(nil)
	apply(t, l,
		at(1, &protocol.MissionAccepted{MissionID: 5, Name: "Mission_Delivery_name", Commodity: "Gold", Count: count(10)}),
		at(2, &protocol.Cargo{Vessel: protocol.VesselShip, Inventory: []protocol.CargoInfo{{Name: "Gold", Count: 10, MissionID: id(5)}}}),
		at(3, &protocol.CargoDepot{MissionID: 5, UpdateType: protocol.DepotDeliver, Commodity: "Gold", Delivered: 10, TotalToDeliver: 10, StartMarketID: 1, EndMarketID: 2}),
	)
	h, ok := l.Contract(5)
	if !ok || h.Status != StatusComplete {
		t.Fatalf("contract after delivery: %+v", h)
	}
	apply(t, l,
		at(4, &protocol.Cargo{Vessel: protocol.VesselShip, Inventory: []protocol.CargoInfo{}}),
		at(5, &protocol.MissionCompleted{MissionID: 5, Commodity: "Gold"}),
	)
	if _, ok := l.Contract(5); ok {
		t.Fatalf("contract should be removed")
	}
	if _, ok := l.CargoByName("Gold"); ok {
		t.Fatalf("gold should be removed")
	}
}

func TestLedger_WingUpdateDerivesDeltas(t *testing.T) {
	l, bus, _ := newTestLedger(nil)
	wing := func(sec, collected, delivered int) protocol.Event {
		return at(sec, &protocol.CargoDepot{
			MissionID: 7, UpdateType: protocol.DepotWingUpdate, Commodity: "Gold",
			StartMarketID: 1, EndMarketID: 2,
			Collected: collected, Delivered: delivered, TotalToDeliver: 10,
		})
	}
	apply(t, l, wing(1, 2, 0), wing(2, 2, 0), wing(3, 5, 0), wing(4, 5, 0), wing(5, 5, 3))

	var got []protocol.CargoWingUpdate
	for _, ev := range bus.events {
		u, ok := ev.Payload.(*protocol.CargoWingUpdate)
		if !ok {
			t.Fatalf("unexpected derived %s", ev.Kind)
		}
		got = append(got, *u)
	}
	if len(got) != 3 {
		t.Fatalf("derived=%d want 3: %+v", len(got), got)
	}
	want := []struct {
		kind   string
		amount int
	}{{protocol.DepotCollect, 2}, {protocol.DepotCollect, 3}, {protocol.DepotDeliver, 3}}
	for i, w := range want {
		if got[i].UpdateType != w.kind || got[i].Amount != w.amount || got[i].Commodity != "Gold" {
			t.Fatalf("derived[%d]=%+v want %s %d", i, got[i], w.kind, w.amount)
		}
	}
	if !bus.events[0].Timestamp.Equal(t0.Add(time.Second)) {
		t.Fatalf("derived event should carry its cause's timestamp")
	}
	h, _ := l.Contract(7)
	if h.Name != placeholderDeliveryWing || !h.Shared || h.Remaining != 7 {
		t.Fatalf("placeholder: %+v", h)
	}
}

func TestLedger_WingUpdateUnderUnknownMovesOnCollect(t *testing.T) {
	l, _, _ := newTestLedger(nil)
	apply(t, l,
		at(1, &protocol.CargoDepot{MissionID: 8, UpdateType: protocol.DepotWingUpdate, Collected: 1, TotalToDeliver: 4}),
		at(2, &protocol.CargoDepot{MissionID: 8, UpdateType: protocol.DepotCollect, Commodity: "Tea", Collected: 2, TotalToDeliver: 4}),
	)
	if _, ok := l.CargoByName(unknownCommodity); ok {
		t.Fatalf("placeholder commodity should be collected")
	}
	tea, ok := l.CargoByName("Tea")
	if !ok || tea.contract(8) == nil {
		t.Fatalf("contract should move to tea: %+v", tea)
	}
}

func TestLedger_DeliveryWingEndToEnd(t *testing.T) {
	l, _, _ := newTestLedger(&fakeLocator{vehicle: galaxy.VehicleShip, system: "A", station: "Port", marketID: 11})
	apply(t, l, at(1, &protocol.MissionAccepted{MissionID: 21, Name: "Mission_DeliveryWing_name", Commodity: "Gold", Count: count(10)}))
	gold, ok := l.CargoByName("Gold")
	if !ok || len(gold.Contracts) != 1 {
		t.Fatalf("gold: %+v", gold)
	}
	h := gold.Contracts[0]
	if h.Amount != 10 || h.Status != StatusActive || !h.Shared || h.StartMarketID != 11 || h.SourceSystem != "A" {
		t.Fatalf("contract: %+v", h)
	}

	apply(t, l, at(2, &protocol.CargoDepot{MissionID: 21, UpdateType: protocol.DepotCollect, Commodity: "Gold", Collected: 10, TotalToDeliver: 10, StartMarketID: 11, EndMarketID: 12}))
	h, _ = l.Contract(21)
	if h.Collected != 10 {
		t.Fatalf("collected=%d", h.Collected)
	}

	apply(t, l, at(3, &protocol.CargoDepot{MissionID: 21, UpdateType: protocol.DepotDeliver, Commodity: "Gold", Collected: 10, Delivered: 10, TotalToDeliver: 10, StartMarketID: 11, EndMarketID: 12}))
	if _, ok := l.Contract(21); ok {
		t.Fatalf("shared contract should be removed")
	}
	if _, ok := l.CargoByName("Gold"); ok {
		t.Fatalf("gold should be removed")
	}
}

func TestLedger_ExpiryScheduling(t *testing.T) {
	l, bus, _ := newTestLedger(nil)
	exp := t0.Add(time.Hour)
	apply(t, l,
		at(1, &protocol.MissionAccepted{MissionID: 1, Name: "Mission_Delivery_x", Commodity: "Gold", Count: count(1), Expiry: &exp}),
	)
	loaded := at(2, &protocol.MissionAccepted{MissionID: 2, Name: "Mission_Delivery_y", Commodity: "Gold", Count: count(1), Expiry: &exp})
	loaded.FromLoad = true
	apply(t, l, loaded)
	if len(bus.delayed) != 1 {
		t.Fatalf("delayed=%d want 1", len(bus.delayed))
	}
	ex, ok := bus.delayed[0].Payload.(*protocol.MissionExpired)
	if !ok || ex.MissionID != 1 || !bus.delayed[0].Timestamp.Equal(exp) {
		t.Fatalf("expiry event: %+v", bus.delayed[0])
	}

	apply(t, l, at(3, &protocol.MissionCompleted{MissionID: 1}))
	if bus.cancelled != 1 {
		t.Fatalf("cancelled=%d want 1", bus.cancelled)
	}

	apply(t, l, protocol.New(exp, &protocol.MissionExpired{MissionID: 2}))
	if _, ok := l.Contract(2); ok {
		t.Fatalf("expired contract without goods should be dropped")
	}
}

func TestLedger_DiedClearsInventory(t *testing.T) {
	l, _, _ := newTestLedger(nil)
	apply(t, l,
		at(1, &protocol.CommodityPurchased{Commodity: "Tea", Count: 2}),
		at(2, &protocol.Died{}),
	)
	if n := len(l.Cargo()); n != 0 {
		t.Fatalf("inventory=%d after death", n)
	}
}

func TestLedger_FileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cargo.snap")
	store := FileStore{Path: path}
	l := NewLedger(Options{Store: store, Now: func() time.Time { return t0 }})
	apply(t, l,
		at(1, &protocol.MissionAccepted{MissionID: 1, Name: "Mission_Collect_x", Commodity: "Tea", Count: count(5)}),
		at(2, &protocol.CommodityPurchased{Commodity: "Biowaste", Count: 2}),
		at(3, &protocol.CommodityPurchased{Commodity: "Tea", Count: 2}),
	)

	back := NewLedger(Options{Store: store, Now: func() time.Time { return t0 }})
	if err := back.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	inv := back.Cargo()
	if len(inv) != 2 || inv[0].Name != "Biowaste" || inv[1].Name != "Tea" {
		t.Fatalf("inventory order: %+v", inv)
	}
	if inv[1].Haulage != 2 || inv[1].Need != 3 || inv[1].Contracts[0].Need != 3 {
		t.Fatalf("tea after load: %+v %+v", inv[1], inv[1].Contracts[0])
	}
	if !back.UpdatedAt().Equal(t0.Add(3 * time.Second)) {
		t.Fatalf("updatedAt=%v", back.UpdatedAt())
	}
	apply(t, back, at(3, &protocol.CommodityPurchased{Commodity: "Tea", Count: 2}))
	if tea, _ := back.CargoByName("Tea"); tea.Haulage != 2 {
		t.Fatalf("replayed event applied after load: %+v", tea)
	}
}
