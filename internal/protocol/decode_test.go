package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeJournal_CargoDepot(t *testing.T) {
	line := []byte(`{"timestamp":"2024-03-01T10:00:00Z","event":"CargoDepot","MissionID":42,"UpdateType":"WingUpdate","CargoType":"Gold","ItemsCollected":4,"ItemsDelivered":0,"TotalItemsToDeliver":10}`)
	ev, err := DecodeJournal(line, true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != KindCargoDepot || !ev.FromLoad {
		t.Fatalf("kind=%s fromLoad=%v", ev.Kind, ev.FromLoad)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("timestamp=%v want=%v", ev.Timestamp, want)
	}
	p, ok := ev.Payload.(*CargoDepot)
	if !ok {
		t.Fatalf("payload type %T", ev.Payload)
	}
	if p.MissionID != 42 || p.UpdateType != DepotWingUpdate || p.Collected != 4 || p.TotalToDeliver != 10 {
		t.Fatalf("payload mismatch: %+v", p)
	}
	if string(ev.Raw) != string(line) {
		t.Fatalf("raw not preserved")
	}
}

func TestDecodeJournal_NearSurfaceDirection(t *testing.T) {
	in, err := DecodeJournal([]byte(`{"timestamp":"2024-03-01T10:00:00Z","event":"ApproachBody","StarSystem":"Sol","Body":"Earth"}`), false)
	if err != nil {
		t.Fatalf("decode approach: %v", err)
	}
	if !in.Payload.(*NearSurface).Approached {
		t.Fatalf("ApproachBody should set approached")
	}
	out, err := DecodeJournal([]byte(`{"timestamp":"2024-03-01T10:05:00Z","event":"LeaveBody","StarSystem":"Sol","Body":"Earth"}`), false)
	if err != nil {
		t.Fatalf("decode leave: %v", err)
	}
	if out.Payload.(*NearSurface).Approached {
		t.Fatalf("LeaveBody should clear approached")
	}
}

func TestDecodeJournal_Rejects(t *testing.T) {
	cases := map[string]string{
		`{"timestamp":"2024-03-01T10:00:00Z","event":"Music","MusicTrack":"x"}`: ErrUnknownKind,
		`{"timestamp":"2024-03-01T10:00:00Z"}`:                                  ErrBadEvent,
		`{"event":"Docked"}`:                                                    ErrBadEvent,
		`not json`:                                                              ErrBadEvent,
	}
	for line, code := range cases {
		_, err := DecodeJournal([]byte(line), false)
		if err == nil {
			t.Fatalf("expected error for %s", line)
		}
		if !errors.Is(err, &Error{Code: code}) {
			t.Fatalf("line %s: got %v want code %s", line, err, code)
		}
	}
}

func TestEventJSON_PreservesPayloadType(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cause := Event{Kind: KindCargoDepot, Timestamp: ts, FromLoad: true}
	ev := Derive(cause, &CargoWingUpdate{MissionID: 7, UpdateType: DepotCollect, Commodity: "Gold", Amount: 3})
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p, ok := back.Payload.(*CargoWingUpdate)
	if !ok {
		t.Fatalf("payload type %T", back.Payload)
	}
	if p.Amount != 3 || !back.FromLoad || back.Kind != KindCargoWingUpdate {
		t.Fatalf("decoded mismatch: %+v %+v", back, p)
	}
}

func TestKinds_EveryJournalNameHasPayload(t *testing.T) {
	for name, k := range journalKinds {
		f, ok := payloadFactories[k]
		if !ok {
			t.Fatalf("journal event %s maps to %s without payload", name, k)
		}
		if got := f().Kind(); got != k {
			t.Fatalf("payload for %s reports kind %s", k, got)
		}
	}
	for _, k := range Kinds() {
		if got := payloadFactories[k]().Kind(); got != k {
			t.Fatalf("payload for %s reports kind %s", k, got)
		}
	}
}

func TestIsDerived_DisjointFromJournalKinds(t *testing.T) {
	for name, k := range journalKinds {
		if IsDerived(k) {
			t.Fatalf("journal event %s maps to derived kind %s", name, k)
		}
	}
	for _, k := range []Kind{KindMissionExpired, KindProfileRefreshed, KindCarrierJumpEngaged} {
		if !IsDerived(k) || !IsKind(k) {
			t.Fatalf("%s: derived=%v registered=%v", k, IsDerived(k), IsKind(k))
		}
	}
}
