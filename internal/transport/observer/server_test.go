package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"starlane.ai/internal/cargo"
	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
	"starlane.ai/internal/tracker"
)

type fakeState struct{ s tracker.State }

func (f fakeState) State() tracker.State { return f.s }

type fakeCargo struct{ items []*cargo.Cargo }

func (f fakeCargo) Cargo() []*cargo.Cargo { return f.items }
func (f fakeCargo) Carried() int           { return 12 }
func (f fakeCargo) UpdatedAt() time.Time {
	return time.Date(3310, 5, 1, 12, 0, 0, 0, time.UTC)
}
func (f fakeCargo) CargoByName(name string) (*cargo.Cargo, bool) {
	for _, c := range f.items {
		if galaxy.SameName(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

func newTestServer() *Server {
	return NewServer(Options{
		State: fakeState{tracker.State{
			Environment: galaxy.EnvDocked,
			Vehicle:     galaxy.VehicleShip,
			SystemName:  "Sol",
			Station:     &galaxy.Station{Name: "Abraham Lincoln", MarketID: 128016640},
		}},
		Cargo:   fakeCargo{items: []*cargo.Cargo{{Name: "Gold", Total: 12, Owned: 8, Haulage: 4}}},
		Metrics: func() any { return map[string]int{"processed": 3} },
	})
}

func get(t *testing.T, h http.Handler, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const local = "127.0.0.1:50000"

func TestServer_State(t *testing.T) {
	rec := get(t, newTestServer().Handler(), "/v1/state", local)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var s tracker.State
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.SystemName != "Sol" || s.Station == nil || s.Station.MarketID != 128016640 || s.Environment != galaxy.EnvDocked {
		t.Fatalf("state=%+v", s)
	}
}

func TestServer_Cargo(t *testing.T) {
	h := newTestServer().Handler()
	rec := get(t, h, "/v1/cargo", local)
	var resp CargoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Carried != 12 || len(resp.Cargo) != 1 {
		t.Fatalf("status=%d resp=%+v", rec.Code, resp)
	}

	rec = get(t, h, "/v1/cargo/gold", local)
	var c cargo.Cargo
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil || rec.Code != http.StatusOK || c.Haulage != 4 {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}

	rec = get(t, h, "/v1/cargo/palladium", local)
	var e errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &e)
	if rec.Code != http.StatusNotFound || e.Code != protocol.ErrNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	h := newTestServer().Handler()
	if rec := get(t, h, "/healthz", local); rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}
	rec := get(t, h, "/metrics", local)
	var m map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil || m["processed"] != 3 {
		t.Fatalf("metrics=%s", rec.Body)
	}
}

func TestServer_LoopbackOnly(t *testing.T) {
	h := newTestServer().Handler()
	if rec := get(t, h, "/v1/state", "192.0.2.10:4000"); rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rec.Code)
	}
	if rec := get(t, h, "/v1/state", "[::1]:4000"); rec.Code != http.StatusOK {
		t.Fatalf("ipv6 loopback status=%d", rec.Code)
	}
	open := NewServer(Options{State: fakeState{}, AllowRemote: true}).Handler()
	if rec := get(t, open, "/v1/state", "192.0.2.10:4000"); rec.Code != http.StatusOK {
		t.Fatalf("allow remote status=%d", rec.Code)
	}
	if rec := get(t, open, "/v1/cargo", local); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("missing ledger status=%d", rec.Code)
	}
}
