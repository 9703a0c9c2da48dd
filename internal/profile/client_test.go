package profile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"starlane.ai/internal/protocol"
)

const profileJSON = `{
  "commander": {"name": "Jameson", "id": 42, "credits": 1250000, "docked": true,
    "rank": {"combat": 3, "trade": 4, "explore": 5, "empire": 6, "federation": 2, "cqc": 0}},
  "lastSystem": {"id": 10477373803, "name": "Sol"},
  "lastStarport": {"name": "Abraham Lincoln", "id": 128016640, "faction": "Mother Gaia",
    "services": {"refuel": "ok", "commodities": "ok"}}
}`

const marketJSON = `{"id": 128016640, "commodities": [
  {"name": "Gold", "buyPrice": 9401, "sellPrice": 9180.5, "stock": 12, "demand": 1},
  {"name": "Tea", "buyPrice": 1200, "sellPrice": 1100, "stock": 300, "demand": 0}
]}`

const shipyardJSON = `{"modules": {"1": {"name": "Int_Engine_Size2_Class1"}},
  "ships": {"shipyard_list": {"Sidewinder": {"name": "SideWinder"}}}}`

func newServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	handle := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			_, _ = w.Write([]byte(body))
		})
	}
	handle("/profile", profileJSON)
	handle("/market", marketJSON)
	handle("/shipyard", shipyardJSON)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchStationProfile(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	c, err := New(Config{BaseURL: srv.URL, Token: "secret", Rate: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.AuthState() != Authorized {
		t.Fatalf("state=%s", c.AuthState())
	}
	p, err := c.FetchStationProfile(context.Background(), 0, "sol")
	if err != nil {
		t.Fatalf("FetchStationProfile: %v", err)
	}
	if p.Commander != "Jameson" || p.FID != "F42" || p.SystemName != "Sol" || !p.Docked {
		t.Fatalf("profile: %+v", p)
	}
	if p.Credits.String() != "1250000" || p.Ranks.Federation != 2 || p.Ranks.Empire != 6 {
		t.Fatalf("commander fields: %+v", p)
	}
	st := p.Station
	if st == nil || st.MarketID != 128016640 || len(st.Market) != 2 || len(st.Services) != 2 {
		t.Fatalf("station: %+v", st)
	}
	if got := st.Market[0].SellPrice.String(); got != "9180.5" {
		t.Fatalf("sell price=%s", got)
	}
	if len(st.Outfitting) != 1 || len(st.Shipyard) != 1 || st.Shipyard[0] != "SideWinder" {
		t.Fatalf("shipyard: %+v %+v", st.Outfitting, st.Shipyard)
	}
}

func TestClient_SystemMismatch(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	c, _ := New(Config{BaseURL: srv.URL, Token: "secret", Rate: 100})
	_, err := c.FetchStationProfile(context.Background(), 0, "Achenar")
	if protocol.CodeOf(err) != protocol.ErrMismatch {
		t.Fatalf("err=%v want mismatch", err)
	}
}

func TestClient_RejectedTokenUnauthorizes(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	c, _ := New(Config{BaseURL: srv.URL, Token: "wrong", Rate: 100})
	_, err := c.FetchProfile(context.Background())
	if !errors.Is(err, &protocol.Error{Code: protocol.ErrUnauthorized}) {
		t.Fatalf("err=%v", err)
	}
	if c.AuthState() != Unauthorized {
		t.Fatalf("state=%s", c.AuthState())
	}
	if _, err := c.FetchProfile(context.Background()); protocol.CodeOf(err) != protocol.ErrUnauthorized {
		t.Fatalf("second call should short-circuit: %v", err)
	}
}

func TestClient_NoToken(t *testing.T) {
	c, err := New(Config{BaseURL: "companion.example"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.AuthState() != Unauthorized || c.base != "https://companion.example" {
		t.Fatalf("client: state=%s base=%s", c.AuthState(), c.base)
	}
	if _, err := New(Config{}); err == nil {
		t.Fatalf("empty url should fail")
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := newServer(t, http.StatusBadGateway)
	c, _ := New(Config{BaseURL: srv.URL, Token: "secret", Rate: 100})
	if _, err := c.FetchProfile(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if c.AuthState() != Authorized {
		t.Fatalf("server errors must not drop auth")
	}
}
