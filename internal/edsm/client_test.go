package edsm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"starlane.ai/internal/galaxy"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api-v1/system", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("systemName") != "shinrarta dezhra" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"Shinrarta Dezhra","id64":3932277478106,
			"coords":{"x":55.71875,"y":17.59375,"z":27.15625},
			"information":{"allegiance":"Independent","government":"Democracy","economy":"High Tech",
			"security":"High","population":85206935,"faction":"The Pilots Federation"}}`))
	})
	mux.HandleFunc("/api-system-v1/stations", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("systemName") != "Shinrarta Dezhra" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"stations":[
			{"name":"Jameson Memorial","marketId":128666762,"type":"Orbis Starport","economy":"High Tech",
			 "distanceToArrival":325.5,"haveMarket":true,"haveShipyard":true,"haveOutfitting":false,
			 "controllingFaction":{"name":"The Pilots Federation"}},
			{"name":"X7J-BQG","marketId":3700000000,"type":"Fleet Carrier"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSystem(t *testing.T) {
	c, err := New(Config{BaseURL: newServer(t).URL, Rate: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sys, err := c.FetchSystem(context.Background(), "shinrarta dezhra")
	if err != nil {
		t.Fatalf("FetchSystem: %v", err)
	}
	if sys.Name != "Shinrarta Dezhra" || sys.Address != 3932277478106 || sys.Population != 85206935 {
		t.Fatalf("system: %+v", sys)
	}
	if sys.Coords == nil || sys.Coords.X != 55.71875 {
		t.Fatalf("coords: %+v", sys.Coords)
	}
	st := sys.StationByMarketID(128666762)
	if st == nil || st.SystemName != "Shinrarta Dezhra" || st.Faction != "The Pilots Federation" {
		t.Fatalf("station: %+v", st)
	}
	if len(st.Services) != 2 || st.Services[0] != "market" || st.Services[1] != "shipyard" {
		t.Fatalf("services: %v", st.Services)
	}
	if fc := sys.Station("x7j-bqg"); fc == nil || !fc.Carrier {
		t.Fatalf("carrier: %+v", fc)
	}
}

func TestFetchSystem_Unknown(t *testing.T) {
	c, _ := New(Config{BaseURL: newServer(t).URL, Rate: 100})
	if _, err := c.FetchSystem(context.Background(), "Nowhere"); !errors.Is(err, galaxy.ErrNotFound) {
		t.Fatalf("err=%v want not found", err)
	}
	if _, err := c.FetchSystem(context.Background(), " "); !errors.Is(err, galaxy.ErrNotFound) {
		t.Fatalf("blank name err=%v", err)
	}
}

func TestNew_DefaultsBaseURL(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.base != DefaultBaseURL {
		t.Fatalf("base=%s", c.base)
	}
}
