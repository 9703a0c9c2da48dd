// Package edsm looks up star systems in a public star map service.
package edsm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"starlane.ai/internal/galaxy"
)

const DefaultBaseURL = "https://www.edsm.net"

type Config struct {
	BaseURL string
	// Rate is requests per second; zero means one request per second.
	Rate    float64
	Timeout time.Duration
}

type Client struct {
	base       string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse edsm url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid edsm url: %s", base)
	}
	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:       strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 2),
		now:        time.Now,
	}, nil
}

// FetchSystem returns the system with its stations. Unknown systems yield
// galaxy.ErrNotFound.
func (c *Client) FetchSystem(ctx context.Context, name string) (*galaxy.StarSystem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, galaxy.ErrNotFound
	}
	q := url.Values{}
	q.Set("systemName", name)
	q.Set("showCoordinates", "1")
	q.Set("showInformation", "1")
	q.Set("showId", "1")
	body, err := c.get(ctx, "/api-v1/system", q)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	// Unknown systems come back as an empty array or object.
	if !doc.IsObject() || doc.Get("name").String() == "" {
		return nil, galaxy.ErrNotFound
	}
	sys := parseSystem(doc)
	sys.UpdatedAt = c.now().UTC()

	q = url.Values{}
	q.Set("systemName", sys.Name)
	body, err = c.get(ctx, "/api-system-v1/stations", q)
	if err != nil {
		return nil, fmt.Errorf("stations of %s: %w", sys.Name, err)
	}
	for _, st := range parseStations(gjson.ParseBytes(body)) {
		sys.UpsertStation(st)
	}
	return sys, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, galaxy.ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("GET %s: invalid json", path)
	}
	return body, nil
}

func parseSystem(doc gjson.Result) *galaxy.StarSystem {
	sys := galaxy.NewStarSystem(doc.Get("name").String())
	sys.Address = doc.Get("id64").Int()
	if c := doc.Get("coords"); c.IsObject() {
		sys.Coords = &galaxy.Coords{
			X: c.Get("x").Float(),
			Y: c.Get("y").Float(),
			Z: c.Get("z").Float(),
		}
	}
	info := doc.Get("information")
	sys.Allegiance = info.Get("allegiance").String()
	sys.Government = info.Get("government").String()
	sys.Economy = info.Get("economy").String()
	sys.Security = info.Get("security").String()
	sys.Population = info.Get("population").Int()
	sys.Faction = info.Get("faction").String()
	return sys
}

func parseStations(doc gjson.Result) []*galaxy.Station {
	var out []*galaxy.Station
	doc.Get("stations").ForEach(func(_, s gjson.Result) bool {
		name := s.Get("name").String()
		if name == "" {
			return true
		}
		st := &galaxy.Station{
			Name:       name,
			MarketID:   s.Get("marketId").Int(),
			Type:       s.Get("type").String(),
			Economy:    s.Get("economy").String(),
			Faction:    s.Get("controllingFaction.name").String(),
			DistanceLS: s.Get("distanceToArrival").Float(),
		}
		st.Carrier = strings.EqualFold(st.Type, "Fleet Carrier")
		for _, k := range []string{"haveMarket", "haveShipyard", "haveOutfitting"} {
			if s.Get(k).Bool() {
				st.Services = append(st.Services, strings.ToLower(strings.TrimPrefix(k, "have")))
			}
		}
		out = append(out, st)
		return true
	})
	return out
}
