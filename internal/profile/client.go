package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

type AuthState int32

const (
	Unauthorized AuthState = iota
	Authorized
)

func (s AuthState) String() string {
	if s == Authorized {
		return "authorized"
	}
	return "unauthorized"
}

// Profile is the account snapshot returned by the companion service.
type Profile struct {
	Timestamp     time.Time
	Commander     string
	FID           string
	Credits       decimal.Decimal
	Ranks         galaxy.Ranks
	SystemName    string
	SystemAddress int64
	Docked        bool
	// Station is the last docked station, enriched with market, outfitting
	// and shipyard data by FetchStationProfile.
	Station *galaxy.Station
	Raw     json.RawMessage
}

type Config struct {
	BaseURL string
	Token   string
	// Rate is requests per second; zero means one request every two seconds.
	Rate    float64
	Timeout time.Duration
}

type Client struct {
	base       string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time

	state atomic.Int32
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("profile base url is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse profile url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid profile url: %s", base)
	}
	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = rate.Every(2 * time.Second)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		base:       strings.TrimRight(u.String(), "/"),
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
	if c.token != "" {
		c.state.Store(int32(Authorized))
	}
	return c, nil
}

// AuthState is Unauthorized without a token or after the service rejected it.
func (c *Client) AuthState() AuthState {
	return AuthState(c.state.Load())
}

func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	body, err := c.get(ctx, "/profile")
	if err != nil {
		return nil, err
	}
	return parseProfile(body, c.now().UTC())
}

// FetchStationProfile returns the profile with the docked station's market,
// outfitting and shipyard merged in.
func (c *Client) FetchStationProfile(ctx context.Context, systemAddress int64, systemName string) (*Profile, error) {
	p, err := c.FetchProfile(ctx)
	if err != nil {
		return nil, err
	}
	if !p.Docked || p.Station == nil {
		return p, nil
	}
	if systemName != "" && !galaxy.SameName(p.SystemName, systemName) {
		return nil, &protocol.Error{
			Code:    protocol.ErrMismatch,
			Message: fmt.Sprintf("profile is in %q, expected %q", p.SystemName, systemName),
		}
	}
	if p.SystemAddress == 0 {
		p.SystemAddress = systemAddress
	}

	market, err := c.get(ctx, "/market")
	if err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	applyMarket(p.Station, market)

	shipyard, err := c.get(ctx, "/shipyard")
	if err != nil {
		return nil, fmt.Errorf("shipyard: %w", err)
	}
	applyShipyard(p.Station, shipyard)
	p.Station.UpdatedAt = p.Timestamp
	return p, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.AuthState() != Authorized {
		return nil, &protocol.Error{Code: protocol.ErrUnauthorized, Message: "no profile credentials"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.state.Store(int32(Unauthorized))
		return nil, &protocol.Error{Code: protocol.ErrUnauthorized, Message: fmt.Sprintf("GET %s: %s", path, resp.Status)}
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if !gjson.ValidBytes(body) {
		return nil, &protocol.Error{Code: protocol.ErrBadEvent, Message: "GET " + path + ": invalid json"}
	}
	return body, nil
}
