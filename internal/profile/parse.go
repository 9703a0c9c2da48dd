package profile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/protocol"
)

func parseProfile(body []byte, ts time.Time) (*Profile, error) {
	doc := gjson.ParseBytes(body)
	cmdr := doc.Get("commander")
	if !cmdr.Exists() || cmdr.Get("name").String() == "" {
		return nil, &protocol.Error{Code: protocol.ErrBadEvent, Message: "profile has no commander"}
	}
	p := &Profile{
		Timestamp:     ts,
		Commander:     cmdr.Get("name").String(),
		Credits:       decimal.NewFromInt(cmdr.Get("credits").Int()),
		Docked:        cmdr.Get("docked").Bool(),
		SystemName:    doc.Get("lastSystem.name").String(),
		SystemAddress: doc.Get("lastSystem.id").Int(),
		Raw:           append([]byte(nil), body...),
		Ranks: galaxy.Ranks{
			Combat:     int(cmdr.Get("rank.combat").Int()),
			Trade:      int(cmdr.Get("rank.trade").Int()),
			Explore:    int(cmdr.Get("rank.explore").Int()),
			Empire:     int(cmdr.Get("rank.empire").Int()),
			Federation: int(cmdr.Get("rank.federation").Int()),
			CQC:        int(cmdr.Get("rank.cqc").Int()),
		},
	}
	if id := cmdr.Get("id"); id.Exists() {
		p.FID = fmt.Sprintf("F%d", id.Int())
	}
	if st := doc.Get("lastStarport"); st.Exists() && st.Get("name").String() != "" {
		p.Station = &galaxy.Station{
			Name:       st.Get("name").String(),
			SystemName: p.SystemName,
			MarketID:   st.Get("id").Int(),
			Faction:    st.Get("faction").String(),
		}
		if svc := st.Get("services"); svc.IsObject() {
			svc.ForEach(func(k, _ gjson.Result) bool {
				p.Station.Services = append(p.Station.Services, k.String())
				return true
			})
			sort.Strings(p.Station.Services)
		}
	}
	return p, nil
}

func applyMarket(st *galaxy.Station, body []byte) {
	doc := gjson.ParseBytes(body)
	if id := doc.Get("id").Int(); id != 0 && st.MarketID == 0 {
		st.MarketID = id
	}
	var market []galaxy.Commodity
	doc.Get("commodities").ForEach(func(_, c gjson.Result) bool {
		market = append(market, galaxy.Commodity{
			Name:      c.Get("name").String(),
			BuyPrice:  price(c.Get("buyPrice")),
			SellPrice: price(c.Get("sellPrice")),
			Stock:     int(c.Get("stock").Int()),
			Demand:    int(c.Get("demand").Int()),
		})
		return true
	})
	if len(market) > 0 {
		st.Market = market
	}
	if t := doc.Get("outpostType").String(); t != "" && st.Type == "" {
		st.Type = t
	}
}

func applyShipyard(st *galaxy.Station, body []byte) {
	doc := gjson.ParseBytes(body)
	var modules, ships []string
	doc.Get("modules").ForEach(func(_, m gjson.Result) bool {
		if n := m.Get("name").String(); n != "" {
			modules = append(modules, n)
		}
		return true
	})
	doc.Get("ships.shipyard_list").ForEach(func(_, s gjson.Result) bool {
		if n := s.Get("name").String(); n != "" {
			ships = append(ships, n)
		}
		return true
	})
	sort.Strings(modules)
	sort.Strings(ships)
	if len(modules) > 0 {
		st.Outfitting = modules
	}
	if len(ships) > 0 {
		st.Shipyard = ships
	}
}

// price keeps the service's textual number so no float rounding creeps in.
func price(r gjson.Result) decimal.Decimal {
	if r.Raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.Raw)
	if err != nil {
		return decimal.NewFromFloat(r.Float())
	}
	return d
}
