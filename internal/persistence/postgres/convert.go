package postgres

import (
	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

func direction(s string) market.Direction {
	d := market.Direction(s)
	if !d.Valid() {
		return market.Neutral
	}
	return d
}

func regimeFromName(name string) regime.Type {
	for _, r := range regime.AllTypes() {
		if r.String() == name {
			return r
		}
	}
	return regime.RangingTight
}
