package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

func TestDirection(t *testing.T) {
	assert.Equal(t, market.Buy, direction("buy"))
	assert.Equal(t, market.Sell, direction("sell"))
	assert.Equal(t, market.Neutral, direction("garbage"))
}

func TestRegimeFromName_RoundTripsAllTypes(t *testing.T) {
	for _, r := range regime.AllTypes() {
		assert.Equal(t, r, regimeFromName(r.String()))
	}
	assert.Equal(t, regime.RangingTight, regimeFromName("unknown_regime"))
}
