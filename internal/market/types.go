// Package market holds the raw observation types supplied by the market
// data collaborator. The engine only reads numeric fields from these; how
// they are fetched is out of scope.
package market

import "time"

// Candle is one OHLCV bar.
type Candle struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// NewsItem is a single scored news event from the sentiment feed.
type NewsItem struct {
	Headline  string    `json:"headline,omitempty"`
	Sentiment float64   `json:"sentiment"` // [-1, 1]
	Timestamp time.Time `json:"timestamp"`
}

// Indicators carries optional precomputed indicator values. Nil or zero
// fields fall back to values derived from the candle window.
type Indicators struct {
	RSI float64 `json:"rsi"`
	ATR float64 `json:"atr"`
}

// Direction is the trade side implied by a signal.
type Direction string

const (
	Buy     Direction = "buy"
	Sell    Direction = "sell"
	Neutral Direction = "neutral"
)

// Valid reports whether d is one of the three known directions.
func (d Direction) Valid() bool {
	return d == Buy || d == Sell || d == Neutral
}
