package regime

import (
	"math"
	"time"

	"github.com/tradeforge/signalcore/internal/market"
)

// Observation is one cycle's normalized feature vector, derived from the
// most recent candle window. Observations are ephemeral; the detector keeps
// a short bounded window of them and nothing else.
type Observation struct {
	PriceChange   float64   // fractional change over the window
	Volatility    float64   // annualized, from log returns
	VolumeRatio   float64   // last volume vs 20-bar average
	Momentum      float64   // position within recent high/low range, [0,1]
	Trend         float64   // linreg slope normalized by mean price
	Reversal      float64   // RSI extremity, [0,1]
	Breakout      float64   // penetration beyond recent range, [0,1]
	NewsSentiment float64   // [-1,1]
	TimeOfDay     float64   // [0,1)
	DayOfWeek     float64   // [0,1)
	Timestamp     time.Time
}

type featureDim int

const (
	dimPriceChange featureDim = iota
	dimVolatility
	dimVolumeRatio
	dimMomentum
	dimTrend
	dimReversal
	dimBreakout
	dimNewsMagnitude
	dimNewsSigned
)

func (o Observation) feature(d featureDim) float64 {
	switch d {
	case dimPriceChange:
		return o.PriceChange
	case dimVolatility:
		return o.Volatility
	case dimVolumeRatio:
		return o.VolumeRatio
	case dimMomentum:
		return o.Momentum
	case dimTrend:
		return o.Trend
	case dimReversal:
		return o.Reversal
	case dimBreakout:
		return o.Breakout
	case dimNewsMagnitude:
		return math.Abs(o.NewsSentiment)
	case dimNewsSigned:
		return o.NewsSentiment
	}
	return 0
}

const (
	obsCandleWindow = 20
	trendWindow     = 10
	rsiPeriod       = 14

	// Bars per year on the 1h timeframe, used to annualize volatility.
	barsPerYear = 24 * 365
)

// buildObservation derives one Observation from the supplied inputs. Short
// or degenerate histories never fail; every ratio guards its denominator
// and missing features fall back to neutral values.
func buildObservation(candles []market.Candle, volume []float64, ind *market.Indicators, news []market.NewsItem, now time.Time) Observation {
	obs := Observation{
		Momentum:  0.5,
		Timestamp: now,
		TimeOfDay: float64(now.Hour()*60+now.Minute()) / (24 * 60),
		DayOfWeek: float64(now.Weekday()) / 7,
	}
	if len(candles) == 0 {
		return obs
	}

	window := candles
	if len(window) > obsCandleWindow {
		window = window[len(window)-obsCandleWindow:]
	}
	first, last := window[0], window[len(window)-1]

	if first.Close > 0 {
		obs.PriceChange = (last.Close - first.Close) / first.Close
	}
	obs.Volatility = math.Max(annualizedVolatility(window), atrFloor(ind, last.Close))
	obs.VolumeRatio = volumeRatio(window, volume)
	obs.Momentum = rangePosition(window)
	obs.Trend = normalizedSlope(window)
	obs.Reversal = rsiExtremity(window, ind)
	obs.Breakout = rangePenetration(window)
	obs.NewsSentiment = averageSentiment(news)
	return obs
}

func annualizedVolatility(window []market.Candle) float64 {
	if len(window) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		if prev <= 0 || window[i].Close <= 0 {
			continue
		}
		rets = append(rets, math.Log(window[i].Close/prev))
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	return math.Sqrt(variance) * math.Sqrt(barsPerYear)
}

// atrFloor converts a supplied ATR into an annualized volatility floor, so
// a flat candle window with a live ATR never reports zero volatility.
func atrFloor(ind *market.Indicators, lastClose float64) float64 {
	if ind == nil || ind.ATR <= 0 || lastClose <= 0 {
		return 0
	}
	return ind.ATR / lastClose * math.Sqrt(barsPerYear)
}

func volumeRatio(window []market.Candle, volume []float64) float64 {
	series := volume
	if len(series) == 0 {
		series = make([]float64, len(window))
		for i, c := range window {
			series[i] = c.Volume
		}
	}
	if len(series) == 0 {
		return 1.0
	}
	tail := series
	if len(tail) > obsCandleWindow {
		tail = tail[len(tail)-obsCandleWindow:]
	}
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	avg := sum / float64(len(tail))
	if avg <= 0 {
		return 1.0
	}
	return tail[len(tail)-1] / avg
}

// rangePosition places the last close within the window's high/low range.
func rangePosition(window []market.Candle) float64 {
	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	if hi <= lo {
		return 0.5
	}
	pos := (window[len(window)-1].Close - lo) / (hi - lo)
	return clamp(pos, 0, 1)
}

// normalizedSlope fits a least-squares line through the last trendWindow
// closes and normalizes the per-bar slope by the mean price.
func normalizedSlope(window []market.Candle) float64 {
	pts := window
	if len(pts) > trendWindow {
		pts = pts[len(pts)-trendWindow:]
	}
	n := float64(len(pts))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, c := range pts {
		x := float64(i)
		sumX += x
		sumY += c.Close
		sumXY += x * c.Close
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	meanPrice := sumY / n
	if meanPrice <= 0 {
		return 0
	}
	return slope / meanPrice
}

// rsiExtremity maps RSI distance from 50 into [0,1]. A supplied indicator
// value wins; otherwise RSI is computed from the window, defaulting to 50
// when the history is too short.
func rsiExtremity(window []market.Candle, ind *market.Indicators) float64 {
	rsi := 50.0
	if ind != nil && ind.RSI > 0 {
		rsi = ind.RSI
	} else if len(window) > rsiPeriod {
		rsi = computeRSI(window, rsiPeriod)
	}
	return clamp(math.Abs(rsi-50)/50, 0, 1)
}

func computeRSI(window []market.Candle, period int) float64 {
	var gains, losses float64
	start := len(window) - period
	for i := start; i < len(window); i++ {
		delta := window[i].Close - window[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// rangePenetration measures how far the last close sits beyond the range
// established by the earlier part of the window, as a fraction of that
// range. Zero when the close is inside the range.
func rangePenetration(window []market.Candle) float64 {
	if len(window) < 3 {
		return 0
	}
	body := window[:len(window)-1]
	hi, lo := body[0].High, body[0].Low
	for _, c := range body {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	span := hi - lo
	if span <= 0 {
		return 0
	}
	close := window[len(window)-1].Close
	switch {
	case close > hi:
		return clamp((close-hi)/span, 0, 1)
	case close < lo:
		return clamp((lo-close)/span, 0, 1)
	}
	return 0
}

func averageSentiment(news []market.NewsItem) float64 {
	if len(news) == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range news {
		sum += n.Sentiment
	}
	return clamp(sum/float64(len(news)), -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
