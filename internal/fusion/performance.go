package fusion

import (
	"fmt"

	"github.com/tradeforge/signalcore/internal/regime"
)

// perfTracker keeps rolling win-rate and average-return per factor, feeding
// the causal-uplift discount in conversion.
type perfTracker struct {
	byFactor map[string]*factorRecord
}

type factorRecord struct {
	trades    int
	wins      int
	sumReturn float64
}

func newPerfTracker() *perfTracker {
	return &perfTracker{byFactor: make(map[string]*factorRecord)}
}

func perfKey(name string, ft regime.FactorType) string {
	return fmt.Sprintf("%s|%s", name, ft)
}

func (t *perfTracker) record(name string, ft regime.FactorType, win bool, ret float64) {
	key := perfKey(name, ft)
	rec := t.byFactor[key]
	if rec == nil {
		rec = &factorRecord{}
		t.byFactor[key] = rec
	}
	rec.trades++
	if win {
		rec.wins++
	}
	rec.sumReturn += ret
}

// causalUplift is the historical outperformance of a factor versus the 50%
// baseline: (winRate - 0.5) * avgReturn, clamped to [-0.5, 0.5]. Factors
// with fewer than upliftMinTrades outcomes get zero: no evidence, no
// discount and no boost.
func (t *perfTracker) causalUplift(name string, ft regime.FactorType) float64 {
	rec := t.byFactor[perfKey(name, ft)]
	if rec == nil || rec.trades < upliftMinTrades {
		return 0
	}
	winRate := float64(rec.wins) / float64(rec.trades)
	avgReturn := rec.sumReturn / float64(rec.trades)
	uplift := (winRate - 0.5) * avgReturn
	if uplift < -0.5 {
		return -0.5
	}
	if uplift > 0.5 {
		return 0.5
	}
	return uplift
}

// Calibration constants: bucketed predicted-vs-actual comparison.
const (
	calibrationMaxRecords = 500
	calibrationMinSamples = 20
	calibrationMinBucket  = 5
	calibrationBuckets    = 10
)

type calibrationRecord struct {
	predicted float64
	actual    float64 // 1 if the predicted direction won, else 0
}

// calibrator scores how well predicted probabilities match realized
// frequencies, bucketed in 0.1-wide probability bands.
type calibrator struct {
	records []calibrationRecord
}

func (c *calibrator) record(predicted, actual float64) {
	c.records = append(c.records, calibrationRecord{predicted: predicted, actual: actual})
	if len(c.records) > calibrationMaxRecords {
		c.records = c.records[len(c.records)-calibrationMaxRecords:]
	}
}

// score returns max(0, 1 - 2*MAE) over buckets with enough samples, or the
// neutral 0.5 when fewer than calibrationMinSamples records exist.
func (c *calibrator) score() float64 {
	if len(c.records) < calibrationMinSamples {
		return 0.5
	}
	var sumPred, sumActual [calibrationBuckets]float64
	var counts [calibrationBuckets]int
	for _, r := range c.records {
		b := int(r.predicted * calibrationBuckets)
		if b >= calibrationBuckets {
			b = calibrationBuckets - 1
		}
		sumPred[b] += r.predicted
		sumActual[b] += r.actual
		counts[b]++
	}
	totalErr := 0.0
	used := 0
	for b := 0; b < calibrationBuckets; b++ {
		if counts[b] < calibrationMinBucket {
			continue
		}
		n := float64(counts[b])
		totalErr += absf(sumPred[b]/n - sumActual[b]/n)
		used++
	}
	if used == 0 {
		return 0.5
	}
	score := 1 - 2*(totalErr/float64(used))
	if score < 0 {
		return 0
	}
	return score
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
