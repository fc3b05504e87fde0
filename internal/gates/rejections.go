package gates

import (
	"sort"
	"time"

	"github.com/tradeforge/signalcore/internal/market"
)

// RejectionEntry is one logged gate failure.
type RejectionEntry struct {
	Reason      Reason           `json:"reason"`
	Value       float64          `json:"value"`
	Threshold   float64          `json:"threshold"`
	SignalType  market.Direction `json:"signal_type"`
	FactorCount int              `json:"factor_count"`
	Timestamp   time.Time        `json:"timestamp"`
}

// rejectionLog is an append-only ledger with time-bounded retention.
// Entries are pruned on append, so the ledger never needs a full rescan.
type rejectionLog struct {
	retention time.Duration
	entries   []RejectionEntry
}

const rejectionHardCap = 10000

func newRejectionLog(retention time.Duration) *rejectionLog {
	return &rejectionLog{retention: retention}
}

func (l *rejectionLog) append(entry RejectionEntry) {
	l.entries = append(l.entries, entry)
	l.prune(entry.Timestamp)
}

func (l *rejectionLog) prune(now time.Time) {
	cutoff := now.Add(-l.retention)
	i := 0
	for ; i < len(l.entries); i++ {
		if l.entries[i].Timestamp.After(cutoff) {
			break
		}
	}
	if i > 0 {
		l.entries = l.entries[i:]
	}
	if len(l.entries) > rejectionHardCap {
		l.entries = l.entries[len(l.entries)-rejectionHardCap:]
	}
}

func (l *rejectionLog) since(cutoff time.Time) []RejectionEntry {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Timestamp.After(cutoff)
	})
	return l.entries[i:]
}

// RejectionStats summarizes the rejection ledger for diagnostics.
type RejectionStats struct {
	Total          int            `json:"total"`
	CountsByReason map[Reason]int `json:"counts_by_reason"`
	TopReasons     []Reason       `json:"top_reasons"`
	RejectionRate  float64        `json:"rejection_rate"` // rejected / (accepted+rejected)
}

// RejectionStats computes analytics over the lookback window.
func (e *Engine) RejectionStats() RejectionStats {
	now := e.now()
	cutoff := now.Add(-time.Duration(e.cfg.LookbackHours) * time.Hour)
	recent := e.rejections.since(cutoff)

	stats := RejectionStats{
		Total:          len(recent),
		CountsByReason: make(map[Reason]int),
	}
	for _, entry := range recent {
		stats.CountsByReason[entry.Reason]++
	}

	for reason := range stats.CountsByReason {
		stats.TopReasons = append(stats.TopReasons, reason)
	}
	sort.Slice(stats.TopReasons, func(i, j int) bool {
		a, b := stats.TopReasons[i], stats.TopReasons[j]
		if stats.CountsByReason[a] != stats.CountsByReason[b] {
			return stats.CountsByReason[a] > stats.CountsByReason[b]
		}
		return a < b
	})

	e.pruneAccepted(now)
	total := len(recent) + len(e.accepted)
	if total > 0 {
		stats.RejectionRate = float64(len(recent)) / float64(total)
	}
	return stats
}

// DensityStats reports accepted-signal density against target.
type DensityStats struct {
	Accepted       int     `json:"accepted"`
	Rejected       int     `json:"rejected"`
	Total          int     `json:"total"`
	CurrentPerHour float64 `json:"current_per_hour"`
	TargetPerHour  float64 `json:"target_per_hour"`
}

// DensityStats computes signal-density analytics over the lookback window.
func (e *Engine) DensityStats() DensityStats {
	now := e.now()
	e.pruneAccepted(now)
	cutoff := now.Add(-time.Duration(e.cfg.LookbackHours) * time.Hour)
	rejected := len(e.rejections.since(cutoff))

	return DensityStats{
		Accepted:       len(e.accepted),
		Rejected:       rejected,
		Total:          len(e.accepted) + rejected,
		CurrentPerHour: float64(len(e.accepted)) / float64(e.cfg.LookbackHours),
		TargetPerHour:  e.cfg.TargetPerHour,
	}
}
