// Package postgres archives realized outcomes and parameter adaptations
// for offline analysis. Writes run behind a circuit breaker: an unhealthy
// database degrades to dropped archive rows, never a stalled decision loop.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/tradeforge/signalcore/internal/learning"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	signal_id        TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	direction        TEXT NOT NULL,
	entry_price      DOUBLE PRECISION NOT NULL,
	exit_price       DOUBLE PRECISION NOT NULL,
	entry_time       TIMESTAMPTZ NOT NULL,
	exit_time        TIMESTAMPTZ NOT NULL,
	predicted_prob   DOUBLE PRECISION NOT NULL,
	predicted_return DOUBLE PRECISION NOT NULL,
	actual_return    DOUBLE PRECISION NOT NULL,
	signal_strength  DOUBLE PRECISION NOT NULL,
	confluence_score DOUBLE PRECISION NOT NULL,
	regime           TEXT NOT NULL,
	correct_dir      BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS adaptations (
	id         BIGSERIAL PRIMARY KEY,
	parameter  TEXT NOT NULL,
	old_value  DOUBLE PRECISION NOT NULL,
	new_value  DOUBLE PRECISION NOT NULL,
	reason     TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL
);`

// Repo is the outcome archive.
type Repo struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
}

// New opens the archive and ensures its schema.
func New(dsn string) (*Repo, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "outcome-archive",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Archive circuit breaker state change")
		},
	})
	return &Repo{db: db, breaker: breaker}, nil
}

// Close releases the connection pool.
func (r *Repo) Close() error {
	return r.db.Close()
}

// InsertOutcome archives one outcome. Conflicting signal ids are ignored,
// matching the in-memory dedup guarantee.
func (r *Repo) InsertOutcome(ctx context.Context, o learning.Outcome) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		const q = `
			INSERT INTO outcomes (
				signal_id, symbol, direction, entry_price, exit_price,
				entry_time, exit_time, predicted_prob, predicted_return,
				actual_return, signal_strength, confluence_score, regime, correct_dir
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (signal_id) DO NOTHING`
		_, err := r.db.ExecContext(ctx, q,
			o.SignalID, o.Symbol, string(o.Direction), o.EntryPrice, o.ExitPrice,
			o.EntryTime, o.ExitTime, o.PredictedProb, o.PredictedReturn,
			o.ActualReturn, o.SignalStrength, o.ConfluenceScore, o.Regime.String(), o.CorrectDir,
		)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("archive outcome %s: %w", o.SignalID, err)
	}
	return nil
}

// InsertAdaptation archives one applied parameter change.
func (r *Repo) InsertAdaptation(ctx context.Context, a learning.Adaptation) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		const q = `
			INSERT INTO adaptations (parameter, old_value, new_value, reason, applied_at)
			VALUES ($1,$2,$3,$4,$5)`
		_, err := r.db.ExecContext(ctx, q, a.Parameter, a.OldValue, a.NewValue, a.Reason, a.Timestamp)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("archive adaptation %s: %w", a.Parameter, err)
	}
	return nil
}

// RecentOutcomes loads the latest n archived outcomes, newest first.
func (r *Repo) RecentOutcomes(ctx context.Context, n int) ([]learning.Outcome, error) {
	rows := []struct {
		SignalID        string    `db:"signal_id"`
		Symbol          string    `db:"symbol"`
		Direction       string    `db:"direction"`
		EntryPrice      float64   `db:"entry_price"`
		ExitPrice       float64   `db:"exit_price"`
		EntryTime       time.Time `db:"entry_time"`
		ExitTime        time.Time `db:"exit_time"`
		PredictedProb   float64   `db:"predicted_prob"`
		PredictedReturn float64   `db:"predicted_return"`
		ActualReturn    float64   `db:"actual_return"`
		SignalStrength  float64   `db:"signal_strength"`
		ConfluenceScore float64   `db:"confluence_score"`
		Regime          string    `db:"regime"`
		CorrectDir      bool      `db:"correct_dir"`
	}{}
	const q = `SELECT * FROM outcomes ORDER BY exit_time DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, q, n); err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}

	out := make([]learning.Outcome, 0, len(rows))
	for _, row := range rows {
		out = append(out, learning.Outcome{
			SignalID:        row.SignalID,
			Symbol:          row.Symbol,
			Direction:       direction(row.Direction),
			EntryPrice:      row.EntryPrice,
			ExitPrice:       row.ExitPrice,
			EntryTime:       row.EntryTime,
			ExitTime:        row.ExitTime,
			PredictedProb:   row.PredictedProb,
			PredictedReturn: row.PredictedReturn,
			ActualReturn:    row.ActualReturn,
			SignalStrength:  row.SignalStrength,
			ConfluenceScore: row.ConfluenceScore,
			Regime:          regimeFromName(row.Regime),
			CorrectDir:      row.CorrectDir,
		})
	}
	return out, nil
}
