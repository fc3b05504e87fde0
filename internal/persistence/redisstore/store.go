// Package redisstore persists small engine state snapshots (adaptive
// thresholds, regime weight tables) so a restarted engine resumes with its
// tuned parameters instead of the defaults.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tradeforge/signalcore/internal/gates"
	regimepkg "github.com/tradeforge/signalcore/internal/regime"
)

const (
	thresholdsKey = "signalcore:%s:thresholds"
	weightsKey    = "signalcore:%s:weights:%s"
)

// Store wraps a Redis client with snapshot operations.
type Store struct {
	client *redis.Client
}

// New connects a snapshot store.
func New(addr string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// SaveThresholds stores the threshold snapshot for a symbol.
func (s *Store) SaveThresholds(ctx context.Context, symbol string, th gates.Thresholds) error {
	data, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	if err := s.client.Set(ctx, fmt.Sprintf(thresholdsKey, symbol), data, 0).Err(); err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}
	return nil
}

// LoadThresholds restores a threshold snapshot. A missing key returns
// (nil, nil) so callers fall back to defaults.
func (s *Store) LoadThresholds(ctx context.Context, symbol string) (*gates.Thresholds, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(thresholdsKey, symbol)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	var th gates.Thresholds
	if err := json.Unmarshal(data, &th); err != nil {
		return nil, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	return &th, nil
}

// SaveWeights stores one regime's adaptive weight table.
func (s *Store) SaveWeights(ctx context.Context, symbol string, r regimepkg.Type, wt regimepkg.WeightTable) error {
	data, err := json.Marshal(wt)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	key := fmt.Sprintf(weightsKey, symbol, r.String())
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

// LoadWeights restores one regime's weight table; missing keys return
// (nil, nil).
func (s *Store) LoadWeights(ctx context.Context, symbol string, r regimepkg.Type) (*regimepkg.WeightTable, error) {
	key := fmt.Sprintf(weightsKey, symbol, r.String())
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	var wt regimepkg.WeightTable
	if err := json.Unmarshal(data, &wt); err != nil {
		return nil, fmt.Errorf("unmarshal weights: %w", err)
	}
	return &wt, nil
}
