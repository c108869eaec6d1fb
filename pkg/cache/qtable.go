package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// QTableStore persists the repair stage's learned value table between
// generation runs, keyed by organization and semester. A nil store is valid
// and turns transfer into a no-op: the repair stage then starts cold and
// ranks candidates heuristically.
type QTableStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewQTableStore wraps a redis client; pass nil to disable transfer.
func NewQTableStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *QTableStore {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QTableStore{client: client, ttl: ttl, logger: logger}
}

func qtableKey(org, semester string) string {
	return fmt.Sprintf("timetable:qtable:%s:%s", org, semester)
}

// Load fetches the table from a prior run. A missing key yields an empty map.
func (s *QTableStore) Load(ctx context.Context, org, semester string) (map[string]float64, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, qtableKey(org, semester)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load qtable: %w", err)
	}
	table := make(map[string]float64)
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("decode qtable: %w", err)
	}
	return table, nil
}

// Save stores the table for transfer to the next run. Failures are logged
// and swallowed: transfer is an optimisation, never a pipeline failure.
func (s *QTableStore) Save(ctx context.Context, org, semester string, table map[string]float64) {
	if s == nil || len(table) == 0 {
		return
	}
	raw, err := json.Marshal(table)
	if err != nil {
		s.logger.Sugar().Warnw("encode qtable failed", "error", err)
		return
	}
	if err := s.client.Set(ctx, qtableKey(org, semester), raw, s.ttl).Err(); err != nil {
		s.logger.Sugar().Warnw("save qtable failed", "org", org, "semester", semester, "error", err)
	}
}
