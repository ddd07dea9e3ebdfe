package port

import (
	"context"
)

// Z is a sorted-set member with its score.
type Z struct {
	Member string
	Score  float64
}

// Store is the persistence port: hash records, sorted sets and atomic
// multi-command batches. Implementations must return an empty map from
// HGetAll for a missing key, not an error.
type Store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, member string) error
	// ZRange returns members ordered by ascending score, with scores.
	ZRange(ctx context.Context, key string, start, stop int64) ([]Z, error)
	// ZRevRange returns members ordered by descending score, with scores.
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]Z, error)
	ZCard(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error
	// Atomic queues the commands fn issues on b and applies them as one
	// batch. Either all of them are applied or none are.
	Atomic(ctx context.Context, fn func(b Batch)) error
	Ping(ctx context.Context) error
	Close() error
}

// Batch collects write commands for Store.Atomic.
type Batch interface {
	HSet(key string, fields map[string]string)
	ZAdd(key string, score float64, member string)
	ZRem(key string, member string)
}
