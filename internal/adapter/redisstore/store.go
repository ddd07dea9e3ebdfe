package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/olyamironova/trade-gateway/internal/port"
)

var _ port.Store = (*Store)(nil)

// Store binds port.Store to a Redis server.
type Store struct {
	client *redis.Client
}

func New(addr string, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb)
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{client: rdb}
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall %s: %w", key, err)
	}
	return res, nil
}

func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := s.client.HSet(ctx, key, flatten(fields)...).Err(); err != nil {
		return fmt.Errorf("redis: hset %s: %w", key, err)
	}
	return nil
}

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis: zadd %s: %w", key, err)
	}
	return nil
}

func (s *Store) ZRem(ctx context.Context, key string, member string) error {
	if err := s.client.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis: zrem %s: %w", key, err)
	}
	return nil
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]port.Z, error) {
	res, err := s.client.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: zrange %s: %w", key, err)
	}
	return toZ(res), nil
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]port.Z, error) {
	res, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: zrevrange %s: %w", key, err)
	}
	return toZ(res), nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: zcard %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: del: %w", err)
	}
	return nil
}

// Atomic runs the batch inside MULTI/EXEC.
func (s *Store) Atomic(ctx context.Context, fn func(b port.Batch)) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(&batch{ctx: ctx, pipe: pipe})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: exec batch: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

type batch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *batch) HSet(key string, fields map[string]string) {
	b.pipe.HSet(b.ctx, key, flatten(fields)...)
}

func (b *batch) ZAdd(key string, score float64, member string) {
	b.pipe.ZAdd(b.ctx, key, redis.Z{Score: score, Member: member})
}

func (b *batch) ZRem(key string, member string) {
	b.pipe.ZRem(b.ctx, key, member)
}

func flatten(fields map[string]string) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func toZ(in []redis.Z) []port.Z {
	out := make([]port.Z, 0, len(in))
	for _, z := range in {
		member, _ := z.Member.(string)
		out = append(out, port.Z{Member: member, Score: z.Score})
	}
	return out
}
