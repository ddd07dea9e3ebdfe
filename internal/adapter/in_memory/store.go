package in_memory

import (
	"context"
	"sort"
	"sync"

	"github.com/olyamironova/trade-gateway/internal/port"
)

var _ port.Store = (*Store)(nil)

// Store is a process-local port.Store. Sorted sets order ties by member,
// as Redis does.
type Store struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	zsets  map[string]map[string]float64
}

func NewStore() *Store {
	return &Store{
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string]map[string]float64),
	}
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		res[k] = v
	}
	return res, nil
}

func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hset(key, fields)
	return nil
}

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zadd(key, score, member)
	return nil
}

func (s *Store) ZRem(ctx context.Context, key string, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zrem(key, member)
	return nil
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]port.Z, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return window(s.sorted(key), start, stop), nil
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]port.Z, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(key)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return window(all, start, stop), nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.zsets[key])), nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.hashes, k)
		delete(s.zsets, k)
	}
	return nil
}

// Atomic applies the queued commands while holding the store lock.
func (s *Store) Atomic(ctx context.Context, fn func(b port.Batch)) error {
	b := &batch{}
	fn(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		op(s)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) hset(key string, fields map[string]string) {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
}

func (s *Store) zadd(key string, score float64, member string) {
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
}

func (s *Store) zrem(key string, member string) {
	z, ok := s.zsets[key]
	if !ok {
		return
	}
	delete(z, member)
	if len(z) == 0 {
		delete(s.zsets, key)
	}
}

func (s *Store) sorted(key string) []port.Z {
	z := s.zsets[key]
	out := make([]port.Z, 0, len(z))
	for m, sc := range z {
		out = append(out, port.Z{Member: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

// window applies Redis start/stop index semantics, negative indexes included.
func window(all []port.Z, start, stop int64) []port.Z {
	n := int64(len(all))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []port.Z{}
	}
	return all[start : stop+1]
}

type batch struct {
	ops []func(s *Store)
}

func (b *batch) HSet(key string, fields map[string]string) {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	b.ops = append(b.ops, func(s *Store) { s.hset(key, cp) })
}

func (b *batch) ZAdd(key string, score float64, member string) {
	b.ops = append(b.ops, func(s *Store) { s.zadd(key, score, member) })
}

func (b *batch) ZRem(key string, member string) {
	b.ops = append(b.ops, func(s *Store) { s.zrem(key, member) })
}
