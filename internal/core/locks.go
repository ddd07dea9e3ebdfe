package core

import (
	"sync"

	"github.com/olyamironova/trade-gateway/internal/domain"
)

// pairLocks serializes book mutations per pair. Pairs are a closed set so
// the map never needs pruning.
type pairLocks struct {
	mu    sync.Mutex
	locks map[domain.Pair]*sync.Mutex
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[domain.Pair]*sync.Mutex)}
}

// lock blocks until pair is free and returns the matching unlock.
func (l *pairLocks) lock(pair domain.Pair) func() {
	l.mu.Lock()
	m, ok := l.locks[pair]
	if !ok {
		m = &sync.Mutex{}
		l.locks[pair] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
