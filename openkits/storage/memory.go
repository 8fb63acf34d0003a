package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
)

// Memory is a Store keeping records in process memory. Records do not survive a restart, so it is
// only meant for development servers and tests.
type Memory struct {
	mu      sync.Mutex
	records map[ledger.Key]ledger.Record
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[ledger.Key]ledger.Record)}
}

// LoadRecord ...
func (m *Memory) LoadRecord(_ context.Context, k ledger.Key) (ledger.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[k]
	return r, ok, nil
}

// SaveRecord ...
func (m *Memory) SaveRecord(_ context.Context, r ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.records[r.Key()]; ok && cur.Version >= r.Version {
		return nil
	}
	m.records[r.Key()] = r
	return nil
}

// LoadAllForPlayer ...
func (m *Memory) LoadAllForPlayer(_ context.Context, player uuid.UUID) ([]ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(lo.Values(m.records), func(r ledger.Record, _ int) bool {
		return r.Player == player
	}), nil
}

// DeleteRecords ...
func (m *Memory) DeleteRecords(_ context.Context, player uuid.UUID, kits ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.records {
		if k.Player == player && (len(kits) == 0 || lo.Contains(kits, k.Kit)) {
			delete(m.records, k)
		}
	}
	return nil
}

// Close ...
func (m *Memory) Close() error {
	return nil
}
