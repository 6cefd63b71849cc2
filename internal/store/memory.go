package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryRecord struct {
	firstSeen time.Time
	lastSeen  time.Time
}

// Memory is a non-durable Ledger for ephemeral runs and tests. Records do not
// survive a restart, so every active alert reappears as new after one.
type Memory struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	records map[string]memoryRecord
}

func NewMemory(clock clockwork.Clock) *Memory {
	return &Memory{
		clock:   clock,
		records: map[string]memoryRecord{},
	}
}

func (m *Memory) IsSeen(_ context.Context, alertID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[alertID]
	return ok, nil
}

func (m *Memory) MarkSeen(_ context.Context, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now().UTC().Truncate(time.Second)
	record, ok := m.records[alertID]
	if !ok {
		record.firstSeen = now
	}
	record.lastSeen = now
	m.records[alertID] = record
	return nil
}

func (m *Memory) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, record := range m.records {
		if record.lastSeen.Before(cutoff) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}
