package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"StratGov/internal/domain/models"
)

// MemoryAuditStore is an in-process AuditStore for development and tests.
// Same append-only contract as the ClickHouse store: entries are never
// mutated or removed once written.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

// NewMemoryAuditStore creates an empty in-memory store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Append(_ context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = NewEntryID(entry.Timestamp)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryAuditStore) Query(_ context.Context, q models.AuditQuery) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AuditEntry, 0)
	for _, e := range s.entries {
		if q.Symbol != "" && e.Symbol != q.Symbol {
			continue
		}
		if q.ConstraintID != "" && e.ConstraintID != q.ConstraintID {
			continue
		}
		if q.EventType != "" && e.EventType != q.EventType {
			continue
		}
		if !q.From.IsZero() && e.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.Timestamp.After(q.To) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryAuditStore) Health(context.Context) error { return nil }

func (s *MemoryAuditStore) Close() error { return nil }
