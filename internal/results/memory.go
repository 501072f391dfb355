package results

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memrepo is used when no DATABASE_URL is configured.
type memrepo struct {
	mu        sync.RWMutex
	nextID    int64
	byID      map[int64]*Outcome
	bySession map[string]*Outcome
}

func NewMemoryRepository() Repository {
	return &memrepo{byID: map[int64]*Outcome{}, bySession: map[string]*Outcome{}}
}

func (m *memrepo) Save(_ context.Context, o Outcome) (int64, error) {
	key := strings.TrimSpace(o.SessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySession[key]; exists {
		return 0, ErrDuplicate
	}
	m.nextID++
	o.ID = m.nextID
	m.byID[o.ID] = &o
	m.bySession[key] = &o
	return o.ID, nil
}

func (m *memrepo) Recent(_ context.Context, limit int) ([]Outcome, error) {
	m.mu.RLock()
	items := make([]Outcome, 0, len(m.byID))
	for _, o := range m.byID {
		items = append(items, *o)
	}
	m.mu.RUnlock()
	// EndedAt desc, then ID desc
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) Close() error { return nil }
