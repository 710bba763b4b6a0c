package media

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store intended for tests and local iteration.
// Not durable; not suitable for production.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string]*Asset

	games    map[string]scheduledEvent
	sessions map[string]scheduledEvent
}

type scheduledEvent struct {
	teamID      string
	scheduledAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:   make(map[string]*Asset),
		games:    make(map[string]scheduledEvent),
		sessions: make(map[string]scheduledEvent),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Put(ctx context.Context, a *Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneAsset(a)
	m.assets[a.ID] = cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAsset(a), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Asset) error) (*Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneAsset(a)
	if err := fn(cp); err != nil {
		return nil, err
	}
	m.assets[id] = cp
	return cloneAsset(cp), nil
}

// AddGame registers a scheduled game for auto-association lookups.
func (m *MemoryStore) AddGame(id, teamID string, scheduledAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[id] = scheduledEvent{teamID: teamID, scheduledAt: scheduledAt}
}

// AddTrainingSession registers a scheduled training session.
func (m *MemoryStore) AddTrainingSession(id, teamID string, scheduledAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = scheduledEvent{teamID: teamID, scheduledAt: scheduledAt}
}

func (m *MemoryStore) FindGameNear(ctx context.Context, teamID string, t time.Time, window time.Duration) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findNear(m.games, teamID, t, window)
}

func (m *MemoryStore) FindTrainingSessionNear(ctx context.Context, teamID string, t time.Time, window time.Duration) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findNear(m.sessions, teamID, t, window)
}

func findNear(events map[string]scheduledEvent, teamID string, t time.Time, window time.Duration) (string, bool, error) {
	bestID := ""
	bestDelta := window + 1
	for id, ev := range events {
		if ev.teamID != teamID {
			continue
		}
		delta := t.Sub(ev.scheduledAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window && delta < bestDelta {
			bestID = id
			bestDelta = delta
		}
	}
	if bestID == "" {
		return "", false, nil
	}
	return bestID, true, nil
}

func cloneAsset(a *Asset) *Asset {
	cp := *a
	if a.Tags != nil {
		cp.Tags = append([]string(nil), a.Tags...)
	}
	if a.Metadata != nil {
		cp.Metadata = cloneDoc(a.Metadata)
	}
	return &cp
}

// cloneDoc deep-copies the metadata document one level down. Sub-reports are
// replaced wholesale by stages, never mutated in place, so a shallow copy of
// each sub-value is enough to isolate readers.
func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if sub, ok := v.(map[string]any); ok {
			subCp := make(map[string]any, len(sub))
			for sk, sv := range sub {
				subCp[sk] = sv
			}
			out[k] = subCp
			continue
		}
		out[k] = v
	}
	return out
}
