package session

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/benvon/medvax-chat/internal/models"
)

// MemoryStore is an in-process Store. It is used in tests and single-node
// development runs; sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session // keyed by session id
	active   map[string]string          // user id -> active session id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		active:   make(map[string]string),
	}
}

// FindActiveByUser implements Store.
func (m *MemoryStore) FindActiveByUser(_ context.Context, userID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.active[userID]
	if !ok {
		return nil, nil
	}
	return cloneSession(m.sessions[id]), nil
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.SessionID]; exists {
		return ErrDuplicateKey
	}
	if s.IsActive {
		if _, exists := m.active[s.UserID]; exists {
			return ErrDuplicateKey
		}
		m.active[s.UserID] = s.SessionID
	}
	m.sessions[s.SessionID] = cloneSession(s)
	return nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.SessionID]
	if !ok {
		return ErrNotFound
	}
	if s.IsActive && !stored.IsActive {
		if id, exists := m.active[s.UserID]; exists && id != s.SessionID {
			return ErrDuplicateKey
		}
	}

	stored.ContextData = maps.Clone(s.ContextData)
	stored.IsActive = s.IsActive
	if s.IsActive {
		m.active[s.UserID] = s.SessionID
	} else if m.active[s.UserID] == s.SessionID {
		delete(m.active, s.UserID)
	}
	return nil
}

// RecordActivity implements Store.
func (m *MemoryStore) RecordActivity(_ context.Context, sessionID string, at, expiresAt time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[sessionID]
	if !ok || !stored.IsActive {
		return nil, ErrNotFound
	}
	stored.Touch(at, expiresAt)
	return cloneSession(stored), nil
}

// MergeContext implements Store.
func (m *MemoryStore) MergeContext(_ context.Context, sessionID string, partial models.ContextData) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[sessionID]
	if !ok || !stored.IsActive {
		return nil, ErrNotFound
	}
	stored.MergeContext(partial)
	return cloneSession(stored), nil
}

// MarkExpiredInactive implements Store.
func (m *MemoryStore) MarkExpiredInactive(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for userID, id := range m.active {
		s := m.sessions[id]
		if s.ExpiresAt.Before(now) {
			s.IsActive = false
			delete(m.active, userID)
			n++
		}
	}
	return n, nil
}

// AggregateStatistics implements Store.
func (m *MemoryStore) AggregateStatistics(_ context.Context, now time.Time) (*models.SessionStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.SessionStatistics{TotalSessions: int64(len(m.sessions))}
	for _, id := range m.active {
		s := m.sessions[id]
		stats.ActiveSessions++
		stats.TotalMessages += int64(s.MessageCount)
		if s.ExpiresAt.Before(now) {
			stats.ExpiredSessions++
		}
	}
	if stats.ActiveSessions > 0 {
		stats.AvgMessagesPerSession = float64(stats.TotalMessages) / float64(stats.ActiveSessions)
	}
	return stats, nil
}

// ListActive implements Store.
func (m *MemoryStore) ListActive(_ context.Context, limit int) ([]*models.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.SessionSummary, 0, len(m.active))
	for _, id := range m.active {
		out = append(out, summarize(m.sessions[id]))
	}
	sortByActivity(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByUser implements Store.
func (m *MemoryStore) ListByUser(_ context.Context, userID string) ([]*models.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.SessionSummary
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, summarize(s))
		}
	}
	sortByActivity(out)
	return out, nil
}

// CountActive implements Store.
func (m *MemoryStore) CountActive(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.active)), nil
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	c.ContextData = maps.Clone(s.ContextData)
	if c.ContextData == nil {
		c.ContextData = models.ContextData{}
	}
	return &c
}

func summarize(s *models.Session) *models.SessionSummary {
	return &models.SessionSummary{
		UserID:       s.UserID,
		SessionID:    s.SessionID,
		LastActivity: s.LastActivity,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		IsActive:     s.IsActive,
	}
}

func sortByActivity(list []*models.SessionSummary) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastActivity.After(list[j].LastActivity)
	})
}

var _ Store = (*MemoryStore)(nil)
