package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
)

// MemoryStore is an in-process Store. All operations take one mutex, so
// AtomicRotate is trivially a compare-and-set.
type MemoryStore struct {
	mu          sync.Mutex
	byID        map[string]*domain.Session
	byHash      map[string]string
	byPrincipal map[string]map[string]struct{}
	now         func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*domain.Session),
		byHash:      make(map[string]string),
		byPrincipal: make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

// WithClock sets the clock used to stamp RevokedAt. Intended for tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(s)
	return nil
}

func (m *MemoryStore) insertLocked(s *domain.Session) {
	cp := *s
	m.byID[s.ID] = &cp
	if s.RefreshTokenHash != "" {
		m.byHash[s.RefreshTokenHash] = s.ID
	}
	set, ok := m.byPrincipal[s.PrincipalID]
	if !ok {
		set = make(map[string]struct{})
		m.byPrincipal[s.PrincipalID] = set
	}
	set[s.ID] = struct{}{}
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (m *MemoryStore) FindByHash(ctx context.Context, refreshTokenHash string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHash[refreshTokenHash]
	if !ok {
		return nil, nil
	}
	return copySession(m.byID[id]), nil
}

func (m *MemoryStore) AtomicRotate(ctx context.Context, oldHash string, next *domain.Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHash[oldHash]
	if !ok {
		return false, nil
	}
	cur := m.byID[id]
	if cur.Status != domain.StatusActive {
		return false, nil
	}
	at := next.CreatedAt
	cur.Status = domain.StatusRotated
	cur.LastRefreshedAt = &at
	cur.ReplacedBy = next.ID
	m.insertLocked(next)
	return true, nil
}

func (m *MemoryStore) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		m.revokeLocked(s)
	}
	return nil
}

func (m *MemoryStore) revokeLocked(s *domain.Session) bool {
	if s.Status == domain.StatusRevoked {
		return false
	}
	at := m.now().UTC()
	s.Status = domain.StatusRevoked
	s.RevokedAt = &at
	return true
}

func (m *MemoryStore) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.byPrincipal[principalID] {
		if m.revokeLocked(m.byID[id]) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for id := range m.byPrincipal[principalID] {
		if s := m.byID[id]; s.Status == domain.StatusActive {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func copySession(s *domain.Session) *domain.Session {
	cp := *s
	if s.LastRefreshedAt != nil {
		t := *s.LastRefreshedAt
		cp.LastRefreshedAt = &t
	}
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
