package repository

import (
	"context"
	"sync"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/domain"
)

// MemoryRepository keeps principals in process. Used when no database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Principal
	byEmail map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Principal), byEmail: make(map[string]string)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	r.mu.RLock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	email := domain.NormalizeEmail(p.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrEmailTaken
	}
	cp := *p
	cp.Email = email
	r.byID[p.ID] = &cp
	r.byEmail[email] = p.ID
	return nil
}
