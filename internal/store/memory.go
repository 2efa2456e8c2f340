package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

// MemoryStore keeps credentials in a mutex-guarded slice.
type MemoryStore struct {
	mu    sync.RWMutex
	creds []domain.Credential
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// List returns copies of matching credentials in creation order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Credential, 0, len(s.creds))
	for _, c := range s.creds {
		if filter.Matches(c) {
			result = append(result, copyCredential(c))
		}
	}
	return result, nil
}

// Get returns a copy of the credential with id.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	return copyCredential(s.creds[i]), nil
}

// Create stores c, assigning an id and timestamps when missing.
func (s *MemoryStore) Create(_ context.Context, c *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.creds = append(s.creds, copyCredential(*c))
	return nil
}

// Update applies patch to the credential with id.
func (s *MemoryStore) Update(_ context.Context, id string, patch domain.CredentialPatch) (domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	updated := patch.Apply(s.creds[i])
	updated.UpdatedAt = s.now()
	s.creds[i] = updated
	return copyCredential(updated), nil
}

// Delete removes the credential with id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.ErrCredentialNotFound
	}
	s.creds = append(s.creds[:i], s.creds[i+1:]...)
	return nil
}

// RecordUsage increments the counter under the write lock.
func (s *MemoryStore) RecordUsage(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.ErrCredentialNotFound
	}
	s.creds[i].UsageCount++
	usedAt := at
	s.creds[i].LastUsedAt = &usedAt
	return nil
}

// indexOf must be called with s.mu held.
func (s *MemoryStore) indexOf(id string) int {
	for i := range s.creds {
		if s.creds[i].ID == id {
			return i
		}
	}
	return -1
}

func copyCredential(c domain.Credential) domain.Credential {
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		c.LastUsedAt = &t
	}
	return c
}
