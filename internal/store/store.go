// Package store provides credential repositories.
// The orchestrator depends only on CredentialStore; backends are swappable.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Provider   domain.ProviderType
	ActiveOnly bool
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c domain.Credential) bool {
	if f.Provider != "" && c.Provider != f.Provider {
		return false
	}
	if f.ActiveOnly && !c.IsActive {
		return false
	}
	return true
}

// CredentialStore is the repository the orchestrator and the admin API use.
// List returns credentials in creation order.
type CredentialStore interface {
	List(ctx context.Context, filter Filter) ([]domain.Credential, error)
	Get(ctx context.Context, id string) (domain.Credential, error)
	Create(ctx context.Context, c *domain.Credential) error
	Update(ctx context.Context, id string, patch domain.CredentialPatch) (domain.Credential, error)
	Delete(ctx context.Context, id string) error

	// RecordUsage atomically increments the usage counter and sets LastUsedAt.
	RecordUsage(ctx context.Context, id string, at time.Time) error
}

// Seed creates every credential whose secret is not yet stored for its provider.
// A stored match takes the configured name and active flag, so configuration
// wins over admin edits on restart. It returns the number of credentials created.
func Seed(ctx context.Context, s CredentialStore, creds []domain.Credential) (int, error) {
	existing, err := s.List(ctx, Filter{})
	if err != nil {
		return 0, err
	}
	known := make(map[string]domain.Credential, len(existing))
	for _, c := range existing {
		known[string(c.Provider)+"\x00"+c.Secret] = c
	}

	created := 0
	for i := range creds {
		c := creds[i]
		k := string(c.Provider) + "\x00" + c.Secret
		if stored, ok := known[k]; ok {
			patch := seedPatch(stored, c)
			if patch.IsEmpty() {
				continue
			}
			updated, err := s.Update(ctx, stored.ID, patch)
			if err != nil {
				return created, fmt.Errorf("failed to reseed credential %q: %w", stored.Name, err)
			}
			known[k] = updated
			continue
		}
		if err := s.Create(ctx, &c); err != nil {
			return created, fmt.Errorf("failed to seed credential %q: %w", c.Name, err)
		}
		known[k] = c
		created++
	}
	return created, nil
}

// seedPatch lists the configured fields that differ from the stored credential.
// An empty configured name leaves the stored one alone.
func seedPatch(stored, configured domain.Credential) domain.CredentialPatch {
	var patch domain.CredentialPatch
	if configured.Name != "" && configured.Name != stored.Name {
		patch.Name = &configured.Name
	}
	if configured.IsActive != stored.IsActive {
		patch.IsActive = &configured.IsActive
	}
	return patch
}
