package store

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

// backends returns one fresh instance of every CredentialStore implementation.
func backends(t *testing.T) map[string]CredentialStore {
	t.Helper()
	ctx := context.Background()

	sqlStore, err := OpenSQLStore(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore(ctx, RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { redisStore.Close() })

	return map[string]CredentialStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
		"redis":  redisStore,
	}
}

func fixture(name string, provider domain.ProviderType, active bool, createdAt time.Time) *domain.Credential {
	return &domain.Credential{
		Name:      name,
		Provider:  provider,
		Secret:    name + "-secret-value-000000",
		IsActive:  active,
		CreatedAt: createdAt,
	}
}

func TestCredentialStore_Contract(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			openai := fixture("openai-main", domain.ProviderOpenAI, true, base)
			google := fixture("google-main", domain.ProviderGoogle, true, base.Add(time.Second))
			anthropicOff := fixture("anthropic-off", domain.ProviderAnthropic, false, base.Add(2*time.Second))
			openaiBackup := fixture("openai-backup", domain.ProviderOpenAI, true, base.Add(3*time.Second))

			for _, c := range []*domain.Credential{openai, google, anthropicOff, openaiBackup} {
				require.NoError(t, s.Create(ctx, c))
				require.NotEmpty(t, c.ID)
			}

			all, err := s.List(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, []string{openai.ID, google.ID, anthropicOff.ID, openaiBackup.ID}, ids(all))

			active, err := s.List(ctx, Filter{ActiveOnly: true})
			require.NoError(t, err)
			assert.Equal(t, []string{openai.ID, google.ID, openaiBackup.ID}, ids(active))

			openaiOnly, err := s.List(ctx, Filter{Provider: domain.ProviderOpenAI, ActiveOnly: true})
			require.NoError(t, err)
			assert.Equal(t, []string{openai.ID, openaiBackup.ID}, ids(openaiOnly))

			got, err := s.Get(ctx, google.ID)
			require.NoError(t, err)
			assert.Equal(t, google.Secret, got.Secret)
			assert.Equal(t, domain.ProviderGoogle, got.Provider)
			assert.True(t, got.IsActive)
			assert.Nil(t, got.LastUsedAt)

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

			enable := true
			renamed := "anthropic-on"
			updated, err := s.Update(ctx, anthropicOff.ID, domain.CredentialPatch{Name: &renamed, IsActive: &enable})
			require.NoError(t, err)
			assert.Equal(t, "anthropic-on", updated.Name)
			assert.True(t, updated.IsActive)
			assert.Equal(t, anthropicOff.Secret, updated.Secret)

			_, err = s.Update(ctx, "missing", domain.CredentialPatch{Name: &renamed})
			assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

			usedAt := base.Add(time.Hour)
			require.NoError(t, s.RecordUsage(ctx, openai.ID, usedAt))
			got, err = s.Get(ctx, openai.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.UsageCount)
			require.NotNil(t, got.LastUsedAt)
			assert.True(t, usedAt.Equal(*got.LastUsedAt), "LastUsedAt = %v, want %v", got.LastUsedAt, usedAt)

			other, err := s.Get(ctx, openaiBackup.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), other.UsageCount)

			assert.ErrorIs(t, s.RecordUsage(ctx, "missing", usedAt), domain.ErrCredentialNotFound)

			require.NoError(t, s.Delete(ctx, google.ID))
			assert.ErrorIs(t, s.Delete(ctx, google.ID), domain.ErrCredentialNotFound)

			all, err = s.List(ctx, Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestCredentialStore_ConcurrentUsageIsAtomic(t *testing.T) {
	const workers = 25

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := fixture("shared", domain.ProviderOpenAI, true, time.Time{})
			require.NoError(t, s.Create(ctx, c))

			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					assert.NoError(t, s.RecordUsage(ctx, c.ID, time.Now()))
				}()
			}
			wg.Wait()

			got, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(workers), got.UsageCount)
		})
	}
}

func TestSeed_SkipsKnownSecrets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	seeds := []domain.Credential{
		*fixture("a", domain.ProviderOpenAI, true, time.Time{}),
		*fixture("b", domain.ProviderGoogle, true, time.Time{}),
	}

	n, err := Seed(ctx, s, seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Seed(ctx, s, seeds)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, _ := s.List(ctx, Filter{})
	assert.Len(t, all, 2)
}

func TestSeed_AppliesConfiguredChanges(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			seed := *fixture("primary", domain.ProviderOpenAI, true, time.Time{})
			n, err := Seed(ctx, s, []domain.Credential{seed})
			require.NoError(t, err)
			require.Equal(t, 1, n)

			renamed := seed
			renamed.Name = "primary-renamed"
			renamed.IsActive = false

			n, err = Seed(ctx, s, []domain.Credential{renamed})
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			all, err := s.List(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "primary-renamed", all[0].Name)
			assert.False(t, all[0].IsActive)

			unnamed := renamed
			unnamed.Name = ""
			_, err = Seed(ctx, s, []domain.Credential{unnamed})
			require.NoError(t, err)

			got, err := s.Get(ctx, all[0].ID)
			require.NoError(t, err)
			assert.Equal(t, "primary-renamed", got.Name)
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := fixture("copy", domain.ProviderOpenAI, true, time.Time{})
	require.NoError(t, s.Create(ctx, c))
	require.NoError(t, s.RecordUsage(ctx, c.ID, time.Now()))

	got, _ := s.Get(ctx, c.ID)
	*got.LastUsedAt = time.Time{}
	got.UsageCount = 99

	again, _ := s.Get(ctx, c.ID)
	assert.Equal(t, int64(1), again.UsageCount)
	assert.False(t, again.LastUsedAt.IsZero())
}

func TestSQLStore_ErrorPaths(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewSQLStore(sqlx.NewDb(mockDB, "sqlmock"))
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_credentials WHERE provider = ? AND is_active = ?")).
		WithArgs("openai", true).
		WillReturnError(assert.AnError)

	_, err = s.List(ctx, Filter{Provider: domain.ProviderOpenAI, ActiveOnly: true})
	assert.ErrorIs(t, err, assert.AnError)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ai_credentials SET usage_count = usage_count + 1")).
		WithArgs(sqlmock.AnyArg(), "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.RecordUsage(ctx, "gone", time.Now())
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ai_credentials WHERE id = ?")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Delete(ctx, "gone"), domain.ErrCredentialNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func ids(creds []domain.Credential) []string {
	out := make([]string, len(creds))
	for i, c := range creds {
		out[i] = c.ID
	}
	return out
}
