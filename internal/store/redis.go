package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

// DefaultRedisKeyPrefix namespaces every key the Redis store writes.
const DefaultRedisKeyPrefix = "snsmon:ai:"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps one hash per credential plus a sorted-set index by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	return &RedisStore{client: client, prefix: prefix, now: time.Now}, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "credentials"
}

func (s *RedisStore) credentialKey(id string) string {
	return s.prefix + "credential:" + id
}

// List returns matching credentials ordered by creation time.
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]domain.Credential, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read credential index: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.credentialKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	creds := make([]domain.Credential, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue // index entry outlived its hash
		}
		c, err := decodeCredential(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if filter.Matches(c) {
			creds = append(creds, c)
		}
	}
	return creds, nil
}

// Get retrieves a credential by id.
func (s *RedisStore) Get(ctx context.Context, id string) (domain.Credential, error) {
	fields, err := s.client.HGetAll(ctx, s.credentialKey(id)).Result()
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to get credential: %w", err)
	}
	if len(fields) == 0 {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	return decodeCredential(id, fields)
}

// Create writes the hash and index entry in one transaction.
func (s *RedisStore) Create(ctx context.Context, c *domain.Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.credentialKey(c.ID), encodeCredential(*c))
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(c.CreatedAt.UnixMicro()),
			Member: c.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// Update applies patch under WATCH so concurrent edits retry instead of clobbering.
func (s *RedisStore) Update(ctx context.Context, id string, patch domain.CredentialPatch) (domain.Credential, error) {
	key := s.credentialKey(id)
	var updated domain.Credential

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return domain.ErrCredentialNotFound
		}
		current, err := decodeCredential(id, fields)
		if err != nil {
			return err
		}

		updated = patch.Apply(current)
		updated.UpdatedAt = s.now().UTC()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"name", updated.Name,
				"secret", updated.Secret,
				"is_active", formatBool(updated.IsActive),
				"updated_at", updated.UpdatedAt.Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, key); err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return domain.Credential{}, err
		}
		return domain.Credential{}, fmt.Errorf("failed to update credential: %w", err)
	}
	return updated, nil
}

// Delete removes the hash and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.credentialKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

// recordUsageScript increments the counter only if the credential still exists,
// so a concurrent delete cannot leave a half-populated hash behind.
var recordUsageScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HINCRBY", KEYS[1], "usage_count", 1)
redis.call("HSET", KEYS[1], "last_used_at", ARGV[1])
return 1
`)

// RecordUsage runs as a single server-side script, so concurrent successes are all counted.
func (s *RedisStore) RecordUsage(ctx context.Context, id string, at time.Time) error {
	n, err := recordUsageScript.Run(ctx, s.client,
		[]string{s.credentialKey(id)},
		at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to record credential usage: %w", err)
	}
	if n == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

const maxWatchRetries = 10

func (s *RedisStore) watch(ctx context.Context, txf func(*redis.Tx) error, key string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func encodeCredential(c domain.Credential) map[string]interface{} {
	fields := map[string]interface{}{
		"name":         c.Name,
		"provider":     string(c.Provider),
		"secret":       c.Secret,
		"is_active":    formatBool(c.IsActive),
		"usage_count":  c.UsageCount,
		"last_used_at": "",
		"created_at":   c.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   c.UpdatedAt.Format(time.RFC3339Nano),
	}
	if c.LastUsedAt != nil {
		fields["last_used_at"] = c.LastUsedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func decodeCredential(id string, fields map[string]string) (domain.Credential, error) {
	c := domain.Credential{
		ID:       id,
		Name:     fields["name"],
		Provider: domain.ProviderType(fields["provider"]),
		Secret:   fields["secret"],
		IsActive: fields["is_active"] == "1",
	}

	var err error
	if v := fields["usage_count"]; v != "" {
		if c.UsageCount, err = strconv.ParseInt(v, 10, 64); err != nil {
			return c, fmt.Errorf("credential %s: bad usage_count: %w", id, err)
		}
	}
	if v := fields["last_used_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return c, fmt.Errorf("credential %s: bad last_used_at: %w", id, err)
		}
		c.LastUsedAt = &t
	}
	if c.CreatedAt, err = parseOptionalTime(fields["created_at"]); err != nil {
		return c, fmt.Errorf("credential %s: bad created_at: %w", id, err)
	}
	if c.UpdatedAt, err = parseOptionalTime(fields["updated_at"]); err != nil {
		return c, fmt.Errorf("credential %s: bad updated_at: %w", id, err)
	}
	return c, nil
}

func parseOptionalTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
