package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

const credentialSchema = `
CREATE TABLE IF NOT EXISTS ai_credentials (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL,
	secret       TEXT NOT NULL,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	usage_count  BIGINT NOT NULL DEFAULT 0,
	last_used_at TIMESTAMP NULL,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
)`

const credentialColumns = `id, name, provider, secret, is_active, usage_count, last_used_at, created_at, updated_at`

// SQLStore persists credentials in a relational database through sqlx.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore wraps an existing connection. Call Migrate before first use.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// OpenSQLStore connects, pings and bootstraps the schema.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serializes writes.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the credentials table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, credentialSchema); err != nil {
		return fmt.Errorf("failed to create credentials table: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// List returns matching credentials ordered by creation time.
func (s *SQLStore) List(ctx context.Context, filter Filter) ([]domain.Credential, error) {
	var where []string
	var args []interface{}

	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, string(filter.Provider))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = ?")
		args = append(args, true)
	}

	query := "SELECT " + credentialColumns + " FROM ai_credentials"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	creds := make([]domain.Credential, 0)
	if err := s.db.SelectContext(ctx, &creds, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

// Get retrieves a credential by id.
func (s *SQLStore) Get(ctx context.Context, id string) (domain.Credential, error) {
	var c domain.Credential
	query := s.db.Rebind("SELECT " + credentialColumns + " FROM ai_credentials WHERE id = ?")

	if err := s.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Credential{}, domain.ErrCredentialNotFound
		}
		return domain.Credential{}, fmt.Errorf("failed to get credential: %w", err)
	}
	return c, nil
}

// Create inserts c, assigning an id and timestamps when missing.
func (s *SQLStore) Create(ctx context.Context, c *domain.Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := s.db.Rebind(`
		INSERT INTO ai_credentials (` + credentialColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, string(c.Provider), c.Secret, c.IsActive,
		c.UsageCount, c.LastUsedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// Update applies patch inside a transaction.
func (s *SQLStore) Update(ctx context.Context, id string, patch domain.CredentialPatch) (domain.Credential, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current domain.Credential
	err = tx.GetContext(ctx, &current, tx.Rebind("SELECT "+credentialColumns+" FROM ai_credentials WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Credential{}, domain.ErrCredentialNotFound
		}
		return domain.Credential{}, fmt.Errorf("failed to get credential: %w", err)
	}

	updated := patch.Apply(current)
	updated.UpdatedAt = s.now().UTC()

	_, err = tx.ExecContext(ctx,
		tx.Rebind("UPDATE ai_credentials SET name = ?, secret = ?, is_active = ?, updated_at = ? WHERE id = ?"),
		updated.Name, updated.Secret, updated.IsActive, updated.UpdatedAt, id,
	)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to update credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Credential{}, fmt.Errorf("failed to commit credential update: %w", err)
	}
	return updated, nil
}

// Delete removes a credential by id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM ai_credentials WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return expectOneRow(res)
}

// RecordUsage increments usage_count in a single statement, so concurrent
// callers never lose an update.
func (s *SQLStore) RecordUsage(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE ai_credentials SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?"),
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record credential usage: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}
