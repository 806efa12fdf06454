// Package postgres provides a PostgreSQL PrincipalStore built on pgx/v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/toolgate/pkg/storage"
)

// Store is a PostgreSQL-backed PrincipalStore.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ storage.PrincipalStore = (*Store)(nil)

// New connects to PostgreSQL and, if MigrateOnStart is set, applies the
// embedded schema migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, timeout: cfg.QueryTimeout}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// LookupPrincipal fetches the principal for subject.
func (s *Store) LookupPrincipal(ctx context.Context, subject string) (*storage.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p storage.Principal
	err := s.pool.QueryRow(ctx, `
		SELECT subject, tenant_id, service_tier, disabled, updated_at
		FROM principals
		WHERE subject = $1
	`, subject).Scan(&p.Subject, &p.TenantID, &p.ServiceTier, &p.Disabled, &p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	return &p, nil
}

// UpsertPrincipal inserts or replaces a principal.
func (s *Store) UpsertPrincipal(ctx context.Context, p storage.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO principals (subject, tenant_id, service_tier, disabled, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (subject) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			service_tier = EXCLUDED.service_tier,
			disabled = EXCLUDED.disabled,
			updated_at = now()
	`, p.Subject, p.TenantID, p.ServiceTier, p.Disabled)
	if err != nil {
		return fmt.Errorf("upserting principal: %w", err)
	}
	return nil
}

// SetDisabled toggles the disabled flag. Returns ErrNotFound if the
// subject does not exist.
func (s *Store) SetDisabled(ctx context.Context, subject string, disabled bool) error {
	result, err := s.pool.Exec(ctx,
		"UPDATE principals SET disabled = $1, updated_at = now() WHERE subject = $2",
		disabled, subject,
	)
	if err != nil {
		return fmt.Errorf("updating principal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeletePrincipal removes a principal. Returns ErrNotFound if it does not exist.
func (s *Store) DeletePrincipal(ctx context.Context, subject string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM principals WHERE subject = $1", subject)
	if err != nil {
		return fmt.Errorf("deleting principal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
