package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/backoff"
	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

var (
	_ repository.Store              = (*Store)(nil)
	_ repository.MetadataRepository = (*Repository)(nil)
)

// Store owns the pgx pool lifecycle for the relational backend.
type Store struct {
	url    string
	retry  backoff.Policy
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// NewStore creates an unconnected store handle; call Connect before use.
func NewStore(url string, retry backoff.Policy, logger *zap.Logger) *Store {
	return &Store{
		url:    url,
		retry:  retry,
		logger: logger,
	}
}

// Connect dials postgres with bounded exponential backoff.
func (s *Store) Connect(ctx context.Context) error {
	return s.retry.Retry(ctx, func(attempt int, delay time.Duration) error {
		s.logger.Info("store connect attempt",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		pool, err := pgxpool.New(ctx, s.url)
		if err != nil {
			s.logger.Warn("store connect failed", zap.Error(err))
			return fmt.Errorf("postgres: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			s.logger.Warn("store ping failed", zap.Error(err))
			return fmt.Errorf("postgres: ping: %w", err)
		}

		s.pool = pool
		s.logger.Info("store connected")
		return nil
	})
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres: not connected")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}

// Pool exposes the underlying pool to the repository.
func (s *Store) Pool() *pgxpool.Pool {
	if s.pool == nil {
		panic("postgres: Pool called before Connect")
	}
	return s.pool
}

// Repository is the relational metadata repository: one row per URL with the
// metadata block stored as jsonb, upserted via ON CONFLICT on the url key.
type Repository struct {
	store *Store
}

// NewRepository creates a repository over an established store connection.
func NewRepository(store *Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata_records (
			url             TEXT NOT NULL,
			status          TEXT NOT NULL,
			metadata        JSONB NOT NULL DEFAULT '{}'::jsonb,
			attempt_number  INT NOT NULL DEFAULT 0,
			error_msg       TEXT,
			last_attempt_at TIMESTAMPTZ,
			last_request_id TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_metadata_url ON metadata_records (url)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_created_at ON metadata_records (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.store.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure indexes: %w", err)
		}
	}
	return nil
}

func (r *Repository) EnsureRecord(ctx context.Context, url string, pctx domain.ProcessingContext) error {
	meta, err := json.Marshal(domain.EmptyMetadata())
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO metadata_records
			(url, status, metadata, attempt_number, error_msg, last_attempt_at, last_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $7)
		ON CONFLICT (url) DO UPDATE SET updated_at = EXCLUDED.updated_at`

	_, err = r.store.Pool().Exec(ctx, query,
		url, domain.StatusPending, meta, pctx.AttemptNumber, now, pctx.RequestID, now,
	)
	if err != nil {
		return fmt.Errorf("postgres: ensure record: %w", err)
	}
	return nil
}

func (r *Repository) MarkInProgress(ctx context.Context, url string, pctx domain.ProcessingContext) error {
	meta, err := json.Marshal(domain.EmptyMetadata())
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO metadata_records
			(url, status, metadata, attempt_number, error_msg, last_attempt_at, last_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $7)
		ON CONFLICT (url) DO UPDATE SET
			status          = EXCLUDED.status,
			attempt_number  = EXCLUDED.attempt_number,
			error_msg       = NULL,
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_request_id = EXCLUDED.last_request_id,
			updated_at      = EXCLUDED.updated_at`

	_, err = r.store.Pool().Exec(ctx, query,
		url, domain.StatusInProgress, meta, pctx.AttemptNumber, now, pctx.RequestID, now,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark in progress: %w", err)
	}
	return nil
}

func (r *Repository) MarkCompleted(ctx context.Context, url string, pctx domain.ProcessingContext, metadata domain.Metadata) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO metadata_records
			(url, status, metadata, attempt_number, error_msg, last_attempt_at, last_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $7)
		ON CONFLICT (url) DO UPDATE SET
			status          = EXCLUDED.status,
			metadata        = EXCLUDED.metadata,
			attempt_number  = EXCLUDED.attempt_number,
			error_msg       = NULL,
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_request_id = EXCLUDED.last_request_id,
			updated_at      = EXCLUDED.updated_at`

	_, err = r.store.Pool().Exec(ctx, query,
		url, domain.StatusCompleted, meta, pctx.AttemptNumber, now, pctx.RequestID, now,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark completed: %w", err)
	}
	return nil
}

func (r *Repository) MarkRetryableFailure(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) (int, error) {
	meta, err := json.Marshal(domain.EmptyMetadata())
	if err != nil {
		return pctx.AttemptNumber, fmt.Errorf("postgres: marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO metadata_records
			(url, status, metadata, attempt_number, error_msg, last_attempt_at, last_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (url) DO UPDATE SET
			status          = EXCLUDED.status,
			attempt_number  = EXCLUDED.attempt_number,
			error_msg       = EXCLUDED.error_msg,
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_request_id = EXCLUDED.last_request_id,
			updated_at      = EXCLUDED.updated_at
		RETURNING attempt_number`

	var stored int
	err = r.store.Pool().QueryRow(ctx, query,
		url, domain.StatusFailedRetryable, meta, pctx.AttemptNumber, errMsg, now, pctx.RequestID, now,
	).Scan(&stored)
	if err != nil {
		return pctx.AttemptNumber, fmt.Errorf("postgres: mark retryable failure: %w", err)
	}
	return stored, nil
}

func (r *Repository) MarkPermanentFailure(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) error {
	meta, err := json.Marshal(domain.EmptyMetadata())
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO metadata_records
			(url, status, metadata, attempt_number, error_msg, last_attempt_at, last_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (url) DO UPDATE SET
			status          = EXCLUDED.status,
			attempt_number  = EXCLUDED.attempt_number,
			error_msg       = EXCLUDED.error_msg,
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_request_id = EXCLUDED.last_request_id,
			updated_at      = EXCLUDED.updated_at`

	_, err = r.store.Pool().Exec(ctx, query,
		url, domain.StatusFailedPermanent, meta, pctx.AttemptNumber, errMsg, now, pctx.RequestID, now,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark permanent failure: %w", err)
	}
	return nil
}

func (r *Repository) GetByURL(ctx context.Context, url string) (*domain.Record, error) {
	query := `
		SELECT url, status, metadata, attempt_number, error_msg, last_attempt_at, last_request_id, created_at, updated_at
		FROM metadata_records
		WHERE url = $1`

	var (
		rec           domain.Record
		metaRaw       []byte
		errMsg        *string
		lastAttemptAt *time.Time
	)
	err := r.store.Pool().QueryRow(ctx, query, url).Scan(
		&rec.URL, &rec.Status, &metaRaw,
		&rec.Processing.AttemptNumber, &errMsg, &lastAttemptAt,
		&rec.Processing.LastRequestID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("postgres: get by url: %w", err)
	}

	if err := json.Unmarshal(metaRaw, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("postgres: decode metadata: %w", err)
	}
	if errMsg != nil {
		rec.Processing.ErrorMsg = *errMsg
	}
	if lastAttemptAt != nil {
		rec.Processing.LastAttemptAt = *lastAttemptAt
	}
	return &rec, nil
}
