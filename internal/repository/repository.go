package repository

import (
	"context"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

// MetadataRepository persists metadata records with upsert-by-URL semantics.
// Implementations must be safe for concurrent use; every transition is an
// idempotent full-document upsert keyed by URL.
type MetadataRepository interface {
	// EnsureIndexes creates the unique url index and the created_at index.
	// Infrastructure bootstrap; safe to call repeatedly.
	EnsureIndexes(ctx context.Context) error

	// EnsureRecord creates a PENDING stub if no record exists for url;
	// otherwise it only bumps updated_at.
	EnsureRecord(ctx context.Context, url string, pctx domain.ProcessingContext) error

	// MarkInProgress overwrites the status regardless of the prior state and
	// records the attempt context.
	MarkInProgress(ctx context.Context, url string, pctx domain.ProcessingContext) error

	// MarkCompleted writes the full metadata block and the COMPLETED status.
	MarkCompleted(ctx context.Context, url string, pctx domain.ProcessingContext, meta domain.Metadata) error

	// MarkRetryableFailure records a retryable failure and returns the
	// attempt number as stored after the write.
	MarkRetryableFailure(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) (int, error)

	// MarkPermanentFailure records a terminal failure.
	MarkPermanentFailure(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) error

	// GetByURL returns the record for url, or domain.ErrRecordNotFound.
	GetByURL(ctx context.Context, url string) (*domain.Record, error)
}

// Store is the connection lifecycle the repositories hang off. The readiness
// probe pings it; composition owns Connect/Close ordering.
type Store interface {
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
