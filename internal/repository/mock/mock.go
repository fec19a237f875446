package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

var _ repository.MetadataRepository = (*MetadataRepository)(nil)

// Transition records one repository write for test assertions.
type Transition struct {
	Op      string
	URL     string
	Context domain.ProcessingContext
	ErrMsg  string
}

// MetadataRepository is an in-memory test double with upsert-by-URL semantics
// mirroring the real backends.
type MetadataRepository struct {
	mu      sync.Mutex
	records map[string]*domain.Record

	// Recorded calls for assertions.
	Transitions []Transition

	// Hook functions for injecting errors.
	EnsureRecordFn         func(ctx context.Context, url string, pctx domain.ProcessingContext) error
	MarkInProgressFn       func(ctx context.Context, url string, pctx domain.ProcessingContext) error
	MarkCompletedFn        func(ctx context.Context, url string, pctx domain.ProcessingContext, meta domain.Metadata) error
	MarkRetryableFailureFn func(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) (int, error)
	MarkPermanentFailureFn func(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) error
	GetByURLFn             func(ctx context.Context, url string) (*domain.Record, error)
}

// NewMetadataRepository creates an empty mock repository.
func NewMetadataRepository() *MetadataRepository {
	return &MetadataRepository{records: make(map[string]*domain.Record)}
}

func (m *MetadataRepository) record(op, url string, pctx domain.ProcessingContext, errMsg string) {
	m.Transitions = append(m.Transitions, Transition{Op: op, URL: url, Context: pctx, ErrMsg: errMsg})
}

func (m *MetadataRepository) upsert(url string) *domain.Record {
	rec, ok := m.records[url]
	if !ok {
		now := time.Now().UTC()
		rec = &domain.Record{
			URL:       url,
			Status:    domain.StatusPending,
			Metadata:  domain.EmptyMetadata(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.records[url] = rec
	}
	return rec
}

func (m *MetadataRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (m *MetadataRepository) EnsureRecord(ctx context.Context, url string, pctx domain.ProcessingContext) error {
	if m.EnsureRecordFn != nil {
		return m.EnsureRecordFn(ctx, url, pctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ensure_record", url, pctx, "")
	now := time.Now().UTC()
	if rec, ok := m.records[url]; ok {
		rec.UpdatedAt = now
		return nil
	}
	rec := m.upsert(url)
	rec.Processing = domain.Processing{
		AttemptNumber: pctx.AttemptNumber,
		LastAttemptAt: now,
		LastRequestID: pctx.RequestID,
	}
	return nil
}

func (m *MetadataRepository) MarkInProgress(ctx context.Context, url string, pctx domain.ProcessingContext) error {
	if m.MarkInProgressFn != nil {
		return m.MarkInProgressFn(ctx, url, pctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("mark_in_progress", url, pctx, "")
	now := time.Now().UTC()
	rec := m.upsert(url)
	rec.Status = domain.StatusInProgress
	rec.Processing.AttemptNumber = pctx.AttemptNumber
	rec.Processing.ErrorMsg = ""
	rec.Processing.LastAttemptAt = now
	rec.Processing.LastRequestID = pctx.RequestID
	rec.UpdatedAt = now
	return nil
}

func (m *MetadataRepository) MarkCompleted(ctx context.Context, url string, pctx domain.ProcessingContext, meta domain.Metadata) error {
	if m.MarkCompletedFn != nil {
		return m.MarkCompletedFn(ctx, url, pctx, meta)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("mark_completed", url, pctx, "")
	now := time.Now().UTC()
	rec := m.upsert(url)
	rec.Status = domain.StatusCompleted
	rec.Metadata = meta
	rec.Processing.AttemptNumber = pctx.AttemptNumber
	rec.Processing.ErrorMsg = ""
	rec.Processing.LastAttemptAt = now
	rec.Processing.LastRequestID = pctx.RequestID
	rec.UpdatedAt = now
	return nil
}

func (m *MetadataRepository) MarkRetryableFailure(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) (int, error) {
	if m.MarkRetryableFailureFn != nil {
		return m.MarkRetryableFailureFn(ctx, url, pctx, errMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("mark_retryable_failure", url, pctx, errMsg)
	now := time.Now().UTC()
	rec := m.upsert(url)
	rec.Status = domain.StatusFailedRetryable
	rec.Processing.AttemptNumber = pctx.AttemptNumber
	rec.Processing.ErrorMsg = errMsg
	rec.Processing.LastAttemptAt = now
	rec.Processing.LastRequestID = pctx.RequestID
	rec.UpdatedAt = now
	return rec.Processing.AttemptNumber, nil
}

func (m *MetadataRepository) MarkPermanentFailure(ctx context.Context, url string, pctx domain.ProcessingContext, errMsg string) error {
	if m.MarkPermanentFailureFn != nil {
		return m.MarkPermanentFailureFn(ctx, url, pctx, errMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("mark_permanent_failure", url, pctx, errMsg)
	now := time.Now().UTC()
	rec := m.upsert(url)
	rec.Status = domain.StatusFailedPermanent
	rec.Processing.AttemptNumber = pctx.AttemptNumber
	rec.Processing.ErrorMsg = errMsg
	rec.Processing.LastAttemptAt = now
	rec.Processing.LastRequestID = pctx.RequestID
	rec.UpdatedAt = now
	return nil
}

func (m *MetadataRepository) GetByURL(ctx context.Context, url string) (*domain.Record, error) {
	if m.GetByURLFn != nil {
		return m.GetByURLFn(ctx, url)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[url]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

// Put seeds a record directly (for test setup).
func (m *MetadataRepository) Put(rec *domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.URL] = rec
}

// Get returns the stored record without the not-found error (for assertions).
func (m *MetadataRepository) Get(url string) *domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[url]
}
