package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
	"github.com/Pragya1904/HTTP-Inventory/internal/fetcher"
	"github.com/Pragya1904/HTTP-Inventory/internal/metrics"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

// Processor orchestrates one delivered message through its processing
// lifecycle: decode → ensure record → fetch → persist → ack/nack.
//
// maxRetries is the total number of fetch attempts across broker
// redeliveries, not "retries beyond the first". With maxRetries=3, attempts
// 1..3 run; the third failure is marked permanent and the message is acked.
type Processor struct {
	repo          repository.MetadataRepository
	fetcher       fetcher.Fetcher
	maxRetries    int
	maxPageSource int
	logger        *zap.Logger
}

// NewProcessor creates the processing service.
func NewProcessor(repo repository.MetadataRepository, f fetcher.Fetcher, maxRetries, maxPageSource int, logger *zap.Logger) *Processor {
	return &Processor{
		repo:          repo,
		fetcher:       f,
		maxRetries:    maxRetries,
		maxPageSource: maxPageSource,
		logger:        logger,
	}
}

// ProcessMessage runs the state machine for one delivery. A nil return means
// the message was acked or nacked here; a non-nil return means it was NOT
// acknowledged and the caller must reject it without requeue.
func (p *Processor) ProcessMessage(ctx context.Context, msg domain.IncomingMessage) error {
	qm, err := decodeMessage(msg.Body())
	if err != nil {
		return err
	}
	url := qm.URL

	pctx := domain.ProcessingContext{
		RequestID: qm.RequestID,
		StartedAt: time.Now().UTC(),
	}
	p.logger.Info("message received",
		zap.String("url", url),
		zap.String("request_id", qm.RequestID),
	)

	if err := p.repo.EnsureRecord(ctx, url, pctx); err != nil {
		return fmt.Errorf("ensure record: %w", err)
	}
	pctx.AttemptNumber, err = p.attemptNumber(ctx, url)
	if err != nil {
		return fmt.Errorf("read attempt number: %w", err)
	}
	if err := p.repo.MarkInProgress(ctx, url, pctx); err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}

	start := time.Now()
	result, fetchErr := p.fetcher.Fetch(ctx, url)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if fetchErr == nil {
		return p.completeSuccess(ctx, url, pctx, msg, result)
	}
	return p.completeFailure(ctx, url, pctx, msg, fetchErr)
}

func (p *Processor) completeSuccess(ctx context.Context, url string, pctx domain.ProcessingContext, msg domain.IncomingMessage, result *domain.FetchResult) error {
	result = p.truncatePageSource(result)

	meta := domain.Metadata{
		Headers:           result.Headers,
		Cookies:           result.Cookies,
		PageSource:        result.PageSource,
		StatusCode:        result.StatusCode,
		FinalURL:          result.FinalURL,
		AdditionalDetails: result.AdditionalDetails,
	}
	if len(meta.AdditionalDetails) == 0 {
		meta.AdditionalDetails = nil
	}

	if err := p.repo.MarkCompleted(ctx, url, pctx, meta); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if err := msg.Ack(); err != nil {
		p.logger.Error("ack failed", zap.String("url", url), zap.Error(err))
	}
	metrics.FetchesTotal.WithLabelValues("completed").Inc()

	status, attempts := p.finalState(ctx, url)
	p.logger.Info("metadata persisted",
		zap.String("url", url),
		zap.String("request_id", pctx.RequestID),
		zap.String("status", string(status)),
		zap.Int("attempt_number", attempts),
	)
	return nil
}

func (p *Processor) completeFailure(ctx context.Context, url string, pctx domain.ProcessingContext, msg domain.IncomingMessage, fetchErr error) error {
	errText := fetchErr.Error()

	if !domain.IsRetryableFetch(fetchErr) {
		if err := p.repo.MarkPermanentFailure(ctx, url, pctx, errText); err != nil {
			return fmt.Errorf("mark permanent failure: %w", err)
		}
		if err := msg.Ack(); err != nil {
			p.logger.Error("ack failed", zap.String("url", url), zap.Error(err))
		}
		metrics.FetchesTotal.WithLabelValues("permanent_failure").Inc()
		status, attempts := p.finalState(ctx, url)
		p.logger.Warn("metadata permanent failure",
			zap.String("url", url),
			zap.String("request_id", pctx.RequestID),
			zap.String("status", string(status)),
			zap.Int("attempt_number", attempts),
			zap.String("error", errText),
		)
		return nil
	}

	nextAttempt := pctx.AttemptNumber + 1
	ctxNext := pctx
	ctxNext.AttemptNumber = nextAttempt

	if _, err := p.repo.MarkRetryableFailure(ctx, url, ctxNext, errText); err != nil {
		return fmt.Errorf("mark retryable failure: %w", err)
	}

	if nextAttempt >= p.maxRetries {
		if err := p.repo.MarkPermanentFailure(ctx, url, ctxNext, errText); err != nil {
			return fmt.Errorf("mark permanent failure: %w", err)
		}
		if err := msg.Ack(); err != nil {
			p.logger.Error("ack failed", zap.String("url", url), zap.Error(err))
		}
		metrics.FetchesTotal.WithLabelValues("permanent_failure").Inc()
		status, attempts := p.finalState(ctx, url)
		p.logger.Warn("metadata retries exhausted",
			zap.String("url", url),
			zap.String("request_id", pctx.RequestID),
			zap.String("status", string(status)),
			zap.Int("attempt_number", attempts),
			zap.String("error", errText),
		)
		return nil
	}

	if err := msg.Nack(true); err != nil {
		p.logger.Error("nack failed", zap.String("url", url), zap.Error(err))
	}
	metrics.FetchesTotal.WithLabelValues("retryable_failure").Inc()
	p.logger.Warn("metadata retryable failure",
		zap.String("url", url),
		zap.String("request_id", pctx.RequestID),
		zap.Int("attempt_number", nextAttempt),
		zap.String("error", errText),
	)
	return nil
}

// truncatePageSource caps the stored body and records the original length in
// a fresh additional-details map, leaving the fetch result's map untouched.
// A non-positive cap disables truncation.
func (p *Processor) truncatePageSource(result *domain.FetchResult) *domain.FetchResult {
	if p.maxPageSource <= 0 || len(result.PageSource) <= p.maxPageSource {
		return result
	}

	details := make(map[string]any, len(result.AdditionalDetails)+2)
	for k, v := range result.AdditionalDetails {
		details[k] = v
	}
	details["truncated"] = true
	details["original_length"] = len(result.PageSource)

	truncated := *result
	truncated.PageSource = result.PageSource[:p.maxPageSource]
	truncated.AdditionalDetails = details
	return &truncated
}

func (p *Processor) attemptNumber(ctx context.Context, url string) (int, error) {
	rec, err := p.repo.GetByURL(ctx, url)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return rec.Processing.AttemptNumber, nil
}

// finalState reads the record back for terminal-state logging. Read failures
// degrade to UNKNOWN; they never fail the handler.
func (p *Processor) finalState(ctx context.Context, url string) (domain.Status, int) {
	rec, err := p.repo.GetByURL(ctx, url)
	if err != nil {
		return domain.StatusUnknown, 0
	}
	return rec.Status, rec.Processing.AttemptNumber
}

func decodeMessage(body []byte) (*domain.QueueMessage, error) {
	var raw struct {
		URL       string `json:"url"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	raw.URL = strings.TrimSpace(raw.URL)
	if raw.URL == "" {
		return nil, fmt.Errorf("%w: missing required field: url", domain.ErrMalformedMessage)
	}
	return &domain.QueueMessage{
		URL:       raw.URL,
		RequestID: strings.TrimSpace(raw.RequestID),
	}, nil
}
