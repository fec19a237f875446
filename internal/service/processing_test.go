package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository/mock"
	"github.com/Pragya1904/HTTP-Inventory/internal/service"
)

// ---- test doubles ----

type fakeFetcher struct {
	FetchFn func(ctx context.Context, url string) (*domain.FetchResult, error)

	FetchCalls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*domain.FetchResult, error) {
	f.FetchCalls = append(f.FetchCalls, url)
	if f.FetchFn != nil {
		return f.FetchFn(ctx, url)
	}
	return &domain.FetchResult{
		Headers:           map[string]string{"Content-Type": "text/html"},
		Cookies:           map[string]string{"session": "abc"},
		PageSource:        "<html/>",
		StatusCode:        200,
		FinalURL:          url,
		AdditionalDetails: map[string]any{},
	}, nil
}

func (f *fakeFetcher) Close() {}

type fakeMessage struct {
	body []byte

	Acks    int
	Nacks   []bool
	Rejects int
}

func (m *fakeMessage) Body() []byte { return m.body }

func (m *fakeMessage) Ack() error {
	m.Acks++
	return nil
}

func (m *fakeMessage) Nack(requeue bool) error {
	m.Nacks = append(m.Nacks, requeue)
	return nil
}

func (m *fakeMessage) Reject() error {
	m.Rejects++
	return nil
}

func messageFor(url, requestID string) *fakeMessage {
	return &fakeMessage{
		body: []byte(fmt.Sprintf(`{"url":%q,"request_id":%q,"requested_at":"2024-06-01T12:00:00Z"}`, url, requestID)),
	}
}

func newProcessor(repo *mock.MetadataRepository, f *fakeFetcher, maxRetries, maxPageSource int) *service.Processor {
	return service.NewProcessor(repo, f, maxRetries, maxPageSource, zap.NewNop())
}

// ---- tests ----

func TestProcessMessage_Success(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{}
	proc := newProcessor(repo, f, 3, 0)

	msg := messageFor("https://example.com", "req-1")
	if err := proc.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Acks != 1 {
		t.Errorf("expected 1 ack, got %d", msg.Acks)
	}
	if len(msg.Nacks) != 0 {
		t.Errorf("expected no nacks, got %v", msg.Nacks)
	}

	rec := repo.Get("https://example.com")
	if rec == nil {
		t.Fatal("expected record to exist")
	}
	if rec.Status != domain.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", rec.Status)
	}
	if rec.Metadata.FinalURL != "https://example.com" {
		t.Errorf("expected non-empty final_url, got %q", rec.Metadata.FinalURL)
	}
	if rec.Processing.LastRequestID != "req-1" {
		t.Errorf("expected last_request_id req-1, got %q", rec.Processing.LastRequestID)
	}

	// Transition order: ensure_record → mark_in_progress → mark_completed.
	ops := make([]string, 0, len(repo.Transitions))
	for _, tr := range repo.Transitions {
		ops = append(ops, tr.Op)
	}
	want := []string{"ensure_record", "mark_in_progress", "mark_completed"}
	if strings.Join(ops, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected transitions: %v", ops)
	}
}

func TestProcessMessage_Truncation(t *testing.T) {
	repo := mock.NewMetadataRepository()
	body := strings.Repeat("x", 500)
	f := &fakeFetcher{
		FetchFn: func(ctx context.Context, url string) (*domain.FetchResult, error) {
			return &domain.FetchResult{
				Headers:           map[string]string{},
				Cookies:           map[string]string{},
				PageSource:        body,
				StatusCode:        200,
				FinalURL:          url,
				AdditionalDetails: map[string]any{},
			}, nil
		},
	}
	proc := newProcessor(repo, f, 3, 300)

	msg := messageFor("https://example.com/big", "req-2")
	if err := proc.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := repo.Get("https://example.com/big")
	if rec == nil {
		t.Fatal("expected record to exist")
	}
	if got := len(rec.Metadata.PageSource); got != 300 {
		t.Errorf("expected page_source truncated to 300 bytes, got %d", got)
	}
	details := rec.Metadata.AdditionalDetails
	if details == nil {
		t.Fatal("expected additional_details on truncated record")
	}
	if truncated, _ := details["truncated"].(bool); !truncated {
		t.Errorf("expected truncated=true, got %v", details["truncated"])
	}
	if origLen, _ := details["original_length"].(int); origLen != 500 {
		t.Errorf("expected original_length=500, got %v", details["original_length"])
	}
}

func TestProcessMessage_TruncationDisabled(t *testing.T) {
	repo := mock.NewMetadataRepository()
	body := strings.Repeat("x", 500)
	f := &fakeFetcher{
		FetchFn: func(ctx context.Context, url string) (*domain.FetchResult, error) {
			return &domain.FetchResult{
				Headers:    map[string]string{},
				Cookies:    map[string]string{},
				PageSource: body,
				StatusCode: 200,
				FinalURL:   url,
			}, nil
		},
	}
	proc := newProcessor(repo, f, 3, 0)

	msg := messageFor("https://example.com/big", "req-3")
	if err := proc.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := repo.Get("https://example.com/big")
	if got := len(rec.Metadata.PageSource); got != 500 {
		t.Errorf("expected full page_source with truncation disabled, got %d bytes", got)
	}
	if rec.Metadata.AdditionalDetails != nil {
		t.Errorf("expected no additional_details, got %v", rec.Metadata.AdditionalDetails)
	}
}

func TestProcessMessage_RetryableFailure_Nacks(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{
		FetchFn: func(ctx context.Context, url string) (*domain.FetchResult, error) {
			return nil, fmt.Errorf("%w: timeout while fetching %s", domain.ErrFetchTimeout, url)
		},
	}
	proc := newProcessor(repo, f, 3, 0)

	msg := messageFor("https://example.com", "req-4")
	if err := proc.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Acks != 0 {
		t.Errorf("expected no ack, got %d", msg.Acks)
	}
	if len(msg.Nacks) != 1 || !msg.Nacks[0] {
		t.Errorf("expected one nack with requeue=true, got %v", msg.Nacks)
	}

	rec := repo.Get("https://example.com")
	if rec.Status != domain.StatusFailedRetryable {
		t.Errorf("expected FAILED_RETRYABLE, got %s", rec.Status)
	}
	if rec.Processing.AttemptNumber != 1 {
		t.Errorf("expected attempt_number 1, got %d", rec.Processing.AttemptNumber)
	}
	if rec.Processing.ErrorMsg == "" {
		t.Error("expected error_msg to be recorded")
	}
}

func TestProcessMessage_RetryExhaustion(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{
		FetchFn: func(ctx context.Context, url string) (*domain.FetchResult, error) {
			return nil, fmt.Errorf("%w: connection refused for %s", domain.ErrFetchError, url)
		},
	}
	// max_retries counts total attempts: with 2, the second delivery is final.
	proc := newProcessor(repo, f, 2, 0)

	first := messageFor("https://example.com", "req-5")
	if err := proc.ProcessMessage(context.Background(), first); err != nil {
		t.Fatalf("unexpected error on first delivery: %v", err)
	}
	if len(first.Nacks) != 1 || !first.Nacks[0] {
		t.Fatalf("expected first delivery nacked with requeue, got %v", first.Nacks)
	}

	second := messageFor("https://example.com", "req-5")
	if err := proc.ProcessMessage(context.Background(), second); err != nil {
		t.Fatalf("unexpected error on second delivery: %v", err)
	}
	if second.Acks != 1 {
		t.Errorf("expected final delivery acked, got %d acks", second.Acks)
	}
	if len(second.Nacks) != 0 {
		t.Errorf("expected no nack on final delivery, got %v", second.Nacks)
	}

	rec := repo.Get("https://example.com")
	if rec.Status != domain.StatusFailedPermanent {
		t.Errorf("expected FAILED_PERMANENT, got %s", rec.Status)
	}
	if rec.Processing.AttemptNumber != 2 {
		t.Errorf("expected attempt_number 2, got %d", rec.Processing.AttemptNumber)
	}
	if len(f.FetchCalls) != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", len(f.FetchCalls))
	}
}

func TestProcessMessage_AttemptNumberMonotone(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{
		FetchFn: func(ctx context.Context, url string) (*domain.FetchResult, error) {
			return nil, fmt.Errorf("%w: flaky", domain.ErrFetchError)
		},
	}
	proc := newProcessor(repo, f, 5, 0)

	last := -1
	for i := 0; i < 4; i++ {
		msg := messageFor("https://example.com", "req-6")
		if err := proc.ProcessMessage(context.Background(), msg); err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i+1, err)
		}
		rec := repo.Get("https://example.com")
		if rec.Processing.AttemptNumber < last {
			t.Fatalf("attempt_number regressed: %d after %d", rec.Processing.AttemptNumber, last)
		}
		last = rec.Processing.AttemptNumber
	}
	if last != 4 {
		t.Errorf("expected attempt_number 4 after 4 deliveries, got %d", last)
	}
}

func TestProcessMessage_NonRetryableFailure(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{
		FetchFn: func(ctx context.Context, url string) (*domain.FetchResult, error) {
			return nil, errors.New("unclassified failure")
		},
	}
	proc := newProcessor(repo, f, 3, 0)

	msg := messageFor("https://example.com", "req-7")
	if err := proc.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Acks != 1 {
		t.Errorf("expected ack on non-retryable failure, got %d", msg.Acks)
	}
	if len(msg.Nacks) != 0 {
		t.Errorf("expected no nack, got %v", msg.Nacks)
	}
	rec := repo.Get("https://example.com")
	if rec.Status != domain.StatusFailedPermanent {
		t.Errorf("expected FAILED_PERMANENT, got %s", rec.Status)
	}
}

func TestProcessMessage_MalformedBody(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{}
	proc := newProcessor(repo, f, 3, 0)

	for _, body := range []string{"not json", `{"request_id":"x"}`, `{"url":"   "}`} {
		msg := &fakeMessage{body: []byte(body)}
		err := proc.ProcessMessage(context.Background(), msg)
		if !errors.Is(err, domain.ErrMalformedMessage) {
			t.Errorf("body %q: expected ErrMalformedMessage, got %v", body, err)
		}
		if msg.Acks != 0 || len(msg.Nacks) != 0 {
			t.Errorf("body %q: malformed message must not be acked or nacked here", body)
		}
	}
	if len(f.FetchCalls) != 0 {
		t.Errorf("expected no fetches for malformed messages, got %d", len(f.FetchCalls))
	}
}

func TestProcessMessage_RepoFailureSurfaces(t *testing.T) {
	repo := mock.NewMetadataRepository()
	repo.MarkInProgressFn = func(ctx context.Context, url string, pctx domain.ProcessingContext) error {
		return errors.New("store down")
	}
	f := &fakeFetcher{}
	proc := newProcessor(repo, f, 3, 0)

	msg := messageFor("https://example.com", "req-8")
	err := proc.ProcessMessage(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error when the store fails mid-flight")
	}
	if msg.Acks != 0 || len(msg.Nacks) != 0 {
		t.Error("message must stay unacknowledged when the store fails")
	}
}

func TestMessageHandler_RejectsOnError(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{}
	proc := newProcessor(repo, f, 3, 0)

	errs := make(chan error, 1)
	handler := service.NewMessageHandler(proc, errs, &sync.Mutex{}, zap.NewNop())

	msg := &fakeMessage{body: []byte("not json")}
	handler(context.Background(), msg)

	if msg.Rejects != 1 {
		t.Errorf("expected 1 reject, got %d", msg.Rejects)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, domain.ErrMalformedMessage) {
			t.Errorf("expected malformed-message error on channel, got %v", err)
		}
	default:
		t.Error("expected error recorded on the channel")
	}
}

func TestMessageHandler_AcksCleanRun(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{}
	proc := newProcessor(repo, f, 3, 0)

	errs := make(chan error, 1)
	handler := service.NewMessageHandler(proc, errs, &sync.Mutex{}, zap.NewNop())

	msg := messageFor("https://example.com", "req-9")
	handler(context.Background(), msg)

	if msg.Acks != 1 {
		t.Errorf("expected 1 ack, got %d", msg.Acks)
	}
	if msg.Rejects != 0 {
		t.Errorf("expected no reject, got %d", msg.Rejects)
	}
	select {
	case err := <-errs:
		t.Errorf("expected empty error channel, got %v", err)
	default:
	}
}

func TestEnsureRecord_Idempotent(t *testing.T) {
	repo := mock.NewMetadataRepository()
	f := &fakeFetcher{
		FetchFn: func(ctx context.Context, url string) (*domain.FetchResult, error) {
			return nil, fmt.Errorf("%w: down", domain.ErrFetchError)
		},
	}
	proc := newProcessor(repo, f, 5, 0)

	msg := messageFor("https://example.com", "req-10")
	if err := proc.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := repo.Get("https://example.com")

	msg2 := messageFor("https://example.com", "req-10")
	if err := proc.ProcessMessage(context.Background(), msg2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := repo.Get("https://example.com")

	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Error("ensure_record must not reset created_at on an existing record")
	}
	if after.Processing.AttemptNumber < before.Processing.AttemptNumber {
		t.Error("status bookkeeping regressed across deliveries")
	}
}
