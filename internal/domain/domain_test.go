package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailedPermanent}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []Status{StatusUnknown, StatusPending, StatusQueued, StatusInProgress, StatusFailedRetryable}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStatus_IsInProgress(t *testing.T) {
	inProgress := []Status{StatusQueued, StatusPending, StatusInProgress, StatusFailedRetryable}
	for _, s := range inProgress {
		if !s.IsInProgress() {
			t.Errorf("%s should report in progress", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailedPermanent, StatusUnknown} {
		if s.IsInProgress() {
			t.Errorf("%s should not report in progress", s)
		}
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://example.com",
		"https://example.com:8443/path?q=1",
		"http://10.0.0.1/metrics",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("%q: unexpected error %v", u, err)
		}
	}

	invalid := []string{
		"",
		"example.com",
		"ftp://example.com",
		"https://",
		"//example.com",
		"mailto:someone@example.com",
	}
	for _, u := range invalid {
		if err := ValidateURL(u); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("%q: expected ErrInvalidURL, got %v", u, err)
		}
	}
}

func TestIsQueueRejected(t *testing.T) {
	if !IsQueueRejected(ErrQueueRejected) {
		t.Error("sentinel should match")
	}
	if !IsQueueRejected(fmt.Errorf("wrapped: %w", ErrQueueRejected)) {
		t.Error("wrapped sentinel should match")
	}
	if !IsQueueRejected(errors.New("broker said queue_overflow on publish")) {
		t.Error("overflow substring should match")
	}
	if IsQueueRejected(errors.New("connection reset")) {
		t.Error("unrelated error should not match")
	}
	if IsQueueRejected(nil) {
		t.Error("nil should not match")
	}
}

func TestIsRetryableFetch(t *testing.T) {
	if !IsRetryableFetch(fmt.Errorf("%w: slow", ErrFetchTimeout)) {
		t.Error("timeouts are retryable")
	}
	if !IsRetryableFetch(fmt.Errorf("%w: dns", ErrFetchError)) {
		t.Error("fetch errors are retryable")
	}
	if IsRetryableFetch(errors.New("panic in handler")) {
		t.Error("unclassified errors are not retryable")
	}
}
