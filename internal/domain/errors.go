package domain

import (
	"errors"
	"strings"
)

var (
	// ErrPublisherNotReady is returned when a publish is attempted before the
	// publisher reaches READY (or while it is reconnecting).
	ErrPublisherNotReady = errors.New("publisher_not_ready")

	// ErrQueueRejected is returned when the broker refuses a publish because
	// the bounded queue is full (x-overflow: reject-publish).
	ErrQueueRejected = errors.New("queue_rejected")

	// ErrConnectionLost is returned when a publish fails for any reason other
	// than an overflow rejection; the adapter reconnects in the background.
	ErrConnectionLost = errors.New("connection_lost")

	// ErrFetchTimeout is returned when an outbound fetch exceeds its connect
	// or read timeout.
	ErrFetchTimeout = errors.New("fetch_timeout")

	// ErrFetchError is returned for any other network, TLS, DNS or
	// HTTP-status failure during a fetch.
	ErrFetchError = errors.New("fetch_error")

	// ErrMalformedMessage is returned when a queue message cannot be decoded
	// or is missing its URL. Such messages are rejected without requeue.
	ErrMalformedMessage = errors.New("malformed_message")

	// ErrStoreUnavailable is returned when the metadata store cannot be
	// reached.
	ErrStoreUnavailable = errors.New("store_unavailable")

	// ErrRecordNotFound is returned when no record exists for a URL.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidURL is returned when a submitted URL is not an absolute
	// http(s) URL with a non-empty authority.
	ErrInvalidURL = errors.New("invalid url")
)

// IsQueueRejected reports whether err signals a queue-overflow rejection.
// Broker errors carry the overflow reason as text, so the raw message is
// matched by substring in addition to the sentinel.
func IsQueueRejected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQueueRejected) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "queue_rejected") || strings.Contains(msg, "queue_overflow")
}

// IsRetryableFetch reports whether err is a fetch failure the pipeline
// retries (timeouts and ordinary fetch errors).
func IsRetryableFetch(err error) bool {
	return errors.Is(err, ErrFetchTimeout) || errors.Is(err, ErrFetchError)
}
