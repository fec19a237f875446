package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/config"
	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

// Fetcher performs a one-shot GET for a URL and returns its metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.FetchResult, error)
	Close()
}

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher fetches URLs following redirects, with separate connect and
// read timeouts. It does not restrict by Content-Type and does not truncate;
// truncation is owned by the processing service.
type HTTPFetcher struct {
	transport   *http.Transport
	readTimeout time.Duration
	userAgent   string
	logger      *zap.Logger
}

// New creates a fetcher from the processing settings.
func New(cfg config.ProcessingConfig, logger *zap.Logger) *HTTPFetcher {
	dialer := &net.Dialer{Timeout: cfg.FetchConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.FetchConnectTimeout,
		ResponseHeaderTimeout: cfg.FetchReadTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	return &HTTPFetcher{
		transport:   transport,
		readTimeout: cfg.FetchReadTimeout,
		userAgent:   cfg.FetchUserAgent,
		logger:      logger,
	}
}

// Fetch performs the GET. Timeouts surface as domain.ErrFetchTimeout; every
// other network, TLS, DNS or HTTP-status failure surfaces as
// domain.ErrFetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*domain.FetchResult, error) {
	// A fresh jar per fetch so cookies collected across the redirect chain
	// never leak between URLs.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cookie jar: %v", domain.ErrFetchError, err)
	}
	client := &http.Client{
		Transport: f.transport,
		Jar:       jar,
	}

	ctx, cancel := context.WithTimeout(ctx, f.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", domain.ErrFetchError, url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: timeout while fetching %s", domain.ErrFetchTimeout, url)
		}
		return nil, fmt.Errorf("%w: fetch failed for %s: %v", domain.ErrFetchError, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: timeout reading body of %s", domain.ErrFetchTimeout, url)
		}
		return nil, fmt.Errorf("%w: read body of %s: %v", domain.ErrFetchError, url, err)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: http status %d for %s", domain.ErrFetchError, resp.StatusCode, finalURL)
	}

	headers := make(map[string]string, len(resp.Header))
	for name, values := range resp.Header {
		headers[name] = strings.Join(values, ", ")
	}

	cookies := map[string]string{}
	if resp.Request != nil && resp.Request.URL != nil {
		for _, c := range jar.Cookies(resp.Request.URL) {
			cookies[c.Name] = c.Value
		}
	}
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c.Value
	}

	f.logger.Debug("fetched url",
		zap.String("url", url),
		zap.String("final_url", finalURL),
		zap.Int("status_code", resp.StatusCode),
		zap.Int("body_bytes", len(body)),
	)

	return &domain.FetchResult{
		Headers:           headers,
		Cookies:           cookies,
		PageSource:        string(body),
		StatusCode:        resp.StatusCode,
		FinalURL:          finalURL,
		AdditionalDetails: map[string]any{},
	}, nil
}

// Close releases pooled connections.
func (f *HTTPFetcher) Close() {
	f.transport.CloseIdleConnections()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
