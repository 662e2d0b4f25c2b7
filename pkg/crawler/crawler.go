// Package crawler fetches web pages and reduces them to readable text.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/mikeboe/deep-search/pkg/research"
	"golang.org/x/sync/errgroup"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; deep-search/1.0; +https://github.com/mikeboe/deep-search)"
	defaultMaxBytes  = 5 << 20
)

// StatusError is a non-2xx response for URL.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: status %d, body: %s", e.URL, e.Status, e.Body)
}

// HTTPCrawler fetches pages over HTTP with bounded concurrency and per-URL retries.
type HTTPCrawler struct {
	Client      *http.Client
	Concurrency int
	UserAgent   string
	MaxBytes    int64
	RetryDelay  time.Duration
	PDF         PDFExtractor
	Logger      *slog.Logger
}

func New(concurrency int, pdf PDFExtractor) *HTTPCrawler {
	return &HTTPCrawler{
		Client:      &http.Client{Timeout: 20 * time.Second},
		Concurrency: concurrency,
		UserAgent:   defaultUserAgent,
		MaxBytes:    defaultMaxBytes,
		RetryDelay:  500 * time.Millisecond,
		PDF:         pdf,
		Logger:      slog.Default(),
	}
}

// BulkFetch fetches every URL and returns one outcome per URL in input order.
// maxRetries is the number of retries after the first attempt. Only
// cancellation of ctx is reported as an error.
func (c *HTTPCrawler) BulkFetch(ctx context.Context, urls []string, maxRetries int) ([]research.CrawlOutcome, error) {
	outcomes := make([]research.CrawlOutcome, len(urls))

	var g errgroup.Group
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	for i, u := range urls {
		g.Go(func() error {
			content, err := c.fetchWithRetry(ctx, u, maxRetries)
			if err != nil {
				c.logger().Warn("Crawl failed", "url", u, "error", err)
				outcomes[i] = research.CrawlOutcome{URL: u, Error: err.Error()}
				return nil
			}
			outcomes[i] = research.CrawlOutcome{URL: u, Content: content}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (c *HTTPCrawler) fetchWithRetry(ctx context.Context, u string, maxRetries int) (string, error) {
	var content string
	err := retry.Do(
		func() error {
			var err error
			content, err = c.fetch(ctx, u)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(max(maxRetries, 0)+1)),
		retry.Delay(c.RetryDelay),
		retry.MaxDelay(4*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	return content, err
}

// retryable reports whether a fetch failure may succeed on another attempt.
func retryable(err error) bool {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Status >= 500 || serr.Status == http.StatusTooManyRequests || serr.Status == http.StatusRequestTimeout
	}
	return !errors.Is(err, errUnsupported) && !errors.Is(err, errEmpty)
}

var (
	errUnsupported = errors.New("unsupported content type")
	errEmpty       = errors.New("no readable content")
)

func (c *HTTPCrawler) fetch(ctx context.Context, u string) (string, error) {
	if c.PDF != nil && isPDFURL(u) {
		return c.PDF.ExtractPDF(ctx, u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", retry.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{URL: u, Status: resp.StatusCode}
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "application/pdf") {
		if c.PDF == nil {
			return "", fmt.Errorf("%w: %s", errUnsupported, contentType)
		}
		return c.PDF.ExtractPDF(ctx, u)
	}

	limit := c.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var content string
	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "xhtml"), contentType == "":
		content, err = ExtractText(string(body))
		if err != nil {
			return "", fmt.Errorf("failed to parse HTML: %w", err)
		}
	case strings.HasPrefix(contentType, "text/"), strings.Contains(contentType, "json"), strings.Contains(contentType, "xml"):
		content = strings.TrimSpace(string(body))
	default:
		return "", fmt.Errorf("%w: %s", errUnsupported, contentType)
	}

	if content == "" {
		return "", errEmpty
	}
	return content, nil
}

func isPDFURL(u string) bool {
	u = strings.ToLower(u)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".pdf") || strings.Contains(u, "arxiv.org/pdf/")
}

func (c *HTTPCrawler) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
