package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/mikeboe/deep-search/pkg/research"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper searches Google through serper.dev.
type Serper struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
	Attempts uint
	Logger   *slog.Logger
}

func NewSerper(apiKey string) *Serper {
	return &Serper{
		APIKey:   apiKey,
		Endpoint: serperEndpoint,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Attempts: 2,
		Logger:   slog.Default(),
	}
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Date     string `json:"date"`
		Position int    `json:"position"`
	} `json:"organic"`
}

// statusError is a non-2xx response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned non-200 status code: %d, body: %s", e.Status, e.Body)
}

func (s *Serper) Search(ctx context.Context, query string, num int) ([]research.SearchHit, error) {
	if s.APIKey == "" {
		return nil, errors.New("SERPER_API_KEY is required")
	}
	payload, err := json.Marshal(serperRequest{Q: query, Num: num})
	if err != nil {
		return nil, err
	}

	var parsed serperResponse
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("X-API-KEY", s.APIKey)
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.Client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to make API request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response body: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				serr := &statusError{Status: resp.StatusCode, Body: string(body)}
				if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(serr)
				}
				return serr
			}

			parsed = serperResponse{}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(max(s.Attempts, 1)),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger().Warn("Retrying search", "query", query, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	hits := make([]research.SearchHit, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		hits = append(hits, research.SearchHit{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Date:    r.Date,
		})
	}
	s.logger().Info("Search successful", "provider", "serper", "query", query, "count", len(hits))
	return hits, nil
}

func (s *Serper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
