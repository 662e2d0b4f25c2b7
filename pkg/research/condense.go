package research

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mikeboe/deep-search/pkg/cache"
	"github.com/mikeboe/deep-search/pkg/splitter"
)

// CondenseInput is everything the condenser sees for one page.
type CondenseInput struct {
	Query   string
	History []Message
	Content string
	Hit     SearchHit
}

// PageCondenser reduces scraped page content to a query-focused synthesis.
type PageCondenser interface {
	Condense(ctx context.Context, in CondenseInput) (string, error)
}

// Condenser is the model-backed PageCondenser. Results are memoized on the
// full input, so identical pages for the same query and history are condensed once.
type Condenser struct {
	LLM      Generator
	Cache    *cache.Cache
	Splitter *splitter.TextSplitter
	MaxChars int
	Logger   *slog.Logger
}

type condenseKey struct {
	Content  string    `json:"content"`
	Query    string    `json:"query"`
	Metadata SearchHit `json:"metadata"`
	History  []Message `json:"history"`
}

func (c *Condenser) Condense(ctx context.Context, in CondenseInput) (string, error) {
	key := condenseKey{Content: in.Content, Query: in.Query, Metadata: in.Hit, History: in.History}
	return cache.Do(ctx, c.Cache, "summarizeURL", key, func(ctx context.Context) (string, error) {
		content := in.Content
		if c.Splitter != nil && c.MaxChars > 0 {
			truncated, err := c.Splitter.Truncate(content, c.MaxChars)
			if err != nil {
				c.logger().Warn("Failed to truncate content", "url", in.Hit.URL, "error", err)
			} else {
				content = truncated
			}
		}
		in.Content = content

		summary, err := c.LLM.GenerateText(ctx, condensePrompt(in))
		if err != nil {
			return "", err
		}
		summary = strings.TrimSpace(summary)
		if summary == "" {
			return "", errors.New("condenser returned empty summary")
		}
		return summary, nil
	})
}

func (c *Condenser) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
