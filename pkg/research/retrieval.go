package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-search/pkg/cache"
	"golang.org/x/sync/errgroup"
)

// SearchProvider runs a web search and returns organic results in rank order.
type SearchProvider interface {
	Search(ctx context.Context, query string, num int) ([]SearchHit, error)
}

// CrawlProvider fetches the readable content of a batch of URLs. It returns
// one outcome per URL; per-URL failures are reported in the outcome, not as an error.
type CrawlProvider interface {
	BulkFetch(ctx context.Context, urls []string, maxRetries int) ([]CrawlOutcome, error)
}

// Retriever runs one round of search, crawl and condensation.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, history []Message) (RoundResult, error)
}

// RoundResult is the output of one retrieval round.
type RoundResult struct {
	Round   SearchRound
	Sources *SourceDirectory
	Queries []string
}

// Pipeline is the standard Retriever.
type Pipeline struct {
	Search    SearchProvider
	Crawl     CrawlProvider
	Condenser PageCondenser
	Cache     *cache.Cache
	Config    Config
	Logger    *slog.Logger
}

type queryOutcome struct {
	hits    []SearchHit
	results QueryResults
}

// Retrieve processes every query concurrently. A failed search yields zero
// results for that query; a failed crawl yields a marker record; a failed
// condensation falls back to the raw content. Only cancellation of ctx fails
// the round.
func (p *Pipeline) Retrieve(ctx context.Context, queries []string, history []Message) (RoundResult, error) {
	logger := p.logger()
	logger.Info("Starting retrieval phase", "queries", len(queries))

	outcomes := make([]queryOutcome, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			out, err := p.runQuery(gctx, q, history)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RoundResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return RoundResult{}, err
	}

	result := RoundResult{
		Round:   SearchRound{Searches: make([]QueryResults, len(queries))},
		Sources: NewSourceDirectory(),
		Queries: append([]string(nil), queries...),
	}
	for i, out := range outcomes {
		result.Round.Searches[i] = out.results
		for _, hit := range out.hits {
			result.Sources.Add(hit)
		}
	}
	logger.Info("Retrieval complete", "queries", len(queries), "sources", result.Sources.Len())
	return result, nil
}

func (p *Pipeline) runQuery(ctx context.Context, query string, history []Message) (queryOutcome, error) {
	logger := p.logger().With("query", query)
	out := queryOutcome{results: QueryResults{Query: query, Results: []ResultRecord{}}}

	hits, err := p.searchWeb(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		logger.Error("Search failed", "error", err)
		return out, nil
	}
	out.hits = hits
	if len(hits) == 0 {
		logger.Info("Search returned no results")
		return out, nil
	}

	urls := make([]string, len(hits))
	for i, h := range hits {
		urls[i] = h.URL
	}
	crawled, err := p.scrapeURLs(ctx, urls)
	if err != nil {
		return out, err
	}

	records := make([]ResultRecord, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	if p.Config.CondenseConcurrency > 0 {
		g.SetLimit(p.Config.CondenseConcurrency)
	}
	for i, hit := range hits {
		rec := ResultRecord{Date: hit.Date, Title: hit.Title, URL: hit.URL, Snippet: hit.Snippet}
		outcome, ok := crawled[hit.URL]
		if !ok || !outcome.Succeeded() {
			rec.ScrapeFailed = true
			rec.ScrapedContent = FailedScrapeMarker
			rec.Summary = FailedScrapeMarker
			if ok {
				rec.ScrapeError = outcome.Error
			} else {
				rec.ScrapeError = "no crawl outcome"
			}
			logger.Warn("Failed to scrape", "url", hit.URL, "error", rec.ScrapeError)
			records[i] = rec
			continue
		}

		rec.ScrapedContent = outcome.Content
		g.Go(func() error {
			summary, err := p.Condenser.Condense(gctx, CondenseInput{
				Query:   query,
				History: history,
				Content: rec.ScrapedContent,
				Hit:     hit,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("Failed to summarize, using scraped content", "url", hit.URL, "error", err)
				summary = rec.ScrapedContent
			}
			rec.Summary = summary
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	out.results.Results = records
	logger.Info("Query processed", "results", len(records))
	return out, nil
}

type searchKey struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

// searchWeb returns the top results for query with unique, non-empty URLs.
func (p *Pipeline) searchWeb(ctx context.Context, query string) ([]SearchHit, error) {
	num := p.Config.SearchResults
	if num <= 0 {
		num = DefaultConfig().SearchResults
	}
	hits, err := cache.Do(ctx, p.Cache, "searchWeb", searchKey{Q: query, Num: num}, func(ctx context.Context) ([]SearchHit, error) {
		return p.Search.Search(ctx, query, num)
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(hits))
	var out []SearchHit
	for _, h := range hits {
		if h.URL == "" || seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		out = append(out, h)
		if len(out) == num {
			break
		}
	}
	return out, nil
}

type crawlKey struct {
	URLs       []string `json:"urls"`
	MaxRetries int      `json:"maxRetries"`
}

// partialCrawlError carries a batch in which some URLs failed. Returning it
// from the cached computation keeps the batch out of the store while the
// outcomes still reach the caller.
type partialCrawlError struct {
	Outcomes []CrawlOutcome
	Failed   int
}

func (e *partialCrawlError) Error() string {
	return fmt.Sprintf("%d of %d urls failed to crawl", e.Failed, len(e.Outcomes))
}

// scrapeURLs fetches urls as one batch and indexes the outcomes by URL.
func (p *Pipeline) scrapeURLs(ctx context.Context, urls []string) (map[string]CrawlOutcome, error) {
	key := crawlKey{URLs: urls, MaxRetries: p.Config.CrawlRetries}
	outcomes, err := cache.Do(ctx, p.Cache, "scrapePages", key, func(ctx context.Context) ([]CrawlOutcome, error) {
		outcomes, err := p.Crawl.BulkFetch(ctx, urls, p.Config.CrawlRetries)
		if err != nil {
			return nil, err
		}
		failed := 0
		for _, o := range outcomes {
			if !o.Succeeded() {
				failed++
			}
		}
		if failed > 0 || len(outcomes) < len(urls) {
			return nil, &partialCrawlError{Outcomes: outcomes, Failed: failed + len(urls) - len(outcomes)}
		}
		return outcomes, nil
	})

	var partial *partialCrawlError
	switch {
	case errors.As(err, &partial):
		outcomes = partial.Outcomes
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger().Error("Crawl failed", "urls", len(urls), "error", err)
		outcomes = nil
		for _, u := range urls {
			outcomes = append(outcomes, CrawlOutcome{URL: u, Error: err.Error()})
		}
	}

	byURL := make(map[string]CrawlOutcome, len(outcomes))
	for _, o := range outcomes {
		if _, dup := byURL[o.URL]; !dup {
			byURL[o.URL] = o
		}
	}
	return byURL, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
