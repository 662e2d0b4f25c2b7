package research

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// FailedScrapeMarker replaces the content and summary of a result whose page could not be crawled.
const FailedScrapeMarker = "Failed to scrape content"

// Config holds the tunables of one Engine.
type Config struct {
	// MaxRounds caps planning/retrieval/decision rounds before a best-effort answer.
	MaxRounds int
	// SearchResults is the number of organic results kept per query.
	SearchResults int
	// CrawlRetries is the per-URL retry budget handed to the crawl provider.
	CrawlRetries int
	// StructuredRetries is the number of attempts for schema-constrained generation.
	StructuredRetries int
	// CondenseConcurrency bounds parallel condensation calls within one query.
	CondenseConcurrency int
	// MaxContentChars bounds the scraped content handed to the condenser.
	MaxContentChars int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		MaxRounds:           2,
		SearchResults:       3,
		CrawlRetries:        3,
		StructuredRetries:   2,
		CondenseConcurrency: 4,
		MaxContentChars:     24000,
	}
}

// Message is one turn of the conversation that led to the question.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Location is the caller's approximate position. All fields are optional.
type Location struct {
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// IsZero reports whether no location field is set.
func (l Location) IsZero() bool {
	return l == Location{}
}

// SearchHit is one organic result from the search provider.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

// CrawlOutcome is the per-URL result of a bulk fetch. Exactly one of Content or Error is meaningful.
type CrawlOutcome struct {
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Succeeded reports whether the URL was fetched with non-empty content.
func (o CrawlOutcome) Succeeded() bool {
	return o.Error == "" && o.Content != ""
}

// ResultRecord is the evidence gathered for one search hit.
type ResultRecord struct {
	Date           string `json:"date"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	Snippet        string `json:"snippet"`
	ScrapedContent string `json:"scrapedContent"`
	ScrapeFailed   bool   `json:"scrapeFailed,omitempty"`
	ScrapeError    string `json:"scrapeError,omitempty"`
	Summary        string `json:"summary"`
}

// QueryResults holds the records retrieved for one search query, in search order.
type QueryResults struct {
	Query   string         `json:"query"`
	Results []ResultRecord `json:"results"`
}

// SearchRound is the evidence of one completed retrieval, one entry per planned query.
type SearchRound struct {
	Searches []QueryResults `json:"searches"`
}

// Source is the citation metadata of a URL seen in search results.
type Source struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Snippet    string `json:"snippet"`
	FaviconURL string `json:"favicon,omitempty"`
}

// SourceDirectory maps URLs to citation metadata, keeping first-seen order.
type SourceDirectory struct {
	order []Source
	index map[string]int
}

// NewSourceDirectory returns an empty directory.
func NewSourceDirectory() *SourceDirectory {
	return &SourceDirectory{index: make(map[string]int)}
}

// Add records hit unless its URL is already present. It reports whether the hit was added.
func (d *SourceDirectory) Add(hit SearchHit) bool {
	if hit.URL == "" {
		return false
	}
	if _, ok := d.index[hit.URL]; ok {
		return false
	}
	d.index[hit.URL] = len(d.order)
	d.order = append(d.order, Source{
		Title:      hit.Title,
		URL:        hit.URL,
		Snippet:    hit.Snippet,
		FaviconURL: faviconURL(hit.URL),
	})
	return true
}

// Lookup returns the source recorded for rawURL.
func (d *SourceDirectory) Lookup(rawURL string) (Source, bool) {
	if d == nil {
		return Source{}, false
	}
	i, ok := d.index[rawURL]
	if !ok {
		return Source{}, false
	}
	return d.order[i], true
}

// Len returns the number of distinct URLs.
func (d *SourceDirectory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// Sources returns the entries in first-seen order.
func (d *SourceDirectory) Sources() []Source {
	if d == nil {
		return nil
	}
	out := make([]Source, len(d.order))
	copy(out, d.order)
	return out
}

func (d *SourceDirectory) MarshalJSON() ([]byte, error) {
	sources := d.Sources()
	if sources == nil {
		sources = []Source{}
	}
	return json.Marshal(sources)
}

func faviconURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=32", u.Hostname())
}

// Plan is the planner's research strategy for one round.
type Plan struct {
	Plan    string   `json:"plan"`
	Queries []string `json:"queries"`
}

type ActionType string

const (
	ActionContinue ActionType = "continue"
	ActionAnswer   ActionType = "answer"
)

// Action is the decision step's verdict. All fields are set for both variants.
type Action struct {
	Title     string     `json:"title"`
	Reasoning string     `json:"reasoning"`
	Type      ActionType `json:"type"`
	Feedback  string     `json:"feedback"`
}

type Classification string

const (
	ClassificationAllow  Classification = "allow"
	ClassificationRefuse Classification = "refuse"
)

// SafetyVerdict is the classifier's decision on whether a query may be researched.
type SafetyVerdict struct {
	Classification Classification `json:"classification"`
	Reason         string         `json:"reason,omitempty"`
}

// Refused reports whether the query must not be researched.
func (v SafetyVerdict) Refused() bool {
	return v.Classification == ClassificationRefuse
}
