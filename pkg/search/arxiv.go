package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/deep-search/pkg/research"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches arXiv papers. Hits point at the PDF when one is listed so the
// crawler can run it through OCR.
type Arxiv struct {
	Endpoint string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewArxiv() *Arxiv {
	return &Arxiv{
		Endpoint: arxivEndpoint,
		Client:   &http.Client{Timeout: 20 * time.Second},
		Logger:   slog.Default(),
	}
}

func (a *Arxiv) Search(ctx context.Context, query string, num int) ([]research.SearchHit, error) {
	if num <= 0 {
		num = 5
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(num))
	params.Add("start", "0")
	apiURL := a.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Error("API returned non-200 status code", "status", resp.StatusCode, "body", string(body))
		return nil, &statusError{Status: resp.StatusCode, Body: string(body)}
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	hits := make([]research.SearchHit, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		link := strings.TrimSpace(entry.ID)
		for _, l := range entry.Link {
			if l.Type == "application/pdf" {
				link = l.Href
				break
			}
		}
		hits = append(hits, research.SearchHit{
			Title:   collapse(entry.Title),
			URL:     link,
			Snippet: collapse(entry.Summary),
			Date:    publishedDate(entry.Published),
		})
	}
	logger.Info("Search successful", "provider", "arxiv", "query", query, "count", len(hits))
	return hits, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func publishedDate(s string) string {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return t.Format("2006-01-02")
}
