package research

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/mikeboe/deep-search/pkg/cache"
)

func newTestPipeline(search *fakeSearch, crawl *fakeCrawler, llm *fakeLLM, c *cache.Cache) *Pipeline {
	cfg := DefaultConfig()
	return &Pipeline{
		Search:    search,
		Crawl:     crawl,
		Condenser: &Condenser{LLM: llm, Cache: c},
		Cache:     c,
		Config:    cfg,
	}
}

var presidentHits = []SearchHit{
	{Title: "Prabowo inaugurated", URL: "https://news.example/prabowo", Snippet: "Prabowo Subianto was sworn in.", Date: "2024-10-20"},
	{Title: "Gerindra party", URL: "https://wiki.example/gerindra", Snippet: "Gerindra is led by Prabowo."},
}

func TestRetrieveAllCrawlsFail(t *testing.T) {
	search := &fakeSearch{hits: map[string][]SearchHit{"president": presidentHits}}
	crawl := &fakeCrawler{}
	llm := &fakeLLM{}

	got, err := newTestPipeline(search, crawl, llm, nil).Retrieve(context.Background(), []string{"president"}, nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	records := got.Round.Searches[0].Results
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		if !r.ScrapeFailed || r.Summary != FailedScrapeMarker || r.ScrapedContent != FailedScrapeMarker {
			t.Errorf("record %s not marked as failed: %+v", r.URL, r)
		}
	}
	if llm.callCount("condense") != 0 {
		t.Errorf("condenser called for failed pages")
	}
	if got.Sources.Len() != 2 {
		t.Errorf("sources = %d, want 2", got.Sources.Len())
	}
}

func TestRetrieveMatchesOutcomesByURL(t *testing.T) {
	search := &fakeSearch{hits: map[string][]SearchHit{"president": presidentHits}}
	crawl := &fakeCrawler{
		reverse: true,
		pages: map[string]string{
			"https://news.example/prabowo":  "prabowo page",
			"https://wiki.example/gerindra": "gerindra page",
		},
	}
	llm := &fakeLLM{condense: func(p Prompt) (string, error) {
		if strings.Contains(p.User, "gerindra page") {
			return "summary: gerindra", nil
		}
		return "summary: prabowo", nil
	}}

	got, err := newTestPipeline(search, crawl, llm, nil).Retrieve(context.Background(), []string{"president"}, nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	records := got.Round.Searches[0].Results
	want := map[string][2]string{
		"https://news.example/prabowo":  {"prabowo page", "summary: prabowo"},
		"https://wiki.example/gerindra": {"gerindra page", "summary: gerindra"},
	}
	for i, r := range records {
		if r.URL != presidentHits[i].URL {
			t.Errorf("record %d URL = %s, want search order %s", i, r.URL, presidentHits[i].URL)
		}
		w := want[r.URL]
		if r.ScrapedContent != w[0] || r.Summary != w[1] {
			t.Errorf("record %s = (%q, %q), want (%q, %q)", r.URL, r.ScrapedContent, r.Summary, w[0], w[1])
		}
	}
}

func TestRetrieveSearchFailure(t *testing.T) {
	search := &fakeSearch{
		hits: map[string][]SearchHit{"ok": presidentHits[:1]},
		errs: map[string]error{"broken": errors.New("serper: 500")},
	}
	crawl := &fakeCrawler{pages: map[string]string{"https://news.example/prabowo": "page"}}

	got, err := newTestPipeline(search, crawl, &fakeLLM{}, nil).Retrieve(context.Background(), []string{"broken", "ok"}, nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got.Round.Searches) != 2 {
		t.Fatalf("got %d searches, want 2", len(got.Round.Searches))
	}
	if s := got.Round.Searches[0]; s.Query != "broken" || len(s.Results) != 0 {
		t.Errorf("failed query = %+v, want zero results", s)
	}
	if s := got.Round.Searches[1]; s.Query != "ok" || len(s.Results) != 1 {
		t.Errorf("second query = %+v, want one result", s)
	}
}

func TestRetrieveCondenseFallback(t *testing.T) {
	search := &fakeSearch{hits: map[string][]SearchHit{"q": presidentHits[:1]}}
	crawl := &fakeCrawler{pages: map[string]string{"https://news.example/prabowo": "raw page text"}}
	llm := &fakeLLM{condense: func(Prompt) (string, error) { return "", errors.New("rate limited") }}

	got, err := newTestPipeline(search, crawl, llm, nil).Retrieve(context.Background(), []string{"q"}, nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if r := got.Round.Searches[0].Results[0]; r.Summary != "raw page text" {
		t.Errorf("Summary = %q, want raw content fallback", r.Summary)
	}
}

func TestRetrieveDeduplicatesSources(t *testing.T) {
	search := &fakeSearch{hits: map[string][]SearchHit{
		"a": {presidentHits[0], presidentHits[0]},
		"b": {{Title: "Same page, other title", URL: presidentHits[0].URL}, presidentHits[1]},
	}}

	got, err := newTestPipeline(search, &fakeCrawler{}, &fakeLLM{}, nil).Retrieve(context.Background(), []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if n := len(got.Round.Searches[0].Results); n != 1 {
		t.Errorf("duplicate hits within a query kept: %d records", n)
	}
	if got.Sources.Len() != 2 {
		t.Fatalf("sources = %d, want 2", got.Sources.Len())
	}
	if src, _ := got.Sources.Lookup(presidentHits[0].URL); src.Title != presidentHits[0].Title {
		t.Errorf("source title = %q, want first-seen %q", src.Title, presidentHits[0].Title)
	}
}

func TestRetrieveIsIdempotentWithCache(t *testing.T) {
	search := &fakeSearch{hits: map[string][]SearchHit{"president": presidentHits}}
	crawl := &fakeCrawler{pages: map[string]string{
		"https://news.example/prabowo":  "prabowo page",
		"https://wiki.example/gerindra": "gerindra page",
	}}
	llm := &fakeLLM{}
	c := cache.New(cache.NewMemoryStore(0))
	p := newTestPipeline(search, crawl, llm, c)
	history := []Message{{Role: "user", Content: "president?"}}

	first, err := p.Retrieve(context.Background(), []string{"president"}, history)
	if err != nil {
		t.Fatalf("first Retrieve() error = %v", err)
	}
	calls := []int{search.callCount(), crawl.callCount(), llm.callCount("condense")}

	second, err := p.Retrieve(context.Background(), []string{"president"}, history)
	if err != nil {
		t.Fatalf("second Retrieve() error = %v", err)
	}
	if got := []int{search.callCount(), crawl.callCount(), llm.callCount("condense")}; !reflect.DeepEqual(got, calls) {
		t.Errorf("provider calls changed from %v to %v on cached run", calls, got)
	}
	if !reflect.DeepEqual(first.Round, second.Round) {
		t.Errorf("cached round differs:\n%+v\n%+v", first.Round, second.Round)
	}
}

func TestRetrievePartialCrawlIsNotCached(t *testing.T) {
	search := &fakeSearch{hits: map[string][]SearchHit{"president": presidentHits}}
	crawl := &fakeCrawler{pages: map[string]string{"https://news.example/prabowo": "prabowo page"}}
	p := newTestPipeline(search, crawl, &fakeLLM{}, cache.New(cache.NewMemoryStore(0)))

	for i := 0; i < 2; i++ {
		got, err := p.Retrieve(context.Background(), []string{"president"}, nil)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if r := got.Round.Searches[0].Results; r[0].ScrapeFailed || !r[1].ScrapeFailed {
			t.Errorf("unexpected scrape status: %+v", r)
		}
	}
	if crawl.callCount() != 2 {
		t.Errorf("crawl calls = %d, want 2", crawl.callCount())
	}
	if search.callCount() != 1 {
		t.Errorf("search calls = %d, want 1", search.callCount())
	}
}

func TestRetrieveCancelled(t *testing.T) {
	search := &fakeSearch{block: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestPipeline(search, &fakeCrawler{}, &fakeLLM{}, nil).Retrieve(ctx, []string{"q"}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Retrieve() error = %v, want context.Canceled", err)
	}
}
