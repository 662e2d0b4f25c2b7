package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCrawler() *HTTPCrawler {
	c := New(4, nil)
	c.RetryDelay = time.Millisecond
	return c
}

func TestBulkFetch(t *testing.T) {
	var flaky atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><nav>menu</nav><main><h1>Gerindra</h1><p>Party of Prabowo.</p></main></body></html>`))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text page"))
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if flaky.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("recovered"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/binary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls := []string{srv.URL + "/article", srv.URL + "/plain", srv.URL + "/flaky", srv.URL + "/missing", srv.URL + "/binary"}
	outcomes, err := newTestCrawler().BulkFetch(context.Background(), urls, 3)
	if err != nil {
		t.Fatalf("BulkFetch() error = %v", err)
	}
	if len(outcomes) != len(urls) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(urls))
	}
	for i, o := range outcomes {
		if o.URL != urls[i] {
			t.Errorf("outcome %d URL = %s, want %s", i, o.URL, urls[i])
		}
	}

	if o := outcomes[0]; !o.Succeeded() || !strings.Contains(o.Content, "# Gerindra") || strings.Contains(o.Content, "menu") {
		t.Errorf("article outcome = %+v", o)
	}
	if o := outcomes[1]; o.Content != "plain text page" {
		t.Errorf("plain outcome = %+v", o)
	}
	if o := outcomes[2]; o.Content != "recovered" {
		t.Errorf("flaky outcome = %+v, want recovered after retries", o)
	}
	if o := outcomes[3]; o.Succeeded() || !strings.Contains(o.Error, "404") {
		t.Errorf("missing outcome = %+v", o)
	}
	if o := outcomes[4]; o.Succeeded() {
		t.Errorf("binary outcome = %+v, want failure", o)
	}
}

func TestBulkFetchRetryBudget(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		maxRetries int
		wantCalls  int32
	}{
		{name: "server error exhausts budget", status: http.StatusBadGateway, maxRetries: 2, wantCalls: 3},
		{name: "no retries", status: http.StatusBadGateway, maxRetries: 0, wantCalls: 1},
		{name: "not found is final", status: http.StatusNotFound, maxRetries: 3, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			outcomes, err := newTestCrawler().BulkFetch(context.Background(), []string{srv.URL}, tt.maxRetries)
			if err != nil {
				t.Fatalf("BulkFetch() error = %v", err)
			}
			if outcomes[0].Succeeded() {
				t.Errorf("expected failure")
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestBulkFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := newTestCrawler().BulkFetch(ctx, []string{srv.URL}, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("BulkFetch() error = %v, want deadline exceeded", err)
	}
}

type stubPDF struct{ calls atomic.Int32 }

func (s *stubPDF) ExtractPDF(ctx context.Context, url string) (string, error) {
	s.calls.Add(1)
	return "pdf text for " + url, nil
}

func TestBulkFetchRoutesPDFs(t *testing.T) {
	pdf := &stubPDF{}
	c := New(2, pdf)

	outcomes, err := c.BulkFetch(context.Background(), []string{"https://arxiv.org/pdf/1706.03762v7", "https://example.com/report.PDF?dl=1"}, 0)
	if err != nil {
		t.Fatalf("BulkFetch() error = %v", err)
	}
	if pdf.calls.Load() != 2 {
		t.Errorf("pdf extractor calls = %d, want 2", pdf.calls.Load())
	}
	if !strings.HasPrefix(outcomes[0].Content, "pdf text for") {
		t.Errorf("outcome = %+v", outcomes[0])
	}
}

func TestMistralOCR(t *testing.T) {
	var gotDoc map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotDoc, _ = body["document"].(map[string]any)
		w.Write([]byte(`{"pages":[{"index":0,"markdown":"# Title"},{"index":1,"markdown":"Body"}]}`))
	}))
	defer srv.Close()

	m := NewMistralOCR("key")
	m.Endpoint = srv.URL

	got, err := m.ExtractPDF(context.Background(), "http://arxiv.org/pdf/1706.03762v7")
	if err != nil {
		t.Fatalf("ExtractPDF() error = %v", err)
	}
	if gotDoc["document_url"] != "https://arxiv.org/pdf/1706.03762v7" {
		t.Errorf("document_url = %v, want https upgrade", gotDoc["document_url"])
	}
	if want := "- Page 0 -\n# Title\n\n- Page 1 -\nBody"; got != want {
		t.Errorf("ExtractPDF() = %q, want %q", got, want)
	}

	if _, err := NewMistralOCR("").ExtractPDF(context.Background(), "https://x/a.pdf"); err == nil {
		t.Error("expected error without api key")
	}
}
