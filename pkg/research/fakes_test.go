package research

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// fakeLLM routes calls by system prompt and replays scripted responses.
// The last scripted response of a stage repeats once the script runs out.
type fakeLLM struct {
	mu sync.Mutex

	safety  []string
	plans   []string
	actions []string
	jsonErr error

	condense func(Prompt) (string, error)
	answer   string

	calls   map[string]int
	prompts map[string][]Prompt
}

func stageOf(p Prompt) string {
	switch p.System {
	case safetySystemPrompt:
		return "safety"
	case plannerSystemPrompt:
		return "plan"
	case decisionSystemPrompt:
		return "decide"
	case condenseSystemPrompt:
		return "condense"
	case refusalSystemPrompt:
		return "refuse"
	default:
		return "answer"
	}
}

func (f *fakeLLM) record(p Prompt) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
		f.prompts = make(map[string][]Prompt)
	}
	stage := stageOf(p)
	f.calls[stage]++
	f.prompts[stage] = append(f.prompts[stage], p)
	return stage
}

func (f *fakeLLM) callCount(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[stage]
}

func (f *fakeLLM) promptsFor(stage string) []Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Prompt(nil), f.prompts[stage]...)
}

func next(script []string, n int) string {
	if len(script) == 0 {
		return ""
	}
	if n > len(script) {
		n = len(script)
	}
	return script[n-1]
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, p Prompt, _ *genai.Schema) (string, error) {
	stage := f.record(p)
	if f.jsonErr != nil {
		return "", f.jsonErr
	}
	n := f.callCount(stage)
	switch stage {
	case "safety":
		if len(f.safety) == 0 {
			return `{"classification":"allow"}`, nil
		}
		return next(f.safety, n), nil
	case "plan":
		return next(f.plans, n), nil
	case "decide":
		return next(f.actions, n), nil
	}
	return "", errors.New("unexpected structured call for " + stage)
}

func (f *fakeLLM) GenerateText(ctx context.Context, p Prompt) (string, error) {
	f.record(p)
	if f.condense != nil {
		return f.condense(p)
	}
	return "condensed page", nil
}

func (f *fakeLLM) StreamText(ctx context.Context, p Prompt) iter.Seq2[string, error] {
	stage := f.record(p)
	text := f.answer
	if stage == "refuse" {
		text = "I can't help with that."
	}
	return func(yield func(string, error) bool) {
		for _, word := range strings.SplitAfter(text, " ") {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(word, nil) {
				return
			}
		}
	}
}

type fakeSearch struct {
	mu    sync.Mutex
	hits  map[string][]SearchHit
	errs  map[string]error
	block bool
	calls int
}

func (f *fakeSearch) Search(ctx context.Context, query string, num int) ([]SearchHit, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	hits := f.hits[query]
	if len(hits) > num {
		hits = hits[:num]
	}
	return hits, nil
}

func (f *fakeSearch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCrawler struct {
	mu      sync.Mutex
	pages   map[string]string
	reverse bool
	calls   int
}

func (f *fakeCrawler) BulkFetch(ctx context.Context, urls []string, maxRetries int) ([]CrawlOutcome, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([]CrawlOutcome, 0, len(urls))
	for _, u := range urls {
		if content, ok := f.pages[u]; ok {
			out = append(out, CrawlOutcome{URL: u, Content: content})
		} else {
			out = append(out, CrawlOutcome{URL: u, Error: "status 404"})
		}
	}
	if f.reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (f *fakeCrawler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
