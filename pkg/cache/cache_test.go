package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestDoSingleFlight(t *testing.T) {
	c := New(nil)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	compute := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "summary", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = Do(context.Background(), c, "condense", map[string]string{"url": "u"}, compute)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = Do(context.Background(), c, "condense", map[string]string{"url": "u"}, compute)
	}()

	// Give the second caller time to join the in-flight computation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("compute called %d times, want 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != "summary" {
			t.Errorf("caller %d: got %q, want %q", i, results[i], "summary")
		}
	}
}

func TestDoServesStoredValue(t *testing.T) {
	store := NewMemoryStore(16)
	c := New(store, WithTTL(time.Minute))
	var calls int

	compute := func(context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Do(context.Background(), c, "search", []string{"q"}, compute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Fatalf("got %v, want [a b]", got)
		}
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d entries, want 1", store.Len())
	}
}

func TestDoDistinguishesOperations(t *testing.T) {
	c := New(NewMemoryStore(16))
	var calls int
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	first, _ := Do(context.Background(), c, "search", "same", compute)
	second, _ := Do(context.Background(), c, "crawl", "same", compute)
	if first == second || calls != 2 {
		t.Errorf("operations shared a cache entry: first=%d second=%d calls=%d", first, second, calls)
	}
}

func TestDoStoreOutageDegrades(t *testing.T) {
	c := New(failingStore{})
	var calls int
	compute := func(context.Context) (string, error) {
		calls++
		return "fresh", nil
	}

	for i := 0; i < 2; i++ {
		got, err := Do(context.Background(), c, "condense", "args", compute)
		if err != nil {
			t.Fatalf("store outage surfaced to caller: %v", err)
		}
		if got != "fresh" {
			t.Errorf("got %q, want fresh", got)
		}
	}
	if calls != 2 {
		t.Errorf("compute called %d times, want 2", calls)
	}
}

func TestDoDoesNotStoreErrors(t *testing.T) {
	c := New(NewMemoryStore(16))
	boom := errors.New("provider down")
	var calls int
	compute := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "ok", nil
	}

	if _, err := Do(context.Background(), c, "search", "q", compute); !errors.Is(err, boom) {
		t.Fatalf("got error %v, want %v", err, boom)
	}
	got, err := Do(context.Background(), c, "search", "q", compute)
	if err != nil || got != "ok" {
		t.Fatalf("got (%q, %v), want (ok, nil)", got, err)
	}
}

func TestDoHonoursCallerContext(t *testing.T) {
	c := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Do(ctx, c, "slow", "q", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestDoNilCache(t *testing.T) {
	var c *Cache
	got, err := Do(context.Background(), c, "op", nil, func(context.Context) (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Fatalf("got (%d, %v), want (42, nil)", got, err)
	}
}
