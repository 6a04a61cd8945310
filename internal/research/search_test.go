package research

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestThrottleReservesSpacedSlots(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	th := NewThrottle(1100 * time.Millisecond).WithClock(func() time.Time { return base })

	waits := []time.Duration{th.reserve(), th.reserve(), th.reserve()}
	if waits[0] != 0 {
		t.Fatalf("first slot should be immediate, got %v", waits[0])
	}
	if waits[1] != 1100*time.Millisecond || waits[2] != 2200*time.Millisecond {
		t.Fatalf("slots not spaced by interval: %v", waits)
	}
}

func TestThrottleSerializesConcurrentCallers(t *testing.T) {
	t.Parallel()

	const interval = 15 * time.Millisecond
	const callers = 4
	th := NewThrottle(interval)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := th.Wait(context.Background()); err != nil {
				t.Errorf("Wait: %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < (callers-1)*interval {
		t.Fatalf("concurrent callers finished in %v, want at least %v", elapsed, (callers-1)*interval)
	}
}

func TestThrottleWaitHonorsContext(t *testing.T) {
	t.Parallel()

	th := NewThrottle(time.Hour)
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should be immediate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := th.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestBraveClientSearchMapsResults(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "key-1" {
			t.Errorf("missing subscription token, got %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "is water wet" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "20" {
			t.Errorf("count should clamp to 20, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"Wetness","description":"water adheres","url":"https://a.example","age":"2 days ago"},
			{"title":" Second ","description":" trimmed ","url":"https://b.example"}
		]}}`))
	}))
	defer server.Close()

	client := NewBraveClient(server.URL, "key-1", 5*time.Second, NewThrottle(0))
	results, err := client.Search(context.Background(), "is water wet", 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Wetness" || results[0].Snippet != "water adheres" || results[0].PublishedAge != "2 days ago" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Title != "Second" {
		t.Fatalf("fields should be trimmed, got %q", results[1].Title)
	}
}

func TestBraveClientDistinguishesRateLimitFromTransport(t *testing.T) {
	t.Parallel()

	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()
	client := NewBraveClient(server.URL, "key-1", 5*time.Second, NewThrottle(0))

	status = http.StatusTooManyRequests
	_, err := client.Search(context.Background(), "q", 5)
	if !RateLimited(err) {
		t.Fatalf("429 must surface as ThrottleError, got %v", err)
	}

	status = http.StatusInternalServerError
	_, err = client.Search(context.Background(), "q", 5)
	if RateLimited(err) {
		t.Fatalf("500 must not be a throttle error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("500 must surface as TransportError, got %v", err)
	}
}

func TestBraveClientRequiresQueryAndKey(t *testing.T) {
	t.Parallel()

	client := NewBraveClient("", "", time.Second, NewThrottle(0))
	if _, err := client.Search(context.Background(), "   ", 5); err == nil {
		t.Fatalf("expected error for empty query")
	}
	if _, err := client.Search(context.Background(), "q", 5); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestClampResults(t *testing.T) {
	t.Parallel()

	cases := [][2]int{{0, 1}, {-3, 1}, {1, 1}, {7, 7}, {20, 20}, {21, 20}}
	for _, pair := range cases {
		if got := ClampResults(pair[0]); got != pair[1] {
			t.Fatalf("ClampResults(%d) = %d, want %d", pair[0], got, pair[1])
		}
	}
}
