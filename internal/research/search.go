package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

	minResults = 1
	maxResults = 20
)

// Result is one search hit. PublishedAge is the provider's relative age
// string ("2 days ago") and may be empty.
type Result struct {
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	URL          string `json:"url"`
	PublishedAge string `json:"published_age,omitempty"`
}

// Searcher is the search collaborator boundary the engine depends on.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// ThrottleError is the provider refusing on rate grounds (HTTP 429). Distinct
// from TransportError so callers back off instead of retrying immediately.
type ThrottleError struct {
	Detail string
}

func (e *ThrottleError) Error() string {
	return "search rate limited: " + e.Detail
}

// TransportError is any other failed search exchange. Callers retry once,
// then proceed with reduced evidence.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("search %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BraveClient talks to a Brave-compatible web search API. Every request waits
// on the shared throttle first.
type BraveClient struct {
	endpoint string
	apiKey   string
	throttle *Throttle
	http     *http.Client
}

func NewBraveClient(endpoint, apiKey string, timeout time.Duration, throttle *Throttle) *BraveClient {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BraveClient{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		throttle: throttle,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			Age         string `json:"age"`
		} `json:"results"`
	} `json:"web"`
}

func (c *BraveClient) Search(ctx context.Context, query string, max int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &TransportError{Op: "request", Err: fmt.Errorf("query must not be empty")}
	}
	if c.apiKey == "" {
		return nil, &TransportError{Op: "request", Err: fmt.Errorf("api key is not configured")}
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, &TransportError{Op: "throttle", Err: err}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(ClampResults(max)))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.http.Do(request)
	if err != nil {
		return nil, &TransportError{Op: "exchange", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ThrottleError{Detail: resp.Status}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "exchange", Err: fmt.Errorf("status %s", resp.Status)}
	}

	var decoded braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &TransportError{Op: "decode", Err: err}
	}
	results := make([]Result, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		results = append(results, Result{
			Title:        strings.TrimSpace(r.Title),
			Snippet:      strings.TrimSpace(r.Description),
			URL:          strings.TrimSpace(r.URL),
			PublishedAge: strings.TrimSpace(r.Age),
		})
	}
	return results, nil
}

// ClampResults bounds a requested result count to the provider's 1..20 range.
func ClampResults(n int) int {
	if n < minResults {
		return minResults
	}
	if n > maxResults {
		return maxResults
	}
	return n
}

// RateLimited reports whether err is the provider's rate refusal.
func RateLimited(err error) bool {
	var te *ThrottleError
	return errors.As(err, &te)
}
