package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Message is one turn of accumulated context handed to a worker.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one opaque worker invocation: an instruction plus the context
// the pipeline has accumulated so far. The response is free text expected to
// contain a structured payload under OutputKey's contract.
type Request struct {
	Role        string
	OutputKey   string
	Instruction string
	Context     []Message
	Temperature float32
	// MaxTokens caps the reply length; zero leaves the provider default.
	MaxTokens int
}

// Response is the raw worker reply.
type Response struct {
	Content      string
	FinishReason string
}

// Client runs one worker call. Implementations must honor ctx.
type Client interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// HTTPClient speaks an OpenAI-style chat-completions API. Endpoints are tried
// in order until one answers, so a local inference box can front a remote
// fallback.
type HTTPClient struct {
	endpoints []string
	model     string
	apiKey    string
	http      *http.Client
}

func NewHTTPClient(endpoints, model, apiKey string, timeout time.Duration) *HTTPClient {
	parsed := splitEndpoints(endpoints)
	if len(parsed) == 0 {
		parsed = []string{normalizeEndpoint("http://localhost:1234/v1")}
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		endpoints: parsed,
		model:     strings.TrimSpace(model),
		apiKey:    strings.TrimSpace(apiKey),
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

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

func (c *HTTPClient) Invoke(ctx context.Context, req Request) (Response, error) {
	if c == nil {
		return Response{}, fmt.Errorf("worker client is nil")
	}
	if strings.TrimSpace(req.Instruction) == "" {
		return Response{}, fmt.Errorf("worker %q invoked without instruction", req.Role)
	}
	messages := make([]Message, 0, len(req.Context)+1)
	messages = append(messages, Message{Role: "system", Content: req.Instruction})
	for _, m := range req.Context {
		role := m.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	failures := make([]string, 0, len(c.endpoints))
	for _, endpoint := range c.endpoints {
		resp, err := c.invokeAt(ctx, endpoint+"/chat/completions", payload)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		failures = append(failures, fmt.Sprintf("%s (%v)", endpoint, err))
	}
	return Response{}, fmt.Errorf("worker %q failed across endpoints: %s", req.Role, strings.Join(failures, " | "))
}

func (c *HTTPClient) invokeAt(ctx context.Context, endpoint string, payload []byte) (Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(request)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("status %s", resp.Status)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Response{}, fmt.Errorf("response missing choices")
	}
	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return Response{}, fmt.Errorf("response empty")
	}
	return Response{
		Content:      content,
		FinishReason: strings.TrimSpace(decoded.Choices[0].FinishReason),
	}, nil
}

func normalizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

func splitEndpoints(raw string) []string {
	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r' || r == '\t' || r == ' '
	})
	out := make([]string, 0, len(tokens))
	seen := map[string]struct{}{}
	for _, token := range tokens {
		normalized := normalizeEndpoint(token)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
