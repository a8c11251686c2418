package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/metrics"
)

// maxResponseSize caps how much of a completion response is kept
const maxResponseSize = 4 << 20

// ChatClient talks to an OpenAI-compatible chat completions endpoint
type ChatClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewChatClient creates a chat completions client for baseURL, e.g.
// https://api.groq.com/openai/v1
func NewChatClient(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *ChatClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: captureTransport{next: http.DefaultTransport},
	}
	return &ChatClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Generate sends the exchange and returns the first choice's content
func (c *ChatClient) Generate(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, messages)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordGenerationLatency("chat", status, time.Since(start))

	return text, err
}

func (c *ChatClient) generate(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	captured := &capturedResponse{}
	resp, err := c.client.CreateChatCompletion(withCapture(ctx, captured), req)

	c.logger.Debug("generation response received",
		zap.Int("status", captured.status),
		zap.Int("bytes", len(captured.body)),
		zap.String("model", c.model),
	)

	if err != nil {
		return "", c.responseError(err, captured)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &ResponseError{StatusCode: captured.status, Reason: "missing choices[0].message.content", Raw: captured.body}
	}
	return resp.Choices[0].Message.Content, nil
}

// responseError maps client errors onto *ResponseError whenever the
// endpoint answered. Transport failures are returned wrapped.
func (c *ChatClient) responseError(err error, captured *capturedResponse) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ResponseError{StatusCode: apiErr.HTTPStatusCode, Reason: apiErr.Message, Raw: captured.body}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ResponseError{StatusCode: reqErr.HTTPStatusCode, Reason: "non-success status", Raw: captured.body}
	}
	if captured.status != 0 {
		return &ResponseError{StatusCode: captured.status, Reason: "invalid JSON: " + err.Error(), Raw: captured.body}
	}
	return fmt.Errorf("generation request failed: %w", err)
}

// capturedResponse holds the status and body of the last response seen
// for one request
type capturedResponse struct {
	status int
	body   []byte
}

type captureKey struct{}

func withCapture(ctx context.Context, c *capturedResponse) context.Context {
	return context.WithValue(ctx, captureKey{}, c)
}

// captureTransport buffers response bodies so malformed replies can be
// reported verbatim
type captureTransport struct {
	next http.RoundTripper
}

func (t captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	captured, ok := req.Context().Value(captureKey{}).(*capturedResponse)
	if !ok {
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read generation response: %w", err)
	}
	captured.status = resp.StatusCode
	captured.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
