package llm

import (
	"context"
	"fmt"
)

// Chat roles
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of a chat exchange
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces text from a chat exchange
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// ResponseError reports a failed or malformed response from a generation
// endpoint. Raw holds the response body for diagnosis.
type ResponseError struct {
	StatusCode int
	Reason     string
	Raw        []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected response from generation API (status %d): %s", e.StatusCode, e.Reason)
}
