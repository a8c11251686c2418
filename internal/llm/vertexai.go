package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/metrics"
)

// VertexAIClient wraps the Vertex AI Gemini API behind Generator
type VertexAIClient struct {
	client    *genai.Client
	modelName string
	projectID string
	location  string
	logger    *zap.Logger
}

// NewVertexAIClient creates a new Vertex AI client
func NewVertexAIClient(ctx context.Context, projectID, location, modelName string, logger *zap.Logger) (*VertexAIClient, error) {
	if projectID == "" {
		return nil, fmt.Errorf("vertex ai project not set")
	}
	if location == "" {
		location = "us-central1"
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	return &VertexAIClient{
		client:    client,
		modelName: modelName,
		projectID: projectID,
		location:  location,
		logger:    logger,
	}, nil
}

// Generate maps system messages onto the model's system instruction and
// sends the remaining turns as the prompt.
func (v *VertexAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	text, err := v.generate(ctx, messages)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordGenerationLatency("vertex", status, time.Since(start))

	return text, err
}

func (v *VertexAIClient) generate(ctx context.Context, messages []Message) (string, error) {
	model := v.client.GenerativeModel(v.modelName)
	model.SetTemperature(0.7)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(2048)

	var system []genai.Part
	var prompt []genai.Part
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, genai.Text(m.Content))
			continue
		}
		prompt = append(prompt, genai.Text(m.Content))
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: system}
	}
	if len(prompt) == 0 {
		return "", fmt.Errorf("no user content to send")
	}

	resp, err := model.GenerateContent(ctx, prompt...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &ResponseError{Reason: "no response candidates returned"}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	v.logger.Debug("vertex ai response received",
		zap.String("model", v.modelName),
		zap.Int("chars", sb.Len()),
	)

	return sb.String(), nil
}

// Close closes the Vertex AI client
func (v *VertexAIClient) Close() error {
	return v.client.Close()
}
