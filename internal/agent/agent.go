package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/compose"
	"github.com/fmuoria/cold-outreach-agent/internal/llm"
	"github.com/fmuoria/cold-outreach-agent/internal/metrics"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

const (
	maxRetries   = 3
	retryBackoff = 10 * time.Second
)

// Extractor pulls plain text out of an uploaded résumé
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// OutreachAgent turns a résumé and recruiter details into an email draft
type OutreachAgent struct {
	extractor    Extractor
	prompts      *compose.PromptBuilder
	generator    llm.Generator
	systemPrompt string
	subject      string
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewOutreachAgent creates a new outreach agent
func NewOutreachAgent(extractor Extractor, prompts *compose.PromptBuilder, generator llm.Generator, systemPrompt, subject string, logger *zap.Logger) *OutreachAgent {
	if subject == "" {
		subject = models.DefaultSubject
	}
	return &OutreachAgent{
		extractor:    extractor,
		prompts:      prompts,
		generator:    generator,
		systemPrompt: systemPrompt,
		subject:      subject,
		retryBackoff: retryBackoff,
		logger:       logger,
	}
}

// DraftEmail validates the request, extracts the résumé and asks the
// generator for a cold email body
func (a *OutreachAgent) DraftEmail(ctx context.Context, req models.DraftRequest, resume io.Reader) (*models.Draft, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	draft, err := a.draft(ctx, req, resume)
	if err != nil {
		metrics.IncrementDraftsGenerated("failed")
		return nil, err
	}
	metrics.IncrementDraftsGenerated("success")
	return draft, nil
}

func (a *OutreachAgent) draft(ctx context.Context, req models.DraftRequest, resume io.Reader) (*models.Draft, error) {
	resumeText, err := a.extractor.Extract(ctx, resume)
	if err != nil {
		return nil, fmt.Errorf("failed to extract resume: %w", err)
	}

	prompt, err := a.prompts.Build(req, resumeText)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, 2)
	if a.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	raw, err := a.generateWithRetry(ctx, messages)
	if err != nil {
		return nil, err
	}

	body := compose.FixLineBreaks(raw)
	if body == "" {
		return nil, &llm.ResponseError{StatusCode: http.StatusOK, Reason: "empty email body", Raw: []byte(raw)}
	}

	a.logger.Info("draft generated",
		zap.String("company", req.Company),
		zap.Int("resume_chars", len(resumeText)),
		zap.Int("body_chars", len(body)),
	)

	return &models.Draft{
		Subject:       a.subject,
		Body:          body,
		Recipient:     strings.TrimSpace(req.RecruiterEmail),
		RecruiterName: strings.TrimSpace(req.RecruiterName),
		Company:       strings.TrimSpace(req.Company),
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// generateWithRetry retries only when the backend reports rate limiting
func (a *OutreachAgent) generateWithRetry(ctx context.Context, messages []llm.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := a.retryBackoff * time.Duration(attempt)
			a.logger.Warn("generation rate limited, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		text, err := a.generator.Generate(ctx, messages)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRateLimitError(err) {
			break
		}
	}
	return "", lastErr
}

// isRateLimitError reports whether err signals an exhausted quota
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var respErr *llm.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resourceexhausted") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}
