package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fmuoria/cold-outreach-agent/internal/metrics"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

const user = "me"

var (
	// ErrReauthRequired is returned when the stored token can no longer be used
	ErrReauthRequired = errors.New("gmail authorization expired")
	// ErrIncompleteDraft is returned when a draft lacks a body or recipient
	ErrIncompleteDraft = errors.New("draft has no body or recipient")
)

// SendError is a non-success reply from the Gmail API
type SendError struct {
	StatusCode int
	Details    string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("gmail send failed (status %d): %s", e.StatusCode, e.Details)
}

// SendResult describes a delivered message
type SendResult struct {
	MessageID string `json:"message_id"`
	From      string `json:"from,omitempty"`
}

// GmailSender submits drafts through the Gmail API using the user's token
type GmailSender struct {
	endpoint string
	logger   *zap.Logger
}

// NewGmailSender creates a sender for the public Gmail API
func NewGmailSender(logger *zap.Logger) *GmailSender {
	return &GmailSender{logger: logger}
}

// BuildMessage renders draft as a plain-text RFC 5322 message.
// from may be empty, in which case Gmail fills in the account address.
func BuildMessage(draft *models.Draft, from string) ([]byte, error) {
	if !draft.Ready() {
		return nil, ErrIncompleteDraft
	}

	to, err := mail.ParseAddressList(draft.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", draft.Recipient, err)
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("To", to)
	if from != "" {
		h.SetAddressList("From", []*mail.Address{{Address: from}})
	}
	subject := draft.Subject
	if subject == "" {
		subject = models.DefaultSubject
	}
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, draft.Body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeRaw applies the base64url encoding Gmail expects for raw messages
func EncodeRaw(msg []byte) string {
	return base64.URLEncoding.EncodeToString(msg)
}

// Send delivers draft as the user owning tok. The sender address lookup is
// best effort; a failure there does not stop the send.
func (s *GmailSender) Send(ctx context.Context, tok *oauth2.Token, draft *models.Draft) (*SendResult, error) {
	if !draft.Ready() {
		return nil, ErrIncompleteDraft
	}
	if tok == nil || !tok.Valid() {
		metrics.IncrementEmailsSent("reauth")
		return nil, ErrReauthRequired
	}

	srv, err := s.service(ctx, tok)
	if err != nil {
		return nil, err
	}

	var from string
	profile, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		if isUnauthorized(err) {
			metrics.IncrementEmailsSent("reauth")
			return nil, ErrReauthRequired
		}
		s.logger.Warn("unable to resolve sender address", zap.Error(err))
	} else {
		from = profile.EmailAddress
	}

	raw, err := BuildMessage(draft, from)
	if err != nil {
		return nil, err
	}

	sent, err := srv.Users.Messages.Send(user, &gmail.Message{Raw: EncodeRaw(raw)}).Context(ctx).Do()
	if err != nil {
		if isUnauthorized(err) {
			metrics.IncrementEmailsSent("reauth")
			return nil, ErrReauthRequired
		}
		metrics.IncrementEmailsSent("failed")
		return nil, toSendError(err)
	}

	metrics.IncrementEmailsSent("success")
	s.logger.Info("email sent",
		zap.String("message_id", sent.Id),
		zap.String("recipient", draft.Recipient),
	)
	return &SendResult{MessageID: sent.Id, From: from}, nil
}

func (s *GmailSender) service(ctx context.Context, tok *oauth2.Token) (*gmail.Service, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))),
	}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}
	return srv, nil
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

func toSendError(err error) *SendError {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		details := apiErr.Message
		if details == "" {
			details = strings.TrimSpace(apiErr.Body)
		}
		return &SendError{StatusCode: apiErr.Code, Details: details}
	}
	return &SendError{StatusCode: http.StatusBadGateway, Details: err.Error()}
}
