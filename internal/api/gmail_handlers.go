package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/events"
	"github.com/fmuoria/cold-outreach-agent/internal/mailer"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
	"github.com/fmuoria/cold-outreach-agent/internal/oauth"
)

// sideEffectTimeout bounds history and event writes after a send
const sideEffectTimeout = 5 * time.Second

// handleGmailLogin starts the OAuth code flow with a fresh state value
func (s *Server) handleGmailLogin(w http.ResponseWriter, r *http.Request) {
	state, err := oauth.NewState()
	if err != nil {
		s.logger.Error("Failed to create OAuth state", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}

	sess := currentSession(r)
	sess.Data.OAuthState = state
	if !s.saveSession(w, r, sess) {
		return
	}

	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

// handleAuthorize is the OAuth callback
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cb := oauth.Callback{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	sess := currentSession(r)
	tok, err := s.oauth.Exchange(r.Context(), sess.Data.OAuthState, cb)
	if err != nil {
		var providerErr *oauth.ProviderError
		switch {
		case errors.As(err, &providerErr):
			s.respondError(w, http.StatusBadRequest, providerErr.Error())
		case errors.Is(err, oauth.ErrStateMismatch), errors.Is(err, oauth.ErrMissingCode):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("OAuth exchange failed", zap.Error(err))
			s.respondError(w, http.StatusBadRequest, "Failed to authorize Gmail access")
		}
		return
	}

	sess.Data.Token = tok
	sess.Data.OAuthState = ""
	if !s.saveSession(w, r, sess) {
		return
	}

	http.Redirect(w, r, "/send-email", http.StatusFound)
}

// handleSendEmail delivers the pending draft. The draft is checked before
// the token so a missing draft never sends the user through OAuth.
func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	draft := sess.Data.Draft
	if !draft.Ready() {
		s.respondError(w, http.StatusBadRequest, "Email body or recipient not set")
		return
	}
	if sess.Data.Token == nil {
		http.Redirect(w, r, "/gmail-login", http.StatusFound)
		return
	}

	result, err := s.mailer.Send(r.Context(), sess.Data.Token, draft)
	if err != nil {
		if errors.Is(err, mailer.ErrReauthRequired) {
			sess.Data.Token = nil
			if !s.saveSession(w, r, sess) {
				return
			}
			http.Redirect(w, r, "/gmail-login", http.StatusFound)
			return
		}

		details := err.Error()
		var sendErr *mailer.SendError
		if errors.As(err, &sendErr) {
			details = sendErr.Details
		}
		s.logger.Error("Failed to send email", zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to send email",
			"details": details,
		})
		return
	}

	// The email is out, so a failed save is logged rather than reported
	sess.Data.Draft = nil
	if err := s.sessions.Save(r.Context(), w, sess); err != nil {
		s.logger.Error("Failed to clear sent draft from session",
			zap.String("message_id", result.MessageID),
			zap.Error(err),
		)
	}

	s.recordSend(r.Context(), sess.Data.UserEmail, draft, result)

	s.renderHTML(w, http.StatusOK, "sent.html", sentView{
		Recipient: draft.Recipient,
		Company:   draft.Company,
		From:      result.From,
	})
}

// handleSent renders the confirmation page without details
func (s *Server) handleSent(w http.ResponseWriter, r *http.Request) {
	s.renderHTML(w, http.StatusOK, "sent.html", sentView{})
}

// recordSend writes the history row for signed-in users and publishes the
// sent event. Failures are logged; the email has already gone out.
func (s *Server) recordSend(ctx context.Context, userEmail string, draft *models.Draft, result *mailer.SendResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	sentAt := time.Now().UTC()
	if s.history != nil && userEmail != "" { // anonymous sends have no owner
		rec := &models.OutreachRecord{
			UserEmail:     userEmail,
			SenderAddress: result.From,
			Recipient:     draft.Recipient,
			RecruiterName: draft.RecruiterName,
			Company:       draft.Company,
			Subject:       draft.Subject,
			MessageID:     result.MessageID,
			SentAt:        sentAt,
		}
		if err := s.history.Record(ctx, rec); err != nil {
			s.logger.Error("Failed to record outreach", zap.Error(err))
		}
	}

	event := models.OutreachSentEvent{
		UserEmail: userEmail,
		Recipient: draft.Recipient,
		Company:   draft.Company,
		MessageID: result.MessageID,
		SentAt:    sentAt,
	}
	if err := s.events.Publish(ctx, events.RoutingOutreachSent, event); err != nil {
		s.logger.Error("Failed to publish outreach event", zap.Error(err))
	}
}
