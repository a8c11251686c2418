package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/ingestion"
	"github.com/fmuoria/cold-outreach-agent/internal/llm"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// multipartOverhead leaves room for the text fields next to the résumé
const multipartOverhead = 1 << 20

// handleForm renders the submission form
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.renderHTML(w, http.StatusOK, "form.html", formView{
		UserName: currentSession(r).Data.UserName,
	})
}

// handleGenerateEmail drafts an email from the uploaded résumé and keeps
// it in the caller's session for /send-email
func (s *Server) handleGenerateEmail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, ingestion.MaxResumeSize+multipartOverhead)
	if err := r.ParseMultipartForm(ingestion.MaxResumeSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusBadRequest, ingestion.ErrTooLarge.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	req := models.DraftRequest{
		FullName:       r.FormValue("full_name"),
		Company:        r.FormValue("company"),
		RecruiterName:  r.FormValue("recruiter_name"),
		RecruiterEmail: r.FormValue("recruiter_email"),
	}
	file, _, err := r.FormFile("resume")
	if err != nil || req.Validate() != nil {
		s.respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	defer file.Close()

	draft, err := s.agent.DraftEmail(r.Context(), req, file)
	if err != nil {
		s.respondDraftError(w, err)
		return
	}

	sess := currentSession(r)
	sess.Data.Draft = draft
	if !s.saveSession(w, r, sess) {
		return
	}

	s.respondJSON(w, http.StatusOK, models.DraftResponse{Email: draft.Body})
}

func (s *Server) respondDraftError(w http.ResponseWriter, err error) {
	var respErr *llm.ResponseError
	switch {
	case errors.Is(err, models.ErrMissingFields):
		s.respondError(w, http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, ingestion.ErrNotPDF),
		errors.Is(err, ingestion.ErrNoText),
		errors.Is(err, ingestion.ErrTooLarge):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &respErr):
		s.logger.Warn("Unexpected generation response",
			zap.Int("status", respErr.StatusCode),
			zap.String("reason", respErr.Reason),
		)
		s.respondJSON(w, http.StatusBadGateway, map[string]string{
			"error":        "Unexpected response from generation API",
			"raw_response": string(respErr.Raw),
		})
	default:
		s.logger.Error("Draft generation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to generate email")
	}
}
