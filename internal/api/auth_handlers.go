package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/identity"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
	"github.com/fmuoria/cold-outreach-agent/internal/session"
)

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.renderHTML(w, http.StatusOK, "signup.html", nil)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderHTML(w, http.StatusOK, "login.html", nil)
}

// handleSignup creates an account and logs the new user in
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	user, err := s.identity.Signup(r.Context(),
		r.PostFormValue("email"),
		r.PostFormValue("password"),
		r.PostFormValue("full_name"),
	)
	switch {
	case errors.Is(err, models.ErrMissingFields):
		s.respondError(w, http.StatusBadRequest, "Missing fields")
		return
	case errors.Is(err, identity.ErrEmailExists):
		s.respondError(w, http.StatusConflict, "User already exists")
		return
	case err != nil:
		s.logger.Error("Signup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	if !s.startUserSession(w, r, user) {
		return
	}
	http.Redirect(w, r, "/form", http.StatusSeeOther)
}

// handleLogin verifies credentials against the credential store
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	user, err := s.identity.Login(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	switch {
	case errors.Is(err, models.ErrMissingFields):
		s.respondError(w, http.StatusBadRequest, "Missing fields")
		return
	case errors.Is(err, identity.ErrInvalidCredentials):
		s.respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	case err != nil:
		s.logger.Error("Login failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	if !s.startUserSession(w, r, user) {
		return
	}
	http.Redirect(w, r, "/form", http.StatusSeeOther)
}

// handleLogout forgets the session entirely
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if err := s.sessions.Destroy(r.Context(), w, sess); err != nil {
		s.logger.Error("Failed to destroy session", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// startUserSession moves the caller to a new session id owned by user.
// Drafts and tokens from before the login are not carried over.
func (s *Server) startUserSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	sess := currentSession(r)
	if err := s.sessions.Renew(r.Context(), sess); err != nil {
		s.logger.Error("Failed to renew session", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to start session")
		return false
	}
	sess.Data = &session.Data{
		UserEmail: user.Email,
		UserName:  user.Name,
	}
	return s.saveSession(w, r, sess)
}
