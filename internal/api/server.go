package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fmuoria/cold-outreach-agent/internal/events"
	"github.com/fmuoria/cold-outreach-agent/internal/mailer"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
	"github.com/fmuoria/cold-outreach-agent/internal/oauth"
	"github.com/fmuoria/cold-outreach-agent/internal/session"
)

// Drafter turns a résumé and request fields into an email draft
type Drafter interface {
	DraftEmail(ctx context.Context, req models.DraftRequest, resume io.Reader) (*models.Draft, error)
}

// Authenticator creates and verifies accounts
type Authenticator interface {
	Signup(ctx context.Context, email, password, fullName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
}

// Authorizer runs the Gmail OAuth code flow
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, expectedState string, cb oauth.Callback) (*oauth2.Token, error)
}

// Sender delivers a draft with the user's token
type Sender interface {
	Send(ctx context.Context, tok *oauth2.Token, draft *models.Draft) (*mailer.SendResult, error)
}

// HistoryStore records and lists sent outreach
type HistoryStore interface {
	Record(ctx context.Context, rec *models.OutreachRecord) error
	List(ctx context.Context, userEmail string, limit int) ([]models.OutreachRecord, error)
}

// Deps are the collaborators the server routes requests to
type Deps struct {
	Agent    Drafter
	Identity Authenticator
	Sessions *session.Manager
	OAuth    Authorizer
	Mailer   Sender
	History  HistoryStore
	Events   events.Publisher
	Logger   *zap.Logger
}

// Options holds request policy
type Options struct {
	RequireLogin   bool
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server handles HTTP requests
type Server struct {
	agent    Drafter
	identity Authenticator
	sessions *session.Manager
	oauth    Authorizer
	mailer   Sender
	history  HistoryStore
	events   events.Publisher
	opts     Options
	limiter  *ipRateLimiter
	logger   *zap.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps, opts Options) *Server {
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		agent:    deps.Agent,
		identity: deps.Identity,
		sessions: deps.Sessions,
		oauth:    deps.OAuth,
		mailer:   deps.Mailer,
		history:  deps.History,
		events:   deps.Events,
		opts:     opts,
		limiter:  newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:   deps.Logger,
	}
}

// Close releases background work started by NewServer
func (s *Server) Close() {
	s.limiter.close()
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /form", s.withSession(s.gated(s.handleForm)))
	mux.Handle("GET /signup", s.withSession(s.handleSignupPage))
	mux.Handle("POST /signup", s.rateLimited(s.withSession(s.handleSignup)))
	mux.Handle("GET /login", s.withSession(s.handleLoginPage))
	mux.Handle("POST /login", s.rateLimited(s.withSession(s.handleLogin)))
	mux.Handle("POST /logout", s.withSession(s.handleLogout))

	mux.Handle("POST /generate-email", s.rateLimited(s.withSession(s.gated(s.handleGenerateEmail))))

	mux.Handle("GET /gmail-login", s.withSession(s.handleGmailLogin))
	mux.Handle("GET /authorize", s.withSession(s.handleAuthorize))
	mux.Handle("GET /send-email", s.withSession(s.handleSendEmail))
	mux.Handle("GET /sent", s.withSession(s.handleSent))

	mux.Handle("GET /history", s.withSession(s.authenticated(s.handleHistory)))
	mux.Handle("GET /history/export", s.withSession(s.authenticated(s.handleHistoryExport)))

	return s.loggingMiddleware(mux)
}

// handleRoot sends visitors to the submission form
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/form", http.StatusFound)
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// saveSession persists the request's session, answering 500 on failure
func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if err := s.sessions.Save(r.Context(), w, sess); err != nil {
		s.logger.Error("Failed to save session", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to save session")
		return false
	}
	return true
}
