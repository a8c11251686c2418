package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is the data for one request plus the id it is stored under
type Session struct {
	ID   string
	Data *Data
	// fresh is set when no valid cookie came with the request
	fresh bool
}

// IsNew reports whether the session was created for this request
func (s *Session) IsNew() bool {
	return s.fresh
}

// Manager binds sessions to requests through a signed cookie carrying the id
type Manager struct {
	store      Store
	secret     []byte
	cookieName string
	ttl        time.Duration
	secure     bool
	logger     *zap.Logger
}

// ManagerOptions configures a Manager
type ManagerOptions struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// NewManager creates a session manager on top of store
func NewManager(store Store, opts ManagerOptions, logger *zap.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "outreach_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Manager{
		store:      store,
		secret:     []byte(opts.Secret),
		cookieName: opts.CookieName,
		ttl:        opts.TTL,
		secure:     opts.Secure,
		logger:     logger,
	}
}

// Load returns the session named by the request cookie, or a fresh empty
// session when the cookie is missing, forged, expired or unknown.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return m.newSession(), nil
	}

	id, err := m.parseToken(cookie.Value)
	if err != nil {
		m.logger.Debug("discarding invalid session cookie", zap.Error(err))
		return m.newSession(), nil
	}

	data, err := m.store.Load(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return m.newSession(), nil
	}
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, Data: data}, nil
}

// Save persists the session and refreshes its cookie
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Save(ctx, s.ID, s.Data, m.ttl); err != nil {
		return err
	}

	token, err := m.signToken(s.ID)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.fresh = false
	return nil
}

// Destroy removes the stored data and expires the cookie
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.Data = &Data{}
	return nil
}

// Renew moves the session to a new id, used after login to avoid fixation
func (m *Manager) Renew(ctx context.Context, s *Session) error {
	if !s.fresh {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return err
		}
	}
	s.ID = uuid.NewString()
	return nil
}

func (m *Manager) newSession() *Session {
	return &Session{ID: uuid.NewString(), Data: &Data{}, fresh: true}
}

func (m *Manager) signToken(id string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return signed, nil
}

func (m *Manager) parseToken(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.ID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.ID, nil
}

type contextKey struct{}

// NewContext returns a context carrying s
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by NewContext, if any
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}
