package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// ErrNotFound is returned when a session id has no stored data
var ErrNotFound = errors.New("session not found")

// Data is everything kept server-side for one browser session
type Data struct {
	UserEmail  string        `json:"user_email,omitempty"`
	UserName   string        `json:"user_name,omitempty"`
	Draft      *models.Draft `json:"draft,omitempty"`
	Token      *oauth2.Token `json:"token,omitempty"`
	OAuthState string        `json:"oauth_state,omitempty"`
}

// Authenticated reports whether a user has logged in on this session
func (d *Data) Authenticated() bool {
	return d != nil && d.UserEmail != ""
}

// Store persists session data by id. Implementations must be safe for
// concurrent use.
type Store interface {
	Load(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, id string, data *Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
