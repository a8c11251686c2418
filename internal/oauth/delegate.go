package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

var (
	// ErrStateMismatch is returned when the callback state does not match the session
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrMissingCode is returned when the callback carries no authorization code
	ErrMissingCode = errors.New("authorization code missing")
)

// ProviderError is an error reported by the provider on the callback
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s (%s)", e.Code, e.Description)
	}
	return "authorization denied: " + e.Code
}

// Delegate runs the authorization-code flow that grants this app permission
// to send mail as the user
type Delegate struct {
	config *oauth2.Config
}

// NewDelegate creates a delegate for a Google OAuth client
func NewDelegate(clientID, clientSecret, redirectURL string) *Delegate {
	return &Delegate{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{gmail.GmailSendScope},
			Endpoint:     google.Endpoint,
		},
	}
}

// NewDelegateFromFile reads a downloaded client credentials JSON.
// redirectURL replaces the first redirect URI in the file when non-empty.
func NewDelegateFromFile(path, redirectURL string) (*Delegate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secrets file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secrets: %w", err)
	}
	if redirectURL != "" {
		config.RedirectURL = redirectURL
	}
	return &Delegate{config: config}, nil
}

// NewState returns a random value to bind a callback to the session that started it
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthCodeURL is the consent page URL. Offline access with forced consent
// makes the provider return a refresh token on every grant.
func (d *Delegate) AuthCodeURL(state string) string {
	return d.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Callback holds the query parameters of the redirect back from the provider
type Callback struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// Exchange validates the callback against the expected state and trades
// the code for a token
func (d *Delegate) Exchange(ctx context.Context, expectedState string, cb Callback) (*oauth2.Token, error) {
	if cb.Error != "" {
		return nil, &ProviderError{Code: cb.Error, Description: cb.ErrorDescription}
	}
	if expectedState == "" || subtle.ConstantTimeCompare([]byte(expectedState), []byte(cb.State)) != 1 {
		return nil, ErrStateMismatch
	}
	if cb.Code == "" {
		return nil, ErrMissingCode
	}

	tok, err := d.config.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

// Config exposes the underlying oauth2 configuration
func (d *Delegate) Config() *oauth2.Config {
	return d.config
}
