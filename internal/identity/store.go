package identity

import (
	"context"
	"errors"

	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

var (
	// ErrEmailExists is returned when signing up with an address that already has an account
	ErrEmailExists = errors.New("email already exists")
	// ErrInvalidCredentials is returned when an email/password pair does not verify
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound is returned by Lookup when no account uses the address
	ErrUserNotFound = errors.New("user not found")
	// ErrProfileNotFound is returned when no profile record exists for an address
	ErrProfileNotFound = errors.New("profile not found")
)

// CredentialStore creates and verifies email/password accounts
type CredentialStore interface {
	// Lookup returns the account for email or ErrUserNotFound
	Lookup(ctx context.Context, email string) (*models.User, error)
	// Create registers a new account or returns ErrEmailExists
	Create(ctx context.Context, email, password, name string) (*models.User, error)
	// Verify checks the password or returns ErrInvalidCredentials
	Verify(ctx context.Context, email, password string) (*models.User, error)
	// Delete removes the account with uid. Deleting a missing account succeeds.
	Delete(ctx context.Context, uid string) error
}

// ProfileStore keeps the display record attached to each account
type ProfileStore interface {
	SaveProfile(ctx context.Context, profile models.Profile) error
	GetProfile(ctx context.Context, email string) (*models.Profile, error)
}
