package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/metrics"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// DefaultDisplayName is used when an account has no profile name
const DefaultDisplayName = "User"

// Service implements signup and login on top of a credential store
type Service struct {
	credentials CredentialStore
	profiles    ProfileStore
	logger      *zap.Logger
}

// NewService creates a new identity service
func NewService(credentials CredentialStore, profiles ProfileStore, logger *zap.Logger) *Service {
	return &Service{
		credentials: credentials,
		profiles:    profiles,
		logger:      logger,
	}
}

// Signup creates a credential and profile for a new address.
// Nothing is created when the address is already registered, and the
// credential is removed again when its profile cannot be saved.
func (s *Service) Signup(ctx context.Context, email, password, fullName string) (*models.User, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" || password == "" || fullName == "" {
		return nil, models.ErrMissingFields
	}

	user, err := s.signup(ctx, email, password, fullName)
	status := "success"
	switch {
	case errors.Is(err, ErrEmailExists):
		status = "conflict"
	case err != nil:
		status = "error"
	}
	metrics.IncrementAuthAttempts("signup", status)
	return user, err
}

func (s *Service) signup(ctx context.Context, email, password, fullName string) (*models.User, error) {
	_, err := s.credentials.Lookup(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailExists
	case errors.Is(err, ErrUserNotFound):
	default:
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	user, err := s.credentials.Create(ctx, email, password, fullName)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	profile := models.Profile{
		UID:       user.UID,
		Email:     user.Email,
		Name:      fullName,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.profiles.SaveProfile(ctx, profile); err != nil {
		s.rollback(ctx, user.UID)
		// not wrapped: a profile conflict must not read as a taken address
		return nil, fmt.Errorf("failed to save profile: %v", err)
	}

	s.logger.Info("account created", zap.String("uid", user.UID))
	user.Name = fullName
	return user, nil
}

// rollback removes a credential whose profile was never written
func (s *Service) rollback(ctx context.Context, uid string) {
	if err := s.credentials.Delete(context.WithoutCancel(ctx), uid); err != nil {
		s.logger.Error("failed to remove credential after profile error",
			zap.String("uid", uid),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("signup rolled back", zap.String("uid", uid))
}

// Login verifies the password and resolves the display name from the profile
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, models.ErrMissingFields
	}

	user, err := s.login(ctx, email, password)
	status := "success"
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		status = "rejected"
	case err != nil:
		status = "error"
	}
	metrics.IncrementAuthAttempts("login", status)
	return user, err
}

func (s *Service) login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.credentials.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}

	user.Name = DefaultDisplayName
	profile, err := s.profiles.GetProfile(ctx, user.Email)
	switch {
	case err == nil && strings.TrimSpace(profile.Name) != "":
		user.Name = profile.Name
	case err != nil && !errors.Is(err, ErrProfileNotFound):
		s.logger.Warn("failed to load profile", zap.String("uid", user.UID), zap.Error(err))
	}

	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
