package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// DefaultIdentityToolkitURL is the public identity platform endpoint
const DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com"

// NewAuthClient builds an admin auth client from a service account key, or
// from application default credentials when credentialsJSON is empty.
// An empty projectID is taken from the credentials.
func NewAuthClient(ctx context.Context, projectID string, credentialsJSON []byte) (*auth.Client, error) {
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity platform app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity platform auth client: %w", err)
	}
	return client, nil
}

// IdentityToolkitStore keeps accounts on the identity platform. Account
// management goes through the admin SDK; password sign-in uses the web API
// key against the accounts REST API.
type IdentityToolkitStore struct {
	admin      *auth.Client
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewIdentityToolkitStore creates a store around an admin client and the
// web API key used for sign-in
func NewIdentityToolkitStore(admin *auth.Client, baseURL, apiKey string, logger *zap.Logger) *IdentityToolkitStore {
	if baseURL == "" {
		baseURL = DefaultIdentityToolkitURL
	}
	return &IdentityToolkitStore{
		admin:      admin,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Lookup finds an account by email
func (s *IdentityToolkitStore) Lookup(ctx context.Context, email string) (*models.User, error) {
	record, err := s.admin.GetUserByEmail(ctx, email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("identity platform lookup failed: %w", err)
	}
	return userFromRecord(record), nil
}

// Create registers an account
func (s *IdentityToolkitStore) Create(ctx context.Context, email, password, name string) (*models.User, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(name)

	record, err := s.admin.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("identity platform create failed: %w", err)
	}

	user := userFromRecord(record)
	if user.Name == "" {
		user.Name = name
	}
	return user, nil
}

// Delete removes the account with uid; a missing account is not an error
func (s *IdentityToolkitStore) Delete(ctx context.Context, uid string) error {
	if err := s.admin.DeleteUser(ctx, uid); err != nil && !auth.IsUserNotFound(err) {
		return fmt.Errorf("identity platform delete failed: %w", err)
	}
	return nil
}

func userFromRecord(record *auth.UserRecord) *models.User {
	if record == nil || record.UserInfo == nil {
		return &models.User{}
	}
	return &models.User{UID: record.UID, Email: record.Email, Name: record.DisplayName}
}

type signInResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a non-success reply from the accounts REST API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity platform error (status %d): %s", e.StatusCode, e.Message)
}

// Verify signs in with email and password
func (s *IdentityToolkitStore) Verify(ctx context.Context, email, password string) (*models.User, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	var resp signInResponse
	if err := s.post(ctx, s.keyed("accounts:signInWithPassword"), body, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isCredentialRejection(apiErr.Message) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return &models.User{UID: resp.LocalID, Email: resp.Email, Name: resp.DisplayName}, nil
}

func (s *IdentityToolkitStore) keyed(method string) string {
	return s.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(s.apiKey)
}

func (s *IdentityToolkitStore) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity platform request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read identity platform response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		s.logger.Debug("identity platform rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode identity platform response: %w", err)
	}
	return nil
}

// hasCode matches the error code prefix, e.g. "WEAK_PASSWORD : Password should be..."
func hasCode(message, code string) bool {
	return message == code || strings.HasPrefix(message, code+" ")
}

func isCredentialRejection(message string) bool {
	for _, code := range []string{"EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "INVALID_EMAIL"} {
		if hasCode(message, code) {
			return true
		}
	}
	return false
}
