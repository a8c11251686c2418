package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func writeAPIError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": 400, "message": message},
	})
}

func newToolkitServer(t *testing.T) *httptest.Server {
	t.Helper()
	accounts := map[string]string{"jane@example.com": "hunter22"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/accounts:signInWithPassword", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "web-key" {
			writeAPIError(w, "API key not valid. Please pass a valid API key.")
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		email, _ := body["email"].(string)
		password, _ := body["password"].(string)
		if accounts[email] != password || password == "" {
			writeAPIError(w, "INVALID_LOGIN_CREDENTIALS")
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"localId": "jane-uid", "email": email})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIdentityToolkitStore_Verify(t *testing.T) {
	srv := newToolkitServer(t)
	store := NewIdentityToolkitStore(nil, srv.URL, "web-key", zap.NewNop())

	user, err := store.Verify(context.Background(), "jane@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if user.UID != "jane-uid" {
		t.Errorf("UID = %q, want jane-uid", user.UID)
	}

	if _, err := store.Verify(context.Background(), "jane@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Verify() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestIdentityToolkitStore_UnknownErrorPassesThrough(t *testing.T) {
	srv := newToolkitServer(t)
	store := NewIdentityToolkitStore(nil, srv.URL, "bad-key", zap.NewNop())

	_, err := store.Verify(context.Background(), "jane@example.com", "hunter22")
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Verify() error = %v, a rejected key is not a credential failure", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Verify() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
}

// TestIdentityToolkitStore_Emulator runs account management and sign-in
// against a local auth emulator, e.g.
// FIREBASE_AUTH_EMULATOR_HOST=localhost:9099
func TestIdentityToolkitStore_Emulator(t *testing.T) {
	host := os.Getenv("FIREBASE_AUTH_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIREBASE_AUTH_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	admin, err := NewAuthClient(ctx, "demo-outreach", nil)
	if err != nil {
		t.Fatalf("NewAuthClient() error = %v", err)
	}
	store := NewIdentityToolkitStore(admin, "http://"+host+"/identitytoolkit.googleapis.com", "fake-key", zap.NewNop())
	email := uuid.NewString() + "@example.com"

	if _, err := store.Lookup(ctx, email); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Lookup() error = %v, want ErrUserNotFound", err)
	}

	created, err := store.Create(ctx, email, "hunter22", "Jane Doe")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Name != "Jane Doe" {
		t.Errorf("Create() Name = %q, want Jane Doe", created.Name)
	}
	if _, err := store.Create(ctx, email, "hunter22", "Jane Doe"); !errors.Is(err, ErrEmailExists) {
		t.Errorf("Create() duplicate error = %v, want ErrEmailExists", err)
	}

	found, err := store.Lookup(ctx, email)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if found.UID != created.UID {
		t.Errorf("Lookup() UID = %q, want %q", found.UID, created.UID)
	}

	verified, err := store.Verify(ctx, email, "hunter22")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verified.UID != created.UID {
		t.Errorf("Verify() UID = %q, want %q", verified.UID, created.UID)
	}

	if err := store.Delete(ctx, created.UID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, created.UID); err != nil {
		t.Errorf("Delete() of a missing account error = %v", err)
	}
	if _, err := store.Lookup(ctx, email); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Lookup() after Delete error = %v, want ErrUserNotFound", err)
	}
}

func TestHasCode(t *testing.T) {
	tests := []struct {
		message string
		code    string
		want    bool
	}{
		{"EMAIL_EXISTS", "EMAIL_EXISTS", true},
		{"WEAK_PASSWORD : Password should be at least 6 characters", "WEAK_PASSWORD", true},
		{"EMAIL_EXISTS_ELSEWHERE", "EMAIL_EXISTS", false},
		{"", "EMAIL_EXISTS", false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := hasCode(tt.message, tt.code); got != tt.want {
				t.Errorf("hasCode(%q, %q) = %v, want %v", tt.message, tt.code, got, tt.want)
			}
		})
	}
}
