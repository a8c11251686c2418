package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

func testDraft() *models.Draft {
	return &models.Draft{
		Subject:   models.DefaultSubject,
		Body:      "Hi Bob, My name is Jane Doe.\n\nI would love to chat about roles at Acme, café included.",
		Recipient: "bob@acme.com",
	}
}

func validToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "ya29.valid", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
}

func TestBuildMessage(t *testing.T) {
	draft := testDraft()
	raw, err := BuildMessage(draft, "jane@gmail.com")
	if err != nil {
		t.Fatalf("BuildMessage() error = %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader() error = %v", err)
	}

	to, err := mr.Header.AddressList("To")
	if err != nil || len(to) != 1 || to[0].Address != "bob@acme.com" {
		t.Errorf("To = %v, %v", to, err)
	}
	from, err := mr.Header.AddressList("From")
	if err != nil || len(from) != 1 || from[0].Address != "jane@gmail.com" {
		t.Errorf("From = %v, %v", from, err)
	}
	subject, err := mr.Header.Subject()
	if err != nil || subject != "Let's Connect!" {
		t.Errorf("Subject = %q, %v", subject, err)
	}
	mediaType, params, err := mr.Header.ContentType()
	if err != nil || mediaType != "text/plain" || !strings.EqualFold(params["charset"], "utf-8") {
		t.Errorf("Content-Type = %q %v, %v", mediaType, params, err)
	}
	if mr.Header.Get("Mime-Version") != "1.0" {
		t.Errorf("Mime-Version = %q", mr.Header.Get("Mime-Version"))
	}

	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	body, _ := io.ReadAll(part.Body)
	// quoted-printable text uses CRLF line endings on the wire
	if got := strings.ReplaceAll(string(body), "\r\n", "\n"); got != draft.Body {
		t.Errorf("body = %q, want %q", body, draft.Body)
	}
}

func TestBuildMessage_Incomplete(t *testing.T) {
	tests := []struct {
		name  string
		draft *models.Draft
	}{
		{"Nil draft", nil},
		{"Empty body", &models.Draft{Recipient: "bob@acme.com"}},
		{"Empty recipient", &models.Draft{Body: "Hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildMessage(tt.draft, ""); !errors.Is(err, ErrIncompleteDraft) {
				t.Errorf("BuildMessage() error = %v, want ErrIncompleteDraft", err)
			}
		})
	}
}

func TestEncodeRaw(t *testing.T) {
	msg := []byte("Subject: ??>>\r\n\r\n\xff\xfe")
	encoded := EncodeRaw(msg)
	if strings.ContainsAny(encoded, "+/") {
		t.Errorf("EncodeRaw() = %q, want URL-safe alphabet", encoded)
	}
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil || !bytes.Equal(decoded, msg) {
		t.Errorf("decoded = %q, %v", decoded, err)
	}
}

type fakeGmail struct {
	profileStatus int
	sendStatus    int
	sendBody      string
	sends         atomic.Int32
	lastRaw       string
	lastAuth      string
}

func (f *fakeGmail) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		if f.profileStatus != 0 {
			w.WriteHeader(f.profileStatus)
			w.Write([]byte(`{"error":{"message":"profile unavailable"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"emailAddress":"jane@gmail.com"}`))
	})
	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		f.sends.Add(1)
		f.lastAuth = r.Header.Get("Authorization")
		var msg struct {
			Raw string `json:"raw"`
		}
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode send body: %v", err)
		}
		f.lastRaw = msg.Raw
		if f.sendStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.sendStatus)
			w.Write([]byte(f.sendBody))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg-123","threadId":"thr-1"}`))
	})
	return mux
}

func newTestSender(t *testing.T, f *fakeGmail) *GmailSender {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	s := NewGmailSender(zap.NewNop())
	s.endpoint = srv.URL + "/"
	return s
}

func TestSend(t *testing.T) {
	f := &fakeGmail{}
	s := newTestSender(t, f)

	res, err := s.Send(context.Background(), validToken(), testDraft())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.MessageID != "msg-123" || res.From != "jane@gmail.com" {
		t.Errorf("Send() = %+v", res)
	}
	if f.lastAuth != "Bearer ya29.valid" {
		t.Errorf("Authorization = %q", f.lastAuth)
	}

	raw, err := base64.URLEncoding.DecodeString(f.lastRaw)
	if err != nil {
		t.Fatalf("raw is not base64url: %v", err)
	}
	if !bytes.Contains(raw, []byte("bob@acme.com")) {
		t.Error("raw message does not address the recipient")
	}
}

func TestSend_ProfileFailureIsNotFatal(t *testing.T) {
	f := &fakeGmail{profileStatus: http.StatusInternalServerError}
	s := newTestSender(t, f)

	res, err := s.Send(context.Background(), validToken(), testDraft())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.From != "" {
		t.Errorf("From = %q, want empty", res.From)
	}
	if f.sends.Load() != 1 {
		t.Errorf("sends = %d, want 1", f.sends.Load())
	}
}

func TestSend_Errors(t *testing.T) {
	expired := &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)}

	tests := []struct {
		name      string
		token     *oauth2.Token
		draft     *models.Draft
		gmail     *fakeGmail
		wantSends int32
		check     func(t *testing.T, err error)
	}{
		{
			name:  "Missing draft makes no call",
			token: validToken(),
			draft: nil,
			gmail: &fakeGmail{},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrIncompleteDraft) {
					t.Errorf("error = %v, want ErrIncompleteDraft", err)
				}
			},
		},
		{
			name:  "Missing token",
			token: nil,
			draft: testDraft(),
			gmail: &fakeGmail{},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrReauthRequired) {
					t.Errorf("error = %v, want ErrReauthRequired", err)
				}
			},
		},
		{
			name:  "Expired token is not refreshed",
			token: expired,
			draft: testDraft(),
			gmail: &fakeGmail{},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrReauthRequired) {
					t.Errorf("error = %v, want ErrReauthRequired", err)
				}
			},
		},
		{
			name:      "Revoked token",
			token:     validToken(),
			draft:     testDraft(),
			gmail:     &fakeGmail{sendStatus: http.StatusUnauthorized, sendBody: `{"error":{"code":401,"message":"Invalid Credentials"}}`},
			wantSends: 1,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrReauthRequired) {
					t.Errorf("error = %v, want ErrReauthRequired", err)
				}
			},
		},
		{
			name:      "API rejection",
			token:     validToken(),
			draft:     testDraft(),
			gmail:     &fakeGmail{sendStatus: http.StatusBadRequest, sendBody: `{"error":{"code":400,"message":"Invalid To header"}}`},
			wantSends: 1,
			check: func(t *testing.T, err error) {
				var sendErr *SendError
				if !errors.As(err, &sendErr) {
					t.Fatalf("error = %v, want *SendError", err)
				}
				if sendErr.StatusCode != http.StatusBadRequest || sendErr.Details != "Invalid To header" {
					t.Errorf("SendError = %+v", sendErr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSender(t, tt.gmail)
			res, err := s.Send(context.Background(), tt.token, tt.draft)
			if res != nil {
				t.Errorf("Send() result = %+v, want nil", res)
			}
			tt.check(t, err)
			if got := tt.gmail.sends.Load(); got != tt.wantSends {
				t.Errorf("sends = %d, want %d", got, tt.wantSends)
			}
		})
	}
}
