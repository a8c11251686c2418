package models

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingFields is returned when a request lacks one of its required fields
var ErrMissingFields = errors.New("missing required fields")

// DefaultSubject is the fixed subject line of every outreach email
const DefaultSubject = "Let's Connect!"

// User is an authenticated account as seen by the application
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Profile is the display record kept alongside a credential
type Profile struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DraftRequest holds the form fields submitted with a résumé
type DraftRequest struct {
	FullName       string `json:"full_name"`
	Company        string `json:"company"`
	RecruiterName  string `json:"recruiter_name"`
	RecruiterEmail string `json:"recruiter_email"`
}

// Validate reports ErrMissingFields when any field is blank
func (r DraftRequest) Validate() error {
	for _, v := range []string{r.FullName, r.Company, r.RecruiterName, r.RecruiterEmail} {
		if strings.TrimSpace(v) == "" {
			return ErrMissingFields
		}
	}
	return nil
}

// Draft is a generated email waiting to be sent
type Draft struct {
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	Recipient     string    `json:"recipient"`
	RecruiterName string    `json:"recruiter_name"`
	Company       string    `json:"company"`
	CreatedAt     time.Time `json:"created_at"`
}

// Ready reports whether the draft has everything needed to send it
func (d *Draft) Ready() bool {
	return d != nil && strings.TrimSpace(d.Body) != "" && strings.TrimSpace(d.Recipient) != ""
}

// DraftResponse is returned by the generate endpoint
type DraftResponse struct {
	Email string `json:"email"`
}

// OutreachRecord is one sent email in a user's history
type OutreachRecord struct {
	ID            int64     `json:"id"`
	UserEmail     string    `json:"user_email"`
	SenderAddress string    `json:"sender_address"`
	Recipient     string    `json:"recipient"`
	RecruiterName string    `json:"recruiter_name"`
	Company       string    `json:"company"`
	Subject       string    `json:"subject"`
	MessageID     string    `json:"message_id"`
	SentAt        time.Time `json:"sent_at"`
}

// OutreachSentEvent is published after a successful send
type OutreachSentEvent struct {
	UserEmail string    `json:"user_email"`
	Recipient string    `json:"recipient"`
	Company   string    `json:"company"`
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}
