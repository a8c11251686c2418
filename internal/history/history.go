package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fmuoria/cold-outreach-agent/internal/metrics"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// DefaultLimit caps List when no limit is given
const DefaultLimit = 200

// Repository stores sent outreach in the outreach_log table
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a history repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record inserts rec and fills in its id
func (r *Repository) Record(ctx context.Context, rec *models.OutreachRecord) error {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("insert", "outreach_log", time.Since(start))
	}()

	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}

	query := `
        INSERT INTO outreach_log (user_email, sender_address, recipient, recruiter_name, company, subject, message_id, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	err := r.db.QueryRow(ctx, query,
		rec.UserEmail, rec.SenderAddress, rec.Recipient, rec.RecruiterName,
		rec.Company, rec.Subject, rec.MessageID, rec.SentAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to record outreach: %w", err)
	}
	return nil
}

// List returns the most recent sends for userEmail, newest first
func (r *Repository) List(ctx context.Context, userEmail string, limit int) ([]models.OutreachRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("select", "outreach_log", time.Since(start))
	}()

	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `
        SELECT id, user_email, sender_address, recipient, recruiter_name, company, subject, message_id, sent_at
        FROM outreach_log
        WHERE user_email = $1
        ORDER BY sent_at DESC, id DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userEmail, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outreach: %w", err)
	}
	defer rows.Close()

	records := make([]models.OutreachRecord, 0)
	for rows.Next() {
		var rec models.OutreachRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserEmail, &rec.SenderAddress, &rec.Recipient, &rec.RecruiterName,
			&rec.Company, &rec.Subject, &rec.MessageID, &rec.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outreach: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list outreach: %w", err)
	}
	return records, nil
}
