package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/fmuoria/cold-outreach-agent/internal/metrics"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// PostgresStore keeps bcrypt credentials and profiles in Postgres
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the users and profiles tables
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Lookup returns the account registered for email
func (s *PostgresStore) Lookup(ctx context.Context, email string) (*models.User, error) {
	defer observe("select", "users", time.Now())

	query := `
        SELECT uid, email
        FROM users
        WHERE email = $1
    `
	var u models.User
	err := s.db.QueryRow(ctx, query, email).Scan(&u.UID, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new account with a bcrypt-hashed password together with
// its profile. A profile left behind by an earlier account is taken over.
func (s *PostgresStore) Create(ctx context.Context, email, password, name string) (*models.User, error) {
	defer observe("insert", "users", time.Now())

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &models.User{
		UID:   uuid.New().String(),
		Email: email,
		Name:  name,
	}
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		query := `
            INSERT INTO users (uid, email, password_hash, created_at)
            VALUES ($1, $2, $3, NOW())
        `
		if _, err := tx.Exec(ctx, query, u.UID, u.Email, string(hash)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, upsertProfileQuery, u.UID, u.Email, u.Name, time.Now().UTC())
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return u, nil
}

// Delete removes the account and its profile
func (s *PostgresStore) Delete(ctx context.Context, uid string) error {
	defer observe("delete", "users", time.Now())

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE uid = $1`, uid); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM users WHERE uid = $1`, uid)
		return err
	})
}

// Verify compares password against the stored hash
func (s *PostgresStore) Verify(ctx context.Context, email, password string) (*models.User, error) {
	defer observe("select", "users", time.Now())

	query := `
        SELECT uid, email, password_hash
        FROM users
        WHERE email = $1
    `
	var u models.User
	var hash string
	err := s.db.QueryRow(ctx, query, email).Scan(&u.UID, &u.Email, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// upsertProfileQuery keys profiles on email so a record orphaned by a
// removed account is replaced rather than blocking the address
const upsertProfileQuery = `
    INSERT INTO profiles (uid, email, name, created_at)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (email) DO UPDATE SET uid = EXCLUDED.uid, name = EXCLUDED.name
`

// SaveProfile inserts or replaces the profile for profile.Email
func (s *PostgresStore) SaveProfile(ctx context.Context, profile models.Profile) error {
	defer observe("upsert", "profiles", time.Now())

	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, upsertProfileQuery, profile.UID, profile.Email, profile.Name, createdAt)
	return err
}

// GetProfile returns the profile stored for email
func (s *PostgresStore) GetProfile(ctx context.Context, email string) (*models.Profile, error) {
	defer observe("select", "profiles", time.Now())

	query := `
        SELECT uid, email, name, created_at
        FROM profiles
        WHERE email = $1
    `
	var p models.Profile
	err := s.db.QueryRow(ctx, query, email).Scan(&p.UID, &p.Email, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func observe(operation, table string, start time.Time) {
	metrics.RecordDBQueryDuration(operation, table, time.Since(start))
}
