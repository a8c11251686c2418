package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmuoria/cold-outreach-agent/internal/db"
	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

func TestRepository_RecordAndList(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, url, zap.NewNop())
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := NewRepository(pool)
	owner := uuid.NewString() + "@example.com"
	base := time.Now().UTC().Truncate(time.Second)

	for i, company := range []string{"Acme", "Globex"} {
		rec := &models.OutreachRecord{
			UserEmail: owner,
			Recipient: "hr@" + company + ".com",
			Company:   company,
			Subject:   models.DefaultSubject,
			MessageID: company,
			SentAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if rec.ID == 0 {
			t.Error("Record() should assign an id")
		}
	}

	got, err := repo.List(ctx, owner, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(got))
	}
	if got[0].Company != "Globex" {
		t.Errorf("first record = %q, want newest (Globex)", got[0].Company)
	}

	other, err := repo.List(ctx, "nobody-"+owner, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("List() for another user returned %d records", len(other))
	}
}
