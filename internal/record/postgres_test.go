package record

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres spins up a disposable Postgres container and returns a
// connected handle with the schema applied. Skips when Docker is not
// available.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("records_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresRepository(db)
	ctx := context.Background()

	rec := &Record{
		Type:      "vouchers",
		Fields:    map[string]any{"voucherNumber": "V-12", "subject": "renewal"},
		FileURL:   "https://bucket.s3.eu-west-1.amazonaws.com/key",
		CreatedBy: "u1",
	}
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetByID(ctx, "vouchers", rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fields["subject"] != "renewal" || got.FileURL != rec.FileURL || got.CreatedBy != "u1" {
		t.Errorf("round trip lost data: %+v", got)
	}

	got.Fields["subject"] = "amended"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	records, err := repo.List(ctx, "vouchers")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Fields["subject"] != "amended" {
		t.Errorf("list wrong: %+v", records)
	}

	if err := repo.Delete(ctx, "vouchers", rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, "vouchers", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPostgresRepositorySerialConstraint(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresRepository(db)
	ctx := context.Background()

	a := &Record{Type: "purchaseorders", Fields: map[string]any{"purchasingId": "PO-260828001"}}
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	b := &Record{Type: "purchaseorders", Fields: map[string]any{"purchasingId": "PO-260828001"}}
	if err := repo.Insert(ctx, b); !errors.Is(err, ErrDuplicateSerial) {
		t.Errorf("got %v, want ErrDuplicateSerial", err)
	}

	// The same value under another type does not collide.
	c := &Record{Type: "collectionorders", Fields: map[string]any{"collectingId": "PO-260828001"}}
	if err := repo.Insert(ctx, c); err != nil {
		t.Errorf("cross-type serial rejected: %v", err)
	}
}

func TestPostgresRepositoryMaxSerial(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresRepository(db)
	ctx := context.Background()

	for _, serial := range []string{"PO-260828001", "PO-260828002", "PO-260827009"} {
		rec := &Record{Type: "purchaseorders", Fields: map[string]any{"purchasingId": serial}}
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", serial, err)
		}
	}

	got, err := repo.MaxSerial(ctx, "purchaseorders", "PO-260828")
	if err != nil {
		t.Fatalf("max serial: %v", err)
	}
	if got != "PO-260828002" {
		t.Errorf("got %q, want PO-260828002", got)
	}

	// A suffix past its pad width must outrank the lexicographically
	// larger two-digit serial.
	for _, serial := range []string{"26082899", "260828100"} {
		rec := &Record{Type: "outgoings", Fields: map[string]any{"identifier": serial}}
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", serial, err)
		}
	}
	got, err = repo.MaxSerial(ctx, "outgoings", "260828")
	if err != nil {
		t.Fatalf("max serial: %v", err)
	}
	if got != "260828100" {
		t.Errorf("got %q, want 260828100", got)
	}
}
