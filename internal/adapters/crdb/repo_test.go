package crdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/robertarktes/checkout-orchestrator/internal/adapters/crdb"
	"github.com/robertarktes/checkout-orchestrator/internal/domain"
)

func startCRDB(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	host, err := crdbContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, "postgresql://root@"+host+":"+port.Port()+"/checkout?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE DATABASE IF NOT EXISTS checkout;
		CREATE TABLE IF NOT EXISTS checkout_attempts (
			id UUID PRIMARY KEY,
			buyer_id TEXT NOT NULL,
			state TEXT CHECK (state IN ('IDLE', 'HOLDING', 'PAID', 'EXPIRED', 'CANCELLED')),
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS attempt_holds (
			hold_id TEXT PRIMARY KEY,
			attempt_id UUID,
			date_session_id TEXT,
			entries_json JSONB,
			created_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS payment_orders (
			id TEXT PRIMARY KEY,
			attempt_id UUID,
			hold_id TEXT,
			subtotal BIGINT,
			service_fee BIGINT,
			total BIGINT
		);
		CREATE TABLE IF NOT EXISTS outbox (
			id UUID PRIMARY KEY,
			aggregate_type TEXT,
			aggregate_id TEXT,
			event_type TEXT,
			payload_json JSONB,
			created_at TIMESTAMPTZ DEFAULT now(),
			published_at TIMESTAMPTZ,
			status TEXT,
			dedupe_key TEXT UNIQUE
		);
	`)
	if err != nil {
		t.Fatal(err)
	}
	return pool
}

func TestRepository_AttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := startCRDB(t, ctx)
	repo := crdb.NewRepository(pool)

	attemptID := "3b2e9c52-7d42-4a58-93f5-0a9b1f6f2f11"
	expiresAt := time.Now().Add(10 * time.Minute)

	if err := repo.AttemptOpened(ctx, attemptID, "buyer-1", expiresAt); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	state, err := repo.GetAttemptState(ctx, attemptID)
	if err != nil {
		t.Fatal(err)
	}
	if state != "IDLE" {
		t.Errorf("expected IDLE, got %s", state)
	}

	hold := domain.ReservationHold{
		ID:            "h1",
		DateSessionID: "ds-1",
		Entries:       []domain.HoldEntry{{TypeCode: "GA", Quantity: 2}},
		CreatedAt:     time.Now(),
		ExpiresAt:     expiresAt,
	}
	if err := repo.HoldCreated(ctx, attemptID, hold); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := repo.StateChanged(ctx, attemptID, "HOLDING"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	state, err = repo.GetAttemptState(ctx, attemptID)
	if err != nil {
		t.Fatal(err)
	}
	if state != "HOLDING" {
		t.Errorf("expected HOLDING, got %s", state)
	}

	order := domain.PaymentOrder{ID: "ord-1", HoldID: "h1", Subtotal: 200, ServiceFee: 20, Total: 220}
	if err := repo.OrderCreated(ctx, attemptID, order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Errorf("expected 4 staged events, got %d", len(records))
	}

	if err := repo.MarkPublished(ctx, records[0].ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	records, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 staged events after publish, got %d", len(records))
	}
}

func TestRepository_StateChangedUnknownAttempt(t *testing.T) {
	ctx := context.Background()
	pool := startCRDB(t, ctx)
	repo := crdb.NewRepository(pool)

	err := repo.StateChanged(ctx, "7f1d6a10-0000-4000-8000-000000000000", "EXPIRED")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRepository_HoldCreatedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := startCRDB(t, ctx)
	repo := crdb.NewRepository(pool)

	attemptID := "9d8f4a26-aa11-4a58-93f5-0a9b1f6f2f22"
	if err := repo.AttemptOpened(ctx, attemptID, "buyer-2", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}

	hold := domain.ReservationHold{ID: "h-dup", DateSessionID: "ds-1", ExpiresAt: time.Now().Add(10 * time.Minute)}
	if err := repo.HoldCreated(ctx, attemptID, hold); err != nil {
		t.Fatal(err)
	}
	if err := repo.HoldCreated(ctx, attemptID, hold); err != nil {
		t.Fatalf("replayed journal write must not error, got %v", err)
	}
}
