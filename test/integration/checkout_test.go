package integration

import (
	"context"
	"sort"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/robertarktes/checkout-orchestrator/internal/adapters/mongo"
	"github.com/robertarktes/checkout-orchestrator/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/checkout-orchestrator/internal/adapters/redis"
	"github.com/robertarktes/checkout-orchestrator/internal/domain"
	"github.com/robertarktes/checkout-orchestrator/internal/idempotency"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
	"github.com/robertarktes/checkout-orchestrator/internal/rateLimit"
)

func TestIntegration_HoldMirrorAndIdempotency(t *testing.T) {
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}

	client := redisclient.NewClient(&redisclient.Options{Addr: redisHost + ":" + redisPort.Port()})
	defer client.Close()
	mirror := redisadapter.NewMirror(client)

	// Mirror two holds and read them back the way the sweeper would.
	err = mirror.MirrorHolds(ctx, "buyer-1", []string{"h1", "h2"}, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	holds, err := mirror.ActiveHolds(ctx, "buyer-1")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(holds)
	if len(holds) != 2 || holds[0] != "h1" || holds[1] != "h2" {
		t.Fatalf("expected [h1 h2], got %v", holds)
	}

	ttl, err := mirror.RemainingTTL(ctx, "buyer-1")
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 10*time.Minute {
		t.Errorf("mirror entry must outlive the attempt deadline, ttl %v", ttl)
	}

	buyers, err := mirror.Buyers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(buyers) != 1 || buyers[0] != "buyer-1" {
		t.Fatalf("expected [buyer-1], got %v", buyers)
	}

	// Re-mirroring replaces the set rather than accumulating.
	err = mirror.MirrorHolds(ctx, "buyer-1", []string{"h3"}, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	holds, err = mirror.ActiveHolds(ctx, "buyer-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(holds) != 1 || holds[0] != "h3" {
		t.Fatalf("expected [h3], got %v", holds)
	}

	if err := mirror.ClearHolds(ctx, "buyer-1"); err != nil {
		t.Fatal(err)
	}
	holds, err = mirror.ActiveHolds(ctx, "buyer-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(holds) != 0 {
		t.Fatalf("expected cleared mirror, got %v", holds)
	}
	buyers, err = mirror.Buyers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(buyers) != 0 {
		t.Fatalf("expected no buyers after clear, got %v", buyers)
	}

	// Idempotency replay cache.
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(client), time.Hour)
	err = idemp.Set(ctx, "key-123", idempotency.Response{Status: 201, Result: []byte(`{"ok":true}`)})
	if err != nil {
		t.Fatal(err)
	}
	cached, err := idemp.Get(ctx, "key-123")
	if err != nil {
		t.Fatal(err)
	}
	if cached == nil || cached.Status != 201 || string(cached.Result) != `{"ok":true}` {
		t.Fatalf("expected cached response, got %+v", cached)
	}
	cached, err = idemp.Get(ctx, "key-unknown")
	if err != nil {
		t.Fatal(err)
	}
	if cached != nil {
		t.Fatalf("expected cache miss, got %+v", cached)
	}

	// Rate limiter counts per key per window.
	rl := rateLimit.NewRateLimiter(mirror)
	if !rl.Allow(ctx, "ip-1", 2, time.Minute) {
		t.Error("first request should pass")
	}
	if !rl.Allow(ctx, "ip-1", 2, time.Minute) {
		t.Error("second request should pass")
	}
	if rl.Allow(ctx, "ip-1", 2, time.Minute) {
		t.Error("third request should be limited")
	}
	if !rl.Allow(ctx, "ip-2", 2, time.Minute) {
		t.Error("other key should not be limited")
	}
}

func TestIntegration_CatalogAndAudit(t *testing.T) {
	ctx := context.Background()

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongosh", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	mongoHost, err := mongoContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoHost+":"+mongoPort.Port()))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	db := mongoClient.Database("checkout")
	logger := observability.NewLogger()

	catalog := mongoadapter.NewCatalogRepository(db, logger)
	offerings := []domain.TicketOffering{
		{ID: "tt-1", DateSessionID: "ds-1", TypeCode: "GA", UnitPrice: 5000, Label: "General", Available: 100},
		{ID: "tt-2", DateSessionID: "ds-1", TypeCode: "VIP", UnitPrice: 12000, Label: "VIP", Available: 20},
	}
	for _, o := range offerings {
		if err := catalog.UpsertOffering(ctx, "ev-1", o); err != nil {
			t.Fatal(err)
		}
	}

	listed, err := catalog.ListOfferings(ctx, "ev-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 offerings, got %d", len(listed))
	}

	// Upserting the same offering must update in place, not duplicate.
	offerings[0].Available = 50
	if err := catalog.UpsertOffering(ctx, "ev-1", offerings[0]); err != nil {
		t.Fatal(err)
	}
	listed, err = catalog.ListOfferings(ctx, "ev-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 offerings after upsert, got %d", len(listed))
	}
	for _, o := range listed {
		if o.ID == "tt-1" && o.Available != 50 {
			t.Errorf("expected availability 50 after upsert, got %d", o.Available)
		}
	}

	audit := mongoadapter.NewAuditLogger(db, logger)
	hold := domain.ReservationHold{
		ID:            "h1",
		DateSessionID: "ds-1",
		Entries:       []domain.HoldEntry{{TypeCode: "GA", Quantity: 2}},
		CreatedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(10 * time.Minute),
	}
	if err := audit.LogHold(ctx, "buyer-1", hold); err != nil {
		t.Fatal(err)
	}
	if err := audit.LogOrder(ctx, "buyer-1", domain.PaymentOrder{ID: "ord-1", HoldID: "h1", Subtotal: 10000, ServiceFee: 1000, Total: 11000}); err != nil {
		t.Fatal(err)
	}
	if err := audit.LogEvent(ctx, "attempt_expired", "buyer-1", map[string]interface{}{"attempt_id": "a1"}); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_EventPublishRoundTrip(t *testing.T) {
	ctx := context.Background()

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	rabbitHost, err := rabbitContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rabbitPort, err := rabbitContainer.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatal(err)
	}

	conn, err := amqp.Dial("amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// The publisher declares the exchange; the consumer binds to it and must
	// be listening before the publish.
	pub, err := rabbit.NewPublisher(conn)
	if err != nil {
		t.Fatal(err)
	}
	consumer, err := rabbit.NewConsumer(conn, "checkout.itest", "checkout.#")
	if err != nil {
		t.Fatal(err)
	}
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}

	err = pub.Publish(ctx, "checkout.state_changed", amqp.Publishing{
		ContentType: "application/json",
		Body:        []byte(`{"attempt_id":"a1","state":"HOLDING"}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-deliveries:
		if d.RoutingKey != "checkout.state_changed" {
			t.Errorf("unexpected routing key %s", d.RoutingKey)
		}
		if string(d.Body) != `{"attempt_id":"a1","state":"HOLDING"}` {
			t.Errorf("unexpected body %s", d.Body)
		}
		d.Ack(false)
	case <-time.After(10 * time.Second):
		t.Fatal("no delivery received")
	}
}
