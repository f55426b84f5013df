package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/checkout-orchestrator/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/checkout-orchestrator/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/checkout-orchestrator/internal/adapters/redis"
	"github.com/robertarktes/checkout-orchestrator/internal/backend"
	"github.com/robertarktes/checkout-orchestrator/internal/checkout"
	"github.com/robertarktes/checkout-orchestrator/internal/config"
	httphandler "github.com/robertarktes/checkout-orchestrator/internal/http"
	"github.com/robertarktes/checkout-orchestrator/internal/idempotency"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
	"github.com/robertarktes/checkout-orchestrator/internal/probe"
	"github.com/robertarktes/checkout-orchestrator/internal/rateLimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	journal := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("checkout")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	mirror := redisadapter.NewMirror(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(mirror)

	// Rabbit is only dialed to fail fast on bad config; publishing itself
	// goes through the outbox publisher process.
	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()

	box := backend.NewClient(cfg.BackendBaseURL, logger)
	prober := probe.NewProber(box, logger)
	flow := checkout.NewOrchestrator(box, mirror, journal, logger, cfg.CheckoutTTL)

	handlers := httphandler.NewHandlers(flow, catalog, box, prober, idemp, audit, logger)

	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
