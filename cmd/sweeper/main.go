// The sweeper reclaims reservation holds whose owning process died before
// compensating. A live checkout clears its redis mirror entry when it
// cancels or expires; an entry that survives past the attempt deadline
// (inside the mirror's grace margin) marks orphaned holds that still need
// compensating cancellation against the backend.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisclient "github.com/redis/go-redis/v9"

	redisadapter "github.com/robertarktes/checkout-orchestrator/internal/adapters/redis"
	"github.com/robertarktes/checkout-orchestrator/internal/backend"
	"github.com/robertarktes/checkout-orchestrator/internal/config"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	mirror := redisadapter.NewMirror(redisClient)
	box := backend.NewClient(cfg.BackendBaseURL, logger)

	worker := NewSweeper(mirror, box, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown sweeper")
}

type HoldCanceller interface {
	CancelHold(ctx context.Context, holdID string) error
	FetchActiveHold(ctx context.Context, buyerID string) (string, error)
}

type Sweeper struct {
	mirror    *redisadapter.Mirror
	box       HoldCanceller
	logger    observability.Logger
	retryBase time.Duration
}

func NewSweeper(mirror *redisadapter.Mirror, box HoldCanceller, logger observability.Logger) *Sweeper {
	return &Sweeper{mirror: mirror, box: box, logger: logger, retryBase: time.Second}
}

func (w *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	buyers, err := w.mirror.Buyers(ctx)
	if err != nil {
		w.logger.Error("failed to scan hold mirror", err)
		return
	}

	for _, buyerID := range buyers {
		ttl, err := w.mirror.RemainingTTL(ctx, buyerID)
		if err != nil {
			w.logger.Error("failed to read mirror ttl", err)
			continue
		}
		if ttl > redisadapter.GraceMargin {
			// Attempt deadline not reached; its owner is expected to
			// compensate on its own.
			continue
		}
		if err := w.reclaim(ctx, buyerID); err != nil {
			w.logger.WithField("buyer_id", buyerID).Error("failed to reclaim orphaned holds", err)
		}
	}
}

func (w *Sweeper) reclaim(ctx context.Context, buyerID string) error {
	holdIDs, err := w.mirror.ActiveHolds(ctx, buyerID)
	if err != nil {
		return err
	}
	if len(holdIDs) == 0 {
		// Mirror entry without members; fall back to backend discovery.
		holdID, err := w.box.FetchActiveHold(ctx, buyerID)
		if err != nil {
			return err
		}
		if holdID != "" {
			holdIDs = []string{holdID}
		}
	}

	for _, holdID := range holdIDs {
		if err := w.cancelWithRetry(ctx, holdID); err != nil {
			return err
		}
		observability.HoldsCompensated.WithLabelValues("sweeper").Inc()
	}
	return w.mirror.ClearHolds(ctx, buyerID)
}

func (w *Sweeper) cancelWithRetry(ctx context.Context, holdID string) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := w.box.CancelHold(ctx, holdID)
		if err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		backoff := time.Duration(1<<i) * w.retryBase
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries", maxRetries)
}
