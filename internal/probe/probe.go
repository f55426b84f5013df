// Package probe confirms a date-session's ticket inventory is queryable
// before dependent operations run. The backend creates inventory
// asynchronously after an event is published, so a fresh session may not be
// visible immediately.
package probe

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/robertarktes/checkout-orchestrator/internal/observability"
)

const (
	defaultMaxRetries = 6
	defaultBaseDelay  = 350 * time.Millisecond
	backoffMultiplier = 1.6
)

var errNotReady = errors.New("inventory not ready")

// InventoryChecker is the single backend operation the prober needs.
type InventoryChecker interface {
	ProbeInventoryExists(ctx context.Context, dateSessionID string) (bool, error)
}

type Prober struct {
	backend    InventoryChecker
	logger     observability.Logger
	maxRetries uint64
	baseDelay  time.Duration
}

func NewProber(backend InventoryChecker, logger observability.Logger) *Prober {
	return &Prober{
		backend:    backend,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
}

// AwaitReady polls the inventory-existence check with exponential backoff.
// Exhaustion returns false and is not fatal to callers: the backend remains
// the authority for downstream ticket-type creation, so "not visible yet"
// means proceed with caution, not abort.
func (p *Prober) AwaitReady(ctx context.Context, dateSessionID string) bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.baseDelay
	bo.Multiplier = backoffMultiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	op := func() error {
		exists, err := p.backend.ProbeInventoryExists(ctx, dateSessionID)
		if err != nil {
			return err
		}
		if !exists {
			return errNotReady
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.maxRetries), ctx))
	if err != nil {
		p.logger.WithField("date_session_id", dateSessionID).
			Warn("inventory readiness probe exhausted: ", err)
		return false
	}
	return true
}
