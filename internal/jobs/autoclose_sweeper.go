package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alertops/alertd/internal/cache"
	"github.com/alertops/alertd/internal/database"
	"github.com/alertops/alertd/internal/rules"
	"github.com/alertops/alertd/internal/services"
)

const (
	sweepLockKey = "sweep:autoclose:lock"

	// The lock TTL must stay below the sweep interval: if the process dies
	// between acquire and release, the key expires before the next scheduled
	// run and the sweep cannot deadlock cluster-wide.
	sweepLockTTL = 50 * time.Second

	sweepBatchSize = 200
)

// AutoCloseSweeper periodically evaluates closure rules across the fleet of
// non-terminal alerts under a cluster-wide mutual-exclusion lock.
type AutoCloseSweeper struct {
	cache  cache.Cache
	store  *database.AlertStore
	engine *rules.Engine
	alerts *services.AlertService
}

// NewAutoCloseSweeper creates a new sweeper
func NewAutoCloseSweeper(c cache.Cache, store *database.AlertStore, engine *rules.Engine, alerts *services.AlertService) *AutoCloseSweeper {
	return &AutoCloseSweeper{
		cache:  c,
		store:  store,
		engine: engine,
		alerts: alerts,
	}
}

// RunOnce executes one sweep: acquire the lock, pull a bounded batch of OPEN
// or ESCALATED alerts, evaluate closure for each, and close the eligible ones.
// If another instance holds the lock the run is skipped entirely. One alert's
// failure never aborts the batch, and the lock is released unconditionally.
// Returns the number of alerts closed.
func (s *AutoCloseSweeper) RunOnce(ctx context.Context) (int, error) {
	acquired, err := s.cache.SetNX(ctx, sweepLockKey, "1", sweepLockTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		if err := s.cache.Delete(ctx, sweepLockKey); err != nil {
			log.Printf("AutoCloseSweeper: failed to release lock (will self-expire): %v", err)
		}
	}()

	candidates, err := s.store.ListOpenBatch(sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch sweep candidates: %w", err)
	}

	closed := 0
	for i := range candidates {
		alert := &candidates[i]

		decision, err := s.engine.EvaluateAutoClose(alert)
		if err != nil {
			log.Printf("AutoCloseSweeper: evaluation failed for alert %s: %v", alert.AlertID, err)
			continue
		}
		if !decision.Close {
			continue
		}

		if err := s.alerts.AutoCloseAlert(ctx, alert.ID, decision.Reason); err != nil {
			log.Printf("AutoCloseSweeper: failed to close alert %s: %v", alert.AlertID, err)
			continue
		}
		closed++
	}

	return closed, nil
}

// Start begins the periodic sweeps
func (s *AutoCloseSweeper) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			closed, err := s.RunOnce(context.Background())
			if err != nil {
				log.Printf("AutoCloseSweeper: sweep error: %v", err)
			} else if closed > 0 {
				log.Printf("AutoCloseSweeper: closed %d alerts", closed)
			}
		case <-stop:
			log.Println("AutoCloseSweeper stopped")
			return
		}
	}
}
