package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/alertops/alertd/internal/cache"
	"github.com/alertops/alertd/internal/database"
)

const (
	countsCacheKey       = "dashboard:counts"
	topOffendersCacheKey = "dashboard:top_offenders"
	dashboardCacheTTL    = 30 * time.Second

	// DefaultTopOffendersLimit is used when the caller passes no limit
	DefaultTopOffendersLimit = 5
)

// DashboardService serves the aggregate dashboard views through a
// read-through cache. Cache reads that miss, fail, or return garbage fall
// through to a recompute against the store of record; cache writes and
// invalidations are best-effort and never fail the caller, since entries
// expire via TTL anyway.
type DashboardService struct {
	store *database.AlertStore
	cache cache.Cache
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(store *database.AlertStore, c cache.Cache) *DashboardService {
	return &DashboardService{store: store, cache: c}
}

// Counts returns the grouping of all alerts by (severity, status)
func (s *DashboardService) Counts(ctx context.Context) ([]database.SeverityStatusCount, error) {
	if cached, ok := s.cacheGet(ctx, countsCacheKey); ok {
		var rows []database.SeverityStatusCount
		if err := json.Unmarshal([]byte(cached), &rows); err == nil {
			return rows, nil
		}
		log.Printf("DashboardService: invalid cache for %s, recomputing", countsCacheKey)
	}

	rows, err := s.store.CountsBySeverityStatus()
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, countsCacheKey, rows)
	return rows, nil
}

// TopOffenders returns the entities with the most alerts currently open or
// escalated, ordered by count descending.
func (s *DashboardService) TopOffenders(ctx context.Context, limit int) ([]database.TopOffender, error) {
	if limit <= 0 {
		limit = DefaultTopOffendersLimit
	}

	if cached, ok := s.cacheGet(ctx, topOffendersCacheKey); ok {
		var rows []database.TopOffender
		if err := json.Unmarshal([]byte(cached), &rows); err == nil {
			if len(rows) > limit {
				rows = rows[:limit]
			}
			return rows, nil
		}
		log.Printf("DashboardService: invalid cache for %s, recomputing", topOffendersCacheKey)
	}

	rows, err := s.store.TopOffenders(limit)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, topOffendersCacheKey, rows)
	return rows, nil
}

// Invalidate deletes both dashboard keys so the next read recomputes.
// Called after every alert mutation; failures are logged and swallowed so a
// cache outage never aborts a lifecycle operation.
func (s *DashboardService) Invalidate(ctx context.Context) {
	for _, key := range []string{countsCacheKey, topOffendersCacheKey} {
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Printf("DashboardService: failed to invalidate %s: %v", key, err)
		}
	}
}

func (s *DashboardService) cacheGet(ctx context.Context, key string) (string, bool) {
	val, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Printf("DashboardService: cache get %s failed: %v", key, err)
		return "", false
	}
	return val, ok
}

func (s *DashboardService) cacheSet(ctx context.Context, key string, rows interface{}) {
	raw, err := json.Marshal(rows)
	if err != nil {
		log.Printf("DashboardService: failed to marshal %s: %v", key, err)
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), dashboardCacheTTL); err != nil {
		log.Printf("DashboardService: cache set %s failed: %v", key, err)
	}
}
