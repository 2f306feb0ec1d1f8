package rules

import (
	"fmt"
	"time"

	"github.com/alertops/alertd/internal/database"
)

// EventCounter counts alerts sharing a source type and entity within a
// trailing window. Implemented by database.AlertStore.
type EventCounter interface {
	CountRecent(sourceType, entityID string, since time.Time) (int64, error)
}

// CreateDecision is the outcome of evaluating creation-time rules
type CreateDecision struct {
	Escalate bool
	To       string
	Reason   string
}

// CloseDecision is the outcome of evaluating auto-close rules
type CloseDecision struct {
	Close  bool
	Reason string
}

// Engine evaluates rules against a single alert snapshot. It holds no rule
// state of its own: definitions are read fresh from the store on every call.
type Engine struct {
	store  *Store
	events EventCounter
}

// NewEngine creates a rule engine backed by the given store and event counter
func NewEngine(store *Store, events EventCounter) *Engine {
	return &Engine{store: store, events: events}
}

// EvaluateOnCreate checks the escalation trigger for a freshly created alert.
// The alert is already persisted when this runs, so the windowed count
// includes the alert itself and the comparison is count >= threshold.
func (e *Engine) EvaluateOnCreate(alert *database.Alert) (CreateDecision, error) {
	set, err := e.store.Load()
	if err != nil {
		return CreateDecision{}, err
	}

	rule, ok := set.Lookup(alert.SourceType)
	if !ok {
		return CreateDecision{}, nil
	}

	if rule.EscalateIfCount <= 0 || rule.WindowMins <= 0 || alert.EntityID == nil {
		return CreateDecision{}, nil
	}

	since := time.Now().Add(-time.Duration(rule.WindowMins) * time.Minute)
	count, err := e.events.CountRecent(alert.SourceType, *alert.EntityID, since)
	if err != nil {
		return CreateDecision{}, fmt.Errorf("failed to count events for %s/%s: %w", alert.SourceType, *alert.EntityID, err)
	}

	if count >= int64(rule.EscalateIfCount) {
		to := rule.EscalateTo
		if to == "" {
			to = "CRITICAL"
		}
		return CreateDecision{
			Escalate: true,
			To:       to,
			Reason:   fmt.Sprintf("count %d >= %d", count, rule.EscalateIfCount),
		}, nil
	}
	return CreateDecision{}, nil
}

// EvaluateAutoClose checks the closure triggers for a non-terminal alert.
// The metadata match is checked before expiry; only one reason is ever
// returned even when both triggers would fire.
func (e *Engine) EvaluateAutoClose(alert *database.Alert) (CloseDecision, error) {
	set, err := e.store.Load()
	if err != nil {
		return CloseDecision{}, err
	}

	rule, ok := set.Lookup(alert.SourceType)
	if !ok {
		return CloseDecision{}, nil
	}

	if rule.AutoCloseIf != "" {
		if status, ok := alert.Metadata["status"].(string); ok && status == rule.AutoCloseIf {
			return CloseDecision{Close: true, Reason: rule.AutoCloseIf}, nil
		}
	}

	if rule.ExpiresMins > 0 {
		expiresAt := alert.Timestamp.Add(time.Duration(rule.ExpiresMins) * time.Minute)
		if !time.Now().Before(expiresAt) {
			return CloseDecision{Close: true, Reason: "expired"}, nil
		}
	}

	return CloseDecision{}, nil
}
