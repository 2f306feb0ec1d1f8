package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/alertops/alertd/internal/database"
	"github.com/alertops/alertd/internal/rules"
)

// ErrMissingFields is returned when an ingestion payload lacks required fields
var ErrMissingFields = errors.New("alert_id, source_type and severity are required")

const (
	recentAutoClosedLimit        = 50
	defaultRecentAutoClosedHours = 24
)

// CreateAlertPayload is the inbound ingestion request
type CreateAlertPayload struct {
	AlertID    string         `json:"alert_id"`
	SourceType string         `json:"source_type"`
	Severity   string         `json:"severity"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Metadata   database.JSONB `json:"metadata,omitempty"`
	EntityID   *string        `json:"entity_id,omitempty"`
}

// Notifier receives fire-and-forget notifications about rule-driven status
// changes. Implementations must not block; failures are theirs to log.
type Notifier interface {
	AlertEscalated(alert *database.Alert, toSeverity, reason string)
	AlertAutoClosed(alert *database.Alert, reason string)
}

// AlertService orchestrates the alert lifecycle: idempotent creation,
// rule-driven escalation and auto-close, manual resolution, and the dashboard
// reads. Operations run concurrently with no in-process exclusion; each one is
// a read-then-write against the store, so two racing mutations on the same
// alert resolve by last write wins and the transition log reflects each
// caller's snapshot.
type AlertService struct {
	store      *database.AlertStore
	engine     *rules.Engine
	dashboards *DashboardService
	notifier   Notifier
}

// NewAlertService creates a new AlertService. notifier may be nil.
func NewAlertService(store *database.AlertStore, engine *rules.Engine, dashboards *DashboardService, notifier Notifier) *AlertService {
	return &AlertService{
		store:      store,
		engine:     engine,
		dashboards: dashboards,
		notifier:   notifier,
	}
}

// CreateAlert ingests an alert. A repeated alert_id returns the existing
// record unchanged: no new transition, no rule evaluation. Otherwise the alert
// is persisted OPEN with its NONE->OPEN transition, creation rules run, and an
// escalate decision is applied before the dashboard cache is invalidated.
//
// The returned record reflects the create step only, not a post-escalation
// re-read. A rule configuration error after the row is committed leaves the
// alert durably created while the request reports the failure; the periodic
// sweep compensates for missed closure evaluation.
func (s *AlertService) CreateAlert(ctx context.Context, payload CreateAlertPayload) (*database.Alert, error) {
	if payload.AlertID == "" || payload.SourceType == "" || payload.Severity == "" {
		return nil, ErrMissingFields
	}

	ts := time.Now()
	if payload.Timestamp != nil {
		ts = *payload.Timestamp
	}
	metadata := payload.Metadata
	if metadata == nil {
		metadata = database.JSONB{}
	}

	alert := &database.Alert{
		AlertID:    payload.AlertID,
		SourceType: payload.SourceType,
		Severity:   payload.Severity,
		Timestamp:  ts,
		Metadata:   metadata,
		EntityID:   payload.EntityID,
	}

	created, isNew, err := s.store.CreateWithTransition(alert)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	if !isNew {
		return created, nil
	}

	decision, err := s.engine.EvaluateOnCreate(created)
	if err != nil {
		return nil, fmt.Errorf("rule evaluation failed for alert %s: %w", created.AlertID, err)
	}
	if decision.Escalate {
		if err := s.EscalateAlert(ctx, created.ID, decision.To, decision.Reason); err != nil {
			return nil, err
		}
	}

	s.dashboards.Invalidate(ctx)
	return created, nil
}

// EscalateAlert raises the alert to ESCALATED with the given severity.
// A missing alert or a blocked status is a silent no-op.
func (s *AlertService) EscalateAlert(ctx context.Context, id uint, toSeverity, reason string) error {
	alert, err := s.store.GetByID(id)
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			return nil
		}
		return err
	}
	if alert.EscalateBlocked() {
		return nil
	}

	updates := map[string]interface{}{
		"status":   database.AlertStatusEscalated,
		"severity": toSeverity,
	}
	if err := s.store.UpdateStatusWithTransition(alert, updates, database.AlertStatusEscalated, reason); err != nil {
		return fmt.Errorf("failed to escalate alert %d: %w", id, err)
	}
	log.Printf("AlertService: escalated alert %s to %s (%s)", alert.AlertID, toSeverity, reason)

	if s.notifier != nil {
		s.notifier.AlertEscalated(alert, toSeverity, reason)
	}
	s.dashboards.Invalidate(ctx)
	return nil
}

// AutoCloseAlert moves the alert to AUTO-CLOSED.
// A missing alert or a blocked status is a silent no-op.
func (s *AlertService) AutoCloseAlert(ctx context.Context, id uint, reason string) error {
	alert, err := s.store.GetByID(id)
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			return nil
		}
		return err
	}
	if alert.AutoCloseBlocked() {
		return nil
	}

	updates := map[string]interface{}{"status": database.AlertStatusAutoClosed}
	if err := s.store.UpdateStatusWithTransition(alert, updates, database.AlertStatusAutoClosed, reason); err != nil {
		return fmt.Errorf("failed to auto-close alert %d: %w", id, err)
	}
	log.Printf("AlertService: auto-closed alert %s (%s)", alert.AlertID, reason)

	if s.notifier != nil {
		s.notifier.AlertAutoClosed(alert, reason)
	}
	s.dashboards.Invalidate(ctx)
	return nil
}

// ResolveAlert marks the alert RESOLVED. Unlike escalate and auto-close,
// resolve carries no terminal-state guard: an AUTO-CLOSED or already RESOLVED
// alert is resolved again and picks up an extra transition. That asymmetry is
// deliberate and callers relying on it are on their own.
// Returns database.ErrAlertNotFound when the id is unknown.
func (s *AlertService) ResolveAlert(ctx context.Context, id uint, operatorID string) error {
	alert, err := s.store.GetByID(id)
	if err != nil {
		return err
	}

	if operatorID == "" {
		operatorID = "unknown"
	}
	reason := "manual_resolve_by:" + operatorID

	updates := map[string]interface{}{"status": database.AlertStatusResolved}
	if err := s.store.UpdateStatusWithTransition(alert, updates, database.AlertStatusResolved, reason); err != nil {
		return fmt.Errorf("failed to resolve alert %d: %w", id, err)
	}
	log.Printf("AlertService: resolved alert %s (%s)", alert.AlertID, reason)

	s.dashboards.Invalidate(ctx)
	return nil
}

// GetAlertDetails returns the alert with its full ordered transition history
func (s *AlertService) GetAlertDetails(id uint) (*database.Alert, error) {
	return s.store.GetWithTransitions(id)
}

// ListRecentAutoClosed returns up to 50 most-recently-updated AUTO-CLOSED
// alerts within the trailing hours window (default 24), newest first.
func (s *AlertService) ListRecentAutoClosed(hours int) ([]database.Alert, error) {
	if hours <= 0 {
		hours = defaultRecentAutoClosedHours
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	return s.store.ListRecentAutoClosed(since, recentAutoClosedLimit)
}
