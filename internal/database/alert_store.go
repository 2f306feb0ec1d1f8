package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrAlertNotFound is returned when an operation references an unknown alert id.
var ErrAlertNotFound = errors.New("alert not found")

// SeverityStatusCount is one row of the dashboard counts aggregate
type SeverityStatusCount struct {
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Cnt      int64  `json:"cnt"`
}

// TopOffender is one row of the top-offenders aggregate
type TopOffender struct {
	EntityID string `json:"entity_id"`
	Cnt      int64  `json:"cnt"`
}

// AlertStore is the only component that touches the alerts tables
type AlertStore struct {
	db *gorm.DB
}

// NewAlertStore creates a new AlertStore
func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

// CreateWithTransition persists a new alert with status OPEN and appends the
// NONE->OPEN transition in the same transaction. If an alert with the same
// external alert_id already exists, the existing record is returned unchanged
// and created is false. The pre-check is an optimization; the uniqueness
// constraint on alert_id is the actual idempotency guarantee, so a create that
// loses a concurrent race falls back to re-fetching the winner's row.
func (s *AlertStore) CreateWithTransition(alert *Alert) (*Alert, bool, error) {
	var existing Alert
	err := s.db.Where("alert_id = ?", alert.AlertID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	alert.Status = AlertStatusOpen
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(alert).Error; err != nil {
			return err
		}
		return tx.Create(&AlertTransition{
			AlertID: alert.ID,
			From:    AlertStatusNone,
			To:      AlertStatusOpen,
			Reason:  "created",
		}).Error
	})
	if txErr != nil {
		if err := s.db.Where("alert_id = ?", alert.AlertID).First(&existing).Error; err == nil {
			return &existing, false, nil
		}
		return nil, false, txErr
	}
	return alert, true, nil
}

// GetByID retrieves an alert by its internal id
func (s *AlertStore) GetByID(id uint) (*Alert, error) {
	var alert Alert
	if err := s.db.First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// GetWithTransitions retrieves an alert together with its ordered transition history
func (s *AlertStore) GetWithTransitions(id uint) (*Alert, error) {
	var alert Alert
	err := s.db.Preload("Transitions", func(db *gorm.DB) *gorm.DB {
		return db.Order("alert_transitions.id ASC")
	}).First(&alert, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// UpdateStatusWithTransition applies the column updates and appends the audit
// transition in one transaction. The from side of the transition is taken from
// the snapshot the caller fetched; see the concurrency notes on AlertService.
func (s *AlertStore) UpdateStatusWithTransition(alert *Alert, updates map[string]interface{}, to AlertStatus, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Alert{}).Where("id = ?", alert.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&AlertTransition{
			AlertID: alert.ID,
			From:    alert.Status,
			To:      to,
			Reason:  reason,
		}).Error
	})
}

// CountRecent counts alerts sharing sourceType and entityID with an event
// timestamp at or after since. Used for the creation-time escalation window.
func (s *AlertStore) CountRecent(sourceType, entityID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&Alert{}).
		Where("source_type = ? AND entity_id = ? AND timestamp >= ?", sourceType, entityID, since).
		Count(&count).Error
	return count, err
}

// CountsBySeverityStatus groups all alerts by (severity, status) with per-group counts
func (s *AlertStore) CountsBySeverityStatus() ([]SeverityStatusCount, error) {
	var rows []SeverityStatusCount
	err := s.db.Model(&Alert{}).
		Select("severity, status, count(*) AS cnt").
		Group("severity").Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopOffenders returns the entities with the most alerts currently in
// OPEN or ESCALATED, ordered by count descending. Alerts without an entity
// are grouped under the "unknown" bucket.
func (s *AlertStore) TopOffenders(limit int) ([]TopOffender, error) {
	var raw []struct {
		EntityID *string
		Cnt      int64
	}
	err := s.db.Model(&Alert{}).
		Select("entity_id, count(*) AS cnt").
		Where("status IN ?", []AlertStatus{AlertStatusOpen, AlertStatusEscalated}).
		Group("entity_id").
		Order("cnt DESC").
		Limit(limit).
		Scan(&raw).Error
	if err != nil {
		return nil, err
	}

	rows := make([]TopOffender, 0, len(raw))
	for _, r := range raw {
		entity := "unknown"
		if r.EntityID != nil && *r.EntityID != "" {
			entity = *r.EntityID
		}
		rows = append(rows, TopOffender{EntityID: entity, Cnt: r.Cnt})
	}
	return rows, nil
}

// ListOpenBatch returns up to limit alerts with status OPEN or ESCALATED.
// No ordering is guaranteed beyond boundedness.
func (s *AlertStore) ListOpenBatch(limit int) ([]Alert, error) {
	var alerts []Alert
	err := s.db.
		Where("status IN ?", []AlertStatus{AlertStatusOpen, AlertStatusEscalated}).
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

// ListRecentAutoClosed returns up to limit AUTO-CLOSED alerts updated at or
// after since, newest first.
func (s *AlertStore) ListRecentAutoClosed(since time.Time, limit int) ([]Alert, error) {
	var alerts []Alert
	err := s.db.
		Where("status = ? AND updated_at >= ?", AlertStatusAutoClosed, since).
		Order("updated_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}
