package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		// SQLite hands JSONB columns back as strings
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// AlertStatus represents the lifecycle status of an alert
type AlertStatus string

const (
	AlertStatusOpen       AlertStatus = "OPEN"
	AlertStatusEscalated  AlertStatus = "ESCALATED"
	AlertStatusAutoClosed AlertStatus = "AUTO-CLOSED"
	AlertStatusResolved   AlertStatus = "RESOLVED"

	// AlertStatusNone is the pseudo-status recorded as the "from" side of the
	// creation transition. No alert row ever carries it.
	AlertStatusNone AlertStatus = "NONE"
)

// Alert represents one ingested incident tracked through its lifecycle
type Alert struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	AlertID    string      `gorm:"uniqueIndex;size:255;not null" json:"alert_id"` // caller-supplied external identifier
	SourceType string      `gorm:"size:64;not null;index" json:"source_type"`
	Severity   string      `gorm:"size:32;not null" json:"severity"`
	Status     AlertStatus `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"status"`
	Timestamp  time.Time   `gorm:"not null;index" json:"timestamp"`
	Metadata   JSONB       `gorm:"type:jsonb" json:"metadata"`
	EntityID   *string     `gorm:"size:255;index" json:"entity_id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`

	Transitions []AlertTransition `gorm:"foreignKey:AlertID;references:ID" json:"transitions,omitempty"`
}

func (Alert) TableName() string {
	return "alerts"
}

// EscalateBlocked reports whether the current status forbids escalation.
func (a *Alert) EscalateBlocked() bool {
	switch a.Status {
	case AlertStatusEscalated, AlertStatusAutoClosed, AlertStatusResolved:
		return true
	}
	return false
}

// AutoCloseBlocked reports whether the current status forbids auto-close.
func (a *Alert) AutoCloseBlocked() bool {
	switch a.Status {
	case AlertStatusAutoClosed, AlertStatusResolved:
		return true
	}
	return false
}

// AlertTransition is an append-only audit record of one status change
type AlertTransition struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	AlertID   uint        `gorm:"not null;index" json:"alert_id"`
	From      AlertStatus `gorm:"column:from_status;type:varchar(20);not null" json:"from"`
	To        AlertStatus `gorm:"column:to_status;type:varchar(20);not null" json:"to"`
	Reason    string      `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func (AlertTransition) TableName() string {
	return "alert_transitions"
}

// User represents an operator account for the protected endpoints
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password  string    `gorm:"type:text;not null" json:"-"` // bcrypt hash
	Name      string    `gorm:"size:255" json:"name"`
	Role      string    `gorm:"size:32;default:'user'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
