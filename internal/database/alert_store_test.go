package database

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *AlertStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewAlertStore(db)
}

func strPtr(s string) *string { return &s }

func testAlert(alertID string) *Alert {
	return &Alert{
		AlertID:    alertID,
		SourceType: "cpu",
		Severity:   "LOW",
		Timestamp:  time.Now(),
		Metadata:   JSONB{},
		EntityID:   strPtr("host-1"),
	}
}

func TestCreateWithTransition(t *testing.T) {
	store := setupTestStore(t)

	alert, created, err := store.CreateWithTransition(testAlert("a-1"))
	if err != nil {
		t.Fatalf("CreateWithTransition failed: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for a new alert")
	}
	if alert.Status != AlertStatusOpen {
		t.Errorf("Status = %s, want OPEN", alert.Status)
	}

	got, err := store.GetWithTransitions(alert.ID)
	if err != nil {
		t.Fatalf("GetWithTransitions failed: %v", err)
	}
	if len(got.Transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(got.Transitions))
	}
	tr := got.Transitions[0]
	if tr.From != AlertStatusNone || tr.To != AlertStatusOpen || tr.Reason != "created" {
		t.Errorf("unexpected creation transition: %+v", tr)
	}
}

func TestCreateWithTransition_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	first, _, err := store.CreateWithTransition(testAlert("a-1"))
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	dup := testAlert("a-1")
	dup.Severity = "HIGH" // must be ignored
	second, created, err := store.CreateWithTransition(dup)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created {
		t.Fatal("expected created=false for a repeated alert_id")
	}
	if second.ID != first.ID {
		t.Errorf("expected existing record (id %d), got id %d", first.ID, second.ID)
	}
	if second.Severity != "LOW" {
		t.Errorf("existing record must be returned unchanged, severity = %s", second.Severity)
	}

	got, _ := store.GetWithTransitions(first.ID)
	if len(got.Transitions) != 1 {
		t.Errorf("repeated create must not add transitions, got %d", len(got.Transitions))
	}
}

func TestGetByID_NotFound(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.GetByID(999); err != ErrAlertNotFound {
		t.Errorf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestUpdateStatusWithTransition(t *testing.T) {
	store := setupTestStore(t)

	alert, _, _ := store.CreateWithTransition(testAlert("a-1"))

	updates := map[string]interface{}{
		"status":   AlertStatusEscalated,
		"severity": "CRITICAL",
	}
	if err := store.UpdateStatusWithTransition(alert, updates, AlertStatusEscalated, "count 3 >= 3"); err != nil {
		t.Fatalf("UpdateStatusWithTransition failed: %v", err)
	}

	got, err := store.GetWithTransitions(alert.ID)
	if err != nil {
		t.Fatalf("GetWithTransitions failed: %v", err)
	}
	if got.Status != AlertStatusEscalated || got.Severity != "CRITICAL" {
		t.Errorf("got status=%s severity=%s, want ESCALATED/CRITICAL", got.Status, got.Severity)
	}
	if len(got.Transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(got.Transitions))
	}
	tr := got.Transitions[1]
	if tr.From != AlertStatusOpen || tr.To != AlertStatusEscalated || tr.Reason != "count 3 >= 3" {
		t.Errorf("unexpected transition: %+v", tr)
	}
}

func TestCountRecent(t *testing.T) {
	store := setupTestStore(t)

	now := time.Now()
	fixtures := []struct {
		alertID    string
		sourceType string
		entityID   *string
		age        time.Duration
	}{
		{"a-1", "cpu", strPtr("host-1"), time.Minute},
		{"a-2", "cpu", strPtr("host-1"), 5 * time.Minute},
		{"a-3", "cpu", strPtr("host-1"), time.Hour}, // outside window
		{"a-4", "cpu", strPtr("host-2"), time.Minute},
		{"a-5", "disk", strPtr("host-1"), time.Minute},
		{"a-6", "cpu", nil, time.Minute},
	}
	for _, f := range fixtures {
		a := testAlert(f.alertID)
		a.SourceType = f.sourceType
		a.EntityID = f.entityID
		a.Timestamp = now.Add(-f.age)
		if _, _, err := store.CreateWithTransition(a); err != nil {
			t.Fatalf("fixture %s failed: %v", f.alertID, err)
		}
	}

	count, err := store.CountRecent("cpu", "host-1", now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("CountRecent failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestCountsBySeverityStatus(t *testing.T) {
	store := setupTestStore(t)

	for i, sev := range []string{"LOW", "LOW", "HIGH"} {
		a := testAlert(alertID(i))
		a.Severity = sev
		store.CreateWithTransition(a)
	}

	rows, err := store.CountsBySeverityStatus()
	if err != nil {
		t.Fatalf("CountsBySeverityStatus failed: %v", err)
	}

	got := make(map[string]int64)
	for _, r := range rows {
		got[r.Severity+"/"+r.Status] = r.Cnt
	}
	if got["LOW/OPEN"] != 2 || got["HIGH/OPEN"] != 1 {
		t.Errorf("unexpected counts: %v", got)
	}
}

func alertID(i int) string {
	return "a-" + string(rune('1'+i))
}

func TestTopOffenders(t *testing.T) {
	store := setupTestStore(t)

	fixtures := []struct {
		alertID  string
		entityID *string
		status   AlertStatus
	}{
		{"a-1", strPtr("host-1"), AlertStatusOpen},
		{"a-2", strPtr("host-1"), AlertStatusOpen},
		{"a-3", strPtr("host-1"), AlertStatusEscalated},
		{"a-4", strPtr("host-2"), AlertStatusOpen},
		{"a-5", nil, AlertStatusOpen},
		{"a-6", strPtr("host-3"), AlertStatusResolved}, // excluded by status
	}
	for _, f := range fixtures {
		a := testAlert(f.alertID)
		a.EntityID = f.entityID
		created, _, err := store.CreateWithTransition(a)
		if err != nil {
			t.Fatalf("fixture %s failed: %v", f.alertID, err)
		}
		if f.status != AlertStatusOpen {
			store.UpdateStatusWithTransition(created, map[string]interface{}{"status": f.status}, f.status, "test")
		}
	}

	rows, err := store.TopOffenders(5)
	if err != nil {
		t.Fatalf("TopOffenders failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 offender rows, got %d: %v", len(rows), rows)
	}
	if rows[0].EntityID != "host-1" || rows[0].Cnt != 3 {
		t.Errorf("top offender = %+v, want host-1 with 3", rows[0])
	}

	found := false
	for _, r := range rows {
		if r.EntityID == "unknown" && r.Cnt == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an 'unknown' bucket for the entity-less alert: %v", rows)
	}
}

func TestTopOffenders_Limit(t *testing.T) {
	store := setupTestStore(t)

	for i := 0; i < 4; i++ {
		a := testAlert(alertID(i))
		a.EntityID = strPtr("host-" + string(rune('a'+i)))
		store.CreateWithTransition(a)
	}

	rows, err := store.TopOffenders(2)
	if err != nil {
		t.Fatalf("TopOffenders failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected limit of 2, got %d rows", len(rows))
	}
}

func TestListOpenBatch(t *testing.T) {
	store := setupTestStore(t)

	open, _, _ := store.CreateWithTransition(testAlert("a-1"))
	esc, _, _ := store.CreateWithTransition(testAlert("a-2"))
	store.UpdateStatusWithTransition(esc, map[string]interface{}{"status": AlertStatusEscalated}, AlertStatusEscalated, "test")
	closed, _, _ := store.CreateWithTransition(testAlert("a-3"))
	store.UpdateStatusWithTransition(closed, map[string]interface{}{"status": AlertStatusAutoClosed}, AlertStatusAutoClosed, "test")

	alerts, err := store.ListOpenBatch(200)
	if err != nil {
		t.Fatalf("ListOpenBatch failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(alerts))
	}
	ids := map[uint]bool{}
	for _, a := range alerts {
		ids[a.ID] = true
	}
	if !ids[open.ID] || !ids[esc.ID] {
		t.Errorf("expected OPEN and ESCALATED alerts in batch, got %v", ids)
	}
}

func TestListRecentAutoClosed(t *testing.T) {
	store := setupTestStore(t)

	recent, _, _ := store.CreateWithTransition(testAlert("a-1"))
	store.UpdateStatusWithTransition(recent, map[string]interface{}{"status": AlertStatusAutoClosed}, AlertStatusAutoClosed, "expired")

	stillOpen, _, _ := store.CreateWithTransition(testAlert("a-2"))
	_ = stillOpen

	alerts, err := store.ListRecentAutoClosed(time.Now().Add(-24*time.Hour), 50)
	if err != nil {
		t.Fatalf("ListRecentAutoClosed failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != recent.ID {
		t.Errorf("expected only the auto-closed alert, got %v", alerts)
	}

	alerts, err = store.ListRecentAutoClosed(time.Now().Add(time.Hour), 50)
	if err != nil {
		t.Fatalf("ListRecentAutoClosed failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("future window should match nothing, got %d", len(alerts))
	}
}
