package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/troupelabs/troupe/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func testPlan(sessionID string) *models.Plan {
	now := time.Now().UTC().Truncate(time.Second)
	completedAt := now.Add(time.Minute)
	return &models.Plan{
		SessionID: sessionID,
		Goal:      "write the quarterly report",
		CreatedAt: now,
		Tasks: []models.Task{
			{
				ID:            "t1",
				Name:          "Draft report",
				Goal:          "Write the first draft",
				AssignedAgent: "writer",
				Status:        models.TaskStatusCompleted,
				Notes:         "draft saved",
				CreatedAt:     now,
				CompletedAt:   &completedAt,
			},
			{
				ID:            "handoff_t1_reviewer",
				Name:          "Review output of Draft report",
				AssignedAgent: "reviewer",
				Dependencies:  []string{"t1"},
				Status:        models.TaskStatusPending,
				OnFailure:     models.FailureProceed,
				CreatedAt:     now,
			},
		},
	}
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c", "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent directories not created: %v", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	// Running migrations again must be a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestStorePlan_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	p := testPlan("sess-1")

	if err := db.StorePlan(p); err != nil {
		t.Fatalf("StorePlan failed: %v", err)
	}

	got, err := db.GetPlan("sess-1")
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}

	if got.SessionID != p.SessionID || got.Goal != p.Goal {
		t.Errorf("plan header mismatch: got %+v", got)
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got.Tasks))
	}
	if got.Tasks[0].Notes != "draft saved" {
		t.Errorf("task notes lost: %q", got.Tasks[0].Notes)
	}
	if got.Tasks[0].CompletedAt == nil || !got.Tasks[0].CompletedAt.Equal(*p.Tasks[0].CompletedAt) {
		t.Errorf("CompletedAt mismatch: %v", got.Tasks[0].CompletedAt)
	}
	if got.Tasks[1].ID != "handoff_t1_reviewer" {
		t.Errorf("hand-off task lost: %+v", got.Tasks[1])
	}
	if len(got.Tasks[1].Dependencies) != 1 || got.Tasks[1].Dependencies[0] != "t1" {
		t.Errorf("hand-off dependencies mismatch: %v", got.Tasks[1].Dependencies)
	}
}

func TestStorePlan_OverwriteReplacesDocument(t *testing.T) {
	db := setupTestDB(t)
	p := testPlan("sess-1")

	if err := db.StorePlan(p); err != nil {
		t.Fatalf("StorePlan failed: %v", err)
	}

	p.Tasks[1].Status = models.TaskStatusInProgress
	if err := db.StorePlan(p); err != nil {
		t.Fatalf("second StorePlan failed: %v", err)
	}

	got, err := db.GetPlan("sess-1")
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if got.Tasks[1].Status != models.TaskStatusInProgress {
		t.Errorf("overwrite not visible: status = %s", got.Tasks[1].Status)
	}
}

func TestStorePlan_IdenticalWriteIdenticalDocument(t *testing.T) {
	db := setupTestDB(t)
	p := testPlan("sess-1")

	if err := db.StorePlan(p); err != nil {
		t.Fatalf("StorePlan failed: %v", err)
	}
	var first string
	if err := db.QueryRow("SELECT doc FROM plans WHERE session_id = ?", "sess-1").Scan(&first); err != nil {
		t.Fatalf("read doc: %v", err)
	}

	// Writing the same in-memory state again must produce the same bytes.
	if err := db.StorePlan(p); err != nil {
		t.Fatalf("second StorePlan failed: %v", err)
	}
	var second string
	if err := db.QueryRow("SELECT doc FROM plans WHERE session_id = ?", "sess-1").Scan(&second); err != nil {
		t.Fatalf("read doc: %v", err)
	}

	if first != second {
		t.Errorf("repeated write changed the stored document:\n%s\nvs\n%s", first, second)
	}
}

func TestStorePlan_EmptySessionID(t *testing.T) {
	db := setupTestDB(t)

	err := db.StorePlan(&models.Plan{Goal: "g"})
	if err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestGetPlan_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetPlan("missing")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestHasPlan(t *testing.T) {
	db := setupTestDB(t)

	ok, err := db.HasPlan("sess-1")
	if err != nil {
		t.Fatalf("HasPlan failed: %v", err)
	}
	if ok {
		t.Error("HasPlan reported true before any write")
	}

	if err := db.StorePlan(testPlan("sess-1")); err != nil {
		t.Fatalf("StorePlan failed: %v", err)
	}

	ok, err = db.HasPlan("sess-1")
	if err != nil {
		t.Fatalf("HasPlan failed: %v", err)
	}
	if !ok {
		t.Error("HasPlan reported false after a write")
	}
}

func TestListPlans(t *testing.T) {
	db := setupTestDB(t)

	complete := testPlan("sess-done")
	complete.Tasks = complete.Tasks[:1]
	if err := db.StorePlan(complete); err != nil {
		t.Fatalf("StorePlan failed: %v", err)
	}
	if err := db.StorePlan(testPlan("sess-running")); err != nil {
		t.Fatalf("StorePlan failed: %v", err)
	}

	plans, err := db.ListPlans()
	if err != nil {
		t.Fatalf("ListPlans failed: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}

	states := make(map[string]models.PlanState)
	for _, s := range plans {
		states[s.SessionID] = s.State
	}
	if states["sess-done"] != models.PlanStateComplete {
		t.Errorf("sess-done state = %s, want complete", states["sess-done"])
	}
	if states["sess-running"] != models.PlanStateRunning {
		t.Errorf("sess-running state = %s, want in_progress", states["sess-running"])
	}
}

func TestStoreMessage_AppendOrder(t *testing.T) {
	db := setupTestDB(t)

	for i := 0; i < 5; i++ {
		m := &models.Message{
			ID:      fmt.Sprintf("m%d", i),
			Role:    models.RoleUser,
			Content: fmt.Sprintf("message %d", i),
		}
		if err := db.StoreMessage("sess-1", m); err != nil {
			t.Fatalf("StoreMessage %d failed: %v", i, err)
		}
	}

	history, err := db.GetConversationHistory("sess-1")
	if err != nil {
		t.Fatalf("GetConversationHistory failed: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(history))
	}
	for i, m := range history {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("position %d has message %s, insertion order lost", i, m.ID)
		}
	}
}

func TestStoreMessage_PartsRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	m := &models.Message{
		ID:      "m1",
		Role:    models.RoleAssistant,
		Content: "done",
		Parts: []models.MessagePart{
			{Type: models.PartText, Text: "done"},
			{Type: models.PartToolCall, ToolCall: &models.ToolCall{ID: "c1", Tool: "clock", Agent: "writer"}},
			{Type: models.PartToolResult, ToolResult: &models.ToolResult{CallID: "c1", Tool: "clock", OK: true, Content: "12:00"}},
		},
	}
	if err := db.StoreMessage("sess-1", m); err != nil {
		t.Fatalf("StoreMessage failed: %v", err)
	}

	history, err := db.GetConversationHistory("sess-1")
	if err != nil {
		t.Fatalf("GetConversationHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 message, got %d", len(history))
	}

	parts := history[0].Parts
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if parts[1].ToolCall == nil || parts[1].ToolCall.Tool != "clock" {
		t.Errorf("tool call part lost: %+v", parts[1])
	}
	if parts[2].ToolResult == nil || !parts[2].ToolResult.OK {
		t.Errorf("tool result part lost: %+v", parts[2])
	}
}

func TestStoreMessage_SessionsIsolated(t *testing.T) {
	db := setupTestDB(t)

	db.StoreMessage("sess-1", &models.Message{ID: "a", Role: models.RoleUser, Content: "one"})
	db.StoreMessage("sess-2", &models.Message{ID: "b", Role: models.RoleUser, Content: "two"})

	history, err := db.GetConversationHistory("sess-1")
	if err != nil {
		t.Fatalf("GetConversationHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != "a" {
		t.Errorf("session isolation broken: %+v", history)
	}

	n, err := db.MessageCount("sess-2")
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("MessageCount(sess-2) = %d, want 1", n)
	}
}

func TestDeletePlan(t *testing.T) {
	db := setupTestDB(t)

	db.StorePlan(testPlan("sess-1"))
	db.StoreMessage("sess-1", &models.Message{ID: "m1", Role: models.RoleUser, Content: "hi"})

	if err := db.DeletePlan("sess-1"); err != nil {
		t.Fatalf("DeletePlan failed: %v", err)
	}

	if _, err := db.GetPlan("sess-1"); !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("plan still present after delete: %v", err)
	}
	n, _ := db.MessageCount("sess-1")
	if n != 0 {
		t.Errorf("messages still present after delete: %d", n)
	}
}
