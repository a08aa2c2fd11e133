package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sddkit/specsync/internal/types"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "specsync.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSpecCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	spec := &types.Spec{ID: "abc123", Name: "user-auth", Description: "login flow"}
	if err := db.CreateSpec(ctx, spec); err != nil {
		t.Fatalf("CreateSpec error: %v", err)
	}

	got, err := db.GetSpec(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetSpec error: %v", err)
	}
	if got.Name != "user-auth" {
		t.Errorf("Name = %q, want user-auth", got.Name)
	}
	if got.Phase != types.PhaseRequirements {
		t.Errorf("Phase = %q, want requirements", got.Phase)
	}

	if err := db.UpdateSpecPhase(ctx, "abc123", types.PhaseDesign); err != nil {
		t.Fatalf("UpdateSpecPhase error: %v", err)
	}
	got, _ = db.GetSpec(ctx, "abc123")
	if got.Phase != types.PhaseDesign {
		t.Errorf("Phase = %q, want design", got.Phase)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Error("UpdatedAt should be bumped on phase change")
	}

	if err := db.UpdateSpecBranch(ctx, "abc123", "spec/abc123"); err != nil {
		t.Fatalf("UpdateSpecBranch error: %v", err)
	}
	if err := db.RenameSpec(ctx, "abc123", "user-auth-v2"); err != nil {
		t.Fatalf("RenameSpec error: %v", err)
	}
	got, _ = db.GetSpec(ctx, "abc123")
	if got.BranchName != "spec/abc123" || got.Name != "user-auth-v2" {
		t.Errorf("unexpected spec after updates: %+v", got)
	}
}

func TestGetSpecNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSpec(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateSpecPhaseMissing(t *testing.T) {
	db := newTestDB(t)
	err := db.UpdateSpecPhase(context.Background(), "missing", types.PhaseDesign)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	spec := &types.Spec{ID: "s1", Name: "s1"}
	if err := db.CreateSpec(ctx, spec); err != nil {
		t.Fatalf("CreateSpec error: %v", err)
	}

	task := &types.Task{SpecID: "s1", Title: "write parser", Priority: 1}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask error: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("CreateTask did not assign an ID")
	}

	got, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask error: %v", err)
	}
	if got.Status != types.StatusTodo {
		t.Errorf("Status = %q, want todo", got.Status)
	}
	if got.SubIssueNumber != nil {
		t.Error("SubIssueNumber should start nil")
	}

	if err := db.SetTaskSubIssue(ctx, task.ID, 42); err != nil {
		t.Fatalf("SetTaskSubIssue error: %v", err)
	}
	if err := db.UpdateTaskStatus(ctx, task.ID, types.StatusDone); err != nil {
		t.Fatalf("UpdateTaskStatus error: %v", err)
	}

	list, err := db.ListTasksBySpec(ctx, "s1")
	if err != nil {
		t.Fatalf("ListTasksBySpec error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].SubIssueNumber == nil || *list[0].SubIssueNumber != 42 {
		t.Errorf("SubIssueNumber = %v, want 42", list[0].SubIssueNumber)
	}
	if list[0].Status != types.StatusDone {
		t.Errorf("Status = %q, want done", list[0].Status)
	}
}

func TestSyncRecordLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetSyncRecord(ctx, types.EntitySpec, "s1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := &types.SyncRecord{
		EntityType:  types.EntitySpec,
		EntityID:    "s1",
		IssueNumber: 7,
		NodeID:      "I_abc",
		SyncStatus:  types.SyncSuccess,
	}
	if err := db.CreateSyncRecord(ctx, rec); err != nil {
		t.Fatalf("CreateSyncRecord error: %v", err)
	}

	got, err := db.GetSyncRecord(ctx, types.EntitySpec, "s1")
	if err != nil {
		t.Fatalf("GetSyncRecord error: %v", err)
	}
	if got.IssueNumber != 7 || got.NodeID != "I_abc" {
		t.Errorf("unexpected record: %+v", got)
	}

	got.IssueNumber = 8
	got.SyncStatus = types.SyncFailed
	if err := db.UpdateSyncRecord(ctx, got); err != nil {
		t.Fatalf("UpdateSyncRecord error: %v", err)
	}
	got2, _ := db.GetSyncRecord(ctx, types.EntitySpec, "s1")
	if got2.IssueNumber != 8 || got2.SyncStatus != types.SyncFailed {
		t.Errorf("update not persisted: %+v", got2)
	}
}

func TestListSyncRecordsByParent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	parent := 100
	for i, id := range []string{"1", "2", "3"} {
		rec := &types.SyncRecord{
			EntityType:        types.EntitySubIssue,
			EntityID:          id,
			IssueNumber:       101 + i,
			SyncStatus:        types.SyncSuccess,
			ParentIssueNumber: &parent,
		}
		if err := db.CreateSyncRecord(ctx, rec); err != nil {
			t.Fatalf("CreateSyncRecord error: %v", err)
		}
	}

	recs, err := db.ListSyncRecordsByParent(ctx, 100)
	if err != nil {
		t.Fatalf("ListSyncRecordsByParent error: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("len = %d, want 3", len(recs))
	}

	recs, err = db.ListSyncRecordsByParent(ctx, 999)
	if err != nil {
		t.Fatalf("ListSyncRecordsByParent error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("len = %d, want 0", len(recs))
	}
}

func TestConfigKV(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	v, err := db.GetConfig(ctx, "missing")
	if err != nil || v != "" {
		t.Errorf("GetConfig(missing) = %q, %v; want empty, nil", v, err)
	}

	if err := db.SetConfig(ctx, "base-branch", "main"); err != nil {
		t.Fatalf("SetConfig error: %v", err)
	}
	if err := db.SetConfig(ctx, "base-branch", "develop"); err != nil {
		t.Fatalf("SetConfig overwrite error: %v", err)
	}
	v, _ = db.GetConfig(ctx, "base-branch")
	if v != "develop" {
		t.Errorf("GetConfig = %q, want develop", v)
	}

	if err := db.DeleteConfig(ctx, "base-branch"); err != nil {
		t.Fatalf("DeleteConfig error: %v", err)
	}
	v, _ = db.GetConfig(ctx, "base-branch")
	if v != "" {
		t.Errorf("GetConfig after delete = %q, want empty", v)
	}
}
