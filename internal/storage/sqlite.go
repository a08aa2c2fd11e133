package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sddkit/specsync/internal/types"
)

// DB is the SQLite-backed implementation of Store.
type DB struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at the given path.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS specs (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT DEFAULT '',
		phase         TEXT NOT NULL DEFAULT 'requirements',
		branch_name   TEXT DEFAULT '',
		content_hash  TEXT DEFAULT '',
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		spec_id          TEXT NOT NULL REFERENCES specs(id),
		title            TEXT NOT NULL,
		description      TEXT DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'todo',
		priority         INTEGER NOT NULL DEFAULT 2,
		sub_issue_number INTEGER,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_records (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type         TEXT NOT NULL,
		entity_id           TEXT NOT NULL,
		issue_number        INTEGER DEFAULT 0,
		node_id             TEXT DEFAULT '',
		sync_status         TEXT NOT NULL DEFAULT 'pending',
		parent_issue_number INTEGER,
		parent_spec_id      TEXT DEFAULT '',
		pr_number           INTEGER,
		pr_url              TEXT DEFAULT '',
		last_synced_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sync_records_entity
		ON sync_records(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_sync_records_parent
		ON sync_records(parent_issue_number);

	CREATE TABLE IF NOT EXISTS config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- Specs ---

const specColumns = `id, name, description, phase, branch_name, content_hash, created_at, updated_at`

// CreateSpec inserts a new spec record.
func (s *DB) CreateSpec(ctx context.Context, spec *types.Spec) error {
	now := time.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	if spec.UpdatedAt.IsZero() {
		spec.UpdatedAt = now
	}
	if spec.Phase == "" {
		spec.Phase = types.PhaseRequirements
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO specs (id, name, description, phase, branch_name, content_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.ID, spec.Name, spec.Description, string(spec.Phase),
		spec.BranchName, spec.ContentHash, spec.CreatedAt, spec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert spec: %w", err)
	}
	return nil
}

// GetSpec returns a single spec by ID.
func (s *DB) GetSpec(ctx context.Context, id string) (*types.Spec, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+specColumns+` FROM specs WHERE id = ?`, id)
	return scanSpec(row)
}

// ListSpecs returns all specs ordered by creation time.
func (s *DB) ListSpecs(ctx context.Context) ([]*types.Spec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+specColumns+` FROM specs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query specs: %w", err)
	}
	defer rows.Close()

	var specs []*types.Spec
	for rows.Next() {
		var sp types.Spec
		var phase string
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Description, &phase,
			&sp.BranchName, &sp.ContentHash, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan spec: %w", err)
		}
		sp.Phase = types.Phase(phase)
		specs = append(specs, &sp)
	}
	return specs, rows.Err()
}

// UpdateSpecPhase persists a new phase and bumps the updated timestamp.
func (s *DB) UpdateSpecPhase(ctx context.Context, id string, phase types.Phase) error {
	return s.updateSpecField(ctx, id, "phase", string(phase))
}

// UpdateSpecBranch records the branch a spec's work happens on.
func (s *DB) UpdateSpecBranch(ctx context.Context, id, branch string) error {
	return s.updateSpecField(ctx, id, "branch_name", branch)
}

// RenameSpec updates a spec's display name.
func (s *DB) RenameSpec(ctx context.Context, id, name string) error {
	return s.updateSpecField(ctx, id, "name", name)
}

// UpdateSpecContentHash records the document hash from the latest scan.
func (s *DB) UpdateSpecContentHash(ctx context.Context, id, hash string) error {
	return s.updateSpecField(ctx, id, "content_hash", hash)
}

func (s *DB) updateSpecField(ctx context.Context, id, column, value string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE specs SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update spec %s: %w", column, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("spec %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanSpec(row *sql.Row) (*types.Spec, error) {
	var sp types.Spec
	var phase string
	err := row.Scan(&sp.ID, &sp.Name, &sp.Description, &phase,
		&sp.BranchName, &sp.ContentHash, &sp.CreatedAt, &sp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan spec: %w", err)
	}
	sp.Phase = types.Phase(phase)
	return &sp, nil
}

// --- Tasks ---

const taskColumns = `id, spec_id, title, description, status, priority, sub_issue_number, created_at, updated_at`

// CreateTask inserts a new task and fills in the generated ID.
func (s *DB) CreateTask(ctx context.Context, task *types.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	if task.Status == "" {
		task.Status = types.StatusTodo
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (spec_id, title, description, status, priority, sub_issue_number, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.SpecID, task.Title, task.Description, string(task.Status),
		task.Priority, task.SubIssueNumber, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	task.ID, _ = res.LastInsertId()
	return nil
}

// GetTask returns a single task by ID.
func (s *DB) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	var t types.Task
	var status string
	var subIssue sql.NullInt64
	err := row.Scan(&t.ID, &t.SpecID, &t.Title, &t.Description, &status,
		&t.Priority, &subIssue, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Status = types.TaskStatus(status)
	if subIssue.Valid {
		n := int(subIssue.Int64)
		t.SubIssueNumber = &n
	}
	return &t, nil
}

// ListTasksBySpec returns all tasks for a spec in creation order.
func (s *DB) ListTasksBySpec(ctx context.Context, specID string) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE spec_id = ? ORDER BY id`, specID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		var t types.Task
		var status string
		var subIssue sql.NullInt64
		if err := rows.Scan(&t.ID, &t.SpecID, &t.Title, &t.Description, &status,
			&t.Priority, &subIssue, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = types.TaskStatus(status)
		if subIssue.Valid {
			n := int(subIssue.Int64)
			t.SubIssueNumber = &n
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus changes the status of a task.
func (s *DB) UpdateTaskStatus(ctx context.Context, id int64, status types.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetTaskSubIssue links a task to its remote sub-issue number.
func (s *DB) SetTaskSubIssue(ctx context.Context, id int64, issueNumber int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET sub_issue_number = ?, updated_at = ? WHERE id = ?`,
		issueNumber, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set task sub-issue: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Sync records ---

const syncColumns = `id, entity_type, entity_id, issue_number, node_id, sync_status,
	parent_issue_number, parent_spec_id, pr_number, pr_url, last_synced_at`

// GetSyncRecord returns the sync record for an entity, or ErrNotFound.
func (s *DB) GetSyncRecord(ctx context.Context, entityType types.EntityType, entityID string) (*types.SyncRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncColumns+` FROM sync_records WHERE entity_type = ? AND entity_id = ?`,
		string(entityType), entityID)
	return scanSyncRecord(row)
}

// CreateSyncRecord inserts a new sync record and fills in the generated ID.
// Callers must look up an existing record first; this method does not check.
func (s *DB) CreateSyncRecord(ctx context.Context, rec *types.SyncRecord) error {
	if rec.LastSyncedAt.IsZero() {
		rec.LastSyncedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_records (entity_type, entity_id, issue_number, node_id, sync_status,
			parent_issue_number, parent_spec_id, pr_number, pr_url, last_synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.EntityType), rec.EntityID, rec.IssueNumber, rec.NodeID,
		string(rec.SyncStatus), rec.ParentIssueNumber, rec.ParentSpecID,
		rec.PRNumber, rec.PRURL, rec.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync record: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// UpdateSyncRecord overwrites an existing record in place.
func (s *DB) UpdateSyncRecord(ctx context.Context, rec *types.SyncRecord) error {
	rec.LastSyncedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_records SET issue_number = ?, node_id = ?, sync_status = ?,
			parent_issue_number = ?, parent_spec_id = ?, pr_number = ?, pr_url = ?,
			last_synced_at = ?
		 WHERE id = ?`,
		rec.IssueNumber, rec.NodeID, string(rec.SyncStatus),
		rec.ParentIssueNumber, rec.ParentSpecID, rec.PRNumber, rec.PRURL,
		rec.LastSyncedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update sync record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sync record %d: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// ListSyncRecordsByParent returns all sub-issue records linked under a parent
// issue number.
func (s *DB) ListSyncRecordsByParent(ctx context.Context, parentIssueNumber int) ([]*types.SyncRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+syncColumns+` FROM sync_records WHERE parent_issue_number = ? ORDER BY id`,
		parentIssueNumber)
	if err != nil {
		return nil, fmt.Errorf("query sync records: %w", err)
	}
	defer rows.Close()

	var recs []*types.SyncRecord
	for rows.Next() {
		rec, err := scanSyncRecordRows(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanSyncRecord(row *sql.Row) (*types.SyncRecord, error) {
	var rec types.SyncRecord
	var entityType, syncStatus string
	var parentIssue, prNumber sql.NullInt64
	err := row.Scan(&rec.ID, &entityType, &rec.EntityID, &rec.IssueNumber,
		&rec.NodeID, &syncStatus, &parentIssue, &rec.ParentSpecID,
		&prNumber, &rec.PRURL, &rec.LastSyncedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sync record: %w", err)
	}
	rec.EntityType = types.EntityType(entityType)
	rec.SyncStatus = types.SyncStatus(syncStatus)
	if parentIssue.Valid {
		n := int(parentIssue.Int64)
		rec.ParentIssueNumber = &n
	}
	if prNumber.Valid {
		n := int(prNumber.Int64)
		rec.PRNumber = &n
	}
	return &rec, nil
}

func scanSyncRecordRows(rows *sql.Rows) (*types.SyncRecord, error) {
	var rec types.SyncRecord
	var entityType, syncStatus string
	var parentIssue, prNumber sql.NullInt64
	err := rows.Scan(&rec.ID, &entityType, &rec.EntityID, &rec.IssueNumber,
		&rec.NodeID, &syncStatus, &parentIssue, &rec.ParentSpecID,
		&prNumber, &rec.PRURL, &rec.LastSyncedAt)
	if err != nil {
		return nil, fmt.Errorf("scan sync record: %w", err)
	}
	rec.EntityType = types.EntityType(entityType)
	rec.SyncStatus = types.SyncStatus(syncStatus)
	if parentIssue.Valid {
		n := int(parentIssue.Int64)
		rec.ParentIssueNumber = &n
	}
	if prNumber.Valid {
		n := int(prNumber.Int64)
		rec.PRNumber = &n
	}
	return &rec, nil
}

// --- Config ---

// SetConfig stores a key/value config pair, replacing any existing value.
func (s *DB) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// GetConfig returns the value for a key, or empty string if unset.
func (s *DB) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	return value, nil
}

// DeleteConfig removes a config key. Deleting an absent key is not an error.
func (s *DB) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete config %s: %w", key, err)
	}
	return nil
}
