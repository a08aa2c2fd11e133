// Package storage provides the local SQLite store for specs, tasks, and sync
// records.
//
// The engine delegates transactional semantics to SQLite itself; the only
// isolation policy implemented here is lookup-before-create for duplicate
// prevention, enforced by callers.
package storage

import (
	"context"
	"errors"

	"github.com/sddkit/specsync/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store is the interface satisfied by *DB. Consumers depend on this interface
// rather than the concrete type so mocks can be substituted in tests.
type Store interface {
	// Spec CRUD
	CreateSpec(ctx context.Context, spec *types.Spec) error
	GetSpec(ctx context.Context, id string) (*types.Spec, error)
	ListSpecs(ctx context.Context) ([]*types.Spec, error)
	UpdateSpecPhase(ctx context.Context, id string, phase types.Phase) error
	UpdateSpecBranch(ctx context.Context, id, branch string) error
	RenameSpec(ctx context.Context, id, name string) error
	UpdateSpecContentHash(ctx context.Context, id, hash string) error

	// Task CRUD
	CreateTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, id int64) (*types.Task, error)
	ListTasksBySpec(ctx context.Context, specID string) ([]*types.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status types.TaskStatus) error
	SetTaskSubIssue(ctx context.Context, id int64, issueNumber int) error

	// Sync records. GetSyncRecord returns ErrNotFound when no record exists
	// for the (entityType, entityID) pair.
	GetSyncRecord(ctx context.Context, entityType types.EntityType, entityID string) (*types.SyncRecord, error)
	CreateSyncRecord(ctx context.Context, rec *types.SyncRecord) error
	UpdateSyncRecord(ctx context.Context, rec *types.SyncRecord) error
	ListSyncRecordsByParent(ctx context.Context, parentIssueNumber int) ([]*types.SyncRecord, error)

	// Config key/value pairs stored alongside the data.
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
	DeleteConfig(ctx context.Context, key string) error

	// Lifecycle
	Close() error
}
