// Package types defines core data structures for the specsync workflow engine.
package types

import (
	"fmt"
	"time"
)

// Phase is the lifecycle phase of a spec. Phases are fixed; they are not
// user-definable at runtime.
type Phase string

const (
	PhaseRequirements   Phase = "requirements"
	PhaseDesign         Phase = "design"
	PhaseTasks          Phase = "tasks"
	PhaseImplementation Phase = "implementation"
	PhaseCompleted      Phase = "completed"
)

// AllPhases lists every phase in lifecycle order.
var AllPhases = []Phase{
	PhaseRequirements,
	PhaseDesign,
	PhaseTasks,
	PhaseImplementation,
	PhaseCompleted,
}

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseRequirements, PhaseDesign, PhaseTasks, PhaseImplementation, PhaseCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether the phase admits no further transitions.
// Reopening a completed spec is out of scope for the engine.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted
}

// Label returns the issue-tracker label for a phase. The mapping is an
// exhaustive switch so a new phase constant fails loudly here rather than
// silently producing an empty label.
func (p Phase) Label() string {
	switch p {
	case PhaseRequirements:
		return "phase:requirements"
	case PhaseDesign:
		return "phase:design"
	case PhaseTasks:
		return "phase:tasks"
	case PhaseImplementation:
		return "phase:implementation"
	case PhaseCompleted:
		return "phase:completed"
	default:
		panic(fmt.Sprintf("types: unknown phase %q", string(p)))
	}
}

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
)

// IsValid reports whether s is a known task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusReview, StatusDone:
		return true
	}
	return false
}

// Spec is the unit of work being tracked. It is owned by the orchestrator and
// mutated only through phase-transition and rename operations; the engine
// never deletes specs.
type Spec struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Phase       Phase     `json:"phase"`
	BranchName  string    `json:"branch_name,omitempty"`
	ContentHash string    `json:"-"` // SHA256 of the spec document, for change detection
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task belongs to exactly one spec. Terminal at StatusDone.
type Task struct {
	ID             int64      `json:"id"`
	SpecID         string     `json:"spec_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         TaskStatus `json:"status"`
	Priority       int        `json:"priority"` // 0 (highest) through 4
	SubIssueNumber *int       `json:"sub_issue_number,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EntityType identifies what kind of local entity a SyncRecord links.
type EntityType string

const (
	EntitySpec     EntityType = "spec"
	EntityTask     EntityType = "task"
	EntityIssue    EntityType = "issue"
	EntityProject  EntityType = "project"
	EntitySubIssue EntityType = "sub_issue"
)

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	switch t {
	case EntitySpec, EntityTask, EntityIssue, EntityProject, EntitySubIssue:
		return true
	}
	return false
}

// SyncStatus records the outcome of the most recent sync for a record.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
	SyncPending SyncStatus = "pending"
)

// SyncRecord links a local entity (spec or task) to a remote tracker object.
// At most one record exists per (EntityType, EntityID) pair; callers enforce
// this by lookup-before-create, never by relying on a unique-constraint error.
// Records are updated in place on every sync and never implicitly deleted: a
// remote 404/410 triggers explicit re-linking, not record deletion.
type SyncRecord struct {
	ID                int64      `json:"id"`
	EntityType        EntityType `json:"entity_type"`
	EntityID          string     `json:"entity_id"`
	IssueNumber       int        `json:"issue_number,omitempty"`
	NodeID            string     `json:"node_id,omitempty"`
	SyncStatus        SyncStatus `json:"sync_status"`
	ParentIssueNumber *int       `json:"parent_issue_number,omitempty"`
	ParentSpecID      string     `json:"parent_spec_id,omitempty"`
	PRNumber          *int       `json:"pr_number,omitempty"`
	PRURL             string     `json:"pr_url,omitempty"`
	LastSyncedAt      time.Time  `json:"last_synced_at"`
}

// ValidateSpecID checks that id is a well-formed spec identifier: a non-empty
// string of lowercase alphanumerics and hyphens, as produced by idgen.
func ValidateSpecID(id string) error {
	if id == "" {
		return fmt.Errorf("spec id is empty")
	}
	if len(id) > 64 {
		return fmt.Errorf("spec id too long (%d chars, max 64)", len(id))
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return fmt.Errorf("spec id %q contains invalid character %q", id, r)
		}
	}
	return nil
}
