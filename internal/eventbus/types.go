package eventbus

import (
	"sync"
	"time"

	"github.com/sddkit/specsync/internal/types"
)

// EventType identifies an event flowing through the bus.
type EventType string

const (
	// Spec lifecycle events.
	EventSpecCreated  EventType = "spec.created"
	EventSpecUpdated  EventType = "spec.updated"
	EventSpecRenamed  EventType = "spec.renamed"
	EventPhaseChanged EventType = "spec.phase_changed"

	// Task lifecycle events.
	EventTaskCreated   EventType = "task.created"
	EventTaskCompleted EventType = "task.completed"

	// Issue lifecycle events.
	EventIssueSynced EventType = "issue.synced"
	EventIssueClosed EventType = "issue.closed"

	// Skill lifecycle events.
	EventSkillStarted  EventType = "skill.started"
	EventSkillFinished EventType = "skill.finished"
)

// Event is a single workflow event. Exactly one payload pointer is non-nil,
// selected by Type; the remaining pointers stay nil.
type Event struct {
	Type      EventType
	SpecID    string
	TaskID    int64 // 0 when the event is not task-scoped
	Timestamp time.Time

	PhaseChange *PhaseChangePayload
	Rename      *RenamePayload
	Task        *TaskPayload
	Issue       *IssuePayload
	Skill       *SkillPayload
}

// PhaseChangePayload carries data for EventPhaseChanged.
type PhaseChangePayload struct {
	OldPhase types.Phase
	NewPhase types.Phase
}

// RenamePayload carries data for EventSpecRenamed.
type RenamePayload struct {
	OldName string
	NewName string
}

// TaskPayload carries data for task lifecycle events.
type TaskPayload struct {
	Title string
}

// IssuePayload carries data for issue lifecycle events.
type IssuePayload struct {
	IssueNumber int
}

// SkillPayload carries data for skill lifecycle events.
type SkillPayload struct {
	Skill   string
	AgentID string
}

// NewPhaseChanged builds a phase-changed event.
func NewPhaseChanged(specID string, oldPhase, newPhase types.Phase) *Event {
	return &Event{
		Type:        EventPhaseChanged,
		SpecID:      specID,
		Timestamp:   time.Now(),
		PhaseChange: &PhaseChangePayload{OldPhase: oldPhase, NewPhase: newPhase},
	}
}

// NewSpecCreated builds a spec-created event.
func NewSpecCreated(specID string) *Event {
	return &Event{Type: EventSpecCreated, SpecID: specID, Timestamp: time.Now()}
}

// NewSpecUpdated builds a spec-updated event.
func NewSpecUpdated(specID string) *Event {
	return &Event{Type: EventSpecUpdated, SpecID: specID, Timestamp: time.Now()}
}

// NewSpecRenamed builds a spec-renamed event.
func NewSpecRenamed(specID, oldName, newName string) *Event {
	return &Event{
		Type:      EventSpecRenamed,
		SpecID:    specID,
		Timestamp: time.Now(),
		Rename:    &RenamePayload{OldName: oldName, NewName: newName},
	}
}

// NewTaskCreated builds a task-created event.
func NewTaskCreated(specID string, taskID int64, title string) *Event {
	return &Event{
		Type:      EventTaskCreated,
		SpecID:    specID,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Task:      &TaskPayload{Title: title},
	}
}

// NewTaskCompleted builds a task-completed event.
func NewTaskCompleted(specID string, taskID int64, title string) *Event {
	return &Event{
		Type:      EventTaskCompleted,
		SpecID:    specID,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Task:      &TaskPayload{Title: title},
	}
}

// HandlerError records one handler's failure during a publish.
type HandlerError struct {
	HandlerID string
	Err       error
}

// Result aggregates handler outcomes for one published event. Handlers run
// concurrently, so all mutation goes through the locked setters.
type Result struct {
	mu sync.Mutex

	branch     string
	checkedOut bool
	prURL      string
	warnings   []string
	errs       []HandlerError
}

// SetBranch records the branch a handler created or checked out.
func (r *Result) SetBranch(name string, checkedOut bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branch = name
	r.checkedOut = checkedOut
}

// Branch returns the recorded branch name and whether it was checked out.
func (r *Result) Branch() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.branch, r.checkedOut
}

// SetPRURL records the URL of a pull request a handler opened.
func (r *Result) SetPRURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prURL = url
}

// PRURL returns the recorded pull request URL, if any.
func (r *Result) PRURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prURL
}

// AddWarning appends a human-readable warning.
func (r *Result) AddWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

// Warnings returns accumulated warnings.
func (r *Result) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// recordError notes a handler failure. Called by the bus, not by handlers.
func (r *Result) recordError(handlerID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, HandlerError{HandlerID: handlerID, Err: err})
}

// Errors returns every handler failure recorded during the publish.
func (r *Result) Errors() []HandlerError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HandlerError, len(r.errs))
	copy(out, r.errs)
	return out
}

// ErrorFor returns the recorded failure for one handler, or nil.
func (r *Result) ErrorFor(handlerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, he := range r.errs {
		if he.HandlerID == handlerID {
			return he.Err
		}
	}
	return nil
}
