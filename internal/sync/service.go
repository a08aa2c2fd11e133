// Package sync implements bidirectional synchronization between local specs
// and the remote issue tracker.
//
// The local spec document is the source of truth for full-content sync:
// spec→issue overwrites the remote title/body/labels unconditionally, while
// issue→spec is deliberately narrow and only carries the name, close state,
// and checkbox states inward.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/sddkit/specsync/internal/checkbox"
	"github.com/sddkit/specsync/internal/specdoc"
	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/tracker"
	"github.com/sddkit/specsync/internal/types"
)

// ErrClientNotInitialized is returned when a sync operation runs without a
// configured tracker client.
var ErrClientNotInitialized = errors.New("sync: client not initialized")

// ErrDuplicateIssue is returned when issue creation is requested for a spec
// that already has a linked issue. Creating a second issue is never allowed.
var ErrDuplicateIssue = errors.New("sync: spec already linked to an issue")

// ErrNotLinked is returned when an operation requires an existing issue link
// and none exists.
var ErrNotLinked = errors.New("sync: no issue linked")

// Service synchronizes specs and tasks with the remote tracker. Construct it
// with New; the zero value is not usable.
type Service struct {
	store    storage.Store
	client   *tracker.Client
	specsDir string

	// projectNodeID, when set, is the Projects v2 board new issues are added to.
	projectNodeID string
}

// Option configures a Service.
type Option func(*Service)

// WithProject sets the project board node ID for AddToProject and
// issue-recreation re-adds.
func WithProject(nodeID string) Option {
	return func(s *Service) { s.projectNodeID = nodeID }
}

// New creates a sync service. The client may be nil when the tracker is not
// configured; operations then fail with ErrClientNotInitialized.
func New(store storage.Store, client *tracker.Client, specsDir string, opts ...Option) *Service {
	s := &Service{store: store, client: client, specsDir: specsDir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result reports the outcome of a sync operation.
type Result struct {
	Action      string // "created", "updated", "recreated", "unchanged"
	IssueNumber int
	IssueURL    string
	Warnings    []string
}

// specLabels returns the label set for a spec's issue.
func specLabels(spec *types.Spec) []string {
	return []string{"spec", spec.Phase.Label()}
}

// SyncSpecToIssue pushes the spec document to its remote issue.
//
// With create set, a pre-existing SyncRecord is a fatal duplicate (the lookup
// happens before any remote call). Without create, a missing record is
// ErrNotLinked. On the update path the remote issue's title, body, and labels
// are overwritten from the document — never merged — and a short traceability
// comment is appended.
func (s *Service) SyncSpecToIssue(ctx context.Context, specID string, create bool) (*Result, error) {
	if s.client == nil {
		return nil, ErrClientNotInitialized
	}

	spec, err := s.store.GetSpec(ctx, specID)
	if err != nil {
		return nil, fmt.Errorf("load spec %s: %w", specID, err)
	}
	doc, err := specdoc.Load(s.specsDir, specID)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.GetSyncRecord(ctx, types.EntitySpec, specID)
	switch {
	case err == nil:
		if create {
			return nil, fmt.Errorf("%w: issue #%d", ErrDuplicateIssue, rec.IssueNumber)
		}
		return s.updateLinkedIssue(ctx, spec, doc, rec)
	case errors.Is(err, storage.ErrNotFound):
		if !create {
			return nil, fmt.Errorf("%w: spec %s", ErrNotLinked, specID)
		}
		return s.createLinkedIssue(ctx, spec, doc)
	default:
		return nil, fmt.Errorf("look up sync record: %w", err)
	}
}

// createLinkedIssue creates the remote issue and persists the link.
func (s *Service) createLinkedIssue(ctx context.Context, spec *types.Spec, doc *specdoc.Doc) (*Result, error) {
	title := doc.Title()
	if title == "" {
		title = spec.Name
	}

	issue, err := s.client.CreateIssue(ctx, title, doc.Content, specLabels(spec))
	if err != nil {
		return nil, err
	}

	rec := &types.SyncRecord{
		EntityType:   types.EntitySpec,
		EntityID:     spec.ID,
		IssueNumber:  issue.Number,
		NodeID:       issue.NodeID,
		SyncStatus:   types.SyncSuccess,
		LastSyncedAt: time.Now(),
	}
	if err := s.store.CreateSyncRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist sync record: %w", err)
	}

	result := &Result{Action: "created", IssueNumber: issue.Number, IssueURL: issue.HTMLURL}
	s.maybeAddToProject(ctx, issue.NodeID, result)
	return result, nil
}

// updateLinkedIssue overwrites an existing remote issue from the document,
// recovering first if the issue was deleted remotely.
func (s *Service) updateLinkedIssue(ctx context.Context, spec *types.Spec, doc *specdoc.Doc, rec *types.SyncRecord) (*Result, error) {
	result := &Result{Action: "updated"}

	number, recovered, err := s.ensureIssue(ctx, spec, doc, rec, result)
	if err != nil {
		return nil, err
	}
	if recovered {
		// Recreation already wrote the full document; nothing left to push.
		return result, nil
	}

	title := doc.Title()
	if title == "" {
		title = spec.Name
	}
	issue, err := s.client.UpdateIssue(ctx, number, map[string]interface{}{
		"title":  title,
		"body":   doc.Content,
		"labels": specLabels(spec),
	})
	if err != nil {
		rec.SyncStatus = types.SyncFailed
		if uerr := s.store.UpdateSyncRecord(ctx, rec); uerr != nil {
			log.Printf("sync: record update after failure: %v", uerr)
		}
		return nil, err
	}

	if _, err := s.client.CreateComment(ctx, number,
		fmt.Sprintf("Synced from spec `%s` at %s.", spec.ID, time.Now().UTC().Format(time.RFC3339))); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("sync comment failed: %v", err))
	}

	rec.SyncStatus = types.SyncSuccess
	rec.LastSyncedAt = time.Now()
	if err := s.store.UpdateSyncRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist sync record: %w", err)
	}

	result.IssueNumber = issue.Number
	result.IssueURL = issue.HTMLURL
	return result, nil
}

// ensureIssue verifies a previously-linked issue still exists. A confirmed
// deletion (404/410) clears the stale link, recreates the issue from the
// document, and re-adds it to any configured project board; a transient
// lookup failure is treated as "assume still exists" so no duplicate is
// created. Returns the live issue number and whether recreation happened.
func (s *Service) ensureIssue(ctx context.Context, spec *types.Spec, doc *specdoc.Doc, rec *types.SyncRecord, result *Result) (int, bool, error) {
	_, err := s.client.GetIssue(ctx, rec.IssueNumber)
	if err == nil {
		return rec.IssueNumber, false, nil
	}
	if !tracker.IsDeleted(err) {
		log.Printf("sync: issue #%d lookup failed transiently, assuming it exists: %v", rec.IssueNumber, err)
		return rec.IssueNumber, false, nil
	}

	log.Printf("sync: issue #%d for spec %s was deleted remotely, recreating", rec.IssueNumber, spec.ID)

	title := doc.Title()
	if title == "" {
		title = spec.Name
	}
	issue, cerr := s.client.CreateIssue(ctx, title, doc.Content, specLabels(spec))
	if cerr != nil {
		return 0, false, fmt.Errorf("recreate deleted issue: %w", cerr)
	}

	rec.IssueNumber = issue.Number
	rec.NodeID = issue.NodeID
	rec.SyncStatus = types.SyncSuccess
	rec.LastSyncedAt = time.Now()
	if err := s.store.UpdateSyncRecord(ctx, rec); err != nil {
		return 0, false, fmt.Errorf("relink sync record: %w", err)
	}

	result.Action = "recreated"
	result.IssueNumber = issue.Number
	result.IssueURL = issue.HTMLURL
	s.maybeAddToProject(ctx, issue.NodeID, result)
	return issue.Number, true, nil
}

// maybeAddToProject adds an issue to the configured project board. Board
// failures are warnings, never sync failures.
func (s *Service) maybeAddToProject(ctx context.Context, nodeID string, result *Result) {
	if s.projectNodeID == "" {
		return
	}
	if _, err := s.client.AddToProject(ctx, s.projectNodeID, nodeID); err != nil {
		log.Printf("sync: add to project board: %v", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("project board add failed: %v", err))
	}
}

// AddToProject adds the spec's linked issue to the configured project board.
func (s *Service) AddToProject(ctx context.Context, specID string) (string, error) {
	if s.client == nil {
		return "", ErrClientNotInitialized
	}
	if s.projectNodeID == "" {
		return "", fmt.Errorf("sync: no project board configured")
	}
	rec, err := s.store.GetSyncRecord(ctx, types.EntitySpec, specID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: spec %s", ErrNotLinked, specID)
		}
		return "", err
	}
	return s.client.AddToProject(ctx, s.projectNodeID, rec.NodeID)
}

// SyncIssueToSpec pulls the narrow remote-to-local changes for a spec: the
// issue title becomes the spec name, a closed issue advances the phase to
// completed, and checkbox state changes in the issue body are applied onto
// the local document. The document body itself is never overwritten.
func (s *Service) SyncIssueToSpec(ctx context.Context, specID string) (*Result, error) {
	if s.client == nil {
		return nil, ErrClientNotInitialized
	}

	spec, err := s.store.GetSpec(ctx, specID)
	if err != nil {
		return nil, fmt.Errorf("load spec %s: %w", specID, err)
	}
	rec, err := s.store.GetSyncRecord(ctx, types.EntitySpec, specID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: spec %s", ErrNotLinked, specID)
		}
		return nil, err
	}

	issue, err := s.client.GetIssue(ctx, rec.IssueNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch linked issue: %w", err)
	}

	result := &Result{Action: "unchanged", IssueNumber: issue.Number, IssueURL: issue.HTMLURL}

	if issue.Title != "" && issue.Title != spec.Name {
		if err := s.store.RenameSpec(ctx, specID, issue.Title); err != nil {
			return nil, fmt.Errorf("rename spec: %w", err)
		}
		result.Action = "updated"
	}

	if issue.State == "closed" && !spec.Phase.IsTerminal() {
		if err := s.store.UpdateSpecPhase(ctx, specID, types.PhaseCompleted); err != nil {
			return nil, fmt.Errorf("advance phase: %w", err)
		}
		result.Action = "updated"
	}

	changed, err := s.applyCheckboxChanges(ctx, specID, issue.Body)
	if err != nil {
		return nil, err
	}
	if changed {
		result.Action = "updated"
	}

	rec.SyncStatus = types.SyncSuccess
	rec.LastSyncedAt = time.Now()
	if err := s.store.UpdateSyncRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist sync record: %w", err)
	}
	return result, nil
}

// applyCheckboxChanges applies checkbox-state differences from the issue body
// onto the local document, leaving every other byte unchanged.
func (s *Service) applyCheckboxChanges(ctx context.Context, specID, issueBody string) (bool, error) {
	doc, err := specdoc.Load(s.specsDir, specID)
	if err != nil {
		return false, err
	}

	changes := checkbox.Diff(checkbox.Parse(issueBody), checkbox.Parse(doc.Content))
	if len(changes) == 0 {
		return false, nil
	}

	updated := checkbox.Apply(doc.Content, changes)
	if _, err := specdoc.Save(s.specsDir, specID, updated); err != nil {
		return false, err
	}
	if err := s.store.UpdateSpecContentHash(ctx, specID, specdoc.Hash(updated)); err != nil {
		return false, fmt.Errorf("update content hash: %w", err)
	}
	return true, nil
}

// CloseLinkedIssue closes the spec's remote issue as completed. A spec
// without a linked issue is ErrNotLinked; an already-closed issue is a no-op.
func (s *Service) CloseLinkedIssue(ctx context.Context, specID string) error {
	if s.client == nil {
		return ErrClientNotInitialized
	}
	rec, err := s.store.GetSyncRecord(ctx, types.EntitySpec, specID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: spec %s", ErrNotLinked, specID)
		}
		return err
	}

	issue, err := s.client.GetIssue(ctx, rec.IssueNumber)
	if err != nil {
		return fmt.Errorf("fetch linked issue: %w", err)
	}
	if issue.State == "closed" {
		return nil
	}
	if _, err := s.client.CloseIssue(ctx, rec.IssueNumber, "completed"); err != nil {
		return err
	}
	rec.SyncStatus = types.SyncSuccess
	rec.LastSyncedAt = time.Now()
	return s.store.UpdateSyncRecord(ctx, rec)
}

// taskEntityID is the SyncRecord entity ID for a task.
func taskEntityID(taskID int64) string {
	return strconv.FormatInt(taskID, 10)
}
