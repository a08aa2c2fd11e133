package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/tracker"
	"github.com/sddkit/specsync/internal/types"
)

// SubIssueResult reports the outcome of sub-issue creation.
type SubIssueResult struct {
	Created  []int // issue numbers of created children
	Warnings []string
}

// CreateSubIssuesFromTaskList creates one child issue per task of a spec,
// links each under the spec's parent issue, and records the hierarchy in
// sync records. Task lists exceeding the tracker's per-issue child limit are
// rejected before any remote call. Tasks that already have a sub-issue are
// skipped.
func (s *Service) CreateSubIssuesFromTaskList(ctx context.Context, specID string) (*SubIssueResult, error) {
	if s.client == nil {
		return nil, ErrClientNotInitialized
	}

	parentRec, err := s.store.GetSyncRecord(ctx, types.EntitySpec, specID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: spec %s", ErrNotLinked, specID)
		}
		return nil, err
	}

	tasks, err := s.store.ListTasksBySpec(ctx, specID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	linked := 0
	var pending []*types.Task
	for _, task := range tasks {
		if task.SubIssueNumber == nil {
			pending = append(pending, task)
		} else {
			linked++
		}
	}
	// Fail fast before any remote call. The cap applies to the parent's
	// total child count, so already-linked children count against it.
	if total := linked + len(pending); total > tracker.MaxSubIssues {
		return nil, fmt.Errorf("parent would have %d sub-issues, exceeding the per-issue limit of %d",
			total, tracker.MaxSubIssues)
	}

	result := &SubIssueResult{}
	var checklist []string
	for _, task := range pending {
		child, err := s.client.CreateIssue(ctx, task.Title, task.Description, []string{"task"})
		if err != nil {
			return result, fmt.Errorf("create sub-issue for task %d: %w", task.ID, err)
		}

		if err := s.client.AddSubIssue(ctx, parentRec.NodeID, child.NodeID); err != nil {
			return result, fmt.Errorf("link sub-issue #%d: %w", child.Number, err)
		}

		parentNumber := parentRec.IssueNumber
		rec := &types.SyncRecord{
			EntityType:        types.EntityTask,
			EntityID:          taskEntityID(task.ID),
			IssueNumber:       child.Number,
			NodeID:            child.NodeID,
			SyncStatus:        types.SyncSuccess,
			ParentIssueNumber: &parentNumber,
			ParentSpecID:      specID,
			LastSyncedAt:      time.Now(),
		}
		if err := s.store.CreateSyncRecord(ctx, rec); err != nil {
			return result, fmt.Errorf("persist sub-issue record: %w", err)
		}
		if err := s.store.SetTaskSubIssue(ctx, task.ID, child.Number); err != nil {
			return result, fmt.Errorf("link task %d: %w", task.ID, err)
		}

		result.Created = append(result.Created, child.Number)
		checklist = append(checklist, fmt.Sprintf("- [ ] %s (#%d)", task.Title, child.Number))
	}

	if len(checklist) > 0 {
		if err := s.appendParentChecklist(ctx, parentRec.IssueNumber, checklist); err != nil {
			log.Printf("sync: parent checklist update: %v", err)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("parent checklist update failed: %v", err))
		}
	}
	return result, nil
}

// subIssuesHeading marks the parent-issue section holding the task checklist.
const subIssuesHeading = "## Sub-issues"

// appendParentChecklist adds checklist lines for new children to the parent
// issue body, creating the section on first use.
func (s *Service) appendParentChecklist(ctx context.Context, parentNumber int, lines []string) error {
	parent, err := s.client.GetIssue(ctx, parentNumber)
	if err != nil {
		return err
	}

	body := parent.Body
	if !strings.Contains(body, subIssuesHeading) {
		body = strings.TrimRight(body, "\n") + "\n\n" + subIssuesHeading + "\n"
	}
	body = strings.TrimRight(body, "\n") + "\n" + strings.Join(lines, "\n") + "\n"

	_, err = s.client.UpdateIssue(ctx, parentNumber, map[string]interface{}{"body": body})
	return err
}

// checklistLinePattern matches the one parent-body checklist line referencing
// a child issue number, tolerant of either checked state.
func checklistLinePattern(issueNumber int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?m)^(\s*[-*]\s+\[)[ xX](\]\s+.*#%d\b.*)$`, issueNumber))
}

// CompletionResult reports the outcome of HandleTaskCompletion.
type CompletionResult struct {
	ChildClosed  bool
	ParentClosed bool
	Warnings     []string
}

// HandleTaskCompletion closes the sub-issue for a completed task, checks off
// its line in the parent issue body, and auto-closes the parent when every
// sibling sub-issue is closed.
func (s *Service) HandleTaskCompletion(ctx context.Context, taskID int64) (*CompletionResult, error) {
	if s.client == nil {
		return nil, ErrClientNotInitialized
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", taskID, err)
	}
	rec, err := s.store.GetSyncRecord(ctx, types.EntityTask, taskEntityID(taskID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %d", ErrNotLinked, taskID)
		}
		return nil, err
	}

	result := &CompletionResult{}

	if _, err := s.client.CloseIssue(ctx, rec.IssueNumber, "completed"); err != nil {
		return nil, fmt.Errorf("close sub-issue #%d: %w", rec.IssueNumber, err)
	}
	result.ChildClosed = true

	if task.Status != types.StatusDone {
		if err := s.store.UpdateTaskStatus(ctx, taskID, types.StatusDone); err != nil {
			return nil, fmt.Errorf("mark task done: %w", err)
		}
	}

	rec.SyncStatus = types.SyncSuccess
	rec.LastSyncedAt = time.Now()
	if err := s.store.UpdateSyncRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist sync record: %w", err)
	}

	if rec.ParentIssueNumber == nil {
		return result, nil
	}
	parentNumber := *rec.ParentIssueNumber

	if err := s.checkOffParentLine(ctx, parentNumber, rec.IssueNumber); err != nil {
		log.Printf("sync: parent checklist line update: %v", err)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("parent checklist update failed: %v", err))
	}

	closed, err := s.maybeCloseParent(ctx, parentNumber)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("parent auto-close check failed: %v", err))
		return result, nil
	}
	result.ParentClosed = closed
	return result, nil
}

// checkOffParentLine rewrites the single checklist line in the parent body
// referencing the child issue number, leaving the rest of the body untouched.
func (s *Service) checkOffParentLine(ctx context.Context, parentNumber, childNumber int) error {
	parent, err := s.client.GetIssue(ctx, parentNumber)
	if err != nil {
		return err
	}

	pattern := checklistLinePattern(childNumber)
	updated := pattern.ReplaceAllString(parent.Body, "${1}x${2}")
	if updated == parent.Body {
		return nil // no checklist line references this child
	}

	_, err = s.client.UpdateIssue(ctx, parentNumber, map[string]interface{}{"body": updated})
	return err
}

// maybeCloseParent closes the parent issue iff every linked sibling
// sub-issue is closed. A sibling that was deleted remotely no longer blocks
// completion; a transient lookup failure aborts the auto-close.
func (s *Service) maybeCloseParent(ctx context.Context, parentNumber int) (bool, error) {
	siblings, err := s.store.ListSyncRecordsByParent(ctx, parentNumber)
	if err != nil {
		return false, fmt.Errorf("list siblings: %w", err)
	}

	for _, sib := range siblings {
		issue, err := s.client.GetIssue(ctx, sib.IssueNumber)
		if err != nil {
			if tracker.IsDeleted(err) {
				continue
			}
			return false, fmt.Errorf("check sibling #%d: %w", sib.IssueNumber, err)
		}
		if issue.State != "closed" {
			return false, nil
		}
	}

	if _, err := s.client.CloseIssue(ctx, parentNumber, "completed"); err != nil {
		return false, fmt.Errorf("close parent #%d: %w", parentNumber, err)
	}
	if _, err := s.client.CreateComment(ctx, parentNumber,
		"All sub-issues completed; closing automatically."); err != nil {
		log.Printf("sync: parent completion comment: %v", err)
	}
	return true, nil
}
