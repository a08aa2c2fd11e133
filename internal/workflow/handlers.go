package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sddkit/specsync/internal/eventbus"
	"github.com/sddkit/specsync/internal/gitx"
	"github.com/sddkit/specsync/internal/specdoc"
	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/sync"
	"github.com/sddkit/specsync/internal/tracker"
	"github.com/sddkit/specsync/internal/types"
)

// Built-in handler IDs.
const (
	HandlerDocCommit  = "git-doc-commit"
	HandlerBranch     = "branch-manager"
	HandlerCompletion = "completion-automation"
	HandlerIssueSync  = "issue-sync"
)

// RegisterBuiltins registers the built-in integration handlers on a bus.
// repo may be nil when no git working directory is available; client may be
// nil when the tracker is not configured — the affected handlers then skip
// their work with a warning instead of failing.
func RegisterBuiltins(bus *eventbus.Bus, store storage.Store, repo *gitx.Repo, svc *sync.Service, client *tracker.Client, specsDir string) {
	bus.Register(&docCommitHandler{repo: repo, specsDir: specsDir})
	bus.Register(&branchHandler{store: store, repo: repo})
	bus.Register(&completionHandler{store: store, repo: repo, client: client, specsDir: specsDir})
	bus.Register(&issueSyncHandler{svc: svc})
}

// docCommitHandler auto-commits the spec document on every phase change
// except implementation→completed, where the completion handler commits the
// whole tree instead.
type docCommitHandler struct {
	repo     *gitx.Repo
	specsDir string
}

func (h *docCommitHandler) ID() string { return HandlerDocCommit }

func (h *docCommitHandler) Handles() []eventbus.EventType {
	return []eventbus.EventType{eventbus.EventPhaseChanged, eventbus.EventSpecUpdated}
}

func (h *docCommitHandler) Handle(ctx context.Context, event *eventbus.Event, result *eventbus.Result) error {
	if h.repo == nil || !h.repo.IsGitRepo(ctx) {
		return nil
	}
	if pc := event.PhaseChange; pc != nil && pc.NewPhase == types.PhaseCompleted {
		return nil // completion handler owns the full-tree commit
	}

	msg := fmt.Sprintf("docs: update spec %s", event.SpecID)
	if pc := event.PhaseChange; pc != nil {
		msg = fmt.Sprintf("docs: spec %s moved to %s", event.SpecID, pc.NewPhase)
	}
	committed, err := h.repo.CommitPaths(ctx, msg, specdoc.Path(h.specsDir, event.SpecID))
	if err != nil {
		return fmt.Errorf("commit spec document: %w", err)
	}
	if committed {
		log.Printf("workflow: committed spec document for %s", event.SpecID)
	}
	return nil
}

// branchHandler creates the work branch on tasks→implementation. Branch
// creation failure rolls the persisted phase back to the old phase before
// returning the error, keeping phase and branch state in lockstep.
type branchHandler struct {
	store storage.Store
	repo  *gitx.Repo
}

func (h *branchHandler) ID() string { return HandlerBranch }

func (h *branchHandler) Handles() []eventbus.EventType {
	return []eventbus.EventType{eventbus.EventPhaseChanged}
}

func (h *branchHandler) Handle(ctx context.Context, event *eventbus.Event, result *eventbus.Result) error {
	pc := event.PhaseChange
	if pc == nil || pc.OldPhase != types.PhaseTasks || pc.NewPhase != types.PhaseImplementation {
		return nil
	}
	if h.repo == nil {
		result.AddWarning("no git repository configured; branch not created")
		return nil
	}

	spec, err := h.store.GetSpec(ctx, event.SpecID)
	if err != nil {
		return h.rollback(ctx, event.SpecID, pc.OldPhase, fmt.Errorf("load spec: %w", err))
	}

	res, err := h.repo.CreateSpecBranch(ctx, event.SpecID, gitx.CreateOptions{Slug: spec.Name})
	if err != nil {
		return h.rollback(ctx, event.SpecID, pc.OldPhase, err)
	}
	if !res.CheckedOut {
		// Outside a git working directory: non-fatal, no rollback.
		result.AddWarning(res.Reason)
		return nil
	}

	if err := h.store.UpdateSpecBranch(ctx, event.SpecID, res.Branch); err != nil {
		return h.rollback(ctx, event.SpecID, pc.OldPhase, fmt.Errorf("persist branch name: %w", err))
	}
	result.SetBranch(res.Branch, true)
	return nil
}

// rollback restores the persisted phase and returns the original failure.
func (h *branchHandler) rollback(ctx context.Context, specID string, oldPhase types.Phase, cause error) error {
	if err := h.store.UpdateSpecPhase(ctx, specID, oldPhase); err != nil {
		return fmt.Errorf("%v (and phase rollback to %s failed: %w)", cause, oldPhase, err)
	}
	return cause
}

// completionHandler performs the best-effort automation on
// implementation→completed: commit the whole working tree, ensure the branch
// exists remotely, and open a pull request. Failures never fail the phase
// transition; each is reported with a remediation hint.
type completionHandler struct {
	store    storage.Store
	repo     *gitx.Repo
	client   *tracker.Client
	specsDir string
}

func (h *completionHandler) ID() string { return HandlerCompletion }

func (h *completionHandler) Handles() []eventbus.EventType {
	return []eventbus.EventType{eventbus.EventPhaseChanged}
}

func (h *completionHandler) Handle(ctx context.Context, event *eventbus.Event, result *eventbus.Result) error {
	pc := event.PhaseChange
	if pc == nil || pc.OldPhase != types.PhaseImplementation || pc.NewPhase != types.PhaseCompleted {
		return nil
	}
	if h.repo == nil || !h.repo.IsGitRepo(ctx) {
		result.AddWarning("no git repository; completion commit and PR skipped")
		return nil
	}

	if _, err := h.repo.CommitAll(ctx, fmt.Sprintf("chore: complete spec %s", event.SpecID)); err != nil {
		warn(result, "auto-commit failed", err)
		return nil
	}

	branch, err := h.repo.CurrentBranch(ctx)
	if err != nil {
		warn(result, "current branch lookup failed", err)
		return nil
	}
	if h.repo.IsProtectedBranch(ctx, branch) {
		result.AddWarning(fmt.Sprintf("on protected branch %q; no pull request opened", branch))
		return nil
	}

	if err := h.repo.EnsureRemoteBranch(ctx, branch); err != nil {
		warn(result, "push failed", err)
		return nil
	}

	if h.client == nil {
		warn(result, "pull request skipped", sync.ErrClientNotInitialized)
		return nil
	}

	spec, err := h.store.GetSpec(ctx, event.SpecID)
	if err != nil {
		warn(result, "spec lookup failed", err)
		return nil
	}
	body := fmt.Sprintf("Closes out spec `%s`.", event.SpecID)
	if doc, derr := specdoc.Load(h.specsDir, event.SpecID); derr == nil {
		if desc := doc.Description(); desc != "" {
			body = desc + "\n\n" + body
		}
	}
	pr, err := h.client.CreatePullRequest(ctx,
		fmt.Sprintf("Complete spec: %s", spec.Name), body,
		branch, h.repo.BaseBranch(ctx))
	if err != nil {
		warn(result, "pull request creation failed", err)
		return nil
	}
	result.SetPRURL(pr.HTMLURL)

	if rec, rerr := h.store.GetSyncRecord(ctx, types.EntitySpec, event.SpecID); rerr == nil {
		prNumber := pr.Number
		rec.PRNumber = &prNumber
		rec.PRURL = pr.HTMLURL
		if err := h.store.UpdateSyncRecord(ctx, rec); err != nil {
			log.Printf("workflow: persist PR link: %v", err)
		}
	} else if !errors.Is(rerr, storage.ErrNotFound) {
		log.Printf("workflow: sync record lookup: %v", rerr)
	}
	return nil
}

// warn records a best-effort automation failure with a remediation hint
// keyed on the error.
func warn(result *eventbus.Result, what string, err error) {
	hint := remediationFor(err)
	log.Printf("workflow: %s: %v (%s)", what, err, hint)
	result.AddWarning(fmt.Sprintf("%s: %v — %s", what, err, hint))
}

// remediationFor maps a best-effort automation failure to an actionable hint.
func remediationFor(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, sync.ErrClientNotInitialized) || strings.Contains(msg, "client not initialized"):
		return "run `specsync init` to configure tracker access"
	case strings.Contains(msg, "owner/repo") || errors.Is(err, tracker.ErrNotFound):
		return "set github.owner and github.repo in .specsync/config.yaml"
	case strings.Contains(msg, "push"):
		return "push the branch manually, then open the pull request with `specsync sync`"
	case errors.Is(err, tracker.ErrRateLimited):
		return "tracker rate limit exhausted; retry later"
	default:
		return "re-run `specsync sync` once the underlying problem is fixed"
	}
}

// issueSyncHandler refreshes the linked issue after phase changes and
// renames, and closes it when a spec completes. Specs without a linked issue
// are skipped.
type issueSyncHandler struct {
	svc *sync.Service
}

func (h *issueSyncHandler) ID() string { return HandlerIssueSync }

func (h *issueSyncHandler) Handles() []eventbus.EventType {
	return []eventbus.EventType{eventbus.EventPhaseChanged, eventbus.EventSpecRenamed}
}

func (h *issueSyncHandler) Handle(ctx context.Context, event *eventbus.Event, result *eventbus.Result) error {
	if h.svc == nil {
		return nil
	}
	_, err := h.svc.SyncSpecToIssue(ctx, event.SpecID, false)
	if errors.Is(err, sync.ErrNotLinked) || errors.Is(err, sync.ErrClientNotInitialized) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh linked issue: %w", err)
	}

	if pc := event.PhaseChange; pc != nil && pc.NewPhase == types.PhaseCompleted {
		if err := h.svc.CloseLinkedIssue(ctx, event.SpecID); err != nil {
			result.AddWarning(fmt.Sprintf("close linked issue: %v", err))
		}
	}
	return nil
}
