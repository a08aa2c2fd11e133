// Package gitx manages the git branch lifecycle for spec work: branch
// detection and caching, protected-branch policy, deterministic branch
// naming, and branch creation/switching with pre-switch auto-commit.
//
// Every git invocation goes through an argument vector (never a shell
// string), so branch names and messages are never interpolated into a shell.
package gitx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// AutoCommitMessage is the fixed commit message used when specsync commits
// uncommitted work before switching branches.
const AutoCommitMessage = "chore: auto-commit by specsync before branch switch"

// FallbackBaseBranch is used when no base branch is configured and remote
// default detection fails.
const FallbackBaseBranch = "main"

// defaultProtected is the protected-branch list applied when nothing is
// configured and remote default detection fails.
var defaultProtected = []string{"main", "master"}

// Repo provides branch lifecycle operations on one working directory.
type Repo struct {
	workDir string

	// Configured policy. Empty slices/strings fall back to detection.
	protected     []string
	baseBranch    string
	releaseBranch string

	mu            sync.Mutex
	currentBranch string // cached until invalidated

	// opMu serializes mutating git operations. Event handlers run
	// concurrently and must not interleave subprocesses on one index.
	opMu sync.Mutex
}

// Option configures a Repo.
type Option func(*Repo)

// WithProtectedBranches sets the protected-branch list.
func WithProtectedBranches(branches []string) Option {
	return func(r *Repo) { r.protected = branches }
}

// WithBaseBranch sets the base branch new spec branches are created from.
func WithBaseBranch(branch string) Option {
	return func(r *Repo) { r.baseBranch = branch }
}

// WithReleaseBranch sets the branch hotfix specs are created from.
func WithReleaseBranch(branch string) Option {
	return func(r *Repo) { r.releaseBranch = branch }
}

// NewRepo creates a Repo rooted at workDir.
func NewRepo(workDir string, opts ...Option) *Repo {
	r := &Repo{workDir: workDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run executes git with the given argument vector in the repo directory.
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// runQuiet executes git and reports only success or failure.
func (r *Repo) runQuiet(ctx context.Context, args ...string) bool {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.workDir
	return cmd.Run() == nil
}

// IsGitRepo reports whether the working directory is inside a git work tree.
func (r *Repo) IsGitRepo(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = r.workDir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// CurrentBranch returns the checked-out branch name. The result is cached
// until InvalidateBranchCache is called; branch switches performed through
// this package invalidate it automatically.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentBranch != "" {
		return r.currentBranch, nil
	}
	branch, err := r.readCurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	r.currentBranch = branch
	return branch, nil
}

// readCurrentBranch queries git directly, bypassing the cache.
func (r *Repo) readCurrentBranch(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = r.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// InvalidateBranchCache discards the cached current-branch name.
func (r *Repo) InvalidateBranchCache() {
	r.mu.Lock()
	r.currentBranch = ""
	r.mu.Unlock()
}

// protectedBranches resolves the effective protected-branch list:
// configured list if set, otherwise the detected remote default branch,
// otherwise the fixed main/master pair.
func (r *Repo) protectedBranches(ctx context.Context) []string {
	if len(r.protected) > 0 {
		return r.protected
	}
	if detected := r.DetectRemoteDefaultBranch(ctx); detected != "" {
		return []string{detected}
	}
	return defaultProtected
}

// IsProtectedBranch reports whether direct work on the named branch is
// disallowed.
func (r *Repo) IsProtectedBranch(ctx context.Context, name string) bool {
	for _, p := range r.protectedBranches(ctx) {
		if p == name {
			return true
		}
	}
	return false
}

// DetectRemoteDefaultBranch returns the remote HEAD branch name, or "" if it
// cannot be determined (no remote, detached, offline).
func (r *Repo) DetectRemoteDefaultBranch(ctx context.Context) string {
	out, err := r.run(ctx, "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if err != nil {
		return ""
	}
	// Output is "origin/main"; strip the remote prefix.
	if idx := strings.IndexByte(out, '/'); idx >= 0 {
		return out[idx+1:]
	}
	return out
}

// BaseBranch resolves the branch new spec branches are created from:
// configured base branch, else detected remote default, else "main".
func (r *Repo) BaseBranch(ctx context.Context) string {
	if r.baseBranch != "" {
		return r.baseBranch
	}
	if detected := r.DetectRemoteDefaultBranch(ctx); detected != "" {
		return detected
	}
	return FallbackBaseBranch
}

// ReleaseBranch resolves the branch hotfix specs are created from, falling
// back to the base branch when not configured.
func (r *Repo) ReleaseBranch(ctx context.Context) string {
	if r.releaseBranch != "" {
		return r.releaseBranch
	}
	return r.BaseBranch(ctx)
}

// BranchExists reports whether a local branch with the given name exists.
func (r *Repo) BranchExists(ctx context.Context, name string) bool {
	return r.runQuiet(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
}

// HasUncommittedChanges reports whether the working tree is dirty.
func (r *Repo) HasUncommittedChanges(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = r.workDir
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// CommitAll stages the entire working tree and commits with the given
// message. Returns false with a nil error when there is nothing to commit.
func (r *Repo) CommitAll(ctx context.Context, message string) (bool, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.commitAllLocked(ctx, message)
}

func (r *Repo) commitAllLocked(ctx context.Context, message string) (bool, error) {
	if _, err := r.run(ctx, "add", "-A"); err != nil {
		return false, err
	}
	return r.commitStaged(ctx, message)
}

// CommitPaths stages only the given paths and commits them. Returns false
// with a nil error when the paths hold no changes.
func (r *Repo) CommitPaths(ctx context.Context, message string, paths ...string) (bool, error) {
	if len(paths) == 0 {
		return false, nil
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()
	args := append([]string{"add", "--"}, paths...)
	if _, err := r.run(ctx, args...); err != nil {
		return false, err
	}
	return r.commitStaged(ctx, message)
}

func (r *Repo) commitStaged(ctx context.Context, message string) (bool, error) {
	// --quiet exits 0 when there is nothing staged.
	if r.runQuiet(ctx, "diff", "--cached", "--quiet") {
		return false, nil
	}
	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureRemoteBranch checks that the named branch exists on origin and pushes
// it non-interactively when absent. Push failure is returned to the caller:
// operations that depend on the branch being remote (pull-request creation)
// treat it as fatal.
func (r *Repo) EnsureRemoteBranch(ctx context.Context, name string) error {
	out, err := r.run(ctx, "ls-remote", "--heads", "origin", name)
	if err != nil {
		return fmt.Errorf("check remote branch %s: %w", name, err)
	}
	if out != "" {
		return nil // already on the remote
	}

	cmd := exec.CommandContext(ctx, "git", "push", "--set-upstream", "origin", name)
	cmd.Dir = r.workDir
	// Never block on a credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	pushOut, pushErr := cmd.CombinedOutput()
	if pushErr != nil {
		return fmt.Errorf("push branch %s: %w: %s", name, pushErr, strings.TrimSpace(string(pushOut)))
	}
	return nil
}
