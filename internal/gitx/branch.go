package gitx

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sddkit/specsync/internal/idgen"
	"github.com/sddkit/specsync/internal/types"
)

// ErrProtectedBranch is returned when an operation targets a branch the
// protected-branch policy forbids mutating.
var ErrProtectedBranch = errors.New("gitx: branch is protected")

// slugInvalidChars matches every character a branch slug may not contain.
var slugInvalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// collapseHyphens matches runs of hyphens for collapsing.
var collapseHyphens = regexp.MustCompile(`-{2,}`)

// SanitizeSlug normalizes an arbitrary string into a branch-safe slug:
// lowercase, characters outside [a-z0-9_-] replaced with "-", consecutive
// hyphens collapsed, leading/trailing hyphens trimmed. The result may be
// empty for inputs with no usable characters.
func SanitizeSlug(s string) string {
	s = strings.ToLower(s)
	s = slugInvalidChars.ReplaceAllString(s, "-")
	s = collapseHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// GenerateBranchName returns the deterministic branch name for a spec:
// spec/<shortId>[-<slug>] when branching off a non-protected branch,
// feature/spec-<shortId>[-<slug>] when branching off a protected one.
func GenerateBranchName(specID, slug string, fromProtected bool) string {
	short := idgen.ShortID(specID)
	name := "spec/" + short
	if fromProtected {
		name = "feature/spec-" + short
	}
	if slug = SanitizeSlug(slug); slug != "" {
		name += "-" + slug
	}
	return name
}

// reservedRefPrefixes are ref names SwitchBranch refuses outright.
var reservedRefPrefixes = []string{"refs/heads/", "refs/tags/", "refs/remotes/"}

// unsafeBranchChars are shell metacharacters and globbing characters that a
// branch name passed to SwitchBranch may not contain. Git itself rejects most
// of these, but we fail before any subprocess runs.
const unsafeBranchChars = ";|&$(){}<>!`'\"*?[]~^\\"

// ValidateBranchName rejects branch names containing shell metacharacters,
// path traversal sequences, whitespace, or reserved refs.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name is empty")
	}
	if name == "HEAD" {
		return fmt.Errorf("branch name %q is reserved", name)
	}
	for _, prefix := range reservedRefPrefixes {
		if strings.HasPrefix(name, prefix) {
			return fmt.Errorf("branch name %q uses a reserved ref prefix", name)
		}
	}
	if strings.ContainsAny(name, unsafeBranchChars) {
		return fmt.Errorf("branch name %q contains unsafe characters", name)
	}
	if strings.ContainsAny(name, " \t\n\r") {
		return fmt.Errorf("branch name %q contains whitespace", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("branch name %q contains a path traversal sequence", name)
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("branch name %q starts with a hyphen", name)
	}
	return nil
}

// CreateResult reports the outcome of CreateSpecBranch. A false Created with
// a non-empty Reason is the non-fatal "not created" case (e.g., not a git
// repository); callers distinguish it from errors, which are fatal.
type CreateResult struct {
	Created    bool
	CheckedOut bool
	Branch     string
	Reason     string
}

// CreateOptions adjusts CreateSpecBranch behavior.
type CreateOptions struct {
	Slug   string
	Hotfix bool // branch from the release branch instead of the base branch
}

// CreateSpecBranch creates (or checks out) the work branch for a spec.
//
// The spec ID is validated first; a malformed ID is fatal. Outside a git
// working directory the result is a non-fatal "not created" with a reason.
// If the target branch already exists it is checked out rather than
// recreated. After any checkout the current branch is re-read and must equal
// the intended name; a mismatch (hook or alias interference) is fatal.
func (r *Repo) CreateSpecBranch(ctx context.Context, specID string, opts CreateOptions) (*CreateResult, error) {
	if err := types.ValidateSpecID(specID); err != nil {
		return nil, fmt.Errorf("invalid spec id: %w", err)
	}

	if !r.IsGitRepo(ctx) {
		return &CreateResult{
			Created: false,
			Reason:  "not a git repository; branch not created",
		}, nil
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	current, err := r.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	fromProtected := r.IsProtectedBranch(ctx, current)
	branch := GenerateBranchName(specID, opts.Slug, fromProtected)

	if r.BranchExists(ctx, branch) {
		if _, err := r.run(ctx, "checkout", branch); err != nil {
			return nil, err
		}
		r.InvalidateBranchCache()
		if err := r.verifyCheckedOut(ctx, branch); err != nil {
			return nil, err
		}
		return &CreateResult{Created: false, CheckedOut: true, Branch: branch}, nil
	}

	// New branches fork from the resolved base unless we are already on a
	// non-protected branch, in which case work stacks on the current branch.
	base := current
	if fromProtected {
		base = r.BaseBranch(ctx)
		if opts.Hotfix {
			base = r.ReleaseBranch(ctx)
		}
	}

	if _, err := r.run(ctx, "checkout", "-b", branch, base); err != nil {
		return nil, err
	}
	r.InvalidateBranchCache()
	if err := r.verifyCheckedOut(ctx, branch); err != nil {
		return nil, err
	}
	return &CreateResult{Created: true, CheckedOut: true, Branch: branch}, nil
}

// SwitchBranch checks out an existing branch after validating the name,
// refusing protected targets, and auto-committing a dirty working tree.
// Returns true when a switch happened, false when already on the target.
func (r *Repo) SwitchBranch(ctx context.Context, target string) (bool, error) {
	if err := ValidateBranchName(target); err != nil {
		return false, err
	}
	if r.IsProtectedBranch(ctx, target) {
		return false, fmt.Errorf("refusing to switch onto %q: %w", target, ErrProtectedBranch)
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	current, err := r.CurrentBranch(ctx)
	if err != nil {
		return false, err
	}
	if current == target {
		return false, nil // already on target
	}

	if r.HasUncommittedChanges(ctx) {
		if _, err := r.commitAllLocked(ctx, AutoCommitMessage); err != nil {
			return false, fmt.Errorf("auto-commit before switch: %w", err)
		}
	}

	if _, err := r.run(ctx, "checkout", target); err != nil {
		return false, err
	}
	r.InvalidateBranchCache()
	if err := r.verifyCheckedOut(ctx, target); err != nil {
		return false, err
	}
	return true, nil
}

// verifyCheckedOut re-reads the current branch and fails if it does not
// match the expected name. Detects hook or alias interference with checkout.
func (r *Repo) verifyCheckedOut(ctx context.Context, want string) error {
	got, err := r.readCurrentBranch(ctx)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("checkout verification failed: on %q, expected %q", got, want)
	}
	return nil
}
