// Package gitpreflight implements the git contract a worker applies before
// spawning the engine on an EXECUTE task: checking out or creating the
// work branch, verifying the tree is clean, and confirming the base
// commit is still an ancestor of HEAD.
package gitpreflight

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Ref is the decoded references.git contract.
type Ref struct {
	BaseBranch        string `json:"baseBranch,omitempty"`
	BaseSha           string `json:"baseSha,omitempty"`
	WorkBranch        string `json:"workBranch,omitempty"`
	IntegrationBranch string `json:"integrationBranch,omitempty"`
	ExpectedDeploy    string `json:"expectedDeploy,omitempty"`
}

// Result is the structured snapshot embedded in the receipt, win or lose.
type Result struct {
	CheckedOutBranch string `json:"checkedOutBranch"`
	Created          bool   `json:"created"`
	HeadSha          string `json:"headSha"`
	AncestorVerified bool   `json:"ancestorVerified"`
}

// Run applies the preflight contract against repoRoot. strict requires
// BaseSha and WorkBranch to be present; non-strict mode is a no-op when
// either is absent.
func Run(ctx context.Context, repoRoot string, ref Ref, strict bool, timeout time.Duration) (Result, error) {
	if ref.BaseSha == "" || ref.WorkBranch == "" {
		if strict {
			return Result{}, ErrMissingRequiredFields
		}
		return Result{}, nil
	}

	if dirty, err := isDirty(ctx, repoRoot, timeout); err != nil {
		return Result{}, err
	} else if dirty {
		return Result{}, ErrDirtyWorkingTree
	}

	result := Result{CheckedOutBranch: ref.WorkBranch}

	if branchExists(ctx, repoRoot, ref.WorkBranch, timeout) {
		if err := runGit(ctx, repoRoot, timeout, "checkout", ref.WorkBranch); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
		}
	} else {
		if err := fetchOnce(ctx, repoRoot, timeout); err != nil {
			// Fetch is best-effort: a missing remote shouldn't block a
			// preflight whose base sha is already present locally.
			_ = err
		}
		if err := runGit(ctx, repoRoot, timeout, "checkout", "-b", ref.WorkBranch, ref.BaseSha); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
		}
		result.Created = true
	}

	headSha, err := revParse(ctx, repoRoot, "HEAD", timeout)
	if err != nil {
		return Result{}, err
	}
	result.HeadSha = headSha

	ancestor, err := isAncestor(ctx, repoRoot, ref.BaseSha, "HEAD", timeout)
	if err != nil {
		return Result{}, err
	}
	if !ancestor {
		return result, ErrBaseNotAncestor
	}
	result.AncestorVerified = true
	return result, nil
}

func isDirty(ctx context.Context, repoRoot string, timeout time.Duration) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", "status", "--porcelain")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

func branchExists(ctx context.Context, repoRoot, branch string, timeout time.Duration) bool {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = repoRoot
	return cmd.Run() == nil
}

func fetchOnce(ctx context.Context, repoRoot string, timeout time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", "fetch", "--all")
	cmd.Dir = repoRoot
	return cmd.Run()
}

func revParse(ctx context.Context, repoRoot, ref string, timeout time.Duration) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", "rev-parse", ref)
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s: %w", ref, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func isAncestor(ctx context.Context, repoRoot, ancestor, descendant string, timeout time.Duration) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", "merge-base", "--is-ancestor", ancestor, descendant)
	cmd.Dir = repoRoot
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if exitErrIs(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("git merge-base: %w", err)
}

func runGit(ctx context.Context, repoRoot string, timeout time.Duration, args ...string) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func exitErrIs(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
