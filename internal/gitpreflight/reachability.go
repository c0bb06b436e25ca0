package gitpreflight

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultRemotes is the allowlist used when the caller does not supply one.
var DefaultRemotes = []string{"origin", "github"}

// ReachabilityReport lists which remote branches contain a commit.
type ReachabilityReport struct {
	Commit              string
	ContainingBranches  map[string][]string // remote -> branch names
	IntegrationBranchOK bool
}

// CheckReachability fetches each allowed remote, then reports which remote
// branches contain commit. If requiredIntegrationBranch is non-empty, it
// also verifies commit is reachable on that branch specifically.
func CheckReachability(ctx context.Context, repoRoot, commit string, remotes []string, requiredIntegrationBranch string, timeout time.Duration) (ReachabilityReport, error) {
	if len(remotes) == 0 {
		remotes = DefaultRemotes
	}
	report := ReachabilityReport{Commit: commit, ContainingBranches: map[string][]string{}}

	for _, remote := range remotes {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		fetchCmd := exec.CommandContext(cctx, "git", "fetch", remote)
		fetchCmd.Dir = repoRoot
		_ = fetchCmd.Run()
		cancel()

		cctx2, cancel2 := context.WithTimeout(ctx, timeout)
		cmd := exec.CommandContext(cctx2, "git", "branch", "-r", "--contains", commit)
		cmd.Dir = repoRoot
		out, err := cmd.Output()
		cancel2()
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(out), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, remote+"/") {
				continue
			}
			report.ContainingBranches[remote] = append(report.ContainingBranches[remote], line)
		}
	}

	if requiredIntegrationBranch != "" {
		ok, err := isAncestor(ctx, repoRoot, commit, requiredIntegrationBranch, timeout)
		if err != nil {
			return report, fmt.Errorf("verify integration branch reachability: %w", err)
		}
		report.IntegrationBranchOK = ok
	}
	return report, nil
}
