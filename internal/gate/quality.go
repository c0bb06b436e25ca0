package gate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ChangedFile describes one file in the delta the quality gate inspects.
type ChangedFile struct {
	Path         string   `json:"path"`
	Status       string   `json:"status"` // "added", "modified", "deleted"
	Tracked      bool     `json:"tracked"`
	FullContent  string   `json:"fullContent,omitempty"` // full post-change content, used for added/untracked files
	AddedLines   []string `json:"addedLines,omitempty"`  // lines introduced by the diff (unified-diff "+" lines, marker stripped)
	DeletedLines []string `json:"deletedLines,omitempty"`
	PreExisting  bool     `json:"preExisting,omitempty"` // true if escape-pattern hits in this file predate the change
}

// ChangeSet is the full delta the quality gate evaluates.
type ChangeSet struct {
	Files []ChangedFile
}

// QualityConfig carries the directories the gate needs to know about.
type QualityConfig struct {
	RuntimeScriptsDir string
	TestsDir          string
}

// CheckResult is one check's verdict.
type CheckResult struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Blocking bool     `json:"blocking"`
	Messages []string `json:"messages,omitempty"`
}

// Report is the quality gate's machine-readable output.
type Report struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	HardRules []string      `json:"hardRules"`
	Errors    []string      `json:"errors,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
}

var tempPathPrefixes = []string{"tmp/", "/tmp/", ".tmp/", "temp/"}

var escapePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bTODO\b`),
	regexp.MustCompile(`(?i)\bFIXME\b`),
	regexp.MustCompile(`eslint-disable`),
	regexp.MustCompile(`nolint`),
	regexp.MustCompile(`(?i)noqa`),
	regexp.MustCompile(`as unknown as`),
	regexp.MustCompile(`:\s*any\b`),
	regexp.MustCompile(`except\s*:\s*$`),
	regexp.MustCompile(`catch\s*\([^)]*\)\s*\{\s*\}`),
}

const maxDiffVolume = 2000
const unbalancedGrowthMultiple = 10

// Run executes every check against cs and produces the combined report.
func Run(cs ChangeSet, cfg QualityConfig) Report {
	checks := []CheckResult{
		checkNoMergeConflictMarkers(cs),
		checkNoQualityEscapes(cs),
		checkLegacyQualityDebtAdvisory(cs),
		checkNoTempArtifacts(cs),
		checkRuntimeScriptChangeHasTests(cs, cfg),
		checkDiffVolumeBalanced(cs),
		checkNoDuplicateAddedBlocks(cs),
		checkSkillFileValidators(cs),
	}

	report := Report{OK: true, Checks: checks}
	for _, c := range checks {
		report.HardRules = append(report.HardRules, c.Name)
		if !c.Passed {
			if c.Blocking {
				report.OK = false
				report.Errors = append(report.Errors, c.Messages...)
			} else {
				report.Warnings = append(report.Warnings, c.Messages...)
			}
		}
	}
	return report
}

func checkNoMergeConflictMarkers(cs ChangeSet) CheckResult {
	var msgs []string
	for _, f := range cs.Files {
		content := contentOf(f)
		if strings.Contains(content, "<<<<<<<") || strings.Contains(content, "=======") || strings.Contains(content, ">>>>>>>") {
			msgs = append(msgs, fmt.Sprintf("%s: contains a merge conflict marker", f.Path))
		}
	}
	return CheckResult{Name: "no-merge-conflict-markers", Blocking: true, Passed: len(msgs) == 0, Messages: msgs}
}

func checkNoQualityEscapes(cs ChangeSet) CheckResult {
	var msgs []string
	for _, f := range cs.Files {
		lines := f.AddedLines
		if !f.Tracked {
			lines = strings.Split(f.FullContent, "\n")
		}
		for _, line := range lines {
			for _, p := range escapePatterns {
				if p.MatchString(line) {
					msgs = append(msgs, fmt.Sprintf("%s: quality escape matched %q in %q", f.Path, p.String(), strings.TrimSpace(line)))
				}
			}
		}
	}
	return CheckResult{Name: "no-quality-escapes", Blocking: true, Passed: len(msgs) == 0, Messages: msgs}
}

func checkLegacyQualityDebtAdvisory(cs ChangeSet) CheckResult {
	var msgs []string
	for _, f := range cs.Files {
		if !f.Tracked || !f.PreExisting {
			continue
		}
		for _, p := range escapePatterns {
			if p.MatchString(f.FullContent) {
				msgs = append(msgs, fmt.Sprintf("%s: pre-existing quality escape (advisory only)", f.Path))
				break
			}
		}
	}
	return CheckResult{Name: "legacy-quality-debt-advisory", Blocking: false, Passed: len(msgs) == 0, Messages: msgs}
}

func checkNoTempArtifacts(cs ChangeSet) CheckResult {
	var msgs []string
	for _, f := range cs.Files {
		norm := filepath.ToSlash(f.Path)
		for _, prefix := range tempPathPrefixes {
			if strings.HasPrefix(norm, prefix) || strings.Contains(norm, "/"+prefix) || strings.HasSuffix(norm, ".tmp") {
				msgs = append(msgs, fmt.Sprintf("%s: introduces a path under a recognized temp prefix", f.Path))
				break
			}
		}
	}
	return CheckResult{Name: "no-temp-artifacts", Blocking: true, Passed: len(msgs) == 0, Messages: msgs}
}

func checkRuntimeScriptChangeHasTests(cs ChangeSet, cfg QualityConfig) CheckResult {
	if cfg.RuntimeScriptsDir == "" {
		return CheckResult{Name: "runtime-script-change-has-tests", Blocking: true, Passed: true}
	}
	scriptChanged := false
	testChanged := false
	for _, f := range cs.Files {
		norm := filepath.ToSlash(f.Path)
		if strings.Contains(norm, "/"+cfg.RuntimeScriptsDir+"/") || strings.HasPrefix(norm, cfg.RuntimeScriptsDir+"/") {
			scriptChanged = true
		}
		if cfg.TestsDir != "" && (strings.Contains(norm, "/"+cfg.TestsDir+"/") || strings.HasPrefix(norm, cfg.TestsDir+"/")) {
			testChanged = true
		}
	}
	if scriptChanged && !testChanged {
		return CheckResult{
			Name: "runtime-script-change-has-tests", Blocking: true, Passed: false,
			Messages: []string{fmt.Sprintf("changes under %s require a matching test file under %s in the same delta", cfg.RuntimeScriptsDir, cfg.TestsDir)},
		}
	}
	return CheckResult{Name: "runtime-script-change-has-tests", Blocking: true, Passed: true}
}

func checkDiffVolumeBalanced(cs ChangeSet) CheckResult {
	additions, deletions := 0, 0
	for _, f := range cs.Files {
		additions += len(f.AddedLines)
		deletions += len(f.DeletedLines)
	}
	if additions > maxDiffVolume {
		return CheckResult{
			Name: "diff-volume-balanced", Blocking: true, Passed: false,
			Messages: []string{fmt.Sprintf("added %d lines, exceeding the %d-line threshold", additions, maxDiffVolume)},
		}
	}
	if deletions > 0 && additions > deletions*unbalancedGrowthMultiple {
		return CheckResult{
			Name: "diff-volume-balanced", Blocking: true, Passed: false,
			Messages: []string{fmt.Sprintf("additions (%d) outgrow deletions (%d) by more than %dx", additions, deletions, unbalancedGrowthMultiple)},
		}
	}
	return CheckResult{Name: "diff-volume-balanced", Blocking: true, Passed: true}
}

// checkNoDuplicateAddedBlocks slides a 3-line window across every file's
// added lines; any window whose key appears more than once across the
// whole delta flags as duplication, including two occurrences within the
// same file.
func checkNoDuplicateAddedBlocks(cs ChangeSet) CheckResult {
	seen := make(map[string]string)
	var msgs []string
	for _, f := range cs.Files {
		lines := nonTrivialLines(f.AddedLines)
		for i := 0; i+3 <= len(lines); i++ {
			key := strings.Join(lines[i:i+3], "\n")
			if key == "" {
				continue
			}
			if origin, ok := seen[key]; ok {
				msgs = append(msgs, fmt.Sprintf("%s: duplicates a 3-line block already added in %s", f.Path, origin))
			} else {
				seen[key] = f.Path
			}
		}
	}
	return CheckResult{Name: "no-duplicate-added-blocks", Blocking: true, Passed: len(msgs) == 0, Messages: msgs}
}

func checkSkillFileValidators(cs ChangeSet) CheckResult {
	var msgs []string
	for _, f := range cs.Files {
		if !strings.Contains(filepath.ToSlash(f.Path), "/skills/") {
			continue
		}
		if !strings.HasSuffix(f.Path, ".md") && !strings.HasSuffix(f.Path, ".yaml") && !strings.HasSuffix(f.Path, ".yml") {
			msgs = append(msgs, fmt.Sprintf("%s: skill file must be markdown or yaml", f.Path))
		}
	}
	return CheckResult{Name: "skill-file-validators", Blocking: true, Passed: len(msgs) == 0, Messages: msgs}
}

func contentOf(f ChangedFile) string {
	if f.FullContent != "" {
		return f.FullContent
	}
	return strings.Join(f.AddedLines, "\n")
}

func nonTrivialLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(l))
	}
	return out
}
