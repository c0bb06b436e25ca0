package gate

import "testing"

func TestRunPassesCleanChangeSet(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{
		{Path: "internal/bus/bus.go", Status: "modified", Tracked: true, AddedLines: []string{"func Foo() {}"}},
	}}
	report := Run(cs, QualityConfig{})
	if !report.OK {
		t.Fatalf("expected clean changeset to pass, got errors: %v", report.Errors)
	}
}

func TestRunFlagsMergeConflictMarkers(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{
		{Path: "a.go", FullContent: "package a\n<<<<<<< HEAD\nfoo\n=======\nbar\n>>>>>>> branch\n"},
	}}
	report := Run(cs, QualityConfig{})
	if report.OK {
		t.Fatalf("expected merge conflict markers to fail the gate")
	}
}

func TestRunFlagsQualityEscapes(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{
		{Path: "a.go", Tracked: true, AddedLines: []string{"// TODO: fix this later"}},
	}}
	report := Run(cs, QualityConfig{})
	if report.OK {
		t.Fatalf("expected a TODO to fail the gate")
	}
}

func TestRunAdvisoryForPreExistingEscape(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{
		{Path: "legacy.go", Tracked: true, PreExisting: true, FullContent: "// TODO: old debt", AddedLines: []string{"unrelated change"}},
	}}
	report := Run(cs, QualityConfig{})
	if !report.OK {
		t.Fatalf("expected pre-existing escape to be advisory only, errors: %v", report.Errors)
	}
	if len(report.Warnings) == 0 {
		t.Fatalf("expected a warning for the pre-existing escape")
	}
}

func TestRunFlagsTempArtifacts(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{{Path: "tmp/scratch.txt", Status: "added", FullContent: "x"}}}
	report := Run(cs, QualityConfig{})
	if report.OK {
		t.Fatalf("expected temp artifact path to fail the gate")
	}
}

func TestRunRequiresTestsForRuntimeScriptChange(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{
		{Path: "scripts/deploy.sh", Status: "modified", Tracked: true, AddedLines: []string{"echo hi"}},
	}}
	report := Run(cs, QualityConfig{RuntimeScriptsDir: "scripts", TestsDir: "tests"})
	if report.OK {
		t.Fatalf("expected missing test file to fail the gate")
	}
}

func TestRunPassesRuntimeScriptChangeWithMatchingTest(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{
		{Path: "scripts/deploy.sh", Status: "modified", Tracked: true, AddedLines: []string{"echo hi"}},
		{Path: "tests/deploy_test.sh", Status: "added", FullContent: "test body"},
	}}
	report := Run(cs, QualityConfig{RuntimeScriptsDir: "scripts", TestsDir: "tests"})
	if !report.OK {
		t.Fatalf("expected matching test file to satisfy the gate, errors: %v", report.Errors)
	}
}

func TestRunFlagsUnbalancedDiffVolume(t *testing.T) {
	added := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		added = append(added, "line")
	}
	cs := ChangeSet{Files: []ChangedFile{
		{Path: "big.go", Tracked: true, AddedLines: added, DeletedLines: []string{"one line removed"}},
	}}
	report := Run(cs, QualityConfig{})
	if report.OK {
		t.Fatalf("expected grossly unbalanced growth to fail the gate")
	}
}

func TestRunFlagsDuplicateAddedBlocks(t *testing.T) {
	block := []string{"line one", "line two", "line three"}
	cs := ChangeSet{Files: []ChangedFile{
		{Path: "a.go", Tracked: true, AddedLines: block},
		{Path: "b.go", Tracked: true, AddedLines: block},
	}}
	report := Run(cs, QualityConfig{})
	if report.OK {
		t.Fatalf("expected duplicated 3-line block across files to fail the gate")
	}
}

func TestRunSkipsSkillValidatorsWhenNoSkillFiles(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{{Path: "internal/gate/quality.go", Tracked: true}}}
	report := Run(cs, QualityConfig{})
	if !report.OK {
		t.Fatalf("expected no skill files to pass trivially, errors: %v", report.Errors)
	}
}

func TestRunFlagsNonMarkdownSkillFile(t *testing.T) {
	cs := ChangeSet{Files: []ChangedFile{{Path: "agents/skills/deploy/script.py", Status: "added", FullContent: "print(1)"}}}
	report := Run(cs, QualityConfig{})
	if report.OK {
		t.Fatalf("expected a non-markdown skill file to fail validation")
	}
}
