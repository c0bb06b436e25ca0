package workerloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/engine"
	"github.com/agentbusio/agentbus/internal/packet"
	"github.com/agentbusio/agentbus/internal/roster"
)

func testRoster() *roster.Roster {
	return &roster.Roster{
		OrchestratorName: "orchestrator",
		AutopilotName:    "autopilot",
		DaddyChatName:    "daddy",
		Agents: []roster.Agent{
			{Name: "orchestrator"},
			{Name: "builder"},
		},
	}
}

func writeFakeEngine(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func seedTask(t *testing.T, b *bus.Bus, agent, id string, signals map[string]any) {
	t.Helper()
	hdr := packet.Header{ID: id, To: []string{agent}, From: "orchestrator", Title: "do work", Signals: signals}
	rendered, err := packet.Render(hdr, "please do the work")
	if err != nil {
		t.Fatal(err)
	}
	dir := b.InboxDir(agent, bus.StateNew)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".md"), []byte(rendered), 0o644); err != nil {
		t.Fatal(err)
	}
}

func baseOpts(agent string) Options {
	return Options{
		Agent:               agent,
		WorkDir:             "",
		GitPreflightStrict:  false,
		Engine:              engine.Timeouts{Command: "", StallTimeout: 2 * time.Second, GracePeriod: 50 * time.Millisecond},
		SemaphoreSlots:      2,
		MaxAttemptsPerTask:  3,
		EnginePollInterval:  10 * time.Millisecond,
		CooldownJitter:      0,
		Sleep:               func(time.Duration) {},
	}
}

func TestRunOnceHappyPathClosesTaskAndWritesReceipt(t *testing.T) {
	root := t.TempDir()
	b := bus.New(root)
	r := testRoster()
	if err := b.EnsureBusRoot(r); err != nil {
		t.Fatal(err)
	}
	seedTask(t, b, "builder", "task-1", map[string]any{"kind": "EXECUTE"})

	artifactPath := filepath.Join(b.ArtifactsDir("builder"), "task-1.artifact.json")
	t.Setenv("FAKE_ARTIFACT_PATH", artifactPath)
	script := writeFakeEngine(t, `cat > "$FAKE_ARTIFACT_PATH" <<'EOF'
{"outcome":"done","note":"all good","commitSha":"abc123","changedFiles":[],"followUps":[]}
EOF`)

	opts := baseOpts("builder")
	opts.Engine.Command = script
	opts.WorkDir = t.TempDir()

	loop := New(b, r, opts)
	results, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(results) != 1 || results[0].Outcome != "done" {
		t.Fatalf("unexpected results: %+v", results)
	}

	if _, err := os.Stat(filepath.Join(b.InboxDir("builder", bus.StateProcessed), "task-1.md")); err != nil {
		t.Fatalf("expected task moved to processed: %v", err)
	}
	receipt, ok, err := b.ReadReceipt("builder", "task-1")
	if err != nil || !ok {
		t.Fatalf("expected receipt, ok=%v err=%v", ok, err)
	}
	if receipt.CommitSHA != "abc123" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestRunOnceQualityGateFailureClosesNeedsReview(t *testing.T) {
	root := t.TempDir()
	b := bus.New(root)
	r := testRoster()
	if err := b.EnsureBusRoot(r); err != nil {
		t.Fatal(err)
	}
	seedTask(t, b, "builder", "task-2", map[string]any{"kind": "EXECUTE"})

	artifactPath := filepath.Join(b.ArtifactsDir("builder"), "task-2.artifact.json")
	t.Setenv("FAKE_ARTIFACT_PATH", artifactPath)
	script := writeFakeEngine(t, `cat > "$FAKE_ARTIFACT_PATH" <<'EOF'
{"outcome":"done","note":"has a todo","changedFiles":[{"path":"a.go","tracked":true,"addedLines":["// TODO: fix"]}]}
EOF`)

	opts := baseOpts("builder")
	opts.Engine.Command = script
	opts.WorkDir = t.TempDir()

	loop := New(b, r, opts)
	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	receipt, ok, err := b.ReadReceipt("builder", "task-2")
	if err != nil || !ok {
		t.Fatalf("expected receipt, ok=%v err=%v", ok, err)
	}
	if receipt.Outcome != "needs_review" {
		t.Fatalf("expected needs_review outcome, got %q", receipt.Outcome)
	}
}

func TestRunOnceWatchdogTimeoutClosesBlocked(t *testing.T) {
	root := t.TempDir()
	b := bus.New(root)
	r := testRoster()
	if err := b.EnsureBusRoot(r); err != nil {
		t.Fatal(err)
	}
	seedTask(t, b, "builder", "task-3", map[string]any{"kind": "EXECUTE"})

	script := writeFakeEngine(t, `sleep 5`)

	opts := baseOpts("builder")
	opts.Engine.Command = script
	opts.Engine.StallTimeout = 50 * time.Millisecond
	opts.WorkDir = t.TempDir()

	loop := New(b, r, opts)
	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	receipt, ok, err := b.ReadReceipt("builder", "task-3")
	if err != nil || !ok {
		t.Fatalf("expected receipt, ok=%v err=%v", ok, err)
	}
	if receipt.Outcome != "blocked" {
		t.Fatalf("expected blocked outcome, got %q", receipt.Outcome)
	}
}

func TestEnumerateTaskIDsPrefersInProgress(t *testing.T) {
	root := t.TempDir()
	b := bus.New(root)
	r := testRoster()
	if err := b.EnsureBusRoot(r); err != nil {
		t.Fatal(err)
	}
	seedTask(t, b, "builder", "new-task", map[string]any{"kind": "EXECUTE"})
	seedTask(t, b, "builder", "stuck-task", map[string]any{"kind": "EXECUTE"})
	if _, err := b.ClaimTask("builder", "stuck-task"); err != nil {
		t.Fatal(err)
	}

	loop := New(b, r, baseOpts("builder"))
	ids, err := loop.enumerateTaskIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "stuck-task" || ids[1] != "new-task" {
		t.Fatalf("expected [stuck-task new-task], got %v", ids)
	}
}
