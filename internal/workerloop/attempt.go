package workerloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/closure"
	"github.com/agentbusio/agentbus/internal/cooldown"
	"github.com/agentbusio/agentbus/internal/engine"
	"github.com/agentbusio/agentbus/internal/followup"
	"github.com/agentbusio/agentbus/internal/gate"
	"github.com/sony/gobreaker"

	"github.com/agentbusio/agentbus/internal/gitpreflight"
	"github.com/agentbusio/agentbus/internal/packet"
	"github.com/agentbusio/agentbus/internal/taskspace"
)

// processTask drives one task from claim through closure: step 2 (claim or
// re-open) followed by the bounded inner attempt loop (step 3) and the
// post-loop dispatch/close sequence (step 4).
func (l *Loop) processTask(ctx context.Context, id string) TaskResult {
	agent := l.Opts.Agent

	_, state, err := l.Bus.FindTaskPath(agent, id)
	if err != nil {
		return TaskResult{TaskID: id, Outcome: "", Err: err}
	}
	if state != bus.StateInProgress {
		if _, err := l.Bus.ClaimTask(agent, id); err != nil {
			return TaskResult{TaskID: id, Outcome: "", Err: err}
		}
	}

	workLoop := l
	var worktreePath string
	if l.Opts.IsolateWorktrees {
		path, err := taskspace.Create(l.Opts.WorkDir, id, l.Opts.GitPreflightTimeout, nil)
		if err != nil {
			note := fmt.Sprintf("create task worktree: %v", err)
			if _, closeErr := closure.Close(l.Bus, l.Roster, closure.Request{
				Agent: agent, TaskID: id, Outcome: "failed", Note: note,
			}); closeErr != nil {
				return TaskResult{TaskID: id, Outcome: "failed", Err: closeErr}
			}
			return TaskResult{TaskID: id, Outcome: "failed", Err: errors.New(note)}
		}
		worktreePath = path
		loopCopy := *l
		loopCopy.Opts.WorkDir = worktreePath
		workLoop = &loopCopy
	}

	artifact, hdr, receiptExtras, alreadyClosed, lastErr := workLoop.runAttemptLoop(ctx, id)

	if l.Opts.IsolateWorktrees {
		defer func() {
			if artifact != nil {
				if mergeErr := taskspace.Merge(l.Opts.WorkDir, worktreePath, id, l.Opts.GitPreflightTimeout, nil); mergeErr == nil {
					_ = taskspace.Remove(l.Opts.WorkDir, worktreePath, id, l.Opts.GitPreflightTimeout)
					return
				}
				// Merge failed (conflict or dirty repo): leave the worktree
				// in place for manual recovery rather than discard the work.
				return
			}
			_ = taskspace.Remove(l.Opts.WorkDir, worktreePath, id, l.Opts.GitPreflightTimeout)
		}()
	}

	if artifact == nil {
		if alreadyClosed {
			return TaskResult{TaskID: id, Outcome: "", Err: lastErr}
		}
		note := "attempt loop exhausted"
		if lastErr != nil {
			note = lastErr.Error()
		}
		if _, err := closure.Close(l.Bus, l.Roster, closure.Request{
			Agent: agent, TaskID: id, Outcome: "failed", Note: note,
		}); err != nil {
			return TaskResult{TaskID: id, Outcome: "failed", Err: err}
		}
		return TaskResult{TaskID: id, Outcome: "failed", Err: lastErr}
	}

	fuResult := followup.DispatchFollowUps(l.Bus, hdr, agent, l.Roster.KnownAgents(), artifact.FollowUps)
	receiptExtra := map[string]any{
		"followUpIds": fuResult.DispatchedIDs,
	}
	for k, v := range receiptExtras {
		receiptExtra[k] = v
	}
	if len(fuResult.Errors) > 0 {
		msgs := make([]string, len(fuResult.Errors))
		for i, e := range fuResult.Errors {
			msgs[i] = e.Error()
		}
		receiptExtra["followUpErrors"] = msgs
	}

	notify := true
	if v, ok := hdr.SignalBool("notifyOrchestrator"); ok {
		notify = v
	}

	closeResult, err := closure.Close(l.Bus, l.Roster, closure.Request{
		Agent: agent, TaskID: id, Outcome: artifact.Outcome, Note: artifact.Note,
		CommitSHA: artifact.CommitSHA, ReceiptExtra: receiptExtra, NotifyOrchestrator: notify,
	})
	if err != nil {
		return TaskResult{TaskID: id, Outcome: artifact.Outcome, Err: err}
	}
	_ = closeResult
	return TaskResult{TaskID: id, Outcome: artifact.Outcome}
}

// runAttemptLoop runs step 3: the bounded inner attempt loop. It returns
// the decoded artifact on success, plus receiptExtras accumulated along the
// way (the git preflight snapshot and, when a review ran, its artifact
// path) so the caller can fold them into the final receipt. On failure it
// reports alreadyClosed=true when the task was already closed terminally
// from inside the loop (vanished, watchdog timeout, sandbox permission,
// failed review/quality, git preflight block) so the caller does not
// attempt a second close.
func (l *Loop) runAttemptLoop(ctx context.Context, id string) (artifact *engineArtifact, hdr packet.Header, receiptExtras map[string]any, alreadyClosed bool, err error) {
	agent := l.Opts.Agent
	var lastErr error
	retryReason := ""
	reviewRetried := false
	receiptExtras = map[string]any{}

	for attempt := 0; attempt < l.Opts.MaxAttemptsPerTask; attempt++ {
		// a. vanished check
		if _, _, err := l.Bus.FindTaskPath(agent, id); errors.Is(err, bus.ErrTaskNotFound) {
			_, _ = closure.Close(l.Bus, l.Roster, closure.Request{Agent: agent, TaskID: id, Outcome: "skipped", Note: "task vanished from inbox"})
			return nil, hdr, receiptExtras, true, fmt.Errorf("task %s vanished", id)
		}

		// b. cooldown wait
		if err := cooldown.Wait(l.Bus.StateDir(), l.Opts.CooldownJitter, l.Opts.Sleep); err != nil {
			lastErr = err
			continue
		}

		// c. semaphore slot
		slot, err := l.Semaphore.Acquire(l.Opts.SemaphoreRetryPause, l.Opts.SemaphoreMaxPasses)
		if err != nil {
			lastErr = err
			continue
		}

		// d. re-read packet
		var body, path string
		hdr, body, path, err = l.Bus.OpenTask(agent, id, false)
		if err != nil {
			l.Semaphore.Release(slot)
			lastErr = err
			continue
		}

		// e. git preflight
		ref := parseGitRef(hdr.References)
		strict := l.Opts.GitPreflightStrict && hdr.SignalKind() == "EXECUTE"
		preflight, preflightErr := gitpreflight.Run(ctx, l.Opts.WorkDir, ref, strict, l.Opts.GitPreflightTimeout)
		if preflightErr != nil {
			l.Semaphore.Release(slot)
			// GitPreflightBlocked closes immediately with the structured
			// snapshot rather than retrying through the engine-spawning
			// loop: a dirty tree or bad ancestor won't clear on retry.
			_, _ = closure.Close(l.Bus, l.Roster, closure.Request{
				Agent: agent, TaskID: id, Outcome: "blocked",
				Note:         "git preflight: " + preflightErr.Error(),
				ReceiptExtra: map[string]any{"gitPreflight": preflight},
			})
			return nil, hdr, receiptExtras, true, fmt.Errorf("git preflight: %w", preflightErr)
		}
		receiptExtras["gitPreflight"] = preflight

		// f. mtime baseline
		info, err := os.Stat(path)
		if err != nil {
			l.Semaphore.Release(slot)
			lastErr = err
			continue
		}
		baseline := info.ModTime()

		// g. spawn engine, through the per-agent circuit breaker
		artifactPath := filepath.Join(l.Bus.ArtifactsDir(agent), id+".artifact.json")
		prompt := buildPrompt(hdr, body, retryReason)
		engRes, breakerErr := l.runEngineThroughBreaker(ctx, engine.Request{
			Command: l.Opts.Engine.Command, Prompt: prompt, WorkDir: l.Opts.WorkDir,
			ArtifactPath: artifactPath, PacketPath: path, PacketBaseline: baseline,
			PollInterval: l.Opts.EnginePollInterval, WatchdogTimeout: l.Opts.Engine.StallTimeout,
			GracePeriod: l.Opts.Engine.GracePeriod,
			CredentialStoreBase: filepath.Join(l.Bus.StateDir(), "tmp"),
		})
		l.Semaphore.Release(slot)

		if errors.Is(breakerErr, gobreaker.ErrOpenState) {
			backoff := cooldown.Backoff(attempt, l.Opts.BackoffBase, l.Opts.BackoffCap, 0)
			_ = cooldown.Write(l.Bus.StateDir(), cooldown.Barrier{
				RetryAtMs: time.Now().Add(backoff).UnixMilli(), Reason: "circuit_open", SourceAgent: agent, TaskID: id,
			})
			l.Opts.Logger.Warnw("engine circuit open, skipping spawn", "agent", agent, "taskId", id, "backoff", backoff)
			lastErr = fmt.Errorf("engine circuit open for %s, backing off %s", agent, backoff)
			continue
		}

		// h. race outcomes
		if engRes.Outcome == engine.OutcomeSuperseded {
			retryReason = ""
			continue
		}
		if engRes.Outcome == engine.OutcomeTimedOut {
			handled, retryErr, closeErr := l.handleNonCompletion(agent, id, attempt, engRes)
			if handled {
				if closeErr != nil {
					return nil, hdr, receiptExtras, true, closeErr
				}
				return nil, hdr, receiptExtras, true, retryErr
			}
			lastErr = retryErr
			continue
		}

		artifact, err := decodeArtifact(engRes.Artifact)
		if err != nil {
			lastErr = err
			retryReason = err.Error()
			continue
		}

		// i. review gate
		if gate.Required(hdr, l.Roster.AutopilotName) {
			ok, retry, reviewArtifactPath := l.enforceReviewGate(agent, id, hdr, artifact, engRes, &reviewRetried)
			if !ok {
				if retry {
					retryReason = "review gate: " + artifact.Outcome
					continue
				}
				return nil, hdr, receiptExtras, true, ErrAttemptsExhausted
			}
			if reviewArtifactPath != "" {
				receiptExtras["reviewArtifactPath"] = reviewArtifactPath
				receiptExtras["review"] = artifact.Review
			}
		}

		qualityReport := gate.Run(gate.ChangeSet{Files: artifact.ChangedFiles}, gate.QualityConfig{
			RuntimeScriptsDir: l.Opts.QualityRuntimeScripts, TestsDir: l.Opts.QualityTestsDir,
		})
		if !qualityReport.OK {
			l.Opts.Logger.Infow("quality gate failed", "agent", agent, "taskId", id)
			extra := map[string]any{"qualityGate": qualityReport}
			for k, v := range receiptExtras {
				extra[k] = v
			}
			_, _ = closure.Close(l.Bus, l.Roster, closure.Request{
				Agent: agent, TaskID: id, Outcome: "needs_review",
				Note: "quality gate failed", CommitSHA: artifact.CommitSHA,
				ReceiptExtra: extra,
			})
			return nil, hdr, receiptExtras, true, fmt.Errorf("%w", gate.ErrQualityGateFailed)
		}

		return artifact, hdr, receiptExtras, false, nil
	}

	return nil, hdr, receiptExtras, false, fmt.Errorf("%w: %v", ErrAttemptsExhausted, lastErr)
}

// runEngineThroughBreaker runs the engine through the loop's per-agent
// circuit breaker. A timed-out outcome classified as rate-limited or
// stream-disconnected counts as a breaker failure; completed and superseded
// outcomes count as success. When the breaker is open, the returned error
// is gobreaker.ErrOpenState and the engine is never spawned.
func (l *Loop) runEngineThroughBreaker(ctx context.Context, req engine.Request) (engine.Result, error) {
	out, err := l.Breaker.Execute(func() (interface{}, error) {
		r := engine.Run(ctx, req)
		if r.Outcome == engine.OutcomeTimedOut {
			if class := cooldown.Classify(r.Stdout + "\n" + r.Stderr); class == cooldown.ClassRateLimited || class == cooldown.ClassStreamDisconnect {
				return r, fmt.Errorf("engine %s", class)
			}
		}
		return r, nil
	})
	if res, ok := out.(engine.Result); ok {
		return res, err
	}
	return engine.Result{}, err
}

// handleNonCompletion applies step j/k: classify the failure and either
// back off and signal a retry (a rate limit installs the global cooldown
// barrier; a stream disconnect sleeps the backoff locally without one), or
// close the task terminally for a sandbox-permission or genuine watchdog
// timeout.
// Returns handled=true when the task was closed and the caller should stop.
func (l *Loop) handleNonCompletion(agent, id string, attempt int, engRes engine.Result) (handled bool, retryErr error, closeErr error) {
	output := engRes.Stdout + "\n" + engRes.Stderr
	class := cooldown.Classify(output)
	l.Opts.Logger.Infow("engine non-completion", "agent", agent, "taskId", id, "attempt", attempt, "class", class)

	switch class {
	case cooldown.ClassSandboxPermission:
		_, _ = closure.Close(l.Bus, l.Roster, closure.Request{
			Agent: agent, TaskID: id, Outcome: "blocked",
			Note: "sandbox permission denied: " + output,
		})
		return true, fmt.Errorf("sandbox permission denied"), nil

	case cooldown.ClassRateLimited, cooldown.ClassStreamDisconnect:
		lowerBound, _ := cooldown.ParseRetryAfter(output)
		backoff := cooldown.Backoff(attempt, l.Opts.BackoffBase, l.Opts.BackoffCap, lowerBound)
		if class == cooldown.ClassRateLimited {
			_ = cooldown.Write(l.Bus.StateDir(), cooldown.Barrier{
				RetryAtMs:   time.Now().Add(backoff).UnixMilli(),
				Reason:      string(class),
				SourceAgent: agent,
				TaskID:      id,
			})
		} else {
			l.Opts.Sleep(backoff)
		}
		return false, fmt.Errorf("%s, backing off %s", class, backoff), nil

	default:
		_, _ = closure.Close(l.Bus, l.Roster, closure.Request{
			Agent: agent, TaskID: id, Outcome: "blocked",
			Note: "engine watchdog timeout",
		})
		return true, fmt.Errorf("engine watchdog timeout"), nil
	}
}

// enforceReviewGate validates the review object, permitting exactly one
// corrective retry per §4.8. ok=false,retry=true means the caller should
// retry the attempt with an embedded failure reason; ok=false,retry=false
// means the task has already been closed as failed. On success,
// artifactPath is the review markdown path materialized under the bus
// root — §4.10/§8 require this land in the closing receipt.
func (l *Loop) enforceReviewGate(agent, id string, hdr packet.Header, artifact *engineArtifact, engRes engine.Result, reviewRetried *bool) (ok bool, retry bool, artifactPath string) {
	expectedSha := ""
	if reviewTarget, isMap := hdr.Signals["reviewTarget"].(map[string]any); isMap {
		if sha, ok := reviewTarget["commitSha"].(string); ok {
			expectedSha = sha
		}
	}

	var validateErr error
	if artifact.Review == nil {
		validateErr = fmt.Errorf("%w: no review object emitted", gate.ErrReviewIncomplete)
	} else {
		validateErr = gate.Validate(*artifact.Review, expectedSha, engRes.Stdout)
	}

	if validateErr == nil {
		if artifact.Review != nil {
			if path, err := gate.ArtifactPath(l.Bus.Root, agent, id); err == nil {
				_ = os.MkdirAll(filepath.Dir(path), 0o755)
				if writeErr := os.WriteFile(path, []byte(gate.RenderMarkdown(*artifact.Review, id)), 0o644); writeErr == nil {
					artifactPath = path
				}
			}
		}
		return true, false, artifactPath
	}

	if !*reviewRetried {
		*reviewRetried = true
		return false, true, ""
	}

	_, _ = closure.Close(l.Bus, l.Roster, closure.Request{
		Agent: agent, TaskID: id, Outcome: "failed",
		Note: "review gate: " + validateErr.Error(),
	})
	return false, false, ""
}

// parseGitRef decodes references["git"] into a gitpreflight.Ref, tolerating
// its absence (gitpreflight.Run itself treats missing fields as a no-op in
// non-strict mode).
func parseGitRef(references map[string]any) gitpreflight.Ref {
	var ref gitpreflight.Ref
	raw, ok := references["git"]
	if !ok {
		return ref
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return ref
	}
	_ = json.Unmarshal(encoded, &ref)
	return ref
}
