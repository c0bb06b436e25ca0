package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/engine"
	"github.com/agentbusio/agentbus/internal/worklock"
	"github.com/agentbusio/agentbus/internal/workerloop"
)

var (
	workAgent               string
	workDir                 string
	workOnce                bool
	workMaxCycles           int
	workPollInterval        time.Duration
	workGitPreflightStrict  bool
	workGitPreflightTimeout time.Duration
	workSemaphoreSlots      int
	workMaxAttemptsPerTask  int
	workIsolateWorktrees    bool
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the worker supervisory loop for one agent",
	Long: `Repeatedly enumerate an agent's inbox (in_progress, new, seen) and drive
each task through claim, engine invocation, review/quality gates, follow-up
dispatch, and closure.

Each cycle sleeps --poll-interval between passes unless --once is given.`,
	RunE: runWork,
}

func init() {
	workCmd.Flags().StringVar(&workAgent, "agent", "", "agent to run the loop for (required)")
	workCmd.Flags().StringVar(&workDir, "work-dir", ".", "git checkout the engine runs in")
	workCmd.Flags().BoolVar(&workOnce, "once", false, "run a single enumeration pass and exit")
	workCmd.Flags().IntVar(&workMaxCycles, "max-cycles", 0, "maximum enumeration passes before exiting (0: unlimited)")
	workCmd.Flags().DurationVar(&workPollInterval, "poll-interval", 5*time.Second, "delay between enumeration passes")
	workCmd.Flags().BoolVar(&workGitPreflightStrict, "git-preflight-strict", false, "require baseSha/workBranch on EXECUTE tasks")
	workCmd.Flags().DurationVar(&workGitPreflightTimeout, "git-preflight-timeout", 30*time.Second, "git preflight command timeout")
	workCmd.Flags().IntVar(&workSemaphoreSlots, "semaphore-slots", 0, "override the configured semaphore slot count")
	workCmd.Flags().IntVar(&workMaxAttemptsPerTask, "max-attempts", 0, "override the configured max attempts per task")
	workCmd.Flags().BoolVar(&workIsolateWorktrees, "isolate-worktrees", false, "run each task's attempts in a dedicated git worktree, merged back on success")
	rootCmd.AddCommand(workCmd)
}

func runWork(cmd *cobra.Command, args []string) error {
	if workAgent == "" {
		return fmt.Errorf("--agent is required")
	}

	app, err := loadAppContext()
	if err != nil {
		return err
	}
	logger := newLogger(app.Config)
	defer logger.Sync() //nolint:errcheck

	lock, err := worklock.Acquire(app.Bus.StateDir(), workAgent, 5)
	if err != nil {
		if errors.Is(err, worklock.ErrHeldByLiveProcess) {
			logger.Infow("worker lock already held by a live process, exiting cleanly", "agent", workAgent)
			fmt.Printf("worker lock for %s already held by a live process, exiting cleanly\n", workAgent)
			return nil
		}
		return fmt.Errorf("acquire worker lock: %w", err)
	}
	logger.Infow("worker lock acquired", "agent", workAgent)
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warnw("release worker lock", "agent", workAgent, "err", err)
		}
	}()

	semaphoreSlots := app.Config.Concurrency.SemaphoreSlots
	if workSemaphoreSlots > 0 {
		semaphoreSlots = workSemaphoreSlots
	}
	maxAttempts := app.Config.Gate.MaxRemediationAttempts + 1
	if workMaxAttemptsPerTask > 0 {
		maxAttempts = workMaxAttemptsPerTask
	}

	loop := workerloop.New(app.Bus, app.Roster, workerloop.Options{
		Agent:                 workAgent,
		WorkDir:               workDir,
		GitPreflightStrict:    workGitPreflightStrict,
		GitPreflightTimeout:   workGitPreflightTimeout,
		IsolateWorktrees:      workIsolateWorktrees,
		Engine:                engine.ResolveTimeouts(app.Config.Engine),
		Logger:                logger,
		SemaphoreSlots:        semaphoreSlots,
		CooldownJitter:        time.Duration(app.Config.Concurrency.CooldownJitterMs) * time.Millisecond,
		MaxAttemptsPerTask:    maxAttempts,
		ScanPolicy:            scanPolicy(app.Config),
		QualityRuntimeScripts: app.Config.Quality.RuntimeScriptsDir,
		QualityTestsDir:       app.Config.Quality.TestsDir,
	})

	ctx := context.Background()
	for cycle := 0; workMaxCycles == 0 || cycle < workMaxCycles; cycle++ {
		results, err := loop.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("run cycle %d: %w", cycle, err)
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("task %s: outcome=%s err=%v\n", r.TaskID, r.Outcome, r.Err)
			} else {
				fmt.Printf("task %s: outcome=%s\n", r.TaskID, r.Outcome)
			}
		}
		if workOnce {
			break
		}
		time.Sleep(workPollInterval)
	}
	return nil
}
