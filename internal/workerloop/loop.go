// Package workerloop implements the worker supervisory loop (C7): the
// outer enumeration over an agent's inbox and the inner per-task attempt
// loop that wires together the cooldown barrier, the semaphore, the git
// preflight, the engine race, the review and quality gates, follow-up
// dispatch, and closure.
package workerloop

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/cooldown"
	"github.com/agentbusio/agentbus/internal/engine"
	"github.com/agentbusio/agentbus/internal/packet"
	"github.com/agentbusio/agentbus/internal/roster"
)

// Options configures one Loop.
type Options struct {
	Agent string

	// WorkDir is the git checkout the engine runs in and the git
	// preflight operates against.
	WorkDir string

	// GitPreflightStrict requires references.git.baseSha/workBranch on
	// EXECUTE-kind tasks.
	GitPreflightStrict bool
	GitPreflightTimeout time.Duration

	// IsolateWorktrees runs each task's attempts in a dedicated git worktree
	// checked out from WorkDir, merging the result back on success, so
	// concurrent workers against the same repository never share a working
	// tree. Off by default: callers that already isolate WorkDir per agent
	// (one checkout per agent) do not need it.
	IsolateWorktrees bool

	Engine engine.Timeouts

	SemaphoreSlots         int
	SemaphoreStaleAfter    time.Duration
	SemaphoreRetryPause    time.Duration
	SemaphoreMaxPasses     int
	CooldownJitter         time.Duration
	MaxAttemptsPerTask     int
	BackoffBase            time.Duration
	BackoffCap             time.Duration
	EnginePollInterval     time.Duration
	ScanPolicy             packet.ScanPolicy
	QualityRuntimeScripts  string
	QualityTestsDir        string

	// Sleep is injectable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)

	// Logger receives structured events for the loop, the engine race, and
	// the cooldown/lock decisions made around it. Defaults to a no-op
	// logger so callers that don't care about operational logs (tests) pay
	// nothing for it.
	Logger *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.MaxAttemptsPerTask <= 0 {
		o.MaxAttemptsPerTask = 5
	}
	if o.SemaphoreSlots <= 0 {
		o.SemaphoreSlots = 4
	}
	if o.SemaphoreRetryPause <= 0 {
		o.SemaphoreRetryPause = 500 * time.Millisecond
	}
	if o.SemaphoreMaxPasses <= 0 {
		o.SemaphoreMaxPasses = 10
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 2 * time.Minute
	}
	if o.GitPreflightTimeout <= 0 {
		o.GitPreflightTimeout = 30 * time.Second
	}
	if o.EnginePollInterval <= 0 {
		o.EnginePollInterval = time.Second
	}
	if o.ScanPolicy == "" {
		o.ScanPolicy = packet.PolicyBlock
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// Loop runs the worker supervisory loop for a single agent.
type Loop struct {
	Bus       *bus.Bus
	Roster    *roster.Roster
	Semaphore *cooldown.Semaphore
	Breaker   *gobreaker.CircuitBreaker
	Opts      Options
}

// New constructs a Loop. Semaphore state lives under the bus's shared
// state directory so all worker processes across all agents contend for
// the same N slots, per §4.5. The engine circuit breaker is scoped to this
// one agent: repeated rate-limit/stream-disconnect classifications trip it
// open so a worker that already knows the engine is barred doesn't spawn a
// doomed process merely because the cross-process cooldown file briefly
// raced clear.
func New(b *bus.Bus, r *roster.Roster, opts Options) *Loop {
	opts = opts.withDefaults()
	sem := cooldown.NewSemaphore(b.StateDir()+"/semaphore", opts.SemaphoreSlots, opts.SemaphoreStaleAfter)
	breaker := newEngineBreaker(opts.Agent, opts.Logger)
	return &Loop{Bus: b, Roster: r, Semaphore: sem, Breaker: breaker, Opts: opts}
}

func newEngineBreaker(agent string, logger *zap.SugaredLogger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "engine:" + agent,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("engine circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// TaskResult reports the outcome of one enumerated task.
type TaskResult struct {
	TaskID  string
	Outcome string
	Err     error
}

// RunOnce enumerates in_progress, new, and seen (deduplicated, in_progress
// first) and drives each id through the attempt loop to closure.
func (l *Loop) RunOnce(ctx context.Context) ([]TaskResult, error) {
	ids, err := l.enumerateTaskIDs()
	if err != nil {
		return nil, err
	}
	l.Opts.Logger.Infow("enumeration pass", "agent", l.Opts.Agent, "taskCount", len(ids))

	var results []TaskResult
	for _, id := range ids {
		r := l.processTask(ctx, id)
		if r.Err != nil {
			l.Opts.Logger.Warnw("task attempt ended with error", "agent", l.Opts.Agent, "taskId", id, "outcome", r.Outcome, "err", r.Err)
		} else {
			l.Opts.Logger.Infow("task closed", "agent", l.Opts.Agent, "taskId", id, "outcome", r.Outcome)
		}
		results = append(results, r)
	}
	return results, nil
}

func (l *Loop) enumerateTaskIDs() ([]string, error) {
	seen := make(map[string]bool)
	var ordered []string
	for _, s := range []bus.State{bus.StateInProgress, bus.StateNew, bus.StateSeen} {
		ids, err := l.Bus.ListInboxTaskIds(l.Opts.Agent, s)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				ordered = append(ordered, id)
			}
		}
	}
	return ordered, nil
}
