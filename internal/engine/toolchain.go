package engine

import (
	"strings"
	"time"

	"github.com/agentbusio/agentbus/internal/config"
)

// Timeouts resolves config.EngineConfig's durations into the fields Request
// expects.
type Timeouts struct {
	Command         string
	StartupTimeout  time.Duration
	StallTimeout    time.Duration
	GracePeriod     time.Duration
}

// ResolveTimeouts applies the same normalize-then-default treatment the
// rest of the codebase gives toolchain commands: blank fields fall back to
// the bundled default rather than to a zero duration.
func ResolveTimeouts(cfg config.EngineConfig) Timeouts {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		command = "claude"
	}
	return Timeouts{
		Command:        command,
		StartupTimeout: secondsOrDefault(cfg.StartupTimeoutSeconds, 60),
		StallTimeout:   secondsOrDefault(cfg.StallTimeoutSeconds, 300),
		GracePeriod:    secondsOrDefault(cfg.GracePeriodSeconds, 10),
	}
}

func secondsOrDefault(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
