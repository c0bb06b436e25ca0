package cooldown

import (
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FailureClass categorizes an external-engine failure for retry purposes.
type FailureClass string

const (
	ClassRateLimited       FailureClass = "rate_limited"
	ClassStreamDisconnect  FailureClass = "stream_disconnected"
	ClassSandboxPermission FailureClass = "sandbox_permission"
	ClassOther             FailureClass = "other"
)

var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate limit`),
	regexp.MustCompile(`\b429\b`),
	regexp.MustCompile(`(?i)too many requests`),
}

var streamDisconnectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)stream (was )?disconnected`),
	regexp.MustCompile(`(?i)connection reset`),
	regexp.MustCompile(`(?i)unexpected (eof|end of stream)`),
}

var sandboxPermissionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)permission denied`),
	regexp.MustCompile(`(?i)operation not permitted`),
	regexp.MustCompile(`(?i)sandbox (denied|blocked)`),
}

// retryAfterPattern picks up an explicit "Retry-After" header value or a
// "try again in Ns/ms" hint embedded in engine output.
var retryAfterPattern = regexp.MustCompile(`(?i)(?:retry-after:\s*|try again in\s*)(\d+(?:\.\d+)?)\s*(ms|s|seconds|milliseconds)?`)

// Classify inspects combined stderr/stdout text and returns the failure
// class driving the worker loop's retry decision.
func Classify(output string) FailureClass {
	for _, p := range sandboxPermissionPatterns {
		if p.MatchString(output) {
			return ClassSandboxPermission
		}
	}
	for _, p := range rateLimitPatterns {
		if p.MatchString(output) {
			return ClassRateLimited
		}
	}
	for _, p := range streamDisconnectPatterns {
		if p.MatchString(output) {
			return ClassStreamDisconnect
		}
	}
	return ClassOther
}

// ParseRetryAfter extracts an explicit retry hint from output, if present,
// as a duration lower bound for the next cooldown.
func ParseRetryAfter(output string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	switch unit {
	case "ms", "milliseconds":
		return time.Duration(value) * time.Millisecond, true
	default:
		return time.Duration(value * float64(time.Second)), true
	}
}

// Backoff computes an exponential, capped, jittered delay for the given
// attempt number (0-indexed), honoring an optional lower bound parsed from
// a Retry-After hint.
func Backoff(attempt int, base, cap time.Duration, lowerBound time.Duration) time.Duration {
	d := base * time.Duration(math.Pow(2, float64(attempt)))
	if d > cap {
		d = cap
	}
	if d < lowerBound {
		d = lowerBound
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
