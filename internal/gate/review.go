// Package gate implements the review gate (C8) and code-quality gate (C9)
// a worker runs before it may close a task.
package gate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/agentbusio/agentbus/internal/packet"
)

var validate = validator.New()

// requiredReviewSections lists the evidence.sectionsPresent entries every
// passing review must include.
var requiredReviewSections = []string{"findings", "severity", "file_refs", "actions"}

// bannedReinvocationPhrases flags a review whose assistant text shows signs
// of a nested CLI re-invocation, which the worker must treat as a failure
// requiring retry.
var bannedReinvocationPhrases = []string{
	"codex review", "codex exec", "codex app-server", "codex resume",
}

// Review is the structured review object the engine must emit. Struct
// tags drive the validator pass for field presence/shape; the cross-field
// rules §4.8 also requires (targetCommitSha matching the packet's
// reviewTarget, sectionsPresent containing every required entry,
// changes_requested needing a follow-up, nested-CLI-reinvocation scanning)
// depend on values outside this struct and are checked by hand in Validate.
type Review struct {
	Ran             bool     `json:"ran" validate:"required"`
	Method          string   `json:"method" validate:"required,eq=built_in_review"`
	TargetCommitSha string   `json:"targetCommitSha" validate:"required"`
	Summary         string   `json:"summary" validate:"required"`
	FindingsCount   int      `json:"findingsCount" validate:"gte=0"`
	Verdict         string   `json:"verdict" validate:"required,oneof=pass changes_requested"`
	Evidence        Evidence `json:"evidence" validate:"required"`
	Followups       []string `json:"followups,omitempty"`
}

// Evidence is the review's evidence sub-object.
type Evidence struct {
	ArtifactPath    string   `json:"artifactPath" validate:"required"`
	SectionsPresent []string `json:"sectionsPresent" validate:"required,min=1"`
}

// Required reports whether hdr's task requires the review gate: addressed
// to the autopilot agent, kind ORCHESTRATOR_UPDATE, and either an explicit
// reviewRequired signal or the legacy TASK_COMPLETE/EXECUTE fallback.
func Required(hdr packet.Header, autopilotName string) bool {
	addressedToAutopilot := false
	for _, to := range hdr.To {
		if to == autopilotName {
			addressedToAutopilot = true
			break
		}
	}
	if !addressedToAutopilot || hdr.SignalKind() != "ORCHESTRATOR_UPDATE" {
		return false
	}
	if required, ok := hdr.SignalBool("reviewRequired"); ok && required {
		return true
	}
	sourceKind := hdr.SignalString("sourceKind")
	completedTaskKind := hdr.ReferenceString("completedTaskKind")
	return sourceKind == "TASK_COMPLETE" && completedTaskKind == "EXECUTE"
}

// Validate enforces every structural requirement on a review object emitted
// by the engine. assistantText is the raw engine output scanned for signs
// of nested CLI re-invocation. Field presence/shape is checked by the
// validator struct tags on Review/Evidence; the cross-field rules that
// depend on values outside the struct (commit sha match against the
// packet, sectionsPresent's required entries, changes_requested needing a
// follow-up, the reinvocation-phrase scan of the raw assistant text) are
// checked here by hand since no struct tag can express them.
func Validate(review Review, expectedCommitSha, assistantText string) error {
	if strings.Contains(strings.ToLower(assistantText), "codex") {
		for _, phrase := range bannedReinvocationPhrases {
			if strings.Contains(strings.ToLower(assistantText), phrase) {
				return fmt.Errorf("%w: detected %q", ErrNestedReinvocation, phrase)
			}
		}
	}
	if err := validate.Struct(review); err != nil {
		return fmt.Errorf("%w: %v", ErrReviewIncomplete, err)
	}
	if review.TargetCommitSha != expectedCommitSha {
		return fmt.Errorf("%w: targetCommitSha %q does not match expected %q", ErrCommitShaMismatch, review.TargetCommitSha, expectedCommitSha)
	}
	if review.Verdict == "changes_requested" && len(review.Followups) == 0 {
		return fmt.Errorf("%w: changes_requested verdict with no corrective follow-up", ErrReviewIncomplete)
	}
	present := make(map[string]bool, len(review.Evidence.SectionsPresent))
	for _, s := range review.Evidence.SectionsPresent {
		present[s] = true
	}
	for _, required := range requiredReviewSections {
		if !present[required] {
			return fmt.Errorf("%w: evidence.sectionsPresent missing %q", ErrReviewIncomplete, required)
		}
	}
	return nil
}

// ArtifactPath computes the canonical review artifact path, rejecting any
// id that would escape the bus root.
func ArtifactPath(busRoot, agent, id string) (string, error) {
	rel := filepath.Join("artifacts", agent, "reviews", id+".review.md")
	full := filepath.Join(busRoot, rel)
	cleanRoot := filepath.Clean(busRoot)
	if !strings.HasPrefix(filepath.Clean(full), cleanRoot+string(filepath.Separator)) {
		return "", ErrArtifactEscapesRoot
	}
	return full, nil
}

// RenderMarkdown produces the canonical review artifact body.
func RenderMarkdown(review Review, id string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Review: %s\n\n", id)
	fmt.Fprintf(&b, "- verdict: %s\n", review.Verdict)
	fmt.Fprintf(&b, "- targetCommitSha: %s\n", review.TargetCommitSha)
	fmt.Fprintf(&b, "- findingsCount: %d\n\n", review.FindingsCount)
	b.WriteString("## Summary\n\n")
	b.WriteString(review.Summary)
	b.WriteString("\n")
	if len(review.Followups) > 0 {
		b.WriteString("\n## Follow-ups\n\n")
		for _, f := range review.Followups {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
