package workerloop

import (
	"fmt"
	"strings"

	"github.com/agentbusio/agentbus/internal/packet"
)

// buildPrompt renders the prompt envelope for one engine attempt: the task
// header and body, plus (on a corrective retry) the prior failure reason
// re-embedded so the engine can address it directly.
func buildPrompt(hdr packet.Header, body, retryReason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s (from %s, priority %s): %s\n\n", hdr.ID, hdr.From, hdr.Priority, hdr.Title)
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString("Emit a single JSON object artifact with fields: outcome, note, commitSha, ")
	b.WriteString("changedFiles, followUps, and — when a review is required — a review object ")
	b.WriteString("with ran, method, targetCommitSha, summary, findingsCount, verdict, evidence, followups.\n")
	if retryReason != "" {
		fmt.Fprintf(&b, "\nThe previous attempt failed: %s. Address this before re-emitting the artifact.\n", retryReason)
	}
	return b.String()
}
