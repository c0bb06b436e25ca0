// Package closure implements the closure protocol (C10): moving a claimed
// packet to processed, writing its idempotent receipt, and optionally
// notifying the orchestrator with a TASK_COMPLETE packet.
package closure

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/packet"
	"github.com/agentbusio/agentbus/internal/roster"
)

// Request describes one close() call.
type Request struct {
	Agent              string
	TaskID             string
	Outcome            string
	Note               string
	CommitSHA          string
	ReceiptExtra       map[string]any
	NotifyOrchestrator bool
}

// Result reports what close() actually did.
type Result struct {
	ReceiptPath  string
	ProcessedAt  string
	Notified     bool
	NotifyTaskID string
}

// Close runs the closure protocol: open the packet without marking it seen,
// move it to processed if it isn't there already, write the receipt with
// O_EXCL semantics (a repeat close is a no-op on both the receipt and the
// orchestrator notice), and deliver a TASK_COMPLETE notice when requested.
func Close(b *bus.Bus, r *roster.Roster, req Request) (Result, error) {
	var result Result

	hdr, _, path, err := b.OpenTask(req.Agent, req.TaskID, false)
	if err != nil {
		return result, fmt.Errorf("close: open task: %w", err)
	}

	_, state, err := b.FindTaskPath(req.Agent, req.TaskID)
	if err != nil {
		return result, fmt.Errorf("close: locate task: %w", err)
	}
	if state != bus.StateProcessed {
		if _, err := b.MoveTask(path, b.InboxDir(req.Agent, bus.StateProcessed)); err != nil {
			return result, fmt.Errorf("close: move to processed: %w", err)
		}
	}

	processedPath, _, err := b.FindTaskPath(req.Agent, req.TaskID)
	if err != nil {
		return result, fmt.Errorf("close: locate processed task: %w", err)
	}
	result.ReceiptPath = b.ReceiptsDir(req.Agent) + "/" + req.TaskID + ".json"

	receipt := bus.Receipt{
		TaskID:       req.TaskID,
		Agent:        req.Agent,
		Outcome:      req.Outcome,
		Note:         req.Note,
		CommitSHA:    req.CommitSHA,
		Header:       hdr,
		ReceiptExtra: req.ReceiptExtra,
	}

	writeErr := b.WriteReceipt(receipt)
	switch {
	case writeErr == nil:
		// newly written; fall through to the notify step below
	case writeErr == bus.ErrReceiptExists:
		// idempotent repeat close: receipt already exists, no re-notify
		return result, nil
	default:
		return result, fmt.Errorf("close: write receipt: %w", writeErr)
	}

	result.ProcessedAt = time.Now().UTC().Format(time.RFC3339)

	if !req.NotifyOrchestrator || r.OrchestratorName == req.Agent {
		return result, nil
	}

	notifyID := uuid.NewString()
	notifyHdr := packet.Header{
		ID:       notifyID,
		To:       []string{r.OrchestratorName},
		From:     req.Agent,
		Priority: hdr.Priority,
		Title:    "TASK_COMPLETE: " + hdr.Title,
		Signals: map[string]any{
			"kind":     "TASK_COMPLETE",
			"rootId":   hdr.RootID(),
			"parentId": hdr.ParentID(),
			"phase":    hdr.SignalString("phase"),
		},
		References: map[string]any{
			"completedTaskId":   req.TaskID,
			"completedTaskKind": hdr.SignalKind(),
			"receiptPath":       result.ReceiptPath,
			"processedPath":     processedPath,
		},
	}
	if req.CommitSHA != "" {
		notifyHdr.References["commitSha"] = req.CommitSHA
	}

	body := fmt.Sprintf("Task %s completed by %s with outcome %q.\n\n%s\n", req.TaskID, req.Agent, req.Outcome, req.Note)

	if _, err := b.Deliver(notifyHdr, body, r.KnownAgents(), packet.PolicyWarn); err != nil {
		return result, fmt.Errorf("close: notify orchestrator: %w", err)
	}
	result.Notified = true
	result.NotifyTaskID = notifyID
	return result, nil
}
