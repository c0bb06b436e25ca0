// Package followup implements the follow-up dispatcher (C11): a completing
// worker may enqueue a bounded batch of child packets, each automatically
// stamped with lineage back to the packet that spawned it.
package followup

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/packet"
)

// MaxItems is the per-dispatch cap (K in the spec's terms).
const MaxItems = 5

// Item is one child packet spec a completing worker wants dispatched.
type Item struct {
	To      []string       `json:"to"`
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Signals map[string]any `json:"signals"`

	// References, when set, is merged into the dispatched packet's
	// references after the automatic parentTaskId/parentRootId fields
	// are applied.
	References map[string]any `json:"references,omitempty"`

	// RootID/ParentID override the dispatched packet's lineage fields; when
	// empty, RootID defaults to the parent's rootId and ParentID to the
	// parent's own id.
	RootID   string `json:"rootId,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// Result is the outcome of dispatching one batch.
type Result struct {
	DispatchedIDs []string
	Errors        []error
}

// DispatchFollowUps delivers up to MaxItems child packets on behalf of
// parentHdr's agent, a fresh id per packet, and automatic parentTaskId /
// parentRootId lineage references. Excess items beyond MaxItems are
// reported as a single ErrTruncated entry in the result's error list rather
// than attempted.
func DispatchFollowUps(b *bus.Bus, parentHdr packet.Header, parentAgent string, knownAgents map[string]bool, items []Item) Result {
	var result Result

	truncated := false
	if len(items) > MaxItems {
		items = items[:MaxItems]
		truncated = true
	}

	for _, item := range items {
		id, err := dispatchOne(b, parentHdr, parentAgent, knownAgents, item)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.DispatchedIDs = append(result.DispatchedIDs, id)
	}

	if truncated {
		result.Errors = append(result.Errors, ErrTruncated)
	}
	return result
}

func dispatchOne(b *bus.Bus, parentHdr packet.Header, parentAgent string, knownAgents map[string]bool, item Item) (string, error) {
	for _, to := range item.To {
		if to == parentAgent {
			return "", fmt.Errorf("%w: %s", ErrSelfTargeting, to)
		}
	}

	rootID := item.RootID
	if rootID == "" {
		rootID = parentHdr.RootID()
	}
	parentID := item.ParentID
	if parentID == "" {
		parentID = parentHdr.ID
	}

	signals := map[string]any{}
	for k, v := range item.Signals {
		signals[k] = v
	}
	signals["rootId"] = rootID
	signals["parentId"] = parentID

	references := map[string]any{}
	for k, v := range item.References {
		references[k] = v
	}
	references["parentTaskId"] = parentHdr.ID
	references["parentRootId"] = rootID

	hdr := packet.Header{
		ID:         uuid.NewString(),
		To:         item.To,
		From:       parentAgent,
		Priority:   parentHdr.Priority,
		Title:      item.Title,
		Signals:    signals,
		References: references,
	}

	if _, err := b.Deliver(hdr, item.Body, knownAgents, packet.PolicyBlock); err != nil {
		return "", fmt.Errorf("dispatch %q: %w", item.Title, err)
	}
	return hdr.ID, nil
}
