package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentbusio/agentbus/internal/packet"
)

// maxCollisionRetries bounds the collision-suffix retry loop in Deliver.
const maxCollisionRetries = 8

// DeliverResult reports, per recipient, the path the packet was written to.
type DeliverResult struct {
	Paths map[string]string
	Hits  []packet.Hit
}

// Deliver validates a header, scans the body for suspicious content, and
// writes one copy of the packet into each recipient's new/ directory. A
// filename collision is resolved by appending a short hex suffix and
// retrying, bounded by maxCollisionRetries.
func (b *Bus) Deliver(hdr packet.Header, body string, knownAgents map[string]bool, scanPolicy packet.ScanPolicy) (DeliverResult, error) {
	var result DeliverResult

	if err := packet.ValidateHeader(hdr, knownAgents); err != nil {
		return result, err
	}

	if scanPolicy != packet.PolicyAllow {
		result.Hits = packet.Scan(body)
		if err := packet.Enforce(scanPolicy, result.Hits); err != nil {
			return result, err
		}
	}

	rendered, err := packet.Render(hdr, body)
	if err != nil {
		return result, err
	}

	result.Paths = make(map[string]string, len(hdr.To))
	for _, recipient := range hdr.To {
		path, err := b.deliverOne(recipient, hdr.ID, []byte(rendered))
		if err != nil {
			return result, err
		}
		result.Paths[recipient] = path
	}
	return result, nil
}

func (b *Bus) deliverOne(recipient, id string, rendered []byte) (string, error) {
	dir := b.InboxDir(recipient, StateNew)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	name := id + ".md"
	for attempt := 0; attempt <= maxCollisionRetries; attempt++ {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.Write(rendered)
			cerr := f.Close()
			if werr != nil {
				return "", fmt.Errorf("write %s: %w", path, werr)
			}
			if cerr != nil {
				return "", fmt.Errorf("close %s: %w", path, cerr)
			}
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		name = fmt.Sprintf("%s__%s.md", id, randomSuffix())
	}
	return "", ErrCollisionRetriesExhausted
}

// UpdatePatch is the set of header fields update is permitted to mutate.
// Signals and References are merged key-wise into the existing maps rather
// than replacing them wholesale.
type UpdatePatch struct {
	Title      string
	Priority   string
	Signals    map[string]any
	References map[string]any
}

// Update locates a task, rejects it if already processed, merges the patch
// into its header, appends an update block to the body, and rewrites the
// packet atomically. The rewrite's new mtime is the mid-flight update signal
// the worker loop polls for.
func (b *Bus) Update(agent, id string, patch UpdatePatch, updater, note string) error {
	path, state, err := b.FindTaskPath(agent, id)
	if err != nil {
		return err
	}
	if state == StateProcessed {
		return ErrAlreadyProcessed
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	hdr, body, err := packet.Parse(string(raw))
	if err != nil {
		return err
	}

	if patch.Title != "" {
		hdr.Title = patch.Title
	}
	if patch.Priority != "" {
		hdr.Priority = patch.Priority
	}
	hdr.Signals = mergeMaps(hdr.Signals, patch.Signals)
	hdr.References = mergeMaps(hdr.References, patch.References)

	body = appendUpdateBlock(body, updater, note)

	rendered, err := packet.Render(hdr, body)
	if err != nil {
		return err
	}
	var prevMod time.Time
	if info, statErr := os.Stat(path); statErr == nil {
		prevMod = info.ModTime()
	}
	if err := writeFileAtomic(path, []byte(rendered), 0o644); err != nil {
		return err
	}
	if info, statErr := os.Stat(path); statErr == nil && !info.ModTime().After(prevMod) {
		bumped := prevMod.Add(time.Millisecond)
		_ = os.Chtimes(path, bumped, bumped)
	}
	return nil
}

func mergeMaps(dst, patch map[string]any) map[string]any {
	if len(patch) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		dst[k] = v
	}
	return dst
}

func appendUpdateBlock(body, updater, note string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "## Update (%s, %s)\n\n", updater, time.Now().UTC().Format(time.RFC3339))
	b.WriteString(note)
	b.WriteString("\n")
	return b.String()
}
