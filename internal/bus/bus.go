// Package bus implements the file-backed packet bus: the directory-tree
// state machine packets move through (C3), and delivery/update of packets
// into that tree (C4).
package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentbusio/agentbus/internal/packet"
	"github.com/agentbusio/agentbus/internal/roster"
)

// State is one stage of a packet's per-recipient lifecycle.
type State string

const (
	StateNew        State = "new"
	StateSeen       State = "seen"
	StateInProgress State = "in_progress"
	StateProcessed  State = "processed"
)

// states lists every lifecycle stage in the order Bus Storage materializes
// and searches them. The worker loop's in_progress-first enumeration order
// is defined in workerloop, not here.
var states = []State{StateNew, StateSeen, StateInProgress, StateProcessed}

// Bus is a handle on a bus root directory.
type Bus struct {
	Root string
}

// New returns a handle on the bus rooted at root.
func New(root string) *Bus {
	return &Bus{Root: root}
}

// InboxDir returns the per-state inbox directory for an agent.
func (b *Bus) InboxDir(agent string, state State) string {
	return filepath.Join(b.Root, "inbox", agent, string(state))
}

// ReceiptsDir returns the receipts directory for an agent.
func (b *Bus) ReceiptsDir(agent string) string {
	return filepath.Join(b.Root, "receipts", agent)
}

// ArtifactsDir returns the artifacts directory for an agent.
func (b *Bus) ArtifactsDir(agent string) string {
	return filepath.Join(b.Root, "artifacts", agent)
}

// StateDir returns the root-level state/ directory, where cooldown,
// semaphore, lock, and session-tracking files live.
func (b *Bus) StateDir() string {
	return filepath.Join(b.Root, "state")
}

// DeadletterDir returns the deadletter directory for an agent, where
// unparseable packets are quarantined.
func (b *Bus) DeadletterDir(agent string) string {
	return filepath.Join(b.Root, "deadletter", agent)
}

// EnsureBusRoot materializes every state directory for every roster agent
// plus the distinguished role names. Idempotent.
func (b *Bus) EnsureBusRoot(r *roster.Roster) error {
	for _, agent := range r.AgentNames() {
		for _, s := range states {
			if err := os.MkdirAll(b.InboxDir(agent, s), 0o755); err != nil {
				return fmt.Errorf("ensure inbox dir for %s/%s: %w", agent, s, err)
			}
		}
		if err := os.MkdirAll(b.ReceiptsDir(agent), 0o755); err != nil {
			return fmt.Errorf("ensure receipts dir for %s: %w", agent, err)
		}
		if err := os.MkdirAll(b.ArtifactsDir(agent), 0o755); err != nil {
			return fmt.Errorf("ensure artifacts dir for %s: %w", agent, err)
		}
		if err := os.MkdirAll(b.DeadletterDir(agent), 0o755); err != nil {
			return fmt.Errorf("ensure deadletter dir for %s: %w", agent, err)
		}
	}
	if err := os.MkdirAll(b.StateDir(), 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	return nil
}

// FindTaskPath locates the current state directory of a task, accepting
// both the plain "<id>.md" form and the collision-suffixed
// "<id>__<suffix>.md" form.
func (b *Bus) FindTaskPath(agent, id string) (string, State, error) {
	for _, s := range states {
		dir := b.InboxDir(agent, s)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if name == id+".md" || strings.HasPrefix(name, id+"__") {
				return filepath.Join(dir, name), s, nil
			}
		}
	}
	return "", "", ErrTaskNotFound
}

// ListInboxTaskIds returns the sorted list of task ids (filename without
// extension and collision suffix) present in one state directory. A
// missing directory yields an empty list, never an error.
func (b *Bus) ListInboxTaskIds(agent string, state State) ([]string, error) {
	dir := b.InboxDir(agent, state)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ids = append(ids, idFromFilename(e.Name()))
	}
	sort.Strings(ids)
	return ids, nil
}

func idFromFilename(name string) string {
	name = strings.TrimSuffix(name, ".md")
	if i := strings.Index(name, "__"); i >= 0 {
		name = name[:i]
	}
	return name
}

// MoveTask performs the atomic state transition: rename from's file into
// to's directory, preserving its filename.
func (b *Bus) MoveTask(from string, toDir string) (string, error) {
	if err := os.MkdirAll(toDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", toDir, err)
	}
	dest := filepath.Join(toDir, filepath.Base(from))
	if err := os.Rename(from, dest); err != nil {
		return "", fmt.Errorf("rename %s -> %s: %w", from, dest, err)
	}
	return dest, nil
}

// OpenTask reads a task's packet. When markSeen is true and the task is
// currently in "new", it is promoted to "seen" as a non-destructive read
// marker. Returns the decoded header, body, and the task's (possibly
// updated) path.
func (b *Bus) OpenTask(agent, id string, markSeen bool) (packet.Header, string, string, error) {
	path, state, err := b.FindTaskPath(agent, id)
	if err != nil {
		return packet.Header{}, "", "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return packet.Header{}, "", "", fmt.Errorf("read %s: %w", path, err)
	}
	hdr, body, err := packet.Parse(string(raw))
	if err != nil {
		return packet.Header{}, "", "", err
	}

	if markSeen && state == StateNew {
		newPath, err := b.MoveTask(path, b.InboxDir(agent, StateSeen))
		if err != nil {
			return hdr, body, path, err
		}
		path = newPath
	}
	return hdr, body, path, nil
}

// ClaimTask promotes a task from new|seen to in_progress. Fails if the
// task is already in_progress or processed.
func (b *Bus) ClaimTask(agent, id string) (string, error) {
	path, state, err := b.FindTaskPath(agent, id)
	if err != nil {
		return "", err
	}
	switch state {
	case StateInProgress:
		return "", ErrAlreadyInProgress
	case StateProcessed:
		return "", ErrAlreadyProcessed
	}
	return b.MoveTask(path, b.InboxDir(agent, StateInProgress))
}
