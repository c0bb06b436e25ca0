package bus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentbusio/agentbus/internal/packet"
)

// Receipt is the closure record written once per (agent, task).
type Receipt struct {
	TaskID       string         `json:"taskId"`
	Agent        string         `json:"agent"`
	Outcome      string         `json:"outcome"`
	Note         string         `json:"note,omitempty"`
	CommitSHA    string         `json:"commitSha,omitempty"`
	ClosedAt     string         `json:"closedAt"`
	Header       packet.Header  `json:"header"`
	ReceiptExtra map[string]any `json:"receiptExtra,omitempty"`
}

// WriteReceipt writes a receipt exactly once per (agent, task id): an
// existing receipt file is never overwritten, matching the append-only
// closure semantics the worker loop depends on to make close idempotent
// under retry.
func (b *Bus) WriteReceipt(r Receipt) error {
	dir := b.ReceiptsDir(r.Agent)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, r.TaskID+".json")

	if r.ClosedAt == "" {
		r.ClosedAt = time.Now().UTC().Format(time.RFC3339)
	}
	encoded, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrReceiptExists
		}
		return fmt.Errorf("create %s: %w", path, err)
	}
	_, werr := f.Write(encoded)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write %s: %w", path, werr)
	}
	return cerr
}

// ReadReceipt loads a previously written receipt, if any.
func (b *Bus) ReadReceipt(agent, taskID string) (Receipt, bool, error) {
	path := filepath.Join(b.ReceiptsDir(agent), taskID+".json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, err
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return Receipt{}, false, err
	}
	return r, true, nil
}

// HasReceipt reports whether a receipt already exists for (agent, taskID).
// Closure does not call it: its idempotency comes from WriteReceipt's
// exclusive create returning ErrReceiptExists.
func (b *Bus) HasReceipt(agent, taskID string) (bool, error) {
	_, ok, err := b.ReadReceipt(agent, taskID)
	return ok, err
}
