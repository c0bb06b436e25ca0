package workerloop

import (
	"encoding/json"
	"fmt"

	"github.com/agentbusio/agentbus/internal/followup"
	"github.com/agentbusio/agentbus/internal/gate"
)

// engineArtifact is the structured-output contract the engine must emit:
// the outer loop's completion record, an optional review object (required
// when gate.Required holds for the task), the changed-file set the quality
// gate inspects, and any follow-up child specs to dispatch on closure.
type engineArtifact struct {
	Outcome      string              `json:"outcome"`
	Note         string              `json:"note"`
	CommitSHA    string              `json:"commitSha,omitempty"`
	Review       *gate.Review        `json:"review,omitempty"`
	FollowUps    []followup.Item     `json:"followUps,omitempty"`
	ChangedFiles []gate.ChangedFile  `json:"changedFiles,omitempty"`
}

// decodeArtifact re-marshals the engine's generic JSON object into the
// typed shape the worker loop operates on.
func decodeArtifact(raw map[string]any) (*engineArtifact, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty artifact", ErrArtifactRejected)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactRejected, err)
	}
	var a engineArtifact
	if err := json.Unmarshal(encoded, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactRejected, err)
	}
	if a.Outcome == "" {
		return nil, fmt.Errorf("%w: missing outcome", ErrArtifactRejected)
	}
	return &a, nil
}
