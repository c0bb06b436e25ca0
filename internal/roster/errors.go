package roster

import "errors"

// Sentinel errors for the roster package.
var (
	// ErrNotYAML is returned when the roster file does not parse as YAML.
	ErrNotYAML = errors.New("roster file is not valid YAML")

	// ErrEmptyRoster is returned when agents is empty — an empty roster is
	// rejected at load time rather than silently accepted.
	ErrEmptyRoster = errors.New("roster must list at least one agent")

	// ErrAgentMissingName is returned when an agent entry has no name field.
	ErrAgentMissingName = errors.New("agent entry missing name")

	// ErrDuplicateAgentName is returned when two agent entries share a name.
	ErrDuplicateAgentName = errors.New("duplicate agent name in roster")
)
