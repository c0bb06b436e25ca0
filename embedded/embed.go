// Package embedded provides the fallback roster bundled into the agentbus
// binary, used when the caller does not pin an explicit roster path.
package embedded

import _ "embed"

// DefaultRosterYAML is the bundled roster, returned by roster.Load when the
// caller passes an empty path.
//
//go:embed roster.yaml
var DefaultRosterYAML []byte
