// Package roster loads and queries the static catalog of agent identities
// a bus operates over: their working directories, distinguished roles, and
// skill bindings.
package roster

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentbusio/agentbus/embedded"
)

// Agent is one roster entry.
type Agent struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Workdir   string   `yaml:"workdir"`
	Branch    string   `yaml:"branch"`
	Skills    []string `yaml:"skills,omitempty"`
	SessionID string   `yaml:"sessionId,omitempty"`
}

// Roster is the loaded catalog plus its distinguished role names.
type Roster struct {
	OrchestratorName string  `yaml:"orchestratorName"`
	DaddyChatName    string  `yaml:"daddyChatName"`
	AutopilotName    string  `yaml:"autopilotName"`
	Agents           []Agent `yaml:"agents"`
}

// ExpandVars supplies the fixed dictionary Load/expandWorkdir substitutes
// into workdir templates.
type ExpandVars struct {
	RepoRoot     string
	WorktreesDir string
	Home         string
}

// Load reads and validates a roster YAML file. An empty path loads the
// bundled fallback roster instead of reading from disk.
func Load(path string) (*Roster, error) {
	var data []byte
	if strings.TrimSpace(path) == "" {
		data = embedded.DefaultRosterYAML
	} else {
		d, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = d
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, ErrNotYAML
	}

	if err := validate(&r); err != nil {
		return nil, err
	}
	applyDefaults(&r)
	return &r, nil
}

func validate(r *Roster) error {
	if len(r.Agents) == 0 {
		return ErrEmptyRoster
	}
	seen := make(map[string]bool, len(r.Agents))
	for _, a := range r.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return ErrAgentMissingName
		}
		if seen[a.Name] {
			return ErrDuplicateAgentName
		}
		seen[a.Name] = true
	}
	return nil
}

func applyDefaults(r *Roster) {
	if r.OrchestratorName == "" {
		r.OrchestratorName = "orchestrator"
	}
	if r.DaddyChatName == "" {
		r.DaddyChatName = "daddy"
	}
	if r.AutopilotName == "" {
		r.AutopilotName = "autopilot"
	}
}

// AgentNames returns the union of listed agents, the distinguished role
// names, and "daddy" — the set of identities Bus Storage must materialize
// inbox directories for.
func (r *Roster) AgentNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, a := range r.Agents {
		add(a.Name)
	}
	add(r.OrchestratorName)
	add(r.DaddyChatName)
	add(r.AutopilotName)
	add("daddy")
	return names
}

// Find returns the agent entry with the given name, or false if absent.
func (r *Roster) Find(name string) (Agent, bool) {
	for _, a := range r.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// KnownAgents returns the set AgentNames() as a membership map, suitable
// for packet.ValidateHeader's recipient check.
func (r *Roster) KnownAgents() map[string]bool {
	m := make(map[string]bool)
	for _, n := range r.AgentNames() {
		m[n] = true
	}
	return m
}

// ExpandWorkdir performs purely textual $NAME substitution of a workdir
// template against the fixed dictionary — no shell semantics, no arbitrary
// environment lookup.
func ExpandWorkdir(template string, vars ExpandVars) string {
	replacer := strings.NewReplacer(
		"$repoRoot", vars.RepoRoot,
		"$worktreesDir", vars.WorktreesDir,
		"$home", vars.Home,
	)
	return replacer.Replace(template)
}
