// Package config provides configuration management for AgentBus.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (AGENTBUS_*)
// 3. Project config (.agentbus/config.yaml in cwd)
// 4. Home config (~/.agentbus/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all AgentBus configuration.
type Config struct {
	// Output controls the default output format (table, json).
	Output string `yaml:"output" json:"output"`

	// BusRoot is the bus's root directory, containing inbox/, receipts/,
	// artifacts/, and state/.
	BusRoot string `yaml:"bus_root" json:"bus_root"`

	// RosterPath points at the roster YAML file. Empty means "use the
	// embedded fallback roster".
	RosterPath string `yaml:"roster_path" json:"roster_path"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Scan settings
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Concurrency settings
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`

	// Gate settings
	Gate GateConfig `yaml:"gate" json:"gate"`

	// Quality settings for the code-quality gate
	Quality QualityConfig `yaml:"quality" json:"quality"`

	// Engine settings
	Engine EngineConfig `yaml:"engine" json:"engine"`
}

// ScanConfig controls the suspicious-content scanner.
type ScanConfig struct {
	// Policy is one of "block", "warn", "allow". Default: "block".
	Policy string `yaml:"policy" json:"policy"`
}

// ConcurrencyConfig holds the global cooldown/semaphore settings (C5).
type ConcurrencyConfig struct {
	// SemaphoreSlots bounds the number of simultaneously running engine
	// invocations across all workers. Default: 4.
	SemaphoreSlots int `yaml:"semaphore_slots" json:"semaphore_slots"`
	// CooldownJitterMs is the fixed extra delay a worker adds to the time
	// remaining on an active cooldown barrier before its next attempt.
	// Default: 250.
	CooldownJitterMs int `yaml:"cooldown_jitter_ms" json:"cooldown_jitter_ms"`
}

// GateConfig controls review/quality gate behavior (C8/C9).
type GateConfig struct {
	// AutoRemediate and MaxRemediationAttempts are loaded, merged and
	// defaulted like every other setting, but the worker loop does not read
	// them: a failed quality gate always closes the task as needs_review,
	// with no remediation retry. Default: true.
	AutoRemediate bool `yaml:"auto_remediate" json:"auto_remediate"`
	// MaxRemediationAttempts is not consulted by the worker loop (see
	// AutoRemediate). Default: 2.
	MaxRemediationAttempts int `yaml:"max_remediation_attempts" json:"max_remediation_attempts"`
}

// QualityConfig configures the code-quality gate's filesystem checks.
type QualityConfig struct {
	// RuntimeScriptsDir is the project-relative directory treated as
	// runtime tooling rather than test code. Default: "scripts".
	RuntimeScriptsDir string `yaml:"runtime_scripts_dir" json:"runtime_scripts_dir"`
	// TestsDir is the project-relative directory treated as test code.
	// Default: "tests".
	TestsDir string `yaml:"tests_dir" json:"tests_dir"`
}

// EngineConfig controls the command used to spawn the LLM engine and its
// watchdog timeouts (C7 step g/h).
type EngineConfig struct {
	// Command is the CLI command used to spawn engine sessions. Default: "claude".
	Command string `yaml:"command" json:"command"`
	// StartupTimeoutSeconds is resolved into engine.Timeouts.StartupTimeout;
	// the worker loop does not apply it to engine runs. Default: 60.
	StartupTimeoutSeconds int `yaml:"startup_timeout_seconds" json:"startup_timeout_seconds"`
	// StallTimeoutSeconds is the engine's hard watchdog: an attempt still
	// running this long after spawn is timed out, whatever its activity.
	// Default: 300.
	StallTimeoutSeconds int `yaml:"stall_timeout_seconds" json:"stall_timeout_seconds"`
	// GracePeriodSeconds is how long to wait after SIGTERM before SIGKILL.
	// Default: 10.
	GracePeriodSeconds int `yaml:"grace_period_seconds" json:"grace_period_seconds"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput  = "table"
	defaultBusRoot = ".agentbus"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:  defaultOutput,
		BusRoot: defaultBusRoot,
		Verbose: false,
		Scan: ScanConfig{
			Policy: "block",
		},
		Concurrency: ConcurrencyConfig{
			SemaphoreSlots:   4,
			CooldownJitterMs: 250,
		},
		Gate: GateConfig{
			AutoRemediate:          true,
			MaxRemediationAttempts: 2,
		},
		Quality: QualityConfig{
			RuntimeScriptsDir: "scripts",
			TestsDir:          "tests",
		},
		Engine: EngineConfig{
			Command:               "claude",
			StartupTimeoutSeconds: 60,
			StallTimeoutSeconds:   300,
			GracePeriodSeconds:    10,
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	// Load home config
	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	// Load project config
	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	// Apply environment variables
	cfg = applyEnv(cfg)

	// Apply flag overrides
	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentbus", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("AGENTBUS_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".agentbus", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("AGENTBUS_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("AGENTBUS_BUS_ROOT"); v != "" {
		cfg.BusRoot = v
	}
	if v := os.Getenv("AGENTBUS_ROSTER"); v != "" {
		cfg.RosterPath = v
	}
	if os.Getenv("AGENTBUS_VERBOSE") == "true" || os.Getenv("AGENTBUS_VERBOSE") == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("AGENTBUS_SCAN_POLICY"); v != "" {
		cfg.Scan.Policy = v
	}
	if v := os.Getenv("AGENTBUS_SEMAPHORE_SLOTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency.SemaphoreSlots = n
		}
	}
	if v := os.Getenv("AGENTBUS_COOLDOWN_JITTER_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency.CooldownJitterMs = n
		}
	}
	if v := os.Getenv("AGENTBUS_GATE_AUTO_REMEDIATE"); v == "false" || v == "0" {
		cfg.Gate.AutoRemediate = false
	}
	if v := os.Getenv("AGENTBUS_QUALITY_SCRIPTS_DIR"); v != "" {
		cfg.Quality.RuntimeScriptsDir = v
	}
	if v := os.Getenv("AGENTBUS_QUALITY_TESTS_DIR"); v != "" {
		cfg.Quality.TestsDir = v
	}
	if v := os.Getenv("AGENTBUS_ENGINE_COMMAND"); v != "" {
		cfg.Engine.Command = v
	}
	return cfg
}

// merge merges src into dst, with src values taking precedence.
// For booleans, we need explicit tracking via pointer or separate "set" flag.
func merge(dst, src *Config) *Config {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.BusRoot != "" {
		dst.BusRoot = src.BusRoot
	}
	if src.RosterPath != "" {
		dst.RosterPath = src.RosterPath
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.Scan.Policy != "" {
		dst.Scan.Policy = src.Scan.Policy
	}
	if src.Concurrency.SemaphoreSlots != 0 {
		dst.Concurrency.SemaphoreSlots = src.Concurrency.SemaphoreSlots
	}
	if src.Concurrency.CooldownJitterMs != 0 {
		dst.Concurrency.CooldownJitterMs = src.Concurrency.CooldownJitterMs
	}
	if src.Gate.MaxRemediationAttempts != 0 {
		dst.Gate.MaxRemediationAttempts = src.Gate.MaxRemediationAttempts
	}
	if src.Quality.RuntimeScriptsDir != "" {
		dst.Quality.RuntimeScriptsDir = src.Quality.RuntimeScriptsDir
	}
	if src.Quality.TestsDir != "" {
		dst.Quality.TestsDir = src.Quality.TestsDir
	}
	if src.Engine.Command != "" {
		dst.Engine.Command = src.Engine.Command
	}
	if src.Engine.StartupTimeoutSeconds != 0 {
		dst.Engine.StartupTimeoutSeconds = src.Engine.StartupTimeoutSeconds
	}
	if src.Engine.StallTimeoutSeconds != 0 {
		dst.Engine.StallTimeoutSeconds = src.Engine.StallTimeoutSeconds
	}
	if src.Engine.GracePeriodSeconds != 0 {
		dst.Engine.GracePeriodSeconds = src.Engine.GracePeriodSeconds
	}
	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.agentbus/config.yaml"
	SourceProject Source = ".agentbus/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// resolved pairs a resolved value with the precedence tier it came from.
type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// resolveStringField resolves a string through the precedence chain.
// Returns the resolved value and its source.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output     resolved `json:"output"`
	BusRoot    resolved `json:"bus_root"`
	RosterPath resolved `json:"roster_path"`
	Verbose    resolved `json:"verbose"`
	ScanPolicy resolved `json:"scan_policy"`
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput, flagBusRoot string, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	var homeOutput, homeBusRoot, homeRoster, homeScanPolicy string
	var homeVerbose bool
	if homeConfig != nil {
		homeOutput = homeConfig.Output
		homeBusRoot = homeConfig.BusRoot
		homeRoster = homeConfig.RosterPath
		homeVerbose = homeConfig.Verbose
		homeScanPolicy = homeConfig.Scan.Policy
	}

	var projectOutput, projectBusRoot, projectRoster, projectScanPolicy string
	var projectVerbose bool
	if projectConfig != nil {
		projectOutput = projectConfig.Output
		projectBusRoot = projectConfig.BusRoot
		projectRoster = projectConfig.RosterPath
		projectVerbose = projectConfig.Verbose
		projectScanPolicy = projectConfig.Scan.Policy
	}

	envOutput, _ := getEnvString("AGENTBUS_OUTPUT")
	envBusRoot, _ := getEnvString("AGENTBUS_BUS_ROOT")
	envRoster, _ := getEnvString("AGENTBUS_ROSTER")
	envScanPolicy, _ := getEnvString("AGENTBUS_SCAN_POLICY")
	envVerbose, envVerboseSet := getEnvBool("AGENTBUS_VERBOSE")

	rc := &ResolvedConfig{
		Output:     resolveStringField(homeOutput, projectOutput, envOutput, flagOutput, defaultOutput),
		BusRoot:    resolveStringField(homeBusRoot, projectBusRoot, envBusRoot, flagBusRoot, defaultBusRoot),
		RosterPath: resolveStringField(homeRoster, projectRoster, envRoster, "", ""),
		Verbose:    resolved{Value: false, Source: SourceDefault},
		ScanPolicy: resolveStringField(homeScanPolicy, projectScanPolicy, envScanPolicy, "", "block"),
	}

	if homeVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerboseSet && envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
