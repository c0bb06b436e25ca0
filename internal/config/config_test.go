package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AGENTBUS_CONFIG", "AGENTBUS_OUTPUT", "AGENTBUS_BUS_ROOT", "AGENTBUS_ROSTER",
		"AGENTBUS_VERBOSE", "AGENTBUS_SCAN_POLICY", "AGENTBUS_SEMAPHORE_SLOTS",
		"AGENTBUS_COOLDOWN_JITTER_MS", "AGENTBUS_GATE_AUTO_REMEDIATE",
		"AGENTBUS_QUALITY_SCRIPTS_DIR", "AGENTBUS_QUALITY_TESTS_DIR",
		"AGENTBUS_ENGINE_COMMAND",
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Output != "table" {
		t.Errorf("Default Output = %q, want %q", cfg.Output, "table")
	}
	if cfg.BusRoot != ".agentbus" {
		t.Errorf("Default BusRoot = %q, want %q", cfg.BusRoot, ".agentbus")
	}
	if cfg.Verbose {
		t.Error("Default Verbose = true, want false")
	}
	if cfg.Scan.Policy != "block" {
		t.Errorf("Default Scan.Policy = %q, want %q", cfg.Scan.Policy, "block")
	}
	if cfg.Concurrency.SemaphoreSlots != 4 {
		t.Errorf("Default Concurrency.SemaphoreSlots = %d, want 4", cfg.Concurrency.SemaphoreSlots)
	}
	if cfg.Concurrency.CooldownJitterMs != 250 {
		t.Errorf("Default Concurrency.CooldownJitterMs = %d, want 250", cfg.Concurrency.CooldownJitterMs)
	}
	if !cfg.Gate.AutoRemediate {
		t.Error("Default Gate.AutoRemediate = false, want true")
	}
	if cfg.Gate.MaxRemediationAttempts != 2 {
		t.Errorf("Default Gate.MaxRemediationAttempts = %d, want 2", cfg.Gate.MaxRemediationAttempts)
	}
	if cfg.Quality.RuntimeScriptsDir != "scripts" {
		t.Errorf("Default Quality.RuntimeScriptsDir = %q, want %q", cfg.Quality.RuntimeScriptsDir, "scripts")
	}
	if cfg.Quality.TestsDir != "tests" {
		t.Errorf("Default Quality.TestsDir = %q, want %q", cfg.Quality.TestsDir, "tests")
	}
	if cfg.Engine.Command != "claude" {
		t.Errorf("Default Engine.Command = %q, want %q", cfg.Engine.Command, "claude")
	}
	if cfg.Engine.StartupTimeoutSeconds != 60 {
		t.Errorf("Default Engine.StartupTimeoutSeconds = %d, want 60", cfg.Engine.StartupTimeoutSeconds)
	}
	if cfg.Engine.StallTimeoutSeconds != 300 {
		t.Errorf("Default Engine.StallTimeoutSeconds = %d, want 300", cfg.Engine.StallTimeoutSeconds)
	}
	if cfg.Engine.GracePeriodSeconds != 10 {
		t.Errorf("Default Engine.GracePeriodSeconds = %d, want 10", cfg.Engine.GracePeriodSeconds)
	}
}

func TestMerge(t *testing.T) {
	dst := Default()
	src := &Config{
		Output:  "json",
		BusRoot: "/custom/path",
	}

	result := merge(dst, src)

	if result.Output != "json" {
		t.Errorf("merge Output = %q, want %q", result.Output, "json")
	}
	if result.BusRoot != "/custom/path" {
		t.Errorf("merge BusRoot = %q, want %q", result.BusRoot, "/custom/path")
	}
	if result.Concurrency.SemaphoreSlots != 4 {
		t.Errorf("merge preserved SemaphoreSlots = %d, want 4", result.Concurrency.SemaphoreSlots)
	}
}

func TestMerge_VerboseOverride(t *testing.T) {
	dst := Default()
	src := &Config{Verbose: true}

	result := merge(dst, src)

	if !result.Verbose {
		t.Error("merge Verbose = false, want true")
	}
}

func TestMerge_ScanPolicy(t *testing.T) {
	dst := Default()
	src := &Config{Scan: ScanConfig{Policy: "warn"}}

	result := merge(dst, src)

	if result.Scan.Policy != "warn" {
		t.Errorf("merge Scan.Policy = %q, want %q", result.Scan.Policy, "warn")
	}
}

func TestMerge_ConcurrencyPreservedWhenZero(t *testing.T) {
	dst := Default()
	src := &Config{Output: "json"}

	result := merge(dst, src)

	if result.Concurrency.SemaphoreSlots != 4 {
		t.Errorf("merge should preserve default SemaphoreSlots, got %d", result.Concurrency.SemaphoreSlots)
	}
	if result.Concurrency.CooldownJitterMs != 250 {
		t.Errorf("merge should preserve default CooldownJitterMs, got %d", result.Concurrency.CooldownJitterMs)
	}
}

func TestMerge_Quality(t *testing.T) {
	dst := Default()
	src := &Config{
		Quality: QualityConfig{
			RuntimeScriptsDir: "tools",
			TestsDir:          "spec",
		},
	}

	result := merge(dst, src)

	if result.Quality.RuntimeScriptsDir != "tools" {
		t.Errorf("merge Quality.RuntimeScriptsDir = %q, want %q", result.Quality.RuntimeScriptsDir, "tools")
	}
	if result.Quality.TestsDir != "spec" {
		t.Errorf("merge Quality.TestsDir = %q, want %q", result.Quality.TestsDir, "spec")
	}
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTBUS_OUTPUT", "json")
	t.Setenv("AGENTBUS_VERBOSE", "true")
	t.Setenv("AGENTBUS_SCAN_POLICY", "warn")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.Output != "json" {
		t.Errorf("applyEnv Output = %q, want %q", cfg.Output, "json")
	}
	if !cfg.Verbose {
		t.Error("applyEnv Verbose = false, want true")
	}
	if cfg.Scan.Policy != "warn" {
		t.Errorf("applyEnv Scan.Policy = %q, want %q", cfg.Scan.Policy, "warn")
	}
}

func TestApplyEnv_SemaphoreAndJitter(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTBUS_SEMAPHORE_SLOTS", "8")
	t.Setenv("AGENTBUS_COOLDOWN_JITTER_MS", "500")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.Concurrency.SemaphoreSlots != 8 {
		t.Errorf("applyEnv SemaphoreSlots = %d, want 8", cfg.Concurrency.SemaphoreSlots)
	}
	if cfg.Concurrency.CooldownJitterMs != 500 {
		t.Errorf("applyEnv CooldownJitterMs = %d, want 500", cfg.Concurrency.CooldownJitterMs)
	}
}

func TestApplyEnv_GateAutoRemediate(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTBUS_GATE_AUTO_REMEDIATE", "false")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.Gate.AutoRemediate {
		t.Error("applyEnv Gate.AutoRemediate = true, want false")
	}
}

func TestApplyEnv_QualityDirs(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTBUS_QUALITY_SCRIPTS_DIR", "bin")
	t.Setenv("AGENTBUS_QUALITY_TESTS_DIR", "__tests__")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.Quality.RuntimeScriptsDir != "bin" {
		t.Errorf("applyEnv Quality.RuntimeScriptsDir = %q, want %q", cfg.Quality.RuntimeScriptsDir, "bin")
	}
	if cfg.Quality.TestsDir != "__tests__" {
		t.Errorf("applyEnv Quality.TestsDir = %q, want %q", cfg.Quality.TestsDir, "__tests__")
	}
}

func TestApplyEnv_EngineCommand(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTBUS_ENGINE_COMMAND", "codex")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.Engine.Command != "codex" {
		t.Errorf("applyEnv Engine.Command = %q, want %q", cfg.Engine.Command, "codex")
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
output: json
bus_root: /custom/bus
verbose: true
scan:
  policy: warn
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFromPath(configPath)
	if err != nil {
		t.Fatalf("loadFromPath() error = %v", err)
	}

	if cfg.Output != "json" {
		t.Errorf("loadFromPath Output = %q, want %q", cfg.Output, "json")
	}
	if cfg.BusRoot != "/custom/bus" {
		t.Errorf("loadFromPath BusRoot = %q, want %q", cfg.BusRoot, "/custom/bus")
	}
	if !cfg.Verbose {
		t.Error("loadFromPath Verbose = false, want true")
	}
	if cfg.Scan.Policy != "warn" {
		t.Errorf("loadFromPath Scan.Policy = %q, want %q", cfg.Scan.Policy, "warn")
	}
}

func TestLoadFromPath_NotExists(t *testing.T) {
	cfg, err := loadFromPath("/nonexistent/config.yaml")
	if cfg != nil {
		t.Errorf("loadFromPath for nonexistent file should return nil config")
	}
	if err == nil {
		t.Errorf("loadFromPath for nonexistent file should return error")
	}
}

func TestLoadFromPath_Empty(t *testing.T) {
	cfg, err := loadFromPath("")
	if cfg != nil || err != nil {
		t.Errorf("loadFromPath(\"\") = %v, %v; want nil, nil", cfg, err)
	}
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `{{{invalid yaml`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFromPath(configPath)
	if err == nil {
		t.Error("loadFromPath for invalid YAML should return error")
	}
	if cfg != nil {
		t.Error("loadFromPath for invalid YAML should return nil config")
	}
}

func TestResolve(t *testing.T) {
	clearEnv(t)
	rc := Resolve("json", "/flag/path", true)

	if rc.Output.Value != "json" {
		t.Errorf("Resolve Output.Value = %v, want %q", rc.Output.Value, "json")
	}
	if rc.Output.Source != SourceFlag {
		t.Errorf("Resolve Output.Source = %v, want %v", rc.Output.Source, SourceFlag)
	}
	if rc.BusRoot.Value != "/flag/path" {
		t.Errorf("Resolve BusRoot.Value = %v, want %q", rc.BusRoot.Value, "/flag/path")
	}
	if rc.Verbose.Value != true {
		t.Errorf("Resolve Verbose.Value = %v, want true", rc.Verbose.Value)
	}
}

func TestResolve_Defaults(t *testing.T) {
	clearEnv(t)

	rc := Resolve("", "", false)

	if rc.Output.Value != "table" {
		t.Errorf("Resolve default Output.Value = %v, want %q", rc.Output.Value, "table")
	}
	if rc.Verbose.Value != false {
		t.Errorf("Resolve default Verbose.Value = %v, want false", rc.Verbose.Value)
	}
	if rc.ScanPolicy.Value != "block" {
		t.Errorf("Resolve default ScanPolicy.Value = %v, want %q", rc.ScanPolicy.Value, "block")
	}
}

func TestResolve_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTBUS_OUTPUT", "yaml")
	t.Setenv("AGENTBUS_BUS_ROOT", "/env/path")
	t.Setenv("AGENTBUS_VERBOSE", "1")

	rc := Resolve("", "", false)

	if rc.Output.Value != "yaml" {
		t.Errorf("Resolve env Output.Value = %v, want %q", rc.Output.Value, "yaml")
	}
	if rc.Output.Source != SourceEnv {
		t.Errorf("Resolve env Output.Source = %v, want %v", rc.Output.Source, SourceEnv)
	}
	if rc.BusRoot.Value != "/env/path" {
		t.Errorf("Resolve env BusRoot.Value = %v, want %q", rc.BusRoot.Value, "/env/path")
	}
	if rc.BusRoot.Source != SourceEnv {
		t.Errorf("Resolve env BusRoot.Source = %v, want %v", rc.BusRoot.Source, SourceEnv)
	}
	if rc.Verbose.Value != true {
		t.Errorf("Resolve env Verbose.Value = %v, want true", rc.Verbose.Value)
	}
	if rc.Verbose.Source != SourceEnv {
		t.Errorf("Resolve env Verbose.Source = %v, want %v", rc.Verbose.Source, SourceEnv)
	}
}

func TestResolveStringField(t *testing.T) {
	tests := []struct {
		name       string
		home       string
		project    string
		env        string
		flag       string
		def        string
		wantValue  string
		wantSource Source
	}{
		{
			name:       "default only",
			def:        "table",
			wantValue:  "table",
			wantSource: SourceDefault,
		},
		{
			name:       "home overrides default",
			home:       "json",
			def:        "table",
			wantValue:  "json",
			wantSource: SourceHome,
		},
		{
			name:       "project overrides home",
			home:       "json",
			project:    "yaml",
			def:        "table",
			wantValue:  "yaml",
			wantSource: SourceProject,
		},
		{
			name:       "env overrides project",
			home:       "json",
			project:    "yaml",
			env:        "csv",
			def:        "table",
			wantValue:  "csv",
			wantSource: SourceEnv,
		},
		{
			name:       "flag overrides everything",
			home:       "json",
			project:    "yaml",
			env:        "csv",
			flag:       "text",
			def:        "table",
			wantValue:  "text",
			wantSource: SourceFlag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveStringField(tt.home, tt.project, tt.env, tt.flag, tt.def)
			if got.Value != tt.wantValue {
				t.Errorf("resolveStringField() Value = %v, want %v", got.Value, tt.wantValue)
			}
			if got.Source != tt.wantSource {
				t.Errorf("resolveStringField() Source = %v, want %v", got.Source, tt.wantSource)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		wantBool bool
		wantSet  bool
	}{
		{name: "true string", envVal: "true", wantBool: true, wantSet: true},
		{name: "1 string", envVal: "1", wantBool: true, wantSet: true},
		{name: "false string", envVal: "false", wantBool: false, wantSet: false},
		{name: "empty string", envVal: "", wantBool: false, wantSet: false},
		{name: "random string", envVal: "yes", wantBool: false, wantSet: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_KEY", tt.envVal)
			gotBool, gotSet := getEnvBool("TEST_BOOL_KEY")
			if gotBool != tt.wantBool {
				t.Errorf("getEnvBool() bool = %v, want %v", gotBool, tt.wantBool)
			}
			if gotSet != tt.wantSet {
				t.Errorf("getEnvBool() set = %v, want %v", gotSet, tt.wantSet)
			}
		})
	}
}

func TestGetEnvString(t *testing.T) {
	tests := []struct {
		name    string
		envVal  string
		wantVal string
		wantSet bool
	}{
		{name: "set value", envVal: "hello", wantVal: "hello", wantSet: true},
		{name: "empty value", envVal: "", wantVal: "", wantSet: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_STR_KEY", tt.envVal)
			gotVal, gotSet := getEnvString("TEST_STR_KEY")
			if gotVal != tt.wantVal {
				t.Errorf("getEnvString() val = %q, want %q", gotVal, tt.wantVal)
			}
			if gotSet != tt.wantSet {
				t.Errorf("getEnvString() set = %v, want %v", gotSet, tt.wantSet)
			}
		})
	}
}

func TestProjectConfigPath_UsesAgentBusConfigEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom.yaml")
	t.Setenv("AGENTBUS_CONFIG", configPath)

	got := projectConfigPath()
	if got != configPath {
		t.Fatalf("projectConfigPath() = %q, want %q", got, configPath)
	}
}

func TestProjectConfigPath_DefaultFromCwd(t *testing.T) {
	t.Setenv("AGENTBUS_CONFIG", "")
	got := projectConfigPath()
	cwd, _ := os.Getwd()
	expected := filepath.Join(cwd, ".agentbus", "config.yaml")
	if got != expected {
		t.Errorf("projectConfigPath() = %q, want %q", got, expected)
	}
}

func TestProjectConfigPath_WhitespaceOnlyConfig(t *testing.T) {
	t.Setenv("AGENTBUS_CONFIG", "  \t  ")
	got := projectConfigPath()
	cwd, _ := os.Getwd()
	expected := filepath.Join(cwd, ".agentbus", "config.yaml")
	if got != expected {
		t.Errorf("projectConfigPath() with whitespace = %q, want %q", got, expected)
	}
}

func TestResolve_WithProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
output: yaml
bus_root: /project/bus
verbose: true
scan:
  policy: warn
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	t.Setenv("AGENTBUS_CONFIG", configPath)

	rc := Resolve("", "", false)

	if rc.Output.Value != "yaml" || rc.Output.Source != SourceProject {
		t.Errorf("Output = (%v, %v), want (yaml, %v)", rc.Output.Value, rc.Output.Source, SourceProject)
	}
	if rc.BusRoot.Value != "/project/bus" || rc.BusRoot.Source != SourceProject {
		t.Errorf("BusRoot = (%v, %v), want (/project/bus, %v)", rc.BusRoot.Value, rc.BusRoot.Source, SourceProject)
	}
	if rc.Verbose.Value != true || rc.Verbose.Source != SourceProject {
		t.Errorf("Verbose = (%v, %v), want (true, %v)", rc.Verbose.Value, rc.Verbose.Source, SourceProject)
	}
	if rc.ScanPolicy.Value != "warn" || rc.ScanPolicy.Source != SourceProject {
		t.Errorf("ScanPolicy = (%v, %v), want (warn, %v)", rc.ScanPolicy.Value, rc.ScanPolicy.Source, SourceProject)
	}
}

func TestResolve_FlagOverridesProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
output: yaml
bus_root: /project/bus
verbose: true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	t.Setenv("AGENTBUS_CONFIG", configPath)

	rc := Resolve("json", "/flag/dir", true)

	if rc.Output.Value != "json" || rc.Output.Source != SourceFlag {
		t.Errorf("Flag should override project: Output = (%v, %v)", rc.Output.Value, rc.Output.Source)
	}
	if rc.BusRoot.Value != "/flag/dir" || rc.BusRoot.Source != SourceFlag {
		t.Errorf("Flag should override project: BusRoot = (%v, %v)", rc.BusRoot.Value, rc.BusRoot.Source)
	}
	if rc.Verbose.Value != true || rc.Verbose.Source != SourceFlag {
		t.Errorf("Flag should override project: Verbose = (%v, %v)", rc.Verbose.Value, rc.Verbose.Source)
	}
}

func TestResolve_EnvOverridesProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
output: yaml
bus_root: /project/bus
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	t.Setenv("AGENTBUS_CONFIG", configPath)
	t.Setenv("AGENTBUS_OUTPUT", "csv")
	t.Setenv("AGENTBUS_BUS_ROOT", "/env/dir")
	t.Setenv("AGENTBUS_VERBOSE", "true")

	rc := Resolve("", "", false)

	if rc.Output.Value != "csv" || rc.Output.Source != SourceEnv {
		t.Errorf("Env should override project: Output = (%v, %v)", rc.Output.Value, rc.Output.Source)
	}
	if rc.BusRoot.Value != "/env/dir" || rc.BusRoot.Source != SourceEnv {
		t.Errorf("Env should override project: BusRoot = (%v, %v)", rc.BusRoot.Value, rc.BusRoot.Source)
	}
	if rc.Verbose.Value != true || rc.Verbose.Source != SourceEnv {
		t.Errorf("Env should override project: Verbose = (%v, %v)", rc.Verbose.Value, rc.Verbose.Source)
	}
}

func TestLoad_WithFlagOverrides(t *testing.T) {
	clearEnv(t)

	overrides := &Config{
		Output:  "json",
		BusRoot: "/flag/base",
		Verbose: true,
	}

	cfg, err := Load(overrides)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "json" {
		t.Errorf("Load Output = %q, want %q", cfg.Output, "json")
	}
	if cfg.BusRoot != "/flag/base" {
		t.Errorf("Load BusRoot = %q, want %q", cfg.BusRoot, "/flag/base")
	}
	if !cfg.Verbose {
		t.Error("Load Verbose = false, want true")
	}
}

func TestLoad_NilOverrides(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "table" {
		t.Errorf("Load nil Output = %q, want %q", cfg.Output, "table")
	}
	if cfg.BusRoot != ".agentbus" {
		t.Errorf("Load nil BusRoot = %q, want %q", cfg.BusRoot, ".agentbus")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTBUS_OUTPUT", "yaml")
	t.Setenv("AGENTBUS_BUS_ROOT", "/env/dir")
	t.Setenv("AGENTBUS_VERBOSE", "1")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "yaml" {
		t.Errorf("Load env Output = %q, want %q", cfg.Output, "yaml")
	}
	if cfg.BusRoot != "/env/dir" {
		t.Errorf("Load env BusRoot = %q, want %q", cfg.BusRoot, "/env/dir")
	}
	if !cfg.Verbose {
		t.Error("Load env Verbose = false, want true")
	}
}

func TestLoad_WithProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
output: yaml
bus_root: /project/bus
quality:
  runtime_scripts_dir: tools
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	t.Setenv("AGENTBUS_CONFIG", configPath)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "yaml" {
		t.Errorf("Load with project config Output = %q, want %q", cfg.Output, "yaml")
	}
	if cfg.BusRoot != "/project/bus" {
		t.Errorf("Load with project config BusRoot = %q, want %q", cfg.BusRoot, "/project/bus")
	}
	if cfg.Quality.RuntimeScriptsDir != "tools" {
		t.Errorf("Load with project config Quality.RuntimeScriptsDir = %q, want %q", cfg.Quality.RuntimeScriptsDir, "tools")
	}
}

func TestLoad_WithHomeConfig(t *testing.T) {
	homePath := homeConfigPath()
	if homePath == "" {
		t.Skip("cannot determine home config path")
	}

	if err := os.MkdirAll(filepath.Dir(homePath), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	origData, origErr := os.ReadFile(homePath)
	existed := origErr == nil

	content := `
output: table
bus_root: /home-bus
verbose: true
engine:
  command: home-claude
`
	if err := os.WriteFile(homePath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Cleanup(func() {
		if existed {
			_ = os.WriteFile(homePath, origData, 0644)
		} else {
			_ = os.Remove(homePath)
		}
	})

	clearEnv(t)
	t.Setenv("AGENTBUS_CONFIG", "/nonexistent/project.yaml")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BusRoot != "/home-bus" {
		t.Errorf("Load with home config: BusRoot = %q, want %q", cfg.BusRoot, "/home-bus")
	}
	if !cfg.Verbose {
		t.Error("Load with home config: Verbose = false, want true")
	}
	if cfg.Engine.Command != "home-claude" {
		t.Errorf("Load with home config: Engine.Command = %q, want %q", cfg.Engine.Command, "home-claude")
	}
}

// --- Benchmarks ---

func BenchmarkDefault(b *testing.B) {
	for range b.N {
		Default()
	}
}

func BenchmarkMerge(b *testing.B) {
	base := Default()
	overlay := &Config{
		Output:  "json",
		BusRoot: "/tmp/bench",
		Verbose: true,
	}
	b.ResetTimer()
	for range b.N {
		dst := *base // copy
		merge(&dst, overlay)
	}
}
