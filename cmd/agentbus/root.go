package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/config"
	"github.com/agentbusio/agentbus/internal/packet"
	"github.com/agentbusio/agentbus/internal/roster"
)

// exit codes per the CLI contract: 0 success, 1 usage/generic failure, 2
// suspicious-content blocked.
const (
	exitOK        = 0
	exitFailure   = 1
	exitSuspicious = 2
)

var (
	flagBusRoot string
	flagRoster  string
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agentbus",
	Short: "File-backed packet bus for multi-agent task handoff",
	Long: `agentbus drives a file-backed packet bus: agents exchange tasks as
Markdown packets that move through new -> seen -> in_progress -> processed
directories, close with a receipt, and optionally notify the orchestrator.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBusRoot, "bus-root", "", "bus root directory (default .agentbus, or $AGENTBUS_BUS_ROOT)")
	rootCmd.PersistentFlags().StringVar(&flagRoster, "roster", "", "roster YAML path (default: bundled fallback, or $AGENTBUS_ROSTER)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "output format: table|json|lines")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if errors.Is(err, packet.ErrSuspiciousContentBlocked) {
		return exitSuspicious
	}
	return exitFailure
}

// loadConfig resolves config with flag overrides applied.
func loadConfig() (*config.Config, error) {
	overrides := &config.Config{}
	if flagBusRoot != "" {
		overrides.BusRoot = flagBusRoot
	}
	if flagRoster != "" {
		overrides.RosterPath = flagRoster
	}
	if flagOutput != "" {
		overrides.Output = flagOutput
	}
	if flagVerbose {
		overrides.Verbose = true
	}
	return config.Load(overrides)
}

// appContext bundles the bus, roster, and resolved config a command needs.
type appContext struct {
	Bus    *bus.Bus
	Roster *roster.Roster
	Config *config.Config
}

func loadAppContext() (*appContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	r, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return &appContext{
		Bus:    bus.New(cfg.BusRoot),
		Roster: r,
		Config: cfg,
	}, nil
}

// newLogger builds the structured logger for long-running commands (work).
// CLI commands that just print a table or JSON to stdout don't take one:
// operational logging and direct user output are kept on separate paths.
func newLogger(cfg *config.Config) *zap.SugaredLogger {
	zapCfg := zap.NewProductionConfig()
	if cfg.Verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// scanPolicy resolves the configured suspicious-content policy into a
// packet.ScanPolicy, defaulting to block on an unrecognized value.
func scanPolicy(cfg *config.Config) packet.ScanPolicy {
	switch cfg.Scan.Policy {
	case "warn":
		return packet.PolicyWarn
	case "allow":
		return packet.PolicyAllow
	default:
		return packet.PolicyBlock
	}
}

func outputFormat(cfg *config.Config) string {
	if flagOutput != "" {
		return flagOutput
	}
	return cfg.Output
}
