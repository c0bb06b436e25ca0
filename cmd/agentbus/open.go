package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/packet"
)

var (
	openAgent      string
	openID         string
	openNoMarkSeen bool
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Print a packet, marking it seen unless suppressed",
	RunE:  runOpen,
}

func init() {
	openCmd.Flags().StringVar(&openAgent, "agent", "", "owning agent (required)")
	openCmd.Flags().StringVar(&openID, "id", "", "task id (required)")
	openCmd.Flags().BoolVar(&openNoMarkSeen, "no-mark-seen", false, "do not promote new -> seen")
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	if openAgent == "" || openID == "" {
		return fmt.Errorf("--agent and --id are required")
	}

	app, err := loadAppContext()
	if err != nil {
		return err
	}

	hdr, body, path, err := app.Bus.OpenTask(openAgent, openID, !openNoMarkSeen)
	if err != nil {
		return err
	}

	rendered, err := packet.Render(hdr, body)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n", path)
	fmt.Println(rendered)
	return nil
}
