package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/packet"
)

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Deliver a packet from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	app, err := loadAppContext()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	hdr, body, err := packet.Parse(string(raw))
	if err != nil {
		return fmt.Errorf("parse packet: %w", err)
	}

	result, err := app.Bus.Deliver(hdr, body, app.Roster.KnownAgents(), scanPolicy(app.Config))
	if err != nil {
		return err
	}

	for recipient, path := range result.Paths {
		fmt.Printf("delivered %s -> %s (%s)\n", hdr.ID, recipient, path)
	}
	for _, hit := range result.Hits {
		fmt.Fprintf(os.Stderr, "WARNING: suspicious content matched rule %s: %q\n", hit.Rule, hit.Snippet)
	}
	return nil
}
