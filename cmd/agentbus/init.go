package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Materialize the bus root for the current roster",
	Long:  `Create inbox/receipts/artifacts/state directories for every agent named in the roster.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	app, err := loadAppContext()
	if err != nil {
		return err
	}
	if err := app.Bus.EnsureBusRoot(app.Roster); err != nil {
		return fmt.Errorf("ensure bus root: %w", err)
	}
	fmt.Printf("initialized bus root %s for %d agent(s)\n", app.Bus.Root, len(app.Roster.AgentNames()))
	return nil
}
