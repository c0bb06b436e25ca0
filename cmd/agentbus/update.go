package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/bus"
)

var (
	updateAgent          string
	updateID             string
	updateAppend         string
	updateAppendFile     string
	updateAppendStdin    bool
	updateTitle          string
	updatePriority       string
	updateSignalsJSON    string
	updateReferencesJSON string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Mid-flight edit of an unprocessed packet",
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateAgent, "agent", "", "owning agent (required)")
	updateCmd.Flags().StringVar(&updateID, "id", "", "task id (required)")
	updateCmd.Flags().StringVar(&updateAppend, "append", "", "text to append to the body")
	updateCmd.Flags().StringVar(&updateAppendFile, "append-file", "", "read the appended text from this file")
	updateCmd.Flags().BoolVar(&updateAppendStdin, "append-stdin", false, "read the appended text from stdin")
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVar(&updatePriority, "priority", "", "new priority")
	updateCmd.Flags().StringVar(&updateSignalsJSON, "signals-json", "", "signals to merge in, as a JSON object")
	updateCmd.Flags().StringVar(&updateReferencesJSON, "references-json", "", "references to merge in, as a JSON object")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if updateAgent == "" || updateID == "" {
		return fmt.Errorf("--agent and --id are required")
	}

	note, err := resolveBody(updateAppend, updateAppendFile, updateAppendStdin)
	if err != nil {
		return err
	}

	signals, err := mergedJSONObject(updateSignalsJSON)
	if err != nil {
		return fmt.Errorf("--signals-json: %w", err)
	}
	references, err := mergedJSONObject(updateReferencesJSON)
	if err != nil {
		return fmt.Errorf("--references-json: %w", err)
	}

	app, err := loadAppContext()
	if err != nil {
		return err
	}

	patch := bus.UpdatePatch{
		Title:      updateTitle,
		Priority:   updatePriority,
		Signals:    signals,
		References: references,
	}
	if err := app.Bus.Update(updateAgent, updateID, patch, "cli", note); err != nil {
		return err
	}
	fmt.Printf("updated %s/%s\n", updateAgent, updateID)
	return nil
}
