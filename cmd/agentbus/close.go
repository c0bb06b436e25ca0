package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/closure"
)

var (
	closeAgent              string
	closeID                 string
	closeOutcome            string
	closeNote               string
	closeCommitSHA          string
	closeReceiptJSON        string
	closeReceiptFile        string
	closeNoNotifyOrchestrator bool
)

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close a packet with a receipt",
	RunE:  runClose,
}

func init() {
	closeCmd.Flags().StringVar(&closeAgent, "agent", "", "owning agent (required)")
	closeCmd.Flags().StringVar(&closeID, "id", "", "task id (required)")
	closeCmd.Flags().StringVar(&closeOutcome, "outcome", "done", "closure outcome")
	closeCmd.Flags().StringVar(&closeNote, "note", "", "closure note")
	closeCmd.Flags().StringVar(&closeCommitSHA, "commit-sha", "", "commit SHA produced by this task")
	closeCmd.Flags().StringVar(&closeReceiptJSON, "receipt-json", "", "extra receipt fields, as a JSON object")
	closeCmd.Flags().StringVar(&closeReceiptFile, "receipt-file", "", "read extra receipt fields from this JSON file")
	closeCmd.Flags().BoolVar(&closeNoNotifyOrchestrator, "no-notify-orchestrator", false, "suppress the TASK_COMPLETE notice")
	rootCmd.AddCommand(closeCmd)
}

func runClose(cmd *cobra.Command, args []string) error {
	if closeAgent == "" || closeID == "" {
		return fmt.Errorf("--agent and --id are required")
	}

	extra, err := resolveReceiptExtra(closeReceiptJSON, closeReceiptFile)
	if err != nil {
		return err
	}

	app, err := loadAppContext()
	if err != nil {
		return err
	}

	result, err := closure.Close(app.Bus, app.Roster, closure.Request{
		Agent:              closeAgent,
		TaskID:             closeID,
		Outcome:            closeOutcome,
		Note:               closeNote,
		CommitSHA:          closeCommitSHA,
		ReceiptExtra:       extra,
		NotifyOrchestrator: !closeNoNotifyOrchestrator,
	})
	if err != nil {
		return err
	}

	fmt.Printf("closed %s/%s -> %s\n", closeAgent, closeID, result.ReceiptPath)
	if result.Notified {
		fmt.Printf("notified orchestrator as %s\n", result.NotifyTaskID)
	}
	return nil
}

func resolveReceiptExtra(inlineJSON, file string) (map[string]any, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return mergedJSONObject(string(data))
	}
	return mergedJSONObject(inlineJSON)
}
