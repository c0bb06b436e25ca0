package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/packet"
)

var (
	sendTextTo             string
	sendTextTitle          string
	sendTextBody           string
	sendTextBodyFile       string
	sendTextBodyStdin      bool
	sendTextKind           string
	sendTextPhase          string
	sendTextRootID         string
	sendTextParentID       string
	sendTextPriority       string
	sendTextSignalsJSON    string
	sendTextReferencesJSON string
	sendTextSmoke          bool
)

var sendTextCmd = &cobra.Command{
	Use:   "send-text",
	Short: "Synthesize and deliver a packet from flags",
	RunE:  runSendText,
}

func init() {
	sendTextCmd.Flags().StringVar(&sendTextTo, "to", "", "comma-separated recipient names (required)")
	sendTextCmd.Flags().StringVar(&sendTextTitle, "title", "", "packet title (required)")
	sendTextCmd.Flags().StringVar(&sendTextBody, "body", "", "packet body text")
	sendTextCmd.Flags().StringVar(&sendTextBodyFile, "body-file", "", "read the body from this file")
	sendTextCmd.Flags().BoolVar(&sendTextBodyStdin, "body-stdin", false, "read the body from stdin")
	sendTextCmd.Flags().StringVar(&sendTextKind, "kind", "", "signals.kind")
	sendTextCmd.Flags().StringVar(&sendTextPhase, "phase", "", "signals.phase")
	sendTextCmd.Flags().StringVar(&sendTextRootID, "root-id", "", "signals.rootId")
	sendTextCmd.Flags().StringVar(&sendTextParentID, "parent-id", "", "signals.parentId")
	sendTextCmd.Flags().StringVar(&sendTextPriority, "priority", "", "packet priority")
	sendTextCmd.Flags().StringVar(&sendTextSignalsJSON, "signals-json", "", "extra signals as a JSON object, merged in")
	sendTextCmd.Flags().StringVar(&sendTextReferencesJSON, "references-json", "", "references as a JSON object")
	sendTextCmd.Flags().BoolVar(&sendTextSmoke, "smoke", false, "mark signals.smoke true")
	rootCmd.AddCommand(sendTextCmd)
}

func runSendText(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(sendTextTo) == "" {
		return fmt.Errorf("--to is required")
	}
	if strings.TrimSpace(sendTextTitle) == "" {
		return fmt.Errorf("--title is required")
	}

	body, err := resolveBody(sendTextBody, sendTextBodyFile, sendTextBodyStdin)
	if err != nil {
		return err
	}

	signals, err := mergedJSONObject(sendTextSignalsJSON)
	if err != nil {
		return fmt.Errorf("--signals-json: %w", err)
	}
	if sendTextKind != "" {
		signals["kind"] = sendTextKind
	}
	if sendTextPhase != "" {
		signals["phase"] = sendTextPhase
	}
	if sendTextRootID != "" {
		signals["rootId"] = sendTextRootID
	}
	if sendTextParentID != "" {
		signals["parentId"] = sendTextParentID
	}
	if sendTextSmoke {
		signals["smoke"] = true
	}

	references, err := mergedJSONObject(sendTextReferencesJSON)
	if err != nil {
		return fmt.Errorf("--references-json: %w", err)
	}

	hdr := packet.Header{
		ID:         uuid.NewString(),
		To:         splitAndTrim(sendTextTo),
		From:       "cli",
		Priority:   sendTextPriority,
		Title:      sendTextTitle,
		Signals:    signals,
		References: references,
	}

	app, err := loadAppContext()
	if err != nil {
		return err
	}

	result, err := app.Bus.Deliver(hdr, body, app.Roster.KnownAgents(), scanPolicy(app.Config))
	if err != nil {
		return err
	}

	fmt.Printf("delivered %s\n", hdr.ID)
	for recipient, path := range result.Paths {
		fmt.Printf("  %s -> %s\n", recipient, path)
	}
	for _, hit := range result.Hits {
		fmt.Fprintf(os.Stderr, "WARNING: suspicious content matched rule %s: %q\n", hit.Rule, hit.Snippet)
	}
	return nil
}

func resolveBody(inline, file string, useStdin bool) (string, error) {
	switch {
	case useStdin:
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	default:
		return inline, nil
	}
}

func mergedJSONObject(raw string) (map[string]any, error) {
	obj := make(map[string]any)
	if strings.TrimSpace(raw) == "" {
		return obj, nil
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
