package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/formatter"
)

var (
	recentAgent  string
	recentLimit  int
	recentFormat string
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent closure receipts",
	RunE:  runRecent,
}

func init() {
	recentCmd.Flags().StringVar(&recentAgent, "agent", "", "restrict to one agent (default: all)")
	recentCmd.Flags().IntVar(&recentLimit, "limit", 20, "maximum number of receipts to show")
	recentCmd.Flags().StringVar(&recentFormat, "format", "lines", "output format: lines|json")
	rootCmd.AddCommand(recentCmd)
}

func runRecent(cmd *cobra.Command, args []string) error {
	app, err := loadAppContext()
	if err != nil {
		return err
	}

	agents := []string{recentAgent}
	if recentAgent == "" {
		agents = app.Roster.AgentNames()
	}

	var receipts []bus.Receipt
	for _, agent := range agents {
		rs, err := listReceipts(app.Bus, agent)
		if err != nil {
			return err
		}
		receipts = append(receipts, rs...)
	}

	sort.Slice(receipts, func(i, j int) bool { return receipts[i].ClosedAt > receipts[j].ClosedAt })
	if recentLimit > 0 && len(receipts) > recentLimit {
		receipts = receipts[:recentLimit]
	}

	if recentFormat == "json" {
		encoded, err := json.MarshalIndent(receipts, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	table := formatter.NewTable(os.Stdout, "CLOSED_AT", "AGENT", "TASK_ID", "OUTCOME", "NOTE").
		SetMaxWidth(4, 60).
		SetEmptyMessage("(no closure receipts)")
	for _, r := range receipts {
		table.AddRow(r.ClosedAt, r.Agent, r.TaskID, r.Outcome, firstLine(r.Note))
	}
	return table.Render()
}

func listReceipts(b *bus.Bus, agent string) ([]bus.Receipt, error) {
	dir := b.ReceiptsDir(agent)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var receipts []bus.Receipt
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		r, ok, err := b.ReadReceipt(agent, id)
		if err != nil {
			return nil, fmt.Errorf("read receipt %s/%s: %w", agent, id, err)
		}
		if ok {
			receipts = append(receipts, r)
		}
	}
	return receipts, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
