package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/formatter"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-agent packet counts by state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type agentStatus struct {
	Agent      string `json:"agent"`
	New        int    `json:"new"`
	Seen       int    `json:"seen"`
	InProgress int    `json:"inProgress"`
	Processed  int    `json:"processed"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := loadAppContext()
	if err != nil {
		return err
	}

	names := app.Roster.AgentNames()
	sort.Strings(names)

	report := make([]agentStatus, 0, len(names))
	for _, name := range names {
		as := agentStatus{Agent: name}
		for _, s := range []struct {
			state bus.State
			dst   *int
		}{
			{bus.StateNew, &as.New},
			{bus.StateSeen, &as.Seen},
			{bus.StateInProgress, &as.InProgress},
			{bus.StateProcessed, &as.Processed},
		} {
			ids, err := app.Bus.ListInboxTaskIds(name, s.state)
			if err != nil {
				return fmt.Errorf("list %s/%s: %w", name, s.state, err)
			}
			*s.dst = len(ids)
		}
		report = append(report, as)
	}

	if outputFormat(app.Config) == "json" {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	table := formatter.NewTable(os.Stdout, "AGENT", "NEW", "SEEN", "IN_PROGRESS", "PROCESSED").
		RightAlign(1, 2, 3, 4).
		SetEmptyMessage("(no agents configured)")
	for _, as := range report {
		table.AddRow(as.Agent, strconv.Itoa(as.New), strconv.Itoa(as.Seen), strconv.Itoa(as.InProgress), strconv.Itoa(as.Processed))
	}
	return table.Render()
}
