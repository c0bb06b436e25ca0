package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentbusio/agentbus/internal/bus"
	"github.com/agentbusio/agentbus/internal/formatter"
)

var (
	openTasksAgent  string
	openTasksRootID string
	openTasksLimit  int
	openTasksFormat string
)

var openTasksCmd = &cobra.Command{
	Use:   "open-tasks",
	Short: "List tasks in any non-terminal state",
	RunE:  runOpenTasks,
}

func init() {
	openTasksCmd.Flags().StringVar(&openTasksAgent, "agent", "", "restrict to one agent (default: all)")
	openTasksCmd.Flags().StringVar(&openTasksRootID, "root-id", "", "restrict to tasks sharing this root id")
	openTasksCmd.Flags().IntVar(&openTasksLimit, "limit", 0, "maximum number of tasks to show (0: unlimited)")
	openTasksCmd.Flags().StringVar(&openTasksFormat, "format", "lines", "output format: lines|json")
	rootCmd.AddCommand(openTasksCmd)
}

type openTask struct {
	Agent  string `json:"agent"`
	ID     string `json:"id"`
	State  string `json:"state"`
	Title  string `json:"title"`
	RootID string `json:"rootId,omitempty"`
}

func runOpenTasks(cmd *cobra.Command, args []string) error {
	app, err := loadAppContext()
	if err != nil {
		return err
	}

	agents := []string{openTasksAgent}
	if openTasksAgent == "" {
		agents = app.Roster.AgentNames()
	}

	var tasks []openTask
	for _, agent := range agents {
		for _, state := range []bus.State{bus.StateNew, bus.StateSeen, bus.StateInProgress} {
			ids, err := app.Bus.ListInboxTaskIds(agent, state)
			if err != nil {
				return fmt.Errorf("list %s/%s: %w", agent, state, err)
			}
			for _, id := range ids {
				hdr, _, _, err := app.Bus.OpenTask(agent, id, false)
				if err != nil {
					return fmt.Errorf("open %s/%s: %w", agent, id, err)
				}
				rootID := hdr.RootID()
				if openTasksRootID != "" && rootID != openTasksRootID {
					continue
				}
				tasks = append(tasks, openTask{Agent: agent, ID: id, State: string(state), Title: hdr.Title, RootID: rootID})
			}
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Agent != tasks[j].Agent {
			return tasks[i].Agent < tasks[j].Agent
		}
		return tasks[i].ID < tasks[j].ID
	})
	if openTasksLimit > 0 && len(tasks) > openTasksLimit {
		tasks = tasks[:openTasksLimit]
	}

	if openTasksFormat == "json" {
		encoded, err := json.MarshalIndent(tasks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	table := formatter.NewTable(os.Stdout, "AGENT", "TASK_ID", "STATE", "TITLE").
		SetEmptyMessage("(no open tasks)")
	for _, t := range tasks {
		table.AddRow(t.Agent, t.ID, t.State, t.Title)
	}
	return table.Render()
}
