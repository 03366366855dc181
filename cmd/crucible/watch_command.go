package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crucible/internal/api"
	"crucible/internal/events"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Stream live status updates for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			return watchTask(cmd, apiClient, args[0])
		},
	}
	return cmd
}

// watchTask follows a task's event stream until it reaches a terminal
// status. Shared by watch and submit --watch.
func watchTask(cmd *cobra.Command, apiClient *client, id string) error {
	out := cmd.OutOrStdout()
	var failure error

	onSnapshot := func(task api.TaskView) error {
		fmt.Fprintf(out, "%s  %s\n", task.Input.Name, task.Status)
		for _, stg := range task.Stages {
			if stg.Status == "idle" {
				continue
			}
			fmt.Fprintf(out, "  %-10s %s\n", stg.Name, stg.Status)
		}
		return nil
	}

	onEvent := func(ev events.Event) error {
		switch ev.Type {
		case events.TypeStage:
			line := fmt.Sprintf("  %-10s %s", ev.Stage, ev.Status)
			if ev.Attempt > 1 {
				line += fmt.Sprintf(" (attempt %d)", ev.Attempt)
			}
			if ev.Error != "" {
				line += ": " + ev.Error
			}
			fmt.Fprintln(out, line)
		case events.TypeTask:
			fmt.Fprintf(out, "task %s\n", ev.Status)
			if ev.Status == "failed" {
				failure = fmt.Errorf("task %s failed: %s", shortID(ev.TaskID), ev.Error)
			}
		case events.TypeNotice:
			fmt.Fprintf(out, "notice: %s\n", ev.Error)
		}
		return nil
	}

	if err := apiClient.watch(cmd.Context(), id, onSnapshot, onEvent); err != nil {
		return err
	}
	return failure
}
