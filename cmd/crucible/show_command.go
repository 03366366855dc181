package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task and its stage progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			task, err := apiClient.getTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task    %s\n", task.ID)
			fmt.Fprintf(out, "File    %s (%d bytes)\n", task.Input.Name, task.Input.SizeBytes)
			fmt.Fprintf(out, "Status  %s\n", task.Status)
			if task.Error != "" {
				fmt.Fprintf(out, "Error   %s\n", task.Error)
			}
			if task.Status == "completed" {
				fmt.Fprintf(out, "Quality %d\n", task.QualityScore)
			}
			fmt.Fprintln(out)

			rows := make([]table.Row, 0, len(task.Stages))
			for _, stg := range task.Stages {
				detail := stg.Report
				if stg.Error != "" {
					detail = stg.Error
				}
				rows = append(rows, table.Row{stg.Name, stg.Status, stg.Attempt, truncate(detail, 60)})
			}
			renderTable(out, table.Row{"STAGE", "STATUS", "ATTEMPT", "DETAIL"}, rows)
			return nil
		},
	}
	return cmd
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}
