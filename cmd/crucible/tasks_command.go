package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"crucible/internal/api"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := apiClient.listTasks(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			if len(list.Tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
				return nil
			}

			rows := make([]table.Row, 0, len(list.Tasks))
			for _, task := range list.Tasks {
				rows = append(rows, table.Row{
					shortID(task.ID),
					task.Input.Name,
					task.Status,
					currentStage(task),
					qualityLabel(task),
					humanAge(task.UpdatedAt),
				})
			}
			renderTable(cmd.OutOrStdout(), table.Row{"ID", "FILE", "STATUS", "STAGE", "QUALITY", "UPDATED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// currentStage labels the stage the task is at: the running stage, the
// failed stage, or a progress count.
func currentStage(task api.TaskView) string {
	completed := 0
	for _, stg := range task.Stages {
		switch stg.Status {
		case "running":
			return stg.Name
		case "failed":
			return stg.Name + " (failed)"
		case "completed":
			completed++
		}
	}
	return fmt.Sprintf("%d/%d", completed, len(task.Stages))
}

func qualityLabel(task api.TaskView) string {
	if task.Status != "completed" {
		return "-"
	}
	return fmt.Sprintf("%d", task.QualityScore)
}

func humanAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}
