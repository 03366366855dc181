package main

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := apiClient.status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if resp.Healthy {
				fmt.Fprintln(out, "daemon: healthy")
			} else {
				fmt.Fprintln(out, "daemon: degraded")
			}

			rows := make([]table.Row, 0, len(resp.Stages))
			for _, stg := range resp.Stages {
				state := "ready"
				if !stg.Ready {
					state = "not ready"
				}
				rows = append(rows, table.Row{stg.Name, state, stg.Detail})
			}
			renderTable(out, table.Row{"STAGE", "STATE", "DETAIL"}, rows)

			statuses := make([]string, 0, len(resp.TaskCounts))
			for status := range resp.TaskCounts {
				statuses = append(statuses, status)
			}
			sort.Strings(statuses)
			fmt.Fprintln(out)
			for _, status := range statuses {
				fmt.Fprintf(out, "%-10s %d\n", status, resp.TaskCounts[status])
			}
			return nil
		},
	}
	return cmd
}
