package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start the pipeline for a submitted task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			view, err := apiClient.startTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s is %s\n", shortID(view.ID), view.Status)
			if watch {
				return watchTask(cmd, apiClient, view.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Follow the pipeline until it finishes")
	return cmd
}
