package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"crucible/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var start bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a source file for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}

			view, err := apiClient.submit(cmd.Context(), api.SubmitRequest{
				Filename: filepath.Base(args[0]),
				Content:  string(content),
				Start:    start || watch,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "submitted task %s (%s)\n", view.ID, view.Status)
			if watch {
				return watchTask(cmd, apiClient, view.ID)
			}
			if !start {
				fmt.Fprintf(cmd.OutOrStdout(), "run 'crucible watch %s' after starting it\n", view.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&start, "start", false, "Start the pipeline immediately")
	cmd.Flags().BoolVar(&watch, "watch", false, "Start and follow the pipeline until it finishes")
	return cmd
}
