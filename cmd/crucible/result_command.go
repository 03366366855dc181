package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newResultCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var printFixed bool

	cmd := &cobra.Command{
		Use:   "result <task-id>",
		Short: "Fetch the assembled result of a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			res, err := apiClient.result(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task    %s\n", res.TaskID)
			fmt.Fprintf(out, "File    %s\n", res.Input.Name)
			fmt.Fprintf(out, "Status  %s\n", res.Status)
			if res.Error != "" {
				fmt.Fprintf(out, "Error   %s\n", res.Error)
			}
			if res.Status == "completed" {
				fmt.Fprintf(out, "Quality %d\n", res.QualityScore)
				if res.Diff != nil {
					fmt.Fprintf(out, "Diff    +%d -%d\n", res.Diff.AddedLines, res.Diff.RemovedLines)
				}
			}

			fmt.Fprintln(out)
			for _, stg := range res.Stages {
				header := fmt.Sprintf("== %s (%s", stg.Name, stg.Status)
				if stg.Attempt > 1 {
					header += fmt.Sprintf(", attempt %d", stg.Attempt)
				}
				if stg.Duration != nil {
					header += fmt.Sprintf(", %.1fs", *stg.Duration)
				}
				header += ") =="
				fmt.Fprintln(out, header)
				if stg.Report != "" {
					fmt.Fprintln(out, stg.Report)
				}
				if stg.Error != "" {
					fmt.Fprintln(out, stg.Error)
				}
				fmt.Fprintln(out)
			}

			if res.Fixed == nil {
				if outputPath != "" || printFixed {
					return fmt.Errorf("task %s produced no fixed artifact", shortID(res.TaskID))
				}
				return nil
			}
			if printFixed {
				fmt.Fprint(out, res.Fixed.Content)
			}
			if outputPath != "" {
				if err := os.WriteFile(outputPath, []byte(res.Fixed.Content), 0o644); err != nil {
					return fmt.Errorf("write fixed artifact: %w", err)
				}
				fmt.Fprintf(out, "wrote fixed artifact to %s\n", outputPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the fixed artifact to a file")
	cmd.Flags().BoolVar(&printFixed, "print", false, "print the fixed artifact to stdout")
	return cmd
}
