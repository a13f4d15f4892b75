package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"benchd/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: limit})
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Lines) == 0 {
					fmt.Fprintln(stdout, "No log lines available")
					return nil
				}
				for _, line := range resp.Lines {
					fmt.Fprintln(stdout, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "Number of lines to show")
	return cmd
}
