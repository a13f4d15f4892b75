package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"benchd/internal/ipc"
)

func newPublicationsCommand(ctx *commandContext) *cobra.Command {
	pubCmd := &cobra.Command{
		Use:     "publications",
		Aliases: []string{"pub"},
		Short:   "Inspect and manage the publication queue",
	}

	pubCmd.AddCommand(newPublicationsListCommand(ctx))
	pubCmd.AddCommand(newPublicationsRetryCommand(ctx))
	pubCmd.AddCommand(newPublicationsSkipCommand(ctx))

	return pubCmd
}

func newPublicationsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued publications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PublicationList(statuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Publications)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Publications) == 0 {
					fmt.Fprintln(stdout, "No publications found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Publications))
				for _, pub := range resp.Publications {
					rows = append(rows, []string{
						pub.RecordID,
						pub.Target,
						pub.Status,
						strconv.Itoa(pub.Attempts),
						formatNextAttempt(pub),
						pub.LastError,
					})
				}
				table := renderTable(
					[]string{"Record", "Target", "Status", "Attempts", "Next Attempt", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprint(stdout, table)
				fmt.Fprintln(stdout)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status: pending, inflight, succeeded, failed, skipped")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newPublicationsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <record-id> <target>",
		Short: "Return a parked publication to the queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PublicationRetry(args[0], args[1])
				if err != nil {
					return err
				}
				if resp.Changed {
					fmt.Fprintf(cmd.OutOrStdout(), "Publication %s/%s requeued\n", args[0], args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Publication %s/%s was not parked; nothing to do\n", args[0], args[1])
				}
				return nil
			})
		},
	}
}

func newPublicationsSkipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <record-id> <target>",
		Short: "Mark a publication skipped so workers never pick it up",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PublicationSkip(args[0], args[1])
				if err != nil {
					return err
				}
				if resp.Changed {
					fmt.Fprintf(cmd.OutOrStdout(), "Publication %s/%s skipped\n", args[0], args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Publication %s/%s already settled; nothing to do\n", args[0], args[1])
				}
				return nil
			})
		},
	}
}

func formatNextAttempt(pub ipc.Publication) string {
	if pub.Status != "pending" && pub.Status != "failed" {
		return ""
	}
	if pub.NextAttemptAt.IsZero() {
		return ""
	}
	if until := time.Until(pub.NextAttemptAt); until > time.Second {
		return fmt.Sprintf("in %s", until.Round(time.Second))
	}
	return "due"
}
