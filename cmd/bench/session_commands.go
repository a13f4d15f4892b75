package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"benchd/internal/ipc"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Drive the active assembly session",
	}

	sessionCmd.AddCommand(newSessionLoginCommand(ctx))
	sessionCmd.AddCommand(newSessionLogoutCommand(ctx))
	sessionCmd.AddCommand(newSessionBindCommand(ctx))
	sessionCmd.AddCommand(newSessionStageCommand(ctx))
	sessionCmd.AddCommand(newSessionPauseCommand(ctx))
	sessionCmd.AddCommand(newSessionResumeCommand(ctx))
	sessionCmd.AddCommand(newSessionFinalizeCommand(ctx))
	sessionCmd.AddCommand(newSessionAbortCommand(ctx))

	return sessionCmd
}

func printBench(cmd *cobra.Command, bench ipc.BenchStatus) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Bench %s: %s", bench.BenchID, bench.State)
	if bench.EmployeeName != "" {
		fmt.Fprintf(stdout, ", operator %s", bench.EmployeeName)
	}
	if bench.UnitID != "" {
		fmt.Fprintf(stdout, ", unit %s", bench.UnitID)
	}
	if bench.OpenStage != "" {
		fmt.Fprintf(stdout, ", stage %s open", bench.OpenStage)
	}
	fmt.Fprintln(stdout)
}

func newSessionLoginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login <card-id>",
		Short: "Authorize an operator by RFID card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Login(args[0])
				if err != nil {
					return err
				}
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}
}

func newSessionLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Release the operator binding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Logout()
				if err != nil {
					return err
				}
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}
}

func newSessionBindCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "bind <barcode>",
		Short: "Claim a production unit by barcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BindUnit(args[0])
				if err != nil {
					return err
				}
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}
}

func newSessionStageCommand(ctx *commandContext) *cobra.Command {
	stageCmd := &cobra.Command{
		Use:   "stage",
		Short: "Open and close production stages",
	}

	startCmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Open a production stage (starts recording)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StartStage(args[0])
				if err != nil {
					return err
				}
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}

	var outcome string
	endCmd := &cobra.Command{
		Use:   "end",
		Short: "Close the open stage (stops recording)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EndStage(outcome)
				if err != nil {
					return err
				}
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}
	endCmd.Flags().StringVar(&outcome, "outcome", "completed", "Stage outcome: completed, failed, or skipped")

	stageCmd.AddCommand(startCmd)
	stageCmd.AddCommand(endCmd)
	return stageCmd
}

func newSessionPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Suspend the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if err != nil {
					return err
				}
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}
}

func newSessionResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Return a paused session to work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume()
				if err != nil {
					return err
				}
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}
}

func newSessionFinalizeCommand(ctx *commandContext) *cobra.Command {
	var subunits []string
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Freeze the session into an evidence record and queue publication",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Finalize(subunits)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Evidence record %s (payload hash %s)\n", resp.RecordID, resp.PayloadHash)
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&subunits, "subunit", nil, "Evidence record id of an embedded sub-unit (repeatable)")
	return cmd
}

func newSessionAbortCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Discard the active session and release the unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Abort(reason)
				if err != nil {
					return err
				}
				printBench(cmd, resp.Bench)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "operator request", "Reason recorded on the aborted session")
	return cmd
}
