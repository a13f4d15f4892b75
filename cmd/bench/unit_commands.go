package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"benchd/internal/ipc"
)

func newUnitCommand(ctx *commandContext) *cobra.Command {
	unitCmd := &cobra.Command{
		Use:   "unit",
		Short: "Manage production units",
	}

	var composite bool
	createCmd := &cobra.Command{
		Use:   "create <model>",
		Short: "Register a new production unit and print its barcode label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CreateUnit(args[0], composite)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Unit %s created\n", resp.UnitID)
				fmt.Fprintf(stdout, "Barcode: %s\n", resp.Barcode)
				return nil
			})
		},
	}
	createCmd.Flags().BoolVar(&composite, "composite", false, "Unit embeds finalized sub-units")

	unitCmd.AddCommand(createCmd)
	return unitCmd
}

func newModelCommand(ctx *commandContext) *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Manage unit model definitions",
	}

	var requiresMedia bool
	requireCmd := &cobra.Command{
		Use:   "require <model> <stage>",
		Short: "Mark a stage as mandatory for a model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				_, err := client.SetModelRequirement(ipc.SetModelRequirementRequest{
					Model:         args[0],
					Stage:         args[1],
					RequiresMedia: requiresMedia,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s now requires stage %s\n", args[0], args[1])
				return nil
			})
		},
	}
	requireCmd.Flags().BoolVar(&requiresMedia, "media", false, "Completed runs of the stage must carry a recording")

	modelCmd.AddCommand(requireCmd)
	return modelCmd
}

func newEmployeeCommand(ctx *commandContext) *cobra.Command {
	employeeCmd := &cobra.Command{
		Use:   "employee",
		Short: "Manage employee records",
	}

	var cardID, name, position string
	addCmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Register or update an employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				_, err := client.AddEmployee(ipc.AddEmployeeRequest{
					ID:       args[0],
					CardID:   cardID,
					Name:     name,
					Position: position,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Employee %s saved\n", args[0])
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&cardID, "card", "", "RFID card id (required)")
	addCmd.Flags().StringVar(&name, "name", "", "Display name")
	addCmd.Flags().StringVar(&position, "position", "", "Position title")
	_ = addCmd.MarkFlagRequired("card")

	employeeCmd.AddCommand(addCmd)
	return employeeCmd
}
