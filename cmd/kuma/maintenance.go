package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/autokuma/autokuma/pkg/kuma"
)

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Manage maintenance windows",
	}

	var file string

	list := &cobra.Command{
		Use:   "list",
		Short: "List all maintenance windows",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				maintenances, err := client.GetMaintenances()
				if err != nil {
					return err
				}
				return emit(maintenances)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one maintenance window including its bindings",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				maintenance, err := client.GetMaintenance(ctx, id)
				if err != nil {
					return err
				}
				return emit(maintenance)
			})
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a maintenance window from a file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var maintenance kuma.Maintenance
			if err := readPayload(file, &maintenance); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.AddMaintenance(ctx, &maintenance); err != nil {
					return err
				}
				return emit(maintenance)
			})
		},
	}

	edit := &cobra.Command{
		Use:   "edit",
		Short: "Save a maintenance window from a file (must carry its id)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var maintenance kuma.Maintenance
			if err := readPayload(file, &maintenance); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.EditMaintenance(ctx, &maintenance); err != nil {
					return err
				}
				return emit(maintenance)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a maintenance window",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.DeleteMaintenance(ctx, id)
			})
		},
	}

	pause := &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a maintenance window",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.PauseMaintenance(ctx, id)
			})
		},
	}

	resume := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused maintenance window",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.ResumeMaintenance(ctx, id)
			})
		},
	}

	add.Flags().StringVarP(&file, "file", "f", "-", "maintenance definition (JSON or YAML, - for stdin)")
	edit.Flags().StringVarP(&file, "file", "f", "-", "maintenance definition (JSON or YAML, - for stdin)")

	cmd.AddCommand(list, get, add, edit, del, pause, resume)
	return cmd
}
