package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/autokuma/autokuma/pkg/kuma"
)

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Manage monitors",
	}

	var file string

	list := &cobra.Command{
		Use:   "list",
		Short: "List all monitors",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				monitors, err := client.GetMonitors()
				if err != nil {
					return err
				}
				return emit(monitors)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				monitor, err := client.GetMonitor(ctx, id)
				if err != nil {
					return err
				}
				return emit(monitor)
			})
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a monitor from a file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var monitor kuma.Monitor
			if err := readPayload(file, &monitor); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.AddMonitor(ctx, &monitor); err != nil {
					return err
				}
				return emit(monitor)
			})
		},
	}

	edit := &cobra.Command{
		Use:   "edit",
		Short: "Save a monitor from a file (must carry its id)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var monitor kuma.Monitor
			if err := readPayload(file, &monitor); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.EditMonitor(ctx, &monitor); err != nil {
					return err
				}
				return emit(monitor)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.DeleteMonitor(ctx, id)
			})
		},
	}

	pause := &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.PauseMonitor(ctx, id)
			})
		},
	}

	resume := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.ResumeMonitor(ctx, id)
			})
		},
	}

	add.Flags().StringVarP(&file, "file", "f", "-", "monitor definition (JSON or YAML, - for stdin)")
	edit.Flags().StringVarP(&file, "file", "f", "-", "monitor definition (JSON or YAML, - for stdin)")

	cmd.AddCommand(list, get, add, edit, del, pause, resume)
	return cmd
}
