package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/autokuma/autokuma/pkg/kuma"
)

func notificationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Manage notification providers",
	}

	var file string

	list := &cobra.Command{
		Use:   "list",
		Short: "List all notification providers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				notifications, err := client.GetNotifications()
				if err != nil {
					return err
				}
				return emit(notifications)
			})
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a notification provider from a file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var notification kuma.Notification
			if err := readPayload(file, &notification); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.AddNotification(ctx, &notification); err != nil {
					return err
				}
				return emit(notification)
			})
		},
	}

	edit := &cobra.Command{
		Use:   "edit",
		Short: "Save a notification provider from a file (must carry its id)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var notification kuma.Notification
			if err := readPayload(file, &notification); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.EditNotification(ctx, &notification); err != nil {
					return err
				}
				return emit(notification)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.DeleteNotification(ctx, id)
			})
		},
	}

	add.Flags().StringVarP(&file, "file", "f", "-", "notification definition (JSON or YAML, - for stdin)")
	edit.Flags().StringVarP(&file, "file", "f", "-", "notification definition (JSON or YAML, - for stdin)")

	cmd.AddCommand(list, add, edit, del)
	return cmd
}
