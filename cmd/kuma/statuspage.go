package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/autokuma/autokuma/pkg/kuma"
)

func statusPageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status-page",
		Short: "Manage status pages",
	}

	var file string

	list := &cobra.Command{
		Use:   "list",
		Short: "List all status pages",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				pages, err := client.GetStatusPages()
				if err != nil {
					return err
				}
				return emit(pages)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <slug>",
		Short: "Show one status page including its public groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				page, err := client.GetStatusPage(ctx, args[0])
				if err != nil {
					return err
				}
				return emit(page)
			})
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a status page from a file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var page kuma.StatusPage
			if err := readPayload(file, &page); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.AddStatusPage(ctx, &page); err != nil {
					return err
				}
				return emit(page)
			})
		},
	}

	edit := &cobra.Command{
		Use:   "edit",
		Short: "Save a status page from a file (must carry its slug)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var page kuma.StatusPage
			if err := readPayload(file, &page); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.EditStatusPage(ctx, &page); err != nil {
					return err
				}
				return emit(page)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <slug>",
		Short: "Delete a status page",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.DeleteStatusPage(ctx, args[0])
			})
		},
	}

	add.Flags().StringVarP(&file, "file", "f", "-", "status page definition (JSON or YAML, - for stdin)")
	edit.Flags().StringVarP(&file, "file", "f", "-", "status page definition (JSON or YAML, - for stdin)")

	cmd.AddCommand(list, get, add, edit, del)
	return cmd
}
