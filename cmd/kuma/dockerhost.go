package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autokuma/autokuma/pkg/kuma"
)

func dockerHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docker-host",
		Short: "Manage docker hosts",
	}

	var file string

	list := &cobra.Command{
		Use:   "list",
		Short: "List all docker hosts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				hosts, err := client.GetDockerHosts()
				if err != nil {
					return err
				}
				return emit(hosts)
			})
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Register a docker host from a file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var host kuma.DockerHost
			if err := readPayload(file, &host); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.AddDockerHost(ctx, &host); err != nil {
					return err
				}
				return emit(host)
			})
		},
	}

	edit := &cobra.Command{
		Use:   "edit",
		Short: "Save a docker host from a file (must carry its id)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var host kuma.DockerHost
			if err := readPayload(file, &host); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.EditDockerHost(ctx, &host); err != nil {
					return err
				}
				return emit(host)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a docker host",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.DeleteDockerHost(ctx, id)
			})
		},
	}

	test := &cobra.Command{
		Use:   "test",
		Short: "Ask the server to probe a docker host definition",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var host kuma.DockerHost
			if err := readPayload(file, &host); err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				msg, err := client.TestDockerHost(ctx, &host)
				if err != nil {
					return err
				}
				fmt.Println(msg)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{add, edit, test} {
		c.Flags().StringVarP(&file, "file", "f", "-", "docker host definition (JSON or YAML, - for stdin)")
	}

	cmd.AddCommand(list, add, edit, del, test)
	return cmd
}
