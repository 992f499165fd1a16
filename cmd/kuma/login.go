package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autokuma/autokuma/pkg/kuma"
)

func loginCmd() *cobra.Command {
	var store bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and optionally cache the session token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				token := client.AuthToken()
				if token == "" {
					return fmt.Errorf("login did not produce a session token")
				}
				if store {
					if err := storeToken(token); err != nil {
						return fmt.Errorf("caching token: %w", err)
					}
					fmt.Println("Token stored.")
					return nil
				}
				fmt.Println(token)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&store, "store-token", false, "cache the session token for later invocations")
	return cmd
}

func databaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "database",
		Short: "Server database utilities (SQLite only)",
	}

	size := &cobra.Command{
		Use:   "size",
		Short: "Show the server database size in bytes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				size, err := client.GetDatabaseSize(ctx)
				if err != nil {
					return err
				}
				fmt.Println(size)
				return nil
			})
		},
	}

	shrink := &cobra.Command{
		Use:   "shrink",
		Short: "Trigger a VACUUM on the server database",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.ShrinkDatabase(ctx)
			})
		},
	}

	cmd.AddCommand(size, shrink)
	return cmd
}
