package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/autokuma/autokuma/pkg/kuma"
)

func tagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tags",
	}

	var name, color string

	list := &cobra.Command{
		Use:   "list",
		Short: "List all tags",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, client *kuma.Client) error {
				tags, err := client.GetTags(ctx)
				if err != nil {
					return err
				}
				return emit(tags)
			})
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a tag",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			tag := kuma.TagDefinition{Name: &name, Color: &color}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.AddTag(ctx, &tag); err != nil {
					return err
				}
				return emit(tag)
			})
		},
	}

	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename or recolor a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			tagID := kuma.Int(id)
			tag := kuma.TagDefinition{ID: &tagID, Name: &name, Color: &color}
			return run(func(ctx context.Context, client *kuma.Client) error {
				if err := client.EditTag(ctx, &tag); err != nil {
					return err
				}
				return emit(tag)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, client *kuma.Client) error {
				return client.DeleteTag(ctx, id)
			})
		},
	}

	for _, c := range []*cobra.Command{add, edit} {
		c.Flags().StringVar(&name, "name", "", "tag name")
		c.Flags().StringVar(&color, "color", "#42C0FB", "tag color")
		_ = c.MarkFlagRequired("name")
	}

	cmd.AddCommand(list, add, edit, del)
	return cmd
}
