package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cvforge/internal/templates"
)

func newTemplatesCmd(flags *dbFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect custom templates",
	}

	list := &cobra.Command{
		Use:   "list <account-id>",
		Short: "List an account's custom templates, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			db, err := flags.open()
			if err != nil {
				return err
			}
			store := templates.NewStore(db)
			items, err := store.List(cmd.Context(), id)
			if err != nil {
				return err
			}
			usage, err := store.Usage(cmd.Context(), id)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBYTES\tACTIVE\tCREATED")
			for _, t := range items {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", t.TemplateID(), t.Name, t.SizeBytes, t.IsActive, t.CreatedAt.Format("2006-01-02 15:04"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			cmd.Printf("%d templates, %d bytes\n", usage.Count, usage.TotalBytes)
			return nil
		},
	}

	cmd.AddCommand(list)
	return cmd
}
