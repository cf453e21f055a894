package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBrowseCmd(opts *options) *cobra.Command {
	var (
		listIDs []string
		pages   int
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through the strings of the selected lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 1 {
				return fmt.Errorf("--pages must be at least 1")
			}

			ctx := cmd.Context()
			s, _, err := openSession(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := s.Select(listIDs...); err != nil {
				return err
			}

			if err := s.LoadData(ctx); err != nil {
				return err
			}
			for i := 1; i < pages && s.View().HasMore; i++ {
				if err := s.LoadMore(ctx); err != nil {
					return err
				}
			}

			view := s.View()
			catalog := s.Catalog()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, view.Selection.Summary(catalog))
			if len(view.Entries) == 0 {
				fmt.Fprintln(out, "No strings found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PHONE NUMBER\tLIST\tORGANIZATION")
			for _, e := range view.Entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Value, catalog.NameOf(e.ListID), e.OrganizationID)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			more := "no"
			if view.HasMore {
				more = "yes"
			}
			fmt.Fprintf(out, "Showing %d strings (page %d, more available: %s)\n", len(view.Entries), view.Page+1, more)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&listIDs, "list", "l", nil, "Exclude list id to include (repeatable)")
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to load")
	cmd.MarkFlagRequired("list")
	return cmd
}
