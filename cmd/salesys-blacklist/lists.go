package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "List the exclude lists visible to the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			catalog := s.Catalog()
			out := cmd.OutOrStdout()
			if catalog.Len() == 0 {
				fmt.Fprintln(out, "No blacklists found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tORGANIZATION")
			for _, l := range catalog.Lists() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, l.Name, l.TypeLabel(), l.OrganizationID)
			}
			return w.Flush()
		},
	}
}
