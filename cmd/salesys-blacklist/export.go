package main

import (
	"fmt"

	"github.com/Sternrassler/salesys-blacklist/pkg/export"
	"github.com/Sternrassler/salesys-blacklist/pkg/session"
	"github.com/spf13/cobra"
)

func newExportCmd(opts *options) *cobra.Command {
	var (
		listIDs []string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every string of the selected lists to a spreadsheet",
		Long: `Export fetches all strings of the selected lists in batches and writes them
to a single file with the columns Phone Number, List ID, List Name and
Organization ID. Nothing is written when a batch fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, _, err := openSession(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if all {
				for _, l := range s.Catalog().Lists() {
					listIDs = append(listIDs, l.ID)
				}
			}
			if err := s.Select(listIDs...); err != nil {
				return err
			}

			notes, unsubscribe := s.Subscribe(8)
			defer unsubscribe()

			res, err := s.Export(ctx)
			printNotifications(cmd, notes)
			if err != nil {
				return err
			}

			if res.Outcome == export.OutcomeExported {
				fmt.Fprintln(cmd.OutOrStdout(), res.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&listIDs, "list", "l", nil, "Exclude list id to include (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Export every available list")
	cmd.Flags().StringVar(&opts.format, "format", "", "Output format (xlsx, csv)")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Output directory")
	return cmd
}

// printNotifications writes the queued session notifications to stderr.
func printNotifications(cmd *cobra.Command, notes <-chan session.Notification) {
	for {
		select {
		case n := <-notes:
			prefix := ""
			if n.IsError() {
				prefix = "error: "
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s%s: %s\n", prefix, n.Title, n.Description)
		default:
			return
		}
	}
}
