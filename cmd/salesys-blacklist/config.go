package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration is valid")
			fmt.Fprintf(out, "  Base URL: %s\n", cfg.API.BaseURL)
			if cfg.API.Direct {
				fmt.Fprintln(out, "  Proxy: disabled")
			} else {
				fmt.Fprintf(out, "  Proxy: %s\n", cfg.API.ProxyURL)
			}
			fmt.Fprintf(out, "  Page size: %d, batch size: %d, batch delay: %s\n",
				cfg.Pagination.PageSize, cfg.Pagination.BatchSize, cfg.Pagination.BatchDelay)
			fmt.Fprintf(out, "  Export: %s (%s)\n", cfg.Export.Dir, cfg.Export.Format)
			return nil
		},
	})
	return configCmd
}
