// Command salesys-blacklist browses SaleSys exclude lists and exports them to
// a spreadsheet.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/salesys-blacklist/internal/config"
	"github.com/Sternrassler/salesys-blacklist/pkg/client"
	"github.com/Sternrassler/salesys-blacklist/pkg/export"
	"github.com/Sternrassler/salesys-blacklist/pkg/logging"
	"github.com/Sternrassler/salesys-blacklist/pkg/session"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configFile string
	token      string
	logLevel   string
	pretty     bool
	direct     bool
	format     string
	dir        string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "salesys-blacklist",
		Short: "Browse and export SaleSys exclude lists",
		Long: `salesys-blacklist authenticates against the SaleSys contacts API with a bearer
token, lists the available exclude lists, pages through their strings and
exports the combined result to a spreadsheet.

The token is read from --token or SALESYS_TOKEN and is never written to disk.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "Path to configuration file")
	pf.StringVar(&opts.token, "token", "", "Bearer token (default $SALESYS_TOKEN)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.BoolVar(&opts.pretty, "pretty", false, "Human-readable log output")
	pf.BoolVar(&opts.direct, "direct", false, "Call the API directly instead of through the forwarding proxy")

	root.AddCommand(
		newListsCmd(opts),
		newBrowseCmd(opts),
		newExportCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "salesys-blacklist %s (built %s)\n", version, buildTime)
		},
	}
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	if opts.direct {
		cfg.API.Direct = true
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.pretty {
		cfg.Logging.Pretty = true
	}
	if opts.format != "" {
		cfg.Export.Format = opts.format
	}
	if opts.dir != "" {
		cfg.Export.Dir = opts.dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openSession builds the API client and session and loads the list catalog.
func openSession(ctx context.Context, opts *options, logOut io.Writer) (*session.Session, *config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = logOut
	logging.Setup(logCfg)

	token := opts.token
	if token == "" {
		token = config.Token()
	}
	if token == "" {
		return nil, nil, fmt.Errorf("bearer token is required (use --token or %s)", config.EnvToken)
	}

	api, err := client.New(cfg.ClientConfig(token))
	if err != nil {
		return nil, nil, err
	}

	serializer, err := export.NewSerializer(export.Format(cfg.Export.Format))
	if err != nil {
		return nil, nil, err
	}

	s := session.New(api, serializer, session.Config{
		Pagination: cfg.PaginationConfig(),
		Export:     cfg.ExportConfig(),
	})
	if err := s.Open(ctx); err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
