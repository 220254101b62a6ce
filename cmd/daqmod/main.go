package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alessandrothea/daqmod/pkg/appfwk"
	"github.com/alessandrothea/daqmod/internal/config"
	"github.com/alessandrothea/daqmod/internal/journal"
	"github.com/alessandrothea/daqmod/internal/logger"
	"github.com/alessandrothea/daqmod/internal/metrics"
	"github.com/alessandrothea/daqmod/pkg/opmon"
	"github.com/alessandrothea/daqmod/internal/scaffold"

	// Plugin packages self-register with the appfwk factory registry.
	_ "github.com/alessandrothea/daqmod/internal/modules/renameme"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

// newRootCmd builds and returns the root cobra command. Extracted from main
// so that tests can invoke it directly without spawning a subprocess.
func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "daqmod",
		Short: "Run data-acquisition processing modules",
		Long: `daqmod loads the configured processing modules, dispatches their
configuration and periodically publishes their operational counters.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplication(cfgPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the YAML configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the application (same as running without a subcommand)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplication(cfgPath)
		},
	})

	rootCmd.AddCommand(newCreateCmd())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "daqmod %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return rootCmd
}

// newCreateCmd builds the package scaffolding subcommand.
func newCreateCmd() *cobra.Command {
	var (
		modules       []string
		apps          []string
		modulePath    string
		daqmodReplace string
	)

	cmd := &cobra.Command{
		Use:   "create <dir>",
		Short: "Generate the boilerplate of a new package",
		Long: `Generate module skeletons, application entry points and a docs stub in
an empty directory. Module names must be PascalCase, app names snake_case.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt := scaffold.Options{
				Dir:           args[0],
				ModulePath:    modulePath,
				DaqmodReplace: daqmodReplace,
				Modules:       modules,
				Apps:          apps,
			}
			if err := scaffold.Run(opt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Boilerplate for package %s created in %s.\nReview the generated code before making your own edits.\n",
				filepath.Base(args[0]), args[0])
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&modules, "module", nil, "PascalCase module name (repeatable)")
	cmd.Flags().StringArrayVar(&apps, "app", nil, "snake_case application name (repeatable)")
	cmd.Flags().StringVar(&modulePath, "module-path", "", "go.mod module path for the new package")
	cmd.Flags().StringVar(&daqmodReplace, "daqmod-replace", "", "local daqmod checkout to point the generated go.mod at")
	return cmd
}

func runApplication(cfgPath string) error {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	initLogging(cfg.LogLevel, cfg.LogFormat)

	metrics.Register()

	pub, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pub.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("publisher", pub.Name()).Msg("publisher close failed")
		}
	}()

	var store appfwk.JournalStore
	if cfg.JournalEnabled {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		j, err := journal.Open(filepath.Join(cfg.DataDir, "opmon.db"), cfg.JournalRetention)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := j.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("journal close failed")
			}
		}()
		store = j
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	app, err := appfwk.New(cfg, pub, store)
	if err != nil {
		return fmt.Errorf("application init: %w", err)
	}
	defer app.Close()

	return app.Run(ctx)
}

// buildPublisher creates the opmon publisher selected by configuration.
func buildPublisher(cfg *config.Config) (opmon.Publisher, error) {
	switch cfg.OpmonPublisher {
	case "http":
		return opmon.NewHTTPPusher(cfg.OpmonHTTPURL, nil), nil
	case "amqp":
		pub, err := opmon.NewAMQPPublisher(cfg.OpmonAMQPURL, cfg.OpmonAMQPQueue)
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return opmon.NewLogPublisher(log.Logger), nil
	}
}

func initLogging(level string, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	redacted := logger.NewRedactWriter(os.Stderr)
	if format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: redacted})
	} else {
		log.Logger = zerolog.New(redacted).With().Timestamp().Logger()
	}

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
