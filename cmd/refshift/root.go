package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arthur-debert/refshift/formats"
	"github.com/arthur-debert/refshift/internal/config"
	"github.com/arthur-debert/refshift/internal/logging"
	"github.com/arthur-debert/refshift/internal/runlock"
	"github.com/arthur-debert/refshift/migration"
	"github.com/arthur-debert/refshift/processors"
	"github.com/arthur-debert/refshift/store"
)

var (
	configFile string
	v          = config.New()
	cfg        config.Config
	log        = zap.NewNop().Sugar()
)

var rootCmd = &cobra.Command{
	Use:   "refshift",
	Short: "Rewrite document ids and every reference to them",
	Long: `refshift moves the ids of a MongoDB collection and rewrites every
reference other collections hold to them.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (REFSHIFT_*)
3. Configuration file (REFSHIFT_CONFIG, ./refshift.yaml, ~/.refshift, /etc/refshift)
4. Defaults`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			v.SetConfigFile(configFile)
		}
		c, err := config.Load(v, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = c
		log = logging.New(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String(config.KeyHost, "localhost", "mongo host")
	f.Int(config.KeyPort, 27017, "mongo port")
	f.String(config.KeyURI, "", "mongo connection string, overrides host and port")
	f.String(config.KeyDB, "", "database to operate on (required)")
	f.BoolP(config.KeyDryRun, "n", false, "preview changes without applying them")
	f.BoolP(config.KeyVerbose, "v", false, "show detailed output")
	f.StringVar(&configFile, "config", "", "path to a config file")
	f.Int(config.KeyBatchSize, 0, "documents per bulk submission, 0 for one per collection")
	f.String(config.KeyOutput, "text", fmt.Sprintf("dry-run preview format %v", formats.List()))
	f.String(config.KeyLogLevel, "info", "log level (debug, info, warn, error)")
	f.String(config.KeyLogFormat, "console", "log format (console, json)")
	f.String(config.KeyProcessorsFile, "", "YAML file declaring extra root collections")

	rootCmd.AddCommand(shiftIDsCmd)
	rootCmd.AddCommand(matchUsersCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(checkCmd)
}

// loadRegistry returns the built-in processors plus those of the processors file
func loadRegistry(path string) (*processors.Registry, error) {
	registry := processors.Default()
	if path == "" {
		return registry, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open processors file: %w", err)
	}
	defer func() { _ = f.Close() }()

	procs, err := processors.LoadYAML(f)
	if err != nil {
		return nil, err
	}
	for _, p := range procs {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// session is an open, locked connection to the configured database
type session struct {
	store *store.Mongo
	lock  *runlock.Lock
	api   *migration.API
}

// openSession locks the database, connects and builds the run API
func openSession(ctx context.Context) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry, err := loadRegistry(cfg.ProcessorsFile)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	lock, err := runlock.New(cfg.LockDir).Acquire(lockCtx, cfg.DB)
	if err != nil {
		return nil, err
	}

	st, err := store.Connect(ctx, store.MongoOptions{
		URI:            cfg.MongoURI(),
		Database:       cfg.DB,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         log,
	})
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	api, err := migration.NewAPI(st, registry, migration.Options{
		DryRun:    cfg.DryRun,
		Verbose:   cfg.Verbose,
		BatchSize: cfg.BatchSize,
		Output:    cfg.Output,
		Out:       os.Stdout,
		Logger:    log,
	})
	if err != nil {
		_ = st.Close(context.Background())
		_ = lock.Release()
		return nil, err
	}
	return &session{store: st, lock: lock, api: api}, nil
}

func (s *session) close() {
	if err := s.store.Close(context.Background()); err != nil {
		log.Warnw("failed to close connection", "error", err)
	}
	if err := s.lock.Release(); err != nil {
		log.Warnw("failed to release lock", "path", s.lock.Path(), "error", err)
	}
}

// printMessage prints a message with appropriate formatting based on level
func printMessage(out, errOut io.Writer, msg migration.Message, verbose bool) {
	switch msg.Level {
	case migration.LevelError:
		fmt.Fprintf(errOut, "\033[31mERROR: %s\033[0m\n", msg.Text)
	case migration.LevelWarning:
		fmt.Fprintf(errOut, "\033[33mWARN: %s\033[0m\n", msg.Text)
	case migration.LevelInfo:
		fmt.Fprintf(out, "%s\n", msg.Text)
	case migration.LevelDebug:
		if verbose {
			fmt.Fprintf(out, "DEBUG: %s\n", msg.Text)
		}
	}

	// Print details if verbose and present
	if verbose && msg.Details != nil {
		for k, val := range msg.Details {
			fmt.Fprintf(out, "  %s: %v\n", k, val)
		}
	}
}

// printResult writes the messages and summary of a run
func printResult(out, errOut io.Writer, result *migration.Result, format *formats.OutputFormat, verbose bool) {
	for _, msg := range result.Messages {
		printMessage(out, errOut, msg, verbose)
	}
	if verbose && format != nil {
		for _, s := range result.Summaries {
			_ = format.Summary(out, s)
		}
	}

	fmt.Fprintln(out)
	if result.Success {
		fmt.Fprintf(out, "Run completed successfully\n")
		if result.Stats.TotalDocs > 0 {
			fmt.Fprintf(out, "  Modified: %d documents (%d in collection)\n", result.Stats.ModifiedDocs, result.Stats.TotalDocs)
			if result.Stats.SkippedDocs > 0 {
				fmt.Fprintf(out, "  Skipped: %d\n", result.Stats.SkippedDocs)
			}
			fmt.Fprintf(out, "  Duration: %v\n", result.Stats.Duration)
		}
		if result.DryRun {
			fmt.Fprintf(out, "  (DRY RUN - no changes applied)\n")
		}
	} else {
		fmt.Fprintf(out, "Run failed (code %d, run %s)\n", result.Code, result.RunID)
	}
}

// handleResult processes the run result and exits with its code
func handleResult(result *migration.Result) {
	format, err := formats.Get(cfg.Output)
	if err != nil {
		format = formats.Text
	}
	printResult(os.Stdout, os.Stderr, result, format, cfg.Verbose)
	os.Exit(result.Code)
}
