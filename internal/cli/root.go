// Package cli provides the command-line interface for crowdwise.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/abstructionai/crowdwise/internal/config"
	"github.com/abstructionai/crowdwise/internal/db"
	"github.com/abstructionai/crowdwise/internal/llm"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger, and db client
	cfg       config.Config
	logger    *slog.Logger
	closeLogs func() error
	dbClient  *db.Client

	// Lazy-initialized LLM components
	embedder *llm.Embedder
	model    *llm.Model
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "crowdwise",
	Short: "Crowd-wisdom feedback loop for a tutoring service",
	Long: `Crowdwise clusters tutoring queries by semantic similarity, learns which
prompt enhancements earn positive feedback, and rolls back enhancements
that make answers worse.

Queries are routed to clusters online; feedback is classified and
attributed to the answer that earned it; a periodic watchdog A/B-tests
revised enhancements against their predecessors.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLogs = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
			Dimension: cfg.EmbedDimension,
		}

		var err error
		dbClient, err = db.NewClient(ctx, dbCfg, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if closeLogs != nil {
			if err := closeLogs(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// getLLM lazily initializes the embedding and generation clients.
// Commands that never touch a provider skip the cost entirely.
func getLLM() (*llm.Embedder, *llm.Model, error) {
	if embedder == nil {
		var err error
		embedder, err = llm.NewEmbedder(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init embedder: %w", err)
		}
		model, err = llm.NewModel(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init model: %w", err)
		}
	}
	return embedder, model, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(watchdogCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(reclusterCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}
