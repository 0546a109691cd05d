package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BadgerOps/pimsync/internal/catalog"
	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/gateway"
	"github.com/BadgerOps/pimsync/internal/importer"
	"github.com/BadgerOps/pimsync/internal/remote"
	"github.com/BadgerOps/pimsync/internal/source"
	"github.com/BadgerOps/pimsync/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath   string
	logLevel  string
	logFormat string
	quiet     bool
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalStore   *store.Store
	globalGateway *gateway.Gateway
	globalSource  source.Source
)

// initializeComponents builds the gateway, manifest source, and history store.
// The gateway is created once here and shared by every command.
func initializeComponents(ctx context.Context) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	gw, err := gateway.New(globalCfg.Gateway.LockFile, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}
	globalGateway = gw

	src, err := source.New(ctx, globalCfg.Source, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize manifest source: %w", err)
	}
	globalSource = src

	// History is optional; imports still run when the database is unavailable.
	if dbPath := globalCfg.Server.DBPath; dbPath != "" {
		if dbPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				logger.Warn("failed to create database directory, run history disabled", "path", dbPath, "error", err)
				return nil
			}
		}
		st, err := store.New(dbPath, logger)
		if err != nil {
			logger.Warn("failed to open run history, continuing without it", "path", dbPath, "error", err)
			return nil
		}
		globalStore = st
	}

	logger.Debug("components initialized", "source", globalCfg.Source.Type, "lock_file", globalCfg.Gateway.LockFile)
	return nil
}

// shouldSkipComponentInit checks if a command only needs the config
func shouldSkipComponentInit(cmd *cobra.Command) bool {
	if cmd.Name() == "help" || cmd.Name() == "version" {
		return true
	}
	return cmd.Parent() != nil && cmd.Parent().Name() == "config"
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// newRunner wires a resource import runner from the global components.
func newRunner() *importer.Runner {
	return importer.NewRunner(globalCfg, globalGateway, globalSource, globalStore, logger)
}

// newCatalogService resolves the endpoint and builds a catalog service.
// Configuration errors surface here, before the gateway lock is touched.
func newCatalogService() (*catalog.Service, error) {
	if globalCfg == nil || globalGateway == nil {
		return nil, fmt.Errorf("components not initialized")
	}
	endpoint, err := config.ResolveEndpoint(globalCfg.EffectiveSettings())
	if err != nil {
		return nil, err
	}
	return catalog.NewService(globalGateway, remote.NewClient(endpoint, logger), logger), nil
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pimsync",
		Short: "Push PIM resources and catalogs into the commerce import endpoint",
		Long: `pimsync transforms resource manifests exported by the PIM into the format
expected by the commerce platform's import endpoint, uploads them in batches,
and waits for the remote importer to finish each one. All remote-mutating
calls are serialized because the importer handles one import at a time.`,
		Example: `  pimsync import-resources --file Resources_20260301.zip
  pimsync import-catalog --path 'C:\imports\catalog.zip'
  pimsync catalog delete-entry --code SKU-1001
  pimsync history --limit 10
  pimsync serve --listen 127.0.0.1:8085
  pimsync config validate`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Warn("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			if !quiet {
				logger.Debug("config loaded", "path", cfgPath)
			}

			if !shouldSkipComponentInit(cmd) {
				if err := initializeComponents(cmd.Context()); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	cmd.AddCommand(
		newImportResourcesCmd(),
		newImportCatalogCmd(),
		newCatalogCmd(),
		newHistoryCmd(),
		newServeCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet && level < slog.LevelError {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}
