package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/api"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/config"
)

var (
	verbose    bool
	debug      bool
	logLevel   string
	configPath string
	serverURL  string
	authToken  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "opsdeck",
	Short: "Opsdeck admin console",
	Long: `Opsdeck is a command-line admin console for a self-hosted server.

It follows live status updates pushed over a resilient WebSocket channel
and drives the management API: bot processes, repository slots, GPU dream
pods, and the blog.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to an HCL config file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "management server base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&authToken, "auth-token", "", "bearer token for the management API (overrides config)")
}

func setupLogger() (*zap.Logger, error) {
	level := logLevel

	// Override log level based on flags
	if debug {
		level = "debug"
	} else if verbose && level == "info" {
		level = "debug"
	}

	var zapLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn", "warning":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	cfg.Development = debug

	return cfg.Build()
}

// loadConfig resolves the effective configuration: the HCL file when one is
// given, overridden by command-line flags.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if serverURL != "" {
		cfg.Server = serverURL
	}
	if authToken != "" {
		cfg.AuthToken = authToken
	}
	if cfg.Server == "" {
		return nil, fmt.Errorf("no server configured: pass --server or a config file")
	}
	if cfg.LogLevel != "" && logLevel == "info" {
		logLevel = cfg.LogLevel
	}
	return cfg, nil
}

func newAPIClient(cfg *config.Config, logger *zap.Logger) (*api.Client, error) {
	return api.NewClient().
		WithBaseURL(cfg.Server).
		WithAuthToken(cfg.AuthToken).
		WithLogger(logger).
		Build()
}

// runAction wraps a single-argument management API call as a cobra RunE.
func runAction(action func(ctx context.Context, client *api.Client, arg string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger, err := setupLogger()
		if err != nil {
			return fmt.Errorf("failed to setup logger: %w", err)
		}
		defer logger.Sync()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newAPIClient(cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return action(ctx, client, args[0])
	}
}
