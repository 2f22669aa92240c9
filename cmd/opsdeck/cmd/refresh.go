package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh <topic>",
	Short: "Force-refresh a topic and print the result",
	Long: `Fetch the current state of a topic directly from the management
API, bypassing the live channel, and print it to stdout.

Examples:
  opsdeck refresh server
  opsdeck refresh bots`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
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

	update, err := client.Refresh(ctx, args[0])
	if err != nil {
		return err
	}

	jsonBytes, err := json.MarshalIndent(update, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}
