package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/api"
)

// reposCmd groups the repository slot actions
var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage repository slots",
}

var reposFetchCmd = &cobra.Command{
	Use:   "fetch <slot>",
	Short: "Run git fetch for a repository slot",
	Args:  cobra.ExactArgs(1),
	RunE: runAction(func(ctx context.Context, client *api.Client, slot string) error {
		return client.FetchSlot(ctx, slot)
	}),
}

var reposPullCmd = &cobra.Command{
	Use:   "pull <slot>",
	Short: "Run git pull for a repository slot",
	Args:  cobra.ExactArgs(1),
	RunE: runAction(func(ctx context.Context, client *api.Client, slot string) error {
		return client.PullSlot(ctx, slot)
	}),
}

var reposCheckoutCmd = &cobra.Command{
	Use:   "checkout <slot> <ref>",
	Short: "Check out a ref in a repository slot",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheckout,
}

func init() {
	rootCmd.AddCommand(reposCmd)
	reposCmd.AddCommand(reposFetchCmd)
	reposCmd.AddCommand(reposPullCmd)
	reposCmd.AddCommand(reposCheckoutCmd)
}

func runCheckout(cmd *cobra.Command, args []string) error {
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

	return client.CheckoutSlot(ctx, args[0], args[1])
}
