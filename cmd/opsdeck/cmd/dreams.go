package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/api"
)

// dreamsCmd groups the GPU dream pod actions
var dreamsCmd = &cobra.Command{
	Use:   "dreams",
	Short: "Manage GPU dream pods",
}

var dreamsStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a dream pod",
	Args:  cobra.ExactArgs(1),
	RunE: runAction(func(ctx context.Context, client *api.Client, name string) error {
		return client.StartDream(ctx, name)
	}),
}

var dreamsStopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a dream pod",
	Args:  cobra.ExactArgs(1),
	RunE: runAction(func(ctx context.Context, client *api.Client, name string) error {
		return client.StopDream(ctx, name)
	}),
}

func init() {
	rootCmd.AddCommand(dreamsCmd)
	dreamsCmd.AddCommand(dreamsStartCmd)
	dreamsCmd.AddCommand(dreamsStopCmd)
}
