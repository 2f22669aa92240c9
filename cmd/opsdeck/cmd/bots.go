package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/api"
)

// botsCmd groups the bot process actions
var botsCmd = &cobra.Command{
	Use:   "bots",
	Short: "Manage bot processes",
}

var botsStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a bot process",
	Args:  cobra.ExactArgs(1),
	RunE: runAction(func(ctx context.Context, client *api.Client, name string) error {
		return client.StartBot(ctx, name)
	}),
}

var botsStopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a bot process",
	Args:  cobra.ExactArgs(1),
	RunE: runAction(func(ctx context.Context, client *api.Client, name string) error {
		return client.StopBot(ctx, name)
	}),
}

var botsRestartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Restart a bot process",
	Args:  cobra.ExactArgs(1),
	RunE: runAction(func(ctx context.Context, client *api.Client, name string) error {
		return client.RestartBot(ctx, name)
	}),
}

func init() {
	rootCmd.AddCommand(botsCmd)
	botsCmd.AddCommand(botsStartCmd)
	botsCmd.AddCommand(botsStopCmd)
	botsCmd.AddCommand(botsRestartCmd)
}
