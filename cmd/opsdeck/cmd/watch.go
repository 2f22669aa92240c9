package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/live"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/otel"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/pulse"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/refresh"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/transform"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/wire"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <topic>",
	Short: "Follow live updates for a console topic",
	Long: `Follow live updates pushed by the server for one topic and print
them to stdout, one JSON document per line.

Topics: dashboard, bots, services, dreams, blog, server.

The connection reconnects automatically with exponential backoff. Any
refresh blocks in the config file run alongside the push channel as a
scheduled fallback fetch.

Examples:
  opsdeck watch server
  opsdeck watch bots --jq '.bots[] | select(.state != "running")'`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	jqQuery       string
	dialTimeout   time.Duration
	enableMetrics bool
	changedOnly   bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&jqQuery, "jq", "", "JQ expression applied to each update before printing")
	watchCmd.Flags().DurationVar(&dialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	watchCmd.Flags().BoolVar(&enableMetrics, "metrics", false, "record OpenTelemetry metrics")
	watchCmd.Flags().BoolVar(&changedOnly, "changed-only", false, "only print updates whose payload changed since the last one")
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Setup logger
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	topic := args[0]

	var filter transform.UpdateFilterFunc
	if jqQuery != "" {
		filter, err = transform.JqFilter(jqQuery, logger)
		if err != nil {
			return err
		}
	}

	logger.Info("Starting watch",
		zap.String("server", cfg.Server),
		zap.String("topic", topic),
		zap.Duration("dial-timeout", dialTimeout),
	)

	var changed func(wire.Update) bool
	if changedOnly {
		gated := []string{topic}
		for _, r := range cfg.Refresh {
			gated = append(gated, r.Topic)
		}
		changed = newChangeGate(cfg.PulseDuration(), gated...)
	}

	handler := func(update wire.Update) {
		if changed != nil && !changed(update) {
			return
		}
		printUpdate(logger, filter, update)
	}

	var header http.Header
	if cfg.AuthToken != "" {
		header = http.Header{"Authorization": []string{"Bearer " + cfg.AuthToken}}
	}

	supervisorBuilder := live.NewSupervisor().
		WithBaseURL(cfg.Server).
		WithDialer(live.WebSocketDialer(header)).
		WithDialTimeout(dialTimeout).
		WithBackoff(cfg.BackoffPolicy()).
		WithLogger(logger).
		WithNotifier(stderrNotifier{})
	if enableMetrics {
		supervisorBuilder = supervisorBuilder.WithMetrics(otel.NewProvider("opsdeck", "1.0.0"))
	}
	supervisor, err := supervisorBuilder.Build()
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	supervisor.AddStatusListener(func(event live.StatusEvent) {
		logger.Info("Live status changed",
			zap.String("status", string(event.Status)),
			zap.String("topic", event.Topic))
	})

	// Scheduled fallback fetches configured in refresh blocks.
	var refresher *refresh.Refresher
	if len(cfg.Refresh) > 0 {
		client, err := newAPIClient(cfg, logger)
		if err != nil {
			return err
		}
		refresher, err = refresh.NewRefresher().
			WithClient(client).
			WithHandler(handler).
			WithLogger(logger).
			Build()
		if err != nil {
			return fmt.Errorf("failed to create refresher: %w", err)
		}
		for _, r := range cfg.Refresh {
			if err := refresher.Add(r.Topic, r.Schedule); err != nil {
				return err
			}
			logger.Info("Scheduled fallback refresh",
				zap.String("topic", r.Topic),
				zap.String("schedule", r.Schedule))
		}
		refresher.Start()
		defer refresher.Stop()
	}

	if err := supervisor.SwitchTopic(topic, handler); err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Watching for updates... (Press Ctrl+C to exit)")

	sig := <-sigChan
	logger.Debug("Signal received, exiting", zap.String("signal", sig.String()))

	supervisor.Unsubscribe()
	logger.Info("Shutdown complete")
	return nil
}

// newChangeGate returns a predicate reporting whether an update differs from
// the last one seen on its topic, backed by a pulse tracker with one target
// per gated topic. Repeated identical pushes are reported as unchanged.
func newChangeGate(duration time.Duration, topics ...string) func(wire.Update) bool {
	tracker := pulse.NewTracker().
		WithDuration(duration).
		Build()
	tracker.Register(topics...)

	return func(update wire.Update) bool {
		return tracker.Set(update.UpdateTopic(), update)
	}
}

// printUpdate writes one update to stdout as "<topic>\t<json>", optionally
// reshaped by a JQ filter first.
func printUpdate(logger *zap.Logger, filter transform.UpdateFilterFunc, update wire.Update) {
	topic := update.UpdateTopic()

	var payload any = update
	if filter != nil {
		filtered, keep := filter(topic, payload)
		if !keep {
			return
		}
		payload = filtered
	}

	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("%s\t<error marshaling JSON: %v>\n", topic, err)
		logger.Warn("Failed to marshal update to JSON",
			zap.String("topic", topic),
			zap.Error(err))
		return
	}
	fmt.Printf("%s\t%s\n", topic, string(jsonBytes))
}

// stderrNotifier surfaces terminal connectivity failures to the user even
// when logging goes elsewhere.
type stderrNotifier struct{}

func (stderrNotifier) Notify(message string) {
	fmt.Fprintln(os.Stderr, message)
}
