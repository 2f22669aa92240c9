// Package refresh schedules periodic force-refresh fetches. It is the
// fallback path for topics where push delivery is undesired or suspected
// stale: the same payloads arrive via a direct REST fetch on a cron
// schedule instead of the live channel.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/api"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/wire"
)

// Handler receives each fetched update.
type Handler func(update wire.Update)

// Refresher runs force-refresh fetches on cron schedules, one schedule per
// topic.
type Refresher struct {
	cron    *cron.Cron
	client  *api.Client
	logger  *zap.Logger
	handler Handler
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Add schedules a topic. The schedule uses cron syntax with optional
// seconds, or descriptors like "@every 30s". Adding a topic that already
// has a schedule replaces it.
func (r *Refresher) Add(topic, schedule string) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.cron.AddFunc(schedule, func() { r.refreshOnce(topic) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for topic %q: %w", schedule, topic, err)
	}

	if old, ok := r.entries[topic]; ok {
		r.cron.Remove(old)
	}
	r.entries[topic] = id
	return nil
}

// Remove unschedules a topic. Unknown topics are ignored.
func (r *Refresher) Remove(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.entries[topic]; ok {
		r.cron.Remove(id)
		delete(r.entries, topic)
	}
}

// Start begins running the schedules in their own goroutine.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop stops the scheduler and waits for running fetches to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// refreshOnce performs one force-refresh fetch and hands the result to the
// handler. Failures are logged and skipped; the schedule keeps running.
func (r *Refresher) refreshOnce(topic string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	update, err := r.client.Refresh(ctx, topic)
	if err != nil {
		r.logger.Warn("Force refresh failed",
			zap.String("topic", topic),
			zap.Error(err))
		return
	}
	r.handler(update)
}

// zapCronLogger adapts zap to the cron.Logger interface.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// RefresherBuilder provides a fluent interface for building Refreshers.
type RefresherBuilder struct {
	client  *api.Client
	logger  *zap.Logger
	handler Handler
	timeout time.Duration
}

// NewRefresher creates a new Refresher builder.
func NewRefresher() *RefresherBuilder {
	return &RefresherBuilder{
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
	}
}

// WithClient sets the API client used for fetches.
func (b *RefresherBuilder) WithClient(client *api.Client) *RefresherBuilder {
	b.client = client
	return b
}

// WithHandler sets the handler receiving fetched updates.
func (b *RefresherBuilder) WithHandler(handler Handler) *RefresherBuilder {
	b.handler = handler
	return b
}

// WithLogger sets the logger for the refresher.
func (b *RefresherBuilder) WithLogger(logger *zap.Logger) *RefresherBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithTimeout sets the per-fetch timeout.
func (b *RefresherBuilder) WithTimeout(timeout time.Duration) *RefresherBuilder {
	if timeout > 0 {
		b.timeout = timeout
	}
	return b
}

// IsValid checks that all required configuration is present.
func (b *RefresherBuilder) IsValid() error {
	if b.client == nil {
		return fmt.Errorf("API client is required")
	}
	if b.handler == nil {
		return fmt.Errorf("handler is required")
	}
	return nil
}

// Build creates the Refresher.
func (b *RefresherBuilder) Build() (*Refresher, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return &Refresher{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(zapCronLogger{logger: b.logger}),
		),
		client:  b.client,
		logger:  b.logger,
		handler: b.handler,
		timeout: b.timeout,
		entries: make(map[string]cron.EntryID),
	}, nil
}
