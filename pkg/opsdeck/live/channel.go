package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/o11y"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/wire"
)

// ErrAttemptsExhausted is reported through Callbacks.OnError exactly once
// when the reconnect attempt budget is spent. The channel stays down until
// a fresh Open or topic switch.
var ErrAttemptsExhausted = errors.New("live: reconnect attempts exhausted")

// Callbacks are the consumer-facing notifications of a Channel. Any field
// may be nil.
type Callbacks struct {
	// OnConnect fires each time the transport becomes ready.
	OnConnect func()
	// OnDisconnect fires when the transport is lost to an error, before any
	// reconnect is attempted. It does not fire on explicit Close.
	OnDisconnect func()
	// OnData receives every successfully decoded frame.
	OnData func(update wire.Update)
	// OnError fires once when reconnect attempts are exhausted.
	OnError func(err error)
}

// Channel maintains a single push subscription to one topic and applies a
// bounded exponential-backoff reconnection policy transparently to the
// consumer. A Channel is owned by exactly one Supervisor and must not be
// shared.
type Channel struct {
	topic       string
	endpoint    string
	dial        Dialer
	dialTimeout time.Duration
	policy      BackoffPolicy
	logger      *zap.Logger
	cb          Callbacks

	// afterFunc schedules the reconnect timer; swapped out in tests.
	afterFunc func(d time.Duration, fn func()) *time.Timer

	// Metrics (nil if not configured)
	frameCounter      o11y.Counter
	parseErrorCounter o11y.Counter
	reconnectCounter  o11y.Counter

	mu         sync.Mutex
	conn       Transport
	dialing    bool
	persist    bool
	attempts   int
	gen        uint64 // session generation, bumped on every dial and teardown
	readCancel context.CancelFunc
	retryTimer *time.Timer
}

// Topic returns the topic this channel is subscribed to.
func (c *Channel) Topic() string {
	return c.topic
}

// Open starts the subscription. Calling Open while a transport exists or a
// dial is in flight is a no-op that logs a warning. Open enables
// auto-reconnect and resets the attempt counter.
func (c *Channel) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil || c.dialing {
		c.logger.Warn("Open called on an active channel, ignoring",
			zap.String("topic", c.topic))
		return
	}

	c.persist = true
	c.attempts = 0
	c.startDialLocked()
}

// Close tears the channel down: the pending reconnect timer is stopped and
// the transport, if any, is closed. With resetPersist (the default for an
// explicit close) auto-reconnect is disabled and the attempt counter is
// cleared; with resetPersist=false both survive so a later reconnect can
// pick up where it left off.
func (c *Channel) Close(resetPersist bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopRetryLocked()
	c.teardownLocked()
	if resetPersist {
		c.persist = false
		c.attempts = 0
	}
}

// IsActive reports whether the transport exists and is fully established.
func (c *Channel) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// CurrentPhase derives the connection phase from the transport slot.
func (c *Channel) CurrentPhase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.conn != nil:
		return PhaseConnected
	case c.dialing:
		return PhaseConnecting
	default:
		return PhaseDisconnected
	}
}

// Persisting reports whether auto-reconnect is still enabled, i.e. whether
// a lost transport will be reestablished.
func (c *Channel) Persisting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persist
}

// startDialLocked begins a new session: any pending retry timer is stopped
// and a dial goroutine is launched under a fresh generation.
func (c *Channel) startDialLocked() {
	c.stopRetryLocked()
	c.gen++
	gen := c.gen
	c.dialing = true

	ctx, cancel := context.WithCancel(context.Background())
	c.readCancel = cancel

	go c.run(ctx, gen)
}

// run dials the endpoint and, on success, reads frames until the transport
// fails or the session is torn down.
func (c *Channel) run(ctx context.Context, gen uint64) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	conn, err := c.dial(dialCtx, c.endpoint)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return // torn down while dialing
		}
		c.logger.Warn("Failed to open live transport",
			zap.String("topic", c.topic),
			zap.Error(err))
		c.handleDisconnect(gen)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		// Torn down while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.dialing = false
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("Live channel connected", zap.String("topic", c.topic))
	if c.cb.OnConnect != nil {
		c.cb.OnConnect()
	}

	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // deliberate close
			}
			c.logger.Warn("Live transport lost",
				zap.String("topic", c.topic),
				zap.Error(err))
			c.handleDisconnect(gen)
			return
		}
		c.handleFrame(frame)
	}
}

// handleFrame decodes one frame and forwards it. A malformed frame is
// logged and dropped; it never affects the transport or the attempt
// counter.
func (c *Channel) handleFrame(frame []byte) {
	if c.frameCounter != nil {
		c.frameCounter.Add(context.Background(), 1, o11y.Label{Key: "topic", Value: c.topic})
	}

	update, err := wire.Decode(c.topic, frame)
	if err != nil {
		c.logger.Warn("Dropping undecodable live frame",
			zap.String("topic", c.topic),
			zap.Error(err))
		if c.parseErrorCounter != nil {
			c.parseErrorCounter.Add(context.Background(), 1, o11y.Label{Key: "topic", Value: c.topic})
		}
		return
	}

	if c.cb.OnData != nil {
		c.cb.OnData(update)
	}
}

// handleDisconnect runs the disconnect-and-maybe-reconnect sequence for the
// session identified by gen. A stale generation means the session was
// already torn down and the call is a no-op.
func (c *Channel) handleDisconnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()

	terminal := false
	if c.persist {
		if c.attempts < c.policy.MaxAttempts {
			delay := c.policy.DelayFor(c.attempts)
			c.attempts++
			timerGen := c.gen
			c.logger.Info("Scheduling reconnect",
				zap.String("topic", c.topic),
				zap.Int("attempt", c.attempts),
				zap.Duration("delay", delay))
			if c.reconnectCounter != nil {
				c.reconnectCounter.Add(context.Background(), 1, o11y.Label{Key: "topic", Value: c.topic})
			}
			c.retryTimer = c.afterFunc(delay, func() { c.retryFire(timerGen) })
		} else {
			c.persist = false
			terminal = true
		}
	}
	c.mu.Unlock()

	if c.cb.OnDisconnect != nil {
		c.cb.OnDisconnect()
	}
	if terminal {
		c.logger.Error("Live channel gave up reconnecting",
			zap.String("topic", c.topic),
			zap.Int("attempts", c.policy.MaxAttempts))
		if c.cb.OnError != nil {
			c.cb.OnError(ErrAttemptsExhausted)
		}
	}
}

// retryFire is the reconnect timer callback. The generation and persist
// checks happen at fire time, so a timer surviving a topic switch or an
// explicit Close is a no-op.
func (c *Channel) retryFire(timerGen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != timerGen || !c.persist {
		return
	}
	if c.conn != nil || c.dialing {
		return
	}
	c.retryTimer = nil
	c.startDialLocked()
}

// teardownLocked closes the transport and invalidates the current session.
// The persist flag and attempt counter are left untouched.
func (c *Channel) teardownLocked() {
	c.gen++
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("Error closing live transport", zap.Error(err))
		}
		c.conn = nil
	}
	c.dialing = false
}

func (c *Channel) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// ChannelBuilder provides a fluent interface for building Channels.
type ChannelBuilder struct {
	topic       string
	endpoint    string
	dial        Dialer
	dialTimeout time.Duration
	policy      BackoffPolicy
	logger      *zap.Logger
	cb          Callbacks
	metrics     o11y.MetricsProvider
}

// NewChannel creates a new Channel builder.
func NewChannel() *ChannelBuilder {
	return &ChannelBuilder{
		logger:      zap.NewNop(),
		dialTimeout: 30 * time.Second,
		policy:      DefaultBackoffPolicy(),
	}
}

// WithTopic sets the topic the channel subscribes to.
func (b *ChannelBuilder) WithTopic(topic string) *ChannelBuilder {
	b.topic = topic
	return b
}

// WithEndpoint sets the topic-scoped push endpoint URL.
func (b *ChannelBuilder) WithEndpoint(endpoint string) *ChannelBuilder {
	b.endpoint = endpoint
	return b
}

// WithDialer sets the transport dialer. Defaults to WebSocketDialer(nil).
func (b *ChannelBuilder) WithDialer(dial Dialer) *ChannelBuilder {
	if dial != nil {
		b.dial = dial
	}
	return b
}

// WithDialTimeout sets the timeout for establishing the transport.
func (b *ChannelBuilder) WithDialTimeout(timeout time.Duration) *ChannelBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithBackoff sets the reconnection policy. Zero fields keep their defaults.
func (b *ChannelBuilder) WithBackoff(policy BackoffPolicy) *ChannelBuilder {
	b.policy = policy.withDefaults()
	return b
}

// WithLogger sets the logger for the channel.
func (b *ChannelBuilder) WithLogger(logger *zap.Logger) *ChannelBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithCallbacks sets the consumer callbacks.
func (b *ChannelBuilder) WithCallbacks(cb Callbacks) *ChannelBuilder {
	b.cb = cb
	return b
}

// WithMetrics sets an optional metrics provider.
func (b *ChannelBuilder) WithMetrics(provider o11y.MetricsProvider) *ChannelBuilder {
	b.metrics = provider
	return b
}

// IsValid checks that all required configuration is present.
func (b *ChannelBuilder) IsValid() error {
	if b.topic == "" {
		return fmt.Errorf("topic is required")
	}
	if b.endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

// Build creates the Channel. The channel is not opened yet.
func (b *ChannelBuilder) Build() (*Channel, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	dial := b.dial
	if dial == nil {
		dial = WebSocketDialer(nil)
	}

	c := &Channel{
		topic:       b.topic,
		endpoint:    b.endpoint,
		dial:        dial,
		dialTimeout: b.dialTimeout,
		policy:      b.policy,
		logger:      b.logger,
		cb:          b.cb,
		afterFunc:   time.AfterFunc,
	}

	if b.metrics != nil {
		c.frameCounter = b.metrics.Counter("live_frames_total")
		c.parseErrorCounter = b.metrics.Counter("live_parse_errors_total")
		c.reconnectCounter = b.metrics.Counter("live_reconnects_scheduled_total")
	}

	return c, nil
}
