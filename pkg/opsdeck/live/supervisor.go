package live

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/o11y"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/wire"
)

// DataHandler receives every decoded update pushed on the active topic.
type DataHandler func(update wire.Update)

// Supervisor guarantees that at most one Channel is active across the whole
// application, mediates topic switches, and broadcasts connection status to
// registered listeners.
type Supervisor struct {
	baseURL     string
	dial        Dialer
	dialTimeout time.Duration
	policy      BackoffPolicy
	logger      *zap.Logger
	notifier    Notifier
	metrics     o11y.MetricsProvider
	switchCount o11y.Counter

	bus *statusBus

	// switchMu serializes SwitchTopic/Unsubscribe end to end, including the
	// new channel's Open. Without it a concurrent switch could close the
	// just-installed channel and a stale Open would revive it afterwards.
	switchMu sync.Mutex

	mu      sync.Mutex
	topic   string
	channel *Channel
}

// SwitchTopic unconditionally tears down any existing Channel, creates a
// new one for the topic, opens it, and emits a "connecting" StatusEvent.
// Every decoded payload on the new channel is forwarded to handler.
func (s *Supervisor) SwitchTopic(topic string, handler DataHandler) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.channel != nil {
		// Teardown happens-before the new channel opens: the old transport
		// is closed and its retry timer cancelled while we hold the lock.
		s.channel.Close(true)
		s.channel = nil
	}

	var ch *Channel
	ch, err := NewChannel().
		WithTopic(topic).
		WithEndpoint(s.endpointFor(topic)).
		WithDialer(s.dial).
		WithDialTimeout(s.dialTimeout).
		WithBackoff(s.policy).
		WithLogger(s.logger).
		WithMetrics(s.metrics).
		WithCallbacks(Callbacks{
			OnConnect: func() {
				s.bus.emit(StatusEvent{Status: StatusConnected, Topic: topic})
			},
			OnDisconnect: func() {
				if ch.Persisting() {
					s.bus.emit(StatusEvent{Status: StatusReconnecting, Topic: topic})
				}
			},
			OnData: func(update wire.Update) {
				if handler != nil {
					handler(update)
				}
			},
			OnError: func(err error) {
				s.bus.emit(StatusEvent{Status: StatusDisconnected, Topic: topic})
				if s.notifier != nil {
					s.notifier.Notify(fmt.Sprintf("Live updates for %q are unavailable: %v", topic, err))
				}
			},
		}).
		Build()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create channel for topic %q: %w", topic, err)
	}

	s.channel = ch
	s.topic = topic
	s.mu.Unlock()

	if s.switchCount != nil {
		s.switchCount.Add(context.Background(), 1, o11y.Label{Key: "topic", Value: topic})
	}
	s.logger.Info("Switching live topic", zap.String("topic", topic))

	// Emit before Open so listeners always observe connecting before
	// connected, regardless of how fast the dial completes.
	s.bus.emit(StatusEvent{Status: StatusConnecting, Topic: topic})
	ch.Open()
	return nil
}

// Unsubscribe tears down the current Channel, clears the active topic, and
// emits a "disconnected" StatusEvent.
func (s *Supervisor) Unsubscribe() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	topic := s.topic
	if s.channel != nil {
		s.channel.Close(true)
		s.channel = nil
	}
	s.topic = ""
	s.mu.Unlock()

	s.logger.Info("Unsubscribed from live topic", zap.String("topic", topic))
	s.bus.emit(StatusEvent{Status: StatusDisconnected, Topic: topic})
}

// CurrentStatus returns "disconnected" when no Channel exists, otherwise
// the channel's phase mapped to its status label.
func (s *Supervisor) CurrentStatus() Status {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()

	if ch == nil {
		return StatusDisconnected
	}
	switch ch.CurrentPhase() {
	case PhaseConnected:
		return StatusConnected
	case PhaseConnecting:
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

// CurrentTopic returns the active topic, or "" when unsubscribed.
func (s *Supervisor) CurrentTopic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

// IsSubscribedTo reports whether the active topic equals topic and its
// transport is fully established.
func (s *Supervisor) IsSubscribedTo(topic string) bool {
	s.mu.Lock()
	ch := s.channel
	current := s.topic
	s.mu.Unlock()

	return current == topic && ch != nil && ch.IsActive()
}

// AddStatusListener registers a listener for StatusEvents and returns an
// id for later removal. Listeners are invoked in registration order.
func (s *Supervisor) AddStatusListener(listener StatusListener) ListenerID {
	return s.bus.add(listener)
}

// RemoveStatusListener unregisters a listener. Unknown ids are ignored.
func (s *Supervisor) RemoveStatusListener(id ListenerID) {
	s.bus.remove(id)
}

// endpointFor maps a topic to its push endpoint: <base>/live/<topic> with
// the http scheme swapped for ws.
func (s *Supervisor) endpointFor(topic string) string {
	base := s.baseURL
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimSuffix(base, "/") + "/live/" + topic
}

// SupervisorBuilder provides a fluent interface for building Supervisors.
type SupervisorBuilder struct {
	baseURL     string
	dial        Dialer
	dialTimeout time.Duration
	policy      BackoffPolicy
	logger      *zap.Logger
	notifier    Notifier
	metrics     o11y.MetricsProvider
}

// NewSupervisor creates a new Supervisor builder.
func NewSupervisor() *SupervisorBuilder {
	return &SupervisorBuilder{
		logger: zap.NewNop(),
		policy: DefaultBackoffPolicy(),
	}
}

// WithBaseURL sets the management API base URL, e.g. "https://ops.example.net".
func (b *SupervisorBuilder) WithBaseURL(baseURL string) *SupervisorBuilder {
	b.baseURL = baseURL
	return b
}

// WithDialer sets the transport dialer used by every channel the supervisor
// creates. Defaults to WebSocketDialer(nil).
func (b *SupervisorBuilder) WithDialer(dial Dialer) *SupervisorBuilder {
	if dial != nil {
		b.dial = dial
	}
	return b
}

// WithDialTimeout sets the transport dial timeout for created channels.
func (b *SupervisorBuilder) WithDialTimeout(timeout time.Duration) *SupervisorBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithBackoff sets the reconnection policy for created channels.
func (b *SupervisorBuilder) WithBackoff(policy BackoffPolicy) *SupervisorBuilder {
	b.policy = policy.withDefaults()
	return b
}

// WithLogger sets the logger for the supervisor and its channels.
func (b *SupervisorBuilder) WithLogger(logger *zap.Logger) *SupervisorBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithNotifier sets an optional user-notification sink consulted on
// terminal connectivity failure.
func (b *SupervisorBuilder) WithNotifier(notifier Notifier) *SupervisorBuilder {
	b.notifier = notifier
	return b
}

// WithMetrics sets an optional metrics provider.
func (b *SupervisorBuilder) WithMetrics(provider o11y.MetricsProvider) *SupervisorBuilder {
	b.metrics = provider
	return b
}

// IsValid checks that all required configuration is present.
func (b *SupervisorBuilder) IsValid() error {
	if b.baseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	return nil
}

// Build creates the Supervisor.
func (b *SupervisorBuilder) Build() (*Supervisor, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		baseURL:     b.baseURL,
		dial:        b.dial,
		dialTimeout: b.dialTimeout,
		policy:      b.policy,
		logger:      b.logger,
		notifier:    b.notifier,
		metrics:     b.metrics,
		bus:         newStatusBus(b.logger),
	}
	if b.metrics != nil {
		s.switchCount = b.metrics.Counter("live_topic_switches_total")
	}
	return s, nil
}
