package live

// Phase is the connection phase of a Channel, derived from the transport
// slot and the in-flight dial. It is never cached separately, so it cannot
// desync from the transport.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Status is the phase label carried by StatusEvents. It is a superset of
// Phase: "reconnecting" distinguishes recovery after a failure from an
// initial connect.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// StatusEvent is broadcast to status listeners whenever the connection
// state of the active topic changes.
type StatusEvent struct {
	Status Status
	Topic  string
}

// StatusListener receives StatusEvents. Listeners are invoked in
// registration order; a panicking listener is recovered and logged and does
// not prevent delivery to later listeners.
type StatusListener func(event StatusEvent)

// ListenerID identifies a registered status listener for removal.
type ListenerID int64

// Notifier is an optional sink for user-visible notifications, e.g. a toast
// widget. It is only consulted on terminal connectivity failure.
type Notifier interface {
	Notify(message string)
}
