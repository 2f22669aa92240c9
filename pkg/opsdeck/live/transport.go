package live

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Transport is one open push connection delivering raw frames.
type Transport interface {
	// Read blocks until the next frame arrives, the transport fails, or the
	// context is cancelled.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a Transport to a topic-scoped endpoint.
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

// WebSocketDialer returns a Dialer backed by a WebSocket connection.
// The header is sent with the handshake request and may be nil.
func WebSocketDialer(header http.Header) Dialer {
	return func(ctx context.Context, endpoint string) (Transport, error) {
		opts := &websocket.DialOptions{}
		if header != nil {
			opts.HTTPHeader = header
		}
		conn, _, err := websocket.Dial(ctx, endpoint, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
		}
		return &wsTransport{conn: conn}, nil
	}
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "client close")
}
