package realtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verdictlab/verdict/logger"
)

// ErrReceiveTimeout marks a receive that exceeded the configured timeout.
// The receive loop treats it as the end of the response, not a failure.
var ErrReceiveTimeout = errors.New("realtime receive timed out")

// Transport is the wire abstraction behind the adapter. Tests substitute
// a scripted implementation; production uses the WebSocket transport.
type Transport interface {
	Connect(ctx context.Context, url string, header http.Header) error
	Send(frame any) error
	// Receive returns one frame, reporting whether it was binary.
	Receive(timeout time.Duration) (data []byte, binary bool, err error)
	Close() error
}

const wsMaxMessageSize = 64 * 1024 * 1024 // audio responses can be large

// wsTransport is the production Transport over a single WebSocket
// connection. It is confined to one infer invocation.
type wsTransport struct {
	conn        *websocket.Conn
	dialTimeout time.Duration
}

func newWSTransport(dialTimeout time.Duration) *wsTransport {
	return &wsTransport{dialTimeout: dialTimeout}
}

func (t *wsTransport) Connect(ctx context.Context, url string, header http.Header) error {
	dialer := websocket.Dialer{HandshakeTimeout: t.dialTimeout}

	logger.Debug("realtime: connecting", "url", url)
	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("realtime dial failed: %w", err)
	}

	conn.SetReadLimit(wsMaxMessageSize)
	t.conn = conn
	logger.Debug("realtime: connected")
	return nil
}

func (t *wsTransport) Send(frame any) error {
	if t.conn == nil {
		return errors.New("realtime transport not connected")
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.dialTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := t.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (t *wsTransport) Receive(timeout time.Duration) ([]byte, bool, error) {
	if t.conn == nil {
		return nil, false, errors.New("realtime transport not connected")
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, false, fmt.Errorf("set read deadline: %w", err)
	}
	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, false, ErrReceiveTimeout
		}
		return nil, false, err
	}
	return data, messageType == websocket.BinaryMessage, nil
}

func (t *wsTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteMessage(websocket.CloseMessage, closeMsg)
	return t.conn.Close()
}
