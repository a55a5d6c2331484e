package interceptors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/farolabs/beacon/core"
)

var errTailClosed = errors.New("ws tail is closed")

// WSTail streams events as JSON text frames to a WebSocket endpoint for
// live viewing. The connection is dialed lazily on first use and redialed
// by the next health probe after a write failure, so a dropped viewer
// reconnects through the normal recovery cycle.
type WSTail struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	writeTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// WSTailOption configures a WSTail interceptor.
type WSTailOption func(*WSTail)

// WithWSTailHeader sets HTTP headers sent during the handshake, such as
// authorization tokens.
func WithWSTailHeader(header http.Header) WSTailOption {
	return func(w *WSTail) {
		w.header = header
	}
}

// WithWSTailWriteTimeout sets the per-frame write deadline (default 10s).
func WithWSTailWriteTimeout(timeout time.Duration) WSTailOption {
	return func(w *WSTail) {
		w.writeTimeout = timeout
	}
}

// WithWSTailDialer replaces the handshake dialer.
func WithWSTailDialer(dialer *websocket.Dialer) WSTailOption {
	return func(w *WSTail) {
		w.dialer = dialer
	}
}

// NewWSTail creates an interceptor streaming to the given ws:// or wss://
// URL.
func NewWSTail(url string, opts ...WSTailOption) *WSTail {
	w := &WSTail{
		url:          url,
		dialer:       websocket.DefaultDialer,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name identifies the interceptor in health reports.
func (w *WSTail) Name() string {
	return "ws-tail"
}

// Intercept sends the event as a text frame, dialing first if needed.
// A failed write drops the connection so the next health probe redials.
func (w *WSTail) Intercept(ctx context.Context, event *core.Event) error {
	data, err := json.Marshal(toWire(event))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errTailClosed
	}
	if w.conn == nil {
		if err := w.dial(ctx); err != nil {
			return err
		}
	}

	w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		w.dropConn()
		return fmt.Errorf("tail write failed: %w", err)
	}
	return nil
}

// HealthCheck pings the peer, dialing first if no connection is up.
func (w *WSTail) HealthCheck(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errTailClosed
	}
	if w.conn == nil {
		return w.dial(ctx)
	}

	deadline := time.Now().Add(w.writeTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		w.dropConn()
		return fmt.Errorf("tail ping failed: %w", err)
	}
	return nil
}

// Close sends a close frame and drops the connection. Close is idempotent.
func (w *WSTail) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.conn != nil {
		// Best effort; the peer may already be gone.
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

// dial establishes the connection. Called with mu held.
func (w *WSTail) dial(ctx context.Context) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("tail dial failed: %w", err)
	}
	w.conn = conn

	// The peer's control frames are only processed during reads, so keep
	// a reader draining the connection until it drops.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// dropConn discards a broken connection. Called with mu held.
func (w *WSTail) dropConn() {
	w.conn.Close()
	w.conn = nil
}
