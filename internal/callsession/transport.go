package callsession

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"meetassist-backend/pkg/logger"

	"go.uber.org/zap"
)

// WebsocketTransport joins provider calls over the signaling websocket
type WebsocketTransport struct {
	baseURL string
	apiKey  string

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// NewWebsocketTransport creates a transport for the provider's signaling
// endpoint
func NewWebsocketTransport(baseURL, apiKey string) *WebsocketTransport {
	return &WebsocketTransport{
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Connect dials the call's signaling channel and starts the keepalive reader
func (t *WebsocketTransport) Connect(ctx context.Context, meetingID uuid.UUID, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("transport already connected")
	}

	endpoint := fmt.Sprintf("%s/call/default/%s/ws", t.baseURL, meetingID)
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid transport endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", t.apiKey)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{}
	header.Set("Authorization", token)

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial call transport (%d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial call transport: %w", err)
	}

	t.conn = conn
	t.done = make(chan struct{})

	go t.readLoop(conn, t.done)

	logger.Debug("Call transport connected",
		zap.String("meeting_id", meetingID.String()))

	return nil
}

// readLoop drains control frames until the connection closes. The provider
// drops peers that stop reading.
func (t *WebsocketTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close shuts the signaling connection down
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	done := t.done
	t.conn = nil
	t.done = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(2 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	err := conn.Close()

	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}

	return err
}
