package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/utils/safe"
)

// WebSocketTransport dials the server's subscription endpoint
type WebSocketTransport struct {
	endpoint string
	client   *http.Client
}

var _ Transport = &WebSocketTransport{}

type TransportOption func(*WebSocketTransport)

// WithTransportClient overrides the HTTP client used for the handshake. The
// client must not set a Timeout; the dial is bounded by context instead.
func WithTransportClient(client *http.Client) TransportOption {
	return func(t *WebSocketTransport) {
		t.client = client
	}
}

// NewWebSocketTransport takes the ws:// or wss:// URL of the subscription
// endpoint
func NewWebSocketTransport(endpoint string, opts ...TransportOption) *WebSocketTransport {
	t := &WebSocketTransport{
		endpoint: endpoint,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context, identity Identity) (Conn, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid subscription endpoint", goerr.V("endpoint", t.endpoint))
	}
	q := u.Query()
	q.Set("token", identity.Token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: t.client,
	})
	if resp != nil && resp.Body != nil {
		safe.Close(ctx, resp.Body)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "subscription handshake failed",
			goerr.V("tenant", identity.TenantID))
	}

	return &webSocketConn{conn: conn}, nil
}

type webSocketConn struct {
	conn *websocket.Conn
}

func (c *webSocketConn) Receive(ctx context.Context) (model.ChangeMessage, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return model.ChangeMessage{}, goerr.Wrap(err, "subscription read failed")
	}

	var msg model.ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.ChangeMessage{}, goerr.Wrap(err, "malformed change message")
	}
	return msg, nil
}

func (c *webSocketConn) Close(reason string) {
	_ = c.conn.Close(websocket.StatusNormalClosure, reason)
}
