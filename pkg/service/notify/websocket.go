package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
)

// DefaultWriteTimeout bounds one websocket write so a stalled client is
// detected instead of wedging the fan-out
const DefaultWriteTimeout = 5 * time.Second

// WebSocketSubscriber adapts one websocket connection to the hub
type WebSocketSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

var _ Subscriber = &WebSocketSubscriber{}

type SubscriberOption func(*WebSocketSubscriber)

// WithWriteTimeout overrides the per-message write deadline
func WithWriteTimeout(d time.Duration) SubscriberOption {
	return func(s *WebSocketSubscriber) {
		s.writeTimeout = d
	}
}

func NewWebSocketSubscriber(conn *websocket.Conn, opts ...SubscriberOption) *WebSocketSubscriber {
	s := &WebSocketSubscriber{
		conn:         conn,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WebSocketSubscriber) Send(ctx context.Context, msg model.ChangeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal change message", goerr.V("kind", msg.Kind))
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return goerr.Wrap(err, "websocket write failed")
	}
	return nil
}

func (s *WebSocketSubscriber) Close(reason string) {
	_ = s.conn.Close(websocket.StatusNormalClosure, reason)
}

// ReadLoop drains inbound frames until the peer disconnects. Clients do not
// send application data; the read keeps ping/pong handling alive and
// reports the disconnect.
func (s *WebSocketSubscriber) ReadLoop(ctx context.Context) error {
	for {
		if _, _, err := s.conn.Read(ctx); err != nil {
			return err
		}
	}
}
