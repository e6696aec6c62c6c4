package agent

import (
	"context"

	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
)

// Handler processes one inbound change message. Messages can arrive more
// than once and out of order, so handlers must be idempotent.
type Handler func(ctx context.Context, msg model.ChangeMessage)

// Router dispatches inbound messages by kind via a lookup table. Unrouted
// kinds are logged and dropped so a newer server cannot break an older
// client.
type Router struct {
	handlers map[types.MessageKind]Handler
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[types.MessageKind]Handler),
	}
}

// On registers the handler for a message kind, replacing any previous one
func (r *Router) On(kind types.MessageKind, h Handler) *Router {
	r.handlers[kind] = h
	return r
}

func (r *Router) Dispatch(ctx context.Context, msg model.ChangeMessage) {
	h, ok := r.handlers[msg.Kind]
	if !ok {
		logging.From(ctx).Debug("No handler for message kind, dropping",
			"kind", msg.Kind)
		return
	}
	h(ctx, msg)
}
