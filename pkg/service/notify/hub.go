package notify

import (
	"context"
	"sync"

	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
)

// Subscriber is one delivery target for a tenant's change messages
type Subscriber interface {
	// Send delivers a single message. An error marks the subscriber dead and
	// the hub drops it.
	Send(ctx context.Context, msg model.ChangeMessage) error

	// Close tears the subscriber down with a human-readable reason
	Close(reason string)
}

// Hub fans change messages out to every subscriber of the owning tenant.
// Delivery is best-effort: a failing subscriber is dropped and closed, the
// remaining subscribers still receive the message, and the mutating caller
// never learns about either.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[types.TenantID]map[Subscriber]struct{}
}

var _ interfaces.Publisher = &Hub{}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[types.TenantID]map[Subscriber]struct{}),
	}
}

// Register adds a subscriber to a tenant's fan-out set
func (h *Hub) Register(tenantID types.TenantID, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subscribers[tenantID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.subscribers[tenantID] = set
	}
	set[sub] = struct{}{}
}

// Unregister removes a subscriber. Safe to call twice.
func (h *Hub) Unregister(tenantID types.TenantID, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subscribers[tenantID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subscribers, tenantID)
	}
}

// SubscriberCount reports the size of a tenant's fan-out set
func (h *Hub) SubscriberCount(tenantID types.TenantID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[tenantID])
}

// Publish delivers the message to every subscriber of msg's tenant
func (h *Hub) Publish(ctx context.Context, msg model.ChangeMessage) {
	// Snapshot under the read lock; sends happen outside so one slow
	// subscriber cannot block registration.
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers[msg.TenantID]))
	for sub := range h.subscribers[msg.TenantID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.Send(ctx, msg); err != nil {
			logging.From(ctx).Warn("Dropping failed subscriber",
				"tenant", msg.TenantID,
				"kind", msg.Kind,
				"error", err.Error())
			h.Unregister(msg.TenantID, sub)
			sub.Close("delivery failed")
		}
	}
}

// Shutdown closes every subscriber across all tenants
func (h *Hub) Shutdown(reason string) {
	h.mu.Lock()
	all := h.subscribers
	h.subscribers = make(map[types.TenantID]map[Subscriber]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for sub := range set {
			sub.Close(reason)
		}
	}
}
