package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

// ChangeMessage is the envelope fanned out to every subscriber of a tenant
// after a committed mutation. Messages are self-describing and idempotent
// to apply; no ordering is guaranteed across messages.
type ChangeMessage struct {
	Kind      types.MessageKind `json:"kind"`
	TenantID  types.TenantID    `json:"tenant_id"`
	EntityID  string            `json:"entity_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}

// NewChangeMessage builds a message, marshaling the kind-specific payload.
// A nil payload is allowed for kinds that carry none.
func NewChangeMessage(kind types.MessageKind, tenantID types.TenantID, entityID string, payload any) (ChangeMessage, error) {
	msg := ChangeMessage{
		Kind:      kind,
		TenantID:  tenantID,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return ChangeMessage{}, err
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return ChangeMessage{}, goerr.Wrap(err, "failed to marshal change payload", goerr.V("kind", kind))
		}
		msg.Payload = raw
	}

	return msg, nil
}

// Validate checks the envelope fields
func (m ChangeMessage) Validate() error {
	if !m.Kind.IsValid() {
		return goerr.New("invalid message kind", goerr.V("kind", m.Kind))
	}
	if err := m.TenantID.Validate(); err != nil {
		return goerr.Wrap(err, "change message without tenant")
	}
	return nil
}

// SyncCompletedPayload accompanies calendar-sync-completed messages
type SyncCompletedPayload struct {
	ConnectionID types.ConnectionID `json:"connection_id"`
	Added        int                `json:"added"`
	Updated      int                `json:"updated"`
	Removed      int                `json:"removed"`
}
