package usecase

import (
	"context"
	"encoding/json"

	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/utils/async"
)

// ChangesUseCase is the hook a committed local mutation calls to notify the
// tenant's other clients. The mutation has already been persisted; fan-out
// failures must not surface to the mutating caller.
type ChangesUseCase struct {
	publisher interfaces.Publisher
}

func NewChangesUseCase(publisher interfaces.Publisher) *ChangesUseCase {
	return &ChangesUseCase{
		publisher: publisher,
	}
}

// Announce validates and fans out one change message. Delivery runs
// detached so a slow subscriber never delays the announcing client.
func (uc *ChangesUseCase) Announce(ctx context.Context, kind types.MessageKind, tenantID types.TenantID, entityID string, payload json.RawMessage) error {
	var body any
	if len(payload) > 0 {
		body = payload
	}

	msg, err := model.NewChangeMessage(kind, tenantID, entityID, body)
	if err != nil {
		return err
	}

	async.Dispatch(ctx, func(ctx context.Context) error {
		uc.publisher.Publish(ctx, msg)
		return nil
	})
	return nil
}
