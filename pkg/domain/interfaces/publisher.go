package interfaces

import (
	"context"

	"github.com/trickpatty/hearthsync/pkg/domain/model"
)

// Publisher delivers change messages to every subscriber of the owning
// tenant. Delivery is at-least-once, best-effort: Publish never reports a
// per-subscriber failure back to the mutating caller.
type Publisher interface {
	Publish(ctx context.Context, msg model.ChangeMessage)
}
