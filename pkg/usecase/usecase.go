package usecase

import (
	"context"

	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/service/provider"
)

// Syncer triggers an immediate sync of one connection. Implemented by the
// scheduler; declared here so use cases do not depend on it directly.
type Syncer interface {
	SyncNow(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (model.SyncOutcome, error)
}

type UseCases struct {
	repo interfaces.Repository

	Connection *ConnectionUseCase
	Auth       *AuthUseCase
	Changes    *ChangesUseCase
}

type Option func(*UseCases)

func New(repo interfaces.Repository, providers *provider.Registry, publisher interfaces.Publisher, syncer Syncer, opts ...Option) *UseCases {
	uc := &UseCases{
		repo: repo,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Connection = NewConnectionUseCase(repo, providers, syncer)
	if uc.Auth == nil {
		uc.Auth = NewAuthUseCase(repo)
	}
	uc.Changes = NewChangesUseCase(publisher)

	return uc
}

// WithAuth overrides the auth use case, used to adjust token TTL
func WithAuth(auth *AuthUseCase) Option {
	return func(uc *UseCases) {
		uc.Auth = auth
	}
}
