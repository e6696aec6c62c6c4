package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/service/provider"
)

// DefaultSyncInterval applies when a connection is created without one
const DefaultSyncInterval = 15 * time.Minute

// ConnectionUseCase handles the lifecycle of calendar connections
type ConnectionUseCase struct {
	repo      interfaces.Repository
	providers *provider.Registry
	syncer    Syncer
}

func NewConnectionUseCase(repo interfaces.Repository, providers *provider.Registry, syncer Syncer) *ConnectionUseCase {
	return &ConnectionUseCase{
		repo:      repo,
		providers: providers,
		syncer:    syncer,
	}
}

// CreateOAuthInput describes a new OAuth-backed connection
type CreateOAuthInput struct {
	Provider types.ProviderKind
	Name     string
	Color    string
	Members  []types.MemberID
	Interval time.Duration
}

// CreateOAuthResult pairs the pending record with the consent URL the user
// must visit to finish authorization
type CreateOAuthResult struct {
	Connection *model.Connection
	AuthURL    string
}

// CreateOAuth creates a connection awaiting provider authorization. The
// record ID doubles as the OAuth state parameter.
func (uc *ConnectionUseCase) CreateOAuth(ctx context.Context, tenantID types.TenantID, input CreateOAuthInput) (*CreateOAuthResult, error) {
	authorizer, err := uc.providers.Authorizer(input.Provider)
	if err != nil {
		return nil, err
	}

	interval := input.Interval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	conn, err := model.NewOAuthConnection(tenantID, input.Provider, input.Name, interval)
	if err != nil {
		return nil, err
	}
	conn.Color = input.Color
	conn.Members = input.Members

	created, err := uc.repo.Connection().Create(ctx, conn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection")
	}

	return &CreateOAuthResult{
		Connection: created,
		AuthURL:    authorizer.AuthCodeURL(string(created.ID)),
	}, nil
}

// CompleteAuth finishes the OAuth flow with the provider's authorization
// code and activates the connection
func (uc *ConnectionUseCase) CompleteAuth(ctx context.Context, tenantID types.TenantID, id types.ConnectionID, code string) (*model.Connection, error) {
	conn, err := uc.repo.Connection().Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	authorizer, err := uc.providers.Authorizer(conn.Provider)
	if err != nil {
		return nil, err
	}

	pair, err := authorizer.Exchange(ctx, code)
	if err != nil {
		return nil, goerr.Wrap(err, "authorization failed", goerr.V("id", id))
	}

	if err := conn.CompleteAuth(pair, "", time.Now().UTC()); err != nil {
		return nil, err
	}

	updated, err := uc.repo.Connection().Update(ctx, conn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store credentials", goerr.V("id", id))
	}

	return updated, nil
}

// CreateICSInput describes a new feed subscription
type CreateICSInput struct {
	Name      string
	Color     string
	Members   []types.MemberID
	SourceURL string
	Interval  time.Duration
}

// CreateICS validates the feed and creates an active subscription
func (uc *ConnectionUseCase) CreateICS(ctx context.Context, tenantID types.TenantID, input CreateICSInput) (*model.Connection, error) {
	adapter, err := uc.providers.Get(types.ProviderICS)
	if err != nil {
		return nil, err
	}

	result, err := adapter.Validate(ctx, input.SourceURL)
	if err != nil {
		return nil, goerr.Wrap(err, "feed validation failed")
	}
	if !result.Valid {
		return nil, goerr.New("feed rejected",
			goerr.V("reason", result.Reason), goerr.T(types.ErrTagValidation))
	}

	interval := input.Interval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	conn, err := model.NewICSConnection(tenantID, input.Name, input.SourceURL, interval)
	if err != nil {
		return nil, err
	}
	conn.Color = input.Color
	conn.Members = input.Members
	conn.ScheduleImmediate(time.Now().UTC())

	created, err := uc.repo.Connection().Create(ctx, conn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection")
	}

	return created, nil
}

// Get returns one connection of the tenant
func (uc *ConnectionUseCase) Get(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (*model.Connection, error) {
	return uc.repo.Connection().Get(ctx, tenantID, id)
}

// List returns all of the tenant's connections
func (uc *ConnectionUseCase) List(ctx context.Context, tenantID types.TenantID) ([]*model.Connection, error) {
	return uc.repo.Connection().List(ctx, tenantID)
}

// UpdateSettingsInput carries the mutable policy fields. Nil means keep.
type UpdateSettingsInput struct {
	Name     *string
	Color    *string
	Members  []types.MemberID
	Interval *time.Duration
	Enabled  *bool
}

// UpdateSettings changes display and scheduling policy of a connection
func (uc *ConnectionUseCase) UpdateSettings(ctx context.Context, tenantID types.TenantID, id types.ConnectionID, input UpdateSettingsInput) (*model.Connection, error) {
	conn, err := uc.repo.Connection().Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if input.Name != nil {
		conn.Name = *input.Name
	}
	if input.Color != nil {
		conn.Color = *input.Color
	}
	if input.Members != nil {
		conn.Members = input.Members
	}
	if input.Interval != nil {
		if *input.Interval <= 0 {
			return nil, goerr.New("sync interval must be positive",
				goerr.V("interval", *input.Interval), goerr.T(types.ErrTagValidation))
		}
		conn.SetInterval(*input.Interval, now)
	}
	if input.Enabled != nil {
		conn.SetEnabled(*input.Enabled, now)
	}

	updated, err := uc.repo.Connection().Update(ctx, conn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update connection", goerr.V("id", id))
	}

	return updated, nil
}

// Pause suspends a connection's syncing
func (uc *ConnectionUseCase) Pause(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (*model.Connection, error) {
	conn, err := uc.repo.Connection().Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := conn.Pause(); err != nil {
		return nil, err
	}
	return uc.repo.Connection().Update(ctx, conn)
}

// Resume reactivates a paused connection
func (uc *ConnectionUseCase) Resume(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (*model.Connection, error) {
	conn, err := uc.repo.Connection().Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := conn.Resume(time.Now().UTC()); err != nil {
		return nil, err
	}
	return uc.repo.Connection().Update(ctx, conn)
}

// Disconnect retires a connection. Disconnecting an already-retired record
// succeeds without touching it, so a retried request cannot fail.
func (uc *ConnectionUseCase) Disconnect(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (*model.Connection, error) {
	conn, err := uc.repo.Connection().Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if conn.Status.IsTerminal() {
		return conn, nil
	}
	if err := conn.Disconnect(); err != nil {
		return nil, err
	}
	return uc.repo.Connection().Update(ctx, conn)
}

// SyncNow triggers an immediate sync
func (uc *ConnectionUseCase) SyncNow(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (model.SyncOutcome, error) {
	return uc.syncer.SyncNow(ctx, tenantID, id)
}
