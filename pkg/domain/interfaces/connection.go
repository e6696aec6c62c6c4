package interfaces

import (
	"context"
	"time"

	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

// ConnectionRepository defines persistence for calendar connection records.
//
// Update enforces optimistic concurrency: it compares the record's Rev
// against the stored one and fails with ErrConflict when they differ, since
// a manual sync and the scheduler can both observe "due" before either
// commits.
type ConnectionRepository interface {
	// Create persists a new connection record
	Create(ctx context.Context, conn *model.Connection) (*model.Connection, error)

	// Get retrieves a connection by ID within a tenant
	Get(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (*model.Connection, error)

	// List retrieves all connections of a tenant
	List(ctx context.Context, tenantID types.TenantID) ([]*model.Connection, error)

	// ListDue retrieves every enabled, syncable connection across tenants
	// whose next-due timestamp is at or before now
	ListDue(ctx context.Context, now time.Time) ([]*model.Connection, error)

	// Update persists the record if conn.Rev still matches the stored
	// revision, then bumps it
	Update(ctx context.Context, conn *model.Connection) (*model.Connection, error)
}
