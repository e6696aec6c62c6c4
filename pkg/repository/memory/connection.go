package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

type connectionRepository struct {
	mu          sync.RWMutex
	connections map[types.ConnectionID]*model.Connection
}

func newConnectionRepository() *connectionRepository {
	return &connectionRepository{
		connections: make(map[types.ConnectionID]*model.Connection),
	}
}

// copyConnection creates a deep copy of a connection record
func copyConnection(conn *model.Connection) *model.Connection {
	copied := *conn

	if conn.Token != nil {
		token := *conn.Token
		copied.Token = &token
	}
	if conn.NextDueAt != nil {
		due := *conn.NextDueAt
		copied.NextDueAt = &due
	}
	if conn.Members != nil {
		copied.Members = make([]types.MemberID, len(conn.Members))
		copy(copied.Members, conn.Members)
	}

	return &copied
}

func (r *connectionRepository) Create(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	if err := conn.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid connection")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID]; exists {
		return nil, goerr.New("connection already exists", goerr.V("id", conn.ID))
	}

	now := time.Now().UTC()
	created := copyConnection(conn)
	created.Rev = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	r.connections[created.ID] = created
	return copyConnection(created), nil
}

func (r *connectionRepository) Get(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (*model.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	if !exists || conn.TenantID != tenantID {
		return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
	}

	return copyConnection(conn), nil
}

func (r *connectionRepository) List(ctx context.Context, tenantID types.TenantID) ([]*model.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*model.Connection, 0)
	for _, conn := range r.connections {
		if conn.TenantID == tenantID {
			connections = append(connections, copyConnection(conn))
		}
	}

	return connections, nil
}

func (r *connectionRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*model.Connection
	for _, conn := range r.connections {
		if conn.IsDue(now) {
			due = append(due, copyConnection(conn))
		}
	}

	return due, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	if err := conn.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid connection")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.connections[conn.ID]
	if !exists || existing.TenantID != conn.TenantID {
		return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", conn.ID))
	}
	if existing.Rev != conn.Rev {
		return nil, goerr.Wrap(ErrConflict, "connection was modified concurrently",
			goerr.V("id", conn.ID), goerr.V("want", conn.Rev), goerr.V("have", existing.Rev))
	}

	updated := copyConnection(conn)
	updated.Rev = existing.Rev + 1
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	r.connections[updated.ID] = updated
	return copyConnection(updated), nil
}
