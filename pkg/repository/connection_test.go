package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/model/auth"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/repository/firestore"
	"github.com/trickpatty/hearthsync/pkg/repository/memory"
)

func newICS(t *testing.T, tenantID types.TenantID, name string) *model.Connection {
	t.Helper()
	conn, err := model.NewICSConnection(tenantID, name, "https://cal.example.com/feed.ics", time.Hour)
	gt.NoError(t, err).Required()
	return conn
}

func runConnectionRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create persists record with initial revision", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newICS(t, "family-1", "School")
		created, err := repo.Connection().Create(ctx, conn)
		gt.NoError(t, err).Required()

		gt.Value(t, created.ID).Equal(conn.ID)
		gt.Value(t, created.TenantID).Equal(conn.TenantID)
		gt.Value(t, created.SourceURL).Equal(conn.SourceURL)
		gt.Number(t, created.Rev).Equal(1)
		gt.B(t, created.CreatedAt.IsZero()).False()
		gt.B(t, created.UpdatedAt.IsZero()).False()
	})

	t.Run("Get retrieves record scoped to tenant", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Connection().Create(ctx, newICS(t, "family-1", "School"))
		gt.NoError(t, err).Required()

		got, err := repo.Connection().Get(ctx, "family-1", created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Name).Equal("School")

		// Another tenant must not see it.
		_, err = repo.Connection().Get(ctx, "family-2", created.ID)
		gt.Error(t, err)
		gt.B(t, errors.Is(err, memory.ErrNotFound) || errors.Is(err, firestore.ErrNotFound)).True()
	})

	t.Run("Get returns not found for missing record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Connection().Get(ctx, "family-1", types.ConnectionID(uuid.New().String()))
		gt.Error(t, err)
		gt.B(t, errors.Is(err, memory.ErrNotFound) || errors.Is(err, firestore.ErrNotFound)).True()
	})

	t.Run("List returns only the tenant's connections", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Connection().Create(ctx, newICS(t, "family-1", "A"))
		gt.NoError(t, err).Required()
		_, err = repo.Connection().Create(ctx, newICS(t, "family-1", "B"))
		gt.NoError(t, err).Required()
		_, err = repo.Connection().Create(ctx, newICS(t, "family-2", "C"))
		gt.NoError(t, err).Required()

		conns, err := repo.Connection().List(ctx, "family-1")
		gt.NoError(t, err).Required()
		gt.Array(t, conns).Length(2)
	})

	t.Run("Update enforces optimistic concurrency", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Connection().Create(ctx, newICS(t, "family-1", "School"))
		gt.NoError(t, err).Required()

		first := *created
		second := *created

		first.Name = "School (renamed)"
		updated, err := repo.Connection().Update(ctx, &first)
		gt.NoError(t, err).Required()
		gt.Number(t, updated.Rev).Equal(2)

		// The stale copy still carries Rev 1 and must be rejected.
		second.Name = "School (conflicting)"
		_, err = repo.Connection().Update(ctx, &second)
		gt.Error(t, err)
		gt.B(t, errors.Is(err, memory.ErrConflict) || errors.Is(err, firestore.ErrConflict)).True()
	})

	t.Run("ListDue returns enabled syncable records at or past due", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now().UTC()

		due := newICS(t, "family-1", "due")
		gt.NoError(t, due.RecordSuccess("fp", now.Add(-2*time.Hour)))
		created, err := repo.Connection().Create(ctx, due)
		gt.NoError(t, err).Required()

		future := newICS(t, "family-1", "future")
		gt.NoError(t, future.RecordSuccess("fp", now))
		_, err = repo.Connection().Create(ctx, future)
		gt.NoError(t, err).Required()

		paused := newICS(t, "family-1", "paused")
		gt.NoError(t, paused.RecordSuccess("fp", now.Add(-2*time.Hour)))
		gt.NoError(t, paused.Pause())
		_, err = repo.Connection().Create(ctx, paused)
		gt.NoError(t, err).Required()

		disabled := newICS(t, "family-1", "disabled")
		gt.NoError(t, disabled.RecordSuccess("fp", now.Add(-2*time.Hour)))
		disabled.SetEnabled(false, now)
		_, err = repo.Connection().Create(ctx, disabled)
		gt.NoError(t, err).Required()

		got, err := repo.Connection().ListDue(ctx, now)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(1)
		gt.Value(t, got[0].ID).Equal(created.ID)
	})
}

func runTokenRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put and Get roundtrip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		token, err := auth.NewToken("family-1", "agent-1", time.Hour)
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.PutToken(ctx, token))

		got, err := repo.GetToken(ctx, token.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.TenantID).Equal(token.TenantID)
		gt.B(t, got.VerifySecret(token.Secret)).True()
	})

	t.Run("Get drops expired token", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		token, err := auth.NewToken("family-1", "agent-1", -time.Minute)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.PutToken(ctx, token))

		_, err = repo.GetToken(ctx, token.ID)
		gt.Error(t, err)
		gt.B(t, errors.Is(err, memory.ErrNotFound) || errors.Is(err, firestore.ErrNotFound)).True()

		// The credential is gone from the store, not merely rejected.
		gt.Error(t, repo.DeleteToken(ctx, token.ID))
	})

	t.Run("Delete removes token", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		token, err := auth.NewToken("family-1", "agent-1", time.Hour)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.PutToken(ctx, token))

		gt.NoError(t, repo.DeleteToken(ctx, token.ID))

		_, err = repo.GetToken(ctx, token.ID)
		gt.Error(t, err)

		gt.Error(t, repo.DeleteToken(ctx, token.ID))
	})
}

func TestMemoryConnectionRepository(t *testing.T) {
	runConnectionRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestMemoryTokenRepository(t *testing.T) {
	runTokenRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestFirestoreConnectionRepository(t *testing.T) {
	runConnectionRepositoryTest(t, newFirestoreRepo)
}

func TestFirestoreTokenRepository(t *testing.T) {
	runTokenRepositoryTest(t, newFirestoreRepo)
}

func newFirestoreRepo(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT_ID not set")
	}

	repo, err := firestore.New(context.Background(), projectID, os.Getenv("FIRESTORE_DATABASE_ID"),
		firestore.WithCollectionPrefix("test_"+uuid.New().String()[:8]))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		_ = repo.Close()
	})

	return repo
}
