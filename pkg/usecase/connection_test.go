package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/repository/memory"
	"github.com/trickpatty/hearthsync/pkg/service/notify"
	"github.com/trickpatty/hearthsync/pkg/service/provider"
	"github.com/trickpatty/hearthsync/pkg/usecase"
)

// stubAdapter scripts validation results and implements the OAuth surface
type stubAdapter struct {
	valid      bool
	reason     string
	exchanged  string
	syncCalled int
}

func (s *stubAdapter) Validate(ctx context.Context, source string) (interfaces.ValidationResult, error) {
	return interfaces.ValidationResult{Valid: s.valid, Reason: s.reason}, nil
}

func (s *stubAdapter) FetchChanges(ctx context.Context, conn *model.Connection, continuation string) (model.SyncOutcome, error) {
	return model.SyncOutcome{}, nil
}

func (s *stubAdapter) AuthCodeURL(state string) string {
	return "https://provider.example.com/consent?state=" + state
}

func (s *stubAdapter) Exchange(ctx context.Context, code string) (model.TokenPair, error) {
	s.exchanged = code
	return model.TokenPair{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)}, nil
}

// stubSyncer records SyncNow calls
type stubSyncer struct {
	called []types.ConnectionID
}

func (s *stubSyncer) SyncNow(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (model.SyncOutcome, error) {
	s.called = append(s.called, id)
	return model.SyncOutcome{Added: 1}, nil
}

type ucFixture struct {
	repo    *memory.Memory
	adapter *stubAdapter
	syncer  *stubSyncer
	uc      *usecase.UseCases
}

func newUCFixture(t *testing.T) *ucFixture {
	t.Helper()

	f := &ucFixture{
		repo:    memory.New(),
		adapter: &stubAdapter{valid: true},
		syncer:  &stubSyncer{},
	}

	registry := provider.NewRegistry()
	registry.Register(types.ProviderICS, f.adapter)
	registry.Register(types.ProviderGoogleCalendar, f.adapter)

	f.uc = usecase.New(f.repo, registry, notify.NewHub(), f.syncer)
	return f
}

func TestConnectionUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("ICS creation validates the feed first", func(t *testing.T) {
		f := newUCFixture(t)

		conn, err := f.uc.Connection.CreateICS(ctx, "family-1", usecase.CreateICSInput{
			Name:      "School",
			SourceURL: "webcal://cal.example.com/feed.ics",
			Interval:  time.Hour,
		})
		gt.NoError(t, err).Required()

		gt.Value(t, conn.Status).Equal(types.ConnectionStatusActive)
		gt.Value(t, conn.SourceURL).Equal("https://cal.example.com/feed.ics")
		gt.Value(t, conn.NextDueAt).NotNil()
	})

	t.Run("rejected feed never creates a record", func(t *testing.T) {
		f := newUCFixture(t)
		f.adapter.valid = false
		f.adapter.reason = "feed returned status 404"

		_, err := f.uc.Connection.CreateICS(ctx, "family-1", usecase.CreateICSInput{
			Name:      "Broken",
			SourceURL: "https://cal.example.com/missing.ics",
		})
		gt.Error(t, err)

		conns, err := f.uc.Connection.List(ctx, "family-1")
		gt.NoError(t, err).Required()
		gt.Array(t, conns).Length(0)
	})

	t.Run("OAuth creation returns pending record and consent URL", func(t *testing.T) {
		f := newUCFixture(t)

		result, err := f.uc.Connection.CreateOAuth(ctx, "family-1", usecase.CreateOAuthInput{
			Provider: types.ProviderGoogleCalendar,
			Name:     "Work",
		})
		gt.NoError(t, err).Required()

		gt.Value(t, result.Connection.Status).Equal(types.ConnectionStatusPendingAuth)
		gt.Value(t, result.Connection.Interval).Equal(usecase.DefaultSyncInterval)
		gt.S(t, result.AuthURL).Contains(string(result.Connection.ID))
	})

	t.Run("completing auth activates the record", func(t *testing.T) {
		f := newUCFixture(t)

		result, err := f.uc.Connection.CreateOAuth(ctx, "family-1", usecase.CreateOAuthInput{
			Provider: types.ProviderGoogleCalendar,
			Name:     "Work",
		})
		gt.NoError(t, err).Required()

		conn, err := f.uc.Connection.CompleteAuth(ctx, "family-1", result.Connection.ID, "auth-code")
		gt.NoError(t, err).Required()

		gt.Value(t, f.adapter.exchanged).Equal("auth-code")
		gt.Value(t, conn.Status).Equal(types.ConnectionStatusActive)
		gt.Value(t, conn.Token).NotNil()
		gt.Value(t, conn.NextDueAt).NotNil()
	})

	t.Run("ICS kind cannot start an OAuth flow", func(t *testing.T) {
		f := newUCFixture(t)

		_, err := f.uc.Connection.CreateOAuth(ctx, "family-1", usecase.CreateOAuthInput{
			Provider: types.ProviderICS,
			Name:     "Feed",
		})
		gt.Error(t, err)
	})

	t.Run("settings update reschedules on interval change", func(t *testing.T) {
		f := newUCFixture(t)
		conn, err := f.uc.Connection.CreateICS(ctx, "family-1", usecase.CreateICSInput{
			Name:      "School",
			SourceURL: "https://cal.example.com/feed.ics",
			Interval:  24 * time.Hour,
		})
		gt.NoError(t, err).Required()

		interval := time.Hour
		name := "School calendar"
		updated, err := f.uc.Connection.UpdateSettings(ctx, "family-1", conn.ID, usecase.UpdateSettingsInput{
			Name:     &name,
			Interval: &interval,
		})
		gt.NoError(t, err).Required()

		gt.Value(t, updated.Name).Equal("School calendar")
		gt.Value(t, updated.Interval).Equal(time.Hour)
		gt.Number(t, updated.Rev).Equal(2)
	})

	t.Run("disabling clears the schedule, re-enabling restores it", func(t *testing.T) {
		f := newUCFixture(t)
		conn, err := f.uc.Connection.CreateICS(ctx, "family-1", usecase.CreateICSInput{
			Name:      "School",
			SourceURL: "https://cal.example.com/feed.ics",
		})
		gt.NoError(t, err).Required()

		off := false
		updated, err := f.uc.Connection.UpdateSettings(ctx, "family-1", conn.ID, usecase.UpdateSettingsInput{Enabled: &off})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.NextDueAt).Nil()

		on := true
		updated, err = f.uc.Connection.UpdateSettings(ctx, "family-1", conn.ID, usecase.UpdateSettingsInput{Enabled: &on})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.NextDueAt).NotNil()
	})

	t.Run("pause and resume round-trip", func(t *testing.T) {
		f := newUCFixture(t)
		conn, err := f.uc.Connection.CreateICS(ctx, "family-1", usecase.CreateICSInput{
			Name:      "School",
			SourceURL: "https://cal.example.com/feed.ics",
		})
		gt.NoError(t, err).Required()

		paused, err := f.uc.Connection.Pause(ctx, "family-1", conn.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, paused.Status).Equal(types.ConnectionStatusPaused)
		gt.Value(t, paused.NextDueAt).Nil()

		resumed, err := f.uc.Connection.Resume(ctx, "family-1", conn.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, resumed.Status).Equal(types.ConnectionStatusActive)
		gt.Value(t, resumed.NextDueAt).NotNil()
	})

	t.Run("disconnect is idempotent", func(t *testing.T) {
		f := newUCFixture(t)
		conn, err := f.uc.Connection.CreateICS(ctx, "family-1", usecase.CreateICSInput{
			Name:      "School",
			SourceURL: "https://cal.example.com/feed.ics",
		})
		gt.NoError(t, err).Required()

		first, err := f.uc.Connection.Disconnect(ctx, "family-1", conn.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, first.Status).Equal(types.ConnectionStatusDisconnected)
		gt.Value(t, first.SourceURL).Equal("")

		second, err := f.uc.Connection.Disconnect(ctx, "family-1", conn.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, second.Status).Equal(types.ConnectionStatusDisconnected)
		gt.Number(t, second.Rev).Equal(first.Rev)
	})

	t.Run("manual sync delegates to the scheduler", func(t *testing.T) {
		f := newUCFixture(t)
		conn, err := f.uc.Connection.CreateICS(ctx, "family-1", usecase.CreateICSInput{
			Name:      "School",
			SourceURL: "https://cal.example.com/feed.ics",
		})
		gt.NoError(t, err).Required()

		outcome, err := f.uc.Connection.SyncNow(ctx, "family-1", conn.ID)
		gt.NoError(t, err).Required()
		gt.Number(t, outcome.Added).Equal(1)
		gt.Array(t, f.syncer.called).Length(1)
	})
}

func TestAuthUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("issued token validates", func(t *testing.T) {
		f := newUCFixture(t)
		token, err := f.uc.Auth.IssueToken(ctx, "family-1", "agent-1")
		gt.NoError(t, err).Required()

		got, err := f.uc.Auth.ValidateToken(ctx, token.ID, token.Secret)
		gt.NoError(t, err).Required()
		gt.Value(t, got.TenantID).Equal(types.TenantID("family-1"))
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		f := newUCFixture(t)
		token, err := f.uc.Auth.IssueToken(ctx, "family-1", "agent-1")
		gt.NoError(t, err).Required()

		_, err = f.uc.Auth.ValidateToken(ctx, token.ID, "wrong")
		gt.Error(t, err)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		repo := memory.New()
		auth := usecase.NewAuthUseCase(repo, usecase.WithTokenTTL(-time.Minute))
		token, err := auth.IssueToken(ctx, "family-1", "agent-1")
		gt.NoError(t, err).Required()

		_, err = auth.ValidateToken(ctx, token.ID, token.Secret)
		gt.Error(t, err)
	})

	t.Run("revoked token stops validating", func(t *testing.T) {
		f := newUCFixture(t)
		token, err := f.uc.Auth.IssueToken(ctx, "family-1", "agent-1")
		gt.NoError(t, err).Required()

		gt.NoError(t, f.uc.Auth.RevokeToken(ctx, token.ID))
		_, err = f.uc.Auth.ValidateToken(ctx, token.ID, token.Secret)
		gt.Error(t, err)

		// Second revoke is a no-op.
		gt.NoError(t, f.uc.Auth.RevokeToken(ctx, token.ID))
	})
}
