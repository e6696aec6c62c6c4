package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/repository/firestore"
	"github.com/trickpatty/hearthsync/pkg/repository/memory"
	"github.com/trickpatty/hearthsync/pkg/service/provider"
	"github.com/trickpatty/hearthsync/pkg/utils/async"
	"github.com/trickpatty/hearthsync/pkg/utils/errutil"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

// Scheduler drives all connection syncs. It scans for due records on a
// fixed tick, fetches changes through the provider adapters, folds the
// outcome into the record's health fields and fans out change messages.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - For future horizontal scaling, implement distributed locking or leader election
type Scheduler struct {
	repo      interfaces.Repository
	providers *provider.Registry
	publisher interfaces.Publisher

	tick         time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	// group coalesces a manual sync with an in-flight scheduled run of the
	// same connection.
	group singleflight.Group

	stopCh chan struct{}
	doneCh chan struct{}
}

type Option func(*Scheduler)

// WithTick sets how often the due-record scan runs
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		s.tick = d
	}
}

// WithFetchTimeout bounds one provider fetch
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.fetchTimeout = d
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(repo interfaces.Repository, providers *provider.Registry, publisher interfaces.Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:         repo,
		providers:    providers,
		publisher:    publisher,
		tick:         time.Minute,
		fetchTimeout: 2 * time.Minute,
		now:          func() time.Time { return time.Now().UTC() },
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background scan loop. It does not block server startup.
func (s *Scheduler) Start(ctx context.Context) error {
	logging.Default().Info("Sync scheduler starting",
		"tick", s.tick.String(),
		"fetch_timeout", s.fetchTimeout.String())

	go s.run(ctx)

	return nil
}

// Stop signals the scheduler to stop and waits for completion
func (s *Scheduler) Stop() {
	logging.Default().Info("Sync scheduler stopping")
	close(s.stopCh)
	<-s.doneCh
	logging.Default().Info("Sync scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	if err := s.scan(ctx); err != nil {
		logging.Default().Error("Initial sync scan failed (will retry next tick)",
			"error", err.Error())
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				logging.Default().Error("Sync scan failed (will retry next tick)",
					"error", err.Error())
			}

		case <-s.stopCh:
			logging.Default().Info("Sync scheduler received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("Sync scheduler context cancelled")
			return
		}
	}
}

// scan runs one pass over all due connections. Each connection syncs on its
// own goroutine so one slow provider cannot stall the rest of the pass, and
// per-connection failures never abort it.
func (s *Scheduler) scan(ctx context.Context) error {
	due, err := s.repo.Connection().ListDue(ctx, s.now())
	if err != nil {
		return goerr.Wrap(err, "failed to list due connections")
	}

	for _, conn := range due {
		tenantID, id := conn.TenantID, conn.ID
		async.Dispatch(ctx, func(ctx context.Context) error {
			if _, err := s.syncOne(ctx, tenantID, id); err != nil {
				return goerr.Wrap(err, "connection sync failed",
					goerr.V("connection", id), goerr.V("tenant", tenantID))
			}
			return nil
		})
	}

	return nil
}

// SyncNow runs an immediate sync regardless of the schedule. A request that
// races a scheduled run of the same connection joins it instead of fetching
// twice.
func (s *Scheduler) SyncNow(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (model.SyncOutcome, error) {
	conn, err := s.repo.Connection().Get(ctx, tenantID, id)
	if err != nil {
		return model.SyncOutcome{}, err
	}
	if !conn.Enabled || !conn.Status.IsSyncable() {
		return model.SyncOutcome{}, goerr.Wrap(model.ErrNotSyncable, "manual sync rejected",
			goerr.V("id", id), goerr.V("status", conn.Status), goerr.T(types.ErrTagValidation))
	}

	return s.syncOne(ctx, tenantID, id)
}

func (s *Scheduler) syncOne(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (model.SyncOutcome, error) {
	result, err, _ := s.group.Do(string(id), func() (any, error) {
		return s.sync(ctx, tenantID, id)
	})
	if err != nil {
		return model.SyncOutcome{}, err
	}
	return result.(model.SyncOutcome), nil
}

// sync performs one fetch and commits the resulting health transition
func (s *Scheduler) sync(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (model.SyncOutcome, error) {
	conn, err := s.repo.Connection().Get(ctx, tenantID, id)
	if err != nil {
		return model.SyncOutcome{}, err
	}
	if !conn.Enabled || !conn.Status.IsSyncable() {
		// Paused or disconnected since the scan picked it up.
		return model.SyncOutcome{}, nil
	}

	adapter, err := s.providers.Get(conn.Provider)
	if err != nil {
		return model.SyncOutcome{}, err
	}

	logger := logging.From(ctx)
	logger.Info("Connection sync starting",
		"connection", conn.ID,
		"tenant", conn.TenantID,
		"provider", conn.Provider)

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	startedAt := s.now()
	outcome, fetchErr := adapter.FetchChanges(fetchCtx, conn, conn.Continuation)

	if fetchErr != nil {
		outcome = model.SyncOutcome{
			Err:      fetchErr,
			ErrClass: types.ClassifyError(fetchErr),
		}
	}

	committed, err := s.commit(ctx, conn, outcome)
	if err != nil {
		return model.SyncOutcome{}, goerr.Wrap(err, "failed to commit sync outcome",
			goerr.V("connection", conn.ID))
	}

	if outcome.Failed() {
		logger.Warn("Connection sync failed",
			"connection", conn.ID,
			"class", outcome.ErrClass,
			"failures", committed.Failures,
			"error", outcome.Err.Error())
		return outcome, nil
	}

	logger.Info("Connection sync completed",
		"connection", conn.ID,
		"added", outcome.Added,
		"updated", outcome.Updated,
		"removed", outcome.Removed,
		"full_replace", outcome.FullReplace,
		"duration", s.now().Sub(startedAt).String())

	s.announce(ctx, committed, outcome)

	return outcome, nil
}

// commit folds the outcome into the record and writes it back. A revision
// conflict means someone mutated the record mid-sync; the transition is
// reapplied once on the fresh copy.
func (s *Scheduler) commit(ctx context.Context, conn *model.Connection, outcome model.SyncOutcome) (*model.Connection, error) {
	for attempt := 0; ; attempt++ {
		if err := s.apply(conn, outcome); err != nil {
			if errors.Is(err, model.ErrNotSyncable) {
				// Paused or disconnected underneath us; drop the outcome.
				return conn, nil
			}
			return nil, err
		}

		updated, err := s.repo.Connection().Update(ctx, conn)
		if err == nil {
			return updated, nil
		}
		if attempt > 0 || !isConflict(err) {
			return nil, err
		}

		conn, err = s.repo.Connection().Get(ctx, conn.TenantID, conn.ID)
		if err != nil {
			return nil, err
		}
	}
}

func (s *Scheduler) apply(conn *model.Connection, outcome model.SyncOutcome) error {
	now := s.now()
	if outcome.Failed() {
		return conn.RecordFailure(outcome.ErrClass, outcome.Err.Error(), now)
	}
	if outcome.RefreshedToken != nil {
		conn.Token = outcome.RefreshedToken
	}
	return conn.RecordSuccess(outcome.Continuation, now)
}

func isConflict(err error) bool {
	return errors.Is(err, memory.ErrConflict) || errors.Is(err, firestore.ErrConflict)
}

// announce fans out the result of a successful sync. A full replace also
// tells subscribers to drop their cached view of the connection.
func (s *Scheduler) announce(ctx context.Context, conn *model.Connection, outcome model.SyncOutcome) {
	if !outcome.Changed() {
		return
	}

	msg, err := model.NewChangeMessage(types.MessageCalendarSyncCompleted, conn.TenantID, string(conn.ID),
		model.SyncCompletedPayload{
			ConnectionID: conn.ID,
			Added:        outcome.Added,
			Updated:      outcome.Updated,
			Removed:      outcome.Removed,
		})
	if err != nil {
		errutil.Handle(ctx, err, "Failed to build sync completion message")
		return
	}
	s.publisher.Publish(ctx, msg)

	if outcome.FullReplace {
		resync, err := model.NewChangeMessage(types.MessageFullResyncRequired, conn.TenantID, string(conn.ID), nil)
		if err != nil {
			errutil.Handle(ctx, err, "Failed to build full resync message")
			return
		}
		s.publisher.Publish(ctx, resync)
	}
}
