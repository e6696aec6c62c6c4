package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

var (
	// ErrIllegalTransition is returned when a lifecycle transition is not
	// permitted from the record's current status.
	ErrIllegalTransition = goerr.New("illegal connection transition")

	// ErrNotSyncable is returned when a sync is attempted against a paused
	// or disconnected record.
	ErrNotSyncable = goerr.New("connection is not syncable")

	// ErrInvalidSourceURL is returned when an ICS subscription URL cannot
	// be parsed or uses an unsupported scheme.
	ErrInvalidSourceURL = goerr.New("invalid subscription URL", goerr.T(types.ErrTagValidation))
)

// DefaultBackoffCap bounds the retry delay of a persistently failing
// connection so it degrades to roughly daily attempts.
const DefaultBackoffCap = 24 * time.Hour

// TokenPair is the opaque OAuth credential set for a connection
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Connection is the durable record of one external calendar link
type Connection struct {
	ID       types.ConnectionID
	TenantID types.TenantID
	Provider types.ProviderKind
	Name     string
	Color    string
	Members  []types.MemberID

	// Auth material. Token is populated for OAuth kinds, SourceURL for ICS;
	// never both (enforced by Validate).
	Token              *TokenPair
	SourceURL          string
	ExternalCalendarID string

	Status       types.ConnectionStatus
	LastSyncAt   time.Time
	LastError    string
	Failures     int
	NextDueAt    *time.Time
	Continuation string

	Interval      time.Duration
	LookBackDays  int
	LookAheadDays int
	Enabled       bool

	// Rev is the optimistic-concurrency revision, bumped by the repository
	// on every committed update.
	Rev int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOAuthConnection creates a connection awaiting provider authorization
func NewOAuthConnection(tenantID types.TenantID, kind types.ProviderKind, name string, interval time.Duration) (*Connection, error) {
	if !kind.IsOAuth() {
		return nil, goerr.New("provider kind does not use OAuth", goerr.V("kind", kind), goerr.T(types.ErrTagValidation))
	}
	conn := newConnection(tenantID, kind, name, interval)
	conn.Status = types.ConnectionStatusPendingAuth
	return conn, nil
}

// NewICSConnection creates an active subscription to an ICS URL. The URL is
// normalized; pre-flight reachability is the provider adapter's job.
func NewICSConnection(tenantID types.TenantID, name, sourceURL string, interval time.Duration) (*Connection, error) {
	normalized, err := NormalizeSourceURL(sourceURL)
	if err != nil {
		return nil, err
	}
	conn := newConnection(tenantID, types.ProviderICS, name, interval)
	conn.Status = types.ConnectionStatusActive
	conn.SourceURL = normalized
	return conn, nil
}

func newConnection(tenantID types.TenantID, kind types.ProviderKind, name string, interval time.Duration) *Connection {
	return &Connection{
		ID:            types.NewConnectionID(),
		TenantID:      tenantID,
		Provider:      kind,
		Name:          name,
		Interval:      interval,
		LookBackDays:  30,
		LookAheadDays: 90,
		Enabled:       true,
	}
}

// NormalizeSourceURL validates and canonicalizes an ICS subscription URL.
// The webcal scheme used by subscription links is rewritten to https.
func NormalizeSourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", goerr.Wrap(ErrInvalidSourceURL, "empty URL")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", goerr.Wrap(ErrInvalidSourceURL, "unparsable URL", goerr.V("url", raw))
	}

	switch u.Scheme {
	case "webcal":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", goerr.Wrap(ErrInvalidSourceURL, "unsupported scheme", goerr.V("scheme", u.Scheme))
	}

	if u.Host == "" {
		return "", goerr.Wrap(ErrInvalidSourceURL, "missing host")
	}

	return u.String(), nil
}

// Validate checks the record's structural invariants
func (c *Connection) Validate() error {
	if err := c.ID.Validate(); err != nil {
		return err
	}
	if err := c.TenantID.Validate(); err != nil {
		return err
	}
	if !c.Provider.IsValid() {
		return goerr.New("invalid provider kind", goerr.V("kind", c.Provider))
	}
	if !c.Status.IsValid() {
		return goerr.New("invalid connection status", goerr.V("status", c.Status))
	}
	if c.Interval <= 0 {
		return goerr.New("sync interval must be positive", goerr.V("interval", c.Interval))
	}

	if c.Provider.IsOAuth() && c.SourceURL != "" {
		return goerr.New("OAuth connection must not hold a source URL")
	}
	if !c.Provider.IsOAuth() && c.Token != nil {
		return goerr.New("ICS connection must not hold a token pair")
	}

	if c.NextDueAt != nil && !c.schedulable() {
		return goerr.New("next-due must be unset for disabled, paused or disconnected connections",
			goerr.V("status", c.Status), goerr.V("enabled", c.Enabled))
	}

	return nil
}

// schedulable reports whether the record may carry a next-due timestamp
func (c *Connection) schedulable() bool {
	if !c.Enabled {
		return false
	}
	switch c.Status {
	case types.ConnectionStatusPaused, types.ConnectionStatusDisconnected:
		return false
	}
	return true
}

// IsDue reports whether the connection should be synced now
func (c *Connection) IsDue(now time.Time) bool {
	return c.Enabled && c.Status.IsSyncable() && c.NextDueAt != nil && !c.NextDueAt.After(now)
}

// CompleteAuth stores the granted credentials and activates the record.
// Legal from pending-auth (initial grant) and auth-error (re-grant); a
// re-grant does not require a full re-sync first.
func (c *Connection) CompleteAuth(token TokenPair, externalCalendarID string, now time.Time) error {
	switch c.Status {
	case types.ConnectionStatusPendingAuth, types.ConnectionStatusAuthError:
	default:
		return goerr.Wrap(ErrIllegalTransition, "authorization completion not expected",
			goerr.V("status", c.Status))
	}
	if !c.Provider.IsOAuth() {
		return goerr.New("ICS connections need no authorization", goerr.V("id", c.ID))
	}

	c.Token = &token
	if externalCalendarID != "" {
		c.ExternalCalendarID = externalCalendarID
	}
	c.Status = types.ConnectionStatusActive
	c.Failures = 0
	c.LastError = ""
	c.scheduleAt(now)
	return nil
}

// RecordSuccess applies a successful sync outcome to the health fields
func (c *Connection) RecordSuccess(continuation string, now time.Time) error {
	if !c.Status.IsSyncable() {
		return goerr.Wrap(ErrNotSyncable, "cannot record success", goerr.V("status", c.Status))
	}

	c.Status = types.ConnectionStatusActive
	c.Failures = 0
	c.LastError = ""
	c.LastSyncAt = now
	c.Continuation = continuation
	c.scheduleAt(now.Add(c.Interval))
	return nil
}

// RecordFailure applies a failed sync outcome. Auth failures stop automatic
// retry; everything else backs off exponentially up to DefaultBackoffCap.
func (c *Connection) RecordFailure(class types.FailureClass, errText string, now time.Time) error {
	if !c.Status.IsSyncable() {
		return goerr.Wrap(ErrNotSyncable, "cannot record failure", goerr.V("status", c.Status))
	}

	c.Failures++
	c.LastError = errText

	if class == types.FailureAuthInvalid {
		c.Status = types.ConnectionStatusAuthError
		c.NextDueAt = nil
		return nil
	}

	c.Status = types.ConnectionStatusSyncError
	c.scheduleAt(now.Add(BackoffDelay(c.Interval, c.Failures, DefaultBackoffCap)))
	return nil
}

// BackoffDelay computes min(interval * 2^(failures-1), ceiling). It is
// non-decreasing in the failure count and never exceeds the ceiling.
func BackoffDelay(interval time.Duration, failures int, ceiling time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := interval
	for i := 1; i < failures; i++ {
		if delay >= ceiling {
			return ceiling
		}
		delay *= 2
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// Pause suspends syncing. Explicit admin action, legal only from active.
func (c *Connection) Pause() error {
	if !c.Status.CanTransitionTo(types.ConnectionStatusPaused) {
		return goerr.Wrap(ErrIllegalTransition, "cannot pause", goerr.V("status", c.Status))
	}
	c.Status = types.ConnectionStatusPaused
	c.NextDueAt = nil
	return nil
}

// Resume reactivates a paused connection and reschedules it immediately
func (c *Connection) Resume(now time.Time) error {
	if c.Status != types.ConnectionStatusPaused {
		return goerr.Wrap(ErrIllegalTransition, "cannot resume", goerr.V("status", c.Status))
	}
	c.Status = types.ConnectionStatusActive
	c.scheduleAt(now.Add(c.Interval))
	return nil
}

// Disconnect retires the record. Auth material and the continuation token
// are cleared irreversibly; the record is kept for audit.
func (c *Connection) Disconnect() error {
	if c.Status.IsTerminal() {
		return goerr.Wrap(ErrIllegalTransition, "already disconnected", goerr.V("id", c.ID))
	}
	c.Status = types.ConnectionStatusDisconnected
	c.Token = nil
	c.SourceURL = ""
	c.Continuation = ""
	c.NextDueAt = nil
	return nil
}

// ScheduleImmediate marks the connection due right away, used when a new
// record should be synced on the next scheduler pass
func (c *Connection) ScheduleImmediate(now time.Time) {
	c.scheduleAt(now)
}

// SetInterval changes the sync cadence and recomputes next-due from the
// last successful sync, so shortening the interval takes effect at once.
func (c *Connection) SetInterval(interval time.Duration, now time.Time) {
	c.Interval = interval
	if c.NextDueAt == nil {
		return
	}
	base := c.LastSyncAt
	if base.IsZero() {
		base = now
	}
	due := base.Add(interval)
	if due.Before(now) {
		due = now
	}
	c.scheduleAt(due)
}

// SetEnabled toggles the policy flag. Re-enabling recomputes next-due so the
// connection is picked up on the following scheduler pass.
func (c *Connection) SetEnabled(enabled bool, now time.Time) {
	if c.Enabled == enabled {
		return
	}
	c.Enabled = enabled
	if enabled {
		c.scheduleAt(now.Add(c.Interval))
	} else {
		c.NextDueAt = nil
	}
}

// scheduleAt sets next-due, respecting the scheduling invariant
func (c *Connection) scheduleAt(t time.Time) {
	if !c.schedulable() {
		c.NextDueAt = nil
		return
	}
	due := t
	c.NextDueAt = &due
}
