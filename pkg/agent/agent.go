package agent

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
)

// ErrGaveUp is the terminal error after the reconnect attempt ceiling is
// reached. The agent stays disconnected until identity or network changes.
var ErrGaveUp = goerr.New("reconnect attempts exhausted")

// Identity is the authenticated principal driving a subscription
type Identity struct {
	TenantID types.TenantID
	Token    string
}

// Conn is one established subscription stream
type Conn interface {
	// Receive blocks until the next message or a stream error
	Receive(ctx context.Context) (model.ChangeMessage, error)

	// Close tears the stream down
	Close(reason string)
}

// Transport establishes subscription streams. Injected so every client kind
// shares the same agent while bringing its own wire protocol.
type Transport interface {
	Connect(ctx context.Context, identity Identity) (Conn, error)
}

// Agent owns the client side of the change-notification channel: it follows
// the login session, keeps one subscription alive while the user is signed
// in, and reconnects with jittered exponential backoff when the stream
// drops. All inbound messages are dispatched through the router.
type Agent struct {
	transport Transport
	router    *Router

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	jitter      func() time.Duration

	mu       sync.Mutex
	state    types.AgentState
	watchers []chan types.AgentState
	identity *Identity
	online   bool
	attempt  int
	lastErr  error

	// gen invalidates in-flight sessions and pending reconnect timers when
	// identity or network state changes underneath them.
	gen    int
	timer  *time.Timer
	cancel context.CancelFunc
}

type Option func(*Agent)

// WithBackoff overrides the reconnect delay parameters
func WithBackoff(base, max time.Duration, maxAttempts int) Option {
	return func(a *Agent) {
		a.baseDelay = base
		a.maxDelay = max
		a.maxAttempts = maxAttempts
	}
}

// WithJitter overrides the random jitter source, used by tests
func WithJitter(jitter func() time.Duration) Option {
	return func(a *Agent) {
		a.jitter = jitter
	}
}

func New(transport Transport, router *Router, opts ...Option) *Agent {
	a := &Agent{
		transport:   transport,
		router:      router,
		baseDelay:   time.Second,
		maxDelay:    2 * time.Minute,
		maxAttempts: 10,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(time.Second)))
		},
		state:  types.AgentDisconnected,
		online: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State reports the current subscription state
func (a *Agent) State() types.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// StateChanges returns a channel that receives state transitions. A slow
// receiver misses intermediate states rather than blocking the agent.
func (a *Agent) StateChanges() <-chan types.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan types.AgentState, 8)
	a.watchers = append(a.watchers, ch)
	return ch
}

func (a *Agent) setStateLocked(state types.AgentState) {
	if a.state == state {
		return
	}
	a.state = state
	for _, ch := range a.watchers {
		select {
		case ch <- state:
		default:
		}
	}
}

// LastError reports the error that ended the last session, if any
func (a *Agent) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// OnIdentityChanged follows the login session. A non-nil identity starts a
// subscription; nil (logout) tears everything down, including any pending
// reconnect timer.
func (a *Agent) OnIdentityChanged(ctx context.Context, identity *Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.supersedeLocked()
	a.attempt = 0
	a.lastErr = nil

	if identity == nil {
		a.identity = nil
		a.setStateLocked(types.AgentDisconnected)
		logging.From(ctx).Info("Sync agent signed out")
		return
	}

	id := *identity
	a.identity = &id
	if !a.online {
		a.setStateLocked(types.AgentDisconnected)
		return
	}
	a.startLocked(ctx)
}

// SetNetworkAvailable feeds OS reachability changes into the agent. Going
// offline disconnects immediately; coming back online retries at once
// without consuming a backoff attempt.
func (a *Agent) SetNetworkAvailable(ctx context.Context, online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.online == online {
		return
	}
	a.online = online
	a.supersedeLocked()

	if !online {
		if a.identity != nil {
			a.setStateLocked(types.AgentDisconnected)
			logging.From(ctx).Info("Sync agent offline, subscription dropped")
		}
		return
	}
	if a.identity != nil {
		a.startLocked(ctx)
	}
}

// Close tears the agent down. Equivalent to a logout.
func (a *Agent) Close() {
	a.OnIdentityChanged(context.Background(), nil)
}

// supersedeLocked invalidates the running session and any pending timer
func (a *Agent) supersedeLocked() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// startLocked launches a session goroutine for the current identity
func (a *Agent) startLocked(ctx context.Context) {
	if a.attempt == 0 {
		a.setStateLocked(types.AgentConnecting)
	} else {
		a.setStateLocked(types.AgentReconnecting)
	}

	gen := a.gen
	identity := *a.identity
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	go a.session(sessionCtx, gen, identity)
}

func (a *Agent) session(ctx context.Context, gen int, identity Identity) {
	conn, err := a.transport.Connect(ctx, identity)
	if err != nil {
		a.sessionEnded(ctx, gen, err)
		return
	}

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		conn.Close("superseded")
		return
	}
	a.setStateLocked(types.AgentConnected)
	a.attempt = 0
	a.lastErr = nil
	a.mu.Unlock()

	logging.From(ctx).Info("Sync agent connected", "tenant", identity.TenantID)

	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			conn.Close("stream error")
			a.sessionEnded(ctx, gen, err)
			return
		}
		a.router.Dispatch(ctx, msg)
	}
}

// sessionEnded decides what happens after a session dies: nothing if it was
// superseded, a scheduled retry otherwise, or giving up at the ceiling.
func (a *Agent) sessionEnded(ctx context.Context, gen int, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.lastErr = cause

	if a.attempt >= a.maxAttempts {
		a.setStateLocked(types.AgentDisconnected)
		a.lastErr = goerr.Wrap(ErrGaveUp, "session ended",
			goerr.V("attempts", a.attempt), goerr.V("cause", cause.Error()))
		logging.From(ctx).Error("Sync agent gave up reconnecting",
			"attempts", a.attempt,
			"error", cause.Error())
		return
	}

	delay := ReconnectDelay(a.baseDelay, a.attempt, a.maxDelay, a.jitter())
	a.attempt++
	a.setStateLocked(types.AgentReconnecting)

	logging.From(ctx).Info("Sync agent reconnecting",
		"attempt", a.attempt,
		"delay", delay.String(),
		"error", cause.Error())

	a.timer = time.AfterFunc(delay, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		// A logout or network change since scheduling makes this a no-op.
		if gen != a.gen || a.identity == nil || !a.online {
			return
		}
		a.startLocked(ctx)
	})
}

// ReconnectDelay computes min(base * 2^attempt + jitter, ceiling). The
// jitter spreads simultaneous reconnects from many clients after a server
// restart.
func ReconnectDelay(base time.Duration, attempt int, ceiling time.Duration, jitter time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		if delay >= ceiling {
			break
		}
		delay *= 2
	}
	delay += jitter
	if delay > ceiling {
		return ceiling
	}
	return delay
}
