package agent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/trickpatty/hearthsync/pkg/agent"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

// fakeConn feeds scripted messages and then blocks until closed
type fakeConn struct {
	messages chan model.ChangeMessage
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		messages: make(chan model.ChangeMessage, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Receive(ctx context.Context) (model.ChangeMessage, error) {
	select {
	case msg := <-c.messages:
		return msg, nil
	case <-c.closed:
		return model.ChangeMessage{}, errors.New("connection closed")
	case <-ctx.Done():
		return model.ChangeMessage{}, ctx.Err()
	}
}

func (c *fakeConn) Close(reason string) {
	c.once.Do(func() { close(c.closed) })
}

func (c *fakeConn) drop() {
	c.Close("dropped")
}

// fakeTransport scripts connection outcomes per attempt
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	conns    []*fakeConn
	ctxs     []context.Context
	attempts int
}

func (t *fakeTransport) Connect(ctx context.Context, identity agent.Identity) (agent.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	t.ctxs = append(t.ctxs, ctx)
	if t.attempts <= t.failures {
		return nil, goerr.New("connection refused")
	}
	conn := newFakeConn()
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) connectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *fakeTransport) sessionCtx(n int) context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctxs[n]
}

func (t *fakeTransport) lastConn() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

func noJitter() time.Duration { return 0 }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func nextState(t *testing.T, states <-chan types.AgentState) types.AgentState {
	t.Helper()
	select {
	case s := <-states:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no state transition observed in time")
		return ""
	}
}

func identity() *agent.Identity {
	return &agent.Identity{TenantID: "family-1", Token: "token-1"}
}

func TestAgentLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("login connects and logout disconnects", func(t *testing.T) {
		transport := &fakeTransport{}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(time.Millisecond, 10*time.Millisecond, 5),
			agent.WithJitter(noJitter))

		a.OnIdentityChanged(ctx, identity())
		waitFor(t, func() bool { return a.State() == types.AgentConnected })

		a.OnIdentityChanged(ctx, nil)
		gt.Value(t, a.State()).Equal(types.AgentDisconnected)
	})

	t.Run("messages are dispatched to the router", func(t *testing.T) {
		transport := &fakeTransport{}
		cache := agent.NewCache()
		cache.Put(agent.PartitionEvents, "e1", "cached")
		router := agent.DefaultRouter(cache, nil)

		a := agent.New(transport, router,
			agent.WithBackoff(time.Millisecond, 10*time.Millisecond, 5),
			agent.WithJitter(noJitter))
		a.OnIdentityChanged(ctx, identity())
		defer a.Close()
		waitFor(t, func() bool { return a.State() == types.AgentConnected })

		msg, err := model.NewChangeMessage(types.MessageEventCreated, "family-1", "e2", nil)
		gt.NoError(t, err).Required()
		transport.lastConn().messages <- msg

		waitFor(t, func() bool { return cache.Len(agent.PartitionEvents) == 0 })
	})

	t.Run("dropped stream reconnects", func(t *testing.T) {
		transport := &fakeTransport{}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(time.Millisecond, 10*time.Millisecond, 5),
			agent.WithJitter(noJitter))
		a.OnIdentityChanged(ctx, identity())
		defer a.Close()
		waitFor(t, func() bool { return a.State() == types.AgentConnected })

		transport.lastConn().drop()
		waitFor(t, func() bool { return transport.connectCount() >= 2 && a.State() == types.AgentConnected })
	})

	t.Run("ended session releases its context", func(t *testing.T) {
		transport := &fakeTransport{}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(time.Millisecond, 10*time.Millisecond, 5),
			agent.WithJitter(noJitter))
		a.OnIdentityChanged(ctx, identity())
		defer a.Close()
		waitFor(t, func() bool { return a.State() == types.AgentConnected })

		transport.lastConn().drop()
		waitFor(t, func() bool { return transport.connectCount() >= 2 && a.State() == types.AgentConnected })

		// The dead session's context must be canceled, not abandoned.
		gt.Error(t, transport.sessionCtx(0).Err())
		gt.NoError(t, transport.sessionCtx(1).Err())
	})

	t.Run("gives up after the attempt ceiling", func(t *testing.T) {
		transport := &fakeTransport{failures: 1000}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(time.Millisecond, 5*time.Millisecond, 3),
			agent.WithJitter(noJitter))
		a.OnIdentityChanged(ctx, identity())
		defer a.Close()

		waitFor(t, func() bool {
			return a.State() == types.AgentDisconnected && a.LastError() != nil
		})
		gt.B(t, errors.Is(a.LastError(), agent.ErrGaveUp)).True()
		// Initial try plus three retries.
		gt.Number(t, transport.connectCount()).Equal(4)
	})

	t.Run("logout cancels a pending reconnect", func(t *testing.T) {
		transport := &fakeTransport{failures: 1000}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(50*time.Millisecond, time.Second, 10),
			agent.WithJitter(noJitter))
		a.OnIdentityChanged(ctx, identity())

		waitFor(t, func() bool { return a.State() == types.AgentReconnecting })
		a.OnIdentityChanged(ctx, nil)

		attempts := transport.connectCount()
		time.Sleep(150 * time.Millisecond)
		// The scheduled retry fired into a dead generation.
		gt.Number(t, transport.connectCount()).Equal(attempts)
		gt.Value(t, a.State()).Equal(types.AgentDisconnected)
	})

	t.Run("going offline disconnects without retrying", func(t *testing.T) {
		transport := &fakeTransport{}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(time.Millisecond, 10*time.Millisecond, 5),
			agent.WithJitter(noJitter))
		a.OnIdentityChanged(ctx, identity())
		defer a.Close()
		waitFor(t, func() bool { return a.State() == types.AgentConnected })

		a.SetNetworkAvailable(ctx, false)
		gt.Value(t, a.State()).Equal(types.AgentDisconnected)

		attempts := transport.connectCount()
		time.Sleep(50 * time.Millisecond)
		gt.Number(t, transport.connectCount()).Equal(attempts)
	})

	t.Run("coming back online retries immediately", func(t *testing.T) {
		transport := &fakeTransport{}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(time.Hour, 2*time.Hour, 5),
			agent.WithJitter(noJitter))
		a.OnIdentityChanged(ctx, identity())
		defer a.Close()
		waitFor(t, func() bool { return a.State() == types.AgentConnected })

		a.SetNetworkAvailable(ctx, false)
		a.SetNetworkAvailable(ctx, true)

		// Reconnects despite the hour-long backoff base.
		waitFor(t, func() bool { return a.State() == types.AgentConnected })
		gt.Number(t, transport.connectCount()).Equal(2)
	})

	t.Run("state transitions are observable", func(t *testing.T) {
		transport := &fakeTransport{}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(time.Millisecond, 10*time.Millisecond, 5),
			agent.WithJitter(noJitter))
		states := a.StateChanges()

		a.OnIdentityChanged(ctx, identity())
		defer a.Close()
		gt.Value(t, nextState(t, states)).Equal(types.AgentConnecting)
		gt.Value(t, nextState(t, states)).Equal(types.AgentConnected)

		a.OnIdentityChanged(ctx, nil)
		gt.Value(t, nextState(t, states)).Equal(types.AgentDisconnected)
	})

	t.Run("login while offline waits for the network", func(t *testing.T) {
		transport := &fakeTransport{}
		a := agent.New(transport, agent.NewRouter(),
			agent.WithBackoff(time.Millisecond, 10*time.Millisecond, 5),
			agent.WithJitter(noJitter))

		a.SetNetworkAvailable(ctx, false)
		a.OnIdentityChanged(ctx, identity())
		defer a.Close()
		gt.Value(t, a.State()).Equal(types.AgentDisconnected)
		gt.Number(t, transport.connectCount()).Equal(0)

		a.SetNetworkAvailable(ctx, true)
		waitFor(t, func() bool { return a.State() == types.AgentConnected })
	})
}

func TestRouterIdempotence(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate delivery leaves the cache as a single delivery would", func(t *testing.T) {
		cache := agent.NewCache()
		cache.Put(agent.PartitionEvents, "e1", "cached")
		cache.Put(agent.PartitionMembers, "m1", "cached")
		router := agent.DefaultRouter(cache, nil)

		msg, err := model.NewChangeMessage(types.MessageEventCreated, "family-1", "e2", nil)
		gt.NoError(t, err).Required()

		router.Dispatch(ctx, msg)
		gt.Number(t, cache.Len(agent.PartitionEvents)).Equal(0)
		gt.Number(t, cache.Len(agent.PartitionMembers)).Equal(1)

		// The server redelivers after reconnects; the second copy must land
		// on the same state.
		router.Dispatch(ctx, msg)
		gt.Number(t, cache.Len(agent.PartitionEvents)).Equal(0)
		gt.Number(t, cache.Len(agent.PartitionMembers)).Equal(1)
	})

	t.Run("duplicate full resync is safe", func(t *testing.T) {
		cache := agent.NewCache()
		cache.Put(agent.PartitionEvents, "e1", "cached")
		refetches := 0
		router := agent.DefaultRouter(cache, func(ctx context.Context) { refetches++ })

		msg, err := model.NewChangeMessage(types.MessageFullResyncRequired, "family-1", "", nil)
		gt.NoError(t, err).Required()

		router.Dispatch(ctx, msg)
		router.Dispatch(ctx, msg)

		gt.Number(t, cache.Len(agent.PartitionEvents)).Equal(0)
		gt.Number(t, refetches).Equal(2)
	})
}

func TestReconnectDelay(t *testing.T) {
	base := 500 * time.Millisecond
	ceiling := 30 * time.Second

	t.Run("doubles per attempt", func(t *testing.T) {
		gt.Value(t, agent.ReconnectDelay(base, 0, ceiling, 0)).Equal(500 * time.Millisecond)
		gt.Value(t, agent.ReconnectDelay(base, 1, ceiling, 0)).Equal(time.Second)
		gt.Value(t, agent.ReconnectDelay(base, 3, ceiling, 0)).Equal(4 * time.Second)
	})

	t.Run("jitter is added on top", func(t *testing.T) {
		jitter := 700 * time.Millisecond
		gt.Value(t, agent.ReconnectDelay(base, 1, ceiling, jitter)).Equal(1700 * time.Millisecond)
	})

	t.Run("never exceeds the ceiling", func(t *testing.T) {
		gt.Value(t, agent.ReconnectDelay(base, 40, ceiling, time.Second)).Equal(ceiling)
		gt.Value(t, agent.ReconnectDelay(base, 6, ceiling, time.Second)).Equal(ceiling)
	})
}
