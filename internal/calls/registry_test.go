package calls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RemovesSessionOnFinish(t *testing.T) {
	reg := NewRegistry()
	h := newHarness(t, mapleDental(), Config{})
	require.NoError(t, reg.Register(h.session))
	require.ErrorIs(t, reg.Register(h.session), ErrDuplicateSession)

	h.start(t)
	h.active(t)

	got, ok := reg.Get(h.session.ID())
	require.True(t, ok)
	assert.Same(t, h.session, got)
	assert.Equal(t, 1, reg.Len())

	h.caller.hangup(nil)
	require.NoError(t, h.wait(t))
	assert.Zero(t, reg.Len())
	_, ok = reg.Get(h.session.ID())
	assert.False(t, ok)
}

func TestRegistry_RemovesAfterEveryExitEdge(t *testing.T) {
	edges := map[string]func(h *harness){
		"caller close":  func(h *harness) { h.caller.hangup(nil) },
		"agent failure": func(h *harness) { h.agent.hangup(errBoom) },
		"forced":        func(h *harness) { h.session.Shutdown() },
	}
	for name, trigger := range edges {
		t.Run(name, func(t *testing.T) {
			reg := NewRegistry()
			h := newHarness(t, mapleDental(), Config{})
			require.NoError(t, reg.Register(h.session))
			h.start(t)
			h.active(t)

			trigger(h)
			_ = h.wait(t)
			assert.Zero(t, reg.Len())
		})
	}
}

func TestRegistry_RemovesWhenAgentNeverOpens(t *testing.T) {
	reg := NewRegistry()
	s, err := NewSession(Params{Caller: newFakeCaller(), Dialer: &fakeDialer{err: errBoom}, Tools: newFakeTools()})
	require.NoError(t, err)
	require.NoError(t, reg.Register(s))

	require.Error(t, s.Run(context.Background()))
	assert.Zero(t, reg.Len())
}

func TestRegistry_ListFiltersByTenant(t *testing.T) {
	reg := NewRegistry()
	a := newHarness(t, mapleDental(), Config{})
	b := newHarness(t, tenantlessContext(), Config{})
	require.NoError(t, reg.Register(a.session))
	require.NoError(t, reg.Register(b.session))

	all := reg.List("")
	require.Len(t, all, 2)
	assert.False(t, all[0].StartedAt.After(all[1].StartedAt))

	mine := reg.List("t-1")
	require.Len(t, mine, 1)
	assert.Equal(t, a.session.ID(), mine[0].ID)
	assert.Equal(t, "Maple Dental", mine[0].TenantName)
	assert.Equal(t, StateConnecting, mine[0].State)

	a.start(t)
	b.start(t)
}

func TestRegistry_CloseAndCloseAll(t *testing.T) {
	reg := NewRegistry()
	a := newHarness(t, mapleDental(), Config{})
	b := newHarness(t, mapleDental(), Config{})
	c := newHarness(t, mapleDental(), Config{})
	for _, h := range []*harness{a, b, c} {
		require.NoError(t, reg.Register(h.session))
		h.start(t)
		h.active(t)
	}

	require.ErrorIs(t, reg.Close("missing"), ErrSessionNotFound)
	require.NoError(t, reg.Close(a.session.ID()))
	require.NoError(t, a.wait(t))
	assert.Equal(t, 2, reg.Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.CloseAll(ctx))
	assert.Zero(t, reg.Len())
	assert.True(t, b.agent.isClosed())
	assert.True(t, c.caller.isClosed())
}
