package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/colinwb/duomint/internal/session"
)

func TestOperationsFailFastBeforeConnect(t *testing.T) {
	c := New(Options{})
	_, err := c.CreateSession(context.Background(), "0xhost")
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, c.UpdatePrompt("s1", "x", true), ErrNotConnected)
	require.Equal(t, ModeDisconnected, c.Mode())
}

func TestDisabledFallbackSurfacesConnectionError(t *testing.T) {
	c := New(Options{Endpoint: "ws://127.0.0.1:1/ws", DialTimeout: 200 * time.Millisecond, DisableFallback: true})
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	require.Equal(t, ModeDisconnected, c.Mode())
}

func TestPlaceholderEndpointFallsBackToSimulation(t *testing.T) {
	for _, endpoint := range []string{"", "wss://your-relay.example.com/ws", "ws://changeme:4001/ws"} {
		c := New(Options{Endpoint: endpoint})
		require.NoError(t, c.Connect(context.Background()))
		require.Equal(t, ModeSimulated, c.Mode())
		require.NoError(t, c.Disconnect())
	}
}

func TestSimulatedCreateAndJoin(t *testing.T) {
	c := New(Options{})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	id, err := c.CreateSession(context.Background(), "0xhost")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	view, err := c.JoinSession(context.Background(), id, "0xguest")
	require.NoError(t, err)
	require.Equal(t, session.StatusPrompting, view.Status)
	require.Equal(t, "0xguest", view.Guest)
}

func TestSimulatedFlowEmitsLocalEvents(t *testing.T) {
	c := New(Options{})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	events := make(chan Event, 16)
	c.OnSessionUpdate(func(ev Event) { events <- ev })

	id, err := c.CreateSession(context.Background(), "0xhost")
	require.NoError(t, err)
	_, err = c.JoinSession(context.Background(), id, "0xguest")
	require.NoError(t, err)

	require.NoError(t, c.UpdatePrompt(id, "a fox", true))
	require.NoError(t, c.UpdatePrompt(id, "in neon", false))
	require.NoError(t, c.ReportArtifact(id, "ipfs://img"))

	var sawApproving bool
	deadline := time.After(2 * time.Second)
	for !sawApproving {
		select {
		case ev := <-events:
			if ev.Type == session.EventImageGenerated {
				require.Equal(t, session.StatusApproving, ev.Session.Status)
				require.Equal(t, "ipfs://img", ev.Session.GeneratedImage)
				sawApproving = true
			}
		case <-deadline:
			t.Fatal("no image-generated event from simulation")
		}
	}
}

func TestSimulationsDoNotCrossTalk(t *testing.T) {
	a := New(Options{})
	b := New(Options{})
	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, b.Connect(context.Background()))
	defer a.Disconnect()
	defer b.Disconnect()

	id, err := a.CreateSession(context.Background(), "0xhost")
	require.NoError(t, err)
	require.NoError(t, a.UpdatePrompt(id, "only in A", true))

	// B joining the same identifier fabricates its own local session; A's
	// state must not leak across proxy instances.
	view, err := b.JoinSession(context.Background(), id, "0xguest")
	require.NoError(t, err)
	require.Empty(t, view.HostPrompt)
	require.NotEqual(t, "0xhost", view.Host)
}

func TestDisconnectStopsOperations(t *testing.T) {
	c := New(Options{})
	require.NoError(t, c.Connect(context.Background()))
	id, err := c.CreateSession(context.Background(), "0xhost")
	require.NoError(t, err)

	require.NoError(t, c.Disconnect())
	require.Equal(t, ModeDisconnected, c.Mode())
	require.ErrorIs(t, c.UpdatePrompt(id, "late", true), ErrNotConnected)
}
