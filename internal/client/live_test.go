package client_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/colinwb/duomint/internal/client"
	"github.com/colinwb/duomint/internal/config"
	"github.com/colinwb/duomint/internal/httpapi"
	"github.com/colinwb/duomint/internal/observability"
	"github.com/colinwb/duomint/internal/session"
)

var namespaceSeq atomic.Int64

func startRelay(t *testing.T) string {
	t.Helper()
	registry := session.NewRegistry(session.Options{})
	metrics := observability.NewMetrics(fmt.Sprintf("test_client_%d", namespaceSeq.Add(1)))
	srv := httpapi.New(config.Config{AllowAnyOrigin: true}, registry, metrics, zerolog.Nop())

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func connect(t *testing.T, wsURL string) *client.Client {
	t.Helper()
	c := client.New(client.Options{Endpoint: wsURL})
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, client.ModeLive, c.Mode())
	t.Cleanup(func() { c.Disconnect() })
	return c
}

func waitFor(t *testing.T, events <-chan client.Event, want session.EventType) client.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestLiveCollaborationFlow(t *testing.T) {
	wsURL := startRelay(t)
	ctx := context.Background()

	host := connect(t, wsURL)
	hostEvents := make(chan client.Event, 32)
	host.OnSessionUpdate(func(ev client.Event) { hostEvents <- ev })

	id, err := host.CreateSession(ctx, "0xhost")
	require.NoError(t, err)

	guest := connect(t, wsURL)
	guestEvents := make(chan client.Event, 32)
	guest.OnSessionUpdate(func(ev client.Event) { guestEvents <- ev })

	view, err := guest.JoinSession(ctx, id, "0xguest")
	require.NoError(t, err)
	require.Equal(t, session.StatusPrompting, view.Status)

	joined := waitFor(t, hostEvents, session.EventUserJoined)
	require.Equal(t, "0xguest", joined.Session.Guest)

	require.NoError(t, host.UpdatePrompt(id, "a fox", true))
	require.NoError(t, guest.UpdatePrompt(id, "in neon", false))

	var generating bool
	for !generating {
		ev := waitFor(t, hostEvents, session.EventPromptUpdated)
		generating = ev.Session.Status == session.StatusGenerating
	}

	require.NoError(t, host.ReportArtifact(id, "ipfs://artifact"))
	approving := waitFor(t, guestEvents, session.EventImageGenerated)
	require.Equal(t, "ipfs://artifact", approving.Session.GeneratedImage)

	require.NoError(t, host.UpdateApproval(id, true, true))
	require.NoError(t, guest.UpdateApproval(id, true, false))

	var minting bool
	for !minting {
		ev := waitFor(t, hostEvents, session.EventApprovalUpdated)
		minting = ev.Session.Status == session.StatusMinting
	}

	require.NoError(t, host.Complete(id))
	completed := waitFor(t, guestEvents, session.EventSessionCompleted)
	require.Equal(t, session.StatusCompleted, completed.Session.Status)
}

func TestLiveRejectionRestartsReview(t *testing.T) {
	wsURL := startRelay(t)
	ctx := context.Background()

	host := connect(t, wsURL)
	hostEvents := make(chan client.Event, 32)
	host.OnSessionUpdate(func(ev client.Event) { hostEvents <- ev })

	id, err := host.CreateSession(ctx, "0xhost")
	require.NoError(t, err)

	guest := connect(t, wsURL)
	_, err = guest.JoinSession(ctx, id, "0xguest")
	require.NoError(t, err)

	require.NoError(t, host.UpdatePrompt(id, "a fox", true))
	require.NoError(t, guest.UpdatePrompt(id, "in neon", false))
	require.NoError(t, host.ReportArtifact(id, "ipfs://v1"))
	require.NoError(t, host.UpdateApproval(id, true, true))
	require.NoError(t, guest.UpdateApproval(id, false, false))

	var reset client.Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-hostEvents:
			if ev.Type == session.EventApprovalUpdated && ev.Session.Status == session.StatusPrompting {
				reset = ev
			}
		case <-deadline:
			t.Fatal("no rejection rollback observed")
		}
		if reset.Session != nil {
			break
		}
	}

	require.False(t, reset.Session.HostApproved)
	require.False(t, reset.Session.GuestApproved)
	require.Empty(t, reset.Session.GeneratedImage)
	require.Equal(t, "a fox", reset.Session.HostPrompt)
	require.Equal(t, "in neon", reset.Session.GuestPrompt)
}

func TestLiveJoinFullSession(t *testing.T) {
	wsURL := startRelay(t)
	ctx := context.Background()

	host := connect(t, wsURL)
	id, err := host.CreateSession(ctx, "0xhost")
	require.NoError(t, err)

	guest := connect(t, wsURL)
	_, err = guest.JoinSession(ctx, id, "0xguest")
	require.NoError(t, err)

	third := connect(t, wsURL)
	_, err = third.JoinSession(ctx, id, "0xthird")
	require.ErrorIs(t, err, session.ErrSessionFull)
}

func TestLiveHostDropNotifiesGuest(t *testing.T) {
	wsURL := startRelay(t)
	ctx := context.Background()

	host := connect(t, wsURL)
	id, err := host.CreateSession(ctx, "0xhost")
	require.NoError(t, err)

	guest := connect(t, wsURL)
	guestEvents := make(chan client.Event, 32)
	guest.OnSessionUpdate(func(ev client.Event) { guestEvents <- ev })
	_, err = guest.JoinSession(ctx, id, "0xguest")
	require.NoError(t, err)

	require.NoError(t, host.Disconnect())

	dropped := waitFor(t, guestEvents, session.EventUserDisconnected)
	require.Equal(t, id, dropped.SessionID)
	require.Equal(t, session.RoleHost, dropped.Role)
}
