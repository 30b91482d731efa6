package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colinwb/duomint/internal/session"
)

const simulatedDelay = 300 * time.Millisecond

// simulatedTransport is the degraded fallback used when no relay endpoint is
// reachable. It answers create/join after a short delay so the UI flow stays
// exercisable, but it is strictly single-party: state lives inside this one
// instance and no multi-party broadcast is ever synthesized.
type simulatedTransport struct {
	mu       sync.Mutex
	sessions map[string]*session.View
	evCh     chan Event
	closed   bool
}

func newSimulatedTransport() *simulatedTransport {
	return &simulatedTransport{
		sessions: make(map[string]*session.View),
		evCh:     make(chan Event, 64),
	}
}

func (t *simulatedTransport) createSession(ctx context.Context, hostID string) (*session.View, error) {
	if err := simWait(ctx); err != nil {
		return nil, err
	}
	view := &session.View{
		ID:        "sim-" + uuid.NewString(),
		Host:      hostID,
		Status:    session.StatusWaiting,
		CreatedAt: time.Now().UTC(),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrNotConnected
	}
	t.sessions[view.ID] = view
	return snapshot(view), nil
}

func (t *simulatedTransport) joinSession(ctx context.Context, sessionID, guestID string) (*session.View, error) {
	if err := simWait(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrNotConnected
	}
	view, ok := t.sessions[sessionID]
	if !ok {
		// Fabricate the session; in degraded mode there is no registry to
		// consult and the invitation cannot be verified.
		view = &session.View{
			ID:        sessionID,
			Host:      "simulated-host",
			Status:    session.StatusWaiting,
			CreatedAt: time.Now().UTC(),
		}
		t.sessions[sessionID] = view
	}
	if view.Guest != "" {
		return nil, session.ErrSessionFull
	}
	view.Guest = guestID
	view.Status = session.StatusPrompting
	snap := snapshot(view)
	t.emitLocked(Event{Type: session.EventUserJoined, Session: snap, SessionID: snap.ID})
	return snap, nil
}

func (t *simulatedTransport) updatePrompt(sessionID, text string, isHost bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	view, ok := t.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	if isHost {
		view.HostPrompt = text
	} else {
		view.GuestPrompt = text
	}
	if view.Status == session.StatusPrompting && view.HostPrompt != "" && view.GuestPrompt != "" {
		view.Status = session.StatusGenerating
	}
	t.emitLocked(Event{Type: session.EventPromptUpdated, Session: snapshot(view), SessionID: sessionID})
	return nil
}

func (t *simulatedTransport) updateApproval(sessionID string, approved, isHost bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	view, ok := t.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	if !approved {
		view.HostApproved = false
		view.GuestApproved = false
		view.GeneratedImage = ""
		view.Status = session.StatusPrompting
	} else {
		if isHost {
			view.HostApproved = true
		} else {
			view.GuestApproved = true
		}
		if view.HostApproved && view.GuestApproved {
			view.Status = session.StatusMinting
		}
	}
	t.emitLocked(Event{Type: session.EventApprovalUpdated, Session: snapshot(view), SessionID: sessionID})
	return nil
}

func (t *simulatedTransport) reportArtifact(sessionID, artifactRef string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	view, ok := t.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	view.GeneratedImage = artifactRef
	view.Status = session.StatusApproving
	t.emitLocked(Event{Type: session.EventImageGenerated, Session: snapshot(view), SessionID: sessionID})
	return nil
}

func (t *simulatedTransport) complete(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	view, ok := t.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	view.Status = session.StatusCompleted
	t.emitLocked(Event{Type: session.EventSessionCompleted, Session: snapshot(view), SessionID: sessionID})
	return nil
}

func (t *simulatedTransport) events() <-chan Event { return t.evCh }

func (t *simulatedTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.evCh)
	return nil
}

func (t *simulatedTransport) emitLocked(ev Event) {
	if t.closed {
		return
	}
	select {
	case t.evCh <- ev:
	default:
	}
}

func snapshot(v *session.View) *session.View {
	c := *v
	return &c
}

func simWait(ctx context.Context) error {
	timer := time.NewTimer(simulatedDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
