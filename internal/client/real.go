package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/colinwb/duomint/internal/protocol"
	"github.com/colinwb/duomint/internal/session"
)

// EventError is the pseudo event type used to deliver server error frames
// through the same subscription as broadcasts.
const EventError session.EventType = "error"

// realTransport speaks the relay protocol over a live websocket connection.
type realTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	evCh chan Event

	replyMu       sync.Mutex
	pendingCreate chan protocol.CreateSessionResult
	pendingJoin   chan protocol.JoinSessionResult

	closeOnce sync.Once
	closed    chan struct{}
}

func dialTransport(ctx context.Context, endpoint string, timeout time.Duration) (*realTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	t := &realTransport{
		conn:   conn,
		evCh:   make(chan Event, 64),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *realTransport) readLoop() {
	defer close(t.evCh)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.failPending()
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case protocol.TypeCreateSessionResult:
			var res protocol.CreateSessionResult
			if json.Unmarshal(data, &res) == nil {
				t.deliverCreate(res)
			}
		case protocol.TypeJoinSessionResult:
			var res protocol.JoinSessionResult
			if json.Unmarshal(data, &res) == nil {
				t.deliverJoin(res)
			}
		case protocol.TypeUserDisconnected:
			var msg protocol.UserDisconnected
			if json.Unmarshal(data, &msg) == nil {
				t.emit(Event{Type: session.EventUserDisconnected, SessionID: msg.SessionID, Role: msg.Role})
			}
		case protocol.TypeError:
			var msg protocol.ErrorMessage
			if json.Unmarshal(data, &msg) == nil {
				t.emit(Event{Type: EventError, Message: msg.Message})
			}
		default:
			var ev protocol.SessionEvent
			if json.Unmarshal(data, &ev) == nil && ev.Session != nil {
				t.emit(Event{
					Type:      session.EventType(ev.Type),
					Session:   ev.Session,
					SessionID: ev.Session.ID,
				})
			}
		}
	}
}

func (t *realTransport) emit(ev Event) {
	select {
	case t.evCh <- ev:
	default:
		// Subscriber is not draining; drop rather than stall the read loop.
	}
}

func (t *realTransport) deliverCreate(res protocol.CreateSessionResult) {
	t.replyMu.Lock()
	ch := t.pendingCreate
	t.pendingCreate = nil
	t.replyMu.Unlock()
	if ch != nil {
		ch <- res
	}
}

func (t *realTransport) deliverJoin(res protocol.JoinSessionResult) {
	t.replyMu.Lock()
	ch := t.pendingJoin
	t.pendingJoin = nil
	t.replyMu.Unlock()
	if ch != nil {
		ch <- res
	}
}

func (t *realTransport) failPending() {
	t.replyMu.Lock()
	if t.pendingCreate != nil {
		close(t.pendingCreate)
		t.pendingCreate = nil
	}
	if t.pendingJoin != nil {
		close(t.pendingJoin)
		t.pendingJoin = nil
	}
	t.replyMu.Unlock()
}

func (t *realTransport) sendJSON(msg any) error {
	select {
	case <-t.closed:
		return ErrNotConnected
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteJSON(msg)
}

func (t *realTransport) createSession(ctx context.Context, hostID string) (*session.View, error) {
	ch := make(chan protocol.CreateSessionResult, 1)
	t.replyMu.Lock()
	t.pendingCreate = ch
	t.replyMu.Unlock()

	if err := t.sendJSON(protocol.CreateSession{Type: protocol.TypeCreateSession, HostID: hostID}); err != nil {
		t.failPending()
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-ch:
		if !ok {
			return nil, ErrConnection
		}
		if !res.Success {
			return nil, domainError(res.Error)
		}
		return res.Session, nil
	}
}

func (t *realTransport) joinSession(ctx context.Context, sessionID, guestID string) (*session.View, error) {
	ch := make(chan protocol.JoinSessionResult, 1)
	t.replyMu.Lock()
	t.pendingJoin = ch
	t.replyMu.Unlock()

	if err := t.sendJSON(protocol.JoinSession{Type: protocol.TypeJoinSession, SessionID: sessionID, GuestID: guestID}); err != nil {
		t.failPending()
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-ch:
		if !ok {
			return nil, ErrConnection
		}
		if !res.Success {
			return nil, domainError(res.Error)
		}
		return res.Session, nil
	}
}

func (t *realTransport) updatePrompt(sessionID, text string, isHost bool) error {
	return t.sendJSON(protocol.UpdatePrompt{Type: protocol.TypeUpdatePrompt, SessionID: sessionID, Text: text, IsHost: isHost})
}

func (t *realTransport) updateApproval(sessionID string, approved, isHost bool) error {
	return t.sendJSON(protocol.UpdateApproval{Type: protocol.TypeUpdateApproval, SessionID: sessionID, Approved: approved, IsHost: isHost})
}

func (t *realTransport) reportArtifact(sessionID, artifactRef string) error {
	return t.sendJSON(protocol.ImageGenerated{Type: protocol.TypeImageGenerated, SessionID: sessionID, ImageURL: artifactRef})
}

func (t *realTransport) complete(sessionID string) error {
	return t.sendJSON(protocol.SessionCompleted{Type: protocol.TypeSessionCompleted, SessionID: sessionID})
}

func (t *realTransport) events() <-chan Event { return t.evCh }

func (t *realTransport) close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

// domainError maps the relay's error strings back onto the session package's
// sentinel errors so callers can test with errors.Is.
func domainError(msg string) error {
	switch msg {
	case session.ErrNotFound.Error():
		return session.ErrNotFound
	case session.ErrSessionFull.Error():
		return session.ErrSessionFull
	default:
		return errors.New(msg)
	}
}
