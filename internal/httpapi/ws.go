package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/colinwb/duomint/internal/protocol"
	"github.com/colinwb/duomint/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 120 * time.Second
	pingInterval = 30 * time.Second
	outboundSize = 64
)

// wsConn adapts one websocket connection to the registry's Conn interface.
// SendEvent is called with the registry lock held, so it never blocks: frames
// are queued on a buffered channel drained by a single writer goroutine, and
// dropped with a metric when the peer cannot keep up.
type wsConn struct {
	out     chan any
	onDrop  func(cause string)
	onQueue func(msgType string)
}

func (c *wsConn) SendEvent(ev session.Event) {
	c.enqueue(protocol.EventMessage(ev))
}

func (c *wsConn) enqueue(msg any) {
	select {
	case c.out <- msg:
		if c.onQueue != nil {
			c.onQueue(messageTypeOf(msg))
		}
	default:
		if c.onDrop != nil {
			c.onDrop("queue_full")
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	peer := &wsConn{
		out: make(chan any, outboundSize),
		onDrop: func(cause string) {
			s.metrics.WSWriteErrors.WithLabelValues(cause).Inc()
		},
		onQueue: func(msgType string) {
			s.metrics.WSMessages.WithLabelValues("outbound", msgType).Inc()
		},
	}

	writerDone := make(chan struct{})
	stopWriter := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-stopWriter:
				return
			case <-ping.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			case msg := <-peer.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			peer.enqueue(protocol.ErrorMessage{Type: protocol.TypeError, Message: err.Error()})
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", messageTypeOf(parsed)).Inc()
		s.dispatch(peer, parsed)
	}

	// The registry treats a dropped connection as session teardown.
	s.registry.Disconnect(peer)
	s.metrics.ActiveSessions.Set(float64(s.registry.Count()))
	close(stopWriter)
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// dispatch applies one parsed client message to the registry. Panics are
// converted to an error frame for the originator; the process never crashes
// on a bad message.
func (s *Server) dispatch(peer *wsConn, msg any) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Interface("panic", rec).Msg("handler panic recovered")
			peer.enqueue(protocol.ErrorMessage{Type: protocol.TypeError, Message: "internal error"})
		}
	}()

	switch m := msg.(type) {
	case protocol.CreateSession:
		view, err := s.registry.Create(m.HostID, peer)
		if err != nil {
			peer.enqueue(protocol.CreateSessionResult{Type: protocol.TypeCreateSessionResult, Success: false, Error: err.Error()})
			return
		}
		peer.enqueue(protocol.CreateSessionResult{
			Type:      protocol.TypeCreateSessionResult,
			Success:   true,
			SessionID: view.ID,
			Session:   view,
		})
	case protocol.JoinSession:
		view, err := s.registry.Join(m.SessionID, m.GuestID, peer)
		if err != nil {
			peer.enqueue(protocol.JoinSessionResult{Type: protocol.TypeJoinSessionResult, Success: false, Error: err.Error()})
			return
		}
		peer.enqueue(protocol.JoinSessionResult{Type: protocol.TypeJoinSessionResult, Success: true, Session: view})
	case protocol.UpdatePrompt:
		if _, err := s.registry.UpdatePrompt(m.SessionID, m.Text, roleOf(m.IsHost)); err != nil {
			peer.enqueue(protocol.ErrorMessage{Type: protocol.TypeError, Message: err.Error()})
		}
	case protocol.UpdateApproval:
		if _, err := s.registry.UpdateApproval(m.SessionID, m.Approved, roleOf(m.IsHost)); err != nil {
			peer.enqueue(protocol.ErrorMessage{Type: protocol.TypeError, Message: err.Error()})
		}
	case protocol.ImageGenerated:
		if _, err := s.registry.ReportArtifact(m.SessionID, m.ImageURL); err != nil {
			peer.enqueue(protocol.ErrorMessage{Type: protocol.TypeError, Message: err.Error()})
		}
	case protocol.SessionCompleted:
		if _, err := s.registry.Complete(m.SessionID); err != nil {
			peer.enqueue(protocol.ErrorMessage{Type: protocol.TypeError, Message: err.Error()})
		}
	}
	s.metrics.ActiveSessions.Set(float64(s.registry.Count()))
}

func roleOf(isHost bool) session.Role {
	if isHost {
		return session.RoleHost
	}
	return session.RoleGuest
}

func messageTypeOf(v any) string {
	switch m := v.(type) {
	case protocol.CreateSession:
		return string(m.Type)
	case protocol.JoinSession:
		return string(m.Type)
	case protocol.UpdatePrompt:
		return string(m.Type)
	case protocol.UpdateApproval:
		return string(m.Type)
	case protocol.ImageGenerated:
		return string(m.Type)
	case protocol.SessionCompleted:
		return string(m.Type)
	case protocol.CreateSessionResult:
		return string(m.Type)
	case protocol.JoinSessionResult:
		return string(m.Type)
	case protocol.SessionEvent:
		return string(m.Type)
	case protocol.UserDisconnected:
		return string(m.Type)
	case protocol.ErrorMessage:
		return string(m.Type)
	default:
		return fmt.Sprintf("%T", v)
	}
}
