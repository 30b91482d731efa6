package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/colinwb/duomint/internal/session"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// client -> server
	TypeCreateSession    MessageType = "create-session"
	TypeJoinSession      MessageType = "join-session"
	TypeUpdatePrompt     MessageType = "update-prompt"
	TypeUpdateApproval   MessageType = "update-approval"
	TypeImageGenerated   MessageType = "image-generated"
	TypeSessionCompleted MessageType = "session-completed"

	// server -> client
	TypeCreateSessionResult MessageType = "create-session-result"
	TypeJoinSessionResult   MessageType = "join-session-result"
	TypeUserDisconnected    MessageType = "user-disconnected"
	TypeError               MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type CreateSession struct {
	Type   MessageType `json:"type"`
	HostID string      `json:"hostId"`
}

type JoinSession struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	GuestID   string      `json:"guestId"`
}

// UpdatePrompt and UpdateApproval keep the historical isHost flag on the
// wire; the server resolves it to a role once per message.
type UpdatePrompt struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Text      string      `json:"text"`
	IsHost    bool        `json:"isHost"`
}

type UpdateApproval struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Approved  bool        `json:"approved"`
	IsHost    bool        `json:"isHost"`
}

type ImageGenerated struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	ImageURL  string      `json:"imageUrl"`
}

type SessionCompleted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

// CreateSessionResult is the synchronous reply to create-session, sent only
// to the originating connection.
type CreateSessionResult struct {
	Type      MessageType   `json:"type"`
	Success   bool          `json:"success"`
	SessionID string        `json:"sessionId,omitempty"`
	Session   *session.View `json:"session,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// JoinSessionResult is the synchronous reply to join-session.
type JoinSessionResult struct {
	Type    MessageType   `json:"type"`
	Success bool          `json:"success"`
	Session *session.View `json:"session,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// SessionEvent is a session-scoped broadcast carrying the full updated view.
// Type is one of the session.EventType verbs.
type SessionEvent struct {
	Type    MessageType   `json:"type"`
	Session *session.View `json:"session"`
}

// UserDisconnected tells the remaining participant which role dropped.
type UserDisconnected struct {
	Type      MessageType  `json:"type"`
	SessionID string       `json:"sessionId"`
	Role      session.Role `json:"role"`
}

// ErrorMessage is sent to the originating connection only; errors never fan
// out to peers.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// ParseClientMessage decodes and validates one client frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeCreateSession:
		var msg CreateSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.HostID == "" {
			return nil, errors.New("create-session requires hostId")
		}
		return msg, nil
	case TypeJoinSession:
		var msg JoinSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.GuestID == "" {
			return nil, errors.New("join-session requires sessionId and guestId")
		}
		return msg, nil
	case TypeUpdatePrompt:
		var msg UpdatePrompt
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("update-prompt requires sessionId")
		}
		return msg, nil
	case TypeUpdateApproval:
		var msg UpdateApproval
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("update-approval requires sessionId")
		}
		return msg, nil
	case TypeImageGenerated:
		var msg ImageGenerated
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.ImageURL == "" {
			return nil, errors.New("image-generated requires sessionId and imageUrl")
		}
		return msg, nil
	case TypeSessionCompleted:
		var msg SessionCompleted
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("session-completed requires sessionId")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
}

// EventMessage wraps a registry event into its wire form.
func EventMessage(ev session.Event) any {
	if ev.Type == session.EventUserDisconnected {
		return UserDisconnected{
			Type:      TypeUserDisconnected,
			SessionID: ev.SessionID,
			Role:      ev.Role,
		}
	}
	return SessionEvent{
		Type:    MessageType(ev.Type),
		Session: ev.Session,
	}
}
