package session

import (
	"errors"
	"time"
)

// Status tracks where a session is in the collaboration flow.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusPrompting  Status = "prompting"
	StatusGenerating Status = "generating"
	StatusApproving  Status = "approving"
	StatusMinting    Status = "minting"
	StatusCompleted  Status = "completed"
)

// Role identifies which side of a session a participant occupies. It is
// resolved once when a connection is associated with a session and carried
// internally from then on.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrSessionFull = errors.New("session already has a guest")
)

// EventType names the session-scoped events fanned out to participants.
// The same verbs appear on the wire.
type EventType string

const (
	EventSessionCreated   EventType = "session-created"
	EventUserJoined       EventType = "user-joined"
	EventPromptUpdated    EventType = "prompt-updated"
	EventImageGenerated   EventType = "image-generated"
	EventApprovalUpdated  EventType = "approval-updated"
	EventSessionCompleted EventType = "session-completed"
	EventUserDisconnected EventType = "user-disconnected"
)

// Event is a push to a session participant. Session is a snapshot taken at
// broadcast time; it is nil only for user-disconnected, which carries the
// session ID and the role that dropped instead.
type Event struct {
	Type      EventType
	Session   *View
	SessionID string
	Role      Role
}

// Conn is the transport handle the registry uses to push events. Handles are
// compared by identity for disconnect matching, so implementations must be
// pointer types.
type Conn interface {
	SendEvent(ev Event)
}

// Session is the canonical server-side record. The registry owns it
// exclusively; clients only ever see View snapshots.
type Session struct {
	ID             string
	Host           string
	Guest          string
	HostPrompt     string
	GuestPrompt    string
	GeneratedImage string
	HostApproved   bool
	GuestApproved  bool
	Status         Status
	CreatedAt      time.Time

	hostConn  Conn
	guestConn Conn
}

// View is the wire-facing snapshot of a session. Connection handles are
// deliberately absent.
type View struct {
	ID             string    `json:"id"`
	Host           string    `json:"host"`
	Guest          string    `json:"guest,omitempty"`
	HostPrompt     string    `json:"hostPrompt"`
	GuestPrompt    string    `json:"guestPrompt"`
	GeneratedImage string    `json:"generatedImage,omitempty"`
	HostApproved   bool      `json:"hostApproved"`
	GuestApproved  bool      `json:"guestApproved"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// view builds a fresh snapshot so later mutations cannot retroactively alter
// payloads already queued on a transport.
func (s *Session) view() *View {
	return &View{
		ID:             s.ID,
		Host:           s.Host,
		Guest:          s.Guest,
		HostPrompt:     s.HostPrompt,
		GuestPrompt:    s.GuestPrompt,
		GeneratedImage: s.GeneratedImage,
		HostApproved:   s.HostApproved,
		GuestApproved:  s.GuestApproved,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
	}
}

func (s *Session) setPrompt(role Role, text string) {
	if role == RoleHost {
		s.HostPrompt = text
	} else {
		s.GuestPrompt = text
	}
	if s.Status == StatusPrompting && s.HostPrompt != "" && s.GuestPrompt != "" {
		s.Status = StatusGenerating
	}
}

// setApproval applies an approval vote. A rejection from either side restarts
// the visual-review cycle: both votes and the artifact are cleared, prompts
// are kept.
func (s *Session) setApproval(role Role, approved bool) {
	if !approved {
		s.HostApproved = false
		s.GuestApproved = false
		s.GeneratedImage = ""
		s.Status = StatusPrompting
		return
	}
	if role == RoleHost {
		s.HostApproved = true
	} else {
		s.GuestApproved = true
	}
	if s.HostApproved && s.GuestApproved {
		s.Status = StatusMinting
	}
}

func (s *Session) roleOf(conn Conn) (Role, bool) {
	switch {
	case s.hostConn != nil && s.hostConn == conn:
		return RoleHost, true
	case s.guestConn != nil && s.guestConn == conn:
		return RoleGuest, true
	}
	return "", false
}
