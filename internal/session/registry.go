package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures registry lifecycle timings. Zero values fall back to the
// reference defaults.
type Options struct {
	Expiry          time.Duration // max session age before the sweep reclaims it
	SweepInterval   time.Duration // how often the janitor runs
	CompletionDelay time.Duration // grace before a completed session is deleted
	Logger          zerolog.Logger
}

// Registry is the single source of truth for collaboration sessions. It is
// constructed once at process start and injected into the transport layer.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
	log      zerolog.Logger
	onEvent  func(event string)
}

func NewRegistry(opts Options) *Registry {
	if opts.Expiry <= 0 {
		opts.Expiry = 2 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	if opts.CompletionDelay <= 0 {
		opts.CompletionDelay = 60 * time.Second
	}
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
		log:      opts.Logger,
	}
}

// SetEventHook installs a callback invoked after every lifecycle event
// (created, joined, ..., expired, disconnected). Used to drive metrics.
func (r *Registry) SetEventHook(hook func(event string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvent = hook
}

func (r *Registry) emit(event string) {
	if r.onEvent != nil {
		r.onEvent(event)
	}
}

// Create allocates a session owned by hostID. The caller receives the view
// synchronously; the creation broadcast is scoped to the other participants,
// of which there are none yet.
func (r *Registry) Create(hostID string, conn Conn) (*View, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Host:      hostID,
		Status:    StatusWaiting,
		CreatedAt: time.Now().UTC(),
		hostConn:  conn,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	view := s.view()
	r.broadcastExcept(s, conn, EventSessionCreated, view)
	r.emit("created")
	r.mu.Unlock()

	r.log.Info().Str("session_id", s.ID).Str("host", hostID).Msg("session created")
	return view, nil
}

// Join attaches guestID as the second participant and moves the session to
// prompting. Guest identity and connection are set together.
func (r *Registry) Join(sessionID, guestID string, conn Conn) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Guest != "" {
		return nil, ErrSessionFull
	}

	s.Guest = guestID
	s.guestConn = conn
	s.Status = StatusPrompting

	view := s.view()
	r.broadcast(s, EventUserJoined, view)
	r.emit("joined")
	r.log.Info().Str("session_id", s.ID).Str("guest", guestID).Msg("guest joined")
	return view, nil
}

// UpdatePrompt stores the prompt for the given role. When both prompts are
// present and the session is still prompting, it advances to generating. The
// update is broadcast either way so peers can mirror partial progress.
func (r *Registry) UpdatePrompt(sessionID, text string, role Role) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	s.setPrompt(role, text)

	view := s.view()
	r.broadcast(s, EventPromptUpdated, view)
	r.emit("prompt_updated")
	return view, nil
}

// ReportArtifact records the generated artifact reference. Repeated reports
// are allowed; the last write wins.
func (r *Registry) ReportArtifact(sessionID, artifactRef string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	s.GeneratedImage = artifactRef
	s.Status = StatusApproving

	view := s.view()
	r.broadcast(s, EventImageGenerated, view)
	r.emit("artifact_reported")
	r.log.Debug().Str("session_id", s.ID).Msg("artifact reported")
	return view, nil
}

// UpdateApproval applies an approval vote for the given role. Mutual approval
// advances to minting; any rejection rolls back to prompting.
func (r *Registry) UpdateApproval(sessionID string, approved bool, role Role) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	s.setApproval(role, approved)

	view := s.view()
	r.broadcast(s, EventApprovalUpdated, view)
	r.emit("approval_updated")
	return view, nil
}

// Complete marks the session finished and schedules its deletion after the
// configured delay so late broadcasts still reach both participants.
func (r *Registry) Complete(sessionID string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	s.Status = StatusCompleted

	view := s.view()
	r.broadcast(s, EventSessionCompleted, view)
	r.emit("completed")
	r.log.Info().Str("session_id", s.ID).Msg("session completed")

	id := s.ID
	time.AfterFunc(r.opts.CompletionDelay, func() {
		r.remove(id, "completed_cleanup")
	})
	return view, nil
}

// Disconnect tears down any session the dropped connection belonged to.
// There is no grace period and no reconnection: the remaining participant is
// told which role dropped and the session is deleted.
func (r *Registry) Disconnect(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		role, ok := s.roleOf(conn)
		if !ok {
			continue
		}
		ev := Event{Type: EventUserDisconnected, SessionID: id, Role: role}
		if role == RoleHost {
			if s.guestConn != nil {
				s.guestConn.SendEvent(ev)
			}
		} else if s.hostConn != nil {
			s.hostConn.SendEvent(ev)
		}
		delete(r.sessions, id)
		r.emit("disconnected")
		r.log.Info().Str("session_id", id).Str("role", string(role)).Msg("participant disconnected, session removed")
		return
	}
}

// Get returns a snapshot of a session, mainly for tests and diagnostics.
func (r *Registry) Get(sessionID string) (*View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.view(), nil
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartJanitor launches the background sweep that reclaims sessions older
// than the expiry window, regardless of status. A session stuck in
// generating (external generator never reported back) has no dedicated
// timeout and is reclaimed by this same sweep.
func (r *Registry) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(r.opts.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(time.Now().UTC())
			}
		}
	}()
}

// Sweep deletes every session whose age at now exceeds the expiry window.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.CreatedAt) <= r.opts.Expiry {
			continue
		}
		delete(r.sessions, id)
		removed++
		r.emit("expired")
		r.log.Info().Str("session_id", id).Str("status", string(s.Status)).Msg("session expired")
	}
	return removed
}

func (r *Registry) remove(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.emit(reason)
	r.log.Debug().Str("session_id", id).Str("reason", reason).Msg("session removed")
}

// broadcast pushes a snapshot event to every participant of s. Callers hold
// the registry lock; Conn implementations must therefore never block.
func (r *Registry) broadcast(s *Session, t EventType, view *View) {
	r.broadcastExcept(s, nil, t, view)
}

func (r *Registry) broadcastExcept(s *Session, except Conn, t EventType, view *View) {
	ev := Event{Type: t, Session: view, SessionID: view.ID}
	if s.hostConn != nil && s.hostConn != except {
		s.hostConn.SendEvent(ev)
	}
	if s.guestConn != nil && s.guestConn != except {
		s.guestConn.SendEvent(ev)
	}
}
