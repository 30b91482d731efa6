// Package client is the UI-facing proxy for the collaboration relay. It
// speaks the relay's websocket protocol when an endpoint is reachable and
// degrades to a local single-party simulation when it is not, so the rest of
// the application stays exercisable offline.
package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/colinwb/duomint/internal/session"
)

// Mode reports whether the proxy is talking to a live relay or simulating
// one locally. Callers should surface ModeSimulated to the user: a simulated
// session is never truly collaborative.
type Mode string

const (
	ModeDisconnected Mode = "disconnected"
	ModeLive         Mode = "live"
	ModeSimulated    Mode = "simulated"
)

var (
	ErrConnection   = errors.New("collaboration endpoint unreachable")
	ErrNotConnected = errors.New("not connected")
)

// Event is delivered to OnSessionUpdate subscribers for every server push.
type Event struct {
	Type      session.EventType
	Session   *session.View // nil for user-disconnected and error events
	SessionID string
	Role      session.Role // set for user-disconnected
	Message   string       // set for error events
}

// transport is the strategy behind the proxy: either a live websocket
// connection or the degraded local simulation.
type transport interface {
	createSession(ctx context.Context, hostID string) (*session.View, error)
	joinSession(ctx context.Context, sessionID, guestID string) (*session.View, error)
	updatePrompt(sessionID, text string, isHost bool) error
	updateApproval(sessionID string, approved, isHost bool) error
	reportArtifact(sessionID, artifactRef string) error
	complete(sessionID string) error
	events() <-chan Event
	close() error
}

type Options struct {
	Endpoint        string        // ws:// or wss:// URL of the relay; empty or placeholder values trigger simulation
	DialTimeout     time.Duration // default 5s
	DisableFallback bool          // fail Connect instead of degrading to the local simulation
}

type Client struct {
	opts Options

	mu       sync.Mutex
	tr       transport
	mode     Mode
	handlers []func(Event)
	pumpDone chan struct{}
}

func New(opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return &Client{opts: opts, mode: ModeDisconnected}
}

// Connect establishes the transport. When the endpoint is absent, clearly a
// placeholder, or unreachable within the dial timeout, the proxy degrades to
// the local simulation; with DisableFallback set, the dial error is returned
// wrapped in ErrConnection instead.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr != nil {
		return nil
	}

	if isPlaceholder(c.opts.Endpoint) {
		if c.opts.DisableFallback {
			return ErrConnection
		}
		c.startLocked(newSimulatedTransport(), ModeSimulated)
		return nil
	}

	tr, err := dialTransport(ctx, c.opts.Endpoint, c.opts.DialTimeout)
	if err != nil {
		if c.opts.DisableFallback {
			return errors.Join(ErrConnection, err)
		}
		c.startLocked(newSimulatedTransport(), ModeSimulated)
		return nil
	}
	c.startLocked(tr, ModeLive)
	return nil
}

func (c *Client) startLocked(tr transport, mode Mode) {
	c.tr = tr
	c.mode = mode
	c.pumpDone = make(chan struct{})
	go c.pump(tr.events(), c.pumpDone)
}

func (c *Client) pump(events <-chan Event, done chan struct{}) {
	defer close(done)
	for ev := range events {
		c.mu.Lock()
		handlers := make([]func(Event), len(c.handlers))
		copy(handlers, c.handlers)
		c.mu.Unlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}

// Mode reports the current transport mode.
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// OnSessionUpdate registers a callback invoked for every server push,
// including broadcasts, disconnect notices and error frames.
func (c *Client) OnSessionUpdate(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *Client) transport() (transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return nil, ErrNotConnected
	}
	return c.tr, nil
}

// CreateSession asks the relay for a new session and returns its identifier.
func (c *Client) CreateSession(ctx context.Context, hostID string) (string, error) {
	tr, err := c.transport()
	if err != nil {
		return "", err
	}
	view, err := tr.createSession(ctx, hostID)
	if err != nil {
		return "", err
	}
	return view.ID, nil
}

// JoinSession joins an existing session as the guest.
func (c *Client) JoinSession(ctx context.Context, sessionID, guestID string) (*session.View, error) {
	tr, err := c.transport()
	if err != nil {
		return nil, err
	}
	return tr.joinSession(ctx, sessionID, guestID)
}

// UpdatePrompt pushes a prompt edit; state arrives back via OnSessionUpdate.
func (c *Client) UpdatePrompt(sessionID, text string, isHost bool) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	return tr.updatePrompt(sessionID, text, isHost)
}

// UpdateApproval pushes an approval vote.
func (c *Client) UpdateApproval(sessionID string, approved, isHost bool) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	return tr.updateApproval(sessionID, approved, isHost)
}

// ReportArtifact reports the generated artifact reference back to the relay.
func (c *Client) ReportArtifact(sessionID, artifactRef string) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	return tr.reportArtifact(sessionID, artifactRef)
}

// Complete marks the session finished after minting.
func (c *Client) Complete(sessionID string) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	return tr.complete(sessionID)
}

// Disconnect closes the transport. Further operations fail with
// ErrNotConnected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	tr := c.tr
	done := c.pumpDone
	c.tr = nil
	c.mode = ModeDisconnected
	c.mu.Unlock()

	if tr == nil {
		return nil
	}
	err := tr.close()
	if done != nil {
		<-done
	}
	return err
}

// isPlaceholder reports whether the configured endpoint is absent or still
// carries an unconfigured template value.
func isPlaceholder(endpoint string) bool {
	endpoint = strings.TrimSpace(strings.ToLower(endpoint))
	if endpoint == "" {
		return true
	}
	for _, marker := range []string{"your-", "example.com", "changeme"} {
		if strings.Contains(endpoint, marker) {
			return true
		}
	}
	return false
}
