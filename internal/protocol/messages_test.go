package protocol

import (
	"errors"
	"testing"

	"github.com/colinwb/duomint/internal/session"
)

func TestParseCreateSession(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"create-session","hostId":"0xabc"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	create, ok := msg.(CreateSession)
	if !ok {
		t.Fatalf("parsed type = %T, want CreateSession", msg)
	}
	if create.HostID != "0xabc" {
		t.Fatalf("HostID = %q, want %q", create.HostID, "0xabc")
	}
}

func TestParseRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"create without host", `{"type":"create-session"}`},
		{"join without guest", `{"type":"join-session","sessionId":"s1"}`},
		{"prompt without session", `{"type":"update-prompt","text":"x","isHost":true}`},
		{"approval without session", `{"type":"update-approval","approved":true}`},
		{"image without url", `{"type":"image-generated","sessionId":"s1"}`},
		{"completed without session", `{"type":"session-completed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseClientMessage([]byte(tc.raw)); err == nil {
				t.Fatalf("ParseClientMessage(%s) accepted invalid payload", tc.raw)
			}
		})
	}
}

func TestParseUnsupportedType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"mint-directly"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{`)); err == nil {
		t.Fatalf("ParseClientMessage accepted malformed JSON")
	}
}

func TestEventMessageMapsDisconnect(t *testing.T) {
	msg := EventMessage(session.Event{
		Type:      session.EventUserDisconnected,
		SessionID: "s1",
		Role:      session.RoleGuest,
	})
	dis, ok := msg.(UserDisconnected)
	if !ok {
		t.Fatalf("wire type = %T, want UserDisconnected", msg)
	}
	if dis.SessionID != "s1" || dis.Role != session.RoleGuest {
		t.Fatalf("unexpected payload: %+v", dis)
	}
}

func TestEventMessageWrapsBroadcasts(t *testing.T) {
	view := &session.View{ID: "s1", Status: session.StatusPrompting}
	msg := EventMessage(session.Event{Type: session.EventUserJoined, Session: view, SessionID: "s1"})
	ev, ok := msg.(SessionEvent)
	if !ok {
		t.Fatalf("wire type = %T, want SessionEvent", msg)
	}
	if ev.Type != MessageType(session.EventUserJoined) || ev.Session.ID != "s1" {
		t.Fatalf("unexpected payload: %+v", ev)
	}
}
