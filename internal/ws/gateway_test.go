package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/device-track/dtc/internal/auth"
	"github.com/device-track/dtc/internal/broadcast"
	"github.com/device-track/dtc/internal/config"
	"github.com/device-track/dtc/internal/registry"
	"github.com/device-track/dtc/internal/telemetry"
)

// tokenVerifier accepts tokens of the form "good-<subject>".
type tokenVerifier struct{}

func (tokenVerifier) Verify(token string) (*auth.Identity, error) {
	subject, ok := strings.CutPrefix(token, "good-")
	if !ok {
		return nil, fmt.Errorf("%w: bad token", auth.ErrInvalidCredential)
	}
	return &auth.Identity{SubjectID: subject, Email: subject + "@example.com"}, nil
}

// envelope covers every outbound frame shape in one struct for tests.
type envelope struct {
	Type     string                 `json:"type"`
	DeviceID string                 `json:"deviceId"`
	Identity *auth.Identity         `json:"identity"`
	Code     string                 `json:"code"`
	Fix      *telemetry.EnrichedFix `json:"fix"`
}

func newTestGateway(t *testing.T) (*Gateway, *registry.Registry, *httptest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(tokenVerifier{})
	gw := NewGateway(reg, nil, logger, config.Default().Hub)
	gw.SetRouter(broadcast.NewRouter(reg, gw, logger))

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return gw, reg, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return env
}

func TestAuthenticateSuccess(t *testing.T) {
	_, _, srv := newTestGateway(t)
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": MsgAuthenticate, "token": "good-alice"})
	env := read(t, conn)

	if env.Type != MsgAuthenticated {
		t.Fatalf("expected %s, got %s", MsgAuthenticated, env.Type)
	}
	if env.Identity == nil || env.Identity.SubjectID != "alice" {
		t.Errorf("unexpected identity: %+v", env.Identity)
	}
}

func TestAuthenticateBadTokenAllowsRetry(t *testing.T) {
	_, _, srv := newTestGateway(t)
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": MsgAuthenticate, "token": "forged"})
	env := read(t, conn)
	if env.Type != MsgError || env.Code != "AUTH_INVALID" {
		t.Fatalf("expected AUTH_INVALID error, got %+v", env)
	}

	// The connection survives a failed attempt and may retry.
	send(t, conn, map[string]any{"type": MsgAuthenticate, "token": "good-alice"})
	if env := read(t, conn); env.Type != MsgAuthenticated {
		t.Errorf("retry after bad token must succeed, got %+v", env)
	}
}

func TestAuthenticateTwiceRejected(t *testing.T) {
	_, _, srv := newTestGateway(t)
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": MsgAuthenticate, "token": "good-alice"})
	read(t, conn)

	send(t, conn, map[string]any{"type": MsgAuthenticate, "token": "good-bob"})
	env := read(t, conn)
	if env.Type != MsgError || env.Code != "ALREADY_AUTHENTICATED" {
		t.Errorf("expected ALREADY_AUTHENTICATED, got %+v", env)
	}
}

func TestJoinRequiresAuthentication(t *testing.T) {
	_, _, srv := newTestGateway(t)
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": MsgJoin, "deviceId": "d1"})
	env := read(t, conn)
	if env.Type != MsgError || env.Code != "NOT_AUTHENTICATED" {
		t.Errorf("expected NOT_AUTHENTICATED, got %+v", env)
	}
}

func TestUnknownMessageType(t *testing.T) {
	_, _, srv := newTestGateway(t)
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": "teleport"})
	env := read(t, conn)
	if env.Type != MsgError || env.Code != "UNKNOWN_MESSAGE_TYPE" {
		t.Errorf("expected UNKNOWN_MESSAGE_TYPE, got %+v", env)
	}
}

func TestPublishFansOutToJoinedClients(t *testing.T) {
	_, _, srv := newTestGateway(t)

	alice := dial(t, srv)
	bob := dial(t, srv)

	for _, c := range []*websocket.Conn{alice, bob} {
		send(t, c, map[string]any{"type": MsgAuthenticate, "token": "good-user"})
		if env := read(t, c); env.Type != MsgAuthenticated {
			t.Fatalf("authenticate failed: %+v", env)
		}
		send(t, c, map[string]any{"type": MsgJoin, "deviceId": "d1"})
		if env := read(t, c); env.Type != MsgJoined {
			t.Fatalf("join failed: %+v", env)
		}
	}

	send(t, alice, map[string]any{
		"type":     MsgPublish,
		"deviceId": "d1",
		"fix":      map[string]any{"latitude": 40.0, "longitude": -74.0},
	})

	// Both members receive the event, the publisher included.
	for name, c := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		env := read(t, c)
		if env.Type != broadcast.EventLocationUpdate {
			t.Fatalf("%s: expected %s, got %+v", name, broadcast.EventLocationUpdate, env)
		}
		if env.DeviceID != "d1" {
			t.Errorf("%s: expected deviceId d1, got %s", name, env.DeviceID)
		}
		if env.Fix == nil || env.Fix.Latitude != 40.0 {
			t.Errorf("%s: unexpected fix: %+v", name, env.Fix)
		}
	}
}

func TestPublishWithoutAuthenticationRejected(t *testing.T) {
	_, _, srv := newTestGateway(t)
	conn := dial(t, srv)

	send(t, conn, map[string]any{
		"type":     MsgPublish,
		"deviceId": "d1",
		"fix":      map[string]any{"latitude": 1.0, "longitude": 2.0},
	})
	env := read(t, conn)
	if env.Type != MsgError || env.Code != "NOT_AUTHENTICATED" {
		t.Errorf("expected NOT_AUTHENTICATED, got %+v", env)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	_, _, srv := newTestGateway(t)
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": MsgAuthenticate, "token": "good-alice"})
	read(t, conn)
	send(t, conn, map[string]any{"type": MsgJoin, "deviceId": "d1"})
	read(t, conn)
	send(t, conn, map[string]any{"type": MsgLeave, "deviceId": "d1"})
	if env := read(t, conn); env.Type != MsgLeft {
		t.Fatalf("leave failed: %+v", env)
	}

	send(t, conn, map[string]any{
		"type":     MsgPublish,
		"deviceId": "d1",
		"fix":      map[string]any{"latitude": 1.0, "longitude": 2.0},
	})

	// No event may arrive after leaving; the read must time out.
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var env envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Errorf("received event after leaving: %+v", env)
	}
}

func TestDisconnectCleansUpRegistry(t *testing.T) {
	gw, reg, srv := newTestGateway(t)
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": MsgAuthenticate, "token": "good-alice"})
	read(t, conn)
	send(t, conn, map[string]any{"type": MsgJoin, "deviceId": "d1"})
	read(t, conn)

	if reg.ConnectionCount() != 1 || reg.TopicCount() != 1 {
		t.Fatalf("unexpected registry state before close: conns=%d topics=%d",
			reg.ConnectionCount(), reg.TopicCount())
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.ConnectionCount() == 0 && reg.TopicCount() == 0 && gw.SessionCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("registry not cleaned up after disconnect: conns=%d topics=%d sessions=%d",
		reg.ConnectionCount(), reg.TopicCount(), gw.SessionCount())
}
