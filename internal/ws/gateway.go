package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/device-track/dtc/internal/audit"
	"github.com/device-track/dtc/internal/broadcast"
	"github.com/device-track/dtc/internal/config"
	"github.com/device-track/dtc/internal/registry"
)

// session is one live WebSocket connection: its registry id, the underlying
// conn, and the buffered queue drained by its write pump.
type session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// enqueue hands a payload to the write pump without blocking.
func (s *session) enqueue(payload []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("connection %s closed", s.id)
	default:
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", s.id)
	}
}

// Gateway accepts WebSocket connections, dispatches their typed messages to
// the registry and router, and carries router events back out. It implements
// the router's Sender contract.
type Gateway struct {
	registry *registry.Registry
	router   *broadcast.Router
	audit    *audit.Logger
	logger   *slog.Logger
	hub      config.HubConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

// NewGateway creates a gateway bound to the registry. The broadcast router is
// attached separately with SetRouter because the router itself needs the
// gateway as its sender.
func NewGateway(reg *registry.Registry, auditLog *audit.Logger, logger *slog.Logger, hub config.HubConfig) *Gateway {
	return &Gateway{
		registry: reg,
		audit:    auditLog,
		logger:   logger,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// SetRouter attaches the broadcast router. Must be called before the gateway
// serves its first connection.
func (g *Gateway) SetRouter(router *broadcast.Router) {
	g.router = router
}

// Send enqueues a payload for one connection. Never blocks; returns an error
// when the connection is unknown, closed, or its queue is full.
func (g *Gateway) Send(connID string, payload []byte) error {
	g.mu.Lock()
	s, ok := g.sessions[connID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown connection %s", connID)
	}
	return s.enqueue(payload)
}

// SessionCount returns the number of live WebSocket sessions.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// ServeHTTP lets the gateway mount directly on a route.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and serves the connection until it closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	connID := g.registry.Register()
	s := &session{
		id:   connID,
		conn: conn,
		send: make(chan []byte, g.hub.SendBufferSize),
		done: make(chan struct{}),
	}

	g.mu.Lock()
	g.sessions[connID] = s
	g.mu.Unlock()

	g.logger.Info("connection opened", "connection", connID, "remote", r.RemoteAddr)

	go g.writePump(s)
	g.readPump(s)
	g.closeSession(s)
}

// closeSession tears the connection down exactly once: write pump stopped,
// registry entry and topic memberships removed, socket closed.
func (g *Gateway) closeSession(s *session) {
	s.once.Do(func() {
		close(s.done)

		g.mu.Lock()
		delete(g.sessions, s.id)
		g.mu.Unlock()

		g.registry.Unregister(s.id)
		s.conn.Close()
		g.logger.Info("connection closed", "connection", s.id)
	})
}

func (g *Gateway) readPump(s *session) {
	s.conn.SetReadLimit(g.hub.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(g.hub.PongTimeout.Std()))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(g.hub.PongTimeout.Std()))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Warn("connection read failed", "connection", s.id, "error", err)
			}
			return
		}
		g.dispatch(s, data)
	}
}

func (g *Gateway) writePump(s *session) {
	ticker := time.NewTicker(g.hub.PingInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(g.hub.WriteTimeout.Std()))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				g.logger.Warn("connection write failed", "connection", s.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(g.hub.WriteTimeout.Std()))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(g.hub.WriteTimeout.Std()))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// dispatch routes one inbound frame to its handler.
func (g *Gateway) dispatch(s *session, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		g.reply(s, errorEnvelope("", "MALFORMED_MESSAGE", "message is not valid JSON"))
		return
	}

	switch msg.Type {
	case MsgAuthenticate:
		g.handleAuthenticate(s, msg)
	case MsgJoin:
		g.handleJoin(s, msg)
	case MsgLeave:
		g.handleLeave(s, msg)
	case MsgPublish:
		g.handlePublish(s, msg)
	default:
		g.reply(s, errorEnvelope("", "UNKNOWN_MESSAGE_TYPE",
			fmt.Sprintf("unsupported message type %q", msg.Type)))
	}
}

func (g *Gateway) handleAuthenticate(s *session, msg clientMessage) {
	identity, err := g.registry.Authenticate(s.id, msg.Token)

	subject := ""
	if identity != nil {
		subject = identity.SubjectID
	}
	g.audit.Record(audit.ActionAuthenticate, subject, "", err)

	if err != nil {
		g.reply(s, errorEnvelope("", errorCode(err), "authentication failed"))
		return
	}
	g.reply(s, serverMessage{Type: MsgAuthenticated, Identity: identity})
}

func (g *Gateway) handleJoin(s *session, msg clientMessage) {
	if msg.DeviceID == "" {
		g.reply(s, errorEnvelope("", "MISSING_DEVICE_ID", "joinDeviceTopic requires deviceId"))
		return
	}

	err := g.registry.JoinDeviceTopic(s.id, msg.DeviceID)
	g.audit.Record(audit.ActionJoin, g.subject(s.id), msg.DeviceID, err)

	if err != nil {
		g.reply(s, errorEnvelope(msg.DeviceID, errorCode(err), "join rejected"))
		return
	}
	g.reply(s, serverMessage{Type: MsgJoined, DeviceID: msg.DeviceID})
}

func (g *Gateway) handleLeave(s *session, msg clientMessage) {
	if msg.DeviceID == "" {
		g.reply(s, errorEnvelope("", "MISSING_DEVICE_ID", "leaveDeviceTopic requires deviceId"))
		return
	}

	err := g.registry.LeaveDeviceTopic(s.id, msg.DeviceID)
	g.audit.Record(audit.ActionLeave, g.subject(s.id), msg.DeviceID, err)

	if err != nil {
		g.reply(s, errorEnvelope(msg.DeviceID, errorCode(err), "leave rejected"))
		return
	}
	g.reply(s, serverMessage{Type: MsgLeft, DeviceID: msg.DeviceID})
}

func (g *Gateway) handlePublish(s *session, msg clientMessage) {
	if msg.DeviceID == "" {
		g.reply(s, errorEnvelope("", "MISSING_DEVICE_ID", "publishFix requires deviceId"))
		return
	}
	if msg.Fix == nil {
		g.reply(s, errorEnvelope(msg.DeviceID, "MISSING_FIX", "publishFix requires fix"))
		return
	}

	_, err := g.router.Publish(msg.DeviceID, *msg.Fix, s.id)
	g.audit.Record(audit.ActionPublish, g.subject(s.id), msg.DeviceID, err)

	if err != nil {
		g.reply(s, errorEnvelope(msg.DeviceID, errorCode(err), "publish rejected"))
	}
}

// reply enqueues a control frame; a full queue only costs this frame.
func (g *Gateway) reply(s *session, msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		g.logger.Error("failed to marshal control frame", "connection", s.id, "error", err)
		return
	}
	if err := s.enqueue(payload); err != nil {
		g.logger.Warn("dropped control frame", "connection", s.id, "error", err)
	}
}

func (g *Gateway) subject(connID string) string {
	if identity := g.registry.Identity(connID); identity != nil {
		return identity.SubjectID
	}
	return ""
}
