// Package ws adapts WebSocket connections into hub sessions. The hub never
// sees gorilla/websocket; it talks to the Session interface only, so the
// resolver channel could be swapped for another streaming transport without
// touching the broadcast logic.
package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/hub"
)

const (
	maxMessageSize = 1 << 20
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	sendBuffer     = 256
)

// SessionHub is the part of the hub the transport drives.
type SessionHub interface {
	Connect(s hub.Session)
	Disconnect(sessionID string)
	HandleInbound(sessionID string, in hub.Inbound)
}

// Server upgrades HTTP requests into resolver sessions.
type Server struct {
	logger   *zap.Logger
	hub      SessionHub
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

// NewServer builds a Server. Origin checks are left to the CORS layer in
// front of the mux.
func NewServer(logger *zap.Logger, sessions SessionHub) *Server {
	return &Server{
		logger: logger.Named("ws"),
		hub:    sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs it until either side closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	sess := &session{
		id:     fmt.Sprintf("resolver-%d", s.nextID.Add(1)),
		conn:   conn,
		sendCh: make(chan hub.Envelope, sendBuffer),
		done:   make(chan struct{}),
	}
	s.hub.Connect(sess)

	go s.writePump(sess)
	s.readPump(sess)

	s.hub.Disconnect(sess.id)
}

func (s *Server) readPump(sess *session) {
	sess.conn.SetReadLimit(maxMessageSize)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", zap.String("sessionId", sess.id), zap.Error(err))
			}
			return
		}
		// application-level pings also refresh the transport deadline
		_ = sess.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var in hub.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.logger.Debug("dropping malformed message",
				zap.String("sessionId", sess.id), zap.Error(err))
			continue
		}
		s.hub.HandleInbound(sess.id, in)
	}
}

func (s *Server) writePump(sess *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer sess.conn.Close()

	for {
		select {
		case <-sess.done:
			_ = sess.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return
		case msg := <-sess.sendCh:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sess.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("write failed", zap.String("sessionId", sess.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// session implements hub.Session over one WebSocket connection.
type session struct {
	id     string
	conn   *websocket.Conn
	sendCh chan hub.Envelope
	closed atomic.Bool
	done   chan struct{}
}

func (s *session) ID() string { return s.id }

// Send queues the envelope without blocking. A full buffer means the
// resolver stopped draining; report it as dead so the hub prunes it.
func (s *session) Send(msg hub.Envelope) error {
	if s.closed.Load() {
		return fmt.Errorf("session %s is closed", s.id)
	}
	select {
	case s.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("session %s send buffer full", s.id)
	}
}

func (s *session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}
