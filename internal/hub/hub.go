// Package hub fans relayer events out to resolver sessions and routes their
// intent messages back in. It is transport-agnostic: anything that can carry
// a JSON envelope can be a Session.
package hub

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
)

type (
	// Session is one live resolver connection. Send must not block on a slow
	// peer; an error means the transport is gone and the session gets pruned.
	Session interface {
		ID() string
		Send(msg Envelope) error
		Close()
	}

	// TakeRouter receives take_order intents; wired to the auction engine.
	TakeRouter interface {
		Take(orderID, resolverAddress string) error
	}

	// SnapshotSource provides the non-terminal orders sent on register.
	SnapshotSource interface {
		Active() []*model.PublicOrder
		Snapshot(orderID string) (*model.PublicOrder, *model.EscrowStatus, bool)
	}

	// Metrics records fan-out activity.
	Metrics interface {
		ObserveBroadcast(msgType string)
		SetSessions(n int)
	}

	// EventSink receives a copy of every broadcast for the audit trail.
	EventSink interface {
		Record(msg Envelope)
	}
)

type resolverSession struct {
	transport     Session
	address       string
	authenticated bool
	lastHeartbeat time.Time
}

// Hub maintains the resolver session set and the broadcast path.
type Hub struct {
	logger    *zap.Logger
	clk       clock.Clock
	snapshots SnapshotSource
	metrics   Metrics
	sink      EventSink

	mu       sync.RWMutex
	sessions map[string]*resolverSession
	router   TakeRouter
}

// New builds a Hub. The take router is attached later via SetTakeRouter since
// the auction engine needs the hub first.
func New(logger *zap.Logger, clk clock.Clock, snapshots SnapshotSource, metrics Metrics, sink EventSink) *Hub {
	return &Hub{
		logger:    logger.Named("hub"),
		clk:       clk,
		snapshots: snapshots,
		metrics:   metrics,
		sink:      sink,
		sessions:  make(map[string]*resolverSession),
	}
}

// SetTakeRouter wires the take_order path.
func (h *Hub) SetTakeRouter(router TakeRouter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.router = router
}

// Connect adds a freshly opened session. The snapshot is sent once the
// session registers.
func (h *Hub) Connect(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = &resolverSession{transport: s, lastHeartbeat: h.clk.Now()}
	n := len(h.sessions)
	h.mu.Unlock()

	h.metrics.SetSessions(n)
	h.logger.Info("resolver connected", zap.String("sessionId", s.ID()), zap.Int("sessions", n))
}

// Disconnect removes a session, closing its transport.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	rs, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	rs.transport.Close()
	h.metrics.SetSessions(n)
	h.logger.Info("resolver disconnected", zap.String("sessionId", sessionID), zap.Int("sessions", n))
}

// Sessions reports the number of connected resolvers.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast fans msg out to every session. Sessions whose transport is no
// longer writable are pruned; one dead resolver never blocks the rest.
func (h *Hub) Broadcast(msg Envelope) {
	h.mu.RLock()
	targets := make(map[string]Session, len(h.sessions))
	for id, rs := range h.sessions {
		targets[id] = rs.transport
	}
	h.mu.RUnlock()

	var failed []string
	for id, s := range targets {
		if err := s.Send(msg); err != nil {
			h.logger.Warn("dropping unwritable session",
				zap.String("sessionId", id), zap.String("type", msg.Type), zap.Error(err))
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.Disconnect(id)
	}

	h.metrics.ObserveBroadcast(msg.Type)
	if h.sink != nil {
		h.sink.Record(msg)
	}
}

// HandleInbound processes one client message from the given session.
func (h *Hub) HandleInbound(sessionID string, in Inbound) {
	switch in.Type {
	case TypeRegister, TypeAuth:
		h.register(sessionID, in)
	case TypePing:
		h.heartbeat(sessionID)
	case TypeTakeOrder:
		h.take(sessionID, in)
	case TypeOrderInterest:
		h.orderInterest(sessionID, in.OrderID)
	default:
		h.reply(sessionID, ErrorMessage(fmt.Sprintf("unknown message type %q", in.Type)))
	}
}

func (h *Hub) register(sessionID string, in Inbound) {
	h.mu.Lock()
	rs, ok := h.sessions[sessionID]
	if ok {
		rs.address = in.Address
		rs.authenticated = true
		rs.lastHeartbeat = h.clk.Now()
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	h.logger.Info("resolver registered",
		zap.String("sessionId", sessionID), zap.String("address", in.Address))
	h.reply(sessionID, ActiveOrders(h.snapshots.Active()))
}

func (h *Hub) heartbeat(sessionID string) {
	h.mu.Lock()
	if rs, ok := h.sessions[sessionID]; ok {
		rs.lastHeartbeat = h.clk.Now()
	}
	h.mu.Unlock()
	h.reply(sessionID, Pong())
}

func (h *Hub) take(sessionID string, in Inbound) {
	h.mu.RLock()
	router := h.router
	h.mu.RUnlock()

	if router == nil {
		h.reply(sessionID, ErrorMessage("order taking is not available"))
		return
	}
	resolver := in.ResolverAddress
	if resolver == "" {
		resolver = in.Address
	}
	if err := router.Take(in.OrderID, resolver); err != nil {
		h.logger.Debug("take_order rejected",
			zap.String("sessionId", sessionID), zap.String("orderId", in.OrderID), zap.Error(err))
		h.reply(sessionID, ErrorMessage(err.Error()))
	}
}

func (h *Hub) orderInterest(sessionID, orderID string) {
	pub, _, ok := h.snapshots.Snapshot(orderID)
	if !ok {
		h.reply(sessionID, ErrorMessage(fmt.Sprintf("unknown order %q", orderID)))
		return
	}
	h.reply(sessionID, NewOrder(pub))
}

// reply sends to a single session, pruning it on failure.
func (h *Hub) reply(sessionID string, msg Envelope) {
	h.mu.RLock()
	rs, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := rs.transport.Send(msg); err != nil {
		h.logger.Warn("dropping unwritable session",
			zap.String("sessionId", sessionID), zap.Error(err))
		h.Disconnect(sessionID)
	}
}

// Shutdown closes every session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*resolverSession)
	h.mu.Unlock()

	for _, rs := range sessions {
		rs.transport.Close()
	}
	h.metrics.SetSessions(0)
}
