// Package scheduler owns every per-order timer goroutine. Nothing else in the
// relayer starts a ticking loop directly, which is what guarantees that no
// timer outlives its order's terminal state and that shutdown is clean.
package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Kind names a per-order timer slot. At most one timer per (order, kind)
// exists at any moment.
type Kind string

const (
	KindAuction    Kind = "auction"
	KindMonitor    Kind = "monitor"
	KindCompletion Kind = "completion"
)

type timerKey struct {
	orderID string
	kind    Kind
}

// Manager creates and cancels per-order timer goroutines.
type Manager struct {
	logger *zap.Logger

	mu       sync.Mutex
	timers   map[timerKey]context.CancelFunc
	stopped  bool
	inFlight sync.WaitGroup
}

// NewManager builds a Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("scheduler"),
		timers: make(map[timerKey]context.CancelFunc),
	}
}

// Start launches run on its own goroutine under a cancellable child of ctx.
// It returns false without starting anything if a timer of this kind already
// exists for the order or the manager is shut down. The slot is freed when
// run returns, whether by completing or by cancellation.
func (m *Manager) Start(ctx context.Context, orderID string, kind Kind, run func(context.Context)) bool {
	key := timerKey{orderID: orderID, kind: kind}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	if _, exists := m.timers[key]; exists {
		m.mu.Unlock()
		return false
	}
	timerCtx, cancel := context.WithCancel(ctx)
	m.timers[key] = cancel
	m.inFlight.Add(1)
	m.mu.Unlock()

	m.logger.Debug("timer started", zap.String("orderId", orderID), zap.String("kind", string(kind)))

	go func() {
		defer m.inFlight.Done()
		defer m.release(key)
		run(timerCtx)
	}()
	return true
}

// Cancel stops the order's timer of the given kind. Cancelling an absent
// timer is a no-op.
func (m *Manager) Cancel(orderID string, kind Kind) {
	m.mu.Lock()
	cancel, ok := m.timers[timerKey{orderID: orderID, kind: kind}]
	m.mu.Unlock()
	if ok {
		cancel()
		m.logger.Debug("timer cancelled", zap.String("orderId", orderID), zap.String("kind", string(kind)))
	}
}

// CancelAll stops every timer belonging to the order.
func (m *Manager) CancelAll(orderID string) {
	for _, kind := range []Kind{KindAuction, KindMonitor, KindCompletion} {
		m.Cancel(orderID, kind)
	}
}

// Has reports whether the order holds a live timer of the given kind.
func (m *Manager) Has(orderID string, kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[timerKey{orderID: orderID, kind: kind}]
	return ok
}

// Active reports the number of live timers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Shutdown cancels all timers and blocks until their goroutines return.
// The manager accepts no new timers afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.stopped = true
	cancels := make([]context.CancelFunc, 0, len(m.timers))
	for _, cancel := range m.timers {
		cancels = append(cancels, cancel)
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.inFlight.Wait()
	m.logger.Info("all timers stopped")
}

func (m *Manager) release(key timerKey) {
	m.mu.Lock()
	cancel, ok := m.timers[key]
	delete(m.timers, key)
	m.mu.Unlock()
	if ok {
		cancel()
	}
}
