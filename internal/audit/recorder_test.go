package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/hub"
)

type captureStore struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureStore) InsertEvents(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *captureStore) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestRecorder_FlushesBroadcasts(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	rec := NewRecorder(zap.NewNop(), clock.NewSystem(), store, 2, time.Hour, 100)
	rec.Start(context.Background())
	defer rec.Stop()

	rec.Record(hub.OrderExpired("o1"))
	rec.Record(hub.OrderTaken("o2", "0xresolver"))

	// flushSize reached, both land without waiting for the interval
	require.Eventually(t, func() bool {
		return len(store.all()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	events := store.all()
	assert.Equal(t, hub.TypeOrderExpired, events[0].Type)
	assert.Equal(t, "o1", events[0].OrderID)
	assert.Contains(t, events[1].Payload, "0xresolver")
}

func TestRecorder_RedactsSecrets(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	rec := NewRecorder(zap.NewNop(), clock.NewSystem(), store, 1, time.Hour, 100)
	rec.Start(context.Background())
	defer rec.Stop()

	rec.Record(hub.SecretRevealed("o1", "topsecret", &hub.ClaimInstructions{OrderID: "o1"}))

	require.Eventually(t, func() bool {
		return len(store.all()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ev := store.all()[0]
	assert.Equal(t, hub.TypeSecretRevealed, ev.Type)
	assert.NotContains(t, ev.Payload, "topsecret")
	assert.Contains(t, ev.Payload, "[redacted]")
}

func TestRecorder_StopFlushesTail(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	rec := NewRecorder(zap.NewNop(), clock.NewSystem(), store, 100, time.Hour, 100)
	rec.Start(context.Background())

	rec.Record(hub.OrderExpired("o1"))
	rec.Stop()

	assert.Len(t, store.all(), 1)
}
