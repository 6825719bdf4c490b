// Package audit keeps a durable trail of everything broadcast to resolvers.
// Entries are buffered and written in batches; losing the trail never blocks
// or fails a broadcast.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/hub"
	"github.com/lzmrd/EthXlmAtomic/pkg/batcher"
)

// Event is one audited broadcast.
type Event struct {
	Type      string
	OrderID   string
	Payload   string
	EmittedAt time.Time
}

// Store persists event batches.
type Store interface {
	InsertEvents(ctx context.Context, events []Event) error
}

// Recorder implements hub.EventSink on top of a batching writer.
type Recorder struct {
	logger *zap.Logger
	clk    clock.Clock
	batch  *batcher.Batcher[Event]
}

// NewRecorder builds a Recorder flushing into store.
func NewRecorder(logger *zap.Logger, clk clock.Clock, store Store, flushSize int, flushInterval time.Duration, rps int) *Recorder {
	logger = logger.Named("audit")
	return &Recorder{
		logger: logger,
		clk:    clk,
		batch:  batcher.New(logger, store.InsertEvents, flushSize, flushInterval, rps),
	}
}

// Start launches the flush loop.
func (r *Recorder) Start(ctx context.Context) { r.batch.Start(ctx) }

// Stop flushes what is buffered and stops the loop.
func (r *Recorder) Stop() { r.batch.Stop() }

// Record queues one broadcast for the trail. The secret field is redacted:
// the audit table must never be a second home for pre-images.
func (r *Recorder) Record(msg hub.Envelope) {
	if msg.Secret != "" {
		msg.Secret = "[redacted]"
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Warn("drop unmarshalable broadcast", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	ev := Event{
		Type:      msg.Type,
		OrderID:   msg.OrderID,
		Payload:   string(payload),
		EmittedAt: r.clk.Now(),
	}
	if err := r.batch.Add(context.Background(), ev); err != nil {
		r.logger.Warn("drop audit event", zap.String("type", msg.Type), zap.Error(err))
	}
}
