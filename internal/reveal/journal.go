package reveal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lzmrd/EthXlmAtomic/internal/model"
)

// ErrDuplicateReveal is returned by Journal.Insert when a record for the
// order already exists. Callers treat it as "revealed by someone else".
var ErrDuplicateReveal = errors.New("reveal already journaled")

// Record is the durable proof that a secret left the vault. It is written
// before the broadcast, never after.
type Record struct {
	OrderID    string
	Hashlock   string
	FinalPrice model.Amount
	TakenBy    string
	RevealedAt time.Time
}

// Journal persists reveal records. Insert must be first-writer-wins: exactly
// one call per order succeeds, every later one gets ErrDuplicateReveal.
type Journal interface {
	Insert(ctx context.Context, rec Record) error
	OrderIDs(ctx context.Context) ([]string, error)
}

// MemoryJournal is the non-durable Journal used in tests and when the relayer
// runs without a ClickHouse DSN.
type MemoryJournal struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{records: make(map[string]Record)}
}

// Insert stores the record, failing on a second insert for the same order.
func (j *MemoryJournal) Insert(_ context.Context, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.records[rec.OrderID]; ok {
		return fmt.Errorf("order %s: %w", rec.OrderID, ErrDuplicateReveal)
	}
	j.records[rec.OrderID] = rec
	return nil
}

// OrderIDs lists every journaled order.
func (j *MemoryJournal) OrderIDs(_ context.Context) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ids := make([]string, 0, len(j.records))
	for id := range j.records {
		ids = append(ids, id)
	}
	return ids, nil
}
