package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseStore writes event batches into the resolver_events table.
type ClickHouseStore struct {
	conn clickhouse.Conn
}

// NewClickHouseStore opens a connection from a DSN.
func NewClickHouseStore(dsn string) (*ClickHouseStore, error) {
	if dsn == "" {
		return nil, errors.New("clickhouse dsn is required")
	}

	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	return &ClickHouseStore{conn: conn}, nil
}

// InsertEvents appends one batch to the trail.
func (s *ClickHouseStore) InsertEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
INSERT INTO resolver_events (
	event_type,
	order_id,
	payload,
	emitted_at
)`

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare events batch: %w", err)
	}
	for _, ev := range events {
		if err := batch.Append(ev.Type, ev.OrderID, ev.Payload, ev.EmittedAt); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send events batch: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
