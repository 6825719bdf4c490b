package reveal

import (
	"context"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/lzmrd/EthXlmAtomic/internal/model"
)

// ClickHouseJournal is the durable Journal. The table is a ReplacingMergeTree
// keyed by order_id: ClickHouse has no unique constraint, so two relayer
// processes racing the same order can both insert, and the engine collapses
// the extra rows at merge time. Until that merge, every read resolves an
// order to its earliest revealed_at, which keeps first-writer-wins observable
// the whole way through. The read-before-insert is the fast path that catches
// duplicates from an earlier run; the coordinator additionally serializes
// reveals in-process.
type ClickHouseJournal struct {
	conn clickhouse.Conn
}

// NewClickHouseJournal opens a connection from a DSN.
func NewClickHouseJournal(dsn string) (*ClickHouseJournal, error) {
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

	return &ClickHouseJournal{conn: conn}, nil
}

// Insert journals one reveal, refusing a second record for the same order.
func (j *ClickHouseJournal) Insert(ctx context.Context, rec Record) error {
	const existsQuery = `
SELECT count() as cnt
FROM reveal_journal
WHERE order_id = ?`

	rows, err := j.conn.Query(ctx, existsQuery, rec.OrderID)
	if err != nil {
		return fmt.Errorf("query reveal journal: %w", err)
	}
	defer rows.Close()

	var cnt uint64
	if rows.Next() {
		if err := rows.Scan(&cnt); err != nil {
			return fmt.Errorf("scan reveal journal count: %w", err)
		}
	}
	if cnt > 0 {
		return fmt.Errorf("order %s: %w", rec.OrderID, ErrDuplicateReveal)
	}

	const insertQuery = `
INSERT INTO reveal_journal (
	order_id,
	hashlock,
	final_price,
	taken_by,
	revealed_at
) VALUES (?, ?, ?, ?, ?)`

	if err := j.conn.Exec(ctx, insertQuery,
		rec.OrderID,
		rec.Hashlock,
		rec.FinalPrice.Dec(),
		rec.TakenBy,
		rec.RevealedAt,
	); err != nil {
		return fmt.Errorf("insert reveal record: %w", err)
	}
	return nil
}

// OrderIDs returns every journaled order id, used to rebuild the in-process
// reveal guard after a restart.
func (j *ClickHouseJournal) OrderIDs(ctx context.Context) ([]string, error) {
	const query = `
SELECT DISTINCT order_id
FROM reveal_journal`

	rows, err := j.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query journaled orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan journaled order: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Records returns the journal, one record per order, newest first. Orders
// that picked up duplicate rows in a cross-process race resolve to their
// earliest reveal.
func (j *ClickHouseJournal) Records(ctx context.Context) ([]Record, error) {
	const query = `
SELECT
	order_id,
	argMin(hashlock, revealed_at) AS hashlock,
	argMin(final_price, revealed_at) AS final_price,
	argMin(taken_by, revealed_at) AS taken_by,
	min(revealed_at) AS revealed_at
FROM reveal_journal
GROUP BY order_id
ORDER BY revealed_at DESC`

	rows, err := j.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query reveal journal: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec      Record
			priceDec string
		)
		if err := rows.Scan(&rec.OrderID, &rec.Hashlock, &priceDec, &rec.TakenBy, &rec.RevealedAt); err != nil {
			return nil, fmt.Errorf("scan reveal record: %w", err)
		}
		price, err := model.AmountFromDecimal(priceDec)
		if err != nil {
			return nil, fmt.Errorf("parse journaled price: %w", err)
		}
		rec.FinalPrice = price
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the underlying connection.
func (j *ClickHouseJournal) Close() error {
	return j.conn.Close()
}
