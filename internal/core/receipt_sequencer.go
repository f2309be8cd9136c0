package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReceiptSequencer issues unique, date-scoped receipt numbers of the form
// YYMMDD + 4-digit zero-padded sequence, e.g. "2504170007". The sequence
// restarts at 1 whenever the date prefix changes. The width is fixed: the
// 10000th request of a day fails rather than widening the number.
type ReceiptSequencer interface {
	// Next allocates the next receipt number for today. Two concurrent calls on
	// the same day never return the same value. The counter increment commits
	// on its own, so an abandoned order creation leaves a gap. Acceptable.
	Next(ctx context.Context) (string, error)
}

type receiptSequencer struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewReceiptSequencer(pool *pgxpool.Pool) ReceiptSequencer {
	return &receiptSequencer{pool: pool, now: time.Now}
}

// NewReceiptSequencerAt injects a clock. Used by tests to pin the day prefix.
func NewReceiptSequencerAt(pool *pgxpool.Pool, now func() time.Time) ReceiptSequencer {
	return &receiptSequencer{pool: pool, now: now}
}

func (s *receiptSequencer) Next(ctx context.Context) (string, error) {
	prefix := s.now().Format("060102")

	// Single atomic upsert per day bucket: the database serializes concurrent
	// increments on the day row, so "read max, add one" races cannot happen.
	var lastNumber int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO receipt_sequences (day_prefix, last_number)
		VALUES ($1, 1)
		ON CONFLICT (day_prefix)
		DO UPDATE SET last_number = receipt_sequences.last_number + 1
		RETURNING last_number
	`, prefix).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("%w: increment receipt sequence for %s: %v", ErrUnavailable, prefix, err)
	}
	if lastNumber > 9999 {
		return "", fmt.Errorf("receipt sequence for %s exhausted: %d does not fit four digits", prefix, lastNumber)
	}

	return fmt.Sprintf("%s%04d", prefix, lastNumber), nil
}
