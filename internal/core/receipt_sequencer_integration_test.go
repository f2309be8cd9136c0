package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"printshop-backend/internal/core"
)

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	}
}

func TestReceiptSequencer_Format(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	sequencer := core.NewReceiptSequencerAt(pool, fixedClock(2025, time.April, 17))
	ctx := context.Background()

	first, err := sequencer.Next(ctx)
	if err != nil {
		t.Fatalf("Failed to issue receipt: %v", err)
	}
	if first != "2504170001" {
		t.Errorf("Expected first receipt 2504170001, got %s", first)
	}

	second, err := sequencer.Next(ctx)
	if err != nil {
		t.Fatalf("Failed to issue receipt: %v", err)
	}
	if second != "2504170002" {
		t.Errorf("Expected second receipt 2504170002, got %s", second)
	}
}

func TestReceiptSequencer_RestartsPerDay(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	day1 := core.NewReceiptSequencerAt(pool, fixedClock(2025, time.April, 17))
	day2 := core.NewReceiptSequencerAt(pool, fixedClock(2025, time.April, 18))

	if _, err := day1.Next(ctx); err != nil {
		t.Fatalf("Failed to issue receipt: %v", err)
	}
	got, err := day2.Next(ctx)
	if err != nil {
		t.Fatalf("Failed to issue receipt: %v", err)
	}
	if got != "2504180001" {
		t.Errorf("Expected new day to restart at 0001, got %s", got)
	}
}

// The day sequence is four digits wide by contract; overflowing it fails
// instead of silently issuing a wider number.
func TestReceiptSequencer_DayCapacityExhausted(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	sequencer := core.NewReceiptSequencerAt(pool, fixedClock(2025, time.April, 17))
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		"INSERT INTO receipt_sequences (day_prefix, last_number) VALUES ('250417', 9998)")
	if err != nil {
		t.Fatalf("Failed to seed sequence: %v", err)
	}

	last, err := sequencer.Next(ctx)
	if err != nil {
		t.Fatalf("Failed to issue receipt 9999: %v", err)
	}
	if last != "2504179999" {
		t.Errorf("Expected 2504179999, got %s", last)
	}

	if _, err := sequencer.Next(ctx); err == nil {
		t.Fatal("Expected the 10000th receipt of the day to fail")
	}
}

// 1000 concurrent issuers on the same day must never collide.
func TestReceiptSequencer_ConcurrentUnique(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	sequencer := core.NewReceiptSequencerAt(pool, fixedClock(2025, time.April, 17))
	ctx := context.Background()

	const issuers = 1000
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool, issuers)
	var failures int

	for i := 0; i < issuers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := sequencer.Next(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				return
			}
			if seen[receipt] {
				t.Errorf("Duplicate receipt issued: %s", receipt)
			}
			seen[receipt] = true
		}()
	}
	wg.Wait()

	if failures > 0 {
		t.Fatalf("%d Next calls failed", failures)
	}
	if len(seen) != issuers {
		t.Fatalf("Expected %d distinct receipts, got %d", issuers, len(seen))
	}
}
