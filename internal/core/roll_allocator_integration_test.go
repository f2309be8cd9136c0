package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"printshop-backend/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// assertRollBalance checks the lengths invariant directly on the row:
// 0 <= available <= total and used = total - available.
func assertRollBalance(t *testing.T, pool *pgxpool.Pool, materialType string, rollNumber int) {
	t.Helper()
	var total, available, used decimal.Decimal
	err := pool.QueryRow(context.Background(), `
		SELECT total_length, available_length, used_length
		FROM rolls WHERE material_type = $1 AND roll_number = $2
	`, materialType, rollNumber).Scan(&total, &available, &used)
	if err != nil {
		t.Fatalf("Failed to read roll %d of %s: %v", rollNumber, materialType, err)
	}
	if available.Sign() < 0 || available.GreaterThan(total) {
		t.Errorf("Roll %d of %s out of bounds: available %s of total %s", rollNumber, materialType, available, total)
	}
	if !used.Equal(total.Sub(available)) {
		t.Errorf("Roll %d of %s used %s, want %s", rollNumber, materialType, used, total.Sub(available))
	}
}

func TestRollAllocator_FIFOPicksLowestNumberedRoll(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	allocator := core.NewRollAllocator(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "2")
	installTestRoll(t, store, "banner", 2, "50")
	installTestRoll(t, store, "banner", 3, "50")

	// Roll 1 still has capacity for this request, so FIFO must drain it first
	// even though rolls 2 and 3 have far more left.
	alloc, err := allocator.Allocate(ctx, "banner", dec("2"), nil, "tester", "")
	if err != nil {
		t.Fatalf("Failed to allocate: %v", err)
	}
	if alloc.RollNumber != 1 {
		t.Errorf("Expected FIFO to pick roll 1, got roll %d", alloc.RollNumber)
	}
	if !alloc.RemainingLength.Equal(dec("0")) {
		t.Errorf("Expected roll 1 drained to 0, got %s", alloc.RemainingLength)
	}

	// Roll 1 is empty now; the next request falls through to roll 2.
	alloc, err = allocator.Allocate(ctx, "banner", dec("10"), nil, "tester", "")
	if err != nil {
		t.Fatalf("Failed to allocate: %v", err)
	}
	if alloc.RollNumber != 2 {
		t.Errorf("Expected fallthrough to roll 2, got roll %d", alloc.RollNumber)
	}

	assertRollBalance(t, pool, "banner", 1)
	assertRollBalance(t, pool, "banner", 2)
}

func TestRollAllocator_SkipsInactiveRolls(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	allocator := core.NewRollAllocator(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "50")
	installTestRoll(t, store, "banner", 2, "50")
	if _, err := store.SetActive(ctx, "banner", 1, false); err != nil {
		t.Fatalf("Failed to retire roll 1: %v", err)
	}

	alloc, err := allocator.Allocate(ctx, "banner", dec("5"), nil, "tester", "")
	if err != nil {
		t.Fatalf("Failed to allocate: %v", err)
	}
	if alloc.RollNumber != 2 {
		t.Errorf("Expected inactive roll 1 to be skipped, got roll %d", alloc.RollNumber)
	}
}

func TestRollAllocator_InsufficientStock(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	allocator := core.NewRollAllocator(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "30")
	installTestRoll(t, store, "banner", 2, "50")

	// No single roll can cover 60 even though 80 exists in total; partial
	// deduction across rolls is never attempted.
	_, err := allocator.Allocate(ctx, "banner", dec("60"), nil, "tester", "")
	var stockErr *core.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if stockErr.RollNumber != 0 {
		t.Errorf("Expected FIFO failure with roll number 0, got %d", stockErr.RollNumber)
	}
	if !stockErr.Available.Equal(dec("50")) {
		t.Errorf("Expected best remaining 50, got %s", stockErr.Available)
	}

	// Nothing was deducted.
	assertRollBalance(t, pool, "banner", 1)
	assertRollBalance(t, pool, "banner", 2)
	roll, err := store.Get(ctx, "banner", 2)
	if err != nil {
		t.Fatalf("Failed to fetch roll: %v", err)
	}
	if !roll.AvailableLength.Equal(dec("50")) {
		t.Errorf("Expected roll 2 untouched at 50, got %s", roll.AvailableLength)
	}
}

// Two concurrent requests of 6 against a roll holding 10: exactly one wins,
// the loser gets InsufficientStockError, and the roll never goes negative.
func TestRollAllocator_ConcurrentDoubleSpend(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	allocator := core.NewRollAllocator(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "10")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = allocator.Allocate(ctx, "banner", dec("6"), nil, "tester", "")
		}(i)
	}
	wg.Wait()

	var successes, stockFailures int
	for _, err := range results {
		var stockErr *core.InsufficientStockError
		switch {
		case err == nil:
			successes++
		case errors.As(err, &stockErr):
			stockFailures++
		default:
			t.Fatalf("Unexpected allocation error: %v", err)
		}
	}
	if successes != 1 || stockFailures != 1 {
		t.Fatalf("Expected exactly one winner and one stock failure, got %d/%d", successes, stockFailures)
	}

	roll, err := store.Get(ctx, "banner", 1)
	if err != nil {
		t.Fatalf("Failed to fetch roll: %v", err)
	}
	if !roll.AvailableLength.Equal(dec("4")) {
		t.Errorf("Expected 4 left after one deduction of 6, got %s", roll.AvailableLength)
	}
	assertRollBalance(t, pool, "banner", 1)

	var consumptions int
	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM roll_usage_events WHERE event_kind = 'CONSUMPTION'",
	).Scan(&consumptions)
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if consumptions != 1 {
		t.Errorf("Expected exactly one CONSUMPTION event, got %d", consumptions)
	}
}

func TestRollAllocator_AllocateFromRoll(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	allocator := core.NewRollAllocator(pool)
	ctx := context.Background()

	installTestRoll(t, store, "dtf", 1, "10")
	installTestRoll(t, store, "dtf", 2, "50")

	// Operator pins roll 2; FIFO order does not apply.
	alloc, err := allocator.AllocateFromRoll(ctx, "dtf", 2, dec("5"), nil, "tester", "")
	if err != nil {
		t.Fatalf("Failed to allocate from roll 2: %v", err)
	}
	if alloc.RollNumber != 2 || !alloc.RemainingLength.Equal(dec("45")) {
		t.Errorf("Expected roll 2 at 45, got roll %d at %s", alloc.RollNumber, alloc.RemainingLength)
	}

	// Pinned roll short on capacity reports its own remainder.
	_, err = allocator.AllocateFromRoll(ctx, "dtf", 1, dec("12"), nil, "tester", "")
	var stockErr *core.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if stockErr.RollNumber != 1 || !stockErr.Available.Equal(dec("10")) {
		t.Errorf("Expected roll 1 with 10 available, got %+v", stockErr)
	}

	if _, err := allocator.AllocateFromRoll(ctx, "dtf", 9, dec("1"), nil, "tester", ""); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown roll, got %v", err)
	}

	if _, err := store.SetActive(ctx, "dtf", 1, false); err != nil {
		t.Fatalf("Failed to retire roll: %v", err)
	}
	var validationErr *core.ValidationError
	if _, err := allocator.AllocateFromRoll(ctx, "dtf", 1, dec("1"), nil, "tester", ""); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for inactive roll, got %v", err)
	}
}

func TestRollAllocator_CheckAvailability(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	allocator := core.NewRollAllocator(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "10")

	av, err := allocator.CheckAvailability(ctx, "banner", 1, dec("8"))
	if err != nil {
		t.Fatalf("Failed to check availability: %v", err)
	}
	if !av.Sufficient || !av.Shortfall.Equal(dec("0")) {
		t.Errorf("Expected sufficient with no shortfall, got %+v", av)
	}

	av, err = allocator.CheckAvailability(ctx, "banner", 1, dec("12"))
	if err != nil {
		t.Fatalf("Failed to check availability: %v", err)
	}
	if av.Sufficient || !av.Shortfall.Equal(dec("2")) {
		t.Errorf("Expected shortfall of 2, got %+v", av)
	}

	if _, err := allocator.CheckAvailability(ctx, "banner", 9, dec("1")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// A retired roll reports insufficient even with plenty of length left,
	// matching what AllocateFromRoll would actually do.
	if _, err := store.SetActive(ctx, "banner", 1, false); err != nil {
		t.Fatalf("Failed to retire roll: %v", err)
	}
	av, err = allocator.CheckAvailability(ctx, "banner", 1, dec("5"))
	if err != nil {
		t.Fatalf("Failed to check availability: %v", err)
	}
	if av.Sufficient || av.IsActive {
		t.Errorf("Expected retired roll to be insufficient and inactive, got %+v", av)
	}
	if !av.AvailableLength.Equal(dec("10")) || !av.Shortfall.Equal(dec("0")) {
		t.Errorf("Expected length 10 with no shortfall reported, got %+v", av)
	}
}

func TestRollAllocator_RejectsNonPositiveLength(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	allocator := core.NewRollAllocator(pool)
	ctx := context.Background()

	var validationErr *core.ValidationError
	if _, err := allocator.Allocate(ctx, "banner", dec("0"), nil, "tester", ""); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for zero length, got %v", err)
	}
	if _, err := allocator.Allocate(ctx, "banner", dec("-3"), nil, "tester", ""); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for negative length, got %v", err)
	}
}
