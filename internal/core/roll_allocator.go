package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// maxAllocateAttempts bounds the compare-and-swap retry loop. Losing the race
// this many times in a row surfaces ErrConflict instead of spinning.
const maxAllocateAttempts = 3

// RollAllocator performs atomic select-and-deduct against rolls. Each deduction
// and its CONSUMPTION audit event commit in one transaction; concurrent
// allocators can never consume the same length units twice.
type RollAllocator interface {
	// Allocate picks the lowest-numbered active roll of the material type with
	// enough remaining length (FIFO depletion) and deducts from it.
	Allocate(ctx context.Context, materialType string, required decimal.Decimal, orderID *int, actor, notes string) (*Allocation, error)
	// AllocateFromRoll applies the same atomic deduct to an operator-chosen roll.
	AllocateFromRoll(ctx context.Context, materialType string, rollNumber int, required decimal.Decimal, orderID *int, actor, notes string) (*Allocation, error)
	// CheckAvailability is advisory only: it carries no allocation guarantee and
	// a subsequent Allocate may still fail due to a race.
	CheckAvailability(ctx context.Context, materialType string, rollNumber int, required decimal.Decimal) (*Availability, error)

	// Tx-scoped variants let OrderLedger keep the deduction atomic with the
	// order insert. The caller owns commit and rollback.
	AllocateTx(ctx context.Context, tx pgx.Tx, materialType string, required decimal.Decimal, orderID *int, actor, notes string) (*Allocation, error)
	AllocateFromRollTx(ctx context.Context, tx pgx.Tx, materialType string, rollNumber int, required decimal.Decimal, orderID *int, actor, notes string) (*Allocation, error)
}

type rollAllocator struct {
	pool *pgxpool.Pool
}

func NewRollAllocator(pool *pgxpool.Pool) RollAllocator {
	return &rollAllocator{pool: pool}
}

func validateRequiredLength(required decimal.Decimal) error {
	if required.Sign() <= 0 {
		return &ValidationError{Field: "required_length", Reason: "must be a positive length"}
	}
	return nil
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (a *rollAllocator) Allocate(ctx context.Context, materialType string, required decimal.Decimal, orderID *int, actor, notes string) (*Allocation, error) {
	if err := validateRequiredLength(required); err != nil {
		return nil, err
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	alloc, err := a.AllocateTx(ctx, tx, materialType, required, orderID, actor, notes)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit allocation: %w", err)
	}
	return alloc, nil
}

func (a *rollAllocator) AllocateFromRoll(ctx context.Context, materialType string, rollNumber int, required decimal.Decimal, orderID *int, actor, notes string) (*Allocation, error) {
	if err := validateRequiredLength(required); err != nil {
		return nil, err
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	alloc, err := a.AllocateFromRollTx(ctx, tx, materialType, rollNumber, required, orderID, actor, notes)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit allocation: %w", err)
	}
	return alloc, nil
}

func (a *rollAllocator) CheckAvailability(ctx context.Context, materialType string, rollNumber int, required decimal.Decimal) (*Availability, error) {
	if err := validateRequiredLength(required); err != nil {
		return nil, err
	}

	var available decimal.Decimal
	var isActive bool
	err := a.pool.QueryRow(ctx, `
		SELECT available_length, is_active
		FROM rolls
		WHERE material_type = $1 AND roll_number = $2
	`, materialType, rollNumber).Scan(&available, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("roll %d of %s: %w", rollNumber, materialType, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read roll %d of %s: %w", rollNumber, materialType, err)
	}

	// A retired roll cannot be allocated from, so the pre-flight answer must
	// not claim otherwise even when the length would fit.
	av := &Availability{
		RollNumber:      rollNumber,
		MaterialType:    materialType,
		Sufficient:      isActive && available.GreaterThanOrEqual(required),
		IsActive:        isActive,
		AvailableLength: available,
		Shortfall:       decimal.Zero,
	}
	if available.LessThan(required) {
		av.Shortfall = required.Sub(available)
	}
	return av, nil
}

// ── Tx-scoped operations ──────────────────────────────────────────────────────

// AllocateTx is the FIFO entry point. Candidate selection and deduction form a
// compare-and-swap: the conditional UPDATE re-checks available_length, so a
// concurrent deduction between the read and the write makes this attempt fail
// cleanly and the loop picks the next candidate. Only the chosen roll row is
// written, so allocations against different rolls never block each other.
func (a *rollAllocator) AllocateTx(ctx context.Context, tx pgx.Tx, materialType string, required decimal.Decimal, orderID *int, actor, notes string) (*Allocation, error) {
	if err := validateRequiredLength(required); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		var rollID, rollNumber int
		err := tx.QueryRow(ctx, `
			SELECT id, roll_number
			FROM rolls
			WHERE material_type = $1 AND is_active = true AND available_length >= $2
			ORDER BY roll_number
			LIMIT 1
		`, materialType, required).Scan(&rollID, &rollNumber)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, a.insufficientStock(ctx, tx, materialType, required)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select candidate roll of %s: %w", materialType, err)
		}

		alloc, err := deductRollTx(ctx, tx, rollID, required)
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race for this roll; re-select.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to deduct roll %d of %s: %w", rollNumber, materialType, err)
		}

		alloc.RollNumber = rollNumber
		alloc.MaterialType = materialType
		if err := insertConsumptionEvent(ctx, tx, alloc, orderID, actor, notes); err != nil {
			return nil, err
		}
		return alloc, nil
	}

	return nil, fmt.Errorf("allocate %s from %s: %w", required.StringFixed(2), materialType, ErrConflict)
}

// AllocateFromRollTx deducts from a specific roll with the same atomicity and
// failure contract as the FIFO path.
func (a *rollAllocator) AllocateFromRollTx(ctx context.Context, tx pgx.Tx, materialType string, rollNumber int, required decimal.Decimal, orderID *int, actor, notes string) (*Allocation, error) {
	if err := validateRequiredLength(required); err != nil {
		return nil, err
	}

	var rollID int
	var isActive bool
	err := tx.QueryRow(ctx, `
		SELECT id, is_active
		FROM rolls
		WHERE material_type = $1 AND roll_number = $2
	`, materialType, rollNumber).Scan(&rollID, &isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("roll %d of %s: %w", rollNumber, materialType, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read roll %d of %s: %w", rollNumber, materialType, err)
	}
	if !isActive {
		return nil, &ValidationError{Field: "roll_number", Reason: fmt.Sprintf("roll %d of %s is inactive", rollNumber, materialType)}
	}

	alloc, err := deductRollTx(ctx, tx, rollID, required)
	if errors.Is(err, pgx.ErrNoRows) {
		// The roll no longer has the capacity: report how much is left.
		var available decimal.Decimal
		if readErr := tx.QueryRow(ctx,
			"SELECT available_length FROM rolls WHERE id = $1", rollID,
		).Scan(&available); readErr != nil {
			return nil, fmt.Errorf("failed to re-read roll %d of %s: %w", rollNumber, materialType, readErr)
		}
		return nil, &InsufficientStockError{
			MaterialType: materialType,
			RollNumber:   rollNumber,
			Required:     required,
			Available:    available,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to deduct roll %d of %s: %w", rollNumber, materialType, err)
	}

	alloc.RollNumber = rollNumber
	alloc.MaterialType = materialType
	if err := insertConsumptionEvent(ctx, tx, alloc, orderID, actor, notes); err != nil {
		return nil, err
	}
	return alloc, nil
}

// deductRollTx performs the conditional decrement. The WHERE guard makes it a
// compare-and-swap: it returns pgx.ErrNoRows when the roll no longer has
// required length available.
func deductRollTx(ctx context.Context, tx pgx.Tx, rollID int, required decimal.Decimal) (*Allocation, error) {
	var remaining decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE rolls
		SET available_length = available_length - $1,
		    used_length      = used_length + $1,
		    last_updated_at  = NOW()
		WHERE id = $2 AND available_length >= $1
		RETURNING available_length
	`, required, rollID).Scan(&remaining)
	if err != nil {
		return nil, err
	}
	return &Allocation{RollID: rollID, Consumed: required, RemainingLength: remaining}, nil
}

func insertConsumptionEvent(ctx context.Context, tx pgx.Tx, alloc *Allocation, orderID *int, actor, notes string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO roll_usage_events (roll_id, event_kind, amount, order_id, actor, notes, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, alloc.RollID, string(RollEventConsumption), alloc.Consumed, orderID, actor, notes)
	if err != nil {
		return fmt.Errorf("failed to insert consumption event for roll %d: %w", alloc.RollNumber, err)
	}
	return nil
}

// insufficientStock builds the typed error with the best remaining length of
// the material type so the caller can show an actionable message.
func (a *rollAllocator) insufficientStock(ctx context.Context, tx pgx.Tx, materialType string, required decimal.Decimal) error {
	var best decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(available_length), 0)
		FROM rolls
		WHERE material_type = $1 AND is_active = true
	`, materialType).Scan(&best)
	if err != nil {
		return fmt.Errorf("failed to read remaining stock of %s: %w", materialType, err)
	}
	return &InsufficientStockError{
		MaterialType: materialType,
		Required:     required,
		Available:    best,
	}
}
