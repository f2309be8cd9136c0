package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RollStore owns the durable state of material rolls and their usage history.
// Rolls are never physically deleted; retirement is is_active = false so the
// audit trail stays queryable.
type RollStore interface {
	Get(ctx context.Context, materialType string, rollNumber int) (*Roll, error)
	ListByType(ctx context.Context, materialType string) ([]Roll, error)
	ListMaterialTypes(ctx context.Context) ([]MaterialType, error)
	// Install creates or fully resets a roll: available_length = total_length,
	// used_length = 0, installed_at stamped. Last write wins, so replacing a
	// depleted roll is the same call as first setup.
	Install(ctx context.Context, materialType string, rollNumber int, totalLength decimal.Decimal, actor, notes string) (*Roll, error)
	SetActive(ctx context.Context, materialType string, rollNumber int, active bool) (*Roll, error)
	// Usage returns the roll's append-only event history, newest first.
	Usage(ctx context.Context, materialType string, rollNumber int) ([]RollUsageEvent, error)
}

type rollStore struct {
	pool *pgxpool.Pool
}

func NewRollStore(pool *pgxpool.Pool) RollStore {
	return &rollStore{pool: pool}
}

const rollColumns = `id, roll_number, material_type, total_length, available_length, used_length,
	is_active, notes, installed_at, last_updated_at`

func scanRoll(row pgx.Row) (*Roll, error) {
	var r Roll
	err := row.Scan(&r.ID, &r.RollNumber, &r.MaterialType, &r.TotalLength, &r.AvailableLength,
		&r.UsedLength, &r.IsActive, &r.Notes, &r.InstalledAt, &r.LastUpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *rollStore) Get(ctx context.Context, materialType string, rollNumber int) (*Roll, error) {
	roll, err := scanRoll(s.pool.QueryRow(ctx, `
		SELECT `+rollColumns+`
		FROM rolls
		WHERE material_type = $1 AND roll_number = $2
	`, materialType, rollNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("roll %d of %s: %w", rollNumber, materialType, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch roll %d of %s: %w", rollNumber, materialType, err)
	}
	return roll, nil
}

func (s *rollStore) ListByType(ctx context.Context, materialType string) ([]Roll, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+rollColumns+`
		FROM rolls
		WHERE material_type = $1
		ORDER BY roll_number
	`, materialType)
	if err != nil {
		return nil, fmt.Errorf("failed to query rolls of %s: %w", materialType, err)
	}
	defer rows.Close()

	var rolls []Roll
	for rows.Next() {
		roll, err := scanRoll(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roll: %w", err)
		}
		rolls = append(rolls, *roll)
	}
	return rolls, rows.Err()
}

func (s *rollStore) ListMaterialTypes(ctx context.Context) ([]MaterialType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, manual_roll_selection
		FROM material_types
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query material types: %w", err)
	}
	defer rows.Close()

	var types []MaterialType
	for rows.Next() {
		var mt MaterialType
		if err := rows.Scan(&mt.Code, &mt.Name, &mt.ManualRollSelection); err != nil {
			return nil, fmt.Errorf("failed to scan material type: %w", err)
		}
		types = append(types, mt)
	}
	return types, rows.Err()
}

func (s *rollStore) Install(ctx context.Context, materialType string, rollNumber int, totalLength decimal.Decimal, actor, notes string) (*Roll, error) {
	if rollNumber <= 0 {
		return nil, &ValidationError{Field: "roll_number", Reason: "must be positive"}
	}
	if totalLength.Sign() <= 0 {
		return nil, &ValidationError{Field: "total_length", Reason: "must be a positive length"}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Reject installs against unknown material families.
	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM material_types WHERE code = $1)", materialType,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check material type %s: %w", materialType, err)
	}
	if !exists {
		return nil, fmt.Errorf("material type %s: %w", materialType, ErrNotFound)
	}

	roll, err := scanRoll(tx.QueryRow(ctx, `
		INSERT INTO rolls (roll_number, material_type, total_length, available_length, used_length, is_active, notes, installed_at, last_updated_at)
		VALUES ($1, $2, $3, $3, 0, true, $4, NOW(), NOW())
		ON CONFLICT (roll_number, material_type) DO UPDATE SET
			total_length     = EXCLUDED.total_length,
			available_length = EXCLUDED.total_length,
			used_length      = 0,
			is_active        = true,
			notes            = EXCLUDED.notes,
			installed_at     = NOW(),
			last_updated_at  = NOW()
		RETURNING `+rollColumns,
		rollNumber, materialType, totalLength, notes))
	if err != nil {
		return nil, fmt.Errorf("failed to install roll %d of %s: %w", rollNumber, materialType, err)
	}

	// First setup and replacing a depleted roll are the same call and the same
	// event kind; a reinstall appends exactly one INSTALL on top of the
	// surviving history.
	_, err = tx.Exec(ctx, `
		INSERT INTO roll_usage_events (roll_id, event_kind, amount, order_id, actor, notes, occurred_at)
		VALUES ($1, $2, 0, NULL, $3, $4, NOW())
	`, roll.ID, string(RollEventInstall), actor,
		fmt.Sprintf("Roll installed with %s length units", totalLength.StringFixed(2)))
	if err != nil {
		return nil, fmt.Errorf("failed to insert install event for roll %d of %s: %w", rollNumber, materialType, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit roll install: %w", err)
	}
	return roll, nil
}

func (s *rollStore) SetActive(ctx context.Context, materialType string, rollNumber int, active bool) (*Roll, error) {
	roll, err := scanRoll(s.pool.QueryRow(ctx, `
		UPDATE rolls
		SET is_active = $1, last_updated_at = NOW()
		WHERE material_type = $2 AND roll_number = $3
		RETURNING `+rollColumns,
		active, materialType, rollNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("roll %d of %s: %w", rollNumber, materialType, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update roll %d of %s: %w", rollNumber, materialType, err)
	}
	return roll, nil
}

func (s *rollStore) Usage(ctx context.Context, materialType string, rollNumber int) ([]RollUsageEvent, error) {
	// Resolve first so an unknown roll surfaces as NotFound instead of an empty history.
	roll, err := s.Get(ctx, materialType, rollNumber)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.roll_id, e.event_kind, e.amount, e.order_id, e.actor, e.notes, e.occurred_at
		FROM roll_usage_events e
		WHERE e.roll_id = $1
		ORDER BY e.occurred_at DESC, e.id DESC
	`, roll.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage of roll %d of %s: %w", rollNumber, materialType, err)
	}
	defer rows.Close()

	var events []RollUsageEvent
	for rows.Next() {
		e := RollUsageEvent{RollNumber: roll.RollNumber, MaterialType: roll.MaterialType}
		if err := rows.Scan(&e.ID, &e.RollID, &e.EventKind, &e.Amount, &e.OrderID, &e.Actor, &e.Notes, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
