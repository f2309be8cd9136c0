package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RecordPaymentInput is the caller-supplied shape of one payment registration.
// Bank and ReceiptReference are optional and stored as NULL when empty.
type RecordPaymentInput struct {
	OrderID          int
	Amount           decimal.Decimal
	Method           string
	Bank             string
	ReceiptReference string
	Notes            string
	RecordedBy       string
}

// PaymentReconciler is the sole writer of orders.amount_paid and
// orders.payment_status. Every mutation recomputes both from the surviving
// partial_payments rows inside the same transaction: the invariant
// amount_paid == SUM(payments) is re-derived from the source of truth on every
// write, never adjusted incrementally.
type PaymentReconciler interface {
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*PartialPayment, error)
	// RecordPaymentTx records a payment inside the caller's transaction. Used by
	// OrderLedger for orders marked paid at creation.
	RecordPaymentTx(ctx context.Context, tx pgx.Tx, input RecordPaymentInput) (*PartialPayment, error)
	// ReversePayment hard-deletes the payment and recomputes the owning order in
	// one transaction; the order is never left stale.
	ReversePayment(ctx context.Context, paymentID int) error
	GetPayment(ctx context.Context, paymentID int) (*PartialPayment, error)
	ListPayments(ctx context.Context, orderID int) ([]PartialPayment, error)
}

type paymentReconciler struct {
	pool *pgxpool.Pool
}

func NewPaymentReconciler(pool *pgxpool.Pool) PaymentReconciler {
	return &paymentReconciler{pool: pool}
}

func (p *paymentReconciler) RecordPayment(ctx context.Context, input RecordPaymentInput) (*PartialPayment, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, err := p.RecordPaymentTx(ctx, tx, input)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return payment, nil
}

func (p *paymentReconciler) RecordPaymentTx(ctx context.Context, tx pgx.Tx, input RecordPaymentInput) (*PartialPayment, error) {
	if input.Amount.Sign() <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if input.Method == "" {
		return nil, &ValidationError{Field: "method", Reason: "is required"}
	}

	// Lock the order row: concurrent payments against the same order serialize
	// here, so the overpayment check reads a settled amount_paid.
	var total, amountPaid decimal.Decimal
	err := tx.QueryRow(ctx,
		"SELECT total, amount_paid FROM orders WHERE id = $1 FOR UPDATE",
		input.OrderID,
	).Scan(&total, &amountPaid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", input.OrderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", input.OrderID, err)
	}

	remaining := total.Sub(amountPaid)
	if input.Amount.GreaterThan(remaining) {
		return nil, &OverpaymentError{
			OrderID:       input.OrderID,
			Attempted:     input.Amount,
			MaxAcceptable: remaining,
		}
	}

	payment := &PartialPayment{
		OrderID: input.OrderID,
		Amount:  input.Amount,
		Method:  input.Method,
		Notes:   input.Notes,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO partial_payments (order_id, amount, method, bank, receipt_reference, notes, recorded_by, recorded_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, NOW())
		RETURNING id, bank, receipt_reference, recorded_by, recorded_at
	`, input.OrderID, input.Amount, input.Method, input.Bank, input.ReceiptReference,
		input.Notes, input.RecordedBy,
	).Scan(&payment.ID, &payment.Bank, &payment.ReceiptReference, &payment.RecordedBy, &payment.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment for order %d: %w", input.OrderID, err)
	}

	if err := recomputeOrderPaymentsTx(ctx, tx, input.OrderID); err != nil {
		return nil, err
	}
	return payment, nil
}

func (p *paymentReconciler) ReversePayment(ctx context.Context, paymentID int) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID int
	err = tx.QueryRow(ctx,
		"SELECT order_id FROM partial_payments WHERE id = $1",
		paymentID,
	).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch payment %d: %w", paymentID, err)
	}

	// Same lock order as RecordPaymentTx: order row first, then payment rows.
	var lockedID int
	if err := tx.QueryRow(ctx, "SELECT id FROM orders WHERE id = $1 FOR UPDATE", orderID).Scan(&lockedID); err != nil {
		return fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM partial_payments WHERE id = $1", paymentID)
	if err != nil {
		return fmt.Errorf("failed to delete payment %d: %w", paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		// Deleted by a concurrent reversal between our read and the lock.
		return fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
	}

	if err := recomputeOrderPaymentsTx(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment reversal: %w", err)
	}
	return nil
}

func (p *paymentReconciler) GetPayment(ctx context.Context, paymentID int) (*PartialPayment, error) {
	var pp PartialPayment
	err := p.pool.QueryRow(ctx, `
		SELECT id, order_id, amount, method, bank, receipt_reference, notes, recorded_by, recorded_at
		FROM partial_payments
		WHERE id = $1
	`, paymentID).Scan(&pp.ID, &pp.OrderID, &pp.Amount, &pp.Method, &pp.Bank,
		&pp.ReceiptReference, &pp.Notes, &pp.RecordedBy, &pp.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment %d: %w", paymentID, err)
	}
	return &pp, nil
}

func (p *paymentReconciler) ListPayments(ctx context.Context, orderID int) ([]PartialPayment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, order_id, amount, method, bank, receipt_reference, notes, recorded_by, recorded_at
		FROM partial_payments
		WHERE order_id = $1
		ORDER BY recorded_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var payments []PartialPayment
	for rows.Next() {
		var pp PartialPayment
		if err := rows.Scan(&pp.ID, &pp.OrderID, &pp.Amount, &pp.Method, &pp.Bank,
			&pp.ReceiptReference, &pp.Notes, &pp.RecordedBy, &pp.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, pp)
	}
	return payments, rows.Err()
}

// recomputeOrderPaymentsTx re-derives amount_paid from the surviving payment
// rows and classifies payment_status through PaymentStatusFor. Self-healing:
// any drift introduced elsewhere is corrected on the next payment write.
func recomputeOrderPaymentsTx(ctx context.Context, tx pgx.Tx, orderID int) error {
	var total, amountPaid decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT o.total, COALESCE(SUM(p.amount), 0)
		FROM orders o
		LEFT JOIN partial_payments p ON p.order_id = o.id
		WHERE o.id = $1
		GROUP BY o.total
	`, orderID).Scan(&total, &amountPaid)
	if err != nil {
		return fmt.Errorf("failed to sum payments of order %d: %w", orderID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET amount_paid = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3
	`, amountPaid, string(PaymentStatusFor(amountPaid, total)), orderID)
	if err != nil {
		return fmt.Errorf("failed to update payment state of order %d: %w", orderID, err)
	}
	return nil
}
