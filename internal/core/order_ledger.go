package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CreateOrderInput carries everything needed to create a work order in one
// all-or-nothing operation.
type CreateOrderInput struct {
	ClientName  string
	ClientPhone string
	WorkType    string
	Items       []OrderItemInput
	// Materials is the aggregate required length per material type. Materials
	// configured for manual roll selection must carry a RollNumber.
	Materials []MaterialRequirement
	// Paid records one initial payment equal to the order total.
	Paid          bool
	PaymentMethod string
	Notes         string
	CreatedBy     string
}

// UpdateOrderInput carries the editable fields of an existing order. Nil slices
// and empty strings leave the current value untouched.
type UpdateOrderInput struct {
	ClientName  string
	ClientPhone string
	Notes       *string
	Items       []OrderItemInput
}

// OrderLedger owns order rows and their item composition. It delegates material
// consumption to RollAllocator and initial payments to PaymentReconciler, and
// it never writes amount_paid or payment_status itself.
type OrderLedger interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	// UpdateOrder recomputes total when items change. It does not touch
	// amount_paid or payment_status; those stay with PaymentReconciler.
	UpdateOrder(ctx context.Context, orderID int, input UpdateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, orderID int) (*Order, error)
	GetOrderByReceipt(ctx context.Context, receiptNumber string) (*Order, error)
	ListOrders(ctx context.Context, status *OrderStatus) ([]Order, error)
	CancelOrder(ctx context.Context, orderID int) (*Order, error)
	CompleteOrder(ctx context.Context, orderID int) (*Order, error)
}

type orderLedger struct {
	pool       *pgxpool.Pool
	sequencer  ReceiptSequencer
	allocator  RollAllocator
	reconciler PaymentReconciler
}

func NewOrderLedger(pool *pgxpool.Pool, sequencer ReceiptSequencer, allocator RollAllocator, reconciler PaymentReconciler) OrderLedger {
	return &orderLedger{pool: pool, sequencer: sequencer, allocator: allocator, reconciler: reconciler}
}

func validateCreateOrder(input CreateOrderInput) error {
	if input.ClientName == "" {
		return &ValidationError{Field: "client_name", Reason: "is required"}
	}
	if input.WorkType == "" {
		return &ValidationError{Field: "work_type", Reason: "is required"}
	}
	if err := validateOrderItems(input.Items); err != nil {
		return err
	}
	for i, req := range input.Materials {
		if req.MaterialType == "" {
			return &ValidationError{Field: fmt.Sprintf("materials[%d].material_type", i), Reason: "is required"}
		}
		if req.Length.Sign() <= 0 {
			return &ValidationError{Field: fmt.Sprintf("materials[%d].length", i), Reason: "must be a positive length"}
		}
	}
	if input.Paid && input.PaymentMethod == "" {
		return &ValidationError{Field: "payment_method", Reason: "is required when the order is created paid"}
	}
	return nil
}

// validateOrderItems guards every write path that touches order_items, so a
// negative component can never drive total negative.
func validateOrderItems(items []OrderItemInput) error {
	if len(items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one line item is required"}
	}
	for i, item := range items {
		for _, c := range []struct {
			name string
			v    decimal.Decimal
		}{
			{"print_qty", item.PrintQty}, {"print_unit_cost", item.PrintUnitCost},
			{"press_qty", item.PressQty}, {"press_unit_cost", item.PressUnitCost},
			{"badge_qty", item.BadgeQty}, {"badge_unit_cost", item.BadgeUnitCost},
		} {
			if c.v.Sign() < 0 {
				return &ValidationError{Field: fmt.Sprintf("items[%d].%s", i, c.name), Reason: "must not be negative"}
			}
		}
	}
	return nil
}

// CreateOrder runs the whole creation as one unit: receipt number, order row,
// items, material deduction, and the optional initial payment. Any failure
// rolls back everything except the receipt counter, which may leave a gap.
// That is acceptable, since no order references the abandoned number.
func (l *orderLedger) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if err := validateCreateOrder(input); err != nil {
		return nil, err
	}

	total := OrderTotalFor(input.Items)

	// No receipt, no order. The counter commits on its own so that busy order
	// creation does not serialize on the day-bucket row for the whole
	// transaction below.
	receipt, err := l.sequencer.Next(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID int
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (receipt_number, client_name, client_phone, work_type, status,
			total, amount_paid, payment_status, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`, receipt, input.ClientName, input.ClientPhone, input.WorkType, string(OrderStatusActive),
		total, string(PaymentStatusPending), input.Notes, input.CreatedBy,
	).Scan(&orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order %s: %w", receipt, err)
	}

	if err := insertOrderItemsTx(ctx, tx, orderID, input.Items); err != nil {
		return nil, err
	}

	// Material deduction, one allocation per aggregated requirement. Allocator
	// and reconciler errors propagate verbatim so callers can distinguish
	// "insufficient material" from a system failure.
	for _, req := range aggregateRequirements(input.Materials) {
		manual, err := l.manualSelectionTx(ctx, tx, req.MaterialType)
		if err != nil {
			return nil, err
		}
		notes := fmt.Sprintf("Consumed by order %s", receipt)
		if manual {
			if req.RollNumber == nil {
				return nil, &ValidationError{
					Field:  "materials",
					Reason: fmt.Sprintf("material %s requires an explicit roll number", req.MaterialType),
				}
			}
			_, err = l.allocator.AllocateFromRollTx(ctx, tx, req.MaterialType, *req.RollNumber, req.Length, &orderID, input.CreatedBy, notes)
		} else {
			_, err = l.allocator.AllocateTx(ctx, tx, req.MaterialType, req.Length, &orderID, input.CreatedBy, notes)
		}
		if err != nil {
			return nil, err
		}
	}

	if input.Paid {
		_, err := l.reconciler.RecordPaymentTx(ctx, tx, RecordPaymentInput{
			OrderID:    orderID,
			Amount:     total,
			Method:     input.PaymentMethod,
			Notes:      "Paid in full at order creation",
			RecordedBy: input.CreatedBy,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order %s: %w", receipt, err)
	}

	return l.GetOrder(ctx, orderID)
}

// aggregateRequirements merges duplicate (material_type, roll_number) pairs so
// the allocator is invoked once per pair with the summed length.
func aggregateRequirements(reqs []MaterialRequirement) []MaterialRequirement {
	type key struct {
		materialType string
		rollNumber   int // 0 = FIFO
	}
	sums := make(map[key]MaterialRequirement)
	var order []key
	for _, req := range reqs {
		k := key{materialType: req.MaterialType}
		if req.RollNumber != nil {
			k.rollNumber = *req.RollNumber
		}
		agg, seen := sums[k]
		if !seen {
			agg = MaterialRequirement{MaterialType: req.MaterialType, RollNumber: req.RollNumber}
			order = append(order, k)
		}
		agg.Length = agg.Length.Add(req.Length)
		sums[k] = agg
	}
	// Deterministic allocation order keeps lock acquisition stable across
	// concurrent order creations.
	sort.Slice(order, func(i, j int) bool {
		if order[i].materialType != order[j].materialType {
			return order[i].materialType < order[j].materialType
		}
		return order[i].rollNumber < order[j].rollNumber
	})
	out := make([]MaterialRequirement, 0, len(order))
	for _, k := range order {
		out = append(out, sums[k])
	}
	return out
}

// manualSelectionTx reads the allocation policy of a material type. The manual
// vs FIFO split is configuration on material_types, not hard-coded branching.
func (l *orderLedger) manualSelectionTx(ctx context.Context, tx pgx.Tx, materialType string) (bool, error) {
	var manual bool
	err := tx.QueryRow(ctx,
		"SELECT manual_roll_selection FROM material_types WHERE code = $1", materialType,
	).Scan(&manual)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("material type %s: %w", materialType, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read material type %s: %w", materialType, err)
	}
	return manual, nil
}

func insertOrderItemsTx(ctx context.Context, tx pgx.Tx, orderID int, items []OrderItemInput) error {
	for _, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, description, print_qty, print_unit_cost,
				press_qty, press_unit_cost, badge_qty, badge_unit_cost, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, orderID, item.Description, item.PrintQty, item.PrintUnitCost,
			item.PressQty, item.PressUnitCost, item.BadgeQty, item.BadgeUnitCost,
			LineTotalFor(item))
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}
	return nil
}

func (l *orderLedger) UpdateOrder(ctx context.Context, orderID int, input UpdateOrderInput) (*Order, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		"SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	if OrderStatus(status) == OrderStatusCancelled {
		return nil, &ValidationError{Field: "order_id", Reason: "cancelled orders cannot be edited"}
	}

	if input.ClientName != "" {
		if _, err := tx.Exec(ctx, "UPDATE orders SET client_name = $1 WHERE id = $2", input.ClientName, orderID); err != nil {
			return nil, fmt.Errorf("failed to update client name of order %d: %w", orderID, err)
		}
	}
	if input.ClientPhone != "" {
		if _, err := tx.Exec(ctx, "UPDATE orders SET client_phone = $1 WHERE id = $2", input.ClientPhone, orderID); err != nil {
			return nil, fmt.Errorf("failed to update client phone of order %d: %w", orderID, err)
		}
	}
	if input.Notes != nil {
		if _, err := tx.Exec(ctx, "UPDATE orders SET notes = $1 WHERE id = $2", *input.Notes, orderID); err != nil {
			return nil, fmt.Errorf("failed to update notes of order %d: %w", orderID, err)
		}
	}

	if input.Items != nil {
		if err := validateOrderItems(input.Items); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID); err != nil {
			return nil, fmt.Errorf("failed to replace items of order %d: %w", orderID, err)
		}
		if err := insertOrderItemsTx(ctx, tx, orderID, input.Items); err != nil {
			return nil, err
		}
		// Total follows the new items; amount_paid and payment_status stay with
		// the PaymentReconciler even when the new total changes the relation.
		if _, err := tx.Exec(ctx,
			"UPDATE orders SET total = $1 WHERE id = $2",
			OrderTotalFor(input.Items), orderID,
		); err != nil {
			return nil, fmt.Errorf("failed to update total of order %d: %w", orderID, err)
		}
	}

	if _, err := tx.Exec(ctx, "UPDATE orders SET updated_at = NOW() WHERE id = $1", orderID); err != nil {
		return nil, fmt.Errorf("failed to stamp order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order update: %w", err)
	}
	return l.GetOrder(ctx, orderID)
}

const orderColumns = `id, receipt_number, client_name, client_phone, work_type, status,
	total, amount_paid, payment_status, notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ReceiptNumber, &o.ClientName, &o.ClientPhone, &o.WorkType,
		&o.Status, &o.Total, &o.AmountPaid, &o.PaymentStatus, &o.Notes, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (l *orderLedger) GetOrder(ctx context.Context, orderID int) (*Order, error) {
	order, err := scanOrder(l.pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}
	if order.Items, err = l.fetchOrderItems(ctx, orderID); err != nil {
		return nil, err
	}
	return order, nil
}

func (l *orderLedger) GetOrderByReceipt(ctx context.Context, receiptNumber string) (*Order, error) {
	order, err := scanOrder(l.pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE receipt_number = $1", receiptNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", receiptNumber, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", receiptNumber, err)
	}
	if order.Items, err = l.fetchOrderItems(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (l *orderLedger) fetchOrderItems(ctx context.Context, orderID int) ([]OrderItem, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, order_id, description, print_qty, print_unit_cost,
		       press_qty, press_unit_cost, badge_qty, badge_unit_cost, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Description, &it.PrintQty, &it.PrintUnitCost,
			&it.PressQty, &it.PressUnitCost, &it.BadgeQty, &it.BadgeUnitCost, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (l *orderLedger) ListOrders(ctx context.Context, status *OrderStatus) ([]Order, error) {
	query := "SELECT " + orderColumns + " FROM orders"
	var args []any
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (l *orderLedger) CancelOrder(ctx context.Context, orderID int) (*Order, error) {
	return l.transition(ctx, orderID, OrderStatusActive, OrderStatusCancelled)
}

func (l *orderLedger) CompleteOrder(ctx context.Context, orderID int) (*Order, error) {
	return l.transition(ctx, orderID, OrderStatusActive, OrderStatusCompleted)
}

// transition moves an order between production states. Cancellation is soft:
// the row, its payments, and its material consumption stay queryable.
func (l *orderLedger) transition(ctx context.Context, orderID int, from, to OrderStatus) (*Order, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		"SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	if OrderStatus(status) != from {
		return nil, &ValidationError{
			Field:  "order_id",
			Reason: fmt.Sprintf("order is %s, must be %s", status, from),
		}
	}

	if _, err := tx.Exec(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		string(to), orderID,
	); err != nil {
		return nil, fmt.Errorf("failed to set order %d to %s: %w", orderID, to, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order transition: %w", err)
	}
	return l.GetOrder(ctx, orderID)
}
