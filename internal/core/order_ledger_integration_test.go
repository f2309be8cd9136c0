package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"printshop-backend/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

func newTestLedger(pool *pgxpool.Pool) core.OrderLedger {
	sequencer := core.NewReceiptSequencerAt(pool, fixedClock(2025, time.April, 17))
	allocator := core.NewRollAllocator(pool)
	reconciler := core.NewPaymentReconciler(pool)
	return core.NewOrderLedger(pool, sequencer, allocator, reconciler)
}

func bannerOrderInput() core.CreateOrderInput {
	return core.CreateOrderInput{
		ClientName:  "Acme Events",
		ClientPhone: "6900000000",
		WorkType:    "banner print",
		Items: []core.OrderItemInput{
			{Description: "3x1 banner", PrintQty: dec("2"), PrintUnitCost: dec("10")},
		},
		Materials: []core.MaterialRequirement{
			{MaterialType: "banner", Length: dec("5")},
		},
		CreatedBy: "tester",
	}
}

func TestOrderLedger_CreateOrder(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	ledger := newTestLedger(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "50")

	order, err := ledger.CreateOrder(ctx, bannerOrderInput())
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}

	if !strings.HasPrefix(order.ReceiptNumber, "250417") || len(order.ReceiptNumber) != 10 {
		t.Errorf("Unexpected receipt number %s", order.ReceiptNumber)
	}
	if order.Status != core.OrderStatusActive {
		t.Errorf("Expected active order, got %s", order.Status)
	}
	if !order.Total.Equal(dec("20")) {
		t.Errorf("Expected total 20, got %s", order.Total)
	}
	if order.PaymentStatus != core.PaymentStatusPending || !order.AmountPaid.Equal(dec("0")) {
		t.Errorf("Expected pending order with nothing paid, got %s / %s", order.PaymentStatus, order.AmountPaid)
	}
	if len(order.Items) != 1 || !order.Items[0].LineTotal.Equal(dec("20")) {
		t.Errorf("Unexpected items: %+v", order.Items)
	}

	// Material was deducted and the consumption event points at the order.
	roll, err := store.Get(ctx, "banner", 1)
	if err != nil {
		t.Fatalf("Failed to fetch roll: %v", err)
	}
	if !roll.AvailableLength.Equal(dec("45")) {
		t.Errorf("Expected 45 left on roll, got %s", roll.AvailableLength)
	}
	events, err := store.Usage(ctx, "banner", 1)
	if err != nil {
		t.Fatalf("Failed to fetch usage: %v", err)
	}
	if events[0].EventKind != core.RollEventConsumption || events[0].OrderID == nil || *events[0].OrderID != order.ID {
		t.Errorf("Expected newest event CONSUMPTION for order %d, got %+v", order.ID, events[0])
	}

	fetched, err := ledger.GetOrderByReceipt(ctx, order.ReceiptNumber)
	if err != nil {
		t.Fatalf("Failed to fetch by receipt: %v", err)
	}
	if fetched.ID != order.ID {
		t.Errorf("Receipt lookup returned order %d, want %d", fetched.ID, order.ID)
	}
}

func TestOrderLedger_CreateOrderPaid(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	ledger := newTestLedger(pool)
	reconciler := core.NewPaymentReconciler(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "50")

	input := bannerOrderInput()
	input.Paid = true
	input.PaymentMethod = "cash"

	order, err := ledger.CreateOrder(ctx, input)
	if err != nil {
		t.Fatalf("Failed to create paid order: %v", err)
	}
	if order.PaymentStatus != core.PaymentStatusPaid || !order.AmountPaid.Equal(order.Total) {
		t.Errorf("Expected fully paid order, got %s / %s of %s", order.PaymentStatus, order.AmountPaid, order.Total)
	}

	payments, err := reconciler.ListPayments(ctx, order.ID)
	if err != nil {
		t.Fatalf("Failed to list payments: %v", err)
	}
	if len(payments) != 1 || !payments[0].Amount.Equal(order.Total) {
		t.Fatalf("Expected one payment of the full total, got %+v", payments)
	}
}

// A failed allocation aborts the whole creation: no order row, no items, no
// payment, no consumption. Only the receipt counter moves.
func TestOrderLedger_CreateOrderRollsBackOnInsufficientStock(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	ledger := newTestLedger(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "3")

	input := bannerOrderInput()
	input.Materials = []core.MaterialRequirement{{MaterialType: "banner", Length: dec("500")}}

	_, err := ledger.CreateOrder(ctx, input)
	var stockErr *core.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}

	var orders int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&orders); err != nil {
		t.Fatalf("Failed to count orders: %v", err)
	}
	if orders != 0 {
		t.Errorf("Expected no order row after rollback, got %d", orders)
	}

	roll, err := store.Get(ctx, "banner", 1)
	if err != nil {
		t.Fatalf("Failed to fetch roll: %v", err)
	}
	if !roll.AvailableLength.Equal(dec("3")) {
		t.Errorf("Expected roll untouched at 3, got %s", roll.AvailableLength)
	}
}

func TestOrderLedger_UnknownMaterialRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := newTestLedger(pool)
	ctx := context.Background()

	input := bannerOrderInput()
	input.Materials = []core.MaterialRequirement{{MaterialType: "gold-leaf", Length: dec("1")}}

	if _, err := ledger.CreateOrder(ctx, input); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for unknown material, got %v", err)
	}

	var orders int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&orders); err != nil {
		t.Fatalf("Failed to count orders: %v", err)
	}
	if orders != 0 {
		t.Errorf("Expected no order row after rollback, got %d", orders)
	}
}

func TestOrderLedger_ManualMaterialRequiresRollNumber(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	ledger := newTestLedger(pool)
	ctx := context.Background()

	// dtf is seeded with manual_roll_selection = true.
	installTestRoll(t, store, "dtf", 1, "50")
	installTestRoll(t, store, "dtf", 2, "50")

	input := bannerOrderInput()
	input.Materials = []core.MaterialRequirement{{MaterialType: "dtf", Length: dec("5")}}

	var validationErr *core.ValidationError
	if _, err := ledger.CreateOrder(ctx, input); !errors.As(err, &validationErr) {
		t.Fatalf("Expected validation error without roll number, got %v", err)
	}

	rollTwo := 2
	input.Materials = []core.MaterialRequirement{{MaterialType: "dtf", Length: dec("5"), RollNumber: &rollTwo}}
	if _, err := ledger.CreateOrder(ctx, input); err != nil {
		t.Fatalf("Failed to create order with pinned roll: %v", err)
	}

	roll, err := store.Get(ctx, "dtf", 2)
	if err != nil {
		t.Fatalf("Failed to fetch roll: %v", err)
	}
	if !roll.AvailableLength.Equal(dec("45")) {
		t.Errorf("Expected pinned roll 2 at 45, got %s", roll.AvailableLength)
	}
	untouched, err := store.Get(ctx, "dtf", 1)
	if err != nil {
		t.Fatalf("Failed to fetch roll: %v", err)
	}
	if !untouched.AvailableLength.Equal(dec("50")) {
		t.Errorf("Expected roll 1 untouched at 50, got %s", untouched.AvailableLength)
	}
}

func TestOrderLedger_UpdateOrderRecomputesTotalOnly(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	ledger := newTestLedger(pool)
	reconciler := core.NewPaymentReconciler(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "50")
	order, err := ledger.CreateOrder(ctx, bannerOrderInput())
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	if _, err := reconciler.RecordPayment(ctx, core.RecordPaymentInput{
		OrderID: order.ID, Amount: dec("10"), Method: "cash", RecordedBy: "tester",
	}); err != nil {
		t.Fatalf("Failed to record payment: %v", err)
	}

	updated, err := ledger.UpdateOrder(ctx, order.ID, core.UpdateOrderInput{
		ClientName: "Acme Events Ltd",
		Items: []core.OrderItemInput{
			{Description: "3x1 banner", PrintQty: dec("5"), PrintUnitCost: dec("10")},
		},
	})
	if err != nil {
		t.Fatalf("Failed to update order: %v", err)
	}

	if updated.ClientName != "Acme Events Ltd" {
		t.Errorf("Expected client name updated, got %s", updated.ClientName)
	}
	if !updated.Total.Equal(dec("50")) {
		t.Errorf("Expected recomputed total 50, got %s", updated.Total)
	}
	// Paid state belongs to the reconciler and must survive the edit
	// unchanged, even though the total moved.
	if !updated.AmountPaid.Equal(dec("10")) || updated.PaymentStatus != core.PaymentStatusPartial {
		t.Errorf("Expected amount_paid 10 partial, got %s %s", updated.AmountPaid, updated.PaymentStatus)
	}
}

// Item replacement enforces the same component validation as creation;
// without it a negative unit cost would drive the stored total negative and
// wedge the payment arithmetic.
func TestOrderLedger_UpdateOrderValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	ledger := newTestLedger(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "50")
	order, err := ledger.CreateOrder(ctx, bannerOrderInput())
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}

	var validationErr *core.ValidationError
	_, err = ledger.UpdateOrder(ctx, order.ID, core.UpdateOrderInput{
		Items: []core.OrderItemInput{
			{Description: "bad line", PrintQty: dec("2"), PrintUnitCost: dec("-10")},
		},
	})
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected validation error for negative unit cost, got %v", err)
	}

	_, err = ledger.UpdateOrder(ctx, order.ID, core.UpdateOrderInput{
		Items: []core.OrderItemInput{},
	})
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected validation error for empty item replacement, got %v", err)
	}

	// The rejected edits changed nothing.
	unchanged, err := ledger.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Failed to fetch order: %v", err)
	}
	if !unchanged.Total.Equal(dec("20")) {
		t.Errorf("Expected total unchanged at 20, got %s", unchanged.Total)
	}
	if len(unchanged.Items) != 1 {
		t.Errorf("Expected original item to survive, got %d items", len(unchanged.Items))
	}
}

func TestOrderLedger_Transitions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := core.NewRollStore(pool)
	ledger := newTestLedger(pool)
	ctx := context.Background()

	installTestRoll(t, store, "banner", 1, "50")

	completed, err := ledger.CreateOrder(ctx, bannerOrderInput())
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	if _, err := ledger.CompleteOrder(ctx, completed.ID); err != nil {
		t.Fatalf("Failed to complete order: %v", err)
	}

	cancelled, err := ledger.CreateOrder(ctx, bannerOrderInput())
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	got, err := ledger.CancelOrder(ctx, cancelled.ID)
	if err != nil {
		t.Fatalf("Failed to cancel order: %v", err)
	}
	if got.Status != core.OrderStatusCancelled {
		t.Errorf("Expected cancelled status, got %s", got.Status)
	}

	// Cancellation is soft; the row and its consumption stay on the books.
	roll, err := store.Get(ctx, "banner", 1)
	if err != nil {
		t.Fatalf("Failed to fetch roll: %v", err)
	}
	if !roll.AvailableLength.Equal(dec("40")) {
		t.Errorf("Expected both allocations to remain, available %s", roll.AvailableLength)
	}

	var validationErr *core.ValidationError
	if _, err := ledger.CompleteOrder(ctx, cancelled.ID); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error completing a cancelled order, got %v", err)
	}
	if _, err := ledger.UpdateOrder(ctx, cancelled.ID, core.UpdateOrderInput{ClientName: "x"}); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error editing a cancelled order, got %v", err)
	}

	active := core.OrderStatusActive
	orders, err := ledger.ListOrders(ctx, &active)
	if err != nil {
		t.Fatalf("Failed to list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("Expected no active orders, got %d", len(orders))
	}
}

func TestOrderLedger_CreateOrderValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger := newTestLedger(pool)
	ctx := context.Background()

	var validationErr *core.ValidationError

	input := bannerOrderInput()
	input.ClientName = ""
	if _, err := ledger.CreateOrder(ctx, input); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for missing client name, got %v", err)
	}

	input = bannerOrderInput()
	input.Items = nil
	if _, err := ledger.CreateOrder(ctx, input); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for empty items, got %v", err)
	}

	input = bannerOrderInput()
	input.Items[0].PrintQty = dec("-1")
	if _, err := ledger.CreateOrder(ctx, input); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for negative quantity, got %v", err)
	}

	input = bannerOrderInput()
	input.Paid = true
	if _, err := ledger.CreateOrder(ctx, input); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for paid order without method, got %v", err)
	}

	input = bannerOrderInput()
	input.Materials[0].Length = dec("0")
	if _, err := ledger.CreateOrder(ctx, input); !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for zero material length, got %v", err)
	}
}
