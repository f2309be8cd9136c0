package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the derived classification of an order's payment completeness.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// PaymentStatusFor classifies an order from its paid amount and total. This is
// the single source of the three-way rule; every write path that touches
// amount_paid must derive payment_status through it.
func PaymentStatusFor(amountPaid, total decimal.Decimal) PaymentStatus {
	switch {
	case amountPaid.Sign() <= 0:
		return PaymentStatusPending
	case amountPaid.LessThan(total):
		return PaymentStatusPartial
	default:
		return PaymentStatusPaid
	}
}

// OrderStatus is the production state of a work order.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// RollEventKind classifies an entry in a roll's append-only usage history.
type RollEventKind string

const (
	RollEventConsumption RollEventKind = "CONSUMPTION"
	RollEventInstall     RollEventKind = "INSTALL"
)

// MaterialType is a printable material family (e.g. DTF, SUBLIM). Rolls are
// numbered within a material type. ManualRollSelection decides whether orders
// for this material pick a roll explicitly or rely on FIFO auto-allocation.
type MaterialType struct {
	Code                string `json:"code"`
	Name                string `json:"name"`
	ManualRollSelection bool   `json:"manual_roll_selection"`
}

// Roll is one physical spool of printable material, identified by
// (roll_number, material_type) and consumed by length.
type Roll struct {
	ID              int             `json:"id"`
	RollNumber      int             `json:"roll_number"`
	MaterialType    string          `json:"material_type"`
	TotalLength     decimal.Decimal `json:"total_length"`
	AvailableLength decimal.Decimal `json:"available_length"`
	UsedLength      decimal.Decimal `json:"used_length"`
	IsActive        bool            `json:"is_active"`
	Notes           string          `json:"notes"`
	InstalledAt     time.Time       `json:"installed_at"`
	LastUpdatedAt   time.Time       `json:"last_updated_at"`
}

// RollUsageEvent is one append-only audit record of a deduction or (re)install.
// Amount is zero for installs.
type RollUsageEvent struct {
	ID           int             `json:"id"`
	RollID       int             `json:"roll_id"`
	RollNumber   int             `json:"roll_number"`
	MaterialType string          `json:"material_type"`
	EventKind    RollEventKind   `json:"event_kind"`
	Amount       decimal.Decimal `json:"amount"`
	OrderID      *int            `json:"order_id,omitempty"`
	Actor        string          `json:"actor"`
	Notes        string          `json:"notes"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Allocation is the outcome of a successful roll deduction.
type Allocation struct {
	RollID          int             `json:"roll_id"`
	RollNumber      int             `json:"roll_number"`
	MaterialType    string          `json:"material_type"`
	Consumed        decimal.Decimal `json:"consumed"`
	RemainingLength decimal.Decimal `json:"remaining_length"`
}

// Availability is an advisory pre-flight answer: a subsequent Allocate may
// still fail if a concurrent order consumes the capacity first. A retired roll
// is never sufficient regardless of its remaining length.
type Availability struct {
	RollNumber      int             `json:"roll_number"`
	MaterialType    string          `json:"material_type"`
	Sufficient      bool            `json:"sufficient"`
	IsActive        bool            `json:"is_active"`
	AvailableLength decimal.Decimal `json:"available_length"`
	Shortfall       decimal.Decimal `json:"shortfall"`
}

// Order is a customer work order. Total is fixed from its items at creation;
// AmountPaid and PaymentStatus are derived and owned exclusively by the
// PaymentReconciler.
type Order struct {
	ID            int             `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	ClientName    string          `json:"client_name"`
	ClientPhone   string          `json:"client_phone"`
	WorkType      string          `json:"work_type"`
	Status        OrderStatus     `json:"status"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Notes         string          `json:"notes"`
	CreatedBy     string          `json:"created_by"`
	Items         []OrderItem     `json:"items,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderItem is one line on an order. Its total is the sum of up to three cost
// components (print, pressing, badge), each independently optional.
type OrderItem struct {
	ID            int             `json:"id"`
	OrderID       int             `json:"order_id"`
	Description   string          `json:"description"`
	PrintQty      decimal.Decimal `json:"print_qty"`
	PrintUnitCost decimal.Decimal `json:"print_unit_cost"`
	PressQty      decimal.Decimal `json:"press_qty"`
	PressUnitCost decimal.Decimal `json:"press_unit_cost"`
	BadgeQty      decimal.Decimal `json:"badge_qty"`
	BadgeUnitCost decimal.Decimal `json:"badge_unit_cost"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// PartialPayment is one recorded payment event against an order.
type PartialPayment struct {
	ID               int             `json:"id"`
	OrderID          int             `json:"order_id"`
	Amount           decimal.Decimal `json:"amount"`
	Method           string          `json:"method"`
	Bank             *string         `json:"bank,omitempty"`
	ReceiptReference *string         `json:"receipt_reference,omitempty"`
	Notes            string          `json:"notes"`
	RecordedBy       string          `json:"recorded_by"`
	RecordedAt       time.Time       `json:"recorded_at"`
}

// OrderItemInput is the caller-supplied shape of one order line. Unused cost
// components stay at their zero value.
type OrderItemInput struct {
	Description   string
	PrintQty      decimal.Decimal
	PrintUnitCost decimal.Decimal
	PressQty      decimal.Decimal
	PressUnitCost decimal.Decimal
	BadgeQty      decimal.Decimal
	BadgeUnitCost decimal.Decimal
}

// LineTotalFor computes one item's total from its cost components.
func LineTotalFor(item OrderItemInput) decimal.Decimal {
	return item.PrintQty.Mul(item.PrintUnitCost).
		Add(item.PressQty.Mul(item.PressUnitCost)).
		Add(item.BadgeQty.Mul(item.BadgeUnitCost))
}

// OrderTotalFor sums the line totals of all items.
func OrderTotalFor(items []OrderItemInput) decimal.Decimal {
	var total decimal.Decimal
	for _, item := range items {
		total = total.Add(LineTotalFor(item))
	}
	return total
}

// MaterialRequirement is the aggregate length an order needs from one material
// type. RollNumber is set only for materials configured for manual roll
// selection; FIFO materials leave it nil.
type MaterialRequirement struct {
	MaterialType string
	Length       decimal.Decimal
	RollNumber   *int
}
