package core_test

import (
	"testing"

	"printshop-backend/internal/core"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPaymentStatusFor(t *testing.T) {
	cases := []struct {
		name       string
		amountPaid string
		total      string
		want       core.PaymentStatus
	}{
		{"nothing paid", "0", "100", core.PaymentStatusPending},
		{"nothing paid on free order", "0", "0", core.PaymentStatusPending},
		{"partially paid", "50", "100", core.PaymentStatusPartial},
		{"one cent short", "99.99", "100", core.PaymentStatusPartial},
		{"exactly paid", "100", "100", core.PaymentStatusPaid},
		{"paid with scale difference", "100.00", "100", core.PaymentStatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := core.PaymentStatusFor(dec(tc.amountPaid), dec(tc.total))
			if got != tc.want {
				t.Errorf("PaymentStatusFor(%s, %s) = %s, want %s", tc.amountPaid, tc.total, got, tc.want)
			}
		})
	}
}

func TestLineTotalFor(t *testing.T) {
	item := core.OrderItemInput{
		Description:   "Vinyl banner",
		PrintQty:      dec("2"),
		PrintUnitCost: dec("10"),
		PressQty:      dec("3"),
		PressUnitCost: dec("5"),
		BadgeQty:      dec("4"),
		BadgeUnitCost: dec("0.625"),
	}
	got := core.LineTotalFor(item)
	if !got.Equal(dec("37.50")) {
		t.Errorf("LineTotalFor = %s, want 37.50", got)
	}

	// Components left at zero contribute nothing.
	printOnly := core.OrderItemInput{PrintQty: dec("7"), PrintUnitCost: dec("1.5")}
	if got := core.LineTotalFor(printOnly); !got.Equal(dec("10.5")) {
		t.Errorf("LineTotalFor print only = %s, want 10.5", got)
	}
}

func TestOrderTotalFor(t *testing.T) {
	items := []core.OrderItemInput{
		{PrintQty: dec("2"), PrintUnitCost: dec("10")},
		{PressQty: dec("1"), PressUnitCost: dec("12.25")},
	}
	if got := core.OrderTotalFor(items); !got.Equal(dec("32.25")) {
		t.Errorf("OrderTotalFor = %s, want 32.25", got)
	}
	if got := core.OrderTotalFor(nil); !got.Equal(decimal.Zero) {
		t.Errorf("OrderTotalFor(nil) = %s, want 0", got)
	}
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	fifo := &core.InsufficientStockError{
		MaterialType: "banner",
		Required:     dec("12"),
		Available:    dec("3.5"),
	}
	if got := fifo.Error(); got != "insufficient stock of banner: need 12.00, best roll has 3.50" {
		t.Errorf("unexpected FIFO message: %q", got)
	}

	pinned := &core.InsufficientStockError{
		MaterialType: "banner",
		RollNumber:   2,
		Required:     dec("12"),
		Available:    dec("3.5"),
	}
	if got := pinned.Error(); got != "insufficient stock on roll 2 of banner: need 12.00, have 3.50" {
		t.Errorf("unexpected pinned-roll message: %q", got)
	}
}

func TestOverpaymentErrorMessage(t *testing.T) {
	err := &core.OverpaymentError{OrderID: 7, Attempted: dec("30"), MaxAcceptable: dec("20")}
	want := "payment of 30.00 exceeds the remaining balance of order 7: maximum acceptable is 20.00"
	if got := err.Error(); got != want {
		t.Errorf("unexpected message: %q, want %q", got, want)
	}
}
