package app

import (
	"context"

	"printshop-backend/internal/core"
)

// ApplicationService is the single interface UI adapters call. It decouples
// presentation from the engine; implementations contain no display logic.
type ApplicationService interface {
	// AuthenticateUser verifies credentials and returns a session on success.
	AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error)

	// GetUser returns a user profile by ID.
	GetUser(ctx context.Context, userID int) (*core.User, error)

	// ListMaterialTypes returns all material families and their allocation policy.
	ListMaterialTypes(ctx context.Context) ([]core.MaterialType, error)

	// ListRolls returns all rolls of a material type, ordered by roll number.
	ListRolls(ctx context.Context, materialType string) (*RollListResult, error)

	// GetRoll returns one roll by its (material type, roll number) identity.
	GetRoll(ctx context.Context, materialType string, rollNumber int) (*core.Roll, error)

	// InstallRoll creates or fully resets a roll.
	InstallRoll(ctx context.Context, req InstallRollRequest) (*core.Roll, error)

	// SetRollActive retires or reactivates a roll. Inactive rolls are excluded
	// from allocation but keep their usage history.
	SetRollActive(ctx context.Context, materialType string, rollNumber int, active bool) (*core.Roll, error)

	// RollUsage returns a roll's append-only event history, newest first.
	RollUsage(ctx context.Context, materialType string, rollNumber int) ([]core.RollUsageEvent, error)

	// CheckRollAvailability answers a pre-flight "would this length fit" query.
	// Advisory only: a later allocation may still fail due to a race.
	CheckRollAvailability(ctx context.Context, materialType string, rollNumber int, requiredLength string) (*core.Availability, error)

	// ConsumeFromRoll deducts length from an operator-chosen roll outside the
	// order flow (e.g. recording waste or test prints).
	ConsumeFromRoll(ctx context.Context, req ConsumeRollRequest) (*core.Allocation, error)

	// CreateOrder creates a work order: receipt number, line items, material
	// deduction, and optional initial payment, all-or-nothing.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*core.Order, error)

	// GetOrder resolves ref as a numeric order ID or a receipt number.
	GetOrder(ctx context.Context, ref string) (*core.Order, error)

	// ListOrders returns order headers, optionally filtered by status.
	ListOrders(ctx context.Context, status string) ([]core.Order, error)

	// UpdateOrder edits client info, notes, and line items. Payment fields are
	// untouched; they belong to the payment endpoints.
	UpdateOrder(ctx context.Context, orderID int, req UpdateOrderRequest) (*core.Order, error)

	// CancelOrder soft-cancels an active order.
	CancelOrder(ctx context.Context, orderID int) (*core.Order, error)

	// CompleteOrder marks an active order as completed.
	CompleteOrder(ctx context.Context, orderID int) (*core.Order, error)

	// RecordPayment registers a partial payment and recomputes the order.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResult, error)

	// ReversePayment deletes a payment and recomputes the owning order.
	ReversePayment(ctx context.Context, paymentID int) (*core.Order, error)

	// ListPayments returns the payments of an order, oldest first.
	ListPayments(ctx context.Context, orderID int) ([]core.PartialPayment, error)
}
