package app

import (
	"context"
	"fmt"
	"strconv"

	"printshop-backend/internal/core"

	"github.com/shopspring/decimal"
)

type appService struct {
	users      core.UserService
	rolls      core.RollStore
	allocator  core.RollAllocator
	orders     core.OrderLedger
	reconciler core.PaymentReconciler
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	users core.UserService,
	rolls core.RollStore,
	allocator core.RollAllocator,
	orders core.OrderLedger,
	reconciler core.PaymentReconciler,
) ApplicationService {
	return &appService{
		users:      users,
		rolls:      rolls,
		allocator:  allocator,
		orders:     orders,
		reconciler: reconciler,
	}
}

// parseDecimal converts a boundary decimal string, empty meaning zero.
func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a decimal value", raw)}
	}
	return d, nil
}

// ── Auth ─────────────────────────────────────────────────────────────────────

func (s *appService) AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error) {
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return &UserSession{
		UserID:   user.ID,
		Username: user.Username,
		FullName: user.FullName,
		Role:     user.Role,
	}, nil
}

func (s *appService) GetUser(ctx context.Context, userID int) (*core.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ── Rolls ────────────────────────────────────────────────────────────────────

func (s *appService) ListMaterialTypes(ctx context.Context) ([]core.MaterialType, error) {
	return s.rolls.ListMaterialTypes(ctx)
}

func (s *appService) ListRolls(ctx context.Context, materialType string) (*RollListResult, error) {
	types, err := s.rolls.ListMaterialTypes(ctx)
	if err != nil {
		return nil, err
	}
	var mt *core.MaterialType
	for i := range types {
		if types[i].Code == materialType {
			mt = &types[i]
			break
		}
	}
	if mt == nil {
		return nil, fmt.Errorf("material type %s: %w", materialType, core.ErrNotFound)
	}

	rolls, err := s.rolls.ListByType(ctx, materialType)
	if err != nil {
		return nil, err
	}
	return &RollListResult{MaterialType: *mt, Rolls: rolls}, nil
}

func (s *appService) GetRoll(ctx context.Context, materialType string, rollNumber int) (*core.Roll, error) {
	return s.rolls.Get(ctx, materialType, rollNumber)
}

func (s *appService) InstallRoll(ctx context.Context, req InstallRollRequest) (*core.Roll, error) {
	length, err := parseDecimal("total_length", req.TotalLength)
	if err != nil {
		return nil, err
	}
	return s.rolls.Install(ctx, req.MaterialType, req.RollNumber, length, req.Actor, req.Notes)
}

func (s *appService) SetRollActive(ctx context.Context, materialType string, rollNumber int, active bool) (*core.Roll, error) {
	return s.rolls.SetActive(ctx, materialType, rollNumber, active)
}

func (s *appService) RollUsage(ctx context.Context, materialType string, rollNumber int) ([]core.RollUsageEvent, error) {
	return s.rolls.Usage(ctx, materialType, rollNumber)
}

func (s *appService) CheckRollAvailability(ctx context.Context, materialType string, rollNumber int, requiredLength string) (*core.Availability, error) {
	length, err := parseDecimal("required_length", requiredLength)
	if err != nil {
		return nil, err
	}
	return s.allocator.CheckAvailability(ctx, materialType, rollNumber, length)
}

func (s *appService) ConsumeFromRoll(ctx context.Context, req ConsumeRollRequest) (*core.Allocation, error) {
	length, err := parseDecimal("length", req.Length)
	if err != nil {
		return nil, err
	}
	notes := req.Notes
	if notes == "" {
		notes = "Manual deduction"
	}
	return s.allocator.AllocateFromRoll(ctx, req.MaterialType, req.RollNumber, length, nil, req.Actor, notes)
}

// ── Orders ───────────────────────────────────────────────────────────────────

func itemInputs(items []OrderItemRequest) ([]core.OrderItemInput, error) {
	out := make([]core.OrderItemInput, 0, len(items))
	for i, item := range items {
		in := core.OrderItemInput{Description: item.Description}
		var err error
		prefix := fmt.Sprintf("items[%d].", i)
		if in.PrintQty, err = parseDecimal(prefix+"print_qty", item.PrintQty); err != nil {
			return nil, err
		}
		if in.PrintUnitCost, err = parseDecimal(prefix+"print_unit_cost", item.PrintUnitCost); err != nil {
			return nil, err
		}
		if in.PressQty, err = parseDecimal(prefix+"press_qty", item.PressQty); err != nil {
			return nil, err
		}
		if in.PressUnitCost, err = parseDecimal(prefix+"press_unit_cost", item.PressUnitCost); err != nil {
			return nil, err
		}
		if in.BadgeQty, err = parseDecimal(prefix+"badge_qty", item.BadgeQty); err != nil {
			return nil, err
		}
		if in.BadgeUnitCost, err = parseDecimal(prefix+"badge_unit_cost", item.BadgeUnitCost); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func (s *appService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*core.Order, error) {
	items, err := itemInputs(req.Items)
	if err != nil {
		return nil, err
	}

	materials := make([]core.MaterialRequirement, 0, len(req.Materials))
	for i, m := range req.Materials {
		length, err := parseDecimal(fmt.Sprintf("materials[%d].length", i), m.Length)
		if err != nil {
			return nil, err
		}
		materials = append(materials, core.MaterialRequirement{
			MaterialType: m.MaterialType,
			Length:       length,
			RollNumber:   m.RollNumber,
		})
	}

	return s.orders.CreateOrder(ctx, core.CreateOrderInput{
		ClientName:    req.ClientName,
		ClientPhone:   req.ClientPhone,
		WorkType:      req.WorkType,
		Items:         items,
		Materials:     materials,
		Paid:          req.Paid,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		CreatedBy:     req.CreatedBy,
	})
}

func (s *appService) GetOrder(ctx context.Context, ref string) (*core.Order, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return s.orders.GetOrder(ctx, id)
	}
	return s.orders.GetOrderByReceipt(ctx, ref)
}

func (s *appService) ListOrders(ctx context.Context, status string) ([]core.Order, error) {
	var filter *core.OrderStatus
	if status != "" {
		switch st := core.OrderStatus(status); st {
		case core.OrderStatusActive, core.OrderStatusCompleted, core.OrderStatusCancelled:
			filter = &st
		default:
			return nil, &core.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
		}
	}
	return s.orders.ListOrders(ctx, filter)
}

func (s *appService) UpdateOrder(ctx context.Context, orderID int, req UpdateOrderRequest) (*core.Order, error) {
	input := core.UpdateOrderInput{
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		Notes:       req.Notes,
	}
	if req.Items != nil {
		items, err := itemInputs(req.Items)
		if err != nil {
			return nil, err
		}
		input.Items = items
	}
	return s.orders.UpdateOrder(ctx, orderID, input)
}

func (s *appService) CancelOrder(ctx context.Context, orderID int) (*core.Order, error) {
	return s.orders.CancelOrder(ctx, orderID)
}

func (s *appService) CompleteOrder(ctx context.Context, orderID int) (*core.Order, error) {
	return s.orders.CompleteOrder(ctx, orderID)
}

// ── Payments ─────────────────────────────────────────────────────────────────

func (s *appService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResult, error) {
	amount, err := parseDecimal("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	payment, err := s.reconciler.RecordPayment(ctx, core.RecordPaymentInput{
		OrderID:          req.OrderID,
		Amount:           amount,
		Method:           req.Method,
		Bank:             req.Bank,
		ReceiptReference: req.ReceiptReference,
		Notes:            req.Notes,
		RecordedBy:       req.RecordedBy,
	})
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Payment: payment, Order: order}, nil
}

func (s *appService) ReversePayment(ctx context.Context, paymentID int) (*core.Order, error) {
	// Resolve the owning order before the delete so the refreshed order can be
	// returned afterwards.
	payment, err := s.reconciler.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.reconciler.ReversePayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.orders.GetOrder(ctx, payment.OrderID)
}

func (s *appService) ListPayments(ctx context.Context, orderID int) ([]core.PartialPayment, error) {
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.reconciler.ListPayments(ctx, orderID)
}
