package web

import (
	"net/http"
	"strconv"

	"printshop-backend/internal/app"

	"github.com/go-chi/chi/v5"
)

// orderItemBody mirrors app.OrderItemRequest on the wire. Empty component
// fields mean the component is not used.
type orderItemBody struct {
	Description   string `json:"description"`
	PrintQty      string `json:"print_qty"`
	PrintUnitCost string `json:"print_unit_cost"`
	PressQty      string `json:"press_qty"`
	PressUnitCost string `json:"press_unit_cost"`
	BadgeQty      string `json:"badge_qty"`
	BadgeUnitCost string `json:"badge_unit_cost"`
}

func (b orderItemBody) toRequest() app.OrderItemRequest {
	return app.OrderItemRequest{
		Description:   b.Description,
		PrintQty:      b.PrintQty,
		PrintUnitCost: b.PrintUnitCost,
		PressQty:      b.PressQty,
		PressUnitCost: b.PressUnitCost,
		BadgeQty:      b.BadgeQty,
		BadgeUnitCost: b.BadgeUnitCost,
	}
}

// idParam parses the {id} URL parameter. Writes a 400 and returns false on a
// malformed value.
func idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, "id must be a positive integer", "VALIDATION_ERROR", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// createOrder handles POST /api/orders.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientName  string          `json:"client_name" validate:"required"`
		ClientPhone string          `json:"client_phone"`
		WorkType    string          `json:"work_type" validate:"required"`
		Items       []orderItemBody `json:"items" validate:"required,min=1"`
		Materials   []struct {
			MaterialType string `json:"material_type" validate:"required"`
			Length       string `json:"length" validate:"required"`
			RollNumber   *int   `json:"roll_number"`
		} `json:"materials"`
		Paid          bool   `json:"paid"`
		PaymentMethod string `json:"payment_method"`
		Notes         string `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	appReq := app.CreateOrderRequest{
		ClientName:    req.ClientName,
		ClientPhone:   req.ClientPhone,
		WorkType:      req.WorkType,
		Paid:          req.Paid,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		CreatedBy:     actor(r),
	}
	for _, item := range req.Items {
		appReq.Items = append(appReq.Items, item.toRequest())
	}
	for _, m := range req.Materials {
		appReq.Materials = append(appReq.Materials, app.MaterialRequirementRequest{
			MaterialType: m.MaterialType,
			Length:       m.Length,
			RollNumber:   m.RollNumber,
		})
	}

	order, err := h.svc.CreateOrder(r.Context(), appReq)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, order)
}

// listOrders handles GET /api/orders?status=active.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, orders)
}

// getOrder handles GET /api/orders/{ref}. ref is an order ID or a receipt number.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// updateOrder handles PUT /api/orders/{id}. Payment fields cannot be edited
// here; they belong to the payment endpoints.
func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req struct {
		ClientName  string          `json:"client_name"`
		ClientPhone string          `json:"client_phone"`
		Notes       *string         `json:"notes"`
		Items       []orderItemBody `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	appReq := app.UpdateOrderRequest{
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		Notes:       req.Notes,
	}
	if req.Items != nil {
		appReq.Items = make([]app.OrderItemRequest, 0, len(req.Items))
		for _, item := range req.Items {
			appReq.Items = append(appReq.Items, item.toRequest())
		}
	}

	order, err := h.svc.UpdateOrder(r.Context(), id, appReq)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// cancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	order, err := h.svc.CancelOrder(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// completeOrder handles POST /api/orders/{id}/complete.
func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	order, err := h.svc.CompleteOrder(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, order)
}
