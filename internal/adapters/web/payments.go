package web

import (
	"net/http"

	"printshop-backend/internal/app"
)

// listPayments handles GET /api/orders/{id}/payments.
func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	payments, err := h.svc.ListPayments(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, payments)
}

// recordPayment handles POST /api/orders/{id}/payments. An overpayment attempt
// comes back as 422 OVERPAYMENT with the maximum acceptable amount.
func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount           string `json:"amount" validate:"required"`
		Method           string `json:"method" validate:"required"`
		Bank             string `json:"bank"`
		ReceiptReference string `json:"receipt_reference"`
		Notes            string `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.RecordPayment(r.Context(), app.RecordPaymentRequest{
		OrderID:          id,
		Amount:           req.Amount,
		Method:           req.Method,
		Bank:             req.Bank,
		ReceiptReference: req.ReceiptReference,
		Notes:            req.Notes,
		RecordedBy:       actor(r),
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// reversePayment handles DELETE /api/payments/{id}. The owning order is
// recomputed in the same transaction as the delete and returned refreshed.
func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	order, err := h.svc.ReversePayment(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, order)
}
