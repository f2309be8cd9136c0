package web

import (
	"net/http"
	"strconv"

	"printshop-backend/internal/app"

	"github.com/go-chi/chi/v5"
)

// rollParams extracts the (material type, roll number) identity from the URL.
// Writes a 400 and returns false on a malformed roll number.
func rollParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	material := chi.URLParam(r, "material")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		writeError(w, r, "roll number must be a positive integer", "VALIDATION_ERROR", http.StatusBadRequest)
		return "", 0, false
	}
	return material, number, true
}

// actor returns the authenticated username for audit attribution.
func actor(r *http.Request) string {
	if claims := authFromContext(r.Context()); claims != nil {
		return claims.Username
	}
	return ""
}

// listMaterialTypes handles GET /api/materials.
func (h *Handler) listMaterialTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.ListMaterialTypes(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, types)
}

// listRolls handles GET /api/materials/{material}/rolls.
func (h *Handler) listRolls(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListRolls(r.Context(), chi.URLParam(r, "material"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// installRoll handles POST /api/materials/{material}/rolls.
func (h *Handler) installRoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RollNumber  int    `json:"roll_number" validate:"required,gt=0"`
		TotalLength string `json:"total_length" validate:"required"`
		Notes       string `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	roll, err := h.svc.InstallRoll(r.Context(), app.InstallRollRequest{
		MaterialType: chi.URLParam(r, "material"),
		RollNumber:   req.RollNumber,
		TotalLength:  req.TotalLength,
		Actor:        actor(r),
		Notes:        req.Notes,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, roll)
}

// getRoll handles GET /api/materials/{material}/rolls/{number}.
func (h *Handler) getRoll(w http.ResponseWriter, r *http.Request) {
	material, number, ok := rollParams(w, r)
	if !ok {
		return
	}
	roll, err := h.svc.GetRoll(r.Context(), material, number)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, roll)
}

// setRollActive handles PATCH /api/materials/{material}/rolls/{number}/active.
func (h *Handler) setRollActive(w http.ResponseWriter, r *http.Request) {
	material, number, ok := rollParams(w, r)
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" validate:"required"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	roll, err := h.svc.SetRollActive(r.Context(), material, number, *req.Active)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, roll)
}

// rollUsage handles GET /api/materials/{material}/rolls/{number}/usage.
func (h *Handler) rollUsage(w http.ResponseWriter, r *http.Request) {
	material, number, ok := rollParams(w, r)
	if !ok {
		return
	}
	events, err := h.svc.RollUsage(r.Context(), material, number)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, events)
}

// checkAvailability handles GET /api/materials/{material}/rolls/{number}/availability?length=12.50.
// The answer is advisory: a following allocation may still lose a race.
func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	material, number, ok := rollParams(w, r)
	if !ok {
		return
	}
	length := r.URL.Query().Get("length")
	if length == "" {
		writeError(w, r, "length query parameter is required", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	availability, err := h.svc.CheckRollAvailability(r.Context(), material, number, length)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, availability)
}

// consumeRoll handles POST /api/materials/{material}/rolls/{number}/consume,
// a manual deduction outside the order flow (waste, test prints).
func (h *Handler) consumeRoll(w http.ResponseWriter, r *http.Request) {
	material, number, ok := rollParams(w, r)
	if !ok {
		return
	}

	var req struct {
		Length string `json:"length" validate:"required"`
		Notes  string `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	alloc, err := h.svc.ConsumeFromRoll(r.Context(), app.ConsumeRollRequest{
		MaterialType: material,
		RollNumber:   number,
		Length:       req.Length,
		Actor:        actor(r),
		Notes:        req.Notes,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, alloc)
}
