package web

import (
	"net/http"

	"printshop-backend/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, log *logrus.Logger, allowedOrigins, jwtSecret string) http.Handler {
	h := &Handler{svc: svc, jwtSecret: jwtSecret}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(maxRequestBody))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Auth (public) ─────────────────────────────────────────────────────────
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/logout", h.logout)

	// ── Authenticated API ─────────────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		r.Get("/api/auth/me", h.me)

		r.Get("/api/materials", h.listMaterialTypes)
		r.Get("/api/materials/{material}/rolls", h.listRolls)
		r.Post("/api/materials/{material}/rolls", h.installRoll)
		r.Get("/api/materials/{material}/rolls/{number}", h.getRoll)
		r.Patch("/api/materials/{material}/rolls/{number}/active", h.setRollActive)
		r.Get("/api/materials/{material}/rolls/{number}/usage", h.rollUsage)
		r.Get("/api/materials/{material}/rolls/{number}/availability", h.checkAvailability)
		r.Post("/api/materials/{material}/rolls/{number}/consume", h.consumeRoll)

		r.Post("/api/orders", h.createOrder)
		r.Get("/api/orders", h.listOrders)
		r.Get("/api/orders/{ref}", h.getOrder)
		r.Put("/api/orders/{id}", h.updateOrder)
		r.Post("/api/orders/{id}/cancel", h.cancelOrder)
		r.Post("/api/orders/{id}/complete", h.completeOrder)

		r.Get("/api/orders/{id}/payments", h.listPayments)
		r.Post("/api/orders/{id}/payments", h.recordPayment)
		r.Delete("/api/payments/{id}", h.reversePayment)
	})

	return r
}

// health handles GET /api/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
