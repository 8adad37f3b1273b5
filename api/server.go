/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestLogger: Structured request logging (zap)
  4. CORS:          Cross-origin requests for the dashboard frontend
  5. Authenticator: Bearer-token sessions (all routes except login/health)

ROUTE GROUPS:
  /api/login                 Session issuance
  /api/health                Liveness probe
  /api/patients/*            Patients, treatments, payments, sales, loyalty
  /api/medicines/*           Inventory
  /api/rules/*               Loyalty rule management
  /api/doctors/*             Doctors, schedules, availability
  /api/appointments/*        Appointment booking and status
  /api/reports/*             Revenue summary and XLSX export
  /api/admin/*               User creation, loyalty reset, demo seed

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", h.Login)
		r.Get("/health", h.Health)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(Authenticator(h.JWTSecret))

			r.Route("/patients", func(r chi.Router) {
				r.Get("/", h.ListPatients)
				r.Post("/", h.CreatePatient)
				r.Get("/{id}", h.GetPatient)
				r.Put("/{id}", h.UpdatePatient)

				r.Get("/{id}/treatments", h.ListTreatments)
				r.Post("/{id}/treatments", h.ApplyTreatment)
				r.Delete("/{id}/treatments/{recordID}", h.UndoTreatment)

				r.Post("/{id}/payments", h.ProcessPayment)

				r.Get("/{id}/sales", h.ListPatientSales)
				r.Post("/{id}/sales", h.SellMedicine)

				r.Get("/{id}/loyalty", h.ListLoyaltyHistory)
				r.Post("/{id}/redemptions", h.RedeemPoints)
			})

			r.Route("/medicines", func(r chi.Router) {
				r.Get("/", h.ListMedicines)
				r.Post("/", h.CreateMedicine)
				r.Put("/{id}", h.UpdateMedicine)
			})

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", h.ListRules)
				r.Post("/", h.CreateRule)
				r.Put("/{id}", h.UpdateRule)
				r.Delete("/{id}", h.DeleteRule)
			})

			r.Route("/doctors", func(r chi.Router) {
				r.Get("/", h.ListDoctors)
				r.Post("/", h.CreateDoctor)
				r.Get("/{id}", h.GetDoctor)
				r.Put("/{id}", h.UpdateDoctor)
				r.Get("/{id}/availability", h.GetAvailability)
			})

			r.Route("/appointments", func(r chi.Router) {
				r.Get("/", h.ListAppointments)
				r.Post("/", h.CreateAppointment)
				r.Get("/{id}", h.GetAppointment)
				r.Post("/{id}/status", h.UpdateAppointmentStatus)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/summary", h.RevenueSummary)
				r.Get("/export", h.ExportRevenueReport)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/users", h.CreateUser)
				r.Post("/loyalty/reset", h.ResetLoyalty)
				r.Post("/seed", h.LoadDemoData)
			})
		})
	})

	return r
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
