/*
seed.go - demo data loader for development and demos

PURPOSE:
  Populates the store with a small, realistic clinic: a few patients with
  history, a stocked inventory, one doctor with a weekly schedule, and a
  loyalty rule set covering every event type.

WHAT GETS CREATED:
 1. Loyalty rules: TREATMENT, PURCHASE, VISIT, REDEEM (one active each)
 2. Patients: three, one with a treatment and points already on file
 3. Medicines: four items, one at its low-stock threshold
 4. Doctor: weekday schedule, Mon-Fri 09:00-17:00

NOTE:
  The loader only inserts; it never resets existing data. Only use in
  development and demo environments.

USAGE VIA API:
  POST /api/admin/seed
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brightsmile/clinic-engine/clinic"
)

// LoadDemoData seeds the store with demo entities. Admin only.
func (h *Handler) LoadDemoData(w http.ResponseWriter, r *http.Request) {
	if err := h.seedDemo(r.Context()); err != nil {
		h.Logger.Error("demo seed failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load demo data", err)
		return
	}
	h.Logger.Info("demo data loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func (h *Handler) seedDemo(ctx context.Context) error {
	rules := []clinic.LoyaltyRule{
		{
			ID:            clinic.RuleID(clinic.NewID()),
			Name:          "Standard treatment earn",
			EventType:     clinic.EventTreatment,
			PointsPerUnit: decimal.RequireFromString("0.002"),
			MinAmount:     decimal.RequireFromString("100"),
			Active:        true,
		},
		{
			ID:            clinic.RuleID(clinic.NewID()),
			Name:          "Pharmacy purchase earn",
			EventType:     clinic.EventPurchase,
			PointsPerUnit: decimal.RequireFromString("0.001"),
			Active:        true,
		},
		{
			ID:            clinic.RuleID(clinic.NewID()),
			Name:          "Check-in bonus",
			EventType:     clinic.EventVisit,
			PointsPerUnit: decimal.NewFromInt(5),
			Active:        true,
		},
		{
			ID:            clinic.RuleID(clinic.NewID()),
			Name:          "Point redemption",
			EventType:     clinic.EventRedeem,
			PointsPerUnit: decimal.NewFromInt(1),
			MinAmount:     decimal.NewFromInt(500),
			Active:        true,
		},
	}
	for _, rule := range rules {
		if err := h.Store.InsertRule(ctx, rule); err != nil {
			return err
		}
	}

	patients := []clinic.Patient{
		{ID: clinic.PatientID(clinic.NewID()), Name: "An Nguyen", Phone: "555-0101", Email: "an@example.com", Balance: decimal.Zero, CreatedAt: time.Now().UTC()},
		{ID: clinic.PatientID(clinic.NewID()), Name: "Maria Santos", Phone: "555-0102", Email: "maria@example.com", Balance: decimal.Zero, CreatedAt: time.Now().UTC()},
		{ID: clinic.PatientID(clinic.NewID()), Name: "David Chen", Phone: "555-0103", Email: "david@example.com", Balance: decimal.Zero, CreatedAt: time.Now().UTC()},
	}
	for _, p := range patients {
		if err := h.Store.InsertPatient(ctx, p); err != nil {
			return err
		}
	}

	// First patient arrives with history on file: one root canal, partially
	// paid, points already earned.
	if _, err := h.Ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
		PatientID:   patients[0].ID,
		Teeth:       []string{"16"},
		Description: "Root canal",
		UnitCost:    decimal.RequireFromString("4500"),
		FlatRate:    true,
	}); err != nil {
		return err
	}
	if _, err := h.Ledger.ProcessPayment(ctx, patients[0].ID, decimal.RequireFromString("2000")); err != nil {
		return err
	}

	medicines := []clinic.Medicine{
		{ID: clinic.MedicineID(clinic.NewID()), Name: "Amoxicillin 500mg", Unit: "capsule", Price: decimal.RequireFromString("2.50"), Stock: 200, MinStock: 50},
		{ID: clinic.MedicineID(clinic.NewID()), Name: "Ibuprofen 400mg", Unit: "tablet", Price: decimal.RequireFromString("1.20"), Stock: 300, MinStock: 60},
		{ID: clinic.MedicineID(clinic.NewID()), Name: "Chlorhexidine rinse", Unit: "bottle", Price: decimal.RequireFromString("8.00"), Stock: 40, MinStock: 40},
		{ID: clinic.MedicineID(clinic.NewID()), Name: "Fluoride gel", Unit: "tube", Price: decimal.RequireFromString("12.00"), Stock: 80, MinStock: 20},
	}
	for _, m := range medicines {
		if err := h.Store.InsertMedicine(ctx, m); err != nil {
			return err
		}
	}

	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	schedules := make([]clinic.DoctorSchedule, 0, len(weekdays))
	for _, day := range weekdays {
		schedules = append(schedules, clinic.DoctorSchedule{
			DayOfWeek: day,
			StartTime: "09:00",
			EndTime:   "17:00",
		})
	}
	doctor := clinic.Doctor{
		ID:             clinic.DoctorID(clinic.NewID()),
		Name:           "Dr. Sarah Kim",
		Phone:          "555-0200",
		Specialization: "Endodontics",
		Schedules:      schedules,
	}
	return h.Store.InsertDoctor(ctx, doctor)
}
