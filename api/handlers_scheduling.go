/*
handlers_scheduling.go - HTTP handlers for doctors, availability, and
appointments

PURPOSE:
  Doctor CRUD with weekly schedule validation at the edit boundary, the
  availability endpoint that turns a schedule minus booked times into open
  slots, and the appointment lifecycle. Completing an appointment triggers
  VISIT loyalty accrual through the ledger.

SEE ALSO:
  - clinic/availability.go: slot generation
  - handlers.go: shared helpers and error mapping
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/brightsmile/clinic-engine/auth"
	"github.com/brightsmile/clinic-engine/clinic"
)

// =============================================================================
// DOCTORS
// =============================================================================

func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.Store.ListDoctors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list doctors", err)
		return
	}
	dtos := make([]DoctorDTO, 0, len(doctors))
	for _, d := range doctors {
		dtos = append(dtos, toDoctorDTO(d))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	id := clinic.DoctorID(chi.URLParam(r, "id"))

	d, err := h.Store.GetDoctor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get doctor", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Doctor not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorDTO(*d))
}

// CreateDoctor adds a doctor with a validated weekly schedule.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	d, ok := h.parseDoctor(w, r, clinic.DoctorID(clinic.NewID()))
	if !ok {
		return
	}
	if err := h.Store.InsertDoctor(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create doctor", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDoctorDTO(d))
}

// UpdateDoctor replaces a doctor's details and weekly schedule.
func (h *Handler) UpdateDoctor(w http.ResponseWriter, r *http.Request) {
	d, ok := h.parseDoctor(w, r, clinic.DoctorID(chi.URLParam(r, "id")))
	if !ok {
		return
	}
	if err := h.Store.UpdateDoctor(r.Context(), d); err != nil {
		h.writeDomainError(w, "Failed to update doctor", err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorDTO(d))
}

// parseDoctor decodes and validates a doctor payload. Schedules are
// validated here, at the edit boundary, so availability can trust them.
func (h *Handler) parseDoctor(w http.ResponseWriter, r *http.Request, id clinic.DoctorID) (clinic.Doctor, bool) {
	var req SaveDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return clinic.Doctor{}, false
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return clinic.Doctor{}, false
	}

	schedules := make([]clinic.DoctorSchedule, 0, len(req.Schedules))
	for _, s := range req.Schedules {
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			writeError(w, http.StatusBadRequest, "day_of_week must be 0-6", nil)
			return clinic.Doctor{}, false
		}
		schedules = append(schedules, clinic.DoctorSchedule{
			DayOfWeek: time.Weekday(s.DayOfWeek),
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}
	if err := clinic.ValidateSchedules(schedules); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule", err)
		return clinic.Doctor{}, false
	}

	return clinic.Doctor{
		ID:             id,
		Name:           req.Name,
		Phone:          req.Phone,
		Specialization: req.Specialization,
		Schedules:      schedules,
	}, true
}

// GetAvailability returns the open 30-minute slots for a doctor on a date.
// GET /api/doctors/{id}/availability?date=2026-09-07
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id := clinic.DoctorID(chi.URLParam(r, "id"))

	dateStr := r.URL.Query().Get("date")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date (use YYYY-MM-DD)", err)
		return
	}

	d, err := h.Store.GetDoctor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get doctor", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Doctor not found", nil)
		return
	}

	booked, err := h.Store.BookedTimes(r.Context(), id, dateStr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load bookings", err)
		return
	}

	slots := clinic.AvailableSlots(d.Schedules, date, booked)
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		DoctorID: string(id),
		Date:     dateStr,
		Slots:    slots,
	})
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

// ListAppointments returns appointments, optionally narrowed by
// ?patient_id=, ?doctor_id=, ?date=, ?status=.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := clinic.AppointmentFilter{
		PatientID: clinic.PatientID(q.Get("patient_id")),
		DoctorID:  clinic.DoctorID(q.Get("doctor_id")),
		Date:      q.Get("date"),
		Status:    clinic.AppointmentStatus(q.Get("status")),
	}

	appointments, err := h.Store.ListAppointments(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list appointments", err)
		return
	}
	dtos := make([]AppointmentDTO, 0, len(appointments))
	for _, a := range appointments {
		dtos = append(dtos, toAppointmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id := clinic.AppointmentID(chi.URLParam(r, "id"))

	a, err := h.Store.GetAppointment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get appointment", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Appointment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentDTO(*a))
}

// CreateAppointment books a slot. When the doctor has a schedule window for
// the requested weekday the time must be one of the open slots; when no
// window covers that weekday there are no slots to enforce and the time is
// accepted as entered.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	patient, err := h.Store.GetPatient(r.Context(), clinic.PatientID(req.PatientID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get patient", err)
		return
	}
	if patient == nil {
		writeError(w, http.StatusNotFound, "Patient not found", nil)
		return
	}
	doctor, err := h.Store.GetDoctor(r.Context(), clinic.DoctorID(req.DoctorID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get doctor", err)
		return
	}
	if doctor == nil {
		writeError(w, http.StatusNotFound, "Doctor not found", nil)
		return
	}

	if clinic.ScheduledOn(doctor.Schedules, date.Weekday()) {
		booked, err := h.Store.BookedTimes(r.Context(), doctor.ID, req.Date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load bookings", err)
			return
		}
		if !slotOpen(clinic.AvailableSlots(doctor.Schedules, date, booked), req.Time) {
			writeError(w, http.StatusConflict, "Requested time is not available", nil)
			return
		}
	}

	a := clinic.Appointment{
		ID:        clinic.AppointmentID(clinic.NewID()),
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Date:      req.Date,
		Time:      req.Time,
		Type:      req.Type,
		Status:    clinic.AppointmentScheduled,
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.InsertAppointment(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentDTO(a))
}

// UpdateAppointmentStatus moves an appointment through its lifecycle.
// Completing it awards VISIT loyalty points to the patient.
func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id := clinic.AppointmentID(chi.URLParam(r, "id"))
	session, _ := auth.FromContext(r.Context())

	var req UpdateAppointmentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status := clinic.AppointmentStatus(req.Status)
	switch status {
	case clinic.AppointmentScheduled, clinic.AppointmentCompleted, clinic.AppointmentCancelled:
	default:
		writeError(w, http.StatusBadRequest, "Invalid status", nil)
		return
	}

	a, err := h.Store.GetAppointment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get appointment", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Appointment not found", nil)
		return
	}

	if err := h.Store.UpdateAppointmentStatus(r.Context(), id, status, req.Notes); err != nil {
		h.writeDomainError(w, "Failed to update appointment", err)
		return
	}

	// Visit points accrue once, on the transition into Completed.
	if status == clinic.AppointmentCompleted && a.Status != clinic.AppointmentCompleted {
		if _, err := h.Ledger.RecordVisit(r.Context(), a.PatientID, session.LocationID); err != nil {
			h.Logger.Error("visit accrual failed",
				zap.String("appointment_id", string(id)),
				zap.String("patient_id", string(a.PatientID)),
				zap.Error(err))
		}
	}

	a.Status = status
	if req.Notes != "" {
		a.Notes = req.Notes
	}
	writeJSON(w, http.StatusOK, toAppointmentDTO(*a))
}

func slotOpen(slots []string, t string) bool {
	for _, s := range slots {
		if s == t {
			return true
		}
	}
	return false
}
