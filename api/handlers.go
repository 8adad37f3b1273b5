/*
handlers.go - HTTP handlers for patients, treatments, payments, and loyalty

PURPOSE:
  Exposes the clinic engine via REST. Handlers parse and validate input,
  delegate to the ledger or store, and serialize results. Handlers for
  inventory and scheduling live in their own files.

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ledger, resolver, availability)
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  - 400: validation errors, invalid input
  - 401/403: missing or insufficient session
  - 404: entity not found
  - 409: business rule conflicts (stock, points, duplicate active rule)
  - 500: gateway and internal errors

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: route wiring
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brightsmile/clinic-engine/auth"
	"github.com/brightsmile/clinic-engine/clinic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     clinic.Store
	Ledger    *clinic.Ledger
	Logger    *zap.Logger
	JWTSecret []byte
	TokenTTL  time.Duration
	Currency  string
}

// NewHandler wires a handler around the given store.
func NewHandler(store clinic.Store, logger *zap.Logger, jwtSecret []byte, currency string) *Handler {
	return &Handler{
		Store:     store,
		Ledger:    clinic.NewLedger(store),
		Logger:    logger,
		JWTSecret: jwtSecret,
		TokenTTL:  auth.DefaultTokenTTL,
		Currency:  currency,
	}
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

// ListPatients returns a page of patients.
// GET /api/patients?page=1&page_size=20
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.Store.ListPatients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list patients", err)
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	total := len(patients)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	dtos := make([]PatientDTO, 0, end-start)
	for _, p := range patients[start:end] {
		dtos = append(dtos, toPatientDTO(p))
	}

	writeJSON(w, http.StatusOK, PatientPageDTO{
		Patients: dtos,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// GetPatient returns a single patient with current balance and points.
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id := clinic.PatientID(chi.URLParam(r, "id"))

	p, err := h.Store.GetPatient(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get patient", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Patient not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(*p))
}

// CreatePatient registers a new patient with zero balance and points.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	p := clinic.Patient{
		ID:        clinic.PatientID(clinic.NewID()),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Address:   req.Address,
		Balance:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.InsertPatient(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create patient", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientDTO(p))
}

// UpdatePatient updates contact fields. Absent fields are left unchanged;
// balance and points cannot be updated through this endpoint.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id := clinic.PatientID(chi.URLParam(r, "id"))

	var req UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd := clinic.PatientUpdate{Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address}
	if err := h.Store.UpdatePatient(r.Context(), id, upd); err != nil {
		h.writeDomainError(w, "Failed to update patient", err)
		return
	}

	p, err := h.Store.GetPatient(r.Context(), id)
	if err != nil || p == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload patient", err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(*p))
}

// =============================================================================
// TREATMENT HANDLERS
// =============================================================================

// ListTreatments returns a patient's clinical records.
func (h *Handler) ListTreatments(w http.ResponseWriter, r *http.Request) {
	id := clinic.PatientID(chi.URLParam(r, "id"))

	records, err := h.Store.ListRecordsByPatient(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list treatments", err)
		return
	}
	dtos := make([]RecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApplyTreatment charges a treatment and awards loyalty points.
// POST /api/patients/{id}/treatments
func (h *Handler) ApplyTreatment(w http.ResponseWriter, r *http.Request) {
	id := clinic.PatientID(chi.URLParam(r, "id"))
	session, _ := auth.FromContext(r.Context())

	var req TreatmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil || unitCost.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid unit_cost", err)
		return
	}

	var date time.Time
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}

	result, err := h.Ledger.ApplyTreatment(r.Context(), clinic.TreatmentInput{
		PatientID:   id,
		Teeth:       req.Teeth,
		Description: req.Description,
		UnitCost:    unitCost,
		FlatRate:    req.FlatRate,
		LocationID:  session.LocationID,
		Date:        date,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to apply treatment", err)
		return
	}

	writeJSON(w, http.StatusCreated, TreatmentResponse{
		Record:       toRecordDTO(result.Record),
		NewBalance:   result.NewBalance.String(),
		PointsEarned: result.PointsEarned,
		NewPoints:    result.NewPoints,
	})
}

// UndoTreatment removes a clinical record and reverses its charge. The
// stored cost is replayed verbatim. Loyalty points are not touched.
// DELETE /api/patients/{id}/treatments/{recordID}
func (h *Handler) UndoTreatment(w http.ResponseWriter, r *http.Request) {
	patientID := clinic.PatientID(chi.URLParam(r, "id"))
	recordID := clinic.RecordID(chi.URLParam(r, "recordID"))

	rec, err := h.Store.GetRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get record", err)
		return
	}
	if rec == nil || rec.PatientID != patientID {
		writeError(w, http.StatusNotFound, "Record not found", nil)
		return
	}

	result, err := h.Ledger.UndoTreatment(r.Context(), recordID, patientID, rec.Cost)
	if err != nil {
		h.writeDomainError(w, "Failed to undo treatment", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{NewBalance: result.NewBalance.String()})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ProcessPayment records a payment against the patient's balance.
// POST /api/patients/{id}/payments
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	id := clinic.PatientID(chi.URLParam(r, "id"))

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	result, err := h.Ledger.ProcessPayment(r.Context(), id, amount)
	if err != nil {
		h.writeDomainError(w, "Failed to process payment", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{NewBalance: result.NewBalance.String()})
}

// =============================================================================
// LOYALTY HANDLERS
// =============================================================================

// ListLoyaltyHistory returns a patient's loyalty transaction audit trail.
func (h *Handler) ListLoyaltyHistory(w http.ResponseWriter, r *http.Request) {
	id := clinic.PatientID(chi.URLParam(r, "id"))

	txs, err := h.Store.ListLoyaltyTransactions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list loyalty history", err)
		return
	}
	dtos := make([]LoyaltyTransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toLoyaltyTxDTO(tx))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RedeemPoints spends points for a balance discount. The discount amount
// comes from the active REDEEM rule (currency-per-point).
// POST /api/patients/{id}/redemptions
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	id := clinic.PatientID(chi.URLParam(r, "id"))
	session, _ := auth.FromContext(r.Context())

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Points <= 0 {
		writeError(w, http.StatusBadRequest, "Points must be positive", nil)
		return
	}

	rules, err := h.Store.ListRules(r.Context(), session.LocationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rules", err)
		return
	}
	rule := clinic.ResolveRule(rules, clinic.EventRedeem)
	if req.Points < rule.MinRedeemPoints() {
		writeError(w, http.StatusBadRequest, "Below minimum redemption", nil)
		return
	}
	amount := rule.RedeemValue(req.Points)

	result, err := h.Ledger.RedeemPoints(r.Context(), id, session.LocationID, req.Points, amount)
	if err != nil {
		h.writeDomainError(w, "Failed to redeem points", err)
		return
	}

	writeJSON(w, http.StatusOK, RedeemResponse{
		NewBalance: result.NewBalance.String(),
		NewPoints:  result.NewPoints,
		Discount:   amount.String(),
	})
}

// ListRules returns the loyalty rules for the session's location.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())

	rules, err := h.Store.ListRules(r.Context(), session.LocationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}
	dtos := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, toRuleDTO(rule))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule adds a loyalty rule. A second active rule for the same event
// type at the same location is rejected.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())

	rule, ok := h.parseRule(w, r, clinic.RuleID(clinic.NewID()), session.LocationID)
	if !ok {
		return
	}
	if err := h.Store.InsertRule(r.Context(), rule); err != nil {
		h.writeDomainError(w, "Failed to create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

// UpdateRule replaces a loyalty rule.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())

	rule, ok := h.parseRule(w, r, clinic.RuleID(chi.URLParam(r, "id")), session.LocationID)
	if !ok {
		return
	}
	if err := h.Store.UpdateRule(r.Context(), rule); err != nil {
		h.writeDomainError(w, "Failed to update rule", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(rule))
}

// DeleteRule removes a loyalty rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := clinic.RuleID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteRule(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete rule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) parseRule(w http.ResponseWriter, r *http.Request, id clinic.RuleID, locationID clinic.LocationID) (clinic.LoyaltyRule, bool) {
	var req SaveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return clinic.LoyaltyRule{}, false
	}

	event := clinic.LoyaltyEvent(req.EventType)
	switch event {
	case clinic.EventTreatment, clinic.EventPurchase, clinic.EventVisit, clinic.EventRedeem:
	default:
		writeError(w, http.StatusBadRequest, "Invalid event_type", nil)
		return clinic.LoyaltyRule{}, false
	}

	ppu, err := decimal.NewFromString(req.PointsPerUnit)
	if err != nil || ppu.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid points_per_unit", err)
		return clinic.LoyaltyRule{}, false
	}
	minAmount := decimal.Zero
	if req.MinAmount != "" {
		minAmount, err = decimal.NewFromString(req.MinAmount)
		if err != nil || minAmount.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid min_amount", err)
			return clinic.LoyaltyRule{}, false
		}
	}

	return clinic.LoyaltyRule{
		ID:            id,
		LocationID:    locationID,
		Name:          req.Name,
		EventType:     event,
		PointsPerUnit: ppu,
		MinAmount:     minAmount,
		Active:        req.Active,
	}, true
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetLoyalty zeroes every patient's points and purges loyalty history.
// Requires ?confirm=true; the operation is irreversible.
// POST /api/admin/loyalty/reset
func (h *Handler) ResetLoyalty(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "Reset requires explicit confirmation (?confirm=true)", nil)
		return
	}
	if err := h.Ledger.ResetAllPoints(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset loyalty program", err)
		return
	}
	h.Logger.Warn("loyalty program reset", zap.String("actor", actorName(r)))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func actorName(r *http.Request) string {
	if session, ok := auth.FromContext(r.Context()); ok {
		return session.Username
	}
	return "unknown"
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case clinic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, clinic.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, message, err)
	case clinic.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
