/*
handlers_inventory.go - HTTP handlers for the medicine inventory

PURPOSE:
  CRUD over stocked medicines plus the point-of-sale endpoint that sells to
  a patient: stock decrements, the charge lands on the balance, and PURCHASE
  loyalty points accrue, all through the ledger.

SEE ALSO:
  - handlers.go: shared helpers and error mapping
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/brightsmile/clinic-engine/auth"
	"github.com/brightsmile/clinic-engine/clinic"
)

// ListMedicines returns the inventory. With ?low_stock=true only items at
// or below their reorder threshold are returned.
func (h *Handler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.Store.ListMedicines(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list medicines", err)
		return
	}

	lowOnly := r.URL.Query().Get("low_stock") == "true"
	dtos := make([]MedicineDTO, 0, len(medicines))
	for _, m := range medicines {
		if lowOnly && !m.LowStock() {
			continue
		}
		dtos = append(dtos, toMedicineDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMedicine adds an inventory item.
func (h *Handler) CreateMedicine(w http.ResponseWriter, r *http.Request) {
	m, ok := h.parseMedicine(w, r, clinic.MedicineID(clinic.NewID()))
	if !ok {
		return
	}
	if err := h.Store.InsertMedicine(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create medicine", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMedicineDTO(m))
}

// UpdateMedicine replaces an inventory item's fields, including a manual
// stock correction.
func (h *Handler) UpdateMedicine(w http.ResponseWriter, r *http.Request) {
	m, ok := h.parseMedicine(w, r, clinic.MedicineID(chi.URLParam(r, "id")))
	if !ok {
		return
	}
	if err := h.Store.UpdateMedicine(r.Context(), m); err != nil {
		h.writeDomainError(w, "Failed to update medicine", err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicineDTO(m))
}

func (h *Handler) parseMedicine(w http.ResponseWriter, r *http.Request, id clinic.MedicineID) (clinic.Medicine, bool) {
	var req SaveMedicineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return clinic.Medicine{}, false
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return clinic.Medicine{}, false
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return clinic.Medicine{}, false
	}
	if req.Stock < 0 || req.MinStock < 0 {
		writeError(w, http.StatusBadRequest, "Stock values must be non-negative", nil)
		return clinic.Medicine{}, false
	}

	return clinic.Medicine{
		ID:       id,
		Name:     req.Name,
		Unit:     req.Unit,
		Price:    price,
		Stock:    req.Stock,
		MinStock: req.MinStock,
	}, true
}

// SellMedicine sells stock to a patient: decrements inventory, charges the
// balance, and accrues PURCHASE points.
// POST /api/patients/{id}/sales
func (h *Handler) SellMedicine(w http.ResponseWriter, r *http.Request) {
	patientID := clinic.PatientID(chi.URLParam(r, "id"))
	session, _ := auth.FromContext(r.Context())

	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "Quantity must be positive", nil)
		return
	}

	result, err := h.Ledger.SellMedicine(r.Context(), clinic.SaleInput{
		PatientID:  patientID,
		MedicineID: clinic.MedicineID(req.MedicineID),
		Quantity:   req.Quantity,
		LocationID: session.LocationID,
		Date:       time.Now().UTC(),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to sell medicine", err)
		return
	}

	writeJSON(w, http.StatusCreated, SaleResponse{
		Sale:         toSaleDTO(result.Sale),
		NewStock:     result.NewStock,
		NewBalance:   result.NewBalance.String(),
		PointsEarned: result.PointsEarned,
		NewPoints:    result.NewPoints,
	})
}

// ListPatientSales returns a patient's purchase history.
func (h *Handler) ListPatientSales(w http.ResponseWriter, r *http.Request) {
	patientID := clinic.PatientID(chi.URLParam(r, "id"))

	sales, err := h.Store.ListSalesByPatient(r.Context(), patientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sales", err)
		return
	}
	dtos := make([]SaleDTO, 0, len(sales))
	for _, s := range sales {
		dtos = append(dtos, toSaleDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}
