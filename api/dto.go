/*
dto.go - Request/response data structures

PURPOSE:
  JSON shapes exchanged with the dashboard frontend. Monetary values cross
  the wire as strings to keep decimal precision; the frontend formats them
  in the configured display currency.
*/
package api

import (
	"time"

	"github.com/brightsmile/clinic-engine/clinic"
)

// =============================================================================
// PATIENTS
// =============================================================================

type PatientDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
	Balance       string `json:"balance"`
	LoyaltyPoints int64  `json:"loyalty_points"`
	CreatedAt     string `json:"created_at"`
}

func toPatientDTO(p clinic.Patient) PatientDTO {
	return PatientDTO{
		ID:            string(p.ID),
		Name:          p.Name,
		Phone:         p.Phone,
		Email:         p.Email,
		Address:       p.Address,
		Balance:       p.Balance.String(),
		LoyaltyPoints: p.LoyaltyPoints,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

type CreatePatientRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type UpdatePatientRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
}

type PatientPageDTO struct {
	Patients []PatientDTO `json:"patients"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Total    int          `json:"total"`
}

// =============================================================================
// TREATMENTS
// =============================================================================

type TreatmentRequest struct {
	Teeth       []string `json:"teeth"`
	Description string   `json:"description"`
	UnitCost    string   `json:"unit_cost"`
	FlatRate    bool     `json:"flat_rate"`
	Date        string   `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
}

type RecordDTO struct {
	ID          string   `json:"id"`
	PatientID   string   `json:"patient_id"`
	Teeth       []string `json:"teeth"`
	Description string   `json:"description"`
	Cost        string   `json:"cost"`
	Date        string   `json:"date"`
}

func toRecordDTO(rec clinic.ClinicalRecord) RecordDTO {
	teeth := rec.Teeth
	if teeth == nil {
		teeth = []string{}
	}
	return RecordDTO{
		ID:          string(rec.ID),
		PatientID:   string(rec.PatientID),
		Teeth:       teeth,
		Description: rec.Description,
		Cost:        rec.Cost.String(),
		Date:        rec.Date.Format("2006-01-02"),
	}
}

type TreatmentResponse struct {
	Record       RecordDTO `json:"record"`
	NewBalance   string    `json:"new_balance"`
	PointsEarned int64     `json:"points_earned"`
	NewPoints    int64     `json:"new_points"`
}

// =============================================================================
// PAYMENTS AND LOYALTY
// =============================================================================

type PaymentRequest struct {
	Amount string `json:"amount"`
}

type BalanceResponse struct {
	NewBalance string `json:"new_balance"`
}

type RedeemRequest struct {
	Points int64 `json:"points"`
}

type RedeemResponse struct {
	NewBalance string `json:"new_balance"`
	NewPoints  int64  `json:"new_points"`
	Discount   string `json:"discount"`
}

type LoyaltyTransactionDTO struct {
	ID          string `json:"id"`
	PatientID   string `json:"patient_id"`
	Points      int64  `json:"points"`
	Type        string `json:"type"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

func toLoyaltyTxDTO(tx clinic.LoyaltyTransaction) LoyaltyTransactionDTO {
	return LoyaltyTransactionDTO{
		ID:          string(tx.ID),
		PatientID:   string(tx.PatientID),
		Points:      tx.Points,
		Type:        string(tx.Type),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
}

type RuleDTO struct {
	ID            string `json:"id"`
	LocationID    string `json:"location_id"`
	Name          string `json:"name"`
	EventType     string `json:"event_type"`
	PointsPerUnit string `json:"points_per_unit"`
	MinAmount     string `json:"min_amount"`
	Active        bool   `json:"active"`
}

func toRuleDTO(r clinic.LoyaltyRule) RuleDTO {
	return RuleDTO{
		ID:            string(r.ID),
		LocationID:    string(r.LocationID),
		Name:          r.Name,
		EventType:     string(r.EventType),
		PointsPerUnit: r.PointsPerUnit.String(),
		MinAmount:     r.MinAmount.String(),
		Active:        r.Active,
	}
}

type SaveRuleRequest struct {
	Name          string `json:"name"`
	EventType     string `json:"event_type"`
	PointsPerUnit string `json:"points_per_unit"`
	MinAmount     string `json:"min_amount"`
	Active        bool   `json:"active"`
}

// =============================================================================
// INVENTORY
// =============================================================================

type MedicineDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"min_stock"`
	LowStock bool   `json:"low_stock"`
}

func toMedicineDTO(m clinic.Medicine) MedicineDTO {
	return MedicineDTO{
		ID:       string(m.ID),
		Name:     m.Name,
		Unit:     m.Unit,
		Price:    m.Price.String(),
		Stock:    m.Stock,
		MinStock: m.MinStock,
		LowStock: m.LowStock(),
	}
}

type SaveMedicineRequest struct {
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"min_stock"`
}

type SaleRequest struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
}

type SaleDTO struct {
	ID         string `json:"id"`
	PatientID  string `json:"patient_id"`
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	Total      string `json:"total"`
	Date       string `json:"date"`
}

func toSaleDTO(s clinic.MedicineSale) SaleDTO {
	return SaleDTO{
		ID:         string(s.ID),
		PatientID:  string(s.PatientID),
		MedicineID: string(s.MedicineID),
		Quantity:   s.Quantity,
		UnitPrice:  s.UnitPrice.String(),
		Total:      s.Total.String(),
		Date:       s.Date.Format("2006-01-02"),
	}
}

type SaleResponse struct {
	Sale         SaleDTO `json:"sale"`
	NewStock     int     `json:"new_stock"`
	NewBalance   string  `json:"new_balance"`
	PointsEarned int64   `json:"points_earned"`
	NewPoints    int64   `json:"new_points"`
}

// =============================================================================
// SCHEDULING
// =============================================================================

type ScheduleDTO struct {
	DayOfWeek int    `json:"day_of_week"` // 0=Sunday..6=Saturday
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type DoctorDTO struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Phone          string        `json:"phone,omitempty"`
	Specialization string        `json:"specialization,omitempty"`
	Schedules      []ScheduleDTO `json:"schedules"`
}

func toDoctorDTO(d clinic.Doctor) DoctorDTO {
	schedules := make([]ScheduleDTO, 0, len(d.Schedules))
	for _, s := range d.Schedules {
		schedules = append(schedules, ScheduleDTO{
			DayOfWeek: int(s.DayOfWeek),
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}
	return DoctorDTO{
		ID:             string(d.ID),
		Name:           d.Name,
		Phone:          d.Phone,
		Specialization: d.Specialization,
		Schedules:      schedules,
	}
}

type SaveDoctorRequest struct {
	Name           string        `json:"name"`
	Phone          string        `json:"phone"`
	Specialization string        `json:"specialization"`
	Schedules      []ScheduleDTO `json:"schedules"`
}

type AvailabilityResponse struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
}

type AppointmentDTO struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Type      string `json:"type,omitempty"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

func toAppointmentDTO(a clinic.Appointment) AppointmentDTO {
	return AppointmentDTO{
		ID:        string(a.ID),
		PatientID: string(a.PatientID),
		DoctorID:  string(a.DoctorID),
		Date:      a.Date,
		Time:      a.Time,
		Type:      a.Type,
		Status:    string(a.Status),
		Notes:     a.Notes,
	}
}

type CreateAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Type      string `json:"type"`
	Notes     string `json:"notes"`
}

type UpdateAppointmentStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token      string `json:"token"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	LocationID string `json:"location_id"`
}

type CreateUserRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	LocationID string `json:"location_id"`
}

// =============================================================================
// REPORTS
// =============================================================================

type RevenueSummaryDTO struct {
	From             string `json:"from"`
	To               string `json:"to"`
	Currency         string `json:"currency"`
	TreatmentCount   int    `json:"treatment_count"`
	TreatmentRevenue string `json:"treatment_revenue"`
	SaleCount        int    `json:"sale_count"`
	SaleRevenue      string `json:"sale_revenue"`
	TotalRevenue     string `json:"total_revenue"`
	PointsEarned     int64  `json:"points_earned"`
	PointsRedeemed   int64  `json:"points_redeemed"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
