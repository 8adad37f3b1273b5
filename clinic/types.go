/*
Package clinic provides the core domain engine for a dental practice:
patient billing balances, the loyalty points program, medicine inventory,
and doctor availability.

PURPOSE:
  This package contains the business rules that everything else orbits:
  - Ledger: applies financial events (treatments, sales, payments,
    redemptions) to a patient's balance and loyalty points
  - LoyaltyRule resolution: which rule governs an event, and how many
    points it earns or redeems
  - Availability: open appointment slots from a doctor's weekly schedule

KEY CONCEPTS IN THIS FILE (types.go):
  - Patient: balance (amount owed) and loyalty points counter
  - ClinicalRecord: an applied treatment (cost, teeth, date)
  - MedicineSale / Medicine: inventory and point-earning purchases
  - LoyaltyRule / LoyaltyTransaction: accrual configuration and audit trail
  - Doctor / DoctorSchedule / Appointment: scheduling entities

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all monetary values, never float64
  2. Type safety: distinct ID types so a MedicineID can't be passed
     where a PatientID is expected
  3. Append-only loyalty history: transactions are recorded, never edited
  4. Storage is currency-agnostic; display currency is a config concern

SEE ALSO:
  - ledger.go: financial event application
  - loyalty.go: rule resolution and point math
  - availability.go: slot generation
  - gateway.go: persistence interfaces
*/
package clinic

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	PatientID     string
	RecordID      string
	MedicineID    string
	SaleID        string
	RuleID        string
	TransactionID string
	DoctorID      string
	AppointmentID string
	LocationID    string
)

// NewID returns a fresh unique identifier.
func NewID() string { return uuid.NewString() }

// =============================================================================
// PATIENT - balance and loyalty points holder
// =============================================================================

// Patient carries the running balance (amount owed to the clinic) and the
// loyalty point counter. Balance grows with charges without bound; payments
// and redemptions are clamped so it never goes below zero. Points never go
// negative. Patients are never hard-deleted.
type Patient struct {
	ID            PatientID
	Name          string
	Phone         string
	Email         string
	Address       string
	Balance       decimal.Decimal
	LoyaltyPoints int64
	CreatedAt     time.Time
}

// PatientUpdate is an explicit partial update for contact fields.
// Nil means "leave unchanged"; balance and points are never updated
// through this path.
type PatientUpdate struct {
	Name    *string
	Phone   *string
	Email   *string
	Address *string
}

// =============================================================================
// TREATMENTS
// =============================================================================

// ClinicalRecord is a treatment event. Teeth may be empty for a general
// (non tooth-specific) treatment. Cost is stored verbatim at apply time and
// replayed verbatim on undo, never recomputed.
type ClinicalRecord struct {
	ID          RecordID
	PatientID   PatientID
	Teeth       []string
	Description string
	Cost        decimal.Decimal
	Date        time.Time
}

// =============================================================================
// MEDICINE INVENTORY
// =============================================================================

// Medicine is a stocked inventory item. Stock must never go negative;
// MinStock is an advisory low-stock threshold only.
type Medicine struct {
	ID       MedicineID
	Name     string
	Unit     string
	Price    decimal.Decimal
	Stock    int
	MinStock int
}

// LowStock reports whether the item is at or below its reorder threshold.
func (m Medicine) LowStock() bool { return m.Stock <= m.MinStock }

// MedicineSale records a sale to a patient. Total = Quantity * UnitPrice,
// computed at sale time.
type MedicineSale struct {
	ID         SaleID
	PatientID  PatientID
	MedicineID MedicineID
	Quantity   int
	UnitPrice  decimal.Decimal
	Total      decimal.Decimal
	Date       time.Time
}

// =============================================================================
// LOYALTY PROGRAM
// =============================================================================

// LoyaltyEvent classifies the source of a loyalty rule application.
type LoyaltyEvent string

const (
	EventTreatment LoyaltyEvent = "TREATMENT"
	EventPurchase  LoyaltyEvent = "PURCHASE"
	EventVisit     LoyaltyEvent = "VISIT"
	EventRedeem    LoyaltyEvent = "REDEEM"
)

// LoyaltyRule configures accrual or redemption for one event type at one
// location.
//
// RATE DUALITY: for earning events (TREATMENT, PURCHASE, VISIT)
// PointsPerUnit is points-per-currency-unit and MinAmount is the spend
// threshold below which nothing accrues. For REDEEM the same fields invert:
// PointsPerUnit is discount-currency-per-point and MinAmount is the minimum
// number of points a redemption must spend.
type LoyaltyRule struct {
	ID            RuleID
	LocationID    LocationID
	Name          string
	EventType     LoyaltyEvent
	PointsPerUnit decimal.Decimal
	MinAmount     decimal.Decimal
	Active        bool
}

type LoyaltyTransactionType string

const (
	LoyaltyEarned   LoyaltyTransactionType = "EARNED"
	LoyaltyRedeemed LoyaltyTransactionType = "REDEEMED"
)

// LoyaltyTransaction is an append-only audit entry. Points are signed:
// positive for EARNED, negative for REDEEMED. Never mutated.
type LoyaltyTransaction struct {
	ID          TransactionID
	PatientID   PatientID
	LocationID  LocationID
	Points      int64
	Type        LoyaltyTransactionType
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// SCHEDULING
// =============================================================================

// DoctorSchedule is one working window on one weekday. EndTime must be
// later than StartTime on the same day; windows spanning midnight are not
// supported. Times are "HH:MM" 24-hour strings.
type DoctorSchedule struct {
	DayOfWeek time.Weekday
	StartTime string
	EndTime   string
}

type Doctor struct {
	ID             DoctorID
	Name           string
	Phone          string
	Specialization string
	Schedules      []DoctorSchedule
}

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "Scheduled"
	AppointmentCompleted AppointmentStatus = "Completed"
	AppointmentCancelled AppointmentStatus = "Cancelled"
)

// Appointment references a patient and doctor at a date ("2006-01-02") and
// time ("HH:MM"). Only Scheduled appointments block availability slots.
type Appointment struct {
	ID        AppointmentID
	PatientID PatientID
	DoctorID  DoctorID
	Date      string
	Time      string
	Type      string
	Status    AppointmentStatus
	Notes     string
	CreatedAt time.Time
}

// =============================================================================
// USERS
// =============================================================================

// User is a staff login. PasswordHash is a bcrypt hash; plain passwords are
// never stored or compared.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	LocationID   LocationID
	CreatedAt    time.Time
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
