/*
gateway.go - Persistence interfaces for the clinic engine

PURPOSE:
  Defines the boundary between domain logic and the database as a set of
  narrow, typed Go interfaces, so the engine can run against SQLite in
  production and an in-memory store in tests.

ATOMIC DELTA CONTRACT:
  Balance and point mutations are expressed as single conditional updates
  (AdjustBalance / AdjustPoints), not read-then-write pairs. The store
  applies the delta and the zero clamp in one statement, which removes the
  lost-update race two concurrent staff actions would otherwise hit. The
  observable arithmetic is unchanged.

APPEND-ONLY:
  Loyalty transactions have no update or delete. The only way history leaves
  the store is the administrative ResetLoyalty purge, which also zeroes every
  patient's point counter in the same transaction.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - clinic/store: in-memory store for tests and dev

SEE ALSO:
  - ledger.go: the engine driving these interfaces
*/
package clinic

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PATIENTS
// =============================================================================

// PatientStore persists patients. Get returns (nil, nil) when the patient
// does not exist; the engine maps that to ErrPatientNotFound.
type PatientStore interface {
	GetPatient(ctx context.Context, id PatientID) (*Patient, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	InsertPatient(ctx context.Context, p Patient) error
	UpdatePatient(ctx context.Context, id PatientID, upd PatientUpdate) error

	// AdjustBalance applies delta to the patient's balance as one atomic
	// update and returns the new balance. With clampZero the result is
	// floored at zero (payment and redemption paths).
	AdjustBalance(ctx context.Context, id PatientID, delta decimal.Decimal, clampZero bool) (decimal.Decimal, error)

	// AdjustPoints applies delta to the patient's loyalty points as one
	// atomic update, floored at zero, and returns the new count.
	AdjustPoints(ctx context.Context, id PatientID, delta int64) (int64, error)
}

// =============================================================================
// TREATMENTS
// =============================================================================

type TreatmentStore interface {
	InsertRecord(ctx context.Context, rec ClinicalRecord) error
	GetRecord(ctx context.Context, id RecordID) (*ClinicalRecord, error)
	ListRecordsByPatient(ctx context.Context, patientID PatientID) ([]ClinicalRecord, error)
	ListRecordsInRange(ctx context.Context, from, to time.Time) ([]ClinicalRecord, error)

	// DeleteRecord removes a clinical record. This is the one hard delete in
	// the system: undoing a treatment removes its record and compensates the
	// balance.
	DeleteRecord(ctx context.Context, id RecordID) error
}

// =============================================================================
// INVENTORY
// =============================================================================

type InventoryStore interface {
	GetMedicine(ctx context.Context, id MedicineID) (*Medicine, error)
	ListMedicines(ctx context.Context) ([]Medicine, error)
	InsertMedicine(ctx context.Context, m Medicine) error
	UpdateMedicine(ctx context.Context, m Medicine) error

	// DecrementStock subtracts quantity from stock as one conditional
	// update. Returns ErrInsufficientStock when stock is too low, leaving
	// it unchanged.
	DecrementStock(ctx context.Context, id MedicineID, quantity int) error

	InsertSale(ctx context.Context, sale MedicineSale) error
	ListSalesByPatient(ctx context.Context, patientID PatientID) ([]MedicineSale, error)
	ListSalesInRange(ctx context.Context, from, to time.Time) ([]MedicineSale, error)
}

// =============================================================================
// LOYALTY
// =============================================================================

type LoyaltyStore interface {
	// ListRules returns the rules for a location in stable insertion order.
	// The resolver takes the first active match, so order matters.
	ListRules(ctx context.Context, locationID LocationID) ([]LoyaltyRule, error)
	InsertRule(ctx context.Context, rule LoyaltyRule) error
	UpdateRule(ctx context.Context, rule LoyaltyRule) error
	DeleteRule(ctx context.Context, id RuleID) error

	// AppendLoyaltyTransaction records one audit entry. Append-only.
	AppendLoyaltyTransaction(ctx context.Context, tx LoyaltyTransaction) error
	ListLoyaltyTransactions(ctx context.Context, patientID PatientID) ([]LoyaltyTransaction, error)
	ListLoyaltyTransactionsInRange(ctx context.Context, from, to time.Time) ([]LoyaltyTransaction, error)

	// ResetLoyalty zeroes every patient's points and purges all loyalty
	// transactions, atomically. Irreversible.
	ResetLoyalty(ctx context.Context) error
}

// =============================================================================
// SCHEDULING
// =============================================================================

type SchedulingStore interface {
	GetDoctor(ctx context.Context, id DoctorID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	InsertDoctor(ctx context.Context, d Doctor) error
	UpdateDoctor(ctx context.Context, d Doctor) error

	GetAppointment(ctx context.Context, id AppointmentID) (*Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error)
	InsertAppointment(ctx context.Context, a Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id AppointmentID, status AppointmentStatus, notes string) error

	// BookedTimes returns the "HH:MM" times of Scheduled appointments for a
	// doctor on a date. Completed and Cancelled do not block slots.
	BookedTimes(ctx context.Context, doctorID DoctorID, date string) ([]string, error)
}

// AppointmentFilter narrows appointment listings. Zero values mean "any".
type AppointmentFilter struct {
	PatientID PatientID
	DoctorID  DoctorID
	Date      string
	Status    AppointmentStatus
}

// =============================================================================
// USERS
// =============================================================================

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	InsertUser(ctx context.Context, u User) error
	CountUsers(ctx context.Context) (int, error)
}

// =============================================================================
// GATEWAY COMPOSITES
// =============================================================================

// Gateway is everything the ledger engine needs.
type Gateway interface {
	PatientStore
	TreatmentStore
	InventoryStore
	LoyaltyStore
}

// Store is the full persistence surface the API layer depends on.
type Store interface {
	Gateway
	SchedulingStore
	UserStore
}
