/*
errors.go - Centralized error types for the clinic engine

PURPOSE:
  All domain error types in one place for consistency and discoverability.
  Callers branch on sentinels with errors.Is and extract detail from the
  structured variants with errors.As.

ERROR CATEGORIES:
  1. Not-found errors - referenced entity missing
  2. Business rule violations - stock, points, schedule shape
  3. Gateway errors - opaque persistence failures, wrapped

USAGE:
    if errors.Is(err, clinic.ErrInsufficientStock) {
        var stockErr *clinic.InsufficientStockError
        errors.As(err, &stockErr)
        // stockErr.Available, stockErr.Requested
    }

SEE ALSO:
  - ledger.go: produces most of these
  - gateway.go: implementations wrap ErrGatewayFailure
*/
package clinic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPatientNotFound is returned when a referenced patient doesn't exist.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrMedicineNotFound is returned when a referenced medicine doesn't exist.
	ErrMedicineNotFound = errors.New("medicine not found")

	// ErrDoctorNotFound is returned when a referenced doctor doesn't exist.
	ErrDoctorNotFound = errors.New("doctor not found")

	// ErrRecordNotFound is returned when a clinical record doesn't exist.
	ErrRecordNotFound = errors.New("clinical record not found")

	// ErrAppointmentNotFound is returned when an appointment doesn't exist.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrUserNotFound is returned when a login user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrRuleNotFound is returned when a loyalty rule doesn't exist.
	ErrRuleNotFound = errors.New("loyalty rule not found")

	// ErrInsufficientStock is returned when a sale requests more units than
	// are in stock. Stock never goes negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientPoints is returned when a redemption requests more
	// points than a patient holds.
	ErrInsufficientPoints = errors.New("insufficient loyalty points")

	// ErrInvalidSchedule is returned when a schedule window is malformed
	// (end not after start) or a weekday appears twice.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDuplicateActiveRule is returned when creating a second active
	// loyalty rule for the same event type and location. The resolver is
	// first-match, so a second active rule would be a silent misconfiguration.
	ErrDuplicateActiveRule = errors.New("active rule already exists for event type")

	// ErrGatewayFailure wraps opaque persistence-layer failures.
	ErrGatewayFailure = errors.New("persistence gateway failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports a sale rejected by the stock guard.
type InsufficientStockError struct {
	MedicineID MedicineID
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.MedicineID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientPointsError reports a redemption rejected by the points guard.
type InsufficientPointsError struct {
	PatientID PatientID
	Requested int64
	Available int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for patient %s: requested %d, available %d",
		e.PatientID, e.Requested, e.Available)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// InvalidScheduleError reports which weekday of a schedule edit failed
// validation and why.
type InvalidScheduleError struct {
	DayOfWeek time.Weekday
	Reason    string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule for %s: %s", e.DayOfWeek, e.Reason)
}

func (e *InvalidScheduleError) Unwrap() error { return ErrInvalidSchedule }

// GatewayError wraps a persistence failure with the operation that failed.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return ErrGatewayFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrMedicineNotFound) ||
		errors.Is(err, ErrDoctorNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRuleNotFound)
}

// IsClientError returns true if the error is due to invalid client input or
// a violated business rule, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrDuplicateActiveRule)
}
