/*
ledger.go - Financial event application

PURPOSE:
  The Ledger applies financial events to a patient's balance and loyalty
  points and produces or reverses the associated history records. It is the
  only code path that changes a balance.

OPERATIONS:
  ApplyTreatment   charge + TREATMENT accrual, creates ClinicalRecord
  UndoTreatment    deletes record, reverses charge (clamped at zero)
  SellMedicine     stock guard + charge + PURCHASE accrual
  ProcessPayment   balance decrease, clamped at zero
  RedeemPoints     point spend + balance discount + REDEEMED audit entry
  RecordVisit      VISIT accrual on appointment completion
  ResetAllPoints   administrative bulk zero + history purge

INVARIANTS:
  - Charges move balance up without bound; payments and redemptions clamp
    at zero
  - Stock and points never go negative; violating requests fail and leave
    state unchanged
  - Treatment cost is stored verbatim and replayed verbatim on undo
  - Undo does NOT reverse previously earned loyalty points; only the
    balance charge is compensated. See DESIGN.md for the rationale.

SIDE EFFECTS:
  Every operation writes through the Gateway. Balance and point mutations
  are atomic deltas at the store (see gateway.go), so concurrent staff
  actions on the same patient cannot lose updates. No state is cached
  between calls.

SEE ALSO:
  - loyalty.go: rule resolution used by the accrual paths
  - gateway.go: the persistence contract
*/
package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger applies financial events through a persistence gateway. Stateless;
// safe for concurrent use.
type Ledger struct {
	gw Gateway
}

func NewLedger(gw Gateway) *Ledger {
	return &Ledger{gw: gw}
}

// =============================================================================
// INPUTS AND RESULTS
// =============================================================================

// TreatmentInput describes a treatment to apply. UnitCost is either the flat
// total (FlatRate) or the per-tooth price; with no teeth selected a per-tooth
// treatment still charges one unit.
type TreatmentInput struct {
	PatientID   PatientID
	Teeth       []string
	Description string
	UnitCost    decimal.Decimal
	FlatRate    bool
	LocationID  LocationID
	Date        time.Time
}

// TreatmentResult returns enough state for the caller to update its view
// without a re-fetch.
type TreatmentResult struct {
	Record        ClinicalRecord
	NewBalance    decimal.Decimal
	PointsEarned  int64
	NewPoints     int64
}

type SaleInput struct {
	PatientID  PatientID
	MedicineID MedicineID
	Quantity   int
	LocationID LocationID
	Date       time.Time
}

type SaleResult struct {
	Sale         MedicineSale
	NewStock     int
	NewBalance   decimal.Decimal
	PointsEarned int64
	NewPoints    int64
}

type PaymentResult struct {
	NewBalance decimal.Decimal
}

type RedeemResult struct {
	NewBalance decimal.Decimal
	NewPoints  int64
}

// =============================================================================
// TREATMENTS
// =============================================================================

// TreatmentCost computes the charge: the flat cost once, or the unit cost
// multiplied by the tooth count with a minimum of one.
func TreatmentCost(unitCost decimal.Decimal, teethCount int, flatRate bool) decimal.Decimal {
	if flatRate {
		return unitCost
	}
	if teethCount < 1 {
		teethCount = 1
	}
	return unitCost.Mul(decimal.NewFromInt(int64(teethCount)))
}

// ApplyTreatment creates a ClinicalRecord, charges the patient, and awards
// TREATMENT points per the active rule. Fails with ErrPatientNotFound if the
// patient does not exist.
func (l *Ledger) ApplyTreatment(ctx context.Context, in TreatmentInput) (*TreatmentResult, error) {
	patient, err := l.gw.GetPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}

	cost := TreatmentCost(in.UnitCost, len(in.Teeth), in.FlatRate)
	date := in.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	rec := ClinicalRecord{
		ID:          RecordID(NewID()),
		PatientID:   in.PatientID,
		Teeth:       in.Teeth,
		Description: in.Description,
		Cost:        cost,
		Date:        date,
	}
	if err := l.gw.InsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	newBalance, err := l.gw.AdjustBalance(ctx, in.PatientID, cost, false)
	if err != nil {
		return nil, err
	}

	earned, newPoints, err := l.accrue(ctx, in.PatientID, in.LocationID, EventTreatment, cost,
		fmt.Sprintf("Treatment: %s", in.Description))
	if err != nil {
		return nil, err
	}
	if earned == 0 {
		newPoints = patient.LoyaltyPoints
	}

	return &TreatmentResult{
		Record:       rec,
		NewBalance:   newBalance,
		PointsEarned: earned,
		NewPoints:    newPoints,
	}, nil
}

// UndoTreatment deletes the clinical record and reverses the charge,
// clamping the balance at zero. The cost is the stored record cost, passed
// back verbatim by the caller; it is never recomputed. Loyalty points
// earned by the treatment are NOT reversed.
func (l *Ledger) UndoTreatment(ctx context.Context, recordID RecordID, patientID PatientID, cost decimal.Decimal) (*PaymentResult, error) {
	rec, err := l.gw.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	if err := l.gw.DeleteRecord(ctx, recordID); err != nil {
		return nil, err
	}

	newBalance, err := l.gw.AdjustBalance(ctx, patientID, cost.Neg(), true)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{NewBalance: newBalance}, nil
}

// =============================================================================
// MEDICINE SALES
// =============================================================================

// SellMedicine decrements stock, charges the patient, and awards PURCHASE
// points. Fails with InsufficientStockError when quantity exceeds stock,
// leaving stock and balance unchanged.
func (l *Ledger) SellMedicine(ctx context.Context, in SaleInput) (*SaleResult, error) {
	patient, err := l.gw.GetPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}

	med, err := l.gw.GetMedicine(ctx, in.MedicineID)
	if err != nil {
		return nil, err
	}
	if med == nil {
		return nil, ErrMedicineNotFound
	}
	if in.Quantity > med.Stock {
		return nil, &InsufficientStockError{
			MedicineID: in.MedicineID,
			Requested:  in.Quantity,
			Available:  med.Stock,
		}
	}

	// The store re-checks the guard in the same statement, so a concurrent
	// sale cannot drive stock negative.
	if err := l.gw.DecrementStock(ctx, in.MedicineID, in.Quantity); err != nil {
		return nil, err
	}

	total := med.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
	date := in.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	sale := MedicineSale{
		ID:         SaleID(NewID()),
		PatientID:  in.PatientID,
		MedicineID: in.MedicineID,
		Quantity:   in.Quantity,
		UnitPrice:  med.Price,
		Total:      total,
		Date:       date,
	}
	if err := l.gw.InsertSale(ctx, sale); err != nil {
		return nil, err
	}

	newBalance, err := l.gw.AdjustBalance(ctx, in.PatientID, total, false)
	if err != nil {
		return nil, err
	}

	earned, newPoints, err := l.accrue(ctx, in.PatientID, in.LocationID, EventPurchase, total,
		fmt.Sprintf("Purchase: %s x%d", med.Name, in.Quantity))
	if err != nil {
		return nil, err
	}
	if earned == 0 {
		newPoints = patient.LoyaltyPoints
	}

	return &SaleResult{
		Sale:         sale,
		NewStock:     med.Stock - in.Quantity,
		NewBalance:   newBalance,
		PointsEarned: earned,
		NewPoints:    newPoints,
	}, nil
}

// =============================================================================
// PAYMENTS AND REDEMPTION
// =============================================================================

// ProcessPayment decreases the balance by amount, clamped at zero. The
// caller is expected to cap amount at the current balance; the clamp holds
// regardless.
func (l *Ledger) ProcessPayment(ctx context.Context, patientID PatientID, amount decimal.Decimal) (*PaymentResult, error) {
	patient, err := l.gw.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}

	newBalance, err := l.gw.AdjustBalance(ctx, patientID, amount.Neg(), true)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{NewBalance: newBalance}, nil
}

// RedeemPoints spends points for a balance discount. Fails with
// InsufficientPointsError when points exceed the patient's holding, leaving
// points and balance unchanged. Records a REDEEMED transaction with the
// point count negated.
func (l *Ledger) RedeemPoints(ctx context.Context, patientID PatientID, locationID LocationID, points int64, amount decimal.Decimal) (*RedeemResult, error) {
	patient, err := l.gw.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}
	if points > patient.LoyaltyPoints {
		return nil, &InsufficientPointsError{
			PatientID: patientID,
			Requested: points,
			Available: patient.LoyaltyPoints,
		}
	}

	newPoints, err := l.gw.AdjustPoints(ctx, patientID, -points)
	if err != nil {
		return nil, err
	}
	newBalance, err := l.gw.AdjustBalance(ctx, patientID, amount.Neg(), true)
	if err != nil {
		return nil, err
	}

	tx := LoyaltyTransaction{
		ID:          TransactionID(NewID()),
		PatientID:   patientID,
		LocationID:  locationID,
		Points:      -points,
		Type:        LoyaltyRedeemed,
		Description: fmt.Sprintf("Redeemed %d points for %s discount", points, amount.String()),
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.gw.AppendLoyaltyTransaction(ctx, tx); err != nil {
		return nil, err
	}

	return &RedeemResult{NewBalance: newBalance, NewPoints: newPoints}, nil
}

// =============================================================================
// VISITS
// =============================================================================

// RecordVisit awards VISIT points for a completed appointment. The VISIT
// rate is points-per-visit; with no active VISIT rule nothing accrues.
func (l *Ledger) RecordVisit(ctx context.Context, patientID PatientID, locationID LocationID) (int64, error) {
	patient, err := l.gw.GetPatient(ctx, patientID)
	if err != nil {
		return 0, err
	}
	if patient == nil {
		return 0, ErrPatientNotFound
	}

	rules, err := l.gw.ListRules(ctx, locationID)
	if err != nil {
		return 0, err
	}
	rule := ResolveRule(rules, EventVisit)
	points := rule.VisitPoints()
	if points <= 0 {
		return 0, nil
	}

	if _, err := l.gw.AdjustPoints(ctx, patientID, points); err != nil {
		return 0, err
	}
	tx := LoyaltyTransaction{
		ID:          TransactionID(NewID()),
		PatientID:   patientID,
		LocationID:  locationID,
		Points:      points,
		Type:        LoyaltyEarned,
		Description: "Visit",
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.gw.AppendLoyaltyTransaction(ctx, tx); err != nil {
		return 0, err
	}
	return points, nil
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

// ResetAllPoints zeroes every patient's loyalty points and purges all
// loyalty transaction history. Irreversible; callers must require explicit
// confirmation before invoking.
func (l *Ledger) ResetAllPoints(ctx context.Context) error {
	return l.gw.ResetLoyalty(ctx)
}

// =============================================================================
// INTERNAL
// =============================================================================

// accrue applies the active earning rule for the event. Returns the points
// earned and the patient's new count; zero earned writes nothing.
func (l *Ledger) accrue(ctx context.Context, patientID PatientID, locationID LocationID, event LoyaltyEvent, amount decimal.Decimal, description string) (earned, newPoints int64, err error) {
	rules, err := l.gw.ListRules(ctx, locationID)
	if err != nil {
		return 0, 0, err
	}
	rule := ResolveRule(rules, event)
	earned = rule.EarnedPoints(amount)
	if earned <= 0 {
		return 0, 0, nil
	}

	newPoints, err = l.gw.AdjustPoints(ctx, patientID, earned)
	if err != nil {
		return 0, 0, err
	}
	tx := LoyaltyTransaction{
		ID:          TransactionID(NewID()),
		PatientID:   patientID,
		LocationID:  locationID,
		Points:      earned,
		Type:        LoyaltyEarned,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.gw.AppendLoyaltyTransaction(ctx, tx); err != nil {
		return 0, 0, err
	}
	return earned, newPoints, nil
}
