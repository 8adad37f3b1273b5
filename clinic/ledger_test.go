/*
ledger_test.go - Unit tests for the financial ledger

CORE DESIGN:
- Balance is the amount owed; charges grow it without bound, payments and
  redemptions are clamped at zero
- Stored treatment cost is replayed verbatim on undo; points are not
  reversed
- Accrual resolves the first active rule for the event, falling back to the
  0.001 points-per-unit default
*/
package clinic_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-engine/clinic"
	"github.com/brightsmile/clinic-engine/clinic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*clinic.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return clinic.NewLedger(mem), mem
}

func newPatient(t *testing.T, mem *store.Memory, name string) clinic.Patient {
	t.Helper()
	p := clinic.Patient{
		ID:      clinic.PatientID(clinic.NewID()),
		Name:    name,
		Balance: decimal.Zero,
	}
	require.NoError(t, mem.InsertPatient(context.Background(), p))
	return p
}

func addRule(t *testing.T, mem *store.Memory, event clinic.LoyaltyEvent, rate, minAmount string) {
	t.Helper()
	require.NoError(t, mem.InsertRule(context.Background(), clinic.LoyaltyRule{
		ID:            clinic.RuleID(clinic.NewID()),
		Name:          string(event) + " rule",
		EventType:     event,
		PointsPerUnit: decimal.RequireFromString(rate),
		MinAmount:     decimal.RequireFromString(minAmount),
		Active:        true,
	}))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// TREATMENT COST TESTS
// =============================================================================

func TestTreatmentCost_PerTooth(t *testing.T) {
	cost := clinic.TreatmentCost(d("150"), 3, false)
	assert.True(t, cost.Equal(d("450")), "3 teeth at 150 each should cost 450, got %s", cost)
}

func TestTreatmentCost_PerTooth_NoTeethChargesOneUnit(t *testing.T) {
	cost := clinic.TreatmentCost(d("150"), 0, false)
	assert.True(t, cost.Equal(d("150")))
}

func TestTreatmentCost_FlatRate_IgnoresTeethCount(t *testing.T) {
	cost := clinic.TreatmentCost(d("4500"), 4, true)
	assert.True(t, cost.Equal(d("4500")))
}

// =============================================================================
// TREATMENT APPLICATION TESTS
// =============================================================================

func TestApplyTreatment_ChargesBalanceAndEarnsPoints(t *testing.T) {
	// GIVEN: A 0.002 points-per-unit TREATMENT rule with a 100 minimum
	// WHEN: A flat 5000 treatment is applied
	// THEN: Balance is 5000 and 10 points accrue

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	addRule(t, mem, clinic.EventTreatment, "0.002", "100")
	patient := newPatient(t, mem, "An Nguyen")

	result, err := ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
		PatientID:   patient.ID,
		Description: "Full crown",
		UnitCost:    d("5000"),
		FlatRate:    true,
	})
	require.NoError(t, err)

	assert.True(t, result.NewBalance.Equal(d("5000")))
	assert.Equal(t, int64(10), result.PointsEarned)
	assert.Equal(t, int64(10), result.NewPoints)

	// Audit trail has exactly one EARNED entry
	txs, err := mem.ListLoyaltyTransactions(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, clinic.LoyaltyEarned, txs[0].Type)
	assert.Equal(t, int64(10), txs[0].Points)
}

func TestApplyTreatment_BelowMinimum_NoPoints(t *testing.T) {
	// GIVEN: TREATMENT rule with a 100 spend minimum
	// WHEN: A 99.99 treatment is applied
	// THEN: Balance is charged but no points accrue and no audit entry is written

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	addRule(t, mem, clinic.EventTreatment, "0.002", "100")
	patient := newPatient(t, mem, "Maria Santos")

	result, err := ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
		PatientID:   patient.ID,
		Description: "Exam",
		UnitCost:    d("99.99"),
		FlatRate:    true,
	})
	require.NoError(t, err)

	assert.True(t, result.NewBalance.Equal(d("99.99")))
	assert.Equal(t, int64(0), result.PointsEarned)
	assert.Equal(t, int64(0), result.NewPoints)

	txs, err := mem.ListLoyaltyTransactions(ctx, patient.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestApplyTreatment_DefaultRule_WhenNoneConfigured(t *testing.T) {
	// No rules at all: default 0.001 per unit, no minimum
	ledger, mem := newTestLedger(t)
	patient := newPatient(t, mem, "David Chen")

	result, err := ledger.ApplyTreatment(context.Background(), clinic.TreatmentInput{
		PatientID:   patient.ID,
		Description: "Filling",
		UnitCost:    d("3000"),
		FlatRate:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.PointsEarned)
}

func TestApplyTreatment_FractionalPoints_Floored(t *testing.T) {
	ledger, mem := newTestLedger(t)
	addRule(t, mem, clinic.EventTreatment, "0.002", "0")
	patient := newPatient(t, mem, "An Nguyen")

	// 1999 * 0.002 = 3.998 -> 3 points
	result, err := ledger.ApplyTreatment(context.Background(), clinic.TreatmentInput{
		PatientID:   patient.ID,
		Description: "Scaling",
		UnitCost:    d("1999"),
		FlatRate:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.PointsEarned)
}

func TestApplyTreatment_UnknownPatient(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.ApplyTreatment(context.Background(), clinic.TreatmentInput{
		PatientID:   "missing",
		Description: "Exam",
		UnitCost:    d("100"),
		FlatRate:    true,
	})
	assert.ErrorIs(t, err, clinic.ErrPatientNotFound)
}

// =============================================================================
// UNDO TESTS
// =============================================================================

func TestUndoTreatment_RoundTrip_RestoresBalanceKeepsPoints(t *testing.T) {
	// GIVEN: A treatment that charged 450 and earned points
	// WHEN: The treatment is undone
	// THEN: Balance returns to its prior value; points stay

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	addRule(t, mem, clinic.EventTreatment, "0.01", "0")
	patient := newPatient(t, mem, "An Nguyen")

	applied, err := ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
		PatientID:   patient.ID,
		Teeth:       []string{"11", "12", "13"},
		Description: "Fillings",
		UnitCost:    d("150"),
	})
	require.NoError(t, err)
	require.True(t, applied.NewBalance.Equal(d("450")))
	require.Equal(t, int64(4), applied.PointsEarned)

	undone, err := ledger.UndoTreatment(ctx, applied.Record.ID, patient.ID, applied.Record.Cost)
	require.NoError(t, err)
	assert.True(t, undone.NewBalance.Equal(decimal.Zero))

	// Record is gone
	rec, err := mem.GetRecord(ctx, applied.Record.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Points earned by the treatment remain
	reloaded, err := mem.GetPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), reloaded.LoyaltyPoints)
}

func TestUndoTreatment_ClampsAtZero(t *testing.T) {
	// A payment between apply and undo can leave the balance smaller than
	// the stored cost; undo clamps at zero instead of going negative.
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	patient := newPatient(t, mem, "Maria Santos")

	applied, err := ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
		PatientID:   patient.ID,
		Description: "Crown",
		UnitCost:    d("1000"),
		FlatRate:    true,
	})
	require.NoError(t, err)

	_, err = ledger.ProcessPayment(ctx, patient.ID, d("800"))
	require.NoError(t, err)

	undone, err := ledger.UndoTreatment(ctx, applied.Record.ID, patient.ID, applied.Record.Cost)
	require.NoError(t, err)
	assert.True(t, undone.NewBalance.Equal(decimal.Zero))
}

func TestUndoTreatment_UnknownRecord(t *testing.T) {
	ledger, mem := newTestLedger(t)
	patient := newPatient(t, mem, "David Chen")

	_, err := ledger.UndoTreatment(context.Background(), "missing", patient.ID, d("100"))
	assert.ErrorIs(t, err, clinic.ErrRecordNotFound)
}

// =============================================================================
// MEDICINE SALE TESTS
// =============================================================================

func TestSellMedicine_DecrementsStockChargesAndEarns(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	addRule(t, mem, clinic.EventPurchase, "0.01", "0")
	patient := newPatient(t, mem, "An Nguyen")

	med := clinic.Medicine{
		ID:    clinic.MedicineID(clinic.NewID()),
		Name:  "Amoxicillin 500mg",
		Price: d("2.50"),
		Stock: 100,
	}
	require.NoError(t, mem.InsertMedicine(ctx, med))

	result, err := ledger.SellMedicine(ctx, clinic.SaleInput{
		PatientID:  patient.ID,
		MedicineID: med.ID,
		Quantity:   40,
	})
	require.NoError(t, err)

	assert.Equal(t, 60, result.NewStock)
	assert.True(t, result.Sale.Total.Equal(d("100")))
	assert.True(t, result.NewBalance.Equal(d("100")))
	assert.Equal(t, int64(1), result.PointsEarned)
}

func TestSellMedicine_InsufficientStock_LeavesStateUnchanged(t *testing.T) {
	// GIVEN: 5 units in stock
	// WHEN: Selling 6
	// THEN: InsufficientStockError; stock, balance, and points untouched

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	patient := newPatient(t, mem, "Maria Santos")

	med := clinic.Medicine{
		ID:    clinic.MedicineID(clinic.NewID()),
		Name:  "Fluoride gel",
		Price: d("12.00"),
		Stock: 5,
	}
	require.NoError(t, mem.InsertMedicine(ctx, med))

	_, err := ledger.SellMedicine(ctx, clinic.SaleInput{
		PatientID:  patient.ID,
		MedicineID: med.ID,
		Quantity:   6,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, clinic.ErrInsufficientStock)

	var stockErr *clinic.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)

	reloadedMed, err := mem.GetMedicine(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloadedMed.Stock)

	reloaded, err := mem.GetPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(decimal.Zero))
	assert.Equal(t, int64(0), reloaded.LoyaltyPoints)
}

func TestSellMedicine_UnknownMedicine(t *testing.T) {
	ledger, mem := newTestLedger(t)
	patient := newPatient(t, mem, "David Chen")

	_, err := ledger.SellMedicine(context.Background(), clinic.SaleInput{
		PatientID:  patient.ID,
		MedicineID: "missing",
		Quantity:   1,
	})
	assert.ErrorIs(t, err, clinic.ErrMedicineNotFound)
}

// =============================================================================
// PAYMENT TESTS
// =============================================================================

func TestProcessPayment_ReducesBalance(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	patient := newPatient(t, mem, "An Nguyen")

	_, err := ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
		PatientID: patient.ID, Description: "Crown", UnitCost: d("1000"), FlatRate: true,
	})
	require.NoError(t, err)

	result, err := ledger.ProcessPayment(ctx, patient.ID, d("400"))
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(d("600")))
}

func TestProcessPayment_OverpaymentClampsAtZero(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	patient := newPatient(t, mem, "Maria Santos")

	_, err := ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
		PatientID: patient.ID, Description: "Exam", UnitCost: d("100"), FlatRate: true,
	})
	require.NoError(t, err)

	result, err := ledger.ProcessPayment(ctx, patient.ID, d("250"))
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimal.Zero))
}

// =============================================================================
// REDEMPTION TESTS
// =============================================================================

func TestRedeemPoints_DiscountsBalance(t *testing.T) {
	// GIVEN: 1000 balance, 600 points, REDEEM rule rate 1 / minimum 500
	// WHEN: Redeeming 600 points
	// THEN: Balance 400, points 0, audit entry with -600

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	patient := newPatient(t, mem, "An Nguyen")

	_, err := mem.AdjustBalance(ctx, patient.ID, d("1000"), false)
	require.NoError(t, err)
	_, err = mem.AdjustPoints(ctx, patient.ID, 600)
	require.NoError(t, err)

	result, err := ledger.RedeemPoints(ctx, patient.ID, "", 600, d("600"))
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(d("400")))
	assert.Equal(t, int64(0), result.NewPoints)

	txs, err := mem.ListLoyaltyTransactions(ctx, patient.ID)
	require.NoError(t, err)
	require.NotEmpty(t, txs)
	last := txs[len(txs)-1]
	assert.Equal(t, clinic.LoyaltyRedeemed, last.Type)
	assert.Equal(t, int64(-600), last.Points)
}

func TestRedeemPoints_InsufficientPoints(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	patient := newPatient(t, mem, "Maria Santos")
	_, err := mem.AdjustPoints(ctx, patient.ID, 100)
	require.NoError(t, err)

	_, err = ledger.RedeemPoints(ctx, patient.ID, "", 500, d("500"))
	require.Error(t, err)
	assert.ErrorIs(t, err, clinic.ErrInsufficientPoints)

	var ptsErr *clinic.InsufficientPointsError
	require.ErrorAs(t, err, &ptsErr)
	assert.Equal(t, int64(500), ptsErr.Requested)
	assert.Equal(t, int64(100), ptsErr.Available)
}

func TestRedeemPoints_DiscountClampsBalanceAtZero(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	patient := newPatient(t, mem, "David Chen")

	_, err := ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
		PatientID: patient.ID, Description: "Exam", UnitCost: d("100"), FlatRate: true,
	})
	require.NoError(t, err)
	_, err = mem.AdjustPoints(ctx, patient.ID, 500)
	require.NoError(t, err)

	result, err := ledger.RedeemPoints(ctx, patient.ID, "", 500, d("500"))
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimal.Zero))
}

// =============================================================================
// VISIT AND RESET TESTS
// =============================================================================

func TestRecordVisit_AwardsPerVisitPoints(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	addRule(t, mem, clinic.EventVisit, "5", "0")
	patient := newPatient(t, mem, "An Nguyen")

	points, err := ledger.RecordVisit(ctx, patient.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), points)

	reloaded, err := mem.GetPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), reloaded.LoyaltyPoints)
}

func TestRecordVisit_NoActiveRule_NoOp(t *testing.T) {
	// Default rule's per-visit rate floors to zero, so nothing accrues.
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	patient := newPatient(t, mem, "Maria Santos")

	points, err := ledger.RecordVisit(ctx, patient.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), points)

	txs, err := mem.ListLoyaltyTransactions(ctx, patient.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestResetAllPoints_ZeroesEveryoneAndPurgesHistory(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	addRule(t, mem, clinic.EventTreatment, "0.01", "0")
	p1 := newPatient(t, mem, "An Nguyen")
	p2 := newPatient(t, mem, "Maria Santos")

	for _, id := range []clinic.PatientID{p1.ID, p2.ID} {
		_, err := ledger.ApplyTreatment(ctx, clinic.TreatmentInput{
			PatientID: id, Description: "Cleaning", UnitCost: d("500"), FlatRate: true,
		})
		require.NoError(t, err)
	}

	require.NoError(t, ledger.ResetAllPoints(ctx))

	for _, id := range []clinic.PatientID{p1.ID, p2.ID} {
		p, err := mem.GetPatient(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(0), p.LoyaltyPoints)
		// Balances are untouched by the reset
		assert.True(t, p.Balance.Equal(d("500")))

		txs, err := mem.ListLoyaltyTransactions(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, txs)
	}
}
