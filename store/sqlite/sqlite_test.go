/*
sqlite_test.go - Integration tests for the SQLite store

Runs against an in-memory database. Focuses on the store-specific
behaviors the memory store cannot stand in for: the atomic delta updates,
the partial unique index on active rules, and round-tripping of decimal
strings and schedules.
*/
package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-engine/clinic"
	"github.com/brightsmile/clinic-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertPatient(t *testing.T, store *sqlite.Store, name string) clinic.Patient {
	t.Helper()
	p := clinic.Patient{
		ID:        clinic.PatientID(clinic.NewID()),
		Name:      name,
		Balance:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertPatient(context.Background(), p))
	return p
}

// =============================================================================
// PATIENT AND BALANCE TESTS
// =============================================================================

func TestSQLite_PatientRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := insertPatient(t, store, "An Nguyen")

	got, err := store.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.Name, got.Name)
	assert.True(t, got.Balance.IsZero())
	assert.Equal(t, int64(0), got.LoyaltyPoints)
}

func TestSQLite_GetPatient_Missing_ReturnsNilNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetPatient(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_AdjustBalance_PreservesDecimalPrecision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := insertPatient(t, store, "Maria Santos")

	got, err := store.AdjustBalance(ctx, p.ID, decimal.RequireFromString("0.1"), false)
	require.NoError(t, err)
	got, err = store.AdjustBalance(ctx, p.ID, decimal.RequireFromString("0.2"), false)
	require.NoError(t, err)

	// 0.1 + 0.2 is exactly 0.3, not 0.30000000000000004
	assert.True(t, got.Equal(decimal.RequireFromString("0.3")), "got %s", got)
}

func TestSQLite_AdjustBalance_ClampZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := insertPatient(t, store, "David Chen")

	_, err := store.AdjustBalance(ctx, p.ID, decimal.RequireFromString("100"), false)
	require.NoError(t, err)

	got, err := store.AdjustBalance(ctx, p.ID, decimal.RequireFromString("-250"), true)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestSQLite_AdjustBalance_UnknownPatient(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AdjustBalance(context.Background(), "missing", decimal.NewFromInt(10), false)
	assert.ErrorIs(t, err, clinic.ErrPatientNotFound)
}

func TestSQLite_AdjustPoints_FlooredAtZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := insertPatient(t, store, "An Nguyen")

	got, err := store.AdjustPoints(ctx, p.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	got, err = store.AdjustPoints(ctx, p.ID, -500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestSQLite_UpdatePatient_PartialFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := insertPatient(t, store, "Maria Santos")

	phone := "555-0199"
	require.NoError(t, store.UpdatePatient(ctx, p.ID, clinic.PatientUpdate{Phone: &phone}))

	got, err := store.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Santos", got.Name, "unset fields stay")
	assert.Equal(t, "555-0199", got.Phone)
}

// =============================================================================
// INVENTORY TESTS
// =============================================================================

func TestSQLite_DecrementStock_ConditionalUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	med := clinic.Medicine{
		ID:    clinic.MedicineID(clinic.NewID()),
		Name:  "Ibuprofen 400mg",
		Price: decimal.RequireFromString("1.20"),
		Stock: 10,
	}
	require.NoError(t, store.InsertMedicine(ctx, med))

	require.NoError(t, store.DecrementStock(ctx, med.ID, 7))

	err := store.DecrementStock(ctx, med.ID, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, clinic.ErrInsufficientStock)

	got, err := store.GetMedicine(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock, "failed decrement leaves stock unchanged")
}

func TestSQLite_DecrementStock_UnknownMedicine(t *testing.T) {
	store := newTestStore(t)

	err := store.DecrementStock(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, clinic.ErrMedicineNotFound)
}

// =============================================================================
// LOYALTY RULE TESTS
// =============================================================================

func TestSQLite_InsertRule_DuplicateActiveRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r1 := clinic.LoyaltyRule{
		ID:            clinic.RuleID(clinic.NewID()),
		Name:          "Standard earn",
		EventType:     clinic.EventTreatment,
		PointsPerUnit: decimal.RequireFromString("0.002"),
		Active:        true,
	}
	require.NoError(t, store.InsertRule(ctx, r1))

	r2 := r1
	r2.ID = clinic.RuleID(clinic.NewID())
	r2.Name = "Promo earn"
	err := store.InsertRule(ctx, r2)
	assert.ErrorIs(t, err, clinic.ErrDuplicateActiveRule)

	// Inactive sibling is fine
	r2.Active = false
	assert.NoError(t, store.InsertRule(ctx, r2))

	// Reactivating it collides again
	r2.Active = true
	assert.ErrorIs(t, store.UpdateRule(ctx, r2), clinic.ErrDuplicateActiveRule)
}

func TestSQLite_ListRules_InsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events := []clinic.LoyaltyEvent{clinic.EventTreatment, clinic.EventPurchase, clinic.EventVisit}
	var ids []clinic.RuleID
	for _, ev := range events {
		r := clinic.LoyaltyRule{
			ID:            clinic.RuleID(clinic.NewID()),
			Name:          string(ev),
			EventType:     ev,
			PointsPerUnit: decimal.NewFromInt(1),
			Active:        true,
		}
		require.NoError(t, store.InsertRule(ctx, r))
		ids = append(ids, r.ID)
	}

	rules, err := store.ListRules(ctx, "")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for i, r := range rules {
		assert.Equal(t, ids[i], r.ID)
	}
}

func TestSQLite_ResetLoyalty_Atomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := insertPatient(t, store, "An Nguyen")

	_, err := store.AdjustPoints(ctx, p.ID, 250)
	require.NoError(t, err)
	require.NoError(t, store.AppendLoyaltyTransaction(ctx, clinic.LoyaltyTransaction{
		ID:        clinic.TransactionID(clinic.NewID()),
		PatientID: p.ID,
		Points:    250,
		Type:      clinic.LoyaltyEarned,
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, store.ResetLoyalty(ctx))

	got, err := store.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.LoyaltyPoints)

	txs, err := store.ListLoyaltyTransactions(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// SCHEDULING TESTS
// =============================================================================

func TestSQLite_DoctorScheduleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := clinic.Doctor{
		ID:   clinic.DoctorID(clinic.NewID()),
		Name: "Dr. Sarah Kim",
		Schedules: []clinic.DoctorSchedule{
			{DayOfWeek: time.Monday, StartTime: "09:00", EndTime: "17:00"},
			{DayOfWeek: time.Wednesday, StartTime: "10:00", EndTime: "14:00"},
		},
	}
	require.NoError(t, store.InsertDoctor(ctx, d))

	got, err := store.GetDoctor(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Schedules, 2)

	// Update replaces the schedule set wholesale
	d.Schedules = []clinic.DoctorSchedule{
		{DayOfWeek: time.Friday, StartTime: "08:00", EndTime: "12:00"},
	}
	require.NoError(t, store.UpdateDoctor(ctx, d))

	got, err = store.GetDoctor(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Schedules, 1)
	assert.Equal(t, time.Friday, got.Schedules[0].DayOfWeek)
}

func TestSQLite_BookedTimes_ScheduledOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := insertPatient(t, store, "Maria Santos")

	d := clinic.Doctor{ID: clinic.DoctorID(clinic.NewID()), Name: "Dr. Kim"}
	require.NoError(t, store.InsertDoctor(ctx, d))

	mk := func(timeStr string, status clinic.AppointmentStatus) clinic.Appointment {
		return clinic.Appointment{
			ID:        clinic.AppointmentID(clinic.NewID()),
			PatientID: p.ID,
			DoctorID:  d.ID,
			Date:      "2026-09-07",
			Time:      timeStr,
			Status:    status,
			CreatedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, store.InsertAppointment(ctx, mk("09:00", clinic.AppointmentScheduled)))
	require.NoError(t, store.InsertAppointment(ctx, mk("09:30", clinic.AppointmentCancelled)))
	require.NoError(t, store.InsertAppointment(ctx, mk("10:00", clinic.AppointmentCompleted)))

	booked, err := store.BookedTimes(ctx, d.ID, "2026-09-07")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, booked)
}

func TestSQLite_UpdateAppointmentStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := insertPatient(t, store, "David Chen")

	d := clinic.Doctor{ID: clinic.DoctorID(clinic.NewID()), Name: "Dr. Kim"}
	require.NoError(t, store.InsertDoctor(ctx, d))

	a := clinic.Appointment{
		ID:        clinic.AppointmentID(clinic.NewID()),
		PatientID: p.ID,
		DoctorID:  d.ID,
		Date:      "2026-09-08",
		Time:      "11:00",
		Status:    clinic.AppointmentScheduled,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertAppointment(ctx, a))

	require.NoError(t, store.UpdateAppointmentStatus(ctx, a.ID, clinic.AppointmentCompleted, "done"))

	got, err := store.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.AppointmentCompleted, got.Status)
	assert.Equal(t, "done", got.Notes)

	assert.ErrorIs(t,
		store.UpdateAppointmentStatus(ctx, "missing", clinic.AppointmentCancelled, ""),
		clinic.ErrAppointmentNotFound)
}

// =============================================================================
// USER TESTS
// =============================================================================

func TestSQLite_UserRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	u := clinic.User{
		ID:           clinic.NewID(),
		Username:     "frontdesk",
		PasswordHash: "$2a$10$notarealhashbutstored",
		Role:         clinic.RoleStaff,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.InsertUser(ctx, u))

	got, err := store.GetUserByUsername(ctx, "frontdesk")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.Equal(t, clinic.RoleStaff, got.Role)

	missing, err := store.GetUserByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
