/*
loyalty_test.go - Unit tests for rule resolution and point math

CORE DESIGN:
- First active matching rule wins; order is insertion order
- Missing rule falls back to the 0.001 points-per-unit default
- The same rule fields mean earn rates for earning events and redemption
  value for REDEEM
*/
package clinic_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/brightsmile/clinic-engine/clinic"
)

func rule(id string, event clinic.LoyaltyEvent, rate, minAmount string, active bool) clinic.LoyaltyRule {
	return clinic.LoyaltyRule{
		ID:            clinic.RuleID(id),
		Name:          id,
		EventType:     event,
		PointsPerUnit: decimal.RequireFromString(rate),
		MinAmount:     decimal.RequireFromString(minAmount),
		Active:        active,
	}
}

// =============================================================================
// RESOLUTION TESTS
// =============================================================================

func TestResolveRule_FirstActiveMatchWins(t *testing.T) {
	rules := []clinic.LoyaltyRule{
		rule("r1", clinic.EventTreatment, "0.005", "0", false),
		rule("r2", clinic.EventTreatment, "0.002", "100", true),
		rule("r3", clinic.EventTreatment, "0.010", "0", true),
	}

	got := clinic.ResolveRule(rules, clinic.EventTreatment)
	assert.Equal(t, clinic.RuleID("r2"), got.ID, "inactive rules are skipped; first active match wins")
}

func TestResolveRule_EventTypeMismatch_Skipped(t *testing.T) {
	rules := []clinic.LoyaltyRule{
		rule("purchase", clinic.EventPurchase, "0.01", "0", true),
		rule("treatment", clinic.EventTreatment, "0.002", "0", true),
	}

	got := clinic.ResolveRule(rules, clinic.EventTreatment)
	assert.Equal(t, clinic.RuleID("treatment"), got.ID)
}

func TestResolveRule_NoMatch_Default(t *testing.T) {
	got := clinic.ResolveRule(nil, clinic.EventTreatment)
	assert.True(t, got.PointsPerUnit.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, got.MinAmount.IsZero())
	assert.True(t, got.Active)
}

// =============================================================================
// POINT MATH TESTS
// =============================================================================

func TestEarnedPoints_FlooredTowardZero(t *testing.T) {
	r := rule("r", clinic.EventTreatment, "0.002", "0", true)

	assert.Equal(t, int64(10), r.EarnedPoints(decimal.RequireFromString("5000")))
	assert.Equal(t, int64(3), r.EarnedPoints(decimal.RequireFromString("1999")))
	assert.Equal(t, int64(0), r.EarnedPoints(decimal.RequireFromString("499")))
}

func TestEarnedPoints_BelowMinimum_Zero(t *testing.T) {
	r := rule("r", clinic.EventTreatment, "0.002", "100", true)

	assert.Equal(t, int64(0), r.EarnedPoints(decimal.RequireFromString("99.99")))
	// Exactly at the minimum accrues (but 100 * 0.002 still floors to 0)
	assert.Equal(t, int64(0), r.EarnedPoints(decimal.RequireFromString("100")))
	assert.Equal(t, int64(1), r.EarnedPoints(decimal.RequireFromString("500")))
}

func TestRateDuality_RedeemFieldsInvert(t *testing.T) {
	// For REDEEM: PointsPerUnit is currency-per-point, MinAmount is the
	// minimum points per redemption.
	r := rule("redeem", clinic.EventRedeem, "1", "500", true)

	assert.Equal(t, int64(500), r.MinRedeemPoints())
	assert.True(t, r.RedeemValue(600).Equal(decimal.NewFromInt(600)))

	half := rule("half", clinic.EventRedeem, "0.5", "200", true)
	assert.True(t, half.RedeemValue(600).Equal(decimal.RequireFromString("300")))
}

func TestVisitPoints_FlooredRate(t *testing.T) {
	assert.Equal(t, int64(5), rule("v", clinic.EventVisit, "5", "0", true).VisitPoints())
	assert.Equal(t, int64(0), rule("v", clinic.EventVisit, "0.5", "0", true).VisitPoints())
}

// =============================================================================
// DUPLICATE ACTIVE RULE TESTS
// =============================================================================

func TestValidateNewRule_DuplicateActiveRejected(t *testing.T) {
	existing := []clinic.LoyaltyRule{
		rule("r1", clinic.EventTreatment, "0.002", "0", true),
	}

	err := clinic.ValidateNewRule(existing, rule("r2", clinic.EventTreatment, "0.005", "0", true))
	assert.ErrorIs(t, err, clinic.ErrDuplicateActiveRule)
}

func TestValidateNewRule_InactiveCandidateAllowed(t *testing.T) {
	existing := []clinic.LoyaltyRule{
		rule("r1", clinic.EventTreatment, "0.002", "0", true),
	}

	assert.NoError(t, clinic.ValidateNewRule(existing, rule("r2", clinic.EventTreatment, "0.005", "0", false)))
}

func TestValidateNewRule_DifferentEventAllowed(t *testing.T) {
	existing := []clinic.LoyaltyRule{
		rule("r1", clinic.EventTreatment, "0.002", "0", true),
	}

	assert.NoError(t, clinic.ValidateNewRule(existing, rule("r2", clinic.EventPurchase, "0.01", "0", true)))
}

func TestValidateNewRule_SelfUpdateAllowed(t *testing.T) {
	// Updating a rule in place must not collide with itself.
	existing := []clinic.LoyaltyRule{
		rule("r1", clinic.EventTreatment, "0.002", "0", true),
	}

	assert.NoError(t, clinic.ValidateNewRule(existing, rule("r1", clinic.EventTreatment, "0.003", "0", true)))
}
