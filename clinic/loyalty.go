/*
loyalty.go - Loyalty rule resolution and point arithmetic

PURPOSE:
  Given a location's rule set and an event type, pick the governing rule and
  compute points. Earning and redemption share the LoyaltyRule shape but read
  the rate field with inverted meaning (see types.go).

RESOLUTION:
  First rule in store order with a matching event type and Active=true wins.
  When nothing matches, a default rule applies: 0.001 points per currency
  unit with no minimum. Rule creation rejects a second active rule for the
  same event type + location (ErrDuplicateActiveRule), so in a validated
  store "first match" is also the only match.

SEE ALSO:
  - ledger.go: drives resolution from treatment/sale/redeem paths
*/
package clinic

import "github.com/shopspring/decimal"

// defaultPointsPerUnit is applied when no active rule exists for an event
// type: one point per 1000 currency units, no minimum spend.
var defaultPointsPerUnit = decimal.NewFromFloat(0.001)

// ResolveRule returns the first active rule matching the event type, or the
// default rule when none is configured. Rules are scanned in the order given;
// callers pass them in store (insertion) order.
func ResolveRule(rules []LoyaltyRule, event LoyaltyEvent) LoyaltyRule {
	for _, r := range rules {
		if r.EventType == event && r.Active {
			return r
		}
	}
	return LoyaltyRule{
		Name:          "default",
		EventType:     event,
		PointsPerUnit: defaultPointsPerUnit,
		MinAmount:     decimal.Zero,
		Active:        true,
	}
}

// EarnedPoints computes points for an earning event of the given monetary
// amount: floor(amount * PointsPerUnit), or zero when the amount is below
// MinAmount.
func (r LoyaltyRule) EarnedPoints(amount decimal.Decimal) int64 {
	if amount.LessThan(r.MinAmount) {
		return 0
	}
	return amount.Mul(r.PointsPerUnit).IntPart()
}

// VisitPoints computes points for a visit event, where the rate is read as
// points-per-visit: floor(PointsPerUnit).
func (r LoyaltyRule) VisitPoints() int64 {
	return r.PointsPerUnit.IntPart()
}

// RedeemValue computes the currency discount for spending the given points
// under a REDEEM rule, where the rate is currency-per-point.
func (r LoyaltyRule) RedeemValue(points int64) decimal.Decimal {
	return r.PointsPerUnit.Mul(decimal.NewFromInt(points))
}

// MinRedeemPoints returns the minimum points a redemption must spend under a
// REDEEM rule, where MinAmount is read as a point count.
func (r LoyaltyRule) MinRedeemPoints() int64 {
	return r.MinAmount.IntPart()
}

// ValidateNewRule rejects a candidate that would create a second active rule
// for the same event type and location. Two active rules would make the
// first-match resolution order-dependent, so the ambiguity is rejected at
// the edit boundary.
func ValidateNewRule(existing []LoyaltyRule, candidate LoyaltyRule) error {
	if !candidate.Active {
		return nil
	}
	for _, r := range existing {
		if r.ID == candidate.ID {
			continue
		}
		if r.Active && r.EventType == candidate.EventType && r.LocationID == candidate.LocationID {
			return ErrDuplicateActiveRule
		}
	}
	return nil
}
