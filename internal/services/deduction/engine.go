// Package deduction computes and applies the reductions configured per team
// against scheduled membership payments. The calculation half of the package
// is pure: it simulates deductions against a base amount and a read-only
// wallet balance without touching storage.
package deduction

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/repos/rules"
)

var (
	ErrInvalidSelection  = errors.New("selected rule is not applicable")
	ErrRuleNotApplicable = errors.New("rule cannot apply to this payment")
)

var oneHundred = decimal.NewFromInt(100)

// AppliedDeduction is one deduction the engine decided to apply, with the
// concrete amount it removes from the remaining payment.
type AppliedDeduction struct {
	RuleID   uuid.UUID
	RuleName string
	Kind     rules.Kind
	Amount   decimal.Decimal
}

// AvailableDeduction is an applicable rule the engine did not apply (not
// selected, not automatic, or nothing left to deduct), reported with the
// amount it would remove. Preview surfaces these.
type AvailableDeduction struct {
	RuleID          uuid.UUID
	RuleName        string
	Kind            rules.Kind
	PotentialAmount decimal.Decimal
}

// Breakdown is the full result of a deduction simulation.
type Breakdown struct {
	BaseAmount      decimal.Decimal
	TotalDeductions decimal.Decimal
	FinalAmount     decimal.Decimal
	Applied         []AppliedDeduction
	Available       []AvailableDeduction
}

// ruleApplies is the applicability predicate: active, inside the validity
// window, and the base amount reaches the rule's floor.
func ruleApplies(r rules.Rule, baseAmount decimal.Decimal, asOf time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.ValidFrom != nil && asOf.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && asOf.After(*r.ValidUntil) {
		return false
	}
	if !r.Value.IsPositive() {
		return false
	}
	if r.MinAmount != nil && baseAmount.LessThan(*r.MinAmount) {
		return false
	}

	return true
}

// ApplicableRules filters the team's rules down to those that can apply to
// baseAmount at asOf, and orders them so wallet-funded rules come last:
// non-wallet deductions are exhausted first, preserving the athlete's own
// earned balance for whatever remains.
func ApplicableRules(rs []rules.Rule, baseAmount decimal.Decimal, asOf time.Time) []rules.Rule {
	var out []rules.Rule

	for _, r := range rs {
		if ruleApplies(r, baseAmount, asOf) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind != rules.KindWalletFunded && out[j].Kind == rules.KindWalletFunded
	})

	return out
}

// CalculateDeduction computes the amount a single rule removes from
// remaining. Percentage values round half-up at two decimals. The result is
// clamped to the rule's min/max bounds, never exceeds remaining, and for
// wallet-funded rules never exceeds walletBalance.
func CalculateDeduction(r rules.Rule, remaining, walletBalance decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal

	switch r.Calculation {
	case rules.CalculationPercentage:
		amount = remaining.Mul(r.Value).Div(oneHundred).Round(2)
	default: // fixed
		amount = r.Value
	}

	if r.MinAmount != nil && amount.LessThan(*r.MinAmount) {
		amount = *r.MinAmount
	}
	if r.MaxAmount != nil && amount.GreaterThan(*r.MaxAmount) {
		amount = *r.MaxAmount
	}

	if amount.GreaterThan(remaining) {
		amount = remaining
	}

	if r.Kind == rules.KindWalletFunded && amount.GreaterThan(walletBalance) {
		amount = walletBalance
	}

	if amount.IsNegative() {
		return decimal.Zero
	}

	return amount
}

// CalculateApplicableDeductions runs the ordered deduction simulation.
//
// With no explicit selection, only automatic rules are applied; the rest are
// reported as available. With selectedRuleIDs, exactly those rules are
// applied and a selection outside the applicable set is a validation error.
// Wallet-funded deductions draw down a simulated wallet balance; the real
// wallet is never mutated here.
func CalculateApplicableDeductions(rs []rules.Rule, baseAmount, walletBalance decimal.Decimal, selectedRuleIDs []uuid.UUID, asOf time.Time) (*Breakdown, error) {
	applicable := ApplicableRules(rs, baseAmount, asOf)

	selected := make(map[uuid.UUID]bool, len(selectedRuleIDs))
	for _, id := range selectedRuleIDs {
		found := false
		for _, r := range applicable {
			if r.ID == id {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("rule %s: %w", id, ErrInvalidSelection)
		}
		selected[id] = true
	}

	bd := &Breakdown{
		BaseAmount:      baseAmount,
		TotalDeductions: decimal.Zero,
		FinalAmount:     baseAmount,
	}

	remaining := baseAmount
	balance := walletBalance

	for _, r := range applicable {
		apply := r.IsAutomatic
		if len(selectedRuleIDs) > 0 {
			apply = selected[r.ID]
		}

		if !apply || !remaining.IsPositive() {
			potential := CalculateDeduction(r, remaining, balance)
			bd.Available = append(bd.Available, AvailableDeduction{
				RuleID:          r.ID,
				RuleName:        r.Name,
				Kind:            r.Kind,
				PotentialAmount: potential,
			})
			continue
		}

		amount := CalculateDeduction(r, remaining, balance)
		if !amount.IsPositive() {
			bd.Available = append(bd.Available, AvailableDeduction{
				RuleID:          r.ID,
				RuleName:        r.Name,
				Kind:            r.Kind,
				PotentialAmount: amount,
			})
			continue
		}

		remaining = remaining.Sub(amount)
		if r.Kind == rules.KindWalletFunded {
			balance = balance.Sub(amount)
		}

		bd.Applied = append(bd.Applied, AppliedDeduction{
			RuleID:   r.ID,
			RuleName: r.Name,
			Kind:     r.Kind,
			Amount:   amount,
		})
	}

	bd.FinalAmount = remaining
	bd.TotalDeductions = baseAmount.Sub(remaining)

	return bd, nil
}
