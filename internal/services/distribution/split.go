package distribution

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidPercentage = errors.New("club percentage must be between 0 and 100")

var oneHundred = decimal.NewFromInt(100)

// Split is the arithmetic outcome of dividing an event budget.
type Split struct {
	ClubCommission       decimal.Decimal
	AvailableAmount      decimal.Decimal
	AmountPerParticipant decimal.Decimal
	// Residual is the rounding loss left undistributed: strictly less than
	// one cent per participant. Reported, never silently discarded.
	Residual decimal.Decimal
}

// SplitBudget divides totalBudget into the club commission and equal
// per-participant shares.
//
// The commission rounds half-up to two decimals. The per-participant share
// rounds DOWN, which is what guarantees commission + n*share never exceeds
// the budget; whatever truncation leaves over stays in the residual.
func SplitBudget(totalBudget, clubPercentage decimal.Decimal, participants int) (Split, error) {
	if clubPercentage.IsNegative() || clubPercentage.GreaterThan(oneHundred) {
		return Split{}, ErrInvalidPercentage
	}

	commission := totalBudget.Mul(clubPercentage).Div(oneHundred).Round(2)
	available := totalBudget.Sub(commission)

	perParticipant := decimal.Zero
	if participants > 0 {
		perParticipant = available.Div(decimal.NewFromInt(int64(participants))).RoundDown(2)
	}

	residual := available.Sub(perParticipant.Mul(decimal.NewFromInt(int64(participants))))

	return Split{
		ClubCommission:       commission,
		AvailableAmount:      available,
		AmountPerParticipant: perParticipant,
		Residual:             residual,
	}, nil
}
