package deduction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/infra/pgutils"
	"github.com/sportsfund/treasury/internal/repos/payments"
	pgpayments "github.com/sportsfund/treasury/internal/repos/payments/postgres"
	"github.com/sportsfund/treasury/internal/repos/rules"
	pgrules "github.com/sportsfund/treasury/internal/repos/rules/postgres"
	"github.com/sportsfund/treasury/internal/repos/wallets"
	"github.com/sportsfund/treasury/internal/services/wallet"
)

var (
	ErrNonPositiveAmount    = errors.New("payment amount must be positive")
	ErrNothingRemaining     = errors.New("payment has nothing remaining to pay")
	ErrScheduleTeamMismatch = errors.New("schedule belongs to a different team")
)

// Accountant creates scheduled payments and moves them toward paid, applying
// deduction rules and manual payments. Wallet-funded deductions debit the
// athlete's wallet in the same transaction that records payment progress.
type Accountant struct {
	db       *sql.DB
	payments payments.Payments
	rules    rules.Rules
	wallets  *wallet.Service
}

func NewAccountant(db *sql.DB, wallets *wallet.Service) *Accountant {
	return &Accountant{
		db:       db,
		payments: pgpayments.New(db),
		rules:    pgrules.New(db),
		wallets:  wallets,
	}
}

func paymentStatus(amountPaid, baseAmount decimal.Decimal) payments.Status {
	switch {
	case amountPaid.GreaterThanOrEqual(baseAmount):
		return payments.StatusPaid
	case amountPaid.IsPositive():
		return payments.StatusPartial
	default:
		return payments.StatusPending
	}
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}

	return notes + "; " + line
}

// CreateWithDeductions creates a payment from a schedule and immediately
// applies the deduction simulation for the athlete's team. Every applied
// deduction counts as payment progress; wallet-funded ones also debit the
// wallet, atomically with the payment row.
func (a *Accountant) CreateWithDeductions(ctx context.Context, userID, teamID, scheduleID uuid.UUID, selectedRuleIDs []uuid.UUID) (*payments.Payment, *Breakdown, error) {
	var (
		p  *payments.Payment
		bd *Breakdown
	)

	err := pgutils.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		sched, err := a.payments.GetScheduleTx(tx, scheduleID)
		if err != nil {
			return err
		}
		if sched.TeamID != teamID {
			return ErrScheduleTeamMismatch
		}

		w, err := a.wallets.GetOrCreateTx(tx, userID, teamID)
		if err != nil {
			return err
		}

		teamRules, err := a.rules.ListActiveForTeamTx(tx, teamID)
		if err != nil {
			return err
		}

		bd, err = CalculateApplicableDeductions(teamRules, sched.Amount, w.CurrentAmount, selectedRuleIDs, time.Now())
		if err != nil {
			return err
		}

		p = &payments.Payment{
			ID:         uuid.New(),
			UserID:     userID,
			TeamID:     teamID,
			ScheduleID: sched.ID,
			BaseAmount: sched.Amount,
			AmountPaid: decimal.Zero,
			DueDate:    sched.DueDate,
			Status:     payments.StatusPending,
		}

		err = a.payments.Insert(tx, p)
		if err != nil {
			return err
		}

		notes := ""
		amountPaid := decimal.Zero

		for _, d := range bd.Applied {
			if d.Kind == rules.KindWalletFunded {
				description := fmt.Sprintf("deduction %q for payment %q", d.RuleName, sched.Label)

				w, err = a.wallets.DebitTx(tx, w, d.Amount, description)
				if err != nil {
					return err
				}
			}

			amountPaid = amountPaid.Add(d.Amount)
			notes = appendNote(notes, fmt.Sprintf("deduction %q -%s", d.RuleName, d.Amount.StringFixed(2)))
		}

		if amountPaid.IsPositive() {
			p.AmountPaid = amountPaid
			p.Status = paymentStatus(amountPaid, p.BaseAmount)
			p.Notes = notes

			err = a.payments.UpdateProgress(tx, p.ID, p.AmountPaid, p.Status, p.Notes)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("payment created",
		"payment_id", p.ID,
		"user_id", userID,
		"base_amount", p.BaseAmount.StringFixed(2),
		"amount_paid", p.AmountPaid.StringFixed(2),
		"status", string(p.Status))

	return p, bd, nil
}

// Preview runs the deduction simulation for a schedule without creating a
// payment or touching any balance.
func (a *Accountant) Preview(ctx context.Context, userID, teamID, scheduleID uuid.UUID, selectedRuleIDs []uuid.UUID) (*Breakdown, error) {
	sched, err := a.payments.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sched.TeamID != teamID {
		return nil, ErrScheduleTeamMismatch
	}

	balance := decimal.Zero

	w, err := a.wallets.Get(ctx, userID, teamID)
	switch {
	case err == nil:
		balance = w.CurrentAmount
	case errors.Is(err, wallets.ErrWalletNotFound):
		// No wallet yet means nothing to fund wallet deductions with.
	default:
		return nil, err
	}

	teamRules, err := a.rules.ListActiveForTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	return CalculateApplicableDeductions(teamRules, sched.Amount, balance, selectedRuleIDs, time.Now())
}

// ApplyManualPayment records money received outside the wallet system (cash,
// bank transfer). The applied amount is capped at what remains due.
func (a *Accountant) ApplyManualPayment(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, note string) (*payments.Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	var p *payments.Payment

	err := pgutils.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		locked, err := a.payments.LockByID(tx, paymentID)
		if err != nil {
			return err
		}

		remaining := locked.BaseAmount.Sub(locked.AmountPaid)
		if !remaining.IsPositive() {
			return ErrNothingRemaining
		}

		applied := amount
		if applied.GreaterThan(remaining) {
			applied = remaining
		}

		line := fmt.Sprintf("manual payment +%s", applied.StringFixed(2))
		if note != "" {
			line = fmt.Sprintf("%s (%s)", line, note)
		}

		locked.AmountPaid = locked.AmountPaid.Add(applied)
		locked.Status = paymentStatus(locked.AmountPaid, locked.BaseAmount)
		locked.Notes = appendNote(locked.Notes, line)

		err = a.payments.UpdateProgress(tx, locked.ID, locked.AmountPaid, locked.Status, locked.Notes)
		if err != nil {
			return err
		}

		p = locked

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("manual payment applied",
		"payment_id", p.ID,
		"amount_paid", p.AmountPaid.StringFixed(2),
		"status", string(p.Status))

	return p, nil
}

// ApplyAdditionalDeduction applies one more rule to an existing payment, for
// rules that were left unapplied at creation time.
func (a *Accountant) ApplyAdditionalDeduction(ctx context.Context, paymentID, ruleID uuid.UUID) (*payments.Payment, error) {
	var p *payments.Payment

	err := pgutils.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		locked, err := a.payments.LockByID(tx, paymentID)
		if err != nil {
			return err
		}

		remaining := locked.BaseAmount.Sub(locked.AmountPaid)
		if !remaining.IsPositive() {
			return ErrNothingRemaining
		}

		r, err := a.rules.GetByIDTx(tx, ruleID)
		if err != nil {
			return err
		}
		if r.TeamID != locked.TeamID || !ruleApplies(*r, locked.BaseAmount, time.Now()) {
			return fmt.Errorf("rule %s: %w", r.ID, ErrRuleNotApplicable)
		}

		w, err := a.wallets.GetOrCreateTx(tx, locked.UserID, locked.TeamID)
		if err != nil {
			return err
		}

		amount := CalculateDeduction(*r, remaining, w.CurrentAmount)
		if !amount.IsPositive() {
			return fmt.Errorf("rule %s: %w", r.ID, ErrRuleNotApplicable)
		}

		if r.Kind == rules.KindWalletFunded {
			description := fmt.Sprintf("deduction %q for payment %s", r.Name, locked.ID)

			_, err = a.wallets.DebitTx(tx, w, amount, description)
			if err != nil {
				return err
			}
		}

		locked.AmountPaid = locked.AmountPaid.Add(amount)
		locked.Status = paymentStatus(locked.AmountPaid, locked.BaseAmount)
		locked.Notes = appendNote(locked.Notes, fmt.Sprintf("deduction %q -%s", r.Name, amount.StringFixed(2)))

		err = a.payments.UpdateProgress(tx, locked.ID, locked.AmountPaid, locked.Status, locked.Notes)
		if err != nil {
			return err
		}

		p = locked

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("additional deduction applied",
		"payment_id", p.ID,
		"rule_id", ruleID,
		"amount_paid", p.AmountPaid.StringFixed(2),
		"status", string(p.Status))

	return p, nil
}

// MarkOverdue sweeps pending payments past their due date. Meant to run
// periodically from the serving process.
func (a *Accountant) MarkOverdue(ctx context.Context) (int64, error) {
	flipped, err := a.payments.MarkOverdue(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	if flipped > 0 {
		slog.Info("payments marked overdue", "count", flipped)
	}

	return flipped, nil
}

// Payment returns one payment by id.
func (a *Accountant) Payment(ctx context.Context, id uuid.UUID) (*payments.Payment, error) {
	return a.payments.GetByID(ctx, id)
}

// Schedule returns one payment schedule by id.
func (a *Accountant) Schedule(ctx context.Context, id uuid.UUID) (*payments.Schedule, error) {
	return a.payments.GetSchedule(ctx, id)
}
