// Package audit checks stored wallet balances against the transaction log and
// repairs them from it. The log is authoritative: repair rewrites the wallet
// row, never the ledger.
package audit

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/infra/pgutils"
	"github.com/sportsfund/treasury/internal/repos/ledger"
	pgledger "github.com/sportsfund/treasury/internal/repos/ledger/postgres"
	"github.com/sportsfund/treasury/internal/repos/wallets"
	pgwallets "github.com/sportsfund/treasury/internal/repos/wallets/postgres"
)

// IssueKind classifies an inconsistency found by Validate.
type IssueKind string

const (
	IssueAmountMismatch  IssueKind = "amount_mismatch"
	IssueEarnedMismatch  IssueKind = "earned_mismatch"
	IssueNegativeBalance IssueKind = "negative_balance"
)

// tolerance absorbs representation noise from two-decimal money; anything
// within a cent is not an issue.
var tolerance = decimal.New(1, -2)

// Issue is one detected inconsistency on a wallet.
type Issue struct {
	Kind     IssueKind
	WalletID uuid.UUID
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

// Report is the outcome of validating one wallet.
type Report struct {
	WalletID            uuid.UUID
	ExpectedAmount      decimal.Decimal
	ExpectedTotalEarned decimal.Decimal
	Issues              []Issue
}

func (r *Report) Consistent() bool {
	return len(r.Issues) == 0
}

// Recompute derives the balances a wallet should hold from its full ledger:
// credits add, debits subtract, and total earned counts earning and
// adjustment credits.
func Recompute(txs []ledger.Transaction) (current, totalEarned decimal.Decimal) {
	current = decimal.Zero
	totalEarned = decimal.Zero

	for _, t := range txs {
		switch t.Direction {
		case ledger.DirectionCredit:
			current = current.Add(t.Amount)
			if t.Kind == ledger.KindEarning || t.Kind == ledger.KindAdjustment {
				totalEarned = totalEarned.Add(t.Amount)
			}
		case ledger.DirectionDebit:
			current = current.Sub(t.Amount)
		}
	}

	return current, totalEarned
}

func compare(w *wallets.Wallet, current, totalEarned decimal.Decimal) []Issue {
	var issues []Issue

	if w.CurrentAmount.Sub(current).Abs().GreaterThan(tolerance) {
		issues = append(issues, Issue{
			Kind:     IssueAmountMismatch,
			WalletID: w.ID,
			Expected: current,
			Actual:   w.CurrentAmount,
		})
	}

	if w.TotalEarned.Sub(totalEarned).Abs().GreaterThan(tolerance) {
		issues = append(issues, Issue{
			Kind:     IssueEarnedMismatch,
			WalletID: w.ID,
			Expected: totalEarned,
			Actual:   w.TotalEarned,
		})
	}

	if w.CurrentAmount.IsNegative() {
		issues = append(issues, Issue{
			Kind:     IssueNegativeBalance,
			WalletID: w.ID,
			Expected: decimal.Zero,
			Actual:   w.CurrentAmount,
		})
	}

	return issues
}

// Auditor validates and repairs wallet balances.
type Auditor struct {
	db      *sql.DB
	wallets wallets.Wallets
	txlog   ledger.Transactions
}

func New(db *sql.DB) *Auditor {
	return &Auditor{
		db:      db,
		wallets: pgwallets.New(db),
		txlog:   pgledger.New(db),
	}
}

// Validate recomputes a wallet's balances from its ledger and reports every
// mismatch. Read-only.
func (a *Auditor) Validate(ctx context.Context, walletID uuid.UUID) (*Report, error) {
	w, err := a.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}

	txs, err := a.txlog.ListForWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	current, totalEarned := Recompute(txs)

	return &Report{
		WalletID:            walletID,
		ExpectedAmount:      current,
		ExpectedTotalEarned: totalEarned,
		Issues:              compare(w, current, totalEarned),
	}, nil
}

// Repair overwrites the wallet's stored balances with the recomputed ones
// when they disagree. Runs under the wallet row lock so no mutation can slip
// between recompute and rewrite. Returns whether anything was changed.
func (a *Auditor) Repair(ctx context.Context, walletID uuid.UUID) (bool, error) {
	repaired := false

	err := pgutils.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		w, err := a.wallets.LockByID(tx, walletID)
		if err != nil {
			return err
		}

		txs, err := a.txlog.ListForWalletTx(tx, walletID)
		if err != nil {
			return err
		}

		current, totalEarned := Recompute(txs)

		if len(compare(w, current, totalEarned)) == 0 {
			return nil
		}

		err = a.wallets.SetBalances(tx, walletID, current, totalEarned)
		if err != nil {
			return err
		}

		repaired = true

		slog.Warn("wallet balances repaired",
			"wallet_id", walletID,
			"old_amount", w.CurrentAmount.StringFixed(2),
			"new_amount", current.StringFixed(2),
			"old_total_earned", w.TotalEarned.StringFixed(2),
			"new_total_earned", totalEarned.StringFixed(2))

		return nil
	})
	if err != nil {
		return false, err
	}

	return repaired, nil
}
