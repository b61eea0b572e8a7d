// Package wallet implements the per-(user, team) earnings ledger. Every
// balance mutation appends an immutable transaction and runs under the
// wallet's row lock, so concurrent debits can never both observe the same
// pre-debit balance.
package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/infra/pgutils"
	"github.com/sportsfund/treasury/internal/repos/ledger"
	pgledger "github.com/sportsfund/treasury/internal/repos/ledger/postgres"
	"github.com/sportsfund/treasury/internal/repos/wallets"
	pgwallets "github.com/sportsfund/treasury/internal/repos/wallets/postgres"
)

var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrZeroAdjustment    = errors.New("adjustment amount must be non-zero")
)

type Service struct {
	db      *sql.DB
	wallets wallets.Wallets
	txlog   ledger.Transactions
}

func New(db *sql.DB) *Service {
	return &Service{
		db:      db,
		wallets: pgwallets.New(db),
		txlog:   pgledger.New(db),
	}
}

// GetOrCreate returns the wallet for (user, team), creating it with zero
// balances on first access. Idempotent.
func (s *Service) GetOrCreate(ctx context.Context, userID, teamID uuid.UUID) (*wallets.Wallet, error) {
	var w *wallets.Wallet

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var txErr error
		w, txErr = s.GetOrCreateTx(tx, userID, teamID)
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("get or create wallet: %w", err)
	}

	return w, nil
}

// GetOrCreateTx is GetOrCreate inside the caller's transaction. The returned
// wallet row is locked for the remainder of the transaction.
func (s *Service) GetOrCreateTx(tx *sql.Tx, userID, teamID uuid.UUID) (*wallets.Wallet, error) {
	w, err := s.wallets.LockByUserTeam(tx, userID, teamID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, wallets.ErrWalletNotFound) {
		return nil, err
	}

	err = s.wallets.Create(tx, &wallets.Wallet{
		ID:            uuid.New(),
		UserID:        userID,
		TeamID:        teamID,
		CurrentAmount: decimal.Zero,
		TotalEarned:   decimal.Zero,
	})
	if err != nil && !errors.Is(err, wallets.ErrDuplicateWallet) {
		return nil, err
	}

	// Re-read under lock: either our fresh row or the one a concurrent
	// creator won the unique constraint with.
	return s.wallets.LockByUserTeam(tx, userID, teamID)
}

// Credit adds amount to the wallet and appends a ledger entry. Earning
// credits also count toward total_earned.
func (s *Service) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, kind ledger.Kind, description string, eventID *uuid.UUID) (*wallets.Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	var w *wallets.Wallet

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		locked, txErr := s.wallets.LockByID(tx, walletID)
		if txErr != nil {
			return txErr
		}

		w, txErr = s.CreditTx(tx, locked, amount, kind, description, eventID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return w, nil
}

// CreditTx credits an already-locked wallet inside the caller's transaction.
func (s *Service) CreditTx(tx *sql.Tx, w *wallets.Wallet, amount decimal.Decimal, kind ledger.Kind, description string, eventID *uuid.UUID) (*wallets.Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	earned := kind == ledger.KindEarning

	err := s.wallets.IncreaseBalance(tx, w.ID, amount, earned)
	if err != nil {
		return nil, err
	}

	err = s.txlog.Insert(tx, &ledger.Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		EventID:     eventID,
		Amount:      amount,
		Kind:        kind,
		Direction:   ledger.DirectionCredit,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	out := *w
	out.CurrentAmount = w.CurrentAmount.Add(amount)
	if earned {
		out.TotalEarned = w.TotalEarned.Add(amount)
	}

	slog.Info("wallet credited",
		"wallet_id", w.ID,
		"amount", amount.StringFixed(2),
		"kind", string(kind),
		"balance", out.CurrentAmount.StringFixed(2))

	return &out, nil
}

// Debit removes amount from the wallet, failing with ErrInsufficientFunds
// when the balance does not cover it. No partial debit ever happens.
func (s *Service) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, description string) (*wallets.Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	var w *wallets.Wallet

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		locked, txErr := s.wallets.LockByID(tx, walletID)
		if txErr != nil {
			return txErr
		}

		w, txErr = s.DebitTx(tx, locked, amount, description)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return w, nil
}

// DebitTx debits an already-locked wallet inside the caller's transaction.
func (s *Service) DebitTx(tx *sql.Tx, w *wallets.Wallet, amount decimal.Decimal, description string) (*wallets.Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	if amount.GreaterThan(w.CurrentAmount) {
		return nil, wallets.ErrInsufficientFunds
	}

	err := s.wallets.DecreaseBalance(tx, w.ID, amount)
	if err != nil {
		return nil, err
	}

	err = s.txlog.Insert(tx, &ledger.Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		Amount:      amount,
		Kind:        ledger.KindUsage,
		Direction:   ledger.DirectionDebit,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	out := *w
	out.CurrentAmount = w.CurrentAmount.Sub(amount)

	slog.Info("wallet debited",
		"wallet_id", w.ID,
		"amount", amount.StringFixed(2),
		"balance", out.CurrentAmount.StringFixed(2))

	return &out, nil
}

// Adjust applies an administrative correction. Positive amounts behave like
// an earning credit; negative amounts debit but clamp at zero, so an
// adjustment can never push the balance negative. total_earned is only ever
// increased by adjustments, never decreased.
func (s *Service) Adjust(ctx context.Context, walletID uuid.UUID, signedAmount decimal.Decimal, reason, actor string) (*wallets.Wallet, error) {
	if signedAmount.IsZero() {
		return nil, ErrZeroAdjustment
	}

	description := fmt.Sprintf("%s (by %s)", reason, actor)

	var w *wallets.Wallet

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		locked, txErr := s.wallets.LockByID(tx, walletID)
		if txErr != nil {
			return txErr
		}

		if signedAmount.IsPositive() {
			err := s.wallets.IncreaseBalance(tx, locked.ID, signedAmount, true)
			if err != nil {
				return err
			}

			err = s.txlog.Insert(tx, &ledger.Transaction{
				ID:          uuid.New(),
				WalletID:    locked.ID,
				Amount:      signedAmount,
				Kind:        ledger.KindAdjustment,
				Direction:   ledger.DirectionCredit,
				Description: description,
			})
			if err != nil {
				return err
			}

			out := *locked
			out.CurrentAmount = locked.CurrentAmount.Add(signedAmount)
			out.TotalEarned = locked.TotalEarned.Add(signedAmount)
			w = &out

			return nil
		}

		// Negative adjustment: debit whatever is available, floor at zero.
		applied := signedAmount.Neg()
		if applied.GreaterThan(locked.CurrentAmount) {
			applied = locked.CurrentAmount
		}

		if applied.IsZero() {
			// Nothing to remove; a zero-amount ledger entry is not legal.
			w = locked
			return nil
		}

		err := s.wallets.DecreaseBalance(tx, locked.ID, applied)
		if err != nil {
			return err
		}

		err = s.txlog.Insert(tx, &ledger.Transaction{
			ID:          uuid.New(),
			WalletID:    locked.ID,
			Amount:      applied,
			Kind:        ledger.KindAdjustment,
			Direction:   ledger.DirectionDebit,
			Description: description,
		})
		if err != nil {
			return err
		}

		out := *locked
		out.CurrentAmount = locked.CurrentAmount.Sub(applied)
		w = &out

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("wallet adjusted",
		"wallet_id", walletID,
		"amount", signedAmount.StringFixed(2),
		"actor", actor,
		"balance", w.CurrentAmount.StringFixed(2))

	return w, nil
}

// Get returns the wallet for (user, team) without creating it.
func (s *Service) Get(ctx context.Context, userID, teamID uuid.UUID) (*wallets.Wallet, error) {
	return s.wallets.GetByUserTeam(ctx, userID, teamID)
}

// GetByID returns a wallet by its identity.
func (s *Service) GetByID(ctx context.Context, walletID uuid.UUID) (*wallets.Wallet, error) {
	return s.wallets.GetByID(ctx, walletID)
}

// Transactions returns the wallet's full ledger, oldest first.
func (s *Service) Transactions(ctx context.Context, walletID uuid.UUID) ([]ledger.Transaction, error) {
	return s.txlog.ListForWallet(ctx, walletID)
}
