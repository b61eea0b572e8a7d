// Package clubaccount tracks the commission pool a club retains from event
// distributions. Same contract as the wallet ledger, scoped to club-level
// transactions.
package clubaccount

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/infra/pgutils"
	"github.com/sportsfund/treasury/internal/repos/clubaccounts"
	pgclubaccounts "github.com/sportsfund/treasury/internal/repos/clubaccounts/postgres"
)

var ErrNonPositiveAmount = errors.New("commission amount must be positive")

type Service struct {
	db       *sql.DB
	accounts clubaccounts.Accounts
}

func New(db *sql.DB) *Service {
	return &Service{
		db:       db,
		accounts: pgclubaccounts.New(db),
	}
}

// GetOrCreate returns the club's finance account, creating it with zero
// balances on first access.
func (s *Service) GetOrCreate(ctx context.Context, clubID uuid.UUID) (*clubaccounts.Account, error) {
	var a *clubaccounts.Account

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var txErr error
		a, txErr = s.GetOrCreateTx(tx, clubID)
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("get or create club account: %w", err)
	}

	return a, nil
}

// GetOrCreateTx is GetOrCreate inside the caller's transaction, leaving the
// account row locked.
func (s *Service) GetOrCreateTx(tx *sql.Tx, clubID uuid.UUID) (*clubaccounts.Account, error) {
	a, err := s.accounts.LockByClub(tx, clubID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, clubaccounts.ErrAccountNotFound) {
		return nil, err
	}

	err = s.accounts.Create(tx, &clubaccounts.Account{
		ID:              uuid.New(),
		ClubID:          clubID,
		TotalCommission: decimal.Zero,
		CurrentBalance:  decimal.Zero,
	})
	if err != nil && !errors.Is(err, clubaccounts.ErrDuplicateAccount) {
		return nil, err
	}

	return s.accounts.LockByClub(tx, clubID)
}

// AddCommissionTx credits a commission to an already-locked account and
// appends the matching ledger entry.
func (s *Service) AddCommissionTx(tx *sql.Tx, a *clubaccounts.Account, amount decimal.Decimal, eventID *uuid.UUID, description string) (*clubaccounts.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	err := s.accounts.IncreaseBalance(tx, a.ID, amount)
	if err != nil {
		return nil, err
	}

	err = s.accounts.InsertTransaction(tx, &clubaccounts.Transaction{
		ID:          uuid.New(),
		AccountID:   a.ID,
		EventID:     eventID,
		Amount:      amount,
		Kind:        clubaccounts.KindCommission,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	out := *a
	out.TotalCommission = a.TotalCommission.Add(amount)
	out.CurrentBalance = a.CurrentBalance.Add(amount)

	slog.Info("club commission added",
		"account_id", a.ID,
		"club_id", a.ClubID,
		"amount", amount.StringFixed(2))

	return &out, nil
}

// AddCommission credits a commission in its own transaction.
func (s *Service) AddCommission(ctx context.Context, clubID uuid.UUID, amount decimal.Decimal, eventID *uuid.UUID, description string) (*clubaccounts.Account, error) {
	var a *clubaccounts.Account

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		locked, txErr := s.GetOrCreateTx(tx, clubID)
		if txErr != nil {
			return txErr
		}

		a, txErr = s.AddCommissionTx(tx, locked, amount, eventID, description)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Get returns the club's account without creating it.
func (s *Service) Get(ctx context.Context, clubID uuid.UUID) (*clubaccounts.Account, error) {
	return s.accounts.GetByClub(ctx, clubID)
}

// Transactions returns the account's commission ledger, oldest first.
func (s *Service) Transactions(ctx context.Context, accountID uuid.UUID) ([]clubaccounts.Transaction, error) {
	return s.accounts.ListTransactions(ctx, accountID)
}
