package wallets

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrDuplicateWallet   = errors.New("wallet already exists for user and team")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Wallet is one per-(user, team) running balance of fundraising earnings.
// CurrentAmount must always reconcile with the wallet's transaction log.
type Wallet struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	TeamID        uuid.UUID
	CurrentAmount decimal.Decimal
	TotalEarned   decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Wallets is the wallet persistence contract. Methods taking *sql.Tx run
// inside the caller's transaction; balance mutations are only reachable
// through a transaction so that the row lock taken by LockByID/LockByUserTeam
// serializes concurrent mutations per wallet.
type Wallets interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByUserTeam(ctx context.Context, userID, teamID uuid.UUID) (*Wallet, error)

	Create(tx *sql.Tx, w *Wallet) error
	LockByID(tx *sql.Tx, id uuid.UUID) (*Wallet, error)
	LockByUserTeam(tx *sql.Tx, userID, teamID uuid.UUID) (*Wallet, error)

	// IncreaseBalance adds amount to current_amount and, when earned is
	// true, to total_earned as well.
	IncreaseBalance(tx *sql.Tx, id uuid.UUID, amount decimal.Decimal, earned bool) error

	// DecreaseBalance subtracts amount from current_amount, guarded so the
	// balance can never go negative. Returns ErrInsufficientFunds when the
	// guard rejects the update.
	DecreaseBalance(tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error

	// SetBalances overwrites both stored balances. Used by repair only; the
	// transaction log stays untouched and authoritative.
	SetBalances(tx *sql.Tx, id uuid.UUID, current, totalEarned decimal.Decimal) error
}
