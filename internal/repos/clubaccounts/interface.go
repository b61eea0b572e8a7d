package clubaccounts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound  = errors.New("club account not found")
	ErrDuplicateAccount = errors.New("club account already exists")
)

// Account accumulates the commissions a club retains from event
// distributions. One account per club; same non-negativity and reconciliation
// invariants as a wallet, against its own transaction log.
type Account struct {
	ID              uuid.UUID
	ClubID          uuid.UUID
	TotalCommission decimal.Decimal
	CurrentBalance  decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// KindCommission is the only transaction kind on a club account log today.
const KindCommission = "commission"

// Transaction is one immutable club account ledger entry.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	EventID     *uuid.UUID
	Amount      decimal.Decimal
	Kind        string
	Description string
	CreatedAt   time.Time
}

type Accounts interface {
	GetByClub(ctx context.Context, clubID uuid.UUID) (*Account, error)

	Create(tx *sql.Tx, a *Account) error
	LockByClub(tx *sql.Tx, clubID uuid.UUID) (*Account, error)
	// IncreaseBalance adds amount to both current_balance and total_commission.
	IncreaseBalance(tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error
	InsertTransaction(tx *sql.Tx, t *Transaction) error

	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]Transaction, error)
}
