package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies a wallet ledger transaction.
type Kind string

const (
	KindEarning    Kind = "earning"    // event distribution credit
	KindUsage      Kind = "usage"      // wallet-funded payment debit
	KindAdjustment Kind = "adjustment" // administrative correction, either direction
)

// Direction tells whether the amount increases or decreases the balance.
// Amounts are always stored positive; the direction carries the sign, so the
// auditor never has to guess which way an adjustment went.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Transaction is one immutable ledger entry. Entries are append-only: once
// written they are never updated or deleted, and the stored wallet balance is
// repaired from them, never the other way around.
type Transaction struct {
	ID          uuid.UUID
	WalletID    uuid.UUID
	EventID     *uuid.UUID
	Amount      decimal.Decimal
	Kind        Kind
	Direction   Direction
	Description string
	CreatedAt   time.Time
}

// Transactions is the append-only ledger log contract.
type Transactions interface {
	Insert(tx *sql.Tx, t *Transaction) error
	ListForWallet(ctx context.Context, walletID uuid.UUID) ([]Transaction, error)
	// ListForWalletTx is the same read inside a transaction, used by repair
	// so the recomputation sees a state consistent with the wallet row lock.
	ListForWalletTx(tx *sql.Tx, walletID uuid.UUID) ([]Transaction, error)
}
