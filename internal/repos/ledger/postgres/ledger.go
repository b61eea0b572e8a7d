package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/repos/ledger"
)

var _ ledger.Transactions = (*ledgerRepo)(nil)

type ledgerRepo struct{ db *sql.DB }

func New(db *sql.DB) *ledgerRepo {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Insert(tx *sql.Tx, t *ledger.Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO wallet_transactions (id, wallet_id, event_id, amount, kind, direction, description)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
	`, t.ID, t.WalletID, t.EventID, t.Amount.StringFixed(2), string(t.Kind), string(t.Direction), t.Description)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}

	return nil
}

const listQuery = `
	SELECT id, wallet_id, event_id, amount, kind, direction, description, created_at
	FROM wallet_transactions
	WHERE wallet_id = $1
	ORDER BY created_at, id
`

func (r *ledgerRepo) ListForWallet(ctx context.Context, walletID uuid.UUID) ([]ledger.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, listQuery, walletID)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

func (r *ledgerRepo) ListForWalletTx(tx *sql.Tx, walletID uuid.UUID) ([]ledger.Transaction, error) {
	rows, err := tx.Query(listQuery, walletID)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

func collect(rows *sql.Rows) ([]ledger.Transaction, error) {
	var out []ledger.Transaction

	for rows.Next() {
		var (
			t               ledger.Transaction
			amount          string
			kind, direction string
		)

		err := rows.Scan(&t.ID, &t.WalletID, &t.EventID, &amount, &kind, &direction, &t.Description, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}

		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}

		t.Kind = ledger.Kind(kind)
		t.Direction = ledger.Direction(direction)
		out = append(out, t)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate wallet transactions: %w", err)
	}

	return out, nil
}
