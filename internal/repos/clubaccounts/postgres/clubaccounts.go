package clubaccounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/repos/clubaccounts"
)

var _ clubaccounts.Accounts = (*accountsRepo)(nil)

type accountsRepo struct{ db *sql.DB }

func New(db *sql.DB) *accountsRepo {
	return &accountsRepo{db: db}
}

const accountColumns = `id, club_id, total_commission, current_balance, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*clubaccounts.Account, error) {
	var (
		a                   clubaccounts.Account
		commission, balance string
	)

	err := row.Scan(&a.ID, &a.ClubID, &commission, &balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, clubaccounts.ErrAccountNotFound
		}

		return nil, fmt.Errorf("scan club account: %w", err)
	}

	a.TotalCommission, err = decimal.NewFromString(commission)
	if err != nil {
		return nil, fmt.Errorf("parse total_commission: %w", err)
	}

	a.CurrentBalance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse current_balance: %w", err)
	}

	return &a, nil
}

func (r *accountsRepo) GetByClub(ctx context.Context, clubID uuid.UUID) (*clubaccounts.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM club_accounts
		WHERE club_id = $1
	`, clubID)

	return scanAccount(row)
}

func (r *accountsRepo) Create(tx *sql.Tx, a *clubaccounts.Account) error {
	_, err := tx.Exec(`
		INSERT INTO club_accounts (id, club_id, total_commission, current_balance)
		VALUES ($1, $2, $3::numeric, $4::numeric)
	`, a.ID, a.ClubID, a.TotalCommission.StringFixed(2), a.CurrentBalance.StringFixed(2))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return clubaccounts.ErrDuplicateAccount
		}

		return fmt.Errorf("insert club account: %w", err)
	}

	return nil
}

func (r *accountsRepo) LockByClub(tx *sql.Tx, clubID uuid.UUID) (*clubaccounts.Account, error) {
	row := tx.QueryRow(`
		SELECT `+accountColumns+`
		FROM club_accounts
		WHERE club_id = $1
		FOR UPDATE
	`, clubID)

	return scanAccount(row)
}

func (r *accountsRepo) IncreaseBalance(tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.Exec(`
		UPDATE club_accounts
		SET total_commission = total_commission + $2::numeric,
		    current_balance = current_balance + $2::numeric,
		    updated_at = now()
		WHERE id = $1
	`, id, amount.StringFixed(2))
	if err != nil {
		return fmt.Errorf("increase club balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return clubaccounts.ErrAccountNotFound
	}

	return nil
}

func (r *accountsRepo) InsertTransaction(tx *sql.Tx, t *clubaccounts.Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO club_account_transactions (id, account_id, event_id, amount, kind, description)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
	`, t.ID, t.AccountID, t.EventID, t.Amount.StringFixed(2), t.Kind, t.Description)
	if err != nil {
		return fmt.Errorf("insert club transaction: %w", err)
	}

	return nil
}

func (r *accountsRepo) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]clubaccounts.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, event_id, amount, kind, description, created_at
		FROM club_account_transactions
		WHERE account_id = $1
		ORDER BY created_at, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list club transactions: %w", err)
	}
	defer rows.Close()

	var out []clubaccounts.Transaction

	for rows.Next() {
		var (
			t      clubaccounts.Transaction
			amount string
		)

		err := rows.Scan(&t.ID, &t.AccountID, &t.EventID, &amount, &t.Kind, &t.Description, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan club transaction: %w", err)
		}

		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}

		out = append(out, t)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate club transactions: %w", err)
	}

	return out, nil
}
