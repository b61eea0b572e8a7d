package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/repos/wallets"
)

var _ wallets.Wallets = (*walletsRepo)(nil)

type walletsRepo struct{ db *sql.DB }

func New(db *sql.DB) *walletsRepo {
	return &walletsRepo{db: db}
}

const walletColumns = `id, user_id, team_id, current_amount, total_earned, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*wallets.Wallet, error) {
	var (
		w               wallets.Wallet
		current, earned string
	)

	err := row.Scan(&w.ID, &w.UserID, &w.TeamID, &current, &earned, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wallets.ErrWalletNotFound
		}

		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	w.CurrentAmount, err = decimal.NewFromString(current)
	if err != nil {
		return nil, fmt.Errorf("parse current_amount: %w", err)
	}

	w.TotalEarned, err = decimal.NewFromString(earned)
	if err != nil {
		return nil, fmt.Errorf("parse total_earned: %w", err)
	}

	return &w, nil
}

func (r *walletsRepo) GetByID(ctx context.Context, id uuid.UUID) (*wallets.Wallet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
	`, id)

	return scanWallet(row)
}

func (r *walletsRepo) GetByUserTeam(ctx context.Context, userID, teamID uuid.UUID) (*wallets.Wallet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1 AND team_id = $2
	`, userID, teamID)

	return scanWallet(row)
}

func (r *walletsRepo) Create(tx *sql.Tx, w *wallets.Wallet) error {
	_, err := tx.Exec(`
		INSERT INTO wallets (id, user_id, team_id, current_amount, total_earned)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric)
	`, w.ID, w.UserID, w.TeamID, w.CurrentAmount.StringFixed(2), w.TotalEarned.StringFixed(2))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation on (user_id, team_id)
			return wallets.ErrDuplicateWallet
		}

		return fmt.Errorf("insert wallet: %w", err)
	}

	return nil
}

func (r *walletsRepo) LockByID(tx *sql.Tx, id uuid.UUID) (*wallets.Wallet, error) {
	row := tx.QueryRow(`
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`, id)

	return scanWallet(row)
}

func (r *walletsRepo) LockByUserTeam(tx *sql.Tx, userID, teamID uuid.UUID) (*wallets.Wallet, error) {
	row := tx.QueryRow(`
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1 AND team_id = $2
		FOR UPDATE
	`, userID, teamID)

	return scanWallet(row)
}

func (r *walletsRepo) IncreaseBalance(tx *sql.Tx, id uuid.UUID, amount decimal.Decimal, earned bool) error {
	res, err := tx.Exec(`
		UPDATE wallets
		SET current_amount = current_amount + $2::numeric,
		    total_earned = total_earned + CASE WHEN $3 THEN $2::numeric ELSE 0 END,
		    updated_at = now()
		WHERE id = $1
	`, id, amount.StringFixed(2), earned)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return wallets.ErrWalletNotFound
	}

	return nil
}

func (r *walletsRepo) DecreaseBalance(tx *sql.Tx, id uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.Exec(`
		UPDATE wallets
		SET current_amount = current_amount - $2::numeric,
		    updated_at = now()
		WHERE id = $1
		  AND current_amount >= $2::numeric
	`, id, amount.StringFixed(2))
	if err != nil {
		return fmt.Errorf("decrease balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return wallets.ErrInsufficientFunds
	}

	return nil
}

func (r *walletsRepo) SetBalances(tx *sql.Tx, id uuid.UUID, current, totalEarned decimal.Decimal) error {
	res, err := tx.Exec(`
		UPDATE wallets
		SET current_amount = $2::numeric,
		    total_earned = $3::numeric,
		    updated_at = now()
		WHERE id = $1
	`, id, current.StringFixed(2), totalEarned.StringFixed(2))
	if err != nil {
		return fmt.Errorf("set balances: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return wallets.ErrWalletNotFound
	}

	return nil
}
