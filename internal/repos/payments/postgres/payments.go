package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/repos/payments"
)

var _ payments.Payments = (*paymentsRepo)(nil)

type paymentsRepo struct{ db *sql.DB }

func New(db *sql.DB) *paymentsRepo {
	return &paymentsRepo{db: db}
}

const paymentColumns = `id, user_id, team_id, schedule_id, base_amount, amount_paid,
	due_date, status, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*payments.Payment, error) {
	var (
		p            payments.Payment
		base, paid   string
		status       string
	)

	err := row.Scan(&p.ID, &p.UserID, &p.TeamID, &p.ScheduleID, &base, &paid,
		&p.DueDate, &status, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payments.ErrPaymentNotFound
		}

		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.BaseAmount, err = decimal.NewFromString(base)
	if err != nil {
		return nil, fmt.Errorf("parse base_amount: %w", err)
	}

	p.AmountPaid, err = decimal.NewFromString(paid)
	if err != nil {
		return nil, fmt.Errorf("parse amount_paid: %w", err)
	}

	p.Status = payments.Status(status)

	return &p, nil
}

func scanSchedule(row rowScanner) (*payments.Schedule, error) {
	var (
		s      payments.Schedule
		amount string
	)

	err := row.Scan(&s.ID, &s.TeamID, &s.Label, &amount, &s.DueDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payments.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	s.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse schedule amount: %w", err)
	}

	return &s, nil
}

const scheduleQuery = `
	SELECT id, team_id, label, amount, due_date
	FROM payment_schedules
	WHERE id = $1
`

func (r *paymentsRepo) GetByID(ctx context.Context, id uuid.UUID) (*payments.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM scheduled_payments
		WHERE id = $1
	`, id))
}

func (r *paymentsRepo) GetSchedule(ctx context.Context, id uuid.UUID) (*payments.Schedule, error) {
	return scanSchedule(r.db.QueryRowContext(ctx, scheduleQuery, id))
}

func (r *paymentsRepo) GetScheduleTx(tx *sql.Tx, id uuid.UUID) (*payments.Schedule, error) {
	return scanSchedule(tx.QueryRow(scheduleQuery, id))
}

func (r *paymentsRepo) Insert(tx *sql.Tx, p *payments.Payment) error {
	_, err := tx.Exec(`
		INSERT INTO scheduled_payments (id, user_id, team_id, schedule_id, base_amount, amount_paid, due_date, status, notes)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
	`, p.ID, p.UserID, p.TeamID, p.ScheduleID, p.BaseAmount.StringFixed(2), p.AmountPaid.StringFixed(2),
		p.DueDate, string(p.Status), p.Notes)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *paymentsRepo) LockByID(tx *sql.Tx, id uuid.UUID) (*payments.Payment, error) {
	return scanPayment(tx.QueryRow(`
		SELECT `+paymentColumns+`
		FROM scheduled_payments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *paymentsRepo) UpdateProgress(tx *sql.Tx, id uuid.UUID, amountPaid decimal.Decimal, status payments.Status, notes string) error {
	res, err := tx.Exec(`
		UPDATE scheduled_payments
		SET amount_paid = $2::numeric,
		    status = $3,
		    notes = $4,
		    updated_at = now()
		WHERE id = $1
	`, id, amountPaid.StringFixed(2), string(status), notes)
	if err != nil {
		return fmt.Errorf("update payment progress: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return payments.ErrPaymentNotFound
	}

	return nil
}

func (r *paymentsRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_payments
		SET status = $1,
		    updated_at = now()
		WHERE status = $2
		  AND due_date < $3
	`, string(payments.StatusOverdue), string(payments.StatusPending), asOf)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return affected, nil
}
