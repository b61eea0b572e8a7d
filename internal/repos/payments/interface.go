package payments

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrScheduleNotFound = errors.New("payment schedule not found")
)

// Status of a scheduled payment, recomputed from amount_paid vs base_amount
// every time the payment progresses.
type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Schedule is the membership fee template a payment is created from.
type Schedule struct {
	ID      uuid.UUID
	TeamID  uuid.UUID
	Label   string
	Amount  decimal.Decimal
	DueDate time.Time
}

// Payment is one scheduled membership payment for a user. It references the
// user's wallet indirectly (user, team) but never owns it.
type Payment struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TeamID     uuid.UUID
	ScheduleID uuid.UUID
	BaseAmount decimal.Decimal
	AmountPaid decimal.Decimal
	DueDate    time.Time
	Status     Status
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Payments interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error)
	GetScheduleTx(tx *sql.Tx, id uuid.UUID) (*Schedule, error)

	Insert(tx *sql.Tx, p *Payment) error
	LockByID(tx *sql.Tx, id uuid.UUID) (*Payment, error)
	// UpdateProgress persists a new amount_paid / status / notes triple.
	UpdateProgress(tx *sql.Tx, id uuid.UUID, amountPaid decimal.Decimal, status Status, notes string) error

	// MarkOverdue flips pending payments whose due date has passed. Returns
	// the number of payments flipped.
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}
