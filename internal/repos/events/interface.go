package events

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrAlreadyDistributed = errors.New("event already distributed")
)

// Status is the event lifecycle: Draft -> Active -> Completed. Distribution
// is only legal on a Completed event, and the Distributed flag is a one-way
// terminal transition on top of Completed.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Event is a fundraising event whose budget gets split between the club
// commission and the participants' wallets. ClubID is resolved through the
// owning team.
type Event struct {
	ID             uuid.UUID
	TeamID         uuid.UUID
	ClubID         uuid.UUID
	Name           string
	TotalBudget    decimal.Decimal
	ClubPercentage decimal.Decimal
	Status         Status
	Distributed    bool
	CreatedAt      time.Time
}

// Participant links a user to an event. AmountEarned is written exactly once,
// at distribution time.
type Participant struct {
	EventID      uuid.UUID
	UserID       uuid.UUID
	AmountEarned *decimal.Decimal
}

type Events interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)

	// LockByID locks the event row for the length of the distribution
	// transaction, so two concurrent distributions of the same event
	// serialize on it.
	LockByID(tx *sql.Tx, id uuid.UUID) (*Event, error)
	ListParticipants(tx *sql.Tx, eventID uuid.UUID) ([]Participant, error)
	SetParticipantEarned(tx *sql.Tx, eventID, userID uuid.UUID, amount decimal.Decimal) error

	// MarkDistributed flips distributed to true, conditionally on it still
	// being false. Returns ErrAlreadyDistributed when the flag was already
	// set, as a second guard under weaker isolation.
	MarkDistributed(tx *sql.Tx, id uuid.UUID) error
}
