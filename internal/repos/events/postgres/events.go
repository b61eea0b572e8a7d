package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/repos/events"
)

var _ events.Events = (*eventsRepo)(nil)

type eventsRepo struct{ db *sql.DB }

func New(db *sql.DB) *eventsRepo {
	return &eventsRepo{db: db}
}

const eventQuery = `
	SELECT e.id, e.team_id, t.club_id, e.name, e.total_budget, e.club_percentage,
	       e.status, e.distributed, e.created_at
	FROM events e
	JOIN teams t ON t.id = e.team_id
	WHERE e.id = $1
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*events.Event, error) {
	var (
		e           events.Event
		budget, pct string
		status      string
	)

	err := row.Scan(&e.ID, &e.TeamID, &e.ClubID, &e.Name, &budget, &pct, &status, &e.Distributed, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, events.ErrEventNotFound
		}

		return nil, fmt.Errorf("scan event: %w", err)
	}

	e.TotalBudget, err = decimal.NewFromString(budget)
	if err != nil {
		return nil, fmt.Errorf("parse total_budget: %w", err)
	}

	e.ClubPercentage, err = decimal.NewFromString(pct)
	if err != nil {
		return nil, fmt.Errorf("parse club_percentage: %w", err)
	}

	e.Status = events.Status(status)

	return &e, nil
}

func (r *eventsRepo) GetByID(ctx context.Context, id uuid.UUID) (*events.Event, error) {
	return scanEvent(r.db.QueryRowContext(ctx, eventQuery, id))
}

func (r *eventsRepo) LockByID(tx *sql.Tx, id uuid.UUID) (*events.Event, error) {
	// FOR UPDATE OF e: only the event row needs locking, not the team.
	return scanEvent(tx.QueryRow(eventQuery+` FOR UPDATE OF e`, id))
}

func (r *eventsRepo) ListParticipants(tx *sql.Tx, eventID uuid.UUID) ([]events.Participant, error) {
	rows, err := tx.Query(`
		SELECT event_id, user_id, amount_earned
		FROM event_participants
		WHERE event_id = $1
		ORDER BY user_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []events.Participant

	for rows.Next() {
		var (
			p      events.Participant
			earned sql.NullString
		)

		err := rows.Scan(&p.EventID, &p.UserID, &earned)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}

		if earned.Valid {
			d, perr := decimal.NewFromString(earned.String)
			if perr != nil {
				return nil, fmt.Errorf("parse amount_earned: %w", perr)
			}
			p.AmountEarned = &d
		}

		out = append(out, p)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	return out, nil
}

func (r *eventsRepo) SetParticipantEarned(tx *sql.Tx, eventID, userID uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.Exec(`
		UPDATE event_participants
		SET amount_earned = $3::numeric
		WHERE event_id = $1 AND user_id = $2
	`, eventID, userID, amount.StringFixed(2))
	if err != nil {
		return fmt.Errorf("set participant earned: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("participant %s not found on event %s", userID, eventID)
	}

	return nil
}

func (r *eventsRepo) MarkDistributed(tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.Exec(`
		UPDATE events
		SET distributed = TRUE
		WHERE id = $1
		  AND distributed = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("mark distributed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return events.ErrAlreadyDistributed
	}

	return nil
}
