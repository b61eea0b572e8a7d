// Package distribution implements the one-time atomic split of a completed
// event's budget into a club commission and equal participant earnings.
package distribution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/infra/pgutils"
	"github.com/sportsfund/treasury/internal/repos/events"
	pgevents "github.com/sportsfund/treasury/internal/repos/events/postgres"
	"github.com/sportsfund/treasury/internal/repos/ledger"
	"github.com/sportsfund/treasury/internal/services/clubaccount"
	"github.com/sportsfund/treasury/internal/services/wallet"
)

var (
	ErrEventNotCompleted = errors.New("event is not completed")
	ErrNoParticipants    = errors.New("event has no participants")
)

// ParticipantResult is the per-user outcome of a distribution, enough for the
// caller to build notifications from.
type ParticipantResult struct {
	UserID   uuid.UUID
	WalletID uuid.UUID
	Amount   decimal.Decimal
}

// Summary describes a completed distribution.
type Summary struct {
	EventID              uuid.UUID
	EventName            string
	TotalBudget          decimal.Decimal
	ClubCommission       decimal.Decimal
	AvailableAmount      decimal.Decimal
	AmountPerParticipant decimal.Decimal
	Residual             decimal.Decimal
	Participants         []ParticipantResult
}

type Service struct {
	db      *sql.DB
	events  events.Events
	wallets *wallet.Service
	clubs   *clubaccount.Service
}

func New(db *sql.DB, wallets *wallet.Service, clubs *clubaccount.Service) *Service {
	return &Service{
		db:      db,
		events:  pgevents.New(db),
		wallets: wallets,
		clubs:   clubs,
	}
}

// Distribute splits the event budget and credits the club account and every
// participant wallet, all inside one transaction. Preconditions are checked
// under the event row lock before any mutation; a second call on the same
// event fails with events.ErrAlreadyDistributed and changes nothing.
func (s *Service) Distribute(ctx context.Context, eventID uuid.UUID) (*Summary, error) {
	var summary *Summary

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		ev, err := s.events.LockByID(tx, eventID)
		if err != nil {
			return err
		}

		if ev.Distributed {
			return events.ErrAlreadyDistributed
		}
		if ev.Status != events.StatusCompleted {
			return ErrEventNotCompleted
		}

		participants, err := s.events.ListParticipants(tx, eventID)
		if err != nil {
			return err
		}
		if len(participants) == 0 {
			return ErrNoParticipants
		}

		split, err := SplitBudget(ev.TotalBudget, ev.ClubPercentage, len(participants))
		if err != nil {
			return err
		}

		if split.ClubCommission.IsPositive() {
			account, err := s.clubs.GetOrCreateTx(tx, ev.ClubID)
			if err != nil {
				return err
			}

			description := fmt.Sprintf("commission for event %q", ev.Name)
			_, err = s.clubs.AddCommissionTx(tx, account, split.ClubCommission, &ev.ID, description)
			if err != nil {
				return err
			}
		}

		results := make([]ParticipantResult, 0, len(participants))
		description := fmt.Sprintf("earnings from event %q", ev.Name)

		for _, p := range participants {
			w, err := s.wallets.GetOrCreateTx(tx, p.UserID, ev.TeamID)
			if err != nil {
				return err
			}

			if split.AmountPerParticipant.IsPositive() {
				_, err = s.wallets.CreditTx(tx, w, split.AmountPerParticipant, ledger.KindEarning, description, &ev.ID)
				if err != nil {
					return err
				}
			}

			err = s.events.SetParticipantEarned(tx, ev.ID, p.UserID, split.AmountPerParticipant)
			if err != nil {
				return err
			}

			results = append(results, ParticipantResult{
				UserID:   p.UserID,
				WalletID: w.ID,
				Amount:   split.AmountPerParticipant,
			})
		}

		err = s.events.MarkDistributed(tx, ev.ID)
		if err != nil {
			return err
		}

		summary = &Summary{
			EventID:              ev.ID,
			EventName:            ev.Name,
			TotalBudget:          ev.TotalBudget,
			ClubCommission:       split.ClubCommission,
			AvailableAmount:      split.AvailableAmount,
			AmountPerParticipant: split.AmountPerParticipant,
			Residual:             split.Residual,
			Participants:         results,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("event distributed",
		"event_id", summary.EventID,
		"total_budget", summary.TotalBudget.StringFixed(2),
		"commission", summary.ClubCommission.StringFixed(2),
		"per_participant", summary.AmountPerParticipant.StringFixed(2),
		"participants", len(summary.Participants),
		"residual", summary.Residual.StringFixed(2))

	return summary, nil
}

// Event exposes an event for the serving layer.
func (s *Service) Event(ctx context.Context, eventID uuid.UUID) (*events.Event, error) {
	return s.events.GetByID(ctx, eventID)
}
