package distribution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sportsfund/treasury/internal/infra/pgtestutil"
	"github.com/sportsfund/treasury/internal/repos/events"
	"github.com/sportsfund/treasury/internal/services/clubaccount"
	"github.com/sportsfund/treasury/internal/services/wallet"
)

type eventSeed struct {
	clubID       uuid.UUID
	teamID       uuid.UUID
	eventID      uuid.UUID
	participants []uuid.UUID
}

func seedEvent(db *sql.DB, t *testing.T, budget, percentage, status string, participants int) eventSeed {
	t.Helper()

	s := eventSeed{
		clubID:  uuid.New(),
		teamID:  uuid.New(),
		eventID: uuid.New(),
	}

	_, err := db.Exec(`INSERT INTO clubs (id, name) VALUES ($1, 'Test Club')`, s.clubID)
	if err != nil {
		t.Fatalf("seed club: %v", err)
	}
	_, err = db.Exec(`INSERT INTO teams (id, club_id, name) VALUES ($1, $2, 'Test Team')`, s.teamID, s.clubID)
	if err != nil {
		t.Fatalf("seed team: %v", err)
	}
	_, err = db.Exec(`
		INSERT INTO events (id, team_id, name, total_budget, club_percentage, status)
		VALUES ($1, $2, 'Spring Tournament', $3::numeric, $4::numeric, $5)
	`, s.eventID, s.teamID, budget, percentage, status)
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}

	for i := 0; i < participants; i++ {
		userID := uuid.New()
		_, err = db.Exec(`INSERT INTO users (id, name, email) VALUES ($1, 'Participant', $2)`,
			userID, fmt.Sprintf("%s@example.com", userID))
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		_, err = db.Exec(`INSERT INTO event_participants (event_id, user_id) VALUES ($1, $2)`,
			s.eventID, userID)
		if err != nil {
			t.Fatalf("seed participant: %v", err)
		}
		s.participants = append(s.participants, userID)
	}

	return s
}

func newService(db *sql.DB) (*Service, *wallet.Service, *clubaccount.Service) {
	walletSrv := wallet.New(db)
	clubSrv := clubaccount.New(db)

	return New(db, walletSrv, clubSrv), walletSrv, clubSrv
}

func TestService_Distribute(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seed := seedEvent(db, t, "1000.00", "20.00", "completed", 3)
	srv, walletSrv, clubSrv := newService(db)

	summary, err := srv.Distribute(ctx, seed.eventID)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}

	if summary.ClubCommission.StringFixed(2) != "200.00" {
		t.Errorf("commission: want 200.00, got %s", summary.ClubCommission.StringFixed(2))
	}
	if summary.AmountPerParticipant.StringFixed(2) != "266.66" {
		t.Errorf("per participant: want 266.66, got %s", summary.AmountPerParticipant.StringFixed(2))
	}
	if summary.Residual.StringFixed(2) != "0.02" {
		t.Errorf("residual: want 0.02, got %s", summary.Residual.StringFixed(2))
	}
	if len(summary.Participants) != 3 {
		t.Fatalf("want 3 participant results, got %d", len(summary.Participants))
	}

	// Club account received the commission.
	account, err := clubSrv.Get(ctx, seed.clubID)
	if err != nil {
		t.Fatalf("get club account: %v", err)
	}
	if account.CurrentBalance.StringFixed(2) != "200.00" {
		t.Errorf("club balance: want 200.00, got %s", account.CurrentBalance.StringFixed(2))
	}

	// Every participant wallet got exactly one share.
	for _, userID := range seed.participants {
		w, werr := walletSrv.Get(ctx, userID, seed.teamID)
		if werr != nil {
			t.Fatalf("get wallet for %s: %v", userID, werr)
		}
		if w.CurrentAmount.StringFixed(2) != "266.66" {
			t.Errorf("wallet %s: want 266.66, got %s", w.ID, w.CurrentAmount.StringFixed(2))
		}
		if w.TotalEarned.StringFixed(2) != "266.66" {
			t.Errorf("wallet %s earned: want 266.66, got %s", w.ID, w.TotalEarned.StringFixed(2))
		}
	}

	// The event row records the outcome.
	ev, err := srv.Event(ctx, seed.eventID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if !ev.Distributed {
		t.Error("event must be marked distributed")
	}
}

func TestService_Distribute_Twice(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seed := seedEvent(db, t, "600.00", "10.00", "completed", 2)
	srv, walletSrv, _ := newService(db)

	_, err := srv.Distribute(ctx, seed.eventID)
	if err != nil {
		t.Fatalf("first distribute: %v", err)
	}

	_, err = srv.Distribute(ctx, seed.eventID)
	if !errors.Is(err, events.ErrAlreadyDistributed) {
		t.Fatalf("second distribute: want ErrAlreadyDistributed, got %v", err)
	}

	// Balances unchanged by the failed second run.
	w, err := walletSrv.Get(ctx, seed.participants[0], seed.teamID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.CurrentAmount.StringFixed(2) != "270.00" {
		t.Fatalf("wallet after double distribute: want 270.00, got %s", w.CurrentAmount.StringFixed(2))
	}
}

func TestService_Distribute_Preconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       string
		participants int
		wantErr      error
	}{
		{
			name:         "draft_event_rejected",
			status:       "draft",
			participants: 2,
			wantErr:      ErrEventNotCompleted,
		},
		{
			name:         "active_event_rejected",
			status:       "active",
			participants: 2,
			wantErr:      ErrEventNotCompleted,
		},
		{
			name:         "no_participants_rejected",
			status:       "completed",
			participants: 0,
			wantErr:      ErrNoParticipants,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			seed := seedEvent(db, t, "500.00", "20.00", tt.status, tt.participants)
			srv, _, _ := newService(db)

			_, err := srv.Distribute(ctx, seed.eventID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestService_Distribute_MissingEvent(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv, _, _ := newService(db)

	_, err := srv.Distribute(ctx, uuid.New())
	if !errors.Is(err, events.ErrEventNotFound) {
		t.Fatalf("want ErrEventNotFound, got %v", err)
	}
}
