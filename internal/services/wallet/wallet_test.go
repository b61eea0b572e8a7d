package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/infra/pgtestutil"
	"github.com/sportsfund/treasury/internal/repos/ledger"
	"github.com/sportsfund/treasury/internal/repos/wallets"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedMember(db *sql.DB, t *testing.T) (userID, teamID uuid.UUID) {
	t.Helper()

	clubID := uuid.New()
	teamID = uuid.New()
	userID = uuid.New()

	_, err := db.Exec(`INSERT INTO clubs (id, name) VALUES ($1, 'Test Club')`, clubID)
	if err != nil {
		t.Fatalf("seed club: %v", err)
	}
	_, err = db.Exec(`INSERT INTO teams (id, club_id, name) VALUES ($1, $2, 'Test Team')`, teamID, clubID)
	if err != nil {
		t.Fatalf("seed team: %v", err)
	}
	_, err = db.Exec(`INSERT INTO users (id, name, email) VALUES ($1, 'Test User', $2)`,
		userID, fmt.Sprintf("%s@example.com", userID))
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return userID, teamID
}

func TestService_GetOrCreate_Idempotent(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, teamID := seedMember(db, t)
	srv := New(db)

	first, err := srv.GetOrCreate(ctx, userID, teamID)
	if err != nil {
		t.Fatalf("first get or create: %v", err)
	}
	if !first.CurrentAmount.IsZero() || !first.TotalEarned.IsZero() {
		t.Fatalf("fresh wallet must be empty, got %+v", first)
	}

	second, err := srv.GetOrCreate(ctx, userID, teamID)
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("same (user, team) must map to the same wallet: %s vs %s", first.ID, second.ID)
	}
}

func TestService_CreditDebit_LedgerAndBalances(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, teamID := seedMember(db, t)
	srv := New(db)

	w, err := srv.GetOrCreate(ctx, userID, teamID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}

	w, err = srv.Credit(ctx, w.ID, d("266.66"), ledger.KindEarning, "tournament earnings", nil)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if w.CurrentAmount.StringFixed(2) != "266.66" || w.TotalEarned.StringFixed(2) != "266.66" {
		t.Fatalf("after credit: got current=%s earned=%s",
			w.CurrentAmount.StringFixed(2), w.TotalEarned.StringFixed(2))
	}

	w, err = srv.Debit(ctx, w.ID, d("66.66"), "membership deduction")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if w.CurrentAmount.StringFixed(2) != "200.00" {
		t.Fatalf("after debit: want 200.00, got %s", w.CurrentAmount.StringFixed(2))
	}
	if w.TotalEarned.StringFixed(2) != "266.66" {
		t.Fatalf("debit must not touch total earned, got %s", w.TotalEarned.StringFixed(2))
	}

	// Overdraw fails and changes nothing.
	_, err = srv.Debit(ctx, w.ID, d("500.00"), "too much")
	if !errors.Is(err, wallets.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	txs, err := srv.Transactions(ctx, w.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("want 2 ledger entries, got %d", len(txs))
	}
	if txs[0].Kind != ledger.KindEarning || txs[0].Direction != ledger.DirectionCredit {
		t.Errorf("first entry: want earning credit, got %s %s", txs[0].Kind, txs[0].Direction)
	}
	if txs[1].Kind != ledger.KindUsage || txs[1].Direction != ledger.DirectionDebit {
		t.Errorf("second entry: want usage debit, got %s %s", txs[1].Kind, txs[1].Direction)
	}
}

func TestService_Credit_RejectsNonPositive(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, teamID := seedMember(db, t)
	srv := New(db)

	w, err := srv.GetOrCreate(ctx, userID, teamID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}

	for _, amount := range []string{"0", "-5"} {
		_, err = srv.Credit(ctx, w.ID, d(amount), ledger.KindEarning, "bad", nil)
		if !errors.Is(err, ErrNonPositiveAmount) {
			t.Errorf("amount %s: want ErrNonPositiveAmount, got %v", amount, err)
		}
	}
}

func TestService_Adjust_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		seedCredit      string
		adjust          string
		wantBalance     string
		wantTotalEarned string
		wantEntries     int
	}{
		{
			name:            "positive_adjustment_counts_as_earned",
			seedCredit:      "100.00",
			adjust:          "25.00",
			wantBalance:     "125.00",
			wantTotalEarned: "125.00",
			wantEntries:     2,
		},
		{
			name:            "negative_adjustment_reduces_balance_only",
			seedCredit:      "100.00",
			adjust:          "-30.00",
			wantBalance:     "70.00",
			wantTotalEarned: "100.00",
			wantEntries:     2,
		},
		{
			name:            "negative_adjustment_floors_at_zero",
			seedCredit:      "20.00",
			adjust:          "-50.00",
			wantBalance:     "0.00",
			wantTotalEarned: "20.00",
			wantEntries:     2,
		},
		{
			name:            "negative_adjustment_on_empty_wallet_is_noop",
			seedCredit:      "",
			adjust:          "-10.00",
			wantBalance:     "0.00",
			wantTotalEarned: "0.00",
			wantEntries:     0,
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

			userID, teamID := seedMember(db, t)
			srv := New(db)

			w, err := srv.GetOrCreate(ctx, userID, teamID)
			if err != nil {
				t.Fatalf("get or create: %v", err)
			}

			if tt.seedCredit != "" {
				_, err = srv.Credit(ctx, w.ID, d(tt.seedCredit), ledger.KindEarning, "seed", nil)
				if err != nil {
					t.Fatalf("seed credit: %v", err)
				}
			}

			got, err := srv.Adjust(ctx, w.ID, d(tt.adjust), "correction", "treasurer")
			if err != nil {
				t.Fatalf("adjust: %v", err)
			}

			if got.CurrentAmount.StringFixed(2) != tt.wantBalance {
				t.Errorf("balance: want %s, got %s", tt.wantBalance, got.CurrentAmount.StringFixed(2))
			}
			if got.TotalEarned.StringFixed(2) != tt.wantTotalEarned {
				t.Errorf("total earned: want %s, got %s", tt.wantTotalEarned, got.TotalEarned.StringFixed(2))
			}

			txs, err := srv.Transactions(ctx, w.ID)
			if err != nil {
				t.Fatalf("list transactions: %v", err)
			}
			if len(txs) != tt.wantEntries {
				t.Errorf("ledger entries: want %d, got %d", tt.wantEntries, len(txs))
			}
		})
	}
}

func TestService_Adjust_RejectsZero(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, teamID := seedMember(db, t)
	srv := New(db)

	w, err := srv.GetOrCreate(ctx, userID, teamID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}

	_, err = srv.Adjust(ctx, w.ID, decimal.Zero, "nothing", "treasurer")
	if !errors.Is(err, ErrZeroAdjustment) {
		t.Fatalf("want ErrZeroAdjustment, got %v", err)
	}
}

// Two concurrent debits against a balance that only covers one: exactly one
// succeeds, and the ledger records exactly one usage entry.
func TestService_Debit_Concurrent(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, teamID := seedMember(db, t)
	srv := New(db)

	w, err := srv.GetOrCreate(ctx, userID, teamID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	_, err = srv.Credit(ctx, w.ID, d("100.00"), ledger.KindEarning, "seed", nil)
	if err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	success, insufficient := 0, 0

	worker := func() {
		defer wg.Done()

		_, derr := srv.Debit(context.Background(), w.ID, d("100.00"), "race")
		mu.Lock()
		defer mu.Unlock()

		switch {
		case derr == nil:
			success++
		case errors.Is(derr, wallets.ErrInsufficientFunds):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", derr)
		}
	}

	wg.Add(2)
	go worker()
	go worker()
	wg.Wait()

	if success != 1 || insufficient != 1 {
		t.Fatalf("want 1 success and 1 insufficient, got success=%d insufficient=%d", success, insufficient)
	}

	txs, err := srv.Transactions(ctx, w.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}

	usage := 0
	for _, tx := range txs {
		if tx.Kind == ledger.KindUsage {
			usage++
		}
	}
	if usage != 1 {
		t.Fatalf("want exactly 1 usage entry, got %d", usage)
	}
}
