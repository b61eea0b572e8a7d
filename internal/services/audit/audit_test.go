package audit

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/infra/pgtestutil"
	"github.com/sportsfund/treasury/internal/repos/ledger"
	"github.com/sportsfund/treasury/internal/services/wallet"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(kind ledger.Kind, dir ledger.Direction, amount string) ledger.Transaction {
	return ledger.Transaction{
		ID:        uuid.New(),
		WalletID:  uuid.New(),
		Amount:    d(amount),
		Kind:      kind,
		Direction: dir,
	}
}

func TestRecompute_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		txs             []ledger.Transaction
		wantCurrent     string
		wantTotalEarned string
	}{
		{
			name:            "empty_ledger",
			txs:             nil,
			wantCurrent:     "0.00",
			wantTotalEarned: "0.00",
		},
		{
			name: "earnings_only",
			txs: []ledger.Transaction{
				entry(ledger.KindEarning, ledger.DirectionCredit, "266.66"),
				entry(ledger.KindEarning, ledger.DirectionCredit, "100.00"),
			},
			wantCurrent:     "366.66",
			wantTotalEarned: "366.66",
		},
		{
			name: "usage_reduces_current_not_earned",
			txs: []ledger.Transaction{
				entry(ledger.KindEarning, ledger.DirectionCredit, "200.00"),
				entry(ledger.KindUsage, ledger.DirectionDebit, "50.00"),
			},
			wantCurrent:     "150.00",
			wantTotalEarned: "200.00",
		},
		{
			name: "adjustment_credit_counts_as_earned",
			txs: []ledger.Transaction{
				entry(ledger.KindEarning, ledger.DirectionCredit, "100.00"),
				entry(ledger.KindAdjustment, ledger.DirectionCredit, "25.00"),
			},
			wantCurrent:     "125.00",
			wantTotalEarned: "125.00",
		},
		{
			name: "adjustment_debit_reduces_current_only",
			txs: []ledger.Transaction{
				entry(ledger.KindEarning, ledger.DirectionCredit, "100.00"),
				entry(ledger.KindAdjustment, ledger.DirectionDebit, "30.00"),
			},
			wantCurrent:     "70.00",
			wantTotalEarned: "100.00",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current, totalEarned := Recompute(tt.txs)

			if got := current.StringFixed(2); got != tt.wantCurrent {
				t.Errorf("current: want %s, got %s", tt.wantCurrent, got)
			}
			if got := totalEarned.StringFixed(2); got != tt.wantTotalEarned {
				t.Errorf("total earned: want %s, got %s", tt.wantTotalEarned, got)
			}
		})
	}
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

func TestAuditor_ValidateAndRepair(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, teamID := seedMember(db, t)

	walletSrv := wallet.New(db)
	auditor := New(db)

	w, err := walletSrv.GetOrCreate(ctx, userID, teamID)
	if err != nil {
		t.Fatalf("get or create wallet: %v", err)
	}

	_, err = walletSrv.Credit(ctx, w.ID, d("120.50"), ledger.KindEarning, "seed earning", nil)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	_, err = walletSrv.Debit(ctx, w.ID, d("20.50"), "seed usage")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}

	report, err := auditor.Validate(ctx, w.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.Consistent() {
		t.Fatalf("fresh wallet must be consistent, issues: %+v", report.Issues)
	}

	// Corrupt the stored balance behind the ledger's back.
	_, err = db.Exec(`UPDATE wallets SET current_amount = 999.99 WHERE id = $1`, w.ID)
	if err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}

	report, err = auditor.Validate(ctx, w.ID)
	if err != nil {
		t.Fatalf("validate corrupted: %v", err)
	}
	if report.Consistent() {
		t.Fatal("corrupted wallet must not validate")
	}
	if report.Issues[0].Kind != IssueAmountMismatch {
		t.Fatalf("want amount mismatch, got %s", report.Issues[0].Kind)
	}
	if got := report.ExpectedAmount.StringFixed(2); got != "100.00" {
		t.Fatalf("expected amount: want 100.00, got %s", got)
	}

	repaired, err := auditor.Repair(ctx, w.ID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !repaired {
		t.Fatal("repair must report a change")
	}

	report, err = auditor.Validate(ctx, w.ID)
	if err != nil {
		t.Fatalf("validate after repair: %v", err)
	}
	if !report.Consistent() {
		t.Fatalf("wallet must be consistent after repair, issues: %+v", report.Issues)
	}

	// Repairing a consistent wallet is a no-op.
	repaired, err = auditor.Repair(ctx, w.ID)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if repaired {
		t.Fatal("second repair must be a no-op")
	}
}
