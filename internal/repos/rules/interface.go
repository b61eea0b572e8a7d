package rules

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrRuleNotFound = errors.New("deduction rule not found")

// Kind says where the deducted money comes from. Wallet-funded rules consume
// the athlete's own earned balance and are always evaluated after every other
// kind.
type Kind string

const (
	KindWalletFunded Kind = "wallet_funded"
	KindOther        Kind = "other"
)

// Calculation is how the deduction amount is derived from the base amount.
type Calculation string

const (
	CalculationFixed      Calculation = "fixed"
	CalculationPercentage Calculation = "percentage"
)

// Rule is a configured reduction applicable to a scheduled payment. Owned by
// a team, consumed read-only by the deduction engine.
type Rule struct {
	ID          uuid.UUID
	TeamID      uuid.UUID
	Name        string
	Kind        Kind
	Calculation Calculation
	Value       decimal.Decimal
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	IsActive    bool
	IsAutomatic bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	CreatedAt   time.Time
}

type Rules interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	ListActiveForTeam(ctx context.Context, teamID uuid.UUID) ([]Rule, error)

	// Tx variants so payment creation reads the rule set inside the same
	// transaction that debits the wallet.
	GetByIDTx(tx *sql.Tx, id uuid.UUID) (*Rule, error)
	ListActiveForTeamTx(tx *sql.Tx, teamID uuid.UUID) ([]Rule, error)
}
