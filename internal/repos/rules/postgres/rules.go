package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/repos/rules"
)

var _ rules.Rules = (*rulesRepo)(nil)

type rulesRepo struct{ db *sql.DB }

func New(db *sql.DB) *rulesRepo {
	return &rulesRepo{db: db}
}

const ruleColumns = `id, team_id, name, kind, calculation, value, min_amount, max_amount,
	is_active, is_automatic, valid_from, valid_until, created_at`

const activeForTeamQuery = `
	SELECT ` + ruleColumns + `
	FROM deduction_rules
	WHERE team_id = $1 AND is_active
	ORDER BY created_at, id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*rules.Rule, error) {
	var (
		r                rules.Rule
		value            string
		minAmt, maxAmt   sql.NullString
		kind, calc       string
		validFrom, until sql.NullTime
	)

	err := row.Scan(&r.ID, &r.TeamID, &r.Name, &kind, &calc, &value, &minAmt, &maxAmt,
		&r.IsActive, &r.IsAutomatic, &validFrom, &until, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rules.ErrRuleNotFound
		}

		return nil, fmt.Errorf("scan rule: %w", err)
	}

	r.Kind = rules.Kind(kind)
	r.Calculation = rules.Calculation(calc)

	r.Value, err = decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}

	if minAmt.Valid {
		d, perr := decimal.NewFromString(minAmt.String)
		if perr != nil {
			return nil, fmt.Errorf("parse min_amount: %w", perr)
		}
		r.MinAmount = &d
	}

	if maxAmt.Valid {
		d, perr := decimal.NewFromString(maxAmt.String)
		if perr != nil {
			return nil, fmt.Errorf("parse max_amount: %w", perr)
		}
		r.MaxAmount = &d
	}

	if validFrom.Valid {
		t := validFrom.Time
		r.ValidFrom = &t
	}

	if until.Valid {
		t := until.Time
		r.ValidUntil = &t
	}

	return &r, nil
}

func (r *rulesRepo) GetByID(ctx context.Context, id uuid.UUID) (*rules.Rule, error) {
	return scanRule(r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM deduction_rules
		WHERE id = $1
	`, id))
}

func (r *rulesRepo) GetByIDTx(tx *sql.Tx, id uuid.UUID) (*rules.Rule, error) {
	return scanRule(tx.QueryRow(`
		SELECT `+ruleColumns+`
		FROM deduction_rules
		WHERE id = $1
	`, id))
}

func (r *rulesRepo) ListActiveForTeam(ctx context.Context, teamID uuid.UUID) ([]rules.Rule, error) {
	rows, err := r.db.QueryContext(ctx, activeForTeamQuery, teamID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

func (r *rulesRepo) ListActiveForTeamTx(tx *sql.Tx, teamID uuid.UUID) ([]rules.Rule, error) {
	rows, err := tx.Query(activeForTeamQuery, teamID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

func collect(rows *sql.Rows) ([]rules.Rule, error) {
	var out []rules.Rule

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, *rule)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	return out, nil
}
