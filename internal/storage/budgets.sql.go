package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"casa/internal/core"
)

const budgetColumns = `id, household_id, year, month, status, bank_balance_cents, closed_at, created_at`

func scanBudget(row rowScanner) (core.MonthlyBudget, error) {
	var (
		b         core.MonthlyBudget
		status    string
		balance   sql.NullInt64
		closedAt  sql.NullString
		createdAt string
	)
	if err := row.Scan(&b.ID, &b.HouseholdID, &b.Year, &b.Month, &status, &balance, &closedAt, &createdAt); err != nil {
		return core.MonthlyBudget{}, err
	}
	b.Status = core.BudgetStatus(status)
	b.BankBalance = moneyPtr(balance)
	var err error
	if b.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return core.MonthlyBudget{}, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.MonthlyBudget{}, err
	}
	return b, nil
}

const ensureBudget = `
INSERT INTO monthly_budgets (household_id, year, month, status, created_at)
VALUES (?, ?, ?, 'open', ?)
ON CONFLICT (household_id, year, month) DO NOTHING`

// EnsureBudget creates the period row when absent. A concurrent creator is absorbed by the unique key.
func (u *UnitOfWork) EnsureBudget(ctx context.Context, p core.Period) error {
	if _, err := u.db.ExecContext(ctx, ensureBudget, u.householdID, p.Year, p.Month, formatTime(nowFunc())); err != nil {
		return fmt.Errorf("ensure budget %s: %w", p, err)
	}
	return nil
}

const markRecurringPopulated = `
UPDATE monthly_budgets SET recurring_populated_at = ?
WHERE id = ? AND household_id = ? AND recurring_populated_at IS NULL`

// MarkRecurringPopulated records that the budget has been populated from its templates.
// It reports whether this call set the marker, so only one caller wins a period.
func (u *UnitOfWork) MarkRecurringPopulated(ctx context.Context, budgetID int64) (bool, error) {
	res, err := u.db.ExecContext(ctx, markRecurringPopulated, formatTime(nowFunc()), budgetID, u.householdID)
	if err != nil {
		return false, fmt.Errorf("mark budget %d populated: %w", budgetID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark budget %d populated: rows affected: %w", budgetID, err)
	}
	return n == 1, nil
}

const getBudgetByPeriod = `SELECT ` + budgetColumns + ` FROM monthly_budgets WHERE household_id = ? AND year = ? AND month = ?`

func (u *UnitOfWork) GetBudgetByPeriod(ctx context.Context, p core.Period) (core.MonthlyBudget, error) {
	b, err := scanBudget(u.db.QueryRowContext(ctx, getBudgetByPeriod, u.householdID, p.Year, p.Month))
	if err != nil {
		return core.MonthlyBudget{}, notFound("get budget by period", err)
	}
	return b, nil
}

const getBudget = `SELECT ` + budgetColumns + ` FROM monthly_budgets WHERE id = ? AND household_id = ?`

func (u *UnitOfWork) GetBudget(ctx context.Context, id int64) (core.MonthlyBudget, error) {
	b, err := scanBudget(u.db.QueryRowContext(ctx, getBudget, id, u.householdID))
	if err != nil {
		return core.MonthlyBudget{}, notFound("get budget", err)
	}
	return b, nil
}

const listBudgets = `SELECT ` + budgetColumns + ` FROM monthly_budgets WHERE household_id = ? ORDER BY year DESC, month DESC`

func (u *UnitOfWork) ListBudgets(ctx context.Context) ([]core.MonthlyBudget, error) {
	rows, err := u.db.QueryContext(ctx, listBudgets, u.householdID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()
	var out []core.MonthlyBudget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const setBankBalance = `UPDATE monthly_budgets SET bank_balance_cents = ? WHERE id = ? AND household_id = ? AND status = 'open'`

func (u *UnitOfWork) SetBankBalance(ctx context.Context, id int64, balance core.Money) error {
	res, err := u.db.ExecContext(ctx, setBankBalance, balance.Cents, id, u.householdID)
	if err != nil {
		return fmt.Errorf("set bank balance: %w", err)
	}
	return mustAffect(res, "set bank balance")
}

const closeBudget = `
UPDATE monthly_budgets SET status = 'closed', closed_at = ?
WHERE id = ? AND household_id = ? AND status = 'open' AND bank_balance_cents IS NOT NULL`

func (u *UnitOfWork) CloseBudget(ctx context.Context, id int64, at time.Time) error {
	res, err := u.db.ExecContext(ctx, closeBudget, formatTime(at), id, u.householdID)
	if err != nil {
		return fmt.Errorf("close budget: %w", err)
	}
	return mustAffect(res, "close budget")
}

const reopenBudget = `
UPDATE monthly_budgets SET status = 'open', closed_at = NULL
WHERE id = ? AND household_id = ? AND status = 'closed'`

func (u *UnitOfWork) ReopenBudget(ctx context.Context, id int64) error {
	res, err := u.db.ExecContext(ctx, reopenBudget, id, u.householdID)
	if err != nil {
		return fmt.Errorf("reopen budget: %w", err)
	}
	return mustAffect(res, "reopen budget")
}
