package storage

import (
	"context"
	"database/sql"
	"fmt"

	"casa/internal/core"
)

const recurringSelect = `
SELECT r.id, r.household_id, r.category_id, c.name, r.description, r.amount_cents, r.day_of_month, r.is_active, r.created_at
FROM recurring_expenses r
JOIN categories c ON c.id = r.category_id`

func scanRecurring(row rowScanner) (core.RecurringExpense, error) {
	var (
		r         core.RecurringExpense
		day       sql.NullInt64
		active    int64
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.HouseholdID, &r.CategoryID, &r.CategoryName, &r.Description, &r.Amount.Cents,
		&day, &active, &createdAt); err != nil {
		return core.RecurringExpense{}, err
	}
	r.DayOfMonth = intPtr(day)
	r.State = core.TemplateStateOf(active != 0)
	var err error
	r.CreatedAt, err = parseTime(createdAt)
	return r, err
}

func (u *UnitOfWork) queryRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringExpense, error) {
	rows, err := u.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	defer rows.Close()
	var out []core.RecurringExpense
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const listRecurring = recurringSelect + ` WHERE r.household_id = ? ORDER BY r.is_active DESC, r.description, r.id`

// ListRecurring returns active templates first, then by description.
func (u *UnitOfWork) ListRecurring(ctx context.Context) ([]core.RecurringExpense, error) {
	return u.queryRecurring(ctx, listRecurring, u.householdID)
}

const listActiveRecurring = recurringSelect + ` WHERE r.household_id = ? AND r.is_active = 1 ORDER BY r.created_at, r.id`

func (u *UnitOfWork) ListActiveRecurring(ctx context.Context) ([]core.RecurringExpense, error) {
	return u.queryRecurring(ctx, listActiveRecurring, u.householdID)
}

const getRecurring = recurringSelect + ` WHERE r.household_id = ? AND r.id = ?`

func (u *UnitOfWork) GetRecurring(ctx context.Context, id int64) (core.RecurringExpense, error) {
	r, err := scanRecurring(u.db.QueryRowContext(ctx, getRecurring, u.householdID, id))
	if err != nil {
		return core.RecurringExpense{}, notFound("get recurring expense", err)
	}
	return r, nil
}

const createRecurring = `
INSERT INTO recurring_expenses (household_id, category_id, description, amount_cents, day_of_month, is_active, created_at)
VALUES (?, ?, ?, ?, ?, 1, ?)
RETURNING id`

func (u *UnitOfWork) CreateRecurring(ctx context.Context, r core.RecurringExpense) (int64, error) {
	var id int64
	err := u.db.QueryRowContext(ctx, createRecurring,
		u.householdID, r.CategoryID, r.Description, r.Amount.Cents, nullInt(r.DayOfMonth), formatTime(nowFunc())).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create recurring expense: %w", err)
	}
	return id, nil
}

const updateRecurring = `
UPDATE recurring_expenses
SET category_id = ?, description = ?, amount_cents = ?, day_of_month = ?, is_active = ?
WHERE id = ? AND household_id = ?`

func (u *UnitOfWork) UpdateRecurring(ctx context.Context, r core.RecurringExpense) error {
	res, err := u.db.ExecContext(ctx, updateRecurring,
		r.CategoryID, r.Description, r.Amount.Cents, nullInt(r.DayOfMonth), boolInt(r.State.IsActive()), r.ID, u.householdID)
	if err != nil {
		return fmt.Errorf("update recurring expense: %w", err)
	}
	return mustAffect(res, "update recurring expense")
}
