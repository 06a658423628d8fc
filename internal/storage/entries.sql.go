package storage

import (
	"context"
	"database/sql"
	"fmt"

	"casa/internal/core"
)

const incomeSelect = `
SELECT i.id, i.monthly_budget_id, i.category_id, c.name, i.description, i.amount_cents, i.created_at
FROM income_entries i
JOIN monthly_budgets b ON b.id = i.monthly_budget_id
JOIN categories c ON c.id = i.category_id`

func scanIncome(row rowScanner) (core.IncomeEntry, error) {
	var (
		e         core.IncomeEntry
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.BudgetID, &e.CategoryID, &e.CategoryName, &e.Description, &e.Amount.Cents, &createdAt); err != nil {
		return core.IncomeEntry{}, err
	}
	var err error
	e.CreatedAt, err = parseTime(createdAt)
	return e, err
}

const listIncome = incomeSelect + ` WHERE b.household_id = ? AND i.monthly_budget_id = ? ORDER BY i.created_at, i.id`

func (u *UnitOfWork) ListIncome(ctx context.Context, budgetID int64) ([]core.IncomeEntry, error) {
	rows, err := u.db.QueryContext(ctx, listIncome, u.householdID, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list income: %w", err)
	}
	defer rows.Close()
	var out []core.IncomeEntry
	for rows.Next() {
		e, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const getIncome = incomeSelect + ` WHERE b.household_id = ? AND i.id = ?`

func (u *UnitOfWork) GetIncome(ctx context.Context, id int64) (core.IncomeEntry, error) {
	e, err := scanIncome(u.db.QueryRowContext(ctx, getIncome, u.householdID, id))
	if err != nil {
		return core.IncomeEntry{}, notFound("get income", err)
	}
	return e, nil
}

const createIncome = `
INSERT INTO income_entries (monthly_budget_id, category_id, description, amount_cents, created_at)
SELECT id, ?, ?, ?, ? FROM monthly_budgets WHERE id = ? AND household_id = ?
RETURNING id`

func (u *UnitOfWork) CreateIncome(ctx context.Context, e core.IncomeEntry) (int64, error) {
	var id int64
	err := u.db.QueryRowContext(ctx, createIncome,
		e.CategoryID, e.Description, e.Amount.Cents, formatTime(nowFunc()), e.BudgetID, u.householdID).Scan(&id)
	if err != nil {
		return 0, notFound("create income", err)
	}
	return id, nil
}

const updateIncome = `
UPDATE income_entries SET category_id = ?, description = ?, amount_cents = ?
WHERE id = ? AND monthly_budget_id IN (SELECT id FROM monthly_budgets WHERE household_id = ?)`

func (u *UnitOfWork) UpdateIncome(ctx context.Context, e core.IncomeEntry) error {
	res, err := u.db.ExecContext(ctx, updateIncome, e.CategoryID, e.Description, e.Amount.Cents, e.ID, u.householdID)
	if err != nil {
		return fmt.Errorf("update income: %w", err)
	}
	return mustAffect(res, "update income")
}

const deleteIncome = `
DELETE FROM income_entries
WHERE id = ? AND monthly_budget_id IN (SELECT id FROM monthly_budgets WHERE household_id = ?)`

func (u *UnitOfWork) DeleteIncome(ctx context.Context, id int64) error {
	res, err := u.db.ExecContext(ctx, deleteIncome, id, u.householdID)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return mustAffect(res, "delete income")
}

// expenseSelect exposes the template's raw day_of_month as DueDay; callers clamp it to the period.
const expenseSelect = `
SELECT e.id, e.monthly_budget_id, e.category_id, c.name, e.description, e.amount_cents,
       e.is_paid, e.paid_at, e.source, e.savings_box_id, COALESCE(sb.name, ''),
       e.recurring_expense_id, e.savings_transaction_id, r.day_of_month, e.created_at
FROM expense_entries e
JOIN monthly_budgets b ON b.id = e.monthly_budget_id
JOIN categories c ON c.id = e.category_id
LEFT JOIN savings_boxes sb ON sb.id = e.savings_box_id
LEFT JOIN recurring_expenses r ON r.id = e.recurring_expense_id`

func scanExpense(row rowScanner) (core.ExpenseEntry, error) {
	var (
		e                        core.ExpenseEntry
		isPaid                   int64
		paidAt                   sql.NullString
		source                   string
		boxID, recurringID, txID sql.NullInt64
		dueDay                   sql.NullInt64
		createdAt                string
	)
	if err := row.Scan(&e.ID, &e.BudgetID, &e.CategoryID, &e.CategoryName, &e.Description, &e.Amount.Cents,
		&isPaid, &paidAt, &source, &boxID, &e.SavingsBoxName,
		&recurringID, &txID, &dueDay, &createdAt); err != nil {
		return core.ExpenseEntry{}, err
	}
	e.IsPaid = isPaid != 0
	e.Source = core.ExpenseSource(source)
	e.SavingsBoxID = int64Ptr(boxID)
	e.RecurringExpenseID = int64Ptr(recurringID)
	e.SavingsTransactionID = int64Ptr(txID)
	e.DueDay = intPtr(dueDay)
	var err error
	if e.PaidAt, err = parseNullTime(paidAt); err != nil {
		return core.ExpenseEntry{}, err
	}
	e.CreatedAt, err = parseTime(createdAt)
	return e, err
}

const listExpenses = expenseSelect + ` WHERE b.household_id = ? AND e.monthly_budget_id = ? ORDER BY e.created_at, e.id`

func (u *UnitOfWork) ListExpenses(ctx context.Context, budgetID int64) ([]core.ExpenseEntry, error) {
	rows, err := u.db.QueryContext(ctx, listExpenses, u.householdID, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()
	var out []core.ExpenseEntry
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const getExpense = expenseSelect + ` WHERE b.household_id = ? AND e.id = ?`

func (u *UnitOfWork) GetExpense(ctx context.Context, id int64) (core.ExpenseEntry, error) {
	e, err := scanExpense(u.db.QueryRowContext(ctx, getExpense, u.householdID, id))
	if err != nil {
		return core.ExpenseEntry{}, notFound("get expense", err)
	}
	return e, nil
}

const createExpense = `
INSERT INTO expense_entries (monthly_budget_id, category_id, description, amount_cents, is_paid, paid_at,
                             source, savings_box_id, recurring_expense_id, savings_transaction_id, created_at)
SELECT id, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? FROM monthly_budgets WHERE id = ? AND household_id = ?
RETURNING id`

// CreateExpense fails with ErrConflict when the template is already materialized in the budget.
func (u *UnitOfWork) CreateExpense(ctx context.Context, e core.ExpenseEntry) (int64, error) {
	var id int64
	err := u.db.QueryRowContext(ctx, createExpense,
		e.CategoryID, e.Description, e.Amount.Cents, boolInt(e.IsPaid), nullTime(e.PaidAt),
		string(e.Source), nullInt64(e.SavingsBoxID), nullInt64(e.RecurringExpenseID), nullInt64(e.SavingsTransactionID),
		formatTime(nowFunc()), e.BudgetID, u.householdID).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("recurring expense already in budget: %w", core.ErrConflict)
	}
	if err != nil {
		return 0, notFound("create expense", err)
	}
	return id, nil
}

const updateExpense = `
UPDATE expense_entries
SET category_id = ?, description = ?, amount_cents = ?, is_paid = ?, paid_at = ?,
    savings_box_id = ?, savings_transaction_id = ?
WHERE id = ? AND monthly_budget_id IN (SELECT id FROM monthly_budgets WHERE household_id = ?)`

func (u *UnitOfWork) UpdateExpense(ctx context.Context, e core.ExpenseEntry) error {
	res, err := u.db.ExecContext(ctx, updateExpense,
		e.CategoryID, e.Description, e.Amount.Cents, boolInt(e.IsPaid), nullTime(e.PaidAt),
		nullInt64(e.SavingsBoxID), nullInt64(e.SavingsTransactionID), e.ID, u.householdID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return mustAffect(res, "update expense")
}

const deleteExpense = `
DELETE FROM expense_entries
WHERE id = ? AND monthly_budget_id IN (SELECT id FROM monthly_budgets WHERE household_id = ?)`

func (u *UnitOfWork) DeleteExpense(ctx context.Context, id int64) error {
	res, err := u.db.ExecContext(ctx, deleteExpense, id, u.householdID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return mustAffect(res, "delete expense")
}

const recurringIDsInBudget = `
SELECT e.recurring_expense_id FROM expense_entries e
JOIN monthly_budgets b ON b.id = e.monthly_budget_id
WHERE b.household_id = ? AND e.monthly_budget_id = ? AND e.recurring_expense_id IS NOT NULL`

// RecurringIDsInBudget returns the templates already materialized in the budget.
func (u *UnitOfWork) RecurringIDsInBudget(ctx context.Context, budgetID int64) (map[int64]bool, error) {
	rows, err := u.db.QueryContext(ctx, recurringIDsInBudget, u.householdID, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list materialized templates: %w", err)
	}
	defer rows.Close()
	present := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan template id: %w", err)
		}
		present[id] = true
	}
	return present, rows.Err()
}
