package storage

import (
	"context"
	"database/sql"
	"fmt"

	"casa/internal/core"
)

const boxColumns = `id, household_id, name, balance_cents, monthly_target_cents, goal_amount_cents, icon, color, created_at`

func scanBox(row rowScanner) (core.SavingsBox, error) {
	var (
		b            core.SavingsBox
		target, goal sql.NullInt64
		icon, color  sql.NullString
		createdAt    string
	)
	if err := row.Scan(&b.ID, &b.HouseholdID, &b.Name, &b.Balance.Cents, &target, &goal, &icon, &color, &createdAt); err != nil {
		return core.SavingsBox{}, err
	}
	b.MonthlyTarget, b.GoalAmount = moneyPtr(target), moneyPtr(goal)
	b.Icon, b.Color = stringPtr(icon), stringPtr(color)
	var err error
	b.CreatedAt, err = parseTime(createdAt)
	return b, err
}

const listBoxes = `SELECT ` + boxColumns + ` FROM savings_boxes WHERE household_id = ? ORDER BY name, id`

func (u *UnitOfWork) ListBoxes(ctx context.Context) ([]core.SavingsBox, error) {
	rows, err := u.db.QueryContext(ctx, listBoxes, u.householdID)
	if err != nil {
		return nil, fmt.Errorf("list savings boxes: %w", err)
	}
	defer rows.Close()
	var out []core.SavingsBox
	for rows.Next() {
		b, err := scanBox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan savings box: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const getBox = `SELECT ` + boxColumns + ` FROM savings_boxes WHERE id = ? AND household_id = ?`

func (u *UnitOfWork) GetBox(ctx context.Context, id int64) (core.SavingsBox, error) {
	b, err := scanBox(u.db.QueryRowContext(ctx, getBox, id, u.householdID))
	if err != nil {
		return core.SavingsBox{}, notFound("get savings box", err)
	}
	return b, nil
}

const createBox = `
INSERT INTO savings_boxes (household_id, name, balance_cents, monthly_target_cents, goal_amount_cents, icon, color, created_at)
VALUES (?, ?, 0, ?, ?, ?, ?, ?)
RETURNING ` + boxColumns

// CreateBox always starts at a zero balance.
func (u *UnitOfWork) CreateBox(ctx context.Context, b core.SavingsBox) (core.SavingsBox, error) {
	created, err := scanBox(u.db.QueryRowContext(ctx, createBox,
		u.householdID, b.Name, nullMoney(b.MonthlyTarget), nullMoney(b.GoalAmount),
		nullString(b.Icon), nullString(b.Color), formatTime(nowFunc())))
	if err != nil {
		return core.SavingsBox{}, fmt.Errorf("create savings box: %w", err)
	}
	return created, nil
}

const updateBox = `
UPDATE savings_boxes SET name = ?, monthly_target_cents = ?, goal_amount_cents = ?, icon = ?, color = ?
WHERE id = ? AND household_id = ?`

// UpdateBox never touches the balance.
func (u *UnitOfWork) UpdateBox(ctx context.Context, b core.SavingsBox) error {
	res, err := u.db.ExecContext(ctx, updateBox,
		b.Name, nullMoney(b.MonthlyTarget), nullMoney(b.GoalAmount), nullString(b.Icon), nullString(b.Color),
		b.ID, u.householdID)
	if err != nil {
		return fmt.Errorf("update savings box: %w", err)
	}
	return mustAffect(res, "update savings box")
}

const deleteEmptyBox = `DELETE FROM savings_boxes WHERE id = ? AND household_id = ? AND balance_cents = 0`

// DeleteEmptyBox removes a box only while its balance is zero.
func (u *UnitOfWork) DeleteEmptyBox(ctx context.Context, id int64) error {
	res, err := u.db.ExecContext(ctx, deleteEmptyBox, id, u.householdID)
	if err != nil {
		return fmt.Errorf("delete savings box: %w", err)
	}
	return mustAffect(res, "delete savings box")
}

const txSelect = `
SELECT t.id, t.savings_box_id, t.type, t.amount_cents, t.description, t.source, t.created_at
FROM savings_transactions t
JOIN savings_boxes sb ON sb.id = t.savings_box_id`

func scanTransaction(row rowScanner) (core.SavingsTransaction, error) {
	var (
		t           core.SavingsTransaction
		typ, source string
		desc        sql.NullString
		createdAt   string
	)
	if err := row.Scan(&t.ID, &t.BoxID, &typ, &t.Amount.Cents, &desc, &source, &createdAt); err != nil {
		return core.SavingsTransaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Source = core.TransactionSource(source)
	t.Description = stringPtr(desc)
	var err error
	t.CreatedAt, err = parseTime(createdAt)
	return t, err
}

const listTransactions = txSelect + ` WHERE sb.household_id = ? AND t.savings_box_id = ? ORDER BY t.created_at DESC, t.id DESC`

// ListTransactions returns the box history newest first.
func (u *UnitOfWork) ListTransactions(ctx context.Context, boxID int64) ([]core.SavingsTransaction, error) {
	rows, err := u.db.QueryContext(ctx, listTransactions, u.householdID, boxID)
	if err != nil {
		return nil, fmt.Errorf("list savings transactions: %w", err)
	}
	defer rows.Close()
	var out []core.SavingsTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan savings transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const getTransaction = txSelect + ` WHERE sb.household_id = ? AND t.id = ?`

func (u *UnitOfWork) GetTransaction(ctx context.Context, id int64) (core.SavingsTransaction, error) {
	t, err := scanTransaction(u.db.QueryRowContext(ctx, getTransaction, u.householdID, id))
	if err != nil {
		return core.SavingsTransaction{}, notFound("get savings transaction", err)
	}
	return t, nil
}

const ledgerSum = `
SELECT COALESCE(SUM(CASE t.type WHEN 'withdrawal' THEN -t.amount_cents ELSE t.amount_cents END), 0)
FROM savings_transactions t
JOIN savings_boxes sb ON sb.id = t.savings_box_id
WHERE sb.household_id = ? AND t.savings_box_id = ?`

// LedgerSum is the signed sum of the box's transactions; it always equals the stored balance.
func (u *UnitOfWork) LedgerSum(ctx context.Context, boxID int64) (core.Money, error) {
	var sum int64
	if err := u.db.QueryRowContext(ctx, ledgerSum, u.householdID, boxID).Scan(&sum); err != nil {
		return core.Money{}, fmt.Errorf("sum savings transactions: %w", err)
	}
	return core.Money{Cents: sum}, nil
}

const adjustBalance = `
UPDATE savings_boxes SET balance_cents = balance_cents + ?1
WHERE id = ?2 AND household_id = ?3 AND balance_cents + ?1 BETWEEN 0 AND ?4`

// adjustBalance applies delta atomically. A missing box and a balance that would go
// negative both yield ErrInsufficientBalance, which is an ErrNotFound. A credit that
// would pass core.MaxBalanceCents yields ErrTotalTooLarge and leaves the box untouched.
func (u *UnitOfWork) adjustBalance(ctx context.Context, boxID, delta int64) error {
	res, err := u.db.ExecContext(ctx, adjustBalance, delta, boxID, u.householdID, core.MaxBalanceCents)
	if err != nil {
		return fmt.Errorf("adjust savings balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust savings balance: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if delta > 0 {
		if _, err := u.GetBox(ctx, boxID); err != nil {
			return err
		}
		return core.NewUserError("savings box balance would exceed the supported maximum", core.ErrTotalTooLarge)
	}
	return core.ErrInsufficientBalance
}

const insertTransaction = `
INSERT INTO savings_transactions (savings_box_id, type, amount_cents, description, source, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, created_at`

// RecordTransaction moves the balance and inserts the transaction row. Together with
// ReverseTransaction it is the only way a balance changes; callers run it inside Scope.Tx.
func (u *UnitOfWork) RecordTransaction(ctx context.Context, t core.SavingsTransaction) (core.SavingsTransaction, error) {
	if err := u.adjustBalance(ctx, t.BoxID, t.Signed()); err != nil {
		return core.SavingsTransaction{}, err
	}
	var createdAt string
	err := u.db.QueryRowContext(ctx, insertTransaction,
		t.BoxID, string(t.Type), t.Amount.Cents, nullString(t.Description), string(t.Source), formatTime(nowFunc())).
		Scan(&t.ID, &createdAt)
	if err != nil {
		return core.SavingsTransaction{}, fmt.Errorf("insert savings transaction: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.SavingsTransaction{}, err
	}
	return t, nil
}

const deleteTransaction = `DELETE FROM savings_transactions WHERE id = ?`

// ReverseTransaction undoes a transaction's effect on the balance and deletes it.
// Reversing a contribution that has since been spent fails with ErrInsufficientBalance.
func (u *UnitOfWork) ReverseTransaction(ctx context.Context, id int64) (core.SavingsTransaction, error) {
	t, err := u.GetTransaction(ctx, id)
	if err != nil {
		return core.SavingsTransaction{}, err
	}
	if err := u.adjustBalance(ctx, t.BoxID, -t.Signed()); err != nil {
		return core.SavingsTransaction{}, err
	}
	if _, err := u.db.ExecContext(ctx, deleteTransaction, t.ID); err != nil {
		return core.SavingsTransaction{}, fmt.Errorf("delete savings transaction: %w", err)
	}
	return t, nil
}
