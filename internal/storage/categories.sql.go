package storage

import (
	"context"
	"database/sql"
	"fmt"

	"casa/internal/core"
)

const categoryColumns = `id, household_id, name, type, icon, color, sort_order`

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c           core.Category
		typ         string
		icon, color sql.NullString
	)
	if err := row.Scan(&c.ID, &c.HouseholdID, &c.Name, &typ, &icon, &color, &c.SortOrder); err != nil {
		return core.Category{}, err
	}
	c.Type = core.CategoryType(typ)
	c.Icon, c.Color = stringPtr(icon), stringPtr(color)
	return c, nil
}

const listCategories = `
SELECT ` + categoryColumns + ` FROM categories
WHERE household_id = ? AND (? = '' OR type = ?)
ORDER BY sort_order, name, id`

// ListCategories returns the household's categories; an empty typ returns both kinds.
func (u *UnitOfWork) ListCategories(ctx context.Context, typ core.CategoryType) ([]core.Category, error) {
	rows, err := u.db.QueryContext(ctx, listCategories, u.householdID, string(typ), string(typ))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = ? AND household_id = ?`

func (u *UnitOfWork) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(u.db.QueryRowContext(ctx, getCategory, id, u.householdID))
	if err != nil {
		return core.Category{}, notFound("get category", err)
	}
	return c, nil
}

const createCategory = `
INSERT INTO categories (household_id, name, type, icon, color, sort_order, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + categoryColumns

func (u *UnitOfWork) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	created, err := scanCategory(u.db.QueryRowContext(ctx, createCategory,
		u.householdID, c.Name, string(c.Type), nullString(c.Icon), nullString(c.Color), c.SortOrder, formatTime(nowFunc())))
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

const updateCategory = `
UPDATE categories SET name = ?, icon = ?, color = ?, sort_order = ?
WHERE id = ? AND household_id = ?`

func (u *UnitOfWork) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := u.db.ExecContext(ctx, updateCategory,
		c.Name, nullString(c.Icon), nullString(c.Color), c.SortOrder, c.ID, u.householdID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return mustAffect(res, "update category")
}

const categoryReferences = `
SELECT
    (SELECT COUNT(*) FROM income_entries WHERE category_id = ?1) +
    (SELECT COUNT(*) FROM expense_entries WHERE category_id = ?1) +
    (SELECT COUNT(*) FROM recurring_expenses WHERE category_id = ?1)`

// CategoryReferences counts income entries, expense entries and recurring templates using the category.
func (u *UnitOfWork) CategoryReferences(ctx context.Context, id int64) (int64, error) {
	var n int64
	if err := u.db.QueryRowContext(ctx, categoryReferences, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count category references: %w", err)
	}
	return n, nil
}

const deleteCategory = `DELETE FROM categories WHERE id = ? AND household_id = ?`

func (u *UnitOfWork) DeleteCategory(ctx context.Context, id int64) error {
	res, err := u.db.ExecContext(ctx, deleteCategory, id, u.householdID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return mustAffect(res, "delete category")
}
