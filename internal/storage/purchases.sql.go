package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"casa/internal/core"
)

const purchaseSelect = `
SELECT p.id, p.user_id, p.store_name, p.bought_at, p.status, p.total_value_cents,
       (SELECT COUNT(*) FROM products pr WHERE pr.purchase_id = p.id), p.created_at, p.updated_at
FROM purchases p`

func scanPurchase(row rowScanner) (core.Purchase, error) {
	var (
		p                    core.Purchase
		store, boughtAt      sql.NullString
		status               int64
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.UserID, &store, &boughtAt, &status, &p.TotalValue.Cents, &p.ProductCount, &createdAt, &updatedAt); err != nil {
		return core.Purchase{}, err
	}
	p.StoreName = stringPtr(store)
	p.Status = core.PurchaseStatus(status)
	var err error
	if p.BoughtAt, err = parseNullTime(boughtAt); err != nil {
		return core.Purchase{}, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Purchase{}, err
	}
	p.UpdatedAt, err = parseTime(updatedAt)
	return p, err
}

var purchaseSortColumns = map[string]string{
	"storeName":  "p.store_name",
	"boughtAt":   "p.bought_at",
	"totalValue": "p.total_value_cents",
	"status":     "p.status",
	"createdAt":  "p.created_at",
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ListPurchases returns one page of the user's purchases and the total number matching f.
// f must already be normalized.
func (q *Queries) ListPurchases(ctx context.Context, userID string, f core.PurchaseFilter) ([]core.Purchase, int, error) {
	where := []string{"p.user_id = ?"}
	args := []any{userID}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, `p.store_name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(s)+"%")
	}
	if f.Status != 0 {
		where = append(where, "p.status = ?")
		args = append(args, int64(f.Status))
	}
	if f.DateFrom != nil {
		where = append(where, "p.bought_at >= ?")
		args = append(args, formatTime(*f.DateFrom))
	}
	if f.DateTo != nil {
		where = append(where, "p.bought_at <= ?")
		args = append(args, formatTime(*f.DateTo))
	}
	if f.PriceMin != nil {
		where = append(where, "p.total_value_cents >= ?")
		args = append(args, f.PriceMin.Cents)
	}
	if f.PriceMax != nil {
		where = append(where, "p.total_value_cents <= ?")
		args = append(args, f.PriceMax.Cents)
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM purchases p"+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchases: %w", err)
	}

	col, ok := purchaseSortColumns[f.SortBy]
	if !ok {
		col = purchaseSortColumns["boughtAt"]
	}
	dir := "DESC"
	if f.SortOrder == "asc" {
		dir = "ASC"
	}
	query := purchaseSelect + cond + " ORDER BY " + col + " " + dir + ", p.id " + dir + " LIMIT ? OFFSET ?"
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()
	var out []core.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

const getPurchase = purchaseSelect + ` WHERE p.id = ? AND p.user_id = ?`

func (q *Queries) GetPurchase(ctx context.Context, userID string, id int64) (core.Purchase, error) {
	p, err := scanPurchase(q.db.QueryRowContext(ctx, getPurchase, id, userID))
	if err != nil {
		return core.Purchase{}, notFound("get purchase", err)
	}
	return p, nil
}

const createPurchase = `
INSERT INTO purchases (user_id, store_name, bought_at, status, total_value_cents, created_at, updated_at)
VALUES (?, ?, ?, ?, 0, ?, ?)
RETURNING id`

// CreatePurchase inserts an empty purchase; the total follows once products are added.
func (q *Queries) CreatePurchase(ctx context.Context, p core.Purchase) (int64, error) {
	now := formatTime(nowFunc())
	var id int64
	err := q.db.QueryRowContext(ctx, createPurchase,
		p.UserID, nullString(p.StoreName), nullTime(p.BoughtAt), int64(p.Status), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create purchase: %w", err)
	}
	return id, nil
}

const updatePurchase = `
UPDATE purchases SET store_name = ?, bought_at = ?, status = ?, updated_at = ?
WHERE id = ? AND user_id = ?`

func (q *Queries) UpdatePurchase(ctx context.Context, p core.Purchase) error {
	res, err := q.db.ExecContext(ctx, updatePurchase,
		nullString(p.StoreName), nullTime(p.BoughtAt), int64(p.Status), formatTime(nowFunc()), p.ID, p.UserID)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	return mustAffect(res, "update purchase")
}

const deletePurchaseProducts = `
DELETE FROM products WHERE purchase_id IN (SELECT id FROM purchases WHERE id = ? AND user_id = ?)`

const deletePurchase = `DELETE FROM purchases WHERE id = ? AND user_id = ?`

// DeletePurchase removes the products then the purchase; run it inside Tx.
func (q *Queries) DeletePurchase(ctx context.Context, userID string, id int64) error {
	if _, err := q.db.ExecContext(ctx, deletePurchaseProducts, id, userID); err != nil {
		return fmt.Errorf("delete purchase products: %w", err)
	}
	res, err := q.db.ExecContext(ctx, deletePurchase, id, userID)
	if err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	return mustAffect(res, "delete purchase")
}

const recomputePurchaseTotal = `
UPDATE purchases
SET total_value_cents = COALESCE((SELECT SUM(total_value_cents) FROM products WHERE purchase_id = ?1), 0),
    updated_at = ?2
WHERE id = ?1`

// RecomputePurchaseTotal resets the purchase total to the sum of its products.
func (q *Queries) RecomputePurchaseTotal(ctx context.Context, purchaseID int64) error {
	res, err := q.db.ExecContext(ctx, recomputePurchaseTotal, purchaseID, formatTime(nowFunc()))
	if err != nil {
		return fmt.Errorf("recompute purchase total: %w", err)
	}
	return mustAffect(res, "recompute purchase total")
}

const productSelect = `
SELECT pr.id, pr.purchase_id, pr.code, pr.description, pr.unit_value_cents, pr.unit_identifier,
       pr.quantity_milli, pr.total_value_cents, pr.created_at, pr.updated_at
FROM products pr
JOIN purchases p ON p.id = pr.purchase_id`

func scanProduct(row rowScanner) (core.Product, error) {
	var (
		p                    core.Product
		code, unitID         sql.NullString
		unitValue, quantity  sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.PurchaseID, &code, &p.Description, &unitValue, &unitID,
		&quantity, &p.TotalValue.Cents, &createdAt, &updatedAt); err != nil {
		return core.Product{}, err
	}
	p.Code, p.UnitIdentifier = stringPtr(code), stringPtr(unitID)
	p.UnitValue, p.Quantity = moneyPtr(unitValue), quantityPtr(quantity)
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Product{}, err
	}
	p.UpdatedAt, err = parseTime(updatedAt)
	return p, err
}

const listProducts = productSelect + ` WHERE p.user_id = ? AND pr.purchase_id = ? ORDER BY pr.id`

func (q *Queries) ListProducts(ctx context.Context, userID string, purchaseID int64) ([]core.Product, error) {
	rows, err := q.db.QueryContext(ctx, listProducts, userID, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []core.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const getProduct = productSelect + ` WHERE p.user_id = ? AND pr.id = ?`

func (q *Queries) GetProduct(ctx context.Context, userID string, id int64) (core.Product, error) {
	p, err := scanProduct(q.db.QueryRowContext(ctx, getProduct, userID, id))
	if err != nil {
		return core.Product{}, notFound("get product", err)
	}
	return p, nil
}

const createProduct = `
INSERT INTO products (purchase_id, code, description, unit_value_cents, unit_identifier, quantity_milli,
                      total_value_cents, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateProduct(ctx context.Context, p core.Product) (int64, error) {
	now := formatTime(nowFunc())
	var id int64
	err := q.db.QueryRowContext(ctx, createProduct,
		p.PurchaseID, nullString(p.Code), p.Description, nullMoney(p.UnitValue), nullString(p.UnitIdentifier),
		nullQuantity(p.Quantity), p.TotalValue.Cents, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

const updateProduct = `
UPDATE products
SET code = ?, description = ?, unit_value_cents = ?, unit_identifier = ?, quantity_milli = ?,
    total_value_cents = ?, updated_at = ?
WHERE id = ?`

// UpdateProduct expects p to have been loaded through GetProduct by its owner.
func (q *Queries) UpdateProduct(ctx context.Context, p core.Product) error {
	res, err := q.db.ExecContext(ctx, updateProduct,
		nullString(p.Code), p.Description, nullMoney(p.UnitValue), nullString(p.UnitIdentifier),
		nullQuantity(p.Quantity), p.TotalValue.Cents, formatTime(nowFunc()), p.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return mustAffect(res, "update product")
}

const deleteProduct = `DELETE FROM products WHERE id = ?`

// DeleteProduct expects the product's ownership to have been checked through GetProduct.
func (q *Queries) DeleteProduct(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, deleteProduct, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return mustAffect(res, "delete product")
}
