package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"casa/internal/core"
	"casa/internal/storage"
)

// PurchaseService manages grocery purchases. Purchases belong to the user, not the household.
type PurchaseService struct {
	repo *storage.SQLiteRepository
	now  clock
}

func NewPurchaseService(repo *storage.SQLiteRepository) *PurchaseService {
	return &PurchaseService{repo: repo, now: systemClock}
}

// PurchasePage is one page of a filtered purchase listing.
type PurchasePage struct {
	Items      []core.Purchase `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

// ImportResult counts what a batch import created.
type ImportResult struct {
	PurchasesCreated int `json:"purchasesCreated"`
	ProductsCreated  int `json:"productsCreated"`
}

func (s *PurchaseService) List(ctx context.Context, userID string, f core.PurchaseFilter) (PurchasePage, error) {
	f.Normalize()
	items, total, err := s.repo.Queries().ListPurchases(ctx, userID, f)
	if err != nil {
		return PurchasePage{}, err
	}
	if items == nil {
		items = []core.Purchase{}
	}
	return PurchasePage{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: (total + f.PageSize - 1) / f.PageSize,
	}, nil
}

// Get returns a purchase with its products.
func (s *PurchaseService) Get(ctx context.Context, userID string, id int64) (core.Purchase, error) {
	var p core.Purchase
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		var err error
		if p, err = q.GetPurchase(ctx, userID, id); err != nil {
			return err
		}
		p.Products, err = q.ListProducts(ctx, userID, id)
		return err
	})
	return p, err
}

func (s *PurchaseService) Update(ctx context.Context, userID string, id int64, in core.UpdatePurchaseInput) (core.Purchase, error) {
	if err := in.Validate(); err != nil {
		return core.Purchase{}, err
	}
	var p core.Purchase
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetPurchase(ctx, userID, id)
		if err != nil {
			return err
		}
		cur.StoreName = in.StoreName.Apply(cur.StoreName)
		cur.BoughtAt = in.BoughtAt.Apply(cur.BoughtAt)
		if in.Status != nil {
			cur.Status = *in.Status
		}
		if err := q.UpdatePurchase(ctx, cur); err != nil {
			return err
		}
		p, err = q.GetPurchase(ctx, userID, id)
		return err
	})
	if err != nil {
		return core.Purchase{}, fmt.Errorf("update purchase %d: %w", id, err)
	}
	return p, nil
}

// Delete removes a purchase and its products in one transaction.
func (s *PurchaseService) Delete(ctx context.Context, userID string, id int64) error {
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		return q.DeletePurchase(ctx, userID, id)
	})
	if err != nil {
		return fmt.Errorf("delete purchase %d: %w", id, err)
	}
	return nil
}

// Import creates approved purchases in bulk, all or nothing.
// A missing or unreadable purchase date falls back to the import time.
func (s *PurchaseService) Import(ctx context.Context, userID string, purchases []core.ReceiptData) (ImportResult, error) {
	v := &core.ValidationError{}
	if len(purchases) == 0 {
		v.Add("purchases", core.ErrInvalidAmount)
	}
	for i, p := range purchases {
		if len(p.Products) == 0 {
			v.Add(fmt.Sprintf("purchases.%d.products", i), core.ErrInvalidAmount)
		}
		for _, pr := range p.Products {
			if err := pr.Validate(); err != nil {
				v.Add(fmt.Sprintf("purchases.%d.products", i), err)
			}
		}
		if p.StoreName != nil && len(*p.StoreName) > 255 {
			v.Add(fmt.Sprintf("purchases.%d.storeName", i), core.ErrTooLong)
		}
	}
	if err := v.Err(); err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		for _, p := range purchases {
			boughtAt := p.BoughtAt()
			if boughtAt == nil {
				now := s.now()
				boughtAt = &now
			}
			if _, err := createPurchaseFrom(ctx, q, userID, p, boughtAt, core.PurchaseApproved); err != nil {
				return err
			}
			res.PurchasesCreated++
			res.ProductsCreated += len(p.Products)
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("import purchases: %w", err)
	}
	slog.InfoContext(ctx, "Purchases imported",
		"user_id", userID,
		"purchases", res.PurchasesCreated,
		"products", res.ProductsCreated)
	return res, nil
}

// createPurchaseFrom inserts a purchase with its product lines; the stored total is the sum of the lines.
func createPurchaseFrom(ctx context.Context, q *storage.Queries, userID string, rd core.ReceiptData, boughtAt *time.Time, status core.PurchaseStatus) (int64, error) {
	id, err := q.CreatePurchase(ctx, core.Purchase{
		UserID:    userID,
		StoreName: rd.StoreName,
		BoughtAt:  boughtAt,
		Status:    status,
	})
	if err != nil {
		return 0, err
	}
	for _, pr := range rd.Products {
		if _, err := q.CreateProduct(ctx, productFrom(id, pr)); err != nil {
			return 0, err
		}
	}
	if err := q.RecomputePurchaseTotal(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

func productFrom(purchaseID int64, in core.ProductInput) core.Product {
	return core.Product{
		PurchaseID:     purchaseID,
		Code:           in.Code,
		Description:    in.Description,
		UnitValue:      in.UnitValue,
		UnitIdentifier: in.UnitIdentifier,
		Quantity:       in.Quantity,
		TotalValue:     in.TotalValue,
	}
}
