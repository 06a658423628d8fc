package services

import (
	"context"
	"fmt"

	"casa/internal/core"
	"casa/internal/storage"
)

// ProductService edits the lines of a purchase. Every write recomputes the purchase total
// in the same transaction.
type ProductService struct {
	repo *storage.SQLiteRepository
}

func NewProductService(repo *storage.SQLiteRepository) *ProductService {
	return &ProductService{repo: repo}
}

func (s *ProductService) Get(ctx context.Context, userID string, id int64) (core.Product, error) {
	return s.repo.Queries().GetProduct(ctx, userID, id)
}

func (s *ProductService) Create(ctx context.Context, userID string, purchaseID int64, in core.ProductInput) (core.Product, error) {
	if err := in.Validate(); err != nil {
		return core.Product{}, err
	}
	var p core.Product
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetPurchase(ctx, userID, purchaseID); err != nil {
			return err
		}
		id, err := q.CreateProduct(ctx, productFrom(purchaseID, in))
		if err != nil {
			return err
		}
		if err := q.RecomputePurchaseTotal(ctx, purchaseID); err != nil {
			return err
		}
		p, err = q.GetProduct(ctx, userID, id)
		return err
	})
	if err != nil {
		return core.Product{}, fmt.Errorf("add product to purchase %d: %w", purchaseID, err)
	}
	return p, nil
}

func (s *ProductService) Update(ctx context.Context, userID string, id int64, in core.UpdateProductInput) (core.Product, error) {
	if err := in.Validate(); err != nil {
		return core.Product{}, err
	}
	var p core.Product
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetProduct(ctx, userID, id)
		if err != nil {
			return err
		}
		cur.Code = in.Code.Apply(cur.Code)
		if in.Description != nil {
			cur.Description = *in.Description
		}
		cur.UnitValue = in.UnitValue.Apply(cur.UnitValue)
		cur.UnitIdentifier = in.UnitIdentifier.Apply(cur.UnitIdentifier)
		cur.Quantity = in.Quantity.Apply(cur.Quantity)
		if in.TotalValue != nil {
			cur.TotalValue = *in.TotalValue
		}
		if err := q.UpdateProduct(ctx, cur); err != nil {
			return err
		}
		if err := q.RecomputePurchaseTotal(ctx, cur.PurchaseID); err != nil {
			return err
		}
		p, err = q.GetProduct(ctx, userID, id)
		return err
	})
	if err != nil {
		return core.Product{}, fmt.Errorf("update product %d: %w", id, err)
	}
	return p, nil
}

func (s *ProductService) Delete(ctx context.Context, userID string, id int64) error {
	err := s.repo.Tx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetProduct(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := q.DeleteProduct(ctx, id); err != nil {
			return err
		}
		return q.RecomputePurchaseTotal(ctx, cur.PurchaseID)
	})
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	return nil
}
