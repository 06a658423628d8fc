package services

import (
	"context"
	"fmt"
	"log/slog"

	"casa/internal/core"
	"casa/internal/storage"
)

// ReceiptExtractor turns receipt photos into structured purchase data.
type ReceiptExtractor interface {
	Extract(ctx context.Context, images []string) (core.ReceiptData, error)
}

type ReceiptService struct {
	repo      *storage.SQLiteRepository
	extractor ReceiptExtractor
}

func NewReceiptService(repo *storage.SQLiteRepository, extractor ReceiptExtractor) *ReceiptService {
	return &ReceiptService{repo: repo, extractor: extractor}
}

// Scan extracts a receipt and stores it as a purchase awaiting review.
func (s *ReceiptService) Scan(ctx context.Context, userID string, images []string) (core.Purchase, error) {
	if err := core.ValidateImages(images); err != nil {
		return core.Purchase{}, err
	}
	if s.extractor == nil {
		return core.Purchase{}, core.NewUserError("receipt scanning is not configured", core.ErrInvalidState)
	}
	slog.InfoContext(ctx, "Processing receipt scan", "user_id", userID, "image_count", len(images))

	rd, err := s.extractor.Extract(ctx, images)
	if err != nil {
		return core.Purchase{}, fmt.Errorf("extract receipt: %w", err)
	}
	if err := rd.Validate(); err != nil {
		slog.ErrorContext(ctx, "Extracted receipt failed validation", "user_id", userID, "error", err)
		return core.Purchase{}, core.NewUserError("failed to extract valid receipt data", err)
	}
	if sum := rd.ProductsTotal(); sum != rd.TotalValue {
		slog.WarnContext(ctx, "Receipt total differs from its products, keeping the products sum",
			"stated", rd.TotalValue.String(),
			"products", sum.String())
	}

	var p core.Purchase
	err = s.repo.Tx(ctx, func(q *storage.Queries) error {
		id, err := createPurchaseFrom(ctx, q, userID, rd, rd.BoughtAt(), core.PurchaseNeedsReview)
		if err != nil {
			return err
		}
		p, err = q.GetPurchase(ctx, userID, id)
		return err
	})
	if err != nil {
		return core.Purchase{}, fmt.Errorf("save scanned receipt: %w", err)
	}
	slog.InfoContext(ctx, "Receipt saved", "purchase_id", p.ID, "product_count", p.ProductCount)
	return p, nil
}
