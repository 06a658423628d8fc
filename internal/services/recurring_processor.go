package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"casa/internal/core"
	"casa/internal/storage"
)

// RecurringProcessor rolls every household into the current period and materializes its
// active recurring templates the first time that period is seen. Later runs leave the
// period alone, so entries the household removed stay removed.
type RecurringProcessor struct {
	storage *storage.SQLiteRepository
	budgets *BudgetService
}

// NewRecurringProcessor creates a new rollover processor
func NewRecurringProcessor(storage *storage.SQLiteRepository, budgets *BudgetService) *RecurringProcessor {
	return &RecurringProcessor{
		storage: storage,
		budgets: budgets,
	}
}

// ProcessPeriod ensures the period containing now exists for every household and populates
// it unless it was populated before.
// It returns the number of entries created. A failing household is logged and skipped.
func (p *RecurringProcessor) ProcessPeriod(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.budgets == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	households, err := p.storage.Queries().ListHouseholdIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list households: %w", err)
	}

	period := core.PeriodOf(now)
	slog.InfoContext(ctx, "Processing period rollover",
		"households", len(households),
		"period", period.String())

	created := 0
	for _, hid := range households {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		b, err := p.budgets.GetOrCreate(ctx, hid, period)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to ensure current period",
				"household_id", hid,
				"error", err)
			continue
		}
		n, err := p.budgets.PopulateOnce(ctx, hid, b.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring expenses",
				"household_id", hid,
				"budget_id", b.ID,
				"error", err)
			continue
		}
		created += n
	}

	slog.InfoContext(ctx, "Period rollover complete",
		"created", created,
		"households", len(households))
	return created, nil
}
