// Package services holds the household bookkeeping use cases. Every method takes the
// caller's household id, already resolved from the authenticated user, and touches the
// store only through storage.Scope so no query can miss the household filter.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"casa/internal/amqp"
	"casa/internal/core"
	"casa/internal/storage"
)

// EventPublisher delivers domain events after a transaction commits. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.Event) error
}

type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func publish(ctx context.Context, events EventPublisher, ev *amqp.Event) {
	if events == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping event", "type", ev.Type)
		return
	}
	if err := events.Publish(ctx, ev); err != nil {
		// The write is committed; a lost event only delays the report export.
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", ev.Type,
			"household_id", ev.HouseholdID,
			"error", err)
	}
}

// requireOpenBudget loads a budget of the household and rejects it when closed.
func requireOpenBudget(ctx context.Context, u *storage.UnitOfWork, budgetID int64) (core.MonthlyBudget, error) {
	b, err := u.GetBudget(ctx, budgetID)
	if err != nil {
		return core.MonthlyBudget{}, err
	}
	if !b.Status.IsOpen() {
		return core.MonthlyBudget{}, core.NewUserError("period is closed", core.ErrInvalidState)
	}
	return b, nil
}

// requireCategory loads a category of the household and checks its kind.
func requireCategory(ctx context.Context, u *storage.UnitOfWork, id int64, typ core.CategoryType) (core.Category, error) {
	c, err := u.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, fmt.Errorf("category %d: %w", id, err)
	}
	if c.Type != typ {
		v := &core.ValidationError{}
		v.Add("categoryId", fmt.Errorf("category must be of type %s", typ))
		return core.Category{}, v
	}
	return c, nil
}
