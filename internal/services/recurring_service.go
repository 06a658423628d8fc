package services

import (
	"context"
	"fmt"
	"log/slog"

	"casa/internal/core"
	"casa/internal/storage"
)

// RecurringService manages recurring expense templates. Templates are never deleted,
// only deactivated, so entries already materialized from them stay valid.
type RecurringService struct {
	repo *storage.SQLiteRepository
}

func NewRecurringService(repo *storage.SQLiteRepository) *RecurringService {
	return &RecurringService{repo: repo}
}

// List returns active templates first, then by description.
func (s *RecurringService) List(ctx context.Context, householdID int64) ([]core.RecurringExpense, error) {
	var out []core.RecurringExpense
	err := s.repo.Scoped(householdID).View(ctx, func(u *storage.UnitOfWork) error {
		var err error
		out, err = u.ListRecurring(ctx)
		return err
	})
	return out, err
}

func (s *RecurringService) Get(ctx context.Context, householdID, id int64) (core.RecurringExpense, error) {
	var r core.RecurringExpense
	err := s.repo.Scoped(householdID).View(ctx, func(u *storage.UnitOfWork) error {
		var err error
		r, err = u.GetRecurring(ctx, id)
		return err
	})
	return r, err
}

func (s *RecurringService) Create(ctx context.Context, householdID int64, in core.CreateRecurringInput) (core.RecurringExpense, error) {
	if err := in.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}
	var r core.RecurringExpense
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		if _, err := requireCategory(ctx, u, in.CategoryID, core.CategoryExpense); err != nil {
			return err
		}
		id, err := u.CreateRecurring(ctx, core.RecurringExpense{
			CategoryID:  in.CategoryID,
			Description: in.Description,
			Amount:      in.Amount,
			DayOfMonth:  in.DayOfMonth,
		})
		if err != nil {
			return err
		}
		r, err = u.GetRecurring(ctx, id)
		return err
	})
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("create recurring expense: %w", err)
	}
	return r, nil
}

// Update changes a template. Entries already materialized keep their values.
func (s *RecurringService) Update(ctx context.Context, householdID, id int64, in core.UpdateRecurringInput) (core.RecurringExpense, error) {
	if err := in.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}
	return s.mutate(ctx, householdID, id, func(u *storage.UnitOfWork, r *core.RecurringExpense) error {
		if in.CategoryID != nil && *in.CategoryID != r.CategoryID {
			if _, err := requireCategory(ctx, u, *in.CategoryID, core.CategoryExpense); err != nil {
				return err
			}
			r.CategoryID = *in.CategoryID
		}
		if in.Description != nil {
			r.Description = *in.Description
		}
		if in.Amount != nil {
			r.Amount = *in.Amount
		}
		r.DayOfMonth = in.DayOfMonth.Apply(r.DayOfMonth)
		return nil
	})
}

// Deactivate is the delete operation for templates.
func (s *RecurringService) Deactivate(ctx context.Context, householdID, id int64) (core.RecurringExpense, error) {
	return s.SetActive(ctx, householdID, id, false)
}

// SetActive toggles a template. Reactivated templates only affect future materializations.
func (s *RecurringService) SetActive(ctx context.Context, householdID, id int64, active bool) (core.RecurringExpense, error) {
	r, err := s.mutate(ctx, householdID, id, func(_ *storage.UnitOfWork, r *core.RecurringExpense) error {
		r.State = core.TemplateStateOf(active)
		return nil
	})
	if err == nil {
		slog.InfoContext(ctx, "Recurring expense state changed",
			"household_id", householdID,
			"id", id,
			"state", r.State)
	}
	return r, err
}

func (s *RecurringService) mutate(ctx context.Context, householdID, id int64, fn func(u *storage.UnitOfWork, r *core.RecurringExpense) error) (core.RecurringExpense, error) {
	var r core.RecurringExpense
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		cur, err := u.GetRecurring(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(u, &cur); err != nil {
			return err
		}
		if err := u.UpdateRecurring(ctx, cur); err != nil {
			return err
		}
		r, err = u.GetRecurring(ctx, id)
		return err
	})
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("update recurring expense %d: %w", id, err)
	}
	return r, nil
}
