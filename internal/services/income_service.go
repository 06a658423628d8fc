package services

import (
	"context"
	"fmt"

	"casa/internal/core"
	"casa/internal/storage"
)

type IncomeService struct {
	repo *storage.SQLiteRepository
}

func NewIncomeService(repo *storage.SQLiteRepository) *IncomeService {
	return &IncomeService{repo: repo}
}

func (s *IncomeService) Create(ctx context.Context, householdID, budgetID int64, in core.CreateIncomeInput) (core.IncomeEntry, error) {
	if err := in.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	var e core.IncomeEntry
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		if _, err := requireOpenBudget(ctx, u, budgetID); err != nil {
			return err
		}
		if _, err := requireCategory(ctx, u, in.CategoryID, core.CategoryIncome); err != nil {
			return err
		}
		id, err := u.CreateIncome(ctx, core.IncomeEntry{
			BudgetID:    budgetID,
			CategoryID:  in.CategoryID,
			Description: in.Description,
			Amount:      in.Amount,
		})
		if err != nil {
			return err
		}
		e, err = u.GetIncome(ctx, id)
		return err
	})
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("create income: %w", err)
	}
	return e, nil
}

func (s *IncomeService) Update(ctx context.Context, householdID, id int64, in core.UpdateIncomeInput) (core.IncomeEntry, error) {
	if err := in.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	var e core.IncomeEntry
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		cur, err := u.GetIncome(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireOpenBudget(ctx, u, cur.BudgetID); err != nil {
			return err
		}
		if in.CategoryID != nil && *in.CategoryID != cur.CategoryID {
			if _, err := requireCategory(ctx, u, *in.CategoryID, core.CategoryIncome); err != nil {
				return err
			}
			cur.CategoryID = *in.CategoryID
		}
		if in.Description != nil {
			cur.Description = *in.Description
		}
		if in.Amount != nil {
			cur.Amount = *in.Amount
		}
		if err := u.UpdateIncome(ctx, cur); err != nil {
			return err
		}
		e, err = u.GetIncome(ctx, id)
		return err
	})
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("update income %d: %w", id, err)
	}
	return e, nil
}

func (s *IncomeService) Delete(ctx context.Context, householdID, id int64) error {
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		cur, err := u.GetIncome(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireOpenBudget(ctx, u, cur.BudgetID); err != nil {
			return err
		}
		return u.DeleteIncome(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete income %d: %w", id, err)
	}
	return nil
}
