package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"casa/internal/core"
	"casa/internal/storage"
)

// ExpenseService manages expense entries. A paid entry linked to a savings box owns exactly
// one expense_link contribution on that box, referenced by SavingsTransactionID.
type ExpenseService struct {
	repo *storage.SQLiteRepository
	now  clock
}

func NewExpenseService(repo *storage.SQLiteRepository) *ExpenseService {
	return &ExpenseService{repo: repo, now: systemClock}
}

func (s *ExpenseService) Create(ctx context.Context, householdID, budgetID int64, in core.CreateExpenseInput) (core.ExpenseEntry, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	var e core.ExpenseEntry
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		if _, err := requireOpenBudget(ctx, u, budgetID); err != nil {
			return err
		}
		if _, err := requireCategory(ctx, u, in.CategoryID, core.CategoryExpense); err != nil {
			return err
		}
		if in.SavingsBoxID != nil {
			if _, err := u.GetBox(ctx, *in.SavingsBoxID); err != nil {
				return fmt.Errorf("savings box %d: %w", *in.SavingsBoxID, err)
			}
		}
		if in.RecurringExpenseID != nil {
			if _, err := u.GetRecurring(ctx, *in.RecurringExpenseID); err != nil {
				return fmt.Errorf("recurring expense %d: %w", *in.RecurringExpenseID, err)
			}
		}

		entry := core.ExpenseEntry{
			BudgetID:           budgetID,
			CategoryID:         in.CategoryID,
			Description:        in.Description,
			Amount:             in.Amount,
			IsPaid:             in.IsPaid,
			Source:             in.Source,
			SavingsBoxID:       in.SavingsBoxID,
			RecurringExpenseID: in.RecurringExpenseID,
		}
		if entry.IsPaid {
			now := s.now()
			entry.PaidAt = &now
		}
		if entry.IsLinkedAndPaid() {
			txID, err := linkContribution(ctx, u, entry)
			if err != nil {
				return err
			}
			entry.SavingsTransactionID = &txID
		}
		id, err := u.CreateExpense(ctx, entry)
		if err != nil {
			return err
		}
		e, err = u.GetExpense(ctx, id)
		return err
	})
	if err != nil {
		return core.ExpenseEntry{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

// Update applies a partial change. When a paid entry's box, amount or description changes,
// its linked contribution is reversed and recorded again so it keeps mirroring the entry.
func (s *ExpenseService) Update(ctx context.Context, householdID, id int64, in core.UpdateExpenseInput) (core.ExpenseEntry, error) {
	if err := in.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	var e core.ExpenseEntry
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		cur, err := u.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireOpenBudget(ctx, u, cur.BudgetID); err != nil {
			return err
		}

		next := cur
		if in.CategoryID != nil && *in.CategoryID != cur.CategoryID {
			if _, err := requireCategory(ctx, u, *in.CategoryID, core.CategoryExpense); err != nil {
				return err
			}
			next.CategoryID = *in.CategoryID
		}
		if in.Description != nil {
			next.Description = *in.Description
		}
		if in.Amount != nil {
			next.Amount = *in.Amount
		}
		next.SavingsBoxID = in.SavingsBoxID.Apply(cur.SavingsBoxID)
		if next.SavingsBoxID != nil && !sameID(next.SavingsBoxID, cur.SavingsBoxID) {
			if _, err := u.GetBox(ctx, *next.SavingsBoxID); err != nil {
				return fmt.Errorf("savings box %d: %w", *next.SavingsBoxID, err)
			}
		}
		if in.IsPaid != nil && *in.IsPaid != cur.IsPaid {
			next.IsPaid = *in.IsPaid
			next.PaidAt = nil
			if next.IsPaid {
				now := s.now()
				next.PaidAt = &now
			}
		}

		if err := syncLink(ctx, u, cur, &next); err != nil {
			return err
		}
		if err := u.UpdateExpense(ctx, next); err != nil {
			return err
		}
		e, err = u.GetExpense(ctx, id)
		return err
	})
	if err != nil {
		return core.ExpenseEntry{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	return e, nil
}

// SetPaid toggles the paid flag, contributing to or reversing from the linked box.
func (s *ExpenseService) SetPaid(ctx context.Context, householdID, id int64, paid bool) (core.ExpenseEntry, error) {
	return s.Update(ctx, householdID, id, core.UpdateExpenseInput{IsPaid: &paid})
}

// Delete removes an entry, reversing its linked contribution first.
func (s *ExpenseService) Delete(ctx context.Context, householdID, id int64) error {
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		cur, err := u.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireOpenBudget(ctx, u, cur.BudgetID); err != nil {
			return err
		}
		if err := unlinkContribution(ctx, u, cur); err != nil {
			return err
		}
		return u.DeleteExpense(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return nil
}

// syncLink reconciles the linkage of cur with the state next is about to be written in.
func syncLink(ctx context.Context, u *storage.UnitOfWork, cur core.ExpenseEntry, next *core.ExpenseEntry) error {
	linkChanged := !sameID(cur.SavingsBoxID, next.SavingsBoxID) ||
		cur.Amount != next.Amount ||
		cur.Description != next.Description
	if cur.SavingsTransactionID != nil && (!next.IsLinkedAndPaid() || linkChanged) {
		if err := unlinkContribution(ctx, u, cur); err != nil {
			return err
		}
		next.SavingsTransactionID = nil
	}
	if next.IsLinkedAndPaid() && next.SavingsTransactionID == nil {
		txID, err := linkContribution(ctx, u, *next)
		if err != nil {
			return err
		}
		next.SavingsTransactionID = &txID
	}
	return nil
}

func linkContribution(ctx context.Context, u *storage.UnitOfWork, e core.ExpenseEntry) (int64, error) {
	desc := e.Description
	t, err := u.RecordTransaction(ctx, core.SavingsTransaction{
		BoxID:       *e.SavingsBoxID,
		Type:        core.Contribution,
		Amount:      e.Amount,
		Description: &desc,
		Source:      core.TxSourceExpenseLink,
	})
	if err != nil {
		return 0, fmt.Errorf("link expense to savings box %d: %w", *e.SavingsBoxID, err)
	}
	slog.DebugContext(ctx, "Expense linked to savings box",
		"box_id", t.BoxID,
		"transaction_id", t.ID,
		"amount", e.Amount.String())
	return t.ID, nil
}

func unlinkContribution(ctx context.Context, u *storage.UnitOfWork, e core.ExpenseEntry) error {
	if e.SavingsTransactionID == nil {
		return nil
	}
	_, err := u.ReverseTransaction(ctx, *e.SavingsTransactionID)
	switch {
	case errors.Is(err, core.ErrInsufficientBalance):
		return core.NewUserError("the linked savings contribution was already withdrawn", core.ErrInvalidState)
	case errors.Is(err, core.ErrNotFound):
		// The box was deleted together with its history; nothing left to reverse.
		return nil
	case err != nil:
		return fmt.Errorf("unlink expense %d: %w", e.ID, err)
	}
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
