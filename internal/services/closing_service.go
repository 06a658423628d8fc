package services

import (
	"context"
	"fmt"
	"log/slog"

	"casa/internal/core"
	"casa/internal/storage"
)

// DistributionPolicy decides how closing allocations relate to the reconciled bank balance.
type DistributionPolicy string

const (
	// DistributionUnchecked trusts the caller entirely.
	DistributionUnchecked DistributionPolicy = "unchecked"
	// DistributionWithinBalance rejects allocations totalling more than the bank balance.
	DistributionWithinBalance DistributionPolicy = "within_balance"
	// DistributionExact requires allocations to total exactly the bank balance.
	DistributionExact DistributionPolicy = "exact"
)

func (p DistributionPolicy) Valid() bool {
	switch p {
	case DistributionUnchecked, DistributionWithinBalance, DistributionExact:
		return true
	}
	return false
}

// check compares the allocation total with the reconciled balance of b.
func (p DistributionPolicy) check(b core.MonthlyBudget, total core.Money) error {
	if p == DistributionUnchecked {
		return nil
	}
	if b.BankBalance == nil {
		return core.NewUserError("reconcile the period before distributing", core.ErrInvalidState)
	}
	switch {
	case p == DistributionExact && total != *b.BankBalance:
		return validationErr("allocations", fmt.Errorf("allocations total %s must equal bank balance %s", total, b.BankBalance))
	case total.Cents > b.BankBalance.Cents:
		return validationErr("allocations", fmt.Errorf("allocations total %s exceeds bank balance %s", total, b.BankBalance))
	}
	return nil
}

// ClosingService runs the month-closing workflow: reconcile, distribute, close.
type ClosingService struct {
	repo    *storage.SQLiteRepository
	budgets *BudgetService
	events  EventPublisher
	policy  DistributionPolicy
}

func NewClosingService(repo *storage.SQLiteRepository, budgets *BudgetService, events EventPublisher, policy DistributionPolicy) *ClosingService {
	if !policy.Valid() {
		policy = DistributionWithinBalance
	}
	return &ClosingService{repo: repo, budgets: budgets, events: events, policy: policy}
}

// FinalizeInput carries every step of the closing wizard.
type FinalizeInput struct {
	BankBalance core.Money        `json:"bankBalance"`
	Allocations []core.Allocation `json:"allocations"`
}

func (in FinalizeInput) Validate() error {
	if err := (core.ReconcileInput{BankBalance: in.BankBalance}).Validate(); err != nil {
		return err
	}
	if len(in.Allocations) == 0 {
		return nil
	}
	return core.DistributeInput{Allocations: in.Allocations}.Validate()
}

// ClosingResult reports what Finalize did.
type ClosingResult struct {
	Budget       core.MonthlyBudget        `json:"budget"`
	Transactions []core.SavingsTransaction `json:"transactions"`
}

func (s *ClosingService) Reconcile(ctx context.Context, householdID, budgetID int64, in core.ReconcileInput) (core.MonthlyBudget, error) {
	return s.budgets.Reconcile(ctx, householdID, budgetID, in)
}

// Distribute credits allocations to savings boxes from an open period, checked against its bank balance.
func (s *ClosingService) Distribute(ctx context.Context, householdID, budgetID int64, in core.DistributeInput) ([]core.SavingsTransaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out []core.SavingsTransaction
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		b, err := requireOpenBudget(ctx, u, budgetID)
		if err != nil {
			return err
		}
		if err := s.policy.check(b, in.Total()); err != nil {
			return err
		}
		out, err = distributeIn(ctx, u, in.Allocations)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("distribute budget %d: %w", budgetID, err)
	}
	publishDistributed(ctx, s.events, householdID, budgetID, in.Total())
	return out, nil
}

func (s *ClosingService) Close(ctx context.Context, householdID, budgetID int64) (core.MonthlyBudget, error) {
	return s.budgets.Close(ctx, householdID, budgetID)
}

func (s *ClosingService) Reopen(ctx context.Context, householdID, budgetID int64) (core.MonthlyBudget, error) {
	return s.budgets.Reopen(ctx, householdID, budgetID)
}

// Finalize reconciles, distributes and closes in one transaction; any failure leaves the period untouched.
func (s *ClosingService) Finalize(ctx context.Context, householdID, budgetID int64, in FinalizeInput) (ClosingResult, error) {
	if err := in.Validate(); err != nil {
		return ClosingResult{}, err
	}
	total := core.DistributeInput{Allocations: in.Allocations}.Total()

	var res ClosingResult
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		b, err := reconcileIn(ctx, u, budgetID, in.BankBalance)
		if err != nil {
			return err
		}
		if len(in.Allocations) > 0 {
			if err := s.policy.check(b, total); err != nil {
				return err
			}
			if res.Transactions, err = distributeIn(ctx, u, in.Allocations); err != nil {
				return err
			}
		}
		res.Budget, err = closeIn(ctx, u, budgetID, s.budgets.now())
		return err
	})
	if err != nil {
		return ClosingResult{}, fmt.Errorf("finalize budget %d: %w", budgetID, err)
	}

	slog.InfoContext(ctx, "Month closing finalized",
		"household_id", householdID,
		"budget_id", budgetID,
		"allocations", len(in.Allocations),
		"distributed", total.String())
	if len(in.Allocations) > 0 {
		publishDistributed(ctx, s.events, householdID, budgetID, total)
	}
	s.budgets.afterClose(ctx, res.Budget)
	return res, nil
}
