package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casa/internal/amqp"
	"casa/internal/core"
	"casa/internal/storage"
)

// BudgetService drives the monthly budget state machine: open -> closed -> (reopened).
type BudgetService struct {
	repo   *storage.SQLiteRepository
	events EventPublisher
	now    clock
}

func NewBudgetService(repo *storage.SQLiteRepository, events EventPublisher) *BudgetService {
	return &BudgetService{repo: repo, events: events, now: systemClock}
}

// BudgetDetail is a period with its entries and derived summary.
type BudgetDetail struct {
	Budget   core.MonthlyBudget  `json:"budget"`
	Income   []core.IncomeEntry  `json:"incomeEntries"`
	Expenses []core.ExpenseEntry `json:"expenseEntries"`
	Summary  core.BudgetSummary  `json:"summary"`
}

// GetOrCreate returns the household's budget for p, creating it open and empty on first access.
func (s *BudgetService) GetOrCreate(ctx context.Context, householdID int64, p core.Period) (core.MonthlyBudget, error) {
	if err := p.Validate(); err != nil {
		return core.MonthlyBudget{}, validationErr("month", err)
	}
	var b core.MonthlyBudget
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		var err error
		b, err = getOrCreateIn(ctx, u, p)
		return err
	})
	if err != nil {
		return core.MonthlyBudget{}, fmt.Errorf("get or create budget %s: %w", p, err)
	}
	return b, nil
}

func getOrCreateIn(ctx context.Context, u *storage.UnitOfWork, p core.Period) (core.MonthlyBudget, error) {
	if err := u.EnsureBudget(ctx, p); err != nil {
		return core.MonthlyBudget{}, err
	}
	return u.GetBudgetByPeriod(ctx, p)
}

// Detail returns the period (created if absent) with entries in creation order.
func (s *BudgetService) Detail(ctx context.Context, householdID int64, p core.Period) (BudgetDetail, error) {
	b, err := s.GetOrCreate(ctx, householdID, p)
	if err != nil {
		return BudgetDetail{}, err
	}
	var d BudgetDetail
	err = s.repo.Scoped(householdID).View(ctx, func(u *storage.UnitOfWork) error {
		var err error
		d, err = loadDetail(ctx, u, b)
		return err
	})
	if err != nil {
		return BudgetDetail{}, fmt.Errorf("load budget %s: %w", p, err)
	}
	return d, nil
}

func loadDetail(ctx context.Context, u *storage.UnitOfWork, b core.MonthlyBudget) (BudgetDetail, error) {
	income, err := u.ListIncome(ctx, b.ID)
	if err != nil {
		return BudgetDetail{}, err
	}
	expenses, err := u.ListExpenses(ctx, b.ID)
	if err != nil {
		return BudgetDetail{}, err
	}
	p := core.Period{Year: b.Year, Month: b.Month}
	for i := range expenses {
		if d := expenses[i].DueDay; d != nil {
			clamped := p.ClampDay(*d)
			expenses[i].DueDay = &clamped
		}
	}
	summary, err := core.ComputeSummary(income, expenses, b.BankBalance)
	if err != nil {
		return BudgetDetail{}, fmt.Errorf("summarize budget %d: %w", b.ID, err)
	}
	return BudgetDetail{
		Budget:   b,
		Income:   income,
		Expenses: expenses,
		Summary:  summary,
	}, nil
}

// Summary computes the totals of an existing period.
func (s *BudgetService) Summary(ctx context.Context, householdID int64, p core.Period) (core.BudgetSummary, error) {
	if err := p.Validate(); err != nil {
		return core.BudgetSummary{}, validationErr("month", err)
	}
	var summary core.BudgetSummary
	err := s.repo.Scoped(householdID).View(ctx, func(u *storage.UnitOfWork) error {
		b, err := u.GetBudgetByPeriod(ctx, p)
		if err != nil {
			return err
		}
		d, err := loadDetail(ctx, u, b)
		summary = d.Summary
		return err
	})
	return summary, err
}

// List returns every period of the household, newest first.
func (s *BudgetService) List(ctx context.Context, householdID int64) ([]core.MonthlyBudget, error) {
	var out []core.MonthlyBudget
	err := s.repo.Scoped(householdID).View(ctx, func(u *storage.UnitOfWork) error {
		var err error
		out, err = u.ListBudgets(ctx)
		return err
	})
	return out, err
}

// Reconcile records the real bank balance on an open period.
func (s *BudgetService) Reconcile(ctx context.Context, householdID, budgetID int64, in core.ReconcileInput) (core.MonthlyBudget, error) {
	if err := in.Validate(); err != nil {
		return core.MonthlyBudget{}, err
	}
	var b core.MonthlyBudget
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		var err error
		b, err = reconcileIn(ctx, u, budgetID, in.BankBalance)
		return err
	})
	if err != nil {
		return core.MonthlyBudget{}, fmt.Errorf("reconcile budget %d: %w", budgetID, err)
	}
	slog.InfoContext(ctx, "Budget reconciled",
		"household_id", householdID,
		"budget_id", budgetID,
		"bank_balance", in.BankBalance.String())
	return b, nil
}

func reconcileIn(ctx context.Context, u *storage.UnitOfWork, budgetID int64, balance core.Money) (core.MonthlyBudget, error) {
	if _, err := requireOpenBudget(ctx, u, budgetID); err != nil {
		return core.MonthlyBudget{}, err
	}
	if err := u.SetBankBalance(ctx, budgetID, balance); err != nil {
		return core.MonthlyBudget{}, err
	}
	return u.GetBudget(ctx, budgetID)
}

// Close moves an open, reconciled period to closed and makes sure the next period exists.
func (s *BudgetService) Close(ctx context.Context, householdID, budgetID int64) (core.MonthlyBudget, error) {
	var b core.MonthlyBudget
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		var err error
		b, err = closeIn(ctx, u, budgetID, s.now())
		return err
	})
	if err != nil {
		return core.MonthlyBudget{}, fmt.Errorf("close budget %d: %w", budgetID, err)
	}
	s.afterClose(ctx, b)
	return b, nil
}

func (s *BudgetService) afterClose(ctx context.Context, b core.MonthlyBudget) {
	slog.InfoContext(ctx, "Budget closed",
		"household_id", b.HouseholdID,
		"budget_id", b.ID,
		"period", core.Period{Year: b.Year, Month: b.Month}.String())
	ev := amqp.NewEvent(amqp.EventMonthClosed, b.HouseholdID).ForPeriod(b.ID, b.Year, b.Month)
	if b.BankBalance != nil {
		ev.AmountCents = b.BankBalance.Cents
	}
	publish(ctx, s.events, ev)
}

func closeIn(ctx context.Context, u *storage.UnitOfWork, budgetID int64, at time.Time) (core.MonthlyBudget, error) {
	b, err := u.GetBudget(ctx, budgetID)
	if err != nil {
		return core.MonthlyBudget{}, err
	}
	if !b.Status.IsOpen() {
		return core.MonthlyBudget{}, core.NewUserError("period is already closed", core.ErrInvalidState)
	}
	if b.BankBalance == nil {
		return core.MonthlyBudget{}, core.NewUserError("cannot close, verify reconciliation", core.ErrInvalidState)
	}
	if err := u.CloseBudget(ctx, budgetID, at); err != nil {
		return core.MonthlyBudget{}, err
	}
	if err := u.EnsureBudget(ctx, core.Period{Year: b.Year, Month: b.Month}.Next()); err != nil {
		return core.MonthlyBudget{}, err
	}
	return u.GetBudget(ctx, budgetID)
}

// Reopen moves a closed period back to open. The bank balance is kept.
func (s *BudgetService) Reopen(ctx context.Context, householdID, budgetID int64) (core.MonthlyBudget, error) {
	var b core.MonthlyBudget
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		cur, err := u.GetBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		if cur.Status != core.BudgetClosed {
			return core.NewUserError("period is not closed", core.ErrInvalidState)
		}
		if err := u.ReopenBudget(ctx, budgetID); err != nil {
			return err
		}
		b, err = u.GetBudget(ctx, budgetID)
		return err
	})
	if err != nil {
		return core.MonthlyBudget{}, fmt.Errorf("reopen budget %d: %w", budgetID, err)
	}
	slog.InfoContext(ctx, "Budget reopened", "household_id", householdID, "budget_id", budgetID)
	publish(ctx, s.events, amqp.NewEvent(amqp.EventMonthReopened, householdID).ForPeriod(b.ID, b.Year, b.Month))
	return b, nil
}

// PopulateFromRecurring materializes every active template not yet present in the budget.
// A budget that is closed or not the household's yields zero without error.
func (s *BudgetService) PopulateFromRecurring(ctx context.Context, householdID, budgetID int64) (int, error) {
	var n int
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		b, err := u.GetBudget(ctx, budgetID)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if n, err = populateIn(ctx, u, b); err != nil {
			return err
		}
		if b.Status.IsOpen() {
			_, err = u.MarkRecurringPopulated(ctx, b.ID)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("populate budget %d: %w", budgetID, err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Recurring expenses materialized",
			"household_id", householdID,
			"budget_id", budgetID,
			"count", n)
	}
	return n, nil
}

// PopulateOnce populates an open budget only if it has never been populated, by hand or
// automatically. Entries the household deleted afterwards are not brought back.
func (s *BudgetService) PopulateOnce(ctx context.Context, householdID, budgetID int64) (int, error) {
	var n int
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		b, err := u.GetBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		if !b.Status.IsOpen() {
			return nil
		}
		first, err := u.MarkRecurringPopulated(ctx, b.ID)
		if err != nil || !first {
			return err
		}
		n, err = populateIn(ctx, u, b)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("populate budget %d once: %w", budgetID, err)
	}
	return n, nil
}

func populateIn(ctx context.Context, u *storage.UnitOfWork, b core.MonthlyBudget) (int, error) {
	if !b.Status.IsOpen() {
		return 0, nil
	}
	templates, err := u.ListActiveRecurring(ctx)
	if err != nil {
		return 0, err
	}
	present, err := u.RecurringIDsInBudget(ctx, b.ID)
	if err != nil {
		return 0, err
	}
	pending := core.PendingTemplates(templates, present)
	for _, t := range pending {
		if _, err := u.CreateExpense(ctx, t.Materialize(b.ID)); err != nil {
			return 0, fmt.Errorf("materialize template %d: %w", t.ID, err)
		}
	}
	return len(pending), nil
}

func validationErr(field string, err error) error {
	v := &core.ValidationError{}
	v.Add(field, err)
	return v
}
