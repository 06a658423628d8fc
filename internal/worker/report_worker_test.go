package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"casa/internal/amqp"
	"casa/internal/core"
	"casa/internal/services"
	"casa/internal/sheets"
	"casa/internal/sheets/memory"
	"casa/internal/storage"
)

type fixture struct {
	ctx        context.Context
	households *services.HouseholdService
	budgets    *services.BudgetService
	savings    *services.SavingsService
	hid        int64
	budget     core.MonthlyBudget
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "casa.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	f := &fixture{
		ctx:        context.Background(),
		households: services.NewHouseholdService(repo, nil),
		budgets:    services.NewBudgetService(repo, nil),
		savings:    services.NewSavingsService(repo, nil),
	}
	owner := core.User{ID: "u-1", Email: "u1@example.com", Name: "Ana"}
	if err := f.households.EnsureUser(f.ctx, owner); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	h, err := f.households.Create(f.ctx, owner, core.CreateHouseholdInput{Name: "Casa"})
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	f.hid = h.ID

	cats, err := services.NewCategoryService(repo).List(f.ctx, f.hid, "")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	byName := map[string]int64{}
	for _, c := range cats {
		byName[c.Name] = c.ID
	}

	b, err := f.budgets.GetOrCreate(f.ctx, f.hid, core.Period{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if _, err := services.NewIncomeService(repo).Create(f.ctx, f.hid, b.ID, core.CreateIncomeInput{
		Description: "Salary", Amount: core.Money{Cents: 500000}, CategoryID: byName["Salario"],
	}); err != nil {
		t.Fatalf("income: %v", err)
	}
	if _, err := services.NewExpenseService(repo).Create(f.ctx, f.hid, b.ID, core.CreateExpenseInput{
		Description: "Rent", Amount: core.Money{Cents: 180000}, CategoryID: byName["Moradia"], IsPaid: true,
	}); err != nil {
		t.Fatalf("expense: %v", err)
	}
	if _, err := f.savings.Create(f.ctx, f.hid, core.CreateSavingsBoxInput{Name: "Viagem"}); err != nil {
		t.Fatalf("box: %v", err)
	}
	if _, err := f.budgets.Reconcile(f.ctx, f.hid, b.ID, core.ReconcileInput{BankBalance: core.Money{Cents: 300000}}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	f.budget = b
	return f
}

func (f *fixture) closedEvent() *amqp.Event {
	return amqp.NewEvent(amqp.EventMonthClosed, f.hid).ForPeriod(f.budget.ID, 2025, 3)
}

func TestReportWorker_ExportsClosedMonth(t *testing.T) {
	f := newFixture(t)
	if _, err := f.budgets.Close(f.ctx, f.hid, f.budget.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	store := memory.New()
	w := NewReportWorker(f.households, f.budgets, f.savings, store)

	if err := w.HandleEvent(f.ctx, f.closedEvent()); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	// At-least-once delivery: a duplicate must not add a second report.
	if err := w.HandleEvent(f.ctx, f.closedEvent()); err != nil {
		t.Fatalf("HandleEvent() duplicate error = %v", err)
	}

	reports := store.Reports()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	r := reports[0]
	if r.HouseholdName != "Casa" || r.Period != (core.Period{Year: 2025, Month: 3}) || r.ClosedAt.IsZero() {
		t.Errorf("report header = %+v", r)
	}
	if len(r.Income) != 1 || r.Income[0].Category != "Salario" {
		t.Errorf("income lines = %+v", r.Income)
	}
	if len(r.Expenses) != 1 || !r.Expenses[0].Paid || r.Expenses[0].Amount.Cents != 180000 {
		t.Errorf("expense lines = %+v", r.Expenses)
	}
	if len(r.Boxes) != 1 || r.Boxes[0].Name != "Viagem" {
		t.Errorf("boxes = %+v", r.Boxes)
	}
	if d := r.Summary.Discrepancy; d == nil || d.Cents != -20000 {
		t.Errorf("discrepancy = %v, want -200.00", d)
	}
}

func TestReportWorker_SkipsReopenedPeriod(t *testing.T) {
	f := newFixture(t)
	store := memory.New()
	w := NewReportWorker(f.households, f.budgets, f.savings, store)

	// The period was never closed (or was reopened) by the time the event arrives.
	if err := w.HandleEvent(f.ctx, f.closedEvent()); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if n := len(store.Reports()); n != 0 {
		t.Errorf("reports = %d, want 0", n)
	}
}

type failingWriter struct{}

func (failingWriter) WriteMonthReport(context.Context, sheets.MonthReport) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestReportWorker_WriterFailureRequeues(t *testing.T) {
	f := newFixture(t)
	if _, err := f.budgets.Close(f.ctx, f.hid, f.budget.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	w := NewReportWorker(f.households, f.budgets, f.savings, failingWriter{})
	if err := w.HandleEvent(f.ctx, f.closedEvent()); err == nil {
		t.Error("HandleEvent() should surface writer errors so the event is retried")
	}
}

func TestReportWorker_IgnoresOtherEvents(t *testing.T) {
	w := NewReportWorker(nil, nil, nil, failingWriter{})
	ctx := context.Background()
	for _, typ := range []string{amqp.EventMonthReopened, amqp.EventSavingsDistributed, "something.else"} {
		if err := w.HandleEvent(ctx, amqp.NewEvent(typ, 1)); err != nil {
			t.Errorf("HandleEvent(%s) error = %v", typ, err)
		}
	}
	// Malformed period is dropped rather than retried forever.
	if err := w.HandleEvent(ctx, amqp.NewEvent(amqp.EventMonthClosed, 1)); err != nil {
		t.Errorf("malformed month.closed error = %v", err)
	}
}
