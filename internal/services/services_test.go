package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"casa/internal/amqp"
	"casa/internal/cache"
	"casa/internal/core"
	"casa/internal/storage"
)

// recordingPublisher keeps every published event for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev *amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	ctx         context.Context
	repo        *storage.SQLiteRepository
	events      *recordingPublisher
	households  *HouseholdService
	budgets     *BudgetService
	categories  *CategoryService
	income      *IncomeService
	expenses    *ExpenseService
	recurring   *RecurringService
	savings     *SavingsService
	closing     *ClosingService
	purchases   *PurchaseService
	products    *ProductService
	householdID int64
	owner       core.User
}

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithPolicy(t, DistributionWithinBalance)
}

func newTestEnvWithPolicy(t *testing.T, policy DistributionPolicy) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "casa.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	events := &recordingPublisher{}
	budgets := NewBudgetService(repo, events)
	budgets.now = func() time.Time { return fixedNow }
	env := &testEnv{
		ctx:        context.Background(),
		repo:       repo,
		events:     events,
		households: NewHouseholdService(repo, cache.NewLRUCache[int64](10, time.Minute)),
		budgets:    budgets,
		categories: NewCategoryService(repo),
		income:     NewIncomeService(repo),
		expenses:   NewExpenseService(repo),
		recurring:  NewRecurringService(repo),
		savings:    NewSavingsService(repo, events),
		closing:    NewClosingService(repo, budgets, events, policy),
		purchases:  NewPurchaseService(repo),
		products:   NewProductService(repo),
		owner:      core.User{ID: "owner-1", Email: "owner@example.com", Name: "Owner"},
	}
	env.expenses.now = func() time.Time { return fixedNow }
	env.purchases.now = func() time.Time { return fixedNow }

	if err := env.households.EnsureUser(env.ctx, env.owner); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	h, err := env.households.Create(env.ctx, env.owner, core.CreateHouseholdInput{Name: "Casa"})
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	env.householdID = h.ID
	return env
}

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func ptr[T any](v T) *T { return &v }

// category returns the id of a seeded category by name.
func (e *testEnv) category(t *testing.T, typ core.CategoryType, name string) int64 {
	t.Helper()
	cats, err := e.categories.List(e.ctx, e.householdID, typ)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	for _, c := range cats {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %q not found", name)
	return 0
}

func (e *testEnv) openBudget(t *testing.T, p core.Period) core.MonthlyBudget {
	t.Helper()
	b, err := e.budgets.GetOrCreate(e.ctx, e.householdID, p)
	if err != nil {
		t.Fatalf("get or create %s: %v", p, err)
	}
	return b
}

func (e *testEnv) box(t *testing.T, name string) core.SavingsBox {
	t.Helper()
	b, err := e.savings.Create(e.ctx, e.householdID, core.CreateSavingsBoxInput{Name: name})
	if err != nil {
		t.Fatalf("create box %q: %v", name, err)
	}
	return b
}

func (e *testEnv) balance(t *testing.T, boxID int64) int64 {
	t.Helper()
	d, err := e.savings.Get(e.ctx, e.householdID, boxID)
	if err != nil {
		t.Fatalf("get box %d: %v", boxID, err)
	}
	return d.Balance.Cents
}

// secondHousehold creates another household with its own owner.
func (e *testEnv) secondHousehold(t *testing.T) int64 {
	t.Helper()
	other := core.User{ID: "owner-2", Email: "other@example.com", Name: "Other"}
	if err := e.households.EnsureUser(e.ctx, other); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	h, err := e.households.Create(e.ctx, other, core.CreateHouseholdInput{Name: "Outra casa"})
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return h.ID
}
