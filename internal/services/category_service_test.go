package services

import (
	"errors"
	"testing"

	"casa/internal/core"
)

func TestCategoryService_DefaultsSeeded(t *testing.T) {
	env := newTestEnv(t)

	income, err := env.categories.List(env.ctx, env.householdID, core.CategoryIncome)
	if err != nil {
		t.Fatalf("List(income) error = %v", err)
	}
	expense, err := env.categories.List(env.ctx, env.householdID, core.CategoryExpense)
	if err != nil {
		t.Fatalf("List(expense) error = %v", err)
	}
	if len(income) != len(defaultIncomeCategories) || len(expense) != len(defaultExpenseCategories) {
		t.Fatalf("seeded %d income and %d expense categories", len(income), len(expense))
	}
	for i, c := range expense {
		if c.Name != defaultExpenseCategories[i] || c.SortOrder != i {
			t.Errorf("expense category %d = %+v", i, c)
		}
	}
}

func TestCategoryService_DeleteReferenced(t *testing.T) {
	env := newTestEnv(t)
	b := env.openBudget(t, core.Period{Year: 2025, Month: 3})
	pets := env.category(t, core.CategoryExpense, "Pets")

	e, err := env.expenses.Create(env.ctx, env.householdID, b.ID, core.CreateExpenseInput{
		Description: "Vet", Amount: money(300), CategoryID: pets,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	err = env.categories.Delete(env.ctx, env.householdID, pets)
	if !errors.Is(err, core.ErrReferentialConflict) {
		t.Fatalf("Delete() error = %v, want referential conflict", err)
	}

	if err := env.expenses.Delete(env.ctx, env.householdID, e.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}
	if err := env.categories.Delete(env.ctx, env.householdID, pets); err != nil {
		t.Fatalf("Delete() after removing reference error = %v", err)
	}
}

func TestCategoryService_TemplateKeepsCategory(t *testing.T) {
	env := newTestEnv(t)
	taxes := env.category(t, core.CategoryExpense, "Taxas")
	if _, err := env.recurring.Create(env.ctx, env.householdID, core.CreateRecurringInput{
		Description: "IPTU", Amount: money(120), CategoryID: taxes,
	}); err != nil {
		t.Fatalf("create template: %v", err)
	}
	if err := env.categories.Delete(env.ctx, env.householdID, taxes); !errors.Is(err, core.ErrReferentialConflict) {
		t.Errorf("Delete() error = %v, want referential conflict", err)
	}
}

func TestCategoryService_CreateAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.categories.Create(env.ctx, env.householdID, core.CreateCategoryInput{
		Name: "Mercado", Type: core.CategoryExpense, Color: ptr("#112233"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := env.categories.Update(env.ctx, env.householdID, c.ID, core.UpdateCategoryInput{
		Name:  ptr("Supermercado"),
		Color: core.Patch[string]{Set: true},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "Supermercado" || updated.Color != nil {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := env.categories.Create(env.ctx, env.householdID, core.CreateCategoryInput{
		Name: "Bad", Type: core.CategoryExpense, Color: ptr("red"),
	}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Create() with bad color error = %v, want validation error", err)
	}
}

func TestCategoryService_OtherHousehold(t *testing.T) {
	env := newTestEnv(t)
	other := env.secondHousehold(t)
	pets := env.category(t, core.CategoryExpense, "Pets")

	if err := env.categories.Delete(env.ctx, other, pets); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Delete() from other household error = %v, want not found", err)
	}
}
