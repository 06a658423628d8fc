package services

import (
	"context"
	"fmt"

	"casa/internal/core"
	"casa/internal/storage"
)

type CategoryService struct {
	repo *storage.SQLiteRepository
}

func NewCategoryService(repo *storage.SQLiteRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

// List returns categories by sort order; an empty typ lists both kinds.
func (s *CategoryService) List(ctx context.Context, householdID int64, typ core.CategoryType) ([]core.Category, error) {
	if typ != "" && !typ.Valid() {
		return nil, validationErr("type", core.ErrInvalidEnum)
	}
	var out []core.Category
	err := s.repo.Scoped(householdID).View(ctx, func(u *storage.UnitOfWork) error {
		var err error
		out, err = u.ListCategories(ctx, typ)
		return err
	})
	return out, err
}

func (s *CategoryService) Create(ctx context.Context, householdID int64, in core.CreateCategoryInput) (core.Category, error) {
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}
	var c core.Category
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		var err error
		c, err = u.CreateCategory(ctx, core.Category{
			Name:      in.Name,
			Type:      in.Type,
			Icon:      in.Icon,
			Color:     in.Color,
			SortOrder: in.SortOrder,
		})
		return err
	})
	return c, err
}

// Update changes presentation fields; the type of a category is fixed at creation.
func (s *CategoryService) Update(ctx context.Context, householdID, id int64, in core.UpdateCategoryInput) (core.Category, error) {
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}
	var c core.Category
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		cur, err := u.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			cur.Name = *in.Name
		}
		if in.SortOrder != nil {
			cur.SortOrder = *in.SortOrder
		}
		cur.Icon = in.Icon.Apply(cur.Icon)
		cur.Color = in.Color.Apply(cur.Color)
		if err := u.UpdateCategory(ctx, cur); err != nil {
			return err
		}
		c = cur
		return nil
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", id, err)
	}
	return c, nil
}

// Delete removes an unreferenced category.
func (s *CategoryService) Delete(ctx context.Context, householdID, id int64) error {
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		if _, err := u.GetCategory(ctx, id); err != nil {
			return err
		}
		refs, err := u.CategoryReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return core.NewUserError(
				fmt.Sprintf("category is used by %d entries or recurring expenses", refs),
				core.ErrReferentialConflict)
		}
		return u.DeleteCategory(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return nil
}

// seedDefaultCategories inserts the starter categories of a new household.
func seedDefaultCategories(ctx context.Context, u *storage.UnitOfWork) error {
	seed := func(typ core.CategoryType, names []string) error {
		for i, name := range names {
			if _, err := u.CreateCategory(ctx, core.Category{Name: name, Type: typ, SortOrder: i}); err != nil {
				return fmt.Errorf("seed category %s: %w", name, err)
			}
		}
		return nil
	}
	if err := seed(core.CategoryIncome, defaultIncomeCategories); err != nil {
		return err
	}
	return seed(core.CategoryExpense, defaultExpenseCategories)
}

var (
	defaultIncomeCategories  = []string{"Salario", "Freelance", "Rendimentos", "Outros"}
	defaultExpenseCategories = []string{"Moradia", "Transporte", "Alimentacao", "Lazer", "Pets", "Seguros", "Taxas"}
)
