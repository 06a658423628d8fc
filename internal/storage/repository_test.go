package storage

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casa/internal/core"
)

func TestUnitOfWork_RecordTransactionInsufficientBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE savings_boxes SET balance_cents = balance_cents + ?1")).
		WithArgs(int64(-500), int64(3), int64(7), core.MaxBalanceCents).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = repo.Scoped(7).Tx(ctx, func(u *UnitOfWork) error {
		_, err := u.RecordTransaction(ctx, core.SavingsTransaction{
			BoxID:  3,
			Type:   core.Withdrawal,
			Amount: core.Money{Cents: 500},
			Source: core.TxSourceManual,
		})
		return err
	})
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_TxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE monthly_budgets SET bank_balance_cents")).
		WithArgs(int64(1000), int64(5), int64(2)).
		WillReturnError(boom)
	mock.ExpectRollback()

	err = repo.Scoped(2).Tx(ctx, func(u *UnitOfWork) error {
		return u.SetBankBalance(ctx, 5, core.Money{Cents: 1000})
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_GetBudgetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, household_id, year, month")).
		WithArgs(int64(9), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err = repo.Scoped(1).View(ctx, func(u *UnitOfWork) error {
		_, err := u.GetBudget(ctx, 9)
		return err
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueries_UpsertUserEmailConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("u-2", "ana@example.com", "Ana", sqlmock.AnyArg()).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"))

	err = q.UpsertUser(context.Background(), core.User{ID: "u-2", Email: "ana@example.com", Name: "Ana"})
	assert.ErrorIs(t, err, core.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedHousehold(t *testing.T, repo *SQLiteRepository) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := repo.Tx(ctx, func(q *Queries) error {
		if err := q.UpsertUser(ctx, core.User{ID: "u-1", Email: "owner@example.com", Name: "Owner"}); err != nil {
			return err
		}
		h, err := q.CreateHousehold(ctx, "Casa")
		if err != nil {
			return err
		}
		id = h.ID
		_, err = q.AddMember(ctx, h.ID, "u-1", core.RoleOwner)
		return err
	})
	require.NoError(t, err)
	return id
}

func TestSQLite_EnsureBudgetIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	hid := seedHousehold(t, repo)
	ctx := context.Background()
	p := core.Period{Year: 2025, Month: 3}

	var first, second core.MonthlyBudget
	err := repo.Scoped(hid).Tx(ctx, func(u *UnitOfWork) error {
		if err := u.EnsureBudget(ctx, p); err != nil {
			return err
		}
		var err error
		first, err = u.GetBudgetByPeriod(ctx, p)
		return err
	})
	require.NoError(t, err)
	err = repo.Scoped(hid).Tx(ctx, func(u *UnitOfWork) error {
		if err := u.EnsureBudget(ctx, p); err != nil {
			return err
		}
		var err error
		second, err = u.GetBudgetByPeriod(ctx, p)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, core.BudgetOpen, second.Status)
	assert.Nil(t, second.BankBalance)
}

func TestSQLite_LedgerStaysInSync(t *testing.T) {
	repo := newTestRepo(t)
	hid := seedHousehold(t, repo)
	ctx := context.Background()
	scope := repo.Scoped(hid)

	var box core.SavingsBox
	err := scope.Tx(ctx, func(u *UnitOfWork) error {
		var err error
		box, err = u.CreateBox(ctx, core.SavingsBox{Name: "Viagem"})
		if err != nil {
			return err
		}
		if _, err := u.RecordTransaction(ctx, core.SavingsTransaction{BoxID: box.ID, Type: core.Contribution, Amount: core.Money{Cents: 1000}, Source: core.TxSourceManual}); err != nil {
			return err
		}
		_, err = u.RecordTransaction(ctx, core.SavingsTransaction{BoxID: box.ID, Type: core.Withdrawal, Amount: core.Money{Cents: 300}, Source: core.TxSourceManual})
		return err
	})
	require.NoError(t, err)

	err = scope.Tx(ctx, func(u *UnitOfWork) error {
		_, err := u.RecordTransaction(ctx, core.SavingsTransaction{BoxID: box.ID, Type: core.Withdrawal, Amount: core.Money{Cents: 701}, Source: core.TxSourceManual})
		return err
	})
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	err = scope.View(ctx, func(u *UnitOfWork) error {
		b, err := u.GetBox(ctx, box.ID)
		if err != nil {
			return err
		}
		sum, err := u.LedgerSum(ctx, box.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(700), b.Balance.Cents)
		assert.Equal(t, b.Balance, sum)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_BalanceCeiling(t *testing.T) {
	repo := newTestRepo(t)
	hid := seedHousehold(t, repo)
	ctx := context.Background()
	scope := repo.Scoped(hid)

	contribute := func(boxID, cents int64) error {
		return scope.Tx(ctx, func(u *UnitOfWork) error {
			_, err := u.RecordTransaction(ctx, core.SavingsTransaction{BoxID: boxID, Type: core.Contribution, Amount: core.Money{Cents: cents}, Source: core.TxSourceManual})
			return err
		})
	}

	var box core.SavingsBox
	err := scope.Tx(ctx, func(u *UnitOfWork) error {
		var err error
		box, err = u.CreateBox(ctx, core.SavingsBox{Name: "Reserva"})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, contribute(box.ID, core.MaxBalanceCents))
	err = contribute(box.ID, 1)
	assert.ErrorIs(t, err, core.ErrTotalTooLarge)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	err = contribute(box.ID+1000, 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NotErrorIs(t, err, core.ErrTotalTooLarge)

	err = scope.View(ctx, func(u *UnitOfWork) error {
		b, err := u.GetBox(ctx, box.ID)
		if err != nil {
			return err
		}
		sum, err := u.LedgerSum(ctx, box.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, core.MaxBalanceCents, b.Balance.Cents)
		assert.Equal(t, b.Balance, sum)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_OtherHouseholdSeesNothing(t *testing.T) {
	repo := newTestRepo(t)
	hid := seedHousehold(t, repo)
	ctx := context.Background()

	var boxID int64
	err := repo.Scoped(hid).Tx(ctx, func(u *UnitOfWork) error {
		b, err := u.CreateBox(ctx, core.SavingsBox{Name: "Reserva"})
		boxID = b.ID
		return err
	})
	require.NoError(t, err)

	err = repo.Scoped(hid+1).Tx(ctx, func(u *UnitOfWork) error {
		_, err := u.RecordTransaction(ctx, core.SavingsTransaction{BoxID: boxID, Type: core.Contribution, Amount: core.Money{Cents: 10}, Source: core.TxSourceManual})
		return err
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLite_MemberBelongsToOneHousehold(t *testing.T) {
	repo := newTestRepo(t)
	seedHousehold(t, repo)
	ctx := context.Background()

	err := repo.Tx(ctx, func(q *Queries) error {
		h, err := q.CreateHousehold(ctx, "Outra")
		if err != nil {
			return err
		}
		_, err = q.AddMember(ctx, h.ID, "u-1", core.RoleOwner)
		return err
	})
	assert.ErrorIs(t, err, core.ErrConflict)
}
