package services

import (
	"context"
	"fmt"
	"log/slog"

	"casa/internal/amqp"
	"casa/internal/core"
	"casa/internal/storage"
)

// SavingsService is the caixinha ledger. A box balance only moves through
// storage.UnitOfWork.RecordTransaction and ReverseTransaction, each paired with its transaction row.
type SavingsService struct {
	repo   *storage.SQLiteRepository
	events EventPublisher
}

func NewSavingsService(repo *storage.SQLiteRepository, events EventPublisher) *SavingsService {
	return &SavingsService{repo: repo, events: events}
}

// List returns the household's boxes by name.
func (s *SavingsService) List(ctx context.Context, householdID int64) ([]core.SavingsBox, error) {
	var out []core.SavingsBox
	err := s.repo.Scoped(householdID).View(ctx, func(u *storage.UnitOfWork) error {
		var err error
		out, err = u.ListBoxes(ctx)
		return err
	})
	return out, err
}

// Get returns a box with its history, newest first, and goal progress.
func (s *SavingsService) Get(ctx context.Context, householdID, id int64) (core.SavingsBoxDetail, error) {
	var d core.SavingsBoxDetail
	err := s.repo.Scoped(householdID).View(ctx, func(u *storage.UnitOfWork) error {
		box, err := u.GetBox(ctx, id)
		if err != nil {
			return err
		}
		txs, err := u.ListTransactions(ctx, id)
		if err != nil {
			return err
		}
		d = core.SavingsBoxDetail{SavingsBox: box, Transactions: txs, GoalProgress: box.GoalProgress()}
		return nil
	})
	return d, err
}

func (s *SavingsService) Create(ctx context.Context, householdID int64, in core.CreateSavingsBoxInput) (core.SavingsBox, error) {
	if err := in.Validate(); err != nil {
		return core.SavingsBox{}, err
	}
	var b core.SavingsBox
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		var err error
		b, err = u.CreateBox(ctx, core.SavingsBox{
			Name:          in.Name,
			MonthlyTarget: in.MonthlyTarget,
			GoalAmount:    in.GoalAmount,
			Icon:          in.Icon,
			Color:         in.Color,
		})
		return err
	})
	return b, err
}

func (s *SavingsService) Update(ctx context.Context, householdID, id int64, in core.UpdateSavingsBoxInput) (core.SavingsBox, error) {
	if err := in.Validate(); err != nil {
		return core.SavingsBox{}, err
	}
	var b core.SavingsBox
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		cur, err := u.GetBox(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			cur.Name = *in.Name
		}
		cur.MonthlyTarget = in.MonthlyTarget.Apply(cur.MonthlyTarget)
		cur.GoalAmount = in.GoalAmount.Apply(cur.GoalAmount)
		cur.Icon = in.Icon.Apply(cur.Icon)
		cur.Color = in.Color.Apply(cur.Color)
		if err := u.UpdateBox(ctx, cur); err != nil {
			return err
		}
		b = cur
		return nil
	})
	if err != nil {
		return core.SavingsBox{}, fmt.Errorf("update savings box %d: %w", id, err)
	}
	return b, nil
}

// Delete removes an empty box together with its history.
func (s *SavingsService) Delete(ctx context.Context, householdID, id int64) error {
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		box, err := u.GetBox(ctx, id)
		if err != nil {
			return err
		}
		if box.Balance.Cents != 0 {
			return core.NewUserError("withdraw the balance before deleting the savings box", core.ErrInvalidState)
		}
		return u.DeleteEmptyBox(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete savings box %d: %w", id, err)
	}
	return nil
}

// AddTransaction records a manual or closing movement. A withdrawal above the balance
// fails with core.ErrInsufficientBalance, indistinguishable from a missing box.
func (s *SavingsService) AddTransaction(ctx context.Context, householdID, boxID int64, in core.SavingsTransactionInput) (core.SavingsTransaction, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return core.SavingsTransaction{}, err
	}
	var t core.SavingsTransaction
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		var err error
		t, err = u.RecordTransaction(ctx, core.SavingsTransaction{
			BoxID:       boxID,
			Type:        in.Type,
			Amount:      in.Amount,
			Description: in.Description,
			Source:      in.Source,
		})
		return err
	})
	if err != nil {
		return core.SavingsTransaction{}, fmt.Errorf("add transaction to box %d: %w", boxID, err)
	}
	slog.InfoContext(ctx, "Savings transaction recorded",
		"household_id", householdID,
		"box_id", boxID,
		"type", t.Type,
		"amount", t.Amount.String())
	return t, nil
}

// DeleteTransaction reverses a manual or closing transaction. Linked contributions belong
// to their expense entry and are removed by marking it unpaid.
func (s *SavingsService) DeleteTransaction(ctx context.Context, householdID, txID int64) error {
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		t, err := u.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if t.Source == core.TxSourceExpenseLink {
			return core.NewUserError("linked transactions are removed through their expense", core.ErrInvalidState)
		}
		_, err = u.ReverseTransaction(ctx, txID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete savings transaction %d: %w", txID, err)
	}
	return nil
}

// DistributeClosingBalance credits every allocation as a closing contribution, all or nothing.
// The allocation total is not compared with any balance here; ClosingService applies that policy.
func (s *SavingsService) DistributeClosingBalance(ctx context.Context, householdID int64, in core.DistributeInput) ([]core.SavingsTransaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out []core.SavingsTransaction
	err := s.repo.Scoped(householdID).Tx(ctx, func(u *storage.UnitOfWork) error {
		var err error
		out, err = distributeIn(ctx, u, in.Allocations)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("distribute closing balance: %w", err)
	}
	publishDistributed(ctx, s.events, householdID, 0, in.Total())
	return out, nil
}

func distributeIn(ctx context.Context, u *storage.UnitOfWork, allocations []core.Allocation) ([]core.SavingsTransaction, error) {
	desc := core.ClosingDescription
	out := make([]core.SavingsTransaction, 0, len(allocations))
	for _, a := range allocations {
		t, err := u.RecordTransaction(ctx, core.SavingsTransaction{
			BoxID:       a.SavingsBoxID,
			Type:        core.Contribution,
			Amount:      a.Amount,
			Description: &desc,
			Source:      core.TxSourceClosing,
		})
		if err != nil {
			return nil, fmt.Errorf("allocate to box %d: %w", a.SavingsBoxID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func publishDistributed(ctx context.Context, events EventPublisher, householdID, budgetID int64, total core.Money) {
	ev := amqp.NewEvent(amqp.EventSavingsDistributed, householdID)
	ev.BudgetID = budgetID
	ev.AmountCents = total.Cents
	publish(ctx, events, ev)
}
