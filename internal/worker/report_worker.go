// Package worker consumes domain events and exports closed months to the report sheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"casa/internal/amqp"
	"casa/internal/core"
	"casa/internal/services"
	"casa/internal/sheets"
)

// Sources are the read sides the report is assembled from.
type (
	HouseholdReader interface {
		Get(ctx context.Context, householdID int64) (core.Household, error)
	}
	BudgetReader interface {
		Detail(ctx context.Context, householdID int64, p core.Period) (services.BudgetDetail, error)
	}
	BoxLister interface {
		List(ctx context.Context, householdID int64) ([]core.SavingsBox, error)
	}
)

// ReportWorker turns month.closed events into spreadsheet reports.
type ReportWorker struct {
	households HouseholdReader
	budgets    BudgetReader
	boxes      BoxLister
	writer     sheets.ReportWriter
}

func NewReportWorker(households HouseholdReader, budgets BudgetReader, boxes BoxLister, writer sheets.ReportWriter) *ReportWorker {
	return &ReportWorker{
		households: households,
		budgets:    budgets,
		boxes:      boxes,
		writer:     writer,
	}
}

// HandleEvent is the AMQP consumer callback. Returning an error requeues the event once.
func (w *ReportWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	switch ev.Type {
	case amqp.EventMonthClosed:
		return w.exportClosedMonth(ctx, ev)
	case amqp.EventMonthReopened, amqp.EventSavingsDistributed:
		slog.InfoContext(ctx, "Event noted",
			"type", ev.Type,
			"household_id", ev.HouseholdID,
			"budget_id", ev.BudgetID,
			"amount_cents", ev.AmountCents)
		return nil
	default:
		slog.WarnContext(ctx, "Ignoring unknown event type", "type", ev.Type, "id", ev.ID)
		return nil
	}
}

func (w *ReportWorker) exportClosedMonth(ctx context.Context, ev *amqp.Event) error {
	period := core.Period{Year: ev.Year, Month: ev.Month}
	if ev.HouseholdID <= 0 || period.Validate() != nil {
		// Redelivering a malformed event cannot fix it.
		slog.ErrorContext(ctx, "Dropping malformed month.closed event", "id", ev.ID, "household_id", ev.HouseholdID, "period", period.String())
		return nil
	}

	report, err := w.BuildReport(ctx, ev.HouseholdID, period)
	if err != nil {
		return fmt.Errorf("build report %s: %w", period, err)
	}
	if report == nil {
		slog.InfoContext(ctx, "Period reopened before export, skipping",
			"household_id", ev.HouseholdID,
			"period", period.String())
		return nil
	}

	start := time.Now()
	ref, err := w.writer.WriteMonthReport(ctx, *report)
	if err != nil {
		return fmt.Errorf("write report %s: %w", report.Key(), err)
	}
	slog.InfoContext(ctx, "Month report exported",
		"household_id", ev.HouseholdID,
		"period", period.String(),
		"ref", ref,
		"income_lines", len(report.Income),
		"expense_lines", len(report.Expenses),
		"duration", time.Since(start))
	return nil
}

// BuildReport loads the household, the period and the savings boxes concurrently.
// It returns nil when the period is no longer closed.
func (w *ReportWorker) BuildReport(ctx context.Context, householdID int64, p core.Period) (*sheets.MonthReport, error) {
	var (
		household core.Household
		detail    services.BudgetDetail
		boxes     []core.SavingsBox
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		household, err = w.households.Get(gctx, householdID)
		return err
	})
	g.Go(func() error {
		var err error
		detail, err = w.budgets.Detail(gctx, householdID, p)
		return err
	})
	g.Go(func() error {
		var err error
		boxes, err = w.boxes.List(gctx, householdID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := detail.Budget
	if b.Status != core.BudgetClosed {
		return nil, nil
	}

	r := &sheets.MonthReport{
		HouseholdID:   householdID,
		HouseholdName: household.Name,
		Period:        p,
		Summary:       detail.Summary,
	}
	if b.ClosedAt != nil {
		r.ClosedAt = *b.ClosedAt
	}
	for _, e := range detail.Income {
		r.Income = append(r.Income, sheets.ReportLine{Category: e.CategoryName, Description: e.Description, Amount: e.Amount})
	}
	for _, e := range detail.Expenses {
		r.Expenses = append(r.Expenses, sheets.ReportLine{Category: e.CategoryName, Description: e.Description, Amount: e.Amount, Paid: e.IsPaid})
	}
	for _, bx := range boxes {
		r.Boxes = append(r.Boxes, sheets.BoxLine{Name: bx.Name, Balance: bx.Balance})
	}
	return r, nil
}
