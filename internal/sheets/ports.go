// Package sheets defines where closed-month reports are exported to.
package sheets

import (
	"context"
	"fmt"
	"time"

	"casa/internal/core"
)

// MonthReport is the snapshot of a closed period as exported to a spreadsheet.
type MonthReport struct {
	HouseholdID   int64
	HouseholdName string
	Period        core.Period
	ClosedAt      time.Time
	Summary       core.BudgetSummary
	Income        []ReportLine
	Expenses      []ReportLine
	Boxes         []BoxLine
}

// ReportLine is one income or expense entry with its category name resolved.
type ReportLine struct {
	Category    string
	Description string
	Amount      core.Money
	Paid        bool
}

// BoxLine is a savings box balance at export time.
type BoxLine struct {
	Name    string
	Balance core.Money
}

// Key identifies the report of a household period, so redelivered events do not export twice.
func (r MonthReport) Key() string {
	return ReportKey(r.HouseholdID, r.Period)
}

func ReportKey(householdID int64, p core.Period) string {
	return fmt.Sprintf("casa:%d:%s", householdID, p)
}

// ReportWriter stores a report and returns a reference to where it landed.
// Writing the same report key again must not duplicate it.
type ReportWriter interface {
	WriteMonthReport(ctx context.Context, r MonthReport) (ref string, err error)
}
