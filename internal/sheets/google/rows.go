package google

import (
	"fmt"
	"strings"
	"time"

	"casa/internal/core"
	"casa/internal/sheets"
)

// reportRows lays a report out in six columns. Column A carries the report key on the
// first row only, so the key column doubles as an index of exported periods.
func reportRows(r sheets.MonthReport) [][]any {
	s := r.Summary
	rows := [][]any{
		{r.Key(), r.HouseholdName, r.Period.String(), "closed", r.ClosedAt.UTC().Format(time.RFC3339), ""},
		{"", "summary", "Total income", "", s.TotalIncome.Float(), ""},
		{"", "summary", "Expenses forecast", "", s.TotalExpensesForecast.Float(), ""},
		{"", "summary", "Expenses paid", "", s.TotalExpensesPaid.Float(), ""},
		{"", "summary", "Expenses unpaid", "", s.TotalExpensesUnpaid.Float(), ""},
		{"", "summary", "Available", "", s.TotalAvailable.Float(), ""},
		{"", "summary", "Bank balance", "", optionalAmount(s.BankBalance), ""},
		{"", "summary", "Discrepancy", "", optionalAmount(s.Discrepancy), ""},
	}
	for _, l := range r.Income {
		rows = append(rows, []any{"", "income", l.Category, l.Description, l.Amount.Float(), ""})
	}
	for _, l := range r.Expenses {
		rows = append(rows, []any{"", "expense", l.Category, l.Description, l.Amount.Float(), paidLabel(l.Paid)})
	}
	for _, b := range r.Boxes {
		rows = append(rows, []any{"", "savings", b.Name, "", b.Balance.Float(), ""})
	}
	return rows
}

func optionalAmount(m *core.Money) any {
	if m == nil {
		return ""
	}
	return m.Float()
}

func paidLabel(paid bool) string {
	if paid {
		return "paid"
	}
	return "unpaid"
}

// findKeyRow returns the 1-based row holding key in column A, or 0.
func findKeyRow(values [][]any, key string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == key {
			return i + 1
		}
	}
	return 0
}
