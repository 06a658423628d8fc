package core

// BudgetSummary is derived on every read and never stored.
type BudgetSummary struct {
	TotalIncome           Money  `json:"totalIncome"`
	TotalExpensesForecast Money  `json:"totalExpensesForecast"`
	TotalExpensesPaid     Money  `json:"totalExpensesPaid"`
	TotalExpensesUnpaid   Money  `json:"totalExpensesUnpaid"`
	TotalAvailable        Money  `json:"totalAvailable"`
	BankBalance           *Money `json:"bankBalance"`
	Discrepancy           *Money `json:"discrepancy"`
}

// ComputeSummary aggregates a period's entries.
// Discrepancy is bankBalance - totalAvailable and is only set once the period has been reconciled.
// Totals past MaxBalanceCents yield ErrTotalTooLarge instead of a wrapped value.
func ComputeSummary(incomes []IncomeEntry, expenses []ExpenseEntry, bankBalance *Money) (BudgetSummary, error) {
	var income, forecast, paid int64
	var ok bool
	for _, e := range incomes {
		if income, ok = AddCents(income, e.Amount.Cents); !ok {
			return BudgetSummary{}, ErrTotalTooLarge
		}
	}
	for _, e := range expenses {
		if forecast, ok = AddCents(forecast, e.Amount.Cents); !ok {
			return BudgetSummary{}, ErrTotalTooLarge
		}
		if e.IsPaid {
			paid += e.Amount.Cents
		}
	}

	// income and forecast are within MaxBalanceCents, so these differences fit in int64.
	s := BudgetSummary{
		TotalIncome:           Money{Cents: income},
		TotalExpensesForecast: Money{Cents: forecast},
		TotalExpensesPaid:     Money{Cents: paid},
		TotalExpensesUnpaid:   Money{Cents: forecast - paid},
		TotalAvailable:        Money{Cents: income - forecast},
	}
	if bankBalance != nil {
		bb := *bankBalance
		d, ok := AddCents(bb.Cents, -s.TotalAvailable.Cents)
		if !ok {
			return BudgetSummary{}, ErrTotalTooLarge
		}
		s.BankBalance = &bb
		s.Discrepancy = &Money{Cents: d}
	}
	return s, nil
}
