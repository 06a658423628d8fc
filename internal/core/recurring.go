package core

const (
	TemplateActive   TemplateState = "active"
	TemplateInactive TemplateState = "inactive"
)

// TemplateState is the lifecycle of a recurring expense template.
// Inactive templates are kept so entries already materialized from them stay valid.
type TemplateState string

// TemplateStateOf maps the persisted is_active flag onto a state.
func TemplateStateOf(active bool) TemplateState {
	if active {
		return TemplateActive
	}
	return TemplateInactive
}

func (s TemplateState) IsActive() bool { return s == TemplateActive }

// DueDay returns the template's day of month within p, or nil when the template has none.
func (r RecurringExpense) DueDay(p Period) *int {
	if r.DayOfMonth == nil {
		return nil
	}
	d := p.ClampDay(*r.DayOfMonth)
	return &d
}

// Materialize builds the unpaid, recurring-sourced entry this template contributes to a budget.
func (r RecurringExpense) Materialize(budgetID int64) ExpenseEntry {
	id := r.ID
	return ExpenseEntry{
		BudgetID:           budgetID,
		CategoryID:         r.CategoryID,
		Description:        r.Description,
		Amount:             r.Amount,
		Source:             SourceRecurring,
		RecurringExpenseID: &id,
	}
}

// PendingTemplates returns the active templates not yet materialized, given the template ids already present.
func PendingTemplates(templates []RecurringExpense, present map[int64]bool) []RecurringExpense {
	var out []RecurringExpense
	for _, t := range templates {
		if !t.State.IsActive() || present[t.ID] {
			continue
		}
		out = append(out, t)
	}
	return out
}
