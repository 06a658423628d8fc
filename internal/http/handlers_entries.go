package http

import (
	"net/http"

	"casa/internal/core"
)

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request, a actor) error {
	budgetID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.CreateIncomeInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	in.Description = sanitizeInput(in.Description)
	e, err := s.svc.Income.Create(r.Context(), a.HouseholdID, budgetID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, e)
	return nil
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.UpdateIncomeInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	e, err := s.svc.Income.Update(r.Context(), a.HouseholdID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, e)
	return nil
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Income.Delete(r.Context(), a.HouseholdID, id); err != nil {
		return err
	}
	writeNoContent(w)
	return nil
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, a actor) error {
	budgetID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.CreateExpenseInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	in.Description = sanitizeInput(in.Description)
	e, err := s.svc.Expenses.Create(r.Context(), a.HouseholdID, budgetID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, e)
	return nil
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.UpdateExpenseInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	e, err := s.svc.Expenses.Update(r.Context(), a.HouseholdID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, e)
	return nil
}

// handleSetPaid moves money into or out of the linked savings box along with the flag.
func (s *Server) handleSetPaid(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in paidRequest
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	e, err := s.svc.Expenses.SetPaid(r.Context(), a.HouseholdID, id, *in.IsPaid)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, e)
	return nil
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Expenses.Delete(r.Context(), a.HouseholdID, id); err != nil {
		return err
	}
	writeNoContent(w)
	return nil
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request, a actor) error {
	items, err := s.svc.Recurring.List(r.Context(), a.HouseholdID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(items))
	return nil
}

func (s *Server) handleGetRecurring(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	t, err := s.svc.Recurring.Get(r.Context(), a.HouseholdID, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, t)
	return nil
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request, a actor) error {
	var in core.CreateRecurringInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	in.Description = sanitizeInput(in.Description)
	t, err := s.svc.Recurring.Create(r.Context(), a.HouseholdID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, t)
	return nil
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.UpdateRecurringInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	t, err := s.svc.Recurring.Update(r.Context(), a.HouseholdID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, t)
	return nil
}

func (s *Server) handleSetRecurringActive(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in activeRequest
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	t, err := s.svc.Recurring.SetActive(r.Context(), a.HouseholdID, id, *in.Active)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, t)
	return nil
}

// handleDeactivateRecurring keeps the template so past expenses still reference it.
func (s *Server) handleDeactivateRecurring(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	t, err := s.svc.Recurring.Deactivate(r.Context(), a.HouseholdID, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, t)
	return nil
}
