package http

import (
	"log/slog"
	"net/http"

	"casa/internal/core"
)

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request, a actor) error {
	budgets, err := s.svc.Budgets.List(r.Context(), a.HouseholdID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(budgets))
	return nil
}

// handleBudgetDetail creates the period on first access.
func (s *Server) handleBudgetDetail(w http.ResponseWriter, r *http.Request, a actor) error {
	p, err := pathPeriod(r)
	if err != nil {
		return err
	}
	d, err := s.svc.Budgets.Detail(r.Context(), a.HouseholdID, p)
	if err != nil {
		return err
	}
	d.Income = nonNil(d.Income)
	d.Expenses = nonNil(d.Expenses)
	writeJSON(w, http.StatusOK, d)
	return nil
}

func (s *Server) handleBudgetSummary(w http.ResponseWriter, r *http.Request, a actor) error {
	p, err := pathPeriod(r)
	if err != nil {
		return err
	}
	sum, err := s.svc.Budgets.Summary(r.Context(), a.HouseholdID, p)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sum)
	return nil
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.ReconcileInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	b, err := s.svc.Closing.Reconcile(r.Context(), a.HouseholdID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, b)
	return nil
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.DistributeInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	txs, err := s.svc.Closing.Distribute(r.Context(), a.HouseholdID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, nonNil(txs))
	return nil
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	b, err := s.svc.Closing.Close(r.Context(), a.HouseholdID, id)
	if err != nil {
		return err
	}
	slog.InfoContext(r.Context(), "Month closed", "budget_id", b.ID, "year", b.Year, "month", b.Month)
	writeJSON(w, http.StatusOK, b)
	return nil
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	b, err := s.svc.Closing.Reopen(r.Context(), a.HouseholdID, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, b)
	return nil
}

// handleFinalize reconciles, distributes and closes in one transaction.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in finalizeRequest
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	res, err := s.svc.Closing.Finalize(r.Context(), a.HouseholdID, id, in)
	if err != nil {
		return err
	}
	res.Transactions = nonNil(res.Transactions)
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) handlePopulate(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	n, err := s.svc.Budgets.PopulateFromRecurring(r.Context(), a.HouseholdID, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": n})
	return nil
}
