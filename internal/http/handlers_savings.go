package http

import (
	"net/http"

	"casa/internal/core"
)

func (s *Server) handleListBoxes(w http.ResponseWriter, r *http.Request, a actor) error {
	boxes, err := s.svc.Savings.List(r.Context(), a.HouseholdID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(boxes))
	return nil
}

func (s *Server) handleGetBox(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	d, err := s.svc.Savings.Get(r.Context(), a.HouseholdID, id)
	if err != nil {
		return err
	}
	d.Transactions = nonNil(d.Transactions)
	writeJSON(w, http.StatusOK, d)
	return nil
}

func (s *Server) handleCreateBox(w http.ResponseWriter, r *http.Request, a actor) error {
	var in core.CreateSavingsBoxInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	in.Name = sanitizeInput(in.Name)
	b, err := s.svc.Savings.Create(r.Context(), a.HouseholdID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, b)
	return nil
}

func (s *Server) handleUpdateBox(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.UpdateSavingsBoxInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	b, err := s.svc.Savings.Update(r.Context(), a.HouseholdID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, b)
	return nil
}

func (s *Server) handleDeleteBox(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Savings.Delete(r.Context(), a.HouseholdID, id); err != nil {
		return err
	}
	writeNoContent(w)
	return nil
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request, a actor) error {
	boxID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.SavingsTransactionInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	t, err := s.svc.Savings.AddTransaction(r.Context(), a.HouseholdID, boxID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, t)
	return nil
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Savings.DeleteTransaction(r.Context(), a.HouseholdID, id); err != nil {
		return err
	}
	writeNoContent(w)
	return nil
}

// handleDistributeBalance credits closing contributions without touching any budget.
func (s *Server) handleDistributeBalance(w http.ResponseWriter, r *http.Request, a actor) error {
	var in core.DistributeInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	txs, err := s.svc.Savings.DistributeClosingBalance(r.Context(), a.HouseholdID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, nonNil(txs))
	return nil
}
