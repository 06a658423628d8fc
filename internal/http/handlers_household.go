package http

import (
	"log/slog"
	"net/http"

	"casa/internal/core"
)

func (s *Server) handleCreateHousehold(w http.ResponseWriter, r *http.Request, a actor) error {
	var in core.CreateHouseholdInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	in.Name = sanitizeInput(in.Name)
	h, err := s.svc.Households.Create(r.Context(), a.User, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, h)
	return nil
}

func (s *Server) handleGetHousehold(w http.ResponseWriter, r *http.Request, a actor) error {
	h, err := s.svc.Households.Get(r.Context(), a.HouseholdID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, h)
	return nil
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request, a actor) error {
	var in core.InviteMemberInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	m, err := s.svc.Households.AddMember(r.Context(), a.HouseholdID, a.User.ID, in)
	if err != nil {
		return err
	}
	slog.InfoContext(r.Context(), "Member added", "household_id", a.HouseholdID, "member_id", m.ID)
	writeJSON(w, http.StatusCreated, m)
	return nil
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request, a actor) error {
	memberID, err := pathID(r, "memberId")
	if err != nil {
		return err
	}
	if err := s.svc.Households.RemoveMember(r.Context(), a.HouseholdID, a.User.ID, memberID); err != nil {
		return err
	}
	writeNoContent(w)
	return nil
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, a actor) error {
	typ, err := ParseCategoryType(r.URL.Query())
	if err != nil {
		return err
	}
	cats, err := s.svc.Categories.List(r.Context(), a.HouseholdID, typ)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(cats))
	return nil
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, a actor) error {
	var in core.CreateCategoryInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	in.Name = sanitizeInput(in.Name)
	c, err := s.svc.Categories.Create(r.Context(), a.HouseholdID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, c)
	return nil
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.UpdateCategoryInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	c, err := s.svc.Categories.Update(r.Context(), a.HouseholdID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, c)
	return nil
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Categories.Delete(r.Context(), a.HouseholdID, id); err != nil {
		return err
	}
	writeNoContent(w)
	return nil
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
