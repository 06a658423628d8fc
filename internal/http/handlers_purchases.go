package http

import (
	"log/slog"
	"net/http"
	"time"

	"casa/internal/core"
)

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request, a actor) error {
	f, err := ParsePurchaseFilter(r.URL.Query())
	if err != nil {
		return err
	}
	page, err := s.svc.Purchases.List(r.Context(), a.User.ID, f)
	if err != nil {
		return err
	}
	page.Items = nonNil(page.Items)
	writeJSON(w, http.StatusOK, page)
	return nil
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	p, err := s.svc.Purchases.Get(r.Context(), a.User.ID, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, p)
	return nil
}

func (s *Server) handleUpdatePurchase(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.UpdatePurchaseInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	p, err := s.svc.Purchases.Update(r.Context(), a.User.ID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, p)
	return nil
}

func (s *Server) handleDeletePurchase(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Purchases.Delete(r.Context(), a.User.ID, id); err != nil {
		return err
	}
	writeNoContent(w)
	return nil
}

func (s *Server) handleImportPurchases(w http.ResponseWriter, r *http.Request, a actor) error {
	var in importRequest
	if err := decodeJSON(w, r, maxReceiptBytes, &in); err != nil {
		return err
	}
	res, err := s.svc.Purchases.Import(r.Context(), a.User.ID, in.Purchases)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, res)
	return nil
}

// handleScanReceipt stores the extracted purchase with status "needs review".
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request, a actor) error {
	var in scanRequest
	if err := decodeJSON(w, r, maxReceiptBytes, &in); err != nil {
		return err
	}
	start := time.Now()
	p, err := s.svc.Receipts.Scan(r.Context(), a.User.ID, in.Images)
	if err != nil {
		return err
	}
	slog.InfoContext(r.Context(), "Receipt scanned",
		"purchase_id", p.ID,
		"products", p.ProductCount,
		"duration", time.Since(start))
	writeJSON(w, http.StatusCreated, p)
	return nil
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request, a actor) error {
	purchaseID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.ProductInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	in.Description = sanitizeInput(in.Description)
	p, err := s.svc.Products.Create(r.Context(), a.User.ID, purchaseID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, p)
	return nil
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	p, err := s.svc.Products.Get(r.Context(), a.User.ID, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, p)
	return nil
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in core.UpdateProductInput
	if err := decodeJSON(w, r, maxBodyBytes, &in); err != nil {
		return err
	}
	p, err := s.svc.Products.Update(r.Context(), a.User.ID, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, p)
	return nil
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request, a actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Products.Delete(r.Context(), a.User.ID, id); err != nil {
		return err
	}
	writeNoContent(w)
	return nil
}
