// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing request bodies, path values
// and query strings. Every failure wraps errBadRequest so handlers can
// hand it straight to writeError.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"casa/internal/core"
	"casa/internal/services"
)

const (
	maxBodyBytes    = 1 << 20
	maxReceiptBytes = 16 << 20 // three base64 photos
)

// decodeJSON reads a single JSON document of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return core.NewUserError(fmt.Sprintf("request body larger than %d bytes", maxErr.Limit), errBadRequest)
		case errors.Is(err, io.EOF):
			return core.NewUserError("request body is empty", errBadRequest)
		default:
			return core.NewUserError("request body is not valid JSON", fmt.Errorf("%w: %v", errBadRequest, err))
		}
	}
	if dec.More() {
		return core.NewUserError("request body must hold a single JSON value", errBadRequest)
	}
	return nil
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewUserError(fmt.Sprintf("invalid %s %q", name, raw), errBadRequest)
	}
	return id, nil
}

// pathPeriod reads {year}/{month} from the path. Range checks belong to Period.Validate.
func pathPeriod(r *http.Request) (core.Period, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return core.Period{}, core.NewUserError("invalid year", errBadRequest)
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil {
		return core.Period{}, core.NewUserError("invalid month", errBadRequest)
	}
	return core.Period{Year: year, Month: month}, nil
}

// ParseCategoryType reads the optional ?type= filter. Empty means both kinds.
func ParseCategoryType(query url.Values) (core.CategoryType, error) {
	t := core.CategoryType(strings.TrimSpace(query.Get("type")))
	if t != "" && !t.Valid() {
		return "", core.NewUserError("type must be income or expense", errBadRequest)
	}
	return t, nil
}

// ParsePurchaseFilter reads the purchase list query. Paging and ordering are clamped
// by PurchaseFilter.Normalize; only unparseable values are rejected here.
func ParsePurchaseFilter(query url.Values) (core.PurchaseFilter, error) {
	f := core.PurchaseFilter{
		Search:    sanitizeInput(query.Get("search")),
		SortBy:    strings.TrimSpace(query.Get("sortBy")),
		SortOrder: strings.ToLower(strings.TrimSpace(query.Get("sortOrder"))),
	}

	var err error
	if f.Page, err = optionalInt(query, "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = optionalInt(query, "pageSize"); err != nil {
		return f, err
	}
	status, err := optionalInt(query, "status")
	if err != nil {
		return f, err
	}
	f.Status = core.PurchaseStatus(status)

	if f.DateFrom, err = optionalDate(query, "dateFrom", false); err != nil {
		return f, err
	}
	if f.DateTo, err = optionalDate(query, "dateTo", true); err != nil {
		return f, err
	}
	if f.PriceMin, err = optionalMoney(query, "priceMin"); err != nil {
		return f, err
	}
	if f.PriceMax, err = optionalMoney(query, "priceMax"); err != nil {
		return f, err
	}
	return f, nil
}

func optionalInt(query url.Values, key string) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewUserError(fmt.Sprintf("%s must be an integer", key), errBadRequest)
	}
	return n, nil
}

// optionalDate accepts YYYY-MM-DD or RFC 3339. A bare end date covers the whole day.
func optionalDate(query url.Values, key string, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, core.NewUserError(fmt.Sprintf("%s must be a date (YYYY-MM-DD)", key), errBadRequest)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func optionalMoney(query url.Values, key string) (*core.Money, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	cents, err := core.ParseDecimalToCents(v)
	if err != nil {
		return nil, core.NewUserError(fmt.Sprintf("%s must be an amount", key), errBadRequest)
	}
	return &core.Money{Cents: cents}, nil
}

// Small request bodies that have no home in core.
type (
	paidRequest struct {
		IsPaid *bool `json:"isPaid"`
	}

	activeRequest struct {
		Active *bool `json:"active"`
	}

	scanRequest struct {
		Images []string `json:"images"`
	}

	importRequest struct {
		Purchases []core.ReceiptData `json:"purchases"`
	}

	finalizeRequest = services.FinalizeInput
)

func (p paidRequest) Validate() error {
	if p.IsPaid == nil {
		v := &core.ValidationError{}
		v.Add("isPaid", errors.New("required"))
		return v
	}
	return nil
}

func (a activeRequest) Validate() error {
	if a.Active == nil {
		v := &core.ValidationError{}
		v.Add("active", errors.New("required"))
		return v
	}
	return nil
}
