package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"casa/internal/core"
)

func TestParsePurchaseFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		wantErr bool
		check   func(t *testing.T, f core.PurchaseFilter)
	}{
		{
			name:  "empty query",
			query: url.Values{},
			check: func(t *testing.T, f core.PurchaseFilter) {
				if f.Page != 0 || f.DateFrom != nil || f.PriceMin != nil || f.Status != 0 {
					t.Errorf("filter = %+v, want zero values", f)
				}
			},
		},
		{
			name: "all values provided",
			query: url.Values{
				"search": {"  feira\x00 "}, "status": {"2"}, "page": {"3"}, "pageSize": {"25"},
				"sortBy": {"totalValue"}, "sortOrder": {"ASC"},
				"dateFrom": {"2025-03-01"}, "dateTo": {"2025-03-31"},
				"priceMin": {"10"}, "priceMax": {"99.90"},
			},
			check: func(t *testing.T, f core.PurchaseFilter) {
				if f.Search != "feira" {
					t.Errorf("Search = %q, want sanitized %q", f.Search, "feira")
				}
				if f.Status != core.PurchaseNeedsReview || f.Page != 3 || f.PageSize != 25 {
					t.Errorf("status/page = %v/%d/%d", f.Status, f.Page, f.PageSize)
				}
				if f.SortBy != "totalValue" || f.SortOrder != "asc" {
					t.Errorf("sort = %s %s", f.SortBy, f.SortOrder)
				}
				if f.DateTo == nil || f.DateTo.Day() != 31 || f.DateTo.Hour() != 23 {
					t.Errorf("DateTo = %v, want end of 31st", f.DateTo)
				}
				if f.PriceMin == nil || f.PriceMin.Cents != 1000 || f.PriceMax == nil || f.PriceMax.Cents != 9990 {
					t.Errorf("price range = %v..%v", f.PriceMin, f.PriceMax)
				}
			},
		},
		{
			name:  "rfc3339 date",
			query: url.Values{"dateFrom": {"2025-03-01T10:00:00Z"}},
			check: func(t *testing.T, f core.PurchaseFilter) {
				if f.DateFrom == nil || f.DateFrom.Hour() != 10 {
					t.Errorf("DateFrom = %v", f.DateFrom)
				}
			},
		},
		{name: "bad page", query: url.Values{"page": {"two"}}, wantErr: true},
		{name: "bad date", query: url.Values{"dateTo": {"31/03/2025"}}, wantErr: true},
		{name: "bad price", query: url.Values{"priceMax": {"lots"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParsePurchaseFilter(tt.query)
			if tt.wantErr {
				if !errors.Is(err, errBadRequest) {
					t.Errorf("error = %v, want bad request", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, f)
		})
	}
}

func TestParseCategoryType(t *testing.T) {
	tests := []struct {
		raw     string
		want    core.CategoryType
		wantErr bool
	}{
		{"", "", false},
		{"income", core.CategoryIncome, false},
		{" expense ", core.CategoryExpense, false},
		{"gift", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCategoryType(url.Values{"type": {tt.raw}})
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCategoryType(%q) = %q, %v", tt.raw, got, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		limit   int64
		wantErr string
	}{
		{"valid", `{"name":"Casa"}`, maxBodyBytes, ""},
		{"empty", ``, maxBodyBytes, "empty"},
		{"malformed", `{"name":`, maxBodyBytes, "not valid JSON"},
		{"trailing value", `{"name":"a"} {"name":"b"}`, maxBodyBytes, "single JSON value"},
		{"too large", `{"name":"` + strings.Repeat("x", 64) + `"}`, 16, "larger than"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in core.CreateHouseholdInput
			err := decodeJSON(httptest.NewRecorder(), r, tt.limit, &in)
			if tt.wantErr == "" {
				if err != nil || in.Name != "Casa" {
					t.Errorf("decodeJSON() = %v, name %q", err, in.Name)
				}
				return
			}
			if !errors.Is(err, errBadRequest) || !strings.Contains(core.UserMessage(err), tt.wantErr) {
				t.Errorf("decodeJSON() error = %v, want message containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPathValues(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetPathValue("id", "42")
	r.SetPathValue("bad", "-1")
	r.SetPathValue("year", "2025")
	r.SetPathValue("month", "03")

	if id, err := pathID(r, "id"); err != nil || id != 42 {
		t.Errorf("pathID(id) = %d, %v", id, err)
	}
	if _, err := pathID(r, "bad"); !errors.Is(err, errBadRequest) {
		t.Errorf("pathID(bad) error = %v", err)
	}
	if _, err := pathID(r, "missing"); !errors.Is(err, errBadRequest) {
		t.Errorf("pathID(missing) error = %v", err)
	}
	p, err := pathPeriod(r)
	if err != nil || p != (core.Period{Year: 2025, Month: 3}) {
		t.Errorf("pathPeriod() = %v, %v", p, err)
	}

	r.SetPathValue("month", "march")
	if _, err := pathPeriod(r); !errors.Is(err, errBadRequest) {
		t.Errorf("pathPeriod(march) error = %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  plain  ":        "plain",
		"tab\there":        "tab\there",
		"bell\x07removed":  "bellremoved",
		"line\nbreak kept": "line\nbreak kept",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}
