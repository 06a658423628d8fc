package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"casa/internal/core"
	"casa/internal/services"
	"casa/internal/storage"
	"casa/internal/vision"
)

type allowAll struct{}

func (allowAll) Allow(context.Context, string) (bool, error) { return true, nil }

type stubExtractor struct {
	data core.ReceiptData
	err  error
}

func (s *stubExtractor) Extract(context.Context, []string) (core.ReceiptData, error) {
	return s.data, s.err
}

type testAPI struct {
	t         *testing.T
	srv       *Server
	extractor *stubExtractor
	user      core.User
	remote    string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "casa.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ex := &stubExtractor{}
	budgets := services.NewBudgetService(repo, nil)
	svc := Services{
		Households: services.NewHouseholdService(repo, nil),
		Categories: services.NewCategoryService(repo),
		Budgets:    budgets,
		Closing:    services.NewClosingService(repo, budgets, nil, services.DistributionWithinBalance),
		Income:     services.NewIncomeService(repo),
		Expenses:   services.NewExpenseService(repo),
		Recurring:  services.NewRecurringService(repo),
		Savings:    services.NewSavingsService(repo, nil),
		Purchases:  services.NewPurchaseService(repo),
		Products:   services.NewProductService(repo),
		Receipts:   services.NewReceiptService(repo, ex),
	}
	srv := NewServer(":0", svc, Options{RateLimit: allowAll{}, Ready: repo.Ping})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testAPI{
		t:         t,
		srv:       srv,
		extractor: ex,
		user:      core.User{ID: "u-ana", Email: "ana@example.com", Name: "Ana"},
		remote:    "127.0.0.1:40000",
	}
}

// do sends a request as api.user through the trusted proxy address.
func (api *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	api.t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			api.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = api.remote
	if api.user.ID != "" {
		req.Header.Set(HeaderUserID, api.user.ID)
		req.Header.Set(HeaderUserEmail, api.user.Email)
		req.Header.Set(HeaderUserName, api.user.Name)
	}
	rr := httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (api *testAPI) expect(rr *httptest.ResponseRecorder, status int, out any) {
	api.t.Helper()
	if rr.Code != status {
		api.t.Fatalf("status = %d, want %d; body = %s", rr.Code, status, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			api.t.Fatalf("decode %s: %v", rr.Body.String(), err)
		}
	}
}

func (api *testAPI) errorBody(rr *httptest.ResponseRecorder) ErrorDetail {
	api.t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		api.t.Fatalf("decode error body %s: %v", rr.Body.String(), err)
	}
	return body.Error
}

// setupHousehold creates a household and returns its categories by name.
func (api *testAPI) setupHousehold() map[string]int64 {
	api.t.Helper()
	api.expect(api.do(http.MethodPost, "/api/v1/households", map[string]string{"name": "Casa"}), http.StatusCreated, nil)
	var cats []core.Category
	api.expect(api.do(http.MethodGet, "/api/v1/categories", nil), http.StatusOK, &cats)
	byName := make(map[string]int64, len(cats))
	for _, c := range cats {
		byName[c.Name] = c.ID
	}
	return byName
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := api.do(http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}
}

func TestReadyReportsFailure(t *testing.T) {
	srv := NewServer(":0", Services{}, Options{
		RateLimit: allowAll{},
		Ready:     func(context.Context) error { return errors.New("db down") },
	})
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestAuthentication(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name   string
		user   core.User
		remote string
		want   int
	}{
		{"missing identity", core.User{}, "127.0.0.1:1", http.StatusUnauthorized},
		{"missing email", core.User{ID: "u-1"}, "127.0.0.1:1", http.StatusUnauthorized},
		{"untrusted peer", api.user, "203.0.113.9:1", http.StatusUnauthorized},
		{"no household yet", api.user, "127.0.0.1:1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api.user, api.remote = tt.user, tt.remote
			rr := api.do(http.MethodGet, "/api/v1/household", nil)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestHouseholdLifecycle(t *testing.T) {
	api := newTestAPI(t)
	cats := api.setupHousehold()
	if len(cats) != 11 {
		t.Errorf("seeded %d categories, want 11", len(cats))
	}

	// One household per user.
	rr := api.do(http.MethodPost, "/api/v1/households", map[string]string{"name": "Other"})
	if rr.Code != http.StatusConflict {
		t.Errorf("second household status = %d, want 409", rr.Code)
	}

	// The invitee must have signed in once.
	owner := api.user
	api.user = core.User{ID: "u-bea", Email: "bea@example.com", Name: "Bea"}
	if rr := api.do(http.MethodGet, "/api/v1/household", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("invitee before joining status = %d, want 404", rr.Code)
	}
	api.user = owner

	var m core.Member
	api.expect(api.do(http.MethodPost, "/api/v1/household/members", map[string]string{"email": "bea@example.com"}), http.StatusCreated, &m)
	if m.Role != core.RoleMember {
		t.Errorf("member role = %q", m.Role)
	}

	var h core.Household
	api.expect(api.do(http.MethodGet, "/api/v1/household", nil), http.StatusOK, &h)
	if h.Name != "Casa" || len(h.Members) != 2 {
		t.Errorf("household = %+v", h)
	}

	// Members are not owners.
	api.user = core.User{ID: "u-bea", Email: "bea@example.com", Name: "Bea"}
	rr = api.do(http.MethodDelete, fmt.Sprintf("/api/v1/household/members/%d", m.ID), nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("member removing status = %d, want 403", rr.Code)
	}
	api.user = owner
	api.expect(api.do(http.MethodDelete, fmt.Sprintf("/api/v1/household/members/%d", m.ID), nil), http.StatusNoContent, nil)
}

func TestCategoryErrors(t *testing.T) {
	api := newTestAPI(t)
	cats := api.setupHousehold()

	rr := api.do(http.MethodPost, "/api/v1/categories", map[string]string{"name": "", "type": "gift"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
	detail := api.errorBody(rr)
	if detail.Fields["name"] == "" || detail.Fields["type"] == "" {
		t.Errorf("fields = %v, want name and type", detail.Fields)
	}
	if detail.RequestID == "" {
		t.Error("error body without request id")
	}

	if rr := api.do(http.MethodPost, "/api/v1/categories", `{"name":`); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", rr.Code)
	}
	if rr := api.do(http.MethodDelete, "/api/v1/categories/abc", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rr.Code)
	}
	if rr := api.do(http.MethodGet, "/api/v1/categories?type=gift", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad type filter status = %d, want 400", rr.Code)
	}
	if rr := api.do(http.MethodDelete, "/api/v1/categories/999999", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown category status = %d, want 404", rr.Code)
	}

	var expense []core.Category
	api.expect(api.do(http.MethodGet, "/api/v1/categories?type=expense", nil), http.StatusOK, &expense)
	if len(expense) != 7 {
		t.Errorf("expense categories = %d, want 7", len(expense))
	}

	// Referenced categories stay.
	var b services.BudgetDetail
	api.expect(api.do(http.MethodGet, "/api/v1/budgets/2025/3", nil), http.StatusOK, &b)
	api.expect(api.do(http.MethodPost, fmt.Sprintf("/api/v1/budgets/%d/income", b.Budget.ID), map[string]any{
		"description": "Salary", "amount": "100.00", "categoryId": cats["Salario"],
	}), http.StatusCreated, nil)
	rr = api.do(http.MethodDelete, fmt.Sprintf("/api/v1/categories/%d", cats["Salario"]), nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("referenced category delete status = %d, want 409", rr.Code)
	}
}

func TestMonthClosingFlow(t *testing.T) {
	api := newTestAPI(t)
	cats := api.setupHousehold()

	var detail services.BudgetDetail
	api.expect(api.do(http.MethodGet, "/api/v1/budgets/2025/3", nil), http.StatusOK, &detail)
	if detail.Budget.Status != core.BudgetOpen || len(detail.Income) != 0 {
		t.Fatalf("new budget = %+v", detail)
	}
	budgetPath := fmt.Sprintf("/api/v1/budgets/%d", detail.Budget.ID)

	api.expect(api.do(http.MethodPost, budgetPath+"/income", map[string]any{
		"description": "Salary", "amount": "5000.00", "categoryId": cats["Salario"],
	}), http.StatusCreated, nil)

	var box core.SavingsBox
	api.expect(api.do(http.MethodPost, "/api/v1/savings-boxes", map[string]any{"name": "Viagem", "goalAmount": "1000.00"}), http.StatusCreated, &box)
	boxPath := fmt.Sprintf("/api/v1/savings-boxes/%d", box.ID)

	var exp core.ExpenseEntry
	api.expect(api.do(http.MethodPost, budgetPath+"/expenses", map[string]any{
		"description": "Trip fund", "amount": "200.00", "categoryId": cats["Lazer"], "savingsBoxId": box.ID,
	}), http.StatusCreated, &exp)

	api.expect(api.do(http.MethodPut, fmt.Sprintf("/api/v1/expenses/%d/paid", exp.ID), map[string]bool{"isPaid": true}), http.StatusOK, &exp)
	if !exp.IsPaid || exp.SavingsTransactionID == nil {
		t.Errorf("paid expense = %+v, want linked contribution", exp)
	}
	if rr := api.do(http.MethodPut, fmt.Sprintf("/api/v1/expenses/%d/paid", exp.ID), map[string]string{}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("paid without flag status = %d, want 422", rr.Code)
	}

	var sum core.BudgetSummary
	api.expect(api.do(http.MethodGet, "/api/v1/budgets/2025/3/summary", nil), http.StatusOK, &sum)
	if sum.TotalIncome.Cents != 500000 || sum.TotalExpensesPaid.Cents != 20000 || sum.TotalAvailable.Cents != 480000 || sum.BankBalance != nil {
		t.Errorf("summary = %+v", sum)
	}

	// Closing needs a reconciled balance.
	if rr := api.do(http.MethodPost, budgetPath+"/close", nil); rr.Code != http.StatusConflict {
		t.Errorf("close before reconcile status = %d, want 409", rr.Code)
	}
	// Allocations beyond the bank balance roll back the whole finalize.
	rr := api.do(http.MethodPost, budgetPath+"/finalize", map[string]any{
		"bankBalance": "100.00",
		"allocations": []map[string]any{{"savingsBoxId": box.ID, "amount": "500.00"}},
	})
	if rr.Code != http.StatusUnprocessableEntity && rr.Code != http.StatusConflict {
		t.Errorf("excess finalize status = %d, want 4xx", rr.Code)
	}

	var res services.ClosingResult
	api.expect(api.do(http.MethodPost, budgetPath+"/finalize", map[string]any{
		"bankBalance": "4700.00",
		"allocations": []map[string]any{{"savingsBoxId": box.ID, "amount": "500.00"}},
	}), http.StatusOK, &res)
	if res.Budget.Status != core.BudgetClosed || len(res.Transactions) != 1 {
		t.Errorf("finalize result = %+v", res)
	}

	var bd core.SavingsBoxDetail
	api.expect(api.do(http.MethodGet, boxPath, nil), http.StatusOK, &bd)
	if bd.Balance.Cents != 70000 || len(bd.Transactions) != 2 {
		t.Errorf("box = %+v, want balance 700.00 over 2 transactions", bd)
	}
	if bd.GoalProgress == nil || math.Abs(*bd.GoalProgress-70) > 1e-9 {
		t.Errorf("goal progress = %v, want 70", bd.GoalProgress)
	}

	// Closed periods reject entry writes.
	rr = api.do(http.MethodPost, budgetPath+"/income", map[string]any{
		"description": "Late", "amount": "1.00", "categoryId": cats["Outros"],
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("write to closed period status = %d, want 409", rr.Code)
	}
	if msg := api.errorBody(rr).Message; !strings.Contains(msg, "closed") {
		t.Errorf("closed period message = %q", msg)
	}

	var reopened core.MonthlyBudget
	api.expect(api.do(http.MethodPost, budgetPath+"/reopen", nil), http.StatusOK, &reopened)
	if reopened.Status != core.BudgetOpen {
		t.Errorf("reopened status = %q", reopened.Status)
	}

	var budgets []core.MonthlyBudget
	api.expect(api.do(http.MethodGet, "/api/v1/budgets", nil), http.StatusOK, &budgets)
	if len(budgets) == 0 {
		t.Error("budget list is empty")
	}
}

func TestSavingsTransactions(t *testing.T) {
	api := newTestAPI(t)
	api.setupHousehold()

	var box core.SavingsBox
	api.expect(api.do(http.MethodPost, "/api/v1/savings-boxes", map[string]any{"name": "Reserva"}), http.StatusCreated, &box)
	boxPath := fmt.Sprintf("/api/v1/savings-boxes/%d", box.ID)

	var tx core.SavingsTransaction
	api.expect(api.do(http.MethodPost, boxPath+"/transactions", map[string]any{"type": "contribution", "amount": "50.00"}), http.StatusCreated, &tx)

	rr := api.do(http.MethodPost, boxPath+"/transactions", map[string]any{"type": "withdrawal", "amount": "50.01"})
	if rr.Code != http.StatusNotFound || api.errorBody(rr).Code != "insufficient_balance" {
		t.Errorf("overdraw status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = api.do(http.MethodPost, boxPath+"/transactions", map[string]any{"type": "contribution", "amount": "100000000000.01"})
	if rr.Code != http.StatusUnprocessableEntity || api.errorBody(rr).Fields["amount"] == "" {
		t.Errorf("amount past ceiling status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = api.do(http.MethodPost, boxPath+"/transactions", map[string]any{"type": "contribution", "amount": "1.00", "source": "expense_link"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expense_link source status = %d, want 422", rr.Code)
	}

	if rr := api.do(http.MethodDelete, boxPath, nil); rr.Code != http.StatusConflict {
		t.Errorf("delete non-empty box status = %d, want 409", rr.Code)
	}
	api.expect(api.do(http.MethodDelete, fmt.Sprintf("/api/v1/savings-transactions/%d", tx.ID), nil), http.StatusNoContent, nil)
	api.expect(api.do(http.MethodDelete, boxPath, nil), http.StatusNoContent, nil)

	var boxes []core.SavingsBox
	api.expect(api.do(http.MethodGet, "/api/v1/savings-boxes", nil), http.StatusOK, &boxes)
	if len(boxes) != 0 {
		t.Errorf("boxes = %+v, want none", boxes)
	}
}

func TestRecurringTemplates(t *testing.T) {
	api := newTestAPI(t)
	cats := api.setupHousehold()

	var tpl core.RecurringExpense
	api.expect(api.do(http.MethodPost, "/api/v1/recurring", map[string]any{
		"description": "Rent", "amount": "1800.00", "categoryId": cats["Moradia"], "dayOfMonth": 5,
	}), http.StatusCreated, &tpl)

	var detail services.BudgetDetail
	api.expect(api.do(http.MethodGet, "/api/v1/budgets/2025/4", nil), http.StatusOK, &detail)
	populate := fmt.Sprintf("/api/v1/budgets/%d/populate", detail.Budget.ID)

	var created map[string]int
	api.expect(api.do(http.MethodPost, populate, nil), http.StatusOK, &created)
	if created["created"] != 1 {
		t.Errorf("first populate = %v, want 1", created)
	}
	api.expect(api.do(http.MethodPost, populate, nil), http.StatusOK, &created)
	if created["created"] != 0 {
		t.Errorf("second populate = %v, want 0", created)
	}

	tplPath := fmt.Sprintf("/api/v1/recurring/%d", tpl.ID)
	api.expect(api.do(http.MethodDelete, tplPath, nil), http.StatusOK, &tpl)
	if tpl.State.IsActive() {
		t.Errorf("deactivated template state = %v", tpl.State)
	}
	api.expect(api.do(http.MethodPut, tplPath+"/active", map[string]bool{"active": true}), http.StatusOK, &tpl)
	if !tpl.State.IsActive() {
		t.Errorf("reactivated template state = %v", tpl.State)
	}
}

func TestPurchases(t *testing.T) {
	api := newTestAPI(t)

	// Purchases need an identity but no household.
	var res services.ImportResult
	api.expect(api.do(http.MethodPost, "/api/v1/purchases/import", map[string]any{
		"purchases": []map[string]any{{
			"storeName":    "Feira",
			"purchaseDate": "2025-03-02",
			"totalValue":   "12.50",
			"products": []map[string]any{
				{"description": "Tomate", "totalValue": "7.50", "quantity": "1.5"},
				{"description": "Alface", "totalValue": "5.00"},
			},
		}},
	}), http.StatusCreated, &res)
	if res.PurchasesCreated != 1 || res.ProductsCreated != 2 {
		t.Errorf("import result = %+v", res)
	}

	var page services.PurchasePage
	api.expect(api.do(http.MethodGet, "/api/v1/purchases?search=fei&priceMin=10&dateFrom=2025-03-01&dateTo=2025-03-02", nil), http.StatusOK, &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("page = %+v", page)
	}
	if rr := api.do(http.MethodGet, "/api/v1/purchases?priceMin=abc", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad priceMin status = %d, want 400", rr.Code)
	}

	purchasePath := fmt.Sprintf("/api/v1/purchases/%d", page.Items[0].ID)
	var prod core.Product
	api.expect(api.do(http.MethodPost, purchasePath+"/products", map[string]any{"description": "Cebola", "totalValue": "2.50"}), http.StatusCreated, &prod)

	var p core.Purchase
	api.expect(api.do(http.MethodGet, purchasePath, nil), http.StatusOK, &p)
	if p.TotalValue.Cents != 1500 || len(p.Products) != 3 {
		t.Errorf("purchase after product add = %+v", p)
	}

	// Another user cannot see it.
	owner := api.user
	api.user = core.User{ID: "u-other", Email: "other@example.com"}
	if rr := api.do(http.MethodGet, purchasePath, nil); rr.Code != http.StatusNotFound {
		t.Errorf("foreign purchase status = %d, want 404", rr.Code)
	}
	api.user = owner

	api.expect(api.do(http.MethodDelete, fmt.Sprintf("/api/v1/products/%d", prod.ID), nil), http.StatusNoContent, nil)
	api.expect(api.do(http.MethodDelete, purchasePath, nil), http.StatusNoContent, nil)
	if rr := api.do(http.MethodGet, purchasePath, nil); rr.Code != http.StatusNotFound {
		t.Errorf("deleted purchase status = %d, want 404", rr.Code)
	}
}

func TestReceiptScan(t *testing.T) {
	api := newTestAPI(t)
	store := "Mercado"
	api.extractor.data = core.ReceiptData{
		StoreName:  &store,
		TotalValue: core.Money{Cents: 900},
		Products:   []core.ProductInput{{Description: "Pão", TotalValue: core.Money{Cents: 900}}},
	}

	var p core.Purchase
	api.expect(api.do(http.MethodPost, "/api/v1/purchases/scan", map[string]any{"images": []string{"aGVsbG8="}}), http.StatusCreated, &p)
	if p.Status != core.PurchaseNeedsReview || p.TotalValue.Cents != 900 {
		t.Errorf("scanned purchase = %+v", p)
	}

	if rr := api.do(http.MethodPost, "/api/v1/purchases/scan", map[string]any{"images": []string{}}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("no images status = %d, want 422", rr.Code)
	}

	api.extractor.err = fmt.Errorf("generate content: %w", vision.ErrUpstream)
	rr := api.do(http.MethodPost, "/api/v1/purchases/scan", map[string]any{"images": []string{"aGVsbG8="}})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("upstream failure status = %d, want 502", rr.Code)
	}
	if msg := api.errorBody(rr).Message; strings.Contains(msg, "generate content") {
		t.Errorf("internal detail leaked: %q", msg)
	}
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

func TestRateLimitedResponse(t *testing.T) {
	srv := NewServer(":0", Services{}, Options{RateLimit: denyAll{}})
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "60" {
		t.Errorf("status = %d retry-after = %q", rr.Code, rr.Header().Get("Retry-After"))
	}
	if !strings.Contains(rr.Body.String(), "rate_limited") {
		t.Errorf("body = %s", rr.Body.String())
	}
}
