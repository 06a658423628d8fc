package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"casa/internal/core"
	applog "casa/internal/log"
	"casa/internal/middleware/ratelimit"
	"casa/internal/middleware/security"
	"casa/internal/middleware/trace"
	"casa/internal/services"
)

// Identity headers set by the authenticating reverse proxy.
const (
	HeaderUserID    = "X-Auth-User-Id"
	HeaderUserEmail = "X-Auth-User-Email"
	HeaderUserName  = "X-Auth-User-Name"
)

// Services are the use cases the API exposes.
type Services struct {
	Households *services.HouseholdService
	Categories *services.CategoryService
	Budgets    *services.BudgetService
	Closing    *services.ClosingService
	Income     *services.IncomeService
	Expenses   *services.ExpenseService
	Recurring  *services.RecurringService
	Savings    *services.SavingsService
	Purchases  *services.PurchaseService
	Products   *services.ProductService
	Receipts   *services.ReceiptService
}

// Options tune the middleware chain. Zero values fall back to in-process defaults.
type Options struct {
	Logger    *applog.Logger
	Detector  *security.Detector
	RateLimit ratelimit.Store
	Headers   *security.HeadersConfig
	// Ready reports whether dependencies (the database) can serve traffic.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	svc      Services
	detector *security.Detector
	limiter  *ratelimit.Middleware
	tracer   *trace.Middleware
	ready    func(ctx context.Context) error

	// owned is set when the server created its own in-memory limiter.
	owned        *ratelimit.Limiter
	shutdownOnce sync.Once
}

// apiHandler returns an error instead of writing one; the wrapper maps it to a status.
type apiHandler func(w http.ResponseWriter, r *http.Request, a actor) error

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := opts.Detector
	if detector == nil {
		detector = security.MustNewDetector()
	}

	s := &Server{
		svc:      svc,
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),
		ready:    opts.Ready,
	}
	store := opts.RateLimit
	if store == nil {
		s.owned = ratelimit.NewLimiter(ratelimit.DefaultConfig())
		store = s.owned
	}
	s.limiter = ratelimit.NewMiddleware(store, detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "Too many requests, please try again later").
			Header("Retry-After", "60").
			Write(w)
	})
	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = applog.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(h)
	h = applog.Middleware(logger)(h)
	h = s.limiter.Handler(h)
	h = detector.Middleware(detector.ExtractClientIP)(h)
	h = security.NewHeadersMiddleware(headers).Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second, // receipt scans wait on the vision service
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	const v1 = "/api/v1"

	// Households. Creating one is the only household route open to users without one.
	mux.Handle("POST "+v1+"/households", s.user(s.handleCreateHousehold))
	mux.Handle("GET "+v1+"/household", s.member(s.handleGetHousehold))
	mux.Handle("POST "+v1+"/household/members", s.member(s.handleAddMember))
	mux.Handle("DELETE "+v1+"/household/members/{memberId}", s.member(s.handleRemoveMember))

	mux.Handle("GET "+v1+"/categories", s.member(s.handleListCategories))
	mux.Handle("POST "+v1+"/categories", s.member(s.handleCreateCategory))
	mux.Handle("PATCH "+v1+"/categories/{id}", s.member(s.handleUpdateCategory))
	mux.Handle("DELETE "+v1+"/categories/{id}", s.member(s.handleDeleteCategory))

	// Budgets are addressed by period for reads and by id for transitions.
	mux.Handle("GET "+v1+"/budgets", s.member(s.handleListBudgets))
	mux.Handle("GET "+v1+"/budgets/{year}/{month}", s.member(s.handleBudgetDetail))
	mux.Handle("GET "+v1+"/budgets/{year}/{month}/summary", s.member(s.handleBudgetSummary))
	mux.Handle("POST "+v1+"/budgets/{id}/reconcile", s.member(s.handleReconcile))
	mux.Handle("POST "+v1+"/budgets/{id}/distribute", s.member(s.handleDistribute))
	mux.Handle("POST "+v1+"/budgets/{id}/close", s.member(s.handleClose))
	mux.Handle("POST "+v1+"/budgets/{id}/reopen", s.member(s.handleReopen))
	mux.Handle("POST "+v1+"/budgets/{id}/finalize", s.member(s.handleFinalize))
	mux.Handle("POST "+v1+"/budgets/{id}/populate", s.member(s.handlePopulate))

	mux.Handle("POST "+v1+"/budgets/{id}/income", s.member(s.handleCreateIncome))
	mux.Handle("PATCH "+v1+"/income/{id}", s.member(s.handleUpdateIncome))
	mux.Handle("DELETE "+v1+"/income/{id}", s.member(s.handleDeleteIncome))

	mux.Handle("POST "+v1+"/budgets/{id}/expenses", s.member(s.handleCreateExpense))
	mux.Handle("PATCH "+v1+"/expenses/{id}", s.member(s.handleUpdateExpense))
	mux.Handle("PUT "+v1+"/expenses/{id}/paid", s.member(s.handleSetPaid))
	mux.Handle("DELETE "+v1+"/expenses/{id}", s.member(s.handleDeleteExpense))

	mux.Handle("GET "+v1+"/recurring", s.member(s.handleListRecurring))
	mux.Handle("POST "+v1+"/recurring", s.member(s.handleCreateRecurring))
	mux.Handle("GET "+v1+"/recurring/{id}", s.member(s.handleGetRecurring))
	mux.Handle("PATCH "+v1+"/recurring/{id}", s.member(s.handleUpdateRecurring))
	mux.Handle("PUT "+v1+"/recurring/{id}/active", s.member(s.handleSetRecurringActive))
	mux.Handle("DELETE "+v1+"/recurring/{id}", s.member(s.handleDeactivateRecurring))

	mux.Handle("GET "+v1+"/savings-boxes", s.member(s.handleListBoxes))
	mux.Handle("POST "+v1+"/savings-boxes", s.member(s.handleCreateBox))
	mux.Handle("POST "+v1+"/savings-boxes/distribute", s.member(s.handleDistributeBalance))
	mux.Handle("GET "+v1+"/savings-boxes/{id}", s.member(s.handleGetBox))
	mux.Handle("PATCH "+v1+"/savings-boxes/{id}", s.member(s.handleUpdateBox))
	mux.Handle("DELETE "+v1+"/savings-boxes/{id}", s.member(s.handleDeleteBox))
	mux.Handle("POST "+v1+"/savings-boxes/{id}/transactions", s.member(s.handleAddTransaction))
	mux.Handle("DELETE "+v1+"/savings-transactions/{id}", s.member(s.handleDeleteTransaction))

	// Purchases belong to the user, not the household.
	mux.Handle("GET "+v1+"/purchases", s.user(s.handleListPurchases))
	mux.Handle("POST "+v1+"/purchases/import", s.user(s.handleImportPurchases))
	mux.Handle("POST "+v1+"/purchases/scan", s.user(s.handleScanReceipt))
	mux.Handle("GET "+v1+"/purchases/{id}", s.user(s.handleGetPurchase))
	mux.Handle("PATCH "+v1+"/purchases/{id}", s.user(s.handleUpdatePurchase))
	mux.Handle("DELETE "+v1+"/purchases/{id}", s.user(s.handleDeletePurchase))
	mux.Handle("POST "+v1+"/purchases/{id}/products", s.user(s.handleCreateProduct))
	mux.Handle("GET "+v1+"/products/{id}", s.user(s.handleGetProduct))
	mux.Handle("PATCH "+v1+"/products/{id}", s.user(s.handleUpdateProduct))
	mux.Handle("DELETE "+v1+"/products/{id}", s.user(s.handleDeleteProduct))
}

// user authenticates the caller from the proxy's identity headers.
func (s *Server) user(h apiHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.identify(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a := actor{User: u}
		r = r.WithContext(withActor(r.Context(), a))
		if err := h(w, r, a); err != nil {
			writeError(w, r, err)
		}
	})
}

// member additionally resolves the caller's household.
func (s *Server) member(h apiHandler) http.Handler {
	return s.user(func(w http.ResponseWriter, r *http.Request, a actor) error {
		hid, err := s.svc.Households.Resolve(r.Context(), a.User.ID)
		if errors.Is(err, core.ErrNotFound) {
			return core.NewUserError("create or join a household first", err)
		}
		if err != nil {
			return err
		}
		a.HouseholdID = hid
		ctx := withActor(r.Context(), a)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, a.User.ID, applog.FieldHouseholdID, hid))
		return h(w, r.WithContext(ctx), a)
	})
}

// identify trusts identity headers only when the direct peer is a trusted proxy.
func (s *Server) identify(r *http.Request) (core.User, error) {
	if !s.detector.FromTrustedProxy(r) {
		slog.WarnContext(r.Context(), "Identity headers from untrusted peer ignored", "remote_addr", r.RemoteAddr)
		return core.User{}, core.ErrUnauthenticated
	}
	u := core.User{
		ID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Email: strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		Name:  sanitizeInput(r.Header.Get(HeaderUserName)),
	}
	if u.ID == "" || u.Email == "" {
		return core.User{}, core.ErrUnauthenticated
	}
	if u.Name == "" {
		u.Name = u.Email
	}
	if err := s.svc.Households.EnsureUser(r.Context(), u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, "not_ready", "Not ready").Write(w)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.owned != nil {
			s.owned.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics snapshots the middleware counters for the periodic metrics log.
func (s *Server) Metrics() (trace.Metrics, security.DetectionMetrics, ratelimit.Metrics) {
	return s.tracer.GetMetrics(), s.detector.GetMetrics(), s.limiter.GetMetrics()
}
