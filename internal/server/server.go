// Package server assembles the HTTP router and runs the API server.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"taskkash/internal/config"
	"taskkash/internal/handler"
)

// Handlers groups the API handlers mounted by the router.
type Handlers struct {
	Auth        *handler.AuthHandler
	Account     *handler.AccountHandler
	Tasks       *handler.TaskHandler
	Withdrawals *handler.WithdrawalHandler
	Ranking     *handler.RankingHandler
	Admin       *handler.AdminHandler
}

// Checker reports whether a backing dependency is reachable.
type Checker func(ctx context.Context) error

// Options configures NewRouter.
type Options struct {
	Auth        handler.Authenticator
	CookieName  string
	CORSOrigins []string
	Checks      map[string]Checker
	Logger      zerolog.Logger
}

// NewRouter builds the API router with its middleware chain.
func NewRouter(h Handlers, opts Options) http.Handler {
	r := mux.NewRouter()
	r.Use(AccessLog)
	r.NotFoundHandler = AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusNotFound, handler.APIResponse{Message: "route not found"})
	}))
	r.MethodNotAllowedHandler = AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusMethodNotAllowed, handler.APIResponse{Message: "method not allowed"})
	}))

	r.HandleFunc("/healthz", healthz(opts.Checks)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", h.Auth.Register).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.Auth.Login).Methods(http.MethodPost)
	auth.HandleFunc("/logout", h.Auth.Logout).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", h.Auth.ForgotPassword).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", h.Auth.ResetPassword).Methods(http.MethodPost)

	api.HandleFunc("/leaderboard", h.Ranking.Leaderboard).Methods(http.MethodGet)

	requireAuth := handler.RequireAuth(opts.Auth, opts.CookieName)

	user := api.NewRoute().Subrouter()
	user.Use(requireAuth)
	user.HandleFunc("/me", h.Auth.Me).Methods(http.MethodGet)
	user.HandleFunc("/me", h.Auth.UpdateProfile).Methods(http.MethodPatch)
	user.HandleFunc("/me/password", h.Auth.ChangePassword).Methods(http.MethodPost)
	user.HandleFunc("/balance", h.Account.Balance).Methods(http.MethodGet)
	user.HandleFunc("/bonus/daily", h.Account.ClaimDailyBonus).Methods(http.MethodPost)
	user.HandleFunc("/transactions", h.Account.Transactions).Methods(http.MethodGet)
	user.HandleFunc("/activities", h.Account.Activities).Methods(http.MethodGet)
	user.HandleFunc("/notifications", h.Account.Notifications).Methods(http.MethodGet)
	user.HandleFunc("/notifications/read", h.Account.MarkNotificationsRead).Methods(http.MethodPost)
	user.HandleFunc("/tasks", h.Tasks.List).Methods(http.MethodGet)
	user.HandleFunc("/tasks/{id:[0-9]+}", h.Tasks.Get).Methods(http.MethodGet)
	user.HandleFunc("/tasks/{id:[0-9]+}/start", h.Tasks.Start).Methods(http.MethodPost)
	user.HandleFunc("/submissions", h.Tasks.Submit).Methods(http.MethodPost)
	user.HandleFunc("/submissions", h.Tasks.Submissions).Methods(http.MethodGet)
	user.HandleFunc("/withdrawals", h.Withdrawals.Create).Methods(http.MethodPost)
	user.HandleFunc("/withdrawals", h.Withdrawals.List).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(requireAuth, handler.RequireAdmin)
	admin.HandleFunc("/dashboard", h.Admin.Dashboard).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.Admin.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id:[0-9]+}", h.Admin.GetUser).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id:[0-9]+}/status", h.Admin.SetUserStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/users/{id:[0-9]+}/points", h.Admin.AdjustPoints).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id:[0-9]+}/reconcile", h.Admin.Reconcile).Methods(http.MethodGet)
	admin.HandleFunc("/tasks", h.Admin.ListTasks).Methods(http.MethodGet)
	admin.HandleFunc("/tasks", h.Admin.CreateTask).Methods(http.MethodPost)
	admin.HandleFunc("/tasks/{id:[0-9]+}", h.Admin.UpdateTask).Methods(http.MethodPut)
	admin.HandleFunc("/tasks/{id:[0-9]+}/status", h.Admin.SetTaskStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/submissions", h.Admin.ListSubmissions).Methods(http.MethodGet)
	admin.HandleFunc("/submissions/{id:[0-9]+}/review", h.Admin.ReviewSubmission).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawals", h.Admin.ListWithdrawals).Methods(http.MethodGet)
	admin.HandleFunc("/withdrawals/{id:[0-9]+}/review", h.Admin.ReviewWithdrawal).Methods(http.MethodPost)
	admin.HandleFunc("/notifications", h.Admin.Notifications).Methods(http.MethodGet)
	admin.HandleFunc("/notifications/read", h.Admin.MarkNotificationsRead).Methods(http.MethodPost)

	var root http.Handler = r
	if len(opts.CORSOrigins) > 0 {
		root = handlers.CORS(
			handlers.AllowedOrigins(opts.CORSOrigins),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With", RequestIDHeader}),
			handlers.ExposedHeaders([]string{RequestIDHeader}),
			handlers.AllowCredentials(),
		)(root)
	}
	return RequestID(opts.Logger)(Recovery(root))
}

func healthz(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			handler.WriteJSON(w, http.StatusServiceUnavailable, handler.APIResponse{
				Message: "unhealthy",
				Data:    status,
			})
			return
		}
		handler.OK(w, "ok", status)
	}
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// New creates a Server for h using the configured timeouts.
func New(cfg config.ServerConfig, h http.Handler) *Server {
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		shutdownTimeout: shutdown,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
