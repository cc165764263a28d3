// Package app wires stores, services and handlers into a runnable API.
package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"taskkash/internal/config"
	"taskkash/internal/handler"
	"taskkash/internal/notify"
	"taskkash/internal/pkg/lock"
	"taskkash/internal/pkg/ratelimit"
	"taskkash/internal/pkg/token"
	"taskkash/internal/proof"
	"taskkash/internal/repository"
	"taskkash/internal/server"
	"taskkash/internal/service"
)

// ActivityStore records and lists the activity trail.
type ActivityStore interface {
	service.ActivityRecorder
	service.ActivityLister
}

// NotificationStore backs the user notification feed.
type NotificationStore interface {
	service.NotificationFeed
	notify.NotificationCreator
}

// AdminNotificationStore backs the admin notification feed.
type AdminNotificationStore interface {
	service.AdminNotificationFeed
	notify.AdminNotificationCreator
}

// Backends are the storage and delivery dependencies chosen by the caller.
type Backends struct {
	Store              repository.Store
	Activities         ActivityStore
	Notifications      NotificationStore
	AdminNotifications AdminNotificationStore
	Limiter            ratelimit.Limiter
	// Publisher carries notifications. Nil delivers inline through
	// Dispatcher.
	Publisher  notify.Publisher
	Dispatcher *notify.Dispatcher
	Checks     map[string]server.Checker
	Now        func() time.Time
}

// Services is the assembled service layer.
type Services struct {
	Ledger      *service.LedgerService
	Auth        *service.AuthService
	Tasks       *service.TaskService
	Withdrawals *service.WithdrawalService
	Ranking     *service.RankingService
	Admin       *service.AdminService
	Feed        *service.FeedService
}

// App is the wired application.
type App struct {
	Services Services
	Handler  http.Handler
}

// NewDispatcher returns a dispatcher that stores user and admin messages in
// their feeds. Callers add the external sinks.
func NewDispatcher(b Backends) *notify.Dispatcher {
	d := notify.NewDispatcher()
	d.Handle(notify.KindUser, notify.UserFeedSink(b.Notifications))
	d.Handle(notify.KindAdmin, notify.AdminFeedSink(b.AdminNotifications))
	return d
}

// New assembles the services and the HTTP router over b.
func New(cfg *config.Config, b Backends, logger zerolog.Logger) (*App, error) {
	dispatcher := b.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(b)
		dispatcher.Handle(notify.KindEmail, notify.LogSink{})
	}
	pub := b.Publisher
	if pub == nil {
		pub = notify.NewInlinePublisher(dispatcher)
	}
	limiter := b.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(cfg.Auth.PasswordChangeLimit, cfg.Auth.PasswordChangeWindow)
	}

	deps := service.Deps{
		Store:      b.Store,
		Locks:      lock.NewUserLock(),
		Activities: b.Activities,
		Notifier:   notify.NewNotifier(pub),
		Now:        b.Now,
	}

	ledger := service.NewLedgerService(deps, cfg.Rewards)
	withdrawals, err := service.NewWithdrawalService(deps, cfg.Withdrawal)
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal service: %w", err)
	}
	svc := Services{
		Ledger:      ledger,
		Auth:        service.NewAuthService(deps, ledger, token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), limiter, cfg),
		Tasks:       service.NewTaskService(deps, proof.Default()),
		Withdrawals: withdrawals,
		Ranking:     service.NewRankingService(deps),
		Admin:       service.NewAdminService(deps),
		Feed:        service.NewFeedService(b.Activities, b.Notifications, b.AdminNotifications),
	}

	h := server.Handlers{
		Auth:        handler.NewAuthHandler(svc.Auth, cfg.Auth),
		Account:     handler.NewAccountHandler(svc.Ledger, svc.Feed),
		Tasks:       handler.NewTaskHandler(svc.Tasks),
		Withdrawals: handler.NewWithdrawalHandler(svc.Withdrawals),
		Ranking:     handler.NewRankingHandler(svc.Ranking),
		Admin:       handler.NewAdminHandler(svc.Admin, svc.Ledger, svc.Tasks, svc.Withdrawals, svc.Feed),
	}
	router := server.NewRouter(h, server.Options{
		Auth:        svc.Auth,
		CookieName:  cfg.Auth.CookieName,
		CORSOrigins: cfg.Server.CORSOrigins,
		Checks:      b.Checks,
		Logger:      logger,
	})
	return &App{Services: svc, Handler: router}, nil
}
