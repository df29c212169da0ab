package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/zafa0981-prog/telegram-store-bot/internal/catalog"
	"github.com/zafa0981-prog/telegram-store-bot/internal/config"
	"github.com/zafa0981-prog/telegram-store-bot/internal/infra/httpclient"
	pgrepo "github.com/zafa0981-prog/telegram-store-bot/internal/repo/postgres"
	checkoutsvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/checkout"
	gatewaysvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/gateway"
)

// App is the operator-facing HTTP surface: catalog browsing, the purchase
// report, and the default-gateway setting. The Telegram side lives in botapp.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	httpRouter http.Handler
}

func New(ctx context.Context, store *config.Store, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("config store is nil")
	}
	cfg := store.Snapshot()

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	userRepo := pgrepo.NewUserRepo(pool)
	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	products := catalog.New(cfg.Catalog.Dir)
	gateways := gatewaysvc.NewSet(cfg.Payments, httpclient.New(cfg.Payments.VerifyTimeout), log)

	checkoutService := checkoutsvc.NewService(checkoutsvc.Dependencies{
		Users:     userRepo,
		Purchases: purchaseRepo,
		Catalog:   products,
		Gateways:  gateways,
		Logger:    log,
	})

	RegisterRoutes(r, Dependencies{
		CheckoutService: checkoutService,
		ConfigStore:     store,
		Logger:          log,
		Config:          cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
