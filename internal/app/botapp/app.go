package botapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zafa0981-prog/telegram-store-bot/internal/catalog"
	"github.com/zafa0981-prog/telegram-store-bot/internal/config"
	"github.com/zafa0981-prog/telegram-store-bot/internal/infra/httpclient"
	tginfra "github.com/zafa0981-prog/telegram-store-bot/internal/infra/telegram"
	pgrepo "github.com/zafa0981-prog/telegram-store-bot/internal/repo/postgres"
	redrepo "github.com/zafa0981-prog/telegram-store-bot/internal/repo/redis"
	checkoutsvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/checkout"
	"github.com/zafa0981-prog/telegram-store-bot/internal/services/fulfillment"
	gatewaysvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/gateway"
	ratesvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/rate"
)

// App runs the Telegram storefront: catalog browsing, checkout with a
// payment link, receipt collection, and the admin commands.
type App struct {
	cfg      config.Config
	store    *config.Store
	logger   *zap.Logger
	postgres *pgxpool.Pool
	redis    *goredis.Client
	bot      *tginfra.Bot

	userRepo *pgrepo.UserRepo
	products *catalog.Catalog
	checkout *checkoutsvc.Service
	limiter  *ratesvc.Limiter
}

func New(ctx context.Context, store *config.Store, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("config store is nil")
	}
	cfg := store.Snapshot()

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for bot app: %w", err)
	}
	if err := pgrepo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	limiter := ratesvc.NewLimiter(
		redrepo.NewRateRepo(redisClient),
		cfg.Limits.ReceiptsPerMinute,
		cfg.Limits.ReceiptsPer10Sec,
	)

	userRepo := pgrepo.NewUserRepo(pool)
	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	products := catalog.New(cfg.Catalog.Dir)
	gateways := gatewaysvc.NewSet(cfg.Payments, httpclient.New(cfg.Payments.VerifyTimeout), logger)
	if !gateways.AnyConfigured() {
		logger.Warn("no payment gateway credentials configured, receipts will be accepted on trust")
	}

	var links checkoutsvc.LinkResolver
	if strings.TrimSpace(cfg.S3.Endpoint) != "" {
		storage, err := fulfillment.NewS3Storage(fulfillment.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			logger.Warn("s3 init failed, download links are served as-is", zap.Error(err))
		} else {
			links = fulfillment.NewResolver(storage, cfg.S3.LinkTTL)
		}
	}

	checkoutService := checkoutsvc.NewService(checkoutsvc.Dependencies{
		Users:     userRepo,
		Purchases: purchaseRepo,
		Catalog:   products,
		Gateways:  gateways,
		Links:     links,
		Logger:    logger,
	})

	var bot *tginfra.Bot
	if strings.TrimSpace(cfg.Bot.Token) != "" {
		bot, err = tginfra.NewBot(cfg.Bot.Token)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
	} else {
		logger.Warn("BOT_TOKEN is empty, telegram listener disabled")
	}

	return &App{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		postgres: pool,
		redis:    redisClient,
		bot:      bot,
		userRepo: userRepo,
		products: products,
		checkout: checkoutService,
		limiter:  limiter,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	errCh := make(chan error, 1)
	if a.bot != nil {
		go func() {
			errCh <- a.bot.Listen(ctx, tginfra.Handlers{
				OnCommand:  a.handleCommand,
				OnText:     a.handleText,
				OnCallback: a.handleCallback,
			})
		}()
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("bot app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

func (a *App) Shutdown(_ context.Context) error {
	var shutdownErr error

	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}
