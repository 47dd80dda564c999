package server

import (
	"github.com/farellandr/cashback/config"
	"github.com/farellandr/cashback/internal/auth"
	"github.com/farellandr/cashback/internal/blacklist"
	"github.com/farellandr/cashback/internal/catalog"
	"github.com/farellandr/cashback/internal/events"
	"github.com/farellandr/cashback/internal/handlers"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/ledger"
	"github.com/farellandr/cashback/internal/payout"
	"github.com/farellandr/cashback/internal/redemption"
	"github.com/farellandr/cashback/internal/store"
	"github.com/farellandr/cashback/internal/sweeper"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the wired services of one process.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Auth      *auth.Service
	Blacklist blacklist.Store
	Catalog   *catalog.Service
	Redeemer  *redemption.Engine
	Ledger    *ledger.Ledger
	Sweeper   *sweeper.Sweeper
	Handler   *handlers.Handler
	Log       *zap.Logger

	closers []func() error
}

// Wire builds every service on top of an open database. Redis, Kafka and
// Xendit clients are created only when configured.
func Wire(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	app := &App{Config: cfg, DB: db, Log: log}

	var redisClient redis.UniversalClient
	if cfg.BlacklistBackend == blacklist.BackendRedis {
		client, err := config.InitRedis(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "init redis")
		}
		redisClient = client
		app.closers = append(app.closers, client.Close)
	}
	bl, err := blacklist.New(cfg.BlacklistBackend, redisClient)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Blacklist = bl

	var pub events.Publisher = events.NewLogPublisher(log)
	if w := config.InitKafkaWriter(cfg); w != nil {
		pub = events.NewKafkaPublisher(w)
		app.closers = append(app.closers, w.Close)
	}

	var provider payout.Provider = payout.NewManual(log)
	if client := config.InitXenditClient(&cfg.Xendit); client != nil {
		provider = payout.NewXendit(client, cfg.Xendit.Currency, log)
	}

	clickSecret, err := cfg.ClickSecret()
	if err != nil {
		app.Close()
		return nil, err
	}
	clicks, err := helpers.NewClickCipher(clickSecret)
	if err != nil {
		app.Close()
		return nil, err
	}

	users := store.NewUsers(db)
	coupons := store.NewCoupons(db)
	redemptions := store.NewRedemptions(db)
	leases := store.NewLeases(db)

	app.Auth = auth.NewService(auth.Config{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}, users, bl, log)
	app.Catalog = catalog.NewService(coupons, store.NewStores(db), store.NewOffers(db), cfg.PageLimitMax, log)
	app.Redeemer = redemption.NewEngine(coupons, redemptions, pub, log)
	app.Ledger = ledger.New(db, ledger.Config{
		ConfirmationWindow: cfg.ConfirmationWindow,
		MinWithdrawal:      cfg.MinWithdrawal,
		PageLimitMax:       cfg.PageLimitMax,
	}, provider, pub, log)
	app.Sweeper = sweeper.New(app.Ledger, leases, users, sweeper.Config{
		BatchSize: cfg.SweepBatchSize,
		LeaseTTL:  cfg.LeaseTTL,
	}, log)

	deps := handlers.Deps{
		Auth:             app.Auth,
		Users:            users,
		Catalog:          app.Catalog,
		Redeemer:         app.Redeemer,
		Redemptions:      redemptions,
		Ledger:           app.Ledger,
		Leases:           leases,
		Clicks:           clicks,
		Uploads:          helpers.LogoUploadConfig(cfg.UploadDir),
		PostbackSecret:   cfg.AffiliatePostbackSecret,
		PageLimitMax:     cfg.PageLimitMax,
		BlacklistBackend: bl.Backend(),
		PayoutProvider:   provider.Name(),
		Log:              log,
	}
	if r, ok := bl.(*blacklist.Redis); ok {
		deps.Redis = r
	}
	app.Handler = handlers.New(deps)
	return app, nil
}

// Close releases the clients opened by Wire. The database is owned by the
// caller.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
