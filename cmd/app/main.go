// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"telegram-crypto-subscription/internal/config"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
	chainAdapters "telegram-crypto-subscription/internal/infra/adapters/chain"
	priceAdapters "telegram-crypto-subscription/internal/infra/adapters/price"
	tele "telegram-crypto-subscription/internal/infra/adapters/telegram"
	pg "telegram-crypto-subscription/internal/infra/db/postgres"
	"telegram-crypto-subscription/internal/infra/logging"
	"telegram-crypto-subscription/internal/infra/metrics"
	red "telegram-crypto-subscription/internal/infra/redis"
	"telegram-crypto-subscription/internal/infra/sched"
	"telegram-crypto-subscription/internal/infra/web"
	"telegram-crypto-subscription/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, static prices)")
	flag.Parse()

	// a missing .env is fine; the config file is the source of truth
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	obligationRepo := pg.NewObligationRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Chain observers ----
	observers := make(map[model.Currency]adapter.ChainObserver)
	recipients := make(map[model.Currency]string)
	for _, cur := range cfg.EnabledCurrencies() {
		chainCfg, _ := cfg.Chain(cur)
		switch cur {
		case model.CurrencyETH:
			observers[cur] = chainAdapters.NewEthObserver(chainCfg, log)
		case model.CurrencySOL:
			observers[cur] = chainAdapters.NewSolObserver(chainCfg, log)
		default:
			continue
		}
		recipients[cur] = chainCfg.DepositAddress
		log.Info().Str("currency", string(cur)).Str("deposit", chainCfg.DepositAddress).Msg("chain observer enabled")
	}

	// ---- Price feed ----
	var feed adapter.PriceFeed
	if cfg.Price.Source == "static" {
		feed, err = priceAdapters.NewStaticFeed(cfg.Price.Static)
		if err != nil {
			log.Fatal().Err(err).Msg("static price feed")
		}
	} else {
		feed = priceAdapters.NewBinanceFeed(log)
	}
	feed = priceAdapters.NewCachedFeed(feed, cfg.Price.TTL)

	// ---- Use cases ----
	// the notifier's transport is bound after the bot exists
	notifier := tele.NewBotNotifier(log)

	obligationUC := usecase.NewObligationUseCase(obligationRepo, feed, recipients, log)
	subUC := usecase.NewSubscriptionUseCase(subRepo, notifier, log)
	reconcileUC := usecase.NewReconcileUseCase(
		obligationRepo, subUC, txManager, observers, notifier, locker, rateLimiter,
		usecase.ReconcileConfig{
			Lookback:     cfg.Reconciler.Lookback,
			SweepLimit:   cfg.Reconciler.SweepLimit,
			LockTTL:      cfg.Reconciler.LockTTL,
			VerifyLimit:  cfg.Reconciler.VerifyLimit,
			VerifyWindow: cfg.Reconciler.VerifyWindow,
		},
		log,
	)
	statsUC := usecase.NewStatsUseCase(obligationRepo, subRepo)

	// ---- Telegram ----
	var bot adapter.TelegramBotAdapter
	if cfg.Bot.Enabled {
		bot, err = tele.NewRealBotAdapter(&cfg.Bot, obligationUC, subUC, reconcileUC, rateLimiter, log)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram")
		}
	} else {
		bot = tele.NewNoopBotAdapter(log)
	}
	notifier.SetBot(bot)

	go func() {
		if err := bot.StartPolling(ctx); err != nil && err != context.Canceled {
			log.Warn().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Workers ----
	reconcileWorker := sched.NewReconcileWorker(reconcileUC, cfg.Reconciler.Interval, cfg.Reconciler.SweepTimeout, log)
	go func() { _ = reconcileWorker.Run(ctx) }()

	expiryWorker := sched.NewExpiryWorker(subUC, cfg.Expiry.Interval, cfg.Expiry.NotifyWithin, log)
	go func() { _ = expiryWorker.Run(ctx) }()

	// ---- Admin API ----
	auth := web.NewAuthManager(cfg.Admin.SessionSecret, !cfg.Runtime.Dev, "", cfg.Admin.SessionTTL)
	adminSrv := web.NewServer(statsUC, reconcileUC, subUC, obligationUC, auth, cfg.Admin.APIKey, log)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler:           adminSrv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("admin API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin API server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
