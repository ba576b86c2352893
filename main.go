package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockdesk/src/api"
	"stockdesk/src/api/handlers"
	"stockdesk/src/clients/market"
	"stockdesk/src/config"
	"stockdesk/src/scheduler"
	"stockdesk/src/session"
	"stockdesk/src/storage"
	"stockdesk/src/utils"
	redis_utils "stockdesk/src/utils/redis"
	"stockdesk/src/views"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig("./settings", os.Getenv("ENV"))
	if err != nil {
		log.Println(err, "Error while loading config")
		return
	}
	logger := utils.NewLogger(utils.ParseLevel(cfg.Log.Level), cfg.Log.ToFile, cfg.Log.FilePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errC, err := run(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Couldn't run")
		return
	}

	if err := <-errC; err != nil {
		logger.WithError(err).Error("Error while running")
	}
}

func newStorage(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Storage, func(), error) {
	if cfg.Storage.Driver != config.RedisStorage {
		return storage.NewMemory(), func() {}, nil
	}
	handler, err := redis_utils.NewRedisHandler(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("host", cfg.Storage.Redis.Host).Info("using redis storage")
	return handler, func() { _ = handler.Close() }, nil
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (<-chan error, error) {
	errC := make(chan error, 1)

	store, closeStorage, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := market.NewClient(cfg, logger)
	if err != nil {
		closeStorage()
		return nil, err
	}

	sessions := session.NewStore(store, logger)
	sessions.Hydrate(ctx)

	deps := &views.Deps{
		Client:       client,
		Session:      sessions,
		Storage:      store,
		Logger:       logger,
		PollInterval: cfg.Polling.Interval,
		HintTTL:      cfg.Storage.CacheTTL,
		NewTicker:    scheduler.NewTicker,
	}
	pages := handlers.Pages{
		Login:        views.NewLoginPage(deps),
		Users:        views.NewUsersPage(deps),
		Assets:       views.NewAssetsPage(deps),
		Wallet:       views.NewWalletPage(deps),
		Transactions: views.NewTransactionsPage(deps),
	}
	nav := views.NewNavigator(ctx, sessions, logger)
	nav.Register(pages.Login)
	nav.Register(pages.Users)
	nav.Register(pages.Assets)
	nav.Register(pages.Wallet)
	nav.Register(pages.Transactions)

	revalidator := session.NewRevalidator(sessions, client, logger)
	revalidator.OnExpired(nav.Redirect)
	// Start checks the stored session once before the first page opens.
	if err := revalidator.Start(ctx, cfg.Session.RevalidateCron); err != nil {
		closeStorage()
		return nil, err
	}

	first := views.LoginPageName
	if sessions.Snapshot().Authenticated {
		first = views.WalletPageName
	}
	if _, err := nav.Open(first); err != nil {
		logger.WithError(err).Error("could not open the first page")
	}

	server := api.NewServer(handlers.NewHandler(nav, sessions, pages, logger), cfg)
	httpServer := api.NewHTTPServer(server, cfg.Service.Port)

	go func() {
		logger.WithField("port", cfg.Service.Port).Info("Starting server")

		// "ListenAndServe always returns a non-nil error. After Shutdown or Close, the returned error is
		// ErrServerClosed."
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		revalidator.Stop()
		nav.Close()
		err := httpServer.Shutdown(shutdownCtx)
		closeStorage()
		errC <- err
	}()

	return errC, nil
}
