package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/centaur-backend/internal/db"
	"github.com/ignatzorin/centaur-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/centaur-backend/internal/http/handlers"
	"github.com/ignatzorin/centaur-backend/internal/http/middleware"
	httpRouter "github.com/ignatzorin/centaur-backend/internal/http/router"
	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/metrics"
	"github.com/ignatzorin/centaur-backend/internal/payment"
	"github.com/ignatzorin/centaur-backend/internal/repository"
	"github.com/ignatzorin/centaur-backend/internal/service"
	"github.com/ignatzorin/centaur-backend/internal/storage"
	"github.com/ignatzorin/centaur-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		migrate   bool
		withRelay bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и встроенный outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Готовим контекст для graceful shutdown.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if migrate {
				if _, err := db.RunMigrations(ctx, a.db, a.cfg.MigrationsPath); err != nil {
					return err
				}
			}
			return serve(ctx, a, withRelay)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "применить миграции перед стартом")
	cmd.Flags().BoolVar(&withRelay, "relay", true, "запустить outbox relay в этом процессе")
	return cmd
}

func serve(ctx context.Context, a *app, withRelay bool) error {
	cfg := a.cfg
	log := logger.For("main")

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.EvidenceStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		return err
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(a.db)
	orderRepo := repository.NewOrderRepository(a.db)
	paymentRepo := repository.NewPaymentRepository(a.db)
	disputeRepo := repository.NewDisputeRepository(a.db)
	retainerRepo := repository.NewRetainerRepository(a.db)
	availabilityRepo := repository.NewAvailabilityRepository(a.db)
	memberRepo := repository.NewMemberRepository(a.db)
	otjtRepo := repository.NewOTJTRepository(a.db)
	notificationRepo := repository.NewNotificationRepository(a.db)

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGoWithContext(ctx, hub.Run)

	// Сервисы.
	gateway := payment.NewLedgerGateway(paymentRepo)
	notificationService := service.NewNotificationService(notificationRepo, hub)
	escrowService := service.NewEscrowService(orderRepo, gateway, notificationService, a.metrics, cfg.PlatformFeePercent)
	orderService := service.NewOrderService(orderRepo, escrowService, notificationService, cfg.DefaultCurrency)
	disputeService := service.NewDisputeService(disputeRepo, orderRepo, escrowService, notificationService)
	retainerService := service.NewRetainerService(retainerRepo, gateway, notificationService, cfg.PlatformFeePercent, cfg.DefaultCurrency)
	var calendarCache service.Cache = service.NewMemoryCache(ctx, time.Minute)
	if a.redis != nil {
		calendarCache = service.NewRedisCache(a.redis, "centaur:cache:")
	}
	availabilityService := service.NewAvailabilityService(availabilityRepo, notificationService).WithCache(calendarCache)
	offboardingService := service.NewOffboardingService(memberRepo, notificationService)
	otjtService := service.NewOTJTService(otjtRepo, evidenceStorage, notificationService)
	walletService := service.NewWalletService(paymentRepo)
	authService := service.NewAuthService(userRepo, tokenManager)

	limiterStore, err := middleware.NewLimiterStore(a.redis, "centaur:ratelimit")
	if err != nil {
		return err
	}

	healthDeps := map[string]httpHandlers.Pinger{"database": a.db}
	if a.redis != nil {
		healthDeps["redis"] = httpHandlers.PingFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}

	var metricsHandler http.Handler
	if a.metrics != nil {
		if metricsHandler, err = metrics.Handler(a.metrics); err != nil {
			return err
		}
	}

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Auth:         httpHandlers.NewAuthHandler(authService),
		Payment:      httpHandlers.NewPaymentHandler(walletService, escrowService),
		Order:        httpHandlers.NewOrderHandler(orderService),
		Dispute:      httpHandlers.NewDisputeHandler(disputeService),
		Retainer:     httpHandlers.NewRetainerHandler(retainerService),
		Availability: httpHandlers.NewAvailabilityHandler(availabilityService),
		Member:       httpHandlers.NewMemberHandler(offboardingService),
		OTJT:         httpHandlers.NewOTJTHandler(otjtService),
		Notification: httpHandlers.NewNotificationHandler(notificationService),
		WS:           httpHandlers.NewWSHandler(hub, cfg.AllowedOrigins),
		Health:       httpHandlers.NewHealthHandler(healthDeps, repository.NewOutboxRepository(a.db)),
	}, httpRouter.Deps{
		Tokens:         tokenManager,
		LimiterStore:   limiterStore,
		Metrics:        a.metrics,
		MetricsHandler: metricsHandler,
	})

	if withRelay {
		relay := a.newRelay()
		goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
			_ = relay.Run(ctx)
		})
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("ошибка остановки http сервера")
		}
	})

	log.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("HTTP сервер остановлен")
	return nil
}
