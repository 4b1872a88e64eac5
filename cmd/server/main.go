package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"familypoints/internal/cache"
	"familypoints/internal/config"
	"familypoints/internal/database"
	"familypoints/internal/handlers"
	"familypoints/internal/logging"
	"familypoints/internal/repository"
	"familypoints/internal/security"
	"familypoints/internal/service"

	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	// Listen straight away so /healthz can report progress while the stack comes up
	startup := handlers.NewStartupStatus()
	var current atomic.Pointer[http.Handler]
	starting := startingHandler(startup)
	current.Store(&starting)

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			(*current.Load()).ServeHTTP(w, r)
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startup.SetCurrentStep(handlers.StepDatabase)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()
	startup.CompleteStep(handlers.StepDatabase)
	log.WithField("type", cfg.DatabaseType).Info("Database connection established")

	startup.SetCurrentStep(handlers.StepMigrations)
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	startup.CompleteStep(handlers.StepMigrations)

	startup.SetCurrentStep(handlers.StepCache)
	badges := newBadgeCache(ctx, cfg)
	startup.CompleteStep(handlers.StepCache)

	startup.SetCurrentStep(handlers.StepServices)
	router, err := buildRouter(ctx, cfg, db, badges, startup)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
	}
	startup.CompleteStep(handlers.StepServices)

	current.Store(&router)
	startup.MarkReady()
	log.Info("Server ready")

	<-ctx.Done()
	log.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

// startingHandler answers health checks and turns everything else away until the router is built
func startingHandler(startup *handlers.StartupStatus) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", startup.Health)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		http.Error(w, "Service starting", http.StatusServiceUnavailable)
	})
	return mux
}

// newBadgeCache connects to Redis when configured. Without Redis the badge
// counts are read from the database on every request.
func newBadgeCache(ctx context.Context, cfg *config.Config) cache.BadgeCache {
	if cfg.RedisAddr == "" {
		log.Info("Badge cache disabled: REDIS_ADDR not configured")
		return cache.NopBadgeCache{}
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Warn("Badge cache unavailable, continuing without it")
		return cache.NopBadgeCache{}
	}

	log.WithField("addr", cfg.RedisAddr).Info("Badge cache connected")
	return cache.NewRedisBadgeCache(client, cfg.BadgeCacheTTL)
}

func buildRouter(ctx context.Context, cfg *config.Config, db *database.DB, badges cache.BadgeCache, startup *handlers.StartupStatus) (http.Handler, error) {
	userRepo := repository.NewUserRepository(db)
	familyRepo := repository.NewFamilyRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	rewardRepo := repository.NewRewardRepository(db)
	claimRepo := repository.NewClaimRepository(db)
	pointsRepo := repository.NewPointsRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	emailService, err := service.NewEmailService(ctx, cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.EmailDebug)
	if err != nil {
		return nil, err
	}

	var mirror service.NotificationMirror
	if emailService.IsEnabled() {
		mirror = service.NewEmailMirror(emailService, userRepo)
	}

	gate := service.NewGate(cfg.StrictRoleChecking)
	tokens := security.NewTokenManager(cfg.JWTSecret, cfg.TokenDuration)
	notifier := service.NewNotificationService(notificationRepo, badges, mirror)

	return handlers.NewRouter(handlers.Services{
		Auth:          service.NewAuthService(userRepo, tokens, emailService),
		Families:      service.NewFamilyService(familyRepo, userRepo),
		Tasks:         service.NewTaskService(taskRepo, userRepo, pointsRepo, notifier, gate, badges),
		Rewards:       service.NewRewardService(rewardRepo, claimRepo, userRepo, pointsRepo, notifier, gate),
		Notifications: notifier,
		Gate:          gate,
		Limiter:       security.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		Startup:       startup,
	}), nil
}
