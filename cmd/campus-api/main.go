package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-hub-api/api/swagger"
	"github.com/noah-isme/campus-hub-api/db/migrations"
	"github.com/noah-isme/campus-hub-api/internal/handler"
	"github.com/noah-isme/campus-hub-api/internal/repository"
	"github.com/noah-isme/campus-hub-api/internal/service"
	"github.com/noah-isme/campus-hub-api/pkg/cache"
	"github.com/noah-isme/campus-hub-api/pkg/config"
	"github.com/noah-isme/campus-hub-api/pkg/database"
	"github.com/noah-isme/campus-hub-api/pkg/jobs"
	"github.com/noah-isme/campus-hub-api/pkg/logger"
	"github.com/noah-isme/campus-hub-api/pkg/ticket"
)

// @title Campus Hub API
// @version 1.0.0
// @description Event approval, registrations and canteen ordering for the campus portal.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.NewMigrator(db, logr).Run(ctx, migrations.FS); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, cache and realtime disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	app := buildApp(ctx, cfg, db, redisClient, logr)
	defer app.queue.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down server")

	// Cancelling the root context ends open event streams before Shutdown waits on them.
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
	}
	logr.Info("server exited")
}

type app struct {
	router *gin.Engine
	queue  *jobs.Queue
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *app {
	validate := validator.New()
	metrics := service.NewMetricsService()

	location, err := time.LoadLocation(cfg.Canteen.Timezone)
	if err != nil {
		logr.Warn("unknown canteen timezone, using UTC", zap.String("timezone", cfg.Canteen.Timezone), zap.Error(err))
		location = time.UTC
	}

	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	menuRepo := repository.NewMenuRepository(db)
	slotRepo := repository.NewTimeSlotRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	analyticsRepo := repository.NewCanteenAnalyticsRepository(db)

	var (
		cacheRepo service.CacheRepository
		bus       service.ChangeBus
	)
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
		bus = repository.NewChangeFeedRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Canteen.AnalyticsCacheTTL, logr, cacheRepo != nil)
	feed := service.NewChangeFeed(bus, cfg.Realtime.ChannelPrefix, logr, cfg.Realtime.Enabled && bus != nil)

	var sender service.NotificationSender = service.NewLogSender(logr)
	if cfg.Notifications.WebhookURL != "" {
		sender = service.NewWebhookSender(cfg.Notifications.WebhookURL, cfg.Notifications.WebhookTimeout)
	}
	notifications := service.NewNotificationService(sender, metrics, logr, cfg.Notifications.Enabled)
	queue := jobs.NewQueue("notifications", notifications.Deliver, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	notifications.AttachQueue(queue)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	exporter := service.NewExportService(nil, location, logr)

	approvals := service.NewApprovalService(eventRepo, service.ApprovalServiceConfig{
		Roles:     authSvc,
		Profiles:  userRepo,
		Notifier:  notifications,
		Feed:      feed,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	})

	ticketSecret := cfg.Tickets.Secret
	if ticketSecret == "" {
		logr.Warn("TICKET_SIGNING_SECRET not set, signing tickets with the JWT secret")
		ticketSecret = cfg.JWT.Secret
	}
	registrations := service.NewRegistrationService(registrationRepo, eventRepo, ticket.NewSigner(ticketSecret, cfg.Tickets.TTL), service.RegistrationServiceConfig{
		Profiles: userRepo,
		Roles:    authSvc,
		Exporter: exporter,
		Notifier: notifications,
		Metrics:  metrics,
		Logger:   logr,
	})

	ordering := service.NewOrderingService(orderRepo, menuRepo, slotRepo, analyticsRepo, service.OrderingServiceConfig{
		OrderNumberPrefix: cfg.Canteen.OrderNumberPrefix,
		AnalyticsTTL:      cfg.Canteen.AnalyticsCacheTTL,
		Location:          location,
		Roles:             authSvc,
		Cache:             cacheSvc,
		Exporter:          exporter,
		Notifier:          notifications,
		Feed:              feed,
		Metrics:           metrics,
		Logger:            logr,
	})
	menu := service.NewMenuService(menuRepo, slotRepo, validate, location, logr)

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, logr, routerDeps{
		auth:          authSvc,
		audit:         userRepo,
		metrics:       metrics,
		authHandler:   handler.NewAuthHandler(authSvc),
		events:        handler.NewEventHandler(approvals),
		registrations: handler.NewRegistrationHandler(registrations),
		canteen:       handler.NewCanteenHandler(ordering, menu),
		canteenAdmin:  handler.NewCanteenAdminHandler(ordering, menu),
		stream:        handler.NewStreamHandler(feed, 0),
		metricsH:      handler.NewMetricsHandler(metrics, checks),
	})

	return &app{router: router, queue: queue}
}
