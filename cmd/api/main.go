package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/motionapp/motion-server/configs"
	"github.com/motionapp/motion-server/database"
	"github.com/motionapp/motion-server/handlers"
	"github.com/motionapp/motion-server/jobs"
	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/media"
	"github.com/motionapp/motion-server/notifications"
	"github.com/motionapp/motion-server/routes"
	"github.com/motionapp/motion-server/services"
	"github.com/motionapp/motion-server/websocket"
	"github.com/redis/go-redis/v9"
)

const (
	pushTimeout   = 10 * time.Second
	jobSchedule   = "0 * * * *"
	redisPrefix   = "motion"
	shutdownGrace = 10 * time.Second
)

func main() {
	cfg := config.Load()
	if err := logger.Init(cfg.LogLevel, cfg.Development()); err != nil {
		log.Fatalf("🔥 failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Log.Fatal("🔥 JWT_SECRET is not set")
	}

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatalw("🔥 failed to connect to database", "err", err)
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatalw("🔥 failed to migrate database", "err", err)
	}
	if err := database.SeedSettings(db, cfg.FreeMessagingDefault); err != nil {
		logger.Log.Fatalw("🔥 failed to seed settings", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := newBroker(ctx, cfg.RedisURL)
	hub := websocket.NewHub(broker)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()
	// The hub releases presence on the way out, so the broker closes after it.
	defer func() {
		stop()
		<-hubDone
		_ = broker.Close()
	}()

	settings := services.NewSettingsService(db)
	users := services.NewUserService(db, hub)
	notificationService := services.NewNotificationService(db, hub)
	matches := services.NewMatchService(db, hub, notificationService)
	conversations := services.NewConversationService(db, hub, matches)
	reactions := services.NewReactionService(db, hub)

	var sender notifications.Sender
	if cfg.PushConfigured() {
		sender = notifications.NewWebPushSender(notifications.VAPIDConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}, &http.Client{Timeout: pushTimeout})
	} else {
		logger.Log.Warn("⚠️ VAPID keys not set, web push is disabled")
	}
	push := notifications.NewPushService(db, sender, cfg.VAPIDPublicKey)

	eligibility := services.NewEligibilityChain(settings)
	logger.Log.Infow("message eligibility guards", "order", eligibility.Names())
	messages := services.NewMessageService(db, hub, push, eligibility, pushTimeout)

	h := &handlers.Handlers{
		Users:         users,
		Settings:      settings,
		Matches:       matches,
		Conversations: conversations,
		Messages:      messages,
		Reactions:     reactions,
		Notifications: notificationService,
		Push:          push,
	}
	if cfg.CloudinaryURL != "" {
		uploader, err := media.NewCloudinaryUploader(cfg.CloudinaryURL, media.VoiceFolder)
		if err != nil {
			logger.Log.Fatalw("🔥 failed to configure media uploads", "err", err)
		}
		h.Voice = uploader
		h.Photos = uploader
	} else {
		logger.Log.Warn("⚠️ CLOUDINARY_URL not set, media uploads are disabled")
	}

	scheduler, err := jobs.Schedule(ctx, jobSchedule,
		jobs.NewProfileNudgeJob(db, notificationService),
		jobs.NewNotificationCleanupJob(notificationService, jobs.DefaultNotificationRetention),
	)
	if err != nil {
		logger.Log.Fatalw("🔥 failed to schedule jobs", "err", err)
	}
	defer scheduler.Stop()

	gateway := websocket.NewGateway(hub, conversations, messages, reactions, users)

	app := routes.NewApp(routes.AppConfig{CORSOrigins: cfg.CORSOrigins, AccessLog: cfg.Development()})
	routes.Register(app, h, gateway.Handler(), cfg.JWTSecret)

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down")
		if err := app.ShutdownWithTimeout(shutdownGrace); err != nil {
			logger.Log.Warnw("shutdown did not complete cleanly", "err", err)
		}
	}()

	logger.Log.Infow("✅ Server is running", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Log.Fatalw("🔥 Server failed to start", "err", err)
	}
}

// newBroker shares rooms across instances through Redis when REDIS_URL is set.
func newBroker(ctx context.Context, redisURL string) websocket.Broker {
	if redisURL == "" {
		logger.Log.Info("REDIS_URL not set, rooms are local to this instance")
		return websocket.NewLocalBroker()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Log.Fatalw("🔥 invalid REDIS_URL", "err", err)
	}
	broker, err := websocket.NewRedisBroker(ctx, redis.NewClient(opts), redisPrefix)
	if err != nil {
		logger.Log.Fatalw("🔥 failed to connect to redis", "err", err)
	}
	logger.Log.Info("✅ Redis broker connected")
	return broker
}
