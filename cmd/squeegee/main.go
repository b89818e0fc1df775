package main

import (
	"context"
	"time"

	"squeegee/internal/geocode"
	"squeegee/internal/gocardless"
	"squeegee/internal/handlers"
	"squeegee/internal/queue"
	"squeegee/internal/sms"
	"squeegee/pkg/auth"
	"squeegee/pkg/config"
	"squeegee/pkg/database"
	"squeegee/pkg/logging"
	"squeegee/pkg/monitoring"
	"squeegee/pkg/redis"
	"squeegee/pkg/server"
	"squeegee/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("squeegee")
	config.LoadEnv(logger)

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("Starting squeegee")

	databaseURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")

	dbConfig := database.DefaultConfig()
	dbConfig.URL = databaseURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if err := database.ApplySchema(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	metricsCollector := monitoring.NewMetricsCollector("squeegee", version.Version, version.GetShortCommit())
	squeegeeMetrics := handlers.NewSqueegeeMetrics(metricsCollector)

	gcAccessToken := config.GetEnv("GC_ACCESS_TOKEN", "")

	healthChecker := monitoring.NewHealthChecker("squeegee", version.Version)
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":    databaseURL,
		"JWT_SECRET":      jwtSecret,
		"GC_ACCESS_TOKEN": gcAccessToken,
	}))

	handlers.Init(db, logger, squeegeeMetrics)

	// Payment provider. Without credentials the payment endpoints answer
	// with an internal error instead of refusing to boot.
	if gcAccessToken != "" {
		gcClient, err := gocardless.NewClient(gocardless.Config{
			AccessToken:   gcAccessToken,
			Environment:   config.GetEnv("GC_ENVIRONMENT", "sandbox"),
			WebhookSecret: config.GetEnv("GC_WEBHOOK_SECRET", ""),
			Logger:        logger,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create payment provider client")
		}
		handlers.SetPaymentsClient(gcClient)
	} else {
		logger.Warn("GC_ACCESS_TOKEN not set, payment endpoints disabled")
	}

	handlers.SetGeocodeClient(geocode.NewClient(geocode.Config{
		NominatimURL: config.GetEnv("NOMINATIM_URL", ""),
		UserAgent:    config.GetEnv("GEOCODE_USER_AGENT", "squeegee/"+version.Version),
		Logger:       logger,
	}))

	smsClient, err := sms.NewClient(sms.Config{
		APIURL:        config.GetEnv("SMS_API_URL", ""),
		APIKey:        config.GetEnv("SMS_API_KEY", ""),
		Provider:      config.GetEnv("SMS_PROVIDER", ""),
		DefaultSender: config.GetEnv("SMS_DEFAULT_SENDER", ""),
		Logger:        logger,
	})
	if err != nil {
		logger.Warn("SMS provider not configured, SMS endpoints disabled")
	} else {
		handlers.SetSMSClient(smsClient)
	}

	handlers.SetEmailService(handlers.NewEmailService(logger))

	if redisAddr := config.GetEnv("REDIS_ADDR", ""); redisAddr != "" {
		redisClient, err := redis.NewClient(context.Background(), redis.Config{
			Addr:     redisAddr,
			Password: config.GetEnv("REDIS_PASSWORD", ""),
			DB:       config.GetEnvInt("REDIS_DB", 0),
		})
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, payment status caching disabled")
		} else {
			defer redisClient.Close()
			handlers.SetStatusCache(redisClient)
		}
	}

	queueWatcher := queue.NewWatcher(db, logger,
		time.Duration(config.GetEnvInt("QUEUE_POLL_INTERVAL_SECONDS", 5))*time.Second)
	queueWatcher.Start()
	defer queueWatcher.Stop()
	handlers.SetQueueWatcher(queueWatcher)

	jobManager := handlers.NewJobManager(logger)
	jobManager.Start()
	defer jobManager.Stop()

	router := server.SetupServiceRouter(logger, "squeegee", healthChecker, metricsCollector)

	payments := router.Group("/payments")
	{
		payments.POST("/instant-link", handlers.CreateInstantPayLink)
		payments.POST("/instant-link/complete", handlers.CompleteInstantPayFlow)
		payments.GET("/status", handlers.CheckPaymentStatus)
	}

	router.POST("/webhooks/gocardless", handlers.HandleGoCardlessWebhook)

	protected := router.Group("/")
	protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
	{
		protected.POST("/subscribers/mandate", handlers.CreateSubscriberMandate)
		protected.POST("/subscribers/mandate/finalise", handlers.FinaliseSubscriberMandate)

		protected.GET("/offline-queue", handlers.GetOfflineQueue)
		protected.POST("/offline-queue/:id/resend", handlers.ResendPaymentLink)
		protected.GET("/offline-queue/stream", handlers.StreamOfflineQueue)

		protected.GET("/geo/nearby-roads", handlers.GetNearbyRoads)
		protected.GET("/geo/reverse", handlers.ReverseGeocode)

		protected.POST("/sms/send", handlers.SendSMS)
	}

	serverConfig := server.DefaultConfig("squeegee", "18020")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
}
