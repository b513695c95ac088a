package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"meetassist-backend/db"
	agentHandler "meetassist-backend/internal/handler/http/agent"
	aichatHandler "meetassist-backend/internal/handler/http/aichat"
	deviceHandler "meetassist-backend/internal/handler/http/device"
	meetingHandler "meetassist-backend/internal/handler/http/meeting"
	webhookHandler "meetassist-backend/internal/handler/http/webhook"
	"meetassist-backend/internal/jobs"
	"meetassist-backend/internal/middleware"
	"meetassist-backend/internal/provider/callprovider"
	"meetassist-backend/internal/provider/chatprovider"
	"meetassist-backend/internal/provider/generative"
	cassandraRepo "meetassist-backend/internal/repository/cassandra"
	postgresRepo "meetassist-backend/internal/repository/postgres"
	redisRepo "meetassist-backend/internal/repository/redis"
	agentService "meetassist-backend/internal/service/agent"
	aiService "meetassist-backend/internal/service/ai"
	meetingService "meetassist-backend/internal/service/meeting"
	notificationService "meetassist-backend/internal/service/notification"
	transcriptService "meetassist-backend/internal/service/transcript"
	"meetassist-backend/internal/storage"
	"meetassist-backend/pkg/database"
	"meetassist-backend/pkg/env"
	"meetassist-backend/pkg/jwt"
	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/metrics"
	"meetassist-backend/pkg/push"
)

func main() {
	logger.InitDefault()
	defer logger.Sync()

	// 1. Auth + provider credentials
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewManager(jwtSecret, 24*time.Hour)

	callClient := callprovider.NewClient(callprovider.Config{
		APIKey:    env.MustGetString("CALL_PROVIDER_API_KEY"),
		APISecret: env.GetStringFromFile("CALL_PROVIDER_API_SECRET", ""),
		BaseURL:   env.GetString("CALL_PROVIDER_BASE_URL", "https://video.stream-io-api.com/api/v2"),
	})

	chatClient := chatprovider.NewClient(chatprovider.Config{
		APIKey:    env.MustGetString("CHAT_PROVIDER_API_KEY"),
		APISecret: env.GetStringFromFile("CHAT_PROVIDER_API_SECRET", ""),
		BaseURL:   env.GetString("CHAT_PROVIDER_BASE_URL", "https://chat.stream-io-api.com"),
	})

	ctx := context.Background()

	generativeClient, err := generative.NewClient(ctx,
		env.GetStringFromFile("GEMINI_API_KEY", ""),
		env.GetString("GEMINI_MODEL", ""))
	if err != nil {
		log.Fatalf("Failed to create generative client: %v", err)
	}

	// 2. Connect to Postgres and run migrations
	postgresDB, err := database.NewPostgresDB(ctx, &database.PostgresConfig{
		Host:     env.GetString("POSTGRES_HOST", "localhost"),
		Port:     env.GetInt("POSTGRES_PORT", 5432),
		User:     env.GetString("POSTGRES_USER", "meetassist"),
		Password: env.GetStringFromFile("POSTGRES_PASSWORD", ""),
		Database: env.GetString("POSTGRES_DATABASE", "meetassist_db"),
		SSLMode:  env.GetString("POSTGRES_SSLMODE", "disable"),
	})
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgresDB.Close()

	if err := postgresDB.Migrate(db.Migrations, db.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("✅ Connected to Postgres")

	// 3. Connect to Cassandra (chat history mirror)
	cassandraDB, err := database.NewCassandraDB(&database.CassandraConfig{
		Hosts:    []string{env.GetString("CASSANDRA_HOST", "localhost")},
		Keyspace: env.GetString("CASSANDRA_KEYSPACE", "meetassist_ks"),
		Username: env.GetStringFromFile("CASSANDRA_USER", ""),
		Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
		Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 10*time.Second),
	})
	if err != nil {
		log.Fatalf("Failed to connect to Cassandra: %v", err)
	}
	defer cassandraDB.Close()
	log.Println("✅ Connected to Cassandra")

	// 4. Connect to Redis (job queue + device tokens)
	redisConfig := &database.RedisConfig{
		Host:     env.GetString("REDIS_HOST", "localhost"),
		Port:     env.GetInt("REDIS_PORT", 6379),
		Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
		DB:       0,
		PoolSize: 10,
	}
	redisDB, err := database.NewRedisDB(redisConfig)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()
	log.Println("✅ Connected to Redis")

	// 5. Repositories
	meetingRepo := postgresRepo.NewMeetingRepository(postgresDB.Pool)
	agentRepo := postgresRepo.NewAgentRepository(postgresDB.Pool)
	userRepo := postgresRepo.NewUserRepository(postgresDB.Pool)
	chatHistoryRepo := cassandraRepo.NewChatMessageRepository(cassandraDB.Session)
	deviceTokenRepo := redisRepo.NewDeviceTokenRepository(redisDB.Client)

	// 6. Job queue client
	jobClient := jobs.NewClient(redisConfig.Addr(),
		env.GetStringFromFile("REDIS_PASSWORD", ""), 0)
	defer jobClient.Close()

	// 7. Services
	pushProvider, err := push.NewProvider()
	if err != nil {
		log.Fatalf("Failed to create push provider: %v", err)
	}
	pushService := push.NewService(pushProvider, deviceTokenRepo)
	notificationSvc := notificationService.NewService(pushService)

	agentSvc := agentService.NewService(agentRepo)
	meetingSvc := meetingService.NewService(meetingRepo, agentRepo, userRepo,
		callClient, chatClient, jobClient)
	aiSvc := aiService.NewService(meetingRepo, agentRepo, chatHistoryRepo,
		generativeClient, chatClient)
	// Transcript archive fallback for expired provider URLs (optional).
	var archiveFetcher transcriptService.ArchiveFetcher
	if endpoint := env.GetString("MINIO_ENDPOINT", ""); endpoint != "" {
		archive, err := storage.NewTranscriptArchive(storage.ArchiveConfig{
			Endpoint:  endpoint,
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", ""),
			Bucket:    env.GetString("MINIO_BUCKET", "meeting-transcripts"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", true),
		})
		if err != nil {
			log.Fatalf("Failed to create transcript archive: %v", err)
		}
		archiveFetcher = archive
	}

	transcriptSvc := transcriptService.NewService(meetingRepo, userRepo, agentRepo, archiveFetcher)

	// 8. Metrics
	appMetrics := metrics.NewMetrics("meeting-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 9. Handlers
	webhookHdlr := webhookHandler.NewHandler(callClient, meetingSvc, aiSvc, appMetrics)
	meetingHdlr := meetingHandler.NewHandler(meetingSvc, transcriptSvc)
	agentHdlr := agentHandler.NewHandler(agentSvc)
	aichatHdlr := aichatHandler.NewHandler(aiSvc, appMetrics)
	deviceHdlr := deviceHandler.NewHandler(notificationSvc)

	// 10. Router
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		deps := gin.H{
			"postgres":  "up",
			"redis":     "up",
			"cassandra": "up",
		}
		healthy := true
		if err := postgresDB.Ping(checkCtx); err != nil {
			deps["postgres"] = "down"
			healthy = false
		}
		if err := redisDB.Ping(checkCtx); err != nil {
			deps["redis"] = "down"
			healthy = false
		}
		if err := cassandraDB.Ping(); err != nil {
			deps["cassandra"] = "down"
			healthy = false
		}

		status := http.StatusOK
		state := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"service":      "meeting-service",
			"dependencies": deps,
			"time":         time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Provider webhook: signature-authenticated, outside /v1 auth.
	router.POST("/webhook", webhookHdlr.Handle)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("/meetings", meetingHdlr.Create)
		v1.GET("/meetings", meetingHdlr.List)
		v1.GET("/meetings/:id", meetingHdlr.Get)
		v1.POST("/meetings/:id/cancel", meetingHdlr.Cancel)
		v1.DELETE("/meetings/:id", meetingHdlr.Delete)
		v1.GET("/meetings/:id/transcript", meetingHdlr.Transcript)
		v1.POST("/meetings/tokens/video", meetingHdlr.VideoToken)
		v1.POST("/meetings/tokens/chat", meetingHdlr.ChatToken)

		v1.POST("/agents", agentHdlr.Create)
		v1.GET("/agents", agentHdlr.List)
		v1.GET("/agents/:id", agentHdlr.Get)
		v1.PUT("/agents/:id", agentHdlr.Update)

		v1.POST("/ai/chat", aichatHdlr.Chat)

		v1.POST("/devices", deviceHdlr.Register)
		v1.DELETE("/devices", deviceHdlr.Unregister)
	}

	// 11. Serve with graceful shutdown
	port := env.GetString("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 meeting-service listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down meeting-service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("meeting-service stopped")
}
