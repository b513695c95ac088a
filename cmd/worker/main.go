package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"meetassist-backend/internal/jobs"
	"meetassist-backend/internal/provider/generative"
	postgresRepo "meetassist-backend/internal/repository/postgres"
	redisRepo "meetassist-backend/internal/repository/redis"
	notificationService "meetassist-backend/internal/service/notification"
	transcriptService "meetassist-backend/internal/service/transcript"
	"meetassist-backend/internal/storage"
	"meetassist-backend/pkg/database"
	"meetassist-backend/pkg/env"
	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/metrics"
	"meetassist-backend/pkg/push"
)

func main() {
	logger.InitDefault()
	defer logger.Sync()

	ctx := context.Background()

	// 1. Postgres
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
	log.Println("✅ Connected to Postgres")

	// 2. Redis (queue backend + device tokens)
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

	// 3. Generative provider
	generativeClient, err := generative.NewClient(ctx,
		env.GetStringFromFile("GEMINI_API_KEY", ""),
		env.GetString("GEMINI_MODEL", ""))
	if err != nil {
		log.Fatalf("Failed to create generative client: %v", err)
	}

	// 4. Transcript archive (optional)
	var archive *storage.TranscriptArchive
	if endpoint := env.GetString("MINIO_ENDPOINT", ""); endpoint != "" {
		archive, err = storage.NewTranscriptArchive(storage.ArchiveConfig{
			Endpoint:  endpoint,
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", ""),
			Bucket:    env.GetString("MINIO_BUCKET", "meeting-transcripts"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", true),
		})
		if err != nil {
			log.Fatalf("Failed to create transcript archive: %v", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Fatalf("Failed to prepare archive bucket: %v", err)
		}
		log.Println("✅ Transcript archive ready")
	} else {
		log.Println("MINIO_ENDPOINT not set, transcript archiving disabled")
	}

	// 5. Dependencies for the completion handler
	meetingRepo := postgresRepo.NewMeetingRepository(postgresDB.Pool)
	agentRepo := postgresRepo.NewAgentRepository(postgresDB.Pool)
	userRepo := postgresRepo.NewUserRepository(postgresDB.Pool)
	deviceTokenRepo := redisRepo.NewDeviceTokenRepository(redisDB.Client)

	// storage.TranscriptArchive is optional; a typed nil must not reach the
	// interface fields.
	var archiveFetcher transcriptService.ArchiveFetcher
	var archiver jobs.Archiver
	if archive != nil {
		archiveFetcher = archive
		archiver = archive
	}

	transcriptSvc := transcriptService.NewService(meetingRepo, userRepo, agentRepo, archiveFetcher)

	pushProvider, err := push.NewProvider()
	if err != nil {
		log.Fatalf("Failed to create push provider: %v", err)
	}
	notificationSvc := notificationService.NewService(push.NewService(pushProvider, deviceTokenRepo))

	appMetrics := metrics.NewMetrics("worker")

	completion := jobs.NewCompletionHandler(
		meetingRepo,
		transcriptSvc,
		generativeClient,
		archiver,
		notificationSvc,
		appMetrics,
	)

	// 6. Asynq server
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisConfig.Addr(),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       0,
		},
		asynq.Config{
			Concurrency: env.GetInt("WORKER_CONCURRENCY", 5),
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := jobs.NewServeMux(completion)

	go func() {
		log.Println("🚀 worker consuming meetings/processing")
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Worker failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	srv.Shutdown()
	log.Println("worker stopped")
}
