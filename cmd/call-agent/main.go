package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"meetassist-backend/internal/callsession"
	"meetassist-backend/internal/provider/callprovider"
	"meetassist-backend/internal/provider/chatprovider"
	"meetassist-backend/internal/provider/generative"
	"meetassist-backend/internal/provider/speechgateway"
	cassandraRepo "meetassist-backend/internal/repository/cassandra"
	postgresRepo "meetassist-backend/internal/repository/postgres"
	aiService "meetassist-backend/internal/service/ai"
	"meetassist-backend/pkg/avatar"
	"meetassist-backend/pkg/database"
	"meetassist-backend/pkg/env"
	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/metrics"
)

// call-agent joins one provider call as the meeting's AI agent and runs the
// listen/answer/speak loop until the call ends or the process is stopped.
func main() {
	logger.InitDefault()
	defer logger.Sync()

	meetingID, err := uuid.Parse(env.MustGetString("MEETING_ID"))
	if err != nil {
		log.Fatalf("MEETING_ID must be a uuid: %v", err)
	}

	ctx := context.Background()

	// 1. Providers
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

	generativeClient, err := generative.NewClient(ctx,
		env.GetStringFromFile("GEMINI_API_KEY", ""),
		env.GetString("GEMINI_MODEL", ""))
	if err != nil {
		log.Fatalf("Failed to create generative client: %v", err)
	}

	gateway := speechgateway.NewClient(speechgateway.Config{
		BaseURL: env.MustGetString("SPEECH_GATEWAY_URL"),
		APIKey:  env.GetStringFromFile("SPEECH_GATEWAY_API_KEY", ""),
	})

	// 2. Stores
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

	meetingRepo := postgresRepo.NewMeetingRepository(postgresDB.Pool)
	agentRepo := postgresRepo.NewAgentRepository(postgresDB.Pool)
	chatHistoryRepo := cassandraRepo.NewChatMessageRepository(cassandraDB.Session)

	// 3. Resolve the meeting and its agent identity
	meeting, err := meetingRepo.GetByID(ctx, meetingID)
	if err != nil {
		log.Fatalf("Failed to load meeting %s: %v", meetingID, err)
	}

	agent, err := agentRepo.GetByID(ctx, meeting.AgentID)
	if err != nil {
		log.Fatalf("Failed to load agent %s: %v", meeting.AgentID, err)
	}

	if err := callClient.UpsertUser(ctx, callprovider.User{
		ID:    agent.AgentID.String(),
		Name:  agent.Name,
		Image: avatar.URI(agent.Name, avatar.VariantBotttsNeutral),
	}); err != nil {
		log.Fatalf("Failed to upsert agent call identity: %v", err)
	}

	token, err := callClient.GenerateUserToken(agent.AgentID.String(), 4*time.Hour)
	if err != nil {
		log.Fatalf("Failed to issue agent call token: %v", err)
	}

	// 4. Session controller
	aiSvc := aiService.NewService(meetingRepo, agentRepo, chatHistoryRepo,
		generativeClient, chatClient)

	appMetrics := metrics.NewMetrics("call-agent")

	controller := callsession.NewController(
		meetingID,
		meeting.Name,
		token,
		callsession.NewWebsocketTransport(
			env.GetString("CALL_PROVIDER_WS_URL", "wss://video.stream-io-api.com/ws"),
			env.MustGetString("CALL_PROVIDER_API_KEY")),
		gateway.Capture(meetingID),
		gateway.Synthesizer(meetingID),
		callsession.NewServiceAnswerer(aiSvc),
		appMetrics,
	)

	if err := controller.Join(ctx); err != nil {
		log.Fatalf("Failed to join call: %v", err)
	}
	log.Printf("🚀 agent %q joined call %s", agent.Name, meetingID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Leaving call...")
	if err := controller.Leave(); err != nil {
		log.Printf("Leave failed: %v", err)
	}
	log.Printf("call session lasted %s", controller.Duration())
}
