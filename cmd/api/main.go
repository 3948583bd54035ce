package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/deeplink-chat/deeplink-go-api/internal/config"
	"github.com/deeplink-chat/deeplink-go-api/internal/database"
	"github.com/deeplink-chat/deeplink-go-api/internal/handler"
	"github.com/deeplink-chat/deeplink-go-api/internal/middleware"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/repository"
	"github.com/deeplink-chat/deeplink-go-api/internal/router"
	"github.com/deeplink-chat/deeplink-go-api/internal/service"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
	"github.com/deeplink-chat/deeplink-go-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Channel{}, &models.Message{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, relay and event cache disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, cross-node relay disabled")
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}

	entityStore := store.New(store.Persistence{
		Users:    repository.NewUserRepository(db),
		Channels: repository.NewChannelRepository(db),
		Messages: repository.NewMessageRepository(db),
	}, logger)
	if err := entityStore.Load(ctx); err != nil {
		log.Fatalf("failed to load persisted state: %v", err)
	}
	seedDefaultChannels(ctx, entityStore, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	identityService := service.NewIdentityService(entityStore, validate, cfg.JWTSecret, logger)
	messageService := service.NewMessageService(entityStore, validate, cfg.GeneralChannel, logger)
	channelService := service.NewChannelService(entityStore, messageService, validate, cfg.GeneralChannel, logger)

	registry := realtime.NewRegistry(logger)
	dispatcher := realtime.NewDispatcher(registry, entityStore, entityStore, redisClient, natsConn, cfg.EventChannel, logger)
	dispatcher.Start(ctx)

	responder := service.NewResponder(messageService, dispatcher, entityStore, buildReplier(cfg, logger), cfg.ResponderDelay, logger)
	responder.Start(ctx)
	messageService.SetReplyScheduler(responder)

	authHandler := handler.NewAuthHandler(identityService, logger)
	channelHandler := handler.NewChannelHandler(channelService, dispatcher, logger)
	messageHandler := handler.NewMessageHandler(messageService, responder, dispatcher, cfg.HistoryLimit, logger)
	wsHandler := handler.NewWSHandler(identityService, dispatcher, entityStore, cfg.GeneralChannel, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:    authHandler,
		ChannelHandler: channelHandler,
		MessageHandler: messageHandler,
		WSHandler:      wsHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}

func connectDatabase(cfg config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL != "" {
		return database.ConnectPostgres(cfg.DatabaseURL)
	}
	return database.ConnectSQLite(cfg.SQLitePath)
}

func buildReplier(cfg config.Config, logger zerolog.Logger) ai.Replier {
	if cfg.AIProvider != "openai" || cfg.OpenAIAPIKey == "" {
		return nil
	}

	replier, err := ai.NewOpenAIReplier(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("openai replier unavailable, falling back to canned replies")
		return nil
	}
	return replier
}

func seedDefaultChannels(ctx context.Context, entityStore *store.Store, logger zerolog.Logger) {
	defaults := []models.Channel{
		{ID: "general", Name: "general", Kind: models.ChannelKindChat},
		{ID: "tasks", Name: "tasks", Kind: models.ChannelKindKanban},
		{ID: "media", Name: "media", Kind: models.ChannelKindMedia},
	}

	members := make([]string, 0)
	for _, user := range entityStore.ListUsers() {
		members = append(members, user.ID)
	}

	for _, channel := range defaults {
		if _, err := entityStore.GetChannel(channel.ID); err == nil {
			continue
		}
		channel.Members = datatypes.JSONSlice[string](members)
		if _, err := entityStore.CreateChannel(ctx, channel); err != nil && !errors.Is(err, store.ErrConflict) {
			logger.Warn().Err(err).Str("channel_id", channel.ID).Msg("failed to seed channel")
			continue
		}
		logger.Info().Str("channel_id", channel.ID).Msg("seeded default channel")
	}
}
