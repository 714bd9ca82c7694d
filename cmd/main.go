package main

import (
	"context"
	"fmt"
	"log"
	"memory-service/internal/config"
	"memory-service/internal/database/mongo"
	"memory-service/internal/database/redis"
	"memory-service/internal/event"
	"memory-service/internal/handlers"
	"memory-service/internal/repository"
	"memory-service/internal/service"
	"memory-service/pkg/discovery"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/var", "log", "memory_service")
	err := os.MkdirAll(logDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.ServiceConfig

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"*"},
	}))

	app.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("Memory Service is healthy")
	})

	// Initialize repositories
	memoryRepo := repository.NewMemoryRepository(mongo.Mongo_Database)
	trustConfigRepo := repository.NewTrustConfigRepository(mongo.Mongo_Database)
	escalationRepo := repository.NewEscalationRepository(mongo.Mongo_Database)
	publicationRepo := repository.NewPublicationRepository(mongo.Mongo_Database)
	spaceRepo := repository.NewSpaceRepository(mongo.Mongo_Database)
	membershipRepo := repository.NewMembershipRepository(mongo.Mongo_Database)

	// Create database indexes
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	indexed := []interface {
		CreateIndexes(ctx context.Context) error
	}{memoryRepo, trustConfigRepo, escalationRepo, publicationRepo, spaceRepo, membershipRepo}
	for _, repo := range indexed {
		if err := repo.CreateIndexes(ctx); err != nil {
			log.Printf("Warning: Failed to create database indexes: %v", err)
		}
	}
	cancel()
	log.Println("Database indexes created")

	var tokenStore repository.TokenStore
	if redis.Redis_Client != nil {
		tokenStore = repository.NewRedisTokenStore(redis.Redis_Client)
	} else {
		log.Println("Warning: Using in-memory confirmation token store")
		tokenStore = repository.NewInMemoryTokenStore()
	}

	eventPublisher, err := event.NewEventPublisher(cfg.RabbitMQ.URI, cfg.RabbitMQ.Exchange)
	if err != nil {
		log.Printf("Warning: Failed to initialize event publisher: %v", err)
	}

	eventConsumer, err := event.NewEventConsumer(cfg.RabbitMQ.URI, cfg.RabbitMQ.QueueName, trustConfigRepo, memoryRepo, publicationRepo, spaceRepo)
	if err != nil {
		log.Printf("Warning: Failed to initialize event consumer: %v", err)
	} else {
		if err := eventConsumer.Start(); err != nil {
			log.Printf("Warning: Failed to start event consumer: %v", err)
			eventConsumer.Close()
		} else {
			log.Println("Successfully started event consumer")
			defer eventConsumer.Close()
		}
	}

	// Initialize services
	escalationService := service.NewEscalationService(escalationRepo, eventPublisher)
	accessService := service.NewAccessControlService(trustConfigRepo, memoryRepo, escalationService)
	confirmationService := service.NewConfirmationTokenService(tokenStore, cfg.Trust.ConfirmationTokenTTL)
	publicationService := service.NewPublicationService(memoryRepo, publicationRepo, spaceRepo, membershipRepo, confirmationService, accessService, eventPublisher)
	memoryService := service.NewMemoryService(memoryRepo, trustConfigRepo, accessService, cfg.Trust.SearchCandidateLimit)
	trustService := service.NewTrustService(trustConfigRepo, escalationService)

	// Initialize and register handlers
	handlers.NewMemoryHandler(memoryService).RegisterRoutes(app)
	handlers.NewTrustHandler(trustService).RegisterRoutes(app)
	handlers.NewPublicationHandler(publicationService).RegisterRoutes(app)

	shutdownChan := make(chan os.Signal, 1)
	doneChan := make(chan bool, 1)

	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := app.Listen(fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
		doneChan <- true
	}()

	<-shutdownChan
	log.Println("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if eventPublisher != nil {
		if err := eventPublisher.Close(); err != nil {
			log.Printf("Error closing event publisher: %v", err)
		}
	}

	mongo.DisconnectMongo()
	redis.DisconnectRedis()

	if discovery.ServiceDiscovery != nil {
		if err := discovery.ServiceDiscovery.Deregister(); err != nil {
			log.Printf("Error deregistering from service discovery: %v", err)
		}
	}

	<-doneChan
	log.Println("Server shutdown complete")
}
