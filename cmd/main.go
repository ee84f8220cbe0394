package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doable/docs/swagger"
	"doable/internal/access"
	"doable/internal/api"
	"doable/internal/config"
	"doable/internal/db"
	"doable/internal/items"
	"doable/internal/models"
	"doable/internal/services"
	"doable/internal/store"
	"doable/internal/summary"
	"doable/internal/tasks"
	"doable/internal/utils/logger"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// 🚀 Main function
// @Summary Main function
// @Description Main function
// @title doable API
// @version 1.0
// @description API documentation for the doable shared to-do list
// @host localhost:8080
// @BasePath /api/v1
// @schemes http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {

	logger := logger.New("doable")

	// check if .env file exists
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		logger.Info("No .env file found, skipping environment variable loading")
	} else {
		logger.Info("Loading environment variables from .env file")
		if err := godotenv.Load(); err != nil {
			log.Fatalf("Failed to load environment variables: %v", err)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := db.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		err := db.Close()
		if err != nil {
			log.Fatalf("Failed to close database connection: %v", err)
		}
	}()

	dbInstance := db.GetDB()

	// Redis carries cross-instance change notifications
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	notifier := store.NewNotifier(redisClient)

	notifierCtx, notifierCancel := context.WithCancel(context.Background())
	defer notifierCancel()
	go notifier.Listen(notifierCtx)

	// Data gateways
	users := store.NewGateway(dbInstance, models.User{}, notifier)
	sessions := store.NewGateway(dbInstance, models.AuthTransaction{}, notifier)
	records := store.NewGateway(dbInstance, models.PermissionRecord{}, notifier)
	requests := store.NewGateway(dbInstance, models.AccessRequest{}, notifier)
	itemGateway := store.NewGateway(dbInstance, models.Item{}, notifier)

	engine := access.NewEngine(records, cfg.Admin.Email)
	accessService := access.NewService(requests, records)

	// Initialize S3 service
	s3Service, err := services.NewS3Service(
		cfg.S3.BucketName,
		cfg.S3.Endpoint,
		cfg.S3.Region,
		cfg.S3.AccessKey,
		cfg.S3.SecretKey,
	)
	if err != nil {
		log.Fatalf("Failed to initialize S3 service: %v", err)
	}

	// Register the URL generator
	models.RegisterFileURLGenerator(s3Service)

	// Task client feeds the cleanup queue
	taskClient := tasks.NewTaskClient(
		cfg.Redis.Addr,
		cfg.Redis.Username,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Warn("Failed to close task client: %v", err)
		}
	}()

	// Item store keeps a live snapshot of the list
	itemStore := items.NewStore(itemGateway, s3Service, taskClient)
	if err := itemStore.Subscribe(notifierCtx); err != nil {
		log.Fatalf("Failed to subscribe to item changes: %v", err)
	}
	defer itemStore.Unsubscribe()

	summaryAdapter := summary.NewAdapter(cfg.Summary.RelayURL, cfg.Summary.APIKey)

	// Initialize task handlers
	taskHandler := tasks.NewTaskHandler(s3Service, accessService)

	// Initialize task server
	taskServer := tasks.NewServer(
		cfg.Redis.Addr,
		cfg.Redis.Username,
		cfg.Redis.Password,
		cfg.Redis.DB,
		taskHandler,
		logger,
	)

	// Create a context for task server
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	// Start task server
	go func() {
		if err := taskServer.Start(serverCtx); err != nil {
			logger.Error("Task server error", err)
		}
	}()

	// Initialize task scheduler
	taskScheduler := tasks.NewScheduler(
		cfg.Redis.Addr,
		cfg.Redis.Username,
		cfg.Redis.Password,
		cfg.Redis.DB,
		logger,
	)

	// Start task scheduler
	go func() {
		if err := taskScheduler.Start(); err != nil {
			logger.Error("Task scheduler error", err)
		}
	}()

	// Initialize API server
	apiServer := api.NewServer(cfg, dbInstance, api.Deps{
		Engine:   engine,
		Access:   accessService,
		Items:    itemStore,
		Summary:  summaryAdapter,
		Users:    users,
		Sessions: sessions,
	})
	if apiServer == nil {
		log.Fatalf("Failed to initialize API server")
	}

	go func() {
		logger.Success("API server started")

		// Swagger documentation
		swagger.SwaggerInfo.Title = "doable API Documentation"
		swagger.SwaggerInfo.Description = "API documentation for the doable shared to-do list"
		swagger.SwaggerInfo.Version = "1.0"
		swagger.SwaggerInfo.Host = cfg.Server.PublicURL
		swagger.SwaggerInfo.Schemes = []string{"http", "https"}

		if err := apiServer.Start(); err != nil {
			logger.Error("API server error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the servers
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Create a deadline for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop task scheduler
	taskScheduler.Stop()

	// Stop task server
	serverCancel()
	taskServer.Shutdown()

	// Shutdown API server
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown API server", err)
	}

	logger.Info("Servers shutdown gracefully")
}
