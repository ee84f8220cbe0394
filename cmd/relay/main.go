package main

import (
	"log"
	"net/http"
	"os"

	"doable/internal/config"
	"doable/internal/relay"
	"doable/internal/utils/logger"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Standalone summarization relay. Runs beside the API server so browsers can
// reach the text-generation API without ever holding the secret key.
func main() {
	logger := logger.New("relay")

	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		logger.Info("No .env file found, skipping environment variable loading")
	} else {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("Failed to load environment variables: %v", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(middleware.BodyLimit("1M"))

	handler := relay.NewHandler(cfg.Summary.Upstream, cfg.Summary.Model, cfg.Summary.APIKey)
	handler.Register(e)

	addr := os.Getenv("RELAY_ADDR")
	if addr == "" {
		addr = ":3001"
	}

	logger.Success("Summarization relay listening on %s", addr)
	if err := e.Start(addr); err != nil {
		log.Fatalf("Relay server error: %v", err)
	}
}
