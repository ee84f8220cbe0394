package api

import (
	"doable/internal/relay"
	"doable/internal/routes"

	echoSwagger "github.com/swaggo/echo-swagger"

	_ "doable/docs/swagger"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// The relay also runs standalone (cmd/relay); mounting it here lets a
	// single-process deployment skip the second listener.
	relay.NewHandler(s.config.Summary.Upstream, s.config.Summary.Model, s.config.Summary.APIKey).Register(s.echo)

	authHandler, accessHandler, itemHandler, feedHandler, summaryHandler, auth := s.buildHandlers()

	v1 := s.echo.Group("/api/v1")
	routes.SetupAuthRoutes(v1, authHandler, auth)
	routes.SetupItemRoutes(v1, itemHandler, feedHandler, auth)
	routes.SetupAccessRoutes(v1, accessHandler, auth)
	routes.SetupSummaryRoutes(v1, summaryHandler, auth)
}
