package routes

import (
	"doable/internal/api/middleware"
	"doable/internal/handlers"

	"github.com/labstack/echo/v4"
)

func SetupSummaryRoutes(base *echo.Group, summaryHandler *handlers.SummaryHandler, auth *middleware.AuthMiddleware) {
	group := base.Group("/summary")
	group.Use(auth.Middleware())
	group.Use(middleware.RequireApproved())
	group.POST("", summaryHandler.Summarize)
}
