package routes

import (
	"doable/internal/api/middleware"
	"doable/internal/handlers"

	"github.com/labstack/echo/v4"
)

func SetupAccessRoutes(base *echo.Group, accessHandler *handlers.AccessHandler, auth *middleware.AuthMiddleware) {
	group := base.Group("/access-requests")
	group.Use(auth.Middleware())

	// Any signed-in user may file; the service rejects everything but the
	// "new" tier.
	group.POST("", accessHandler.Submit)

	adminGroup := group.Group("")
	adminGroup.Use(middleware.RequireAdmin())
	adminGroup.GET("", accessHandler.ListPending)
	adminGroup.POST("/:id/approve", accessHandler.Approve)
	adminGroup.POST("/:id/deny", accessHandler.Deny)
}
