package routes

import (
	"doable/internal/api/middleware"
	"doable/internal/handlers"

	"github.com/labstack/echo/v4"
)

func SetupItemRoutes(base *echo.Group, itemHandler *handlers.ItemHandler, feedHandler *handlers.FeedHandler, auth *middleware.AuthMiddleware) {
	itemGroup := base.Group("/items")

	// Reads are world-visible; a token, when present, is still validated so
	// the feed can report the caller's own items correctly.
	itemGroup.Use(auth.OptionalMiddleware())
	itemGroup.GET("", itemHandler.List)
	itemGroup.GET("/stats", itemHandler.Stats)
	itemGroup.GET("/feed", feedHandler.Stream)

	// Mutations require the approved tier; ownership checks on delete happen
	// in the store where the item is at hand.
	writeGroup := itemGroup.Group("")
	writeGroup.Use(middleware.RequireApproved())
	writeGroup.POST("", itemHandler.Create)
	writeGroup.PATCH("/:id/toggle", itemHandler.Toggle)
	writeGroup.DELETE("/:id", itemHandler.Delete)
	writeGroup.POST("/clear-completed", itemHandler.ClearCompleted)
	writeGroup.POST("/clear-all", itemHandler.ClearAll)
}
