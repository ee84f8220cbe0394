package routes

import (
	"doable/internal/api/middleware"
	"doable/internal/handlers"

	"github.com/labstack/echo/v4"
)

func SetupAuthRoutes(base *echo.Group, authHandler *handlers.AuthHandler, auth *middleware.AuthMiddleware) {
	// Public: the Google callback is how a session starts
	authGroup := base.Group("/auth")
	authGroup.GET("/google/callback", authHandler.GoogleAuthCallback)
	authGroup.POST("/refresh", authHandler.RefreshToken)

	protectedAuth := authGroup.Group("")
	protectedAuth.Use(auth.Middleware())
	protectedAuth.POST("/signout", authHandler.SignOut)

	users := base.Group("/users")
	users.Use(auth.Middleware())
	users.GET("/me", authHandler.GetMe)
}
