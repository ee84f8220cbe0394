package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"doable/internal/access"
	"doable/internal/models"
	"doable/internal/store"
	"doable/internal/utils"
	"doable/internal/utils/logger"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

var log = logger.New("auth_middleware")

const actorKey = "actor"

// AuthMiddleware resolves the request's actor. The tier is recomputed from
// the permission record on every request, which is how an admin decision
// reaches the affected user: their next call simply lands in the new tier.
type AuthMiddleware struct {
	engine *access.Engine
	users  *store.Gateway[models.User]
	txs    *store.Gateway[models.AuthTransaction]
}

func NewAuthMiddleware(engine *access.Engine, users *store.Gateway[models.User], txs *store.Gateway[models.AuthTransaction]) *AuthMiddleware {
	return &AuthMiddleware{
		engine: engine,
		users:  users,
		txs:    txs,
	}
}

// Middleware requires a valid bearer token.
func (m *AuthMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}
			return m.withActor(c, token, next)
		}
	}
}

// OptionalMiddleware lets signed-out visitors through as anonymous actors.
// The list is world-readable; a present but invalid token is still rejected.
func (m *AuthMiddleware) OptionalMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				c.Set(actorKey, access.Anonymous())
				return next(c)
			}
			token, err := bearerToken(c)
			if err != nil {
				return err
			}
			return m.withActor(c, token, next)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
	}
	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
	}
	return tokenParts[1], nil
}

func (m *AuthMiddleware) withActor(c echo.Context, tokenString string, next echo.HandlerFunc) error {
	actor, err := m.resolve(c.Request().Context(), tokenString)
	if err != nil {
		return err
	}

	c.Set(actorKey, actor)
	c.Set("userID", actor.ID)
	c.Set("email", actor.Email)

	return next(c)
}

// ResolveActor authenticates a request without touching its context. Callers
// outside the middleware chain, like the admin panel's permission hook, use
// it to find out who is asking.
func (m *AuthMiddleware) ResolveActor(c echo.Context) (access.Actor, error) {
	token, err := bearerToken(c)
	if err != nil {
		return access.Anonymous(), err
	}
	return m.resolve(c.Request().Context(), token)
}

func (m *AuthMiddleware) resolve(ctx context.Context, tokenString string) (access.Actor, error) {
	claims, err := utils.ParseJWT(tokenString)
	if err != nil {
		log.Warn("Rejected token: %v", err)
		return access.Anonymous(), echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	// A signed-out token is one whose transaction is gone.
	if _, err := m.txs.GetBy(ctx, map[string]interface{}{
		"user_id": claims.UserID,
		"token":   tokenString,
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return access.Anonymous(), echo.NewHTTPError(http.StatusUnauthorized, "Session has been signed out")
		}
		return access.Anonymous(), echo.NewHTTPError(http.StatusUnauthorized, "Session lookup failed")
	}

	user, err := m.users.Get(ctx, claims.UserID)
	if err != nil {
		return access.Anonymous(), echo.NewHTTPError(http.StatusUnauthorized, "User not found")
	}

	return m.engine.ActorFor(ctx, user), nil
}

// GetActor returns the request's actor, anonymous when unset.
func GetActor(c echo.Context) access.Actor {
	if actor, ok := c.Get(actorKey).(access.Actor); ok {
		return actor
	}
	return access.Anonymous()
}

// GetUserID Helper to get the caller's id from context
func GetUserID(c echo.Context) string {
	if id, ok := c.Get("userID").(string); ok {
		return id
	}
	return ""
}
