package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-advanced-admin/admin"
	admingorm "github.com/go-advanced-admin/orm-gorm"
	adminecho "github.com/go-advanced-admin/web-echo"
	"golang.org/x/time/rate"

	"doable/internal/access"
	"doable/internal/api/middleware"
	"doable/internal/api/validator"
	"doable/internal/apperr"
	"doable/internal/config"
	"doable/internal/handlers"
	"doable/internal/items"
	"doable/internal/models"
	"doable/internal/store"
	"doable/internal/summary"

	console "doable/internal/utils/logger"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

var log = console.New("API-Server")

// Deps are the wired components the HTTP surface exposes.
type Deps struct {
	Engine   *access.Engine
	Access   *access.Service
	Items    *items.Store
	Summary  *summary.Adapter
	Users    *store.Gateway[models.User]
	Sessions *store.Gateway[models.AuthTransaction]
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	db     *gorm.DB
	deps   Deps
	auth   *middleware.AuthMiddleware
}

// NewServer @title doable API
// @version 1.0
// @description Shared to-do list with admin-gated access
// @host localhost:8080
// @BasePath /api/v1
func NewServer(cfg *config.Config, db *gorm.DB, deps Deps) *Server {
	e := echo.New()

	e.Validator = validator.NewValidator()

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentLength},
	}))
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Secure())
	e.Use(echomiddleware.GzipWithConfig(echomiddleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// SSE must not be buffered by the gzip writer
			return c.Path() == "/api/v1/items/feed"
		},
	}))
	e.Use(echomiddleware.BodyLimit("10M"))
	e.Use(echomiddleware.RateLimiter(echomiddleware.NewRateLimiterMemoryStore(rate.Limit(20))))

	e.HTTPErrorHandler = customHTTPErrorHandler

	s := &Server{
		echo:   e,
		config: cfg,
		db:     db,
		deps:   deps,
		auth:   middleware.NewAuthMiddleware(deps.Engine, deps.Users, deps.Sessions),
	}

	// Admin panel over the review collections. Its models carry the tier
	// decisions, so the panel itself is gated on the admin tier; anyone
	// else gets nothing.
	gormIntegrator := admingorm.NewIntegrator(db)
	echoIntegrator := adminecho.NewIntegrator(e.Group(""))

	permissionChecker := func(
		request admin.PermissionRequest, ctx interface{},
	) (bool, error) {
		c, ok := ctx.(echo.Context)
		if !ok {
			return false, nil
		}
		actor, err := s.auth.ResolveActor(c)
		if err != nil {
			return false, nil
		}
		return actor.IsAdmin(), nil
	}

	adminPanel, err := admin.NewPanel(
		gormIntegrator, echoIntegrator, permissionChecker, nil,
	)
	if err != nil {
		_ = log.Error("Failed to create admin panel", err)
		return nil
	}

	adminApp, err := adminPanel.RegisterApp(
		"Doable",
		"Doable Admin Panel",
		nil,
	)
	if err != nil {
		_ = log.Error("Failed to register admin panel app", err)
		return nil
	}

	for _, model := range []interface{}{
		&models.User{},
		&models.AccessRequest{},
		&models.PermissionRecord{},
		&models.Item{},
	} {
		if _, err := adminApp.RegisterModel(model, nil); err != nil {
			_ = log.Error("Failed to register admin panel model", err)
			return nil
		}
	}

	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Health check endpoint
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) buildHandlers() (*handlers.AuthHandler, *handlers.AccessHandler, *handlers.ItemHandler, *handlers.FeedHandler, *handlers.SummaryHandler, *middleware.AuthMiddleware) {
	return handlers.NewAuthHandler(s.db, s.deps.Engine),
		handlers.NewAccessHandler(s.deps.Access),
		handlers.NewItemHandler(s.deps.Items),
		handlers.NewFeedHandler(s.deps.Items),
		handlers.NewSummaryHandler(s.deps.Summary, s.deps.Items),
		s.auth
}

// Custom HTTP error handler: translates the error taxonomy into statuses.
// Capability 403, validation 400, backend 502, relay-unreachable 503 and
// upstream failures keep the upstream's own status.
func customHTTPErrorHandler(err error, c echo.Context) {
	var (
		code    = http.StatusInternalServerError
		message interface{}
	)

	switch e := err.(type) {
	case *echo.HTTPError:
		code = e.Code
		message = e.Message
	case validator.ValidationErrors:
		code = http.StatusBadRequest
		message = formatValidationErrors(e)
	case *apperr.Error:
		switch e.Kind {
		case apperr.KindCapability:
			code = http.StatusForbidden
		case apperr.KindValidation:
			code = http.StatusBadRequest
		case apperr.KindBackend:
			code = http.StatusBadGateway
		case apperr.KindConnectivity:
			code = http.StatusServiceUnavailable
		case apperr.KindUpstream:
			code = http.StatusBadGateway
			if e.Status != 0 {
				code = e.Status
			}
		}
		message = e.Message
	default:
		message = http.StatusText(code)
	}

	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]interface{}{
				"error": message,
				"code":  code,
				"time":  time.Now().Format(time.RFC3339),
			})
		}
		if err != nil {
			c.Echo().Logger.Error(err)
		}
	}
}

// formatValidationErrors formats validation errors into a map
func formatValidationErrors(errors validator.ValidationErrors) map[string]string {
	errMap := make(map[string]string)
	for _, err := range errors {
		field := err.Field()
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			errMap[field] = fmt.Sprintf("%s is required", field)
		case "notblank":
			errMap[field] = fmt.Sprintf("%s must not be blank", field)
		case "email":
			errMap[field] = fmt.Sprintf("%s must be a valid email", field)
		case "min":
			errMap[field] = fmt.Sprintf("%s must be at least %s", field, param)
		case "max":
			errMap[field] = fmt.Sprintf("%s must be at most %s", field, param)
		case "uuid":
			errMap[field] = fmt.Sprintf("%s must be a valid UUID", field)
		case "request_status":
			errMap[field] = fmt.Sprintf("%s must be one of: pending, approved, denied", field)
		default:
			errMap[field] = fmt.Sprintf("%s failed validation: %s", field, tag)
		}
	}
	return errMap
}
