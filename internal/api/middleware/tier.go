package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireApproved gates mutation routes: only the approved and admin tiers
// pass. Pending, denied, new and signed-out all read the same refusal, the
// route never reveals which.
func RequireApproved() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !GetActor(c).CanMutateItems() {
				return echo.NewHTTPError(http.StatusForbidden, "approval required")
			}
			return next(c)
		}
	}
}

// RequireAdmin gates the review workflow.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !GetActor(c).IsAdmin() {
				return echo.NewHTTPError(http.StatusForbidden, "admin access required")
			}
			return next(c)
		}
	}
}
