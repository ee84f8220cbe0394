package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"doable/internal/access"
	"doable/internal/models"
	"doable/internal/utils"
	"doable/internal/utils/logger"

	"github.com/labstack/echo/v4"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuthHandler struct {
	db     *gorm.DB
	engine *access.Engine
	log    *logger.Logger
}

func NewAuthHandler(db *gorm.DB, engine *access.Engine) *AuthHandler {
	return &AuthHandler{db: db, engine: engine, log: logger.New("AuthHandler")}
}

// GoogleAuthCallback exchanges a Google access token for a session. The
// identity record is upserted on every sign-in so name and picture stay
// fresh; the tier is computed from the permission record, never stored in
// the token.
// @Summary Sign in with Google
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Session tokens and tier"
// @Failure 401 {object} map[string]string "Google rejected the token"
// @Router /auth/google/callback [get]
func (h *AuthHandler) GoogleAuthCallback(c echo.Context) error {
	accessToken := c.Request().Header.Get("Authorization")
	if accessToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No access token provided"})
	}
	accessToken = strings.TrimPrefix(accessToken, "Bearer ")

	userDataBytes, err := utils.GetUserDataFromGoogle(accessToken)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Failed to get user data from Google"})
	}

	var userData map[string]interface{}
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to parse user data from Google"})
	}

	email, _ := userData["email"].(string)
	providerID, _ := userData["id"].(string)
	if email == "" || providerID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Google returned an incomplete profile"})
	}

	var user models.User
	err = h.db.Where("email = ? OR (provider = ? AND provider_id = ?)",
		email, "google", providerID).First(&user).Error

	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to look up user"})
		}
		user = models.User{
			Email:    email,
			Provider: "google",
		}
	}

	user.ProviderID = providerID
	if name, ok := userData["name"].(string); ok && name != "" {
		user.DisplayName = name
	}
	if picture, ok := userData["picture"].(string); ok {
		user.PictureURL = picture
	}
	user.ProviderData = datatypes.JSON(userDataBytes)

	if err := h.db.Save(&user).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save user"})
	}

	token, err := utils.GenerateJWT(user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}
	refreshToken, err := utils.GenerateRefreshToken(user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}

	authTransaction := &models.AuthTransaction{
		UserID:    user.ID,
		Token:     token,
		Refresh:   refreshToken,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	if err := h.db.Create(authTransaction).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create auth transaction"})
	}

	actor := h.engine.ActorFor(c.Request().Context(), &user)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":         token,
		"refresh_token": refreshToken,
		"user":          user,
		"tier":          actor.Tier,
	})
}

// GetMe returns the caller's identity and current tier, the client's way of
// refreshing its permission state after an admin decision.
// @Summary Current user
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /users/me [get]
func (h *AuthHandler) GetMe(c echo.Context) error {
	userID, _ := c.Get("userID").(string)
	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "User not found"})
	}

	actor := h.engine.ActorFor(c.Request().Context(), &user)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user": user,
		"tier": actor.Tier,
		"capabilities": map[string]bool{
			"isAdmin":          actor.IsAdmin(),
			"isApproved":       actor.IsApproved(),
			"canMutateItems":   actor.CanMutateItems(),
			"canAccessSummary": actor.CanAccessSummary(),
		},
	})
}

// SignOut revokes every session of the caller.
// @Summary Sign out
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/signout [post]
func (h *AuthHandler) SignOut(c echo.Context) error {
	userID, _ := c.Get("userID").(string)
	if err := h.db.Where("user_id = ?", userID).Delete(&models.AuthTransaction{}).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to sign out"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Signed out"})
}

// RefreshToken exchanges a refresh token for a new session pair.
// @Summary Refresh session
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string "Invalid refresh token"
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req struct {
		Refresh string `json:"refresh_token" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	claims, err := utils.ParseRefreshToken(req.Refresh)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
	}

	var transaction models.AuthTransaction
	if err := h.db.Where("user_id = ? AND refresh = ?", claims.UserID, req.Refresh).First(&transaction).Error; err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Refresh token not recognized"})
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "User not found"})
	}

	token, err := utils.GenerateJWT(user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}
	refreshToken, err := utils.GenerateRefreshToken(user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}

	if err := h.db.Model(&transaction).Updates(map[string]interface{}{
		"token":   token,
		"refresh": refreshToken,
	}).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to rotate session"})
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token, "refresh_token": refreshToken})
}
