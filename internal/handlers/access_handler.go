package handlers

import (
	"net/http"

	"doable/internal/access"
	"doable/internal/api/middleware"
	"doable/internal/api/validator"
	"doable/internal/utils/logger"

	"github.com/labstack/echo/v4"
)

type AccessHandler struct {
	service *access.Service
	log     *logger.Logger
}

func NewAccessHandler(service *access.Service) *AccessHandler {
	return &AccessHandler{service: service, log: logger.New("AccessHandler")}
}

// Submit files an access request for the signed-in caller.
// @Summary Request access to the list
// @Tags access
// @Accept json
// @Produce json
// @Param request body validator.SubmitAccessRequest true "Reason for access"
// @Success 201 {object} models.AccessRequest
// @Failure 400 {object} map[string]string "Missing reason"
// @Failure 403 {object} map[string]string "Already requested or granted"
// @Router /access-requests [post]
func (h *AccessHandler) Submit(c echo.Context) error {
	var req validator.SubmitAccessRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	request, err := h.service.Submit(c.Request().Context(), middleware.GetActor(c), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, request)
}

// ListPending returns undecided requests for review.
// @Summary List pending access requests
// @Tags access
// @Produce json
// @Success 200 {array} models.AccessRequest
// @Failure 403 {object} map[string]string "Admin only"
// @Router /access-requests [get]
func (h *AccessHandler) ListPending(c echo.Context) error {
	requests, err := h.service.ListPending(c.Request().Context(), middleware.GetActor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, requests)
}

// Approve grants the request and its permission record.
// @Summary Approve an access request
// @Tags access
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.AccessRequest
// @Failure 403 {object} map[string]string "Admin only"
// @Router /access-requests/{id}/approve [post]
func (h *AccessHandler) Approve(c echo.Context) error {
	return h.decide(c, true)
}

// Deny rejects the request and its permission record.
// @Summary Deny an access request
// @Tags access
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.AccessRequest
// @Failure 403 {object} map[string]string "Admin only"
// @Router /access-requests/{id}/deny [post]
func (h *AccessHandler) Deny(c echo.Context) error {
	return h.decide(c, false)
}

func (h *AccessHandler) decide(c echo.Context, approve bool) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing id parameter"})
	}

	request, err := h.service.Decide(c.Request().Context(), middleware.GetActor(c), id, approve)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, request)
}
