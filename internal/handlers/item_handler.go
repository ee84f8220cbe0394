package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"doable/internal/api/middleware"
	"doable/internal/api/validator"
	"doable/internal/items"
	"doable/internal/utils/logger"

	"github.com/labstack/echo/v4"
)

type ItemHandler struct {
	store *items.Store
	log   *logger.Logger
}

func NewItemHandler(store *items.Store) *ItemHandler {
	return &ItemHandler{store: store, log: logger.New("ItemHandler")}
}

// List returns the current snapshot, newest first. World-readable: anonymous
// visitors see the list, they just cannot touch it.
// @Summary List items
// @Tags items
// @Produce json
// @Success 200 {array} models.Item
// @Router /items [get]
func (h *ItemHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Snapshot())
}

// Stats returns derived list statistics.
// @Summary List statistics
// @Tags items
// @Produce json
// @Success 200 {object} items.Statistics
// @Router /items/stats [get]
func (h *ItemHandler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Statistics())
}

// Create adds an item. JSON bodies carry text only; multipart bodies may
// attach an image under "image".
// @Summary Add an item
// @Tags items
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} models.Item
// @Failure 400 {object} map[string]string "Empty text or bad image"
// @Failure 403 {object} map[string]string "Approval required"
// @Router /items [post]
func (h *ItemHandler) Create(c echo.Context) error {
	actor := middleware.GetActor(c)

	contentType := c.Request().Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		text := c.FormValue("text")

		var upload *items.ImageUpload
		file, err := c.FormFile("image")
		// No image part at all is fine; a part that will not parse is not.
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Malformed image upload"})
		}
		if err == nil {
			src, err := file.Open()
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to open image"})
			}
			defer src.Close()

			data, err := io.ReadAll(src)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read image"})
			}
			upload = &items.ImageUpload{
				Filename:    file.Filename,
				ContentType: file.Header.Get("Content-Type"),
				Data:        data,
			}
		}

		item, err := h.store.AddItem(c.Request().Context(), actor, text, upload)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, item)
	}

	var req validator.CreateItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	item, err := h.store.AddItem(c.Request().Context(), actor, req.Text, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

// Toggle flips an item's completed flag.
// @Summary Toggle an item
// @Tags items
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param request body validator.ToggleItemRequest true "Currently observed value"
// @Success 204 "No content"
// @Failure 403 {object} map[string]string "Approval required"
// @Router /items/{id}/toggle [patch]
func (h *ItemHandler) Toggle(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing id parameter"})
	}

	var req validator.ToggleItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.store.ToggleItem(c.Request().Context(), middleware.GetActor(c), id, req.Completed); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes an item, owner or admin only.
// @Summary Delete an item
// @Tags items
// @Produce json
// @Param id path string true "Item ID"
// @Success 204 "No content"
// @Failure 403 {object} map[string]string "Not the owner"
// @Router /items/{id} [delete]
func (h *ItemHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing id parameter"})
	}

	if err := h.store.DeleteItem(c.Request().Context(), middleware.GetActor(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearCompleted deletes the caller's completed items (all of them for an
// admin). Best effort, not transactional.
// @Summary Clear completed items
// @Tags items
// @Produce json
// @Success 204 "No content"
// @Router /items/clear-completed [post]
func (h *ItemHandler) ClearCompleted(c echo.Context) error {
	if err := h.store.ClearCompleted(c.Request().Context(), middleware.GetActor(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearAll deletes every caller-visible item.
// @Summary Clear all items
// @Tags items
// @Produce json
// @Success 204 "No content"
// @Router /items/clear-all [post]
func (h *ItemHandler) ClearAll(c echo.Context) error {
	if err := h.store.ClearAll(c.Request().Context(), middleware.GetActor(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
