package handlers

import (
	"net/http"

	"doable/internal/api/middleware"
	"doable/internal/items"
	"doable/internal/summary"
	"doable/internal/utils/logger"

	"github.com/labstack/echo/v4"
)

type SummaryHandler struct {
	adapter *summary.Adapter
	store   *items.Store
	log     *logger.Logger
}

func NewSummaryHandler(adapter *summary.Adapter, store *items.Store) *SummaryHandler {
	return &SummaryHandler{adapter: adapter, store: store, log: logger.New("SummaryHandler")}
}

// Summarize relays the current list through the summary relay and returns
// the generated text.
// @Summary Summarize the list
// @Tags summary
// @Produce json
// @Success 200 {object} map[string]string "Generated summary"
// @Failure 403 {object} map[string]string "Approval required"
// @Failure 502 {object} map[string]string "Upstream failure"
// @Failure 503 {object} map[string]string "Relay unreachable"
// @Router /summary [post]
func (h *SummaryHandler) Summarize(c echo.Context) error {
	text, err := h.adapter.Summarize(c.Request().Context(), middleware.GetActor(c), h.store.Snapshot())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"summary": text})
}
