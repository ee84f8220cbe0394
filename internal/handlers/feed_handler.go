package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"doable/internal/events"
	"doable/internal/items"
	"doable/internal/models"
	"doable/internal/utils/logger"

	"github.com/labstack/echo/v4"
)

// FeedHandler streams full item snapshots over Server-Sent Events. Each
// event replaces the client's entire list; there is no incremental patching
// on this channel.
type FeedHandler struct {
	store *items.Store
	log   *logger.Logger
}

func NewFeedHandler(store *items.Store) *FeedHandler {
	return &FeedHandler{store: store, log: logger.New("FeedHandler")}
}

// Stream serves one SSE connection until the client goes away.
// @Summary Live item feed
// @Tags items
// @Produce text/event-stream
// @Success 200 {string} string "snapshot events"
// @Router /items/feed [get]
func (h *FeedHandler) Stream(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshots := make(chan []models.Item, 1)
	cancel := events.OnWithCancel(items.SnapshotEvent, func(data interface{}) {
		snapshot, ok := data.([]models.Item)
		if !ok {
			return
		}
		// Coalesce: a slow client gets the latest snapshot, not a backlog.
		select {
		case snapshots <- snapshot:
		default:
			select {
			case <-snapshots:
			default:
			}
			select {
			case snapshots <- snapshot:
			default:
			}
		}
	})
	defer cancel()

	if err := writeSnapshot(w, h.store.Snapshot()); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot := <-snapshots:
			if err := writeSnapshot(w, snapshot); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeSnapshot(w *echo.Response, snapshot []models.Item) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}
