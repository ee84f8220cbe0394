package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"doable/internal/events"
	"doable/internal/items"
	"doable/internal/models"

	"github.com/labstack/echo/v4"
)

func TestStreamDeliversSnapshots(t *testing.T) {
	h, _ := newTestHandler(t)
	feed := NewFeedHandler(h.store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/items/feed", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- feed.Stream(c) }()

	// Give the handler time to register and write the initial snapshot,
	// then push one through the bus.
	time.Sleep(50 * time.Millisecond)
	events.Emit(items.SnapshotEvent, []models.Item{{Text: "buy milk"}})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop on context cancel")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: snapshot") {
		t.Fatalf("no snapshot event in stream: %q", body)
	}
	if !strings.Contains(body, "buy milk") {
		t.Fatalf("pushed snapshot missing from stream: %q", body)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
}
