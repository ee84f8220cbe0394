// Package relay is the local intermediary between browsers and the
// text-generation API. Its only job is attaching the secret as a header the
// browser must never hold; request and response bodies otherwise pass
// through verbatim, including upstream error statuses.
package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"doable/internal/utils/logger"

	"github.com/labstack/echo/v4"
)

const anthropicVersion = "2023-06-01"

const promptPreamble = "Please provide a helpful summary and analysis of this todo list. " +
	"Include insights about productivity patterns, priorities, and any recommendations:\n\n"

type Request struct {
	SecretKey  string `json:"secretKey"`
	PromptText string `json:"promptText"`
}

type upstreamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type upstreamRequest struct {
	Model     string            `json:"model"`
	MaxTokens int               `json:"max_tokens"`
	Messages  []upstreamMessage `json:"messages"`
}

type Handler struct {
	upstream  string
	model     string
	secretKey string
	client    *http.Client
	log       *logger.Logger
}

// NewHandler builds the relay. secretKey is the server-held fallback; a key
// supplied in the request body takes precedence so a user-scoped key still
// works the way the original browser flow did.
func NewHandler(upstream, model, secretKey string) *Handler {
	return &Handler{
		upstream:  upstream,
		model:     model,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 120 * time.Second},
		log:       logger.New("Relay"),
	}
}

// Register mounts the relay route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/api/claude", h.Forward)
}

// Forward attaches the secret and proxies one summarization call.
func (h *Handler) Forward(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": map[string]string{"message": "invalid JSON body"},
		})
	}

	secret := req.SecretKey
	if secret == "" {
		secret = h.secretKey
	}
	if secret == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": map[string]string{"message": "API key is required"},
		})
	}

	payload, err := json.Marshal(upstreamRequest{
		Model:     h.model,
		MaxTokens: 500,
		Messages: []upstreamMessage{{
			Role:    "user",
			Content: promptPreamble + req.PromptText,
		}},
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": map[string]string{"message": err.Error()},
		})
	}

	upReq, err := http.NewRequestWithContext(c.Request().Context(), http.MethodPost, h.upstream, bytes.NewReader(payload))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": map[string]string{"message": err.Error()},
		})
	}
	upReq.Header.Set("Content-Type", "application/json")
	upReq.Header.Set("x-api-key", secret)
	upReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := h.client.Do(upReq)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error": map[string]string{"message": fmt.Sprintf("upstream unreachable: %v", err)},
		})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error": map[string]string{"message": fmt.Sprintf("upstream read failed: %v", err)},
		})
	}

	if resp.StatusCode != http.StatusOK {
		h.log.Warn("Upstream returned status %d", resp.StatusCode)
	}

	// Pass the upstream body and status through untouched.
	return c.JSONBlob(resp.StatusCode, body)
}
