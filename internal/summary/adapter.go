// Package summary turns the current list into a prompt and relays it to the
// text-generation API. The relay, not this process's callers, holds the
// upstream secret.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"doable/internal/access"
	"doable/internal/apperr"
	"doable/internal/models"
	"doable/internal/utils/logger"
)

// RelayRequest is the wire contract with the relay.
type RelayRequest struct {
	SecretKey  string `json:"secretKey"`
	PromptText string `json:"promptText"`
}

// relayResponse is the upstream messages-API shape the adapter reads back:
// content blocks, the first text block carries the generated summary.
type relayResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type Adapter struct {
	relayURL  string
	secretKey string
	client    *http.Client
	log       *logger.Logger
}

func NewAdapter(relayURL, secretKey string) *Adapter {
	return &Adapter{
		relayURL:  relayURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 60 * time.Second},
		log:       logger.New("SummaryAdapter"),
	}
}

// BuildPrompt renders the item set as plain text, newest first, the way the
// feed orders it.
func BuildPrompt(items []models.Item) string {
	var b strings.Builder
	for _, item := range items {
		mark := " "
		if item.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %s", mark, item.Text)
		if item.CreatedByName != "" {
			fmt.Fprintf(&b, " (added by %s)", item.CreatedByName)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Summarize relays the current list through the local relay and returns the
// generated text. Approved tier required.
func (a *Adapter) Summarize(ctx context.Context, actor access.Actor, items []models.Item) (string, error) {
	if !actor.CanAccessSummary() {
		return "", apperr.Capability("only approved users can request a summary")
	}
	if len(items) == 0 {
		return "", apperr.Validation("nothing to summarize, the list is empty")
	}

	payload, err := json.Marshal(RelayRequest{
		SecretKey:  a.secretKey,
		PromptText: BuildPrompt(items),
	})
	if err != nil {
		return "", apperr.Backend("failed to encode summary request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.relayURL, bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Backend("failed to build summary request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", apperr.Connectivity("summary relay unreachable, check that the relay is running", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Connectivity("summary relay connection dropped", err)
	}

	var parsed relayResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return "", apperr.Upstream(resp.StatusCode, fmt.Sprintf("summarization failed with status %d", resp.StatusCode))
		}
		return "", apperr.Upstream(resp.StatusCode, "summarization returned a malformed response")
	}

	if resp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("summarization failed with status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return "", apperr.Upstream(resp.StatusCode, message)
	}

	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", apperr.Upstream(resp.StatusCode, "summarization returned no text content")
}
