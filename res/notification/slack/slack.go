package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"djhub-api/res/notification"
)

// sink posts settlement events to the ops channel through an incoming webhook
type sink struct {
	webhookURL string
	httpClient *http.Client
	logger     *log.Logger
}

// slackMessage represents the structure of a Slack message
type slackMessage struct {
	Text string `json:"text"`
}

// New creates a Slack notification sink
func New(webhookURL string, timeout time.Duration, logger *log.Logger) notification.Sink {
	return &sink{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (s *sink) Notify(ctx context.Context, userID, eventKind string, payload map[string]interface{}) error {
	// If webhook URL is not configured, skip notification silently
	if s.webhookURL == "" {
		s.logger.Printf("Slack webhook URL not configured, skipping %s notification", eventKind)
		return nil
	}

	return s.sendToSlack(ctx, slackMessage{Text: formatEvent(userID, eventKind, payload)})
}

func formatEvent(userID, eventKind string, payload map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":moneybag: *%s* - User ID: %s", eventKind, userID)

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n*%s:* %v", k, payload[k])
	}
	return b.String()
}

// sendToSlack is a helper method to send messages to Slack
func (s *sink) sendToSlack(ctx context.Context, message slackMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack API returned non-OK status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
