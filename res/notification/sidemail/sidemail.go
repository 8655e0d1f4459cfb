package sidemail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	netmail "net/mail"
	"strings"
	"time"

	"djhub-api/res/notification"
	"djhub-api/res/store"
)

// UserDirectory resolves the email address of a user
type UserDirectory interface {
	Get(ctx context.Context, id string) (*store.User, error)
}

// sink sends transactional emails through Sidemail, one template per event kind
type sink struct {
	apiKey      string
	apiBaseURL  string
	fromAddress string
	fromName    string
	users       UserDirectory
	logger      *log.Logger
	httpClient  *http.Client
}

// SidemailResponse represents a generic response from Sidemail API
type SidemailResponse struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// SidemailEmailPayload is the body of POST /email/send
type SidemailEmailPayload struct {
	ToAddress     string                 `json:"toAddress"`
	FromAddress   string                 `json:"fromAddress"`
	FromName      string                 `json:"fromName,omitempty"`
	TemplateName  string                 `json:"templateName"`
	TemplateProps map[string]interface{} `json:"templateProps,omitempty"`
}

// New creates a Sidemail notification sink
func New(apiKey, apiURL, fromAddress, fromName string, users UserDirectory, timeout time.Duration, logger *log.Logger) notification.Sink {
	return &sink{
		apiKey:      apiKey,
		apiBaseURL:  apiURL,
		fromAddress: fromAddress,
		fromName:    fromName,
		users:       users,
		logger:      logger,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Notify emails the user the template named after the event kind.
// If no API key is configured, this method returns nil (graceful degradation).
func (s *sink) Notify(ctx context.Context, userID, eventKind string, payload map[string]interface{}) error {
	if s.apiKey == "" {
		s.logger.Printf("Sidemail API key not configured, skipping %s email", eventKind)
		return nil
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", userID, err)
	}
	if err := s.validateEmail(user.Email); err != nil {
		return fmt.Errorf("%s email failed: %w", eventKind, err)
	}

	props := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		props[k] = v
	}
	props["name"] = s.sanitizeInput(user.DisplayName)

	jsonData, err := json.Marshal(SidemailEmailPayload{
		ToAddress:     s.sanitizeInput(user.Email),
		FromAddress:   s.fromAddress,
		FromName:      s.fromName,
		TemplateName:  eventKind,
		TemplateProps: props,
	})
	if err != nil {
		return fmt.Errorf("error marshaling email data: %w", err)
	}

	url := fmt.Sprintf("%s/email/send", s.apiBaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	return s.handleSidemailResponse(resp, fmt.Sprintf("%s email for %s", eventKind, userID))
}

// validateEmail validates an email address format using Go's built-in mail parser.
func (s *sink) validateEmail(email string) error {
	_, err := netmail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	return nil
}

// sanitizeInput removes control characters, null bytes and surrounding whitespace
func (s *sink) sanitizeInput(input string) string {
	cleaned := strings.ReplaceAll(input, "\x00", "")
	cleaned = strings.ReplaceAll(cleaned, "\r", "")
	cleaned = strings.ReplaceAll(cleaned, "\n", "")
	return strings.TrimSpace(cleaned)
}

// sanitizeResponseBody sanitizes response body for safe inclusion in error messages
func (s *sink) sanitizeResponseBody(body string) string {
	const maxLength = 200
	sanitized := s.sanitizeInput(body)

	if len(sanitized) > maxLength {
		return sanitized[:maxLength] + "..."
	}
	return sanitized
}

func (s *sink) handleSidemailResponse(resp *http.Response, operation string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	s.logger.Printf("[SIDEMAIL_EMAIL_RESPONSE] status=%d operation=%s body_length=%d", resp.StatusCode, operation, len(body))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("sidemail email API returned status %d: %s", resp.StatusCode, s.sanitizeResponseBody(string(body)))
	}

	var response SidemailResponse
	if err := json.Unmarshal(body, &response); err != nil {
		s.logger.Printf("Warning: Could not parse Sidemail email response: %v", err)
		return nil
	}
	if response.Error != "" {
		return fmt.Errorf("sidemail email API error: %s", s.sanitizeResponseBody(response.Error))
	}

	s.logger.Printf("[SIDEMAIL_EMAIL_SUCCESS] operation=%s id=%s", operation, response.ID)
	return nil
}
