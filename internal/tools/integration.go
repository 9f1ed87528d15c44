package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"AgentHub/internal/confirm"
)

// ActionResult is the user-facing outcome of an integration action. Failures
// are reported here, never as an error return.
type ActionResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// CalendarEventParams describe a calendar event to create.
type CalendarEventParams struct {
	Title     string `json:"title"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Details   string `json:"details,omitempty"`
	Attendee  string `json:"attendee,omitempty"`
}

// IssueParams describe an issue to file.
type IssueParams struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

// EmailParams describe an email to send.
type EmailParams struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// IntegrationClient performs the only irreversible external side effects in
// the system. Every action blocks on a human confirmation before touching
// the network; a rejected confirmation short-circuits with no call made.
type IntegrationClient struct {
	baseURL    string
	httpClient *http.Client
	hub        *confirm.Hub
	logger     *slog.Logger
}

// NewIntegrationClient creates an integration adapter against baseURL,
// gated by hub.
func NewIntegrationClient(baseURL string, hub *confirm.Hub, logger *slog.Logger) *IntegrationClient {
	return &IntegrationClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		hub:        hub,
		logger:     logger,
	}
}

// CreateCalendarEvent files a calendar event after confirmation.
func (c *IntegrationClient) CreateCalendarEvent(ctx context.Context, params CalendarEventParams) ActionResult {
	return c.perform(ctx, action{
		name:     "Calendar event creation",
		failVerb: "create calendar event",
		service:  "calendar",
		path:     "/api/calendar/create-event",
		title:    params.Title,
		summary:  fmt.Sprintf("Create calendar event %q from %s to %s", params.Title, params.StartTime, params.EndTime),
		payload:  params,
	})
}

// CreateIssue files a tracker issue after confirmation.
func (c *IntegrationClient) CreateIssue(ctx context.Context, params IssueParams) ActionResult {
	return c.perform(ctx, action{
		name:     "Issue creation",
		failVerb: "create issue",
		service:  "github",
		path:     "/api/github/create-issue",
		title:    params.Title,
		summary:  fmt.Sprintf("File issue %q", params.Title),
		payload:  params,
	})
}

// SendEmail sends an email after confirmation.
func (c *IntegrationClient) SendEmail(ctx context.Context, params EmailParams) ActionResult {
	return c.perform(ctx, action{
		name:     "Email send",
		failVerb: "send email",
		service:  "email",
		path:     "/api/email/send",
		title:    params.Subject,
		summary:  fmt.Sprintf("Send email %q to %s", params.Subject, params.To),
		payload:  params,
	})
}

type action struct {
	name     string
	failVerb string
	service  string
	path     string
	title    string
	summary  string
	payload  interface{}
}

func (c *IntegrationClient) perform(ctx context.Context, act action) ActionResult {
	data := map[string]interface{}{}
	if raw, err := json.Marshal(act.payload); err == nil {
		_ = json.Unmarshal(raw, &data)
	}

	approved, err := c.hub.Await(ctx, confirm.Request{
		Type:        "integration_action",
		Service:     act.service,
		Title:       act.title,
		Description: act.summary,
		Data:        data,
	})
	if err != nil || !approved {
		c.logger.Info("integration action cancelled", "service", act.service, "title", act.title)
		return ActionResult{Success: false, Message: act.name + " cancelled"}
	}

	result, err := c.post(ctx, act.path, act.payload)
	if err != nil {
		c.logger.Error("integration action failed", "service", act.service, "error", err)
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to %s: %v", act.failVerb, err)}
	}

	return ActionResult{Success: true, Message: act.name + " succeeded", Data: result}
}

func (c *IntegrationClient) post(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	result := map[string]interface{}{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return result, nil
}
