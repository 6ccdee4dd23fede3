package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dounotify/internal/config"
	"dounotify/internal/dag"
	"dounotify/internal/render/chat"
)

// WebhookPoster posts one JSON payload to a webhook URL.
// Params: context, target URL, and payload marshaled as JSON.
// Returns: transport error or error for non-2xx status.
type WebhookPoster interface {
	PostJSON(ctx context.Context, url string, payload any) error
}

// HTTPWebhookPoster posts JSON payloads over HTTP.
// Params: timeout and optional static headers.
// Returns: webhook sink for chat notifiers.
type HTTPWebhookPoster struct {
	headers map[string]string
	client  *http.Client
}

// NewHTTPWebhookPoster creates the HTTP webhook sink.
// Params: webhook config.
// Returns: initialized poster.
func NewHTTPWebhookPoster(cfg config.WebhookConfig) *HTTPWebhookPoster {
	return &HTTPWebhookPoster{
		headers: cfg.Headers,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

// PostJSON delivers JSON payload to the webhook endpoint.
// Params: context, endpoint URL, and payload.
// Returns: transport or HTTP error.
func (p *HTTPWebhookPoster) PostJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range p.headers {
		request.Header.Set(key, value)
	}

	response, err := p.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedHTTPStatusError("webhook", response)
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
// Params: sender prefix label and HTTP response pointer.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	if response == nil {
		return fmt.Errorf("%s status=0", prefix)
	}
	rawBody, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
}

// SlackNotifier posts block-kit messages to the DAG's Slack webhook.
type SlackNotifier struct {
	poster WebhookPoster
}

// NewSlackNotifier creates the Slack notifier.
func NewSlackNotifier(poster WebhookPoster) *SlackNotifier {
	return &SlackNotifier{poster: poster}
}

// Channel returns notifier channel name.
func (n *SlackNotifier) Channel() string {
	return ChannelSlack
}

// Enabled reports whether the DAG configured a Slack webhook.
func (n *SlackNotifier) Enabled(cfg dag.DAGConfig) bool {
	return cfg.SlackWebhook != ""
}

// Notify posts all blocks in one payload; an empty report posts the no-results text.
func (n *SlackNotifier) Notify(ctx context.Context, delivery Delivery) error {
	blocks := chat.SlackBlocks(delivery.Report)
	if len(blocks) == 0 {
		blocks = chat.SlackNoResults(delivery.Config.NoResultsFoundText)
	}
	return n.poster.PostJSON(ctx, delivery.Config.SlackWebhook, chat.NewSlackPayload(blocks))
}

// DiscordNotifier posts markdown messages to the DAG's Discord webhook.
type DiscordNotifier struct {
	poster WebhookPoster
}

// NewDiscordNotifier creates the Discord notifier.
func NewDiscordNotifier(poster WebhookPoster) *DiscordNotifier {
	return &DiscordNotifier{poster: poster}
}

// Channel returns notifier channel name.
func (n *DiscordNotifier) Channel() string {
	return ChannelDiscord
}

// Enabled reports whether the DAG configured a Discord webhook.
func (n *DiscordNotifier) Enabled(cfg dag.DAGConfig) bool {
	return cfg.DiscordWebhook != ""
}

// Notify posts messages one by one and stops at the first failure.
func (n *DiscordNotifier) Notify(ctx context.Context, delivery Delivery) error {
	messages, err := chat.DiscordMessages(delivery.Report)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		messages = chat.DiscordNoResults(delivery.Config.NoResultsFoundText)
	}
	for idx, message := range messages {
		if err := n.poster.PostJSON(ctx, delivery.Config.DiscordWebhook, message); err != nil {
			return fmt.Errorf("message %d of %d: %w", idx+1, len(messages), err)
		}
	}
	return nil
}
