// Package slack implements the Notifier port against the Slack chat API.
// All vendor payload shapes live here; the application layer only sees
// the abstract notification model.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Notifier)(nil)

const defaultBaseURL = "https://slack.com/api"

// Notifier posts and updates Slack messages with interactive attachments.
type Notifier struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewNotifier creates a Notifier using the given user token.
func NewNotifier(token string) *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// NewNotifierWithBaseURL creates a Notifier against a custom API
// endpoint. Intended for tests with an httptest server.
func NewNotifierWithBaseURL(token, baseURL string) *Notifier {
	notifier := NewNotifier(token)
	notifier.baseURL = baseURL
	return notifier
}

// slackMessage is the chat.postMessage / chat.update payload.
type slackMessage struct {
	Channel     string            `json:"channel"`
	Text        string            `json:"text,omitempty"`
	TS          string            `json:"ts,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Title          string        `json:"title,omitempty"`
	Text           string        `json:"text,omitempty"`
	Fallback       string        `json:"fallback,omitempty"`
	Color          string        `json:"color,omitempty"`
	CallbackID     string        `json:"callback_id,omitempty"`
	AttachmentType string        `json:"attachment_type,omitempty"`
	Actions        []slackAction `json:"actions,omitempty"`
}

type slackAction struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Text  string `json:"text"`
	Value string `json:"value"`
	Style string `json:"style,omitempty"`
}

// slackResponse is the subset of the API response the notifier needs.
type slackResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// Post sends the message and returns a reference for later updates.
func (n *Notifier) Post(ctx context.Context, msg model.NotificationMessage) (model.MessageRef, error) {
	resp, err := n.call(ctx, "chat.postMessage", toSlackMessage(msg, ""))
	if err != nil {
		return model.MessageRef{}, err
	}
	return model.MessageRef{Channel: resp.Channel, Timestamp: resp.TS}, nil
}

// Update rewrites a previously posted message in place.
func (n *Notifier) Update(ctx context.Context, ref model.MessageRef, msg model.NotificationMessage) error {
	payload := toSlackMessage(msg, ref.Timestamp)
	payload.Channel = ref.Channel
	_, err := n.call(ctx, "chat.update", payload)
	return err
}

// call posts the payload to the named API method, retrying transient
// transport failures and server errors with exponential backoff. An API
// level "ok": false is permanent and never retried.
func (n *Notifier) call(ctx context.Context, method string, payload slackMessage) (*slackResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", method, err)
	}

	var result *slackResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/"+method, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build %s request: %w", method, err))
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Authorization", "Bearer "+n.token)

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%s: status %d", method, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%s: status %d", method, resp.StatusCode))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read response: %w", method, err)
		}

		var parsed slackResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decode response: %w", method, err))
		}
		if !parsed.OK {
			return backoff.Permanent(fmt.Errorf("%s: api error: %s", method, parsed.Error))
		}

		result = &parsed
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}

func toSlackMessage(msg model.NotificationMessage, ts string) slackMessage {
	out := slackMessage{
		Channel: msg.Channel,
		Text:    msg.Text,
		TS:      ts,
	}

	if len(msg.Attachments) == 0 && msg.Color != "" && msg.Text != "" {
		// A bare colored message renders as a single attachment.
		out.Attachments = []slackAttachment{{Text: msg.Text, Color: msg.Color}}
		out.Text = ""
		return out
	}

	for _, attachment := range msg.Attachments {
		slackAtt := slackAttachment{
			Title:      attachment.Title,
			Text:       attachment.Text,
			Fallback:   attachment.Fallback,
			Color:      attachment.Color,
			CallbackID: attachment.CallbackID,
		}
		if len(attachment.Actions) > 0 {
			slackAtt.AttachmentType = "default"
		}
		for _, action := range attachment.Actions {
			slackAtt.Actions = append(slackAtt.Actions, slackAction{
				Type:  "button",
				Name:  action.Name,
				Text:  action.Label,
				Value: action.Value,
				Style: action.Style,
			})
		}
		out.Attachments = append(out.Attachments, slackAtt)
	}
	return out
}
