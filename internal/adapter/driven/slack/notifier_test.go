package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_Post(t *testing.T) {
	var received slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxp-test", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1234.5678"}`))
	}))
	defer server.Close()

	notifier := NewNotifierWithBaseURL("xoxp-test", server.URL)

	msg := model.NotificationMessage{
		Channel: "ci-alerts",
		Text:    "Build #7 of example on branch `main` FAILED",
		Attachments: []model.MessageAttachment{{
			Title:      "Do you want to revert commit c0ffee12 on branch main?",
			Fallback:   "Do you want to revert commit c0ffee12 on branch main?",
			Color:      model.ColorRed,
			CallbackID: "set-1",
			Actions: []model.MessageAction{
				{Name: "revert_commit", Label: "Revert", Value: "revert_commit", Style: "danger"},
				{Name: "revert_commit", Label: "No", Value: "no"},
			},
		}},
	}

	ref, err := notifier.Post(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, model.MessageRef{Channel: "C123", Timestamp: "1234.5678"}, ref)

	assert.Equal(t, "ci-alerts", received.Channel)
	require.Len(t, received.Attachments, 1)
	attachment := received.Attachments[0]
	assert.Equal(t, "set-1", attachment.CallbackID)
	assert.Equal(t, "default", attachment.AttachmentType)
	require.Len(t, attachment.Actions, 2)
	assert.Equal(t, slackAction{Type: "button", Name: "revert_commit", Text: "Revert", Value: "revert_commit", Style: "danger"}, attachment.Actions[0])
	assert.Equal(t, slackAction{Type: "button", Name: "revert_commit", Text: "No", Value: "no"}, attachment.Actions[1])
}

// A plain colored message renders as a single attachment so the color bar
// shows up.
func TestNotifier_Post_BareColoredText(t *testing.T) {
	var received slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1.2"}`))
	}))
	defer server.Close()

	notifier := NewNotifierWithBaseURL("xoxp-test", server.URL)

	_, err := notifier.Post(context.Background(), model.NotificationMessage{
		Channel: "ci-alerts",
		Text:    "Branch `main` is healthy again!",
		Color:   model.ColorGreen,
	})
	require.NoError(t, err)

	assert.Empty(t, received.Text)
	require.Len(t, received.Attachments, 1)
	assert.Equal(t, "Branch `main` is healthy again!", received.Attachments[0].Text)
	assert.Equal(t, model.ColorGreen, received.Attachments[0].Color)
}

func TestNotifier_Update(t *testing.T) {
	var received slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.update", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1234.5678"}`))
	}))
	defer server.Close()

	notifier := NewNotifierWithBaseURL("xoxp-test", server.URL)

	ref := model.MessageRef{Channel: "C123", Timestamp: "1234.5678"}
	err := notifier.Update(context.Background(), ref, model.NotificationMessage{
		Channel: "ci-alerts",
		Text:    "Done: revert commit c0ffee12 on branch main.",
	})
	require.NoError(t, err)

	assert.Equal(t, "C123", received.Channel, "update targets the original channel")
	assert.Equal(t, "1234.5678", received.TS)
}

func TestNotifier_APIErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer server.Close()

	notifier := NewNotifierWithBaseURL("xoxp-test", server.URL)

	_, err := notifier.Post(context.Background(), model.NotificationMessage{Channel: "nope", Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
	assert.Equal(t, int32(1), calls.Load(), "api-level errors are permanent")
}

func TestNotifier_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1.2"}`))
	}))
	defer server.Close()

	notifier := NewNotifierWithBaseURL("xoxp-test", server.URL)

	ref, err := notifier.Post(context.Background(), model.NotificationMessage{Channel: "ci-alerts", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "C123", ref.Channel)
	assert.Equal(t, int32(2), calls.Load())
}
