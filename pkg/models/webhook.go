package models

import "time"

// Webhook is a configured notification endpoint
type Webhook struct {
	URL    string   `json:"url" mapstructure:"url"`
	Secret string   `json:"-" mapstructure:"secret"`
	Events []string `json:"events" mapstructure:"events"`
}

// Subscribes reports whether the webhook wants the given event. An empty
// event list subscribes to everything.
func (w Webhook) Subscribes(event string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookEvent represents the payload sent to webhooks
type WebhookEvent struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Webhook event types
const (
	WebhookEventRenderLaunched  = "render.launched"
	WebhookEventRenderCompleted = "render.completed"
	WebhookEventRenderFailed    = "render.failed"
)
