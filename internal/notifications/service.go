package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"benchd/internal/config"
)

const userAgent = "Benchd/0.1.0"

// Event enumerates the bench milestones that can raise a notification.
type Event string

const (
	EventSessionStarted     Event = "session_started"
	EventSessionFinalized   Event = "session_finalized"
	EventSessionAborted     Event = "session_aborted"
	EventPublicationSettled Event = "publication_settled"
	EventPublicationParked  Event = "publication_parked"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event-specific values referenced by the message templates.
type Payload map[string]string

// Service defines the notification surface exposed to bench components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		sessions:     cfg.Notifications.Sessions,
		publications: cfg.Notifications.Publications,
		errors:       cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	sessions     bool
	publications bool
	errors       bool
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventSessionStarted, EventSessionFinalized, EventSessionAborted:
		return n.sessions
	case EventPublicationSettled, EventPublicationParked:
		return n.publications
	case EventError:
		return n.errors
	case EventTest:
		return true
	default:
		return false
	}
}

// Publish formats and sends the event. Suppressed categories return nil
// without touching the network.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	return n.send(ctx, format(event, payload))
}

func format(event Event, payload Payload) message {
	get := func(key string) string {
		return strings.TrimSpace(payload[key])
	}
	switch event {
	case EventSessionStarted:
		return message{
			title: "Benchd - Session Started",
			body:  fmt.Sprintf("Unit %s picked up by %s at %s", get("unit"), get("employee"), get("bench")),
			tags:  []string{"benchd", "session", "started"},
		}
	case EventSessionFinalized:
		return message{
			title: "Benchd - Session Finalized",
			body:  fmt.Sprintf("Unit %s finalized at %s in %s", get("unit"), get("bench"), get("duration")),
			tags:  []string{"benchd", "session", "finalized"},
		}
	case EventSessionAborted:
		return message{
			title:    "Benchd - Session Aborted",
			body:     fmt.Sprintf("Session on unit %s aborted: %s", get("unit"), get("reason")),
			tags:     []string{"benchd", "session", "aborted"},
			priority: "high",
		}
	case EventPublicationSettled:
		return message{
			title: "Benchd - Published",
			body:  fmt.Sprintf("Record %s delivered to %s", get("record"), get("target")),
			tags:  []string{"benchd", "publish", "settled"},
		}
	case EventPublicationParked:
		return message{
			title:    "Benchd - Publication Stuck",
			body:     fmt.Sprintf("Record %s parked for %s: %s", get("record"), get("target"), get("reason")),
			tags:     []string{"benchd", "publish", "parked"},
			priority: "high",
		}
	case EventError:
		body := "Error"
		if label := get("context"); label != "" {
			body += " with " + label
		}
		body += ": " + get("error")
		return message{
			title:    "Benchd - Error",
			body:     body,
			tags:     []string{"benchd", "error", "alert"},
			priority: "high",
		}
	default:
		return message{
			title:    "Benchd - Test",
			body:     "Notification system test",
			tags:     []string{"benchd", "test"},
			priority: "low",
		}
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
