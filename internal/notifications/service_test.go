package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"benchd/internal/config"
	"benchd/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSessionFinalized, notifications.Payload{"unit": "U1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "session started",
			event: notifications.EventSessionStarted,
			payload: notifications.Payload{
				"unit":     "U-042",
				"employee": "Alex",
				"bench":    "bench-3",
			},
			expectTitle:   "Benchd - Session Started",
			expectMessage: "Unit U-042 picked up by Alex at bench-3",
			expectTags:    "benchd,session,started",
		},
		{
			name:  "session finalized",
			event: notifications.EventSessionFinalized,
			payload: notifications.Payload{
				"unit":     "U-042",
				"bench":    "bench-3",
				"duration": "42m10s",
			},
			expectTitle:   "Benchd - Session Finalized",
			expectMessage: "Unit U-042 finalized at bench-3 in 42m10s",
			expectTags:    "benchd,session,finalized",
		},
		{
			name:  "publication parked",
			event: notifications.EventPublicationParked,
			payload: notifications.Payload{
				"record": "rec-9",
				"target": "ledger",
				"reason": "node unreachable",
			},
			expectTitle:    "Benchd - Publication Stuck",
			expectMessage:  "Record rec-9 parked for ledger: node unreachable",
			expectTags:     "benchd,publish,parked",
			expectPriority: "high",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "finalize",
				"error":   "camera did not answer",
			},
			expectTitle:    "Benchd - Error",
			expectMessage:  "Error with finalize: camera did not answer",
			expectTags:     "benchd,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Sessions = true
			cfg.Notifications.Publications = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedCategories(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Sessions = false
	cfg.Notifications.Publications = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventSessionStarted,
		notifications.EventSessionFinalized,
		notifications.EventSessionAborted,
		notifications.EventPublicationSettled,
		notifications.EventPublicationParked,
		notifications.EventError,
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}
