package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"benchd/internal/metrics"
)

func TestRecorderServesCollectors(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.IncSessionOutcome("finalized")
	rec.IncPublishOutcome("ledger", "success")
	rec.IncPublishRetry("ledger")
	rec.SetQueueDepth("pending", 3)
	rec.ObserveSessionDuration(90 * time.Second)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	text := string(body)
	for _, want := range []string{
		`benchd_session_outcomes_total{outcome="finalized"} 1`,
		`benchd_publish_outcomes_total{result="success",target="ledger"} 1`,
		`benchd_publish_queue_depth{status="pending"} 3`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("scrape missing %q:\n%s", want, text)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *metrics.Recorder
	rec.IncSessionOutcome("finalized")
	rec.IncStageOutcome("assembly", "completed")
	rec.IncPublishExhausted("ledger")
	rec.IncPeripheryError("camera")
	if rec.Handler() == nil {
		t.Fatal("expected fallback handler")
	}
}
