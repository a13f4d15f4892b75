package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"benchd/internal/logging"
	"benchd/internal/metrics"
	"benchd/internal/publish"
	"benchd/internal/session"
	"benchd/internal/store"
	"benchd/internal/testsupport"
	"benchd/internal/workbench"
)

func startAPIDaemon(t *testing.T) (*Daemon, *store.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	recorder := metrics.NewRecorder()

	sup := workbench.NewSupervisor(cfg, st, logger, recorder, nil, nil, nil)
	pipeline := publish.NewPipeline(cfg, st, logger, recorder)
	d, err := New(cfg, st, logger, sup, pipeline, nil, recorder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	addr := d.api.addr()
	if addr == "" {
		t.Fatal("api server has no address")
	}
	return d, st, "http://" + addr
}

func postJSON(t *testing.T, url string, payload any, out any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestAPIStatusEndpoint(t *testing.T) {
	_, _, base := startAPIDaemon(t)

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}

	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Running {
		t.Fatal("daemon should report running")
	}
	if payload.Bench.BenchID != "bench-test" {
		t.Fatalf("bench id = %q", payload.Bench.BenchID)
	}
}

func TestAPISessionFlow(t *testing.T) {
	_, st, base := startAPIDaemon(t)
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	testsupport.SeedUnit(t, st, "U1", "100200300400", "widget-mk2")

	var loginOut struct {
		Bench workbench.Status `json:"bench"`
	}
	resp := postJSON(t, base+"/api/session/login", sessionCommand{CardID: "card-1"}, &loginOut)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	if loginOut.Bench.State != session.StateAwaitingUnit {
		t.Fatalf("state after login = %s", loginOut.Bench.State)
	}

	resp = postJSON(t, base+"/api/session/bind-unit", sessionCommand{Barcode: "100200300400"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bind status = %d", resp.StatusCode)
	}
	resp = postJSON(t, base+"/api/session/start-stage", sessionCommand{Stage: "assembly"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start-stage status = %d", resp.StatusCode)
	}
	resp = postJSON(t, base+"/api/session/end-stage", sessionCommand{Outcome: "completed"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end-stage status = %d", resp.StatusCode)
	}

	var finalizeOut struct {
		RecordID string `json:"record_id"`
	}
	resp = postJSON(t, base+"/api/session/finalize", sessionCommand{}, &finalizeOut)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize status = %d", resp.StatusCode)
	}
	if finalizeOut.RecordID == "" {
		t.Fatal("finalize returned no record id")
	}

	pubResp, err := http.Get(base + "/api/publications?status=pending")
	if err != nil {
		t.Fatalf("GET publications: %v", err)
	}
	defer pubResp.Body.Close()
	if pubResp.StatusCode != http.StatusOK {
		t.Fatalf("publications status = %d", pubResp.StatusCode)
	}
}

func TestAPIUnknownCardIs404(t *testing.T) {
	_, _, base := startAPIDaemon(t)

	resp := postJSON(t, base+"/api/session/login", sessionCommand{CardID: "bogus"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIConflictOnBusyUnit(t *testing.T) {
	_, st, base := startAPIDaemon(t)
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	testsupport.SeedUnit(t, st, "U1", "100200300400", "widget-mk2")
	if err := st.ClaimUnit(context.Background(), "U1", "session-elsewhere"); err != nil {
		t.Fatalf("ClaimUnit: %v", err)
	}

	postJSON(t, base+"/api/session/login", sessionCommand{CardID: "card-1"}, nil)
	resp := postJSON(t, base+"/api/session/bind-unit", sessionCommand{Barcode: "100200300400"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestAPIPublicationRetryEndpoint(t *testing.T) {
	_, _, base := startAPIDaemon(t)

	var out struct {
		Changed bool `json:"changed"`
	}
	resp := postJSON(t, fmt.Sprintf("%s/api/publications/rec-1/ledger/retry", base), nil, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.Changed {
		t.Fatal("retry of unknown publication should report no change")
	}
}

func TestAPIMetricsEndpoint(t *testing.T) {
	_, _, base := startAPIDaemon(t)

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}
