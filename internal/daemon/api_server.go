package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"benchd/internal/config"
	"benchd/internal/logging"
	"benchd/internal/store"
	"benchd/internal/workbench"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

type statusPayload struct {
	Running        bool                   `json:"running"`
	PID            int                    `json:"pid"`
	StorePath      string                 `json:"store_path"`
	LockFilePath   string                 `json:"lock_file_path"`
	Bench          workbench.Status       `json:"bench"`
	Publications   store.PublicationStats `json:"publications"`
	ScannerPresent bool                   `json:"scanner_present"`
}

type sessionCommand struct {
	CardID    string   `json:"card_id,omitempty"`
	Barcode   string   `json:"barcode,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	Outcome   string   `json:"outcome,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Subunits  []string `json:"subunits,omitempty"`
	Model     string   `json:"model,omitempty"`
	Composite bool     `json:"composite,omitempty"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Workbench.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/session/", srv.handleSession)
	mux.HandleFunc("/api/publications", srv.handlePublications)
	mux.HandleFunc("/api/publications/", srv.handlePublicationAction)
	if d.recorder != nil {
		mux.Handle("/metrics", d.recorder.Handler())
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, useful when the bind port is 0.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, statusPayload{
		Running:        status.Running,
		PID:            status.PID,
		StorePath:      status.StorePath,
		LockFilePath:   status.LockFilePath,
		Bench:          status.Bench,
		Publications:   status.Publications,
		ScannerPresent: status.ScannerPresent,
	})
}

func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/session/")
	if action == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "unknown session action")
		return
	}

	var cmd sessionCommand
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ctx := r.Context()
	var (
		status workbench.Status
		err    error
	)
	switch action {
	case "login":
		status, err = s.daemon.Login(ctx, cmd.CardID)
	case "logout":
		status, err = s.daemon.Logout(ctx)
	case "bind-unit":
		status, err = s.daemon.BindUnit(ctx, cmd.Barcode)
	case "start-stage":
		status, err = s.daemon.StartStage(ctx, cmd.Stage)
	case "end-stage":
		status, err = s.daemon.EndStage(ctx, cmd.Outcome)
	case "pause":
		status, err = s.daemon.Pause(ctx)
	case "resume":
		status, err = s.daemon.ResumeSession(ctx)
	case "abort":
		err = s.daemon.Abort(ctx, cmd.Reason)
		status = s.daemon.supervisor.Status()
	case "finalize":
		var row *store.EvidenceRow
		row, err = s.daemon.Finalize(ctx, cmd.Subunits)
		if err == nil {
			s.writeJSON(w, http.StatusOK, map[string]any{
				"record_id":    row.ID,
				"payload_hash": row.PayloadHash,
				"bench":        s.daemon.supervisor.Status(),
			})
			return
		}
		status = s.daemon.supervisor.Status()
	default:
		s.writeError(w, http.StatusNotFound, "unknown session action")
		return
	}

	if err != nil {
		s.writeError(w, sessionErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"bench": status})
}

func (s *apiServer) handlePublications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []string
	for _, value := range r.URL.Query()["status"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			statuses = append(statuses, trimmed)
		}
	}
	pubs, err := s.daemon.ListPublications(r.Context(), statuses)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"publications": pubs})
}

// handlePublicationAction serves POST /api/publications/{record}/{target}/{retry|skip}.
func (s *apiServer) handlePublicationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/publications/"), "/")
	if len(parts) != 3 {
		s.writeError(w, http.StatusNotFound, "unknown publication action")
		return
	}
	recordID, target, action := parts[0], parts[1], parts[2]

	var (
		changed bool
		err     error
	)
	switch action {
	case "retry":
		changed, err = s.daemon.RetryPublication(r.Context(), recordID, target)
	case "skip":
		changed, err = s.daemon.SkipPublication(r.Context(), recordID, target)
	default:
		s.writeError(w, http.StatusNotFound, "unknown publication action")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
}

func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, workbench.ErrUnknownEmployee),
		errors.Is(err, workbench.ErrUnknownUnit):
		return http.StatusNotFound
	case errors.Is(err, workbench.ErrNoSession),
		errors.Is(err, workbench.ErrSessionAlreadyActive),
		errors.Is(err, store.ErrUnitBusy),
		errors.Is(err, store.ErrUnitFinalized):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
