package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"benchd/internal/daemon"
	"benchd/internal/logging"
	"benchd/internal/logs"
	"benchd/internal/store"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Benchd", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun bench stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StorePath = status.StorePath
	resp.LockPath = status.LockFilePath
	resp.Bench = status.Bench
	resp.ScannerPresent = status.ScannerPresent
	resp.PublicationStats = map[string]int{
		string(store.PubPending):   status.Publications.Pending,
		string(store.PubInflight):  status.Publications.Inflight,
		string(store.PubSucceeded): status.Publications.Succeeded,
		string(store.PubFailed):    status.Publications.Failed,
		string(store.PubSkipped):   status.Publications.Skipped,
	}
	return nil
}

func (s *service) Login(req SessionCommandRequest, resp *SessionCommandResponse) error {
	bench, err := s.daemon.Login(s.ctx, req.CardID)
	resp.Bench = bench
	return err
}

func (s *service) Logout(_ SessionCommandRequest, resp *SessionCommandResponse) error {
	bench, err := s.daemon.Logout(s.ctx)
	resp.Bench = bench
	return err
}

func (s *service) BindUnit(req SessionCommandRequest, resp *SessionCommandResponse) error {
	bench, err := s.daemon.BindUnit(s.ctx, req.Barcode)
	resp.Bench = bench
	return err
}

func (s *service) StartStage(req SessionCommandRequest, resp *SessionCommandResponse) error {
	bench, err := s.daemon.StartStage(s.ctx, req.Stage)
	resp.Bench = bench
	return err
}

func (s *service) EndStage(req SessionCommandRequest, resp *SessionCommandResponse) error {
	bench, err := s.daemon.EndStage(s.ctx, req.Outcome)
	resp.Bench = bench
	return err
}

func (s *service) Pause(_ SessionCommandRequest, resp *SessionCommandResponse) error {
	bench, err := s.daemon.Pause(s.ctx)
	resp.Bench = bench
	return err
}

func (s *service) Resume(_ SessionCommandRequest, resp *SessionCommandResponse) error {
	bench, err := s.daemon.ResumeSession(s.ctx)
	resp.Bench = bench
	return err
}

func (s *service) Finalize(req SessionCommandRequest, resp *FinalizeResponse) error {
	row, err := s.daemon.Finalize(s.ctx, req.Subunits)
	if err != nil {
		return err
	}
	resp.RecordID = row.ID
	resp.PayloadHash = row.PayloadHash
	resp.Bench = s.daemon.Status(s.ctx).Bench
	s.log().Info("session finalized via IPC",
		logging.String(logging.FieldEventType, "session_finalize"),
		logging.String(logging.FieldRecordID, row.ID))
	return nil
}

func (s *service) Abort(req SessionCommandRequest, resp *SessionCommandResponse) error {
	if err := s.daemon.Abort(s.ctx, req.Reason); err != nil {
		return err
	}
	resp.Bench = s.daemon.Status(s.ctx).Bench
	s.log().Info("session aborted via IPC",
		logging.String(logging.FieldEventType, "session_abort"))
	return nil
}

func (s *service) CreateUnit(req CreateUnitRequest, resp *CreateUnitResponse) error {
	unit, err := s.daemon.CreateUnit(s.ctx, req.Model, req.Composite)
	if err != nil {
		return err
	}
	resp.UnitID = unit.ID
	resp.Barcode = unit.Barcode
	s.log().Info("unit created via IPC",
		logging.String(logging.FieldEventType, "unit_create"),
		logging.String(logging.FieldUnitID, unit.ID))
	return nil
}

func (s *service) AddEmployee(req AddEmployeeRequest, resp *AddEmployeeResponse) error {
	err := s.daemon.AddEmployee(s.ctx, &store.Employee{
		ID:       strings.TrimSpace(req.ID),
		CardID:   strings.TrimSpace(req.CardID),
		Name:     strings.TrimSpace(req.Name),
		Position: strings.TrimSpace(req.Position),
	})
	if err != nil {
		return err
	}
	resp.Saved = true
	return nil
}

func (s *service) SetModelRequirement(req SetModelRequirementRequest, resp *SetModelRequirementResponse) error {
	err := s.daemon.SetModelRequirement(s.ctx,
		strings.TrimSpace(req.Model),
		strings.TrimSpace(req.Stage),
		req.RequiresMedia,
	)
	if err != nil {
		return err
	}
	resp.Saved = true
	return nil
}

func (s *service) PublicationList(req PublicationListRequest, resp *PublicationListResponse) error {
	pubs, err := s.daemon.ListPublications(s.ctx, req.Statuses)
	if err != nil {
		return err
	}
	resp.Publications = make([]Publication, 0, len(pubs))
	for _, pub := range pubs {
		if pub == nil {
			continue
		}
		resp.Publications = append(resp.Publications, convertPublication(pub))
	}
	return nil
}

func (s *service) PublicationRetry(req PublicationActionRequest, resp *PublicationActionResponse) error {
	changed, err := s.daemon.RetryPublication(s.ctx, req.RecordID, req.Target)
	if err != nil {
		return err
	}
	resp.Changed = changed
	if changed {
		s.log().Info("publication requeued via IPC",
			logging.String(logging.FieldEventType, "publication_retry"),
			logging.String(logging.FieldRecordID, req.RecordID),
			logging.String(logging.FieldTarget, req.Target))
	}
	return nil
}

func (s *service) PublicationSkip(req PublicationActionRequest, resp *PublicationActionResponse) error {
	changed, err := s.daemon.SkipPublication(s.ctx, req.RecordID, req.Target)
	if err != nil {
		return err
	}
	resp.Changed = changed
	if changed {
		s.log().Info("publication skipped via IPC",
			logging.String(logging.FieldEventType, "publication_skip"),
			logging.String(logging.FieldRecordID, req.RecordID),
			logging.String(logging.FieldTarget, req.Target))
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func convertPublication(pub *store.Publication) Publication {
	return Publication{
		RecordID:      pub.RecordID,
		Target:        pub.Target,
		Status:        string(pub.Status),
		Attempts:      pub.Attempts,
		LastError:     pub.LastError,
		NextAttemptAt: pub.NextAttemptAt,
		UpdatedAt:     pub.UpdatedAt,
	}
}
