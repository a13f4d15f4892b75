package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Benchd.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Benchd.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Benchd.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authorizes the operator with the given RFID card.
func (c *Client) Login(cardID string) (*SessionCommandResponse, error) {
	var resp SessionCommandResponse
	req := SessionCommandRequest{CardID: cardID}
	if err := c.client.Call("Benchd.Login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout releases the operator binding.
func (c *Client) Logout() (*SessionCommandResponse, error) {
	var resp SessionCommandResponse
	if err := c.client.Call("Benchd.Logout", SessionCommandRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BindUnit claims the unit with the given barcode.
func (c *Client) BindUnit(barcode string) (*SessionCommandResponse, error) {
	var resp SessionCommandResponse
	req := SessionCommandRequest{Barcode: barcode}
	if err := c.client.Call("Benchd.BindUnit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartStage opens a production stage on the active session.
func (c *Client) StartStage(stage string) (*SessionCommandResponse, error) {
	var resp SessionCommandResponse
	req := SessionCommandRequest{Stage: stage}
	if err := c.client.Call("Benchd.StartStage", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EndStage closes the open stage with an outcome.
func (c *Client) EndStage(outcome string) (*SessionCommandResponse, error) {
	var resp SessionCommandResponse
	req := SessionCommandRequest{Outcome: outcome}
	if err := c.client.Call("Benchd.EndStage", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause suspends the active session.
func (c *Client) Pause() (*SessionCommandResponse, error) {
	var resp SessionCommandResponse
	if err := c.client.Call("Benchd.Pause", SessionCommandRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume returns a paused session to work.
func (c *Client) Resume() (*SessionCommandResponse, error) {
	var resp SessionCommandResponse
	if err := c.client.Call("Benchd.Resume", SessionCommandRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Finalize freezes the active session into an evidence record.
func (c *Client) Finalize(subunits []string) (*FinalizeResponse, error) {
	var resp FinalizeResponse
	req := SessionCommandRequest{Subunits: subunits}
	if err := c.client.Call("Benchd.Finalize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Abort discards the active session.
func (c *Client) Abort(reason string) (*SessionCommandResponse, error) {
	var resp SessionCommandResponse
	req := SessionCommandRequest{Reason: reason}
	if err := c.client.Call("Benchd.Abort", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateUnit registers a new production unit.
func (c *Client) CreateUnit(model string, composite bool) (*CreateUnitResponse, error) {
	var resp CreateUnitResponse
	req := CreateUnitRequest{Model: model, Composite: composite}
	if err := c.client.Call("Benchd.CreateUnit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddEmployee registers or updates an employee record.
func (c *Client) AddEmployee(req AddEmployeeRequest) (*AddEmployeeResponse, error) {
	var resp AddEmployeeResponse
	if err := c.client.Call("Benchd.AddEmployee", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublicationList returns publications optionally filtered by statuses.
func (c *Client) PublicationList(statuses []string) (*PublicationListResponse, error) {
	var resp PublicationListResponse
	req := PublicationListRequest{Statuses: statuses}
	if err := c.client.Call("Benchd.PublicationList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublicationRetry returns a parked publication to the queue.
func (c *Client) PublicationRetry(recordID, target string) (*PublicationActionResponse, error) {
	var resp PublicationActionResponse
	req := PublicationActionRequest{RecordID: recordID, Target: target}
	if err := c.client.Call("Benchd.PublicationRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublicationSkip marks a publication skipped.
func (c *Client) PublicationSkip(recordID, target string) (*PublicationActionResponse, error) {
	var resp PublicationActionResponse
	req := PublicationActionRequest{RecordID: recordID, Target: target}
	if err := c.client.Call("Benchd.PublicationSkip", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetModelRequirement marks a stage as mandatory for a model.
func (c *Client) SetModelRequirement(req SetModelRequirementRequest) (*SetModelRequirementResponse, error) {
	var resp SetModelRequirementResponse
	if err := c.client.Call("Benchd.SetModelRequirement", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Benchd.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Benchd.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
