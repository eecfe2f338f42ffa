package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Client performs on-demand calls against a scan gateway. It is stateless:
// every call opens a transient connection, writes one request, waits for
// exactly one response or a timeout, and closes the connection regardless
// of outcome. A Client is safe for concurrent use.
//
// Calls are not cancellable mid-flight; the context is honored up to the
// dial only. Callers must never invoke the long-tier scan paths from a
// context that itself must respond quickly.
type Client struct {
	cfg *ClientConfig
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("gateway: client config is nil")
	}

	return &Client{cfg: cfg}, nil
}

// Status polls the gateway under the short timeout tier.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	raw, err := c.roundTrip(ctx, ActionStatus, c.cfg.statusTimeout)
	if err != nil {
		return nil, err
	}

	var rep struct {
		StatusReport
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if rep.Error != "" {
		return nil, fmt.Errorf("%w: gateway reported %q", ErrInvalidResponse, rep.Error)
	}

	return &rep.StatusReport, nil
}

// ScanAdmin requests a token scan authorizing an admin login, under the
// long timeout tier.
func (c *Client) ScanAdmin(ctx context.Context) (*Decision, error) {
	return c.scan(ctx, ActionScanAdmin)
}

// ScanShutdown requests a token scan confirming a shutdown or restart,
// under the long timeout tier.
func (c *Client) ScanShutdown(ctx context.Context) (*Decision, error) {
	return c.scan(ctx, ActionScanShutdown)
}

func (c *Client) scan(ctx context.Context, action Action) (*Decision, error) {
	raw, err := c.roundTrip(ctx, action, c.cfg.scanTimeout)
	if err != nil {
		return nil, err
	}

	var dec struct {
		Decision
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if dec.Error != "" {
		return nil, fmt.Errorf("%w: gateway reported %q", ErrInvalidResponse, dec.Error)
	}

	c.cfg.logger.Debug("gateway scan finished",
		"action", action, "authorized", dec.Authorized, "user", dec.User)

	return &dec.Decision, nil
}

// roundTrip performs one full request/response exchange on a fresh
// connection, bounded by the given timeout tier.
func (c *Client) roundTrip(ctx context.Context, action Action, timeout time.Duration) ([]byte, error) {
	// One deadline covers dial, write and read; the tier bounds the whole
	// call, not each phase.
	deadline := time.Now().Add(timeout)
	dialer := net.Dialer{Deadline: deadline}

	conn, err := dialer.DialContext(ctx, c.cfg.network, c.cfg.address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayOffline, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayOffline, err)
	}

	payload, err := json.Marshal(request{Action: action})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}

	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayOffline, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		switch {
		case len(line) > 0 && errors.Is(err, io.EOF):
			// Response without a trailing newline; the object is complete.
		case isTimeout(err) && len(line) == 0:
			return nil, ErrScanTimeout
		case isTimeout(err):
			return nil, fmt.Errorf("%w: truncated response", ErrInvalidResponse)
		case errors.Is(err, io.EOF):
			return nil, fmt.Errorf("%w: connection closed without a response", ErrInvalidResponse)
		default:
			return nil, fmt.Errorf("%w: %v", ErrGatewayOffline, err)
		}
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	return line, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
