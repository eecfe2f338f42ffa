package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeGateway listens on loopback and serves each connection with
// respond. respond receives the decoded request and returns the raw bytes to
// write back, or nil to close without answering.
func startFakeGateway(t *testing.T, respond func(req request) []byte) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func(conn net.Conn) {
				defer conn.Close()

				line, err := bufio.NewReader(conn).ReadBytes('\n')
				if err != nil {
					return
				}

				var req request
				if err := json.Unmarshal(line, &req); err != nil {
					return
				}

				if resp := respond(req); resp != nil {
					_, _ = conn.Write(resp)
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func newTestClient(t *testing.T, addr string, opts ...ClientOption) *Client {
	t.Helper()

	cfg, err := NewClientConfig("tcp", addr, opts...)
	require.NoError(t, err)

	c, err := NewClient(cfg)
	require.NoError(t, err)

	return c
}

func TestClient_ScanAuthorized(t *testing.T) {
	expires := float64(time.Now().Add(time.Minute).Unix())

	addr := startFakeGateway(t, func(req request) []byte {
		assert.Equal(t, ActionScanAdmin, req.Action)

		payload, _ := json.Marshal(Decision{Authorized: true, User: "alice", Expires: expires})

		return append(payload, '\n')
	})

	c := newTestClient(t, addr)

	dec, err := c.ScanAdmin(context.Background())
	require.NoError(t, err)

	assert.True(t, dec.Authorized)
	assert.Equal(t, "alice", dec.User)
	assert.WithinDuration(t, time.Now().Add(time.Minute), dec.ExpiresAt(), 2*time.Second)
	assert.True(t, Allowed(dec, err))
}

func TestClient_ScanDenied(t *testing.T) {
	addr := startFakeGateway(t, func(req request) []byte {
		assert.Equal(t, ActionScanShutdown, req.Action)

		return []byte(`{"authorized":false}` + "\n")
	})

	c := newTestClient(t, addr)

	dec, err := c.ScanShutdown(context.Background())
	require.NoError(t, err)

	assert.False(t, dec.Authorized)
	assert.Empty(t, dec.User)
	assert.True(t, dec.ExpiresAt().IsZero())
	assert.False(t, Allowed(dec, err))
}

func TestClient_Status(t *testing.T) {
	addr := startFakeGateway(t, func(req request) []byte {
		require.Equal(t, ActionStatus, req.Action)

		rep := StatusReport{
			Online: true,
			Cards:  3,
			Stats:  ScanStats{Scans: 10, Valid: 7, Denied: 3},
			ActiveSessions: map[string]SessionInfo{
				"admin": {User: "alice", Remaining: 42},
			},
		}
		payload, _ := json.Marshal(rep)

		return append(payload, '\n')
	})

	c := newTestClient(t, addr)

	rep, err := c.Status(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Online)
	assert.Equal(t, 3, rep.Cards)
	assert.Equal(t, uint64(7), rep.Stats.Valid)
	assert.Equal(t, "alice", rep.ActiveSessions["admin"].User)
}

func TestClient_GatewayError(t *testing.T) {
	addr := startFakeGateway(t, func(req request) []byte {
		return []byte(`{"error":"unknown action"}` + "\n")
	})

	c := newTestClient(t, addr)

	_, err := c.ScanAdmin(context.Background())
	require.ErrorIs(t, err, ErrInvalidResponse)
	assert.Contains(t, err.Error(), "unknown action")
	assert.False(t, Allowed(nil, err))
}

func TestClient_MalformedResponse(t *testing.T) {
	addr := startFakeGateway(t, func(req request) []byte {
		return []byte("not json at all\n")
	})

	c := newTestClient(t, addr)

	_, err := c.ScanAdmin(context.Background())
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestClient_MissingTrailingNewline(t *testing.T) {
	// A response terminated by connection close instead of a newline still
	// carries a complete decision.
	addr := startFakeGateway(t, func(req request) []byte {
		return []byte(`{"authorized":true,"user":"bob"}`)
	})

	c := newTestClient(t, addr)

	dec, err := c.ScanAdmin(context.Background())
	require.NoError(t, err)
	assert.True(t, dec.Authorized)
	assert.Equal(t, "bob", dec.User)
}

func TestClient_ClosedWithoutResponse(t *testing.T) {
	addr := startFakeGateway(t, func(req request) []byte {
		return nil
	})

	c := newTestClient(t, addr)

	_, err := c.ScanAdmin(context.Background())
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestClient_ScanTimeout(t *testing.T) {
	addr := startFakeGateway(t, func(req request) []byte {
		time.Sleep(time.Second) // longer than the configured tier

		return []byte(`{"authorized":true}` + "\n")
	})

	c := newTestClient(t, addr, WithScanTimeout(100*time.Millisecond))

	begin := time.Now()
	_, err := c.ScanAdmin(context.Background())
	require.ErrorIs(t, err, ErrScanTimeout)
	assert.Less(t, time.Since(begin), time.Second, "call must be bounded by the scan tier")
}

func TestClient_StatusBoundedByTier(t *testing.T) {
	// A silent gateway must not stall a status poll past its tier: dial,
	// write and read all draw from the same budget.
	addr := startFakeGateway(t, func(req request) []byte {
		time.Sleep(5 * time.Second)

		return nil
	})

	c := newTestClient(t, addr, WithStatusTimeout(200*time.Millisecond))

	begin := time.Now()
	_, err := c.Status(context.Background())
	elapsed := time.Since(begin)

	require.ErrorIs(t, err, ErrScanTimeout)
	assert.Less(t, elapsed, 400*time.Millisecond,
		"whole call must finish within the tier, not a per-phase multiple of it")
}

func TestClient_GatewayOffline(t *testing.T) {
	// Grab a free port and immediately release it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newTestClient(t, addr, WithStatusTimeout(200*time.Millisecond))

	_, err = c.Status(context.Background())
	require.ErrorIs(t, err, ErrGatewayOffline)
}

func TestNewClientConfig_Validation(t *testing.T) {
	_, err := NewClientConfig("udp", "127.0.0.1:9000")
	require.Error(t, err)

	_, err = NewClientConfig("tcp", "")
	require.Error(t, err)

	_, err = NewClientConfig("tcp", "127.0.0.1:9000", WithScanTimeout(0))
	require.Error(t, err)

	_, err = NewClientConfig("unix", "/tmp/keygate_rfid.sock")
	require.NoError(t, err)
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(&Decision{Authorized: true}, nil))
	assert.False(t, Allowed(&Decision{Authorized: false}, nil))
	assert.False(t, Allowed(nil, nil))
	assert.False(t, Allowed(&Decision{Authorized: true}, ErrScanTimeout))
}
