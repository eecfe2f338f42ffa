package reader

import (
	"errors"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopHandler struct{}

func (nopHandler) HandleOpened()          {}
func (nopHandler) HandleLine(string)      {}
func (nopHandler) HandleClosed(err error) {}

func TestNewSerialLink_NilConfig(t *testing.T) {
	_, err := NewSerialLink(nil)
	require.Error(t, err)
}

func TestSerialLink_OpenWithoutHandler(t *testing.T) {
	cfg, err := NewLinkConfig("/dev/ttyUSB0")
	require.NoError(t, err)

	link, err := NewSerialLink(cfg)
	require.NoError(t, err)

	require.ErrorIs(t, link.Open(), ErrNoHandler)
}

// fakePort is a serial.Port whose writes fail with a fixed error.
type fakePort struct {
	writeErr error
}

var _ serial.Port = (*fakePort)(nil)

func (p *fakePort) SetMode(*serial.Mode) error { return nil }
func (p *fakePort) Read([]byte) (int, error)   { return 0, nil }

func (p *fakePort) Write([]byte) (int, error) {
	return 0, p.writeErr
}

func (p *fakePort) Drain() error             { return nil }
func (p *fakePort) ResetInputBuffer() error  { return nil }
func (p *fakePort) ResetOutputBuffer() error { return nil }
func (p *fakePort) SetDTR(bool) error        { return nil }
func (p *fakePort) SetRTS(bool) error        { return nil }

func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (p *fakePort) Close() error                       { return nil }
func (p *fakePort) Break(time.Duration) error          { return nil }

func TestSerialLink_SendCommandWriteError(t *testing.T) {
	cfg, err := NewLinkConfig("/dev/ttyUSB0")
	require.NoError(t, err)

	link, err := NewSerialLink(cfg)
	require.NoError(t, err)
	link.SetHandler(nopHandler{})

	link.sess = &linkSession{port: &fakePort{writeErr: errors.New("input/output error")}}

	err = link.SendCommand(CmdStatus)
	require.ErrorIs(t, err, ErrLinkClosed)
	assert.Contains(t, err.Error(), "input/output error",
		"the underlying write error must survive into the returned error")
}

func TestSerialLink_ClosedLink(t *testing.T) {
	cfg, err := NewLinkConfig("/dev/ttyUSB0")
	require.NoError(t, err)

	link, err := NewSerialLink(cfg)
	require.NoError(t, err)
	link.SetHandler(nopHandler{})

	assert.False(t, link.IsOpen())
	assert.NoError(t, link.Close()) // closing a never-opened link is a no-op
	assert.ErrorIs(t, link.SendCommand(CmdStatus), ErrLinkClosed)
}
