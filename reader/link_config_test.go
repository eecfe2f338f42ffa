package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averlon/keygate/logger"
)

func TestNewLinkConfig_Defaults(t *testing.T) {
	cfg, err := NewLinkConfig("/dev/ttyUSB0")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Device())
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate())
	assert.Equal(t, DefaultSettleDelay, cfg.SettleDelay())
	assert.True(t, cfg.StatusProbe())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewLinkConfig_WithOptions(t *testing.T) {
	cfg, err := NewLinkConfig("/dev/ttyACM0",
		WithBaudRate(9600),
		WithSettleDelay(500*time.Millisecond),
		WithStatusProbe(false),
		WithLinkLogger(logger.NewMockLogger()),
	)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Device())
	assert.Equal(t, 9600, cfg.BaudRate())
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay())
	assert.False(t, cfg.StatusProbe())
}

func TestNewLinkConfig_EmptyDevice(t *testing.T) {
	_, err := NewLinkConfig("")
	require.ErrorIs(t, err, ErrDeviceEmpty)
}

func TestNewLinkConfig_InvalidBaud(t *testing.T) {
	_, err := NewLinkConfig("/dev/ttyUSB0", WithBaudRate(0))
	require.ErrorIs(t, err, ErrInvalidBaud)

	_, err = NewLinkConfig("/dev/ttyUSB0", WithBaudRate(-115200))
	require.ErrorIs(t, err, ErrInvalidBaud)
}

func TestNewLinkConfig_NegativeSettleDelay(t *testing.T) {
	_, err := NewLinkConfig("/dev/ttyUSB0", WithSettleDelay(-time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settle delay")
}

func TestNewLinkConfig_NilLogger(t *testing.T) {
	_, err := NewLinkConfig("/dev/ttyUSB0", WithLinkLogger(nil))
	require.Error(t, err)
}

func TestNewLinkConfigFromEnv(t *testing.T) {
	t.Run("device and baud from environment", func(t *testing.T) {
		t.Setenv(EnvDevice, "/dev/ttyUSB1")
		t.Setenv(EnvBaud, "57600")

		cfg, err := NewLinkConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "/dev/ttyUSB1", cfg.Device())
		assert.Equal(t, 57600, cfg.BaudRate())
	})

	t.Run("explicit options win over environment", func(t *testing.T) {
		t.Setenv(EnvDevice, "/dev/ttyUSB1")
		t.Setenv(EnvBaud, "57600")

		cfg, err := NewLinkConfigFromEnv(WithBaudRate(9600))
		require.NoError(t, err)
		assert.Equal(t, 9600, cfg.BaudRate())
	})

	t.Run("missing device fails", func(t *testing.T) {
		t.Setenv(EnvDevice, "")
		t.Setenv(EnvBaud, "")

		_, err := NewLinkConfigFromEnv()
		require.ErrorIs(t, err, ErrDeviceEmpty)
	})

	t.Run("malformed baud fails", func(t *testing.T) {
		t.Setenv(EnvDevice, "/dev/ttyUSB0")
		t.Setenv(EnvBaud, "fast")

		_, err := NewLinkConfigFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvBaud)
	})
}
