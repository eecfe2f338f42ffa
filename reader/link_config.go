package reader

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/averlon/keygate/logger"
)

// Defaults for the serial link.
const (
	// DefaultBaudRate matches the reader firmware's fixed serial speed.
	DefaultBaudRate = 115200

	// DefaultSettleDelay is how long to wait after opening the port before
	// sending the first command. The reader firmware reboots when the port
	// is opened and drops anything written during that window.
	DefaultSettleDelay = 2 * time.Second
)

// Environment variables consulted by NewLinkConfigFromEnv.
const (
	EnvDevice = "KEYGATE_DEVICE"
	EnvBaud   = "KEYGATE_BAUD"
)

// LinkConfig holds configuration for a SerialLink.
type LinkConfig struct {
	device      string
	baudRate    int
	settleDelay time.Duration
	statusProbe bool
	logger      logger.Logger
}

// NewLinkConfig creates a serial link configuration for the given device
// path. opts are functional options applied in order; see With* functions.
func NewLinkConfig(device string, opts ...LinkOption) (*LinkConfig, error) {
	cfg := &LinkConfig{
		device:      device,
		baudRate:    DefaultBaudRate,
		settleDelay: DefaultSettleDelay,
		statusProbe: true,
		logger:      logger.GetLogger(),
	}

	if cfg.device == "" {
		return nil, ErrDeviceEmpty
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewLinkConfigFromEnv creates a serial link configuration from the
// KEYGATE_DEVICE and KEYGATE_BAUD environment variables. Explicit options
// are applied after the environment and take precedence.
func NewLinkConfigFromEnv(opts ...LinkOption) (*LinkConfig, error) {
	device := os.Getenv(EnvDevice)

	if baudStr := os.Getenv(EnvBaud); baudStr != "" {
		baud, err := strconv.Atoi(baudStr)
		if err != nil {
			return nil, fmt.Errorf("reader: invalid %s value %q: %w", EnvBaud, baudStr, err)
		}
		opts = append([]LinkOption{WithBaudRate(baud)}, opts...)
	}

	return NewLinkConfig(device, opts...)
}

// Device returns the configured device path.
func (cfg *LinkConfig) Device() string { return cfg.device }

// BaudRate returns the configured baud rate.
func (cfg *LinkConfig) BaudRate() int { return cfg.baudRate }

// SettleDelay returns the post-open settle delay.
func (cfg *LinkConfig) SettleDelay() time.Duration { return cfg.settleDelay }

// StatusProbe reports whether a status query is sent after the settle delay.
func (cfg *LinkConfig) StatusProbe() bool { return cfg.statusProbe }

// GetLogger returns the configured logger.
func (cfg *LinkConfig) GetLogger() logger.Logger { return cfg.logger }

// LinkOption is a functional option for configuring a LinkConfig.
type LinkOption interface {
	apply(*LinkConfig) error
}

type linkOptFunc func(*LinkConfig) error

func (f linkOptFunc) apply(cfg *LinkConfig) error { return f(cfg) }

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if baud <= 0 {
			return ErrInvalidBaud
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithSettleDelay sets the delay between opening the port and sending the
// first command. Zero disables the wait.
func WithSettleDelay(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if d < 0 {
			return errors.New("reader: settle delay must not be negative")
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithStatusProbe controls whether the link requests a status report after
// the settle delay. Disable it for devices that only push and take no
// commands.
func WithStatusProbe(enabled bool) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		cfg.statusProbe = enabled

		return nil
	})
}

// WithLinkLogger sets the logger for the link.
func WithLinkLogger(l logger.Logger) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if l == nil {
			return errors.New("reader: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
