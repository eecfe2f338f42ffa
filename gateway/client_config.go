package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/averlon/keygate/logger"
)

// Default timeout tiers for the client.
const (
	// DefaultStatusTimeout bounds status polls. Status sits on health-check
	// hot paths and must never stall callers.
	DefaultStatusTimeout = 3 * time.Second

	// DefaultScanTimeout bounds scan actions. A human must physically
	// present a token during the call, so this tier is deliberately long.
	DefaultScanTimeout = 20 * time.Second
)

// ClientConfig holds configuration for a gateway Client.
type ClientConfig struct {
	network       string // "unix" or "tcp"
	address       string
	statusTimeout time.Duration
	scanTimeout   time.Duration
	logger        logger.Logger
}

// NewClientConfig creates a client configuration for the given endpoint.
// network must be "unix" or "tcp"; address is the socket path or host:port.
// opts are functional options applied in order; see With* functions.
func NewClientConfig(network, address string, opts ...ClientOption) (*ClientConfig, error) {
	if network != "unix" && network != "tcp" {
		return nil, fmt.Errorf("gateway: unsupported network %q", network)
	}
	if address == "" {
		return nil, errors.New("gateway: address is empty")
	}

	cfg := &ClientConfig{
		network:       network,
		address:       address,
		statusTimeout: DefaultStatusTimeout,
		scanTimeout:   DefaultScanTimeout,
		logger:        logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Network returns the configured network ("unix" or "tcp").
func (cfg *ClientConfig) Network() string { return cfg.network }

// Address returns the configured endpoint address.
func (cfg *ClientConfig) Address() string { return cfg.address }

// StatusTimeout returns the short timeout tier used for status polls.
func (cfg *ClientConfig) StatusTimeout() time.Duration { return cfg.statusTimeout }

// ScanTimeout returns the long timeout tier used for scan actions.
func (cfg *ClientConfig) ScanTimeout() time.Duration { return cfg.scanTimeout }

// GetLogger returns the configured logger.
func (cfg *ClientConfig) GetLogger() logger.Logger { return cfg.logger }

// ClientOption is a functional option for configuring a ClientConfig.
type ClientOption interface {
	apply(*ClientConfig) error
}

type clientOptFunc func(*ClientConfig) error

func (f clientOptFunc) apply(cfg *ClientConfig) error { return f(cfg) }

// WithStatusTimeout sets the short timeout tier for status polls.
func WithStatusTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d <= 0 {
			return errors.New("gateway: status timeout must be positive")
		}
		cfg.statusTimeout = d

		return nil
	})
}

// WithScanTimeout sets the long timeout tier for scan actions.
func WithScanTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d <= 0 {
			return errors.New("gateway: scan timeout must be positive")
		}
		cfg.scanTimeout = d

		return nil
	})
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(l logger.Logger) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if l == nil {
			return errors.New("gateway: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
