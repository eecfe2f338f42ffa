package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/averlon/keygate/reader"
)

// duration is a time.Duration that unmarshals from YAML strings like "15s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = duration(parsed)

	return nil
}

type gatewayConfig struct {
	Network string `yaml:"network"` // "unix" or "tcp"
	Address string `yaml:"address"`
}

type config struct {
	Device            string        `yaml:"device"`
	Baud              int           `yaml:"baud"`
	Listen            string        `yaml:"listen"`
	HeartbeatTimeout  duration      `yaml:"heartbeat_timeout"`
	HeartbeatInterval duration      `yaml:"heartbeat_interval"`
	ReconnectDelay    duration      `yaml:"reconnect_delay"`
	ShutdownGrace     duration      `yaml:"shutdown_grace"`
	Gateway           gatewayConfig `yaml:"gateway"`
}

// loadConfig reads the YAML config file (optional) and applies environment
// overrides. KEYGATE_DEVICE and KEYGATE_BAUD always win over the file.
func loadConfig(path string) (*config, error) {
	cfg := &config{
		Listen: ":8080",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if dev := os.Getenv(reader.EnvDevice); dev != "" {
		cfg.Device = dev
	}

	if baudStr := os.Getenv(reader.EnvBaud); baudStr != "" {
		baud, err := strconv.Atoi(baudStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", reader.EnvBaud, baudStr, err)
		}
		cfg.Baud = baud
	}

	if cfg.Device == "" {
		return nil, fmt.Errorf("no reader device configured (set device in config or %s)", reader.EnvDevice)
	}

	return cfg, nil
}
