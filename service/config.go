package service

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"memgate/access"
	"memgate/negotiate"
)

// BrokerSettings configures the shell-broker backend.
type BrokerSettings struct {
	// Shell is the broker argv prefix, e.g. ["su", "-c"] or a Shizuku-style
	// helper binary with its flags.
	Shell []string `yaml:"shell"`

	StagingDir   string `yaml:"staging_dir"`
	Timeout      string `yaml:"timeout"`
	PollInterval string `yaml:"poll_interval"`
}

// Config is the YAML-backed service configuration.
type Config struct {
	PreferredBackend string         `yaml:"preferred_backend"`
	MaxTransfer      uint32         `yaml:"max_transfer"`
	ProbeTimeout     string         `yaml:"probe_timeout"`
	Broker           BrokerSettings `yaml:"broker"`
}

func DefaultConfig() Config {
	return Config{
		PreferredBackend: string(access.BackendBroker),
		ProbeTimeout:     "5s",
		Broker: BrokerSettings{
			Shell:        []string{"su", "-c"},
			Timeout:      "10s",
			PollInterval: "50ms",
		},
	}
}

// LoadConfig reads a YAML config file, filling unset values from defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if _, err := cfg.probeTimeout(); err != nil {
		return cfg, err
	}
	if _, err := cfg.brokerTimeout(); err != nil {
		return cfg, err
	}
	if _, err := cfg.brokerPollInterval(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) preferred() access.BackendID {
	switch access.BackendID(c.PreferredBackend) {
	case access.BackendBroker, access.BackendPtrace, access.BackendDirect:
		return access.BackendID(c.PreferredBackend)
	}
	return access.BackendBroker
}

func (c Config) probeTimeout() (time.Duration, error) {
	return parseDuration("probe_timeout", c.ProbeTimeout, negotiate.DefaultProbeTimeout)
}

func (c Config) brokerTimeout() (time.Duration, error) {
	return parseDuration("broker.timeout", c.Broker.Timeout, 10*time.Second)
}

func (c Config) brokerPollInterval() (time.Duration, error) {
	return parseDuration("broker.poll_interval", c.Broker.PollInterval, 50*time.Millisecond)
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", field, err)
	}
	return d, nil
}
