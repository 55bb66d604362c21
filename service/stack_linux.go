//go:build linux

package service

import (
	"memgate/backend_broker"
	"memgate/backend_direct"
	"memgate/backend_ptrace"
	"memgate/negotiate"
)

// NewStack wires the three privilege backends behind a fresh negotiator and
// returns the façade, ready for use. Callers own the service and must Close
// it.
func NewStack(cfg Config) (*Service, error) {
	probeTimeout, err := cfg.probeTimeout()
	if err != nil {
		return nil, err
	}
	brokerTimeout, err := cfg.brokerTimeout()
	if err != nil {
		return nil, err
	}
	pollInterval, err := cfg.brokerPollInterval()
	if err != nil {
		return nil, err
	}

	broker := backend_broker.New(backend_broker.Config{
		Shell:        cfg.Broker.Shell,
		StagingDir:   cfg.Broker.StagingDir,
		Timeout:      brokerTimeout,
		PollInterval: pollInterval,
	})

	neg := negotiate.New(probeTimeout,
		broker,
		backend_ptrace.New(),
		backend_direct.New(),
	)

	return New(neg, Options{
		Preferred:   cfg.preferred(),
		MaxTransfer: cfg.MaxTransfer,
	}), nil
}
