package main

import (
	"fmt"

	"go.uber.org/zap"

	"i4.energy/across/espgw/modem"
)

// BringUp prepares the module for the gateway: optional reset, echo off,
// WiFi mode, optional multiplexing and, when an SSID is configured, joining
// the access point. It stops at the first failing step.
func BringUp(m *modem.Modem, cfg WiFiConfig, logger *zap.Logger) error {
	type step struct {
		name string
		run  func() error
	}

	var steps []step
	if cfg.Reset {
		steps = append(steps, step{"reset", func() error { return m.Reset() }})
	}
	steps = append(steps,
		step{"echo off", func() error { return m.EchoOff() }},
		step{"wifi mode", func() error { return m.SetWiFiMode(modem.WiFiMode(cfg.Mode)) }},
	)
	if cfg.Multiplex {
		steps = append(steps, step{"multiplex", func() error { return m.SetMultiplex(true) }})
	}
	if cfg.SSID != "" {
		steps = append(steps, step{"join " + cfg.SSID, func() error { return m.JoinAP(cfg.SSID, cfg.Password) }})
	}

	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("bring-up %s: %w", s.name, err)
		}
		logger.Info("Bring-up step done", zap.String("step", s.name))
	}

	// leftovers from the reset banner would confuse the first +IPD poll
	if n := m.ClearBuffer(); n > 0 {
		logger.Debug("Discarded pending module output", zap.Int("bytes", n))
	}
	return nil
}
