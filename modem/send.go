package modem

import (
	"fmt"

	"go.uber.org/zap"

	"i4.energy/across/espgw/at"
)

// Send transmits data over an open connection (AT+CIPSEND).
//
// The exchange has three phases that share one timeout budget: the send
// request is acknowledged with OK, the module shows its '>' prompt, then
// the payload is written and SEND OK awaited. Each phase only gets what
// the previous ones left over. Empty data fails with ErrEmptyData before
// anything is written.
func (m *Modem) Send(link LinkID, data []byte, opts ...CallOption) error {
	return m.send(at.Send, link, data, opts)
}

func (m *Modem) send(id at.CommandID, link LinkID, data []byte, opts []CallOption) error {
	cmd := at.Lookup(id)
	if len(data) == 0 {
		return fmt.Errorf("%s: %w", cmd.ID, ErrEmptyData)
	}
	if link != LinkNone && !link.socket() {
		return ErrInvalidLink
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	budget := m.budget(cmd, opts)
	start := m.clock.Millis()
	remaining := func() (uint32, error) {
		elapsed := m.clock.Millis() - start
		if elapsed >= budget {
			return 0, ErrTimeout
		}
		return budget - elapsed, nil
	}

	if err := m.writeLine(cmd.Text, withLink(link, len(data))...); err != nil {
		return fmt.Errorf("%s: %w", cmd.ID, err)
	}
	if err := m.await(at.OK, budget); err != nil {
		return m.sendFailed(cmd, "request", err)
	}

	left, err := remaining()
	if err != nil {
		return m.sendFailed(cmd, "prompt", err)
	}
	if err := m.await(at.Prompt, left); err != nil {
		return m.sendFailed(cmd, "prompt", err)
	}

	if _, err := m.transport.Write(data); err != nil {
		return fmt.Errorf("%s: write payload: %w", cmd.ID, err)
	}

	left, err = remaining()
	if err != nil {
		return m.sendFailed(cmd, "confirm", err)
	}
	if err := m.await(cmd.Token, left); err != nil {
		return m.sendFailed(cmd, "confirm", err)
	}

	m.logger.Debug("payload sent",
		zap.Stringer("command", cmd.ID),
		zap.Stringer("link", link),
		zap.Int("bytes", len(data)),
		zap.Uint32("elapsed_ms", m.clock.Millis()-start),
	)
	return nil
}

func (m *Modem) sendFailed(cmd at.Command, phase string, err error) error {
	m.logger.Debug("send handshake failed",
		zap.Stringer("command", cmd.ID),
		zap.String("phase", phase),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %s: %w", cmd.ID, phase, err)
}
