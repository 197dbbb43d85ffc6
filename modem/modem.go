package modem

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"i4.energy/across/espgw/at"
)

// Modem drives an ESP8266 WiFi module through its AT command set.
//
// Every operation writes one command line, then busy-polls the transport
// until the operation's success token appears or its timeout expires. The
// protocol is half-duplex: operations on one Modem are serialized, and the
// transmission buffer is reused by each of them.
type Modem struct {
	mu sync.Mutex
	// transport is the caller owned byte stream to the module
	transport Transport
	clock     Clock
	logger    *zap.Logger
	// poll is the sleep between two transport polls
	poll time.Duration
	// buf stages command lines; its capacity is the longest line accepted
	buf      []byte
	timeouts map[at.CommandID]time.Duration
}

// New creates a Modem on top of the transport held by config. No I/O is
// performed; use Probe to check that the module answers.
func New(config Config) (*Modem, error) {
	if config.transport == nil {
		return nil, ErrNoTransport
	}
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Modem{
		transport: config.transport,
		clock:     config.clock,
		logger:    config.logger,
		poll:      config.pollInterval,
		buf:       make([]byte, 0, config.bufferSize),
		timeouts:  config.timeouts,
	}, nil
}

// CallOption adjusts a single operation.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the operation's timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// budget resolves the timeout of cmd: per call option, then the configured
// override, then the catalog default.
func (m *Modem) budget(cmd at.Command, opts []CallOption) uint32 {
	o := callOptions{timeout: cmd.Timeout}
	if d, ok := m.timeouts[cmd.ID]; ok {
		o.timeout = d
	}
	for _, opt := range opts {
		opt(&o)
	}
	return millis(o.timeout)
}

// exec writes the command line for id and waits for its success token.
func (m *Modem) exec(id at.CommandID, opts []CallOption, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := at.Lookup(id)
	budget := m.budget(cmd, opts)

	if err := m.writeLine(cmd.Text, args...); err != nil {
		return fmt.Errorf("%s: %w", cmd.ID, err)
	}
	if err := m.await(cmd.Token, budget); err != nil {
		m.logger.Debug("command failed",
			zap.Stringer("command", cmd.ID),
			zap.Uint32("timeout_ms", budget),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", cmd.ID, err)
	}
	m.logger.Debug("command succeeded", zap.Stringer("command", cmd.ID))
	return nil
}

// writeLine stages a command line in the transmission buffer and writes it.
func (m *Modem) writeLine(text string, args ...any) error {
	line, err := at.AppendLine(m.buf[:0], text, args...)
	if err != nil {
		return err
	}
	if len(line) > cap(m.buf) {
		return ErrCommandTooLong
	}

	m.logger.Debug("write command",
		zap.String("command", text),
		zap.Int("bytes", len(line)),
	)
	if _, err := m.transport.Write(line); err != nil {
		return fmt.Errorf("write command %q: %w", text, err)
	}
	return nil
}

// await busy-polls the transport until token is found or budget
// milliseconds have elapsed since the call.
func (m *Modem) await(token string, budget uint32) error {
	start := m.clock.Millis()
	for m.clock.Millis()-start < budget {
		if m.transport.Available() > 0 && m.transport.Find(token) {
			return nil
		}
		m.clock.Sleep(m.poll)
	}
	return ErrTimeout
}

// ClearBuffer discards every byte currently buffered on the transport and
// returns how many were dropped.
func (m *Modem) ClearBuffer() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for m.transport.Available() > 0 {
		if _, err := m.transport.ReadByte(); err != nil {
			break
		}
		n++
	}
	if n > 0 {
		m.logger.Debug("cleared receive buffer", zap.Int("bytes", n))
	}
	return n
}
