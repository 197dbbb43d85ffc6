package modem

import (
	"time"

	"go.uber.org/zap"

	"i4.energy/across/espgw/at"
)

const (
	// DefaultBufferSize is the default capacity of the transmission buffer.
	DefaultBufferSize = 128
	// MinBufferSize is the smallest accepted transmission buffer. It holds
	// every fixed command text plus a handful of numeric arguments and CRLF.
	MinBufferSize = 64
	// DefaultPollInterval is the polling granularity of token waits.
	DefaultPollInterval = time.Millisecond
)

func (c *Config) validate() error {
	if c.transport == nil {
		return ErrNoTransport
	}
	if c.bufferSize < MinBufferSize {
		return ErrBufferTooSmall
	}
	return nil
}

// Config holds the settings of a Modem. Use NewConfigBuilder to create one.
type Config struct {
	transport    Transport
	clock        Clock
	logger       *zap.Logger
	pollInterval time.Duration
	bufferSize   int
	timeouts     map[at.CommandID]time.Duration
}

func (c *Config) setDefaults() {
	if c.clock == nil {
		c.clock = SystemClock()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.bufferSize == 0 {
		c.bufferSize = DefaultBufferSize
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with no transport set.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithTransport sets the byte stream the module is attached to. Required.
func (b *ConfigBuilder) WithTransport(t Transport) *ConfigBuilder {
	b.config.transport = t
	return b
}

// WithClock replaces the system clock, mostly useful in tests.
func (b *ConfigBuilder) WithClock(c Clock) *ConfigBuilder {
	b.config.clock = c
	return b
}

// WithLogger sets the logger used for protocol tracing.
func (b *ConfigBuilder) WithLogger(l *zap.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithPollInterval sets the sleep between two transport polls while
// waiting for a token.
func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.pollInterval = d
	return b
}

// WithBufferSize sets the transmission buffer capacity in bytes.
func (b *ConfigBuilder) WithBufferSize(n int) *ConfigBuilder {
	b.config.bufferSize = n
	return b
}

// WithTimeout overrides the catalog default timeout of one command.
func (b *ConfigBuilder) WithTimeout(id at.CommandID, d time.Duration) *ConfigBuilder {
	if b.config.timeouts == nil {
		b.config.timeouts = make(map[at.CommandID]time.Duration)
	}
	b.config.timeouts[id] = d
	return b
}

// Build applies defaults and validates the configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if b.config.timeouts != nil {
		c.timeouts = make(map[at.CommandID]time.Duration, len(b.config.timeouts))
		for id, d := range b.config.timeouts {
			c.timeouts[id] = d
		}
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
