package modem_test

import (
	"i4.energy/across/espgw/modem"
)

// MockSequenceBuilder scripts the transport calls of successful commands:
// the command line write followed by a single successful token scan.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

func (b *MockSequenceBuilder) command(line, token string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(line)).Return(len(line), nil),
		b.transport.EXPECT().Available().Return(len(token)),
		b.transport.EXPECT().Find(token).Return(true),
	)
	return b
}

func (b *MockSequenceBuilder) Reset() *MockSequenceBuilder {
	return b.command("AT+RST\r\n", "ready")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.command("ATE0\r\n", "OK\r\n")
}

func (b *MockSequenceBuilder) StationMode() *MockSequenceBuilder {
	return b.command("AT+CWMODE=1\r\n", "OK\r\n")
}

func (b *MockSequenceBuilder) Join(ssid, password string) *MockSequenceBuilder {
	return b.command(`AT+CWJAP="`+ssid+`","`+password+`"`+"\r\n", "OK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
