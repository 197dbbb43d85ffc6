package modem

import (
	"i4.energy/across/espgw/at"
)

// Probe sends a bare AT and waits for OK.
func (m *Modem) Probe(opts ...CallOption) error {
	return m.exec(at.Probe, opts)
}

// EchoOff disables command echo (ATE0).
func (m *Modem) EchoOff(opts ...CallOption) error {
	return m.exec(at.EchoOff, opts)
}

// EchoOn enables command echo (ATE1).
func (m *Modem) EchoOn(opts ...CallOption) error {
	return m.exec(at.EchoOn, opts)
}

// Reset restarts the module (AT+RST) and waits for its ready banner.
func (m *Modem) Reset(opts ...CallOption) error {
	return m.exec(at.Reset, opts)
}

// SetWiFiMode selects station, access point or combined operation.
func (m *Modem) SetWiFiMode(mode WiFiMode, opts ...CallOption) error {
	return m.exec(at.SetMode, opts, uint8(mode))
}

// ConfigureAP sets up the soft access point (AT+CWSAP). It only takes
// effect when the module runs in ModeAP or ModeAPSTA.
func (m *Modem) ConfigureAP(ssid, password string, channel Channel, enc Encryption, opts ...CallOption) error {
	return m.exec(at.ConfigureAP, opts, ssid, password, uint8(channel), uint8(enc))
}

// JoinAP connects the station interface to an access point (AT+CWJAP).
func (m *Modem) JoinAP(ssid, password string, opts ...CallOption) error {
	return m.exec(at.JoinAP, opts, ssid, password)
}

// StartTCP opens a TCP connection and waits for the CONNECT banner. link
// must be LinkNone unless multiplexing is enabled.
func (m *Modem) StartTCP(link LinkID, host string, port uint16, opts ...CallOption) error {
	if link != LinkNone && !link.socket() {
		return ErrInvalidLink
	}
	return m.exec(at.StartTCP, opts, withLink(link, at.TCP, host, port)...)
}

// StartUDP opens a UDP socket bound to localPort.
func (m *Modem) StartUDP(link LinkID, host string, remotePort, localPort uint16, mode UDPMode, opts ...CallOption) error {
	if link != LinkNone && !link.socket() {
		return ErrInvalidLink
	}
	return m.exec(at.StartUDP, opts, withLink(link, at.UDP, host, remotePort, localPort, uint8(mode))...)
}

// Close closes a connection and waits for the CLOSED confirmation. With
// LinkNone the id argument is omitted (single connection mode); LinkAll
// closes every connection in multiplexed mode.
func (m *Modem) Close(link LinkID, opts ...CallOption) error {
	if link != LinkNone && link != LinkAll && !link.socket() {
		return ErrInvalidLink
	}
	if link == LinkNone {
		return m.exec(at.Close, opts)
	}
	return m.exec(at.Close, opts, int(link))
}

// SetMultiplex switches between single (false) and multiple (true)
// connection mode (AT+CIPMUX).
func (m *Modem) SetMultiplex(enabled bool, opts ...CallOption) error {
	mux := 0
	if enabled {
		mux = 1
	}
	return m.exec(at.Multiplex, opts, mux)
}

// withLink prepends the link id argument in multiplexed mode.
func withLink(link LinkID, args ...any) []any {
	if link == LinkNone {
		return args
	}
	return append([]any{int(link)}, args...)
}
