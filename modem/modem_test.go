package modem_test

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/espgw/modem"
)

func newTestModem(t *testing.T, start uint32) (*modem.Modem, *modem.TestTransport, *modem.TestClock) {
	t.Helper()
	clock := modem.NewTestClock(start)
	transport := modem.NewTestTransport(clock)
	config, err := modem.NewConfigBuilder().
		WithTransport(transport).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	m, err := modem.New(config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	return m, transport, clock
}

func TestModemNew(t *testing.T) {
	t.Run("ErrNoTransport on empty config", func(t *testing.T) {
		m, err := modem.New(modem.Config{})
		if !errors.Is(err, modem.ErrNoTransport) {
			t.Errorf("expected ErrNoTransport from New(), got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when no transport provided")
		}
	})

	t.Run("No I/O on construction", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		config, err := modem.NewConfigBuilder().
			WithTransport(modem.NewMockTransport(ctrl)).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		if _, err := modem.New(config); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

var operations = []struct {
	name    string
	call    func(m *modem.Modem) error
	line    string
	reply   string
	timeout time.Duration
}{
	{
		name:    "Probe",
		call:    func(m *modem.Modem) error { return m.Probe() },
		line:    "AT\r\n",
		reply:   "\r\nOK\r\n",
		timeout: 500 * time.Millisecond,
	},
	{
		name:    "EchoOff",
		call:    func(m *modem.Modem) error { return m.EchoOff() },
		line:    "ATE0\r\n",
		reply:   "ATE0\r\n\r\nOK\r\n",
		timeout: 500 * time.Millisecond,
	},
	{
		name:    "EchoOn",
		call:    func(m *modem.Modem) error { return m.EchoOn() },
		line:    "ATE1\r\n",
		reply:   "\r\nOK\r\n",
		timeout: 500 * time.Millisecond,
	},
	{
		name:    "Reset",
		call:    func(m *modem.Modem) error { return m.Reset() },
		line:    "AT+RST\r\n",
		reply:   "\r\nOK\r\n ets Jan  8 2013,rst cause:2\r\n\r\nready\r\n",
		timeout: 2 * time.Second,
	},
	{
		name:    "SetWiFiMode",
		call:    func(m *modem.Modem) error { return m.SetWiFiMode(modem.ModeStation) },
		line:    "AT+CWMODE=1\r\n",
		reply:   "\r\nOK\r\n",
		timeout: 500 * time.Millisecond,
	},
	{
		name: "ConfigureAP",
		call: func(m *modem.Modem) error {
			return m.ConfigureAP("esp", "secret123", modem.DefaultChannel, modem.EncryptionWPA2PSK)
		},
		line:    "AT+CWSAP=\"esp\",\"secret123\",5,3\r\n",
		reply:   "\r\nOK\r\n",
		timeout: 2 * time.Second,
	},
	{
		name:    "JoinAP",
		call:    func(m *modem.Modem) error { return m.JoinAP("home", "pw") },
		line:    "AT+CWJAP=\"home\",\"pw\"\r\n",
		reply:   "WIFI CONNECTED\r\nWIFI GOT IP\r\n\r\nOK\r\n",
		timeout: 15 * time.Second,
	},
	{
		name:    "StartTCP",
		call:    func(m *modem.Modem) error { return m.StartTCP(modem.LinkNone, "example.com", 80) },
		line:    "AT+CIPSTART=\"TCP\",\"example.com\",80\r\n",
		reply:   "CONNECT\r\n\r\nOK\r\n",
		timeout: 5 * time.Second,
	},
	{
		name:    "StartTCP multiplexed",
		call:    func(m *modem.Modem) error { return m.StartTCP(modem.Link2, "10.0.0.1", 8080) },
		line:    "AT+CIPSTART=2,\"TCP\",\"10.0.0.1\",8080\r\n",
		reply:   "2,CONNECT\r\n\r\nOK\r\n",
		timeout: 5 * time.Second,
	},
	{
		name: "StartUDP",
		call: func(m *modem.Modem) error {
			return m.StartUDP(modem.LinkNone, "10.0.0.2", 5000, modem.DefaultUDPLocalPort, modem.UDPDestinationDynamic)
		},
		line:    "AT+CIPSTART=\"UDP\",\"10.0.0.2\",5000,1025,2\r\n",
		reply:   "CONNECT\r\n\r\nOK\r\n",
		timeout: 5 * time.Second,
	},
	{
		name:    "Close",
		call:    func(m *modem.Modem) error { return m.Close(modem.LinkNone) },
		line:    "AT+CIPCLOSE\r\n",
		reply:   "CLOSED\r\n\r\nOK\r\n",
		timeout: time.Second,
	},
	{
		name:    "Close all",
		call:    func(m *modem.Modem) error { return m.Close(modem.LinkAll) },
		line:    "AT+CIPCLOSE=5\r\n",
		reply:   "0,CLOSED\r\n1,CLOSED\r\n\r\nOK\r\n",
		timeout: time.Second,
	},
	{
		name:    "SetMultiplex",
		call:    func(m *modem.Modem) error { return m.SetMultiplex(true) },
		line:    "AT+CIPMUX=1\r\n",
		reply:   "\r\nOK\r\n",
		timeout: 500 * time.Millisecond,
	},
}

func TestOperationsSucceedOnToken(t *testing.T) {
	for _, op := range operations {
		t.Run(op.name, func(t *testing.T) {
			m, transport, clock := newTestModem(t, 0)
			delay := op.timeout / 2
			transport.Reply(op.line, modem.After(delay, op.reply))

			if err := op.call(m); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := transport.Writes(); !slices.Equal(got, []string{op.line}) {
				t.Errorf("expected single write %q, got %q", op.line, got)
			}
			if got := time.Duration(clock.Millis()) * time.Millisecond; got != delay {
				t.Errorf("expected success as soon as the token arrived (%v), got %v", delay, got)
			}
		})
	}
}

func TestOperationsTimeOut(t *testing.T) {
	for _, op := range operations {
		t.Run(op.name, func(t *testing.T) {
			m, transport, clock := newTestModem(t, 0)
			// Module is talking, but never produces the expected token.
			transport.Reply(op.line, modem.After(0, "\r\nbusy p...\r\n"))

			err := op.call(m)
			if !errors.Is(err, modem.ErrTimeout) {
				t.Fatalf("expected ErrTimeout, got: %v", err)
			}
			elapsed := time.Duration(clock.Millis()) * time.Millisecond
			if elapsed < op.timeout || elapsed > op.timeout+modem.DefaultPollInterval {
				t.Errorf("expected timeout within [%v, %v], got %v", op.timeout, op.timeout+modem.DefaultPollInterval, elapsed)
			}
		})
	}
}

func TestResetIgnoresPlainOK(t *testing.T) {
	m, transport, _ := newTestModem(t, 0)
	transport.Reply("AT+RST", modem.After(10*time.Millisecond, "\r\nOK\r\n"))

	if err := m.Reset(); !errors.Is(err, modem.ErrTimeout) {
		t.Errorf("expected reset to wait for the ready banner, got: %v", err)
	}
}

func TestPerCallTimeout(t *testing.T) {
	m, _, clock := newTestModem(t, 0)

	err := m.JoinAP("home", "pw", modem.WithTimeout(120*time.Millisecond))
	if !errors.Is(err, modem.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got: %v", err)
	}
	if got := clock.Millis(); got != 120 {
		t.Errorf("expected 120ms wait, got %dms", got)
	}
}

func TestTimeoutAcrossCounterRollover(t *testing.T) {
	t.Run("Token found after wrap", func(t *testing.T) {
		m, transport, clock := newTestModem(t, math.MaxUint32-100)
		transport.Reply("AT\r\n", modem.After(300*time.Millisecond, "OK\r\n"))

		if err := m.Probe(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := clock.Millis(); got != 199 {
			t.Errorf("expected counter to have wrapped to 199, got %d", got)
		}
	})

	t.Run("Timeout measured modulo 2^32", func(t *testing.T) {
		start := uint32(math.MaxUint32 - 100)
		m, _, clock := newTestModem(t, start)

		if err := m.Probe(); !errors.Is(err, modem.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}
		if elapsed := clock.Millis() - start; elapsed != 500 {
			t.Errorf("expected 500ms elapsed across rollover, got %d", elapsed)
		}
	})
}

func TestCommandTooLong(t *testing.T) {
	m, transport, _ := newTestModem(t, 0)

	err := m.JoinAP(strings.Repeat("s", 200), "pw")
	if !errors.Is(err, modem.ErrCommandTooLong) {
		t.Fatalf("expected ErrCommandTooLong, got: %v", err)
	}
	if len(transport.Writes()) != 0 {
		t.Error("nothing should be written when the line does not fit")
	}
}

func TestWriteError(t *testing.T) {
	m, transport, _ := newTestModem(t, 0)
	writeErr := errors.New("port gone")
	transport.WriteErr = writeErr

	if err := m.Probe(); !errors.Is(err, writeErr) {
		t.Errorf("expected write error to be wrapped, got: %v", err)
	}
}

func TestInvalidLink(t *testing.T) {
	m, transport, _ := newTestModem(t, 0)

	if err := m.StartTCP(modem.LinkAll, "example.com", 80); !errors.Is(err, modem.ErrInvalidLink) {
		t.Errorf("expected ErrInvalidLink for StartTCP, got: %v", err)
	}
	if err := m.Close(modem.LinkID(9)); !errors.Is(err, modem.ErrInvalidLink) {
		t.Errorf("expected ErrInvalidLink for Close, got: %v", err)
	}
	if len(transport.Writes()) != 0 {
		t.Error("invalid links must be rejected before any write")
	}
}

func TestClearBuffer(t *testing.T) {
	m, transport, _ := newTestModem(t, 0)
	transport.Feed("garbage")

	if n := m.ClearBuffer(); n != 7 {
		t.Errorf("expected 7 bytes cleared, got %d", n)
	}
	if n := transport.Buffered(); n != 0 {
		t.Errorf("expected empty buffer, %d bytes left", n)
	}
}

func TestBringUpSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := modem.NewMockTransport(ctrl)
	gomock.InOrder(NewMockSequence(mockTransport).
		Reset().
		EchoOff().
		StationMode().
		Join("home", "pw").
		Build()...)

	config, err := modem.NewConfigBuilder().
		WithTransport(mockTransport).
		WithClock(modem.NewTestClock(0)).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	m, err := modem.New(config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}

	for _, step := range []func() error{
		func() error { return m.Reset() },
		func() error { return m.EchoOff() },
		func() error { return m.SetWiFiMode(modem.ModeStation) },
		func() error { return m.JoinAP("home", "pw") },
	} {
		if err := step(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestSilentModuleIsPolledUntilDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := modem.NewMockTransport(ctrl)
	mockTransport.EXPECT().Write([]byte("AT\r\n")).Return(4, nil)
	// Nothing buffered: Find must never be called.
	mockTransport.EXPECT().Available().Return(0).Times(10)

	config, err := modem.NewConfigBuilder().
		WithTransport(mockTransport).
		WithClock(modem.NewTestClock(0)).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	m, _ := modem.New(config)

	if err := m.Probe(modem.WithTimeout(10 * time.Millisecond)); !errors.Is(err, modem.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got: %v", err)
	}
}
