package modem

//go:generate mockgen -source=transport.go -destination=mock_transport.go -package=modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport is the byte stream the modem is attached to.
//
// Available and Find never block for longer than the underlying port read
// timeout, and Available does not block at all while bytes are buffered. Find scans everything currently buffered; when the token is
// found the stream is consumed up to and including it, otherwise the
// buffered bytes are kept so that a token split across reads can still
// be matched on a later call.
type Transport interface {
	Write(p []byte) (int, error)
	Available() int
	Find(token string) bool
	ReadByte() (byte, error)
}

// Port is an open, bidirectional connection to the module, typically a
// serial port.
type Port interface {
	io.ReadWriteCloser
}

// Dialer opens a Port to the module.
//
// The returned Port is owned by the caller. A Modem never closes it.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Port. It
	// should respect cancellation of the provided context.
	Dial(ctx context.Context) (Port, error)
}

// DefaultBaudRate is the factory UART speed of the ESP8266 AT firmware.
const DefaultBaudRate = 115200

// DefaultReadTimeout bounds a single read from the serial port, so that
// Available and Find return promptly when the module is silent.
const DefaultReadTimeout = 10 * time.Millisecond

// SerialDialer opens the module over a serial port using go.bug.st/serial.
type SerialDialer struct {
	PortName    string
	BaudRate    int
	Mode        *serial.Mode
	ReadTimeout time.Duration
}

// Dial opens the configured serial port. When Mode is nil, 8N1 at BaudRate
// (or DefaultBaudRate) is used.
func (d SerialDialer) Dial(ctx context.Context) (Port, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("modem: open %s: %w", d.PortName, err)
	}

	timeout := d.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("modem: set read timeout: %w", err)
	}
	return port, nil
}

// DefaultStreamLimit caps how many unconsumed bytes a BufferedTransport
// keeps. It comfortably holds one maximum size +IPD frame plus its header.
const DefaultStreamLimit = 4096

// BufferedTransport implements Transport on top of a port whose reads return
// (0, nil) when no data arrived within the read timeout, which is how
// go.bug.st/serial behaves.
type BufferedTransport struct {
	port  io.ReadWriter
	buf   []byte
	chunk []byte
	limit int
	err   error
}

// NewBufferedTransport wraps port. A limit <= 0 selects DefaultStreamLimit;
// when more than limit bytes are pending the oldest are discarded.
func NewBufferedTransport(port io.ReadWriter, limit int) *BufferedTransport {
	if limit <= 0 {
		limit = DefaultStreamLimit
	}
	return &BufferedTransport{
		port:  port,
		chunk: make([]byte, 256),
		limit: limit,
	}
}

// Write forwards p to the port.
func (t *BufferedTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

// Available returns the number of buffered bytes. The port is only read
// when nothing is buffered, so counting never waits on an idle port while
// data is pending.
func (t *BufferedTransport) Available() int {
	if len(t.buf) == 0 {
		t.fill()
	}
	return len(t.buf)
}

// Find reports whether token occurs in the buffered stream, pulling one
// more read from the port when it does not. On success the stream is
// consumed through the end of the token.
func (t *BufferedTransport) Find(token string) bool {
	if t.find(token) {
		return true
	}
	t.fill()
	return t.find(token)
}

func (t *BufferedTransport) find(token string) bool {
	i := bytes.Index(t.buf, []byte(token))
	if i < 0 {
		return false
	}
	t.consume(i + len(token))
	return true
}

// ReadByte returns the next buffered byte, or the last port error (io.EOF
// when the port has none) if the stream is empty.
func (t *BufferedTransport) ReadByte() (byte, error) {
	if len(t.buf) == 0 {
		t.fill()
	}
	if len(t.buf) == 0 {
		if t.err != nil {
			return 0, t.err
		}
		return 0, io.EOF
	}
	c := t.buf[0]
	t.consume(1)
	return c, nil
}

// Err returns the error that stopped reads from the port, if any.
func (t *BufferedTransport) Err() error {
	return t.err
}

func (t *BufferedTransport) fill() {
	if t.err != nil {
		return
	}
	n, err := t.port.Read(t.chunk)
	if n > 0 {
		t.buf = append(t.buf, t.chunk[:n]...)
		if over := len(t.buf) - t.limit; over > 0 {
			t.consume(over)
		}
	}
	if err != nil {
		t.err = err
	}
}

func (t *BufferedTransport) consume(n int) {
	rest := copy(t.buf, t.buf[n:])
	t.buf = t.buf[:rest]
}
