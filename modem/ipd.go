package modem

import (
	"io"
	"time"

	"go.uber.org/zap"

	"i4.energy/across/espgw/at"
)

const (
	// MaxFrameLength is the largest payload the module announces in a
	// single +IPD notification.
	MaxFrameLength = 2048

	// minFrameBytes is the size of the shortest notification, "+IPD,x:y".
	minFrameBytes = 8
)

// Frame describes an inbound data notification decoded by Receive.
type Frame struct {
	// Length is the payload length announced by the module.
	Length int
	// Link is the originating connection, LinkNone in single connection mode.
	Link LinkID
}

// Receive polls for one inbound data frame, +IPD[,<link>],<len>:<payload>,
// and copies its payload into dst followed by a zero byte.
//
// The Modem does not listen in the background: Receive first sleeps for
// wait plus one millisecond so a pending notification can accumulate, then
// inspects the buffered stream. ErrEmptyData means fewer than 8 bytes were
// buffered (nothing is consumed) or no +IPD marker was present;
// ErrEmptyStream means the stream ended before the ':' that closes the
// header, ErrInvalidLink that the link field is outside 0..4.
//
// The announced length is not checked against the bytes actually buffered.
// If the stream runs dry, the missing positions of dst are left untouched
// and Length still reports the announced value. The payload of a frame
// rejected with ErrFrameTooLong or io.ErrShortBuffer is discarded.
func (m *Modem) Receive(dst []byte, wait time.Duration) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame := Frame{Link: LinkNone}
	m.clock.Sleep(wait + time.Millisecond)

	if m.transport.Available() < minFrameBytes {
		return frame, ErrEmptyData
	}
	if !m.transport.Find(at.IPD) {
		return frame, ErrEmptyData
	}
	// separator after the marker
	if m.transport.Available() == 0 {
		return frame, ErrEmptyStream
	}
	if _, err := m.transport.ReadByte(); err != nil {
		return frame, ErrEmptyStream
	}

	n := 0
	terminated := false
	for m.transport.Available() > 0 {
		c, err := m.transport.ReadByte()
		if err != nil {
			break
		}
		if c == ':' {
			terminated = true
			break
		}
		if c == ',' {
			// a second field means the digits so far were the link id
			if frame.Link != LinkNone || n >= MaxLinks {
				return Frame{Link: LinkNone}, ErrInvalidLink
			}
			frame.Link = LinkID(n)
			n = 0
			continue
		}
		if c < '0' || c > '9' {
			continue
		}
		if n <= MaxFrameLength {
			n = n*10 + int(c-'0')
		}
	}
	if !terminated {
		return frame, ErrEmptyStream
	}
	if n > MaxFrameLength {
		m.discard(n)
		return frame, ErrFrameTooLong
	}
	if len(dst) < n+1 {
		m.discard(n)
		return frame, io.ErrShortBuffer
	}

	// Positions past the end of a dry stream stay untouched.
	for i := 0; i < n && m.transport.Available() > 0; i++ {
		c, err := m.transport.ReadByte()
		if err != nil {
			break
		}
		dst[i] = c
	}
	dst[n] = 0
	frame.Length = n

	m.logger.Debug("frame received",
		zap.Stringer("link", frame.Link),
		zap.Int("length", n),
	)
	return frame, nil
}

// discard drops up to n pending payload bytes of a rejected frame so that
// they cannot be mistaken for reply tokens later.
func (m *Modem) discard(n int) {
	for i := 0; i < n && m.transport.Available() > 0; i++ {
		if _, err := m.transport.ReadByte(); err != nil {
			return
		}
	}
}
