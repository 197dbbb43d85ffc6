package modem

import "errors"

var (
	// ErrTimeout is returned when the expected response token was not seen
	// on the transport before the operation's budget ran out.
	//
	// The module may be unreachable, misconfigured or simply slow. No retry
	// is attempted; retrying is up to the caller.
	ErrTimeout = errors.New("timeout waiting for response")

	// ErrEmptyData is returned when there is nothing to send, or when a
	// receive poll found no +IPD marker in the buffered stream.
	ErrEmptyData = errors.New("empty data")

	// ErrEmptyStream is returned when a +IPD marker was found but the stream
	// ended before the length field could be read.
	ErrEmptyStream = errors.New("empty stream")

	// ErrNoTransport is returned when a Modem is constructed without a
	// Transport.
	ErrNoTransport = errors.New("no transport configured")

	// ErrBufferTooSmall is returned by ConfigBuilder.Build when the requested
	// transmission buffer cannot hold the longest fixed command line.
	ErrBufferTooSmall = errors.New("transmission buffer too small")

	// ErrCommandTooLong is returned when a command line, arguments included,
	// does not fit into the transmission buffer. Nothing is written.
	ErrCommandTooLong = errors.New("command line exceeds transmission buffer")

	// ErrFrameTooLong is returned when an inbound frame declares a payload
	// longer than MaxFrameLength.
	ErrFrameTooLong = errors.New("declared frame length out of range")

	// ErrInvalidLink is returned when a link identifier is not valid for the
	// requested operation, for example LinkAll on a send.
	ErrInvalidLink = errors.New("invalid link identifier")
)
