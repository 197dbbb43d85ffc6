package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = ">"

	// Response Codes
	OK        = "OK\r\n"
	Ready     = "ready"
	Connected = "CONNECT\r\n\r\nOK\r\n"
	Closed    = "CLOSED"
	SendOK    = "SEND OK"
	GotIP     = "GOT IP"

	// Asynchronous inbound data, +IPD[,<link>],<len>:<payload>
	IPD = "+IPD"

	// Socket protocols accepted by AT+CIPSTART
	TCP = "TCP"
	UDP = "UDP"
)

// HTTP request literals used by the request composer.
const (
	HTTPVersion            = "HTTP/1.1"
	HTTPGet                = "GET"
	HTTPPost               = "POST"
	HeaderContentLength    = "Content-Length"
	HeaderContentType      = "Content-Type"
	ContentTypeFormEncoded = "application/x-www-form-urlencoded"
)
