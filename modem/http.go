package modem

import (
	"fmt"
	"strconv"

	"i4.energy/across/espgw/at"
)

// HTTPGetRequest composes a bare GET request for path followed by query
// (which, if present, should start with '?'):
//
//	GET <path><query> HTTP/1.1\r\n
//	\r\n
func HTTPGetRequest(path, query string) []byte {
	b := make([]byte, 0, len(at.HTTPGet)+len(path)+len(query)+len(at.HTTPVersion)+6)
	b = append(b, at.HTTPGet...)
	b = append(b, ' ')
	b = append(b, path...)
	b = append(b, query...)
	b = append(b, ' ')
	b = append(b, at.HTTPVersion...)
	b = append(b, at.CRLF...)
	return append(b, at.CRLF...)
}

// HTTPPostRequest composes a form encoded POST request:
//
//	POST <path> HTTP/1.1\r\n
//	Content-Length: <len(body)>\r\n
//	Content-Type: application/x-www-form-urlencoded\r\n
//	\r\n
//	<body>
//
// The module needs the exact byte count before the request is written, so
// callers declare len of the returned slice, which already accounts for the
// decimal width of the Content-Length value.
func HTTPPostRequest(path string, body []byte) []byte {
	length := strconv.Itoa(len(body))
	b := make([]byte, 0, 96+len(path)+len(length)+len(body))
	b = append(b, at.HTTPPost...)
	b = append(b, ' ')
	b = append(b, path...)
	b = append(b, ' ')
	b = append(b, at.HTTPVersion...)
	b = append(b, at.CRLF...)
	b = append(b, at.HeaderContentLength...)
	b = append(b, ": "...)
	b = append(b, length...)
	b = append(b, at.CRLF...)
	b = append(b, at.HeaderContentType...)
	b = append(b, ": "...)
	b = append(b, at.ContentTypeFormEncoded...)
	b = append(b, at.CRLF...)
	b = append(b, at.CRLF...)
	return append(b, body...)
}

// HTTPGet sends a GET request over an open TCP connection using the send
// handshake.
func (m *Modem) HTTPGet(link LinkID, path, query string, opts ...CallOption) error {
	if path == "" && query == "" {
		return fmt.Errorf("%s: %w", at.SendHTTPGet, ErrEmptyData)
	}
	return m.send(at.SendHTTPGet, link, HTTPGetRequest(path, query), opts)
}

// HTTPPost sends body as a form encoded POST request over an open TCP
// connection using the send handshake.
func (m *Modem) HTTPPost(link LinkID, path string, body []byte, opts ...CallOption) error {
	if len(body) == 0 {
		return fmt.Errorf("%s: %w", at.SendHTTPPost, ErrEmptyData)
	}
	return m.send(at.SendHTTPPost, link, HTTPPostRequest(path, body), opts)
}
