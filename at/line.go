package at

import (
	"errors"
	"strconv"
)

// ErrArgType is returned by AppendLine for an argument that is neither a
// string nor an integer.
var ErrArgType = errors.New("at: unsupported argument type")

// AppendLine renders a complete command line into dst and returns the
// extended slice:
//
//	text[=arg{,arg}]\r\n
//
// String arguments are double-quoted, integer arguments are written bare.
// With no arguments the '=' separator is omitted.
func AppendLine(dst []byte, text string, args ...any) ([]byte, error) {
	dst = append(dst, text...)
	for i, arg := range args {
		if i == 0 {
			dst = append(dst, '=')
		} else {
			dst = append(dst, ',')
		}
		switch a := arg.(type) {
		case string:
			dst = append(dst, '"')
			dst = append(dst, a...)
			dst = append(dst, '"')
		case int:
			dst = strconv.AppendInt(dst, int64(a), 10)
		case uint8:
			dst = strconv.AppendUint(dst, uint64(a), 10)
		case uint16:
			dst = strconv.AppendUint(dst, uint64(a), 10)
		default:
			return dst, ErrArgType
		}
	}
	return append(dst, CRLF...), nil
}
