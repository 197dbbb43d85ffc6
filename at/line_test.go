package at_test

import (
	"errors"
	"testing"

	"i4.energy/across/espgw/at"
)

func TestAppendLine(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		args     []any
		expected string
	}{
		{
			name:     "Bare command",
			text:     "AT",
			expected: "AT\r\n",
		},
		{
			name:     "Single numeric argument",
			text:     "AT+CWMODE",
			args:     []any{1},
			expected: "AT+CWMODE=1\r\n",
		},
		{
			name:     "Quoted credentials",
			text:     "AT+CWJAP",
			args:     []any{"home", "secret"},
			expected: "AT+CWJAP=\"home\",\"secret\"\r\n",
		},
		{
			name:     "Access point settings mix strings and numbers",
			text:     "AT+CWSAP",
			args:     []any{"esp", "password", uint8(5), uint8(3)},
			expected: "AT+CWSAP=\"esp\",\"password\",5,3\r\n",
		},
		{
			name:     "UDP socket open",
			text:     "AT+CIPSTART",
			args:     []any{"UDP", "192.168.1.10", uint16(8080), uint16(1025), 2},
			expected: "AT+CIPSTART=\"UDP\",\"192.168.1.10\",8080,1025,2\r\n",
		},
		{
			name:     "Send with link id",
			text:     "AT+CIPSEND",
			args:     []any{3, 120},
			expected: "AT+CIPSEND=3,120\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := at.AppendLine(nil, tt.text, tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(line) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, line)
			}
		})
	}
}

func TestAppendLineReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	line, err := at.AppendLine(buf, "ATE0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if &line[0] != &buf[:1][0] {
		t.Error("expected line to be staged in the supplied buffer")
	}
}

func TestAppendLineRejectsUnknownArgument(t *testing.T) {
	_, err := at.AppendLine(nil, "AT+CWMODE", 1.5)
	if !errors.Is(err, at.ErrArgType) {
		t.Errorf("expected ErrArgType, got: %v", err)
	}
}
