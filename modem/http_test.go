package modem_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"i4.energy/across/espgw/modem"
)

func TestHTTPGetRequest(t *testing.T) {
	got := string(modem.HTTPGetRequest("/t", "?a=1"))
	expected := "GET /t?a=1 HTTP/1.1\r\n\r\n"
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestHTTPPostRequest(t *testing.T) {
	t.Run("Request layout", func(t *testing.T) {
		got := string(modem.HTTPPostRequest("/t", []byte("a=1")))
		header := "POST /t HTTP/1.1\r\n" +
			"Content-Length: 3\r\n" +
			"Content-Type: application/x-www-form-urlencoded\r\n" +
			"\r\n"
		if got != header+"a=1" {
			t.Errorf("unexpected request %q", got)
		}
		if len(got) != len(header)+3 {
			t.Errorf("expected declared length %d, got %d", len(header)+3, len(got))
		}
	})

	t.Run("Content-Length width crosses a digit boundary", func(t *testing.T) {
		nine := modem.HTTPPostRequest("/t", []byte(strings.Repeat("x", 9)))
		ten := modem.HTTPPostRequest("/t", []byte(strings.Repeat("x", 10)))

		if headerGrowth := (len(ten) - 10) - (len(nine) - 9); headerGrowth != 1 {
			t.Errorf("expected header to grow by one digit, grew by %d", headerGrowth)
		}
		if len(ten)-len(nine) != 2 {
			t.Errorf("expected total to grow by 2, grew by %d", len(ten)-len(nine))
		}
	})
}

func TestModemHTTP(t *testing.T) {
	t.Run("POST declares the composed length", func(t *testing.T) {
		m, transport, _ := newTestModem(t, 0)
		transport.Reply("AT+CIPSEND=91\r\n", modem.After(0, "OK\r\n> "))
		transport.Reply("POST /t", modem.After(0, "SEND OK\r\n"))

		if err := m.HTTPPost(modem.LinkNone, "/t", []byte("a=1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		writes := transport.Writes()
		if len(writes) != 2 || writes[0] != "AT+CIPSEND=91\r\n" {
			t.Fatalf("unexpected writes %q", writes)
		}
		if len(writes[1]) != 91 {
			t.Errorf("declared 91 bytes but wrote %d", len(writes[1]))
		}
	})

	t.Run("GET declares the composed length", func(t *testing.T) {
		m, transport, _ := newTestModem(t, 0)
		transport.Reply("AT+CIPSEND=2,27\r\n", modem.After(0, "OK\r\n> "))
		transport.Reply("GET /data", modem.After(0, "SEND OK\r\n"))

		if err := m.HTTPGet(modem.Link2, "/data", "?t=21"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		expected := []string{"AT+CIPSEND=2,27\r\n", "GET /data?t=21 HTTP/1.1\r\n\r\n"}
		if got := transport.Writes(); !slices.Equal(got, expected) {
			t.Errorf("expected %q, got %q", expected, got)
		}
	})

	t.Run("ErrEmptyData before any I/O", func(t *testing.T) {
		m, transport, _ := newTestModem(t, 0)

		if err := m.HTTPPost(modem.LinkNone, "/t", nil); !errors.Is(err, modem.ErrEmptyData) {
			t.Errorf("expected ErrEmptyData for POST, got: %v", err)
		}
		if err := m.HTTPGet(modem.LinkNone, "", ""); !errors.Is(err, modem.ErrEmptyData) {
			t.Errorf("expected ErrEmptyData for GET, got: %v", err)
		}
		if len(transport.Writes()) != 0 {
			t.Error("nothing should be written for empty requests")
		}
	})
}
