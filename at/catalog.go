package at

import (
	"fmt"
	"time"
)

// CommandID names one entry of the command catalog.
type CommandID int

const (
	Probe CommandID = iota
	EchoOff
	EchoOn
	Reset
	SetMode
	ConfigureAP
	JoinAP
	StartTCP
	StartUDP
	Close
	Multiplex
	Send
	SendHTTPGet
	SendHTTPPost
)

// Command describes a single AT operation: the literal command text written
// to the module, the token whose appearance means success and the default
// time allowed for that token to show up.
type Command struct {
	ID      CommandID
	Text    string
	Token   string
	Timeout time.Duration
}

var catalog = [...]Command{
	Probe:        {Probe, "AT", OK, 500 * time.Millisecond},
	EchoOff:      {EchoOff, "ATE0", OK, 500 * time.Millisecond},
	EchoOn:       {EchoOn, "ATE1", OK, 500 * time.Millisecond},
	Reset:        {Reset, "AT+RST", Ready, 2 * time.Second},
	SetMode:      {SetMode, "AT+CWMODE", OK, 500 * time.Millisecond},
	ConfigureAP:  {ConfigureAP, "AT+CWSAP", OK, 2 * time.Second},
	JoinAP:       {JoinAP, "AT+CWJAP", OK, 15 * time.Second},
	StartTCP:     {StartTCP, "AT+CIPSTART", Connected, 5 * time.Second},
	StartUDP:     {StartUDP, "AT+CIPSTART", OK, 5 * time.Second},
	Close:        {Close, "AT+CIPCLOSE", Closed, time.Second},
	Multiplex:    {Multiplex, "AT+CIPMUX", OK, 500 * time.Millisecond},
	Send:         {Send, "AT+CIPSEND", SendOK, time.Second},
	SendHTTPGet:  {SendHTTPGet, "AT+CIPSEND", SendOK, time.Second},
	SendHTTPPost: {SendHTTPPost, "AT+CIPSEND", SendOK, time.Second},
}

// Lookup returns the catalog entry for id. It panics on an id that is not
// part of the catalog, which can only happen through a programming error.
func Lookup(id CommandID) Command {
	if id < 0 || int(id) >= len(catalog) {
		panic(fmt.Sprintf("at: unknown command id %d", id))
	}
	return catalog[id]
}

// Commands returns a copy of the full catalog.
func Commands() []Command {
	out := make([]Command, len(catalog))
	copy(out, catalog[:])
	return out
}

func (id CommandID) String() string {
	switch id {
	case Probe:
		return "probe"
	case EchoOff:
		return "echo-off"
	case EchoOn:
		return "echo-on"
	case Reset:
		return "reset"
	case SetMode:
		return "set-mode"
	case ConfigureAP:
		return "configure-ap"
	case JoinAP:
		return "join-ap"
	case StartTCP:
		return "start-tcp"
	case StartUDP:
		return "start-udp"
	case Close:
		return "close"
	case Multiplex:
		return "multiplex"
	case Send:
		return "send"
	case SendHTTPGet:
		return "http-get"
	case SendHTTPPost:
		return "http-post"
	}
	return fmt.Sprintf("CommandID(%d)", int(id))
}
