package modem

import "strconv"

// LinkID identifies one of the module managed sockets. LinkNone is used
// when multiplexing (AT+CIPMUX=1) is off, LinkAll only makes sense for Close.
type LinkID int

const (
	Link0 LinkID = iota
	Link1
	Link2
	Link3
	Link4
	LinkAll
	LinkNone
)

// MaxLinks is the number of concurrent sockets the module supports.
const MaxLinks = 5

// ParseLinkID converts the textual forms "0".."4", "all" and "none".
func ParseLinkID(s string) (LinkID, error) {
	switch s {
	case "all":
		return LinkAll, nil
	case "none", "":
		return LinkNone, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= MaxLinks {
		return LinkNone, ErrInvalidLink
	}
	return LinkID(n), nil
}

func (l LinkID) String() string {
	switch l {
	case LinkAll:
		return "all"
	case LinkNone:
		return "none"
	}
	return strconv.Itoa(int(l))
}

func (l LinkID) socket() bool {
	return l >= Link0 && l <= Link4
}

// WiFiMode is the AT+CWMODE argument.
type WiFiMode uint8

const (
	ModeStation WiFiMode = 1
	ModeAP      WiFiMode = 2
	ModeAPSTA   WiFiMode = 3
)

// Channel is the 2.4GHz channel used by the soft access point.
type Channel uint8

// DefaultChannel is used by the gateway when no channel is configured.
const DefaultChannel Channel = 5

// Encryption is the soft access point security mode.
type Encryption uint8

const (
	EncryptionOpen       Encryption = 0
	EncryptionWPAPSK     Encryption = 2
	EncryptionWPA2PSK    Encryption = 3
	EncryptionWPAWPA2PSK Encryption = 4
)

// UDPMode controls whether the module may change the remote end of a UDP
// socket after it was opened.
type UDPMode uint8

const (
	UDPDestinationFixed      UDPMode = 0
	UDPDestinationChangeOnce UDPMode = 1
	UDPDestinationDynamic    UDPMode = 2
)

// DefaultUDPLocalPort is the local port used for UDP sockets when the
// caller has no preference.
const DefaultUDPLocalPort uint16 = 1025
