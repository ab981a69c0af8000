package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Protocol is the closed set of protocols a Packet may carry.
type Protocol uint8

const (
	ProtocolTCP Protocol = iota + 1
	ProtocolUDP
	ProtocolICMP
	ProtocolHTTP
	ProtocolHTTPS
	ProtocolSSH
)

// Protocols lists every valid Protocol in declaration order.
func Protocols() []Protocol {
	return []Protocol{ProtocolTCP, ProtocolUDP, ProtocolICMP, ProtocolHTTP, ProtocolHTTPS, ProtocolSSH}
}

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	case ProtocolICMP:
		return "ICMP"
	case ProtocolHTTP:
		return "HTTP"
	case ProtocolHTTPS:
		return "HTTPS"
	case ProtocolSSH:
		return "SSH"
	}
	return fmt.Sprintf("Protocol(%d)", uint8(p))
}

// Valid reports whether p is one of the declared protocols.
func (p Protocol) Valid() bool {
	return p >= ProtocolTCP && p <= ProtocolSSH
}

// ParseProtocol converts a protocol name (case-insensitive) into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	for _, p := range Protocols() {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

func (p Protocol) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid protocol %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Protocol) UnmarshalText(text []byte) error {
	v, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Flag is a single TCP control flag token.
type Flag uint8

const (
	FlagFIN Flag = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

var flagTokens = []struct {
	flag  Flag
	token string
}{
	{FlagSYN, "SYN"},
	{FlagACK, "ACK"},
	{FlagFIN, "FIN"},
	{FlagPSH, "PSH"},
	{FlagRST, "RST"},
	{FlagURG, "URG"},
}

func (f Flag) String() string {
	for _, ft := range flagTokens {
		if ft.flag == f {
			return ft.token
		}
	}
	return fmt.Sprintf("Flag(%d)", uint8(f))
}

// ParseFlag converts a flag token such as "SYN" into a Flag.
func ParseFlag(token string) (Flag, error) {
	for _, ft := range flagTokens {
		if strings.EqualFold(token, ft.token) {
			return ft.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown flag token %q", token)
}

// FlagSet is an order-insensitive set of flags. It is a value type so packets
// holding one can be copied freely without aliasing.
type FlagSet uint8

// NewFlagSet builds a set from the given flags; duplicates collapse.
func NewFlagSet(flags ...Flag) FlagSet {
	var s FlagSet
	for _, f := range flags {
		s |= FlagSet(f)
	}
	return s
}

// ParseFlagSet builds a set from textual tokens.
func ParseFlagSet(tokens []string) (FlagSet, error) {
	var s FlagSet
	for _, t := range tokens {
		f, err := ParseFlag(t)
		if err != nil {
			return 0, err
		}
		s |= FlagSet(f)
	}
	return s, nil
}

func (s FlagSet) Has(f Flag) bool {
	return s&FlagSet(f) != 0
}

func (s FlagSet) With(f Flag) FlagSet {
	return s | FlagSet(f)
}

// Tokens returns the flag tokens in a stable order.
func (s FlagSet) Tokens() []string {
	tokens := make([]string, 0, len(flagTokens))
	for _, ft := range flagTokens {
		if s.Has(ft.flag) {
			tokens = append(tokens, ft.token)
		}
	}
	return tokens
}

func (s FlagSet) String() string {
	return strings.Join(s.Tokens(), ",")
}

func (s FlagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Tokens())
}

func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	v, err := ParseFlagSet(tokens)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Packet is a single structured traffic record. It is never mutated after
// creation; only window membership changes.
type Packet struct {
	ID         string   `json:"id"`
	ObservedAt int64    `json:"observedAt"` // unix milliseconds
	SrcAddr    string   `json:"srcAddr"`
	DstAddr    string   `json:"dstAddr"`
	SrcPort    uint16   `json:"srcPort"`
	DstPort    uint16   `json:"dstPort"`
	Protocol   Protocol `json:"protocol"`
	// LengthBytes is the on-wire size of the packet.
	LengthBytes uint32  `json:"lengthBytes"`
	Flags       FlagSet `json:"flags"`
	// PayloadSample is empty when the packet carried no payload.
	PayloadSample     string `json:"payloadSample,omitempty"`
	FlaggedSuspicious bool   `json:"flaggedSuspicious"`
}

var (
	ErrEmptyAddress    = errors.New("packet address is empty")
	ErrInvalidProtocol = errors.New("packet protocol is invalid")
)

// Validate checks the invariants a producer must guarantee before a packet
// enters the pipeline.
func (p Packet) Validate() error {
	if p.SrcAddr == "" || p.DstAddr == "" {
		return ErrEmptyAddress
	}
	if !p.Protocol.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidProtocol, uint8(p.Protocol))
	}
	return nil
}

// TrafficBucket is one coarse time bucket of the summary series.
type TrafficBucket struct {
	Label   string `json:"time"`
	Second  int64  `json:"second"` // unix seconds
	Packets int    `json:"packets"`
	Alerts  int    `json:"alerts"`
}

// TrafficStats is the headline summary shown next to the alert feed.
type TrafficStats struct {
	TotalPackets      uint64  `json:"totalPackets"`
	BytesTransferred  uint64  `json:"bytesTransferred"`
	PacketsPerSecond  float64 `json:"packetsPerSecond"`
	ActiveConnections int     `json:"activeConnections"`
	ActiveAlerts      int     `json:"activeAlerts"`
	WindowSize        int     `json:"windowSize"`
	Capturing         bool    `json:"capturing"`
}
