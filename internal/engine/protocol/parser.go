// Package protocol turns decoded frames into model packets.
package protocol

import (
	"errors"
	"time"

	"CyberGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/uuid"
)

var (
	ErrNotIPv4              = errors.New("not an IPv4 packet")
	ErrUnsupportedTransport = errors.New("not a TCP, UDP or ICMP packet")
)

// DefaultPayloadBytes is how much application payload is kept as a sample.
const DefaultPayloadBytes = 128

// Options tunes ParsePacket.
type Options struct {
	// PayloadBytes caps the payload sample. Zero uses DefaultPayloadBytes.
	PayloadBytes int
}

// ParsePacket extracts the fields detection needs from a decoded frame.
// Non-IPv4 frames and transports other than TCP, UDP and ICMP are rejected.
func ParsePacket(packet gopacket.Packet, opts Options) (model.Packet, error) {
	ipLayer, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return model.Packet{}, ErrNotIPv4
	}

	p := model.Packet{
		ID:          uuid.NewString(),
		ObservedAt:  time.Now().UnixMilli(),
		SrcAddr:     ipLayer.SrcIP.String(),
		DstAddr:     ipLayer.DstIP.String(),
		LengthBytes: uint32(len(packet.Data())),
	}
	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			p.ObservedAt = meta.Timestamp.UnixMilli()
		}
		if meta.Length > 0 {
			p.LengthBytes = uint32(meta.Length)
		}
	}

	var payload []byte
	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		p.SrcPort = uint16(tcp.SrcPort)
		p.DstPort = uint16(tcp.DstPort)
		p.Flags = tcpFlags(tcp)
		p.Protocol = Classify(p.SrcPort, p.DstPort)
		payload = tcp.Payload
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		p.SrcPort = uint16(udp.SrcPort)
		p.DstPort = uint16(udp.DstPort)
		p.Protocol = model.ProtocolUDP
		payload = udp.Payload
	case packet.Layer(layers.LayerTypeICMPv4) != nil:
		p.Protocol = model.ProtocolICMP
	default:
		return model.Packet{}, ErrUnsupportedTransport
	}

	p.PayloadSample = sample(payload, opts.PayloadBytes)
	return p, nil
}

// Classify maps a TCP port pair onto the application protocols the rules
// understand. The destination port is checked first; the source port only
// decides when the destination is not a known service port.
func Classify(srcPort, dstPort uint16) model.Protocol {
	for _, port := range []uint16{dstPort, srcPort} {
		switch port {
		case 22:
			return model.ProtocolSSH
		case 80, 8080:
			return model.ProtocolHTTP
		case 443:
			return model.ProtocolHTTPS
		}
	}
	return model.ProtocolTCP
}

func tcpFlags(tcp *layers.TCP) model.FlagSet {
	var s model.FlagSet
	if tcp.SYN {
		s = s.With(model.FlagSYN)
	}
	if tcp.ACK {
		s = s.With(model.FlagACK)
	}
	if tcp.FIN {
		s = s.With(model.FlagFIN)
	}
	if tcp.PSH {
		s = s.With(model.FlagPSH)
	}
	if tcp.RST {
		s = s.With(model.FlagRST)
	}
	if tcp.URG {
		s = s.With(model.FlagURG)
	}
	return s
}

// sample keeps the first n payload bytes, replacing non-printable bytes
// with '.' so signatures can be matched as text.
func sample(payload []byte, n int) string {
	if len(payload) == 0 {
		return ""
	}
	if n <= 0 {
		n = DefaultPayloadBytes
	}
	if len(payload) > n {
		payload = payload[:n]
	}
	out := make([]byte, len(payload))
	for i, b := range payload {
		if b < 0x20 || b > 0x7e {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}
