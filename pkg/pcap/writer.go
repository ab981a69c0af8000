package pcap

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"CyberGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const writerSnapLen = 65536

var ErrNotIPv4Addr = errors.New("address is not IPv4")

var (
	frameSrcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	frameDstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Writer serializes model packets back into Ethernet frames in a pcap file,
// so a synthetic stream can be replayed through the capture path.
type Writer struct {
	w *pcapgo.Writer
}

// NewWriter writes the pcap file header to out.
func NewWriter(out io.Writer) (*Writer, error) {
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(writerSnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: w}, nil
}

// WritePacket appends p as one frame stamped with p.ObservedAt. The frame
// carries PayloadSample as payload and reports LengthBytes as its wire length.
func (w *Writer) WritePacket(p model.Packet) error {
	data, err := Frame(p)
	if err != nil {
		return err
	}
	length := max(int(p.LengthBytes), len(data))
	ci := gopacket.CaptureInfo{
		Timestamp:     time.UnixMilli(p.ObservedAt),
		CaptureLength: len(data),
		Length:        length,
	}
	return w.w.WritePacket(ci, data)
}

// Frame builds the Ethernet/IPv4 frame for p. SSH, HTTP and HTTPS travel
// as TCP on their ports.
func Frame(p model.Packet) ([]byte, error) {
	src := net.ParseIP(p.SrcAddr).To4()
	dst := net.ParseIP(p.DstAddr).To4()
	if src == nil || dst == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNotIPv4Addr, p.SrcAddr, p.DstAddr)
	}

	eth := &layers.Ethernet{SrcMAC: frameSrcMAC, DstMAC: frameDstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, SrcIP: src, DstIP: dst}
	payload := gopacket.Payload(p.PayloadSample)

	var transport gopacket.SerializableLayer
	switch p.Protocol {
	case model.ProtocolUDP:
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{SrcPort: layers.UDPPort(p.SrcPort), DstPort: layers.UDPPort(p.DstPort)}
		udp.SetNetworkLayerForChecksum(ip)
		transport = udp
	case model.ProtocolICMP:
		ip.Protocol = layers.IPProtocolICMPv4
		transport = &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	default:
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(p.SrcPort),
			DstPort: layers.TCPPort(p.DstPort),
			Window:  14600,
			SYN:     p.Flags.Has(model.FlagSYN),
			ACK:     p.Flags.Has(model.FlagACK),
			FIN:     p.Flags.Has(model.FlagFIN),
			PSH:     p.Flags.Has(model.FlagPSH),
			RST:     p.Flags.Has(model.FlagRST),
			URG:     p.Flags.Has(model.FlagURG),
		}
		tcp.SetNetworkLayerForChecksum(ip)
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, payload); err != nil {
		return nil, fmt.Errorf("failed to serialize packet %s: %w", p.ID, err)
	}
	return buf.Bytes(), nil
}
