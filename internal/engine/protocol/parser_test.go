package protocol

import (
	"errors"
	"net"
	"testing"
	"time"

	"CyberGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	dstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
)

func frame(t *testing.T, transport gopacket.SerializableLayer, ip *layers.IPv4, payload []byte) gopacket.Packet {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	ls := []gopacket.SerializableLayer{eth, ip}
	if transport != nil {
		ls = append(ls, transport)
	}
	ls = append(ls, gopacket.Payload(payload))
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("SerializeLayers failed: %v", err)
	}
	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	pkt.Metadata().Timestamp = time.UnixMilli(1_700_000_000_123)
	pkt.Metadata().Length = len(buf.Bytes())
	return pkt
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IPv4(45, 33, 22, 11),
		DstIP:    net.IPv4(192, 168, 1, 10),
	}
}

func TestParseTCPSyn(t *testing.T) {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 3306, SYN: true}
	tcp.SetNetworkLayerForChecksum(ip)

	p, err := ParsePacket(frame(t, tcp, ip, nil), Options{})
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if p.SrcAddr != "45.33.22.11" || p.DstAddr != "192.168.1.10" {
		t.Errorf("addresses = %s -> %s", p.SrcAddr, p.DstAddr)
	}
	if p.SrcPort != 40000 || p.DstPort != 3306 || p.Protocol != model.ProtocolTCP {
		t.Errorf("transport = %+v", p)
	}
	if p.Flags != model.NewFlagSet(model.FlagSYN) {
		t.Errorf("flags = %v, want SYN", p.Flags)
	}
	if p.PayloadSample != "" {
		t.Errorf("payload sample = %q, want empty", p.PayloadSample)
	}
	if p.ObservedAt != 1_700_000_000_123 {
		t.Errorf("observedAt = %d, want capture timestamp", p.ObservedAt)
	}
	if p.ID == "" || p.LengthBytes == 0 {
		t.Errorf("missing id or length: %+v", p)
	}
}

func TestParseHTTPPayload(t *testing.T) {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 80, ACK: true, PSH: true}
	tcp.SetNetworkLayerForChecksum(ip)

	p, err := ParsePacket(frame(t, tcp, ip, []byte("GET /?id=' OR '1'='1\r\n")), Options{})
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if p.Protocol != model.ProtocolHTTP {
		t.Errorf("protocol = %v, want HTTP", p.Protocol)
	}
	if p.PayloadSample != "GET /?id=' OR '1'='1.." {
		t.Errorf("payload sample = %q", p.PayloadSample)
	}
	if !p.Flags.Has(model.FlagACK) || !p.Flags.Has(model.FlagPSH) {
		t.Errorf("flags = %v", p.Flags)
	}
}

func TestPayloadSampleIsCapped(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	udp.SetNetworkLayerForChecksum(ip)

	p, err := ParsePacket(frame(t, udp, ip, []byte("0123456789")), Options{PayloadBytes: 4})
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if p.Protocol != model.ProtocolUDP || p.DstPort != 53 {
		t.Errorf("udp packet = %+v", p)
	}
	if p.PayloadSample != "0123" {
		t.Errorf("payload sample = %q, want 0123", p.PayloadSample)
	}
}

func TestParseICMP(t *testing.T) {
	ip := ipv4(layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}

	p, err := ParsePacket(frame(t, icmp, ip, []byte("ping")), Options{})
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if p.Protocol != model.ProtocolICMP || p.SrcPort != 0 || p.DstPort != 0 {
		t.Errorf("icmp packet = %+v", p)
	}
}

func TestRejections(t *testing.T) {
	// IPv6 frame
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
	ip6 := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolNoNextHeader, SrcIP: net.ParseIP("::1"), DstIP: net.ParseIP("::2")}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, ip6); err != nil {
		t.Fatal(err)
	}
	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	if _, err := ParsePacket(pkt, Options{}); !errors.Is(err, ErrNotIPv4) {
		t.Errorf("IPv6 frame: got %v, want ErrNotIPv4", err)
	}

	// IPv4 carrying GRE
	gre := frame(t, nil, ipv4(layers.IPProtocolGRE), []byte{0, 0, 0, 0})
	if _, err := ParsePacket(gre, Options{}); !errors.Is(err, ErrUnsupportedTransport) {
		t.Errorf("GRE frame: got %v, want ErrUnsupportedTransport", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		src, dst uint16
		want     model.Protocol
	}{
		{50000, 22, model.ProtocolSSH},
		{22, 50000, model.ProtocolSSH},
		{50000, 80, model.ProtocolHTTP},
		{50000, 8080, model.ProtocolHTTP},
		{443, 50000, model.ProtocolHTTPS},
		{50000, 3306, model.ProtocolTCP},
		// Both sides are service ports: the destination decides.
		{22, 80, model.ProtocolHTTP},
		{80, 22, model.ProtocolSSH},
	}
	for _, tt := range tests {
		if got := Classify(tt.src, tt.dst); got != tt.want {
			t.Errorf("Classify(%d, %d) = %v, want %v", tt.src, tt.dst, got, tt.want)
		}
	}
}
