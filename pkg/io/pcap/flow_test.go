package pcap

import (
	"math"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/flowprep/pkg/preprocess"
)

var (
	clientIP = net.IPv4(10, 0, 0, 1).To4()
	serverIP = net.IPv4(10, 0, 0, 2).To4()
	t0       = time.Date(2018, 2, 14, 10, 0, 0, 0, time.UTC)
)

type tcpFlags struct {
	syn, ack, fin, rst, psh bool
}

func serialize(t *testing.T, ts time.Time, ls ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))

	p := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	p.Metadata().Timestamp = ts
	return p
}

func ethernet() *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
}

func tcpPacket(t *testing.T, ts time.Time, src, dst net.IP, sport, dport uint16, f tcpFlags, payload int) gopacket.Packet {
	t.Helper()
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: src, DstIP: dst}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		SYN:     f.syn,
		ACK:     f.ack,
		FIN:     f.fin,
		RST:     f.rst,
		PSH:     f.psh,
		Window:  1024,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ts, ethernet(), ip, tcp, gopacket.Payload(make([]byte, payload)))
}

func udpPacket(t *testing.T, ts time.Time, src, dst net.IP, sport, dport uint16, payload int) gopacket.Packet {
	t.Helper()
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: src, DstIP: dst}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ts, ethernet(), ip, udp, gopacket.Payload(make([]byte, payload)))
}

func TestAssemblerTCPConnection(t *testing.T) {
	a := NewAssembler(120 * time.Second)
	ms := time.Millisecond

	packets := []gopacket.Packet{
		tcpPacket(t, t0, clientIP, serverIP, 40000, 80, tcpFlags{syn: true}, 0),
		tcpPacket(t, t0.Add(1*ms), serverIP, clientIP, 80, 40000, tcpFlags{syn: true, ack: true}, 0),
		tcpPacket(t, t0.Add(2*ms), clientIP, serverIP, 40000, 80, tcpFlags{ack: true, psh: true}, 100),
		tcpPacket(t, t0.Add(3*ms), serverIP, clientIP, 80, 40000, tcpFlags{ack: true, psh: true}, 300),
		tcpPacket(t, t0.Add(4*ms), clientIP, serverIP, 40000, 80, tcpFlags{ack: true, fin: true}, 0),
	}

	for _, p := range packets {
		assert.Empty(t, a.Add(p))
	}
	assert.Equal(t, 1, a.Active())

	done := a.Add(tcpPacket(t, t0.Add(5*ms), serverIP, clientIP, 80, 40000, tcpFlags{ack: true, fin: true}, 0))
	require.Len(t, done, 1)
	assert.Equal(t, 0, a.Active())

	f := done[0]
	assert.Equal(t, "10.0.0.1", f.Src.IP)
	assert.Equal(t, uint16(40000), f.Src.Port)
	assert.Equal(t, uint16(80), f.Dst.Port)
	assert.Equal(t, uint8(6), f.Protocol)
	assert.Equal(t, "10.0.0.1-10.0.0.2-40000-80-6", f.ID())
	assert.Equal(t, 5*ms, f.Duration())

	assert.Equal(t, 3, f.Fwd.Packets)
	assert.Equal(t, 3, f.Bwd.Packets)
	assert.Equal(t, 100, f.Fwd.Bytes)
	assert.Equal(t, 300, f.Bwd.Bytes)
	assert.Equal(t, 0, f.Fwd.MinLen)
	assert.Equal(t, 100, f.Fwd.MaxLen)
	assert.Equal(t, 1, f.Fwd.PSH)
	assert.Equal(t, 1, f.Bwd.PSH)
	assert.Equal(t, 2, f.SYN)
	assert.Equal(t, 2, f.FIN)
	assert.Equal(t, 5, f.ACK)
}

func TestAssemblerReset(t *testing.T) {
	a := NewAssembler(0)
	done := a.Add(tcpPacket(t, t0, clientIP, serverIP, 40000, 443, tcpFlags{rst: true}, 0))
	require.Len(t, done, 1)
	assert.Equal(t, 1, done[0].RST)
}

func TestAssemblerIdleTimeout(t *testing.T) {
	a := NewAssembler(120 * time.Second)

	assert.Empty(t, a.Add(udpPacket(t, t0, clientIP, serverIP, 5353, 53, 40)))
	assert.Empty(t, a.Add(udpPacket(t, t0.Add(60*time.Second), clientIP, serverIP, 5353, 53, 40)))

	done := a.Add(udpPacket(t, t0.Add(200*time.Second), clientIP, serverIP, 5000, 123, 48))
	require.Len(t, done, 1)
	assert.Equal(t, uint16(53), done[0].Dst.Port)
	assert.Equal(t, 2, done[0].Fwd.Packets)
	assert.Equal(t, 1, a.Active())
}

func TestAssemblerFlush(t *testing.T) {
	a := NewAssembler(time.Minute)
	a.Add(udpPacket(t, t0.Add(time.Second), clientIP, serverIP, 6000, 53, 10))
	a.Add(udpPacket(t, t0, serverIP, clientIP, 53, 7000, 10))

	flows := a.Flush()
	require.Len(t, flows, 2)
	assert.True(t, flows[0].Start.Before(flows[1].Start))
	assert.Equal(t, 0, a.Active())
	assert.Empty(t, a.Flush())
}

func TestAssemblerIgnoresNonIP(t *testing.T) {
	a := NewAssembler(time.Minute)
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
		SourceProtAddress: clientIP,
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    serverIP,
	}
	eth := ethernet()
	eth.EthernetType = layers.EthernetTypeARP

	assert.Nil(t, a.Add(serialize(t, t0, eth, arp)))
	assert.Equal(t, 0, a.Active())
}

func TestFlowTable(t *testing.T) {
	a := NewAssembler(time.Minute)
	a.Add(udpPacket(t, t0, clientIP, serverIP, 5353, 53, 40))
	flows := a.Flush()

	tb, err := FlowTable(flows, "BENIGN")
	require.NoError(t, err)
	assert.Equal(t, FlowColumns(), tb.Names())
	assert.Equal(t, 1, tb.Len())

	row := tb.Row(0)
	cell := func(name string) string {
		for i, n := range tb.Names() {
			if n == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}

	assert.Equal(t, "10.0.0.1-10.0.0.2-5353-53-17", cell("Flow ID"))
	assert.Equal(t, "17", cell("Protocol"))
	assert.Equal(t, "14/02/2018 10:00:00", cell("Timestamp"))
	assert.Equal(t, "40", cell("TotLen Fwd Pkts"))
	assert.Equal(t, "inf", cell("Flow Byts/s"), "single-packet flows have no duration")
	assert.Equal(t, "BENIGN", cell("Label"))
}

func TestFlowTableEmpty(t *testing.T) {
	tb, err := FlowTable(nil, "BENIGN")
	require.NoError(t, err)
	assert.Equal(t, 0, tb.Len())
	assert.Equal(t, FlowColumns(), tb.Names())
}

func TestRate(t *testing.T) {
	assert.Equal(t, 2.0, rate(4, 2*time.Second))
	assert.True(t, math.IsInf(rate(4, 0), 1))
	assert.True(t, math.IsNaN(rate(0, 0)))
}

func TestFlowTablePreprocesses(t *testing.T) {
	a := NewAssembler(time.Minute)
	a.Add(udpPacket(t, t0, clientIP, serverIP, 5353, 53, 40))
	a.Add(udpPacket(t, t0.Add(time.Second), serverIP, clientIP, 53, 5353, 120))
	a.Add(tcpPacket(t, t0, clientIP, serverIP, 40000, 80, tcpFlags{syn: true}, 0))

	tb, err := FlowTable(a.Flush(), "BENIGN")
	require.NoError(t, err)

	out, err := preprocess.New().Process(tb)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Len())
	assert.True(t, out.Has("Protocol_6"))
	assert.True(t, out.Has("Protocol_17"))
	assert.False(t, out.Has("Source IP"))
	for _, c := range out.Columns() {
		for _, v := range c.Num {
			assert.False(t, math.IsInf(v, 0), "column %s", c.Name)
		}
	}
}
