package pcap

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/hed1ad/flowprep/pkg/table"
)

// TimestampLayout is the layout of the Timestamp column.
const TimestampLayout = "02/01/2006 15:04:05"

// hostPort is one side of a flow key.
type hostPort struct {
	ip   string
	port uint16
}

func (e hostPort) less(o hostPort) bool {
	if e.ip != o.ip {
		return e.ip < o.ip
	}
	return e.port < o.port
}

// flowKey identifies a flow independent of direction.
type flowKey struct {
	lo, hi   hostPort
	protocol uint8
}

func newFlowKey(src, dst hostPort, protocol uint8) flowKey {
	if dst.less(src) {
		src, dst = dst, src
	}
	return flowKey{lo: src, hi: dst, protocol: protocol}
}

// Direction accumulates packet statistics for one direction of a flow.
type Direction struct {
	Packets int
	Bytes   int
	MinLen  int
	MaxLen  int
	PSH     int
	URG     int
	FIN     bool
}

func (d *Direction) add(payload int) {
	if d.Packets == 0 || payload < d.MinLen {
		d.MinLen = payload
	}
	if payload > d.MaxLen {
		d.MaxLen = payload
	}
	d.Packets++
	d.Bytes += payload
}

func (d *Direction) meanLen() float64 {
	if d.Packets == 0 {
		return 0
	}
	return float64(d.Bytes) / float64(d.Packets)
}

// Flow is a bidirectional connection. The forward direction is the one of the
// first packet seen.
type Flow struct {
	Src      Endpoint
	Dst      Endpoint
	Protocol uint8
	Start    time.Time
	Last     time.Time

	Fwd Direction
	Bwd Direction

	SYN int
	ACK int
	FIN int
	RST int
}

// Endpoint is an address and port of a flow.
type Endpoint struct {
	IP   string
	Port uint16
}

// ID returns the CICFlowMeter style flow identifier.
func (f *Flow) ID() string {
	return fmt.Sprintf("%s-%s-%d-%d-%d", f.Src.IP, f.Dst.IP, f.Src.Port, f.Dst.Port, f.Protocol)
}

// Duration returns the time between the first and last packet.
func (f *Flow) Duration() time.Duration {
	return f.Last.Sub(f.Start)
}

func (f *Flow) closed() bool {
	return f.RST > 0 || (f.Fwd.FIN && f.Bwd.FIN)
}

// packetInfo is what the assembler needs from a decoded packet.
type packetInfo struct {
	src, dst hostPort
	protocol uint8
	ts       time.Time
	payload  int
	tcp      *layers.TCP
}

// decode extracts addressing and size from an IPv4 or IPv6 packet.
func decode(packet gopacket.Packet) (packetInfo, bool) {
	var info packetInfo

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		info.src.ip = ip.SrcIP.String()
		info.dst.ip = ip.DstIP.String()
		info.protocol = uint8(ip.Protocol)
	case *layers.IPv6:
		info.src.ip = ip.SrcIP.String()
		info.dst.ip = ip.DstIP.String()
		info.protocol = uint8(ip.NextHeader)
	default:
		return info, false
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		info.src.port = uint16(tcp.SrcPort)
		info.dst.port = uint16(tcp.DstPort)
		info.tcp = tcp
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		info.src.port = uint16(udp.SrcPort)
		info.dst.port = uint16(udp.DstPort)
	}

	if appLayer := packet.ApplicationLayer(); appLayer != nil {
		info.payload = len(appLayer.Payload())
	}

	if md := packet.Metadata(); md != nil {
		info.ts = md.Timestamp
	}

	return info, true
}

// Assembler groups packets into flows.
type Assembler struct {
	idleTimeout time.Duration
	flows       map[flowKey]*Flow
	lastSweep   time.Time
}

// NewAssembler creates an assembler that expires flows idle for longer than idleTimeout.
func NewAssembler(idleTimeout time.Duration) *Assembler {
	return &Assembler{
		idleTimeout: idleTimeout,
		flows:       make(map[flowKey]*Flow),
	}
}

// Add accounts a packet and returns the flows it completed, either by closing
// its own connection or by advancing capture time past the idle timeout of others.
func (a *Assembler) Add(packet gopacket.Packet) []*Flow {
	info, ok := decode(packet)
	if !ok {
		return nil
	}

	var done []*Flow
	if a.idleTimeout > 0 && info.ts.Sub(a.lastSweep) >= time.Second {
		done = a.expire(info.ts)
		a.lastSweep = info.ts
	}

	key := newFlowKey(info.src, info.dst, info.protocol)
	f, ok := a.flows[key]
	if !ok {
		f = &Flow{
			Src:      Endpoint{IP: info.src.ip, Port: info.src.port},
			Dst:      Endpoint{IP: info.dst.ip, Port: info.dst.port},
			Protocol: info.protocol,
			Start:    info.ts,
		}
		a.flows[key] = f
	}
	f.Last = info.ts

	dir := &f.Fwd
	if info.src.ip != f.Src.IP || info.src.port != f.Src.Port {
		dir = &f.Bwd
	}
	dir.add(info.payload)

	if tcp := info.tcp; tcp != nil {
		if tcp.SYN {
			f.SYN++
		}
		if tcp.ACK {
			f.ACK++
		}
		if tcp.FIN {
			f.FIN++
			dir.FIN = true
		}
		if tcp.RST {
			f.RST++
		}
		if tcp.PSH {
			dir.PSH++
		}
		if tcp.URG {
			dir.URG++
		}
	}

	if f.closed() {
		delete(a.flows, key)
		done = append(done, f)
	}
	return done
}

// expire removes flows idle at now.
func (a *Assembler) expire(now time.Time) []*Flow {
	var done []*Flow
	for key, f := range a.flows {
		if now.Sub(f.Last) > a.idleTimeout {
			delete(a.flows, key)
			done = append(done, f)
		}
	}
	sortFlows(done)
	return done
}

// Flush returns every active flow ordered by start time and resets the assembler.
func (a *Assembler) Flush() []*Flow {
	done := make([]*Flow, 0, len(a.flows))
	for _, f := range a.flows {
		done = append(done, f)
	}
	a.flows = make(map[flowKey]*Flow)
	sortFlows(done)
	return done
}

// Active returns the number of flows in progress.
func (a *Assembler) Active() int {
	return len(a.flows)
}

func sortFlows(flows []*Flow) {
	sort.Slice(flows, func(i, j int) bool {
		if !flows[i].Start.Equal(flows[j].Start) {
			return flows[i].Start.Before(flows[j].Start)
		}
		return flows[i].ID() < flows[j].ID()
	})
}

// FlowColumns returns the names of the columns produced by FlowTable.
func FlowColumns() []string {
	return []string{
		"Flow ID",
		"Source IP",
		"Src Port",
		"Destination IP",
		"Dst Port",
		"Protocol",
		"Timestamp",
		"Flow Duration",
		"Tot Fwd Pkts",
		"Tot Bwd Pkts",
		"TotLen Fwd Pkts",
		"TotLen Bwd Pkts",
		"Fwd Pkt Len Max",
		"Fwd Pkt Len Min",
		"Fwd Pkt Len Mean",
		"Bwd Pkt Len Max",
		"Bwd Pkt Len Min",
		"Bwd Pkt Len Mean",
		"Flow Byts/s",
		"Flow Pkts/s",
		"Fwd PSH Flags",
		"Bwd PSH Flags",
		"Fwd URG Flags",
		"Bwd URG Flags",
		"SYN Flag Cnt",
		"FIN Flag Cnt",
		"RST Flag Cnt",
		"ACK Flag Cnt",
		"Label",
	}
}

// rate divides by the duration in seconds. A zero duration yields +Inf, or
// NaN when count is also zero, as CICFlowMeter does.
func rate(count int, d time.Duration) float64 {
	secs := d.Seconds()
	if secs == 0 {
		if count == 0 {
			return math.NaN()
		}
		return math.Inf(1)
	}
	return float64(count) / secs
}

// FlowTable converts flows into a table with CICIDS column names. Every row
// carries label in the Label column.
func FlowTable(flows []*Flow, label string) (*table.Table, error) {
	n := len(flows)
	text := map[string][]string{
		"Flow ID":        make([]string, n),
		"Source IP":      make([]string, n),
		"Destination IP": make([]string, n),
		"Timestamp":      make([]string, n),
		"Label":          make([]string, n),
	}
	num := make(map[string][]float64)
	for _, name := range FlowColumns() {
		if _, ok := text[name]; !ok {
			num[name] = make([]float64, n)
		}
	}

	for i, f := range flows {
		text["Flow ID"][i] = f.ID()
		text["Source IP"][i] = f.Src.IP
		text["Destination IP"][i] = f.Dst.IP
		text["Timestamp"][i] = f.Start.UTC().Format(TimestampLayout)
		text["Label"][i] = label

		num["Src Port"][i] = float64(f.Src.Port)
		num["Dst Port"][i] = float64(f.Dst.Port)
		num["Protocol"][i] = float64(f.Protocol)
		num["Flow Duration"][i] = float64(f.Duration().Microseconds())
		num["Tot Fwd Pkts"][i] = float64(f.Fwd.Packets)
		num["Tot Bwd Pkts"][i] = float64(f.Bwd.Packets)
		num["TotLen Fwd Pkts"][i] = float64(f.Fwd.Bytes)
		num["TotLen Bwd Pkts"][i] = float64(f.Bwd.Bytes)
		num["Fwd Pkt Len Max"][i] = float64(f.Fwd.MaxLen)
		num["Fwd Pkt Len Min"][i] = float64(f.Fwd.MinLen)
		num["Fwd Pkt Len Mean"][i] = f.Fwd.meanLen()
		num["Bwd Pkt Len Max"][i] = float64(f.Bwd.MaxLen)
		num["Bwd Pkt Len Min"][i] = float64(f.Bwd.MinLen)
		num["Bwd Pkt Len Mean"][i] = f.Bwd.meanLen()
		num["Flow Byts/s"][i] = rate(f.Fwd.Bytes+f.Bwd.Bytes, f.Duration())
		num["Flow Pkts/s"][i] = rate(f.Fwd.Packets+f.Bwd.Packets, f.Duration())
		num["Fwd PSH Flags"][i] = float64(f.Fwd.PSH)
		num["Bwd PSH Flags"][i] = float64(f.Bwd.PSH)
		num["Fwd URG Flags"][i] = float64(f.Fwd.URG)
		num["Bwd URG Flags"][i] = float64(f.Bwd.URG)
		num["SYN Flag Cnt"][i] = float64(f.SYN)
		num["FIN Flag Cnt"][i] = float64(f.FIN)
		num["RST Flag Cnt"][i] = float64(f.RST)
		num["ACK Flag Cnt"][i] = float64(f.ACK)
	}

	t := table.New(n)
	for _, name := range FlowColumns() {
		var err error
		if values, ok := text[name]; ok {
			err = t.AddText(name, values)
		} else {
			err = t.AddNumeric(name, num[name])
		}
		if err != nil {
			return nil, errors.Wrapf(err, "flow column %s", name)
		}
	}
	return t, nil
}
