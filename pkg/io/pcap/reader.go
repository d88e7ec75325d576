// Package pcap provides PCAP file reading and aggregation of packets into
// flow records.
package pcap

import (
	"context"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"

	"github.com/hed1ad/flowprep/pkg/table"
)

// Reader reads packets from PCAP files or live interfaces and emits flows.
type Reader struct {
	handle    *pcap.Handle
	assembler *Assembler
	isLive    bool

	label       string
	idleTimeout time.Duration
	batchSize   int

	errMu sync.Mutex
	err   error
}

// Option configures a Reader.
type Option func(*Reader)

// WithLabel sets the Label value of every emitted flow. The default is empty,
// which the preprocessor treats as an unknown label.
func WithLabel(label string) Option {
	return func(r *Reader) {
		r.label = label
	}
}

// WithIdleTimeout sets how long a flow may be silent before it is emitted.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Reader) {
		r.idleTimeout = d
	}
}

// WithBatchSize sets how many completed flows Stream groups into one table.
func WithBatchSize(n int) Option {
	return func(r *Reader) {
		r.batchSize = n
	}
}

func newReader(handle *pcap.Handle, live bool, opts []Option) *Reader {
	r := &Reader{
		handle:      handle,
		isLive:      live,
		idleTimeout: 120 * time.Second,
		batchSize:   100,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.batchSize <= 0 {
		r.batchSize = 1
	}
	r.assembler = NewAssembler(r.idleTimeout)
	return r
}

// NewFileReader creates a reader for PCAP files.
func NewFileReader(filename string, opts ...Option) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open pcap")
	}

	return newReader(handle, false, opts), nil
}

// NewLiveReader creates a reader for live packet capture.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration, opts ...Option) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "open interface %s", iface)
	}

	return newReader(handle, true, opts), nil
}

// SetBPFFilter restricts capture to packets matching expr.
func (r *Reader) SetBPFFilter(expr string) error {
	if r.handle == nil {
		return errors.New("reader not initialized")
	}
	return errors.Wrap(r.handle.SetBPFFilter(expr), "set bpf filter")
}

// Read consumes every packet and returns all flows as one table. Live readers
// never reach the end of input; use Stream for them.
func (r *Reader) Read() (*table.Table, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}
	if r.isLive {
		return nil, errors.New("read is not supported on live captures")
	}

	var flows []*Flow
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	for packet := range packetSource.Packets() {
		flows = append(flows, r.assembler.Add(packet)...)
	}
	flows = append(flows, r.assembler.Flush()...)

	return FlowTable(flows, r.label)
}

// Stream returns a channel of flow tables for real-time processing. Each
// table holds up to the batch size of completed flows; remaining flows are
// flushed when the source ends.
func (r *Reader) Stream(ctx context.Context) (<-chan *table.Table, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}

	out := make(chan *table.Table, 16)
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	go func() {
		defer close(out)

		batch := make([]*Flow, 0, r.batchSize)
		emit := func(flows []*Flow) bool {
			t, err := FlowTable(flows, r.label)
			if err != nil {
				r.setErr(err)
				return false
			}
			select {
			case out <- t:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-packetSource.Packets():
				if !ok {
					batch = append(batch, r.assembler.Flush()...)
					if len(batch) > 0 {
						emit(batch)
					}
					return
				}

				batch = append(batch, r.assembler.Add(packet)...)
				if len(batch) >= r.batchSize {
					if !emit(batch) {
						return
					}
					batch = make([]*Flow, 0, r.batchSize)
				}
			}
		}
	}()

	return out, nil
}

func (r *Reader) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.err = err
}

// Err returns the error that ended Stream early, if any. It is valid once the
// stream channel is closed.
func (r *Reader) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
	}
	return nil
}
