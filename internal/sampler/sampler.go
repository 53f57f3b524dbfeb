// Package sampler reads cumulative RX/TX byte counters and turns them into
// per-tick deltas.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ErrInterfaceNotFound is returned when a source has no counters for the
// configured interface.
var ErrInterfaceNotFound = errors.New("interface not found")

// ReadError reports an unavailable counter source. The tick continues with
// a zero delta.
type ReadError struct {
	Source string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read counter %s: %v", e.Source, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Sample reads a single cumulative counter file, such as
// /sys/class/net/eth0/statistics/rx_bytes.
func Sample(counterPath string) (uint64, error) {
	data, err := os.ReadFile(counterPath)
	if err != nil {
		return 0, &ReadError{Source: counterPath, Err: err}
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, &ReadError{Source: counterPath, Err: err}
	}
	return v, nil
}

// Delta returns cur-prev when a previous reading exists and the counter did
// not go backwards. First readings and counter resets yield 0.
func Delta(prev uint64, havePrev bool, cur uint64) uint64 {
	if !havePrev || cur < prev {
		return 0
	}
	return cur - prev
}

// Counters is one reading of both directions.
type Counters struct {
	RX uint64
	TX uint64
}

// Source produces cumulative counters for one interface.
type Source interface {
	Counters(ctx context.Context) (Counters, error)
	Name() string
}

// DefaultSysfsRoot is the kernel's network interface directory.
const DefaultSysfsRoot = "/sys/class/net"

// SysfsSource reads <root>/<iface>/statistics/{rx,tx}_bytes.
type SysfsSource struct {
	Root      string
	Interface string
}

// NewSysfsSource creates a sysfs source. An empty root means /sys/class/net.
func NewSysfsSource(root, iface string) *SysfsSource {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &SysfsSource{Root: root, Interface: iface}
}

// Name returns the source description.
func (s *SysfsSource) Name() string {
	return "sysfs:" + s.Interface
}

// CounterPath returns the path of the named statistics file.
func (s *SysfsSource) CounterPath(stat string) string {
	return filepath.Join(s.Root, s.Interface, "statistics", stat)
}

// Counters reads rx_bytes and tx_bytes.
func (s *SysfsSource) Counters(_ context.Context) (Counters, error) {
	rx, err := Sample(s.CounterPath("rx_bytes"))
	if err != nil {
		return Counters{}, err
	}
	tx, err := Sample(s.CounterPath("tx_bytes"))
	if err != nil {
		return Counters{}, err
	}
	return Counters{RX: rx, TX: tx}, nil
}

// GopsutilSource reads per-NIC counters through gopsutil.
type GopsutilSource struct {
	Interface string
}

// NewGopsutilSource creates a gopsutil-backed source.
func NewGopsutilSource(iface string) *GopsutilSource {
	return &GopsutilSource{Interface: iface}
}

// Name returns the source description.
func (s *GopsutilSource) Name() string {
	return "gopsutil:" + s.Interface
}

// Counters returns BytesRecv/BytesSent for the interface.
func (s *GopsutilSource) Counters(ctx context.Context) (Counters, error) {
	stats, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return Counters{}, &ReadError{Source: s.Name(), Err: err}
	}
	for _, st := range stats {
		if st.Name == s.Interface {
			return Counters{RX: st.BytesRecv, TX: st.BytesSent}, nil
		}
	}
	return Counters{}, &ReadError{Source: s.Name(), Err: ErrInterfaceNotFound}
}

// Reading is the result of one Sampler.Next call.
type Reading struct {
	// Totals are the latest known cumulative counters.
	Totals Counters

	// Deltas are the bytes moved since the previous successful reading.
	Deltas Counters

	// OK is false when the source was unavailable this tick.
	OK bool
}

// Sampler remembers the previous reading of a Source.
type Sampler struct {
	src      Source
	prev     Counters
	havePrev bool
}

// New creates a sampler over src.
func New(src Source) *Sampler {
	return &Sampler{src: src}
}

// Source returns the underlying counter source.
func (s *Sampler) Source() Source {
	return s.src
}

// Next reads the source and returns the deltas since the previous reading.
// On error the previous totals are kept, deltas are zero and the error is
// returned for logging.
func (s *Sampler) Next(ctx context.Context) (Reading, error) {
	cur, err := s.src.Counters(ctx)
	if err != nil {
		return Reading{Totals: s.prev}, err
	}

	r := Reading{
		Totals: cur,
		Deltas: Counters{
			RX: Delta(s.prev.RX, s.havePrev, cur.RX),
			TX: Delta(s.prev.TX, s.havePrev, cur.TX),
		},
		OK: true,
	}
	s.prev = cur
	s.havePrev = true
	return r, nil
}
