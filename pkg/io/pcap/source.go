// Package pcap captures packets from PCAP files or live interfaces and pushes
// them into the ingestion pipeline.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	seqio "github.com/hed1ad/seqguard/pkg/io"
	"github.com/hed1ad/seqguard/pkg/io/packet"
)

var _ seqio.Source = (*Source)(nil)

// Source reads packets from a pcap handle, stamps inter-arrival gaps and
// pushes packet.Frame values downstream. It never waits on the consumer:
// packets over the optional rate cap are dropped and counted.
type Source struct {
	handle  *pcap.Handle
	isLive  bool
	filter  string
	limiter *rate.Limiter
	logger  *zap.Logger

	received atomic.Uint64
	dropped  atomic.Uint64
}

// Option configures a Source.
type Option func(*Source)

// WithFilter sets a BPF filter expression.
func WithFilter(expr string) Option {
	return func(s *Source) {
		s.filter = expr
	}
}

// WithRateLimit caps forwarded packets per second. Zero disables the cap.
func WithRateLimit(pps float64, burst int) Option {
	return func(s *Source) {
		if pps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(pps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) {
		if logger == nil {
			logger = zap.NewNop()
		}
		s.logger = logger
	}
}

// NewFileSource creates a source for PCAP files.
func NewFileSource(filename string, opts ...Option) (*Source, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	return newSource(handle, false, opts)
}

// NewLiveSource creates a source for live packet capture.
func NewLiveSource(iface string, snaplen int32, promisc bool, timeout time.Duration, opts ...Option) (*Source, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, fmt.Errorf("open interface %s: %w", iface, err)
	}
	return newSource(handle, true, opts)
}

func newSource(handle *pcap.Handle, live bool, opts []Option) (*Source, error) {
	s := &Source{
		handle: handle,
		isLive: live,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.filter != "" {
		if err := handle.SetBPFFilter(s.filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set filter %q: %w", s.filter, err)
		}
	}
	return s, nil
}

// Run pushes frames into dst until the capture ends or ctx is done. An
// exhausted offline file returns nil.
func (s *Source) Run(ctx context.Context, dst seqio.Pusher) error {
	if s.handle == nil {
		return errors.New("source not initialized")
	}

	packets := gopacket.NewPacketSource(s.handle, s.handle.LinkType()).Packets()
	var stamper packet.Stamper

	s.logger.Info("capture started", zap.Bool("live", s.isLive), zap.String("filter", s.filter))
	defer func() {
		s.logger.Info("capture stopped",
			zap.Uint64("received", s.received.Load()),
			zap.Uint64("dropped", s.dropped.Load()),
		)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-packets:
			if !ok {
				return nil
			}
			s.received.Add(1)
			frame := stamper.Stamp(p)
			if s.limiter != nil && !s.limiter.Allow() {
				s.dropped.Add(1)
				continue
			}
			dst.Push(frame)
		}
	}
}

// Received returns how many packets were read.
func (s *Source) Received() uint64 {
	return s.received.Load()
}

// Dropped returns how many packets were dropped by the rate cap.
func (s *Source) Dropped() uint64 {
	return s.dropped.Load()
}

// Close releases resources.
func (s *Source) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
