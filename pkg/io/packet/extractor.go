// Package packet extracts fixed-schema feature records from decoded packets.
package packet

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/hed1ad/seqguard/pkg/features"
)

// ErrUnsupportedItem is returned for items that are not packets.
var ErrUnsupportedItem = errors.New("unsupported item")

// Frame is a captured packet stamped with the gap since the previous one.
// The gap is computed on the capture goroutine, where arrival order is still
// known; workers may process frames in any order.
type Frame struct {
	Packet gopacket.Packet
	Gap    time.Duration
}

// Stamper assigns inter-arrival gaps. It is not safe for concurrent use.
type Stamper struct {
	last time.Time
}

// Stamp wraps p in a Frame carrying the gap since the previous stamped packet.
func (s *Stamper) Stamp(p gopacket.Packet) Frame {
	f := Frame{Packet: p}
	md := p.Metadata()
	if md == nil || md.Timestamp.IsZero() {
		return f
	}
	if !s.last.IsZero() && md.Timestamp.After(s.last) {
		f.Gap = md.Timestamp.Sub(s.last)
	}
	s.last = md.Timestamp
	return f
}

// Extractor converts packets into feature records. It holds no state and is
// safe for concurrent use.
type Extractor struct{}

var _ features.Extractor = (*Extractor)(nil)

// NewExtractor creates a new packet feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract accepts a Frame, *Frame or bare gopacket.Packet.
func (e *Extractor) Extract(item any) (features.Record, error) {
	switch v := item.(type) {
	case Frame:
		return e.extract(v.Packet, v.Gap)
	case *Frame:
		if v == nil {
			return features.Record{}, fmt.Errorf("%w: nil frame", ErrUnsupportedItem)
		}
		return e.extract(v.Packet, v.Gap)
	case gopacket.Packet:
		return e.extract(v, 0)
	default:
		return features.Record{}, fmt.Errorf("%w: %T", ErrUnsupportedItem, item)
	}
}

func (e *Extractor) extract(p gopacket.Packet, gap time.Duration) (features.Record, error) {
	if p == nil {
		return features.Record{}, fmt.Errorf("%w: nil packet", ErrUnsupportedItem)
	}
	if errLayer := p.ErrorLayer(); errLayer != nil && p.NetworkLayer() == nil {
		return features.Record{}, fmt.Errorf("decode packet: %w", errLayer.Error())
	}

	r := features.Record{
		PacketLength: float64(len(p.Data())),
		InterArrival: gap.Seconds(),
	}
	if md := p.Metadata(); md != nil && md.Length > 0 {
		r.PacketLength = float64(md.Length)
	}

	// Network layer
	if ipLayer := p.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		ip := ipLayer.(*layers.IPv4)
		r.TTL = float64(ip.TTL)
		r.Protocol = float64(ip.Protocol)
	} else if ipLayer := p.Layer(layers.LayerTypeIPv6); ipLayer != nil {
		ip := ipLayer.(*layers.IPv6)
		r.TTL = float64(ip.HopLimit)
		r.Protocol = float64(ip.NextHeader)
	}

	// Transport layer
	if tcpLayer := p.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		r.Protocol = float64(layers.IPProtocolTCP)
		r.SrcPort = float64(tcp.SrcPort)
		r.DstPort = float64(tcp.DstPort)
		r.TCPFlags = EncodeTCPFlags(tcp)
	} else if udpLayer := p.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		r.Protocol = float64(layers.IPProtocolUDP)
		r.SrcPort = float64(udp.SrcPort)
		r.DstPort = float64(udp.DstPort)
	} else if p.Layer(layers.LayerTypeICMPv4) != nil {
		r.Protocol = float64(layers.IPProtocolICMPv4)
	} else if p.Layer(layers.LayerTypeICMPv6) != nil {
		r.Protocol = float64(layers.IPProtocolICMPv6)
	}

	if app := p.ApplicationLayer(); app != nil {
		r.PayloadLength = float64(len(app.Payload()))
	}

	return r, nil
}

// EncodeTCPFlags converts TCP flags to a numeric bitmask.
func EncodeTCPFlags(tcp *layers.TCP) float64 {
	var flags float64
	if tcp.SYN {
		flags += 1
	}
	if tcp.ACK {
		flags += 2
	}
	if tcp.FIN {
		flags += 4
	}
	if tcp.RST {
		flags += 8
	}
	if tcp.PSH {
		flags += 16
	}
	if tcp.URG {
		flags += 32
	}
	return flags
}
