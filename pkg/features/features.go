// Package features defines the fixed-schema feature record exchanged between
// extractors and normalizers, and the normalizers themselves.
package features

// Dim is the number of fields in a Record.
const Dim = 8

// Record is the fixed feature schema extracted from one network event.
type Record struct {
	PacketLength  float64
	InterArrival  float64 // seconds since the previous captured event
	Protocol      float64 // IP protocol number
	SrcPort       float64
	DstPort       float64
	TCPFlags      float64 // bitmask, see packet.EncodeTCPFlags
	TTL           float64 // IPv4 TTL or IPv6 hop limit
	PayloadLength float64
}

// Names returns the field names in Vector order.
func Names() []string {
	return []string{
		"packet_length",
		"inter_arrival",
		"protocol",
		"src_port",
		"dst_port",
		"tcp_flags",
		"ttl",
		"payload_length",
	}
}

// Vector returns the record as a slice in Names order.
func (r Record) Vector() []float64 {
	return []float64{
		r.PacketLength,
		r.InterArrival,
		r.Protocol,
		r.SrcPort,
		r.DstPort,
		r.TCPFlags,
		r.TTL,
		r.PayloadLength,
	}
}

// Extractor turns a raw captured item into a Record.
type Extractor interface {
	Extract(item any) (Record, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(item any) (Record, error)

// Extract calls f(item).
func (f ExtractorFunc) Extract(item any) (Record, error) {
	return f(item)
}

// Normalizer maps a batch of records onto standardized vectors. The output
// has one vector per record, all of the same dimension.
type Normalizer interface {
	Normalize(records []Record) ([][]float64, error)
}
