package transport

import "time"

// DefaultMaxPieceSize is the default payload size of an outbound fragment
const DefaultMaxPieceSize = 1000

// TransportConfig holds configuration for the fragment transport
type TransportConfig struct {
	// ReassemblyTimeout discards a reassembly that does not complete in time.
	// Default: 0 (disabled; a partial message waits until reset or superseded)
	ReassemblyTimeout time.Duration

	// MaxReassemblySize is the maximum number of buffered payload bytes per peer.
	// Default: 0 (unlimited)
	MaxReassemblySize int

	// MaxPieceSize is the maximum payload size of one outbound fragment
	MaxPieceSize int

	// Format selects the outbound fragment encoding
	Format Format

	// EnableStatistics enables statistics collection
	EnableStatistics bool
}

// DefaultTransportConfig returns default transport configuration
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ReassemblyTimeout: 0,
		MaxReassemblySize: 0,
		MaxPieceSize:      DefaultMaxPieceSize,
		Format:            FormatAddressed,
		EnableStatistics:  true,
	}
}
