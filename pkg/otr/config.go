package otr

import (
	"fmt"

	"avaneesh/otrfrag-go/pkg/transport"
	"avaneesh/otrfrag-go/pkg/types"
)

// SessionConfig configures a session
type SessionConfig struct {
	// Identity
	ID string

	// Own instance tag; fragments addressed to other nonzero tags are ignored
	InstanceTag types.InstanceTag

	// Reassembly and fragmentation
	Transport transport.TransportConfig
}

// DefaultSessionConfig returns a configuration with a random instance tag
func DefaultSessionConfig() SessionConfig {
	tag, err := types.NewRandomInstanceTag()
	if err != nil {
		tag = types.SmallestTag
	}
	return SessionConfig{
		ID:          "session",
		InstanceTag: tag,
		Transport:   transport.DefaultTransportConfig(),
	}
}

// Validate checks the configuration
func (c SessionConfig) Validate() error {
	if c.InstanceTag.IsZero() || !c.InstanceTag.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidInstanceTag, c.InstanceTag)
	}
	if c.Transport.MaxPieceSize < 0 {
		return fmt.Errorf("%w: %d", transport.ErrInvalidPieceSize, c.Transport.MaxPieceSize)
	}
	if c.Transport.Format == transport.FormatNone {
		return fmt.Errorf("%w: %s", transport.ErrUnsupportedFormat, c.Transport.Format)
	}
	return nil
}
